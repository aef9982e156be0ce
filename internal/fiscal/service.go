package fiscal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"pdv_backend/internal/config"
	"pdv_backend/internal/sales"
)

// Ledger is the part of the sale ledger the fiscal state machine drives.
type Ledger interface {
	Read(ctx context.Context, id int64) (*sales.Sale, error)
	BeginFiscalAttempt(ctx context.Context, id int64, now time.Time, staleAfter time.Duration) (int, error)
	CompleteFiscalAttempt(ctx context.Context, id int64, attempt int, outcome sales.FiscalOutcome, now time.Time) error
	NextFiscalNumber(ctx context.Context, series int) (int64, error)
}

// Receipt is the authorized outcome of a submission.
type Receipt struct {
	SaleID   int64
	Attempt  int
	Number   int64
	Status   sales.FiscalStatus
	Protocol string
	Detail   string
}

// Service drives the fiscal status of sales through gateway submissions.
type Service struct {
	ledger          Ledger
	gateway         Gateway
	cfg             config.Fiscal
	profile         *TaxProfile
	logger          *zap.Logger
	now             func() time.Time
	loadCertificate func(path, password string) (*Certificate, error)
}

// NewService creates a new Service. A nil profile uses DefaultTaxProfile.
func NewService(ledger Ledger, gateway Gateway, cfg config.Fiscal, profile *TaxProfile, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if profile == nil {
		profile = DefaultTaxProfile()
	}

	return &Service{
		ledger:          ledger,
		gateway:         gateway,
		cfg:             cfg,
		profile:         profile,
		logger:          logger,
		now:             time.Now,
		loadCertificate: LoadCertificate,
	}
}

// Submit runs one fiscal submission attempt for a persisted sale and records
// its terminal outcome.
//
// It returns sales.ErrNotFound for an unknown sale and
// sales.ErrSubmissionInProgress while another attempt holds the sale. Once the
// attempt has started the sale always ends AUTHORIZED, REJECTED (returned as
// *RejectionError) or FAILED (*ConfigurationError, *GatewayError or a storage
// error).
func (s *Service) Submit(ctx context.Context, saleID int64) (*Receipt, error) {
	logger := s.logger.With(zap.Int64("sale_id", saleID))

	sale, err := s.ledger.Read(ctx, saleID)
	if err != nil {
		if !errors.Is(err, sales.ErrNotFound) {
			logger.Error("failed to read sale", zap.Error(err))
		}
		return nil, err
	}

	attempt, err := s.ledger.BeginFiscalAttempt(ctx, saleID, s.now(), s.cfg.StaleAfter)
	if err != nil {
		if errors.Is(err, sales.ErrSubmissionInProgress) {
			logger.Warn("fiscal submission rejected, another attempt is in flight")
		} else if !errors.Is(err, sales.ErrNotFound) {
			logger.Error("failed to start fiscal attempt", zap.Error(err))
		}
		return nil, err
	}
	logger = logger.With(zap.Int("attempt", attempt))
	logger.Info("fiscal submission started")

	// The outcome is recorded even when the caller goes away mid attempt.
	recordCtx := context.WithoutCancel(ctx)

	req, err := s.prepare(ctx, sale)
	if err != nil {
		return nil, s.fail(recordCtx, logger, saleID, attempt, 0, err)
	}
	logger = logger.With(zap.Int64("number", req.Number), zap.String("correlation_id", req.CorrelationID.String()))

	res, err := s.call(ctx, req)
	if err != nil {
		return nil, s.fail(recordCtx, logger, saleID, attempt, req.Number, err)
	}

	if !res.Accepted {
		rejection := &RejectionError{StatusCode: res.StatusCode, Reason: res.Reason}
		logger.Warn("fiscal submission rejected", zap.String("status_code", res.StatusCode), zap.String("reason", res.Reason))
		outcome := sales.FiscalOutcome{Status: sales.StatusRejected, Detail: rejection.Error(), Number: req.Number}
		if err := s.complete(recordCtx, saleID, attempt, outcome); err != nil {
			logger.Error("failed to record fiscal rejection", zap.Error(err))
			return nil, fmt.Errorf("record rejection %s: %w", rejection, err)
		}
		return nil, rejection
	}

	if res.Protocol == "" {
		return nil, s.fail(recordCtx, logger, saleID, attempt, req.Number,
			&GatewayError{Op: "decode", Err: fmt.Errorf("status %s authorized without protocol", res.StatusCode)})
	}

	detail := statusDetail(res.StatusCode, res.Reason)
	if detail == "" {
		detail = "NFC-e autorizada"
	}
	outcome := sales.FiscalOutcome{Status: sales.StatusAuthorized, Protocol: res.Protocol, Detail: detail, Number: req.Number}
	if err := s.complete(recordCtx, saleID, attempt, outcome); err != nil {
		// The document exists at the authority; the protocol must not be lost.
		logger.Error("failed to record fiscal authorization", zap.String("protocol", res.Protocol), zap.Error(err))
		return nil, fmt.Errorf("record authorization %s: %w", res.Protocol, err)
	}

	logger.Info("fiscal submission authorized", zap.String("protocol", res.Protocol))
	return &Receipt{
		SaleID:   saleID,
		Attempt:  attempt,
		Number:   req.Number,
		Status:   sales.StatusAuthorized,
		Protocol: res.Protocol,
		Detail:   detail,
	}, nil
}

// prepare validates the configuration and certificate, then reserves a
// document number. Nothing reaches the gateway when it fails.
func (s *Service) prepare(ctx context.Context, sale *sales.Sale) (*InvoiceRequest, error) {
	if missing := s.cfg.Missing(); len(missing) > 0 {
		return nil, &ConfigurationError{Item: strings.Join(missing, ", "), Reason: "not set"}
	}

	cert, err := s.loadCertificate(s.cfg.CertificatePath, s.cfg.CertificatePassword)
	if err != nil {
		return nil, err
	}

	req, err := BuildInvoice(s.cfg, s.profile, sale, cert, s.now())
	if err != nil {
		return nil, err
	}

	number, err := s.ledger.NextFiscalNumber(ctx, s.cfg.Series)
	if err != nil {
		return nil, fmt.Errorf("reserve document number: %w", err)
	}
	req.Number = number
	return req, nil
}

func (s *Service) call(ctx context.Context, req *InvoiceRequest) (*Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	res, err := s.gateway.Submit(callCtx, req)
	if err == nil && res == nil {
		err = errors.New("empty gateway result")
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &GatewayError{Op: "submit", Err: fmt.Errorf("no answer within %s: %w", s.cfg.Timeout, context.DeadlineExceeded)}
		}
		var gwErr *GatewayError
		if !errors.As(err, &gwErr) {
			err = &GatewayError{Op: "submit", Err: err}
		}
		return nil, err
	}
	return res, nil
}

// fail records a FAILED outcome and returns cause. A recording failure is
// logged and does not replace cause.
func (s *Service) fail(ctx context.Context, logger *zap.Logger, saleID int64, attempt int, number int64, cause error) error {
	logger.Error("fiscal submission failed", zap.Error(cause))

	detail := cause.Error()
	if detail == "" {
		detail = "unknown failure"
	}
	outcome := sales.FiscalOutcome{Status: sales.StatusFailed, Detail: detail, Number: number}
	if err := s.complete(ctx, saleID, attempt, outcome); err != nil {
		logger.Error("failed to record fiscal failure", zap.Error(err))
	}
	return cause
}

func (s *Service) complete(ctx context.Context, saleID int64, attempt int, outcome sales.FiscalOutcome) error {
	return s.ledger.CompleteFiscalAttempt(ctx, saleID, attempt, outcome, s.now())
}
