package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pdv_backend/internal/catalog"
)

var (
	// ErrValidation is returned for sale payloads that cannot be recorded.
	ErrValidation = errors.New("invalid sale")
	// ErrInvalidStatus is returned for an unknown fiscal status value.
	ErrInvalidStatus = errors.New("invalid status value")
	// ErrInvalidTransition is returned when a fiscal status change is not
	// allowed by the state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// DefaultPaymentMethod is the NFC-e code for cash.
const DefaultPaymentMethod = "01"

// paymentMethods are the NFC-e tPag codes accepted at the till.
var paymentMethods = map[string]string{
	"01": "Dinheiro",
	"02": "Cheque",
	"03": "Cartão de Crédito",
	"04": "Cartão de Débito",
	"05": "Crédito Loja",
	"10": "Vale Alimentação",
	"11": "Vale Refeição",
	"12": "Vale Presente",
	"13": "Vale Combustível",
	"15": "Boleto Bancário",
	"16": "Depósito Bancário",
	"17": "PIX",
	"18": "Transferência",
	"19": "Programa de Fidelidade",
	"99": "Outros",
}

// ProductLookup resolves catalog products by code.
type ProductLookup interface {
	Get(ctx context.Context, code string) (*catalog.Product, error)
}

// Service provides high-level sales management operations on a Storage backend.
type Service struct {
	storage  Storage
	products ProductLookup
	logger   *zap.Logger
	now      func() time.Time
}

// SalesMetadata summarizes the ledger per fiscal status.
type SalesMetadata struct {
	Quantity    int             `json:"quantity"`
	Pending     int             `json:"pending"`
	Processing  int             `json:"processing"`
	Authorized  int             `json:"authorized"`
	Rejected    int             `json:"rejected"`
	Failed      int             `json:"failed"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// NewSale is the input of RecordSale. ClientTotal and ClientChange are only
// compared against the computed values.
type NewSale struct {
	Items          []LineItem
	AmountTendered decimal.Decimal
	PaymentMethod  string
	ClientTotal    *decimal.Decimal
	ClientChange   *decimal.Decimal
}

// NewService creates a new Service. products may be nil, in which case every
// line item must carry its own name and price.
func NewService(storage Storage, products ProductLookup, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		storage:  storage,
		products: products,
		logger:   logger,
		now:      time.Now,
	}
}

// RecordSale validates the items, computes total and change server side and
// persists the sale with a PENDING fiscal status.
func (s *Service) RecordSale(ctx context.Context, in NewSale) (*Sale, error) {
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: itens must not be empty", ErrValidation)
	}

	method := strings.TrimSpace(in.PaymentMethod)
	if method == "" {
		method = DefaultPaymentMethod
	}
	if _, ok := paymentMethods[method]; !ok {
		return nil, fmt.Errorf("%w: unknown formaPagamento '%s'", ErrValidation, method)
	}

	items := make(LineItems, 0, len(in.Items))
	total := decimal.Zero
	for i, raw := range in.Items {
		item, err := s.snapshotItem(ctx, raw)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		items = append(items, item)
		total = total.Add(item.Total())
	}

	if in.AmountTendered.LessThan(total) {
		return nil, fmt.Errorf("%w: valorPago %s is less than total %s", ErrValidation,
			in.AmountTendered.StringFixed(2), total.StringFixed(2))
	}
	change := in.AmountTendered.Sub(total)

	if in.ClientTotal != nil && !in.ClientTotal.Equal(total) {
		s.logger.Warn("client total differs from computed total",
			zap.String("client_total", in.ClientTotal.String()), zap.String("total", total.String()))
	}
	if in.ClientChange != nil && !in.ClientChange.Equal(change) {
		s.logger.Warn("client change differs from computed change",
			zap.String("client_change", in.ClientChange.String()), zap.String("change", change.String()))
	}

	sale := &Sale{
		CreatedAt:      s.now().UTC().Truncate(time.Microsecond),
		Total:          total,
		AmountTendered: in.AmountTendered,
		Change:         change,
		PaymentMethod:  method,
		Items:          items,
		FiscalStatus:   StatusPending,
	}

	if err := s.storage.Create(ctx, sale); err != nil {
		s.logger.Error("failed to save sale", zap.Error(err))
		return nil, fmt.Errorf("failed to save sale: %w", err)
	}

	s.logger.Info("sale created",
		zap.Int64("sale_id", sale.ID),
		zap.String("total", total.StringFixed(2)),
		zap.Int("items", len(items)),
	)
	return sale, nil
}

// snapshotItem copies name and price from the catalog when the code is known.
// Unknown codes are recorded as ad hoc items with the client values.
func (s *Service) snapshotItem(ctx context.Context, item LineItem) (LineItem, error) {
	item.ProductCode = strings.TrimSpace(item.ProductCode)
	item.ProductName = strings.TrimSpace(item.ProductName)

	if item.ProductCode == "" {
		return item, fmt.Errorf("%w: codigo is required", ErrValidation)
	}
	if !item.Quantity.IsPositive() {
		return item, fmt.Errorf("%w: quantidade must be greater than zero", ErrValidation)
	}

	if s.products != nil {
		p, err := s.products.Get(ctx, item.ProductCode)
		switch {
		case err == nil:
			item.ProductName = p.Name
			item.UnitPrice = p.UnitPrice
			return item, checkLineTotal(item)
		case !errors.Is(err, catalog.ErrNotFound):
			return item, fmt.Errorf("lookup product %s: %w", item.ProductCode, err)
		}
	}

	if item.ProductName == "" {
		return item, fmt.Errorf("%w: nome is required for product %s", ErrValidation, item.ProductCode)
	}
	if !item.UnitPrice.IsPositive() {
		return item, fmt.Errorf("%w: preco must be greater than zero", ErrValidation)
	}
	return item, checkLineTotal(item)
}

// checkLineTotal rejects lines worth less than a cent, which no receipt can carry.
func checkLineTotal(item LineItem) error {
	if !item.Total().IsPositive() {
		return fmt.Errorf("%w: total of product %s rounds to zero", ErrValidation, item.ProductCode)
	}
	return nil
}

// GetSale returns a sale with its items.
func (s *Service) GetSale(ctx context.Context, id int64) (*Sale, error) {
	return s.storage.Read(ctx, id)
}

// ListSales returns sale summaries, most recent first, optionally filtered by
// fiscal status.
func (s *Service) ListSales(ctx context.Context, status string) ([]*Sale, error) {
	var filter FiscalStatus
	if status != "" {
		parsed, err := ParseFiscalStatus(status)
		if err != nil {
			s.logger.Warn("invalid status filter provided", zap.String("status_filter", status))
			return nil, err
		}
		filter = parsed
	}

	sales, err := s.storage.GetAll(ctx, filter)
	if err != nil {
		s.logger.Error("failed to get sales from storage", zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve sales: %w", err)
	}
	return sales, nil
}

// Summary counts sales per fiscal status.
func (s *Service) Summary(ctx context.Context) (SalesMetadata, error) {
	all, err := s.storage.GetAll(ctx, "")
	if err != nil {
		s.logger.Error("failed to get sales from storage", zap.Error(err))
		return SalesMetadata{}, fmt.Errorf("failed to retrieve sales: %w", err)
	}

	metadata := SalesMetadata{TotalAmount: decimal.Zero}
	for _, sale := range all {
		metadata.Quantity++
		metadata.TotalAmount = metadata.TotalAmount.Add(sale.Total)
		switch sale.FiscalStatus {
		case StatusPending:
			metadata.Pending++
		case StatusProcessing:
			metadata.Processing++
		case StatusAuthorized:
			metadata.Authorized++
		case StatusRejected:
			metadata.Rejected++
		case StatusFailed:
			metadata.Failed++
		}
	}

	s.logger.Debug("sales summary computed", zap.Any("metadata", metadata))
	return metadata, nil
}
