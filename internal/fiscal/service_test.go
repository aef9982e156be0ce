package fiscal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"pdv_backend/internal/config"
	"pdv_backend/internal/database/dbtest"
	"pdv_backend/internal/sales"
)

func testConfig(t *testing.T) config.Fiscal {
	t.Helper()
	certPath := filepath.Join(t.TempDir(), "certificado.pfx")
	require.NoError(t, os.WriteFile(certPath, []byte("not-a-real-pkcs12"), 0o600))

	return config.Fiscal{
		LegalName:           "Padaria Exemplo LTDA",
		TaxID:               "12.345.678/0001-95",
		State:               "SP",
		StateRegistration:   "123456789110",
		Street:              "Rua das Flores",
		Number:              "100",
		District:            "Centro",
		Municipality:        "São Paulo",
		PostalCode:          "01001-000",
		MunicipalityCode:    "3550308",
		TaxRegime:           1,
		CertificatePath:     certPath,
		CertificatePassword: "secret",
		CSCID:               "000001",
		CSCToken:            "CSC-TOKEN",
		Environment:         2,
		Series:              1,
		Timeout:             2 * time.Second,
		StaleAfter:          time.Minute,
	}
}

type fixture struct {
	storage *sales.SQLStorage
	gateway *FakeGateway
	service *Service
	sale    *sales.Sale
}

func newFixture(t *testing.T, cfg config.Fiscal, outcome string) *fixture {
	t.Helper()
	db := dbtest.New(t)
	logger := zaptest.NewLogger(t)

	storage := sales.NewSQLStorage(db)
	ledger := sales.NewService(storage, nil, logger)
	sale, err := ledger.RecordSale(context.Background(), sales.NewSale{
		Items: []sales.LineItem{
			{ProductCode: "7891000100103", ProductName: "Refrigerante Lata", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.RequireFromString("4.50")},
			{ProductCode: "1", ProductName: "Pão Francês", Quantity: decimal.RequireFromString("0.5"), UnitPrice: decimal.RequireFromString("15")},
		},
		AmountTendered: decimal.NewFromInt(20),
	})
	require.NoError(t, err)

	gateway, err := NewFakeGateway(outcome)
	require.NoError(t, err)

	return &fixture{
		storage: storage,
		gateway: gateway,
		service: NewService(storage, gateway, cfg, nil, logger),
		sale:    sale,
	}
}

func (f *fixture) reload(t *testing.T) *sales.Sale {
	t.Helper()
	sale, err := f.storage.Read(context.Background(), f.sale.ID)
	require.NoError(t, err)
	assert.True(t, sale.FiscalStatus.IsTerminal(), "sale left in %s", sale.FiscalStatus)
	return sale
}

func TestSubmit_Authorized(t *testing.T) {
	f := newFixture(t, testConfig(t), FakeAuthorize)

	receipt, err := f.service.Submit(context.Background(), f.sale.ID)
	require.NoError(t, err)
	assert.Equal(t, sales.StatusAuthorized, receipt.Status)
	assert.NotEmpty(t, receipt.Protocol)
	assert.Equal(t, int64(1), receipt.Number)

	sale := f.reload(t)
	assert.Equal(t, sales.StatusAuthorized, sale.FiscalStatus)
	require.NotNil(t, sale.FiscalProtocol)
	assert.Equal(t, receipt.Protocol, *sale.FiscalProtocol)
	require.NotNil(t, sale.FiscalDetail)
	assert.Equal(t, "100 - Autorizado o uso da NF-e", *sale.FiscalDetail)
	require.NotNil(t, sale.FiscalNumber)
	assert.Equal(t, int64(1), *sale.FiscalNumber)

	calls := f.gateway.Calls()
	require.Len(t, calls, 1)
	req := calls[0]
	assert.Equal(t, ModelNFCe, req.Model)
	assert.Equal(t, "12345678000195", req.Emitter.TaxID)
	require.Len(t, req.Items, 2)
	assert.Equal(t, "22021000", req.Items[0].NCM)
	assert.Equal(t, "102", req.Items[0].CSOSN)
	assert.True(t, req.Items[1].Total.Equal(decimal.RequireFromString("7.50")))
	require.Len(t, req.Payments, 1)
	assert.Equal(t, "01", req.Payments[0].Method)
	assert.True(t, req.Payments[0].Amount.Equal(decimal.NewFromInt(20)))
	assert.True(t, req.Change.Equal(decimal.RequireFromString("3.50")))
	assert.Equal(t, "CSC-TOKEN", req.SecurityCode.Token)
}

func TestSubmit_Rejected(t *testing.T) {
	f := newFixture(t, testConfig(t), FakeReject)

	_, err := f.service.Submit(context.Background(), f.sale.ID)
	var rejection *RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, "225", rejection.StatusCode)

	sale := f.reload(t)
	assert.Equal(t, sales.StatusRejected, sale.FiscalStatus)
	assert.Nil(t, sale.FiscalProtocol)
	require.NotNil(t, sale.FiscalDetail)
	assert.Contains(t, *sale.FiscalDetail, "Falha no Schema XML")
	assert.Contains(t, *sale.FiscalDetail, "225 - ")
}

func TestSubmit_GatewayFailure(t *testing.T) {
	f := newFixture(t, testConfig(t), FakeFail)

	_, err := f.service.Submit(context.Background(), f.sale.ID)
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)

	sale := f.reload(t)
	assert.Equal(t, sales.StatusFailed, sale.FiscalStatus)
	require.NotNil(t, sale.FiscalDetail)
	assert.Contains(t, *sale.FiscalDetail, "connection refused")

	// The sale itself is untouched.
	assert.True(t, sale.Total.Equal(f.sale.Total))
	assert.Len(t, sale.Items, 2)
}

func TestSubmit_Timeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.Timeout = 50 * time.Millisecond
	f := newFixture(t, cfg, FakeAuthorize)
	f.gateway.Delay = 5 * time.Second

	start := time.Now()
	_, err := f.service.Submit(context.Background(), f.sale.ID)
	assert.Less(t, time.Since(start), 2*time.Second)

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	sale := f.reload(t)
	assert.Equal(t, sales.StatusFailed, sale.FiscalStatus)
	require.NotNil(t, sale.FiscalDetail)
	assert.Contains(t, *sale.FiscalDetail, "no answer within")
}

func TestSubmit_MissingConfiguration(t *testing.T) {
	cfg := testConfig(t)
	cfg.CSCToken = ""
	cfg.TaxID = ""
	f := newFixture(t, cfg, FakeAuthorize)

	_, err := f.service.Submit(context.Background(), f.sale.ID)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Item, "CSC_TOKEN")
	assert.Contains(t, cfgErr.Item, "EMIT_CNPJ")
	assert.Empty(t, f.gateway.Calls())

	sale := f.reload(t)
	assert.Equal(t, sales.StatusFailed, sale.FiscalStatus)
	require.NotNil(t, sale.FiscalDetail)
	assert.Contains(t, *sale.FiscalDetail, "CSC_TOKEN")
	assert.Nil(t, sale.FiscalNumber)

	// No document number was spent.
	next, err := f.storage.NextFiscalNumber(context.Background(), cfg.Series)
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)
}

func TestSubmit_MissingCertificate(t *testing.T) {
	cfg := testConfig(t)
	cfg.CertificatePath = filepath.Join(t.TempDir(), "missing.pfx")
	f := newFixture(t, cfg, FakeAuthorize)

	_, err := f.service.Submit(context.Background(), f.sale.ID)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "CERTIFICATE_PATH", cfgErr.Item)
	assert.Empty(t, f.gateway.Calls())

	sale := f.reload(t)
	assert.Equal(t, sales.StatusFailed, sale.FiscalStatus)
	require.NotNil(t, sale.FiscalDetail)
	assert.Contains(t, *sale.FiscalDetail, "not found")
}

func TestSubmit_AuthorizedWithoutProtocolFails(t *testing.T) {
	f := newFixture(t, testConfig(t), FakeAuthorize)
	f.service.gateway = GatewayFunc(func(ctx context.Context, req *InvoiceRequest) (*Result, error) {
		return &Result{Accepted: true, StatusCode: "100"}, nil
	})

	_, err := f.service.Submit(context.Background(), f.sale.ID)
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, sales.StatusFailed, f.reload(t).FiscalStatus)
}

func TestSubmit_NotFound(t *testing.T) {
	f := newFixture(t, testConfig(t), FakeAuthorize)

	_, err := f.service.Submit(context.Background(), f.sale.ID+100)
	assert.ErrorIs(t, err, sales.ErrNotFound)
	assert.Empty(t, f.gateway.Calls())
}

func TestSubmit_ConcurrentAttemptsForSameSale(t *testing.T) {
	f := newFixture(t, testConfig(t), FakeAuthorize)
	f.gateway.Delay = 300 * time.Millisecond
	f.gateway.Started = make(chan struct{}, 1)

	var (
		wg       sync.WaitGroup
		firstErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = f.service.Submit(context.Background(), f.sale.ID)
	}()

	select {
	case <-f.gateway.Started:
	case <-time.After(5 * time.Second):
		t.Fatal("gateway was never called")
	}

	_, err := f.service.Submit(context.Background(), f.sale.ID)
	assert.ErrorIs(t, err, sales.ErrSubmissionInProgress)

	wg.Wait()
	require.NoError(t, firstErr)

	sale := f.reload(t)
	assert.Equal(t, sales.StatusAuthorized, sale.FiscalStatus)
	assert.Equal(t, 1, sale.FiscalAttempts)
	assert.Len(t, f.gateway.Calls(), 1)
}

func TestSubmit_ResubmitAfterFailure(t *testing.T) {
	f := newFixture(t, testConfig(t), FakeFail)
	ctx := context.Background()

	_, err := f.service.Submit(ctx, f.sale.ID)
	require.Error(t, err)
	assert.Equal(t, sales.StatusFailed, f.reload(t).FiscalStatus)

	f.gateway.Outcome = FakeAuthorize
	receipt, err := f.service.Submit(ctx, f.sale.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, receipt.Attempt)
	assert.Equal(t, int64(2), receipt.Number)

	sale := f.reload(t)
	assert.Equal(t, sales.StatusAuthorized, sale.FiscalStatus)
	assert.Equal(t, 2, sale.FiscalAttempts)
}

func TestSubmit_CallerCancellationStillRecordsOutcome(t *testing.T) {
	f := newFixture(t, testConfig(t), FakeAuthorize)
	f.gateway.Delay = 5 * time.Second
	f.gateway.Started = make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-f.gateway.Started
		cancel()
	}()

	_, err := f.service.Submit(ctx, f.sale.ID)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)

	sale := f.reload(t)
	assert.Equal(t, sales.StatusFailed, sale.FiscalStatus)
}
