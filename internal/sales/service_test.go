package sales

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"pdv_backend/internal/catalog"
	"pdv_backend/internal/database/dbtest"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestService(t *testing.T) (*Service, *catalog.Service) {
	t.Helper()
	db := dbtest.New(t)
	logger := zaptest.NewLogger(t)
	products := catalog.NewService(catalog.NewSQLStorage(db), logger)
	return NewService(NewSQLStorage(db), products, logger), products
}

func TestRecordSale_ComputesTotalAndChange(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sale, err := svc.RecordSale(ctx, NewSale{
		Items: []LineItem{
			{ProductCode: "1", ProductName: "Café", Quantity: dec("2"), UnitPrice: dec("4.50")},
			{ProductCode: "2", ProductName: "Pão de Queijo", Quantity: dec("3"), UnitPrice: dec("1.25")},
		},
		AmountTendered: dec("20"),
	})
	require.NoError(t, err)

	assert.NotZero(t, sale.ID)
	assert.True(t, sale.Total.Equal(dec("12.75")), "total %s", sale.Total)
	assert.True(t, sale.Change.Equal(dec("7.25")), "change %s", sale.Change)
	assert.Equal(t, StatusPending, sale.FiscalStatus)
	assert.Equal(t, DefaultPaymentMethod, sale.PaymentMethod)

	stored, err := svc.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.True(t, stored.Total.Equal(sale.Total))
	assert.True(t, stored.Change.Equal(sale.Change))
	require.Len(t, stored.Items, 2)
	assert.Equal(t, "Pão de Queijo", stored.Items[1].ProductName)
	assert.True(t, stored.Items[1].Quantity.Equal(dec("3")))
	assert.Equal(t, StatusPending, stored.FiscalStatus)
	assert.Nil(t, stored.FiscalProtocol)
	assert.Nil(t, stored.FiscalDetail)
}

func TestRecordSale_TotalIsSumOfRoundedLines(t *testing.T) {
	svc, _ := newTestService(t)

	sale, err := svc.RecordSale(context.Background(), NewSale{
		Items: []LineItem{
			{ProductCode: "1", ProductName: "Bala", Quantity: dec("0.5"), UnitPrice: dec("0.25")},
			{ProductCode: "2", ProductName: "Chiclete", Quantity: dec("0.5"), UnitPrice: dec("0.25")},
		},
		AmountTendered: dec("1"),
	})
	require.NoError(t, err)

	assert.True(t, sale.Items[0].Total().Equal(dec("0.13")))
	assert.True(t, sale.Total.Equal(dec("0.26")), "total %s", sale.Total)
	assert.True(t, sale.Change.Equal(dec("0.74")), "change %s", sale.Change)
}

func TestRecordSale_IgnoresClientTotal(t *testing.T) {
	svc, _ := newTestService(t)

	clientTotal := dec("1.00")
	clientChange := dec("99.00")
	sale, err := svc.RecordSale(context.Background(), NewSale{
		Items:          []LineItem{{ProductCode: "1", ProductName: "Café", Quantity: dec("1"), UnitPrice: dec("5")}},
		AmountTendered: dec("10"),
		ClientTotal:    &clientTotal,
		ClientChange:   &clientChange,
	})
	require.NoError(t, err)
	assert.True(t, sale.Total.Equal(dec("5")))
	assert.True(t, sale.Change.Equal(dec("5")))
}

func TestRecordSale_SnapshotsCatalog(t *testing.T) {
	svc, products := newTestService(t)
	ctx := context.Background()

	_, err := products.Create(ctx, catalog.Product{Code: "789", Name: "Refrigerante", UnitPrice: dec("6.50")})
	require.NoError(t, err)

	sale, err := svc.RecordSale(ctx, NewSale{
		Items:          []LineItem{{ProductCode: "789", ProductName: "nome do cliente", Quantity: dec("2"), UnitPrice: dec("1")}},
		AmountTendered: dec("13"),
	})
	require.NoError(t, err)
	assert.True(t, sale.Total.Equal(dec("13")))
	assert.Equal(t, "Refrigerante", sale.Items[0].ProductName)

	// A later price change never alters the recorded sale.
	_, err = products.Update(ctx, catalog.Product{Code: "789", Name: "Refrigerante", UnitPrice: dec("9")})
	require.NoError(t, err)

	stored, err := svc.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.True(t, stored.Items[0].UnitPrice.Equal(dec("6.50")))
	assert.True(t, stored.Total.Equal(dec("13")))
}

func TestRecordSale_Validation(t *testing.T) {
	svc, _ := newTestService(t)

	item := LineItem{ProductCode: "1", ProductName: "Café", Quantity: dec("1"), UnitPrice: dec("5")}
	tests := []struct {
		name string
		in   NewSale
	}{
		{"no items", NewSale{AmountTendered: dec("10")}},
		{"zero quantity", NewSale{
			Items:          []LineItem{{ProductCode: "1", ProductName: "Café", Quantity: dec("0"), UnitPrice: dec("5")}},
			AmountTendered: dec("10"),
		}},
		{"negative price", NewSale{
			Items:          []LineItem{{ProductCode: "1", ProductName: "Café", Quantity: dec("1"), UnitPrice: dec("-5")}},
			AmountTendered: dec("10"),
		}},
		{"unknown product without name", NewSale{
			Items:          []LineItem{{ProductCode: "1", Quantity: dec("1"), UnitPrice: dec("5")}},
			AmountTendered: dec("10"),
		}},
		{"missing code", NewSale{
			Items:          []LineItem{{ProductName: "Café", Quantity: dec("1"), UnitPrice: dec("5")}},
			AmountTendered: dec("10"),
		}},
		{"line rounds to zero", NewSale{
			Items:          []LineItem{{ProductCode: "1", ProductName: "Café", Quantity: dec("0.001"), UnitPrice: dec("1.00")}},
			AmountTendered: dec("10"),
		}},
		{"tendered below total", NewSale{Items: []LineItem{item}, AmountTendered: dec("4.99")}},
		{"unknown payment method", NewSale{Items: []LineItem{item}, AmountTendered: dec("5"), PaymentMethod: "42"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sale, err := svc.RecordSale(context.Background(), tt.in)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Nil(t, sale)
		})
	}

	all, err := svc.ListSales(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestListSales_MostRecentFirstAndFiltered(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		sale, err := svc.RecordSale(ctx, NewSale{
			Items:          []LineItem{{ProductCode: "1", ProductName: "Café", Quantity: dec("1"), UnitPrice: dec("5")}},
			AmountTendered: dec("5"),
			PaymentMethod:  "17",
		})
		require.NoError(t, err)
		ids = append(ids, sale.ID)
	}

	all, err := svc.ListSales(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)
	assert.Equal(t, ids[0], all[2].ID)
	assert.Empty(t, all[0].Items, "list projection excludes items")

	storage := svc.storage
	attempt, err := storage.BeginFiscalAttempt(ctx, ids[1], time.Now(), time.Minute)
	require.NoError(t, err)
	require.NoError(t, storage.CompleteFiscalAttempt(ctx, ids[1], attempt,
		FiscalOutcome{Status: StatusAuthorized, Protocol: "135000000000001", Detail: "ok"}, time.Now()))

	authorized, err := svc.ListSales(ctx, string(StatusAuthorized))
	require.NoError(t, err)
	require.Len(t, authorized, 1)
	assert.Equal(t, ids[1], authorized[0].ID)

	_, err = svc.ListSales(ctx, "DONE")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestSummary(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, price := range []string{"5", "7.25"} {
		_, err := svc.RecordSale(ctx, NewSale{
			Items:          []LineItem{{ProductCode: "1", ProductName: "Café", Quantity: dec("1"), UnitPrice: dec(price)}},
			AmountTendered: dec("10"),
		})
		require.NoError(t, err)
	}

	metadata, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, metadata.Quantity)
	assert.Equal(t, 2, metadata.Pending)
	assert.Zero(t, metadata.Authorized)
	assert.True(t, metadata.TotalAmount.Equal(dec("12.25")))
}

func TestGetSale_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetSale(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}
