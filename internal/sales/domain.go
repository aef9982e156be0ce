package sales

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// FiscalStatus is the NFC-e issuance state of a sale.
type FiscalStatus string

const (
	StatusPending    FiscalStatus = "PENDING"
	StatusProcessing FiscalStatus = "PROCESSING"
	StatusAuthorized FiscalStatus = "AUTHORIZED"
	StatusRejected   FiscalStatus = "REJECTED"
	StatusFailed     FiscalStatus = "FAILED"
)

// ParseFiscalStatus validates a status coming from outside the package.
func ParseFiscalStatus(s string) (FiscalStatus, error) {
	switch st := FiscalStatus(s); st {
	case StatusPending, StatusProcessing, StatusAuthorized, StatusRejected, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("%w: '%s'", ErrInvalidStatus, s)
}

// IsTerminal reports whether an attempt has finished.
func (s FiscalStatus) IsTerminal() bool {
	return s == StatusAuthorized || s == StatusRejected || s == StatusFailed
}

// CanTransition reports whether the state machine allows s -> to.
// PENDING and every terminal state may start a new attempt; an attempt in
// flight may only end in a terminal state.
func (s FiscalStatus) CanTransition(to FiscalStatus) bool {
	switch s {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to.IsTerminal()
	case StatusAuthorized, StatusRejected, StatusFailed:
		return to == StatusProcessing
	}
	return false
}

// LineItem is a product line captured by value at sale time.
type LineItem struct {
	ProductCode string          `json:"codigo"`
	ProductName string          `json:"nome"`
	Quantity    decimal.Decimal `json:"quantidade"`
	UnitPrice   decimal.Decimal `json:"preco"`
}

// Subtotal is quantity times unit price.
func (i LineItem) Subtotal() decimal.Decimal {
	return i.Quantity.Mul(i.UnitPrice)
}

// Total is the line value in cents as printed on the receipt. A sale total is
// the sum of its line totals.
func (i LineItem) Total() decimal.Decimal {
	return i.Subtotal().Round(2)
}

// LineItems is stored as a JSON document in the items column.
type LineItems []LineItem

// Value implements driver.Valuer.
func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		l = LineItems{}
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *LineItems) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	}
	return fmt.Errorf("cannot scan %T into LineItems", src)
}

// Sale is a completed sale and the state of its fiscal receipt.
type Sale struct {
	ID             int64           `db:"id" json:"id"`
	CreatedAt      time.Time       `db:"created_at" json:"data"`
	Total          decimal.Decimal `db:"total" json:"total"`
	AmountTendered decimal.Decimal `db:"amount_tendered" json:"valorPago"`
	Change         decimal.Decimal `db:"change_due" json:"troco"`
	PaymentMethod  string          `db:"payment_method" json:"formaPagamento"`
	Items          LineItems       `db:"items" json:"itens,omitempty"`

	FiscalStatus    FiscalStatus `db:"fiscal_status" json:"nfce_status"`
	FiscalProtocol  *string      `db:"fiscal_protocol" json:"nfce_protocolo"`
	FiscalDetail    *string      `db:"fiscal_detail" json:"nfce_detalhes"`
	FiscalNumber    *int64       `db:"fiscal_number" json:"nfce_numero,omitempty"`
	FiscalAttempts  int          `db:"fiscal_attempts" json:"nfce_tentativas"`
	FiscalUpdatedAt int64        `db:"fiscal_updated_at" json:"-"`
}

// FiscalOutcome is the terminal result of one submission attempt.
type FiscalOutcome struct {
	Status   FiscalStatus
	Protocol string
	Detail   string
	Number   int64
}
