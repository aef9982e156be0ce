package sales

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

var (
	// ErrNotFound is returned when a sale with the given ID is not found.
	ErrNotFound = errors.New("sale not found")
	// ErrSubmissionInProgress is returned when another fiscal attempt for the
	// same sale is still in flight.
	ErrSubmissionInProgress = errors.New("fiscal submission already in progress")
	// ErrAttemptSuperseded is returned when an attempt tries to record its
	// outcome after a newer attempt took over the sale.
	ErrAttemptSuperseded = errors.New("fiscal attempt superseded")
)

// Storage is the main interface for our sales storage layer.
type Storage interface {
	Create(ctx context.Context, sale *Sale) error
	Read(ctx context.Context, id int64) (*Sale, error)
	GetAll(ctx context.Context, status FiscalStatus) ([]*Sale, error)
	BeginFiscalAttempt(ctx context.Context, id int64, now time.Time, staleAfter time.Duration) (int, error)
	CompleteFiscalAttempt(ctx context.Context, id int64, attempt int, outcome FiscalOutcome, now time.Time) error
	NextFiscalNumber(ctx context.Context, series int) (int64, error)
}

const saleColumns = `id, created_at, total, amount_tendered, change_due, payment_method, items,
	fiscal_status, fiscal_protocol, fiscal_detail, fiscal_number, fiscal_attempts, fiscal_updated_at`

// SQLStorage keeps sales in the sales table.
type SQLStorage struct {
	db *sqlx.DB
}

// NewSQLStorage creates a sales storage on top of db.
func NewSQLStorage(db *sqlx.DB) *SQLStorage {
	return &SQLStorage{db: db}
}

// Create inserts the sale and sets its ID.
func (s *SQLStorage) Create(ctx context.Context, sale *Sale) error {
	query := s.db.Rebind(`INSERT INTO sales
		(created_at, total, amount_tendered, change_due, payment_method, items, fiscal_status, fiscal_attempts, fiscal_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?) RETURNING id`)
	return s.db.QueryRowxContext(ctx, query,
		sale.CreatedAt, sale.Total, sale.AmountTendered, sale.Change, sale.PaymentMethod, sale.Items,
		sale.FiscalStatus, sale.FiscalUpdatedAt,
	).Scan(&sale.ID)
}

// Read retrieves a sale, items included.
// Returns ErrNotFound if the sale is not found.
func (s *SQLStorage) Read(ctx context.Context, id int64) (*Sale, error) {
	var sale Sale
	err := s.db.GetContext(ctx, &sale, s.db.Rebind(`SELECT `+saleColumns+` FROM sales WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// GetAll lists sales most recent first, without their items. An empty status
// lists every sale.
func (s *SQLStorage) GetAll(ctx context.Context, status FiscalStatus) ([]*Sale, error) {
	query := `SELECT id, created_at, total, amount_tendered, change_due, payment_method,
		fiscal_status, fiscal_protocol, fiscal_detail, fiscal_number, fiscal_attempts, fiscal_updated_at
		FROM sales`
	var args []any
	if status != "" {
		query += ` WHERE fiscal_status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC`

	sales := []*Sale{}
	if err := s.db.SelectContext(ctx, &sales, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return sales, nil
}

// BeginFiscalAttempt moves the sale to PROCESSING and returns the new attempt
// number. A sale already PROCESSING is only taken over when its mark is older
// than staleAfter, otherwise ErrSubmissionInProgress is returned.
func (s *SQLStorage) BeginFiscalAttempt(ctx context.Context, id int64, now time.Time, staleAfter time.Duration) (int, error) {
	query := s.db.Rebind(`UPDATE sales
		SET fiscal_status = ?, fiscal_attempts = fiscal_attempts + 1, fiscal_updated_at = ?
		WHERE id = ? AND (fiscal_status <> ? OR fiscal_updated_at < ?)
		RETURNING fiscal_attempts`)

	var attempt int
	err := s.db.QueryRowxContext(ctx, query,
		StatusProcessing, now.UnixMilli(), id, StatusProcessing, now.Add(-staleAfter).UnixMilli(),
	).Scan(&attempt)
	if err == nil {
		return attempt, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	var exists int
	err = s.db.GetContext(ctx, &exists, s.db.Rebind(`SELECT 1 FROM sales WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return 0, ErrSubmissionInProgress
}

// CompleteFiscalAttempt records the terminal outcome of attempt. It writes
// nothing and returns ErrAttemptSuperseded when the sale is no longer
// processing that attempt.
func (s *SQLStorage) CompleteFiscalAttempt(ctx context.Context, id int64, attempt int, outcome FiscalOutcome, now time.Time) error {
	if !StatusProcessing.CanTransition(outcome.Status) {
		return ErrInvalidTransition
	}

	var number *int64
	if outcome.Number > 0 {
		number = &outcome.Number
	}
	query := s.db.Rebind(`UPDATE sales
		SET fiscal_status = ?, fiscal_protocol = ?, fiscal_detail = ?, fiscal_number = ?, fiscal_updated_at = ?
		WHERE id = ? AND fiscal_attempts = ? AND fiscal_status = ?`)
	res, err := s.db.ExecContext(ctx, query,
		outcome.Status, nullable(outcome.Protocol), nullable(outcome.Detail), number, now.UnixMilli(),
		id, attempt, StatusProcessing,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAttemptSuperseded
	}
	return nil
}

// NextFiscalNumber reserves the next document number of a series.
func (s *SQLStorage) NextFiscalNumber(ctx context.Context, series int) (int64, error) {
	query := s.db.Rebind(`INSERT INTO fiscal_sequences (series, last_number) VALUES (?, 1)
		ON CONFLICT (series) DO UPDATE SET last_number = fiscal_sequences.last_number + 1
		RETURNING last_number`)
	var number int64
	if err := s.db.QueryRowxContext(ctx, query, series).Scan(&number); err != nil {
		return 0, err
	}
	return number, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
