package catalog

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/jmoiron/sqlx"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"pdv_backend/internal/database"
)

var (
	// ErrNotFound is returned when no product has the given code.
	ErrNotFound = errors.New("product not found")
	// ErrDuplicateKey is returned when a product code is already registered.
	ErrDuplicateKey = errors.New("product code already exists")
)

// Storage is the persistence port of the catalog.
type Storage interface {
	List(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, code string) (*Product, error)
	Create(ctx context.Context, p Product) error
	Update(ctx context.Context, p Product) error
	Delete(ctx context.Context, code string) error
}

// SQLStorage keeps products in the products table.
type SQLStorage struct {
	db *sqlx.DB
}

// NewSQLStorage creates a catalog storage on top of db.
func NewSQLStorage(db *sqlx.DB) *SQLStorage {
	return &SQLStorage{db: db}
}

// List returns every product ordered by name, then code. Names compare with
// Portuguese collation on every driver, so case and accents do not push a
// product to the end of the list.
func (s *SQLStorage) List(ctx context.Context) ([]Product, error) {
	products := []Product{}
	err := s.db.SelectContext(ctx, &products, `SELECT code, name, unit_price FROM products ORDER BY code`)
	if err != nil {
		return nil, err
	}
	sortByName(products)
	return products, nil
}

// sortByName builds its own collator; a collate.Collator is not safe for
// concurrent use.
func sortByName(products []Product) {
	c := collate.New(language.BrazilianPortuguese, collate.IgnoreCase)
	sort.SliceStable(products, func(i, j int) bool {
		return c.CompareString(products[i].Name, products[j].Name) < 0
	})
}

// Get returns ErrNotFound if the code is unknown.
func (s *SQLStorage) Get(ctx context.Context, code string) (*Product, error) {
	var p Product
	err := s.db.GetContext(ctx, &p, s.db.Rebind(`SELECT code, name, unit_price FROM products WHERE code = ?`), code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create returns ErrDuplicateKey if the code is taken.
func (s *SQLStorage) Create(ctx context.Context, p Product) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO products (code, name, unit_price) VALUES (?, ?, ?)`),
		p.Code, p.Name, p.UnitPrice)
	if database.IsUniqueViolation(err) {
		return ErrDuplicateKey
	}
	return err
}

// Update returns ErrNotFound if the code is unknown.
func (s *SQLStorage) Update(ctx context.Context, p Product) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE products SET name = ?, unit_price = ? WHERE code = ?`),
		p.Name, p.UnitPrice, p.Code)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// Delete returns ErrNotFound if the code is unknown.
func (s *SQLStorage) Delete(ctx context.Context, code string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM products WHERE code = ?`), code)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
