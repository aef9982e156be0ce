package catalog

import "github.com/shopspring/decimal"

// Product is an item of the store catalog. Sales copy its name and price at
// sale time, so later edits never change recorded sales.
type Product struct {
	Code      string          `db:"code" json:"codigo"`
	Name      string          `db:"name" json:"nome"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"preco"`
}
