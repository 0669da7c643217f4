package domain

import "github.com/shopspring/decimal"

// DefaultMinStockLevel is used when a medicine is added without a reorder level.
const DefaultMinStockLevel = 10

type Medicine struct {
	ID            int64           `db:"id" json:"id"`
	Name          string          `db:"name" json:"name"`
	Description   string          `db:"description" json:"description"`
	Price         decimal.Decimal `db:"price" json:"price"`
	Quantity      int64           `db:"quantity" json:"quantity"`
	ExpiryDate    *string         `db:"expiry_date" json:"expiry_date,omitempty"`
	Manufacturer  string          `db:"manufacturer" json:"manufacturer"`
	Barcode       *string         `db:"barcode" json:"barcode,omitempty"`
	Category      string          `db:"category" json:"category"`
	MinStockLevel int64           `db:"min_stock_level" json:"min_stock_level"`
	Location      string          `db:"location" json:"location"`
	IsActive      bool            `db:"is_active" json:"is_active"`
}

// BelowMinimum reports whether the medicine needs reordering.
func (m Medicine) BelowMinimum() bool {
	return m.Quantity <= m.MinStockLevel
}
