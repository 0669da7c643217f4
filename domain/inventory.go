package domain

import "github.com/shopspring/decimal"

// InventorySummary is the aggregate view of the medicines table used by reports.
type InventorySummary struct {
	TotalItems        int64           `json:"total_items"`
	TotalUnits        int64           `json:"total_units"`
	StockValue        decimal.Decimal `json:"stock_value"`
	LowStockCount     int             `json:"low_stock_count"`
	ExpiringSoonCount int             `json:"expiring_soon_count"`
}

// StockAdjustment is a relative change to a medicine's on-hand quantity.
type StockAdjustment struct {
	MedicineID int64 `json:"medicine_id"`
	Delta      int64 `json:"delta"`
}
