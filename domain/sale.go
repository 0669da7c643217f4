package domain

import "github.com/shopspring/decimal"

type SaleStatus string

const (
	SaleStatusPending   SaleStatus = "pending"
	SaleStatusCompleted SaleStatus = "completed"
)

type Sale struct {
	ID                 int64           `db:"id" json:"id"`
	Reference          string          `db:"reference" json:"reference"`
	UserID             *int64          `db:"user_id" json:"user_id,omitempty"`
	SaleDate           Timestamp       `db:"sale_date" json:"sale_date"`
	Subtotal           decimal.Decimal `db:"subtotal" json:"subtotal"`
	DiscountPercentage decimal.Decimal `db:"discount_percentage" json:"discount_percentage"`
	DiscountAmount     decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	VATRate            decimal.Decimal `db:"vat_rate" json:"vat_rate"`
	VATAmount          decimal.Decimal `db:"vat_amount" json:"vat_amount"`
	Total              decimal.Decimal `db:"total" json:"total"`
	Status             SaleStatus      `db:"status" json:"status"`
}

// SaleItem is a line of a sale. UnitPrice is the price at the time of sale.
type SaleItem struct {
	ID         int64           `db:"id" json:"id"`
	SaleID     int64           `db:"sale_id" json:"sale_id"`
	MedicineID int64           `db:"medicine_id" json:"medicine_id"`
	Quantity   int64           `db:"quantity" json:"quantity"`
	UnitPrice  decimal.Decimal `db:"unit_price" json:"unit_price"`
	LineTotal  decimal.Decimal `db:"line_total" json:"line_total"`
}

type SaleItemDetail struct {
	SaleItem
	MedicineName string `db:"medicine_name" json:"medicine_name"`
}

type SaleDetail struct {
	Sale  Sale             `json:"sale"`
	Items []SaleItemDetail `json:"items"`
}

// SalesSummary aggregates completed sales over a period.
type SalesSummary struct {
	Count          int64           `db:"sale_count" json:"count"`
	Subtotal       decimal.Decimal `db:"subtotal" json:"subtotal"`
	DiscountAmount decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	VATAmount      decimal.Decimal `db:"vat_amount" json:"vat_amount"`
	Total          decimal.Decimal `db:"total" json:"total"`
}

// Average returns the mean sale total, or zero when there are no sales.
func (s SalesSummary) Average() decimal.Decimal {
	if s.Count == 0 {
		return decimal.Zero
	}
	return s.Total.Div(decimal.NewFromInt(s.Count)).Round(2)
}
