package domain

import "github.com/shopspring/decimal"

type Customer struct {
	ID            int64     `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Phone         string    `db:"phone" json:"phone"`
	Email         string    `db:"email" json:"email"`
	Address       string    `db:"address" json:"address"`
	LoyaltyPoints int64     `db:"loyalty_points" json:"loyalty_points"`
	CreatedAt     Timestamp `db:"created_at" json:"created_at"`
}

// CustomerPurchase links a completed sale to the customer who made it.
type CustomerPurchase struct {
	ID           int64           `db:"id" json:"id"`
	CustomerID   int64           `db:"customer_id" json:"customer_id"`
	SaleID       int64           `db:"sale_id" json:"sale_id"`
	Reference    string          `db:"reference" json:"reference"`
	SaleDate     Timestamp       `db:"sale_date" json:"sale_date"`
	Total        decimal.Decimal `db:"total" json:"total"`
	PointsEarned int64           `db:"points_earned" json:"points_earned"`
}
