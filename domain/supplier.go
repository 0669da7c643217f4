package domain

import "github.com/shopspring/decimal"

type Supplier struct {
	ID      int64  `db:"id" json:"id"`
	Name    string `db:"name" json:"name"`
	Contact string `db:"contact" json:"contact"`
	Address string `db:"address" json:"address"`
	Email   string `db:"email" json:"email"`
}

type PurchaseOrderStatus string

const (
	PurchaseOrderPending  PurchaseOrderStatus = "pending"
	PurchaseOrderReceived PurchaseOrderStatus = "received"
)

type PurchaseOrder struct {
	ID           int64               `db:"id" json:"id"`
	Reference    string              `db:"reference" json:"reference"`
	SupplierID   int64               `db:"supplier_id" json:"supplier_id"`
	SupplierName string              `db:"supplier_name" json:"supplier_name"`
	OrderDate    Timestamp           `db:"order_date" json:"order_date"`
	TotalAmount  decimal.Decimal     `db:"total_amount" json:"total_amount"`
	Status       PurchaseOrderStatus `db:"status" json:"status"`
	ReceivedAt   *Timestamp          `db:"received_at" json:"received_at,omitempty"`
}

type PurchaseOrderItem struct {
	ID         int64           `db:"id" json:"id"`
	OrderID    int64           `db:"order_id" json:"order_id"`
	MedicineID int64           `db:"medicine_id" json:"medicine_id"`
	Quantity   int64           `db:"quantity" json:"quantity"`
	UnitCost   decimal.Decimal `db:"unit_cost" json:"unit_cost"`
}
