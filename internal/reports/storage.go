package reports

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"pharmacy/m/domain"
	"pharmacy/m/internal/database"
)

type Storage interface {
	// SaleLines returns completed sale lines with from <= sale_date < to, oldest first.
	SaleLines(ctx context.Context, from, to time.Time) ([]SaleLine, error)
	TopProducts(ctx context.Context, from, to time.Time, limit int) ([]ProductSales, error)
	ActiveMedicines(ctx context.Context) ([]domain.Medicine, error)
	// PurchasesTotal sums purchase orders with from <= order_date < to.
	PurchasesTotal(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
}

type SQLStorage struct {
	db *sqlx.DB
}

func NewSQLStorage(db *sqlx.DB) *SQLStorage {
	return &SQLStorage{db: db}
}

func (s *SQLStorage) SaleLines(ctx context.Context, from, to time.Time) ([]SaleLine, error) {
	lines := []SaleLine{}
	query := s.db.Rebind(`SELECT s.id AS sale_id, s.reference, s.sale_date, m.name AS medicine_name, si.quantity, si.unit_price, si.line_total
                FROM sale_items si
                JOIN sales s ON s.id = si.sale_id
                JOIN medicines m ON m.id = si.medicine_id
                WHERE s.status = ? AND s.sale_date >= ? AND s.sale_date < ?
                ORDER BY s.sale_date, s.id, si.id`)
	err := s.db.SelectContext(ctx, &lines, query, domain.SaleStatusCompleted, domain.NewTimestamp(from), domain.NewTimestamp(to))
	if err != nil {
		return nil, database.Classify(err)
	}
	return lines, nil
}

func (s *SQLStorage) TopProducts(ctx context.Context, from, to time.Time, limit int) ([]ProductSales, error) {
	products := []ProductSales{}
	query := s.db.Rebind(`SELECT m.id AS medicine_id, m.name, SUM(si.quantity) AS quantity, SUM(si.line_total) AS revenue
                FROM sale_items si
                JOIN sales s ON s.id = si.sale_id
                JOIN medicines m ON m.id = si.medicine_id
                WHERE s.status = ? AND s.sale_date >= ? AND s.sale_date < ?
                GROUP BY m.id, m.name
                ORDER BY quantity DESC, m.name
                LIMIT ?`)
	err := s.db.SelectContext(ctx, &products, query, domain.SaleStatusCompleted, domain.NewTimestamp(from), domain.NewTimestamp(to), limit)
	if err != nil {
		return nil, database.Classify(err)
	}
	return products, nil
}

func (s *SQLStorage) ActiveMedicines(ctx context.Context) ([]domain.Medicine, error) {
	medicines := []domain.Medicine{}
	query := `SELECT id, name, description, price, quantity, expiry_date, manufacturer, barcode, category, min_stock_level, location, is_active
                FROM medicines WHERE is_active = TRUE ORDER BY name, id`
	if err := s.db.SelectContext(ctx, &medicines, query); err != nil {
		return nil, database.Classify(err)
	}
	return medicines, nil
}

func (s *SQLStorage) PurchasesTotal(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	query := s.db.Rebind(`SELECT COALESCE(SUM(total_amount), 0) FROM purchase_orders WHERE order_date >= ? AND order_date < ?`)
	if err := s.db.GetContext(ctx, &total, query, domain.NewTimestamp(from), domain.NewTimestamp(to)); err != nil {
		return decimal.Zero, database.Classify(err)
	}
	return total, nil
}
