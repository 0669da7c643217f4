package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"pharmacy/m/domain"
	"pharmacy/m/internal/database"
)

// Storage is what the billing service needs from the database.
type Storage interface {
	// Begin opens the unit of work a single sale is written in.
	Begin(ctx context.Context) (Tx, error)
	// ListSales returns sales with from <= sale_date < to, newest first.
	ListSales(ctx context.Context, from, to time.Time) ([]domain.Sale, error)
	GetSale(ctx context.Context, id int64) (domain.Sale, error)
	ListSaleItems(ctx context.Context, saleID int64) ([]domain.SaleItemDetail, error)
	// Summarize aggregates completed sales with from <= sale_date < to.
	Summarize(ctx context.Context, from, to time.Time) (domain.SalesSummary, error)
}

// Tx is an open unit of work. Reads made through it see its own writes.
type Tx interface {
	// MedicineForUpdate reads an active medicine and holds it until the
	// transaction ends. Missing or inactive rows yield database.ErrNotFound.
	MedicineForUpdate(ctx context.Context, id int64) (domain.Medicine, error)
	// InsertSale stores the header and sets sale.ID.
	InsertSale(ctx context.Context, sale *domain.Sale) error
	// InsertSaleItem stores a line and sets item.ID.
	InsertSaleItem(ctx context.Context, item *domain.SaleItem) error
	// DecrementStock subtracts qty unless that would go below zero, in which
	// case it changes nothing and reports false.
	DecrementStock(ctx context.Context, medicineID, qty int64) (bool, error)
	Commit() error
	Rollback() error
}

// SQLStorage implements Storage with sqlx.
type SQLStorage struct {
	db *sqlx.DB
}

func NewSQLStorage(db *sqlx.DB) *SQLStorage {
	return &SQLStorage{db: db}
}

const saleColumns = `id, reference, user_id, sale_date, subtotal, discount_percentage, discount_amount, vat_rate, vat_amount, total, status`

func (s *SQLStorage) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, database.Classify(err)
	}
	return &sqlTx{tx: tx, lock: database.LockClause(s.db)}, nil
}

func (s *SQLStorage) ListSales(ctx context.Context, from, to time.Time) ([]domain.Sale, error) {
	sales := []domain.Sale{}
	query := s.db.Rebind(`SELECT ` + saleColumns + ` FROM sales WHERE sale_date >= ? AND sale_date < ? ORDER BY sale_date DESC, id DESC`)
	if err := s.db.SelectContext(ctx, &sales, query, domain.NewTimestamp(from), domain.NewTimestamp(to)); err != nil {
		return nil, database.Classify(err)
	}
	return sales, nil
}

func (s *SQLStorage) GetSale(ctx context.Context, id int64) (domain.Sale, error) {
	var sale domain.Sale
	if err := s.db.GetContext(ctx, &sale, s.db.Rebind(`SELECT `+saleColumns+` FROM sales WHERE id = ?`), id); err != nil {
		return domain.Sale{}, database.Classify(err)
	}
	return sale, nil
}

func (s *SQLStorage) ListSaleItems(ctx context.Context, saleID int64) ([]domain.SaleItemDetail, error) {
	items := []domain.SaleItemDetail{}
	query := s.db.Rebind(`SELECT si.id, si.sale_id, si.medicine_id, si.quantity, si.unit_price, si.line_total, m.name AS medicine_name
                FROM sale_items si
                JOIN medicines m ON m.id = si.medicine_id
                WHERE si.sale_id = ?
                ORDER BY si.id`)
	if err := s.db.SelectContext(ctx, &items, query, saleID); err != nil {
		return nil, database.Classify(err)
	}
	return items, nil
}

func (s *SQLStorage) Summarize(ctx context.Context, from, to time.Time) (domain.SalesSummary, error) {
	var summary domain.SalesSummary
	query := s.db.Rebind(`SELECT COUNT(*) AS sale_count,
                COALESCE(SUM(subtotal), 0) AS subtotal,
                COALESCE(SUM(discount_amount), 0) AS discount_amount,
                COALESCE(SUM(vat_amount), 0) AS vat_amount,
                COALESCE(SUM(total), 0) AS total
                FROM sales
                WHERE status = ? AND sale_date >= ? AND sale_date < ?`)
	err := s.db.GetContext(ctx, &summary, query, domain.SaleStatusCompleted, domain.NewTimestamp(from), domain.NewTimestamp(to))
	if err != nil {
		return domain.SalesSummary{}, database.Classify(err)
	}
	return summary, nil
}

type sqlTx struct {
	tx   *sqlx.Tx
	lock string
}

func (t *sqlTx) MedicineForUpdate(ctx context.Context, id int64) (domain.Medicine, error) {
	var med domain.Medicine
	query := t.tx.Rebind(`SELECT id, name, description, price, quantity, expiry_date, manufacturer, barcode, category, min_stock_level, location, is_active
                FROM medicines WHERE id = ? AND is_active = TRUE` + t.lock)
	if err := t.tx.GetContext(ctx, &med, query, id); err != nil {
		return domain.Medicine{}, database.Classify(err)
	}
	return med, nil
}

func (t *sqlTx) InsertSale(ctx context.Context, sale *domain.Sale) error {
	query := t.tx.Rebind(`INSERT INTO sales (reference, user_id, sale_date, subtotal, discount_percentage, discount_amount, vat_rate, vat_amount, total, status)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := t.tx.QueryRowxContext(ctx, query,
		sale.Reference, sale.UserID, sale.SaleDate, sale.Subtotal, sale.DiscountPercentage,
		sale.DiscountAmount, sale.VATRate, sale.VATAmount, sale.Total, sale.Status,
	).Scan(&sale.ID)
	if err != nil {
		return database.Classify(err)
	}
	return nil
}

func (t *sqlTx) InsertSaleItem(ctx context.Context, item *domain.SaleItem) error {
	query := t.tx.Rebind(`INSERT INTO sale_items (sale_id, medicine_id, quantity, unit_price, line_total) VALUES (?, ?, ?, ?, ?) RETURNING id`)
	err := t.tx.QueryRowxContext(ctx, query, item.SaleID, item.MedicineID, item.Quantity, item.UnitPrice, item.LineTotal).Scan(&item.ID)
	if err != nil {
		return database.Classify(err)
	}
	return nil
}

func (t *sqlTx) DecrementStock(ctx context.Context, medicineID, qty int64) (bool, error) {
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(`UPDATE medicines SET quantity = quantity - ? WHERE id = ? AND quantity >= ?`), qty, medicineID, qty)
	if err != nil {
		return false, database.Classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (t *sqlTx) Commit() error {
	return database.Classify(t.tx.Commit())
}

func (t *sqlTx) Rollback() error {
	return t.tx.Rollback()
}
