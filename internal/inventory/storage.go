package inventory

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"pharmacy/m/domain"
	"pharmacy/m/internal/database"
)

// Storage persists medicines. Methods that change one row report whether the
// row existed.
type Storage interface {
	Insert(ctx context.Context, med *domain.Medicine) error
	Get(ctx context.Context, id int64) (domain.Medicine, error)
	Update(ctx context.Context, med domain.Medicine) (bool, error)
	Search(ctx context.Context, keyword string, limit int) ([]domain.Medicine, error)
	SetQuantity(ctx context.Context, id, quantity int64) (bool, error)
	// AddQuantity applies delta unless the result would be negative.
	AddQuantity(ctx context.Context, id, delta int64) (bool, error)
	Deactivate(ctx context.Context, id int64) (bool, error)
	LowStock(ctx context.Context) ([]domain.Medicine, error)
	// ExpiringBetween returns active medicines with from <= expiry_date <= to.
	ExpiringBetween(ctx context.Context, from, to string) ([]domain.Medicine, error)
}

type SQLStorage struct {
	db *sqlx.DB
}

func NewSQLStorage(db *sqlx.DB) *SQLStorage {
	return &SQLStorage{db: db}
}

const medicineColumns = `id, name, description, price, quantity, expiry_date, manufacturer, barcode, category, min_stock_level, location, is_active`

func (s *SQLStorage) Insert(ctx context.Context, med *domain.Medicine) error {
	query := s.db.Rebind(`INSERT INTO medicines (name, description, price, quantity, expiry_date, manufacturer, barcode, category, min_stock_level, location, is_active)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := s.db.QueryRowxContext(ctx, query,
		med.Name, med.Description, med.Price, med.Quantity, med.ExpiryDate, med.Manufacturer,
		med.Barcode, med.Category, med.MinStockLevel, med.Location, med.IsActive,
	).Scan(&med.ID)
	return database.Classify(err)
}

func (s *SQLStorage) Get(ctx context.Context, id int64) (domain.Medicine, error) {
	var med domain.Medicine
	if err := s.db.GetContext(ctx, &med, s.db.Rebind(`SELECT `+medicineColumns+` FROM medicines WHERE id = ?`), id); err != nil {
		return domain.Medicine{}, database.Classify(err)
	}
	return med, nil
}

func (s *SQLStorage) Update(ctx context.Context, med domain.Medicine) (bool, error) {
	query := s.db.Rebind(`UPDATE medicines SET name = ?, description = ?, price = ?, quantity = ?, expiry_date = ?, manufacturer = ?,
                barcode = ?, category = ?, min_stock_level = ?, location = ?, is_active = ? WHERE id = ?`)
	return s.exec(ctx, query,
		med.Name, med.Description, med.Price, med.Quantity, med.ExpiryDate, med.Manufacturer,
		med.Barcode, med.Category, med.MinStockLevel, med.Location, med.IsActive, med.ID,
	)
}

func (s *SQLStorage) Search(ctx context.Context, keyword string, limit int) ([]domain.Medicine, error) {
	medicines := []domain.Medicine{}
	query := `SELECT ` + medicineColumns + ` FROM medicines WHERE is_active = TRUE`
	var args []any
	if keyword != "" {
		like := "%" + strings.ToLower(keyword) + "%"
		query += ` AND (LOWER(name) LIKE ? OR LOWER(COALESCE(barcode, '')) LIKE ? OR LOWER(category) LIKE ?)`
		args = append(args, like, like, like)
	}
	query += ` ORDER BY name, id LIMIT ?`
	args = append(args, limit)
	if err := s.db.SelectContext(ctx, &medicines, s.db.Rebind(query), args...); err != nil {
		return nil, database.Classify(err)
	}
	return medicines, nil
}

func (s *SQLStorage) SetQuantity(ctx context.Context, id, quantity int64) (bool, error) {
	return s.exec(ctx, s.db.Rebind(`UPDATE medicines SET quantity = ? WHERE id = ?`), quantity, id)
}

func (s *SQLStorage) AddQuantity(ctx context.Context, id, delta int64) (bool, error) {
	return s.exec(ctx, s.db.Rebind(`UPDATE medicines SET quantity = quantity + ? WHERE id = ? AND quantity + ? >= 0`), delta, id, delta)
}

func (s *SQLStorage) Deactivate(ctx context.Context, id int64) (bool, error) {
	return s.exec(ctx, s.db.Rebind(`UPDATE medicines SET is_active = FALSE WHERE id = ?`), id)
}

func (s *SQLStorage) LowStock(ctx context.Context) ([]domain.Medicine, error) {
	medicines := []domain.Medicine{}
	query := `SELECT ` + medicineColumns + ` FROM medicines WHERE is_active = TRUE AND quantity <= min_stock_level ORDER BY quantity, name`
	if err := s.db.SelectContext(ctx, &medicines, query); err != nil {
		return nil, database.Classify(err)
	}
	return medicines, nil
}

func (s *SQLStorage) ExpiringBetween(ctx context.Context, from, to string) ([]domain.Medicine, error) {
	medicines := []domain.Medicine{}
	query := s.db.Rebind(`SELECT ` + medicineColumns + ` FROM medicines
                WHERE is_active = TRUE AND expiry_date IS NOT NULL AND expiry_date >= ? AND expiry_date <= ?
                ORDER BY expiry_date, name`)
	if err := s.db.SelectContext(ctx, &medicines, query, from, to); err != nil {
		return nil, database.Classify(err)
	}
	return medicines, nil
}

func (s *SQLStorage) exec(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, database.Classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
