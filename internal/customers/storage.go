package customers

import (
	"context"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"pharmacy/m/domain"
	"pharmacy/m/internal/database"
)

// errSaleLinked is returned by RecordPurchase for a sale that already belongs
// to a customer.
var errSaleLinked = errors.New("sale already linked to a customer")

type Storage interface {
	Insert(ctx context.Context, customer *domain.Customer) error
	Get(ctx context.Context, id int64) (domain.Customer, error)
	Update(ctx context.Context, customer domain.Customer) (bool, error)
	Search(ctx context.Context, keyword string, limit int) ([]domain.Customer, error)
	// CompletedSaleTotal returns the total of a completed sale.
	CompletedSaleTotal(ctx context.Context, saleID int64) (decimal.Decimal, error)
	// RecordPurchase links the sale and credits the points in one step.
	RecordPurchase(ctx context.Context, purchase *domain.CustomerPurchase) error
	ListPurchases(ctx context.Context, customerID int64) ([]domain.CustomerPurchase, error)
}

type SQLStorage struct {
	db *sqlx.DB
}

func NewSQLStorage(db *sqlx.DB) *SQLStorage {
	return &SQLStorage{db: db}
}

const customerColumns = `id, name, phone, email, address, loyalty_points, created_at`

func (s *SQLStorage) Insert(ctx context.Context, customer *domain.Customer) error {
	query := s.db.Rebind(`INSERT INTO customers (name, phone, email, address, loyalty_points, created_at) VALUES (?, ?, ?, ?, 0, ?) RETURNING id`)
	err := s.db.QueryRowxContext(ctx, query, customer.Name, customer.Phone, customer.Email, customer.Address, customer.CreatedAt).Scan(&customer.ID)
	return database.Classify(err)
}

func (s *SQLStorage) Get(ctx context.Context, id int64) (domain.Customer, error) {
	var customer domain.Customer
	err := s.db.GetContext(ctx, &customer, s.db.Rebind(`SELECT `+customerColumns+` FROM customers WHERE id = ?`), id)
	if err != nil {
		return domain.Customer{}, database.Classify(err)
	}
	return customer, nil
}

func (s *SQLStorage) Update(ctx context.Context, customer domain.Customer) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE customers SET name = ?, phone = ?, email = ?, address = ? WHERE id = ?`),
		customer.Name, customer.Phone, customer.Email, customer.Address, customer.ID)
	if err != nil {
		return false, database.Classify(err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLStorage) Search(ctx context.Context, keyword string, limit int) ([]domain.Customer, error) {
	customers := []domain.Customer{}
	query := `SELECT ` + customerColumns + ` FROM customers`
	var args []any
	if keyword != "" {
		like := "%" + strings.ToLower(keyword) + "%"
		query += ` WHERE LOWER(name) LIKE ? OR LOWER(phone) LIKE ? OR LOWER(email) LIKE ?`
		args = append(args, like, like, like)
	}
	query += ` ORDER BY name, id LIMIT ?`
	args = append(args, limit)
	if err := s.db.SelectContext(ctx, &customers, s.db.Rebind(query), args...); err != nil {
		return nil, database.Classify(err)
	}
	return customers, nil
}

func (s *SQLStorage) CompletedSaleTotal(ctx context.Context, saleID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	query := s.db.Rebind(`SELECT total FROM sales WHERE id = ? AND status = ?`)
	if err := s.db.GetContext(ctx, &total, query, saleID, domain.SaleStatusCompleted); err != nil {
		return decimal.Zero, database.Classify(err)
	}
	return total, nil
}

func (s *SQLStorage) RecordPurchase(ctx context.Context, purchase *domain.CustomerPurchase) error {
	return database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE customers SET loyalty_points = loyalty_points + ? WHERE id = ?`),
			purchase.PointsEarned, purchase.CustomerID)
		if err != nil {
			return database.Classify(err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return database.ErrNotFound
		}

		query := tx.Rebind(`INSERT INTO customer_purchases (customer_id, sale_id, points_earned) VALUES (?, ?, ?) RETURNING id`)
		err = tx.QueryRowxContext(ctx, query, purchase.CustomerID, purchase.SaleID, purchase.PointsEarned).Scan(&purchase.ID)
		if err = database.Classify(err); errors.Is(err, database.ErrConflict) {
			return errSaleLinked
		}
		return err
	})
}

// ListPurchases returns a customer's purchases, newest first.
func (s *SQLStorage) ListPurchases(ctx context.Context, customerID int64) ([]domain.CustomerPurchase, error) {
	purchases := []domain.CustomerPurchase{}
	query := s.db.Rebind(`SELECT cp.id, cp.customer_id, cp.sale_id, s.reference, s.sale_date, s.total, cp.points_earned
                FROM customer_purchases cp
                JOIN sales s ON s.id = cp.sale_id
                WHERE cp.customer_id = ?
                ORDER BY s.sale_date DESC, cp.id DESC`)
	if err := s.db.SelectContext(ctx, &purchases, query, customerID); err != nil {
		return nil, database.Classify(err)
	}
	return purchases, nil
}
