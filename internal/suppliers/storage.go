package suppliers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"pharmacy/m/domain"
	"pharmacy/m/internal/database"
)

var (
	// errNotPending is returned by ReceiveOrder for an order that was already received.
	errNotPending = errors.New("purchase order is not pending")
	// errMissingMedicine is returned by ReceiveOrder when a line's medicine no longer exists.
	errMissingMedicine = errors.New("purchase order references a missing medicine")
)

type Storage interface {
	InsertSupplier(ctx context.Context, supplier *domain.Supplier) error
	GetSupplier(ctx context.Context, id int64) (domain.Supplier, error)
	UpdateSupplier(ctx context.Context, supplier domain.Supplier) (bool, error)
	DeleteSupplier(ctx context.Context, id int64) (bool, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	CountOrders(ctx context.Context, supplierID int64) (int64, error)

	// CreateOrder stores the header and its items together and sets their ids.
	CreateOrder(ctx context.Context, order *domain.PurchaseOrder, items []domain.PurchaseOrderItem) error
	GetOrder(ctx context.Context, id int64) (domain.PurchaseOrder, error)
	ListOrderItems(ctx context.Context, orderID int64) ([]domain.PurchaseOrderItem, error)
	ListOrders(ctx context.Context, supplierID int64) ([]domain.PurchaseOrder, error)
	// ReceiveOrder marks a pending order received and adds its quantities to stock.
	ReceiveOrder(ctx context.Context, id int64, receivedAt domain.Timestamp) error
}

type SQLStorage struct {
	db *sqlx.DB
}

func NewSQLStorage(db *sqlx.DB) *SQLStorage {
	return &SQLStorage{db: db}
}

const orderColumns = `po.id, po.reference, po.supplier_id, s.name AS supplier_name, po.order_date, po.total_amount, po.status, po.received_at`

func (s *SQLStorage) InsertSupplier(ctx context.Context, supplier *domain.Supplier) error {
	query := s.db.Rebind(`INSERT INTO suppliers (name, contact, address, email) VALUES (?, ?, ?, ?) RETURNING id`)
	err := s.db.QueryRowxContext(ctx, query, supplier.Name, supplier.Contact, supplier.Address, supplier.Email).Scan(&supplier.ID)
	return database.Classify(err)
}

func (s *SQLStorage) GetSupplier(ctx context.Context, id int64) (domain.Supplier, error) {
	var supplier domain.Supplier
	err := s.db.GetContext(ctx, &supplier, s.db.Rebind(`SELECT id, name, contact, address, email FROM suppliers WHERE id = ?`), id)
	if err != nil {
		return domain.Supplier{}, database.Classify(err)
	}
	return supplier, nil
}

func (s *SQLStorage) UpdateSupplier(ctx context.Context, supplier domain.Supplier) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE suppliers SET name = ?, contact = ?, address = ?, email = ? WHERE id = ?`),
		supplier.Name, supplier.Contact, supplier.Address, supplier.Email, supplier.ID)
	return affected(res, err)
}

func (s *SQLStorage) DeleteSupplier(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM suppliers WHERE id = ?`), id)
	return affected(res, err)
}

func (s *SQLStorage) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	suppliers := []domain.Supplier{}
	if err := s.db.SelectContext(ctx, &suppliers, `SELECT id, name, contact, address, email FROM suppliers ORDER BY name, id`); err != nil {
		return nil, database.Classify(err)
	}
	return suppliers, nil
}

func (s *SQLStorage) CountOrders(ctx context.Context, supplierID int64) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM purchase_orders WHERE supplier_id = ?`), supplierID); err != nil {
		return 0, database.Classify(err)
	}
	return n, nil
}

func (s *SQLStorage) CreateOrder(ctx context.Context, order *domain.PurchaseOrder, items []domain.PurchaseOrderItem) error {
	return database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		query := tx.Rebind(`INSERT INTO purchase_orders (reference, supplier_id, order_date, total_amount, status) VALUES (?, ?, ?, ?, ?) RETURNING id`)
		err := tx.QueryRowxContext(ctx, query, order.Reference, order.SupplierID, order.OrderDate, order.TotalAmount, order.Status).Scan(&order.ID)
		if err != nil {
			return database.Classify(err)
		}
		itemQuery := tx.Rebind(`INSERT INTO purchase_order_items (order_id, medicine_id, quantity, unit_cost) VALUES (?, ?, ?, ?) RETURNING id`)
		for i := range items {
			items[i].OrderID = order.ID
			err := tx.QueryRowxContext(ctx, itemQuery, items[i].OrderID, items[i].MedicineID, items[i].Quantity, items[i].UnitCost).Scan(&items[i].ID)
			if err != nil {
				return database.Classify(err)
			}
		}
		return nil
	})
}

func (s *SQLStorage) GetOrder(ctx context.Context, id int64) (domain.PurchaseOrder, error) {
	var order domain.PurchaseOrder
	query := s.db.Rebind(`SELECT ` + orderColumns + ` FROM purchase_orders po JOIN suppliers s ON s.id = po.supplier_id WHERE po.id = ?`)
	if err := s.db.GetContext(ctx, &order, query, id); err != nil {
		return domain.PurchaseOrder{}, database.Classify(err)
	}
	return order, nil
}

func (s *SQLStorage) ListOrderItems(ctx context.Context, orderID int64) ([]domain.PurchaseOrderItem, error) {
	items := []domain.PurchaseOrderItem{}
	query := s.db.Rebind(`SELECT id, order_id, medicine_id, quantity, unit_cost FROM purchase_order_items WHERE order_id = ? ORDER BY id`)
	if err := s.db.SelectContext(ctx, &items, query, orderID); err != nil {
		return nil, database.Classify(err)
	}
	return items, nil
}

func (s *SQLStorage) ListOrders(ctx context.Context, supplierID int64) ([]domain.PurchaseOrder, error) {
	orders := []domain.PurchaseOrder{}
	query := s.db.Rebind(`SELECT ` + orderColumns + ` FROM purchase_orders po JOIN suppliers s ON s.id = po.supplier_id
                WHERE po.supplier_id = ? ORDER BY po.order_date DESC, po.id DESC`)
	if err := s.db.SelectContext(ctx, &orders, query, supplierID); err != nil {
		return nil, database.Classify(err)
	}
	return orders, nil
}

func (s *SQLStorage) ReceiveOrder(ctx context.Context, id int64, receivedAt domain.Timestamp) error {
	lock := database.LockClause(s.db)
	return database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var status domain.PurchaseOrderStatus
		err := tx.GetContext(ctx, &status, tx.Rebind(`SELECT status FROM purchase_orders WHERE id = ?`+lock), id)
		if err != nil {
			return database.Classify(err)
		}
		if status != domain.PurchaseOrderPending {
			return errNotPending
		}

		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE purchase_orders SET status = ?, received_at = ? WHERE id = ? AND status = ?`),
			domain.PurchaseOrderReceived, receivedAt, id, domain.PurchaseOrderPending)
		if ok, err := affected(res, err); err != nil {
			return err
		} else if !ok {
			return errNotPending
		}

		var items []domain.PurchaseOrderItem
		if err := tx.SelectContext(ctx, &items, tx.Rebind(`SELECT id, order_id, medicine_id, quantity, unit_cost FROM purchase_order_items WHERE order_id = ? ORDER BY medicine_id`), id); err != nil {
			return database.Classify(err)
		}
		stock := tx.Rebind(`UPDATE medicines SET quantity = quantity + ? WHERE id = ?`)
		for _, item := range items {
			res, err := tx.ExecContext(ctx, stock, item.Quantity, item.MedicineID)
			if ok, err := affected(res, err); err != nil {
				return err
			} else if !ok {
				return fmt.Errorf("medicine %d: %w", item.MedicineID, errMissingMedicine)
			}
		}
		return nil
	})
}

func affected(res interface{ RowsAffected() (int64, error) }, err error) (bool, error) {
	if err != nil {
		return false, database.Classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
