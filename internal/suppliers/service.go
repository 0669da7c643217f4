// Package suppliers keeps the supplier directory and the purchase orders that
// restock the pharmacy.
package suppliers

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pharmacy/m/domain"
	"pharmacy/m/internal/database"
	"pharmacy/m/internal/pricing"
)

var (
	ErrInvalidSupplier       = errors.New("invalid supplier")
	ErrSupplierNotFound      = errors.New("supplier not found")
	ErrSupplierHasOrders     = errors.New("supplier has purchase orders")
	ErrInvalidPurchaseOrder  = errors.New("invalid purchase order")
	ErrPurchaseOrderNotFound = errors.New("purchase order not found")
	ErrInvalidTransition     = errors.New("purchase order cannot change to that status")
)

// OrderLine is one requested medicine on a purchase order.
type OrderLine struct {
	MedicineID int64           `json:"medicine_id"`
	Quantity   int64           `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
}

// OrderDetail is a purchase order with its lines.
type OrderDetail struct {
	domain.PurchaseOrder
	Items []domain.PurchaseOrderItem `json:"items"`
}

type Options struct {
	// ReferencePrefix starts every purchase order reference. Empty means "PO".
	ReferencePrefix string
	Now             func() time.Time
}

type Service struct {
	storage Storage
	opts    Options
	logger  *zap.Logger
}

func NewService(storage Storage, opts Options, logger *zap.Logger) *Service {
	if opts.ReferencePrefix == "" {
		opts.ReferencePrefix = "PO"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{storage: storage, opts: opts, logger: logger}
}

func (s *Service) AddSupplier(ctx context.Context, supplier domain.Supplier) (domain.Supplier, error) {
	supplier.ID = 0
	if err := validateSupplier(&supplier); err != nil {
		return domain.Supplier{}, err
	}
	if err := s.storage.InsertSupplier(ctx, &supplier); err != nil {
		return domain.Supplier{}, s.storageError("add supplier", err)
	}
	s.logger.Info("supplier added", zap.Int64("supplier_id", supplier.ID), zap.String("name", supplier.Name))
	return supplier, nil
}

func (s *Service) UpdateSupplier(ctx context.Context, supplier domain.Supplier) (domain.Supplier, error) {
	if err := validateSupplier(&supplier); err != nil {
		return domain.Supplier{}, err
	}
	ok, err := s.storage.UpdateSupplier(ctx, supplier)
	if err != nil {
		return domain.Supplier{}, s.storageError("update supplier", err)
	}
	if !ok {
		return domain.Supplier{}, fmt.Errorf("supplier %d: %w", supplier.ID, ErrSupplierNotFound)
	}
	return supplier, nil
}

// DeleteSupplier removes a supplier that has never been ordered from.
func (s *Service) DeleteSupplier(ctx context.Context, id int64) error {
	n, err := s.storage.CountOrders(ctx, id)
	if err != nil {
		return s.storageError("count orders", err)
	}
	if n > 0 {
		return fmt.Errorf("supplier %d has %d orders: %w", id, n, ErrSupplierHasOrders)
	}
	ok, err := s.storage.DeleteSupplier(ctx, id)
	if errors.Is(err, database.ErrConflict) {
		return fmt.Errorf("supplier %d: %w", id, ErrSupplierHasOrders)
	}
	if err != nil {
		return s.storageError("delete supplier", err)
	}
	if !ok {
		return fmt.Errorf("supplier %d: %w", id, ErrSupplierNotFound)
	}
	s.logger.Info("supplier deleted", zap.Int64("supplier_id", id))
	return nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	suppliers, err := s.storage.ListSuppliers(ctx)
	if err != nil {
		return nil, s.storageError("list suppliers", err)
	}
	return suppliers, nil
}

// CreatePurchaseOrder records a pending order. Its total is the sum of
// quantity times unit cost over the lines.
func (s *Service) CreatePurchaseOrder(ctx context.Context, supplierID int64, lines []OrderLine) (*OrderDetail, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line is required", ErrInvalidPurchaseOrder)
	}
	items := make([]domain.PurchaseOrderItem, 0, len(lines))
	total := decimal.Zero
	for i, line := range lines {
		if line.MedicineID <= 0 || line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: line %d needs a medicine and a positive quantity", ErrInvalidPurchaseOrder, i)
		}
		if line.UnitCost.IsNegative() {
			return nil, fmt.Errorf("%w: line %d has a negative unit cost", ErrInvalidPurchaseOrder, i)
		}
		cost := pricing.Round(line.UnitCost)
		items = append(items, domain.PurchaseOrderItem{MedicineID: line.MedicineID, Quantity: line.Quantity, UnitCost: cost})
		total = total.Add(pricing.LineTotal(cost, line.Quantity))
	}

	supplier, err := s.storage.GetSupplier(ctx, supplierID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("supplier %d: %w", supplierID, ErrSupplierNotFound)
	}
	if err != nil {
		return nil, s.storageError("get supplier", err)
	}

	order := domain.PurchaseOrder{
		Reference:    s.opts.ReferencePrefix + "-" + strings.ToUpper(uuid.NewString()),
		SupplierID:   supplier.ID,
		SupplierName: supplier.Name,
		OrderDate:    domain.NewTimestamp(s.opts.Now()),
		TotalAmount:  total,
		Status:       domain.PurchaseOrderPending,
	}
	if err := s.storage.CreateOrder(ctx, &order, items); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return nil, fmt.Errorf("%w: unknown medicine on order", ErrInvalidPurchaseOrder)
		}
		return nil, s.storageError("create purchase order", err)
	}
	s.logger.Info("purchase order created",
		zap.Int64("order_id", order.ID),
		zap.String("reference", order.Reference),
		zap.Int64("supplier_id", supplierID),
		zap.String("total", total.StringFixed(pricing.Places)),
	)
	return &OrderDetail{PurchaseOrder: order, Items: items}, nil
}

// ReceivePurchaseOrder marks a pending order received and adds every line to
// stock in one step.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, id int64) error {
	err := s.storage.ReceiveOrder(ctx, id, domain.NewTimestamp(s.opts.Now()))
	switch {
	case err == nil:
		s.logger.Info("purchase order received", zap.Int64("order_id", id))
		return nil
	case errors.Is(err, errNotPending):
		return fmt.Errorf("purchase order %d already received: %w", id, ErrInvalidTransition)
	case errors.Is(err, errMissingMedicine):
		return fmt.Errorf("%w: order %d: %v", ErrInvalidPurchaseOrder, id, err)
	case errors.Is(err, database.ErrNotFound):
		return fmt.Errorf("purchase order %d: %w", id, ErrPurchaseOrderNotFound)
	default:
		return s.storageError("receive purchase order", err)
	}
}

func (s *Service) GetPurchaseOrder(ctx context.Context, id int64) (*OrderDetail, error) {
	order, err := s.storage.GetOrder(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("purchase order %d: %w", id, ErrPurchaseOrderNotFound)
	}
	if err != nil {
		return nil, s.storageError("get purchase order", err)
	}
	items, err := s.storage.ListOrderItems(ctx, id)
	if err != nil {
		return nil, s.storageError("list purchase order items", err)
	}
	return &OrderDetail{PurchaseOrder: order, Items: items}, nil
}

// ListPurchaseOrders returns a supplier's orders, newest first.
func (s *Service) ListPurchaseOrders(ctx context.Context, supplierID int64) ([]domain.PurchaseOrder, error) {
	orders, err := s.storage.ListOrders(ctx, supplierID)
	if err != nil {
		return nil, s.storageError("list purchase orders", err)
	}
	return orders, nil
}

func validateSupplier(supplier *domain.Supplier) error {
	supplier.Name = strings.TrimSpace(supplier.Name)
	supplier.Contact = strings.TrimSpace(supplier.Contact)
	supplier.Address = strings.TrimSpace(supplier.Address)
	supplier.Email = strings.TrimSpace(supplier.Email)
	if supplier.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSupplier)
	}
	if supplier.Email != "" {
		if _, err := mail.ParseAddress(supplier.Email); err != nil {
			return fmt.Errorf("%w: email %q is not valid", ErrInvalidSupplier, supplier.Email)
		}
	}
	return nil
}

func (s *Service) storageError(op string, err error) error {
	s.logger.Error("supplier storage failure", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s: %w", op, err)
}
