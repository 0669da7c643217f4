// Package customers keeps the customer directory and credits loyalty points
// for the sales linked to each customer.
package customers

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pharmacy/m/domain"
	"pharmacy/m/internal/database"
)

const searchLimit = 100

var (
	ErrInvalidCustomer   = errors.New("invalid customer")
	ErrCustomerNotFound  = errors.New("customer not found")
	ErrSaleNotFound      = errors.New("completed sale not found")
	ErrSaleAlreadyLinked = errors.New("sale already linked to a customer")
)

type Options struct {
	// SpendPerPoint is how much a customer spends to earn one loyalty point.
	// Zero means 1.
	SpendPerPoint decimal.Decimal
	Now           func() time.Time
}

type Service struct {
	storage Storage
	opts    Options
	logger  *zap.Logger
}

func NewService(storage Storage, opts Options, logger *zap.Logger) *Service {
	if !opts.SpendPerPoint.IsPositive() {
		opts.SpendPerPoint = decimal.NewFromInt(1)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{storage: storage, opts: opts, logger: logger}
}

func (s *Service) AddCustomer(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	if err := validate(&customer); err != nil {
		return domain.Customer{}, err
	}
	customer.ID = 0
	customer.LoyaltyPoints = 0
	customer.CreatedAt = domain.NewTimestamp(s.opts.Now())
	if err := s.storage.Insert(ctx, &customer); err != nil {
		return domain.Customer{}, s.storageError("add customer", err)
	}
	s.logger.Info("customer added", zap.Int64("customer_id", customer.ID))
	return customer, nil
}

// UpdateCustomer changes contact details. Loyalty points only change through
// RecordPurchase.
func (s *Service) UpdateCustomer(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	if err := validate(&customer); err != nil {
		return domain.Customer{}, err
	}
	ok, err := s.storage.Update(ctx, customer)
	if err != nil {
		return domain.Customer{}, s.storageError("update customer", err)
	}
	if !ok {
		return domain.Customer{}, fmt.Errorf("customer %d: %w", customer.ID, ErrCustomerNotFound)
	}
	return s.GetCustomer(ctx, customer.ID)
}

func (s *Service) GetCustomer(ctx context.Context, id int64) (domain.Customer, error) {
	customer, err := s.storage.Get(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return domain.Customer{}, fmt.Errorf("customer %d: %w", id, ErrCustomerNotFound)
	}
	if err != nil {
		return domain.Customer{}, s.storageError("get customer", err)
	}
	return customer, nil
}

// SearchCustomers matches keyword against name, phone and email. An empty
// keyword lists everyone by name.
func (s *Service) SearchCustomers(ctx context.Context, keyword string) ([]domain.Customer, error) {
	customers, err := s.storage.Search(ctx, strings.TrimSpace(keyword), searchLimit)
	if err != nil {
		return nil, s.storageError("search customers", err)
	}
	return customers, nil
}

// RecordPurchase attributes a completed sale to a customer and credits one
// point per SpendPerPoint of its total. A sale can be attributed once.
func (s *Service) RecordPurchase(ctx context.Context, customerID, saleID int64) (domain.CustomerPurchase, error) {
	total, err := s.storage.CompletedSaleTotal(ctx, saleID)
	if errors.Is(err, database.ErrNotFound) {
		return domain.CustomerPurchase{}, fmt.Errorf("sale %d: %w", saleID, ErrSaleNotFound)
	}
	if err != nil {
		return domain.CustomerPurchase{}, s.storageError("sale total", err)
	}

	purchase := domain.CustomerPurchase{
		CustomerID:   customerID,
		SaleID:       saleID,
		Total:        total,
		PointsEarned: total.Div(s.opts.SpendPerPoint).IntPart(),
	}
	err = s.storage.RecordPurchase(ctx, &purchase)
	switch {
	case err == nil:
	case errors.Is(err, errSaleLinked):
		return domain.CustomerPurchase{}, fmt.Errorf("sale %d: %w", saleID, ErrSaleAlreadyLinked)
	case errors.Is(err, database.ErrNotFound):
		return domain.CustomerPurchase{}, fmt.Errorf("customer %d: %w", customerID, ErrCustomerNotFound)
	default:
		return domain.CustomerPurchase{}, s.storageError("record purchase", err)
	}

	s.logger.Info("customer purchase recorded",
		zap.Int64("customer_id", customerID),
		zap.Int64("sale_id", saleID),
		zap.Int64("points", purchase.PointsEarned),
	)
	return purchase, nil
}

// PurchaseHistory returns a customer's linked sales, newest first.
func (s *Service) PurchaseHistory(ctx context.Context, customerID int64) ([]domain.CustomerPurchase, error) {
	if _, err := s.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	purchases, err := s.storage.ListPurchases(ctx, customerID)
	if err != nil {
		return nil, s.storageError("list purchases", err)
	}
	return purchases, nil
}

func validate(customer *domain.Customer) error {
	customer.Name = strings.TrimSpace(customer.Name)
	customer.Phone = strings.TrimSpace(customer.Phone)
	customer.Email = strings.TrimSpace(customer.Email)
	customer.Address = strings.TrimSpace(customer.Address)
	if customer.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCustomer)
	}
	if customer.Email != "" {
		if _, err := mail.ParseAddress(customer.Email); err != nil {
			return fmt.Errorf("%w: email %q is not valid", ErrInvalidCustomer, customer.Email)
		}
	}
	return nil
}

func (s *Service) storageError(op string, err error) error {
	s.logger.Error("customer storage failure", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s: %w", op, err)
}
