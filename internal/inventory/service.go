// Package inventory manages the medicine catalogue and on-hand stock.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pharmacy/m/domain"
	"pharmacy/m/internal/database"
	"pharmacy/m/internal/pricing"
)

var (
	ErrInvalidMedicine  = errors.New("invalid medicine")
	ErrMedicineNotFound = errors.New("medicine not found")
	ErrDuplicateBarcode = errors.New("barcode already in use")
)

const searchLimit = 50

// MedicineInput describes a new medicine.
type MedicineInput struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	Quantity      int64           `json:"quantity"`
	ExpiryDate    string          `json:"expiry_date"`
	Manufacturer  string          `json:"manufacturer"`
	Barcode       string          `json:"barcode"`
	Category      string          `json:"category"`
	MinStockLevel *int64          `json:"min_stock_level"`
	Location      string          `json:"location"`
}

// MedicineUpdate changes only the fields that are set.
type MedicineUpdate struct {
	Name          *string          `json:"name"`
	Description   *string          `json:"description"`
	Price         *decimal.Decimal `json:"price"`
	Quantity      *int64           `json:"quantity"`
	ExpiryDate    *string          `json:"expiry_date"`
	Manufacturer  *string          `json:"manufacturer"`
	Barcode       *string          `json:"barcode"`
	Category      *string          `json:"category"`
	MinStockLevel *int64           `json:"min_stock_level"`
	Location      *string          `json:"location"`
}

type Options struct {
	// DefaultMinStockLevel is used when a medicine is added without one.
	DefaultMinStockLevel int64
	// ExpiryWarningDays is the window ExpiringWithin uses for days <= 0.
	ExpiryWarningDays int
	Location          *time.Location
	Now               func() time.Time
}

type Service struct {
	storage Storage
	opts    Options
	logger  *zap.Logger
}

func NewService(storage Storage, opts Options, logger *zap.Logger) *Service {
	if opts.DefaultMinStockLevel <= 0 {
		opts.DefaultMinStockLevel = domain.DefaultMinStockLevel
	}
	if opts.ExpiryWarningDays <= 0 {
		opts.ExpiryWarningDays = 90
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{storage: storage, opts: opts, logger: logger}
}

// AddMedicine validates and stores a new active medicine.
func (s *Service) AddMedicine(ctx context.Context, in MedicineInput) (domain.Medicine, error) {
	med := domain.Medicine{
		Name:          strings.TrimSpace(in.Name),
		Description:   strings.TrimSpace(in.Description),
		Price:         in.Price,
		Quantity:      in.Quantity,
		ExpiryDate:    nullIfEmpty(in.ExpiryDate),
		Manufacturer:  strings.TrimSpace(in.Manufacturer),
		Barcode:       nullIfEmpty(in.Barcode),
		Category:      strings.TrimSpace(in.Category),
		MinStockLevel: s.opts.DefaultMinStockLevel,
		Location:      strings.TrimSpace(in.Location),
		IsActive:      true,
	}
	if in.MinStockLevel != nil {
		med.MinStockLevel = *in.MinStockLevel
	}
	if err := validate(&med); err != nil {
		return domain.Medicine{}, err
	}
	if err := s.storage.Insert(ctx, &med); err != nil {
		return domain.Medicine{}, s.storageError("add medicine", err)
	}
	s.logger.Info("medicine added", zap.Int64("medicine_id", med.ID), zap.String("name", med.Name))
	return med, nil
}

// UpdateMedicine applies a partial update to an existing medicine.
func (s *Service) UpdateMedicine(ctx context.Context, id int64, upd MedicineUpdate) (domain.Medicine, error) {
	med, err := s.GetMedicine(ctx, id)
	if err != nil {
		return domain.Medicine{}, err
	}
	if upd.Name != nil {
		med.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Description != nil {
		med.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Price != nil {
		med.Price = *upd.Price
	}
	if upd.Quantity != nil {
		med.Quantity = *upd.Quantity
	}
	if upd.ExpiryDate != nil {
		med.ExpiryDate = nullIfEmpty(*upd.ExpiryDate)
	}
	if upd.Manufacturer != nil {
		med.Manufacturer = strings.TrimSpace(*upd.Manufacturer)
	}
	if upd.Barcode != nil {
		med.Barcode = nullIfEmpty(*upd.Barcode)
	}
	if upd.Category != nil {
		med.Category = strings.TrimSpace(*upd.Category)
	}
	if upd.MinStockLevel != nil {
		med.MinStockLevel = *upd.MinStockLevel
	}
	if upd.Location != nil {
		med.Location = strings.TrimSpace(*upd.Location)
	}
	if err := validate(&med); err != nil {
		return domain.Medicine{}, err
	}
	ok, err := s.storage.Update(ctx, med)
	if err != nil {
		return domain.Medicine{}, s.storageError("update medicine", err)
	}
	if !ok {
		return domain.Medicine{}, notFound(id)
	}
	return med, nil
}

func (s *Service) GetMedicine(ctx context.Context, id int64) (domain.Medicine, error) {
	med, err := s.storage.Get(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return domain.Medicine{}, notFound(id)
	}
	if err != nil {
		return domain.Medicine{}, s.storageError("get medicine", err)
	}
	return med, nil
}

// SearchMedicines matches active medicines by name, barcode or category.
// An empty keyword lists active medicines.
func (s *Service) SearchMedicines(ctx context.Context, keyword string) ([]domain.Medicine, error) {
	medicines, err := s.storage.Search(ctx, strings.TrimSpace(keyword), searchLimit)
	if err != nil {
		return nil, s.storageError("search medicines", err)
	}
	return medicines, nil
}

// UpdateStock sets the on-hand quantity.
func (s *Service) UpdateStock(ctx context.Context, id, quantity int64) error {
	if quantity < 0 {
		return fmt.Errorf("%w: quantity must not be negative", ErrInvalidMedicine)
	}
	ok, err := s.storage.SetQuantity(ctx, id, quantity)
	if err != nil {
		return s.storageError("update stock", err)
	}
	if !ok {
		return notFound(id)
	}
	s.logger.Info("stock set", zap.Int64("medicine_id", id), zap.Int64("quantity", quantity))
	return nil
}

// AdjustStock adds delta to the on-hand quantity. A delta that would take
// stock below zero changes nothing.
func (s *Service) AdjustStock(ctx context.Context, adj domain.StockAdjustment) error {
	if adj.Delta == 0 {
		return nil
	}
	ok, err := s.storage.AddQuantity(ctx, adj.MedicineID, adj.Delta)
	if err != nil {
		return s.storageError("adjust stock", err)
	}
	if ok {
		s.logger.Info("stock adjusted", zap.Int64("medicine_id", adj.MedicineID), zap.Int64("delta", adj.Delta))
		return nil
	}
	if _, err := s.GetMedicine(ctx, adj.MedicineID); err != nil {
		return err
	}
	return fmt.Errorf("%w: adjustment of %d would make stock negative", ErrInvalidMedicine, adj.Delta)
}

// DeactivateMedicine hides a medicine from sales and searches. Past sales keep
// referring to it.
func (s *Service) DeactivateMedicine(ctx context.Context, id int64) error {
	ok, err := s.storage.Deactivate(ctx, id)
	if err != nil {
		return s.storageError("deactivate medicine", err)
	}
	if !ok {
		return notFound(id)
	}
	s.logger.Info("medicine deactivated", zap.Int64("medicine_id", id))
	return nil
}

// LowStock lists active medicines at or below their reorder level, lowest first.
func (s *Service) LowStock(ctx context.Context) ([]domain.Medicine, error) {
	medicines, err := s.storage.LowStock(ctx)
	if err != nil {
		return nil, s.storageError("low stock", err)
	}
	return medicines, nil
}

// ExpiringWithin lists active medicines expiring from today up to days ahead.
func (s *Service) ExpiringWithin(ctx context.Context, days int) ([]domain.Medicine, error) {
	if days <= 0 {
		days = s.opts.ExpiryWarningDays
	}
	today := s.opts.Now().In(s.opts.Location)
	from := today.Format(domain.DateLayout)
	to := today.AddDate(0, 0, days).Format(domain.DateLayout)
	medicines, err := s.storage.ExpiringBetween(ctx, from, to)
	if err != nil {
		return nil, s.storageError("expiring medicines", err)
	}
	return medicines, nil
}

func validate(med *domain.Medicine) error {
	if med.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidMedicine)
	}
	if med.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidMedicine)
	}
	med.Price = pricing.Round(med.Price)
	if med.Quantity < 0 {
		return fmt.Errorf("%w: quantity must not be negative", ErrInvalidMedicine)
	}
	if med.MinStockLevel < 0 {
		return fmt.Errorf("%w: min_stock_level must not be negative", ErrInvalidMedicine)
	}
	if med.ExpiryDate != nil && !domain.ValidDate(*med.ExpiryDate) {
		return fmt.Errorf("%w: expiry_date must be YYYY-MM-DD", ErrInvalidMedicine)
	}
	return nil
}

func (s *Service) storageError(op string, err error) error {
	if errors.Is(err, database.ErrConflict) {
		return fmt.Errorf("%s: %w", op, ErrDuplicateBarcode)
	}
	s.logger.Error("inventory storage failure", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s: %w", op, err)
}

func notFound(id int64) error {
	return fmt.Errorf("medicine %d: %w", id, ErrMedicineNotFound)
}

func nullIfEmpty(val string) *string {
	trimmed := strings.TrimSpace(val)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
