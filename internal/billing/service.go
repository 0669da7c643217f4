package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pharmacy/m/domain"
	"pharmacy/m/internal/database"
	"pharmacy/m/internal/pricing"
)

// CartLine is one requested (medicine, quantity) pair of a sale request.
type CartLine struct {
	MedicineID int64 `json:"medicine_id"`
	Quantity   int64 `json:"quantity"`
}

// SaleResult is what a successful CreateSale hands back to the caller.
type SaleResult struct {
	SaleID    int64             `json:"sale_id"`
	Reference string            `json:"reference"`
	SaleDate  domain.Timestamp  `json:"sale_date"`
	Totals    pricing.Totals    `json:"totals"`
	Items     []domain.SaleItem `json:"items"`
}

type Options struct {
	// VATRate is the single rate applied to every sale, in [0,1].
	VATRate decimal.Decimal
	// Timeout bounds each call's storage work. Zero means 5s.
	Timeout time.Duration
	// InvoicePrefix starts every sale reference. Empty means "INV".
	InvoicePrefix string
	// Location decides calendar-day boundaries for period queries.
	Location *time.Location
	Now      func() time.Time
}

// Service creates sales and answers sales queries.
type Service struct {
	storage Storage
	opts    Options
	logger  *zap.Logger
}

// NewService creates a new Service.
func NewService(storage Storage, opts Options, logger *zap.Logger) (*Service, error) {
	if err := pricing.ValidateVATRate(opts.VATRate); err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.InvoicePrefix == "" {
		opts.InvoicePrefix = "INV"
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
	return &Service{storage: storage, opts: opts, logger: logger}, nil
}

// VATRate returns the configured rate.
func (s *Service) VATRate() decimal.Decimal {
	return s.opts.VATRate
}

// CreateSale prices the cart at current medicine prices and records it as a
// completed sale, decrementing stock. Either everything is written or nothing is.
func (s *Service) CreateSale(ctx context.Context, lines []CartLine, discountPercentage decimal.Decimal) (*SaleResult, error) {
	requested, err := coalesce(lines)
	if err != nil {
		return nil, err
	}
	if err := pricing.ValidateDiscount(discountPercentage); err != nil {
		return nil, &ValidationError{Field: "discount_percentage", Reason: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	tx, err := s.storage.Begin(ctx)
	if err != nil {
		return nil, s.persistenceError("begin sale", err)
	}
	done := false
	defer func() {
		if done {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("sale rollback failed", zap.Error(rbErr))
		}
	}()

	result, err := s.writeSale(ctx, tx, requested, discountPercentage)
	if err != nil {
		s.logger.Info("sale rejected", zap.Int("lines", len(requested)), zap.Error(err))
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, s.persistenceError("commit sale", err)
	}
	done = true

	s.logger.Info("sale created",
		zap.Int64("sale_id", result.SaleID),
		zap.String("reference", result.Reference),
		zap.Int("lines", len(result.Items)),
		zap.String("total", result.Totals.Total.StringFixed(pricing.Places)),
	)
	return result, nil
}

func (s *Service) writeSale(ctx context.Context, tx Tx, requested []CartLine, discountPercentage decimal.Decimal) (*SaleResult, error) {
	items := make([]domain.SaleItem, 0, len(requested))
	names := make(map[int64]string, len(requested))
	subtotal := decimal.Zero

	for _, line := range requested {
		med, err := tx.MedicineForUpdate(ctx, line.MedicineID)
		if errors.Is(err, database.ErrNotFound) {
			return nil, &MedicineNotFoundError{MedicineID: line.MedicineID}
		}
		if err != nil {
			return nil, s.persistenceError("read medicine", err)
		}
		if med.Quantity < line.Quantity {
			return nil, &InsufficientStockError{MedicineID: med.ID, Name: med.Name, Requested: line.Quantity, Available: med.Quantity}
		}
		names[med.ID] = med.Name

		lineTotal := pricing.LineTotal(med.Price, line.Quantity)
		items = append(items, domain.SaleItem{
			MedicineID: med.ID,
			Quantity:   line.Quantity,
			UnitPrice:  med.Price,
			LineTotal:  lineTotal,
		})
		subtotal = subtotal.Add(lineTotal)
	}

	totals, err := pricing.ComputeTotals(subtotal, discountPercentage, s.opts.VATRate)
	if err != nil {
		// Prices are non-negative in storage, so this means corrupt rows.
		return nil, s.persistenceError("price sale", err)
	}

	sale := &domain.Sale{
		Reference:          s.newReference(),
		SaleDate:           domain.NewTimestamp(s.opts.Now()),
		Subtotal:           totals.Subtotal,
		DiscountPercentage: totals.DiscountPercentage,
		DiscountAmount:     totals.DiscountAmount,
		VATRate:            totals.VATRate,
		VATAmount:          totals.VATAmount,
		Total:              totals.Total,
		Status:             domain.SaleStatusCompleted,
	}
	if cashier, ok := CashierFromContext(ctx); ok {
		sale.UserID = &cashier
	}
	if err := tx.InsertSale(ctx, sale); err != nil {
		return nil, s.persistenceError("insert sale", err)
	}

	for i := range items {
		items[i].SaleID = sale.ID
		if err := tx.InsertSaleItem(ctx, &items[i]); err != nil {
			return nil, s.persistenceError("insert sale item", err)
		}
		ok, err := tx.DecrementStock(ctx, items[i].MedicineID, items[i].Quantity)
		if err != nil {
			return nil, s.persistenceError("decrement stock", err)
		}
		if !ok {
			return nil, &InsufficientStockError{MedicineID: items[i].MedicineID, Name: names[items[i].MedicineID], Requested: items[i].Quantity}
		}
	}

	return &SaleResult{
		SaleID:    sale.ID,
		Reference: sale.Reference,
		SaleDate:  sale.SaleDate,
		Totals:    totals,
		Items:     items,
	}, nil
}

// GetSalesForPeriod returns sales dated on any calendar day from start to end
// inclusive, newest first.
func (s *Service) GetSalesForPeriod(ctx context.Context, start, end time.Time) ([]domain.Sale, error) {
	from, to, err := s.period(start, end)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	sales, err := s.storage.ListSales(ctx, from, to)
	if err != nil {
		return nil, s.persistenceError("list sales", err)
	}
	return sales, nil
}

// GetSaleDetail returns a sale with its lines and medicine names.
func (s *Service) GetSaleDetail(ctx context.Context, saleID int64) (*domain.SaleDetail, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	sale, err := s.storage.GetSale(ctx, saleID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("sale %d: %w", saleID, ErrSaleNotFound)
	}
	if err != nil {
		return nil, s.persistenceError("get sale", err)
	}
	items, err := s.storage.ListSaleItems(ctx, saleID)
	if err != nil {
		return nil, s.persistenceError("list sale items", err)
	}
	return &domain.SaleDetail{Sale: sale, Items: items}, nil
}

// DailySales summarises completed sales on day's calendar date.
func (s *Service) DailySales(ctx context.Context, day time.Time) (domain.SalesSummary, error) {
	return s.SalesTotal(ctx, day, day)
}

// SalesTotal summarises completed sales from start to end inclusive.
func (s *Service) SalesTotal(ctx context.Context, start, end time.Time) (domain.SalesSummary, error) {
	from, to, err := s.period(start, end)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	summary, err := s.storage.Summarize(ctx, from, to)
	if err != nil {
		return domain.SalesSummary{}, s.persistenceError("summarize sales", err)
	}
	summary.Subtotal = pricing.Round(summary.Subtotal)
	summary.DiscountAmount = pricing.Round(summary.DiscountAmount)
	summary.VATAmount = pricing.Round(summary.VATAmount)
	summary.Total = pricing.Round(summary.Total)
	return summary, nil
}

// period converts an inclusive range of calendar days into [from, to) in UTC.
func (s *Service) period(start, end time.Time) (time.Time, time.Time, error) {
	from := startOfDay(start, s.opts.Location)
	to := startOfDay(end, s.opts.Location).AddDate(0, 0, 1)
	if !to.After(from) {
		return time.Time{}, time.Time{}, &ValidationError{Field: "end_date", Reason: "must not be before start_date"}
	}
	return from.UTC(), to.UTC(), nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func (s *Service) newReference() string {
	return s.opts.InvoicePrefix + "-" + strings.ToUpper(uuid.NewString())
}

func (s *Service) persistenceError(op string, err error) error {
	if database.IsTimeout(err) {
		op += " (timed out)"
	}
	if errors.Is(err, database.ErrSchemaNotMigrated) {
		s.logger.Error("database schema is not migrated", zap.String("op", op), zap.Error(err))
	} else {
		s.logger.Error("sale storage failure", zap.String("op", op), zap.Error(err))
	}
	return &PersistenceError{Op: op, Err: err}
}

// coalesce validates cart lines and merges duplicates, ordered by medicine id
// so concurrent sales lock rows in the same order.
func coalesce(lines []CartLine) ([]CartLine, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	totals := make(map[int64]int64, len(lines))
	for i, line := range lines {
		if line.MedicineID <= 0 {
			return nil, &ValidationError{Field: fmt.Sprintf("lines[%d].medicine_id", i), Reason: "must be positive"}
		}
		if line.Quantity <= 0 {
			return nil, &ValidationError{Field: fmt.Sprintf("lines[%d].quantity", i), Reason: "must be positive"}
		}
		if line.Quantity > math.MaxInt64-totals[line.MedicineID] {
			return nil, &ValidationError{Field: fmt.Sprintf("lines[%d].quantity", i), Reason: "quantity overflows"}
		}
		totals[line.MedicineID] += line.Quantity
	}
	merged := make([]CartLine, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, CartLine{MedicineID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].MedicineID < merged[j].MedicineID })
	return merged, nil
}
