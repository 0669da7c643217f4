// Package reports builds sales and inventory reports and exports them as CSV
// or XLSX.
package reports

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pharmacy/m/domain"
	"pharmacy/m/internal/pricing"
)

// TopProductsLimit is how many best sellers a sales report lists.
const TopProductsLimit = 5

var ErrInvalidPeriod = errors.New("invalid report period")

// SaleLine is one sold line with its sale's date and reference.
type SaleLine struct {
	SaleID       int64            `db:"sale_id" json:"sale_id"`
	Reference    string           `db:"reference" json:"reference"`
	SaleDate     domain.Timestamp `db:"sale_date" json:"sale_date"`
	MedicineName string           `db:"medicine_name" json:"medicine_name"`
	Quantity     int64            `db:"quantity" json:"quantity"`
	UnitPrice    decimal.Decimal  `db:"unit_price" json:"unit_price"`
	LineTotal    decimal.Decimal  `db:"line_total" json:"line_total"`
}

type ProductSales struct {
	MedicineID int64           `db:"medicine_id" json:"medicine_id"`
	Name       string          `db:"name" json:"name"`
	Quantity   int64           `db:"quantity" json:"quantity"`
	Revenue    decimal.Decimal `db:"revenue" json:"revenue"`
}

type SalesReport struct {
	Start       string              `json:"start_date"`
	End         string              `json:"end_date"`
	Summary     domain.SalesSummary `json:"summary"`
	Average     decimal.Decimal     `json:"average"`
	TopProducts []ProductSales      `json:"top_products"`
	Lines       []SaleLine          `json:"lines"`
}

type InventoryReport struct {
	Summary domain.InventorySummary `json:"summary"`
	Items   []domain.Medicine       `json:"items"`
}

// ProfitLossReport sets sales against purchases for a period. Expired stock is
// valued as of the report date, not the period.
type ProfitLossReport struct {
	Start             string          `json:"start_date"`
	End               string          `json:"end_date"`
	TotalSales        decimal.Decimal `json:"total_sales"`
	TotalPurchases    decimal.Decimal `json:"total_purchases"`
	ExpiredStockValue decimal.Decimal `json:"expired_stock_value"`
	GrossProfit       decimal.Decimal `json:"gross_profit"`
	NetProfit         decimal.Decimal `json:"net_profit"`
}

// ExpiryAlert is a medicine that has expired or expires inside the window.
type ExpiryAlert struct {
	domain.Medicine
	DaysLeft int `json:"days_left"`
}

type ExpiryReport struct {
	Date  string        `json:"date"`
	Until string        `json:"until"`
	Items []ExpiryAlert `json:"items"`
}

// SalesSummarizer totals completed sales over inclusive calendar days.
type SalesSummarizer interface {
	SalesTotal(ctx context.Context, start, end time.Time) (domain.SalesSummary, error)
}

type Options struct {
	// ExpiringDays is the window counted as expiring soon. Zero means 30.
	ExpiringDays int
	// ExpiryAlertDays is the default window of the expiry report. Zero means 90.
	ExpiryAlertDays int
	Location        *time.Location
	Now          func() time.Time
}

type Service struct {
	storage Storage
	sales   SalesSummarizer
	opts    Options
	logger  *zap.Logger
}

func NewService(storage Storage, sales SalesSummarizer, opts Options, logger *zap.Logger) *Service {
	if opts.ExpiringDays <= 0 {
		opts.ExpiringDays = 30
	}
	if opts.ExpiryAlertDays <= 0 {
		opts.ExpiryAlertDays = 90
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
	return &Service{storage: storage, sales: sales, opts: opts, logger: logger}
}

// SalesReport covers completed sales on the calendar days start to end inclusive.
func (s *Service) SalesReport(ctx context.Context, start, end time.Time) (*SalesReport, error) {
	from := startOfDay(start, s.opts.Location)
	to := startOfDay(end, s.opts.Location).AddDate(0, 0, 1)
	if !to.After(from) {
		return nil, fmt.Errorf("%w: end date is before start date", ErrInvalidPeriod)
	}

	summary, err := s.sales.SalesTotal(ctx, start, end)
	if err != nil {
		return nil, err
	}
	top, err := s.storage.TopProducts(ctx, from.UTC(), to.UTC(), TopProductsLimit)
	if err != nil {
		return nil, s.storageError("top products", err)
	}
	lines, err := s.storage.SaleLines(ctx, from.UTC(), to.UTC())
	if err != nil {
		return nil, s.storageError("sale lines", err)
	}
	for i := range top {
		top[i].Revenue = pricing.Round(top[i].Revenue)
	}

	return &SalesReport{
		Start:       from.Format(domain.DateLayout),
		End:         to.AddDate(0, 0, -1).Format(domain.DateLayout),
		Summary:     summary,
		Average:     summary.Average(),
		TopProducts: top,
		Lines:       lines,
	}, nil
}

// InventoryReport values the active stock at current prices.
func (s *Service) InventoryReport(ctx context.Context) (*InventoryReport, error) {
	medicines, err := s.storage.ActiveMedicines(ctx)
	if err != nil {
		return nil, s.storageError("active medicines", err)
	}

	today := s.opts.Now().In(s.opts.Location)
	from := today.Format(domain.DateLayout)
	to := today.AddDate(0, 0, s.opts.ExpiringDays).Format(domain.DateLayout)

	summary := domain.InventorySummary{StockValue: decimal.Zero}
	for _, med := range medicines {
		summary.TotalItems++
		summary.TotalUnits += med.Quantity
		summary.StockValue = summary.StockValue.Add(pricing.LineTotal(med.Price, med.Quantity))
		if med.BelowMinimum() {
			summary.LowStockCount++
		}
		// Dates are YYYY-MM-DD, so string order is date order.
		if med.ExpiryDate != nil && *med.ExpiryDate >= from && *med.ExpiryDate <= to {
			summary.ExpiringSoonCount++
		}
	}
	return &InventoryReport{Summary: summary, Items: medicines}, nil
}

// ProfitLoss nets completed sales on the days start to end inclusive against
// purchase orders placed in the same days and the value of stock already
// expired.
func (s *Service) ProfitLoss(ctx context.Context, start, end time.Time) (*ProfitLossReport, error) {
	from := startOfDay(start, s.opts.Location)
	to := startOfDay(end, s.opts.Location).AddDate(0, 0, 1)
	if !to.After(from) {
		return nil, fmt.Errorf("%w: end date is before start date", ErrInvalidPeriod)
	}

	summary, err := s.sales.SalesTotal(ctx, start, end)
	if err != nil {
		return nil, err
	}
	purchases, err := s.storage.PurchasesTotal(ctx, from.UTC(), to.UTC())
	if err != nil {
		return nil, s.storageError("purchases total", err)
	}
	medicines, err := s.storage.ActiveMedicines(ctx)
	if err != nil {
		return nil, s.storageError("active medicines", err)
	}

	today := s.opts.Now().In(s.opts.Location).Format(domain.DateLayout)
	expired := decimal.Zero
	for _, med := range medicines {
		if med.ExpiryDate != nil && *med.ExpiryDate <= today {
			expired = expired.Add(pricing.LineTotal(med.Price, med.Quantity))
		}
	}

	sales := pricing.Round(summary.Total)
	purchases = pricing.Round(purchases)
	gross := sales.Sub(purchases)
	return &ProfitLossReport{
		Start:             from.Format(domain.DateLayout),
		End:               to.AddDate(0, 0, -1).Format(domain.DateLayout),
		TotalSales:        sales,
		TotalPurchases:    purchases,
		ExpiredStockValue: expired,
		GrossProfit:       gross,
		NetProfit:         gross.Sub(expired),
	}, nil
}

// ExpiryReport lists active medicines that expire within days from today,
// already expired ones included, soonest first. days <= 0 uses the default
// window.
func (s *Service) ExpiryReport(ctx context.Context, days int) (*ExpiryReport, error) {
	if days <= 0 {
		days = s.opts.ExpiryAlertDays
	}
	medicines, err := s.storage.ActiveMedicines(ctx)
	if err != nil {
		return nil, s.storageError("active medicines", err)
	}

	today := startOfDay(s.opts.Now(), s.opts.Location)
	until := today.AddDate(0, 0, days).Format(domain.DateLayout)
	items := []ExpiryAlert{}
	for _, med := range medicines {
		if med.ExpiryDate == nil || *med.ExpiryDate > until {
			continue
		}
		expiry, err := time.ParseInLocation(domain.DateLayout, *med.ExpiryDate, s.opts.Location)
		if err != nil {
			s.logger.Warn("skipping medicine with bad expiry date", zap.Int64("medicine_id", med.ID), zap.String("expiry_date", *med.ExpiryDate))
			continue
		}
		items = append(items, ExpiryAlert{Medicine: med, DaysLeft: int(math.Round(expiry.Sub(today).Hours() / 24))})
	}
	sort.SliceStable(items, func(i, j int) bool { return *items[i].ExpiryDate < *items[j].ExpiryDate })

	return &ExpiryReport{Date: today.Format(domain.DateLayout), Until: until, Items: items}, nil
}

func (s *Service) storageError(op string, err error) error {
	s.logger.Error("report query failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s: %w", op, err)
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
