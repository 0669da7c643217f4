package billing

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"pharmacy/m/domain"
	"pharmacy/m/internal/database"
	"pharmacy/m/internal/database/dbtest"
)

var vat = decimal.RequireFromString("0.15")

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestService(t *testing.T, storage Storage, c *clock) *Service {
	t.Helper()
	opts := Options{VATRate: vat, Location: time.UTC, Timeout: 5 * time.Second}
	if c != nil {
		opts.Now = c.Now
	}
	svc, err := NewService(storage, opts, zaptest.NewLogger(t))
	require.NoError(t, err)
	return svc
}

func setup(t *testing.T) (*Service, *sqlx.DB, *clock) {
	t.Helper()
	db := dbtest.Migrated(t)
	c := &clock{now: time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)}
	return newTestService(t, NewSQLStorage(db), c), db, c
}

func countRows(t *testing.T, db *sqlx.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM "+table))
	return n
}

func TestNewServiceRejectsBadVATRate(t *testing.T) {
	_, err := NewService(&stubStorage{}, Options{VATRate: dec("1.2")}, nil)
	assert.Error(t, err)
}

func TestCreateSale(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	paracetamol := dbtest.InsertMedicine(t, db, "Paracetamol", "12.50", 20)
	amoxicillin := dbtest.InsertMedicine(t, db, "Amoxicillin", "25.00", 5)

	result, err := svc.CreateSale(ctx, []CartLine{
		{MedicineID: paracetamol, Quantity: 2},
		{MedicineID: amoxicillin, Quantity: 3},
	}, dec("10"))
	require.NoError(t, err)

	assert.NotZero(t, result.SaleID)
	assert.Regexp(t, `^INV-[0-9A-F-]{36}$`, result.Reference)
	assert.Equal(t, "100.00", result.Totals.Subtotal.StringFixed(2))
	assert.Equal(t, "10.00", result.Totals.DiscountAmount.StringFixed(2))
	assert.Equal(t, "13.50", result.Totals.VATAmount.StringFixed(2))
	assert.Equal(t, "103.50", result.Totals.Total.StringFixed(2))
	require.Len(t, result.Items, 2)

	assert.Equal(t, int64(18), dbtest.Quantity(t, db, paracetamol))
	assert.Equal(t, int64(2), dbtest.Quantity(t, db, amoxicillin))

	detail, err := svc.GetSaleDetail(ctx, result.SaleID)
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusCompleted, detail.Sale.Status)
	assert.True(t, detail.Sale.Total.Equal(dec("103.50")))
	assert.True(t, detail.Sale.VATRate.Equal(vat))
	assert.Equal(t, result.Reference, detail.Sale.Reference)
	assert.Nil(t, detail.Sale.UserID)
	require.Len(t, detail.Items, 2)
	assert.Equal(t, "Paracetamol", detail.Items[0].MedicineName)
	assert.True(t, detail.Items[0].LineTotal.Equal(dec("25")))
	assert.Equal(t, "Amoxicillin", detail.Items[1].MedicineName)
	assert.True(t, detail.Items[1].LineTotal.Equal(dec("75")))
}

func TestCreateSaleCoalescesDuplicateLines(t *testing.T) {
	svc, db, _ := setup(t)
	id := dbtest.InsertMedicine(t, db, "Ibuprofen", "4.00", 5)

	_, err := svc.CreateSale(context.Background(), []CartLine{
		{MedicineID: id, Quantity: 3},
		{MedicineID: id, Quantity: 4},
	}, decimal.Zero)

	require.ErrorIs(t, err, ErrInsufficientStock)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(7), stockErr.Requested)
	assert.Equal(t, int64(5), stockErr.Available)
	assert.Equal(t, int64(5), dbtest.Quantity(t, db, id))
	assert.Zero(t, countRows(t, db, "sales"))
}

func TestCreateSaleMergesLinesIntoOneItem(t *testing.T) {
	svc, db, _ := setup(t)
	id := dbtest.InsertMedicine(t, db, "Ibuprofen", "4.00", 5)

	result, err := svc.CreateSale(context.Background(), []CartLine{
		{MedicineID: id, Quantity: 2},
		{MedicineID: id, Quantity: 3},
	}, decimal.Zero)
	require.NoError(t, err)

	require.Len(t, result.Items, 1)
	assert.Equal(t, int64(5), result.Items[0].Quantity)
	assert.Zero(t, dbtest.Quantity(t, db, id))
	assert.Equal(t, 1, countRows(t, db, "sale_items"))
}

func TestCreateSaleRollsBackEveryLine(t *testing.T) {
	svc, db, _ := setup(t)
	plenty := dbtest.InsertMedicine(t, db, "Cetirizine", "3.00", 10)
	scarce := dbtest.InsertMedicine(t, db, "Insulin", "40.00", 1)

	_, err := svc.CreateSale(context.Background(), []CartLine{
		{MedicineID: plenty, Quantity: 2},
		{MedicineID: scarce, Quantity: 3},
	}, decimal.Zero)

	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, int64(10), dbtest.Quantity(t, db, plenty))
	assert.Equal(t, int64(1), dbtest.Quantity(t, db, scarce))
	assert.Zero(t, countRows(t, db, "sales"))
	assert.Zero(t, countRows(t, db, "sale_items"))
}

func TestCreateSaleMedicineNotFound(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	id := dbtest.InsertMedicine(t, db, "Old stock", "1.00", 10)
	_, err := db.Exec(`UPDATE medicines SET is_active = FALSE WHERE id = ?`, id)
	require.NoError(t, err)

	for _, missing := range []int64{id, 9999} {
		_, err := svc.CreateSale(ctx, []CartLine{{MedicineID: missing, Quantity: 1}}, decimal.Zero)
		require.ErrorIs(t, err, ErrMedicineNotFound)
		var nf *MedicineNotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, missing, nf.MedicineID)
	}
	assert.Equal(t, int64(10), dbtest.Quantity(t, db, id))
}

func TestCreateSaleConcurrentLastUnit(t *testing.T) {
	svc, db, _ := setup(t)
	id := dbtest.InsertMedicine(t, db, "Epinephrine", "90.00", 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateSale(context.Background(), []CartLine{{MedicineID: id, Quantity: 1}}, decimal.Zero)
		}(i)
	}
	wg.Wait()

	succeeded, outOfStock := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientStock):
			outOfStock++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, outOfStock)
	assert.Zero(t, dbtest.Quantity(t, db, id))
	assert.Equal(t, 1, countRows(t, db, "sales"))
}

func TestCreateSaleRejectsBadInputWithoutStorage(t *testing.T) {
	tests := []struct {
		name     string
		lines    []CartLine
		discount string
		target   error
	}{
		{"empty cart", nil, "0", ErrEmptyCart},
		{"empty slice", []CartLine{}, "0", ErrEmptyCart},
		{"zero quantity", []CartLine{{MedicineID: 1, Quantity: 0}}, "0", ErrValidation},
		{"negative quantity", []CartLine{{MedicineID: 1, Quantity: -2}}, "0", ErrValidation},
		{"bad medicine id", []CartLine{{MedicineID: 0, Quantity: 1}}, "0", ErrValidation},
		{"discount above 100", []CartLine{{MedicineID: 1, Quantity: 1}}, "100.5", ErrValidation},
		{"negative discount", []CartLine{{MedicineID: 1, Quantity: 1}}, "-1", ErrValidation},
		{"merged quantity overflows", []CartLine{{MedicineID: 1, Quantity: math.MaxInt64}, {MedicineID: 1, Quantity: 2}}, "0", ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := &stubStorage{}
			svc := newTestService(t, storage, nil)

			_, err := svc.CreateSale(context.Background(), tt.lines, dec(tt.discount))

			require.ErrorIs(t, err, tt.target)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Zero(t, storage.calls)
		})
	}
}

func TestCreateSaleOverflowingCartLeavesStock(t *testing.T) {
	svc, db, _ := setup(t)
	id := dbtest.InsertMedicine(t, db, "Saline", "0.00", 5)

	_, err := svc.CreateSale(context.Background(), []CartLine{
		{MedicineID: id, Quantity: math.MaxInt64},
		{MedicineID: id, Quantity: 2},
	}, decimal.Zero)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "quantity overflows", verr.Reason)
	assert.NotErrorIs(t, err, ErrPersistence)
	assert.EqualValues(t, 5, dbtest.Quantity(t, db, id))
	assert.Zero(t, countRows(t, db, "sales"))
}

func TestGetSaleDetailKeepsPriceSnapshot(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	id := dbtest.InsertMedicine(t, db, "Omeprazole", "7.25", 10)

	result, err := svc.CreateSale(ctx, []CartLine{{MedicineID: id, Quantity: 2}}, decimal.Zero)
	require.NoError(t, err)

	_, err = db.Exec(`UPDATE medicines SET price = '9.99' WHERE id = ?`, id)
	require.NoError(t, err)

	detail, err := svc.GetSaleDetail(ctx, result.SaleID)
	require.NoError(t, err)
	require.Len(t, detail.Items, 1)
	assert.True(t, detail.Items[0].UnitPrice.Equal(dec("7.25")), detail.Items[0].UnitPrice.String())
	assert.True(t, detail.Items[0].LineTotal.Equal(dec("14.50")))
}

func TestGetSaleDetailNotFound(t *testing.T) {
	svc, _, _ := setup(t)
	_, err := svc.GetSaleDetail(context.Background(), 404)
	assert.ErrorIs(t, err, ErrSaleNotFound)
}

func TestCreateSaleRecordsCashier(t *testing.T) {
	svc, db, _ := setup(t)
	var userID int64
	require.NoError(t, db.QueryRowx(`INSERT INTO users (username, password, role, created_at) VALUES ('sara', 'x', 'pharmacist', '2026-01-01 00:00:00') RETURNING id`).Scan(&userID))
	med := dbtest.InsertMedicine(t, db, "Saline", "2.00", 3)

	ctx := WithCashier(context.Background(), userID)
	result, err := svc.CreateSale(ctx, []CartLine{{MedicineID: med, Quantity: 1}}, decimal.Zero)
	require.NoError(t, err)

	detail, err := svc.GetSaleDetail(context.Background(), result.SaleID)
	require.NoError(t, err)
	require.NotNil(t, detail.Sale.UserID)
	assert.Equal(t, userID, *detail.Sale.UserID)
}

func TestSalesForPeriodAndDailySales(t *testing.T) {
	svc, db, c := setup(t)
	ctx := context.Background()
	id := dbtest.InsertMedicine(t, db, "Vitamin C", "10.00", 100)

	days := []time.Time{
		time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 2, 23, 59, 59, 0, time.UTC),
		time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC),
	}
	for _, day := range days {
		c.Set(day)
		_, err := svc.CreateSale(ctx, []CartLine{{MedicineID: id, Quantity: 1}}, decimal.Zero)
		require.NoError(t, err)
	}

	sales, err := svc.GetSalesForPeriod(ctx, days[0], time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, sales, 3)
	assert.True(t, sales[0].SaleDate.Equal(days[1]), "newest first")
	assert.True(t, sales[2].SaleDate.Equal(days[0]))

	daily, err := svc.DailySales(ctx, days[1])
	require.NoError(t, err)
	assert.Equal(t, int64(2), daily.Count)
	assert.Equal(t, "23.00", daily.Total.StringFixed(2))
	assert.Equal(t, "3.00", daily.VATAmount.StringFixed(2))

	total, err := svc.SalesTotal(ctx, days[0], days[3])
	require.NoError(t, err)
	assert.Equal(t, int64(4), total.Count)
	assert.Equal(t, "46.00", total.Total.StringFixed(2))
	assert.Equal(t, "11.50", total.Average().StringFixed(2))

	empty, err := svc.DailySales(ctx, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, empty.Count)
	assert.True(t, empty.Total.IsZero())

	_, err = svc.GetSalesForPeriod(ctx, days[3], days[0])
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateSaleFailsLoudlyOnUnmigratedSchema(t *testing.T) {
	svc, db, _ := setup(t)
	id := dbtest.InsertMedicine(t, db, "Aspirin", "1.50", 10)

	// An older sale_items table without the price snapshot columns.
	_, err := db.Exec(`DROP TABLE sale_items`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE sale_items (id INTEGER PRIMARY KEY AUTOINCREMENT, sale_id INTEGER NOT NULL, medicine_id INTEGER NOT NULL, quantity INTEGER NOT NULL)`)
	require.NoError(t, err)

	_, err = svc.CreateSale(context.Background(), []CartLine{{MedicineID: id, Quantity: 1}}, decimal.Zero)

	require.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, database.ErrSchemaNotMigrated)
	var pErr *PersistenceError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, "insert sale item", pErr.Op)
	assert.Equal(t, int64(10), dbtest.Quantity(t, db, id))
	assert.Zero(t, countRows(t, db, "sales"))
}

func TestCreateSaleCommitFailureRollsBack(t *testing.T) {
	tx := &stubTx{
		meds:      map[int64]domain.Medicine{1: {ID: 1, Name: "Zinc", Price: dec("2"), Quantity: 4}},
		commitErr: errors.New("disk I/O error"),
	}
	storage := &stubStorage{tx: tx}
	svc := newTestService(t, storage, nil)

	_, err := svc.CreateSale(context.Background(), []CartLine{{MedicineID: 1, Quantity: 1}}, decimal.Zero)

	require.ErrorIs(t, err, ErrPersistence)
	assert.Contains(t, err.Error(), "commit sale")
	assert.True(t, tx.rolledBack)
}

func TestCreateSaleTimeoutIsPersistenceError(t *testing.T) {
	storage := &stubStorage{beginErr: context.DeadlineExceeded}
	svc := newTestService(t, storage, nil)

	_, err := svc.CreateSale(context.Background(), []CartLine{{MedicineID: 1, Quantity: 1}}, decimal.Zero)

	require.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out")
}

func TestCreateSaleGuardedDecrement(t *testing.T) {
	tx := &stubTx{
		meds:         map[int64]domain.Medicine{1: {ID: 1, Name: "Zinc", Price: dec("2"), Quantity: 4}},
		refuseUpdate: true,
	}
	svc := newTestService(t, &stubStorage{tx: tx}, nil)

	_, err := svc.CreateSale(context.Background(), []CartLine{{MedicineID: 1, Quantity: 2}}, decimal.Zero)

	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
}

type stubStorage struct {
	calls    int
	beginErr error
	tx       *stubTx
}

func (s *stubStorage) Begin(context.Context) (Tx, error) {
	s.calls++
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	return s.tx, nil
}

func (s *stubStorage) ListSales(context.Context, time.Time, time.Time) ([]domain.Sale, error) {
	s.calls++
	return nil, nil
}

func (s *stubStorage) GetSale(context.Context, int64) (domain.Sale, error) {
	s.calls++
	return domain.Sale{}, database.ErrNotFound
}

func (s *stubStorage) ListSaleItems(context.Context, int64) ([]domain.SaleItemDetail, error) {
	s.calls++
	return nil, nil
}

func (s *stubStorage) Summarize(context.Context, time.Time, time.Time) (domain.SalesSummary, error) {
	s.calls++
	return domain.SalesSummary{}, nil
}

type stubTx struct {
	meds         map[int64]domain.Medicine
	commitErr    error
	refuseUpdate bool
	nextID       int64
	committed    bool
	rolledBack   bool
}

func (t *stubTx) MedicineForUpdate(_ context.Context, id int64) (domain.Medicine, error) {
	med, ok := t.meds[id]
	if !ok {
		return domain.Medicine{}, database.ErrNotFound
	}
	return med, nil
}

func (t *stubTx) InsertSale(_ context.Context, sale *domain.Sale) error {
	t.nextID++
	sale.ID = t.nextID
	return nil
}

func (t *stubTx) InsertSaleItem(_ context.Context, item *domain.SaleItem) error {
	t.nextID++
	item.ID = t.nextID
	return nil
}

func (t *stubTx) DecrementStock(context.Context, int64, int64) (bool, error) {
	return !t.refuseUpdate, nil
}

func (t *stubTx) Commit() error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *stubTx) Rollback() error {
	t.rolledBack = true
	return nil
}
