package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"pharmacy/m/domain"
	"pharmacy/m/internal/api"
	"pharmacy/m/internal/auth"
	"pharmacy/m/internal/billing"
	"pharmacy/m/internal/customers"
	"pharmacy/m/internal/database/dbtest"
	"pharmacy/m/internal/inventory"
	"pharmacy/m/internal/reports"
	"pharmacy/m/internal/suppliers"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
	db      *sqlx.DB
	users   *auth.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := dbtest.Migrated(t)
	logger := zaptest.NewLogger(t)

	users := auth.NewService(auth.NewSQLStorage(db), auth.Options{Secret: "test", BcryptCost: bcrypt.MinCost}, logger)
	sales, err := billing.NewService(billing.NewSQLStorage(db), billing.Options{
		VATRate:  decimal.RequireFromString("0.15"),
		Location: time.UTC,
	}, logger)
	require.NoError(t, err)
	svc := api.Services{
		Auth:      users,
		Customers: customers.NewService(customers.NewSQLStorage(db), customers.Options{}, logger),
		Inventory: inventory.NewService(inventory.NewSQLStorage(db), inventory.Options{Location: time.UTC}, logger),
		Billing:   sales,
		Suppliers: suppliers.NewService(suppliers.NewSQLStorage(db), suppliers.Options{}, logger),
		Reports:   reports.NewService(reports.NewSQLStorage(db), sales, reports.Options{Location: time.UTC}, logger),
	}
	return &testServer{
		t:       t,
		handler: api.New(svc, logger, time.UTC, nil).Router(),
		db:      db,
		users:   users,
	}
}

// token creates a user with role and logs in over HTTP.
func (s *testServer) token(username, role string) string {
	s.t.Helper()
	_, err := s.users.CreateUser(context.Background(), username, "password123", role)
	require.NoError(s.t, err)

	rec := s.do(http.MethodPost, "/auth/login", "", map[string]string{"username": username, "password": "password123"})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Token string      `json:"token"`
		User  domain.User `json:"user"`
	}
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(s.t, role, resp.User.Role)
	return resp.Token
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCORSCredentialsOnlyForExplicitOrigins(t *testing.T) {
	corsHeaders := func(origins []string) http.Header {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://shop.example")
		rec := httptest.NewRecorder()
		api.New(api.Services{}, zaptest.NewLogger(t), time.UTC, origins).Router().ServeHTTP(rec, req)
		return rec.Header()
	}

	wildcard := corsHeaders(nil)
	assert.Empty(t, wildcard.Get("Access-Control-Allow-Credentials"))
	assert.NotEqual(t, "https://shop.example", wildcard.Get("Access-Control-Allow-Origin"))

	explicit := corsHeaders([]string{"https://shop.example"})
	assert.Equal(t, "true", explicit.Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "https://shop.example", explicit.Get("Access-Control-Allow-Origin"))

	other := corsHeaders([]string{"https://pos.example"})
	assert.Empty(t, other.Get("Access-Control-Allow-Origin"))
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/medicines", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/medicines", "garbage", nil).Code)

	rec := s.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "nobody", "password": "password123"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	pharmacist := s.token("sara", domain.RolePharmacist)
	rec = s.do(http.MethodPost, "/auth/users", pharmacist, map[string]string{"username": "x", "password": "password123"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := s.token("root", domain.RoleAdmin)
	rec = s.do(http.MethodPost, "/auth/users", admin, map[string]string{"username": "newbie", "password": "password123"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, domain.RolePharmacist, decode[domain.User](t, rec).Role)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = s.do(http.MethodPost, "/auth/users", admin, map[string]string{"username": "newbie", "password": "password123"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/auth/reset-password", pharmacist, map[string]string{"new_password": "brand-new-pass"})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "sara", "password": "brand-new-pass"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMedicineEndpoints(t *testing.T) {
	s := newTestServer(t)
	token := s.token("sara", domain.RolePharmacist)

	rec := s.do(http.MethodPost, "/medicines", token, map[string]any{"name": "Paracetamol", "price": "2.50", "quantity": 3, "barcode": "111"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	med := decode[domain.Medicine](t, rec)

	rec = s.do(http.MethodPost, "/medicines", token, map[string]any{"name": "Copy", "price": "1", "barcode": "111"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = s.do(http.MethodPost, "/medicines", token, map[string]any{"name": "", "price": "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, fmt.Sprintf("/medicines/%d", med.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Paracetamol", decode[domain.Medicine](t, rec).Name)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/medicines/999", token, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/medicines/abc", token, nil).Code)

	rec = s.do(http.MethodPut, fmt.Sprintf("/medicines/%d", med.ID), token, map[string]any{"category": "Analgesic"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Analgesic", decode[domain.Medicine](t, rec).Category)

	rec = s.do(http.MethodPost, fmt.Sprintf("/medicines/%d/stock", med.ID), token, map[string]any{"delta": 4})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(7), dbtest.Quantity(t, s.db, med.ID))
	rec = s.do(http.MethodPost, fmt.Sprintf("/medicines/%d/stock", med.ID), token, map[string]any{"quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), dbtest.Quantity(t, s.db, med.ID))
	rec = s.do(http.MethodPost, fmt.Sprintf("/medicines/%d/stock", med.ID), token, map[string]any{"quantity": 2, "delta": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/medicines/alerts/low-stock", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Medicine](t, rec), 1)

	rec = s.do(http.MethodGet, "/medicines?query=para", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Medicine](t, rec), 1)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, fmt.Sprintf("/medicines/%d", med.ID), token, nil).Code)
	admin := s.token("root", domain.RoleAdmin)
	assert.Equal(t, http.StatusOK, s.do(http.MethodDelete, fmt.Sprintf("/medicines/%d", med.ID), admin, nil).Code)
}

func TestSaleEndpoints(t *testing.T) {
	s := newTestServer(t)
	token := s.token("sara", domain.RolePharmacist)
	id := dbtest.InsertMedicine(t, s.db, "Amoxicillin", "25.00", 4)

	rec := s.do(http.MethodPost, "/sales", token, map[string]any{
		"items":               []map[string]any{{"medicine_id": id, "quantity": 4}},
		"discount_percentage": "10",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decode[billing.SaleResult](t, rec)
	assert.Equal(t, "103.50", result.Totals.Total.StringFixed(2))
	assert.Zero(t, dbtest.Quantity(t, s.db, id))

	rec = s.do(http.MethodGet, fmt.Sprintf("/sales/%d", result.SaleID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[domain.SaleDetail](t, rec)
	require.NotNil(t, detail.Sale.UserID, "cashier comes from the token")
	require.Len(t, detail.Items, 1)
	assert.Equal(t, "Amoxicillin", detail.Items[0].MedicineName)

	rec = s.do(http.MethodPost, "/sales", token, map[string]any{"items": []map[string]any{{"medicine_id": id, "quantity": 1}}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = s.do(http.MethodPost, "/sales", token, map[string]any{"items": []map[string]any{{"medicine_id": 999, "quantity": 1}}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(http.MethodPost, "/sales", token, map[string]any{"items": []map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/sales/999", token, nil).Code)

	rec = s.do(http.MethodGet, "/sales", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Sale](t, rec), 1)

	rec = s.do(http.MethodGet, "/sales/daily", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/sales?start_date=yesterday", token, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/sales?start_date=2026-02-02&end_date=2026-02-01", token, nil).Code)
}

func TestSupplierEndpoints(t *testing.T) {
	s := newTestServer(t)
	admin := s.token("root", domain.RoleAdmin)
	id := dbtest.InsertMedicine(t, s.db, "Insulin", "40.00", 0)

	rec := s.do(http.MethodPost, "/suppliers", admin, map[string]any{"name": "Acme"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	supplier := decode[domain.Supplier](t, rec)

	rec = s.do(http.MethodPost, fmt.Sprintf("/suppliers/%d/purchase-orders", supplier.ID), admin, map[string]any{
		"items": []map[string]any{{"medicine_id": id, "quantity": 12, "unit_cost": "30.00"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[suppliers.OrderDetail](t, rec)
	assert.Equal(t, "360.00", order.TotalAmount.StringFixed(2))

	rec = s.do(http.MethodPost, fmt.Sprintf("/purchase-orders/%d/receive", order.ID), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(12), dbtest.Quantity(t, s.db, id))
	rec = s.do(http.MethodPost, fmt.Sprintf("/purchase-orders/%d/receive", order.ID), admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodGet, fmt.Sprintf("/suppliers/%d/purchase-orders", supplier.ID), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.PurchaseOrder](t, rec), 1)

	assert.Equal(t, http.StatusConflict, s.do(http.MethodDelete, fmt.Sprintf("/suppliers/%d", supplier.ID), admin, nil).Code)

	pharmacist := s.token("sara", domain.RolePharmacist)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/suppliers", pharmacist, map[string]any{"name": "Beta"}).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/suppliers", pharmacist, nil).Code)
}

func TestReportEndpoints(t *testing.T) {
	s := newTestServer(t)
	token := s.token("sara", domain.RolePharmacist)
	id := dbtest.InsertMedicine(t, s.db, "Zinc", "5.00", 10)
	rec := s.do(http.MethodPost, "/sales", token, map[string]any{"items": []map[string]any{{"medicine_id": id, "quantity": 2}}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/reports/sales", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[reports.SalesReport](t, rec)
	assert.Equal(t, int64(1), report.Summary.Count)
	require.Len(t, report.TopProducts, 1)

	rec = s.do(http.MethodGet, "/reports/inventory", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(8), decode[reports.InventoryReport](t, rec).Summary.TotalUnits)

	rec = s.do(http.MethodGet, "/reports/sales/export", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Sale ID,Reference,Date"))

	rec = s.do(http.MethodGet, "/reports/inventory/export?format=xlsx", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/reports/sales/export?format=pdf", token, nil).Code)

	rec = s.do(http.MethodGet, "/reports/profit-loss", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pl := decode[reports.ProfitLossReport](t, rec)
	assert.Equal(t, "11.50", pl.TotalSales.StringFixed(2))
	assert.Equal(t, "11.50", pl.NetProfit.StringFixed(2))

	soon := dbtest.InsertMedicine(t, s.db, "Eye drops", "3.00", 4)
	_, err := s.db.Exec(`UPDATE medicines SET expiry_date = ? WHERE id = ?`, time.Now().UTC().AddDate(0, 0, 3).Format(domain.DateLayout), soon)
	require.NoError(t, err)

	rec = s.do(http.MethodGet, "/reports/expiry?days=7", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	expiry := decode[reports.ExpiryReport](t, rec)
	require.Len(t, expiry.Items, 1)
	assert.Equal(t, "Eye drops", expiry.Items[0].Name)

	rec = s.do(http.MethodGet, "/reports/expiry/export", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "expiry_")
	assert.Contains(t, rec.Body.String(), "Eye drops")

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/reports/expiry?days=-1", token, nil).Code)
}

func TestCustomerEndpoints(t *testing.T) {
	s := newTestServer(t)
	token := s.token("sara", domain.RolePharmacist)
	med := dbtest.InsertMedicine(t, s.db, "Vitamin D", "20.00", 5)

	rec := s.do(http.MethodPost, "/customers", token, map[string]string{"name": "Mona", "phone": "0100"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	customer := decode[domain.Customer](t, rec)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/customers", token, map[string]string{"name": ""}).Code)

	rec = s.do(http.MethodPut, fmt.Sprintf("/customers/%d", customer.ID), token, map[string]string{"name": "Mona Adel", "phone": "0100"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Mona Adel", decode[domain.Customer](t, rec).Name)

	rec = s.do(http.MethodGet, "/customers?query=adel", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Customer](t, rec), 1)

	rec = s.do(http.MethodPost, "/sales", token, map[string]any{"items": []map[string]any{{"medicine_id": med, "quantity": 1}}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sale := decode[billing.SaleResult](t, rec)

	path := fmt.Sprintf("/customers/%d/purchases", customer.ID)
	rec = s.do(http.MethodPost, path, token, map[string]int64{"sale_id": sale.SaleID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, int64(23), decode[domain.CustomerPurchase](t, rec).PointsEarned)
	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, path, token, map[string]int64{"sale_id": sale.SaleID}).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, path, token, map[string]int64{"sale_id": 999}).Code)

	rec = s.do(http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.CustomerPurchase](t, rec), 1)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/customers/999", token, nil).Code)
}

func TestUnmigratedSchemaIsServiceUnavailable(t *testing.T) {
	s := newTestServer(t)
	token := s.token("sara", domain.RolePharmacist)
	id := dbtest.InsertMedicine(t, s.db, "Aspirin", "1.00", 5)
	_, err := s.db.Exec(`DROP TABLE sale_items`)
	require.NoError(t, err)

	rec := s.do(http.MethodPost, "/sales", token, map[string]any{"items": []map[string]any{{"medicine_id": id, "quantity": 1}}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, int64(5), dbtest.Quantity(t, s.db, id))
}

func TestMissingTablesAreServiceUnavailable(t *testing.T) {
	s := newTestServer(t)
	token := s.token("sara", domain.RolePharmacist)
	for _, table := range []string{"purchase_order_items", "purchase_orders", "suppliers"} {
		_, err := s.db.Exec(`DROP TABLE ` + table)
		require.NoError(t, err)
	}

	rec := s.do(http.MethodGet, "/suppliers", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "no such table")
}
