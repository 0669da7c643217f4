package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"pharmacy/m/domain"
	"pharmacy/m/internal/auth"
	"pharmacy/m/internal/billing"
	"pharmacy/m/internal/customers"
	"pharmacy/m/internal/inventory"
	"pharmacy/m/internal/reports"
	"pharmacy/m/internal/suppliers"
)

// Services are the use cases the HTTP API exposes.
type Services struct {
	Auth      *auth.Service
	Customers *customers.Service
	Inventory *inventory.Service
	Billing   *billing.Service
	Suppliers *suppliers.Service
	Reports   *reports.Service
}

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	svc            Services
	logger         *zap.Logger
	location       *time.Location
	allowedOrigins []string
}

// New constructs a Handler. Query dates are read in loc.
func New(svc Services, logger *zap.Logger, loc *time.Location, allowedOrigins []string) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &Handler{svc: svc, logger: logger, location: loc, allowedOrigins: allowedOrigins}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: !slices.Contains(h.allowedOrigins, "*"),
	}))
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.login)
		r.Group(func(protected chi.Router) {
			protected.Use(h.authMiddleware)
			protected.Post("/reset-password", h.resetPassword)
			protected.With(h.requireRole(domain.RoleAdmin)).Post("/users", h.createUser)
		})
	})

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Route("/medicines", func(r chi.Router) {
			r.Get("/", h.searchMedicines)
			r.Post("/", h.addMedicine)
			r.Get("/alerts/low-stock", h.lowStock)
			r.Get("/alerts/expiring", h.expiring)
			r.Get("/{id}", h.getMedicine)
			r.Put("/{id}", h.updateMedicine)
			r.Post("/{id}/stock", h.updateStock)
			r.With(h.requireRole(domain.RoleAdmin)).Delete("/{id}", h.deactivateMedicine)
		})

		pr.Route("/sales", func(r chi.Router) {
			r.Post("/", h.createSale)
			r.Get("/", h.listSales)
			r.Get("/daily", h.dailySales)
			r.Get("/{id}", h.getSale)
		})

		pr.Route("/customers", func(r chi.Router) {
			r.Get("/", h.searchCustomers)
			r.Post("/", h.addCustomer)
			r.Get("/{id}", h.getCustomer)
			r.Put("/{id}", h.updateCustomer)
			r.Get("/{id}/purchases", h.customerPurchases)
			r.Post("/{id}/purchases", h.recordCustomerPurchase)
		})

		pr.Route("/suppliers", func(r chi.Router) {
			r.Get("/", h.listSuppliers)
			r.Get("/{id}/purchase-orders", h.listPurchaseOrders)
			r.Group(func(admin chi.Router) {
				admin.Use(h.requireRole(domain.RoleAdmin))
				admin.Post("/", h.addSupplier)
				admin.Put("/{id}", h.updateSupplier)
				admin.Delete("/{id}", h.deleteSupplier)
				admin.Post("/{id}/purchase-orders", h.createPurchaseOrder)
			})
		})
		pr.Route("/purchase-orders", func(r chi.Router) {
			r.Get("/{id}", h.getPurchaseOrder)
			r.Post("/{id}/receive", h.receivePurchaseOrder)
		})

		pr.Route("/reports", func(r chi.Router) {
			r.Get("/sales", h.salesReport)
			r.Get("/sales/export", h.exportSales)
			r.Get("/inventory", h.inventoryReport)
			r.Get("/inventory/export", h.exportInventory)
			r.Get("/profit-loss", h.profitLossReport)
			r.Get("/expiry", h.expiryReport)
			r.Get("/expiry/export", h.exportExpiry)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helpers

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// dateParam parses a YYYY-MM-DD query value in the handler's location. An
// absent value means today.
func (h *Handler) dateParam(r *http.Request, key string) (time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return time.Now().In(h.location), true
	}
	t, err := time.ParseInLocation(domain.DateLayout, raw, h.location)
	return t, err == nil
}

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
