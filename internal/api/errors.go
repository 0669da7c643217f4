package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"pharmacy/m/internal/auth"
	"pharmacy/m/internal/billing"
	"pharmacy/m/internal/customers"
	"pharmacy/m/internal/database"
	"pharmacy/m/internal/inventory"
	"pharmacy/m/internal/reports"
	"pharmacy/m/internal/suppliers"
)

var statusErrors = []struct {
	status int
	errs   []error
}{
	{http.StatusBadRequest, []error{
		billing.ErrValidation, inventory.ErrInvalidMedicine, suppliers.ErrInvalidSupplier,
		suppliers.ErrInvalidPurchaseOrder, auth.ErrInvalidUser, reports.ErrInvalidPeriod,
		customers.ErrInvalidCustomer,
	}},
	{http.StatusUnauthorized, []error{auth.ErrInvalidCredentials, auth.ErrInvalidToken}},
	{http.StatusNotFound, []error{
		billing.ErrMedicineNotFound, billing.ErrSaleNotFound, inventory.ErrMedicineNotFound,
		suppliers.ErrSupplierNotFound, suppliers.ErrPurchaseOrderNotFound, auth.ErrUserNotFound,
		customers.ErrCustomerNotFound, customers.ErrSaleNotFound,
	}},
	{http.StatusConflict, []error{
		billing.ErrInsufficientStock, inventory.ErrDuplicateBarcode, suppliers.ErrSupplierHasOrders,
		suppliers.ErrInvalidTransition, auth.ErrUserExists, customers.ErrSaleAlreadyLinked,
	}},
	{http.StatusServiceUnavailable, []error{billing.ErrPersistence, database.ErrSchemaNotMigrated}},
}

func statusFor(err error) int {
	for _, group := range statusErrors {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.status
			}
		}
	}
	return http.StatusInternalServerError
}

// respondServiceError maps a service error onto a status. Unexpected errors
// are logged and reported without detail.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	switch {
	case status == http.StatusInternalServerError:
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		respondError(w, status, "internal server error")
	case status == http.StatusServiceUnavailable:
		h.logger.Error("storage unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		respondError(w, status, "storage unavailable, try again")
	default:
		respondError(w, status, err.Error())
	}
}
