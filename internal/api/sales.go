package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"pharmacy/m/internal/billing"
)

type saleRequest struct {
	Items              []billing.CartLine `json:"items"`
	DiscountPercentage decimal.Decimal    `json:"discount_percentage"`
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.svc.Billing.CreateSale(r.Context(), req.Items, req.DiscountPercentage)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	start, ok := h.dateParam(r, "start_date")
	if !ok {
		respondError(w, http.StatusBadRequest, "start_date must be in YYYY-MM-DD format")
		return
	}
	end, ok := h.dateParam(r, "end_date")
	if !ok {
		respondError(w, http.StatusBadRequest, "end_date must be in YYYY-MM-DD format")
		return
	}
	sales, err := h.svc.Billing.GetSalesForPeriod(r.Context(), start, end)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sales)
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid sale id")
		return
	}
	detail, err := h.svc.Billing.GetSaleDetail(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

func (h *Handler) dailySales(w http.ResponseWriter, r *http.Request) {
	day, ok := h.dateParam(r, "date")
	if !ok {
		respondError(w, http.StatusBadRequest, "date must be in YYYY-MM-DD format")
		return
	}
	summary, err := h.svc.Billing.DailySales(r.Context(), day)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"summary": summary,
		"average": summary.Average(),
	})
}
