package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"pharmacy/m/internal/reports"
)

const (
	contentTypeCSV  = "text/csv"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func (h *Handler) salesReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadSalesReport(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (h *Handler) inventoryReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Reports.InventoryReport(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (h *Handler) exportSales(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadSalesReport(w, r)
	if !ok {
		return
	}
	name := fmt.Sprintf("sales_%s_%s", report.Start, report.End)
	h.export(w, r, name,
		func(out io.Writer) error { return reports.ExportSalesCSV(out, report) },
		func(out io.Writer) error { return reports.ExportSalesXLSX(out, report) },
	)
}

func (h *Handler) exportInventory(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Reports.InventoryReport(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	name := "inventory_" + time.Now().In(h.location).Format("2006-01-02")
	h.export(w, r, name,
		func(out io.Writer) error { return reports.ExportInventoryCSV(out, report) },
		func(out io.Writer) error { return reports.ExportInventoryXLSX(out, report) },
	)
}

func (h *Handler) profitLossReport(w http.ResponseWriter, r *http.Request) {
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
	report, err := h.svc.Reports.ProfitLoss(r.Context(), start, end)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (h *Handler) expiryReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadExpiryReport(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (h *Handler) exportExpiry(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadExpiryReport(w, r)
	if !ok {
		return
	}
	h.export(w, r, "expiry_"+report.Date,
		func(out io.Writer) error { return reports.ExportExpiryCSV(out, report) },
		func(out io.Writer) error { return reports.ExportExpiryXLSX(out, report) },
	)
}

// loadExpiryReport reads the optional "days" window; absent means the default.
func (h *Handler) loadExpiryReport(w http.ResponseWriter, r *http.Request) (*reports.ExpiryReport, bool) {
	var days int
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "days must be a positive integer")
			return nil, false
		}
		days = n
	}
	report, err := h.svc.Reports.ExpiryReport(r.Context(), days)
	if err != nil {
		h.respondServiceError(w, r, err)
		return nil, false
	}
	return report, true
}

func (h *Handler) loadSalesReport(w http.ResponseWriter, r *http.Request) (*reports.SalesReport, bool) {
	start, ok := h.dateParam(r, "start_date")
	if !ok {
		respondError(w, http.StatusBadRequest, "start_date must be in YYYY-MM-DD format")
		return nil, false
	}
	end, ok := h.dateParam(r, "end_date")
	if !ok {
		respondError(w, http.StatusBadRequest, "end_date must be in YYYY-MM-DD format")
		return nil, false
	}
	report, err := h.svc.Reports.SalesReport(r.Context(), start, end)
	if err != nil {
		h.respondServiceError(w, r, err)
		return nil, false
	}
	return report, true
}

// export streams a report in the format named by the "format" query value,
// csv by default.
func (h *Handler) export(w http.ResponseWriter, r *http.Request, name string, csvFn, xlsxFn func(io.Writer) error) {
	var (
		write       func(io.Writer) error
		contentType string
		ext         string
	)
	switch r.URL.Query().Get("format") {
	case "", "csv":
		write, contentType, ext = csvFn, contentTypeCSV, "csv"
	case "xlsx":
		write, contentType, ext = xlsxFn, contentTypeXLSX, "xlsx"
	default:
		respondError(w, http.StatusBadRequest, "format must be csv or xlsx")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.%s", name, ext))
	if err := write(w); err != nil {
		h.logger.Error("report export failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
}
