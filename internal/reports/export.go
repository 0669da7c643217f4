package reports

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/tealeg/xlsx"

	"pharmacy/m/domain"
	"pharmacy/m/internal/pricing"
)

var (
	salesHeader     = []string{"Sale ID", "Reference", "Date", "Medicine", "Quantity", "Unit Price", "Line Total"}
	expiryHeader    = []string{"ID", "Name", "Barcode", "Quantity", "Expiry Date", "Days Left", "Manufacturer"}
	inventoryHeader = []string{"ID", "Name", "Category", "Manufacturer", "Barcode", "Quantity", "Min Stock", "Price", "Stock Value", "Expiry Date", "Location"}
)

func salesRows(report *SalesReport) [][]string {
	rows := make([][]string, 0, len(report.Lines))
	for _, line := range report.Lines {
		rows = append(rows, []string{
			strconv.FormatInt(line.SaleID, 10),
			line.Reference,
			line.SaleDate.Format(domain.TimestampLayout),
			line.MedicineName,
			strconv.FormatInt(line.Quantity, 10),
			line.UnitPrice.StringFixed(pricing.Places),
			line.LineTotal.StringFixed(pricing.Places),
		})
	}
	return rows
}

func inventoryRows(report *InventoryReport) [][]string {
	rows := make([][]string, 0, len(report.Items))
	for _, med := range report.Items {
		rows = append(rows, []string{
			strconv.FormatInt(med.ID, 10),
			med.Name,
			med.Category,
			med.Manufacturer,
			deref(med.Barcode),
			strconv.FormatInt(med.Quantity, 10),
			strconv.FormatInt(med.MinStockLevel, 10),
			med.Price.StringFixed(pricing.Places),
			pricing.LineTotal(med.Price, med.Quantity).StringFixed(pricing.Places),
			deref(med.ExpiryDate),
			med.Location,
		})
	}
	return rows
}

func expiryRows(report *ExpiryReport) [][]string {
	rows := make([][]string, 0, len(report.Items))
	for _, item := range report.Items {
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			item.Name,
			deref(item.Barcode),
			strconv.FormatInt(item.Quantity, 10),
			deref(item.ExpiryDate),
			strconv.Itoa(item.DaysLeft),
			item.Manufacturer,
		})
	}
	return rows
}

// ExportSalesCSV writes the report's sale lines as CSV with a header row.
func ExportSalesCSV(w io.Writer, report *SalesReport) error {
	return writeCSV(w, salesHeader, salesRows(report))
}

// ExportInventoryCSV writes one CSV row per medicine.
func ExportInventoryCSV(w io.Writer, report *InventoryReport) error {
	return writeCSV(w, inventoryHeader, inventoryRows(report))
}

func ExportExpiryCSV(w io.Writer, report *ExpiryReport) error {
	return writeCSV(w, expiryHeader, expiryRows(report))
}

func ExportSalesXLSX(w io.Writer, report *SalesReport) error {
	return writeXLSX(w, "Sales", salesHeader, salesRows(report))
}

func ExportInventoryXLSX(w io.Writer, report *InventoryReport) error {
	return writeXLSX(w, "Inventory", inventoryHeader, inventoryRows(report))
}

func ExportExpiryXLSX(w io.Writer, report *ExpiryReport) error {
	return writeXLSX(w, "Expiry", expiryHeader, expiryRows(report))
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}

func writeXLSX(w io.Writer, sheetName string, header []string, rows [][]string) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet(sheetName)
	if err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}
	headerRow := sheet.AddRow()
	for _, h := range header {
		headerRow.AddCell().SetString(h)
	}
	for _, values := range rows {
		row := sheet.AddRow()
		for _, v := range values {
			row.AddCell().SetString(v)
		}
	}
	if err := file.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
