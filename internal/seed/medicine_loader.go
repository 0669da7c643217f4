package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pharmacy/m/domain"
	"pharmacy/m/internal/database"
)

// Column order of the catalogue CSV, after its header row.
const (
	colName = iota
	colDescription
	colPrice
	colQuantity
	colExpiryDate
	colManufacturer
	colBarcode
	colCategory
	colMinStockLevel
	numColumns
)

// LoadMedicines ingests the CSV into an empty medicines table. Bad rows are
// logged and skipped, and rows whose barcode already exists are ignored. A
// missing file is not an error.
func LoadMedicines(ctx context.Context, db *sqlx.DB, csvPath string, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	file, err := os.Open(csvPath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("medicine catalog not found, skipping seed", zap.String("path", csvPath))
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("unable to load medicine catalog %s: %w", csvPath, err)
	}
	defer file.Close()

	var existing int64
	if err := db.GetContext(ctx, &existing, `SELECT COUNT(*) FROM medicines`); err != nil {
		return 0, database.Classify(err)
	}
	if existing > 0 {
		logger.Info("medicine catalog already populated, skipping seed", zap.Int64("medicines", existing))
		return 0, nil
	}

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	// Skip header
	if _, err := reader.Read(); err != nil {
		return 0, fmt.Errorf("unable to read medicine header: %w", err)
	}

	rows := 0
	err = database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, tx.Rebind(`INSERT INTO medicines (name, description, price, quantity, expiry_date, manufacturer, barcode, category, min_stock_level, is_active)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, TRUE) ON CONFLICT (barcode) DO NOTHING`))
		if err != nil {
			return fmt.Errorf("unable to prepare medicine insert: %w", database.Classify(err))
		}
		defer stmt.Close()

		line := 1
		for {
			record, err := reader.Read()
			if err == io.EOF {
				break
			}
			line++
			if err != nil {
				logger.Warn("unable to read medicine row", zap.Int("line", line), zap.Error(err))
				continue
			}
			med, err := parseRecord(record)
			if err != nil {
				logger.Warn("skipping medicine row", zap.Int("line", line), zap.Error(err))
				continue
			}
			res, err := stmt.ExecContext(ctx, med.Name, med.Description, med.Price, med.Quantity, med.ExpiryDate,
				med.Manufacturer, med.Barcode, med.Category, med.MinStockLevel)
			if err != nil {
				return fmt.Errorf("unable to insert medicine %s: %w", med.Name, database.Classify(err))
			}
			if n, _ := res.RowsAffected(); n > 0 {
				rows++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	logger.Info("seeded medicine catalog", zap.Int("rows", rows), zap.String("path", csvPath))
	return rows, nil
}

func parseRecord(record []string) (domain.Medicine, error) {
	if len(record) < numColumns {
		return domain.Medicine{}, fmt.Errorf("expected %d columns, got %d", numColumns, len(record))
	}
	for i := range record {
		record[i] = strings.TrimSpace(record[i])
	}
	med := domain.Medicine{
		Name:          record[colName],
		Description:   record[colDescription],
		Manufacturer:  record[colManufacturer],
		Category:      record[colCategory],
		MinStockLevel: domain.DefaultMinStockLevel,
	}
	if med.Name == "" {
		return domain.Medicine{}, errors.New("name is empty")
	}
	price, err := decimal.NewFromString(record[colPrice])
	if err != nil || price.IsNegative() {
		return domain.Medicine{}, fmt.Errorf("invalid price %q", record[colPrice])
	}
	med.Price = price.Round(2)
	if med.Quantity, err = strconv.ParseInt(record[colQuantity], 10, 64); err != nil || med.Quantity < 0 {
		return domain.Medicine{}, fmt.Errorf("invalid quantity %q", record[colQuantity])
	}
	if v := record[colExpiryDate]; v != "" {
		if !domain.ValidDate(v) {
			return domain.Medicine{}, fmt.Errorf("invalid expiry date %q", v)
		}
		med.ExpiryDate = &v
	}
	if v := record[colBarcode]; v != "" {
		med.Barcode = &v
	}
	if v := record[colMinStockLevel]; v != "" {
		if med.MinStockLevel, err = strconv.ParseInt(v, 10, 64); err != nil || med.MinStockLevel < 0 {
			return domain.Medicine{}, fmt.Errorf("invalid min stock level %q", v)
		}
	}
	return med, nil
}
