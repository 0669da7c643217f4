package migrations

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"pharmacy/m/internal/database"
)

// Money columns are NUMERIC and timestamps are TEXT in TimestampLayout so that
// the same statements behave alike on sqlite and postgres.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id {{pk}},
            username TEXT NOT NULL UNIQUE,
            password TEXT NOT NULL,
            role TEXT NOT NULL,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            created_at TEXT NOT NULL
        )`,
	`CREATE TABLE IF NOT EXISTS medicines (
            id {{pk}},
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            price NUMERIC(12,2) NOT NULL CHECK (price >= 0),
            quantity INTEGER NOT NULL CHECK (quantity >= 0),
            expiry_date TEXT,
            manufacturer TEXT NOT NULL DEFAULT '',
            barcode TEXT UNIQUE,
            category TEXT NOT NULL DEFAULT '',
            min_stock_level INTEGER NOT NULL DEFAULT 10,
            location TEXT NOT NULL DEFAULT '',
            is_active BOOLEAN NOT NULL DEFAULT TRUE
        )`,
	`CREATE TABLE IF NOT EXISTS sales (
            id {{pk}},
            reference TEXT NOT NULL UNIQUE,
            user_id BIGINT,
            sale_date TEXT NOT NULL,
            subtotal NUMERIC(12,2) NOT NULL DEFAULT 0,
            discount_percentage NUMERIC(5,2) NOT NULL DEFAULT 0,
            discount_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
            vat_rate NUMERIC(5,4) NOT NULL,
            vat_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
            total NUMERIC(12,2) NOT NULL DEFAULT 0,
            status TEXT NOT NULL DEFAULT 'pending',
            FOREIGN KEY(user_id) REFERENCES users(id)
        )`,
	`CREATE INDEX IF NOT EXISTS idx_sales_sale_date ON sales(sale_date)`,
	`CREATE TABLE IF NOT EXISTS sale_items (
            id {{pk}},
            sale_id BIGINT NOT NULL,
            medicine_id BIGINT NOT NULL,
            quantity INTEGER NOT NULL CHECK (quantity > 0),
            unit_price NUMERIC(12,2) NOT NULL,
            line_total NUMERIC(12,2) NOT NULL,
            FOREIGN KEY(sale_id) REFERENCES sales(id),
            FOREIGN KEY(medicine_id) REFERENCES medicines(id)
        )`,
	`CREATE INDEX IF NOT EXISTS idx_sale_items_sale_id ON sale_items(sale_id)`,
	`CREATE TABLE IF NOT EXISTS suppliers (
            id {{pk}},
            name TEXT NOT NULL,
            contact TEXT NOT NULL DEFAULT '',
            address TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT ''
        )`,
	`CREATE TABLE IF NOT EXISTS purchase_orders (
            id {{pk}},
            reference TEXT NOT NULL UNIQUE,
            supplier_id BIGINT NOT NULL,
            order_date TEXT NOT NULL,
            total_amount NUMERIC(12,2) NOT NULL,
            status TEXT NOT NULL,
            received_at TEXT,
            FOREIGN KEY(supplier_id) REFERENCES suppliers(id)
        )`,
	`CREATE TABLE IF NOT EXISTS purchase_order_items (
            id {{pk}},
            order_id BIGINT NOT NULL,
            medicine_id BIGINT NOT NULL,
            quantity INTEGER NOT NULL CHECK (quantity > 0),
            unit_cost NUMERIC(12,2) NOT NULL,
            FOREIGN KEY(order_id) REFERENCES purchase_orders(id),
            FOREIGN KEY(medicine_id) REFERENCES medicines(id)
        )`,
	`CREATE TABLE IF NOT EXISTS customers (
            id {{pk}},
            name TEXT NOT NULL,
            phone TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT '',
            address TEXT NOT NULL DEFAULT '',
            loyalty_points BIGINT NOT NULL DEFAULT 0,
            created_at TEXT NOT NULL
        )`,
	`CREATE TABLE IF NOT EXISTS customer_purchases (
            id {{pk}},
            customer_id BIGINT NOT NULL,
            sale_id BIGINT NOT NULL UNIQUE,
            points_earned BIGINT NOT NULL DEFAULT 0,
            FOREIGN KEY(customer_id) REFERENCES customers(id),
            FOREIGN KEY(sale_id) REFERENCES sales(id)
        )`,
}

// required lists every column the services read or write.
var required = map[string][]string{
	"users":                {"id", "username", "password", "role", "is_active", "created_at"},
	"medicines":            {"id", "name", "description", "price", "quantity", "expiry_date", "manufacturer", "barcode", "category", "min_stock_level", "location", "is_active"},
	"sales":                {"id", "reference", "user_id", "sale_date", "subtotal", "discount_percentage", "discount_amount", "vat_rate", "vat_amount", "total", "status"},
	"sale_items":           {"id", "sale_id", "medicine_id", "quantity", "unit_price", "line_total"},
	"suppliers":            {"id", "name", "contact", "address", "email"},
	"purchase_orders":      {"id", "reference", "supplier_id", "order_date", "total_amount", "status", "received_at"},
	"purchase_order_items": {"id", "order_id", "medicine_id", "quantity", "unit_cost"},
	"customers":            {"id", "name", "phone", "email", "address", "loyalty_points", "created_at"},
	"customer_purchases":   {"id", "customer_id", "sale_id", "points_earned"},
}

// Run creates the database schema required for the pharmacy backend.
func Run(ctx context.Context, db *sqlx.DB) error {
	pk := "BIGSERIAL PRIMARY KEY"
	if database.IsSQLite(db) {
		pk = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, strings.ReplaceAll(stmt, "{{pk}}", pk)); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Check verifies that every table and column used by the services exists. It
// never alters the schema.
func Check(ctx context.Context, db *sqlx.DB) error {
	for table, cols := range required {
		query := fmt.Sprintf("SELECT %s FROM %s WHERE 1 = 0", strings.Join(cols, ", "), table)
		rows, err := db.QueryContext(ctx, query)
		if err != nil {
			return fmt.Errorf("table %s: %w", table, database.Classify(err))
		}
		rows.Close()
	}
	return nil
}
