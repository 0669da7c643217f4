// Package dbtest opens throwaway sqlite databases for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"pharmacy/m/internal/database"
	"pharmacy/m/internal/migrations"
)

// Open returns an empty sqlite database in a temp dir, closed on cleanup.
func Open(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := database.Connect("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// Migrated returns a database with the full schema applied.
func Migrated(t *testing.T) *sqlx.DB {
	t.Helper()
	db := Open(t)
	require.NoError(t, migrations.Run(context.Background(), db))
	return db
}

// InsertMedicine adds an active medicine and returns its id.
func InsertMedicine(t *testing.T, db *sqlx.DB, name, price string, quantity int64) int64 {
	t.Helper()
	var id int64
	err := db.QueryRowx(db.Rebind(`INSERT INTO medicines (name, price, quantity, min_stock_level, is_active) VALUES (?, ?, ?, 10, TRUE) RETURNING id`),
		name, price, quantity).Scan(&id)
	require.NoError(t, err)
	return id
}

// Quantity reads a medicine's on-hand quantity.
func Quantity(t *testing.T, db *sqlx.DB, id int64) int64 {
	t.Helper()
	var qty int64
	require.NoError(t, db.Get(&qty, db.Rebind(`SELECT quantity FROM medicines WHERE id = ?`), id))
	return qty
}
