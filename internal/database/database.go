package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a query that expects a row finds none.
	ErrNotFound = errors.New("record not found")
	// ErrSchemaNotMigrated means a table or column the code relies on is missing.
	ErrSchemaNotMigrated = errors.New("database schema not migrated")
	// ErrConflict wraps unique and foreign key violations.
	ErrConflict = errors.New("constraint violation")
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Connect opens a database for driver ("sqlite" or "pgx") using the provided DSN.
func Connect(driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if IsSQLite(db) {
		// A single connection serialises writers, so a sale's stock check and
		// decrement cannot interleave with another sale.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// IsSQLite reports whether db was opened with the sqlite driver.
func IsSQLite(db interface{ DriverName() string }) bool {
	return db.DriverName() == "sqlite"
}

// LockClause returns the row-locking suffix for SELECTs made inside a
// read-then-write transaction.
func LockClause(db interface{ DriverName() string }) string {
	if IsSQLite(db) {
		return ""
	}
	return " FOR UPDATE"
}

// Classify maps driver errors onto the package sentinels while keeping the
// original error in the chain.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if IsSchemaError(err) {
		return fmt.Errorf("%w: %w", ErrSchemaNotMigrated, err)
	}
	if IsConstraintError(err) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}

// IsSchemaError reports whether err came from a missing table or column.
func IsSchemaError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P01" || pgErr.Code == "42703"
	}
	msg := err.Error()
	return strings.Contains(msg, "no such table") || strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "has no column named")
}

// IsConstraintError reports unique and foreign key violations.
func IsConstraintError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "23")
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "FOREIGN KEY constraint failed") ||
		strings.Contains(msg, "CHECK constraint failed")
}

// IsTimeout reports whether err came from an expired or cancelled context.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// WithTx runs fn inside a transaction, rolling back on error or panic.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", Classify(err))
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", Classify(err))
	}
	return nil
}
