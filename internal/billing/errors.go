package billing

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. Every error CreateSale returns matches exactly one.
var (
	ErrValidation        = errors.New("invalid sale request")
	ErrMedicineNotFound  = errors.New("medicine not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPersistence       = errors.New("sale storage failed")

	ErrSaleNotFound = errors.New("sale not found")
)

// ErrEmptyCart is returned for a sale request without lines.
var ErrEmptyCart = &ValidationError{Field: "lines", Reason: "cart is empty"}

// ValidationError is a caller mistake detected before storage is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type MedicineNotFoundError struct {
	MedicineID int64
}

func (e *MedicineNotFoundError) Error() string {
	return fmt.Sprintf("medicine %d not found", e.MedicineID)
}

func (e *MedicineNotFoundError) Is(target error) bool { return target == ErrMedicineNotFound }

type InsufficientStockError struct {
	MedicineID int64
	Name       string
	Requested  int64
	Available  int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for medicine %d (%s): requested %d, available %d",
		e.MedicineID, e.Name, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// PersistenceError wraps a storage failure. Op names the step that failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
