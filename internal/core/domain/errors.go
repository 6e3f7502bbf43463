package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks requests rejected before any transaction starts.
	ErrValidation = errors.New("validation error")

	ErrProductNotFound = errors.New("product not found")
	ErrSaleNotFound    = errors.New("sale not found")

	// ErrStockConflict covers both a failed stock check and a concurrent
	// modification. The effect of either is a full rollback.
	ErrStockConflict     = errors.New("insufficient stock or conflict")
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", ErrStockConflict)
	ErrVersionConflict   = fmt.Errorf("%w: version conflict", ErrStockConflict)

	// ErrSaleExists is returned by storage when the sale id uniqueness
	// constraint rejects an insert.
	ErrSaleExists = errors.New("sale already exists")

	// ErrProductExists is returned by storage when two writers create the
	// same product concurrently.
	ErrProductExists = errors.New("product already exists")

	// ErrSaleInFlight is returned when another request holds the idempotency
	// lock for the same sale id.
	ErrSaleInFlight = errors.New("sale with the same id is being processed")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// LineError attaches the failing line to a stock or lookup error.
type LineError struct {
	LineNo    int
	ProductID int64
	Err       error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d (product %d): %v", e.LineNo, e.ProductID, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether redriving the whole transaction may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrProductExists)
}
