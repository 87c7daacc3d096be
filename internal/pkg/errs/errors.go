// internal/pkg/errs/errors.go
// Package errs defines the typed error taxonomy shared by the stock,
// reservation, order and fulfillment services.
package errs

import (
	"errors"
	"fmt"
)

// ValidationError indicates malformed input rejected before any
// transaction was opened.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Validation builds a ValidationError for a named field.
func Validation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// InsufficientStockError is a business condition, not a bug: the
// requested quantity exceeds what can be committed at the location.
// Callers use it to drive backorder or transfer logic.
type InsufficientStockError struct {
	ProductID   uint
	WarehouseID uint
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d at warehouse %d: requested %d, available %d",
		e.ProductID, e.WarehouseID, e.Requested, e.Available)
}

// InvalidTransitionError indicates a state-machine guard violation.
// It is surfaced to the caller and never auto-corrected.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot move %s from %s to %s: %s", e.Entity, e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("cannot move %s from %s to %s", e.Entity, e.From, e.To)
}

// ConcurrencyConflictError indicates a transaction serialization
// failure. The whole operation is safe to retry from scratch.
type ConcurrencyConflictError struct {
	Op    string
	Cause error
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("serialization conflict during %s: %v", e.Op, e.Cause)
}

func (e *ConcurrencyConflictError) Unwrap() error { return e.Cause }

// AlreadyReleasedError indicates an attempt to act on a reservation
// that was already released. Idempotent releases treat it as success;
// other callers log it as a consistency warning.
type AlreadyReleasedError struct {
	ReservationID uint
}

func (e *AlreadyReleasedError) Error() string {
	return fmt.Sprintf("reservation %d is already released", e.ReservationID)
}

// ErrNotFound is the generic lookup failure sentinel.
var ErrNotFound = errors.New("record not found")

// IsInsufficientStock reports whether err is an InsufficientStockError.
func IsInsufficientStock(err error) bool {
	var target *InsufficientStockError
	return errors.As(err, &target)
}

// IsConflict reports whether err is a ConcurrencyConflictError.
func IsConflict(err error) bool {
	var target *ConcurrencyConflictError
	return errors.As(err, &target)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsAlreadyReleased reports whether err is an AlreadyReleasedError.
func IsAlreadyReleased(err error) bool {
	var target *AlreadyReleasedError
	return errors.As(err, &target)
}
