package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Common domain errors
var (
	ErrRequestNotFound = errors.New("cash request not found")
	ErrExpenseNotFound = errors.New("expense not found")
	ErrReturnNotFound  = errors.New("return not found")
	ErrReceiptNotFound = errors.New("receipt not found")
	ErrWorkNotFound    = errors.New("work not found")
	ErrForbidden       = errors.New("forbidden")

	// ErrAlreadyConfirmed guards the idempotent-confirm rule: confirming
	// the same return twice succeeds once and conflicts the second time
	ErrAlreadyConfirmed = errors.New("return already confirmed")
)

// ValidationError is a rejected input, reported before anything is persisted
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Invalid builds a ValidationError
func Invalid(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// StateError is an operation attempted from a status it is not valid in
type StateError struct {
	Op       string
	Current  Status
	Expected []Status
}

func (e *StateError) Error() string {
	names := make([]string, len(e.Expected))
	for i, s := range e.Expected {
		names[i] = string(s)
	}
	return fmt.Sprintf("cannot %s: status is %s, expected %s",
		e.Op, e.Current, strings.Join(names, " or "))
}

// UnreconciledError blocks an unforced close while money is still outstanding.
// Carries the computed remainder so the caller can decide to force or reconcile.
type UnreconciledError struct {
	Remainder decimal.Decimal
}

func (e *UnreconciledError) Error() string {
	return fmt.Sprintf("cannot close: remainder %s is still outstanding", e.Remainder.String())
}
