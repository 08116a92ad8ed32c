package domain

import "github.com/shopspring/decimal"

// Ledger is the derived balance of a single cash request. It is recomputed
// from the expense and return rows on every read, never stored.
//
// Returned counts confirmed returns only. Pending counts submitted but not
// yet confirmed returns; they already reduce the spendable remainder
// (otherwise two concurrent submissions could both pass the overdraw guard)
// but are not reported as returned until a director confirms them.
type Ledger struct {
	Approved decimal.Decimal `json:"approved"`
	Spent    decimal.Decimal `json:"spent"`
	Returned decimal.Decimal `json:"returned"`
	Pending  decimal.Decimal `json:"pending"`
}

// NewLedger derives the ledger for a request
func NewLedger(approved, spent, returned, pending decimal.Decimal) Ledger {
	return Ledger{Approved: approved, Spent: spent, Returned: returned, Pending: pending}
}

// Remainder is the spendable/outstanding balance
func (l Ledger) Remainder() decimal.Decimal {
	return l.Approved.Sub(l.Spent).Sub(l.Returned).Sub(l.Pending)
}

// Reconciled reports whether the request can be closed without force
func (l Ledger) Reconciled() bool {
	return l.Remainder().Sign() <= 0
}

// CanReturn reports whether a return of amount fits into the remainder
func (l Ledger) CanReturn(amount decimal.Decimal) bool {
	return amount.LessThanOrEqual(l.Remainder())
}

// ValidateAmount checks a client-supplied money value at the boundary:
// strictly positive, at most two decimal places.
func ValidateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return Invalid("amount must be greater than 0")
	}
	if d.Exponent() < -2 {
		return Invalid("amount must have at most two decimal places")
	}
	return nil
}
