/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Validation errors are detected at the Generator/Allocator boundary
  before any persistence write; nothing partially commits.

ERROR CATEGORIES:
  1. Generation errors - missing configuration, duplicate or out-of-order periods
  2. Payment errors - breakdown mismatches, unmatched payments
  3. Record errors - missing flats/bills/payments, legacy data gaps

USAGE:
  Callers branch with errors.Is():

    if errors.Is(err, billing.ErrDuplicatePeriod) {
        // ask the operator to confirm regeneration
    }

  Structured variants carry the flat, period and head involved so failures
  are actionable.
*/
package billing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMissingConfiguration is returned when bill generation is attempted
	// with no charge configuration. Fatal to that operation.
	ErrMissingConfiguration = errors.New("no charge configuration")

	// ErrDuplicatePeriod is returned when a bill already exists for the
	// (flat, period) pair. Recoverable: regeneration requires explicit
	// caller confirmation.
	ErrDuplicatePeriod = errors.New("bill already exists for flat and period")

	// ErrOutOfOrderGeneration is returned when a later period already has a
	// bill while an earlier one is being generated. Generating out of order
	// would freeze an incomplete carry-forward into the later bill.
	ErrOutOfOrderGeneration = errors.New("out-of-order bill generation")

	// ErrHeadBreakdownMismatch is returned when a payment's head breakdown
	// does not sum to its amount. The payment is rejected, not accepted
	// with a warning.
	ErrHeadBreakdownMismatch = errors.New("head breakdown does not sum to payment amount")

	// ErrInvalidAmount is returned when a payment's amount is zero or
	// negative. Reversals go through ReversePayment, never through a
	// negative payment.
	ErrInvalidAmount = errors.New("payment amount must be positive")

	// ErrUnmatchedPayment is returned when no bill matched a payment by any
	// rule. The payment is surfaced as a reviewable item, not discarded.
	ErrUnmatchedPayment = errors.New("no bill matched payment")

	// ErrMissingBaseCharges is returned when a pre-head-tracking bill is
	// encountered and no legacy fallback table is configured. Treating the
	// missing heads as zero would silently understate carry-forward.
	ErrMissingBaseCharges = errors.New("bill predates head tracking and no fallback charges configured")

	// ErrFlatNotFound is returned when a referenced flat doesn't exist.
	ErrFlatNotFound = errors.New("flat not found")

	// ErrBillNotFound is returned when a referenced bill doesn't exist.
	ErrBillNotFound = errors.New("bill not found")

	// ErrPaymentNotFound is returned when a referenced payment doesn't exist.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrDuplicateFlat is returned when creating a flat whose number is taken.
	ErrDuplicateFlat = errors.New("flat number already exists")

	// ErrInvalidPeriod is returned for malformed period strings or ranges.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrImmutableBill guards the append-only contract: a bill's monetary
	// fields are set once at generation and never rewritten.
	ErrImmutableBill = errors.New("bill monetary fields are immutable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DuplicatePeriodError reports which (flat, period) already has a bill.
type DuplicatePeriodError struct {
	FlatNumber string
	Period     Period
	ExistingID BillID
}

func (e *DuplicatePeriodError) Error() string {
	return fmt.Sprintf("bill already exists for flat %s period %s (bill: %s)",
		e.FlatNumber, e.Period, e.ExistingID)
}

func (e *DuplicatePeriodError) Unwrap() error { return ErrDuplicatePeriod }

// OutOfOrderError reports an earlier-period generation attempted after a
// later period was already billed.
type OutOfOrderError struct {
	FlatNumber string
	Period     Period
	LaterBill  Period
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("cannot generate %s for flat %s: period %s is already billed",
		e.Period, e.FlatNumber, e.LaterBill)
}

func (e *OutOfOrderError) Unwrap() error { return ErrOutOfOrderGeneration }

// HeadBreakdownMismatchError reports a breakdown that doesn't sum to the
// payment amount.
type HeadBreakdownMismatchError struct {
	FlatNumber string
	Amount     decimal.Decimal
	Breakdown  decimal.Decimal
}

func (e *HeadBreakdownMismatchError) Error() string {
	return fmt.Sprintf("payment for flat %s: breakdown sums to %s but amount is %s",
		e.FlatNumber, e.Breakdown, e.Amount)
}

func (e *HeadBreakdownMismatchError) Unwrap() error { return ErrHeadBreakdownMismatch }

// UnmatchedPaymentError reports a payment that matched no bill.
type UnmatchedPaymentError struct {
	PaymentID  PaymentID
	FlatNumber string
}

func (e *UnmatchedPaymentError) Error() string {
	return fmt.Sprintf("payment %s for flat %s matched no bill", e.PaymentID, e.FlatNumber)
}

func (e *UnmatchedPaymentError) Unwrap() error { return ErrUnmatchedPayment }

// MissingBaseChargesError identifies the bill whose head history is missing.
type MissingBaseChargesError struct {
	FlatNumber string
	Period     Period
	BillID     BillID
}

func (e *MissingBaseChargesError) Error() string {
	return fmt.Sprintf("bill %s (flat %s, period %s) predates head tracking; backfill required",
		e.BillID, e.FlatNumber, e.Period)
}

func (e *MissingBaseChargesError) Unwrap() error { return ErrMissingBaseCharges }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input
// rather than an engine or store failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDuplicatePeriod) ||
		errors.Is(err, ErrOutOfOrderGeneration) ||
		errors.Is(err, ErrHeadBreakdownMismatch) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrDuplicateFlat)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFlatNotFound) ||
		errors.Is(err, ErrBillNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}
