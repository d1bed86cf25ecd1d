/*
status.go - Bill status state machine

PURPOSE:
  The only place a bill's status is derived. The transition function is pure:
  given the bill's frozen total and the sum of payments attributed to it, the
  status follows. It is re-evaluated from scratch every time the bill's
  attributed-payment set changes - applying a payment, reversing one, or
  deleting one - never incrementally patched, so it cannot drift.

STATES:
  pending -> partial -> paid, and the reverse transitions when a payment is
  reversed or edited downward. "paid" is not terminal: reversal reopens it.
*/
package billing

import "github.com/shopspring/decimal"

// ResolveStatus derives a bill's settlement status from its frozen total and
// the sum of attributed payments.
//
//	paid    when attributed >= total
//	partial when 0 < attributed < total
//	pending otherwise
//
// A zero-total bill with no payments reads as paid: there is nothing to
// settle.
func ResolveStatus(total, attributed decimal.Decimal) BillStatus {
	if attributed.GreaterThanOrEqual(total) && total.IsPositive() {
		return StatusPaid
	}
	if !total.IsPositive() {
		// Degenerate zero-amount bill.
		return StatusPaid
	}
	if attributed.IsPositive() {
		return StatusPartial
	}
	return StatusPending
}

// AttributedPaid sums the bill-targeted allocations for one bill. Negative
// sums (which would indicate a reversal bug) clamp to zero so settlement is
// never reported negative.
func AttributedPaid(allocs []Allocation) decimal.Decimal {
	return maxZero(SumAllocations(allocs))
}
