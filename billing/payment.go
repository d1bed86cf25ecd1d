package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PAYMENT - A recorded receipt from a flat
// =============================================================================

// PaymentMode is how the money arrived.
type PaymentMode string

const (
	ModeCash     PaymentMode = "cash"
	ModeCheque   PaymentMode = "cheque"
	ModeTransfer PaymentMode = "transfer"
	ModeUPI      PaymentMode = "upi"
)

// HeadEntry is one line of an explicit head breakdown on a payment.
// The Label is the free text the operator entered; Head is its classified
// form, resolved once at intake.
type HeadEntry struct {
	Label  string
	Head   Head
	Amount decimal.Decimal
}

// Payment records money received from a flat. Payments are logically
// immutable once recorded: edits and deletions are compensating operations
// that reverse the payment's allocations and re-derive bill status, never
// direct mutation of bill totals.
//
// Period information, in decreasing specificity:
//   - Period: a single-period tag
//   - MaintenancePeriod / ParkingPeriod: inclusive month ranges for
//     category-scoped advance payments
//   - Date: the receipt date, whose month is the fallback match
type Payment struct {
	ID            PaymentID
	ReceiptNumber string // RCPT-YYYY-MM-NNN, sequential per period
	FlatNumber    string
	Amount        decimal.Decimal
	Date          time.Time
	Mode          PaymentMode

	// Optional explicit breakdown; must sum to Amount when present.
	HeadBreakdown []HeadEntry

	// Optional period tag ("" period means untagged).
	Period Period

	// Optional category-scoped ranges for multi-month advances.
	MaintenancePeriod *PeriodRange
	ParkingPeriod     *PeriodRange
}

// HasBreakdown reports whether the payment carries an explicit breakdown.
func (p Payment) HasBreakdown() bool { return len(p.HeadBreakdown) > 0 }

// BreakdownTotal sums the breakdown entries.
func (p Payment) BreakdownTotal() decimal.Decimal {
	total := decimal.Zero
	for _, e := range p.HeadBreakdown {
		total = total.Add(e.Amount)
	}
	return total
}

// Validate checks the payment before it is recorded. A breakdown that does
// not sum to the amount is a hard rejection, not a warning.
func (p *Payment) Validate() error {
	if p.FlatNumber == "" {
		return ErrFlatNotFound
	}
	if !p.Amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, p.Amount)
	}
	if p.HasBreakdown() {
		if !p.BreakdownTotal().Equal(p.Amount) {
			return &HeadBreakdownMismatchError{
				FlatNumber: p.FlatNumber,
				Amount:     p.Amount,
				Breakdown:  p.BreakdownTotal(),
			}
		}
	}
	for _, r := range []*PeriodRange{p.MaintenancePeriod, p.ParkingPeriod} {
		if r != nil && !r.Valid() {
			return ErrInvalidPeriod
		}
	}
	return nil
}

// ClassifyBreakdown resolves every breakdown entry's label onto the head
// enum in place. Entries with an already-set head are left alone; labels
// that match nothing stay unclassified (empty head) and are treated as an
// unclassified bucket by the outstanding calculator.
func (p *Payment) ClassifyBreakdown() {
	for i := range p.HeadBreakdown {
		e := &p.HeadBreakdown[i]
		if e.Head != "" && e.Head.IsValid() {
			continue
		}
		if h, ok := ClassifyHead(e.Label); ok {
			e.Head = h
		} else if h, ok := ClassifyHead(string(e.Head)); ok {
			// Head fields imported from legacy data may carry raw labels.
			e.Head = h
		} else {
			e.Head = ""
		}
	}
}

// PerHead aggregates the classified breakdown into a per-head table plus an
// unclassified remainder. Payments with no breakdown are entirely
// unclassified.
func (p Payment) PerHead() (heads HeadAmounts, unclassified decimal.Decimal) {
	if !p.HasBreakdown() {
		return nil, p.Amount
	}
	heads = make(HeadAmounts)
	for _, e := range p.HeadBreakdown {
		if e.Head == "" {
			unclassified = unclassified.Add(e.Amount)
			continue
		}
		heads.Add(e.Head, e.Amount)
	}
	return heads, unclassified
}
