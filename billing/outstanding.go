/*
outstanding.go - The Outstanding Calculator

PURPOSE:
  Determines, per charge head, how much a flat still owes as of a given
  period. This is the pure center of the engine: read-only, idempotent,
  callable any number of times with identical results for the same records.

THE DOUBLE-COUNTING TRAP:
  Bills carry both the month's own charges (baseCharges) and the debt
  carried forward into them (outstandingBreakdown). Summing anything but
  baseCharges across history counts carried-forward debt once per bill it
  was carried into. The calculator therefore sums ONLY baseCharges of
  strictly earlier bills; the carry-forward chain reconstructs itself.

PAYMENT CLASSIFICATION:
  Payments with an explicit head breakdown contribute per head. Payments
  without one form an unclassified bucket that is matched against the
  flat's legacy balance first and ignored for per-head purposes beyond
  that - attributing unlabelled money to specific heads would be guessing.

PRE-HEAD BILLS:
  Bills imported from before head tracking have no baseCharges. They are
  a data-migration problem (backfill.go), not a silent zero: without a
  configured fallback table the computation fails loudly.
*/
package billing

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// OUTSTANDING - Result of the calculation
// =============================================================================

// Outstanding is a flat's unpaid position as of a period.
type Outstanding struct {
	FlatNumber string
	AsOf       Period

	// Per-head unpaid amounts from strictly earlier periods.
	PerHead HeadAmounts

	// Remaining pre-system debt.
	Legacy decimal.Decimal

	// Derived: sum of PerHead plus Legacy.
	Total decimal.Decimal
}

// =============================================================================
// CALCULATOR
// =============================================================================

// CalculatorOptions tunes the outstanding calculator.
type CalculatorOptions struct {
	// LegacyBillCharges substitutes for the baseCharges of bills that
	// predate head tracking. Nil means no fallback: encountering such a
	// bill is an error and the backfill migration is the way out.
	LegacyBillCharges HeadAmounts
}

// OutstandingCalculator computes a flat's unpaid position from historical
// bills, payments and the flat's legacy balance.
type OutstandingCalculator struct {
	Store Store
	Opts  CalculatorOptions
}

// Compute loads the flat's history and returns its outstanding position as
// of asOf. Only bills with period < asOf participate.
func (oc *OutstandingCalculator) Compute(ctx context.Context, flat Flat, asOf Period) (Outstanding, error) {
	bills, err := oc.Store.BillsByFlat(ctx, flat.FlatNumber)
	if err != nil {
		return Outstanding{}, err
	}
	payments, err := oc.Store.PaymentsByFlat(ctx, flat.FlatNumber)
	if err != nil {
		return Outstanding{}, err
	}
	return oc.ComputeFromRecords(flat, asOf, bills, payments)
}

// ComputeFromRecords is the pure core: no store access, deterministic over
// its inputs.
func (oc *OutstandingCalculator) ComputeFromRecords(flat Flat, asOf Period, bills []Bill, payments []Payment) (Outstanding, error) {
	// 1. Per-head billed totals over strictly earlier bills. Only
	//    baseCharges - never totalAmount or outstandingBreakdown.
	billed := make(HeadAmounts)
	for _, b := range bills {
		if !b.Period.Before(asOf) {
			continue
		}
		base := b.BaseCharges
		if base == nil {
			if oc.Opts.LegacyBillCharges == nil {
				return Outstanding{}, &MissingBaseChargesError{
					FlatNumber: flat.FlatNumber,
					Period:     b.Period,
					BillID:     b.ID,
				}
			}
			base = oc.Opts.LegacyBillCharges
		}
		for h, v := range base {
			billed.Add(h, v)
		}
	}

	// 2. Per-head paid totals plus the unclassified bucket.
	paid := make(HeadAmounts)
	unclassified := decimal.Zero
	legacyPaid := decimal.Zero
	for _, p := range payments {
		heads, rest := p.PerHead()
		for h, v := range heads {
			if h == HeadLegacy {
				legacyPaid = legacyPaid.Add(v)
				continue
			}
			paid.Add(h, v)
		}
		unclassified = unclassified.Add(rest)
	}

	// 3. Unclassified money settles legacy debt first; beyond that it is
	//    ignored for per-head purposes.
	legacy := flat.LegacyOutstanding.Sub(legacyPaid)
	if unclassified.IsPositive() && legacy.IsPositive() {
		applied := decimal.Min(unclassified, legacy)
		legacy = legacy.Sub(applied)
	}
	legacy = maxZero(legacy)

	// 4. Clamp per head: overpayment on one head never goes negative or
	//    bleeds into another head.
	perHead := make(HeadAmounts)
	for h, b := range billed {
		due := maxZero(b.Sub(paid.Get(h)))
		if !due.IsZero() {
			perHead[h] = due
		}
	}

	// 5. Round once, at the end.
	perHead = perHead.Round()
	legacy = legacy.Round(2)

	return Outstanding{
		FlatNumber: flat.FlatNumber,
		AsOf:       asOf,
		PerHead:    perHead,
		Legacy:     legacy,
		Total:      perHead.Total().Add(legacy),
	}, nil
}
