/*
bill.go - The immutable per-period bill snapshot

PURPOSE:
  A Bill freezes what a flat owed for one period at the moment of
  generation: the current month's charges, the per-head debt carried
  forward from strictly earlier periods, and the flat's pre-system legacy
  balance attributed at that time.

CRITICAL INVARIANTS:
  1. AT MOST ONE bill per (flatNumber, period).
  2. CONSERVATION: totalAmount == sum(baseCharges)
     + sum(outstandingBreakdown) + legacyOutstanding, fixed at generation.
  3. APPEND-ONLY: baseCharges, outstandingBreakdown and totalAmount never
     change after creation. Only Status changes, and only through the
     status machine. The payment path never touches monetary fields.

WHY SNAPSHOTS?
  The charge configuration is a singleton that changes over time. Bills
  store the resolved amounts they were generated with, so historical
  statements stay correct after every rate change.

CONSTRUCTION:
  Bills are built through BillBuilder, which computes the derived total
  itself. There is no way to hand-set totalAmount out of step with the
  breakdown.
*/
package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// BILL STATUS
// =============================================================================

// BillStatus is the settlement state of a bill. See status.go for the
// transition function.
type BillStatus string

const (
	StatusPending BillStatus = "pending"
	StatusPartial BillStatus = "partial"
	StatusPaid    BillStatus = "paid"
)

func (s BillStatus) IsValid() bool {
	return s == StatusPending || s == StatusPartial || s == StatusPaid
}

// =============================================================================
// BILL
// =============================================================================

// Bill is an immutable per-period snapshot for one flat.
//
// BaseCharges is nil only for bills imported from before head tracking
// existed; such bills need the backfill migration (see backfill.go) before
// the outstanding calculator will accept them without a fallback table.
type Bill struct {
	ID         BillID
	BillNumber string // BILL-YYYY-MM-NNN, sequential per period
	FlatNumber string
	Period     Period

	// Current-month charges only.
	BaseCharges HeadAmounts

	// Per-head unpaid amounts carried forward from strictly earlier
	// periods, computed once at generation time.
	OutstandingBreakdown HeadAmounts

	// The flat's pre-system debt attributed at generation time.
	LegacyOutstanding decimal.Decimal

	// Derived: sum of the three components above. Never recomputed after
	// generation.
	TotalAmount decimal.Decimal

	Status        BillStatus
	GeneratedDate time.Time
	DueDate       time.Time
}

// CurrentCharges returns the sum of the bill's base charges.
func (b Bill) CurrentCharges() decimal.Decimal { return b.BaseCharges.Total() }

// CarriedForward returns the sum of the carried-forward breakdown.
func (b Bill) CarriedForward() decimal.Decimal { return b.OutstandingBreakdown.Total() }

// CheckConservation verifies the conservation invariant. A violation means
// the record was corrupted outside the generator.
func (b Bill) CheckConservation() error {
	expect := b.CurrentCharges().Add(b.CarriedForward()).Add(b.LegacyOutstanding)
	if !expect.Equal(b.TotalAmount) {
		return fmt.Errorf("bill %s: total %s != components %s", b.ID, b.TotalAmount, expect)
	}
	return nil
}

// HasBaseCharges reports whether the bill carries per-head history.
func (b Bill) HasBaseCharges() bool { return b.BaseCharges != nil }

// =============================================================================
// BILL BUILDER - The only way monetary fields get set
// =============================================================================

// BillBuilder assembles a bill snapshot. Build derives TotalAmount from the
// components, so the conservation invariant holds by construction.
type BillBuilder struct {
	flatNumber  string
	period      Period
	billNumber  string
	base        HeadAmounts
	outstanding HeadAmounts
	legacy      decimal.Decimal
	generated   time.Time
	due         time.Time
}

// NewBillBuilder starts a bill for a (flat, period) pair.
func NewBillBuilder(flatNumber string, period Period) *BillBuilder {
	return &BillBuilder{flatNumber: flatNumber, period: period}
}

func (bb *BillBuilder) BillNumber(n string) *BillBuilder { bb.billNumber = n; return bb }

func (bb *BillBuilder) BaseCharges(ha HeadAmounts) *BillBuilder {
	bb.base = ha.Clone()
	return bb
}

func (bb *BillBuilder) Outstanding(ha HeadAmounts, legacy decimal.Decimal) *BillBuilder {
	bb.outstanding = ha.Clone()
	bb.legacy = legacy
	return bb
}

func (bb *BillBuilder) GeneratedAt(t time.Time) *BillBuilder { bb.generated = t; return bb }
func (bb *BillBuilder) DueAt(t time.Time) *BillBuilder       { bb.due = t; return bb }

// Build finalizes the snapshot. Amounts are rounded to 2 decimal places
// here, at the boundary, and nowhere earlier.
func (bb *BillBuilder) Build() Bill {
	base := bb.base.Round()
	outstanding := bb.outstanding.Round()
	legacy := bb.legacy.Round(2)
	if base == nil {
		base = HeadAmounts{}
	}
	if outstanding == nil {
		outstanding = HeadAmounts{}
	}
	generated := bb.generated
	if generated.IsZero() {
		generated = time.Now().UTC()
	}
	return Bill{
		ID:                   BillID(uuid.NewString()),
		BillNumber:           bb.billNumber,
		FlatNumber:           bb.flatNumber,
		Period:               bb.period,
		BaseCharges:          base,
		OutstandingBreakdown: outstanding,
		LegacyOutstanding:    legacy,
		TotalAmount:          base.Total().Add(outstanding.Total()).Add(legacy),
		Status:               StatusPending,
		GeneratedDate:        generated,
		DueDate:              bb.due,
	}
}

// FormatBillNumber renders the per-period display number for a sequence.
func FormatBillNumber(period Period, seq int) string {
	return fmt.Sprintf("BILL-%s-%03d", period, seq)
}

// FormatReceiptNumber renders the per-period receipt number for a sequence.
func FormatReceiptNumber(period Period, seq int) string {
	return fmt.Sprintf("RCPT-%s-%03d", period, seq)
}
