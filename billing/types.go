/*
Package billing provides the maintenance billing reconciliation engine.

PURPOSE:
  This package contains the types and algorithms that manage monthly
  maintenance billing for a housing society: per-flat charge computation,
  head-by-head carry-forward of unpaid amounts across billing periods, and
  reconciliation of recorded payments against outstanding bills.

KEY CONCEPTS IN THIS FILE (types.go):
  - Head: An enumerated charge component (maintenance, sinking fund, ...)
  - HeadAmounts: A per-head money table used for charges and breakdowns
  - BillID/PaymentID/AllocationID: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Immutability: Bills are snapshots; monetary fields never change after
     generation. Corrections happen through allocations, never edits.
  2. Precision: Uses decimal.Decimal to avoid floating-point errors.
  3. Conservation: Every bill satisfies
     totalAmount == sum(baseCharges) + sum(outstandingBreakdown) + legacy.
  4. Explicit allocation: Payment-to-bill attribution is a stored record,
     never re-guessed on read.

SEE ALSO:
  - period.go: The YYYY-MM billing cycle value type
  - outstanding.go: Carry-forward computation
  - generator.go: Bill snapshot generation
  - allocator.go: Payment-to-bill matching and waterfall allocation
*/
package billing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// HEAD - Enumerated charge component
// =============================================================================

// Head identifies one named component of a bill. Heads are a closed set;
// user-facing labels are classified into this set exactly once, at payment
// intake, and never re-parsed afterwards.
type Head string

const (
	HeadMaintenance         Head = "maintenance"
	HeadSinkingFund         Head = "sinkingFund"
	HeadParking             Head = "parking"
	HeadFestival            Head = "festival"
	HeadBuildingMaintenance Head = "buildingMaintenance"
	HeadOccupancy           Head = "occupancy"
	HeadNonOccupancy        Head = "nonOccupancy"
	HeadNOC                 Head = "noc"

	// HeadLegacy is a pseudo-head for a flat's pre-system debt. It never
	// appears in a bill's base charges; it exists so payments and allocations
	// can target the legacy balance.
	HeadLegacy Head = "legacy"
)

// BillHeads lists every head that can appear in a bill's base charges,
// in display order.
var BillHeads = []Head{
	HeadMaintenance,
	HeadSinkingFund,
	HeadParking,
	HeadFestival,
	HeadBuildingMaintenance,
	HeadOccupancy,
	HeadNonOccupancy,
	HeadNOC,
}

// IsValid reports whether h is a known head (including the legacy pseudo-head).
func (h Head) IsValid() bool {
	switch h {
	case HeadMaintenance, HeadSinkingFund, HeadParking, HeadFestival,
		HeadBuildingMaintenance, HeadOccupancy, HeadNonOccupancy, HeadNOC, HeadLegacy:
		return true
	}
	return false
}

// ClassifyHead maps a free-text label (as found on historical payment
// breakdowns) onto an enumerated head. Matching is case-insensitive and
// most-specific-wins: a label containing "building" classifies as
// buildingMaintenance even when it also contains "maintenance".
//
// Returns ok=false for labels that match no head; callers decide whether
// that is an error or an unclassified bucket.
func ClassifyHead(label string) (Head, bool) {
	s := strings.ToLower(strings.TrimSpace(label))
	if s == "" {
		return "", false
	}
	switch {
	case strings.Contains(s, "building"):
		return HeadBuildingMaintenance, true
	case strings.Contains(s, "sinking"):
		return HeadSinkingFund, true
	case strings.Contains(s, "parking"):
		return HeadParking, true
	case strings.Contains(s, "festival"):
		return HeadFestival, true
	case strings.Contains(s, "non-occupancy"), strings.Contains(s, "non occupancy"),
		strings.Contains(s, "nonoccupancy"):
		return HeadNonOccupancy, true
	case strings.Contains(s, "occupancy"):
		return HeadOccupancy, true
	case strings.Contains(s, "noc"):
		return HeadNOC, true
	case strings.Contains(s, "legacy"), strings.Contains(s, "previous"),
		strings.Contains(s, "arrears"):
		return HeadLegacy, true
	case strings.Contains(s, "maintenance"):
		return HeadMaintenance, true
	}
	return "", false
}

// =============================================================================
// HEAD AMOUNTS - Per-head money table
// =============================================================================

// HeadAmounts maps heads to amounts. Used for base charges, outstanding
// breakdowns and per-head payment totals. A nil map reads as all-zero.
type HeadAmounts map[Head]decimal.Decimal

// Get returns the amount for a head, zero when absent.
func (ha HeadAmounts) Get(h Head) decimal.Decimal {
	if ha == nil {
		return decimal.Zero
	}
	return ha[h]
}

// Add accumulates amount onto a head, allocating the map if needed.
func (ha *HeadAmounts) Add(h Head, amount decimal.Decimal) {
	if *ha == nil {
		*ha = make(HeadAmounts)
	}
	(*ha)[h] = (*ha)[h].Add(amount)
}

// Total sums every head.
func (ha HeadAmounts) Total() decimal.Decimal {
	total := decimal.Zero
	for _, v := range ha {
		total = total.Add(v)
	}
	return total
}

// Round returns a copy with every amount rounded to 2 decimal places.
// Rounding happens once, at the end of a computation, never in the middle.
func (ha HeadAmounts) Round() HeadAmounts {
	if ha == nil {
		return nil
	}
	out := make(HeadAmounts, len(ha))
	for h, v := range ha {
		out[h] = v.Round(2)
	}
	return out
}

// Clone returns an independent copy.
func (ha HeadAmounts) Clone() HeadAmounts {
	if ha == nil {
		return nil
	}
	out := make(HeadAmounts, len(ha))
	for h, v := range ha {
		out[h] = v
	}
	return out
}

// IsZero reports whether every head is zero (or the table is empty).
func (ha HeadAmounts) IsZero() bool {
	for _, v := range ha {
		if !v.IsZero() {
			return false
		}
	}
	return true
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	BillID       string
	PaymentID    string
	AllocationID string
)

// MustDecimal parses a decimal literal, returning zero on malformed input.
// For constants and test fixtures only.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// maxZero clamps a negative amount to zero. Outstanding amounts are never
// negative: overpayment surfaces as a legacy credit, not negative debt.
func maxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
