package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ALLOCATION - First-class payment-to-bill attribution
// =============================================================================

// Allocation attributes (part of) a payment's amount to a specific bill and
// head. Allocations are created by the allocator at apply time and deleted
// only by reversal of the same payment; reads reconstruct settlement from
// stored allocations and never re-run the matching heuristics.
//
// An allocation with an empty BillID is a flat-level legacy credit: the
// remainder of a payment after every matched bill was settled, applied
// against the flat's pre-system balance.
type Allocation struct {
	ID        AllocationID
	PaymentID PaymentID
	BillID    BillID // empty = legacy credit against the flat
	Head      Head
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// IsLegacyCredit reports whether this allocation targets the flat's legacy
// balance rather than a bill.
func (a Allocation) IsLegacyCredit() bool { return a.BillID == "" }

func newAllocation(paymentID PaymentID, billID BillID, head Head, amount decimal.Decimal, at time.Time) Allocation {
	return Allocation{
		ID:        AllocationID(uuid.NewString()),
		PaymentID: paymentID,
		BillID:    billID,
		Head:      head,
		Amount:    amount,
		CreatedAt: at,
	}
}

// SumAllocations totals a set of allocations.
func SumAllocations(allocs []Allocation) decimal.Decimal {
	total := decimal.Zero
	for _, a := range allocs {
		total = total.Add(a.Amount)
	}
	return total
}

// AllocationsByBill groups bill-targeted allocations by bill id. Legacy
// credits are excluded.
func AllocationsByBill(allocs []Allocation) map[BillID][]Allocation {
	out := make(map[BillID][]Allocation)
	for _, a := range allocs {
		if a.IsLegacyCredit() {
			continue
		}
		out[a.BillID] = append(out[a.BillID], a)
	}
	return out
}
