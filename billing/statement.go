/*
statement.go - Read-only accessors for document rendering

PURPOSE:
  A renderer (receipt printer, statement exporter) needs the head-wise
  story of a bill or a flat - current charges vs carried-forward vs legacy,
  and which payments settled what - without re-running the allocator.
  Everything here is reconstructed from stored records: bills are
  snapshots, allocations are the settlement truth.
*/
package billing

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BILL STATEMENT
// =============================================================================

// BillStatement is the renderable view of one bill.
type BillStatement struct {
	Bill Bill

	// Settlement reconstructed from allocations.
	AttributedPaid decimal.Decimal
	Balance        decimal.Decimal
	Allocations    []Allocation
}

// FlatStatement is the renderable view of a flat's account.
type FlatStatement struct {
	Flat  Flat
	Bills []BillStatement

	// Payments with no allocations: recorded money awaiting review.
	UnallocatedPayments []Payment

	// Legacy position.
	LegacyPrincipal decimal.Decimal
	LegacyCredits   decimal.Decimal
	LegacyRemaining decimal.Decimal

	TotalBilled decimal.Decimal
	TotalPaid   decimal.Decimal
}

// StatementReader builds renderable views from the store.
type StatementReader struct {
	Store Store
}

// BillStatement returns the head-wise settlement view of one bill. The
// paid figure is effective: money attributed directly plus the share of
// the bill's carried component settled against earlier bills.
func (sr *StatementReader) BillStatement(ctx context.Context, id BillID) (*BillStatement, error) {
	bill, err := sr.Store.GetBill(ctx, id)
	if err != nil {
		return nil, err
	}
	ledger, err := LoadFlatLedger(ctx, sr.Store, bill.FlatNumber)
	if err != nil {
		return nil, err
	}
	return sr.billStatement(ctx, *bill, ledger)
}

func (sr *StatementReader) billStatement(ctx context.Context, bill Bill, ledger *FlatLedger) (*BillStatement, error) {
	allocs, err := sr.Store.AllocationsByBill(ctx, bill.ID)
	if err != nil {
		return nil, err
	}
	return &BillStatement{
		Bill:           bill,
		AttributedPaid: ledger.EffectivePaid(bill),
		Balance:        ledger.EffectiveDue(bill),
		Allocations:    allocs,
	}, nil
}

// FlatStatement returns the full account view for a flat.
func (sr *StatementReader) FlatStatement(ctx context.Context, flatNumber string) (*FlatStatement, error) {
	flat, err := sr.Store.GetFlat(ctx, flatNumber)
	if err != nil {
		return nil, err
	}
	bills, err := sr.Store.BillsByFlat(ctx, flatNumber)
	if err != nil {
		return nil, err
	}
	payments, err := sr.Store.PaymentsByFlat(ctx, flatNumber)
	if err != nil {
		return nil, err
	}

	ledger, err := LoadFlatLedger(ctx, sr.Store, flatNumber)
	if err != nil {
		return nil, err
	}

	st := &FlatStatement{
		Flat:            *flat,
		LegacyPrincipal: flat.LegacyOutstanding,
		LegacyCredits:   ledger.LegacyCredits(),
	}
	for _, b := range bills {
		bs, err := sr.billStatement(ctx, b, ledger)
		if err != nil {
			return nil, err
		}
		st.Bills = append(st.Bills, *bs)
		st.TotalBilled = st.TotalBilled.Add(b.CurrentCharges())
	}

	for _, p := range payments {
		allocs, err := sr.Store.AllocationsByPayment(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if len(allocs) == 0 {
			st.UnallocatedPayments = append(st.UnallocatedPayments, p)
		}
		st.TotalPaid = st.TotalPaid.Add(p.Amount)
	}
	st.LegacyRemaining = maxZero(st.LegacyPrincipal.Sub(st.LegacyCredits))
	return st, nil
}

// Receipt is the renderable view of one payment with its resolved
// allocations.
type Receipt struct {
	Payment     Payment
	Allocations []Allocation
	Allocated   decimal.Decimal
	Unallocated decimal.Decimal
}

// Receipt returns the settlement view of one payment.
func (sr *StatementReader) Receipt(ctx context.Context, id PaymentID) (*Receipt, error) {
	payment, err := sr.Store.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	allocs, err := sr.Store.AllocationsByPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	allocated := SumAllocations(allocs)
	return &Receipt{
		Payment:     *payment,
		Allocations: allocs,
		Allocated:   allocated,
		Unallocated: maxZero(payment.Amount.Sub(allocated)),
	}, nil
}
