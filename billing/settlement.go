/*
settlement.go - Effective settlement across the carry-forward chain

PURPOSE:
  A bill's total restates earlier debt: its outstandingBreakdown and its
  legacy component duplicate amounts already owed on strictly earlier
  bills or on the flat's pre-system balance. Settlement therefore cannot
  be judged per bill in isolation - money attributed to January also
  settles the January amounts that February carried forward. The
  FlatLedger materializes one flat's allocation state and derives, per
  bill, how much counts as settled: directly attributed money plus the
  upstream-settled share of the carried component.

  The allocator's waterfall and every read path (status recomputation,
  statements) derive from the same ledger, so a member is never asked to
  pay the same rupee twice.

THE UPSTREAM POOL:
  For a bill with period P the pool is everything attributed to the
  flat's bills with period < P, plus the flat-level legacy credits. The
  settled share of the carried component is the pool capped at the
  component; direct attribution is never capped. The bill snapshot itself
  stays untouched - this is a derivation, not a mutation.
*/
package billing

import (
	"context"

	"github.com/shopspring/decimal"
)

// FlatLedger is a point-in-time view of one flat's bills and the money
// attributed to them. Bills are ordered oldest period first.
type FlatLedger struct {
	Bills []Bill

	direct        map[BillID]decimal.Decimal
	legacyCredits decimal.Decimal
}

// LoadFlatLedger reads the flat's bills, their allocations and the
// flat-level legacy credits from the store.
func LoadFlatLedger(ctx context.Context, s Store, flatNumber string) (*FlatLedger, error) {
	bills, err := s.BillsByFlat(ctx, flatNumber)
	if err != nil {
		return nil, err
	}
	l := &FlatLedger{
		Bills:  bills,
		direct: make(map[BillID]decimal.Decimal, len(bills)),
	}
	for _, b := range bills {
		allocs, err := s.AllocationsByBill(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		l.direct[b.ID] = AttributedPaid(allocs)
	}

	payments, err := s.PaymentsByFlat(ctx, flatNumber)
	if err != nil {
		return nil, err
	}
	for _, p := range payments {
		allocs, err := s.AllocationsByPayment(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		for _, a := range allocs {
			if a.IsLegacyCredit() {
				l.legacyCredits = l.legacyCredits.Add(a.Amount)
			}
		}
	}
	return l, nil
}

// Direct returns the money attributed straight to the bill.
func (l *FlatLedger) Direct(id BillID) decimal.Decimal { return l.direct[id] }

// LegacyCredits returns the total of the flat-level legacy credits.
func (l *FlatLedger) LegacyCredits() decimal.Decimal { return l.legacyCredits }

// Credit records an in-flight allocation so bills later in the same
// waterfall pass see it as upstream settlement before anything persists.
func (l *FlatLedger) Credit(id BillID, amount decimal.Decimal) {
	l.direct[id] = l.direct[id].Add(amount)
}

// upstream is the pool available to settle a bill's carried component.
func (l *FlatLedger) upstream(p Period) decimal.Decimal {
	sum := l.legacyCredits
	for _, b := range l.Bills {
		if b.Period.Before(p) {
			sum = sum.Add(l.direct[b.ID])
		}
	}
	return sum
}

// EffectivePaid returns how much of the bill counts as settled: direct
// attribution plus the upstream-settled share of the carried component,
// capped at that component.
func (l *FlatLedger) EffectivePaid(b Bill) decimal.Decimal {
	carried := b.CarriedForward().Add(b.LegacyOutstanding)
	settled := decimal.Min(carried, l.upstream(b.Period))
	return l.direct[b.ID].Add(settled)
}

// EffectiveDue returns the bill's remaining balance under EffectivePaid.
func (l *FlatLedger) EffectiveDue(b Bill) decimal.Decimal {
	return maxZero(b.TotalAmount.Sub(l.EffectivePaid(b)))
}
