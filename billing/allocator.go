/*
allocator.go - The Payment Allocator

PURPOSE:
  Matches a recorded payment to one or more bills, attributes money head by
  head through a stored Allocation ledger, and drives the bill status
  machine. Reversal undoes exactly the allocations a payment created - it
  never re-guesses against current state, which could attach the reversal
  to different bills than the original touched.

MATCHING (strict priority, first rule wins per bill):
  a. exact period tag:      payment.Period == bill.Period
  b. category range:        bill.Period within maintenancePeriod or
                            parkingPeriod (inclusive)
  c. date fallback:         payment date's month == bill.Period
  d. blanket:               payment has no period information at all;
                            match every bill for the flat. Last resort,
                            always accompanied by a diagnostic event.

WATERFALL:
  Matched bills are settled oldest period first. Each bill absorbs money
  up to its EFFECTIVE balance (see settlement.go): the carried-forward
  portion of a later bill restates the earlier bills' debt, so settling
  January leaves February owing only its own charges. A multi-month
  payment can never be credited twice. Whatever is left after every
  matched bill is settled becomes a flat-level legacy credit - money is
  conserved, never dropped.

MUTATION DISCIPLINE:
  The allocator writes allocations and (through the status machine) bill
  status. It never touches a bill's monetary fields.
*/
package billing

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ALLOCATOR
// =============================================================================

// Allocator applies and reverses payments against bills.
type Allocator struct {
	Store    TxStore
	Notifier Notifier
	Now      func() time.Time
}

// NewAllocator wires an allocator against a transactional store.
func NewAllocator(store TxStore) *Allocator {
	return &Allocator{
		Store:    store,
		Notifier: NopNotifier{},
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// AffectedBill reports a bill whose settlement changed under an operation.
// AttributedPaid is the effective figure: money attributed directly plus
// the upstream-settled share of the bill's carried component.
type AffectedBill struct {
	Bill           Bill
	AttributedPaid decimal.Decimal
	Status         BillStatus
}

// ApplyPayment validates, records and allocates a payment in one
// transaction. The returned slice lists every bill whose status was
// re-evaluated.
//
// A payment that matches no bill is still recorded - it surfaces through an
// UnmatchedPayment event and the review queue, with no allocations, rather
// than being discarded or force-attached somewhere wrong.
func (al *Allocator) ApplyPayment(ctx context.Context, payment Payment) ([]AffectedBill, error) {
	payment.ClassifyBreakdown()
	if err := payment.Validate(); err != nil {
		al.Notifier.Notify(Event{
			Kind:       EventValidationError,
			FlatNumber: payment.FlatNumber,
			PaymentID:  payment.ID,
			Message:    err.Error(),
			At:         al.Now(),
		})
		return nil, err
	}

	var affected []AffectedBill
	err := al.Store.WithTx(ctx, func(s Store) error {
		a, err := al.applyTx(ctx, s, &payment)
		if err != nil {
			return err
		}
		affected = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return affected, nil
}

func (al *Allocator) applyTx(ctx context.Context, s Store, payment *Payment) ([]AffectedBill, error) {
	if _, err := s.GetFlat(ctx, payment.FlatNumber); err != nil {
		return nil, err
	}

	if payment.ReceiptNumber == "" {
		rp := PeriodOf(payment.Date)
		seq, err := s.NextSequence(ctx, SeqReceipt, rp)
		if err != nil {
			return nil, err
		}
		payment.ReceiptNumber = FormatReceiptNumber(rp, seq)
	}
	if err := s.SavePayment(ctx, *payment); err != nil {
		return nil, err
	}

	bills, err := s.BillsByFlat(ctx, payment.FlatNumber)
	if err != nil {
		return nil, err
	}

	matched, blanket := matchBills(*payment, bills)
	if blanket {
		al.Notifier.Notify(Event{
			Kind:       EventBlanketMatch,
			FlatNumber: payment.FlatNumber,
			PaymentID:  payment.ID,
			Message:    "payment carries no period information; matched against all bills for the flat",
			At:         al.Now(),
		})
	}
	if len(matched) == 0 {
		// Entries explicitly labelled legacy settle the flat's pre-system
		// balance even when nothing billed matches; only the remaining
		// money waits in the review queue.
		heads, _ := payment.PerHead()
		legacyDirect := heads.Get(HeadLegacy)
		if legacyDirect.LessThan(payment.Amount) {
			al.Notifier.Notify(Event{
				Kind:       EventUnmatchedPayment,
				FlatNumber: payment.FlatNumber,
				PaymentID:  payment.ID,
				Message:    (&UnmatchedPaymentError{PaymentID: payment.ID, FlatNumber: payment.FlatNumber}).Error(),
				At:         al.Now(),
			})
		}
		if !legacyDirect.IsPositive() {
			return nil, nil
		}
		credit := newAllocation(payment.ID, "", HeadLegacy, legacyDirect, al.Now())
		if err := s.SaveAllocations(ctx, []Allocation{credit}); err != nil {
			return nil, err
		}
		return al.recomputeStatuses(ctx, s, payment.FlatNumber, nil)
	}

	allocs, err := al.waterfall(ctx, s, *payment, matched)
	if err != nil {
		return nil, err
	}
	if len(allocs) > 0 {
		if err := s.SaveAllocations(ctx, allocs); err != nil {
			return nil, err
		}
	}

	return al.recomputeStatuses(ctx, s, payment.FlatNumber, billIDs(allocs))
}

// waterfall attributes the payment's money to the matched bills oldest
// period first, then credits any remainder against the flat's legacy
// balance. Each bill absorbs at most its effective balance, so money
// settling an earlier bill is never collected again through a later
// bill's carried-forward component.
func (al *Allocator) waterfall(ctx context.Context, s Store, payment Payment, matched []Bill) ([]Allocation, error) {
	now := al.Now()

	ledger, err := LoadFlatLedger(ctx, s, payment.FlatNumber)
	if err != nil {
		return nil, err
	}

	// Split the payment into purses. Explicit legacy-head entries bypass
	// bills entirely; unlabelled money (including the whole amount of a
	// breakdown-less payment) is an undivided purse.
	headPurse := make(HeadAmounts)
	undivided := decimal.Zero
	legacyDirect := decimal.Zero
	if payment.HasBreakdown() {
		for _, e := range payment.HeadBreakdown {
			switch e.Head {
			case HeadLegacy:
				legacyDirect = legacyDirect.Add(e.Amount)
			case "":
				undivided = undivided.Add(e.Amount)
			default:
				headPurse.Add(e.Head, e.Amount)
			}
		}
	} else {
		undivided = payment.Amount
	}

	var allocs []Allocation
	for _, bill := range matched {
		due := ledger.EffectiveDue(bill)
		if !due.IsPositive() {
			continue
		}

		// Head-labelled money first, in display order for determinism.
		for _, h := range BillHeads {
			if !due.IsPositive() {
				break
			}
			avail := headPurse.Get(h)
			if !avail.IsPositive() {
				continue
			}
			take := decimal.Min(avail, due)
			allocs = append(allocs, newAllocation(payment.ID, bill.ID, h, take, now))
			ledger.Credit(bill.ID, take)
			headPurse[h] = avail.Sub(take)
			due = due.Sub(take)
		}

		// Then undivided money.
		if due.IsPositive() && undivided.IsPositive() {
			take := decimal.Min(undivided, due)
			allocs = append(allocs, newAllocation(payment.ID, bill.ID, "", take, now))
			ledger.Credit(bill.ID, take)
			undivided = undivided.Sub(take)
		}
	}

	// Remainder: explicit legacy entries plus whatever the waterfall did
	// not place. Held as a flat-level legacy credit, never dropped.
	remainder := legacyDirect.Add(undivided).Add(headPurse.Total())
	if remainder.IsPositive() {
		allocs = append(allocs, newAllocation(payment.ID, "", HeadLegacy, remainder, now))
	}

	return allocs, nil
}

// ReversePayment undoes a payment's allocations and re-runs the status
// machine for every bill they touched. Applying it twice is a no-op the
// second time: with no allocation records left there is nothing to undo.
func (al *Allocator) ReversePayment(ctx context.Context, id PaymentID) ([]AffectedBill, error) {
	var affected []AffectedBill
	err := al.Store.WithTx(ctx, func(s Store) error {
		payment, err := s.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		allocs, err := s.AllocationsByPayment(ctx, id)
		if err != nil {
			return err
		}
		if len(allocs) == 0 {
			return nil
		}
		if err := s.DeleteAllocationsByPayment(ctx, id); err != nil {
			return err
		}
		affected, err = al.recomputeStatuses(ctx, s, payment.FlatNumber, billIDs(allocs))
		return err
	})
	if err != nil {
		return nil, err
	}
	return affected, nil
}

// DeletePayment reverses a payment and removes its record, as one
// compensating transaction. Bills keep their monetary fields; only their
// status is re-derived.
func (al *Allocator) DeletePayment(ctx context.Context, id PaymentID) ([]AffectedBill, error) {
	var affected []AffectedBill
	err := al.Store.WithTx(ctx, func(s Store) error {
		payment, err := s.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		allocs, err := s.AllocationsByPayment(ctx, id)
		if err != nil {
			return err
		}
		if len(allocs) > 0 {
			if err := s.DeleteAllocationsByPayment(ctx, id); err != nil {
				return err
			}
		}
		if err := s.DeletePayment(ctx, id); err != nil {
			return err
		}
		affected, err = al.recomputeStatuses(ctx, s, payment.FlatNumber, billIDs(allocs))
		return err
	})
	if err != nil {
		return nil, err
	}
	return affected, nil
}

// ReplacePayment models a payment edit as reverse-then-reapply under one
// transaction, preserving the original id and receipt number.
func (al *Allocator) ReplacePayment(ctx context.Context, id PaymentID, updated Payment) ([]AffectedBill, error) {
	updated.ClassifyBreakdown()
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	var affected []AffectedBill
	err := al.Store.WithTx(ctx, func(s Store) error {
		existing, err := s.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		old, err := s.AllocationsByPayment(ctx, id)
		if err != nil {
			return err
		}
		if len(old) > 0 {
			if err := s.DeleteAllocationsByPayment(ctx, id); err != nil {
				return err
			}
		}
		if err := s.DeletePayment(ctx, id); err != nil {
			return err
		}
		updated.ID = id
		updated.ReceiptNumber = existing.ReceiptNumber
		reapplied, err := al.applyTx(ctx, s, &updated)
		if err != nil {
			return err
		}
		// Bills the old allocations touched but the new ones did not still
		// need their status re-derived.
		affected, err = al.recomputeStatuses(ctx, s, existing.FlatNumber, billIDs(old))
		if err != nil {
			return err
		}
		affected = mergeAffected(affected, reapplied)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return affected, nil
}

// recomputeStatuses re-derives every bill of the flat from the full
// allocation ledger. Settling an earlier bill changes the effective
// position of every later bill that carried its debt, so recomputation is
// always flat-wide, never per-bill. The returned slice holds the seeded
// bills plus any bill whose status changed, oldest period first.
func (al *Allocator) recomputeStatuses(ctx context.Context, s Store, flatNumber string, seed []BillID) ([]AffectedBill, error) {
	ledger, err := LoadFlatLedger(ctx, s, flatNumber)
	if err != nil {
		return nil, err
	}
	seeded := make(map[BillID]bool, len(seed))
	for _, id := range seed {
		seeded[id] = true
	}

	var affected []AffectedBill
	for _, bill := range ledger.Bills {
		paid := ledger.EffectivePaid(bill)
		status := ResolveStatus(bill.TotalAmount, paid)
		changed := status != bill.Status
		if changed {
			if err := s.UpdateBillStatus(ctx, bill.ID, status); err != nil {
				return nil, err
			}
			bill.Status = status
		}
		if changed || seeded[bill.ID] {
			affected = append(affected, AffectedBill{Bill: bill, AttributedPaid: paid, Status: status})
		}
	}
	return affected, nil
}

// =============================================================================
// MATCHING
// =============================================================================

// matchBills selects the bills a payment can settle, oldest period first.
// blanket reports whether the last-resort rule was used.
func matchBills(p Payment, bills []Bill) (matched []Bill, blanket bool) {
	hasTag := !p.Period.IsZero()
	hasRange := p.MaintenancePeriod != nil || p.ParkingPeriod != nil

	for _, b := range bills {
		switch {
		case hasTag && p.Period.Equal(b.Period):
			matched = append(matched, b)
		case p.MaintenancePeriod != nil && p.MaintenancePeriod.Contains(b.Period):
			matched = append(matched, b)
		case p.ParkingPeriod != nil && p.ParkingPeriod.Contains(b.Period):
			matched = append(matched, b)
		case !hasTag && !hasRange && PeriodOf(p.Date).Equal(b.Period):
			matched = append(matched, b)
		}
	}

	// Last resort: a payment with no period information at all, whose date
	// month matched nothing, settles against the flat's bills wholesale.
	if len(matched) == 0 && !hasTag && !hasRange && len(bills) > 0 {
		matched = append(matched, bills...)
		blanket = true
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Period.Before(matched[j].Period)
	})
	return matched, blanket
}

func billIDs(allocs []Allocation) []BillID {
	seen := make(map[BillID]bool)
	var ids []BillID
	for _, a := range allocs {
		if a.IsLegacyCredit() || seen[a.BillID] {
			continue
		}
		seen[a.BillID] = true
		ids = append(ids, a.BillID)
	}
	return ids
}

func mergeAffected(a, b []AffectedBill) []AffectedBill {
	seen := make(map[BillID]int)
	out := make([]AffectedBill, 0, len(a)+len(b))
	for _, x := range a {
		seen[x.Bill.ID] = len(out)
		out = append(out, x)
	}
	for _, x := range b {
		if i, ok := seen[x.Bill.ID]; ok {
			out[i] = x
			continue
		}
		out = append(out, x)
	}
	return out
}
