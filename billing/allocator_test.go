package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/societyworks/billing-engine/billing"
	memstore "github.com/societyworks/billing-engine/billing/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// newBilledSociety seeds flat 101 with January and February bills:
// Jan total 580, Feb total 1160 (580 base + 580 carried forward).
func newBilledSociety(t *testing.T) (*memstore.TxMemory, *billing.Allocator, []billing.Bill) {
	t.Helper()
	s := newSeededStore(t)
	g := billing.NewGenerator(s, billing.CalculatorOptions{})
	bills := generateBills(t, g, "2025-01", 2)
	return s, billing.NewAllocator(s), bills
}

func taggedPayment(amount, date, period string) billing.Payment {
	d, _ := time.Parse("2006-01-02", date)
	p := billing.Payment{
		ID:         billing.PaymentID("pay-" + period + "-" + amount),
		FlatNumber: "101",
		Amount:     billing.MustDecimal(amount),
		Date:       d,
		Mode:       billing.ModeUPI,
	}
	if period != "" {
		p.Period = billing.MustPeriod(period)
	}
	return p
}

// =============================================================================
// WATERFALL
// =============================================================================

func TestApplyPayment_PartialSettlement(t *testing.T) {
	// GIVEN: January billed at 580, February carrying it forward
	// WHEN: 460 arrives tagged for January
	// THEN: January goes partial with 460 attributed, and February's
	//       effective position reflects the same 460 through its
	//       carried-forward component

	_, al, bills := newBilledSociety(t)

	affected, err := al.ApplyPayment(context.Background(), taggedPayment("460", "2025-01-15", "2025-01"))
	require.NoError(t, err)

	require.Len(t, affected, 2)
	assert.Equal(t, bills[0].ID, affected[0].Bill.ID)
	assertDecimalEqual(t, "460", affected[0].AttributedPaid)
	assert.Equal(t, billing.StatusPartial, affected[0].Status)

	assert.Equal(t, bills[1].ID, affected[1].Bill.ID)
	assertDecimalEqual(t, "460", affected[1].AttributedPaid)
	assert.Equal(t, billing.StatusPartial, affected[1].Status)
}

func TestApplyPayment_WaterfallOldestFirst(t *testing.T) {
	// GIVEN: Jan 580 and Feb 1160 (580 base + 580 carried) both open
	// WHEN: 1160 - the flat's real debt - arrives with no period
	//       information (blanket match)
	// THEN: Jan fills completely before Feb sees a rupee; Feb then absorbs
	//       only its own 580 of charges, and both end paid

	s, al, bills := newBilledSociety(t)
	ctx := context.Background()

	payment := taggedPayment("1160", "2025-03-05", "")
	affected, err := al.ApplyPayment(ctx, payment)
	require.NoError(t, err)
	require.Len(t, affected, 2)

	janAllocs, err := s.AllocationsByBill(ctx, bills[0].ID)
	require.NoError(t, err)
	assertDecimalEqual(t, "580", billing.SumAllocations(janAllocs))

	febAllocs, err := s.AllocationsByBill(ctx, bills[1].ID)
	require.NoError(t, err)
	assertDecimalEqual(t, "580", billing.SumAllocations(febAllocs))

	for _, ab := range affected {
		assert.Equal(t, billing.StatusPaid, ab.Status)
	}
}

func TestApplyPayment_RangePaymentSettlesCarriedChainOnce(t *testing.T) {
	// GIVEN: Jan 580 and Feb 1160, where Feb's extra 580 restates Jan's debt
	// WHEN: A single 1160 payment covers the Jan-Feb maintenance range
	// THEN: Both bills end paid and every rupee lands exactly once - the
	//       carried-forward component is settled by paying January, not
	//       collected a second time through February

	s, al, bills := newBilledSociety(t)
	ctx := context.Background()

	payment := billing.Payment{
		ID:         "pay-jan-feb",
		FlatNumber: "101",
		Amount:     billing.MustDecimal("1160"),
		Date:       time.Date(2025, time.February, 20, 0, 0, 0, 0, time.UTC),
		Mode:       billing.ModeUPI,
		MaintenancePeriod: &billing.PeriodRange{
			From: billing.MustPeriod("2025-01"),
			To:   billing.MustPeriod("2025-02"),
		},
	}
	affected, err := al.ApplyPayment(ctx, payment)
	require.NoError(t, err)

	require.Len(t, affected, 2)
	for _, ab := range affected {
		assert.Equal(t, billing.StatusPaid, ab.Status, "bill %s", ab.Bill.Period)
	}

	allocs, err := s.AllocationsByPayment(ctx, payment.ID)
	require.NoError(t, err)
	assertDecimalEqual(t, "1160", billing.SumAllocations(allocs))
	for _, a := range allocs {
		assert.False(t, a.IsLegacyCredit(), "nothing left over to park as credit")
	}

	janAllocs, err := s.AllocationsByBill(ctx, bills[0].ID)
	require.NoError(t, err)
	assertDecimalEqual(t, "580", billing.SumAllocations(janAllocs))

	febAllocs, err := s.AllocationsByBill(ctx, bills[1].ID)
	require.NoError(t, err)
	assertDecimalEqual(t, "580", billing.SumAllocations(febAllocs))
}

func TestApplyPayment_SettlingJanuaryClearsFebruaryCarried(t *testing.T) {
	// GIVEN: Jan 580 and Feb 1160 (580 base + 580 carried)
	// WHEN: Exactly 580 arrives tagged for January
	// THEN: January is paid, and February's effective position shows the
	//       carried 580 as settled - its stored snapshot stays untouched

	s, al, bills := newBilledSociety(t)
	ctx := context.Background()

	affected, err := al.ApplyPayment(ctx, taggedPayment("580", "2025-01-15", "2025-01"))
	require.NoError(t, err)

	require.Len(t, affected, 2)
	assert.Equal(t, bills[0].ID, affected[0].Bill.ID)
	assert.Equal(t, billing.StatusPaid, affected[0].Status)

	assert.Equal(t, bills[1].ID, affected[1].Bill.ID)
	assertDecimalEqual(t, "580", affected[1].AttributedPaid)
	assert.Equal(t, billing.StatusPartial, affected[1].Status)

	// February's snapshot is immutable: the settlement is effective, not a
	// rewrite of the bill.
	feb, err := s.GetBill(ctx, bills[1].ID)
	require.NoError(t, err)
	assertDecimalEqual(t, "1160", feb.TotalAmount)
	assertDecimalEqual(t, "580", feb.CarriedForward())

	sr := &billing.StatementReader{Store: s}
	st, err := sr.BillStatement(ctx, bills[1].ID)
	require.NoError(t, err)
	assertDecimalEqual(t, "580", st.AttributedPaid)
	assertDecimalEqual(t, "580", st.Balance)
}

func TestApplyPayment_NeverDoubleCredits(t *testing.T) {
	// A multi-month payment's total allocations never exceed its amount,
	// and no bill absorbs more than its total.
	s, al, bills := newBilledSociety(t)
	ctx := context.Background()

	payment := billing.Payment{
		ID:         "pay-range",
		FlatNumber: "101",
		Amount:     billing.MustDecimal("1000"),
		Date:       time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		Mode:       billing.ModeCheque,
		MaintenancePeriod: &billing.PeriodRange{
			From: billing.MustPeriod("2025-01"),
			To:   billing.MustPeriod("2025-02"),
		},
	}
	_, err := al.ApplyPayment(ctx, payment)
	require.NoError(t, err)

	allocs, err := s.AllocationsByPayment(ctx, payment.ID)
	require.NoError(t, err)
	assertDecimalEqual(t, "1000", billing.SumAllocations(allocs))

	janAllocs, err := s.AllocationsByBill(ctx, bills[0].ID)
	require.NoError(t, err)
	assertDecimalEqual(t, "580", billing.SumAllocations(janAllocs))

	febAllocs, err := s.AllocationsByBill(ctx, bills[1].ID)
	require.NoError(t, err)
	assertDecimalEqual(t, "420", billing.SumAllocations(febAllocs))
}

func TestApplyPayment_RemainderBecomesLegacyCredit(t *testing.T) {
	// GIVEN: Only January (580) matches
	// WHEN: 700 arrives tagged for January
	// THEN: 580 settles the bill, 120 is held as a flat-level legacy
	//       credit - money is conserved, never dropped

	s, al, bills := newBilledSociety(t)
	ctx := context.Background()

	payment := taggedPayment("700", "2025-01-20", "2025-01")
	_, err := al.ApplyPayment(ctx, payment)
	require.NoError(t, err)

	allocs, err := s.AllocationsByPayment(ctx, payment.ID)
	require.NoError(t, err)
	assertDecimalEqual(t, "700", billing.SumAllocations(allocs))

	var legacy []billing.Allocation
	for _, a := range allocs {
		if a.IsLegacyCredit() {
			legacy = append(legacy, a)
		}
	}
	require.Len(t, legacy, 1)
	assertDecimalEqual(t, "120", legacy[0].Amount)
	assert.Equal(t, billing.HeadLegacy, legacy[0].Head)

	// The legacy credit is not attributed to any bill.
	janAllocs, err := s.AllocationsByBill(ctx, bills[0].ID)
	require.NoError(t, err)
	assertDecimalEqual(t, "580", billing.SumAllocations(janAllocs))
}

func TestApplyPayment_HeadLabelledMoneyFirst(t *testing.T) {
	// Head-labelled purses drain before undivided money, so a breakdown
	// line explicitly aimed at maintenance lands there.
	s, al, bills := newBilledSociety(t)
	ctx := context.Background()

	payment := billing.Payment{
		ID:         "pay-heads",
		FlatNumber: "101",
		Amount:     billing.MustDecimal("400"),
		Date:       time.Date(2025, time.January, 12, 0, 0, 0, 0, time.UTC),
		Mode:       billing.ModeCash,
		Period:     billing.MustPeriod("2025-01"),
		HeadBreakdown: []billing.HeadEntry{
			headEntry("Maintenance", "300"),
			headEntry("Sinking Fund", "100"),
		},
	}
	_, err := al.ApplyPayment(ctx, payment)
	require.NoError(t, err)

	allocs, err := s.AllocationsByBill(ctx, bills[0].ID)
	require.NoError(t, err)
	byHead := billing.HeadAmounts{}
	for _, a := range allocs {
		byHead.Add(a.Head, a.Amount)
	}
	assertDecimalEqual(t, "300", byHead.Get(billing.HeadMaintenance))
	assertDecimalEqual(t, "100", byHead.Get(billing.HeadSinkingFund))
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestApplyPayment_BreakdownMismatch_Rejected(t *testing.T) {
	// GIVEN: A 500 payment whose breakdown sums to 400
	// WHEN: Applying it
	// THEN: Rejected outright - a breakdown that disagrees with the amount
	//       is operator error requiring correction, not silent repair

	s, al, _ := newBilledSociety(t)
	ctx := context.Background()
	rec := &billing.EventRecorder{}
	al.Notifier = rec

	payment := billing.Payment{
		ID:         "pay-mismatch",
		FlatNumber: "101",
		Amount:     billing.MustDecimal("500"),
		Date:       time.Date(2025, time.January, 12, 0, 0, 0, 0, time.UTC),
		Mode:       billing.ModeCash,
		HeadBreakdown: []billing.HeadEntry{
			headEntry("Maintenance", "300"),
			headEntry("Sinking Fund", "100"),
		},
	}
	_, err := al.ApplyPayment(ctx, payment)
	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrHeadBreakdownMismatch)
	assert.Len(t, rec.ByKind(billing.EventValidationError), 1)

	// Nothing was recorded.
	_, err = s.GetPayment(ctx, payment.ID)
	assert.ErrorIs(t, err, billing.ErrPaymentNotFound)
}

func TestApplyPayment_NonPositiveAmount_Rejected(t *testing.T) {
	_, al, _ := newBilledSociety(t)

	_, err := al.ApplyPayment(context.Background(), taggedPayment("0", "2025-01-12", "2025-01"))
	assert.ErrorIs(t, err, billing.ErrInvalidAmount)
}

// =============================================================================
// MATCHING RULES
// =============================================================================

func TestMatching_PeriodTagBeatsDate(t *testing.T) {
	// A payment dated in January but tagged for February settles February
	// only.
	s, al, bills := newBilledSociety(t)
	ctx := context.Background()

	payment := taggedPayment("500", "2025-01-25", "2025-02")
	_, err := al.ApplyPayment(ctx, payment)
	require.NoError(t, err)

	janAllocs, err := s.AllocationsByBill(ctx, bills[0].ID)
	require.NoError(t, err)
	assert.Empty(t, janAllocs)

	febAllocs, err := s.AllocationsByBill(ctx, bills[1].ID)
	require.NoError(t, err)
	assertDecimalEqual(t, "500", billing.SumAllocations(febAllocs))
}

func TestMatching_DateFallback(t *testing.T) {
	// No tag, no ranges: the payment date's month picks the bill.
	s, al, bills := newBilledSociety(t)
	ctx := context.Background()

	payment := taggedPayment("580", "2025-02-08", "")
	_, err := al.ApplyPayment(ctx, payment)
	require.NoError(t, err)

	febAllocs, err := s.AllocationsByBill(ctx, bills[1].ID)
	require.NoError(t, err)
	assertDecimalEqual(t, "580", billing.SumAllocations(febAllocs))

	janAllocs, err := s.AllocationsByBill(ctx, bills[0].ID)
	require.NoError(t, err)
	assert.Empty(t, janAllocs, "date fallback matches exactly one period")
}

func TestMatching_BlanketEmitsDiagnostic(t *testing.T) {
	// A payment dated outside any billed month, with no period info,
	// blanket-matches and says so.
	_, al, _ := newBilledSociety(t)
	rec := &billing.EventRecorder{}
	al.Notifier = rec

	_, err := al.ApplyPayment(context.Background(), taggedPayment("100", "2025-06-01", ""))
	require.NoError(t, err)

	assert.Len(t, rec.ByKind(billing.EventBlanketMatch), 1)
}

func TestMatching_TaggedPeriodWithNoBill_Unmatched(t *testing.T) {
	// GIVEN: A payment tagged for a period with no bill
	// WHEN: Applying it
	// THEN: The payment is recorded with zero allocations and flagged for
	//       review; the tag is explicit intent, so no blanket fallback

	s, al, _ := newBilledSociety(t)
	ctx := context.Background()
	rec := &billing.EventRecorder{}
	al.Notifier = rec

	payment := taggedPayment("500", "2025-06-01", "2025-06")
	affected, err := al.ApplyPayment(ctx, payment)
	require.NoError(t, err)
	assert.Empty(t, affected)

	events := rec.ByKind(billing.EventUnmatchedPayment)
	require.Len(t, events, 1)
	assert.Equal(t, payment.ID, events[0].PaymentID)

	// Recorded, reviewable, unallocated.
	stored, err := s.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ReceiptNumber)

	allocs, err := s.AllocationsByPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Empty(t, allocs)
}

func TestMatching_UnmatchedPaymentStillCreditsLegacyEntries(t *testing.T) {
	// GIVEN: A payment tagged for an unbilled period, carrying an explicit
	//        "Previous Dues" breakdown line
	// WHEN: Applying it
	// THEN: The legacy line is credited to the flat's legacy balance even
	//       though no bill matched; only the rest awaits review. The
	//       statement's legacy figure agrees with the allocation ledger.

	s, al, _ := newBilledSociety(t)
	ctx := context.Background()
	rec := &billing.EventRecorder{}
	al.Notifier = rec

	payment := billing.Payment{
		ID:         "pay-legacy-unmatched",
		FlatNumber: "101",
		Amount:     billing.MustDecimal("1000"),
		Date:       time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
		Mode:       billing.ModeTransfer,
		Period:     billing.MustPeriod("2025-06"),
		HeadBreakdown: []billing.HeadEntry{
			headEntry("Previous Dues", "800"),
			headEntry("Maintenance", "200"),
		},
	}
	_, err := al.ApplyPayment(ctx, payment)
	require.NoError(t, err)

	// The unplaced 200 still surfaces for review.
	assert.Len(t, rec.ByKind(billing.EventUnmatchedPayment), 1)

	allocs, err := s.AllocationsByPayment(ctx, payment.ID)
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.True(t, allocs[0].IsLegacyCredit())
	assert.Equal(t, billing.HeadLegacy, allocs[0].Head)
	assertDecimalEqual(t, "800", allocs[0].Amount)

	sr := &billing.StatementReader{Store: s}
	st, err := sr.FlatStatement(ctx, "101")
	require.NoError(t, err)
	assertDecimalEqual(t, "800", st.LegacyCredits)
}

func TestMatching_UnmatchedFullyLegacyPaymentNeedsNoReview(t *testing.T) {
	// A payment that is entirely explicit legacy money has nowhere left to
	// go wrong: it is credited in full with no unmatched diagnostic.
	s, al, _ := newBilledSociety(t)
	ctx := context.Background()
	rec := &billing.EventRecorder{}
	al.Notifier = rec

	payment := billing.Payment{
		ID:         "pay-legacy-only",
		FlatNumber: "101",
		Amount:     billing.MustDecimal("500"),
		Date:       time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
		Mode:       billing.ModeCash,
		Period:     billing.MustPeriod("2025-06"),
		HeadBreakdown: []billing.HeadEntry{
			headEntry("Previous Dues", "500"),
		},
	}
	_, err := al.ApplyPayment(ctx, payment)
	require.NoError(t, err)

	assert.Empty(t, rec.ByKind(billing.EventUnmatchedPayment))

	allocs, err := s.AllocationsByPayment(ctx, payment.ID)
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.True(t, allocs[0].IsLegacyCredit())
	assertDecimalEqual(t, "500", allocs[0].Amount)
}

// =============================================================================
// RECEIPT NUMBERS
// =============================================================================

func TestApplyPayment_ReceiptNumbersSequentialPerMonth(t *testing.T) {
	s, al, _ := newBilledSociety(t)
	ctx := context.Background()

	p1 := taggedPayment("100", "2025-01-05", "2025-01")
	p2 := taggedPayment("100", "2025-01-20", "2025-01")
	p3 := taggedPayment("100", "2025-02-03", "2025-02")
	p2.ID, p3.ID = "pay-2", "pay-3"

	for _, p := range []billing.Payment{p1, p2, p3} {
		_, err := al.ApplyPayment(ctx, p)
		require.NoError(t, err)
	}

	get := func(id billing.PaymentID) string {
		p, err := s.GetPayment(ctx, id)
		require.NoError(t, err)
		return p.ReceiptNumber
	}
	assert.Equal(t, "RCPT-2025-01-001", get(p1.ID))
	assert.Equal(t, "RCPT-2025-01-002", get(p2.ID))
	assert.Equal(t, "RCPT-2025-02-001", get(p3.ID), "counter resets per month")
}

// =============================================================================
// REVERSAL AND COMPENSATION
// =============================================================================

func TestReversePayment_RestoresStatusAndIsIdempotent(t *testing.T) {
	// GIVEN: January fully paid
	// WHEN: Reversing the payment twice
	// THEN: First reversal deletes the allocations and re-derives the whole
	//       flat - January back to pending, February's carried component
	//       unsettled again; the second is a no-op

	s, al, bills := newBilledSociety(t)
	ctx := context.Background()

	payment := taggedPayment("580", "2025-01-15", "2025-01")
	_, err := al.ApplyPayment(ctx, payment)
	require.NoError(t, err)

	bill, err := s.GetBill(ctx, bills[0].ID)
	require.NoError(t, err)
	require.Equal(t, billing.StatusPaid, bill.Status)

	affected, err := al.ReversePayment(ctx, payment.ID)
	require.NoError(t, err)
	require.Len(t, affected, 2)
	assert.Equal(t, bills[0].ID, affected[0].Bill.ID)
	for _, ab := range affected {
		assert.Equal(t, billing.StatusPending, ab.Status)
		assert.True(t, ab.AttributedPaid.IsZero())
	}

	// Second reversal: nothing left to undo.
	affected, err = al.ReversePayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Empty(t, affected)

	// The payment record itself survives a reversal.
	_, err = s.GetPayment(ctx, payment.ID)
	assert.NoError(t, err)
}

func TestDeletePayment_RemovesRecordAndAllocations(t *testing.T) {
	s, al, bills := newBilledSociety(t)
	ctx := context.Background()

	payment := taggedPayment("580", "2025-01-15", "2025-01")
	_, err := al.ApplyPayment(ctx, payment)
	require.NoError(t, err)

	affected, err := al.DeletePayment(ctx, payment.ID)
	require.NoError(t, err)
	require.Len(t, affected, 2)
	assert.Equal(t, bills[0].ID, affected[0].Bill.ID)
	assert.Equal(t, billing.StatusPending, affected[0].Status)

	_, err = s.GetPayment(ctx, payment.ID)
	assert.ErrorIs(t, err, billing.ErrPaymentNotFound)

	allocs, err := s.AllocationsByBill(ctx, bills[0].ID)
	require.NoError(t, err)
	assert.Empty(t, allocs)
}

func TestDeletePayment_Unknown(t *testing.T) {
	_, al, _ := newBilledSociety(t)
	_, err := al.DeletePayment(context.Background(), "no-such-payment")
	assert.ErrorIs(t, err, billing.ErrPaymentNotFound)
}

func TestReplacePayment_MovesMoneyAndKeepsReceipt(t *testing.T) {
	// GIVEN: 580 applied to January by mistake
	// WHEN: Replacing it with the same amount tagged for February
	// THEN: January re-derives to pending, February goes partial, and the
	//       payment keeps its ID and receipt number

	s, al, bills := newBilledSociety(t)
	ctx := context.Background()

	original := taggedPayment("580", "2025-01-15", "2025-01")
	_, err := al.ApplyPayment(ctx, original)
	require.NoError(t, err)
	before, err := s.GetPayment(ctx, original.ID)
	require.NoError(t, err)

	corrected := taggedPayment("580", "2025-01-15", "2025-02")
	affected, err := al.ReplacePayment(ctx, original.ID, corrected)
	require.NoError(t, err)

	statuses := map[billing.BillID]billing.BillStatus{}
	for _, ab := range affected {
		statuses[ab.Bill.ID] = ab.Status
	}
	assert.Equal(t, billing.StatusPending, statuses[bills[0].ID])
	assert.Equal(t, billing.StatusPartial, statuses[bills[1].ID])

	after, err := s.GetPayment(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, before.ReceiptNumber, after.ReceiptNumber)
	assert.Equal(t, billing.MustPeriod("2025-02"), after.Period)
}

// =============================================================================
// MONOTONIC SETTLEMENT
// =============================================================================

func TestApplyPayment_SuccessivePaymentsAccumulate(t *testing.T) {
	// Three partial payments against January: attribution grows
	// monotonically and status moves pending -> partial -> paid.
	s, al, bills := newBilledSociety(t)
	ctx := context.Background()

	steps := []struct {
		id     billing.PaymentID
		amount string
		status billing.BillStatus
		total  string
	}{
		{"step-1", "200", billing.StatusPartial, "200"},
		{"step-2", "200", billing.StatusPartial, "400"},
		{"step-3", "180", billing.StatusPaid, "580"},
	}
	for _, step := range steps {
		p := taggedPayment(step.amount, "2025-01-15", "2025-01")
		p.ID = step.id
		affected, err := al.ApplyPayment(ctx, p)
		require.NoError(t, err)

		var jan *billing.AffectedBill
		for i := range affected {
			if affected[i].Bill.ID == bills[0].ID {
				jan = &affected[i]
			}
		}
		require.NotNil(t, jan)
		assert.Equal(t, step.status, jan.Status)

		allocs, err := s.AllocationsByBill(ctx, bills[0].ID)
		require.NoError(t, err)
		assertDecimalEqual(t, step.total, billing.SumAllocations(allocs))
	}
}

func TestApplyPayment_ExplicitLegacyEntryBypassesBills(t *testing.T) {
	// A breakdown line classified as legacy goes straight to the flat's
	// legacy balance even when open bills exist.
	s, al, bills := newBilledSociety(t)
	ctx := context.Background()

	payment := billing.Payment{
		ID:         "pay-legacy",
		FlatNumber: "101",
		Amount:     billing.MustDecimal("1000"),
		Date:       time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC),
		Mode:       billing.ModeTransfer,
		Period:     billing.MustPeriod("2025-01"),
		HeadBreakdown: []billing.HeadEntry{
			headEntry("Previous Dues", "800"),
			headEntry("Maintenance", "200"),
		},
	}
	_, err := al.ApplyPayment(ctx, payment)
	require.NoError(t, err)

	allocs, err := s.AllocationsByPayment(ctx, payment.ID)
	require.NoError(t, err)

	legacyTotal := billing.MustDecimal("0")
	for _, a := range allocs {
		if a.IsLegacyCredit() {
			legacyTotal = legacyTotal.Add(a.Amount)
		}
	}
	assertDecimalEqual(t, "800", legacyTotal)

	janAllocs, err := s.AllocationsByBill(ctx, bills[0].ID)
	require.NoError(t, err)
	assertDecimalEqual(t, "200", billing.SumAllocations(janAllocs))
}
