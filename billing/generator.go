/*
generator.go - The Bill Generator

PURPOSE:
  Produces the immutable per-period bill snapshot for a flat: the current
  month's charges resolved from the rate table, plus the per-head debt
  carried forward from earlier periods, plus the flat's remaining legacy
  balance, all frozen at generation time.

ORDERING:
  Periods must be generated oldest-first. The carry-forward in a period-N
  bill depends on the complete history of periods < N, so generating N
  while an earlier month is missing would freeze an understated breakdown.
  The generator rejects generation for a period earlier than an
  already-billed one (OutOfOrderError) rather than silently allowing it.

NUMBERING:
  Bill numbers are sequential per period (BILL-YYYY-MM-NNN) and come from
  the store's atomic per-period counter, so concurrent generation cannot
  hand out the same number twice.
*/
package billing

import (
	"context"
	"errors"
	"time"
)

// =============================================================================
// GENERATOR
// =============================================================================

// Generator produces bill snapshots.
type Generator struct {
	Store    TxStore
	Calc     *OutstandingCalculator
	Notifier Notifier

	// Now is the clock; overridable in tests.
	Now func() time.Time
}

// NewGenerator wires a generator against a transactional store.
func NewGenerator(store TxStore, opts CalculatorOptions) *Generator {
	return &Generator{
		Store:    store,
		Calc:     &OutstandingCalculator{Store: store, Opts: opts},
		Notifier: NopNotifier{},
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// GenerateOptions controls a single generation.
type GenerateOptions struct {
	// Regenerate deletes an existing bill for the (flat, period) pair and
	// recreates it in the same transaction. Without it a duplicate period
	// is an error requiring explicit caller confirmation.
	Regenerate bool
}

// Generate produces and persists the bill for (flatNumber, period).
// The whole operation - duplicate check, outstanding computation, counter
// increment, persist - runs in one store transaction.
func (g *Generator) Generate(ctx context.Context, flatNumber string, period Period, opts GenerateOptions) (*Bill, error) {
	var bill *Bill
	err := g.Store.WithTx(ctx, func(s Store) error {
		b, err := g.generateTx(ctx, s, flatNumber, period, opts)
		if err != nil {
			return err
		}
		bill = b
		return nil
	})
	if err != nil {
		g.notifyError(flatNumber, period, err)
		return nil, err
	}
	g.Notifier.Notify(Event{
		Kind:       EventOk,
		FlatNumber: flatNumber,
		Period:     period,
		BillID:     bill.ID,
		At:         g.Now(),
	})
	return bill, nil
}

func (g *Generator) generateTx(ctx context.Context, s Store, flatNumber string, period Period, opts GenerateOptions) (*Bill, error) {
	flat, err := s.GetFlat(ctx, flatNumber)
	if err != nil {
		return nil, err
	}

	cfg, err := s.GetChargeConfiguration(ctx)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrMissingConfiguration
	}

	history, err := s.BillsByFlat(ctx, flatNumber)
	if err != nil {
		return nil, err
	}
	for _, b := range history {
		if b.Period.Equal(period) {
			if !opts.Regenerate {
				return nil, &DuplicatePeriodError{
					FlatNumber: flatNumber,
					Period:     period,
					ExistingID: b.ID,
				}
			}
			if err := s.DeleteBill(ctx, b.ID); err != nil {
				return nil, err
			}
			continue
		}
		if b.Period.After(period) {
			return nil, &OutOfOrderError{
				FlatNumber: flatNumber,
				Period:     period,
				LaterBill:  b.Period,
			}
		}
	}

	// Resolve tenancy-dependent heads from the flat's status.
	base := cfg.FixedCharges()
	base[HeadParking] = flat.ParkingCharge()
	if flat.Status.Occupied() {
		base[HeadOccupancy] = cfg.Occupancy
	}
	if flat.Status == FlatVacant {
		base[HeadNonOccupancy] = cfg.NonOccupancy
	}
	base[HeadNOC] = cfg.NOC

	// Snapshot the carry-forward as of this period. The calculator must
	// see the same transactional view, so it reads through s, not g.Store.
	calc := &OutstandingCalculator{Store: s, Opts: g.Calc.Opts}
	outstanding, err := calc.Compute(ctx, *flat, period)
	if err != nil {
		return nil, err
	}

	seq, err := s.NextSequence(ctx, SeqBill, period)
	if err != nil {
		return nil, err
	}

	bill := NewBillBuilder(flatNumber, period).
		BillNumber(FormatBillNumber(period, seq)).
		BaseCharges(base).
		Outstanding(outstanding.PerHead, outstanding.Legacy).
		GeneratedAt(g.Now()).
		DueAt(period.DueDate(cfg.DueDay)).
		Build()

	if err := s.SaveBill(ctx, bill); err != nil {
		return nil, err
	}
	return &bill, nil
}

// =============================================================================
// BILL RUN - Generate one period for every flat
// =============================================================================

// RunItem is the per-flat outcome of a bill run.
type RunItem struct {
	FlatNumber string
	Bill       *Bill
	Err        error
}

// GenerateForPeriod generates the period's bill for every flat. Each flat is
// its own transaction; one flat's failure (typically DuplicatePeriod on a
// re-run) does not abort the rest.
func (g *Generator) GenerateForPeriod(ctx context.Context, period Period, opts GenerateOptions) ([]RunItem, error) {
	flats, err := g.Store.ListFlats(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]RunItem, 0, len(flats))
	for _, f := range flats {
		bill, err := g.Generate(ctx, f.FlatNumber, period, opts)
		items = append(items, RunItem{FlatNumber: f.FlatNumber, Bill: bill, Err: err})
	}
	return items, nil
}

func (g *Generator) notifyError(flatNumber string, period Period, err error) {
	kind := EventValidationError
	switch {
	case errors.Is(err, ErrDuplicatePeriod):
		kind = EventDuplicatePeriod
	case errors.Is(err, ErrOutOfOrderGeneration):
		kind = EventOrderingViolation
	}
	g.Notifier.Notify(Event{
		Kind:       kind,
		FlatNumber: flatNumber,
		Period:     period,
		Message:    err.Error(),
		At:         g.Now(),
	})
}
