package billing

import "context"

// =============================================================================
// BACKFILL - Base-charge migration for pre-head bills
// =============================================================================

// BackfillResult reports one rewritten bill.
type BackfillResult struct {
	BillID     BillID
	FlatNumber string
	Period     Period
}

// BackfillBaseCharges rewrites every bill that predates head tracking with
// the supplied per-head table. This is the explicit migration path for
// historical data: once it has run, the outstanding calculator no longer
// needs a runtime fallback table.
//
// The whole migration is one transaction; a charges table with no positive
// heads is rejected up front.
func BackfillBaseCharges(ctx context.Context, store TxStore, charges HeadAmounts) ([]BackfillResult, error) {
	if charges.IsZero() {
		return nil, ErrMissingBaseCharges
	}

	var results []BackfillResult
	err := store.WithTx(ctx, func(s Store) error {
		flats, err := s.ListFlats(ctx)
		if err != nil {
			return err
		}
		for _, f := range flats {
			bills, err := s.BillsByFlat(ctx, f.FlatNumber)
			if err != nil {
				return err
			}
			for _, b := range bills {
				if b.HasBaseCharges() {
					continue
				}
				if err := s.ReplaceBillCharges(ctx, b.ID, charges); err != nil {
					return err
				}
				results = append(results, BackfillResult{
					BillID:     b.ID,
					FlatNumber: b.FlatNumber,
					Period:     b.Period,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
