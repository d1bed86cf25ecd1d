package billing_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/societyworks/billing-engine/billing"
)

func basePayment(amount string) billing.Payment {
	return billing.Payment{
		FlatNumber: "101",
		Amount:     billing.MustDecimal(amount),
		Date:       time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC),
		Mode:       billing.ModeUPI,
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestPaymentValidate_BreakdownMustSumToAmount(t *testing.T) {
	// GIVEN: A payment whose breakdown disagrees with its amount
	p := basePayment("500")
	p.HeadBreakdown = []billing.HeadEntry{
		headEntry("Maintenance", "300"),
		headEntry("Sinking Fund", "100"),
	}

	// WHEN: Validating
	err := p.Validate()

	// THEN: Hard rejection with the two sums in the error
	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrHeadBreakdownMismatch)
	var mismatch *billing.HeadBreakdownMismatchError
	require.ErrorAs(t, err, &mismatch)
	assertDecimalEqual(t, "500", mismatch.Amount)
	assertDecimalEqual(t, "400", mismatch.Breakdown)
}

func TestPaymentValidate_MatchingBreakdownPasses(t *testing.T) {
	p := basePayment("400")
	p.HeadBreakdown = []billing.HeadEntry{
		headEntry("Maintenance", "300"),
		headEntry("Sinking Fund", "100"),
	}
	assert.NoError(t, p.Validate())
}

func TestPaymentValidate_RejectsNonPositiveAmount(t *testing.T) {
	// A zero or negative amount is its own rejection, distinct from a
	// breakdown mismatch.
	for _, amount := range []string{"0", "-50"} {
		p := basePayment(amount)
		err := p.Validate()
		assert.ErrorIs(t, err, billing.ErrInvalidAmount, "amount %s", amount)
		assert.NotErrorIs(t, err, billing.ErrHeadBreakdownMismatch, "amount %s", amount)
	}
}

func TestPaymentValidate_RejectsMissingFlat(t *testing.T) {
	p := basePayment("100")
	p.FlatNumber = ""
	assert.ErrorIs(t, p.Validate(), billing.ErrFlatNotFound)
}

func TestPaymentValidate_RejectsInvertedRanges(t *testing.T) {
	p := basePayment("600")
	p.MaintenancePeriod = &billing.PeriodRange{
		From: billing.MustPeriod("2025-03"),
		To:   billing.MustPeriod("2025-01"),
	}
	assert.ErrorIs(t, p.Validate(), billing.ErrInvalidPeriod)

	p = basePayment("600")
	p.ParkingPeriod = &billing.PeriodRange{
		From: billing.MustPeriod("2025-05"),
		To:   billing.MustPeriod("2025-04"),
	}
	assert.ErrorIs(t, p.Validate(), billing.ErrInvalidPeriod)
}

// =============================================================================
// BREAKDOWN CLASSIFICATION
// =============================================================================

func TestClassifyBreakdown_ResolvesLabelsInPlace(t *testing.T) {
	p := basePayment("900")
	p.HeadBreakdown = []billing.HeadEntry{
		headEntry("Maintenance", "300"),
		headEntry("Previous Dues", "500"),
		headEntry("Donation", "100"), // no matching head
	}

	p.ClassifyBreakdown()

	assert.Equal(t, billing.HeadMaintenance, p.HeadBreakdown[0].Head)
	assert.Equal(t, billing.HeadLegacy, p.HeadBreakdown[1].Head)
	assert.Equal(t, billing.Head(""), p.HeadBreakdown[2].Head,
		"unrecognized labels stay unclassified")
}

func TestClassifyBreakdown_KeepsExplicitHeads(t *testing.T) {
	p := basePayment("200")
	p.HeadBreakdown = []billing.HeadEntry{
		{Label: "whatever the operator typed", Head: billing.HeadSinkingFund,
			Amount: billing.MustDecimal("200")},
	}

	p.ClassifyBreakdown()

	assert.Equal(t, billing.HeadSinkingFund, p.HeadBreakdown[0].Head)
}

// =============================================================================
// PER-HEAD AGGREGATION
// =============================================================================

func TestPerHead_SplitsClassifiedAndUnclassified(t *testing.T) {
	p := basePayment("900")
	p.HeadBreakdown = []billing.HeadEntry{
		headEntry("Maintenance", "300"),
		headEntry("Maintenance", "150"),
		headEntry("Parking", "100"),
		headEntry("Donation", "350"),
	}
	p.ClassifyBreakdown()

	heads, unclassified := p.PerHead()

	assertDecimalEqual(t, "450", heads.Get(billing.HeadMaintenance))
	assertDecimalEqual(t, "100", heads.Get(billing.HeadParking))
	assertDecimalEqual(t, "350", unclassified)
}

func TestPerHead_NoBreakdownIsAllUnclassified(t *testing.T) {
	p := basePayment("750")

	heads, unclassified := p.PerHead()

	assert.Nil(t, heads)
	assert.True(t, decimal.NewFromInt(750).Equal(unclassified))
}
