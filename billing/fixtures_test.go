package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/societyworks/billing-engine/billing"
	memstore "github.com/societyworks/billing-engine/billing/store"
)

// =============================================================================
// SHARED FIXTURES
// =============================================================================

// Default rate table used across the engine tests:
// maintenance 300 + sinking 100 + festival 50 + building 30 = 480 fixed.
// With flat 101's single four-wheeler slot (100) a monthly bill is 580.
func testConfig() billing.ChargeConfiguration {
	return billing.ChargeConfiguration{
		Maintenance:         decimal.NewFromInt(300),
		SinkingFund:         decimal.NewFromInt(100),
		Festival:            decimal.NewFromInt(50),
		BuildingMaintenance: decimal.NewFromInt(30),
		Occupancy:           decimal.NewFromInt(200),
		NonOccupancy:        decimal.NewFromInt(120),
		NOC:                 decimal.Zero,
		DueDay:              10,
		LastUpdated:         time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

func flat101() billing.Flat {
	return billing.Flat{
		FlatNumber: "101",
		OwnerName:  "R. Deshpande",
		Status:     billing.FlatOwner,
		Parking:    billing.ParkingSlots{FourWheeler: 1},
	}
}

// newSeededStore returns a transactional memory store with the default
// configuration and flat 101 registered.
func newSeededStore(t *testing.T) *memstore.TxMemory {
	t.Helper()
	ctx := context.Background()

	s := memstore.NewTxMemory()
	require.NoError(t, s.SaveChargeConfiguration(ctx, testConfig()))
	require.NoError(t, s.CreateFlat(ctx, flat101()))
	return s
}

// generateBills runs the generator for flat 101 over consecutive periods
// starting at from, returning the bills oldest first.
func generateBills(t *testing.T, g *billing.Generator, from string, n int) []billing.Bill {
	t.Helper()
	ctx := context.Background()

	period := billing.MustPeriod(from)
	bills := make([]billing.Bill, 0, n)
	for i := 0; i < n; i++ {
		bill, err := g.Generate(ctx, "101", period, billing.GenerateOptions{})
		require.NoError(t, err)
		bills = append(bills, *bill)
		period = period.Next()
	}
	return bills
}

func headEntry(label, amount string) billing.HeadEntry {
	return billing.HeadEntry{Label: label, Amount: billing.MustDecimal(amount)}
}

func assertDecimalEqual(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, billing.MustDecimal(want).Equal(got),
		"want %s, got %s", want, got.String())
}
