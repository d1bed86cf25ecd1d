package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CHARGE CONFIGURATION - The current rate table (singleton)
// =============================================================================

// ChargeConfiguration is the society's current per-head rate table. Only one
// version exists at a time; bills snapshot the resolved amounts they were
// generated with, so changing the configuration never rewrites history.
type ChargeConfiguration struct {
	Maintenance         decimal.Decimal
	SinkingFund         decimal.Decimal
	Festival            decimal.Decimal
	BuildingMaintenance decimal.Decimal
	Occupancy           decimal.Decimal
	NonOccupancy        decimal.Decimal
	NOC                 decimal.Decimal

	// InterestRate is the annual percentage applied to overdue amounts.
	// Recorded on the configuration; interest posting itself is a separate
	// concern from reconciliation.
	InterestRate decimal.Decimal

	// DueDay is the day of the month bills fall due (1-based).
	DueDay int

	LastUpdated time.Time
}

// Validate checks the rate table before it is saved.
func (c ChargeConfiguration) Validate() error {
	rates := map[string]decimal.Decimal{
		"maintenance":         c.Maintenance,
		"sinkingFund":         c.SinkingFund,
		"festival":            c.Festival,
		"buildingMaintenance": c.BuildingMaintenance,
		"occupancy":           c.Occupancy,
		"nonOccupancy":        c.NonOccupancy,
		"noc":                 c.NOC,
		"interestRate":        c.InterestRate,
	}
	for name, r := range rates {
		if r.IsNegative() {
			return fmt.Errorf("charge configuration: %s must be non-negative", name)
		}
	}
	if c.DueDay < 1 || c.DueDay > 31 {
		return fmt.Errorf("charge configuration: due day %d out of range", c.DueDay)
	}
	return nil
}

// FixedCharges returns the tenancy-independent heads of the rate table.
// Parking is computed from the flat; occupancy heads depend on status.
func (c ChargeConfiguration) FixedCharges() HeadAmounts {
	return HeadAmounts{
		HeadMaintenance:         c.Maintenance,
		HeadSinkingFund:         c.SinkingFund,
		HeadFestival:            c.Festival,
		HeadBuildingMaintenance: c.BuildingMaintenance,
	}
}

// ConfigProvider supplies the current charge configuration.
// Returns ErrMissingConfiguration when no rate table has been set up.
type ConfigProvider interface {
	GetChargeConfiguration(ctx context.Context) (*ChargeConfiguration, error)
}
