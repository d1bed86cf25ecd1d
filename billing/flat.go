package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FLAT - The billed unit
// =============================================================================

// FlatStatus describes how a flat is occupied. Tenancy drives the
// occupancy/non-occupancy charge heads at bill generation.
type FlatStatus string

const (
	FlatOwner  FlatStatus = "owner"
	FlatTenant FlatStatus = "tenant"
	FlatRenter FlatStatus = "renter"
	FlatVacant FlatStatus = "vacant"
)

func (s FlatStatus) IsValid() bool {
	switch s {
	case FlatOwner, FlatTenant, FlatRenter, FlatVacant:
		return true
	}
	return false
}

// Occupied reports whether the flat attracts the occupancy charge
// (tenant-occupied flats do; owner-occupied and vacant do not).
func (s FlatStatus) Occupied() bool { return s == FlatTenant || s == FlatRenter }

// ParkingSlots counts a flat's allotted parking by vehicle class.
type ParkingSlots struct {
	FourWheeler  int
	ThreeWheeler int
	TwoWheeler   int
}

// Flat is a billed unit. The flat number is user-assigned and immutable once
// bills reference it; everything else mutates over time.
//
// LegacyOutstanding is the flat's pre-system debt principal, set at intake.
// The remaining legacy balance is always derived from it by replaying
// payments and allocations; there is no separately-stored live balance
// that could drift out of sync.
type Flat struct {
	FlatNumber        string
	OwnerName         string
	Mobile            string
	Status            FlatStatus
	Parking           ParkingSlots
	LegacyOutstanding decimal.Decimal
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Validate checks intake constraints. It does not hit the store; uniqueness
// of the flat number is the store's concern.
func (f Flat) Validate() error {
	if strings.TrimSpace(f.FlatNumber) == "" {
		return fmt.Errorf("flat number is required")
	}
	if !f.Status.IsValid() {
		return fmt.Errorf("invalid flat status %q", f.Status)
	}
	if f.Parking.FourWheeler < 0 || f.Parking.ThreeWheeler < 0 || f.Parking.TwoWheeler < 0 {
		return fmt.Errorf("flat %s: parking counts must be non-negative", f.FlatNumber)
	}
	if f.LegacyOutstanding.IsNegative() {
		return fmt.Errorf("flat %s: legacy outstanding must be non-negative", f.FlatNumber)
	}
	return nil
}

// Per-slot monthly parking rates. Two-wheelers are billed at half the
// four-wheeler rate.
var (
	parkingRateFourWheeler  = decimal.NewFromInt(100)
	parkingRateThreeWheeler = decimal.NewFromInt(100)
	parkingRateTwoWheeler   = decimal.NewFromInt(50)
)

// ParkingCharge computes the flat's monthly parking charge from its slots.
func (f Flat) ParkingCharge() decimal.Decimal {
	return parkingRateFourWheeler.Mul(decimal.NewFromInt(int64(f.Parking.FourWheeler))).
		Add(parkingRateThreeWheeler.Mul(decimal.NewFromInt(int64(f.Parking.ThreeWheeler)))).
		Add(parkingRateTwoWheeler.Mul(decimal.NewFromInt(int64(f.Parking.TwoWheeler))))
}
