/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	society data for testing and demos. Each scenario creates flats,
	a rate table, bills and payments that demonstrate specific features.

AVAILABLE SCENARIOS:

	fresh-society:    Rate table + three flats, no billing history
	arrears:          Three months billed with partial payments piling up
	legacy-migration: Flats carrying pre-system dues plus unbilled receipts

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Save the charge configuration
 3. Register flats
 4. Generate bills month by month
 5. Optionally record payments

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "arrears"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, h)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Engine operations the loaders go through
  - store/sqlite/sqlite.go: Reset
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/societyworks/billing-engine/billing"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes one loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-society",
		Name:        "Fresh Society",
		Description: "Rate table and three flats with no billing history",
	},
	{
		ID:          "arrears",
		Name:        "Arrears",
		Description: "Three months billed; one flat pays in full, one partially, one not at all",
	},
	{
		ID:          "legacy-migration",
		Name:        "Legacy Migration",
		Description: "Flats carrying pre-system dues, tagged and untagged payments",
	},
}

// resettable is implemented by stores that can wipe themselves for demos.
type resettable interface {
	Reset(ctx context.Context) error
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns the available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario wipes the database and loads the selected scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	store, ok := h.Store.(resettable)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "Store does not support scenarios", nil)
		return
	}
	if err := store.Reset(r.Context()); err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "fresh-society":
		err = loadFreshSocietyScenario(r.Context(), h)
	case "arrears":
		err = loadArrearsScenario(r.Context(), h)
	case "legacy-migration":
		err = loadLegacyMigrationScenario(r.Context(), h)
	default:
		h.writeError(w, http.StatusBadRequest, "Unknown scenario: "+req.ScenarioID, nil)
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.Logger.Info("demo scenario loaded", zap.String("scenario", req.ScenarioID))
	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.ScenarioID})
}

// =============================================================================
// LOADERS
// =============================================================================

func demoConfig() billing.ChargeConfiguration {
	return billing.ChargeConfiguration{
		Maintenance:         decimal.NewFromInt(300),
		SinkingFund:         decimal.NewFromInt(100),
		Festival:            decimal.NewFromInt(50),
		BuildingMaintenance: decimal.NewFromInt(30),
		Occupancy:           decimal.NewFromInt(200),
		NonOccupancy:        decimal.NewFromInt(120),
		NOC:                 decimal.Zero,
		DueDay:              10,
		LastUpdated:         time.Now().UTC(),
	}
}

func demoFlats(withLegacy bool) []billing.Flat {
	now := time.Now().UTC()
	flats := []billing.Flat{
		{
			FlatNumber: "101",
			OwnerName:  "R. Deshpande",
			Mobile:     "9820011001",
			Status:     billing.FlatOwner,
			Parking:    billing.ParkingSlots{FourWheeler: 1},
			CreatedAt:  now, UpdatedAt: now,
		},
		{
			FlatNumber: "102",
			OwnerName:  "S. Kulkarni",
			Mobile:     "9820011002",
			Status:     billing.FlatTenant,
			Parking:    billing.ParkingSlots{TwoWheeler: 2},
			CreatedAt:  now, UpdatedAt: now,
		},
		{
			FlatNumber: "103",
			OwnerName:  "A. Mehta",
			Status:     billing.FlatVacant,
			CreatedAt:  now, UpdatedAt: now,
		},
	}
	if withLegacy {
		flats[0].LegacyOutstanding = decimal.NewFromInt(5400)
		flats[2].LegacyOutstanding = decimal.NewFromInt(1200)
	}
	return flats
}

func loadFreshSocietyScenario(ctx context.Context, h *Handler) error {
	if err := h.Store.SaveChargeConfiguration(ctx, demoConfig()); err != nil {
		return err
	}
	for _, f := range demoFlats(false) {
		if err := h.Store.CreateFlat(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

func loadArrearsScenario(ctx context.Context, h *Handler) error {
	if err := loadFreshSocietyScenario(ctx, h); err != nil {
		return err
	}

	start := billing.PeriodOf(time.Now().UTC()).Prev().Prev()
	period := start
	for i := 0; i < 3; i++ {
		if _, err := h.Generator.GenerateForPeriod(ctx, period, billing.GenerateOptions{}); err != nil {
			return err
		}
		period = period.Next()
	}

	// 101 settles the first month in full, 102 pays half of it, 103 pays
	// nothing: the outstanding views show every settlement state at once.
	payments := []billing.Payment{
		{
			ID:         billing.PaymentID(uuid.NewString()),
			FlatNumber: "101",
			Amount:     decimal.NewFromInt(580),
			Date:       start.DueDate(10),
			Mode:       billing.ModeUPI,
			Period:     start,
		},
		{
			ID:         billing.PaymentID(uuid.NewString()),
			FlatNumber: "102",
			Amount:     decimal.NewFromInt(250),
			Date:       start.DueDate(10),
			Mode:       billing.ModeCash,
			Period:     start,
		},
	}
	for _, p := range payments {
		if _, err := h.Allocator.ApplyPayment(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func loadLegacyMigrationScenario(ctx context.Context, h *Handler) error {
	if err := h.Store.SaveChargeConfiguration(ctx, demoConfig()); err != nil {
		return err
	}
	for _, f := range demoFlats(true) {
		if err := h.Store.CreateFlat(ctx, f); err != nil {
			return err
		}
	}

	period := billing.PeriodOf(time.Now().UTC()).Prev()
	if _, err := h.Generator.GenerateForPeriod(ctx, period, billing.GenerateOptions{}); err != nil {
		return err
	}

	// A tagged payment against legacy dues and an untagged receipt for a
	// period with no bill: one lands as a legacy credit, the other in the
	// unmatched review queue.
	payments := []billing.Payment{
		{
			ID:         billing.PaymentID(uuid.NewString()),
			FlatNumber: "101",
			Amount:     decimal.NewFromInt(2000),
			Date:       period.DueDate(10),
			Mode:       billing.ModeCheque,
			HeadBreakdown: []billing.HeadEntry{
				{Label: "Previous Dues", Amount: decimal.NewFromInt(2000)},
			},
		},
		{
			ID:         billing.PaymentID(uuid.NewString()),
			FlatNumber: "103",
			Amount:     decimal.NewFromInt(500),
			Date:       period.DueDate(10),
			Mode:       billing.ModeTransfer,
			Period:     period.Next().Next(),
		},
	}
	for _, p := range payments {
		if _, err := h.Allocator.ApplyPayment(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
