/*
handlers_test.go - HTTP-level tests for the billing API

Exercises the full router + handler + engine path against the in-memory
store: flat registration, bill generation, payment recording with
allocation, the unmatched review queue and the backfill migration.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/societyworks/billing-engine/billing"
	memstore "github.com/societyworks/billing-engine/billing/store"
)

// newTestServer wires a handler against a seeded in-memory store: the rate
// table below plus flat 101 (owner, one four-wheeler slot, monthly bill 580).
func newTestServer(t *testing.T) (*memstore.TxMemory, http.Handler) {
	t.Helper()
	ctx := context.Background()

	store := memstore.NewTxMemory()
	require.NoError(t, store.SaveChargeConfiguration(ctx, billing.ChargeConfiguration{
		Maintenance:         decimal.NewFromInt(300),
		SinkingFund:         decimal.NewFromInt(100),
		Festival:            decimal.NewFromInt(50),
		BuildingMaintenance: decimal.NewFromInt(30),
		Occupancy:           decimal.NewFromInt(200),
		NonOccupancy:        decimal.NewFromInt(120),
		NOC:                 decimal.Zero,
		DueDay:              10,
		LastUpdated:         time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, store.CreateFlat(ctx, billing.Flat{
		FlatNumber: "101",
		OwnerName:  "R. Deshpande",
		Status:     billing.FlatOwner,
		Parking:    billing.ParkingSlots{FourWheeler: 1},
	}))

	return store, NewRouter(NewHandler(store, nil))
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), "body: %s", rec.Body.String())
	return out
}

func generateViaAPI(t *testing.T, router http.Handler, flatNumber, period string) BillDTO {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/bills/generate", GenerateBillRequest{
		FlatNumber: flatNumber,
		Period:     period,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[BillDTO](t, rec)
}

// =============================================================================
// FLATS
// =============================================================================

func TestAPI_FlatLifecycle(t *testing.T) {
	_, router := newTestServer(t)

	// Register a second flat.
	rec := doJSON(t, router, http.MethodPost, "/api/flats", UpsertFlatRequest{
		FlatNumber:        "102",
		OwnerName:         "S. Kulkarni",
		Status:            "tenant",
		ParkingTwo:        2,
		LegacyOutstanding: "2400",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[FlatDTO](t, rec)
	assert.Equal(t, "102", created.FlatNumber)
	assert.Equal(t, "2400.00", created.LegacyOutstanding)

	// Duplicate registration conflicts.
	rec = doJSON(t, router, http.MethodPost, "/api/flats", UpsertFlatRequest{
		FlatNumber: "102", OwnerName: "Someone Else", Status: "owner",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Update keeps the legacy principal when the field is omitted.
	rec = doJSON(t, router, http.MethodPut, "/api/flats/102", UpsertFlatRequest{
		FlatNumber: "102", OwnerName: "S. Kulkarni", Status: "vacant",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[FlatDTO](t, rec)
	assert.Equal(t, "vacant", updated.Status)
	assert.Equal(t, "2400.00", updated.LegacyOutstanding)

	// Listing returns both flats ordered by number.
	rec = doJSON(t, router, http.MethodGet, "/api/flats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	flats := decodeBody[[]FlatDTO](t, rec)
	require.Len(t, flats, 2)
	assert.Equal(t, "101", flats[0].FlatNumber)
	assert.Equal(t, "102", flats[1].FlatNumber)
}

func TestAPI_FlatValidation(t *testing.T) {
	_, router := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/flats", UpsertFlatRequest{
		FlatNumber: "103", OwnerName: "X", Status: "squatter",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown occupancy status")

	rec = doJSON(t, router, http.MethodGet, "/api/flats/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// CONFIG
// =============================================================================

func TestAPI_ConfigRoundTrip(t *testing.T) {
	_, router := newTestServer(t)

	rec := doJSON(t, router, http.MethodPut, "/api/config", SaveChargeConfigRequest{
		Maintenance:         "350",
		SinkingFund:         "110",
		Festival:            "60",
		BuildingMaintenance: "40",
		Occupancy:           "220",
		NonOccupancy:        "130",
		NOC:                 "10",
		DueDay:              15,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := decodeBody[ChargeConfigDTO](t, rec)
	assert.Equal(t, "350.00", cfg.Maintenance)
	assert.Equal(t, 15, cfg.DueDay)
}

func TestAPI_ConfigRejectsBadDueDay(t *testing.T) {
	_, router := newTestServer(t)

	rec := doJSON(t, router, http.MethodPut, "/api/config", SaveChargeConfigRequest{
		Maintenance: "350", SinkingFund: "110", Festival: "60",
		BuildingMaintenance: "40", Occupancy: "220", NonOccupancy: "130",
		NOC: "10", DueDay: 31,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// BILLS
// =============================================================================

func TestAPI_GenerateBill(t *testing.T) {
	_, router := newTestServer(t)

	bill := generateViaAPI(t, router, "101", "2025-01")
	assert.Equal(t, "BILL-2025-01-001", bill.BillNumber)
	assert.Equal(t, "580.00", bill.TotalAmount)
	assert.Equal(t, "pending", bill.Status)

	// Same period again conflicts without the regenerate flag.
	rec := doJSON(t, router, http.MethodPost, "/api/bills/generate", GenerateBillRequest{
		FlatNumber: "101", Period: "2025-01",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// With the flag the bill is replaced.
	rec = doJSON(t, router, http.MethodPost, "/api/bills/generate", GenerateBillRequest{
		FlatNumber: "101", Period: "2025-01", Regenerate: true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	replaced := decodeBody[BillDTO](t, rec)
	assert.NotEqual(t, bill.ID, replaced.ID)

	// Earlier periods cannot be generated after later ones.
	rec = doJSON(t, router, http.MethodPost, "/api/bills/generate", GenerateBillRequest{
		FlatNumber: "101", Period: "2024-12",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAPI_BillRunReportsPerFlatOutcomes(t *testing.T) {
	_, router := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/flats", UpsertFlatRequest{
		FlatNumber: "102", OwnerName: "S. Kulkarni", Status: "owner",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Flat 101 already has its February bill, so the run half-fails.
	generateViaAPI(t, router, "101", "2025-02")

	rec = doJSON(t, router, http.MethodPost, "/api/bills/run", BillRunRequest{Period: "2025-02"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decodeBody[struct {
		Period   string           `json:"period"`
		Items    []BillRunItemDTO `json:"items"`
		Failures int              `json:"failures"`
	}](t, rec)

	assert.Equal(t, "2025-02", run.Period)
	assert.Equal(t, 1, run.Failures)
	require.Len(t, run.Items, 2)
	byFlat := map[string]BillRunItemDTO{}
	for _, item := range run.Items {
		byFlat[item.FlatNumber] = item
	}
	assert.NotEmpty(t, byFlat["101"].Error)
	require.NotNil(t, byFlat["102"].Bill)
	assert.Equal(t, "pending", byFlat["102"].Bill.Status)
}

func TestAPI_ListBillsRequiresPeriod(t *testing.T) {
	_, router := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/api/bills", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	generateViaAPI(t, router, "101", "2025-01")
	rec = doJSON(t, router, http.MethodGet, "/api/bills?period=2025-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	bills := decodeBody[[]BillDTO](t, rec)
	assert.Len(t, bills, 1)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestAPI_RecordPaymentSettlesBill(t *testing.T) {
	_, router := newTestServer(t)
	bill := generateViaAPI(t, router, "101", "2025-01")

	rec := doJSON(t, router, http.MethodPost, "/api/payments", RecordPaymentRequest{
		FlatNumber: "101",
		Amount:     "580",
		Date:       "2025-01-20",
		Mode:       "upi",
		Period:     "2025-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decodeBody[PaymentResultDTO](t, rec)

	assert.Equal(t, "RCPT-2025-01-001", result.Payment.ReceiptNumber)
	assert.False(t, result.Unmatched)
	require.Len(t, result.AffectedBills, 1)
	assert.Equal(t, bill.ID, result.AffectedBills[0].Bill.ID)
	assert.Equal(t, "paid", result.AffectedBills[0].Status)

	// The bill statement reflects the settlement.
	rec = doJSON(t, router, http.MethodGet, "/api/bills/"+bill.ID+"/statement", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decodeBody[BillStatementDTO](t, rec)
	assert.Equal(t, "580.00", st.AttributedPaid)
	assert.Equal(t, "0.00", st.Balance)
}

func TestAPI_RecordPaymentRejectsBreakdownMismatch(t *testing.T) {
	store, router := newTestServer(t)
	generateViaAPI(t, router, "101", "2025-01")

	rec := doJSON(t, router, http.MethodPost, "/api/payments", RecordPaymentRequest{
		FlatNumber: "101",
		Amount:     "500",
		Date:       "2025-01-20",
		Mode:       "cash",
		HeadBreakdown: []HeadEntryDTO{
			{Label: "Maintenance", Amount: "300"},
		},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	payments, err := store.PaymentsByFlat(context.Background(), "101")
	require.NoError(t, err)
	assert.Empty(t, payments, "rejected payments are not recorded")
}

func TestAPI_UnmatchedPaymentQueue(t *testing.T) {
	_, router := newTestServer(t)
	generateViaAPI(t, router, "101", "2025-01")

	// Tagged to a period with no bill: recorded but unmatched.
	rec := doJSON(t, router, http.MethodPost, "/api/payments", RecordPaymentRequest{
		FlatNumber: "101",
		Amount:     "580",
		Date:       "2025-06-05",
		Mode:       "transfer",
		Period:     "2025-06",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decodeBody[PaymentResultDTO](t, rec)
	assert.True(t, result.Unmatched)
	assert.Empty(t, result.Allocations)

	rec = doJSON(t, router, http.MethodGet, "/api/payments/unmatched", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	queue := decodeBody[[]PaymentDTO](t, rec)
	require.Len(t, queue, 1)
	assert.Equal(t, result.Payment.ID, queue[0].ID)
}

func TestAPI_DeletePaymentReopensBill(t *testing.T) {
	_, router := newTestServer(t)
	bill := generateViaAPI(t, router, "101", "2025-01")

	rec := doJSON(t, router, http.MethodPost, "/api/payments", RecordPaymentRequest{
		FlatNumber: "101", Amount: "580", Date: "2025-01-20", Mode: "upi", Period: "2025-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	result := decodeBody[PaymentResultDTO](t, rec)

	rec = doJSON(t, router, http.MethodDelete, "/api/payments/"+result.Payment.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/bills/"+bill.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	reopened := decodeBody[BillDTO](t, rec)
	assert.Equal(t, "pending", reopened.Status)

	rec = doJSON(t, router, http.MethodDelete, "/api/payments/"+result.Payment.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "second delete finds nothing")
}

func TestAPI_ReceiptView(t *testing.T) {
	_, router := newTestServer(t)
	generateViaAPI(t, router, "101", "2025-01")

	rec := doJSON(t, router, http.MethodPost, "/api/payments", RecordPaymentRequest{
		FlatNumber: "101", Amount: "700", Date: "2025-01-20", Mode: "cheque", Period: "2025-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	result := decodeBody[PaymentResultDTO](t, rec)

	rec = doJSON(t, router, http.MethodGet, "/api/payments/"+result.Payment.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	receipt := decodeBody[ReceiptDTO](t, rec)
	assert.Equal(t, "700.00", receipt.Allocated, "580 to the bill, 120 as legacy credit")
	assert.Equal(t, "0.00", receipt.Unallocated)
}

// =============================================================================
// OUTSTANDING AND STATEMENTS
// =============================================================================

func TestAPI_OutstandingSnapshot(t *testing.T) {
	_, router := newTestServer(t)
	generateViaAPI(t, router, "101", "2025-01")
	generateViaAPI(t, router, "101", "2025-02")

	rec := doJSON(t, router, http.MethodGet, "/api/flats/101/outstanding?as_of=2025-03", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody[OutstandingDTO](t, rec)
	assert.Equal(t, "2025-03", out.AsOf)
	assert.Equal(t, "1160.00", out.Total)
	assert.Equal(t, "600.00", out.PerHead["maintenance"])

	rec = doJSON(t, router, http.MethodGet, "/api/flats/101/outstanding?as_of=13-2025", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_FlatStatement(t *testing.T) {
	_, router := newTestServer(t)
	generateViaAPI(t, router, "101", "2025-01")

	rec := doJSON(t, router, http.MethodPost, "/api/payments", RecordPaymentRequest{
		FlatNumber: "101", Amount: "460", Date: "2025-01-20", Mode: "upi", Period: "2025-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/flats/101/statement", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decodeBody[FlatStatementDTO](t, rec)
	require.Len(t, st.Bills, 1)
	assert.Equal(t, "460.00", st.Bills[0].AttributedPaid)
	assert.Equal(t, "120.00", st.Bills[0].Balance)
	assert.Equal(t, "580.00", st.TotalBilled)
	assert.Equal(t, "460.00", st.TotalPaid)
}

// =============================================================================
// ADMIN
// =============================================================================

func TestAPI_BackfillMigration(t *testing.T) {
	store, router := newTestServer(t)

	// A pre-migration bill: no base charges recorded.
	require.NoError(t, store.SaveBill(context.Background(), billing.Bill{
		ID:                   "legacy-bill",
		BillNumber:           "BILL-2024-11-001",
		FlatNumber:           "101",
		Period:               billing.MustPeriod("2024-11"),
		OutstandingBreakdown: billing.HeadAmounts{},
		TotalAmount:          decimal.NewFromInt(580),
		Status:               billing.StatusPending,
	}))

	rec := doJSON(t, router, http.MethodPost, "/api/admin/backfill", BackfillRequest{
		Charges: map[string]string{
			"Maintenance": "480",
			"Parking":     "100",
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody[struct {
		Backfilled []BackfillResultDTO `json:"backfilled"`
	}](t, rec)
	require.Len(t, result.Backfilled, 1)
	assert.Equal(t, "legacy-bill", result.Backfilled[0].BillID)

	rec = doJSON(t, router, http.MethodPost, "/api/admin/backfill", BackfillRequest{
		Charges: map[string]string{"Garden Fund": "50"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown head labels are rejected")
}
