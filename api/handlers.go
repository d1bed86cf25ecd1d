/*
handlers.go - HTTP API handlers for the billing engine

PURPOSE:
  Exposes the billing engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Flats:
    GET    /api/flats                       List all flats
    POST   /api/flats                       Register flat
    GET    /api/flats/{flatNumber}          Get flat details
    PUT    /api/flats/{flatNumber}          Update flat
    GET    /api/flats/{flatNumber}/outstanding  Arrears snapshot
    GET    /api/flats/{flatNumber}/statement    Full account statement
    GET    /api/flats/{flatNumber}/bills        Bill history
    GET    /api/flats/{flatNumber}/payments     Payment history

  Config:
    GET    /api/config                      Current rate table
    PUT    /api/config                      Replace rate table

  Bills:
    POST   /api/bills/generate              Generate one flat's bill
    POST   /api/bills/run                   Generate the whole period
    GET    /api/bills?period=YYYY-MM        Bills for a period
    GET    /api/bills/{id}                  Get bill
    GET    /api/bills/{id}/statement        Settlement view

  Payments:
    POST   /api/payments                    Record + allocate payment
    GET    /api/payments/unmatched          Review queue
    GET    /api/payments/{id}               Receipt view
    PUT    /api/payments/{id}               Replace (reverse + reapply)
    DELETE /api/payments/{id}               Delete (reverse + remove)

  Admin:
    POST   /api/admin/backfill              Base-charge migration

  Scenarios (development only):
    GET    /api/scenarios                   Available demo scenarios
    POST   /api/scenarios/load              Reset and load a scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (duplicate period without regenerate, duplicate flat)
  - 422: Domain rejections (breakdown mismatch, out-of-order generation)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/societyworks/billing-engine/billing"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      billing.TxStore
	Generator  *billing.Generator
	Allocator  *billing.Allocator
	Statements *billing.StatementReader
	Logger     *zap.Logger

	validate *validator.Validate
}

// NewHandler wires the engine components against the given store.
func NewHandler(store billing.TxStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:      store,
		Generator:  billing.NewGenerator(store, billing.CalculatorOptions{}),
		Allocator:  billing.NewAllocator(store),
		Statements: &billing.StatementReader{Store: store},
		Logger:     logger,
		validate:   validator.New(),
	}
}

// =============================================================================
// FLAT HANDLERS
// =============================================================================

// ListFlats returns all flats.
func (h *Handler) ListFlats(w http.ResponseWriter, r *http.Request) {
	flats, err := h.Store.ListFlats(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to list flats", err)
		return
	}

	dtos := make([]FlatDTO, len(flats))
	for i, f := range flats {
		dtos[i] = toFlatDTO(f)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetFlat returns a single flat.
func (h *Handler) GetFlat(w http.ResponseWriter, r *http.Request) {
	flatNumber := chi.URLParam(r, "flatNumber")

	flat, err := h.Store.GetFlat(r.Context(), flatNumber)
	if err != nil {
		h.writeDomainError(w, "Failed to get flat", err)
		return
	}
	writeJSON(w, http.StatusOK, toFlatDTO(*flat))
}

// CreateFlat registers a new flat.
func (h *Handler) CreateFlat(w http.ResponseWriter, r *http.Request) {
	var req UpsertFlatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	flat, err := flatFromRequest(req, time.Now().UTC())
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid flat", err)
		return
	}
	if err := flat.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid flat", err)
		return
	}

	if err := h.Store.CreateFlat(r.Context(), flat); err != nil {
		if errors.Is(err, billing.ErrDuplicateFlat) {
			h.writeError(w, http.StatusConflict, "Flat already exists", err)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "Failed to create flat", err)
		return
	}

	h.Logger.Info("flat registered",
		zap.String("flat", flat.FlatNumber),
		zap.String("status", string(flat.Status)))
	writeJSON(w, http.StatusCreated, toFlatDTO(flat))
}

// UpdateFlat updates a flat's mutable fields.
func (h *Handler) UpdateFlat(w http.ResponseWriter, r *http.Request) {
	flatNumber := chi.URLParam(r, "flatNumber")

	existing, err := h.Store.GetFlat(r.Context(), flatNumber)
	if err != nil {
		h.writeDomainError(w, "Failed to get flat", err)
		return
	}

	var req UpsertFlatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.FlatNumber = flatNumber
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	flat, err := flatFromRequest(req, time.Now().UTC())
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid flat", err)
		return
	}
	flat.CreatedAt = existing.CreatedAt
	if req.LegacyOutstanding == "" {
		// Legacy principal is set at intake; an omitted field keeps it.
		flat.LegacyOutstanding = existing.LegacyOutstanding
	}
	if err := flat.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid flat", err)
		return
	}

	if err := h.Store.UpdateFlat(r.Context(), flat); err != nil {
		h.writeDomainError(w, "Failed to update flat", err)
		return
	}
	writeJSON(w, http.StatusOK, toFlatDTO(flat))
}

// GetOutstanding returns the flat's arrears snapshot as of a period.
// Defaults to the current month, i.e. everything before today's period.
func (h *Handler) GetOutstanding(w http.ResponseWriter, r *http.Request) {
	flatNumber := chi.URLParam(r, "flatNumber")

	asOf := billing.PeriodOf(time.Now().UTC())
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := billing.ParsePeriod(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid as_of period (use YYYY-MM)", err)
			return
		}
		asOf = parsed
	}

	flat, err := h.Store.GetFlat(r.Context(), flatNumber)
	if err != nil {
		h.writeDomainError(w, "Failed to get flat", err)
		return
	}

	out, err := h.Generator.Calc.Compute(r.Context(), *flat, asOf)
	if err != nil {
		h.writeDomainError(w, "Failed to compute outstanding", err)
		return
	}

	writeJSON(w, http.StatusOK, OutstandingDTO{
		FlatNumber: out.FlatNumber,
		AsOf:       out.AsOf.String(),
		PerHead:    nonNilMap(headAmountsMap(out.PerHead)),
		Legacy:     out.Legacy.StringFixed(2),
		Total:      out.Total.StringFixed(2),
	})
}

// GetFlatStatement returns the full account statement for a flat.
func (h *Handler) GetFlatStatement(w http.ResponseWriter, r *http.Request) {
	flatNumber := chi.URLParam(r, "flatNumber")

	st, err := h.Statements.FlatStatement(r.Context(), flatNumber)
	if err != nil {
		h.writeDomainError(w, "Failed to build statement", err)
		return
	}

	dto := FlatStatementDTO{
		Flat:                toFlatDTO(st.Flat),
		Bills:               make([]BillStatementDTO, len(st.Bills)),
		UnallocatedPayments: toPaymentDTOs(st.UnallocatedPayments),
		LegacyPrincipal:     st.LegacyPrincipal.StringFixed(2),
		LegacyCredits:       st.LegacyCredits.StringFixed(2),
		LegacyRemaining:     st.LegacyRemaining.StringFixed(2),
		TotalBilled:         st.TotalBilled.StringFixed(2),
		TotalPaid:           st.TotalPaid.StringFixed(2),
	}
	for i, bs := range st.Bills {
		dto.Bills[i] = toBillStatementDTO(bs)
	}
	writeJSON(w, http.StatusOK, dto)
}

// ListFlatBills returns a flat's bills, oldest first.
func (h *Handler) ListFlatBills(w http.ResponseWriter, r *http.Request) {
	flatNumber := chi.URLParam(r, "flatNumber")

	if _, err := h.Store.GetFlat(r.Context(), flatNumber); err != nil {
		h.writeDomainError(w, "Failed to get flat", err)
		return
	}
	bills, err := h.Store.BillsByFlat(r.Context(), flatNumber)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to list bills", err)
		return
	}
	writeJSON(w, http.StatusOK, toBillDTOs(bills))
}

// ListFlatPayments returns a flat's payments, oldest first.
func (h *Handler) ListFlatPayments(w http.ResponseWriter, r *http.Request) {
	flatNumber := chi.URLParam(r, "flatNumber")

	if _, err := h.Store.GetFlat(r.Context(), flatNumber); err != nil {
		h.writeDomainError(w, "Failed to get flat", err)
		return
	}
	payments, err := h.Store.PaymentsByFlat(r.Context(), flatNumber)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(payments))
}

// =============================================================================
// CONFIG HANDLERS
// =============================================================================

// GetConfig returns the current rate table.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Store.GetChargeConfiguration(r.Context())
	if err != nil {
		if errors.Is(err, billing.ErrMissingConfiguration) {
			h.writeError(w, http.StatusNotFound, "No charge configuration set", err)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "Failed to get configuration", err)
		return
	}
	writeJSON(w, http.StatusOK, toChargeConfigDTO(*cfg))
}

// SaveConfig replaces the rate table. Existing bills keep the rates they
// were generated with; only future generation sees the change.
func (h *Handler) SaveConfig(w http.ResponseWriter, r *http.Request) {
	var req SaveChargeConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	cfg, err := configFromRequest(req)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid amounts", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid configuration", err)
		return
	}

	if err := h.Store.SaveChargeConfiguration(r.Context(), cfg); err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to save configuration", err)
		return
	}

	h.Logger.Info("charge configuration updated", zap.Int("due_day", cfg.DueDay))
	writeJSON(w, http.StatusOK, toChargeConfigDTO(cfg))
}

// =============================================================================
// BILL HANDLERS
// =============================================================================

// GenerateBill generates one flat's bill for a period.
func (h *Handler) GenerateBill(w http.ResponseWriter, r *http.Request) {
	var req GenerateBillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	period, err := billing.ParsePeriod(req.Period)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid period (use YYYY-MM)", err)
		return
	}

	bill, err := h.Generator.Generate(r.Context(), req.FlatNumber, period,
		billing.GenerateOptions{Regenerate: req.Regenerate})
	if err != nil {
		h.writeDomainError(w, "Failed to generate bill", err)
		return
	}

	h.Logger.Info("bill generated",
		zap.String("flat", req.FlatNumber),
		zap.String("period", period.String()),
		zap.String("bill_number", bill.BillNumber),
		zap.String("total", bill.TotalAmount.StringFixed(2)))
	writeJSON(w, http.StatusCreated, toBillDTO(*bill))
}

// BillRun generates the period's bill for every flat. Per-flat failures are
// reported alongside successes; the run itself always completes.
func (h *Handler) BillRun(w http.ResponseWriter, r *http.Request) {
	var req BillRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	period, err := billing.ParsePeriod(req.Period)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid period (use YYYY-MM)", err)
		return
	}

	items, err := h.Generator.GenerateForPeriod(r.Context(), period,
		billing.GenerateOptions{Regenerate: req.Regenerate})
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to run bill generation", err)
		return
	}

	dtos := make([]BillRunItemDTO, len(items))
	failures := 0
	for i, item := range items {
		dto := BillRunItemDTO{FlatNumber: item.FlatNumber}
		if item.Bill != nil {
			b := toBillDTO(*item.Bill)
			dto.Bill = &b
		}
		if item.Err != nil {
			dto.Error = item.Err.Error()
			failures++
		}
		dtos[i] = dto
	}

	h.Logger.Info("bill run completed",
		zap.String("period", period.String()),
		zap.Int("flats", len(items)),
		zap.Int("failures", failures))
	writeJSON(w, http.StatusOK, map[string]any{
		"period":   period.String(),
		"items":    dtos,
		"failures": failures,
	})
}

// ListBills returns the bills of a period.
func (h *Handler) ListBills(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("period")
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, "period query parameter is required", nil)
		return
	}
	period, err := billing.ParsePeriod(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid period (use YYYY-MM)", err)
		return
	}

	bills, err := h.Store.BillsByPeriod(r.Context(), period)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to list bills", err)
		return
	}
	writeJSON(w, http.StatusOK, toBillDTOs(bills))
}

// GetBill returns a single bill.
func (h *Handler) GetBill(w http.ResponseWriter, r *http.Request) {
	id := billing.BillID(chi.URLParam(r, "id"))

	bill, err := h.Store.GetBill(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get bill", err)
		return
	}
	writeJSON(w, http.StatusOK, toBillDTO(*bill))
}

// GetBillStatement returns the settlement view of one bill.
func (h *Handler) GetBillStatement(w http.ResponseWriter, r *http.Request) {
	id := billing.BillID(chi.URLParam(r, "id"))

	st, err := h.Statements.BillStatement(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to build statement", err)
		return
	}
	writeJSON(w, http.StatusOK, toBillStatementDTO(*st))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// RecordPayment records a payment and allocates it against bills.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	payment, ok := h.decodePayment(w, r)
	if !ok {
		return
	}

	affected, err := h.Allocator.ApplyPayment(r.Context(), payment)
	if err != nil {
		h.writeDomainError(w, "Failed to apply payment", err)
		return
	}

	h.writePaymentResult(w, r, payment.ID, affected, http.StatusCreated)
}

// ReplacePayment reverses a payment's allocations and reapplies it with the
// submitted details. The payment keeps its ID and receipt number.
func (h *Handler) ReplacePayment(w http.ResponseWriter, r *http.Request) {
	id := billing.PaymentID(chi.URLParam(r, "id"))

	payment, ok := h.decodePayment(w, r)
	if !ok {
		return
	}

	affected, err := h.Allocator.ReplacePayment(r.Context(), id, payment)
	if err != nil {
		h.writeDomainError(w, "Failed to replace payment", err)
		return
	}

	h.writePaymentResult(w, r, id, affected, http.StatusOK)
}

// DeletePayment reverses and removes a payment.
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	id := billing.PaymentID(chi.URLParam(r, "id"))

	affected, err := h.Allocator.DeletePayment(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to delete payment", err)
		return
	}

	h.Logger.Info("payment deleted",
		zap.String("payment", string(id)),
		zap.Int("affected_bills", len(affected)))
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted":        string(id),
		"affected_bills": toAffectedBillDTOs(affected),
	})
}

// GetReceipt returns the settlement view of one payment.
func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	id := billing.PaymentID(chi.URLParam(r, "id"))

	receipt, err := h.Statements.Receipt(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get receipt", err)
		return
	}
	writeJSON(w, http.StatusOK, ReceiptDTO{
		Payment:     toPaymentDTO(receipt.Payment),
		Allocations: toAllocationDTOs(receipt.Allocations),
		Allocated:   receipt.Allocated.StringFixed(2),
		Unallocated: receipt.Unallocated.StringFixed(2),
	})
}

// ListUnmatchedPayments returns the review queue: payments across all
// flats that no matching rule could attach to a bill.
func (h *Handler) ListUnmatchedPayments(w http.ResponseWriter, r *http.Request) {
	flats, err := h.Store.ListFlats(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to list flats", err)
		return
	}

	unmatched := []PaymentDTO{}
	for _, f := range flats {
		payments, err := h.Store.PaymentsByFlat(r.Context(), f.FlatNumber)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
			return
		}
		for _, p := range payments {
			allocs, err := h.Store.AllocationsByPayment(r.Context(), p.ID)
			if err != nil {
				h.writeError(w, http.StatusInternalServerError, "Failed to load allocations", err)
				return
			}
			if len(allocs) == 0 {
				unmatched = append(unmatched, toPaymentDTO(p))
			}
		}
	}
	writeJSON(w, http.StatusOK, unmatched)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// Backfill rewrites pre-migration bills with the supplied charge table.
func (h *Handler) Backfill(w http.ResponseWriter, r *http.Request) {
	var req BackfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	charges := billing.HeadAmounts{}
	for label, raw := range req.Charges {
		head, ok := billing.ClassifyHead(label)
		if !ok {
			h.writeError(w, http.StatusBadRequest, "Unknown charge head: "+label, nil)
			return
		}
		amount, err := parseAmount(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid amount for "+label, err)
			return
		}
		charges.Add(head, amount)
	}

	results, err := billing.BackfillBaseCharges(r.Context(), h.Store, charges)
	if err != nil {
		h.writeDomainError(w, "Backfill failed", err)
		return
	}

	dtos := make([]BackfillResultDTO, len(results))
	for i, res := range results {
		dtos[i] = BackfillResultDTO{
			BillID:     string(res.BillID),
			FlatNumber: res.FlatNumber,
			Period:     res.Period.String(),
		}
	}

	h.Logger.Info("base charges backfilled", zap.Int("bills", len(results)))
	writeJSON(w, http.StatusOK, map[string]any{"backfilled": dtos})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) decodePayment(w http.ResponseWriter, r *http.Request) (billing.Payment, bool) {
	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return billing.Payment{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Validation failed", err)
		return billing.Payment{}, false
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return billing.Payment{}, false
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return billing.Payment{}, false
	}

	payment := billing.Payment{
		ID:         billing.PaymentID(uuid.NewString()),
		FlatNumber: req.FlatNumber,
		Amount:     amount,
		Date:       date,
		Mode:       billing.PaymentMode(req.Mode),
	}
	if req.Period != "" {
		payment.Period, err = billing.ParsePeriod(req.Period)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid period (use YYYY-MM)", err)
			return billing.Payment{}, false
		}
	}
	if payment.MaintenancePeriod, err = parseRangeDTO(req.MaintenancePeriod); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid maintenance_period", err)
		return billing.Payment{}, false
	}
	if payment.ParkingPeriod, err = parseRangeDTO(req.ParkingPeriod); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid parking_period", err)
		return billing.Payment{}, false
	}
	for _, e := range req.HeadBreakdown {
		entryAmount, err := parseAmount(e.Amount)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid breakdown amount", err)
			return billing.Payment{}, false
		}
		payment.HeadBreakdown = append(payment.HeadBreakdown, billing.HeadEntry{
			Label:  e.Label,
			Head:   billing.Head(e.Head),
			Amount: entryAmount,
		})
	}
	return payment, true
}

func (h *Handler) writePaymentResult(w http.ResponseWriter, r *http.Request, id billing.PaymentID, affected []billing.AffectedBill, status int) {
	receipt, err := h.Statements.Receipt(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to load recorded payment", err)
		return
	}

	unmatched := len(receipt.Allocations) == 0
	if unmatched {
		h.Logger.Warn("payment recorded unmatched",
			zap.String("payment", string(id)),
			zap.String("flat", receipt.Payment.FlatNumber),
			zap.String("amount", receipt.Payment.Amount.StringFixed(2)))
	} else {
		h.Logger.Info("payment allocated",
			zap.String("payment", string(id)),
			zap.String("flat", receipt.Payment.FlatNumber),
			zap.String("receipt", receipt.Payment.ReceiptNumber),
			zap.Int("allocations", len(receipt.Allocations)),
			zap.Int("affected_bills", len(affected)))
	}

	writeJSON(w, status, PaymentResultDTO{
		Payment:       toPaymentDTO(receipt.Payment),
		Allocations:   toAllocationDTOs(receipt.Allocations),
		AffectedBills: toAffectedBillDTOs(affected),
		Unmatched:     unmatched,
	})
}

func toBillStatementDTO(bs billing.BillStatement) BillStatementDTO {
	return BillStatementDTO{
		Bill:           toBillDTO(bs.Bill),
		AttributedPaid: bs.AttributedPaid.StringFixed(2),
		Balance:        bs.Balance.StringFixed(2),
		Allocations:    toAllocationDTOs(bs.Allocations),
	}
}

func flatFromRequest(req UpsertFlatRequest, now time.Time) (billing.Flat, error) {
	flat := billing.Flat{
		FlatNumber: req.FlatNumber,
		OwnerName:  req.OwnerName,
		Mobile:     req.Mobile,
		Status:     billing.FlatStatus(req.Status),
		Parking: billing.ParkingSlots{
			FourWheeler:  req.ParkingFour,
			ThreeWheeler: req.ParkingThree,
			TwoWheeler:   req.ParkingTwo,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.LegacyOutstanding != "" {
		legacy, err := parseAmount(req.LegacyOutstanding)
		if err != nil {
			return billing.Flat{}, err
		}
		flat.LegacyOutstanding = legacy
	}
	return flat, nil
}

func configFromRequest(req SaveChargeConfigRequest) (billing.ChargeConfiguration, error) {
	cfg := billing.ChargeConfiguration{
		DueDay:      req.DueDay,
		LastUpdated: time.Now().UTC(),
	}
	fields := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{req.Maintenance, &cfg.Maintenance},
		{req.SinkingFund, &cfg.SinkingFund},
		{req.Festival, &cfg.Festival},
		{req.BuildingMaintenance, &cfg.BuildingMaintenance},
		{req.Occupancy, &cfg.Occupancy},
		{req.NonOccupancy, &cfg.NonOccupancy},
		{req.NOC, &cfg.NOC},
	}
	for _, f := range fields {
		amount, err := parseAmount(f.raw)
		if err != nil {
			return billing.ChargeConfiguration{}, err
		}
		*f.dst = amount
	}
	if req.InterestRate != "" {
		rate, err := parseAmount(req.InterestRate)
		if err != nil {
			return billing.ChargeConfiguration{}, err
		}
		cfg.InterestRate = rate
	}
	return cfg, nil
}

// writeDomainError maps domain errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case billing.IsNotFound(err):
		h.writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, billing.ErrDuplicatePeriod), errors.Is(err, billing.ErrDuplicateFlat):
		h.writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, billing.ErrMissingConfiguration):
		h.writeError(w, http.StatusBadRequest, message, err)
	case billing.IsClientError(err):
		h.writeError(w, http.StatusUnprocessableEntity, message, err)
	default:
		h.writeError(w, http.StatusInternalServerError, message, err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string, err error) {
	if status >= http.StatusInternalServerError {
		h.Logger.Error(message, zap.Error(err))
	}
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
