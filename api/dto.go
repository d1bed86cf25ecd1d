/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY REPRESENTATION:
  All monetary values cross the wire as decimal strings ("580.00"),
  never floats. Rupee amounts must survive a round trip exactly.

VALIDATION:
  Request types carry go-playground/validator struct tags; handlers run
  the shared validator instance before touching domain logic.

SEE ALSO:
  - handlers.go: Uses these types
  - billing/types.go: Head and HeadAmounts
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/societyworks/billing-engine/billing"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// FlatDTO represents a flat in API responses.
type FlatDTO struct {
	FlatNumber        string `json:"flat_number"`
	OwnerName         string `json:"owner_name"`
	Mobile            string `json:"mobile,omitempty"`
	Status            string `json:"status"`
	ParkingFour       int    `json:"parking_four_wheeler"`
	ParkingThree      int    `json:"parking_three_wheeler"`
	ParkingTwo        int    `json:"parking_two_wheeler"`
	LegacyOutstanding string `json:"legacy_outstanding"`
	CreatedAt         string `json:"created_at,omitempty"`
	UpdatedAt         string `json:"updated_at,omitempty"`
}

// UpsertFlatRequest is the request to create or update a flat.
type UpsertFlatRequest struct {
	FlatNumber        string `json:"flat_number" validate:"required"`
	OwnerName         string `json:"owner_name" validate:"required"`
	Mobile            string `json:"mobile,omitempty"`
	Status            string `json:"status" validate:"required,oneof=owner tenant renter vacant"`
	ParkingFour       int    `json:"parking_four_wheeler" validate:"min=0"`
	ParkingThree      int    `json:"parking_three_wheeler" validate:"min=0"`
	ParkingTwo        int    `json:"parking_two_wheeler" validate:"min=0"`
	LegacyOutstanding string `json:"legacy_outstanding,omitempty"`
}

// ChargeConfigDTO represents the society's rate table.
type ChargeConfigDTO struct {
	Maintenance         string `json:"maintenance"`
	SinkingFund         string `json:"sinking_fund"`
	Festival            string `json:"festival"`
	BuildingMaintenance string `json:"building_maintenance"`
	Occupancy           string `json:"occupancy"`
	NonOccupancy        string `json:"non_occupancy"`
	NOC                 string `json:"noc"`
	InterestRate        string `json:"interest_rate"`
	DueDay              int    `json:"due_day"`
	LastUpdated         string `json:"last_updated,omitempty"`
}

// SaveChargeConfigRequest is the request to replace the rate table.
type SaveChargeConfigRequest struct {
	Maintenance         string `json:"maintenance" validate:"required"`
	SinkingFund         string `json:"sinking_fund" validate:"required"`
	Festival            string `json:"festival" validate:"required"`
	BuildingMaintenance string `json:"building_maintenance" validate:"required"`
	Occupancy           string `json:"occupancy" validate:"required"`
	NonOccupancy        string `json:"non_occupancy" validate:"required"`
	NOC                 string `json:"noc" validate:"required"`
	InterestRate        string `json:"interest_rate,omitempty"`
	DueDay              int    `json:"due_day" validate:"required,min=1,max=28"`
}

// BillDTO represents a bill in API responses.
type BillDTO struct {
	ID                   string            `json:"id"`
	BillNumber           string            `json:"bill_number"`
	FlatNumber           string            `json:"flat_number"`
	Period               string            `json:"period"`
	BaseCharges          map[string]string `json:"base_charges,omitempty"`
	OutstandingBreakdown map[string]string `json:"outstanding_breakdown"`
	LegacyOutstanding    string            `json:"legacy_outstanding"`
	TotalAmount          string            `json:"total_amount"`
	Status               string            `json:"status"`
	GeneratedDate        string            `json:"generated_date"`
	DueDate              string            `json:"due_date"`
}

// GenerateBillRequest is the request to generate one flat's bill.
type GenerateBillRequest struct {
	FlatNumber string `json:"flat_number" validate:"required"`
	Period     string `json:"period" validate:"required"`
	Regenerate bool   `json:"regenerate,omitempty"`
}

// BillRunRequest is the request to generate bills for every flat.
type BillRunRequest struct {
	Period     string `json:"period" validate:"required"`
	Regenerate bool   `json:"regenerate,omitempty"`
}

// BillRunItemDTO is one flat's outcome within a bill run.
type BillRunItemDTO struct {
	FlatNumber string   `json:"flat_number"`
	Bill       *BillDTO `json:"bill,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// OutstandingDTO is the per-head arrears snapshot for a flat.
type OutstandingDTO struct {
	FlatNumber string            `json:"flat_number"`
	AsOf       string            `json:"as_of"`
	PerHead    map[string]string `json:"per_head"`
	Legacy     string            `json:"legacy"`
	Total      string            `json:"total"`
}

// HeadEntryDTO is a single line of a payment's head breakdown.
type HeadEntryDTO struct {
	Label  string `json:"label,omitempty"`
	Head   string `json:"head,omitempty"`
	Amount string `json:"amount" validate:"required"`
}

// PeriodRangeDTO is an inclusive month range.
type PeriodRangeDTO struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
}

// RecordPaymentRequest is the request to record a payment.
type RecordPaymentRequest struct {
	FlatNumber        string          `json:"flat_number" validate:"required"`
	Amount            string          `json:"amount" validate:"required"`
	Date              string          `json:"date" validate:"required"`
	Mode              string          `json:"mode" validate:"required,oneof=cash cheque transfer upi"`
	Period            string          `json:"period,omitempty"`
	MaintenancePeriod *PeriodRangeDTO `json:"maintenance_period,omitempty"`
	ParkingPeriod     *PeriodRangeDTO `json:"parking_period,omitempty"`
	HeadBreakdown     []HeadEntryDTO  `json:"head_breakdown,omitempty" validate:"omitempty,dive"`
}

// PaymentDTO represents a payment in API responses.
type PaymentDTO struct {
	ID                string          `json:"id"`
	ReceiptNumber     string          `json:"receipt_number"`
	FlatNumber        string          `json:"flat_number"`
	Amount            string          `json:"amount"`
	Date              string          `json:"date"`
	Mode              string          `json:"mode"`
	Period            string          `json:"period,omitempty"`
	MaintenancePeriod *PeriodRangeDTO `json:"maintenance_period,omitempty"`
	ParkingPeriod     *PeriodRangeDTO `json:"parking_period,omitempty"`
	HeadBreakdown     []HeadEntryDTO  `json:"head_breakdown,omitempty"`
}

// AllocationDTO is one attribution of payment money.
type AllocationDTO struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	BillID    string `json:"bill_id,omitempty"`
	Head      string `json:"head,omitempty"`
	Amount    string `json:"amount"`
}

// AffectedBillDTO reports a bill touched by an allocation pass.
type AffectedBillDTO struct {
	Bill           BillDTO `json:"bill"`
	AttributedPaid string  `json:"attributed_paid"`
	Status         string  `json:"status"`
}

// PaymentResultDTO is the response after recording a payment.
type PaymentResultDTO struct {
	Payment       PaymentDTO        `json:"payment"`
	Allocations   []AllocationDTO   `json:"allocations"`
	AffectedBills []AffectedBillDTO `json:"affected_bills"`
	Unmatched     bool              `json:"unmatched"`
}

// BillStatementDTO is a bill with its settlement detail.
type BillStatementDTO struct {
	Bill           BillDTO         `json:"bill"`
	AttributedPaid string          `json:"attributed_paid"`
	Balance        string          `json:"balance"`
	Allocations    []AllocationDTO `json:"allocations"`
}

// FlatStatementDTO is the full account statement for a flat.
type FlatStatementDTO struct {
	Flat                FlatDTO            `json:"flat"`
	Bills               []BillStatementDTO `json:"bills"`
	UnallocatedPayments []PaymentDTO       `json:"unallocated_payments"`
	LegacyPrincipal     string             `json:"legacy_principal"`
	LegacyCredits       string             `json:"legacy_credits"`
	LegacyRemaining     string             `json:"legacy_remaining"`
	TotalBilled         string             `json:"total_billed"`
	TotalPaid           string             `json:"total_paid"`
}

// ReceiptDTO is a payment with its attribution detail.
type ReceiptDTO struct {
	Payment     PaymentDTO      `json:"payment"`
	Allocations []AllocationDTO `json:"allocations"`
	Allocated   string          `json:"allocated"`
	Unallocated string          `json:"unallocated"`
}

// BackfillRequest supplies the fixed charge table for pre-migration bills.
type BackfillRequest struct {
	Charges map[string]string `json:"charges" validate:"required,min=1"`
}

// BackfillResultDTO reports one backfilled bill.
type BackfillResultDTO struct {
	BillID     string `json:"bill_id"`
	FlatNumber string `json:"flat_number"`
	Period     string `json:"period"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toFlatDTO(f billing.Flat) FlatDTO {
	return FlatDTO{
		FlatNumber:        f.FlatNumber,
		OwnerName:         f.OwnerName,
		Mobile:            f.Mobile,
		Status:            string(f.Status),
		ParkingFour:       f.Parking.FourWheeler,
		ParkingThree:      f.Parking.ThreeWheeler,
		ParkingTwo:        f.Parking.TwoWheeler,
		LegacyOutstanding: f.LegacyOutstanding.StringFixed(2),
		CreatedAt:         f.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         f.UpdatedAt.Format(time.RFC3339),
	}
}

func toBillDTO(b billing.Bill) BillDTO {
	return BillDTO{
		ID:                   string(b.ID),
		BillNumber:           b.BillNumber,
		FlatNumber:           b.FlatNumber,
		Period:               b.Period.String(),
		BaseCharges:          headAmountsMap(b.BaseCharges),
		OutstandingBreakdown: nonNilMap(headAmountsMap(b.OutstandingBreakdown)),
		LegacyOutstanding:    b.LegacyOutstanding.StringFixed(2),
		TotalAmount:          b.TotalAmount.StringFixed(2),
		Status:               string(b.Status),
		GeneratedDate:        b.GeneratedDate.Format(time.RFC3339),
		DueDate:              b.DueDate.Format("2006-01-02"),
	}
}

func toBillDTOs(bills []billing.Bill) []BillDTO {
	dtos := make([]BillDTO, len(bills))
	for i, b := range bills {
		dtos[i] = toBillDTO(b)
	}
	return dtos
}

func toPaymentDTO(p billing.Payment) PaymentDTO {
	dto := PaymentDTO{
		ID:            string(p.ID),
		ReceiptNumber: p.ReceiptNumber,
		FlatNumber:    p.FlatNumber,
		Amount:        p.Amount.StringFixed(2),
		Date:          p.Date.Format("2006-01-02"),
		Mode:          string(p.Mode),
	}
	if !p.Period.IsZero() {
		dto.Period = p.Period.String()
	}
	if p.MaintenancePeriod != nil {
		dto.MaintenancePeriod = &PeriodRangeDTO{
			From: p.MaintenancePeriod.From.String(),
			To:   p.MaintenancePeriod.To.String(),
		}
	}
	if p.ParkingPeriod != nil {
		dto.ParkingPeriod = &PeriodRangeDTO{
			From: p.ParkingPeriod.From.String(),
			To:   p.ParkingPeriod.To.String(),
		}
	}
	for _, e := range p.HeadBreakdown {
		dto.HeadBreakdown = append(dto.HeadBreakdown, HeadEntryDTO{
			Label:  e.Label,
			Head:   string(e.Head),
			Amount: e.Amount.StringFixed(2),
		})
	}
	return dto
}

func toPaymentDTOs(payments []billing.Payment) []PaymentDTO {
	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	return dtos
}

func toAllocationDTO(a billing.Allocation) AllocationDTO {
	return AllocationDTO{
		ID:        string(a.ID),
		PaymentID: string(a.PaymentID),
		BillID:    string(a.BillID),
		Head:      string(a.Head),
		Amount:    a.Amount.StringFixed(2),
	}
}

func toAllocationDTOs(allocs []billing.Allocation) []AllocationDTO {
	dtos := make([]AllocationDTO, 0, len(allocs))
	for _, a := range allocs {
		dtos = append(dtos, toAllocationDTO(a))
	}
	return dtos
}

func toAffectedBillDTOs(affected []billing.AffectedBill) []AffectedBillDTO {
	dtos := make([]AffectedBillDTO, 0, len(affected))
	for _, ab := range affected {
		dtos = append(dtos, AffectedBillDTO{
			Bill:           toBillDTO(ab.Bill),
			AttributedPaid: ab.AttributedPaid.StringFixed(2),
			Status:         string(ab.Status),
		})
	}
	return dtos
}

func toChargeConfigDTO(cfg billing.ChargeConfiguration) ChargeConfigDTO {
	return ChargeConfigDTO{
		Maintenance:         cfg.Maintenance.StringFixed(2),
		SinkingFund:         cfg.SinkingFund.StringFixed(2),
		Festival:            cfg.Festival.StringFixed(2),
		BuildingMaintenance: cfg.BuildingMaintenance.StringFixed(2),
		Occupancy:           cfg.Occupancy.StringFixed(2),
		NonOccupancy:        cfg.NonOccupancy.StringFixed(2),
		NOC:                 cfg.NOC.StringFixed(2),
		InterestRate:        cfg.InterestRate.String(),
		DueDay:              cfg.DueDay,
		LastUpdated:         cfg.LastUpdated.Format(time.RFC3339),
	}
}

func headAmountsMap(ha billing.HeadAmounts) map[string]string {
	if ha == nil {
		return nil
	}
	out := make(map[string]string, len(ha))
	for h, v := range ha {
		out[string(h)] = v.StringFixed(2)
	}
	return out
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func parseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

func parseRangeDTO(dto *PeriodRangeDTO) (*billing.PeriodRange, error) {
	if dto == nil {
		return nil, nil
	}
	from, err := billing.ParsePeriod(dto.From)
	if err != nil {
		return nil, err
	}
	to, err := billing.ParsePeriod(dto.To)
	if err != nil {
		return nil, err
	}
	return &billing.PeriodRange{From: from, To: to}, nil
}
