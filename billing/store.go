/*
store.go - Persistence interfaces for the billing engine

PURPOSE:
  Defines the interface between the engine and the record store. The engine
  treats persistence as synchronous collection access and is agnostic to the
  backing technology: the same contracts are satisfied by SQLite
  (store/sqlite) and by the in-memory store (billing/store).

KEY INTERFACES:
  Store:   flats, bills, payments, allocations, charge configuration,
           per-period sequence counters
  TxStore: Store plus WithTx for atomic multi-collection operations

TRANSACTIONALITY:
  Every top-level engine operation - generate a bill, record a payment,
  reverse a payment - runs inside WithTx: either all of its writes land or
  none do.

MUTATION DISCIPLINE:
  Bill monetary fields are written exactly once (SaveBill on a fresh
  snapshot). Status updates go through UpdateBillStatus only. There is no
  generic bill update; the append-only contract is structural.
*/
package billing

import "context"

// =============================================================================
// STORE
// =============================================================================

// Store is the record store the engine runs against.
type Store interface {
	ConfigProvider

	// SaveChargeConfiguration replaces the singleton rate table.
	SaveChargeConfiguration(ctx context.Context, cfg ChargeConfiguration) error

	// --- Flats ---

	// CreateFlat inserts a new flat. Returns ErrDuplicateFlat if the flat
	// number is taken.
	CreateFlat(ctx context.Context, flat Flat) error

	// GetFlat returns a flat by number, or ErrFlatNotFound.
	GetFlat(ctx context.Context, flatNumber string) (*Flat, error)

	// ListFlats returns every flat, ordered by flat number.
	ListFlats(ctx context.Context) ([]Flat, error)

	// UpdateFlat replaces a flat's mutable attributes. The flat number
	// itself is immutable.
	UpdateFlat(ctx context.Context, flat Flat) error

	// --- Bills ---

	// SaveBill inserts a bill snapshot. Returns ErrDuplicatePeriod if a
	// bill already exists for the (flat, period) pair.
	SaveBill(ctx context.Context, bill Bill) error

	// GetBill returns a bill by id, or ErrBillNotFound.
	GetBill(ctx context.Context, id BillID) (*Bill, error)

	// BillsByFlat returns every bill for a flat, ordered oldest period
	// first.
	BillsByFlat(ctx context.Context, flatNumber string) ([]Bill, error)

	// BillsByPeriod returns every bill for a period.
	BillsByPeriod(ctx context.Context, period Period) ([]Bill, error)

	// UpdateBillStatus sets a bill's status. The only bill mutation.
	UpdateBillStatus(ctx context.Context, id BillID, status BillStatus) error

	// DeleteBill removes a bill. Destructive admin operation used only for
	// explicit regeneration; normal flow never deletes bills.
	DeleteBill(ctx context.Context, id BillID) error

	// ReplaceBillCharges rewrites a pre-head bill's base charges during the
	// backfill migration, re-deriving the bill's total so conservation
	// holds. The one sanctioned exception to bill immutability; rejects
	// bills that already carry base charges with ErrImmutableBill.
	ReplaceBillCharges(ctx context.Context, id BillID, base HeadAmounts) error

	// --- Payments ---

	SavePayment(ctx context.Context, payment Payment) error
	GetPayment(ctx context.Context, id PaymentID) (*Payment, error)
	PaymentsByFlat(ctx context.Context, flatNumber string) ([]Payment, error)
	DeletePayment(ctx context.Context, id PaymentID) error

	// --- Allocations ---

	SaveAllocations(ctx context.Context, allocs []Allocation) error
	AllocationsByPayment(ctx context.Context, id PaymentID) ([]Allocation, error)
	AllocationsByBill(ctx context.Context, id BillID) ([]Allocation, error)
	DeleteAllocationsByPayment(ctx context.Context, id PaymentID) error

	// --- Sequence counters ---

	// NextSequence atomically increments and returns the per-(name, period)
	// counter, starting at 1. Used for bill and receipt numbers; safe under
	// concurrent generation.
	NextSequence(ctx context.Context, name string, period Period) (int, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn against a transactional view of the store.
	// If fn returns an error the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// Sequence counter names.
const (
	SeqBill    = "bill"
	SeqReceipt = "receipt"
)
