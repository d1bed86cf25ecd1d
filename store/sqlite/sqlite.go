/*
Package sqlite provides a SQLite-backed implementation of the billing store.

PURPOSE:
  Implements billing.TxStore using SQLite. In production the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  charge_config:    Singleton current rate table
  flats:            The billed units
  bills:            Immutable per-period snapshots (status is the only
                    mutable column in normal operation)
  payments:         Recorded receipts
  allocations:      Payment-to-bill attribution ledger
  period_counters:  Atomic per-(name, period) sequences for bill and
                    receipt numbers

IMMUTABILITY:
  Bill monetary columns are written on INSERT and by the backfill
  migration only. Status updates go through a dedicated UPDATE touching
  nothing else.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, with WAL (Write-Ahead Logging) for
  better readers/writer behavior. All queries run through an internal
  runner bound to either the root connection or an open transaction, so
  a transactional view never re-enters the mutex.

USAGE:
  store, err := sqlite.New("./data/society.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - billing/store.go: Interface definitions
  - billing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/societyworks/billing-engine/billing"
)

// Store implements billing.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
	q  queries
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, q: queries{db: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Singleton rate table (id is always 1)
	CREATE TABLE IF NOT EXISTS charge_config (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		maintenance TEXT NOT NULL,
		sinking_fund TEXT NOT NULL,
		festival TEXT NOT NULL,
		building_maintenance TEXT NOT NULL,
		occupancy TEXT NOT NULL,
		non_occupancy TEXT NOT NULL,
		noc TEXT NOT NULL,
		interest_rate TEXT NOT NULL,
		due_day INTEGER NOT NULL,
		last_updated TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS flats (
		flat_number TEXT PRIMARY KEY,
		owner_name TEXT NOT NULL,
		mobile TEXT,
		status TEXT NOT NULL,
		parking_four INTEGER NOT NULL DEFAULT 0,
		parking_three INTEGER NOT NULL DEFAULT 0,
		parking_two INTEGER NOT NULL DEFAULT 0,
		legacy_outstanding TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Immutable per-period snapshots
	CREATE TABLE IF NOT EXISTS bills (
		id TEXT PRIMARY KEY,
		bill_number TEXT NOT NULL,
		flat_number TEXT NOT NULL,
		period TEXT NOT NULL,
		base_charges_json TEXT,
		outstanding_json TEXT NOT NULL,
		legacy_outstanding TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		status TEXT NOT NULL,
		generated_date TEXT NOT NULL,
		due_date TEXT NOT NULL
	);

	-- CRITICAL: at most one bill per (flat, period)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_bills_flat_period
		ON bills(flat_number, period);
	CREATE INDEX IF NOT EXISTS idx_bills_period
		ON bills(period);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		receipt_number TEXT NOT NULL,
		flat_number TEXT NOT NULL,
		amount TEXT NOT NULL,
		date TEXT NOT NULL,
		mode TEXT NOT NULL,
		breakdown_json TEXT,
		period TEXT,
		maintenance_from TEXT,
		maintenance_to TEXT,
		parking_from TEXT,
		parking_to TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_payments_flat
		ON payments(flat_number);

	-- Payment-to-bill attribution ledger. bill_id '' = legacy credit.
	CREATE TABLE IF NOT EXISTS allocations (
		id TEXT PRIMARY KEY,
		payment_id TEXT NOT NULL,
		bill_id TEXT NOT NULL DEFAULT '',
		head TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_allocations_payment
		ON allocations(payment_id);
	CREATE INDEX IF NOT EXISTS idx_allocations_bill
		ON allocations(bill_id) WHERE bill_id != '';

	-- Atomic per-(name, period) sequences for display numbers
	CREATE TABLE IF NOT EXISTS period_counters (
		name TEXT NOT NULL,
		period TEXT NOT NULL,
		seq INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (name, period)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOCKED WRAPPERS (billing.Store interface)
// =============================================================================

func (s *Store) GetChargeConfiguration(ctx context.Context) (*billing.ChargeConfiguration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getChargeConfiguration(ctx)
}

func (s *Store) SaveChargeConfiguration(ctx context.Context, cfg billing.ChargeConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.saveChargeConfiguration(ctx, cfg)
}

func (s *Store) CreateFlat(ctx context.Context, flat billing.Flat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.createFlat(ctx, flat)
}

func (s *Store) GetFlat(ctx context.Context, flatNumber string) (*billing.Flat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getFlat(ctx, flatNumber)
}

func (s *Store) ListFlats(ctx context.Context) ([]billing.Flat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listFlats(ctx)
}

func (s *Store) UpdateFlat(ctx context.Context, flat billing.Flat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.updateFlat(ctx, flat)
}

func (s *Store) SaveBill(ctx context.Context, bill billing.Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.saveBill(ctx, bill)
}

func (s *Store) GetBill(ctx context.Context, id billing.BillID) (*billing.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getBill(ctx, id)
}

func (s *Store) BillsByFlat(ctx context.Context, flatNumber string) ([]billing.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.billsByFlat(ctx, flatNumber)
}

func (s *Store) BillsByPeriod(ctx context.Context, period billing.Period) ([]billing.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.billsByPeriod(ctx, period)
}

func (s *Store) UpdateBillStatus(ctx context.Context, id billing.BillID, status billing.BillStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.updateBillStatus(ctx, id, status)
}

func (s *Store) DeleteBill(ctx context.Context, id billing.BillID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.deleteBill(ctx, id)
}

func (s *Store) ReplaceBillCharges(ctx context.Context, id billing.BillID, base billing.HeadAmounts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.replaceBillCharges(ctx, id, base)
}

func (s *Store) SavePayment(ctx context.Context, payment billing.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.savePayment(ctx, payment)
}

func (s *Store) GetPayment(ctx context.Context, id billing.PaymentID) (*billing.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getPayment(ctx, id)
}

func (s *Store) PaymentsByFlat(ctx context.Context, flatNumber string) ([]billing.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.paymentsByFlat(ctx, flatNumber)
}

func (s *Store) DeletePayment(ctx context.Context, id billing.PaymentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.deletePayment(ctx, id)
}

func (s *Store) SaveAllocations(ctx context.Context, allocs []billing.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.saveAllocations(ctx, allocs)
}

func (s *Store) AllocationsByPayment(ctx context.Context, id billing.PaymentID) ([]billing.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.allocationsByPayment(ctx, id)
}

func (s *Store) AllocationsByBill(ctx context.Context, id billing.BillID) ([]billing.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.allocationsByBill(ctx, id)
}

func (s *Store) DeleteAllocationsByPayment(ctx context.Context, id billing.PaymentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.deleteAllocationsByPayment(ctx, id)
}

func (s *Store) NextSequence(ctx context.Context, name string, period billing.Period) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.nextSequence(ctx, name, period)
}

// =============================================================================
// TRANSACTIONAL STORE (billing.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. The transactional view
// runs its queries against the open sql.Tx and never re-enters the mutex.
func (s *Store) WithTx(ctx context.Context, fn func(store billing.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txView{q: queries{db: sqlTx}}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txView adapts queries to billing.Store inside an open transaction.
type txView struct {
	q queries
}

func (v *txView) GetChargeConfiguration(ctx context.Context) (*billing.ChargeConfiguration, error) {
	return v.q.getChargeConfiguration(ctx)
}
func (v *txView) SaveChargeConfiguration(ctx context.Context, cfg billing.ChargeConfiguration) error {
	return v.q.saveChargeConfiguration(ctx, cfg)
}
func (v *txView) CreateFlat(ctx context.Context, flat billing.Flat) error {
	return v.q.createFlat(ctx, flat)
}
func (v *txView) GetFlat(ctx context.Context, flatNumber string) (*billing.Flat, error) {
	return v.q.getFlat(ctx, flatNumber)
}
func (v *txView) ListFlats(ctx context.Context) ([]billing.Flat, error) {
	return v.q.listFlats(ctx)
}
func (v *txView) UpdateFlat(ctx context.Context, flat billing.Flat) error {
	return v.q.updateFlat(ctx, flat)
}
func (v *txView) SaveBill(ctx context.Context, bill billing.Bill) error {
	return v.q.saveBill(ctx, bill)
}
func (v *txView) GetBill(ctx context.Context, id billing.BillID) (*billing.Bill, error) {
	return v.q.getBill(ctx, id)
}
func (v *txView) BillsByFlat(ctx context.Context, flatNumber string) ([]billing.Bill, error) {
	return v.q.billsByFlat(ctx, flatNumber)
}
func (v *txView) BillsByPeriod(ctx context.Context, period billing.Period) ([]billing.Bill, error) {
	return v.q.billsByPeriod(ctx, period)
}
func (v *txView) UpdateBillStatus(ctx context.Context, id billing.BillID, status billing.BillStatus) error {
	return v.q.updateBillStatus(ctx, id, status)
}
func (v *txView) DeleteBill(ctx context.Context, id billing.BillID) error {
	return v.q.deleteBill(ctx, id)
}
func (v *txView) ReplaceBillCharges(ctx context.Context, id billing.BillID, base billing.HeadAmounts) error {
	return v.q.replaceBillCharges(ctx, id, base)
}
func (v *txView) SavePayment(ctx context.Context, payment billing.Payment) error {
	return v.q.savePayment(ctx, payment)
}
func (v *txView) GetPayment(ctx context.Context, id billing.PaymentID) (*billing.Payment, error) {
	return v.q.getPayment(ctx, id)
}
func (v *txView) PaymentsByFlat(ctx context.Context, flatNumber string) ([]billing.Payment, error) {
	return v.q.paymentsByFlat(ctx, flatNumber)
}
func (v *txView) DeletePayment(ctx context.Context, id billing.PaymentID) error {
	return v.q.deletePayment(ctx, id)
}
func (v *txView) SaveAllocations(ctx context.Context, allocs []billing.Allocation) error {
	return v.q.saveAllocations(ctx, allocs)
}
func (v *txView) AllocationsByPayment(ctx context.Context, id billing.PaymentID) ([]billing.Allocation, error) {
	return v.q.allocationsByPayment(ctx, id)
}
func (v *txView) AllocationsByBill(ctx context.Context, id billing.BillID) ([]billing.Allocation, error) {
	return v.q.allocationsByBill(ctx, id)
}
func (v *txView) DeleteAllocationsByPayment(ctx context.Context, id billing.PaymentID) error {
	return v.q.deleteAllocationsByPayment(ctx, id)
}
func (v *txView) NextSequence(ctx context.Context, name string, period billing.Period) (int, error) {
	return v.q.nextSequence(ctx, name, period)
}

// =============================================================================
// QUERY RUNNER - Shared by the root connection and open transactions
// =============================================================================

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

// --- Charge configuration ---

func (q queries) getChargeConfiguration(ctx context.Context) (*billing.ChargeConfiguration, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT maintenance, sinking_fund, festival, building_maintenance,
		       occupancy, non_occupancy, noc, interest_rate, due_day, last_updated
		FROM charge_config WHERE id = 1
	`)

	var (
		cfg         billing.ChargeConfiguration
		m, sf, f    string
		bm, o, n    string
		noc, ir     string
		lastUpdated string
	)
	err := row.Scan(&m, &sf, &f, &bm, &o, &n, &noc, &ir, &cfg.DueDay, &lastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, billing.ErrMissingConfiguration
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load charge configuration: %w", err)
	}
	cfg.Maintenance = mustParse(m)
	cfg.SinkingFund = mustParse(sf)
	cfg.Festival = mustParse(f)
	cfg.BuildingMaintenance = mustParse(bm)
	cfg.Occupancy = mustParse(o)
	cfg.NonOccupancy = mustParse(n)
	cfg.NOC = mustParse(noc)
	cfg.InterestRate = mustParse(ir)
	cfg.LastUpdated, _ = time.Parse(time.RFC3339, lastUpdated)
	return &cfg, nil
}

func (q queries) saveChargeConfiguration(ctx context.Context, cfg billing.ChargeConfiguration) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO charge_config
		(id, maintenance, sinking_fund, festival, building_maintenance,
		 occupancy, non_occupancy, noc, interest_rate, due_day, last_updated)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			maintenance = excluded.maintenance,
			sinking_fund = excluded.sinking_fund,
			festival = excluded.festival,
			building_maintenance = excluded.building_maintenance,
			occupancy = excluded.occupancy,
			non_occupancy = excluded.non_occupancy,
			noc = excluded.noc,
			interest_rate = excluded.interest_rate,
			due_day = excluded.due_day,
			last_updated = excluded.last_updated
	`,
		cfg.Maintenance.String(), cfg.SinkingFund.String(), cfg.Festival.String(),
		cfg.BuildingMaintenance.String(), cfg.Occupancy.String(), cfg.NonOccupancy.String(),
		cfg.NOC.String(), cfg.InterestRate.String(), cfg.DueDay,
		cfg.LastUpdated.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save charge configuration: %w", err)
	}
	return nil
}

// --- Flats ---

func (q queries) createFlat(ctx context.Context, flat billing.Flat) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO flats
		(flat_number, owner_name, mobile, status, parking_four, parking_three,
		 parking_two, legacy_outstanding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		flat.FlatNumber, flat.OwnerName, flat.Mobile, string(flat.Status),
		flat.Parking.FourWheeler, flat.Parking.ThreeWheeler, flat.Parking.TwoWheeler,
		flat.LegacyOutstanding.String(),
		flat.CreatedAt.UTC().Format(time.RFC3339),
		flat.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return billing.ErrDuplicateFlat
		}
		return fmt.Errorf("failed to create flat: %w", err)
	}
	return nil
}

func (q queries) getFlat(ctx context.Context, flatNumber string) (*billing.Flat, error) {
	flats, err := q.queryFlats(ctx, flatSelect+` WHERE flat_number = ?`, flatNumber)
	if err != nil {
		return nil, err
	}
	if len(flats) == 0 {
		return nil, billing.ErrFlatNotFound
	}
	return &flats[0], nil
}

func (q queries) listFlats(ctx context.Context) ([]billing.Flat, error) {
	return q.queryFlats(ctx, flatSelect+` ORDER BY flat_number ASC`)
}

func (q queries) updateFlat(ctx context.Context, flat billing.Flat) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE flats SET owner_name = ?, mobile = ?, status = ?,
			parking_four = ?, parking_three = ?, parking_two = ?,
			legacy_outstanding = ?, updated_at = ?
		WHERE flat_number = ?
	`,
		flat.OwnerName, flat.Mobile, string(flat.Status),
		flat.Parking.FourWheeler, flat.Parking.ThreeWheeler, flat.Parking.TwoWheeler,
		flat.LegacyOutstanding.String(),
		flat.UpdatedAt.UTC().Format(time.RFC3339),
		flat.FlatNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to update flat: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return billing.ErrFlatNotFound
	}
	return nil
}

const flatSelect = `
	SELECT flat_number, owner_name, mobile, status, parking_four,
	       parking_three, parking_two, legacy_outstanding, created_at, updated_at
	FROM flats`

func (q queries) queryFlats(ctx context.Context, query string, args ...any) ([]billing.Flat, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query flats: %w", err)
	}
	defer rows.Close()

	var flats []billing.Flat
	for rows.Next() {
		var (
			f                    billing.Flat
			status, legacy       string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&f.FlatNumber, &f.OwnerName, &f.Mobile, &status,
			&f.Parking.FourWheeler, &f.Parking.ThreeWheeler, &f.Parking.TwoWheeler,
			&legacy, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan flat: %w", err)
		}
		f.Status = billing.FlatStatus(status)
		f.LegacyOutstanding = mustParse(legacy)
		f.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		f.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		flats = append(flats, f)
	}
	return flats, rows.Err()
}

// --- Bills ---

func (q queries) saveBill(ctx context.Context, bill billing.Bill) error {
	baseJSON, err := headAmountsJSON(bill.BaseCharges)
	if err != nil {
		return err
	}
	outstandingJSON, err := headAmountsJSON(bill.OutstandingBreakdown)
	if err != nil {
		return err
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO bills
		(id, bill_number, flat_number, period, base_charges_json,
		 outstanding_json, legacy_outstanding, total_amount, status,
		 generated_date, due_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(bill.ID), bill.BillNumber, bill.FlatNumber, bill.Period.String(),
		baseJSON, orEmptyJSON(outstandingJSON),
		bill.LegacyOutstanding.String(), bill.TotalAmount.String(),
		string(bill.Status),
		bill.GeneratedDate.UTC().Format(time.RFC3339),
		bill.DueDate.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &billing.DuplicatePeriodError{
				FlatNumber: bill.FlatNumber,
				Period:     bill.Period,
			}
		}
		return fmt.Errorf("failed to save bill: %w", err)
	}
	return nil
}

func (q queries) getBill(ctx context.Context, id billing.BillID) (*billing.Bill, error) {
	bills, err := q.queryBills(ctx, billSelect+` WHERE id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	if len(bills) == 0 {
		return nil, billing.ErrBillNotFound
	}
	return &bills[0], nil
}

func (q queries) billsByFlat(ctx context.Context, flatNumber string) ([]billing.Bill, error) {
	return q.queryBills(ctx, billSelect+` WHERE flat_number = ? ORDER BY period ASC`, flatNumber)
}

func (q queries) billsByPeriod(ctx context.Context, period billing.Period) ([]billing.Bill, error) {
	return q.queryBills(ctx, billSelect+` WHERE period = ? ORDER BY flat_number ASC`, period.String())
}

func (q queries) updateBillStatus(ctx context.Context, id billing.BillID, status billing.BillStatus) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE bills SET status = ? WHERE id = ?`, string(status), string(id))
	if err != nil {
		return fmt.Errorf("failed to update bill status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return billing.ErrBillNotFound
	}
	return nil
}

func (q queries) deleteBill(ctx context.Context, id billing.BillID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM bills WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete bill: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return billing.ErrBillNotFound
	}
	return nil
}

func (q queries) replaceBillCharges(ctx context.Context, id billing.BillID, base billing.HeadAmounts) error {
	bill, err := q.getBill(ctx, id)
	if err != nil {
		return err
	}
	if bill.HasBaseCharges() {
		return billing.ErrImmutableBill
	}
	rounded := base.Round()
	baseJSON, err := headAmountsJSON(rounded)
	if err != nil {
		return err
	}
	total := rounded.Total().
		Add(bill.OutstandingBreakdown.Total()).
		Add(bill.LegacyOutstanding)
	_, err = q.db.ExecContext(ctx,
		`UPDATE bills SET base_charges_json = ?, total_amount = ? WHERE id = ?`,
		baseJSON, total.String(), string(id))
	if err != nil {
		return fmt.Errorf("failed to backfill bill charges: %w", err)
	}
	return nil
}

const billSelect = `
	SELECT id, bill_number, flat_number, period, base_charges_json,
	       outstanding_json, legacy_outstanding, total_amount, status,
	       generated_date, due_date
	FROM bills`

func (q queries) queryBills(ctx context.Context, query string, args ...any) ([]billing.Bill, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bills: %w", err)
	}
	defer rows.Close()

	var bills []billing.Bill
	for rows.Next() {
		var (
			b                  billing.Bill
			id, period, status string
			baseJSON           sql.NullString
			outstandingJSON    string
			legacy, total      string
			generated, due     string
		)
		if err := rows.Scan(&id, &b.BillNumber, &b.FlatNumber, &period,
			&baseJSON, &outstandingJSON, &legacy, &total, &status,
			&generated, &due); err != nil {
			return nil, fmt.Errorf("failed to scan bill: %w", err)
		}
		b.ID = billing.BillID(id)
		b.Period, err = billing.ParsePeriod(period)
		if err != nil {
			return nil, err
		}
		if baseJSON.Valid && baseJSON.String != "" {
			b.BaseCharges, err = headAmountsFromJSON(baseJSON.String)
			if err != nil {
				return nil, err
			}
		}
		b.OutstandingBreakdown, err = headAmountsFromJSON(outstandingJSON)
		if err != nil {
			return nil, err
		}
		if b.OutstandingBreakdown == nil {
			b.OutstandingBreakdown = billing.HeadAmounts{}
		}
		b.LegacyOutstanding = mustParse(legacy)
		b.TotalAmount = mustParse(total)
		b.Status = billing.BillStatus(status)
		b.GeneratedDate, _ = time.Parse(time.RFC3339, generated)
		b.DueDate, _ = time.Parse(time.RFC3339, due)
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

// --- Payments ---

func (q queries) savePayment(ctx context.Context, payment billing.Payment) error {
	var breakdownJSON sql.NullString
	if payment.HasBreakdown() {
		raw, err := json.Marshal(breakdownToJSON(payment.HeadBreakdown))
		if err != nil {
			return fmt.Errorf("failed to marshal breakdown: %w", err)
		}
		breakdownJSON = sql.NullString{String: string(raw), Valid: true}
	}

	var periodStr sql.NullString
	if !payment.Period.IsZero() {
		periodStr = sql.NullString{String: payment.Period.String(), Valid: true}
	}

	mf, mt := rangeStrings(payment.MaintenancePeriod)
	pf, pt := rangeStrings(payment.ParkingPeriod)

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO payments
		(id, receipt_number, flat_number, amount, date, mode, breakdown_json,
		 period, maintenance_from, maintenance_to, parking_from, parking_to)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(payment.ID), payment.ReceiptNumber, payment.FlatNumber,
		payment.Amount.String(), payment.Date.UTC().Format(time.RFC3339),
		string(payment.Mode), breakdownJSON, periodStr, mf, mt, pf, pt,
	)
	if err != nil {
		return fmt.Errorf("failed to save payment: %w", err)
	}
	return nil
}

func (q queries) getPayment(ctx context.Context, id billing.PaymentID) (*billing.Payment, error) {
	payments, err := q.queryPayments(ctx, paymentSelect+` WHERE id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, billing.ErrPaymentNotFound
	}
	return &payments[0], nil
}

func (q queries) paymentsByFlat(ctx context.Context, flatNumber string) ([]billing.Payment, error) {
	return q.queryPayments(ctx, paymentSelect+` WHERE flat_number = ? ORDER BY date ASC`, flatNumber)
}

func (q queries) deletePayment(ctx context.Context, id billing.PaymentID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM payments WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return billing.ErrPaymentNotFound
	}
	return nil
}

const paymentSelect = `
	SELECT id, receipt_number, flat_number, amount, date, mode, breakdown_json,
	       period, maintenance_from, maintenance_to, parking_from, parking_to
	FROM payments`

func (q queries) queryPayments(ctx context.Context, query string, args ...any) ([]billing.Payment, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []billing.Payment
	for rows.Next() {
		var (
			p              billing.Payment
			id, mode       string
			amount, date   string
			breakdownJSON  sql.NullString
			periodStr      sql.NullString
			mf, mt, pf, pt sql.NullString
		)
		if err := rows.Scan(&id, &p.ReceiptNumber, &p.FlatNumber, &amount,
			&date, &mode, &breakdownJSON, &periodStr, &mf, &mt, &pf, &pt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.ID = billing.PaymentID(id)
		p.Amount = mustParse(amount)
		p.Date, _ = time.Parse(time.RFC3339, date)
		p.Mode = billing.PaymentMode(mode)
		if breakdownJSON.Valid && breakdownJSON.String != "" {
			var entries []headEntryJSON
			if err := json.Unmarshal([]byte(breakdownJSON.String), &entries); err != nil {
				return nil, fmt.Errorf("failed to unmarshal breakdown: %w", err)
			}
			p.HeadBreakdown = breakdownFromJSON(entries)
		}
		if periodStr.Valid && periodStr.String != "" {
			p.Period, err = billing.ParsePeriod(periodStr.String)
			if err != nil {
				return nil, err
			}
		}
		if p.MaintenancePeriod, err = rangeFromStrings(mf, mt); err != nil {
			return nil, err
		}
		if p.ParkingPeriod, err = rangeFromStrings(pf, pt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// --- Allocations ---

func (q queries) saveAllocations(ctx context.Context, allocs []billing.Allocation) error {
	for _, a := range allocs {
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO allocations (id, payment_id, bill_id, head, amount, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			string(a.ID), string(a.PaymentID), string(a.BillID), string(a.Head),
			a.Amount.String(), a.CreatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to save allocation: %w", err)
		}
	}
	return nil
}

func (q queries) allocationsByPayment(ctx context.Context, id billing.PaymentID) ([]billing.Allocation, error) {
	return q.queryAllocations(ctx, allocSelect+` WHERE payment_id = ? ORDER BY created_at ASC, id ASC`, string(id))
}

func (q queries) allocationsByBill(ctx context.Context, id billing.BillID) ([]billing.Allocation, error) {
	return q.queryAllocations(ctx, allocSelect+` WHERE bill_id = ? ORDER BY created_at ASC, id ASC`, string(id))
}

func (q queries) deleteAllocationsByPayment(ctx context.Context, id billing.PaymentID) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM allocations WHERE payment_id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete allocations: %w", err)
	}
	return nil
}

const allocSelect = `
	SELECT id, payment_id, bill_id, head, amount, created_at
	FROM allocations`

func (q queries) queryAllocations(ctx context.Context, query string, args ...any) ([]billing.Allocation, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	var allocs []billing.Allocation
	for rows.Next() {
		var (
			a                           billing.Allocation
			id, paymentID, billID, head string
			amount, createdAt           string
		)
		if err := rows.Scan(&id, &paymentID, &billID, &head, &amount, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		a.ID = billing.AllocationID(id)
		a.PaymentID = billing.PaymentID(paymentID)
		a.BillID = billing.BillID(billID)
		a.Head = billing.Head(head)
		a.Amount = mustParse(amount)
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		allocs = append(allocs, a)
	}
	return allocs, rows.Err()
}

// --- Sequence counters ---

func (q queries) nextSequence(ctx context.Context, name string, period billing.Period) (int, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO period_counters (name, period, seq) VALUES (?, ?, 1)
		ON CONFLICT(name, period) DO UPDATE SET seq = seq + 1
		RETURNING seq
	`, name, period.String())

	var seq int
	if err := row.Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to advance %s counter for %s: %w", name, period, err)
	}
	return seq, nil
}

// =============================================================================
// HELPERS
// =============================================================================

type headEntryJSON struct {
	Label  string `json:"label,omitempty"`
	Head   string `json:"head,omitempty"`
	Amount string `json:"amount"`
}

func breakdownToJSON(entries []billing.HeadEntry) []headEntryJSON {
	out := make([]headEntryJSON, len(entries))
	for i, e := range entries {
		out[i] = headEntryJSON{Label: e.Label, Head: string(e.Head), Amount: e.Amount.String()}
	}
	return out
}

func breakdownFromJSON(entries []headEntryJSON) []billing.HeadEntry {
	out := make([]billing.HeadEntry, len(entries))
	for i, e := range entries {
		out[i] = billing.HeadEntry{Label: e.Label, Head: billing.Head(e.Head), Amount: mustParse(e.Amount)}
	}
	return out
}

func headAmountsJSON(ha billing.HeadAmounts) (sql.NullString, error) {
	if ha == nil {
		return sql.NullString{}, nil
	}
	m := make(map[string]string, len(ha))
	for h, v := range ha {
		m[string(h)] = v.String()
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal head amounts: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func headAmountsFromJSON(raw string) (billing.HeadAmounts, error) {
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal head amounts: %w", err)
	}
	ha := make(billing.HeadAmounts, len(m))
	for k, v := range m {
		ha[billing.Head(k)] = mustParse(v)
	}
	return ha, nil
}

func orEmptyJSON(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return "{}"
}

func rangeStrings(r *billing.PeriodRange) (from, to sql.NullString) {
	if r == nil {
		return sql.NullString{}, sql.NullString{}
	}
	return sql.NullString{String: r.From.String(), Valid: true},
		sql.NullString{String: r.To.String(), Valid: true}
}

func rangeFromStrings(from, to sql.NullString) (*billing.PeriodRange, error) {
	if !from.Valid || !to.Valid || from.String == "" || to.String == "" {
		return nil, nil
	}
	f, err := billing.ParsePeriod(from.String)
	if err != nil {
		return nil, err
	}
	t, err := billing.ParsePeriod(to.String)
	if err != nil {
		return nil, err
	}
	return &billing.PeriodRange{From: f, To: t}, nil
}

func mustParse(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Reset drops all data. Dev/test helper only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, table := range []string{"allocations", "payments", "bills", "flats", "charge_config", "period_counters"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}
