// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/societyworks/billing-engine/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	config      *billing.ChargeConfiguration
	flats       map[string]billing.Flat
	bills       map[billing.BillID]billing.Bill
	payments    map[billing.PaymentID]billing.Payment
	allocations map[billing.AllocationID]billing.Allocation
	counters    map[counterKey]int
}

type counterKey struct {
	Name   string
	Period billing.Period
}

func NewMemory() *Memory {
	return &Memory{
		flats:       make(map[string]billing.Flat),
		bills:       make(map[billing.BillID]billing.Bill),
		payments:    make(map[billing.PaymentID]billing.Payment),
		allocations: make(map[billing.AllocationID]billing.Allocation),
		counters:    make(map[counterKey]int),
	}
}

// --- Charge configuration ---

func (m *Memory) GetChargeConfiguration(_ context.Context) (*billing.ChargeConfiguration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return nil, billing.ErrMissingConfiguration
	}
	cfg := *m.config
	return &cfg, nil
}

func (m *Memory) SaveChargeConfiguration(_ context.Context, cfg billing.ChargeConfiguration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = &cfg
	return nil
}

// --- Flats ---

func (m *Memory) CreateFlat(_ context.Context, flat billing.Flat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.flats[flat.FlatNumber]; exists {
		return billing.ErrDuplicateFlat
	}
	m.flats[flat.FlatNumber] = flat
	return nil
}

func (m *Memory) GetFlat(_ context.Context, flatNumber string) (*billing.Flat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.flats[flatNumber]
	if !ok {
		return nil, billing.ErrFlatNotFound
	}
	return &f, nil
}

func (m *Memory) ListFlats(_ context.Context) ([]billing.Flat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	flats := make([]billing.Flat, 0, len(m.flats))
	for _, f := range m.flats {
		flats = append(flats, f)
	}
	sort.Slice(flats, func(i, j int) bool { return flats[i].FlatNumber < flats[j].FlatNumber })
	return flats, nil
}

func (m *Memory) UpdateFlat(_ context.Context, flat billing.Flat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.flats[flat.FlatNumber]; !ok {
		return billing.ErrFlatNotFound
	}
	m.flats[flat.FlatNumber] = flat
	return nil
}

// --- Bills ---

func (m *Memory) SaveBill(_ context.Context, bill billing.Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bills {
		if b.FlatNumber == bill.FlatNumber && b.Period.Equal(bill.Period) {
			return &billing.DuplicatePeriodError{
				FlatNumber: bill.FlatNumber,
				Period:     bill.Period,
				ExistingID: b.ID,
			}
		}
	}
	m.bills[bill.ID] = bill
	return nil
}

func (m *Memory) GetBill(_ context.Context, id billing.BillID) (*billing.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bills[id]
	if !ok {
		return nil, billing.ErrBillNotFound
	}
	return &b, nil
}

func (m *Memory) BillsByFlat(_ context.Context, flatNumber string) ([]billing.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var bills []billing.Bill
	for _, b := range m.bills {
		if b.FlatNumber == flatNumber {
			bills = append(bills, b)
		}
	}
	sort.Slice(bills, func(i, j int) bool { return bills[i].Period.Before(bills[j].Period) })
	return bills, nil
}

func (m *Memory) BillsByPeriod(_ context.Context, period billing.Period) ([]billing.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var bills []billing.Bill
	for _, b := range m.bills {
		if b.Period.Equal(period) {
			bills = append(bills, b)
		}
	}
	sort.Slice(bills, func(i, j int) bool { return bills[i].FlatNumber < bills[j].FlatNumber })
	return bills, nil
}

func (m *Memory) UpdateBillStatus(_ context.Context, id billing.BillID, status billing.BillStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bills[id]
	if !ok {
		return billing.ErrBillNotFound
	}
	b.Status = status
	m.bills[id] = b
	return nil
}

func (m *Memory) DeleteBill(_ context.Context, id billing.BillID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bills[id]; !ok {
		return billing.ErrBillNotFound
	}
	delete(m.bills, id)
	return nil
}

func (m *Memory) ReplaceBillCharges(_ context.Context, id billing.BillID, base billing.HeadAmounts) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bills[id]
	if !ok {
		return billing.ErrBillNotFound
	}
	if b.HasBaseCharges() {
		return billing.ErrImmutableBill
	}
	b.BaseCharges = base.Round()
	b.TotalAmount = b.BaseCharges.Total().
		Add(b.OutstandingBreakdown.Total()).
		Add(b.LegacyOutstanding)
	m.bills[id] = b
	return nil
}

// --- Payments ---

func (m *Memory) SavePayment(_ context.Context, payment billing.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[payment.ID] = payment
	return nil
}

func (m *Memory) GetPayment(_ context.Context, id billing.PaymentID) (*billing.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, billing.ErrPaymentNotFound
	}
	return &p, nil
}

func (m *Memory) PaymentsByFlat(_ context.Context, flatNumber string) ([]billing.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var payments []billing.Payment
	for _, p := range m.payments {
		if p.FlatNumber == flatNumber {
			payments = append(payments, p)
		}
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].Date.Before(payments[j].Date) })
	return payments, nil
}

func (m *Memory) DeletePayment(_ context.Context, id billing.PaymentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[id]; !ok {
		return billing.ErrPaymentNotFound
	}
	delete(m.payments, id)
	return nil
}

// --- Allocations ---

func (m *Memory) SaveAllocations(_ context.Context, allocs []billing.Allocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range allocs {
		m.allocations[a.ID] = a
	}
	return nil
}

func (m *Memory) AllocationsByPayment(_ context.Context, id billing.PaymentID) ([]billing.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []billing.Allocation
	for _, a := range m.allocations {
		if a.PaymentID == id {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) AllocationsByBill(_ context.Context, id billing.BillID) ([]billing.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []billing.Allocation
	for _, a := range m.allocations {
		if a.BillID == id && !a.IsLegacyCredit() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) DeleteAllocationsByPayment(_ context.Context, id billing.PaymentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for aid, a := range m.allocations {
		if a.PaymentID == id {
			delete(m.allocations, aid)
		}
	}
	return nil
}

// --- Sequence counters ---

func (m *Memory) NextSequence(_ context.Context, name string, period billing.Period) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := counterKey{Name: name, Period: period}
	m.counters[k]++
	return m.counters[k], nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction. For the memory store this is
// simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(billing.Store) error) error {
	snapshot := tm.snapshot()
	if err := fn(tm.Memory); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	s := memorySnapshot{
		flats:       make(map[string]billing.Flat, len(tm.flats)),
		bills:       make(map[billing.BillID]billing.Bill, len(tm.bills)),
		payments:    make(map[billing.PaymentID]billing.Payment, len(tm.payments)),
		allocations: make(map[billing.AllocationID]billing.Allocation, len(tm.allocations)),
		counters:    make(map[counterKey]int, len(tm.counters)),
	}
	if tm.config != nil {
		cfg := *tm.config
		s.config = &cfg
	}
	for k, v := range tm.flats {
		s.flats[k] = v
	}
	for k, v := range tm.bills {
		s.bills[k] = v
	}
	for k, v := range tm.payments {
		s.payments[k] = v
	}
	for k, v := range tm.allocations {
		s.allocations[k] = v
	}
	for k, v := range tm.counters {
		s.counters[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.config = s.config
	tm.flats = s.flats
	tm.bills = s.bills
	tm.payments = s.payments
	tm.allocations = s.allocations
	tm.counters = s.counters
}

type memorySnapshot struct {
	config      *billing.ChargeConfiguration
	flats       map[string]billing.Flat
	bills       map[billing.BillID]billing.Bill
	payments    map[billing.PaymentID]billing.Payment
	allocations map[billing.AllocationID]billing.Allocation
	counters    map[counterKey]int
}
