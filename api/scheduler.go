/*
scheduler.go - Automated monthly bill-run scheduler

PURPOSE:
  Periodically checks whether the current billing period still has unbilled
  flats and generates their bills automatically, so the society does not
  depend on an operator remembering to trigger the run on the 1st.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - A flat is due when it has no bill for the current calendar month
  - Already-billed flats are skipped; regeneration is never automatic
  - Per-flat failures are logged and retried on the next tick

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewBillRunScheduler(handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: BillRun endpoint (manual runs)
  - billing/generator.go: GenerateForPeriod
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/societyworks/billing-engine/billing"
)

// BillRunScheduler generates the current period's bills automatically.
type BillRunScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewBillRunScheduler creates a scheduler over the handler's engine.
func NewBillRunScheduler(h *Handler) *BillRunScheduler {
	return &BillRunScheduler{
		Handler:       h,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Now:           time.Now,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (s *BillRunScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Handler.Logger.Info("bill-run scheduler disabled, not starting")
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)
	go s.run()

	s.Handler.Logger.Info("bill-run scheduler started",
		zap.Duration("check_interval", s.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight check to finish.
func (s *BillRunScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.Handler.Logger.Info("bill-run scheduler stopped")
	}
}

func (s *BillRunScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start.
	s.checkAndGenerate()

	for {
		select {
		case <-s.ticker.C:
			s.checkAndGenerate()
		case <-s.stop:
			return
		}
	}
}

func (s *BillRunScheduler) checkAndGenerate() {
	ctx := context.Background()
	period := billing.PeriodOf(s.Now().UTC())

	due, err := s.dueFlats(ctx, period)
	if err != nil {
		s.Handler.Logger.Error("bill-run scheduler check failed", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}

	generated := 0
	failed := 0
	for _, flatNumber := range due {
		_, err := s.Handler.Generator.Generate(ctx, flatNumber, period, billing.GenerateOptions{})
		if err != nil {
			failed++
			s.Handler.Logger.Warn("scheduled bill generation failed",
				zap.String("flat", flatNumber),
				zap.String("period", period.String()),
				zap.Error(err))
			continue
		}
		generated++
	}

	s.Handler.Logger.Info("scheduled bill run completed",
		zap.String("period", period.String()),
		zap.Int("generated", generated),
		zap.Int("failed", failed))
}

// dueFlats returns the flats with no bill for the period.
func (s *BillRunScheduler) dueFlats(ctx context.Context, period billing.Period) ([]string, error) {
	flats, err := s.Handler.Store.ListFlats(ctx)
	if err != nil {
		return nil, err
	}
	bills, err := s.Handler.Store.BillsByPeriod(ctx, period)
	if err != nil {
		return nil, err
	}

	billed := make(map[string]bool, len(bills))
	for _, b := range bills {
		billed[b.FlatNumber] = true
	}

	var due []string
	for _, f := range flats {
		if !billed[f.FlatNumber] {
			due = append(due, f.FlatNumber)
		}
	}
	return due, nil
}

// RunNow triggers an immediate check (for testing/admin).
func (s *BillRunScheduler) RunNow() {
	s.checkAndGenerate()
}
