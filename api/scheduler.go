/*
scheduler.go - Automated allocation scheduler

PURPOSE:
  Periodically checks for unresolved consumption records and runs the
  FIFO allocation engine when any exist. Keeps the ledger current
  without manual POST /api/allocation/run calls.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Skips the run entirely when nothing is unresolved
  - Skips the tick when a manual run is already in progress
  - Records run summaries in the log for audit

CONFIGURATION:
  - CheckInterval: How often to check (default: 15 minutes)
  - Enabled: Whether scheduler is active

USAGE:
  scheduler := NewAllocationScheduler(handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunAllocation endpoint (manual runs)
  - fifo/engine.go: allocation engine
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// AllocationScheduler handles automated allocation runs.
type AllocationScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool
	Logger        zerolog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewAllocationScheduler creates a new scheduler.
func NewAllocationScheduler(handler *Handler) *AllocationScheduler {
	return &AllocationScheduler{
		Handler:       handler,
		CheckInterval: 15 * time.Minute,
		Enabled:       true,
		Logger:        handler.Logger,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (s *AllocationScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info().Msg("scheduler disabled, not starting")
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)

	go s.run()

	s.Logger.Info().Dur("interval", s.CheckInterval).Msg("scheduler started")
}

// Stop stops the scheduler.
func (s *AllocationScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.Logger.Info().Msg("scheduler stopped")
	}
}

func (s *AllocationScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.checkAndProcess()

	for {
		select {
		case <-s.ticker.C:
			s.checkAndProcess()
		case <-s.stop:
			return
		}
	}
}

func (s *AllocationScheduler) checkAndProcess() {
	ctx := context.Background()

	unresolved, err := s.Handler.Store.ListUnresolvedConsumption(ctx)
	if err != nil {
		s.Logger.Error().Err(err).Msg("scheduler failed to list unresolved consumption")
		return
	}
	if len(unresolved) == 0 {
		return
	}

	if !s.Handler.running.CompareAndSwap(false, true) {
		s.Logger.Debug().Msg("scheduler skipping tick, run in progress")
		return
	}
	defer s.Handler.running.Store(false)

	result, err := s.Handler.Engine.Run(ctx)
	if err != nil {
		s.Logger.Error().Err(err).Msg("scheduled allocation run failed")
		return
	}

	s.Logger.Info().
		Int("processed", result.ProcessedConsumptions).
		Int("created", result.AllocationsCreated).
		Int("shortfalls", len(result.Shortfalls)).
		Str("quantity", result.TotalAllocatedQuantity.String()).
		Msg("scheduled allocation run completed")
}

// RunNow triggers an immediate check (for testing/admin).
func (s *AllocationScheduler) RunNow() {
	s.checkAndProcess()
}
