/*
scheduler.go - Background settlement scheduler

PURPOSE:
  Drives the settlement job on a fixed interval. Each tick runs the
  phases in order (user sync, order sync, exp calculation); a failed
  tick is logged and retried on the next one.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - A mutex serializes ticks, so a slow run is never overlapped by the
    next one or by the admin's manual trigger

CONFIGURATION:
  - Interval: How often to run (default: 5 minutes)
  - Enabled:  Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewSettlementScheduler(job, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - settlement/job.go: the work each tick performs
  - admin.go: RunSettlement, the manual trigger
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/prism/loyalty-engine/settlement"
)

// SettlementScheduler runs the settlement job periodically.
type SettlementScheduler struct {
	Job      *settlement.Job
	Interval time.Duration
	Enabled  bool
	Log      *zap.SugaredLogger

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
	runMu  sync.Mutex
}

// NewSettlementScheduler creates a new scheduler.
func NewSettlementScheduler(job *settlement.Job, log *zap.SugaredLogger) *SettlementScheduler {
	return &SettlementScheduler{
		Job:      job,
		Interval: 5 * time.Minute,
		Enabled:  true,
		Log:      log,
		stop:     make(chan bool),
	}
}

// Start begins the scheduler.
func (ss *SettlementScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		ss.Log.Infow("settlement scheduler disabled, not starting")
		return
	}

	ss.ticker = time.NewTicker(ss.Interval)
	ss.wg.Add(1)

	go ss.run()

	ss.Log.Infow("settlement scheduler started", "interval", ss.Interval)
}

// Stop stops the scheduler and waits for an in-flight tick.
func (ss *SettlementScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		ss.Log.Infow("settlement scheduler stopped")
	}
}

func (ss *SettlementScheduler) run() {
	defer ss.wg.Done()

	// Run immediately on start
	ss.tick()

	for {
		select {
		case <-ss.ticker.C:
			ss.tick()
		case <-ss.stop:
			return
		}
	}
}

func (ss *SettlementScheduler) tick() {
	ss.runMu.Lock()
	defer ss.runMu.Unlock()

	started := time.Now()
	if err := ss.Job.Run(context.Background()); err != nil {
		ss.Log.Errorw("settlement tick failed", "error", err, "elapsed", time.Since(started))
		return
	}
	ss.Log.Debugw("settlement tick complete", "elapsed", time.Since(started))
}

// RunNow triggers an immediate tick (for testing/admin).
func (ss *SettlementScheduler) RunNow() {
	ss.tick()
}
