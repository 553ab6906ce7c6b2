package sync

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/nhle/fieldworker/internal/api"
	"github.com/nhle/fieldworker/internal/connectivity"
)

// DefaultInterval is the periodic full-sync cadence.
const DefaultInterval = 15 * time.Minute

// DefaultMaxAttempts bounds the retries of a failing sync cycle before the
// scheduler gives up until the next trigger.
const DefaultMaxAttempts = 3

// Scheduler drives the engine on a timer and on connectivity regained,
// so queued offline work drains as soon as the server is back instead of
// waiting out the interval.
type Scheduler struct {
	engine  *Engine
	monitor connectivity.Monitor
	logger  *log.Logger

	interval    time.Duration
	maxAttempts int

	force chan struct{}

	// sleep is swapped in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewScheduler creates a scheduler around engine. A non-positive interval
// or attempt count falls back to the default.
func NewScheduler(engine *Engine, monitor connectivity.Monitor, interval time.Duration, maxAttempts int, logger *log.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[sched] ", log.LstdFlags)
	}
	return &Scheduler{
		engine:      engine,
		monitor:     monitor,
		logger:      logger,
		interval:    interval,
		maxAttempts: maxAttempts,
		force:       make(chan struct{}, 1),
		sleep:       sleepCtx,
	}
}

// Force requests an immediate sync cycle. It never blocks; a cycle already
// requested absorbs the call.
func (s *Scheduler) Force() {
	select {
	case s.force <- struct{}{}:
	default:
	}
}

// Run executes sync cycles until ctx is cancelled. A cycle runs at startup,
// on every interval tick, on every offline-to-online transition, and on
// Force.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	updates := s.monitor.Updates()

	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runCycle(ctx)
		case online := <-updates:
			if online {
				s.logger.Printf("connectivity restored, syncing")
				s.runCycle(ctx)
			}
		case <-s.force:
			s.runCycle(ctx)
		}
	}
}

// runCycle replays the queue and refreshes the cache, retrying transient
// failures with exponential backoff. An auth failure is not retried: a dead
// session will not heal on its own.
func (s *Scheduler) runCycle(ctx context.Context) {
	if !s.monitor.Online() {
		return
	}

	backoff := time.Second
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.cycle(ctx)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		if api.IsUnauthorized(err) {
			s.logger.Printf("sync cycle: session invalid, re-login required: %v", err)
			return
		}

		s.logger.Printf("sync cycle attempt %d/%d failed: %v", attempt, s.maxAttempts, err)
		if attempt == s.maxAttempts {
			return
		}
		if err := s.sleep(ctx, backoff); err != nil {
			return
		}
		backoff *= 2
	}
}

func (s *Scheduler) cycle(ctx context.Context) error {
	synced, err := s.engine.SyncPendingActions(ctx)
	if synced > 0 {
		s.logger.Printf("replayed %d pending action(s)", synced)
	}
	if err != nil {
		return err
	}

	_, err = s.engine.RefreshTasks(ctx)
	if err == ErrUnavailable {
		// Nothing cached and nothing fetched; not worth retrying here.
		return nil
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
