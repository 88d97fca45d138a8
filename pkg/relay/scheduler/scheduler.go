// Package scheduler runs the relay's periodic maintenance jobs: expiring
// authentication challenges and purging stale queued messages. Jobs log
// failures and keep running; they never abort the process.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/quietwire/quietwire/internal/logger"
	"github.com/quietwire/quietwire/pkg/metrics"
	"github.com/quietwire/quietwire/pkg/relay/store"
)

const (
	// challengeReapInterval is how often expired login challenges are purged.
	challengeReapInterval = 10 * time.Minute

	// queueReapHourUTC is the UTC hour of the daily queued-message purge.
	queueReapHourUTC = 3

	// queuedMessageMaxAge is the retention cap for queued messages,
	// applied on top of each row's own expiry.
	queuedMessageMaxAge = 30 * 24 * time.Hour
)

// Scheduler owns the background maintenance jobs. Start is idempotent and
// Stop cancels all scheduled ticks, so tests can run it without leaking
// goroutines.
type Scheduler struct {
	store store.Store

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a scheduler operating on the given store.
func New(s store.Store) *Scheduler {
	return &Scheduler{store: s}
}

// Start launches the background jobs. A second call while running is a
// no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{}, 2)

	go s.runChallengeReaper(ctx)
	go s.runQueueReaper(ctx)

	logger.Info("scheduler started",
		"challenge_reap_interval", challengeReapInterval.String(),
		"queue_reap_hour_utc", queueReapHourUTC,
	)
}

// Stop cancels all scheduled ticks and waits for the workers to exit.
// Safe to call when not running, and safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	s.cancel()

	<-s.done
	<-s.done

	logger.Info("scheduler stopped")
}

func (s *Scheduler) runChallengeReaper(ctx context.Context) {
	defer func() { s.done <- struct{}{} }()

	ticker := time.NewTicker(challengeReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ReapChallenges(ctx)
		}
	}
}

func (s *Scheduler) runQueueReaper(ctx context.Context) {
	defer func() { s.done <- struct{}{} }()

	for {
		timer := time.NewTimer(untilNextDailyRun(time.Now().UTC()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.ReapQueuedMessages(ctx)
		}
	}
}

// untilNextDailyRun returns the duration until the next daily purge slot.
func untilNextDailyRun(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), queueReapHourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}

// ReapChallenges deletes expired authentication challenges. Exposed so the
// job can be triggered directly from tests.
func (s *Scheduler) ReapChallenges(ctx context.Context) {
	removed, err := s.store.ReapExpiredChallenges(ctx, time.Now())
	if err != nil {
		logger.Warn("challenge reaper failed", "error", err)
		return
	}
	metrics.ObserveChallengeReap(removed)
	if removed > 0 {
		logger.Info("expired challenges purged", "count", removed)
	}
}

// ReapQueuedMessages deletes expired and over-retention queued messages.
// Exposed so the job can be triggered directly from tests.
func (s *Scheduler) ReapQueuedMessages(ctx context.Context) {
	expired, stale, err := s.store.ReapExpiredMessages(ctx, time.Now(), queuedMessageMaxAge)
	if err != nil {
		logger.Warn("queue reaper failed", "error", err)
		return
	}
	metrics.ObserveQueueReap(expired, stale)
	if expired > 0 || stale > 0 {
		logger.Info("queued messages purged", "expired", expired, "stale", stale)
	}
}
