package processor

import (
	"context"
	"errors"
	"log"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dcbengine/dcbengine/pkg/dcb"
)

// BatchHandler processes one fetched batch of events and returns the
// cursor progress should advance to on success.
type BatchHandler interface {
	Handle(ctx context.Context, key string, batch []dcb.Event, progress Progress) (dcb.Cursor, error)
}

// BatchHandlerFunc adapts a plain function to BatchHandler.
type BatchHandlerFunc func(ctx context.Context, key string, batch []dcb.Event, progress Progress) (dcb.Cursor, error)

func (f BatchHandlerFunc) Handle(ctx context.Context, key string, batch []dcb.Event, progress Progress) (dcb.Cursor, error) {
	return f(ctx, key, batch, progress)
}

// FetchResult is one Fetcher.Fetch call's outcome: the events matching the
// subscription's predicate, plus Scanned, the cursor of the last event the
// underlying query examined (matched or not). A sparse or required-only
// predicate can scan many non-matching events before finding (or running
// out of) a match; Scanned lets the scheduler advance progress past what
// was read even when Events comes back empty, instead of re-scanning the
// same dead window forever. Scanned is the zero Cursor when nothing was
// read at all.
type FetchResult struct {
	Events  []dcb.Event
	Scanned dcb.Cursor
}

// Fetcher fetches the next batch of events for a subscription key, after
// the given cursor, bounded to batchSize.
type Fetcher interface {
	Fetch(ctx context.Context, key string, after dcb.Cursor, batchSize int) (FetchResult, error)
}

// FetcherFunc adapts a plain function to Fetcher.
type FetcherFunc func(ctx context.Context, key string, after dcb.Cursor, batchSize int) (FetchResult, error)

func (f FetcherFunc) Fetch(ctx context.Context, key string, after dcb.Cursor, batchSize int) (FetchResult, error) {
	return f(ctx, key, after, batchSize)
}

// Scheduler runs the fetch/handle/advance loop for one subscription key
// in its own goroutine.
type Scheduler struct {
	key          string
	lockKey      string
	config       Config
	elector      *LeaderElector
	progress     *ProgressStore
	fetcher      Fetcher
	handler      BatchHandler
	failStatus   Status
	instanceName string
	logger       *log.Logger
}

// NewScheduler constructs a Scheduler. lockKey is the advisory-lock key
// this subscription acquires leadership under: shared across every
// Scheduler in a subsystem under LockGlobal, or derived per-key under
// LockPerSubscription. failStatus is the status a subscription is set to
// once it crosses backoffThreshold (pkg/views and pkg/outbox both pass
// FAILED).
func NewScheduler(key, lockKey string, config Config, elector *LeaderElector, progress *ProgressStore, fetcher Fetcher, handler BatchHandler, failStatus Status, instanceName string, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		key: key, lockKey: lockKey, config: config,
		elector: elector, progress: progress, fetcher: fetcher, handler: handler,
		failStatus: failStatus, instanceName: instanceName, logger: logger,
	}
}

// Run executes the fetch/handle/advance loop until ctx is cancelled.
// Cancellation is checked before every sleep and before every SQL call; a
// received cancellation returns immediately without touching progress.
func (s *Scheduler) Run(ctx context.Context) {
	consecutiveHandlerErrors := 0
	claimed := false
	for {
		if ctx.Err() != nil {
			return
		}

		if !s.elector.IsLeader(s.lockKey) {
			acquired, err := s.elector.TryAcquire(ctx, s.lockKey)
			if err != nil || !acquired {
				claimed = false
				if !sleepOrDone(ctx, s.config.LeaderRetryInterval) {
					return
				}
				continue
			}
			claimed = false
		}

		if !claimed {
			if err := s.progress.ClaimLeadership(ctx, s.key, s.instanceName); err != nil {
				s.logger.Printf("processor: %s: failed to claim leadership: %v", s.key, err)
			} else {
				claimed = true
			}
		} else if err := s.progress.Heartbeat(ctx, s.key, s.instanceName); err != nil {
			s.logger.Printf("processor: %s: failed to heartbeat leadership: %v", s.key, err)
		}

		prog, err := s.progress.Get(ctx, s.key)
		if err != nil {
			if isSchemaMissing(err) {
				s.logger.Printf("processor: %s: schema not ready, retrying", s.key)
				if !sleepOrDone(ctx, s.config.PollingInterval) {
					return
				}
				continue
			}
			s.logger.Printf("processor: %s: failed to read progress: %v", s.key, err)
			if !sleepOrDone(ctx, s.config.PollingInterval) {
				return
			}
			continue
		}

		if prog.Status == StatusPaused || prog.Status == StatusFailed {
			if !sleepOrDone(ctx, s.config.PollingInterval) {
				return
			}
			continue
		}

		batch, err := s.fetcher.Fetch(ctx, s.key, prog.Cursor, s.config.BatchSize)
		if err != nil {
			if isSchemaMissing(err) {
				if !sleepOrDone(ctx, s.config.PollingInterval) {
					return
				}
				continue
			}
			consecutiveHandlerErrors = s.recordError(ctx, err)
			if !sleepOrDone(ctx, s.backoffDelay(consecutiveHandlerErrors)) {
				return
			}
			continue
		}

		if len(batch.Events) == 0 {
			// Nothing matched, but the fetcher may still have scanned past
			// non-matching events (a sparse filter, or a required-only
			// topic with no store-side predicate). Advancing past what was
			// scanned keeps a dead window from being re-read every cycle,
			// which would otherwise stall the subscription forever.
			if prog.Cursor.Before(batch.Scanned) {
				if err := s.progress.Advance(ctx, s.key, s.instanceName, batch.Scanned); err != nil {
					s.logger.Printf("processor: %s: failed to advance progress: %v", s.key, err)
				}
				continue
			}
			if !sleepOrDone(ctx, s.config.PollingInterval) {
				return
			}
			continue
		}

		newCursor, err := s.handler.Handle(ctx, s.key, batch.Events, prog)
		if err != nil {
			consecutiveHandlerErrors = s.recordError(ctx, err)
			if !sleepOrDone(ctx, s.backoffDelay(consecutiveHandlerErrors)) {
				return
			}
			continue
		}

		consecutiveHandlerErrors = 0
		if newCursor.Before(batch.Scanned) {
			newCursor = batch.Scanned
		}
		if err := s.progress.Advance(ctx, s.key, s.instanceName, newCursor); err != nil {
			s.logger.Printf("processor: %s: failed to advance progress: %v", s.key, err)
		}
	}
}

func (s *Scheduler) recordError(ctx context.Context, err error) int {
	count, recErr := s.progress.RecordError(ctx, s.key, s.instanceName, err.Error(), s.config.BackoffThreshold, s.failStatus)
	if recErr != nil {
		s.logger.Printf("processor: %s: failed to record error: %v", s.key, recErr)
	}
	return count
}

// backoffDelay computes the exponential backoff delay, capped at
// maxBackoffSeconds, active once error_count reaches backoffThreshold.
func (s *Scheduler) backoffDelay(errorCount int) time.Duration {
	if errorCount < s.config.BackoffThreshold {
		return s.config.PollingInterval
	}
	exp := errorCount - s.config.BackoffThreshold
	delay := time.Duration(float64(s.config.PollingInterval) * math.Pow(s.config.BackoffMultiplier, float64(exp)))
	if delay > s.config.MaxBackoff {
		delay = s.config.MaxBackoff
	}
	return delay
}

// sleepOrDone sleeps for d, returning false immediately if ctx is
// cancelled first: a scheduler's current sleep is interruptible.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// isSchemaMissing reports whether err is Postgres's "relation does not
// exist" (SQLSTATE 42P01): migrations may still be running when a
// scheduler first ticks, and that must not be treated as a handler
// failure.
func isSchemaMissing(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P01"
	}
	return strings.Contains(err.Error(), "does not exist")
}
