package views

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dcbengine/dcbengine/pkg/dcb"
	"github.com/dcbengine/dcbengine/pkg/processor"
)

const globalLockKey = "dcbengine:views"

// Views wires pkg/processor's scheduler engine to one scheduler per
// registered Projector, keyed by its name. Unlike pkg/outbox, the default
// lock strategy is per-subscription: a slow or stuck view must not stall
// every other view sharing one instance.
type Views struct {
	store    dcb.EventStore
	pool     *pgxpool.Pool
	progress *processor.ProgressStore
	elector  *processor.LeaderElector
	manager  *processor.Manager
	config   processor.Config
	instance string
}

// DefaultConfig returns processor.DefaultConfig with LockStrategy set to
// LockPerSubscription, the views-specific default; processor.DefaultConfig's
// LockGlobal default is tuned for pkg/outbox instead.
func DefaultConfig() processor.Config {
	cfg := processor.DefaultConfig()
	cfg.LockStrategy = processor.LockPerSubscription
	return cfg
}

// New creates a Views orchestrator. connString is used by the leader
// elector to open its own dedicated advisory-lock connections, independent
// of pool.
func New(store dcb.EventStore, pool *pgxpool.Pool, connString string, instanceName string, config processor.Config) *Views {
	elector := processor.NewLeaderElector(connString)
	return &Views{
		store:    store,
		pool:     pool,
		progress: processor.NewProgressStore(pool, "view_progress"),
		elector:  elector,
		manager:  processor.NewManager(elector, globalLockKey),
		config:   config,
		instance: instanceName,
	}
}

// Register adds a Projector's scheduler. Must be called before Start.
func (v *Views) Register(p Projector) {
	lockKey := globalLockKey
	if v.config.LockStrategy == processor.LockPerSubscription {
		lockKey = fmt.Sprintf("%s:%s", globalLockKey, p.Name())
	}
	s := processor.NewScheduler(
		p.Name(), lockKey, v.config, v.elector, v.progress,
		&fetcher{store: v.store, filter: p.Filter()},
		&handler{pool: v.pool, projector: p},
		processor.StatusFailed, // views set FAILED on backoffThreshold, not ACTIVE
		v.instance, nil,
	)
	v.manager.Register(s)
}

// Start begins pumping every registered view. Call after migrations have
// run and after every Register call.
func (v *Views) Start(ctx context.Context) { v.manager.Start(ctx) }

// Stop cancels every scheduler and releases this instance's advisory locks.
func (v *Views) Stop(ctx context.Context) { v.manager.Stop(ctx) }

// Pause parks viewName without resetting its error count.
func (v *Views) Pause(ctx context.Context, viewName string) error {
	return v.progress.Pause(ctx, viewName)
}

// Resume reactivates a paused or failed view.
func (v *Views) Resume(ctx context.Context, viewName string) error {
	return v.progress.Resume(ctx, viewName)
}

// Reset sets viewName's cursor back to zero, error_count=0, status=ACTIVE.
// The view's own read-model table is not truncated; callers that need a
// true rebuild must clear it themselves before calling Reset.
func (v *Views) Reset(ctx context.Context, viewName string) error {
	return v.progress.Reset(ctx, viewName)
}

// Status returns viewName's progress row.
func (v *Views) Status(ctx context.Context, viewName string) (processor.Progress, error) {
	return v.progress.Get(ctx, viewName)
}

// StatusAll returns every registered view's progress row.
func (v *Views) StatusAll(ctx context.Context) ([]processor.Progress, error) {
	return v.progress.All(ctx)
}

// Lag returns the number of events viewName has not yet consumed: the gap
// between the event log's newest position and the view's last recorded
// position. position is the events table's own globally dense identity
// sequence, so this counts events behind, not transactions behind. It
// queries the events table directly since dcb.EventStore exposes no raw
// max-cursor primitive.
func (v *Views) Lag(ctx context.Context, viewName string) (int64, error) {
	prog, err := v.progress.Get(ctx, viewName)
	if err != nil {
		return 0, err
	}
	var headPosition int64
	err = v.pool.QueryRow(ctx, `SELECT coalesce(max(position), 0) FROM events`).Scan(&headPosition)
	if err != nil {
		return 0, err
	}
	lag := headPosition - prog.Cursor.Position
	if lag < 0 {
		lag = 0
	}
	return lag, nil
}

// Details returns per-view progress paired with its computed lag, for an
// operator status endpoint.
type Details struct {
	Progress processor.Progress
	Lag      int64
}

// AllDetails returns Details for every registered view.
func (v *Views) AllDetails(ctx context.Context) ([]Details, error) {
	rows, err := v.StatusAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Details, 0, len(rows))
	for _, p := range rows {
		lag, err := v.Lag(ctx, p.Key)
		if err != nil {
			return nil, err
		}
		out = append(out, Details{Progress: p, Lag: lag})
	}
	return out, nil
}
