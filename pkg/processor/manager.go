package processor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Manager owns every Scheduler in one subsystem (outbox or views),
// starting them on an explicit Start call rather than at construction
// time: schedulers start after migrations and dependent wiring are
// ready, not at constructor time.
type Manager struct {
	elector    *LeaderElector
	globalLock string
	schedulers []*Scheduler

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	started bool
}

// NewManager creates a Manager. globalLock is the advisory-lock key
// retried by the manager's own leader-retry ticker, independent of any
// per-scheduler key, so leadership changes are detected promptly even
// while every scheduler is asleep between batches.
func NewManager(elector *LeaderElector, globalLock string) *Manager {
	return &Manager{elector: elector, globalLock: globalLock}
}

// Register adds a scheduler to the set Start will run. Must be called
// before Start.
func (m *Manager) Register(s *Scheduler) {
	m.schedulers = append(m.schedulers, s)
}

// Start launches one goroutine per registered scheduler plus the global
// leader-retry ticker. Safe to call once; a second call is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	g, gctx := errgroup.WithContext(runCtx)
	m.group = g

	for _, s := range m.schedulers {
		s := s
		g.Go(func() error {
			s.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		m.runLeaderRetryTicker(gctx)
		return nil
	})
}

func (m *Manager) runLeaderRetryTicker(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.elector.IsLeader(m.globalLock) {
				_, _ = m.elector.TryAcquire(ctx, m.globalLock)
			}
		}
	}
}

// Stop cancels every scheduler, waits for their goroutines to return, and
// releases all advisory locks this manager's elector holds.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	cancel := m.cancel
	group := m.group
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if group != nil {
		_ = group.Wait()
	}
	m.elector.ReleaseAll(ctx)
}
