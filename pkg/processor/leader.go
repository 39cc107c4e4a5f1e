package processor

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
)

// LeaderElector wraps PostgreSQL session-scoped advisory locks. Unlike the
// transaction-scoped pg_advisory_xact_lock the event store's command
// pipeline uses for idempotency serialisation, leadership must survive
// across many short transactions, so each lock lives on its own
// long-lived *pgx.Conn and is held until Release closes that connection.
type LeaderElector struct {
	connString string
	mu         sync.Mutex
	conns      map[string]*pgx.Conn
}

// NewLeaderElector creates a LeaderElector that dials connString for each
// lock it holds.
func NewLeaderElector(connString string) *LeaderElector {
	return &LeaderElector{connString: connString, conns: make(map[string]*pgx.Conn)}
}

// TryAcquire attempts pg_try_advisory_lock(hashtext(lockKey)) on a fresh
// connection. Returns true on success; the caller is the leader for
// lockKey until it calls Release. Safe to call repeatedly for the same
// key while already held — it returns true without reacquiring.
func (le *LeaderElector) TryAcquire(ctx context.Context, lockKey string) (bool, error) {
	le.mu.Lock()
	if _, held := le.conns[lockKey]; held {
		le.mu.Unlock()
		return true, nil
	}
	le.mu.Unlock()

	conn, err := pgx.Connect(ctx, le.connString)
	if err != nil {
		return false, err
	}

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock(hashtext($1))", lockKey).Scan(&acquired); err != nil {
		conn.Close(ctx)
		return false, err
	}
	if !acquired {
		conn.Close(ctx)
		return false, nil
	}

	le.mu.Lock()
	le.conns[lockKey] = conn
	le.mu.Unlock()
	return true, nil
}

// Release unlocks lockKey and closes its dedicated connection, dropping
// the session-scoped lock. Safe to call when the lock is not held.
func (le *LeaderElector) Release(ctx context.Context, lockKey string) {
	le.mu.Lock()
	conn, held := le.conns[lockKey]
	if held {
		delete(le.conns, lockKey)
	}
	le.mu.Unlock()
	if !held {
		return
	}
	_, _ = conn.Exec(ctx, "SELECT pg_advisory_unlock(hashtext($1))", lockKey)
	conn.Close(ctx)
}

// IsLeader reports whether this elector currently holds lockKey, without
// attempting to acquire it.
func (le *LeaderElector) IsLeader(lockKey string) bool {
	le.mu.Lock()
	defer le.mu.Unlock()
	_, held := le.conns[lockKey]
	return held
}

// ReleaseAll releases every lock this elector holds, used on shutdown.
func (le *LeaderElector) ReleaseAll(ctx context.Context) {
	le.mu.Lock()
	keys := make([]string, 0, len(le.conns))
	for k := range le.conns {
		keys = append(keys, k)
	}
	le.mu.Unlock()
	for _, k := range keys {
		le.Release(ctx, k)
	}
}
