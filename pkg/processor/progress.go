package processor

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dcbengine/dcbengine/pkg/dcb"
)

// Status is the lifecycle state of one subscription's progress row.
type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusPaused Status = "PAUSED"
	StatusFailed Status = "FAILED"
)

// Progress is one subscription's persisted position and health. The
// cursor is tracked as the full (transaction_id, position) pair, not a
// bare position: since position is assigned at insert time and
// transactions can commit out of insertion order, only the pair is a
// safe fencing point for re-fetching.
type Progress struct {
	Key             string
	Cursor          dcb.Cursor
	Status          Status
	ErrorCount      int
	LastError       string
	LeaderInstance  string
	LeaderSince     *time.Time
	LeaderHeartbeat *time.Time
	LastUpdatedAt   time.Time
}

// ProgressStore persists Progress rows in a table keyed by a single text
// column. pkg/outbox and pkg/views each own a table with this exact
// column set (outbox_topic_progress, view_progress) and compose their own
// (topic, publisher) / view_name identity into the single
// subscription_key column this store reads and writes.
type ProgressStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewProgressStore binds a ProgressStore to table, which must have columns
// (subscription_key TEXT PRIMARY KEY, last_transaction_id BIGINT,
// last_position BIGINT, status TEXT, error_count INT, last_error TEXT,
// leader_instance TEXT, leader_since TIMESTAMPTZ, leader_heartbeat
// TIMESTAMPTZ, last_updated_at TIMESTAMPTZ).
func NewProgressStore(pool *pgxpool.Pool, table string) *ProgressStore {
	return &ProgressStore{pool: pool, table: table}
}

// EnsureRegistered inserts a fresh progress row at the zero cursor,
// status=ACTIVE if one does not already exist.
func (s *ProgressStore) EnsureRegistered(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+s.table+` (subscription_key, last_transaction_id, last_position, status, error_count, last_updated_at)
		VALUES ($1, 0, 0, 'ACTIVE', 0, now())
		ON CONFLICT (subscription_key) DO NOTHING`, key)
	return err
}

// Get reads key's progress row, registering it first if absent.
func (s *ProgressStore) Get(ctx context.Context, key string) (Progress, error) {
	if err := s.EnsureRegistered(ctx, key); err != nil {
		return Progress{}, err
	}
	return s.scan(s.pool.QueryRow(ctx, `
		SELECT subscription_key, last_transaction_id, last_position, status, error_count,
		       coalesce(last_error, ''), coalesce(leader_instance, ''), leader_since, leader_heartbeat, last_updated_at
		FROM `+s.table+` WHERE subscription_key = $1`, key))
}

func (s *ProgressStore) scan(row pgx.Row) (Progress, error) {
	var p Progress
	var status string
	if err := row.Scan(&p.Key, &p.Cursor.TransactionID, &p.Cursor.Position, &status, &p.ErrorCount, &p.LastError, &p.LeaderInstance, &p.LeaderSince, &p.LeaderHeartbeat, &p.LastUpdatedAt); err != nil {
		return Progress{}, err
	}
	p.Status = Status(status)
	return p, nil
}

// ClaimLeadership records instance as key's current leader. leader_since
// is stamped only when the leader identity actually changes, so a
// continuously-leading instance keeps its original leader_since across
// repeated claims (one per Scheduler.Run iteration that finds itself
// already holding the advisory lock but not yet recorded here).
func (s *ProgressStore) ClaimLeadership(ctx context.Context, key, instance string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE `+s.table+`
		SET leader_instance = $2,
		    leader_since = CASE WHEN leader_instance IS DISTINCT FROM $2 THEN now() ELSE leader_since END,
		    leader_heartbeat = now()
		WHERE subscription_key = $1`, key, instance)
	return err
}

// Heartbeat refreshes leader_heartbeat for key, guarded to only apply
// while instance is still the recorded leader.
func (s *ProgressStore) Heartbeat(ctx context.Context, key, instance string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE `+s.table+` SET leader_heartbeat = now()
		WHERE subscription_key = $1 AND leader_instance = $2`, key, instance)
	return err
}

// Advance updates the cursor after a successful handle, resetting
// error_count and any elevated status back to ACTIVE. Runs in its own
// transaction, separate from the handler's. Guarded by leader_instance so
// a scheduler that has lost leadership (its advisory lock connection
// dropped, another instance claimed the row) cannot clobber progress a
// new leader is already advancing.
func (s *ProgressStore) Advance(ctx context.Context, key, instance string, cursor dcb.Cursor) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE `+s.table+`
		SET last_transaction_id = $3, last_position = $4, error_count = 0, status = 'ACTIVE', last_error = NULL, last_updated_at = now()
		WHERE subscription_key = $1 AND leader_instance = $2`, key, instance, cursor.TransactionID, cursor.Position)
	return err
}

// RecordError increments error_count and stores lastErr, returning the
// new error_count so the scheduler can decide whether to enter backoff.
// failStatus is the status to set once backoffThreshold is reached
// (pkg/views and pkg/outbox both pass FAILED). Guarded by leader_instance for
// the same reason as Advance.
func (s *ProgressStore) RecordError(ctx context.Context, key, instance string, lastErr string, backoffThreshold int, failStatus Status) (int, error) {
	var errorCount int
	err := s.pool.QueryRow(ctx, `
		UPDATE `+s.table+`
		SET error_count = error_count + 1, last_error = $3, last_updated_at = now()
		WHERE subscription_key = $1 AND leader_instance = $2
		RETURNING error_count`, key, instance, lastErr).Scan(&errorCount)
	if err != nil {
		return 0, err
	}
	if errorCount >= backoffThreshold {
		if _, err := s.pool.Exec(ctx, `UPDATE `+s.table+` SET status = $2 WHERE subscription_key = $1`, key, string(failStatus)); err != nil {
			return errorCount, err
		}
	}
	return errorCount, nil
}

// Pause, Resume, and Reset are operator actions, not scheduler-loop
// writes: an operator must be able to pause or reset a subscription
// regardless of which instance currently holds its advisory lock, so
// unlike Advance and RecordError they are not guarded by leader_instance.
func (s *ProgressStore) Pause(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `UPDATE `+s.table+` SET status = 'PAUSED', last_updated_at = now() WHERE subscription_key = $1`, key)
	return err
}

// Resume reactivates a paused or failed subscription without touching
// error counts or last_position.
func (s *ProgressStore) Resume(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `UPDATE `+s.table+` SET status = 'ACTIVE', last_updated_at = now() WHERE subscription_key = $1`, key)
	return err
}

// Reset sets the cursor back to zero, error_count=0, status=ACTIVE.
func (s *ProgressStore) Reset(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE `+s.table+`
		SET last_transaction_id = 0, last_position = 0, error_count = 0, status = 'ACTIVE', last_error = NULL, last_updated_at = now()
		WHERE subscription_key = $1`, key)
	return err
}

// All lists every registered subscription's progress.
func (s *ProgressStore) All(ctx context.Context) ([]Progress, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT subscription_key, last_transaction_id, last_position, status, error_count,
		       coalesce(last_error, ''), coalesce(leader_instance, ''), leader_since, leader_heartbeat, last_updated_at
		FROM `+s.table+` ORDER BY subscription_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Progress
	for rows.Next() {
		p, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
