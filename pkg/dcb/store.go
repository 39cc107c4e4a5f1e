package dcb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventStore is the core event-sourcing abstraction: append, query, and
// project events, plus connection-scoped transactions.
type EventStore interface {
	// Append persists events unconditionally (no DCB checks). Used only
	// when the caller already owns the consistency contract.
	Append(ctx context.Context, events []InputEvent) error

	// AppendIf persists events under the given AppendCondition, returning
	// the transaction id they were written in. Returns ConcurrencyError if
	// the fencing check fails, DuplicateOperationError if the idempotency
	// check fails.
	AppendIf(ctx context.Context, events []InputEvent, condition AppendCondition) (uint64, error)

	// Query returns events matching q, strictly after the given cursor,
	// ordered oldest-first. A nil cursor reads from the beginning.
	Query(ctx context.Context, q Query, after *Cursor, opts *ReadOptions) ([]Event, error)

	// QueryStream is the channel-based equivalent of Query, for large
	// result sets.
	QueryStream(ctx context.Context, q Query, after *Cursor) (<-chan Event, error)

	// Project folds events matching the union of projectors' filters
	// through each projector they individually match, returning the
	// composed final state and the cursor of the last consumed event.
	Project(ctx context.Context, after *Cursor, projectors ...StateProjector) (map[string]ProjectionResult, error)

	// ExecuteInTransaction runs fn against a connection-scoped EventStore:
	// all of fn's Append/AppendIf/Query/Project calls share one
	// transaction, committed on return, rolled back on error. Nested calls
	// flatten into the outer transaction.
	ExecuteInTransaction(ctx context.Context, fn func(ctx context.Context, tx EventStore) error) error

	// GetConfig returns the store's configuration.
	GetConfig() EventStoreConfig

	// GetPool exposes the underlying primary connection pool for advanced
	// use (custom transaction management, processor/outbox/views
	// fetchers). Regular application code should not need this.
	GetPool() *pgxpool.Pool
}

type eventStore struct {
	primary *pgxpool.Pool
	replica *pgxpool.Pool // optional; falls back to primary when nil
	config  EventStoreConfig
}

// NewEventStore creates an EventStore backed by a single pool used for
// both reads and writes, with default configuration.
func NewEventStore(ctx context.Context, pool *pgxpool.Pool) (EventStore, error) {
	return NewEventStoreWithConfig(ctx, pool, nil, DefaultEventStoreConfig())
}

// NewEventStoreWithConfig creates an EventStore with an explicit primary
// pool, an optional read replica pool (nil routes reads to primary too),
// and explicit configuration.
func NewEventStoreWithConfig(ctx context.Context, primary, replica *pgxpool.Pool, config EventStoreConfig) (EventStore, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := primary.Ping(pingCtx); err != nil {
		return nil, wrapStorage("NewEventStore", "database", fmt.Errorf("unable to connect to primary: %w", err))
	}
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = DefaultEventStoreConfig().MaxBatchSize
	}
	if config.StreamBuffer <= 0 {
		config.StreamBuffer = DefaultEventStoreConfig().StreamBuffer
	}
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = DefaultEventStoreConfig().QueryTimeout
	}
	if config.AppendTimeout <= 0 {
		config.AppendTimeout = DefaultEventStoreConfig().AppendTimeout
	}
	return &eventStore{primary: primary, replica: replica, config: config}, nil
}

func (es *eventStore) GetConfig() EventStoreConfig { return es.config }
func (es *eventStore) GetPool() *pgxpool.Pool      { return es.primary }

// readPool returns the replica pool if configured, else the primary.
func (es *eventStore) readPool() *pgxpool.Pool {
	if es.replica != nil {
		return es.replica
	}
	return es.primary
}

// withTimeout derives a context with the caller's deadline if set,
// otherwise the given default.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(context.Background(), deadline)
	}
	return context.WithTimeout(context.Background(), d)
}

func toPgxIsoLevel(level IsolationLevel) pgx.TxIsoLevel {
	switch level {
	case IsolationRepeatableRead:
		return pgx.RepeatableRead
	case IsolationSerializable:
		return pgx.Serializable
	default:
		return pgx.ReadCommitted
	}
}

// buildQuerySQL renders q/after/opts into a SELECT against events, ordered
// by (transaction_id, position) ascending.
func buildQuerySQL(q Query, after *Cursor, opts *ReadOptions) (string, []any) {
	var conditions []string
	var args []any
	argIdx := 1

	if !q.IsEmpty() {
		var orConds []string
		for _, item := range q.Items {
			var andConds []string
			if len(item.EventTypes) > 0 {
				andConds = append(andConds, fmt.Sprintf("type = ANY($%d::text[])", argIdx))
				args = append(args, item.EventTypes)
				argIdx++
			}
			if len(item.Tags) > 0 {
				andConds = append(andConds, fmt.Sprintf("tags @> $%d::text[]", argIdx))
				args = append(args, TagsToArray(item.Tags))
				argIdx++
			}
			if len(andConds) > 0 {
				orConds = append(orConds, "("+strings.Join(andConds, " AND ")+")")
			}
		}
		if len(orConds) > 0 {
			conditions = append(conditions, "("+strings.Join(orConds, " OR ")+")")
		}
	}

	if after != nil {
		conditions = append(conditions, fmt.Sprintf(
			"((transaction_id = $%d AND position > $%d) OR transaction_id > $%d)",
			argIdx, argIdx+1, argIdx+2))
		args = append(args, after.TransactionID, after.Position, after.TransactionID)
		argIdx += 3
	}

	var sb strings.Builder
	sb.WriteString("SELECT type, tags, data, transaction_id, position, occurred_at FROM events")
	if len(conditions) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}
	sb.WriteString(" ORDER BY transaction_id ASC, position ASC")
	if opts != nil && opts.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", opts.Limit))
	}
	return sb.String(), args
}

func scanEvents(rows pgx.Rows) ([]Event, error) {
	defer rows.Close()
	var events []Event
	for rows.Next() {
		var tags []string
		var e Event
		if err := rows.Scan(&e.Type, &tags, &e.Data, &e.TransactionID, &e.Position, &e.OccurredAt); err != nil {
			return nil, wrapStorage("scanEvents", "database", err)
		}
		e.Tags = ParseTagsArray(tags)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStorage("scanEvents", "database", err)
	}
	return events, nil
}

func (es *eventStore) Query(ctx context.Context, q Query, after *Cursor, opts *ReadOptions) ([]Event, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	sqlQuery, args := buildQuerySQL(q, after, opts)
	queryCtx, cancel := withTimeout(ctx, es.config.QueryTimeout)
	defer cancel()
	rows, err := es.readPool().Query(queryCtx, sqlQuery, args...)
	if err != nil {
		return nil, wrapStorage("query", "database", err)
	}
	return scanEvents(rows)
}

func (es *eventStore) QueryStream(ctx context.Context, q Query, after *Cursor) (<-chan Event, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	sqlQuery, args := buildQuerySQL(q, after, nil)
	out := make(chan Event, es.config.StreamBuffer)
	go func() {
		defer close(out)
		rows, err := es.readPool().Query(ctx, sqlQuery, args...)
		if err != nil {
			return
		}
		defer rows.Close()
		for rows.Next() {
			var tags []string
			var e Event
			if err := rows.Scan(&e.Type, &tags, &e.Data, &e.TransactionID, &e.Position, &e.OccurredAt); err != nil {
				return
			}
			e.Tags = ParseTagsArray(tags)
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
