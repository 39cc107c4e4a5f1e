package dcb

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// txEventStore is the EventStore handed to the callback of
// ExecuteInTransaction: every method runs against the same pgx.Tx instead
// of opening its own transaction, so nested Append/AppendIf/Query/Project
// calls flatten into the outer transaction.
type txEventStore struct {
	tx     pgx.Tx
	config EventStoreConfig
}

func (es *eventStore) ExecuteInTransaction(ctx context.Context, fn func(ctx context.Context, tx EventStore) error) error {
	tx, err := es.primary.BeginTx(ctx, pgx.TxOptions{IsoLevel: toPgxIsoLevel(es.config.DefaultIsolation)})
	if err != nil {
		return wrapStorage("executeInTransaction", "database", err)
	}
	defer tx.Rollback(ctx)

	scoped := &txEventStore{tx: tx, config: es.config}
	if err := fn(ctx, scoped); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStorage("executeInTransaction", "database", err)
	}
	return nil
}

func (t *txEventStore) Append(ctx context.Context, events []InputEvent) error {
	return appendBatchInTx(ctx, t.tx, events, t.config.MaxBatchSize)
}

func (t *txEventStore) AppendIf(ctx context.Context, events []InputEvent, condition AppendCondition) (uint64, error) {
	return appendIfInTx(ctx, t.tx, events, condition, t.config.MaxBatchSize)
}

func (t *txEventStore) Query(ctx context.Context, q Query, after *Cursor, opts *ReadOptions) ([]Event, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	sqlQuery, args := buildQuerySQL(q, after, opts)
	rows, err := t.tx.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, wrapStorage("query", "database", err)
	}
	return scanEvents(rows)
}

func (t *txEventStore) QueryStream(ctx context.Context, q Query, after *Cursor) (<-chan Event, error) {
	events, err := t.Query(ctx, q, after, nil)
	if err != nil {
		return nil, err
	}
	out := make(chan Event, len(events))
	for _, e := range events {
		out <- e
	}
	close(out)
	return out, nil
}

func (t *txEventStore) Project(ctx context.Context, after *Cursor, projectors ...StateProjector) (map[string]ProjectionResult, error) {
	if len(projectors) == 0 {
		return map[string]ProjectionResult{}, nil
	}
	combined := CombineProjectorQueries(projectors...)
	events, err := t.Query(ctx, combined, after, nil)
	if err != nil {
		return nil, err
	}
	results := make(map[string]ProjectionResult, len(projectors))
	for _, p := range projectors {
		cursor := ZeroCursor
		if after != nil {
			cursor = *after
		}
		results[p.ID] = ProjectionResult{State: p.InitialState, Cursor: cursor}
	}
	for _, e := range events {
		eventCursor := Cursor{TransactionID: e.TransactionID, Position: e.Position}
		for _, p := range projectors {
			if !matches(p.Query, e) {
				continue
			}
			r := results[p.ID]
			r.State = p.Transition(r.State, e)
			r.Cursor = eventCursor
			results[p.ID] = r
		}
	}
	return results, nil
}

// ExecuteInTransaction on a scoped txEventStore flattens into the same
// transaction rather than nesting a new one, matching Postgres's lack of
// true nested transactions (savepoints are not exposed at this layer).
func (t *txEventStore) ExecuteInTransaction(ctx context.Context, fn func(ctx context.Context, tx EventStore) error) error {
	return fn(ctx, t)
}

func (t *txEventStore) GetConfig() EventStoreConfig { return t.config }

// GetPool is not meaningful inside a scoped transaction; it returns nil.
func (t *txEventStore) GetPool() *pgxpool.Pool { return nil }
