package views

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dcbengine/dcbengine/pkg/dcb"
	"github.com/dcbengine/dcbengine/pkg/processor"
)

// fetcher implements processor.Fetcher against one view's filter, mirroring
// pkg/outbox's fetcher: the store-side query narrows by whichever of
// Exact/AnyOf the filter carries, and Required-only clauses are checked in
// Go since the event store's tag index has no key-presence primitive.
type fetcher struct {
	store  dcb.EventStore
	filter Filter
}

func (f *fetcher) Fetch(ctx context.Context, key string, after dcb.Cursor, batchSize int) (processor.FetchResult, error) {
	events, err := f.store.Query(ctx, f.filter.query(), &after, &dcb.ReadOptions{Limit: batchSize * 4})
	if err != nil {
		return processor.FetchResult{}, err
	}
	var scanned dcb.Cursor
	matched := make([]dcb.Event, 0, batchSize)
	for _, e := range events {
		scanned = dcb.Cursor{TransactionID: e.TransactionID, Position: e.Position}
		if f.filter.Matches(e) {
			matched = append(matched, e)
			if len(matched) == batchSize {
				break
			}
		}
	}
	return processor.FetchResult{Events: matched, Scanned: scanned}, nil
}

// handler implements processor.BatchHandler, running one view's HandleBatch
// inside a transaction this worker owns and commits: the view's own
// read-model writes land atomically with having consumed the batch (spec
// §4.7 "inside a transaction owned by the framework"). Unlike pkg/outbox's
// handler, which only calls out to a Publisher, this one needs direct pool
// access since dcb.EventStore exposes no raw pgx.Tx to projectors.
type handler struct {
	pool      *pgxpool.Pool
	projector Projector
}

func (h *handler) Handle(ctx context.Context, key string, batch []dcb.Event, progress processor.Progress) (dcb.Cursor, error) {
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return dcb.Cursor{}, err
	}
	defer tx.Rollback(ctx)

	if err := h.projector.HandleBatch(ctx, tx, batch); err != nil {
		return dcb.Cursor{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return dcb.Cursor{}, err
	}

	last := batch[len(batch)-1]
	return dcb.Cursor{TransactionID: last.TransactionID, Position: last.Position}, nil
}
