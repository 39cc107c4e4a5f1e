package outbox

import (
	"context"
	"fmt"

	"github.com/dcbengine/dcbengine/pkg/dcb"
	"github.com/dcbengine/dcbengine/pkg/processor"
)

// subscriptionKey composes the outbox's (topic, publisher) identity into
// the single text key pkg/processor's ProgressStore and Scheduler operate
// on.
func subscriptionKey(topic, publisher string) string {
	return fmt.Sprintf("%s|%s", topic, publisher)
}

// fetcher implements processor.Fetcher against one topic: it queries all
// events after the subscription's cursor and filters to those the topic
// matches, since the event store has no tag-predicate index matching
// Topic's anyOf/exact/required shape directly — the filter runs in Go
// over a query already narrowed by the topic's Exact/AnyOf tags where
// present.
type fetcher struct {
	store dcb.EventStore
	topic Topic
}

func (f *fetcher) Fetch(ctx context.Context, key string, after dcb.Cursor, batchSize int) (processor.FetchResult, error) {
	q := topicQuery(f.topic)
	events, err := f.store.Query(ctx, q, &after, &dcb.ReadOptions{Limit: batchSize * 4})
	if err != nil {
		return processor.FetchResult{}, err
	}
	var scanned dcb.Cursor
	matched := make([]dcb.Event, 0, batchSize)
	for _, e := range events {
		scanned = dcb.Cursor{TransactionID: e.TransactionID, Position: e.Position}
		if f.topic.Matches(e) {
			matched = append(matched, e)
			if len(matched) == batchSize {
				break
			}
		}
	}
	return processor.FetchResult{Events: matched, Scanned: scanned}, nil
}

// topicQuery narrows the store-side query using whichever of Exact/AnyOf
// is available; Required-only topics fall back to an unfiltered query
// since "required" is a key-presence check the store's tag-contains index
// cannot express without a value.
func topicQuery(t Topic) dcb.Query {
	if len(t.Exact) > 0 {
		return dcb.NewQueryFromItems(dcb.QueryItem{Tags: t.Exact})
	}
	if len(t.AnyOf) > 0 {
		items := make([]dcb.QueryItem, len(t.AnyOf))
		for i, tag := range t.AnyOf {
			items[i] = dcb.QueryItem{Tags: []dcb.Tag{tag}}
		}
		return dcb.NewQueryFromItems(items...)
	}
	return dcb.QueryAll()
}

// handler implements processor.BatchHandler, delivering a fetched batch
// to one publisher and returning the cursor of the last delivered event.
type handler struct {
	publisher Publisher
	topicName string
}

func (h *handler) Handle(ctx context.Context, key string, batch []dcb.Event, progress processor.Progress) (dcb.Cursor, error) {
	if err := h.publisher.PublishBatch(ctx, h.topicName, batch); err != nil {
		return dcb.Cursor{}, err
	}
	last := batch[len(batch)-1]
	return dcb.Cursor{TransactionID: last.TransactionID, Position: last.Position}, nil
}
