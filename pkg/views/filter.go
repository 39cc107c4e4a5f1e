// Package views drives user-defined read-model projectors off the
// committed event log, one per-view-name subscription, using pkg/processor
// for leader election, scheduling, and progress tracking.
package views

import "github.com/dcbengine/dcbengine/pkg/dcb"

// Filter is the same three-clause tag predicate as pkg/outbox.Topic (spec
// §4.7 "the same tag predicates as outbox"), kept as its own type so
// pkg/views has no dependency on pkg/outbox.
type Filter struct {
	EventTypes []string
	Required   []string
	AnyOf      []dcb.Tag
	Exact      []dcb.Tag
}

// NewFilter constructs a Filter matching the given event types with no
// tag predicates.
func NewFilter(eventTypes ...string) Filter {
	return Filter{EventTypes: eventTypes}
}

// WithRequired adds required tag keys to f.
func (f Filter) WithRequired(keys ...string) Filter {
	f.Required = append(f.Required, keys...)
	return f
}

// WithAnyOf adds an anyOf clause of exact tags to f.
func (f Filter) WithAnyOf(tags ...dcb.Tag) Filter {
	f.AnyOf = append(f.AnyOf, tags...)
	return f
}

// WithExact adds an exact clause of tags to f.
func (f Filter) WithExact(tags ...dcb.Tag) Filter {
	f.Exact = append(f.Exact, tags...)
	return f
}

// Matches reports whether e satisfies every clause of f.
func (f Filter) Matches(e dcb.Event) bool {
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if t == e.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, key := range f.Required {
		if !hasKey(e.Tags, key) {
			return false
		}
	}
	if len(f.AnyOf) > 0 {
		found := false
		for _, want := range f.AnyOf {
			if hasTag(e.Tags, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, want := range f.Exact {
		if !hasTag(e.Tags, want) {
			return false
		}
	}
	return true
}

func hasKey(tags []dcb.Tag, key string) bool {
	for _, t := range tags {
		if t.Key == key {
			return true
		}
	}
	return false
}

func hasTag(tags []dcb.Tag, want dcb.Tag) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

// query renders f into a dcb.Query narrowed by whichever of
// EventTypes/Exact/AnyOf is available; Required-only clauses fall back to
// the type filter alone, same rationale as pkg/outbox's topicQuery.
func (f Filter) query() dcb.Query {
	if len(f.Exact) > 0 {
		return dcb.NewQueryFromItems(dcb.QueryItem{EventTypes: f.EventTypes, Tags: f.Exact})
	}
	if len(f.AnyOf) > 0 {
		items := make([]dcb.QueryItem, len(f.AnyOf))
		for i, tag := range f.AnyOf {
			items[i] = dcb.QueryItem{EventTypes: f.EventTypes, Tags: []dcb.Tag{tag}}
		}
		return dcb.NewQueryFromItems(items...)
	}
	return dcb.NewQuery(nil, f.EventTypes...)
}
