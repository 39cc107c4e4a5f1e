// Package outbox routes committed events to external destinations by tag
// predicate, tracking per-(topic, publisher) delivery progress on top of
// pkg/processor's scheduler.
package outbox

import "github.com/dcbengine/dcbengine/pkg/dcb"

// Topic is a predicate over an event's tags. An event is routed to the
// topic iff all three clause kinds hold:
//   - Required: every listed key must be present on the event, any value.
//   - AnyOf: at least one of the listed exact tags must be present.
//   - Exact: every listed exact tag must be present.
// An empty clause is vacuously true.
type Topic struct {
	Name     string
	Required []string
	AnyOf    []dcb.Tag
	Exact    []dcb.Tag
}

// NewTopic constructs a Topic with no predicates (matches every event).
func NewTopic(name string) Topic {
	return Topic{Name: name}
}

// WithRequired adds required tag keys to t.
func (t Topic) WithRequired(keys ...string) Topic {
	t.Required = append(t.Required, keys...)
	return t
}

// WithAnyOf adds an anyOf clause of exact tags to t.
func (t Topic) WithAnyOf(tags ...dcb.Tag) Topic {
	t.AnyOf = append(t.AnyOf, tags...)
	return t
}

// WithExact adds an exact clause of tags to t.
func (t Topic) WithExact(tags ...dcb.Tag) Topic {
	t.Exact = append(t.Exact, tags...)
	return t
}

// Matches reports whether e satisfies every one of t's clauses.
func (t Topic) Matches(e dcb.Event) bool {
	for _, key := range t.Required {
		if !hasKey(e.Tags, key) {
			return false
		}
	}
	if len(t.AnyOf) > 0 {
		found := false
		for _, want := range t.AnyOf {
			if hasTag(e.Tags, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, want := range t.Exact {
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

// Router fans an event out to every topic it matches. An event matching
// no topic is silently ignored.
type Router struct {
	topics []Topic
}

// NewRouter builds a Router over the given topics.
func NewRouter(topics ...Topic) *Router {
	return &Router{topics: topics}
}

// Route returns the names of every topic e matches.
func (r *Router) Route(e dcb.Event) []string {
	var names []string
	for _, t := range r.topics {
		if t.Matches(e) {
			names = append(names, t.Name)
		}
	}
	return names
}

// Topics returns the registered topics.
func (r *Router) Topics() []Topic {
	return r.topics
}
