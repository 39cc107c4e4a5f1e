package dcb

import (
	"fmt"
	"sort"
	"strings"
)

// TagsToArray converts Tags to the sorted "key:value" TEXT[] representation
// stored in the events table. The external wire format uses "key=value";
// the store's internal array element separator is ":" to keep '=' available
// inside values without escaping.
func TagsToArray(tags []Tag) []string {
	if len(tags) == 0 {
		return []string{}
	}
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.Key + ":" + t.Value
	}
	sort.Strings(out)
	return out
}

// ParseTagsArray converts a stored "key:value" TEXT[] array back into Tags.
func ParseTagsArray(arr []string) []Tag {
	if len(arr) == 0 {
		return nil
	}
	tags := make([]Tag, 0, len(arr))
	for _, item := range arr {
		if item == "" {
			continue
		}
		parts := strings.SplitN(item, ":", 2)
		if len(parts) != 2 || parts[0] == "" {
			continue
		}
		tags = append(tags, Tag{Key: parts[0], Value: parts[1]})
	}
	return tags
}

// ParseWireTag parses the external "key=value" tag format, splitting on
// the first '=' only.
func ParseWireTag(s string) (Tag, error) {
	parts := strings.SplitN(s, "=", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Tag{}, fmt.Errorf("dcb: invalid tag %q, expected key=value with non-empty key and value", s)
	}
	return Tag{Key: parts[0], Value: parts[1]}, nil
}

// QueryBuilder provides a fluent API for constructing a Query. Items are
// combined with OR; conditions added to the same item are combined with AND.
type QueryBuilder struct {
	items   []QueryItem
	current QueryItem
	dirty   bool
}

// NewQueryBuilder starts a new QueryBuilder.
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{}
}

// Or finalizes the current clause and starts a new one, OR'd against it.
func (b *QueryBuilder) Or() *QueryBuilder {
	b.flush()
	return b
}

func (b *QueryBuilder) flush() {
	if b.dirty {
		b.items = append(b.items, b.current)
		b.current = QueryItem{}
		b.dirty = false
	}
}

// WithType adds an event type (OR'd with other types on this clause).
func (b *QueryBuilder) WithType(eventType string) *QueryBuilder {
	b.current.EventTypes = append(b.current.EventTypes, eventType)
	b.dirty = true
	return b
}

// WithTypes adds multiple event types to the current clause.
func (b *QueryBuilder) WithTypes(eventTypes ...string) *QueryBuilder {
	b.current.EventTypes = append(b.current.EventTypes, eventTypes...)
	b.dirty = true
	return b
}

// WithTag adds a required tag (AND'd) to the current clause.
func (b *QueryBuilder) WithTag(key, value string) *QueryBuilder {
	b.current.Tags = append(b.current.Tags, Tag{Key: key, Value: value})
	b.dirty = true
	return b
}

// WithTags adds multiple required tags from alternating key/value pairs.
func (b *QueryBuilder) WithTags(kv ...string) *QueryBuilder {
	b.current.Tags = append(b.current.Tags, NewTags(kv...)...)
	b.dirty = true
	return b
}

// Build finalizes and returns the Query.
func (b *QueryBuilder) Build() Query {
	b.flush()
	if len(b.items) == 0 {
		return QueryAll()
	}
	return Query{Items: b.items}
}
