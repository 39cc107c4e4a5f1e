package dcb

import "context"

// CombineProjectorQueries unions the Query of each projector into a single
// Query whose items are the concatenation of all projector items, so one
// table scan serves every projector.
func CombineProjectorQueries(projectors ...StateProjector) Query {
	var items []QueryItem
	for _, p := range projectors {
		if p.Query.IsEmpty() {
			// An empty Query matches everything; once any projector wants
			// everything, the union does too.
			return QueryAll()
		}
		items = append(items, p.Query.Items...)
	}
	return Query{Items: items}
}

// matches reports whether e satisfies q: e matches if it satisfies any
// QueryItem (OR), and a QueryItem is satisfied when e's type is among its
// EventTypes (or EventTypes is empty) and all of its Tags are present on e.
func matches(q Query, e Event) bool {
	if q.IsEmpty() {
		return true
	}
	for _, item := range q.Items {
		if itemMatches(item, e) {
			return true
		}
	}
	return false
}

func itemMatches(item QueryItem, e Event) bool {
	if len(item.EventTypes) > 0 {
		found := false
		for _, t := range item.EventTypes {
			if t == e.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, want := range item.Tags {
		found := false
		for _, have := range e.Tags {
			if have.Key == want.Key && have.Value == want.Value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Project reads every event after the given cursor matching the union of
// the projectors' queries, in a single pass, and folds each matching event
// through every projector whose individual Query it satisfies. The
// returned map is keyed by StateProjector.ID.
func (es *eventStore) Project(ctx context.Context, after *Cursor, projectors ...StateProjector) (map[string]ProjectionResult, error) {
	if len(projectors) == 0 {
		return map[string]ProjectionResult{}, nil
	}
	combined := CombineProjectorQueries(projectors...)
	events, err := es.Query(ctx, combined, after, nil)
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
