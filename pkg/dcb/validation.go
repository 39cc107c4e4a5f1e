package dcb

import (
	"encoding/json"
	"fmt"
)

const maxEventTypeLength = 64

// validateEvent checks the event invariants: non-empty type bounded to 64
// chars, no empty/duplicate tag keys, valid JSON payload.
func validateEvent(e InputEvent, index int) error {
	op := "validateEvent"
	if e.Type == "" {
		return wrapValidation(op, "type", fmt.Sprintf("event[%d]", index), fmt.Errorf("event type must not be empty"))
	}
	if len(e.Type) > maxEventTypeLength {
		return wrapValidation(op, "type", e.Type, fmt.Errorf("event type exceeds %d characters", maxEventTypeLength))
	}
	seen := make(map[string]struct{}, len(e.Tags))
	for j, t := range e.Tags {
		if t.Key == "" {
			return wrapValidation(op, fmt.Sprintf("event[%d].tag[%d].key", index, j), "", fmt.Errorf("tag key must not be empty"))
		}
		if t.Value == "" {
			return wrapValidation(op, fmt.Sprintf("event[%d].tag[%d].value", index, j), t.Key, fmt.Errorf("tag value must not be empty"))
		}
		if _, dup := seen[t.Key]; dup {
			return wrapValidation(op, fmt.Sprintf("event[%d].tag", index), t.Key, fmt.Errorf("duplicate tag key %q", t.Key))
		}
		seen[t.Key] = struct{}{}
	}
	if len(e.Data) > 0 && !json.Valid(e.Data) {
		return wrapValidation(op, "data", fmt.Sprintf("event[%d]", index), fmt.Errorf("event payload must be valid JSON"))
	}
	return nil
}

func validateEvents(events []InputEvent, maxBatchSize int) error {
	if len(events) == 0 {
		return wrapValidation("validateEvents", "events", "empty", fmt.Errorf("events must not be empty"))
	}
	if len(events) > maxBatchSize {
		return wrapValidation("validateEvents", "events", fmt.Sprintf("count:%d", len(events)), fmt.Errorf("batch size %d exceeds maximum %d", len(events), maxBatchSize))
	}
	for i, e := range events {
		if err := validateEvent(e, i); err != nil {
			return err
		}
	}
	return nil
}

func validateQuery(q Query) error {
	for i, item := range q.Items {
		for j, t := range item.Tags {
			if t.Key == "" {
				return wrapValidation("validateQuery", fmt.Sprintf("items[%d].tags[%d].key", i, j), "", fmt.Errorf("tag key must not be empty"))
			}
			if t.Value == "" {
				return wrapValidation("validateQuery", fmt.Sprintf("items[%d].tags[%d].value", i, j), t.Key, fmt.Errorf("tag value must not be empty"))
			}
		}
		for j, et := range item.EventTypes {
			if et == "" {
				return wrapValidation("validateQuery", fmt.Sprintf("items[%d].eventTypes[%d]", i, j), "", fmt.Errorf("event type must not be empty"))
			}
		}
	}
	return nil
}
