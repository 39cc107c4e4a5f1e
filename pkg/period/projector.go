package period

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dcbengine/dcbengine/pkg/dcb"
)

// Config declares how a command's projection is scoped by period (spec
// §4.8). EntityTag identifies the entity whose statement is being opened
// or read (e.g. {"wallet_id", "W-1"}).
type Config struct {
	Type                Type
	EntityTag           dcb.Tag
	StatementOpenedType string // default "StatementOpened"
	StatementClosedType string // default "StatementClosed"
}

func (c Config) openedType() string {
	if c.StatementOpenedType != "" {
		return c.StatementOpenedType
	}
	return "StatementOpened"
}

func (c Config) closedType() string {
	if c.StatementClosedType != "" {
		return c.StatementClosedType
	}
	return "StatementClosed"
}

// scopeQuery AND-extends every item of q with extra tags, so a projector's
// own filter is additionally bounded to one period.
func scopeQuery(q dcb.Query, extra []dcb.Tag) dcb.Query {
	if q.IsEmpty() {
		return dcb.NewQueryFromItems(dcb.QueryItem{Tags: extra})
	}
	items := make([]dcb.QueryItem, len(q.Items))
	for i, item := range q.Items {
		tags := make([]dcb.Tag, 0, len(item.Tags)+len(extra))
		tags = append(tags, item.Tags...)
		tags = append(tags, extra...)
		items[i] = dcb.QueryItem{EventTypes: item.EventTypes, Tags: tags}
	}
	return dcb.NewQueryFromItems(items...)
}

// ProjectCurrentPeriod derives tags from the current period and projects
// projector scoped by both the entity tag and the period tags. No events
// are created.
func ProjectCurrentPeriod(ctx context.Context, store dcb.EventStore, clock Clock, cfg Config, projector dcb.StateProjector) (dcb.ProjectionResult, ID, error) {
	id := Compute(cfg.Type, clock.Now())
	scoped := dcb.StateProjector{
		ID:           projector.ID,
		Query:        scopeQuery(projector.Query, periodScopeTags(cfg, id)),
		InitialState: projector.InitialState,
		Transition:   projector.Transition,
	}
	results, err := store.Project(ctx, nil, scoped)
	if err != nil {
		return dcb.ProjectionResult{}, ID{}, err
	}
	return results[projector.ID], id, nil
}

func periodScopeTags(cfg Config, id ID) []dcb.Tag {
	tags := make([]dcb.Tag, 0, len(id.Tags(cfg.Type))+1)
	if cfg.EntityTag.Key != "" {
		tags = append(tags, cfg.EntityTag)
	}
	tags = append(tags, id.Tags(cfg.Type)...)
	return tags
}

// StatementData is the JSON payload for StatementOpened/StatementClosed
// events built by EnsureActivePeriodAndProject when no data builder is
// supplied.
type StatementData struct {
	Period string `json:"period"`
}

// EnsureActivePeriodAndProject checks whether a StatementOpened event
// exists for this entity and the current period; if not, appends one
// (with a StatementClosed for the previous period if one was open and not
// yet closed), then projects scoped to the current period.
func EnsureActivePeriodAndProject(ctx context.Context, store dcb.EventStore, clock Clock, cfg Config, projector dcb.StateProjector) (dcb.ProjectionResult, ID, error) {
	if cfg.Type == None {
		return ProjectCurrentPeriod(ctx, store, clock, cfg, projector)
	}
	id := Compute(cfg.Type, clock.Now())

	opened, err := statementOpened(ctx, store, cfg, id)
	if err != nil {
		return dcb.ProjectionResult{}, ID{}, err
	}
	if !opened {
		events, err := openingEvents(ctx, store, cfg, id)
		if err != nil {
			return dcb.ProjectionResult{}, ID{}, err
		}
		condition := dcb.AppendCondition{
			Idempotency: &dcb.IdempotencyClause{
				EventTypes: []string{cfg.openedType()},
				Tags:       periodScopeTags(cfg, id),
			},
		}
		if _, err := store.AppendIf(ctx, events, condition); err != nil && !dcb.IsDuplicateOperationError(err) {
			return dcb.ProjectionResult{}, ID{}, err
		}
	}

	return ProjectCurrentPeriod(ctx, store, clock, cfg, projector)
}

func statementOpened(ctx context.Context, store dcb.EventStore, cfg Config, id ID) (bool, error) {
	q := dcb.NewQueryFromItems(dcb.QueryItem{
		EventTypes: []string{cfg.openedType()},
		Tags:       periodScopeTags(cfg, id),
	})
	events, err := store.Query(ctx, q, nil, &dcb.ReadOptions{Limit: 1})
	if err != nil {
		return false, err
	}
	return len(events) > 0, nil
}

func openingEvents(ctx context.Context, store dcb.EventStore, cfg Config, id ID) ([]dcb.InputEvent, error) {
	var events []dcb.InputEvent

	prev := Previous(cfg.Type, id)
	prevOpened, err := statementOpened(ctx, store, cfg, prev)
	if err != nil {
		return nil, err
	}
	if prevOpened {
		prevClosed, err := store.Query(ctx, dcb.NewQueryFromItems(dcb.QueryItem{
			EventTypes: []string{cfg.closedType()},
			Tags:       periodScopeTags(cfg, prev),
		}), nil, &dcb.ReadOptions{Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(prevClosed) == 0 {
			data, err := json.Marshal(StatementData{Period: prev.String()})
			if err != nil {
				return nil, fmt.Errorf("period: marshal StatementClosed data: %w", err)
			}
			events = append(events, dcb.NewInputEvent(cfg.closedType(), periodScopeTags(cfg, prev), data))
		}
	}

	data, err := json.Marshal(StatementData{Period: id.String()})
	if err != nil {
		return nil, fmt.Errorf("period: marshal StatementOpened data: %w", err)
	}
	events = append(events, dcb.NewInputEvent(cfg.openedType(), periodScopeTags(cfg, id), data))
	return events, nil
}
