package views

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/dcbengine/dcbengine/pkg/dcb"
)

// Projector implements a materialized read model. HandleBatch runs inside
// a transaction the framework owns: the caller's own writes (upserts into
// its read-model tables) commit atomically with that transaction, or the
// whole batch rolls back. HandleBatch must be idempotent — the same batch
// may be redelivered if the progress update that follows its commit is
// lost.
type Projector interface {
	Name() string
	Filter() Filter
	HandleBatch(ctx context.Context, tx pgx.Tx, events []dcb.Event) error
}

// projectorFunc adapts a plain function into a Projector.
type projectorFunc struct {
	name   string
	filter Filter
	handle func(ctx context.Context, tx pgx.Tx, events []dcb.Event) error
}

// NewProjector builds a Projector from a name, filter, and handler
// function, for views that do not need a dedicated type.
func NewProjector(name string, filter Filter, handle func(ctx context.Context, tx pgx.Tx, events []dcb.Event) error) Projector {
	return &projectorFunc{name: name, filter: filter, handle: handle}
}

func (p *projectorFunc) Name() string  { return p.name }
func (p *projectorFunc) Filter() Filter { return p.filter }
func (p *projectorFunc) HandleBatch(ctx context.Context, tx pgx.Tx, events []dcb.Event) error {
	return p.handle(ctx, tx, events)
}
