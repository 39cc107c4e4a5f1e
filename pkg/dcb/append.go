package dcb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// appendResult mirrors the JSON result of append_events_if.
type appendResult struct {
	Success     bool   `json:"success"`
	ErrorCode   string `json:"error_code"`
	EventsCount int    `json:"events_count"`
}

func (es *eventStore) Append(ctx context.Context, events []InputEvent) error {
	appendCtx, cancel := withTimeout(ctx, es.config.AppendTimeout)
	defer cancel()
	tx, err := es.primary.BeginTx(appendCtx, pgx.TxOptions{IsoLevel: toPgxIsoLevel(es.config.DefaultIsolation)})
	if err != nil {
		return wrapStorage("append", "database", err)
	}
	defer tx.Rollback(ctx)

	if err := appendBatchInTx(ctx, tx, events, es.config.MaxBatchSize); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStorage("append", "database", err)
	}
	return nil
}

func (es *eventStore) AppendIf(ctx context.Context, events []InputEvent, condition AppendCondition) (uint64, error) {
	appendCtx, cancel := withTimeout(ctx, es.config.AppendTimeout)
	defer cancel()
	tx, err := es.primary.BeginTx(appendCtx, pgx.TxOptions{IsoLevel: toPgxIsoLevel(es.config.DefaultIsolation)})
	if err != nil {
		return 0, wrapStorage("appendIf", "database", err)
	}
	defer tx.Rollback(ctx)

	txID, err := appendIfInTx(ctx, tx, events, condition, es.config.MaxBatchSize)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, wrapStorage("appendIf", "database", err)
	}
	return txID, nil
}

// appendBatchInTx calls append_events_batch: no DCB checks, used when the
// caller already owns the consistency contract.
func appendBatchInTx(ctx context.Context, tx pgx.Tx, events []InputEvent, maxBatchSize int) error {
	if err := validateEvents(events, maxBatchSize); err != nil {
		return err
	}
	types, tags, payloads := marshalEvents(events)
	_, err := tx.Exec(ctx, `SELECT append_events_batch($1, $2, $3::jsonb[])`, types, tags, payloads)
	if err != nil {
		return mapAppendPgError("appendBatchInTx", err)
	}
	return nil
}

// appendIfInTx calls append_events_if: fencing + optional idempotency
// check, atomic with insertion. Returns the transaction id the events
// were written in.
func appendIfInTx(ctx context.Context, tx pgx.Tx, events []InputEvent, condition AppendCondition, maxBatchSize int) (uint64, error) {
	if err := validateEvents(events, maxBatchSize); err != nil {
		return 0, err
	}
	if err := validateQuery(condition.FailIfEventsMatch); err != nil {
		return 0, err
	}
	types, tags, payloads := marshalEvents(events)

	decisionTypes, decisionTags := flattenQuery(condition.FailIfEventsMatch)

	var afterTxID uint64
	var afterPos int64
	hasAfter := condition.After != nil
	if hasAfter {
		afterTxID = condition.After.TransactionID
		afterPos = condition.After.Position
	}

	var idemTypes []string
	var idemTags []string
	hasIdempotency := condition.Idempotency != nil
	if hasIdempotency {
		idemTypes = condition.Idempotency.EventTypes
		idemTags = TagsToArray(condition.Idempotency.Tags)
	}

	var resultJSON []byte
	err := tx.QueryRow(ctx, `
		SELECT append_events_if(
			$1, $2, $3::jsonb[],
			$4::text[], $5::text[],
			$6::bigint, $7::bigint, $8::boolean,
			$9::text[], $10::text[],
			now()
		)`,
		types, tags, payloads,
		decisionTypes, decisionTags,
		afterTxID, afterPos, hasAfter,
		idemTypes, idemTags,
	).Scan(&resultJSON)
	if err != nil {
		return 0, mapAppendPgError("appendIfInTx", err)
	}

	var result appendResult
	if err := json.Unmarshal(resultJSON, &result); err != nil {
		return 0, wrapStorage("appendIfInTx", "json", fmt.Errorf("failed to parse append_events_if result: %w", err))
	}
	if !result.Success {
		switch result.ErrorCode {
		case "CURSOR_VIOLATION":
			return 0, wrapConcurrency("appendIf", fmt.Errorf("append condition violated: events matching the decision model were appended after the fencing cursor"))
		case "IDEMPOTENCY_VIOLATION":
			return 0, wrapDuplicate("appendIf", fmt.Errorf("an event matching the idempotency clause already exists"))
		default:
			return 0, wrapStorage("appendIf", "database", fmt.Errorf("append_events_if failed with unknown error_code %q", result.ErrorCode))
		}
	}

	var txID uint64
	if err := tx.QueryRow(ctx, `SELECT pg_current_xact_id()::text::bigint`).Scan(&txID); err != nil {
		return 0, wrapStorage("appendIfInTx", "database", err)
	}
	return txID, nil
}

func marshalEvents(events []InputEvent) (types []string, tags []string, payloads [][]byte) {
	types = make([]string, len(events))
	tags = make([]string, len(events))
	payloads = make([][]byte, len(events))
	for i, e := range events {
		types[i] = e.Type
		tags[i] = encodeArrayLiteral(TagsToArray(e.Tags))
		if len(e.Data) == 0 {
			payloads[i] = []byte("null")
		} else {
			payloads[i] = e.Data
		}
	}
	return
}

// encodeArrayLiteral renders a string slice as a Postgres array literal so
// a variable-length list (a per-event tag set, or a decision-query item's
// event types/tags) can travel as one element of a flat TEXT[] parameter,
// rather than requiring every element of the outer array to carry the
// same length (which a true multi-dimensional TEXT[][] parameter would
// demand).
func encodeArrayLiteral(items []string) string {
	if len(items) == 0 {
		return "{}"
	}
	quoted := make([]string, len(items))
	for i, t := range items {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `\"`) + `"`
	}
	return "{" + strings.Join(quoted, ",") + "}"
}

// flattenQuery renders condition.FailIfEventsMatch's OR'd items as two
// parallel TEXT[] parameters, one array-literal element per item: item
// i's event types and item i's tags. append_events_if evaluates the
// decision model the same way Query.matches does in Go: an event
// conflicts if it satisfies ANY item (OR), and it satisfies an item when
// its type is among that item's EventTypes (or EventTypes is empty) AND
// all of that item's Tags are present (AND).
func flattenQuery(q Query) (types []string, tags []string) {
	if q.IsEmpty() {
		// An empty Query matches every event (see Query.IsEmpty); one item
		// with empty EventTypes and empty Tags reproduces that under the
		// per-item AND/OR semantics below, since both empty-list checks
		// already mean "matches all" for that item.
		return []string{"{}"}, []string{"{}"}
	}
	for _, item := range q.Items {
		types = append(types, encodeArrayLiteral(item.EventTypes))
		tags = append(tags, encodeArrayLiteral(TagsToArray(item.Tags)))
	}
	return
}

// mapAppendPgError maps a raw Postgres error from the append stored
// procedures to a typed StorageError, carrying the Postgres message and
// SQLSTATE code of any *pgconn.PgError. CURSOR_VIOLATION and
// IDEMPOTENCY_VIOLATION never reach it: the procedures return those as
// data, not as raised errors.
func mapAppendPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return wrapStorage(op, "database", fmt.Errorf("%s (%s): %w", pgErr.Message, pgErr.Code, err))
	}
	return wrapStorage(op, "database", err)
}
