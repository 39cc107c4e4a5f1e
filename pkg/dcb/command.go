package dcb

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Command carries a type name and a JSON-serializable payload through the
// pipeline.
type Command struct {
	Type     string
	Data     []byte
	Metadata []byte // optional, may be nil
}

// NewCommand constructs a Command with no metadata.
func NewCommand(commandType string, data []byte) Command {
	return Command{Type: commandType, Data: data}
}

// CommandResult is what a CommandHandler returns: the events to append and
// the fencing condition to append them under.
type CommandResult struct {
	Events    []InputEvent
	Condition AppendCondition
}

// CommandHandler is a pure function translating a command into the events
// it produces, evaluated against a transaction-scoped EventStore view so
// its reads and its fencing check share one snapshot.
type CommandHandler func(ctx context.Context, tx EventStore, cmd Command) (CommandResult, error)

// Dispatcher routes commands to their registered handler, running each
// dispatch inside its own transaction.
type Dispatcher struct {
	store    EventStore
	mu       sync.RWMutex
	handlers map[string]CommandHandler
}

// NewDispatcher creates a Dispatcher bound to store.
func NewDispatcher(store EventStore) *Dispatcher {
	return &Dispatcher{store: store, handlers: make(map[string]CommandHandler)}
}

// Register advertises the handler for commandType. Registering the same
// type twice fails: handler registration happens at startup and a
// duplicate indicates a wiring bug.
func (d *Dispatcher) Register(commandType string, handler CommandHandler) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[commandType]; exists {
		return wrapValidation("Register", "commandType", commandType, fmt.Errorf("handler already registered for command type %q", commandType))
	}
	d.handlers[commandType] = handler
	return nil
}

// DispatchResult is returned by a successful Dispatch: the transaction id
// the command's events were written in, and the events themselves.
type DispatchResult struct {
	TransactionID uint64
	Events        []InputEvent
}

// Dispatch looks up the handler registered for cmd.Type, runs it inside a
// single transaction together with the fencing append and the command
// record insert, and commits or rolls back atomically.
//
// A ConcurrencyError from the fencing check leaves no trace: the caller
// decides whether to retry. A DuplicateOperationError must be treated by
// the caller as idempotent success.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (DispatchResult, error) {
	d.mu.RLock()
	handler, ok := d.handlers[cmd.Type]
	d.mu.RUnlock()
	if !ok {
		return DispatchResult{}, wrapValidation("Dispatch", "commandType", cmd.Type, fmt.Errorf("no handler registered for command type %q", cmd.Type))
	}

	var result DispatchResult
	err := d.store.ExecuteInTransaction(ctx, func(ctx context.Context, tx EventStore) error {
		cmdResult, err := handler(ctx, tx, cmd)
		if err != nil {
			return wrapHandler("Dispatch", err)
		}
		txID, err := tx.AppendIf(ctx, cmdResult.Events, cmdResult.Condition)
		if err != nil {
			// ConcurrencyError / DuplicateOperationError propagate as-is;
			// the transaction rolls back, leaving no trace either way.
			return err
		}
		if err := storeCommand(ctx, tx, cmd, txID); err != nil {
			return err
		}
		result = DispatchResult{TransactionID: txID, Events: cmdResult.Events}
		return nil
	})
	if err != nil {
		return DispatchResult{}, err
	}
	return result, nil
}

// storeCommand inserts the single command row keyed by the transaction id
// its events were appended in.
func storeCommand(ctx context.Context, tx EventStore, cmd Command, txID uint64) error {
	scoped, ok := tx.(*txEventStore)
	if !ok {
		return wrapStorage("storeCommand", "database", fmt.Errorf("storeCommand requires a transaction-scoped EventStore"))
	}
	metadata := cmd.Metadata
	if metadata == nil {
		metadata = []byte("null")
	}
	if !json.Valid(cmd.Data) {
		return wrapValidation("storeCommand", "data", cmd.Type, fmt.Errorf("command payload must be valid JSON"))
	}
	_, err := scoped.tx.Exec(ctx, `
		INSERT INTO commands (transaction_id, type, data, metadata, occurred_at)
		VALUES ($1, $2, $3::jsonb, $4::jsonb, now())`,
		txID, cmd.Type, cmd.Data, metadata)
	if err != nil {
		return mapAppendPgError("storeCommand", err)
	}
	return nil
}
