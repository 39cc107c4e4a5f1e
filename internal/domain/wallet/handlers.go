package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dcbengine/dcbengine/pkg/dcb"
)

// Register advertises every wallet command handler on d.
func Register(d *dcb.Dispatcher) error {
	handlers := map[string]dcb.CommandHandler{
		CommandTypeOpenWallet:    handleOpenWallet,
		CommandTypeDeposit:       handleDeposit,
		CommandTypeWithdraw:      handleWithdraw,
		CommandTypeTransferMoney: handleTransferMoney,
	}
	for commandType, handler := range handlers {
		if err := d.Register(commandType, handler); err != nil {
			return err
		}
	}
	return nil
}

func handleOpenWallet(ctx context.Context, tx dcb.EventStore, cmd dcb.Command) (dcb.CommandResult, error) {
	var c OpenWalletCommand
	if err := json.Unmarshal(cmd.Data, &c); err != nil {
		return dcb.CommandResult{}, fmt.Errorf("unmarshal OpenWalletCommand: %w", err)
	}

	query := dcb.NewQuery(dcb.NewTags("wallet_id", c.WalletID), EventTypeWalletOpened)
	existing, err := tx.Query(ctx, query, nil, nil)
	if err != nil {
		return dcb.CommandResult{}, fmt.Errorf("check existing wallet: %w", err)
	}
	if len(existing) > 0 {
		return dcb.CommandResult{}, fmt.Errorf("wallet %s already exists", c.WalletID)
	}

	opened := WalletOpened{WalletID: c.WalletID, Owner: c.Owner, Currency: c.Currency, OpenedAt: time.Now()}
	data, err := json.Marshal(opened)
	if err != nil {
		return dcb.CommandResult{}, fmt.Errorf("marshal WalletOpened: %w", err)
	}
	event := dcb.NewInputEvent(EventTypeWalletOpened, dcb.NewTags("wallet_id", c.WalletID), data)
	cursor := dcb.ZeroCursor

	return dcb.CommandResult{
		Events:    []dcb.InputEvent{event},
		Condition: dcb.AppendCondition{FailIfEventsMatch: query, After: &cursor},
	}, nil
}

func handleDeposit(ctx context.Context, tx dcb.EventStore, cmd dcb.Command) (dcb.CommandResult, error) {
	var c DepositCommand
	if err := json.Unmarshal(cmd.Data, &c); err != nil {
		return dcb.CommandResult{}, fmt.Errorf("unmarshal DepositCommand: %w", err)
	}
	if c.Amount.Sign() <= 0 {
		return dcb.CommandResult{}, fmt.Errorf("deposit amount must be positive, got %s", c.Amount)
	}

	projector := Projector(c.WalletID)
	results, err := tx.Project(ctx, nil, projector)
	if err != nil {
		return dcb.CommandResult{}, fmt.Errorf("project wallet %s: %w", c.WalletID, err)
	}
	state := results[projector.ID].State.(State)
	if !state.Opened {
		return dcb.CommandResult{}, fmt.Errorf("wallet %s does not exist", c.WalletID)
	}

	newBalance := state.Balance.Add(c.Amount)
	deposited := Deposited{WalletID: c.WalletID, Amount: c.Amount, Balance: newBalance, DepositedAt: time.Now()}
	data, err := json.Marshal(deposited)
	if err != nil {
		return dcb.CommandResult{}, fmt.Errorf("marshal Deposited: %w", err)
	}
	event := dcb.NewInputEvent(EventTypeDeposited, dcb.NewTags("wallet_id", c.WalletID), data)
	cursor := results[projector.ID].Cursor

	return dcb.CommandResult{
		Events:    []dcb.InputEvent{event},
		Condition: dcb.AppendCondition{FailIfEventsMatch: projector.Query, After: &cursor},
	}, nil
}

func handleWithdraw(ctx context.Context, tx dcb.EventStore, cmd dcb.Command) (dcb.CommandResult, error) {
	var c WithdrawCommand
	if err := json.Unmarshal(cmd.Data, &c); err != nil {
		return dcb.CommandResult{}, fmt.Errorf("unmarshal WithdrawCommand: %w", err)
	}
	if c.Amount.Sign() <= 0 {
		return dcb.CommandResult{}, fmt.Errorf("withdrawal amount must be positive, got %s", c.Amount)
	}

	projector := Projector(c.WalletID)
	results, err := tx.Project(ctx, nil, projector)
	if err != nil {
		return dcb.CommandResult{}, fmt.Errorf("project wallet %s: %w", c.WalletID, err)
	}
	state := results[projector.ID].State.(State)
	if !state.Opened {
		return dcb.CommandResult{}, fmt.Errorf("wallet %s does not exist", c.WalletID)
	}
	if state.Balance.LessThan(c.Amount) {
		return dcb.CommandResult{}, fmt.Errorf("insufficient funds: balance %s, requested %s", state.Balance, c.Amount)
	}

	newBalance := state.Balance.Sub(c.Amount)
	withdrawn := Withdrawn{WalletID: c.WalletID, Amount: c.Amount, Balance: newBalance, WithdrawnAt: time.Now()}
	data, err := json.Marshal(withdrawn)
	if err != nil {
		return dcb.CommandResult{}, fmt.Errorf("marshal Withdrawn: %w", err)
	}
	event := dcb.NewInputEvent(EventTypeWithdrawn, dcb.NewTags("wallet_id", c.WalletID), data)
	cursor := results[projector.ID].Cursor

	return dcb.CommandResult{
		Events:    []dcb.InputEvent{event},
		Condition: dcb.AppendCondition{FailIfEventsMatch: projector.Query, After: &cursor},
	}, nil
}

func handleTransferMoney(ctx context.Context, tx dcb.EventStore, cmd dcb.Command) (dcb.CommandResult, error) {
	var c TransferMoneyCommand
	if err := json.Unmarshal(cmd.Data, &c); err != nil {
		return dcb.CommandResult{}, fmt.Errorf("unmarshal TransferMoneyCommand: %w", err)
	}
	if c.Amount.Sign() <= 0 {
		return dcb.CommandResult{}, fmt.Errorf("transfer amount must be positive, got %s", c.Amount)
	}
	if c.FromWalletID == c.ToWalletID {
		return dcb.CommandResult{}, fmt.Errorf("cannot transfer from a wallet to itself")
	}

	fromProjector := Projector(c.FromWalletID)
	toProjector := Projector(c.ToWalletID)
	results, err := tx.Project(ctx, nil, fromProjector, toProjector)
	if err != nil {
		return dcb.CommandResult{}, fmt.Errorf("project wallets: %w", err)
	}
	from := results[fromProjector.ID].State.(State)
	to := results[toProjector.ID].State.(State)
	if !from.Opened {
		return dcb.CommandResult{}, fmt.Errorf("wallet %s does not exist", c.FromWalletID)
	}
	if !to.Opened {
		return dcb.CommandResult{}, fmt.Errorf("wallet %s does not exist", c.ToWalletID)
	}
	if from.Balance.LessThan(c.Amount) {
		return dcb.CommandResult{}, fmt.Errorf("insufficient funds: balance %s, requested %s", from.Balance, c.Amount)
	}

	transferID := c.TransferID
	if transferID == "" {
		transferID = NewTransferID()
	}
	transfer := MoneyTransferred{
		TransferID:    transferID,
		FromWalletID:  c.FromWalletID,
		ToWalletID:    c.ToWalletID,
		Amount:        c.Amount,
		FromBalance:   from.Balance.Sub(c.Amount),
		ToBalance:     to.Balance.Add(c.Amount),
		TransferredAt: time.Now(),
	}
	data, err := json.Marshal(transfer)
	if err != nil {
		return dcb.CommandResult{}, fmt.Errorf("marshal MoneyTransferred: %w", err)
	}
	tags := append(dcb.NewTags("transfer_id", transferID),
		dcb.NewTag("from_wallet_id", c.FromWalletID),
		dcb.NewTag("to_wallet_id", c.ToWalletID))
	event := dcb.NewInputEvent(EventTypeMoneyTransferred, tags, data)

	combined := dcb.CombineProjectorQueries(fromProjector, toProjector)
	cursor := maxCursor(results[fromProjector.ID].Cursor, results[toProjector.ID].Cursor)

	return dcb.CommandResult{
		Events:    []dcb.InputEvent{event},
		Condition: dcb.AppendCondition{FailIfEventsMatch: combined, After: &cursor},
	}, nil
}
