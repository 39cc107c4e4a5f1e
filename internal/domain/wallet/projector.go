package wallet

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/dcbengine/dcbengine/pkg/dcb"
)

// State is one wallet's current balance, folded from its event stream.
type State struct {
	WalletID string
	Owner    string
	Currency string
	Balance  decimal.Decimal
	Opened   bool
}

// Projector builds a dcb.StateProjector scoped to one wallet's events.
func Projector(walletID string) dcb.StateProjector {
	return dcb.StateProjector{
		ID: "wallet:" + walletID,
		Query: dcb.NewQueryFromItems(
			dcb.NewQueryItem([]string{EventTypeWalletOpened, EventTypeDeposited, EventTypeWithdrawn}, dcb.NewTags("wallet_id", walletID)),
			dcb.NewQueryItem([]string{EventTypeMoneyTransferred}, dcb.NewTags("from_wallet_id", walletID)),
			dcb.NewQueryItem([]string{EventTypeMoneyTransferred}, dcb.NewTags("to_wallet_id", walletID)),
		),
		InitialState: State{WalletID: walletID, Balance: decimal.Zero},
		Transition:   transition,
	}
}

func transition(raw any, e dcb.Event) any {
	state := raw.(State)
	switch e.Type {
	case EventTypeWalletOpened:
		var opened WalletOpened
		if err := json.Unmarshal(e.Data, &opened); err != nil {
			return state
		}
		state.Owner = opened.Owner
		state.Currency = opened.Currency
		state.Balance = decimal.Zero
		state.Opened = true
	case EventTypeDeposited:
		var d Deposited
		if err := json.Unmarshal(e.Data, &d); err != nil {
			return state
		}
		state.Balance = d.Balance
	case EventTypeWithdrawn:
		var w Withdrawn
		if err := json.Unmarshal(e.Data, &w); err != nil {
			return state
		}
		state.Balance = w.Balance
	case EventTypeMoneyTransferred:
		var t MoneyTransferred
		if err := json.Unmarshal(e.Data, &t); err != nil {
			return state
		}
		switch state.WalletID {
		case t.FromWalletID:
			state.Balance = t.FromBalance
		case t.ToWalletID:
			state.Balance = t.ToBalance
		}
	}
	return state
}

// maxCursor returns whichever of a, b is later in the total order, so a
// command touching multiple wallets can fence on the newest cursor either
// projection observed.
func maxCursor(a, b dcb.Cursor) dcb.Cursor {
	if a.Before(b) {
		return b
	}
	return a
}
