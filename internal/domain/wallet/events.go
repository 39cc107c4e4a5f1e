package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event type names, persisted verbatim in the events table's type column.
const (
	EventTypeWalletOpened     = "WalletOpened"
	EventTypeDeposited        = "Deposited"
	EventTypeWithdrawn        = "Withdrawn"
	EventTypeMoneyTransferred = "MoneyTransferred"
)

// WalletOpened is recorded once per wallet, fenced on the wallet_id tag
// never having been used before.
type WalletOpened struct {
	WalletID string    `json:"wallet_id"`
	Owner    string    `json:"owner"`
	Currency string    `json:"currency"`
	OpenedAt time.Time `json:"opened_at"`
}

// Deposited records a credit to a wallet. Balance is the balance after
// applying Amount, computed by the handler against its own projection so
// readers never need to replay arithmetic themselves.
type Deposited struct {
	WalletID    string          `json:"wallet_id"`
	Amount      decimal.Decimal `json:"amount"`
	Balance     decimal.Decimal `json:"balance"`
	DepositedAt time.Time       `json:"deposited_at"`
}

// Withdrawn records a debit from a wallet.
type Withdrawn struct {
	WalletID    string          `json:"wallet_id"`
	Amount      decimal.Decimal `json:"amount"`
	Balance     decimal.Decimal `json:"balance"`
	WithdrawnAt time.Time       `json:"withdrawn_at"`
}

// MoneyTransferred records one atomic transfer between two wallets as a
// single event tagged with both wallet ids, so either wallet's projector
// can fold it by checking which side it was on.
type MoneyTransferred struct {
	TransferID    string          `json:"transfer_id"`
	FromWalletID  string          `json:"from_wallet_id"`
	ToWalletID    string          `json:"to_wallet_id"`
	Amount        decimal.Decimal `json:"amount"`
	FromBalance   decimal.Decimal `json:"from_balance"`
	ToBalance     decimal.Decimal `json:"to_balance"`
	TransferredAt time.Time       `json:"transferred_at"`
}
