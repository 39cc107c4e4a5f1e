package wallet

import "github.com/shopspring/decimal"

// Command type names registered with a dcb.Dispatcher.
const (
	CommandTypeOpenWallet    = "OpenWallet"
	CommandTypeDeposit       = "Deposit"
	CommandTypeWithdraw      = "Withdraw"
	CommandTypeTransferMoney = "TransferMoney"
)

// OpenWalletCommand opens a new wallet at a zero balance.
type OpenWalletCommand struct {
	WalletID string `json:"wallet_id"`
	Owner    string `json:"owner"`
	Currency string `json:"currency"`
}

// DepositCommand credits Amount to WalletID.
type DepositCommand struct {
	WalletID string          `json:"wallet_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// WithdrawCommand debits Amount from WalletID.
type WithdrawCommand struct {
	WalletID string          `json:"wallet_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// TransferMoneyCommand moves Amount from FromWalletID to ToWalletID.
type TransferMoneyCommand struct {
	TransferID   string          `json:"transfer_id"`
	FromWalletID string          `json:"from_wallet_id"`
	ToWalletID   string          `json:"to_wallet_id"`
	Amount       decimal.Decimal `json:"amount"`
}
