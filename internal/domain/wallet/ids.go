package wallet

import "go.jetify.com/typeid"

// NewWalletID mints a "wallet_" prefixed TypeID via typeid's WithPrefix
// constructor.
func NewWalletID() string {
	tid, err := typeid.WithPrefix("wallet")
	if err != nil {
		tid, _ = typeid.WithPrefix("id")
	}
	return tid.String()
}

// NewTransferID mints a "transfer_" prefixed TypeID for a MoneyTransferred
// event's transfer_id tag.
func NewTransferID() string {
	tid, err := typeid.WithPrefix("transfer")
	if err != nil {
		tid, _ = typeid.WithPrefix("id")
	}
	return tid.String()
}
