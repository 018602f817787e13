package domain

import (
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypeDeposit    TransactionType = "deposit"
	TypeWithdrawal TransactionType = "withdrawal"
	TypeDispute    TransactionType = "dispute"
	TypeResolve    TransactionType = "resolve"
	TypeChargeback TransactionType = "chargeback"
)

// ClientID identifies a client. Client ids fit in 16 bits per the input format.
type ClientID uint16

// TxID identifies a deposit or withdrawal. Transaction ids are globally
// unique across the whole stream, not per client.
type TxID uint32

// Transaction is a single movement record from the input stream.
// Amount is meaningful only when Type.RequiresAmount() is true; the upstream
// validator guarantees it is present and positive for those types before the
// transaction reaches the processor.
type Transaction struct {
	Type     TransactionType
	ClientID ClientID
	TxID     TxID
	Amount   decimal.Decimal
}

// LedgerEntry is the stored record of an amount-bearing transaction
// (deposit or withdrawal) plus its dispute flag. Entries are written once
// per TxID and never deleted.
type LedgerEntry struct {
	ClientID     ClientID
	TxID         TxID
	Amount       decimal.Decimal
	UnderDispute bool
}

func NewTransaction(t TransactionType, client ClientID, tx TxID, amount decimal.Decimal) Transaction {
	return Transaction{
		Type:     t,
		ClientID: client,
		TxID:     tx,
		Amount:   amount,
	}
}

// RequiresAmount reports whether transactions of this type carry an amount.
func (t TransactionType) RequiresAmount() bool {
	return t == TypeDeposit || t == TypeWithdrawal
}

// IsDisputeFamily reports whether transactions of this type reference an
// earlier ledger entry instead of carrying their own amount.
func (t TransactionType) IsDisputeFamily() bool {
	return t == TypeDispute || t == TypeResolve || t == TypeChargeback
}

// KnownType reports whether s names one of the five transaction types.
func KnownType(s string) bool {
	switch TransactionType(s) {
	case TypeDeposit, TypeWithdrawal, TypeDispute, TypeResolve, TypeChargeback:
		return true
	}
	return false
}
