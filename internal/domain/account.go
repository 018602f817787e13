package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Account holds the balances for one client. Total is always
// Available + Held, and both stay non-negative. Once Locked is set by a
// chargeback the account rejects every further mutation.
type Account struct {
	ClientID  ClientID
	Available decimal.Decimal
	Held      decimal.Decimal
	Total     decimal.Decimal
	Locked    bool
}

func NewAccount(client ClientID) *Account {
	return &Account{ClientID: client}
}

// Deposit credits amount to the available balance. The caller is
// responsible for rejecting non-positive amounts before calling.
func (a *Account) Deposit(amount decimal.Decimal) {
	a.Available = a.Available.Add(amount)
	a.Total = a.Total.Add(amount)
}

// Withdraw debits amount from the available balance. The account is left
// unchanged when available funds do not cover the amount.
func (a *Account) Withdraw(amount decimal.Decimal) error {
	if a.Available.Cmp(amount) < 0 {
		return fmt.Errorf("%w: available %s, requested %s",
			ErrInsufficientFunds, a.Available, amount)
	}
	a.Available = a.Available.Sub(amount)
	a.Total = a.Total.Sub(amount)
	return nil
}

// Dispute freezes amount by moving it from available to held. Total is
// unchanged. A dispute cannot freeze money that has already been withdrawn,
// so it fails when available funds are below the disputed amount.
func (a *Account) Dispute(amount decimal.Decimal) error {
	if a.Available.Cmp(amount) < 0 {
		return fmt.Errorf("%w: available %s, disputed %s",
			ErrInsufficientFundsForDispute, a.Available, amount)
	}
	a.Available = a.Available.Sub(amount)
	a.Held = a.Held.Add(amount)
	return nil
}

// Resolve releases a previously disputed amount back to available. The
// processor only calls this for entries it marked disputed, so a held
// balance below amount means the bookkeeping is corrupt.
func (a *Account) Resolve(amount decimal.Decimal) error {
	if a.Held.Cmp(amount) < 0 {
		return fmt.Errorf("%w: held %s below resolved amount %s",
			ErrInvariantViolation, a.Held, amount)
	}
	a.Held = a.Held.Sub(amount)
	a.Available = a.Available.Add(amount)
	return nil
}

// Chargeback withdraws a disputed amount from held funds and permanently
// locks the account.
func (a *Account) Chargeback(amount decimal.Decimal) error {
	if a.Held.Cmp(amount) < 0 {
		return fmt.Errorf("%w: held %s below chargeback amount %s",
			ErrInvariantViolation, a.Held, amount)
	}
	a.Held = a.Held.Sub(amount)
	a.Total = a.Total.Sub(amount)
	a.Locked = true
	return nil
}

// Normalize rounds the balances to the four decimal places of the amount
// domain. Arithmetic never produces more precision than its inputs, so this
// only matters when exporting snapshots.
func (a *Account) Normalize() {
	a.Available = a.Available.Round(4)
	a.Held = a.Held.Round(4)
	a.Total = a.Total.Round(4)
}
