package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound            = errors.New("ledger: wallet not found")
	ErrInvalidAmount       = errors.New("ledger: amount must be greater than zero")
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
)

// Amount aliases the decimal money type used across the ledgers.
type Amount = decimal.Decimal

// Name separates the two parallel ledgers. They share every invariant; only
// the balances they track differ.
type Name string

const (
	Wallet Name = "wallet"
	Credit Name = "credit"
)

// Kind is the transaction type. Deposit and refund credit the balance,
// spend debits it.
type Kind string

const (
	KindDeposit Kind = "DEPOSIT"
	KindSpend   Kind = "SPEND"
	KindRefund  Kind = "REFUND"
)

// Transaction is one immutable ledger row. Rows are never updated or
// deleted; corrections are new rows.
type Transaction struct {
	ID            string
	Ledger        Name
	UserID        string
	Kind          Kind
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Description   string
	ReferenceID   string
	CreatedAt     time.Time
}

// SignedAmount is the delta the row applies to the balance. Summing signed
// amounts from zero always reproduces the cached balance.
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.Kind == KindSpend {
		return t.Amount.Neg()
	}
	return t.Amount
}
