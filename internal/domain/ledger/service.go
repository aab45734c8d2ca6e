package ledger

import (
	"context"
	"time"
)

// IDGenerator mints transaction ids.
type IDGenerator interface {
	NewID() string
}

// Ledger is the only writer of its balance. Every mutation locks the wallet,
// appends one immutable row carrying balanceBefore/balanceAfter, and updates
// the cached balance inside the caller's atomic unit.
type Ledger struct {
	name  Name
	repo  Repository
	idGen IDGenerator
}

func New(name Name, repo Repository, idGen IDGenerator) *Ledger {
	return &Ledger{name: name, repo: repo, idGen: idGen}
}

func (l *Ledger) Name() Name { return l.name }

// Deposit credits the balance. Must run inside an atomic unit.
func (l *Ledger) Deposit(ctx context.Context, userID string, amount Amount, description, referenceID string) (*Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	return l.append(ctx, userID, KindDeposit, amount, description, referenceID)
}

// Spend debits the balance, failing with ErrInsufficientBalance on overdraw.
func (l *Ledger) Spend(ctx context.Context, userID string, amount Amount, description, referenceID string) (*Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	balance, err := l.repo.LockBalance(ctx, l.name, userID)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(balance) {
		return nil, ErrInsufficientBalance
	}
	return l.record(ctx, userID, KindSpend, amount, balance, description, referenceID)
}

// Refund credits a previously spent amount back.
func (l *Ledger) Refund(ctx context.Context, userID string, amount Amount, description, referenceID string) (*Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	return l.append(ctx, userID, KindRefund, amount, description, referenceID)
}

func (l *Ledger) Balance(ctx context.Context, userID string) (Amount, error) {
	return l.repo.Balance(ctx, l.name, userID)
}

func (l *Ledger) Transactions(ctx context.Context, userID string) ([]*Transaction, error) {
	return l.repo.Transactions(ctx, l.name, userID)
}

func (l *Ledger) append(ctx context.Context, userID string, kind Kind, amount Amount, description, referenceID string) (*Transaction, error) {
	balance, err := l.repo.LockBalance(ctx, l.name, userID)
	if err != nil {
		return nil, err
	}
	return l.record(ctx, userID, kind, amount, balance, description, referenceID)
}

func (l *Ledger) record(ctx context.Context, userID string, kind Kind, amount, balanceBefore Amount, description, referenceID string) (*Transaction, error) {
	tx := &Transaction{
		ID:            l.idGen.NewID(),
		Ledger:        l.name,
		UserID:        userID,
		Kind:          kind,
		Amount:        amount,
		BalanceBefore: balanceBefore,
		Description:   description,
		ReferenceID:   referenceID,
		CreatedAt:     time.Now().UTC(),
	}
	tx.BalanceAfter = balanceBefore.Add(tx.SignedAmount())

	if err := l.repo.Append(ctx, tx); err != nil {
		return nil, err
	}
	if err := l.repo.SaveBalance(ctx, l.name, userID, tx.BalanceAfter); err != nil {
		return nil, err
	}
	return tx, nil
}
