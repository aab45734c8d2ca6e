package payment

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("payment: order not found")
	ErrInvalidAmount = errors.New("payment: amount must be greater than zero")
	ErrNotPending    = errors.New("payment: order already settled")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Order is the local mirror of a remote gateway payment order. It leaves
// pending exactly once; completed and failed are terminal.
type Order struct {
	ID              string
	UserID          string
	RemoteID        string
	Amount          decimal.Decimal
	Currency        string
	Status          Status
	RedirectURL     string
	CallbackPayload json.RawMessage
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func NewOrder(id, userID, remoteID, currency, redirectURL string, amount decimal.Decimal) (*Order, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	now := time.Now().UTC()
	return &Order{
		ID:          id,
		UserID:      userID,
		RemoteID:    remoteID,
		Amount:      amount,
		Currency:    currency,
		Status:      StatusPending,
		RedirectURL: redirectURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Settle flips a pending order to its terminal status, storing the raw
// gateway payload for audit.
func (o *Order) Settle(target Status, payload json.RawMessage) error {
	if o.Status != StatusPending {
		return ErrNotPending
	}
	o.Status = target
	o.CallbackPayload = payload
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.CallbackPayload = append(json.RawMessage(nil), o.CallbackPayload...)
	return &clone
}
