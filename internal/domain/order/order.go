package order

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("order: not found")
	ErrNoItems       = errors.New("order: at least one item is required")
	ErrForbidden     = errors.New("order: access denied")
	ErrNegativeTotal = errors.New("order: total must be zero or greater")
)

// Item is a priced order line. Items are immutable once the order exists.
type Item struct {
	ProductID     string
	ProductName   string
	Quantity      int
	UnitPrice     decimal.Decimal
	StemsPerBunch int
	LineTotal     decimal.Decimal
}

type Order struct {
	ID              string
	Number          string
	UserID          string
	Status          Status
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	CreditsUsed     decimal.Decimal
	Total           decimal.Decimal
	ShippingAddress string
	PaymentMethod   string
	Notes           string
	Items           []Item
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func New(id, number, userID string, items []Item, subtotal, discount, creditsUsed, total decimal.Decimal) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	if total.IsNegative() {
		return nil, ErrNegativeTotal
	}

	now := time.Now().UTC()
	return &Order{
		ID:          id,
		Number:      number,
		UserID:      userID,
		Status:      StatusPending,
		Subtotal:    subtotal,
		Discount:    discount,
		CreditsUsed: creditsUsed,
		Total:       total,
		Items:       append([]Item(nil), items...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Transition moves the order to the target status, appending the optional
// note, after validating the move against the lifecycle state machine.
func (o *Order) Transition(target Status, note string) error {
	if !CanTransition(o.Status, target) {
		return &InvalidTransitionError{From: o.Status, To: target}
	}
	o.Status = target
	if note != "" {
		if o.Notes != "" {
			o.Notes += "\n"
		}
		o.Notes += note
	}
	o.touch()
	return nil
}

func (o *Order) UsedCredits() bool {
	return o.CreditsUsed.IsPositive()
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Items = append([]Item(nil), o.Items...)
	return &clone
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
