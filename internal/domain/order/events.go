package order

import "time"

// OrderApprovedEvent is emitted after an approval commits. The invoice worker
// consumes it to issue the invoice as a decoupled side effect.
type OrderApprovedEvent struct {
	OrderID    string
	UserID     string
	OccurredAt time.Time
}

func (OrderApprovedEvent) EventName() string { return "order.approved" }

func NewOrderApprovedEvent(o *Order) OrderApprovedEvent {
	return OrderApprovedEvent{
		OrderID:    o.ID,
		UserID:     o.UserID,
		OccurredAt: time.Now().UTC(),
	}
}
