package payment

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Remote gateway status keys as delivered in webhook payloads. Anything
// outside this closed set is logged and ignored.
const (
	RemoteStatusCompleted = "completed"
	RemoteStatusRejected  = "rejected"
)

// CreatedOrder is the gateway's answer to a create-order call.
type CreatedOrder struct {
	RemoteID    string
	RedirectURL string
}

// Receipt mirrors the gateway's settlement record for a remote order.
type Receipt struct {
	RemoteID string
	Status   string
	Amount   decimal.Decimal
	Currency string
}

// Gateway is the outbound boundary to the payment provider.
type Gateway interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency string) (*CreatedOrder, error)
	Receipt(ctx context.Context, remoteID string) (*Receipt, error)
	Refund(ctx context.Context, remoteID string, amount decimal.Decimal) error
}

// Callback is the parsed webhook notification. The echoed purchase-unit
// amounts are kept for audit only; crediting always uses the locally stored
// order amount.
type Callback struct {
	RemoteID      string         `json:"order_id"`
	Status        string         `json:"status"`
	PurchaseUnits []PurchaseUnit `json:"purchase_units"`
}

type PurchaseUnit struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func ParseCallback(raw json.RawMessage) (*Callback, error) {
	var cb Callback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return nil, err
	}
	return &cb, nil
}

type Repository interface {
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// FindByRemoteID locks the payment order row for the caller's unit so a
	// redelivered webhook cannot race the first delivery.
	FindByRemoteID(ctx context.Context, remoteID string) (*Order, error)
	Update(ctx context.Context, order *Order) error
}
