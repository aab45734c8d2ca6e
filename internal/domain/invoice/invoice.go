package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bloomwire/ordercore/internal/domain/buyer"
	"github.com/bloomwire/ordercore/internal/domain/order"
)

var (
	ErrNotFound  = errors.New("invoice: not found")
	ErrConflict  = errors.New("invoice: already issued for order")
	ErrForbidden = errors.New("invoice: access denied")
)

// DefaultVATRate is the VAT rate applied when extracting tax from
// VAT-inclusive totals, in percent.
const DefaultVATRate = 18

type Status string

const (
	StatusIssued Status = "issued"
	StatusPaid   Status = "paid"
	StatusVoid   Status = "void"
)

type Item struct {
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
	Subtotal    decimal.Decimal
	VAT         decimal.Decimal
	Total       decimal.Decimal
}

// Invoice is immutable content-wise once issued; only Status may change.
type Invoice struct {
	ID        string
	Number    string
	OrderID   string
	UserID    string
	BuyerName string
	BuyerTaxID string
	Status    Status
	Subtotal  decimal.Decimal
	VAT       decimal.Decimal
	Total     decimal.Decimal
	Items     []Item
	IssuedAt  time.Time
}

// ExtractVAT splits a VAT-inclusive total at rate percent:
// subtotal = total/(1+rate), vat = total - subtotal.
func ExtractVAT(total decimal.Decimal, rate int64) (subtotal, vat decimal.Decimal) {
	divisor := decimal.New(100+rate, -2) // 1 + rate/100
	subtotal = total.Div(divisor).Round(2)
	vat = total.Sub(subtotal)
	return subtotal, vat
}

// Number formats the sequential human-readable invoice number, scoped per
// calendar month.
func Number(prefix string, issuedAt time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%05d", prefix, issuedAt.Format("200601"), seq)
}

// Build derives an invoice from an order and the buyer's billing profile.
// VAT is extracted once at the header and once per line independently; the
// line-level figures are not forced to reconcile exactly with the header.
func Build(id, number string, o *order.Order, profile *buyer.Profile, rate int64) *Invoice {
	inv := &Invoice{
		ID:        id,
		Number:    number,
		OrderID:   o.ID,
		UserID:    o.UserID,
		BuyerName: profile.DisplayName(),
		BuyerTaxID: profile.TaxID,
		Status:    StatusIssued,
		Total:     o.Total,
		IssuedAt:  time.Now().UTC(),
	}
	inv.Subtotal, inv.VAT = ExtractVAT(o.Total, rate)

	for _, it := range o.Items {
		lineSubtotal, lineVAT := ExtractVAT(it.LineTotal, rate)
		inv.Items = append(inv.Items, Item{
			Description: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Subtotal:    lineSubtotal,
			VAT:         lineVAT,
			Total:       it.LineTotal,
		})
	}
	return inv
}

func (i *Invoice) Clone() *Invoice {
	if i == nil {
		return nil
	}
	clone := *i
	clone.Items = append([]Item(nil), i.Items...)
	return &clone
}

type Repository interface {
	Insert(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id string) (*Invoice, error)
	// GetByOrder fails with ErrNotFound when the order has no invoice yet.
	GetByOrder(ctx context.Context, orderID string) (*Invoice, error)
	// NextSequence returns the next value of the per-month invoice counter,
	// atomically within the caller's unit. period is a YYYYMM month key.
	NextSequence(ctx context.Context, period string) (int, error)
}
