package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/bloomwire/ordercore/internal/domain/catalog"
)

// Tier unlocks a percentage discount once the total stem count reaches
// MinStems. Tiers are evaluated in descending order; first match wins.
type Tier struct {
	MinStems    int
	DiscountPct int64
}

var tiers = []Tier{
	{MinStems: 1000, DiscountPct: 15},
	{MinStems: 500, DiscountPct: 10},
	{MinStems: 100, DiscountPct: 5},
}

type ItemInput struct {
	ProductID string
	Quantity  int
}

// Line is one priced order line of a quote.
type Line struct {
	Product   *catalog.Product
	Quantity  int
	LineTotal decimal.Decimal
}

// Quote is the full price breakdown for a prospective order.
type Quote struct {
	Lines         []Line
	TotalStems    int
	Subtotal      decimal.Decimal
	DiscountPct   int64
	Discount      decimal.Decimal
	AfterDiscount decimal.Decimal
	CreditsUsed   decimal.Decimal
	Total         decimal.Decimal
}

// DiscountFor returns the volume discount percentage for a stem count.
func DiscountFor(totalStems int) int64 {
	for _, t := range tiers {
		if totalStems >= t.MinStems {
			return t.DiscountPct
		}
	}
	return 0
}

// Calculate prices an item list against server-side product records. It is a
// pure function of its inputs: unit prices come from the supplied products,
// never from the caller, and credits are capped by both the balance and the
// discounted amount. Fails with catalog.ErrNotFound when an item references
// an unknown product.
func Calculate(items []ItemInput, products map[string]*catalog.Product, useCredits bool, creditBalance decimal.Decimal) (*Quote, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("pricing: %w", catalog.ErrInvalidQuantity)
	}

	q := &Quote{Subtotal: decimal.Zero}
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, catalog.ErrInvalidQuantity
		}
		p, ok := products[it.ProductID]
		if !ok {
			return nil, fmt.Errorf("pricing: product %s: %w", it.ProductID, catalog.ErrNotFound)
		}
		lineTotal := p.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))).Round(2)
		q.Lines = append(q.Lines, Line{Product: p, Quantity: it.Quantity, LineTotal: lineTotal})
		q.Subtotal = q.Subtotal.Add(lineTotal)
		q.TotalStems += it.Quantity * p.StemsPerBunch
	}

	q.DiscountPct = DiscountFor(q.TotalStems)
	q.Discount = q.Subtotal.Mul(decimal.NewFromInt(q.DiscountPct)).Div(decimal.NewFromInt(100)).Round(2)
	q.AfterDiscount = q.Subtotal.Sub(q.Discount)

	q.CreditsUsed = decimal.Zero
	if useCredits && creditBalance.IsPositive() {
		q.CreditsUsed = decimal.Min(creditBalance, q.AfterDiscount)
	}
	q.Total = q.AfterDiscount.Sub(q.CreditsUsed)

	return q, nil
}
