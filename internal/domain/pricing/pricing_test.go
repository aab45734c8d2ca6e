package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloomwire/ordercore/internal/domain/catalog"
)

func product(id string, price string, stems int) *catalog.Product {
	return &catalog.Product{
		ID:            id,
		Name:          "product " + id,
		UnitPrice:     decimal.RequireFromString(price),
		StemsPerBunch: stems,
		AvailableQty:  10000,
	}
}

func TestDiscountTiers(t *testing.T) {
	cases := []struct {
		stems int
		pct   int64
	}{
		{99, 0},
		{100, 5},
		{499, 5},
		{500, 10},
		{999, 10},
		{1000, 15},
		{5000, 15},
	}
	for _, c := range cases {
		assert.Equal(t, c.pct, DiscountFor(c.stems), "stems=%d", c.stems)
	}
}

func TestCalculateVolumeDiscountWithCredits(t *testing.T) {
	// 120 stems, subtotal 1000 -> 5% tier.
	products := map[string]*catalog.Product{
		"rose": product("rose", "250", 20),
		"lily": product("lily", "62.50", 10),
	}
	items := []ItemInput{
		{ProductID: "rose", Quantity: 2}, // 500, 40 stems
		{ProductID: "lily", Quantity: 8}, // 500, 80 stems
	}

	q, err := Calculate(items, products, true, decimal.NewFromInt(200))
	require.NoError(t, err)

	assert.Equal(t, 120, q.TotalStems)
	assert.True(t, q.Subtotal.Equal(decimal.NewFromInt(1000)), "subtotal=%s", q.Subtotal)
	assert.Equal(t, int64(5), q.DiscountPct)
	assert.True(t, q.Discount.Equal(decimal.NewFromInt(50)), "discount=%s", q.Discount)
	assert.True(t, q.AfterDiscount.Equal(decimal.NewFromInt(950)))
	assert.True(t, q.CreditsUsed.Equal(decimal.NewFromInt(200)))
	assert.True(t, q.Total.Equal(decimal.NewFromInt(750)))
}

func TestCalculateCreditsCappedByAfterDiscount(t *testing.T) {
	products := map[string]*catalog.Product{"p": product("p", "10", 1)}
	items := []ItemInput{{ProductID: "p", Quantity: 3}}

	q, err := Calculate(items, products, true, decimal.NewFromInt(500))
	require.NoError(t, err)

	assert.True(t, q.CreditsUsed.Equal(q.AfterDiscount))
	assert.True(t, q.Total.IsZero())
}

func TestCalculateWithoutCredits(t *testing.T) {
	products := map[string]*catalog.Product{"p": product("p", "10", 1)}
	q, err := Calculate([]ItemInput{{ProductID: "p", Quantity: 2}}, products, false, decimal.NewFromInt(500))
	require.NoError(t, err)
	assert.True(t, q.CreditsUsed.IsZero())
	assert.True(t, q.Total.Equal(decimal.NewFromInt(20)))
}

func TestCalculateUnknownProduct(t *testing.T) {
	_, err := Calculate([]ItemInput{{ProductID: "ghost", Quantity: 1}}, map[string]*catalog.Product{}, false, decimal.Zero)
	assert.True(t, errors.Is(err, catalog.ErrNotFound))
}

func TestCalculateRejectsNonPositiveQuantity(t *testing.T) {
	products := map[string]*catalog.Product{"p": product("p", "10", 1)}
	_, err := Calculate([]ItemInput{{ProductID: "p", Quantity: 0}}, products, false, decimal.Zero)
	assert.ErrorIs(t, err, catalog.ErrInvalidQuantity)
}

func TestSubtotalMonotonicity(t *testing.T) {
	products := map[string]*catalog.Product{
		"a": product("a", "12.30", 5),
		"b": product("b", "7.77", 25),
	}
	base := []ItemInput{{ProductID: "a", Quantity: 3}, {ProductID: "b", Quantity: 4}}

	prev, err := Calculate(base, products, false, decimal.Zero)
	require.NoError(t, err)

	for qty := 5; qty <= 50; qty += 5 {
		bumped := []ItemInput{{ProductID: "a", Quantity: 3}, {ProductID: "b", Quantity: qty}}
		q, err := Calculate(bumped, products, false, decimal.Zero)
		require.NoError(t, err)
		assert.True(t, q.Subtotal.GreaterThanOrEqual(prev.Subtotal),
			"subtotal dropped from %s to %s at qty=%d", prev.Subtotal, q.Subtotal, qty)
		prev = q
	}
}
