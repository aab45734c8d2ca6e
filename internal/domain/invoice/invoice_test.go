package invoice

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloomwire/ordercore/internal/domain/buyer"
	"github.com/bloomwire/ordercore/internal/domain/order"
)

func TestExtractVATRoundTrip(t *testing.T) {
	totals := []string{"100.00", "750.00", "0.01", "199.99", "123456.78"}
	for _, s := range totals {
		total := decimal.RequireFromString(s)
		subtotal, vat := ExtractVAT(total, DefaultVATRate)
		assert.True(t, subtotal.Add(vat).Equal(total), "total=%s subtotal=%s vat=%s", total, subtotal, vat)
		assert.False(t, vat.IsNegative())
	}
}

func TestExtractVATKnownValue(t *testing.T) {
	subtotal, vat := ExtractVAT(decimal.NewFromInt(118), DefaultVATRate)
	assert.True(t, subtotal.Equal(decimal.NewFromInt(100)), "subtotal=%s", subtotal)
	assert.True(t, vat.Equal(decimal.NewFromInt(18)), "vat=%s", vat)
}

func TestNumberFormat(t *testing.T) {
	at := time.Date(2026, time.March, 7, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "INV-202603-00042", Number("INV", at, 42))
}

func TestBuildUsesCompanyNameWhenPresent(t *testing.T) {
	o := testOrder(t)

	inv := Build("inv-1", "INV-202601-00001", o, &buyer.Profile{
		UserID:      o.UserID,
		CompanyName: "Tulip Trading BV",
		FirstName:   "Ana",
		LastName:    "Petrova",
	}, DefaultVATRate)

	assert.Equal(t, "Tulip Trading BV", inv.BuyerName)
	assert.Equal(t, o.ID, inv.OrderID)
	assert.Equal(t, StatusIssued, inv.Status)
	assert.True(t, inv.Subtotal.Add(inv.VAT).Equal(o.Total))
	require.Len(t, inv.Items, len(o.Items))
	for i, it := range inv.Items {
		assert.True(t, it.Subtotal.Add(it.VAT).Equal(o.Items[i].LineTotal))
	}
}

func TestBuildFallsBackToPersonName(t *testing.T) {
	o := testOrder(t)
	inv := Build("inv-2", "INV-202601-00002", o, &buyer.Profile{
		UserID:    o.UserID,
		FirstName: "Ana",
		LastName:  "Petrova",
	}, DefaultVATRate)
	assert.Equal(t, "Ana Petrova", inv.BuyerName)
}

func testOrder(t *testing.T) *order.Order {
	t.Helper()
	items := []order.Item{
		{
			ProductID:   "rose",
			ProductName: "Red Rose",
			Quantity:    2,
			UnitPrice:   decimal.RequireFromString("40.00"),
			LineTotal:   decimal.RequireFromString("80.00"),
		},
		{
			ProductID:   "lily",
			ProductName: "White Lily",
			Quantity:    1,
			UnitPrice:   decimal.RequireFromString("38.00"),
			LineTotal:   decimal.RequireFromString("38.00"),
		},
	}
	o, err := order.New("ord-1", "ORD-20260101-0001", "user-1", items,
		decimal.RequireFromString("118.00"), decimal.Zero, decimal.Zero, decimal.RequireFromString("118.00"))
	require.NoError(t, err)
	return o
}
