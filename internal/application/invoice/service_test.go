package invoice

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloomwire/ordercore/internal/domain/buyer"
	"github.com/bloomwire/ordercore/internal/domain/identity"
	domain "github.com/bloomwire/ordercore/internal/domain/invoice"
	"github.com/bloomwire/ordercore/internal/domain/order"
	"github.com/bloomwire/ordercore/internal/infrastructure/memory"
)

type seqIDGen struct{ n int }

func (g *seqIDGen) NewID() string {
	g.n++
	return fmt.Sprintf("id-%04d", g.n)
}

type stubRenderer struct{ rendered *domain.Invoice }

func (r *stubRenderer) Render(inv *domain.Invoice) ([]byte, error) {
	r.rendered = inv
	return []byte("%PDF-stub"), nil
}

type fixture struct {
	store    *memory.Store
	renderer *stubRenderer
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	store.SeedProfile(&buyer.Profile{
		UserID:      "buyer-1",
		CompanyName: "Petal & Stem Ltd",
		TaxID:       "NL123456789B01",
		Address:     "Canal Street 5, Amsterdam",
	})
	renderer := &stubRenderer{}
	svc := NewService(store.Invoices(), store.Orders(), store.Buyers(), store,
		&seqIDGen{}, renderer, "INV", domain.DefaultVATRate, nil)
	return &fixture{store: store, renderer: renderer, svc: svc}
}

func (f *fixture) insertOrder(t *testing.T, id, userID, total string) *order.Order {
	t.Helper()
	o, err := order.New(id, "ORD-20260829-0001", userID,
		[]order.Item{{
			ProductID:   "rose",
			ProductName: "Red Naomi Rose",
			Quantity:    2,
			UnitPrice:   decimal.RequireFromString("59.00"),
			LineTotal:   decimal.RequireFromString(total),
		}},
		decimal.RequireFromString(total), decimal.Zero, decimal.Zero,
		decimal.RequireFromString(total))
	require.NoError(t, err)
	require.NoError(t, f.store.Orders().Insert(context.Background(), o))
	return o
}

func TestGenerateIssuesInvoiceWithVATBreakdown(t *testing.T) {
	f := newFixture(t)
	o := f.insertOrder(t, "order-1", "buyer-1", "118.00")

	inv, err := f.svc.Generate(context.Background(), o.ID)
	require.NoError(t, err)

	assert.Equal(t, o.ID, inv.OrderID)
	assert.Equal(t, "buyer-1", inv.UserID)
	assert.Equal(t, "Petal & Stem Ltd", inv.BuyerName)
	assert.Equal(t, "NL123456789B01", inv.BuyerTaxID)
	assert.Equal(t, domain.StatusIssued, inv.Status)

	// 118.00 gross at 18% VAT splits into 100.00 net + 18.00 tax.
	assert.True(t, decimal.RequireFromString("100.00").Equal(inv.Subtotal), "subtotal %s", inv.Subtotal)
	assert.True(t, decimal.RequireFromString("18.00").Equal(inv.VAT), "vat %s", inv.VAT)
	assert.True(t, decimal.RequireFromString("118.00").Equal(inv.Total), "total %s", inv.Total)

	expected := domain.Number("INV", time.Now().UTC(), 1)
	assert.Equal(t, expected, inv.Number)
}

func TestGenerateTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	o := f.insertOrder(t, "order-1", "buyer-1", "118.00")

	_, err := f.svc.Generate(context.Background(), o.ID)
	require.NoError(t, err)

	_, err = f.svc.Generate(context.Background(), o.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestGenerateSequencesNumbersWithinMonth(t *testing.T) {
	f := newFixture(t)
	first := f.insertOrder(t, "order-1", "buyer-1", "118.00")
	second := f.insertOrder(t, "order-2", "buyer-1", "59.00")

	a, err := f.svc.Generate(context.Background(), first.ID)
	require.NoError(t, err)
	b, err := f.svc.Generate(context.Background(), second.ID)
	require.NoError(t, err)

	now := time.Now().UTC()
	assert.Equal(t, domain.Number("INV", now, 1), a.Number)
	assert.Equal(t, domain.Number("INV", now, 2), b.Number)
}

func TestGenerateUnknownOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Generate(context.Background(), "order-missing")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestGetEnforcesOwnership(t *testing.T) {
	f := newFixture(t)
	o := f.insertOrder(t, "order-1", "buyer-1", "118.00")
	inv, err := f.svc.Generate(context.Background(), o.ID)
	require.NoError(t, err)

	_, err = f.svc.Get(context.Background(), identity.Identity{UserID: "buyer-2"}, inv.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	got, err := f.svc.Get(context.Background(), identity.Identity{UserID: "ops", Roles: []string{identity.RoleAdmin}}, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, got.ID)
}

func TestDownloadRendersStoredInvoice(t *testing.T) {
	f := newFixture(t)
	o := f.insertOrder(t, "order-1", "buyer-1", "118.00")
	inv, err := f.svc.Generate(context.Background(), o.ID)
	require.NoError(t, err)

	pdf, err := f.svc.Download(context.Background(), identity.Identity{UserID: "buyer-1"}, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-stub"), pdf)
	require.NotNil(t, f.renderer.rendered)
	assert.Equal(t, inv.Number, f.renderer.rendered.Number)
}
