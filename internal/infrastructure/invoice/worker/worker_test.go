package worker

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	invoiceapp "github.com/bloomwire/ordercore/internal/application/invoice"
	orderapp "github.com/bloomwire/ordercore/internal/application/order"
	"github.com/bloomwire/ordercore/internal/domain/buyer"
	"github.com/bloomwire/ordercore/internal/domain/catalog"
	dominvoice "github.com/bloomwire/ordercore/internal/domain/invoice"
	domorder "github.com/bloomwire/ordercore/internal/domain/order"
	"github.com/bloomwire/ordercore/internal/domain/ledger"
	"github.com/bloomwire/ordercore/internal/domain/pricing"
	"github.com/bloomwire/ordercore/internal/infrastructure/id"
	"github.com/bloomwire/ordercore/internal/infrastructure/memory"
	"github.com/bloomwire/ordercore/internal/infrastructure/outbox"
)

type stubRenderer struct{}

func (stubRenderer) Render(_ *dominvoice.Invoice) ([]byte, error) { return []byte("%PDF-stub"), nil }

// End-to-end over the in-process bus: approving an order must eventually
// yield exactly one invoice, without the approval waiting on it.
func TestApprovalTriggersInvoiceGeneration(t *testing.T) {
	store := memory.NewStore()
	store.SeedProduct(&catalog.Product{
		ID: "rose", Name: "Red Naomi Rose",
		UnitPrice: decimal.RequireFromString("118.00"), StemsPerBunch: 20, AvailableQty: 10,
	})
	store.SeedProfile(&buyer.Profile{UserID: "buyer-1", CompanyName: "Petal & Stem Ltd"})

	idGen := id.NewUUIDGenerator()
	credits := ledger.New(ledger.Credit, store.Ledgers(), idGen)

	bus := outbox.NewBus(nil)
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	orders := orderapp.NewService(store.Orders(), store.Products(), credits, store, idGen, bus, nil)
	invoices := invoiceapp.NewService(store.Invoices(), store.Orders(), store.Buyers(), store,
		idGen, stubRenderer{}, "INV", dominvoice.DefaultVATRate, nil)
	New(bus, invoices, nil).Start()

	o, err := orders.CreateOrder(context.Background(), "buyer-1", orderapp.CreateOrderInput{
		Items: []pricing.ItemInput{{ProductID: "rose", Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = orders.UpdateStatus(context.Background(), o.ID, domorder.StatusApproved, "")
	require.NoError(t, err)

	var inv *dominvoice.Invoice
	require.Eventually(t, func() bool {
		inv, err = store.Invoices().GetByOrder(context.Background(), o.ID)
		return err == nil
	}, 3*time.Second, 10*time.Millisecond, "invoice never issued")

	assert.Equal(t, "Petal & Stem Ltd", inv.BuyerName)
	assert.True(t, decimal.RequireFromString("118.00").Equal(inv.Total))
	assert.True(t, decimal.RequireFromString("100.00").Equal(inv.Subtotal), "subtotal %s", inv.Subtotal)
}

// A redelivered event must not mint a second invoice.
func TestDuplicateEventIssuesOneInvoice(t *testing.T) {
	store := memory.NewStore()
	store.SeedProduct(&catalog.Product{
		ID: "rose", Name: "Red Naomi Rose",
		UnitPrice: decimal.RequireFromString("59.00"), StemsPerBunch: 20, AvailableQty: 10,
	})
	store.SeedProfile(&buyer.Profile{UserID: "buyer-1", CompanyName: "Petal & Stem Ltd"})

	idGen := id.NewUUIDGenerator()
	invoices := invoiceapp.NewService(store.Invoices(), store.Orders(), store.Buyers(), store,
		idGen, stubRenderer{}, "INV", dominvoice.DefaultVATRate, nil)
	w := New(nil, invoices, nil)

	o, err := domorder.New("order-1", "ORD-20260829-0001", "buyer-1",
		[]domorder.Item{{ProductID: "rose", ProductName: "Red Naomi Rose", Quantity: 1,
			UnitPrice: decimal.RequireFromString("59.00"), LineTotal: decimal.RequireFromString("59.00")}},
		decimal.RequireFromString("59.00"), decimal.Zero, decimal.Zero, decimal.RequireFromString("59.00"))
	require.NoError(t, err)
	require.NoError(t, store.Orders().Insert(context.Background(), o))

	evt := domorder.NewOrderApprovedEvent(o)
	require.NoError(t, w.handleOrderApproved(context.Background(), evt))
	require.NoError(t, w.handleOrderApproved(context.Background(), evt))

	inv, err := store.Invoices().GetByOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, inv.Number)
}
