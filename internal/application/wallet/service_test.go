package wallet

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloomwire/ordercore/internal/domain/ledger"
	"github.com/bloomwire/ordercore/internal/domain/payment"
	"github.com/bloomwire/ordercore/internal/infrastructure/memory"
)

type seqIDGen struct{ n int }

func (g *seqIDGen) NewID() string {
	g.n++
	return fmt.Sprintf("id-%04d", g.n)
}

type fakeGateway struct {
	created  int
	err      error
	remoteID string
}

func (g *fakeGateway) CreateOrder(_ context.Context, _ decimal.Decimal, _ string) (*payment.CreatedOrder, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.created++
	return &payment.CreatedOrder{
		RemoteID:    fmt.Sprintf("%s-%d", g.remoteID, g.created),
		RedirectURL: "https://gateway.example.com/pay",
	}, nil
}

func (g *fakeGateway) Receipt(_ context.Context, remoteID string) (*payment.Receipt, error) {
	return &payment.Receipt{RemoteID: remoteID, Status: payment.RemoteStatusCompleted}, nil
}

func (g *fakeGateway) Refund(_ context.Context, _ string, _ decimal.Decimal) error { return nil }

type fixture struct {
	store   *memory.Store
	wallet  *ledger.Ledger
	gateway *fakeGateway
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	idGen := &seqIDGen{}
	wallet := ledger.New(ledger.Wallet, store.Ledgers(), idGen)
	credits := ledger.New(ledger.Credit, store.Ledgers(), idGen)
	gw := &fakeGateway{remoteID: "remote"}
	svc := NewService(wallet, credits, store.Payments(), gw, store, idGen, "USD", nil)
	return &fixture{store: store, wallet: wallet, gateway: gw, svc: svc}
}

// walletIntegrity checks the append-only invariants: each row's balanceAfter
// equals balanceBefore plus its signed amount, rows chain onto each other,
// and the cached balance equals the sum of signed amounts.
func walletIntegrity(t *testing.T, f *fixture, userID string) {
	t.Helper()
	txs, err := f.svc.WalletTransactions(context.Background(), userID)
	require.NoError(t, err)

	sum := decimal.Zero
	for _, tx := range txs {
		assert.True(t, tx.BalanceAfter.Equal(tx.BalanceBefore.Add(tx.SignedAmount())),
			"tx %s: %s != %s + %s", tx.ID, tx.BalanceAfter, tx.BalanceBefore, tx.SignedAmount())
		sum = sum.Add(tx.SignedAmount())
	}

	b, err := f.svc.Balances(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, b.Wallet.Equal(sum), "balance %s, signed sum %s", b.Wallet, sum)
}

func TestAdminDeposit(t *testing.T) {
	f := newFixture(t)

	tx, err := f.svc.AdminDeposit(context.Background(), "buyer-1", decimal.RequireFromString("150.00"), "goodwill")
	require.NoError(t, err)
	assert.Equal(t, ledger.KindDeposit, tx.Kind)
	assert.True(t, tx.BalanceBefore.IsZero())
	assert.True(t, decimal.RequireFromString("150.00").Equal(tx.BalanceAfter))

	walletIntegrity(t, f, "buyer-1")
}

func TestAdminDepositRejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t)

	for _, amount := range []string{"0", "-25.00"} {
		_, err := f.svc.AdminDeposit(context.Background(), "buyer-1", decimal.RequireFromString(amount), "")
		assert.ErrorIs(t, err, ledger.ErrInvalidAmount, "amount %s", amount)
	}
}

func TestCreateTopUpPersistsPendingOrder(t *testing.T) {
	f := newFixture(t)

	topUp, err := f.svc.CreateTopUp(context.Background(), "buyer-1", decimal.RequireFromString("300.00"))
	require.NoError(t, err)
	assert.NotEmpty(t, topUp.PaymentOrderID)
	assert.Equal(t, "https://gateway.example.com/pay", topUp.RedirectURL)

	entity, err := f.store.Payments().Get(context.Background(), topUp.PaymentOrderID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, entity.Status)
	assert.True(t, decimal.RequireFromString("300.00").Equal(entity.Amount))

	// No money moves until the gateway confirms.
	b, err := f.svc.Balances(context.Background(), "buyer-1")
	require.NoError(t, err)
	assert.True(t, b.Wallet.IsZero())
}

func TestCreateTopUpGatewayFailurePersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.gateway.err = errors.New("gateway unavailable")

	_, err := f.svc.CreateTopUp(context.Background(), "buyer-1", decimal.RequireFromString("300.00"))
	require.Error(t, err)

	txs, err := f.svc.WalletTransactions(context.Background(), "buyer-1")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestCreateTopUpRejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateTopUp(context.Background(), "buyer-1", decimal.Zero)
	assert.ErrorIs(t, err, payment.ErrInvalidAmount)
	assert.Equal(t, 0, f.gateway.created)
}

func callbackPayload(remoteID, status, echoedAmount string) []byte {
	return []byte(fmt.Sprintf(
		`{"order_id":%q,"status":%q,"purchase_units":[{"amount":%q,"currency":"USD"}]}`,
		remoteID, status, echoedAmount))
}

func TestCompletedCallbackCreditsLocalAmount(t *testing.T) {
	f := newFixture(t)

	topUp, err := f.svc.CreateTopUp(context.Background(), "buyer-1", decimal.RequireFromString("300.00"))
	require.NoError(t, err)
	entity, err := f.store.Payments().Get(context.Background(), topUp.PaymentOrderID)
	require.NoError(t, err)

	// The echoed amount is tampered; the deposit must use the stored 300.00.
	err = f.svc.HandleCallback(context.Background(),
		callbackPayload(entity.RemoteID, "completed", "999999.00"))
	require.NoError(t, err)

	b, err := f.svc.Balances(context.Background(), "buyer-1")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("300.00").Equal(b.Wallet), "wallet %s", b.Wallet)

	settled, err := f.store.Payments().Get(context.Background(), topUp.PaymentOrderID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, settled.Status)
	assert.NotEmpty(t, settled.CallbackPayload)

	walletIntegrity(t, f, "buyer-1")
}

func TestRedeliveredCallbackDepositsOnce(t *testing.T) {
	f := newFixture(t)

	topUp, err := f.svc.CreateTopUp(context.Background(), "buyer-1", decimal.RequireFromString("300.00"))
	require.NoError(t, err)
	entity, err := f.store.Payments().Get(context.Background(), topUp.PaymentOrderID)
	require.NoError(t, err)

	payload := callbackPayload(entity.RemoteID, "completed", "300.00")
	require.NoError(t, f.svc.HandleCallback(context.Background(), payload))
	require.NoError(t, f.svc.HandleCallback(context.Background(), payload))

	txs, err := f.svc.WalletTransactions(context.Background(), "buyer-1")
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	b, err := f.svc.Balances(context.Background(), "buyer-1")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("300.00").Equal(b.Wallet), "wallet %s", b.Wallet)
}

func TestRejectedCallbackFailsOrderWithoutDeposit(t *testing.T) {
	f := newFixture(t)

	topUp, err := f.svc.CreateTopUp(context.Background(), "buyer-1", decimal.RequireFromString("300.00"))
	require.NoError(t, err)
	entity, err := f.store.Payments().Get(context.Background(), topUp.PaymentOrderID)
	require.NoError(t, err)

	err = f.svc.HandleCallback(context.Background(),
		callbackPayload(entity.RemoteID, "rejected", "300.00"))
	require.NoError(t, err)

	settled, err := f.store.Payments().Get(context.Background(), topUp.PaymentOrderID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, settled.Status)

	txs, err := f.svc.WalletTransactions(context.Background(), "buyer-1")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestCallbackAnomaliesAreSwallowed(t *testing.T) {
	f := newFixture(t)

	cases := map[string][]byte{
		"malformed payload":   []byte(`{"order_id": `),
		"unknown remote id":   callbackPayload("remote-unknown", "completed", "300.00"),
		"unrecognized status": nil,
	}

	topUp, err := f.svc.CreateTopUp(context.Background(), "buyer-1", decimal.RequireFromString("300.00"))
	require.NoError(t, err)
	entity, err := f.store.Payments().Get(context.Background(), topUp.PaymentOrderID)
	require.NoError(t, err)
	cases["unrecognized status"] = callbackPayload(entity.RemoteID, "on_hold", "300.00")

	for name, payload := range cases {
		assert.NoError(t, f.svc.HandleCallback(context.Background(), payload), name)
	}

	// Nothing settled, nothing credited.
	reloaded, err := f.store.Payments().Get(context.Background(), topUp.PaymentOrderID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, reloaded.Status)

	txs, err := f.svc.WalletTransactions(context.Background(), "buyer-1")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestSpendOverdraftRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AdminDeposit(context.Background(), "buyer-1", decimal.RequireFromString("100.00"), "")
	require.NoError(t, err)

	err = f.store.Atomic(context.Background(), func(ctx context.Context) error {
		_, err := f.wallet.Spend(ctx, "buyer-1", decimal.RequireFromString("100.01"), "order", "")
		return err
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	b, err := f.svc.Balances(context.Background(), "buyer-1")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("100.00").Equal(b.Wallet))
}
