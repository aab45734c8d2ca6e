package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/bloomwire/ordercore/internal/domain/buyer"
	"github.com/bloomwire/ordercore/internal/domain/catalog"
	"github.com/bloomwire/ordercore/internal/domain/invoice"
	"github.com/bloomwire/ordercore/internal/domain/ledger"
	"github.com/bloomwire/ordercore/internal/domain/order"
	"github.com/bloomwire/ordercore/internal/domain/payment"
)

type unitKey struct{}

// Store is an in-memory implementation of every repository port plus the
// atomic unit runner. A unit holds the store lock for its whole duration and
// restores a pre-unit snapshot when the unit fails, so partial effects never
// escape. It backs tests and the DSN-less dev mode.
type Store struct {
	mu    sync.Mutex
	state state
}

type state struct {
	products         map[string]*catalog.Product
	buyers           map[string]*buyer.Profile
	orders           map[string]*order.Order
	orderSeq         map[string]int
	entries          map[string][]*ledger.Transaction
	balances         map[string]decimal.Decimal
	payments         map[string]*payment.Order
	paymentsByRemote map[string]string
	invoices         map[string]*invoice.Invoice
	invoiceByOrder   map[string]string
	invoiceSeq       map[string]int
}

func NewStore() *Store {
	return &Store{state: newState()}
}

func newState() state {
	return state{
		products:         make(map[string]*catalog.Product),
		buyers:           make(map[string]*buyer.Profile),
		orders:           make(map[string]*order.Order),
		orderSeq:         make(map[string]int),
		entries:          make(map[string][]*ledger.Transaction),
		balances:         make(map[string]decimal.Decimal),
		payments:         make(map[string]*payment.Order),
		paymentsByRemote: make(map[string]string),
		invoices:         make(map[string]*invoice.Invoice),
		invoiceByOrder:   make(map[string]string),
		invoiceSeq:       make(map[string]int),
	}
}

// Atomic implements txn.Runner. Units are serialized on the store lock, the
// in-memory stand-in for row-level locking.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(unitKey{}) != nil {
		// already inside a unit
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(context.WithValue(ctx, unitKey{}, true)); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

// lock acquires the store lock unless the context already runs inside a
// unit, which holds it for the unit's duration.
func (s *Store) lock(ctx context.Context) func() {
	if ctx.Value(unitKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// --- catalog.Repository

func (s *Store) SeedProduct(p *catalog.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *p
	s.state.products[p.ID] = &clone
}

func (s *Store) Get(ctx context.Context, productID string) (*catalog.Product, error) {
	defer s.lock(ctx)()
	p, ok := s.state.products[productID]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (s *Store) DecrementStock(ctx context.Context, productID string, quantity int) error {
	defer s.lock(ctx)()
	p, ok := s.state.products[productID]
	if !ok {
		return catalog.ErrNotFound
	}
	if err := p.CheckStock(quantity); err != nil {
		return err
	}
	p.AvailableQty -= quantity
	return nil
}

func (s *Store) RestoreStock(ctx context.Context, productID string, quantity int) error {
	defer s.lock(ctx)()
	p, ok := s.state.products[productID]
	if !ok {
		return catalog.ErrNotFound
	}
	p.AvailableQty += quantity
	return nil
}

// --- buyer.Repository

func (s *Store) SeedProfile(p *buyer.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *p
	s.state.buyers[p.UserID] = &clone
}

func (s *Store) GetProfile(ctx context.Context, userID string) (*buyer.Profile, error) {
	defer s.lock(ctx)()
	p, ok := s.state.buyers[userID]
	if !ok {
		return nil, buyer.ErrNotFound
	}
	clone := *p
	return &clone, nil
}

// --- order.Repository

func (s *Store) Insert(ctx context.Context, o *order.Order) error {
	defer s.lock(ctx)()
	s.state.orders[o.ID] = o.Clone()
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	defer s.lock(ctx)()
	o, ok := s.state.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o.Clone(), nil
}

func (s *Store) Update(ctx context.Context, o *order.Order) error {
	defer s.lock(ctx)()
	if _, ok := s.state.orders[o.ID]; !ok {
		return order.ErrNotFound
	}
	s.state.orders[o.ID] = o.Clone()
	return nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	defer s.lock(ctx)()
	var out []*order.Order
	for _, o := range s.state.orders {
		if o.UserID == userID {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) NextSequence(ctx context.Context, period string) (int, error) {
	defer s.lock(ctx)()
	s.state.orderSeq[period]++
	return s.state.orderSeq[period], nil
}

// --- ledger.Repository

func ledgerKey(name ledger.Name, userID string) string {
	return string(name) + "/" + userID
}

func (s *Store) LockBalance(ctx context.Context, name ledger.Name, userID string) (decimal.Decimal, error) {
	defer s.lock(ctx)()
	return s.balanceLocked(name, userID), nil
}

func (s *Store) Balance(ctx context.Context, name ledger.Name, userID string) (decimal.Decimal, error) {
	defer s.lock(ctx)()
	return s.balanceLocked(name, userID), nil
}

func (s *Store) balanceLocked(name ledger.Name, userID string) decimal.Decimal {
	key := ledgerKey(name, userID)
	b, ok := s.state.balances[key]
	if !ok {
		s.state.balances[key] = decimal.Zero
		return decimal.Zero
	}
	return b
}

func (s *Store) Append(ctx context.Context, tx *ledger.Transaction) error {
	defer s.lock(ctx)()
	clone := *tx
	key := ledgerKey(tx.Ledger, tx.UserID)
	s.state.entries[key] = append(s.state.entries[key], &clone)
	return nil
}

func (s *Store) SaveBalance(ctx context.Context, name ledger.Name, userID string, balance decimal.Decimal) error {
	defer s.lock(ctx)()
	s.state.balances[ledgerKey(name, userID)] = balance
	return nil
}

func (s *Store) Transactions(ctx context.Context, name ledger.Name, userID string) ([]*ledger.Transaction, error) {
	defer s.lock(ctx)()
	src := s.state.entries[ledgerKey(name, userID)]
	out := make([]*ledger.Transaction, 0, len(src))
	for _, tx := range src {
		clone := *tx
		out = append(out, &clone)
	}
	return out, nil
}

// --- payment.Repository

func (s *Store) InsertPayment(ctx context.Context, o *payment.Order) error {
	defer s.lock(ctx)()
	s.state.payments[o.ID] = o.Clone()
	s.state.paymentsByRemote[o.RemoteID] = o.ID
	return nil
}

func (s *Store) GetPayment(ctx context.Context, id string) (*payment.Order, error) {
	defer s.lock(ctx)()
	o, ok := s.state.payments[id]
	if !ok {
		return nil, payment.ErrNotFound
	}
	return o.Clone(), nil
}

func (s *Store) FindByRemoteID(ctx context.Context, remoteID string) (*payment.Order, error) {
	defer s.lock(ctx)()
	id, ok := s.state.paymentsByRemote[remoteID]
	if !ok {
		return nil, payment.ErrNotFound
	}
	return s.state.payments[id].Clone(), nil
}

func (s *Store) UpdatePayment(ctx context.Context, o *payment.Order) error {
	defer s.lock(ctx)()
	if _, ok := s.state.payments[o.ID]; !ok {
		return payment.ErrNotFound
	}
	s.state.payments[o.ID] = o.Clone()
	return nil
}

// --- invoice.Repository

func (s *Store) InsertInvoice(ctx context.Context, inv *invoice.Invoice) error {
	defer s.lock(ctx)()
	if _, ok := s.state.invoiceByOrder[inv.OrderID]; ok {
		return invoice.ErrConflict
	}
	s.state.invoices[inv.ID] = inv.Clone()
	s.state.invoiceByOrder[inv.OrderID] = inv.ID
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (*invoice.Invoice, error) {
	defer s.lock(ctx)()
	inv, ok := s.state.invoices[id]
	if !ok {
		return nil, invoice.ErrNotFound
	}
	return inv.Clone(), nil
}

func (s *Store) GetInvoiceByOrder(ctx context.Context, orderID string) (*invoice.Invoice, error) {
	defer s.lock(ctx)()
	id, ok := s.state.invoiceByOrder[orderID]
	if !ok {
		return nil, invoice.ErrNotFound
	}
	return s.state.invoices[id].Clone(), nil
}

func (s *Store) NextInvoiceSequence(ctx context.Context, period string) (int, error) {
	defer s.lock(ctx)()
	s.state.invoiceSeq[period]++
	return s.state.invoiceSeq[period], nil
}

// --- snapshot

func (st state) clone() state {
	out := newState()
	for k, v := range st.products {
		clone := *v
		out.products[k] = &clone
	}
	for k, v := range st.buyers {
		clone := *v
		out.buyers[k] = &clone
	}
	for k, v := range st.orders {
		out.orders[k] = v.Clone()
	}
	for k, v := range st.orderSeq {
		out.orderSeq[k] = v
	}
	for k, list := range st.entries {
		cp := make([]*ledger.Transaction, 0, len(list))
		for _, tx := range list {
			clone := *tx
			cp = append(cp, &clone)
		}
		out.entries[k] = cp
	}
	for k, v := range st.balances {
		out.balances[k] = v
	}
	for k, v := range st.payments {
		out.payments[k] = v.Clone()
	}
	for k, v := range st.paymentsByRemote {
		out.paymentsByRemote[k] = v
	}
	for k, v := range st.invoices {
		out.invoices[k] = v.Clone()
	}
	for k, v := range st.invoiceByOrder {
		out.invoiceByOrder[k] = v
	}
	for k, v := range st.invoiceSeq {
		out.invoiceSeq[k] = v
	}
	return out
}
