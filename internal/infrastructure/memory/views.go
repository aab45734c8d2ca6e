package memory

import (
	"context"

	"github.com/bloomwire/ordercore/internal/domain/buyer"
	"github.com/bloomwire/ordercore/internal/domain/catalog"
	"github.com/bloomwire/ordercore/internal/domain/invoice"
	"github.com/bloomwire/ordercore/internal/domain/ledger"
	"github.com/bloomwire/ordercore/internal/domain/order"
	"github.com/bloomwire/ordercore/internal/domain/payment"
)

// The repository ports share method names (Get, Insert, Update), so each is
// exposed as a thin view over the one store.

func (s *Store) Products() catalog.Repository { return s }
func (s *Store) Ledgers() ledger.Repository   { return s }

func (s *Store) Orders() order.Repository     { return orderRepo{s} }
func (s *Store) Buyers() buyer.Repository     { return buyerRepo{s} }
func (s *Store) Payments() payment.Repository { return paymentRepo{s} }
func (s *Store) Invoices() invoice.Repository { return invoiceRepo{s} }

type orderRepo struct{ s *Store }

func (r orderRepo) Insert(ctx context.Context, o *order.Order) error { return r.s.Insert(ctx, o) }
func (r orderRepo) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.s.GetOrder(ctx, id)
}
func (r orderRepo) Update(ctx context.Context, o *order.Order) error { return r.s.Update(ctx, o) }
func (r orderRepo) ListByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	return r.s.ListByUser(ctx, userID)
}
func (r orderRepo) NextSequence(ctx context.Context, period string) (int, error) {
	return r.s.NextSequence(ctx, period)
}

type buyerRepo struct{ s *Store }

func (r buyerRepo) Get(ctx context.Context, userID string) (*buyer.Profile, error) {
	return r.s.GetProfile(ctx, userID)
}

type paymentRepo struct{ s *Store }

func (r paymentRepo) Insert(ctx context.Context, o *payment.Order) error {
	return r.s.InsertPayment(ctx, o)
}
func (r paymentRepo) Get(ctx context.Context, id string) (*payment.Order, error) {
	return r.s.GetPayment(ctx, id)
}
func (r paymentRepo) FindByRemoteID(ctx context.Context, remoteID string) (*payment.Order, error) {
	return r.s.FindByRemoteID(ctx, remoteID)
}
func (r paymentRepo) Update(ctx context.Context, o *payment.Order) error {
	return r.s.UpdatePayment(ctx, o)
}

type invoiceRepo struct{ s *Store }

func (r invoiceRepo) Insert(ctx context.Context, inv *invoice.Invoice) error {
	return r.s.InsertInvoice(ctx, inv)
}
func (r invoiceRepo) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	return r.s.GetInvoice(ctx, id)
}
func (r invoiceRepo) GetByOrder(ctx context.Context, orderID string) (*invoice.Invoice, error) {
	return r.s.GetInvoiceByOrder(ctx, orderID)
}
func (r invoiceRepo) NextSequence(ctx context.Context, period string) (int, error) {
	return r.s.NextInvoiceSequence(ctx, period)
}
