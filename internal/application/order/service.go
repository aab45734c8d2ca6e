package order

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bloomwire/ordercore/internal/domain/catalog"
	"github.com/bloomwire/ordercore/internal/domain/identity"
	"github.com/bloomwire/ordercore/internal/domain/ledger"
	domain "github.com/bloomwire/ordercore/internal/domain/order"
	domoutbox "github.com/bloomwire/ordercore/internal/domain/outbox"
	"github.com/bloomwire/ordercore/internal/domain/pricing"
	"github.com/bloomwire/ordercore/internal/domain/txn"
	"github.com/bloomwire/ordercore/internal/observability"
	"github.com/bloomwire/ordercore/internal/observability/logctx"
)

const (
	serviceName        = "order-service"
	spanPrefix         = "UC."
	useCaseOrderCreate = "order.create"
	useCaseOrderStatus = "order.update_status"
	orderNumberPrefix  = "ORD"
)

// IDGenerator mints entity ids.
type IDGenerator interface {
	NewID() string
}

// Service is the order lifecycle manager. It owns every mutation of product
// stock and is the only caller of the credit ledger's spend/refund flows.
type Service struct {
	orders    domain.Repository
	products  catalog.Repository
	credits   *ledger.Ledger
	runner    txn.Runner
	idGen     IDGenerator
	publisher domoutbox.Publisher

	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

func NewService(
	orders domain.Repository,
	products catalog.Repository,
	credits *ledger.Ledger,
	runner txn.Runner,
	idGen IDGenerator,
	publisher domoutbox.Publisher,
	tel observability.Observability,
) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Service{
		orders:       orders,
		products:     products,
		credits:      credits,
		runner:       runner,
		idGen:        idGen,
		publisher:    publisher,
		log:          tel.Logger().With(observability.F("service", serviceName)),
		tracer:       tel.Tracer(),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

type CreateOrderInput struct {
	Items           []pricing.ItemInput
	ShippingAddress string
	Notes           string
	UseCredits      bool
	PaymentMethod   string
}

// CalculatePrice previews the price breakdown without touching any state.
// Unit prices and credit balance are re-fetched server-side.
func (s *Service) CalculatePrice(ctx context.Context, userID string, items []pricing.ItemInput, useCredits bool) (*pricing.Quote, error) {
	products, err := s.fetchProducts(ctx, items)
	if err != nil {
		return nil, err
	}
	balance, err := s.credits.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return pricing.Calculate(items, products, useCredits, balance)
}

// CreateOrder prices the items and, in one atomic unit, decrements stock,
// spends requested credits, and inserts the pending order. Any failure rolls
// the whole unit back.
func (s *Service) CreateOrder(ctx context.Context, userID string, in CreateOrderInput) (o *domain.Order, err error) {
	logger := logctx.FromOr(ctx, s.log).With(observability.F("use_case", useCaseOrderCreate))

	ctx, span := s.tracer.Start(ctx, spanPrefix+"CreateOrder",
		attribute.String("use_case", useCaseOrderCreate),
		attribute.String("order.user_id", userID),
		attribute.Int("order.item_count", len(in.Items)),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		lat := time.Since(start).Seconds()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		s.reqCounter.Add(1,
			observability.L("use_case", useCaseOrderCreate),
			observability.L("outcome", outcome),
		)
		s.durHistogram.Observe(lat, observability.L("use_case", useCaseOrderCreate))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		if o != nil {
			fields = append(fields, observability.F("order_id", o.ID))
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	products, err := s.fetchProducts(ctx, in.Items)
	if err != nil {
		outcome, statusText = "error", "PRODUCT_LOOKUP_FAILED"
		return nil, err
	}

	balance := decimal.Zero
	if in.UseCredits {
		if balance, err = s.credits.Balance(ctx, userID); err != nil {
			outcome, statusText = "error", "CREDIT_BALANCE_FAILED"
			return nil, err
		}
	}

	quote, err := pricing.Calculate(in.Items, products, in.UseCredits, balance)
	if err != nil {
		outcome, statusText = "error", "PRICING_FAILED"
		return nil, err
	}

	for _, line := range quote.Lines {
		if err = line.Product.CheckStock(line.Quantity); err != nil {
			outcome, statusText = "error", "INSUFFICIENT_STOCK"
			return nil, err
		}
	}

	err = s.runner.Atomic(ctx, func(ctx context.Context) error {
		for _, line := range quote.Lines {
			if err := s.products.DecrementStock(ctx, line.Product.ID, line.Quantity); err != nil {
				return err
			}
		}

		orderID := s.idGen.NewID()
		if quote.CreditsUsed.IsPositive() {
			if _, err := s.credits.Spend(ctx, userID, quote.CreditsUsed, "applied to order", orderID); err != nil {
				return err
			}
		}

		seq, err := s.orders.NextSequence(ctx, time.Now().UTC().Format("20060102"))
		if err != nil {
			return err
		}
		number := fmt.Sprintf("%s-%s-%04d", orderNumberPrefix, time.Now().UTC().Format("20060102"), seq)

		items := make([]domain.Item, 0, len(quote.Lines))
		for _, line := range quote.Lines {
			items = append(items, domain.Item{
				ProductID:     line.Product.ID,
				ProductName:   line.Product.Name,
				Quantity:      line.Quantity,
				UnitPrice:     line.Product.UnitPrice,
				StemsPerBunch: line.Product.StemsPerBunch,
				LineTotal:     line.LineTotal,
			})
		}

		entity, err := domain.New(orderID, number, userID, items, quote.Subtotal, quote.Discount, quote.CreditsUsed, quote.Total)
		if err != nil {
			return err
		}
		entity.ShippingAddress = in.ShippingAddress
		entity.PaymentMethod = in.PaymentMethod
		entity.Notes = in.Notes

		if err := s.orders.Insert(ctx, entity); err != nil {
			return err
		}
		o = entity
		return nil
	})
	if err != nil {
		o = nil
		outcome, statusText = "error", "CREATE_UNIT_FAILED"
		return nil, err
	}

	span.SetAttributes(attribute.String("order.number", o.Number))
	return o, nil
}

// UpdateStatus validates and applies a lifecycle transition. Cancellation
// restores stock and issues the credit restitution entries in the same unit;
// approval triggers best-effort invoice generation after the unit commits.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, target domain.Status, note string) (o *domain.Order, err error) {
	logger := logctx.FromOr(ctx, s.log).With(
		observability.F("use_case", useCaseOrderStatus),
		observability.F("order_id", orderID),
	)

	ctx, span := s.tracer.Start(ctx, spanPrefix+"UpdateOrderStatus",
		attribute.String("use_case", useCaseOrderStatus),
		attribute.String("order.id", orderID),
		attribute.String("order.target_status", string(target)),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		lat := time.Since(start).Seconds()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		s.reqCounter.Add(1,
			observability.L("use_case", useCaseOrderStatus),
			observability.L("outcome", outcome),
		)
		s.durHistogram.Observe(lat, observability.L("use_case", useCaseOrderStatus))

		logger.Info("use_case_done",
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		)
	}()

	err = s.runner.Atomic(ctx, func(ctx context.Context) error {
		entity, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return err
		}

		if err := entity.Transition(target, note); err != nil {
			return err
		}

		if target == domain.StatusCancelled {
			for _, it := range entity.Items {
				if err := s.products.RestoreStock(ctx, it.ProductID, it.Quantity); err != nil {
					return err
				}
			}
			if entity.UsedCredits() {
				if _, err := s.credits.Refund(ctx, entity.UserID, entity.CreditsUsed, "order cancelled", entity.ID); err != nil {
					return err
				}
			}
			// Store policy: no cash refunds, the full total comes back as
			// compensation credit.
			if entity.Total.IsPositive() {
				if _, err := s.credits.Deposit(ctx, entity.UserID, entity.Total, "cancellation compensation", entity.ID); err != nil {
					return err
				}
			}
		}

		if err := s.orders.Update(ctx, entity); err != nil {
			return err
		}
		o = entity
		return nil
	})
	if err != nil {
		outcome, statusText = "error", "STATUS_UNIT_FAILED"
		return nil, err
	}

	if target == domain.StatusApproved && s.publisher != nil {
		// Decoupled side effect: the invoice worker picks this up. A publish
		// failure is logged, never propagated.
		if pubErr := s.publisher.Publish(ctx, domain.NewOrderApprovedEvent(o)); pubErr != nil {
			statusText = "EVENT_PUBLISH_FAILED"
			logger.Warn("order_approved_publish_failed", observability.F("error", pubErr.Error()))
		}
	}

	return o, nil
}

// Get loads one order, refusing access to other users' orders for non-admin
// callers.
func (s *Service) Get(ctx context.Context, ident identity.Identity, orderID string) (*domain.Order, error) {
	entity, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if entity.UserID != ident.UserID && !ident.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	return entity, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]*domain.Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

func (s *Service) fetchProducts(ctx context.Context, items []pricing.ItemInput) (map[string]*catalog.Product, error) {
	products := make(map[string]*catalog.Product, len(items))
	for _, it := range items {
		if _, ok := products[it.ProductID]; ok {
			continue
		}
		p, err := s.products.Get(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}
		products[it.ProductID] = p
	}
	return products, nil
}
