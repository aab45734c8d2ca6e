package invoice

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bloomwire/ordercore/internal/domain/buyer"
	"github.com/bloomwire/ordercore/internal/domain/identity"
	domain "github.com/bloomwire/ordercore/internal/domain/invoice"
	"github.com/bloomwire/ordercore/internal/domain/order"
	"github.com/bloomwire/ordercore/internal/domain/txn"
	"github.com/bloomwire/ordercore/internal/observability"
	"github.com/bloomwire/ordercore/internal/observability/logctx"
)

const (
	serviceName     = "invoice-service"
	spanPrefix      = "UC."
	useCaseGenerate = "invoice.generate"
)

type IDGenerator interface {
	NewID() string
}

// Renderer turns a persisted invoice into a downloadable document.
type Renderer interface {
	Render(inv *domain.Invoice) ([]byte, error)
}

// Service issues at most one immutable, VAT-broken-down invoice per order.
type Service struct {
	invoices domain.Repository
	orders   order.Repository
	buyers   buyer.Repository
	runner   txn.Runner
	idGen    IDGenerator
	renderer Renderer
	prefix   string
	vatRate  int64

	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

func NewService(
	invoices domain.Repository,
	orders order.Repository,
	buyers buyer.Repository,
	runner txn.Runner,
	idGen IDGenerator,
	renderer Renderer,
	prefix string,
	vatRate int64,
	tel observability.Observability,
) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	if prefix == "" {
		prefix = "INV"
	}
	if vatRate <= 0 {
		vatRate = domain.DefaultVATRate
	}
	return &Service{
		invoices:     invoices,
		orders:       orders,
		buyers:       buyers,
		runner:       runner,
		idGen:        idGen,
		renderer:     renderer,
		prefix:       prefix,
		vatRate:      vatRate,
		log:          tel.Logger().With(observability.F("service", serviceName)),
		tracer:       tel.Tracer(),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

// Generate issues the invoice for an order, failing with domain.ErrConflict
// when one already exists. The sequential number is drawn from the
// per-month counter inside the issuing unit.
func (s *Service) Generate(ctx context.Context, orderID string) (inv *domain.Invoice, err error) {
	logger := logctx.FromOr(ctx, s.log).With(
		observability.F("use_case", useCaseGenerate),
		observability.F("order_id", orderID),
	)

	ctx, span := s.tracer.Start(ctx, spanPrefix+"GenerateInvoice",
		attribute.String("use_case", useCaseGenerate),
		attribute.String("order.id", orderID),
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
			observability.L("use_case", useCaseGenerate),
			observability.L("outcome", outcome),
		)
		s.durHistogram.Observe(lat, observability.L("use_case", useCaseGenerate))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		if inv != nil {
			fields = append(fields, observability.F("invoice_number", inv.Number))
		}
		logger.Info("use_case_done", fields...)
	}()

	err = s.runner.Atomic(ctx, func(ctx context.Context) error {
		if _, lookupErr := s.invoices.GetByOrder(ctx, orderID); lookupErr == nil {
			return domain.ErrConflict
		}

		o, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return err
		}
		profile, err := s.buyers.Get(ctx, o.UserID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		seq, err := s.invoices.NextSequence(ctx, now.Format("200601"))
		if err != nil {
			return err
		}
		number := domain.Number(s.prefix, now, seq)

		entity := domain.Build(s.idGen.NewID(), number, o, profile, s.vatRate)
		if err := s.invoices.Insert(ctx, entity); err != nil {
			return err
		}
		inv = entity
		return nil
	})
	if err != nil {
		inv = nil
		outcome, statusText = "error", "GENERATE_UNIT_FAILED"
		return nil, err
	}
	return inv, nil
}

// Get loads one invoice, refusing access to other users' invoices for
// non-admin callers.
func (s *Service) Get(ctx context.Context, ident identity.Identity, invoiceID string) (*domain.Invoice, error) {
	inv, err := s.invoices.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.UserID != ident.UserID && !ident.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	return inv, nil
}

// Download renders the invoice as a PDF byte stream.
func (s *Service) Download(ctx context.Context, ident identity.Identity, invoiceID string) ([]byte, error) {
	inv, err := s.Get(ctx, ident, invoiceID)
	if err != nil {
		return nil, err
	}
	return s.renderer.Render(inv)
}
