package worker

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	appinvoice "github.com/bloomwire/ordercore/internal/application/invoice"
	dominvoice "github.com/bloomwire/ordercore/internal/domain/invoice"
	domorder "github.com/bloomwire/ordercore/internal/domain/order"
	domoutbox "github.com/bloomwire/ordercore/internal/domain/outbox"
	"github.com/bloomwire/ordercore/internal/observability"
	"github.com/bloomwire/ordercore/internal/observability/logctx"
)

const (
	workerService = "invoice-worker"
	spanPrefix    = "UC."
	useCase       = "invoice.worker.order_approved"
)

// Worker issues invoices for approved orders. Generation is deliberately
// best-effort: a failure is logged and the event is dropped, never blocking
// or reverting the approval itself.
type Worker struct {
	subscriber domoutbox.Subscriber
	invoices   *appinvoice.Service
	tel        observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

func New(subscriber domoutbox.Subscriber, invoices *appinvoice.Service, tel observability.Observability) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Worker{
		subscriber:   subscriber,
		invoices:     invoices,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", workerService)),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.invoices == nil {
		return
	}
	w.subscriber.Subscribe(domorder.OrderApprovedEvent{}.EventName(), w.handleOrderApproved)
}

func (w *Worker) handleOrderApproved(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domorder.OrderApprovedEvent)
	if !ok {
		w.reqCounter.Add(1, observability.L("use_case", useCase), observability.L("outcome", "ignored"))
		return nil
	}

	ctx, span := w.tel.Tracer().Start(ctx, spanPrefix+"OrderApproved",
		attribute.String("use_case", useCase),
		attribute.String("order.id", evt.OrderID),
	)
	start := time.Now()
	outcome, status := "success", "OK"

	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("use_case", useCase),
		observability.F("order_id", evt.OrderID),
	)
	ctx = logctx.With(ctx, logger)

	defer func() {
		lat := time.Since(start).Seconds()
		w.reqCounter.Add(1, observability.L("use_case", useCase), observability.L("outcome", outcome))
		w.durHistogram.Observe(lat, observability.L("use_case", useCase))

		if outcome == "error" {
			span.SetStatus(codes.Error, status)
		} else {
			span.SetStatus(codes.Ok, status)
		}
		span.End()

		logger.Info("use_case_done",
			observability.F("outcome", outcome),
			observability.F("status", status),
			observability.F("latency_seconds", lat),
		)
	}()

	_, err := w.invoices.Generate(ctx, evt.OrderID)
	switch {
	case err == nil:
	case errors.Is(err, dominvoice.ErrConflict):
		// Redelivered event; the invoice is already there.
		status = "ALREADY_ISSUED"
	default:
		// Best-effort by policy: swallow after logging.
		outcome, status = "error", "GENERATE_FAILED"
		logger.Error("invoice_generation_failed", observability.F("error", err.Error()))
	}
	return nil
}
