package oteltrace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bloomwire/ordercore/internal/observability"
)

type tracer struct{ t trace.Tracer }

// New wraps the globally registered OTel tracer behind the observability
// port. Exporter/provider setup is the deployment's concern; without one the
// spans are no-ops.
func New(name string) observability.Tracer {
	if name == "" {
		name = "ordercore"
	}
	return &tracer{t: otel.Tracer(name)}
}

func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.t.Start(ctx, name, trace.WithAttributes(attrs...))
}
