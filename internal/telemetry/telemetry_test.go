package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestInitWithoutProjectKeepsSpansLocal(t *testing.T) {
	ctx := context.Background()
	tp, err := Init(ctx, Config{ServiceName: "catalog-scraper", Version: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	spanCtx, span := Tracer().Start(ctx, "probe")
	require.True(t, span.SpanContext().IsValid())
	span.End()

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(spanCtx, carrier)
	require.NotEmpty(t, carrier.Get("traceparent"))
}
