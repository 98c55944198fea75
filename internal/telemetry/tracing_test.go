package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracerProviderDisabled(t *testing.T) {
	shutdown, err := InitTracerProvider(context.Background(), Config{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitTracerProviderRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	shutdown, err := InitTracerProvider(context.Background(),
		Config{Enabled: true, ServiceName: "redirector-test"},
		sdktrace.WithSpanProcessor(recorder),
	)
	require.NoError(t, err)

	_, span := otel.Tracer("telemetry-test").Start(context.Background(), "redirect.Resolve")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, "redirect.Resolve", ended[0].Name())
	require.Equal(t, "redirector-test", serviceName(ended[0]))
	require.NoError(t, shutdown(context.Background()))
}

func serviceName(span sdktrace.ReadOnlySpan) string {
	for _, kv := range span.Resource().Attributes() {
		if kv.Key == "service.name" {
			return kv.Value.AsString()
		}
	}
	return ""
}
