package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"dynq/internal/telemetry"
)

func TestInitTracerWithoutEndpointInstallsPropagator(t *testing.T) {
	shutdown, err := telemetry.InitTracer(context.Background(), "dynq-test", "")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	defer shutdown()

	fields := otel.GetTextMapPropagator().Fields()
	assert.Contains(t, fields, "traceparent")
	assert.Contains(t, fields, "baggage")
}
