package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rosshiga/Catapult-VUSION-Driver/internal/infrastructure/telemetry"
)

func disabledConfig(ratio float64) telemetry.Config {
	return telemetry.Config{
		Enabled:           false,
		CollectorEndpoint: "localhost:4317",
		SamplingRatio:     ratio,
		ServiceName:       "vusion-esl-driver-test",
	}
}

func TestNewTracerProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	cfg := disabledConfig(1.0)

	tp, err := telemetry.NewTracerProvider(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, tp)

	assert.False(t, tp.IsEnabled())
	assert.Equal(t, cfg, tp.GetConfig())
	assert.NoError(t, tp.ForceFlush(ctx))
	assert.NoError(t, tp.Shutdown(ctx))
}

func TestNewTracerProvider_DisabledForAnySamplingRatio(t *testing.T) {
	for _, ratio := range []float64{0, 0.25, 1} {
		tp, err := telemetry.NewTracerProvider(context.Background(), disabledConfig(ratio), zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.False(t, tp.IsEnabled())
	}
}

func TestTracerProvider_TracerWhenDisabled(t *testing.T) {
	tp, err := telemetry.NewTracerProvider(context.Background(), disabledConfig(1.0), zaptest.NewLogger(t))
	require.NoError(t, err)

	tracer := tp.Tracer(telemetry.TracerName)
	require.NotNil(t, tracer)

	_, span := tracer.Start(context.Background(), "noop")
	span.End()
}

func TestTracerProvider_ShutdownWithCancelledContext(t *testing.T) {
	tp, err := telemetry.NewTracerProvider(context.Background(), disabledConfig(1.0), zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, tp.Shutdown(ctx))
}

func TestNewTracerProvider_Enabled(t *testing.T) {
	// needs a collector listening on localhost:4317
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := disabledConfig(1.0)
	cfg.Enabled = true
	cfg.Insecure = true

	tp, err := telemetry.NewTracerProvider(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, tp.IsEnabled())

	_, span := tp.Tracer("test").Start(context.Background(), "span")
	span.End()

	_ = tp.ForceFlush(context.Background())
	assert.NoError(t, tp.Shutdown(context.Background()))
}
