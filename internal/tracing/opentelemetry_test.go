package tracing

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTracingConfig(t *testing.T) {
	cfg := DefaultTracingConfig()

	assert.Equal(t, "tgarchive", cfg.ServiceName)
	assert.False(t, cfg.Enabled)
	assert.True(t, cfg.UseStdout)
	assert.Equal(t, 0.1, cfg.SampleRate)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("TGARCHIVE_TRACING_ENABLED", "true")
	t.Setenv("TGARCHIVE_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("TGARCHIVE_ENV", "production")
	t.Setenv("TGARCHIVE_TRACING_SAMPLE_RATE", "0.5")

	cfg := ConfigFromEnv()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "collector:4318", cfg.OTLPEndpoint)
	assert.False(t, cfg.UseStdout, "an explicit OTLP endpoint disables the stdout exporter")
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 0.5, cfg.SampleRate)
}

func TestConfigFromEnvIgnoresInvalidSampleRate(t *testing.T) {
	t.Setenv("TGARCHIVE_TRACING_SAMPLE_RATE", "2.5")

	cfg := ConfigFromEnv()
	assert.Equal(t, 0.1, cfg.SampleRate)
}

func TestInitializeDisabled(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	manager := NewTracingManager(TracingConfig{Enabled: false}, logger)
	require.NoError(t, manager.Initialize(context.Background()))
	require.NoError(t, manager.Shutdown(context.Background()))
}

func TestStartSpanWithoutProvider(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test.operation")
	require.NotNil(t, span)
	span.End()

	// RecordError on a non-recording span is a no-op
	RecordError(ctx, assert.AnError)
}
