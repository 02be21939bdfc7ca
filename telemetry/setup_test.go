package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupInstallsRecordingProviders(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := context.Background()
	shutdown := Setup(ctx, "telemetry-test", logger)

	metrics, err := NewStageMetrics()
	require.NoError(t, err)
	metrics.RecordHandled(ctx, "telemetry-test", "acme")
	metrics.RecordPublished(ctx, "telemetry-test", "acme", 3)

	_, span := Tracer().Start(ctx, "stage.handle")
	span.End()

	// Shutdown flushes the batch processor and the periodic reader.
	require.NoError(t, shutdown(ctx))

	out := buf.String()
	assert.Contains(t, out, "span completed")
	assert.Contains(t, out, "stage.handle")
	assert.Contains(t, out, "metric snapshot")
	assert.Contains(t, out, "pipeline.events.consumed")
	assert.Contains(t, out, "pipeline.events.published")
}
