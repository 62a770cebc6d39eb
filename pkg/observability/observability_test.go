package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSONCarriesContextIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: LogFormatJSON, Output: &buf, ServiceName: "mylife"})

	ctx := WithRequestID(WithCorrelationID(context.Background(), "corr-1"), "req-1")
	logger.InfoContext(ctx, "webhook processed", "event_id", "e1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "webhook processed", entry["msg"])
	assert.Equal(t, "e1", entry["event_id"])
	assert.Equal(t, "corr-1", entry[CorrelationIDKey])
	assert.Equal(t, "req-1", entry[RequestIDKey])
	assert.Equal(t, "mylife", entry["service"])
}

func TestNewLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: LogFormatText, Output: &buf})

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestContextIDs_GeneratedWhenEmpty(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "")
	assert.Len(t, CorrelationIDFromContext(ctx), 36)
	assert.Empty(t, RequestIDFromContext(ctx))
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "short", Redact("short"))
	assert.Equal(t, "abcdefgh…", Redact("abcdefghijklmnop"))
}

func TestInMemoryMetrics(t *testing.T) {
	m := NewInMemoryMetrics()
	m.Counter(MetricAccessJobs, 1, T("status", "alert"), T("action", "grant"))
	m.Counter(MetricAccessJobs, 2, T("action", "grant"), T("status", "alert"))
	m.Timing(MetricWebhookLatency, 5*time.Millisecond)

	assert.Equal(t, int64(3), m.GetCounter(MetricAccessJobs, T("status", "alert"), T("action", "grant")))
	assert.Equal(t, map[string]int64{"mylife.access.jobs{action=grant,status=alert}": 3}, m.Snapshot())

	var noop Metrics = NoopMetrics{}
	noop.Counter(MetricAccessSweeps, 1)
}
