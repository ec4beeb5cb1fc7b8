package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")

	logger.Info("dropped")
	logger.Warn("kept", "key", "value")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "value", line["key"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "debug", "TEXT")

	logger.Debug("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

type logSettings struct{ level, format string }

func (s logSettings) LogLevelName() string  { return s.level }
func (s logSettings) LogFormatName() string { return s.format }

func TestNewLoggerTo_WritesToGivenWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, logSettings{level: "error", format: "text"})

	logger.Warn("dropped")
	logger.Error("kept", "phase", "load")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "msg=kept")
	assert.Contains(t, out, "phase=load")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func TestMetrics_RegisterOnFreshRegistry(t *testing.T) {
	m := NewUnregisteredMetrics()
	reg := prometheus.NewRegistry()
	for _, c := range m.collectors() {
		require.NoError(t, reg.Register(c))
	}

	m.CacheLookups.WithLabelValues("hit").Inc()
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")), 0)
	assert.Len(t, m.collectors(), 19)
}
