package config

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/stopwatch/pkg/logging"
	"github.com/psantana5/stopwatch/pkg/sink"
	"github.com/psantana5/stopwatch/pkg/stopwatch"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
log_level: debug
log_json: true
sinks:
  - type: console
    enabled: "true"
  - type: file
    name: timings
    path: `+filepath.Join(dir, "timings.log")+`
    max_size_bytes: 1024
    enabled: false
  - type: prometheus
    namespace: zoom
    buckets: [0.001, 0.01, 0.1]
    rate_per_second: 5
    burst: 2
  - type: sql
    driver: sqlite3
    dsn: `+filepath.Join(dir, "timings.db")+`
    timeout: 2s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LogJSON)
	require.Len(t, cfg.Sinks, 4)
	assert.Equal(t, "true", cfg.Sinks[0].Enabled)
	assert.Equal(t, "false", cfg.Sinks[1].Enabled, "unquoted false must stay \"false\"")
	assert.Equal(t, "timings", cfg.Sinks[1].DisplayName())
	assert.Equal(t, int64(1024), cfg.Sinks[1].MaxSizeBytes)
	assert.Equal(t, []float64{0.001, 0.01, 0.1}, cfg.Sinks[2].Buckets)
	assert.Equal(t, 5.0, cfg.Sinks[2].RatePerSecond)
	assert.Equal(t, 2*time.Second, cfg.Sinks[3].Timeout)
}

func TestLoadDefaultsToConsole(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log_level: warn\n"))
	require.NoError(t, err)

	require.Len(t, cfg.Sinks, 1)
	assert.Equal(t, SinkConsole, cfg.Sinks[0].Type)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("ZOOM_LOG_LEVEL", "error")

	cfg, err := Load(writeConfig(t, "log_level: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		sink    SinkConfig
		wantErr string
	}{
		{"console ok", SinkConfig{Type: SinkConsole}, ""},
		{"file without path", SinkConfig{Type: SinkFile}, "path is required"},
		{"otlp without endpoint", SinkConfig{Type: SinkOTLP}, "endpoint is required"},
		{"sql without dsn", SinkConfig{Type: SinkSQL, Driver: "sqlite3"}, "driver and dsn are required"},
		{"unknown", SinkConfig{Type: "kafka"}, `unknown type "kafka"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Config{Sinks: []SinkConfig{tt.sink}}).Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "timings.log")
	cfg := &Config{Sinks: []SinkConfig{
		{Type: SinkFile, Name: "on", Path: filePath},
		{Type: SinkFile, Name: "off", Path: filepath.Join(dir, "off.log"), Enabled: "false"},
		{Type: SinkPrometheus, Namespace: "zoom", RatePerSecond: 100, Burst: 10},
		{Type: SinkSQL, Driver: sink.DriverSQLite, DSN: filepath.Join(dir, "timings.db")},
	}}

	var logs bytes.Buffer
	logger := logging.NewLogger(logging.DEBUG, false)
	logger.SetOutput(&logs)

	d, err := Build(context.Background(), cfg, logger, prometheus.NewRegistry())
	require.NoError(t, err)

	sinks := d.Sinks()
	require.Len(t, sinks, 4)
	assert.True(t, sinks[0].IsEnabled())
	assert.False(t, sinks[1].IsEnabled())
	assert.IsType(t, &sink.Throttled{}, sinks[2])
	assert.IsType(t, &sink.SQL{}, sinks[3])

	sw := stopwatch.New("db-query", "")
	require.NoError(t, d.Record(sw.Stop()))
	require.NoError(t, d.Shutdown())

	data, err := os.ReadFile(filePath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "db-query: "))

	_, err = os.Stat(filepath.Join(dir, "off.log"))
	require.NoError(t, err, "disabled sinks are still built")
	off, err := os.ReadFile(filepath.Join(dir, "off.log"))
	require.NoError(t, err)
	assert.Empty(t, off)

	assert.Contains(t, logs.String(), "Sink configured")
}

func TestBuildFailureShutsDownBuiltSinks(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{Sinks: []SinkConfig{
		{Type: SinkFile, Path: filepath.Join(dir, "ok.log")},
		{Type: SinkSQL, Driver: "mysql", DSN: "x"},
	}}

	_, err := Build(context.Background(), cfg, nil, prometheus.NewRegistry())
	assert.ErrorContains(t, err, "sink 1 (sql)")
}

func TestYAMLRoundTrip(t *testing.T) {
	cfg := &Config{LogLevel: "info", Sinks: []SinkConfig{{Type: SinkFile, Path: "/tmp/t.log", Enabled: "false"}}}
	data, err := cfg.YAML()
	require.NoError(t, err)

	loaded, err := Load(writeConfig(t, string(data)))
	require.NoError(t, err)
	assert.Equal(t, cfg.Sinks[0].Path, loaded.Sinks[0].Path)
	assert.Equal(t, "false", loaded.Sinks[0].Enabled)
}

type failingShutdown struct{ err error }

func (f failingShutdown) Shutdown() error { return f.err }

func TestAbandonKeepsCleanupError(t *testing.T) {
	buildErr := errors.New("sink 1 (sql): unsupported sql driver")
	cleanupErr := errors.New("file: close failed")

	err := abandon(failingShutdown{err: cleanupErr}, buildErr)
	assert.ErrorIs(t, err, buildErr)
	assert.ErrorIs(t, err, cleanupErr)
	assert.ErrorContains(t, err, "cleanup: file: close failed")

	assert.Same(t, buildErr, abandon(failingShutdown{}, buildErr))
}

func TestBuildRejectsDuplicatePrometheusNamespace(t *testing.T) {
	cfg := &Config{Sinks: []SinkConfig{
		{Type: SinkPrometheus, Namespace: "zoom"},
		{Type: SinkPrometheus, Name: "again", Namespace: "zoom"},
	}}

	reg := prometheus.NewRegistry()
	_, err := Build(context.Background(), cfg, nil, reg)
	assert.ErrorContains(t, err, "sink 1 (again)")

	// the first sink was shut down, so its collectors are gone
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}
