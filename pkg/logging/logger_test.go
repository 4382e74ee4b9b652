package logging

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput records every entry written to it.
type captureOutput struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (c *captureOutput) Write(entry LogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
	return nil
}

func (c *captureOutput) Sync() error  { return nil }
func (c *captureOutput) Close() error { return nil }

func (c *captureOutput) all() []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]LogEntry(nil), c.entries...)
}

func newCaptureLogger(severity Severity) (*Logger, *captureOutput) {
	out := &captureOutput{}
	return NewLogger(Config{Severity: severity, Outputs: []Output{out}}), out
}

func TestLoggerSeverityFilter(t *testing.T) {
	logger, out := newCaptureLogger(WARN)

	ctx := context.Background()
	logger.Debug(ctx, "debug message")
	logger.Info(ctx, "info message")
	logger.Warn(ctx, "warn message")
	logger.Error(ctx, "error message")

	entries := out.all()
	require.Len(t, entries, 2)
	assert.Equal(t, WARN, entries[0].Severity)
	assert.Equal(t, ERROR, entries[1].Severity)
}

func TestLoggerFormatsMessage(t *testing.T) {
	logger, out := newCaptureLogger(DEBUG)

	logger.Info(context.Background(), "playbook updated to version %d", 7)

	entries := out.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "playbook updated to version 7", entries[0].Message)
	assert.Equal(t, "logger_test.go", entries[0].File)
}

func TestLoggerContextValues(t *testing.T) {
	logger, out := newCaptureLogger(DEBUG)

	ctx := WithExecutionID(context.Background(), "exec-9")
	ctx = WithAgentType(ctx, "researcher")
	ctx = WithStage(ctx, "curate")

	logger.Info(ctx, "stage reached")

	entries := out.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "exec-9", entries[0].ExecutionID)
	assert.Equal(t, "researcher", entries[0].AgentType)
	assert.Equal(t, "curate", entries[0].Stage)
}

func TestLoggerDefaultFields(t *testing.T) {
	out := &captureOutput{}
	logger := NewLogger(Config{
		Severity:      DEBUG,
		Outputs:       []Output{out},
		DefaultFields: map[string]interface{}{"service": "playbook"},
	})

	logger.Info(context.Background(), "hello")

	entries := out.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "playbook", entries[0].Fields["service"])
}

func TestGlobalLogger(t *testing.T) {
	previous := GetLogger()
	defer SetLogger(previous)

	logger, out := newCaptureLogger(DEBUG)
	SetLogger(logger)

	GetLogger().Info(context.Background(), "via global")

	entries := out.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "via global", entries[0].Message)
}

func TestContextAccessorsAbsent(t *testing.T) {
	ctx := context.Background()

	_, ok := GetExecutionID(ctx)
	assert.False(t, ok)
	_, ok = GetAgentType(ctx)
	assert.False(t, ok)
	_, ok = GetStage(ctx)
	assert.False(t, ok)
}

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, DEBUG, ParseSeverity("DEBUG"))
	assert.Equal(t, ERROR, ParseSeverity("ERROR"))
	assert.Equal(t, INFO, ParseSeverity("nonsense"))
	assert.Equal(t, "WARN", WARN.String())
}
