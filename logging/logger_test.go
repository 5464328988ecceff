package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level LogLevel, format string) (*RelayLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	cfg.Format = format
	cfg.Output = buf
	return NewLogger(cfg), buf
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   LogLevelDebug,
		"INFO":    LogLevelInfo,
		"":        LogLevelInfo,
		"warning": LogLevelWarn,
		"error":   LogLevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestRelayLogger_JSONAttributes(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo, "json")

	l.WithComponent("relay").WithInvocation("inv-1").WithContext("k", "v").Info("hello", "events", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "relay", rec["component"])
	assert.Equal(t, "inv-1", rec["invocation_id"])
	assert.Equal(t, "v", rec["k"])
	assert.Equal(t, float64(3), rec["events"])
}

func TestRelayLogger_LevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(LogLevelWarn, "text")

	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestRelayLogger_CloneIsolation(t *testing.T) {
	base, buf := newBufferLogger(LogLevelInfo, "json")
	_ = base.WithContext("leak", true)

	base.Info("base")
	assert.NotContains(t, buf.String(), "leak")
}

func TestRelayLogger_DomainHelpers(t *testing.T) {
	l, buf := newBufferLogger(LogLevelDebug, "text")

	LogToolCall(l, "computer", time.Millisecond, true, nil)
	LogLLMCall(l, "claude", 42, time.Second, false, errors.New("rate limited"))
	LogRun(l, 2, time.Second, nil)
	LogRun(l, 0, time.Second, errors.New("engine down"))
	LogPanic(l, "boom", "panic recovered")

	out := buf.String()
	assert.Contains(t, out, "Tool execution completed")
	assert.Contains(t, out, "LLM call failed")
	assert.Contains(t, out, "rate limited")
	assert.Contains(t, out, "Run completed")
	assert.Contains(t, out, "Run failed")
	assert.Contains(t, out, "stack_trace")
}

func TestRelayLogger_ConsoleFormat(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo, "console")
	l.Info("colored", "error", "bad")
	assert.True(t, strings.Contains(buf.String(), "colored"))
}

func TestComponent(t *testing.T) {
	assert.Equal(t, NoOpLogger{}, Component(nil, "x"))
	assert.Equal(t, NoOpLogger{}, Component(NoOpLogger{}, "x"))

	l, buf := newBufferLogger(LogLevelInfo, "json")
	Component(l, "server").Info("hi")
	assert.Contains(t, buf.String(), `"component":"server"`)

	buf.Reset()
	Invocation(l, "inv-9").Info("hi")
	assert.Contains(t, buf.String(), `"invocation_id":"inv-9"`)
	assert.Equal(t, NoOpLogger{}, Invocation(nil, "x"))
}
