package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Format: "json", Output: &buf, Component: "engine"})

	l.Debug("hidden")
	l.Info("plugin added", "id", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "plugin added", rec["msg"])
	assert.Equal(t, "engine", rec["component"])
	assert.EqualValues(t, 3, rec["id"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"WARN":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNopAndWith(t *testing.T) {
	l := Nop()
	l.Error("nothing happens")

	var buf bytes.Buffer
	child := With(New(Config{Format: "text", Output: &buf}), "slot", 1)
	child.Warn("slow apply")
	assert.Contains(t, buf.String(), "slot=1")
}

func TestConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Format: "console", Output: &buf, Component: "cli"})

	l.Info("hidden")
	With(l, "slot", 1).Warn("slow apply", "ms", 320)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "slow apply")
	assert.Contains(t, out, "slot=1")
	assert.Contains(t, out, "ms=320")
	assert.Contains(t, out, "component=cli")
}
