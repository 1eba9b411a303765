package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poppop/racer/internal/dispatcher"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "failed to parse log output")
	return entry
}

func TestDispatcherLogger_Debug(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))

	dl.Debug("handling event", "command", ":RACE:TICK:", "args", 1)

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "handling event", entry["message"])
	assert.Equal(t, ":RACE:TICK:", entry["command"])
	assert.Equal(t, float64(1), entry["args"])
}

func TestDispatcherLogger_Info(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf))

	dl.Info("sink ready", "sink", "memory")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "sink ready", entry["message"])
	assert.Equal(t, "memory", entry["sink"])
}

func TestDispatcherLogger_Error(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf).Level(zerolog.ErrorLevel))

	dl.Debug("filtered")
	dl.Error("event failed", "command", ":SINK:FINISHED:", "code", 500)

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "event failed", entry["message"])
	assert.Equal(t, float64(500), entry["code"])
	assert.NotContains(t, buf.String(), "filtered")
}

func TestDispatcherLogger_ErrorAndDuration(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf))

	dl.Error("buffered handler failed", "error", errors.New("sink offline"), "duration", 1500*time.Millisecond)

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "sink offline", entry["error"])
	assert.Equal(t, float64(1500), entry["duration"])
}

func TestDispatcherLogger_OddKeyValues(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf))

	dl.Info("partial", "key", "value", 7, "ignored", "dangling")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "value", entry["key"])
	assert.NotContains(t, entry, "ignored")
	assert.NotContains(t, entry, "dangling")
}

func TestDispatcherLogger_ImplementsInterface(t *testing.T) {
	var _ dispatcher.Logger = NewDispatcherLogger(zerolog.Nop())
}

func TestNewZerolog_AddsContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerolog(&buf, "debug", func() []slog.Attr {
		return []slog.Attr{slog.String("raceId", "race-7")}
	})

	logger.Debug().Msg("tick")

	out := buf.String()
	assert.Contains(t, out, "tick")
	assert.Contains(t, out, "raceId=race-7")
}

func TestNewZerolog_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerolog(&buf, "warn", nil)

	logger.Info().Msg("quiet")
	logger.Warn().Msg("loud")

	assert.False(t, strings.Contains(buf.String(), "quiet"))
	assert.Contains(t, buf.String(), "loud")
}

func TestParseZerologLevel(t *testing.T) {
	assert.Equal(t, zerolog.TraceLevel, ParseZerologLevel("trace"))
	assert.Equal(t, zerolog.DebugLevel, ParseZerologLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseZerologLevel("warn"))
	assert.Equal(t, zerolog.ErrorLevel, ParseZerologLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseZerologLevel("bogus"))
}
