package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poppop/racer/internal/config"
	"github.com/poppop/racer/internal/sink"
	influxsink "github.com/poppop/racer/internal/sink/influx"
	"github.com/poppop/racer/internal/sink/memory"
)

func setupTestGlobals(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	config.LoadDefaults()
	viper.Set("logsDir", t.TempDir())
	Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCreateSinks_MemoryOnly(t *testing.T) {
	setupTestGlobals(t)

	fanout, mem := createSinks(config.GetSinkConfig())
	require.NotNil(t, mem)
	require.Len(t, fanout.Backends(), 1)

	got, ok := sink.Find[*memory.Backend](fanout.Backends())
	require.True(t, ok)
	assert.Same(t, mem, got)
}

func TestCreateSinks_AllDisabled(t *testing.T) {
	setupTestGlobals(t)
	viper.Set("sinks.memory.enabled", false)

	fanout, mem := createSinks(config.GetSinkConfig())
	assert.Nil(t, mem)
	assert.Empty(t, fanout.Backends())
}

func TestCreateSinks_UnreachableInfluxUsesBackup(t *testing.T) {
	setupTestGlobals(t)
	viper.Set("influx.enabled", true)
	viper.Set("influx.host", "127.0.0.1")
	viper.Set("influx.port", "1")

	fanout, _ := createSinks(config.GetSinkConfig())
	defer fanout.Close()

	b, ok := sink.Find[*influxsink.Backend](fanout.Backends())
	require.True(t, ok)
	assert.False(t, b.Valid())

	matches, err := filepath.Glob(filepath.Join(viper.GetString("logsDir"), AppName+"_influx_*.log.gz"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	_, err = os.Stat(matches[0])
	assert.NoError(t, err)
}

func TestCreateSinks_WebSocketInitFailureIsSkipped(t *testing.T) {
	setupTestGlobals(t)
	viper.Set("sinks.websocket.enabled", true)
	viper.Set("sinks.websocket.url", "ws://127.0.0.1:1/live")

	fanout, mem := createSinks(config.GetSinkConfig())
	defer fanout.Close()

	assert.NotNil(t, mem)
	assert.Len(t, fanout.Backends(), 1)
}
