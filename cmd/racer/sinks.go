package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/poppop/racer/internal/config"
	"github.com/poppop/racer/internal/logging"
	"github.com/poppop/racer/internal/sink"
	influxsink "github.com/poppop/racer/internal/sink/influx"
	"github.com/poppop/racer/internal/sink/memory"
	wssink "github.com/poppop/racer/internal/sink/websocket"
)

// createSinks builds and initializes every enabled sink. A sink that fails to
// initialize is logged and left out. The memory sink is also returned for the
// status monitor; it is nil when disabled.
func createSinks(cfg config.SinkConfig) (*sink.Fanout, *memory.Backend) {
	var (
		backends []sink.Backend
		mem      *memory.Backend
	)

	if cfg.Memory.Enabled {
		mem = memory.New(cfg.Memory)
		backends = append(backends, mem)
	}

	if cfg.WebSocket.Enabled {
		backends = append(backends, wssink.New(cfg.WebSocket, Logger))
	}

	if cfg.Influx.Enabled {
		backupPath := filepath.Join(
			viper.GetString("logsDir"),
			fmt.Sprintf("%s_influx_%s.log.gz", AppName, SessionStartTime.Format("20060102_150405")),
		)
		zlog := logging.NewZerolog(logWriter(), viper.GetString("logLevel"), raceSession.LogAttrs)
		backends = append(backends, influxsink.New(cfg.Influx, zlog, backupPath))
	}

	ready := make([]sink.Backend, 0, len(backends))
	for _, b := range backends {
		if err := b.Init(); err != nil {
			Logger.Error("Failed to initialize sink", "sink", b.Name(), "error", err)
			continue
		}
		Logger.Info("Sink initialized", "sink", b.Name())
		ready = append(ready, b)
	}

	return sink.NewFanout(ready...), mem
}
