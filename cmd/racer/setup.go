package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/poppop/racer/internal/config"
	"github.com/poppop/racer/internal/logging"
	intOtel "github.com/poppop/racer/internal/otel"
)

// setupLogging opens the session log file and builds the slog pipeline:
// file (stderr when the file cannot be opened), optional OTel bridge and
// optional Graylog. Stdout is left alone so host mode can reply on it.
func setupLogging() {
	level := viper.GetString("logLevel")

	SlogManager = logging.NewSlogManager(logging.WithContextProvider(raceSession.LogAttrs))
	SlogManager.Setup(os.Stderr, level, nil)
	Logger = SlogManager.Logger()

	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		Logger.Error("Failed to create logs directory", "error", err, "path", logsDir)
	}

	LogFilePath = logging.LogFilePath(logsDir, AppName, SessionStartTime)
	if _, err := os.Stat(LogFilePath); err == nil {
		os.Rename(LogFilePath, LogFilePath+".old")
	}

	var err error
	LogFile, err = os.OpenFile(LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", LogFilePath)
		LogFile = nil
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			BatchTimeout:   otelCfg.BatchTimeout,
			MetricInterval: otelCfg.MetricInterval,
			LogWriter:      logWriter(),
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			Logger.Info("OTel provider initialized", "file", LogFilePath, "endpoint", otelCfg.Endpoint)
		}
	}

	var extra []slog.Handler
	if viper.GetBool("graylog.enabled") {
		address := viper.GetString("graylog.address")
		gelfWriter, err = logging.NewGelfWriter(address)
		if err != nil {
			Logger.Error("Failed to connect to Graylog", "error", err)
		} else {
			extra = append(extra, logging.NewGelfHandler(gelfWriter, level))
			Logger.Info("Graylog output enabled", "address", address)
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	SlogManager.Setup(logWriter(), level, otelLogProvider, extra...)
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", LogFilePath, "version", CurrentVersion)
}

// logWriter returns the session log file, or stderr when it is not open.
func logWriter() io.Writer {
	if LogFile != nil {
		return LogFile
	}
	return os.Stderr
}
