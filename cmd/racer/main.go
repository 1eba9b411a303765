package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/poppop/racer/internal/config"
	"github.com/poppop/racer/internal/dispatcher"
	"github.com/poppop/racer/internal/handlers"
	"github.com/poppop/racer/internal/logging"
	"github.com/poppop/racer/internal/monitor"
	intOtel "github.com/poppop/racer/internal/otel"
	"github.com/poppop/racer/internal/race"
	"github.com/poppop/racer/internal/session"
	"github.com/poppop/racer/internal/sink"
	"github.com/poppop/racer/internal/sink/memory"
	"github.com/poppop/racer/pkg/core"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.1.0"
	BuildDate      string = "unknown"

	AppName string = "racer"
)

// global variables
var (
	LogFilePath string
	LogFile     *os.File

	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	gelfWriter *gelf.Writer

	SessionStartTime time.Time = time.Now()

	// Services
	raceSession     = session.NewContext()
	handlerService  *handlers.Service
	monitorService  *monitor.Service
	eventDispatcher *dispatcher.Dispatcher
	sinkFanout      *sink.Fanout
)

const usage = `Usage: racer [flags] [run|host]

Commands:
  run    simulate a race in real time and print the winner (default)
  host   read race commands from stdin, one per line, and reply on stdout

Flags:
`

func main() {
	flags := pflag.NewFlagSet(AppName, pflag.ContinueOnError)
	configDir := flags.String("config", ".", "directory containing "+config.ConfigFileName)
	flags.Int64("seed", 0, "luck seed, 0 picks one from the clock")
	flags.Bool("view", false, "draw the race in the terminal")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.Float64("rate", 60, "ticks per second in run mode")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	mode := "run"
	if flags.NArg() > 0 {
		mode = flags.Arg(0)
	}
	if mode != "run" && mode != "host" {
		flags.Usage()
		os.Exit(2)
	}

	configErr := config.Load(*configDir)
	bindFlags(flags)

	setupLogging()
	if configErr != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", configErr)
	} else {
		Logger.Info("Loaded config", "dir", *configDir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := startServices(); err != nil {
		Logger.Error("Failed to start services", "error", err)
		shutdown()
		os.Exit(1)
	}

	var err error
	switch mode {
	case "host":
		err = hostRace(ctx)
	default:
		err = runRace(ctx, viper.GetBool("view"))
	}

	shutdown()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bindFlags lets flags that were set on the command line override config.
func bindFlags(flags *pflag.FlagSet) {
	binds := map[string]string{
		"race.seed":     "seed",
		"race.tickRate": "rate",
		"logLevel":      "log-level",
		"view":          "view",
	}
	for key, name := range binds {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "failed to bind flag %s: %v\n", name, err)
		}
	}
}

func startServices() error {
	var err error

	eventDispatcher, err = dispatcher.New(logging.NewDispatcherLogger(
		logging.NewZerolog(logWriter(), viper.GetString("logLevel"), raceSession.LogAttrs),
	))
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	var memorySink *memory.Backend
	sinkFanout, memorySink = createSinks(config.GetSinkConfig())

	competitors, err := config.GetCompetitors()
	if err != nil {
		Logger.Warn("Invalid competitors in config, using defaults", "error", err)
	}

	raceCfg := config.GetRaceConfig()
	handlerService, err = handlers.NewService(handlers.Dependencies{
		Logger:      Logger,
		Session:     raceSession,
		Sink:        sinkFanout,
		Rand:        race.NewSeededRand(raceCfg.Seed),
		Competitors: competitors,
		Version:     CurrentVersion,
		BuildDate:   BuildDate,
		HostLog:     SlogManager.WriteLog,
	})
	if err != nil {
		return fmt.Errorf("creating race service: %w", err)
	}
	handlerService.RegisterHandlers(eventDispatcher)
	Logger.Debug("Race handlers registered", "seed", raceCfg.Seed, "tickRate", raceCfg.TickRate)

	statusCfg := config.GetStatusConfig()
	if statusCfg.Enabled {
		monitorService = monitor.NewService(monitor.Dependencies{
			Logger:  Logger,
			Memory:  memorySink,
			Session: raceSession,
			Pending: func() int {
				return eventDispatcher.Pending(handlers.SinkEventCommand)
			},
			Path:     statusCfg.Path,
			Interval: statusCfg.Interval,
		})
		if err := monitorService.Start(); err != nil {
			Logger.Error("Failed to start status monitor", "error", err, "path", statusCfg.Path)
		}
	}

	return nil
}

// shutdown stops the services in dependency order: pending sink events are
// delivered before the sinks close.
func shutdown() {
	if monitorService != nil {
		monitorService.Stop()
	}
	if handlerService != nil && handlerService.Status() == core.StatusRunning {
		handlerService.Abort()
	}
	if eventDispatcher != nil {
		eventDispatcher.Close()
	}
	if sinkFanout != nil {
		if err := sinkFanout.Close(); err != nil {
			Logger.Error("Failed to close sinks", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to shut down telemetry: %v\n", err)
		}
	}
	if gelfWriter != nil {
		gelfWriter.Close()
	}
	if LogFile != nil {
		LogFile.Close()
	}
}
