package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// otelScope names the logger handed to the OTel bridge.
const otelScope = "racer"

// stdout carries host replies, so console logging falls back to stderr.
var osStderr io.Writer = os.Stderr

// SlogManager owns the process logger: a console or file text handler, an
// optional OTel bridge and any extra handlers, all enriched with the
// attributes of the race session.
type SlogManager struct {
	logger      *slog.Logger
	logProvider *sdklog.LoggerProvider
	context     ContextProvider
}

// ManagerOption configures a SlogManager.
type ManagerOption func(*SlogManager)

// WithContextProvider injects the given attributes into every record.
func WithContextProvider(p ContextProvider) ManagerOption {
	return func(m *SlogManager) {
		m.context = p
	}
}

// NewSlogManager creates a manager. Logger returns slog.Default until Setup.
func NewSlogManager(opts ...ManagerOption) *SlogManager {
	m := &SlogManager{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG", "TRACE":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// handlerOptions returns the shared options: level filter and RFC3339 UTC time.
func handlerOptions(level string) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: parseLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key != slog.TimeKey || len(groups) > 0 {
				return a
			}
			if t, ok := a.Value.Any().(time.Time); ok {
				a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
			}
			return a
		},
	}
}

// Setup (re)builds the logger. Records go to w, or to stderr when w is nil.
// A non-nil provider adds the OTel bridge. Extra handlers, such as the GELF
// handler, receive every record too.
func (m *SlogManager) Setup(w io.Writer, level string, provider *sdklog.LoggerProvider, extra ...slog.Handler) {
	if w == nil {
		w = osStderr
	}
	m.logProvider = provider

	handlers := []slog.Handler{slog.NewTextHandler(w, handlerOptions(level))}
	if provider != nil {
		handlers = append(handlers, otelslog.NewHandler(otelScope, otelslog.WithLoggerProvider(provider)))
	}
	handlers = append(handlers, extra...)

	var handler slog.Handler = NewMultiHandler(handlers...)
	if m.context != nil {
		handler = NewContextHandler(handler, m.context)
	}

	m.logger = slog.New(handler)
	m.logger.Info("Logging initialized", "level", level)
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}

// WriteLog records a message sent by the host, tagged with its source, at
// the level the host names. Unknown levels log at info.
func (m *SlogManager) WriteLog(source, message, level string) {
	if m.logger == nil {
		return
	}
	m.logger.Log(context.Background(), parseLevel(level), message, "source", source)
}
