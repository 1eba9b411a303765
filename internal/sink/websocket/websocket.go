package websocket

import (
	"log/slog"
	"time"

	"github.com/poppop/racer/internal/config"
	"github.com/poppop/racer/pkg/core"
	"github.com/poppop/racer/pkg/streaming"
)

// Backend streams race events to a live viewer over WebSocket. Snapshots
// are fire-and-forget; race start and finish wait for a server ack.
type Backend struct {
	conn       *connection
	cfg        config.WebSocketConfig
	ackTimeout time.Duration
}

// New creates a new WebSocket sink.
func New(cfg config.WebSocketConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn:       newConnection(logger.With("sink", "websocket")),
		cfg:        cfg,
		ackTimeout: ackTimeout,
	}
}

func (b *Backend) Name() string { return "websocket" }

// Init connects to the stream endpoint.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the stream endpoint.
func (b *Backend) Close() error {
	return b.conn.close()
}

// StartRace announces the race and waits for the server ack. The message is
// kept so a reconnect can replay it.
func (b *Backend) StartRace(info *core.RaceInfo) error {
	data, err := streaming.Encode(streaming.TypeRaceStarted, streaming.RaceStartedPayload{Race: info})
	if err != nil {
		return err
	}
	b.conn.remember(data)
	return b.conn.sendAndWait(data, streaming.TypeRaceStarted, b.ackTimeout)
}

// RecordSnapshot pushes a snapshot without waiting. The newest one is
// replayed after a reconnect.
func (b *Backend) RecordSnapshot(s *core.Snapshot) error {
	data, err := streaming.Encode(streaming.TypeSnapshot, streaming.SnapshotPayload{Snapshot: s})
	if err != nil {
		return err
	}
	b.conn.track(data)
	b.conn.send(data)
	return nil
}

// EndRace sends the result and waits for the server ack.
func (b *Backend) EndRace(r *core.RaceResult) error {
	data, err := streaming.Encode(streaming.TypeRaceFinished, streaming.RaceFinishedPayload{Result: r})
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(data, streaming.TypeRaceFinished, b.ackTimeout)

	b.conn.remember(nil)
	return err
}

// ResetRace tells the viewer to clear the race.
func (b *Backend) ResetRace() error {
	b.conn.remember(nil)
	data, err := streaming.Encode(streaming.TypeRaceReset, streaming.RaceResetPayload{})
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}
