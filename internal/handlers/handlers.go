package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/poppop/racer/internal/dispatcher"
	"github.com/poppop/racer/internal/race"
	"github.com/poppop/racer/internal/session"
	"github.com/poppop/racer/internal/sink"
	"github.com/poppop/racer/pkg/core"
)

const instrumentationName = "github.com/poppop/racer/internal/handlers"

// DefaultSnapshotBacklog is the number of queued sink events above which
// snapshot events are skipped.
const DefaultSnapshotBacklog = 256

// Dependencies holds all dependencies needed by the race service.
type Dependencies struct {
	Logger      *slog.Logger
	Session     *session.Context
	Sink        sink.Backend
	Rand        race.RandSource
	Competitors [2]core.CompetitorAttributes
	Version     string
	BuildDate   string

	// SnapshotBacklog overrides DefaultSnapshotBacklog when positive.
	SnapshotBacklog int

	// HostLog records messages sent with :LOG:. The command is not
	// registered when nil.
	HostLog func(source, message, level string)
}

// Service owns the race controller. Every controller call is serialised, and
// race events are handed to the sink queue in the order they are emitted.
type Service struct {
	deps Dependencies
	log  *slog.Logger

	mu   sync.Mutex
	ctrl *race.Controller
	d    *dispatcher.Dispatcher

	starts   metric.Int64Counter
	ticks    metric.Int64Counter
	finishes metric.Int64Counter
	dropped  metric.Int64Counter
}

// NewService creates a race service with an idle controller configured with
// deps.Competitors.
func NewService(deps Dependencies) (*Service, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Session == nil {
		deps.Session = session.NewContext()
	}
	if deps.Sink == nil {
		deps.Sink = sink.NewFanout()
	}
	if deps.SnapshotBacklog <= 0 {
		deps.SnapshotBacklog = DefaultSnapshotBacklog
	}

	s := &Service{
		deps: deps,
		log:  deps.Logger.With("component", "race"),
	}

	opts := []race.Option{race.WithListener(s.onEvent)}
	if deps.Rand != nil {
		opts = append(opts, race.WithRand(deps.Rand))
	}
	s.ctrl = race.NewController(opts...)
	if err := s.ctrl.Configure(deps.Competitors); err != nil {
		return nil, err
	}

	if err := s.initMetrics(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) initMetrics() error {
	m := otel.Meter(instrumentationName)

	var err error
	if s.starts, err = m.Int64Counter("race.started", metric.WithDescription("Races started")); err != nil {
		return fmt.Errorf("creating started counter: %w", err)
	}
	if s.ticks, err = m.Int64Counter("race.ticks", metric.WithDescription("Ticks simulated")); err != nil {
		return fmt.Errorf("creating tick counter: %w", err)
	}
	if s.finishes, err = m.Int64Counter("race.finished", metric.WithDescription("Races finished")); err != nil {
		return fmt.Errorf("creating finished counter: %w", err)
	}
	if s.dropped, err = m.Int64Counter("race.snapshots.dropped",
		metric.WithDescription("Snapshots not delivered to sinks because the queue was backed up")); err != nil {
		return fmt.Errorf("creating dropped counter: %w", err)
	}
	return nil
}

// Session returns the session context.
func (s *Service) Session() *session.Context {
	return s.deps.Session
}

// Start begins a race. A nil attrs uses the configured competitors.
func (s *Service) Start(attrs *[2]core.CompetitorAttributes, timestampMs float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	competitors := s.ctrl.Attributes()
	if attrs != nil {
		competitors = *attrs
	}
	if err := s.ctrl.Start(competitors, timestampMs); err != nil {
		return "", err
	}
	s.starts.Add(context.Background(), 1)
	return s.ctrl.RaceID(), nil
}

// Tick advances the race to timestampMs and reports whether it finished.
func (s *Service) Tick(timestampMs float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	done, err := s.ctrl.Tick(timestampMs)
	if err != nil {
		return false, err
	}
	s.ticks.Add(context.Background(), 1)
	s.deps.Session.Advance(s.ctrl.Snapshot().Tick, s.ctrl.Status())
	return done, nil
}

// Reset returns a finished race to idle.
func (s *Service) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Reset()
}

// Abort cancels the race in any state.
func (s *Service) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.Abort()
}

// Configure replaces the competitors used by the next Start without attributes.
func (s *Service) Configure(attrs [2]core.CompetitorAttributes) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Configure(attrs)
}

// Snapshot returns the current race projection.
func (s *Service) Snapshot() core.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Snapshot()
}

// Result returns the finish result, or nil while no race has finished.
func (s *Service) Result() *core.RaceResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Result()
}

// Attributes returns the clamped competitors of the current or next race.
func (s *Service) Attributes() [2]core.CompetitorAttributes {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Attributes()
}

// Status returns the controller state.
func (s *Service) Status() core.RaceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Status()
}

// onEvent runs inside controller calls, with mu held.
func (s *Service) onEvent(e race.Event) {
	switch e.Kind {
	case race.EventStarted:
		s.deps.Session.StartRace(e.Info)
		s.log.Info("race started",
			"raceId", e.Info.ID,
			"competitorA", e.Info.Competitors[0].Label(),
			"competitorB", e.Info.Competitors[1].Label())
	case race.EventSnapshot:
		s.deps.Session.Advance(e.Snapshot.Tick, e.Snapshot.Status)
	case race.EventFinished:
		s.deps.Session.Advance(e.Snapshot.Tick, e.Snapshot.Status)
		s.deps.Session.Finish(e.Result.WinnerName)
		s.finishes.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("winner", e.Result.WinnerID)))
		s.log.Info("race finished",
			"raceId", e.Result.RaceID,
			"winner", e.Result.WinnerName,
			"ticks", e.Result.Ticks,
			"raceTime", e.Result.RaceTime,
			"contacts", e.Result.Contacts)
	case race.EventReset:
		s.deps.Session.Clear()
		s.log.Debug("race reset")
	}

	s.publish(e)
}

// publish hands the event to the sink queue, or delivers it directly when no
// dispatcher is attached.
func (s *Service) publish(e race.Event) {
	if s.d == nil {
		if err := s.deliver(e); err != nil {
			s.log.Error("sink delivery failed", "event", e.Kind.String(), "error", err)
		}
		return
	}

	if e.Kind == race.EventSnapshot && s.d.Pending(SinkEventCommand) >= s.deps.SnapshotBacklog {
		s.dropped.Add(context.Background(), 1)
		return
	}

	_, err := s.d.Dispatch(dispatcher.Event{
		Command: SinkEventCommand,
		Payload: e,
	})
	if err != nil {
		s.log.Error("failed to queue sink event", "event", e.Kind.String(), "error", err)
	}
}

// deliver forwards one race event to the sink.
func (s *Service) deliver(e race.Event) error {
	switch e.Kind {
	case race.EventStarted:
		return s.deps.Sink.StartRace(e.Info)
	case race.EventSnapshot:
		snap := e.Snapshot
		return s.deps.Sink.RecordSnapshot(&snap)
	case race.EventFinished:
		return s.deps.Sink.EndRace(e.Result)
	case race.EventReset:
		return s.deps.Sink.ResetRace()
	default:
		return errors.New("unknown race event: " + e.Kind.String())
	}
}
