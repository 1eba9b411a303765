package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/poppop/racer/internal/dispatcher"
	"github.com/poppop/racer/internal/race"
	"github.com/poppop/racer/internal/session"
	"github.com/poppop/racer/pkg/core"
)

// Host commands.
const (
	CommandStart    = ":RACE:START:"
	CommandTick     = ":RACE:TICK:"
	CommandReset    = ":RACE:RESET:"
	CommandAbort    = ":RACE:ABORT:"
	CommandSnapshot = ":RACE:SNAPSHOT:"
	CommandResult   = ":RACE:RESULT:"
	CommandStatus   = ":RACE:STATUS:"
	CommandConfig   = ":RACE:CONFIG:"
	CommandVersion  = ":VERSION:"
	CommandLog      = ":LOG:"

	// SinkEventCommand carries race.Event payloads to the sinks.
	SinkEventCommand = ":SINK:EVENT:"
)

// sinkQueueSize is the buffer of the sink event queue.
const sinkQueueSize = 1024

// TickReply is returned by :RACE:TICK:.
type TickReply struct {
	Finished bool          `json:"finished"`
	Snapshot core.Snapshot `json:"snapshot"`
}

// StatusReply is returned by :RACE:STATUS:.
type StatusReply struct {
	session.Info
	SinkPending int `json:"sinkPending"`
}

// RegisterHandlers registers the race commands and the sink queue with d.
// Race events are queued on d from then on.
func (s *Service) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(SinkEventCommand, func(e dispatcher.Event) (any, error) {
		ev, ok := e.Payload.(race.Event)
		if !ok {
			return nil, fmt.Errorf("unexpected payload %T", e.Payload)
		}
		return nil, s.deliver(ev)
	}, dispatcher.Buffered(sinkQueueSize), dispatcher.Blocking())

	d.Register(CommandStart, func(e dispatcher.Event) (any, error) {
		ts, err := optionalTimestamp(e.Args)
		if err != nil {
			return nil, err
		}
		var attrs *[2]core.CompetitorAttributes
		if len(e.Args) > 1 && strings.TrimSpace(e.Args[1]) != "" {
			parsed, err := s.parseCompetitors(e.Args[1])
			if err != nil {
				return nil, err
			}
			attrs = &parsed
		}
		return s.Start(attrs, ts)
	}, dispatcher.Logged())

	d.Register(CommandTick, func(e dispatcher.Event) (any, error) {
		if len(e.Args) == 0 {
			return nil, errors.New("missing timestamp")
		}
		ts, err := parseTimestamp(e.Args[0])
		if err != nil {
			return nil, err
		}
		done, err := s.Tick(ts)
		if err != nil {
			return nil, err
		}
		return TickReply{Finished: done, Snapshot: s.Snapshot()}, nil
	})

	d.Register(CommandReset, func(e dispatcher.Event) (any, error) {
		return "ok", s.Reset()
	}, dispatcher.Logged())

	d.Register(CommandAbort, func(e dispatcher.Event) (any, error) {
		s.Abort()
		return "ok", nil
	}, dispatcher.Logged())

	d.Register(CommandSnapshot, func(e dispatcher.Event) (any, error) {
		return s.Snapshot(), nil
	})

	d.Register(CommandResult, func(e dispatcher.Event) (any, error) {
		r := s.Result()
		if r == nil {
			return nil, errors.New("race has not finished")
		}
		return r, nil
	})

	d.Register(CommandStatus, func(e dispatcher.Event) (any, error) {
		return StatusReply{
			Info:        s.deps.Session.Get(),
			SinkPending: d.Pending(SinkEventCommand),
		}, nil
	})

	d.Register(CommandConfig, func(e dispatcher.Event) (any, error) {
		if len(e.Args) == 0 {
			return s.Attributes(), nil
		}
		attrs, err := s.parseCompetitors(e.Args[0])
		if err != nil {
			return nil, err
		}
		if err := s.Configure(attrs); err != nil {
			return nil, err
		}
		return s.Attributes(), nil
	}, dispatcher.Logged())

	d.Register(CommandVersion, func(e dispatcher.Event) (any, error) {
		return []string{s.deps.Version, s.deps.BuildDate}, nil
	})

	if s.deps.HostLog != nil {
		// args: source, level, message
		d.Register(CommandLog, func(e dispatcher.Event) (any, error) {
			if len(e.Args) < 3 {
				return nil, fmt.Errorf("expected source, level and message, got %d args", len(e.Args))
			}
			s.deps.HostLog(e.Args[0], strings.Join(e.Args[2:], "|"), e.Args[1])
			return nil, nil
		})
	}

	s.mu.Lock()
	s.d = d
	s.mu.Unlock()
}

// parseCompetitors decodes a JSON array of exactly two competitors. A missing
// ID takes the ID of the configured competitor in the same slot.
func (s *Service) parseCompetitors(raw string) ([2]core.CompetitorAttributes, error) {
	var out [2]core.CompetitorAttributes

	var list []core.CompetitorAttributes
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return out, fmt.Errorf("error unmarshalling competitors: %w", err)
	}
	if len(list) != len(out) {
		return out, fmt.Errorf("expected %d competitors, got %d", len(out), len(list))
	}
	for i, a := range list {
		if a.ID == "" {
			a.ID = s.deps.Competitors[i].ID
		}
		out[i] = a
	}
	return out, nil
}

func optionalTimestamp(args []string) (float64, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return 0, nil
	}
	return parseTimestamp(args[0])
}

func parseTimestamp(raw string) (float64, error) {
	ts, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: %w", raw, err)
	}
	return ts, nil
}
