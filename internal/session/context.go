package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/poppop/racer/pkg/core"
)

// Info is a copy of the session state.
type Info struct {
	RaceID      string          `json:"raceId,omitempty"`
	State       core.RaceStatus `json:"state"`
	Competitors [2]string       `json:"competitors"`
	Tick        uint64          `json:"tick"`
	StartedAt   time.Time       `json:"startedAt,omitempty"`
	Winner      string          `json:"winner,omitempty"`
	RacesRun    int             `json:"racesRun"`
}

// Context holds the current race for log enrichment and status queries.
type Context struct {
	mu   sync.RWMutex
	info Info
}

// NewContext creates an idle Context.
func NewContext() *Context {
	return &Context{info: Info{State: core.StatusIdle}}
}

// Get returns the current session state.
func (c *Context) Get() Info {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// StartRace records a newly started race.
func (c *Context) StartRace(race *core.RaceInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info = Info{
		RaceID:    race.ID,
		State:     core.StatusRunning,
		StartedAt: race.StartTime,
		RacesRun:  c.info.RacesRun + 1,
	}
	for i, a := range race.Competitors {
		c.info.Competitors[i] = a.Label()
	}
}

// Advance records the latest tick and state.
func (c *Context) Advance(tick uint64, state core.RaceStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info.Tick = tick
	c.info.State = state
}

// Finish records the winner.
func (c *Context) Finish(winner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info.State = core.StatusFinished
	c.info.Winner = winner
}

// Clear returns the session to idle, keeping the race count.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info = Info{State: core.StatusIdle, RacesRun: c.info.RacesRun}
}

// LogAttrs returns the attributes added to every log record.
func (c *Context) LogAttrs() []slog.Attr {
	info := c.Get()
	attrs := []slog.Attr{slog.String("raceState", string(info.State))}
	if info.RaceID != "" {
		attrs = append(attrs, slog.String("raceId", info.RaceID))
	}
	return attrs
}
