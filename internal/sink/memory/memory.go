// internal/sink/memory/memory.go
package memory

import (
	"sync"
	"time"

	"github.com/poppop/racer/internal/config"
	"github.com/poppop/racer/internal/queue"
	"github.com/poppop/racer/pkg/core"
)

// Status summarizes the race the backend is holding.
type Status struct {
	RaceID      string          `json:"raceId,omitempty"`
	State       core.RaceStatus `json:"state"`
	Competitors [2]string       `json:"competitors"`
	Latest      *core.Snapshot  `json:"latest,omitempty"`
	Winner      string          `json:"winner,omitempty"`
	Snapshots   int             `json:"snapshots"`
	Evicted     int             `json:"evicted"`
	RacesSeen   int             `json:"racesSeen"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Backend keeps the timeline of the current race in memory.
type Backend struct {
	cfg      config.MemoryConfig
	race     *core.RaceInfo
	timeline *queue.Queue[core.Snapshot]
	result   *core.RaceResult
	races    int
	updated  time.Time

	now func() time.Time
	mu  sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:      cfg,
		timeline: queue.NewBounded[core.Snapshot](cfg.Capacity),
		now:      time.Now,
	}
}

func (b *Backend) Name() string { return "memory" }

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartRace begins recording a new race, discarding the previous one.
func (b *Backend) StartRace(info *core.RaceInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	race := *info
	b.race = &race
	b.result = nil
	b.timeline.Clear()
	b.races++
	b.updated = b.now()
	return nil
}

// RecordSnapshot appends a snapshot to the timeline.
func (b *Backend) RecordSnapshot(s *core.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.timeline.Push(*s)
	b.updated = b.now()
	return nil
}

// EndRace stores the result.
func (b *Backend) EndRace(r *core.RaceResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := *r
	b.result = &result
	b.updated = b.now()
	return nil
}

// ResetRace discards the current race.
func (b *Backend) ResetRace() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.race = nil
	b.result = nil
	b.timeline.Clear()
	b.updated = b.now()
	return nil
}

// Latest returns the most recent snapshot.
func (b *Backend) Latest() (core.Snapshot, bool) {
	return b.timeline.Last()
}

// Timeline returns a copy of the recorded snapshots, oldest first.
func (b *Backend) Timeline() []core.Snapshot {
	return b.timeline.Items()
}

// Race returns the current race, or nil.
func (b *Backend) Race() *core.RaceInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.race == nil {
		return nil
	}
	race := *b.race
	return &race
}

// Result returns the finish result, or nil.
func (b *Backend) Result() *core.RaceResult {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.result == nil {
		return nil
	}
	result := *b.result
	return &result
}

// Status returns a summary for status reporting.
func (b *Backend) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := Status{
		State:     core.StatusIdle,
		Snapshots: b.timeline.Len(),
		Evicted:   b.timeline.Evicted(),
		RacesSeen: b.races,
		UpdatedAt: b.updated,
	}
	if b.race != nil {
		st.RaceID = b.race.ID
		st.State = core.StatusRunning
		for i, c := range b.race.Competitors {
			st.Competitors[i] = c.Label()
		}
	}
	if latest, ok := b.timeline.Last(); ok {
		st.Latest = &latest
		st.State = latest.Status
	}
	if b.result != nil {
		st.State = core.StatusFinished
		st.Winner = b.result.WinnerName
	}
	return st
}
