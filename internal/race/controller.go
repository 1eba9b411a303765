package race

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/poppop/racer/pkg/core"
)

var (
	// ErrRaceRunning is returned by Start and Reset while a race is in progress.
	ErrRaceRunning = errors.New("race is running")
	// ErrNotRunning is returned by Tick when no race is in progress.
	ErrNotRunning = errors.New("race is not running")
	// ErrInvalidTimestamp is returned by Start and Tick for a NaN or infinite
	// host timestamp.
	ErrInvalidTimestamp = errors.New("timestamp is not finite")
)

// EventKind identifies a race lifecycle event.
type EventKind int

const (
	EventStarted EventKind = iota
	EventSnapshot
	EventFinished
	EventReset
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventSnapshot:
		return "snapshot"
	case EventFinished:
		return "finished"
	case EventReset:
		return "reset"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is delivered to the controller's listener. Every field is a copy.
type Event struct {
	Kind     EventKind
	Info     *core.RaceInfo   // EventStarted
	Snapshot core.Snapshot    // every kind
	Result   *core.RaceResult // EventFinished
}

// Listener receives race events synchronously from inside Start, Tick and
// Reset. It must not block.
type Listener func(Event)

// Option configures a Controller.
type Option func(*Controller)

// WithRand sets the luck randomness source.
func WithRand(rng RandSource) Option {
	return func(c *Controller) {
		c.rng = rng
	}
}

// WithListener sets the event listener.
func WithListener(l Listener) Option {
	return func(c *Controller) {
		c.listener = l
	}
}

// WithIDGenerator overrides race ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(c *Controller) {
		c.newID = gen
	}
}

// WithClock overrides the wall clock used for RaceInfo.StartTime.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// raceState is owned by the controller for the duration of one race.
type raceState struct {
	id          string
	competitors [2]core.CompetitorState
	cooldown    float64
	lastTickMs  float64
	lastReport  float64
	tick        uint64
	elapsed     float64
	contacts    int
}

// Controller drives a two-competitor race: idle -> running -> finished,
// with Reset returning to idle.
type Controller struct {
	status   core.RaceStatus
	attrs    [2]core.CompetitorAttributes
	race     *raceState
	result   *core.RaceResult
	rng      RandSource
	listener Listener
	newID    func() string
	now      func() time.Time
}

// NewController creates an idle controller.
func NewController(opts ...Option) *Controller {
	c := &Controller{
		status: core.StatusIdle,
		newID:  uuid.NewString,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rng == nil {
		c.rng = NewSeededRand(0)
	}
	return c
}

// Status returns the lifecycle state.
func (c *Controller) Status() core.RaceStatus {
	return c.status
}

// Attributes returns the clamped attributes of the current or last race.
func (c *Controller) Attributes() [2]core.CompetitorAttributes {
	return c.attrs
}

// Result returns the finish result, or nil if the race has not finished.
func (c *Controller) Result() *core.RaceResult {
	if c.result == nil {
		return nil
	}
	r := *c.result
	return &r
}

// RaceID returns the ID of the current race, or "" when idle.
func (c *Controller) RaceID() string {
	if c.race == nil {
		return ""
	}
	return c.race.id
}

// Configure replaces the competitor attributes while idle or finished.
// Values are clamped.
func (c *Controller) Configure(attrs [2]core.CompetitorAttributes) error {
	if c.status == core.StatusRunning {
		return ErrRaceRunning
	}
	c.attrs = clampAll(attrs)
	return nil
}

// Start begins a new race at the given host timestamp.
func (c *Controller) Start(attrs [2]core.CompetitorAttributes, timestampMs float64) error {
	if c.status == core.StatusRunning {
		return ErrRaceRunning
	}
	if !finite(timestampMs) {
		return ErrInvalidTimestamp
	}

	c.attrs = clampAll(attrs)
	c.result = nil
	c.race = &raceState{
		id:         c.newID(),
		lastTickMs: timestampMs,
		lastReport: timestampMs,
	}
	for i := range c.race.competitors {
		c.race.competitors[i] = core.NewCompetitorState(c.attrs[i])
	}
	c.status = core.StatusRunning

	info := &core.RaceInfo{
		ID:          c.race.id,
		StartTime:   c.now(),
		Competitors: c.attrs,
	}
	c.emit(Event{Kind: EventStarted, Info: info, Snapshot: c.snapshotAt(timestampMs)})
	return nil
}

// Tick advances the race to the given host timestamp. The elapsed time since
// the previous tick is clamped to MaxTickDelta. It reports whether this tick
// finished the race.
func (c *Controller) Tick(timestampMs float64) (bool, error) {
	if c.status != core.StatusRunning {
		return false, ErrNotRunning
	}
	if !finite(timestampMs) {
		return false, ErrInvalidTimestamp
	}

	r := c.race
	dt := ClampDelta((timestampMs - r.lastTickMs) / 1000)
	r.lastTickMs = math.Max(r.lastTickMs, timestampMs)

	for i := range r.competitors {
		r.competitors[i] = Advance(c.attrs[i], r.competitors[i], dt, c.rng)
	}

	var contact Contact
	r.competitors, r.cooldown, contact = ResolveContact(c.attrs, r.competitors, r.cooldown, dt)
	if contact.Fired {
		r.contacts++
	}

	r.tick++
	r.elapsed += dt

	winner := finishWinner(r.competitors)

	if winner >= 0 {
		c.status = core.StatusFinished
	}

	snap := c.snapshotAt(timestampMs)
	throttled := timestampMs-r.lastReport > SnapshotThrottleMs
	if throttled {
		r.lastReport = timestampMs
	}
	// The finishing tick always reports, throttled or not.
	if throttled || winner >= 0 {
		c.emit(Event{Kind: EventSnapshot, Snapshot: snap})
	}

	if winner < 0 {
		return false, nil
	}

	c.result = &core.RaceResult{
		RaceID:      r.id,
		WinnerIndex: winner,
		WinnerID:    c.attrs[winner].ID,
		WinnerName:  c.attrs[winner].Label(),
		Ticks:       r.tick,
		RaceTime:    r.elapsed,
		Contacts:    r.contacts,
		Final:       snap,
	}
	c.emit(Event{Kind: EventFinished, Snapshot: snap, Result: c.Result()})
	return true, nil
}

// TickDelta advances the race by dt seconds of host time.
func (c *Controller) TickDelta(dt float64) (bool, error) {
	if c.status != core.StatusRunning {
		return false, ErrNotRunning
	}
	return c.Tick(c.race.lastTickMs + dt*1000)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Reset discards the race state and returns to idle. It is not allowed while
// a race is running.
func (c *Controller) Reset() error {
	if c.status == core.StatusRunning {
		return ErrRaceRunning
	}
	c.Abort()
	return nil
}

// Abort cancels the race in any state, discarding its state. Unlike Reset it
// is allowed while running; it is the cancellation path for a tick loop that
// is being torn down.
func (c *Controller) Abort() {
	c.status = core.StatusIdle
	c.race = nil
	c.result = nil
	c.emit(Event{Kind: EventReset, Snapshot: c.Snapshot()})
}

// Snapshot returns the current projection of the race. When idle it is the
// zeroed starting-line state of the configured competitors.
func (c *Controller) Snapshot() core.Snapshot {
	if c.race == nil {
		snap := core.Snapshot{Status: c.status}
		for i := range snap.Competitors {
			snap.Competitors[i] = core.SnapshotOf(core.NewCompetitorState(c.attrs[i]))
		}
		return snap
	}
	return c.snapshotAt(c.race.lastTickMs)
}

func (c *Controller) snapshotAt(timestampMs float64) core.Snapshot {
	snap := core.Snapshot{
		RaceID:      c.race.id,
		Status:      c.status,
		Tick:        c.race.tick,
		TimestampMs: timestampMs,
	}
	for i, s := range c.race.competitors {
		snap.Competitors[i] = core.SnapshotOf(s)
	}
	return snap
}

func (c *Controller) emit(e Event) {
	if c.listener != nil {
		c.listener(e)
	}
}

// finishWinner returns the lowest index at or past the finish line, or -1.
func finishWinner(states [2]core.CompetitorState) int {
	for i, s := range states {
		if s.Distance >= FinishDistance {
			return i
		}
	}
	return -1
}

func clampAll(attrs [2]core.CompetitorAttributes) [2]core.CompetitorAttributes {
	for i := range attrs {
		attrs[i] = attrs[i].Clamp()
	}
	return attrs
}
