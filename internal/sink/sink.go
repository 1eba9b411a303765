// Package sink receives race lifecycle events off the tick path: the live
// stream, the telemetry store and the in-memory timeline.
package sink

import (
	"errors"
	"fmt"

	"github.com/poppop/racer/pkg/core"
)

// Backend is the interface all sink implementations must satisfy.
type Backend interface {
	Name() string

	// Lifecycle
	Init() error
	Close() error

	// Race recording
	StartRace(info *core.RaceInfo) error
	RecordSnapshot(s *core.Snapshot) error
	EndRace(r *core.RaceResult) error
	ResetRace() error
}

// Fanout delivers every call to each backend in order. A failing backend
// does not stop the others; their errors are joined.
type Fanout struct {
	backends []Backend
}

// NewFanout combines the given backends.
func NewFanout(backends ...Backend) *Fanout {
	return &Fanout{backends: backends}
}

// Backends returns the combined backends.
func (f *Fanout) Backends() []Backend {
	return f.backends
}

func (f *Fanout) Name() string { return "fanout" }

func (f *Fanout) Init() error {
	return f.each(Backend.Init)
}

func (f *Fanout) Close() error {
	return f.each(Backend.Close)
}

func (f *Fanout) StartRace(info *core.RaceInfo) error {
	return f.each(func(b Backend) error { return b.StartRace(info) })
}

func (f *Fanout) RecordSnapshot(s *core.Snapshot) error {
	return f.each(func(b Backend) error { return b.RecordSnapshot(s) })
}

func (f *Fanout) EndRace(r *core.RaceResult) error {
	return f.each(func(b Backend) error { return b.EndRace(r) })
}

func (f *Fanout) ResetRace() error {
	return f.each(Backend.ResetRace)
}

func (f *Fanout) each(call func(Backend) error) error {
	var errs []error
	for _, b := range f.backends {
		if err := call(b); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Find returns the first backend of type T.
func Find[T Backend](backends []Backend) (T, bool) {
	for _, b := range backends {
		if t, ok := b.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}
