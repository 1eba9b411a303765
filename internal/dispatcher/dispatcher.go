// Package dispatcher routes host commands and in-process events to handlers.
//
// A command runs inline by default. Registered with Buffered, it runs behind
// a bounded queue drained by a single goroutine, so queued events for one
// command are handled in the order they were dispatched.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/poppop/racer/internal/dispatcher"

// Event is a command routed to a registered handler. Host commands carry
// their arguments in Args; internal commands carry a typed Payload.
type Event struct {
	Command   string
	Args      []string
	Payload   any
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures a route at registration.
type Option func(*route)

// Buffered queues events for the command and handles them on a dedicated
// goroutine. Dispatch returns "queued" immediately.
func Buffered(size int) Option {
	return func(r *route) { r.size = size }
}

// Blocking makes Dispatch wait for room on a full queue instead of dropping.
func Blocking() Option {
	return func(r *route) { r.blocking = true }
}

// Logged logs each dispatch with its duration and outcome.
func Logged() Option {
	return func(r *route) { r.logged = true }
}

// route is one registered command.
type route struct {
	command  string
	handle   HandlerFunc
	size     int
	blocking bool
	logged   bool

	queue chan Event
	attrs metric.MeasurementOption
}

type instruments struct {
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	logger  Logger
	metrics instruments

	mu     sync.RWMutex
	routes map[string]*route
	closed bool
	wg     sync.WaitGroup
}

// New creates a Dispatcher. Metrics go to the global OTel meter, which is a
// no-op until a provider is installed.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		logger: logger,
		routes: make(map[string]*route),
	}
	if err := d.initMetrics(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dispatcher) initMetrics() error {
	m := otel.Meter(instrumentationName)

	var err error
	if d.metrics.processed, err = m.Int64Counter("dispatcher.events.processed",
		metric.WithDescription("Events handled from a command queue")); err != nil {
		return fmt.Errorf("creating processed counter: %w", err)
	}
	if d.metrics.dropped, err = m.Int64Counter("dispatcher.events.dropped",
		metric.WithDescription("Events rejected because a command queue was full")); err != nil {
		return fmt.Errorf("creating dropped counter: %w", err)
	}
	if d.metrics.queueSize, err = m.Int64ObservableGauge("dispatcher.queue.size",
		metric.WithDescription("Events waiting in a command queue")); err != nil {
		return fmt.Errorf("creating queue size gauge: %w", err)
	}
	if _, err = m.RegisterCallback(d.observeQueues, d.metrics.queueSize); err != nil {
		return fmt.Errorf("registering queue callback: %w", err)
	}
	return nil
}

func (d *Dispatcher) observeQueues(_ context.Context, o metric.Observer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, r := range d.routes {
		if r.queue != nil {
			o.ObserveInt64(d.metrics.queueSize, int64(len(r.queue)), r.attrs)
		}
	}
	return nil
}

// Register adds a handler for command. Registering a command again replaces
// its route; a replaced queue is drained before its goroutine exits.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	r := &route{
		command: command,
		handle:  h,
		attrs:   metric.WithAttributes(attribute.String("command", command)),
	}
	for _, opt := range opts {
		opt(r)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if old, ok := d.routes[command]; ok && old.queue != nil && !d.closed {
		close(old.queue)
	}
	if r.size > 0 {
		r.queue = make(chan Event, r.size)
		d.wg.Add(1)
		go d.drain(r)
	}
	d.routes[command] = r
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	d.mu.RLock()
	r, ok := d.routes[e.Command]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown command: %s", e.Command)
	}

	if !r.logged {
		return d.call(r, e)
	}

	start := time.Now()
	d.logger.Debug("handling event", "command", r.command, "args", len(e.Args))
	result, err := d.call(r, e)
	if err != nil {
		d.logger.Error("event failed", "command", r.command, "duration", time.Since(start), "error", err)
	} else {
		d.logger.Debug("event complete", "command", r.command, "duration", time.Since(start))
	}
	return result, err
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.routes[command]
	return ok
}

// Pending returns the number of events waiting in the command's queue. It is
// 0 for inline commands.
func (d *Dispatcher) Pending(command string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if r, ok := d.routes[command]; ok && r.queue != nil {
		return len(r.queue)
	}
	return 0
}

// Close stops accepting queued events and waits until every queued event
// has been handled. Inline commands keep working.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, r := range d.routes {
		if r.queue != nil {
			close(r.queue)
		}
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) call(r *route, e Event) (any, error) {
	if r.queue == nil {
		return r.handle(e)
	}
	return d.enqueue(r, e)
}

// enqueue holds the read lock across the send so Close cannot close the
// queue under a blocked sender.
func (d *Dispatcher) enqueue(r *route, e Event) (any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, fmt.Errorf("dispatcher closed: %s", r.command)
	}
	if d.routes[r.command] != r {
		return nil, fmt.Errorf("route replaced: %s", r.command)
	}

	if r.blocking {
		r.queue <- e
		return "queued", nil
	}
	select {
	case r.queue <- e:
		return "queued", nil
	default:
		d.metrics.dropped.Add(context.Background(), 1, r.attrs)
		return nil, fmt.Errorf("queue full: %s", r.command)
	}
}

func (d *Dispatcher) drain(r *route) {
	defer d.wg.Done()
	for e := range r.queue {
		if _, err := r.handle(e); err != nil {
			d.logger.Error("buffered handler failed", "command", r.command, "error", err)
		}
		d.metrics.processed.Add(context.Background(), 1, r.attrs)
	}
}
