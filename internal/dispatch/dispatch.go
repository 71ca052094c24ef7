// Package dispatch delivers freshly appended events to in-process
// subscribers.
//
// Delivery is synchronous and ordered: handlers for a type run in the order
// they were registered, on the caller's goroutine, before Publish returns.
// A failing handler never stops the others and never retracts the event;
// its error comes back to the caller as a *ProjectorFailure.
//
// Rebuild does not go through the dispatcher. It applies projectors
// directly, so the dispatcher only ever sees live traffic.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/chronicle/internal/event"
)

// ErrReentrantPublish is returned when Publish is called while another
// Publish on the same dispatcher is still running, typically from inside a
// handler.
var ErrReentrantPublish = errors.New("dispatch: publish called while publishing")

// Handler reacts to one event.
type Handler func(ctx context.Context, ev event.Event) error

// Subscriber is a named handler for a fixed set of event types.
// projection.Projector satisfies it.
type Subscriber interface {
	Name() string
	Handles() []event.Type
	Apply(ctx context.Context, ev event.Event) error
}

type subscription struct {
	name    string
	handler Handler
}

// Dispatcher routes events to subscribers by type.
//
// Subscribe may be called concurrently with Publish; a subscription added
// during a Publish takes effect on the next one.
type Dispatcher struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[event.Type][]subscription

	publishing atomic.Bool
}

// New creates an empty dispatcher. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger: logger,
		subs:   make(map[event.Type][]subscription),
	}
}

// Subscribe registers h for events of type typ under name. The name only
// labels failures and logs.
func (d *Dispatcher) Subscribe(typ event.Type, name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs[typ] = append(d.subs[typ], subscription{name: name, handler: h})
}

// SubscribeAll registers h for every type in types.
func (d *Dispatcher) SubscribeAll(types []event.Type, name string, h Handler) {
	for _, typ := range types {
		d.Subscribe(typ, name, h)
	}
}

// Register subscribes s to every type it handles.
func (d *Dispatcher) Register(s Subscriber) {
	d.SubscribeAll(s.Handles(), s.Name(), s.Apply)
}

// Subscribers returns the names registered for typ, in delivery order.
func (d *Dispatcher) Subscribers(typ event.Type) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.subs[typ]))
	for _, s := range d.subs[typ] {
		names = append(names, s.name)
	}
	return names
}

// Publish runs every handler registered for ev.Type in registration order.
//
// Handler errors and panics are captured per handler, logged, and returned
// joined; each joined error is a *ProjectorFailure. A nil return means every
// handler succeeded (or there were none).
func (d *Dispatcher) Publish(ctx context.Context, ev event.Event) error {
	if !d.publishing.CompareAndSwap(false, true) {
		return ErrReentrantPublish
	}
	defer d.publishing.Store(false)

	d.mu.RLock()
	subs := append([]subscription(nil), d.subs[ev.Type]...)
	d.mu.RUnlock()

	var failures []error
	for _, s := range subs {
		if err := invoke(ctx, s.handler, ev); err != nil {
			failure := &ProjectorFailure{
				Subscriber: s.name,
				EventID:    ev.EventID,
				Type:       ev.Type,
				Err:        err,
			}
			d.logger.Error("subscriber failed",
				"subscriber", s.name,
				"event_id", ev.EventID,
				"event", ev.String(),
				"error", err)
			failures = append(failures, failure)
		}
	}

	if len(failures) > 0 {
		return errors.Join(failures...)
	}
	return nil
}

// invoke calls h, turning a panic into an error.
func invoke(ctx context.Context, h Handler, ev event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, ev)
}
