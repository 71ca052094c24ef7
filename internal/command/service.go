// Package command runs entity commands through the write path:
//
//	gate -> read stream -> fold -> decide -> append -> publish
//
// The event log is the commit point. Once Append accepts an event the
// command has succeeded; a projector failing afterwards is reported in the
// Outcome and repaired by the next rebuild, never by retracting the event.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/chronicle/internal/aggregate"
	"github.com/roach88/chronicle/internal/catalog"
	"github.com/roach88/chronicle/internal/clock"
	"github.com/roach88/chronicle/internal/dispatch"
	"github.com/roach88/chronicle/internal/entity"
	"github.com/roach88/chronicle/internal/event"
	"github.com/roach88/chronicle/internal/eventlog"
	"github.com/roach88/chronicle/internal/gate"
	"github.com/roach88/chronicle/internal/idgen"
)

// DefaultMaxAttempts bounds the re-read/re-decide loop on version
// conflicts.
const DefaultMaxAttempts = 3

// ErrIDMismatch indicates a Create whose id differs from the target
// aggregate.
var ErrIDMismatch = errors.New("command: create id does not match aggregate id")

// EventStore is the part of *eventlog.Store the write path needs.
type EventStore interface {
	ReadStream(ctx context.Context, aggregateID string) ([]event.Event, error)
	Append(ctx context.Context, ev event.Event) (eventlog.AppendResult, error)
}

// Publisher delivers accepted events. *dispatch.Dispatcher implements it.
type Publisher interface {
	Publish(ctx context.Context, ev event.Event) error
}

// Outcome describes an accepted command.
type Outcome struct {
	AggregateID string
	Event       event.Event
	// State is the entity after the event.
	State entity.State
	// Attempts counts decide/append rounds, 1 unless a conflict forced a
	// retry.
	Attempts int
	// ProjectionErrors lists subscribers that failed on the event. The
	// event is committed regardless.
	ProjectionErrors []*dispatch.ProjectorFailure
}

// Service executes commands. One command runs at a time.
type Service struct {
	events    EventStore
	publisher Publisher
	catalog   *catalog.Catalog
	reducer   *entity.Reducer
	gate      *gate.Gate

	clock       clock.Clock
	eventIDs    idgen.Generator
	entityID    func(prefix string) (string, error)
	maxAttempts int
	logger      *slog.Logger

	mu sync.Mutex
	// last is the most recent timestamp handed to a command.
	last time.Time
}

// precondition checks the other aggregates a command depends on. It runs
// under the command lock after the stream is loaded and returns the latest
// timestamp among them; the command's event is stamped after it.
type precondition func(ctx context.Context, state entity.State) (time.Time, error)

// Option configures a Service.
type Option func(*Service)

// WithMaxAttempts sets how many times a command is decided before a
// version conflict is returned to the caller. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n >= 1 {
			s.maxAttempts = n
		}
	}
}

// WithClock sets the source of event timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithEventIDs sets the event id generator.
func WithEventIDs(g idgen.Generator) Option {
	return func(s *Service) { s.eventIDs = g }
}

// WithEntityIDs sets how Create names new entities from a kind prefix.
func WithEntityIDs(fn func(prefix string) (string, error)) Option {
	return func(s *Service) { s.entityID = fn }
}

// WithGate shares a gate with a rebuild service.
func WithGate(g *gate.Gate) Option {
	return func(s *Service) { s.gate = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a Service appending to events and publishing to publisher.
func New(events EventStore, publisher Publisher, cat *catalog.Catalog, opts ...Option) *Service {
	s := &Service{
		events:      events,
		publisher:   publisher,
		catalog:     cat,
		reducer:     entity.NewReducer(cat),
		gate:        &gate.Gate{},
		clock:       clock.System{},
		eventIDs:    idgen.UUIDv7{},
		entityID:    idgen.EntityID,
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Gate returns the gate commands enter.
func (s *Service) Gate() *gate.Gate {
	return s.gate
}

// Execute runs cmd against aggregateID.
//
// On a version conflict the stream is re-read and cmd decided again, up to
// the configured attempt limit; the final conflict is returned wrapped.
// Domain rejections come back as *aggregate.DomainError and nothing is
// appended.
//
// Event timestamps never go backward: a clock that stepped back is
// overridden by one nanosecond past the stream's last event and the last
// timestamp this service issued.
func (s *Service) Execute(ctx context.Context, aggregateID string, cmd entity.Command) (Outcome, error) {
	return s.execute(ctx, aggregateID, cmd, nil)
}

func (s *Service) execute(ctx context.Context, aggregateID string, cmd entity.Command, check precondition) (Outcome, error) {
	if c, ok := cmd.(entity.Create); ok && c.ID != aggregateID {
		return Outcome{}, fmt.Errorf("%w: %q vs %q", ErrIDMismatch, c.ID, aggregateID)
	}
	if err := eventlog.ValidateAggregateID(aggregateID); err != nil {
		return Outcome{}, err
	}
	if err := s.gate.Enter(); err != nil {
		return Outcome{}, err
	}
	defer s.gate.Leave()

	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 1; ; attempt++ {
		state, err := s.load(ctx, aggregateID)
		if err != nil {
			return Outcome{}, err
		}

		floor := state.UpdatedAt
		if check != nil {
			dep, err := check(ctx, state)
			if err != nil {
				s.logger.Debug("command rejected", "command", entity.Name(cmd), "aggregate_id", aggregateID, "error", err)
				return Outcome{}, err
			}
			if dep.After(floor) {
				floor = dep
			}
		}

		stamped := entity.Stamp(cmd, aggregate.Meta{EventID: s.eventIDs.Generate(), At: s.now(floor)})
		ev, err := s.reducer.Decide(state, stamped)
		if err != nil {
			s.logger.Debug("command rejected", "command", entity.Name(cmd), "aggregate_id", aggregateID, "error", err)
			return Outcome{}, err
		}

		_, err = s.events.Append(ctx, ev)
		if eventlog.IsVersionConflict(err) {
			if attempt >= s.maxAttempts {
				return Outcome{Attempts: attempt}, fmt.Errorf("%s %s: gave up after %d attempts: %w", entity.Name(cmd), aggregateID, attempt, err)
			}
			s.logger.Debug("version conflict, retrying", "aggregate_id", aggregateID, "attempt", attempt, "error", err)
			continue
		}
		if err != nil {
			return Outcome{}, fmt.Errorf("%s %s: %w", entity.Name(cmd), aggregateID, err)
		}

		out := Outcome{
			AggregateID: aggregateID,
			Event:       ev,
			State:       s.reducer.Apply(state, ev),
			Attempts:    attempt,
		}
		if perr := s.publisher.Publish(ctx, ev); perr != nil {
			out.ProjectionErrors = failures(ev, perr)
			s.logger.Warn("event committed but projections are stale; run rebuild",
				"event", ev.String(), "failures", len(out.ProjectionErrors))
		}
		s.logger.Info("command applied", "command", entity.Name(cmd), "event", ev.String())
		return out, nil
	}
}

// now returns the clock's time, moved past floor and past the last issued
// timestamp when it is not already later than both.
func (s *Service) now(floor time.Time) time.Time {
	at := s.clock.Now()
	if s.last.After(floor) {
		floor = s.last
	}
	if !floor.IsZero() && !at.After(floor) {
		s.logger.Warn("clock behind last event; stamping past it", "clock", at, "floor", floor)
		at = floor.Add(time.Nanosecond)
	}
	s.last = at
	return at
}

// failures normalizes a Publish error into per-subscriber failures.
func failures(ev event.Event, err error) []*dispatch.ProjectorFailure {
	if fs := dispatch.Failures(err); len(fs) > 0 {
		return fs
	}
	return []*dispatch.ProjectorFailure{{Subscriber: "dispatcher", EventID: ev.EventID, Type: ev.Type, Err: err}}
}

func (s *Service) load(ctx context.Context, aggregateID string) (entity.State, error) {
	events, err := s.events.ReadStream(ctx, aggregateID)
	if err != nil {
		return entity.State{}, fmt.Errorf("load %s: %w", aggregateID, err)
	}
	state := aggregate.Fold[entity.State](s.reducer, events)
	if state.ID == "" {
		state.ID = aggregateID
	}
	return state, nil
}

// Load returns the folded state and raw history of an entity.
func (s *Service) Load(ctx context.Context, aggregateID string) (entity.State, []event.Event, error) {
	events, err := s.events.ReadStream(ctx, aggregateID)
	if err != nil {
		return entity.State{}, nil, err
	}
	return aggregate.Fold[entity.State](s.reducer, events), events, nil
}
