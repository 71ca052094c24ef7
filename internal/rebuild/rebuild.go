// Package rebuild regenerates the projection store from the event log.
//
// A rebuild never touches the live store until it has a complete
// replacement: it replays every stream into a fresh database next to the
// live one, then swaps the file in. Any failure discards the fresh database
// and leaves the live projection exactly as it was.
//
// Events are replayed in global order (timestamp, aggregate id, version),
// not stream by stream, so an event that refers to another aggregate (a
// Superseded pointing at an older decision) always finds its target
// already projected.
package rebuild

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/roach88/chronicle/internal/catalog"
	"github.com/roach88/chronicle/internal/clock"
	"github.com/roach88/chronicle/internal/event"
	"github.com/roach88/chronicle/internal/eventlog"
	"github.com/roach88/chronicle/internal/gate"
	"github.com/roach88/chronicle/internal/idgen"
	"github.com/roach88/chronicle/internal/projection"
)

// Source reads the whole event log. *eventlog.Store implements it.
type Source interface {
	ReadAll(ctx context.Context) ([]eventlog.Stream, error)
}

// Result summarizes a rebuild.
type Result struct {
	EventsReplayed int
	Success        bool
	Duration       time.Duration
}

// Service rebuilds and verifies the live projection.
type Service struct {
	events  Source
	live    *projection.Live
	catalog *catalog.Catalog
	gate    *gate.Gate
	clock   clock.Clock
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for built_at and timings.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a rebuild service. g must be the gate the command service
// enters.
func New(events Source, live *projection.Live, g *gate.Gate, opts ...Option) *Service {
	s := &Service{
		events:  events,
		live:    live,
		catalog: live.Catalog(),
		gate:    g,
		clock:   clock.System{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rebuild replaces the live projection with one replayed from the log.
//
// It refuses with gate.ErrBusy while a command is in flight. On failure
// the returned error is a *Failure and Result.Success is false.
func (s *Service) Rebuild(ctx context.Context) (Result, error) {
	release, err := s.gate.TryExclusive()
	if err != nil {
		return Result{}, err
	}
	defer release()

	start := time.Now()
	tempPath, err := s.scratchPath("rebuild")
	if err != nil {
		return Result{}, &Failure{Err: err}
	}

	s.logger.Info("rebuild started", "temp", tempPath)
	n, err := s.build(ctx, tempPath, true)
	if err != nil {
		projection.Discard(tempPath)
		s.logger.Error("rebuild failed; live projection untouched", "processed", n, "error", err)
		return Result{EventsReplayed: n, Duration: time.Since(start)}, err
	}

	if err := s.live.Swap(tempPath); err != nil {
		projection.Discard(tempPath)
		s.logger.Error("rebuild could not swap in the new projection", "processed", n, "error", err)
		return Result{EventsReplayed: n, Duration: time.Since(start)}, &Failure{Processed: n, Err: err}
	}

	res := Result{EventsReplayed: n, Success: true, Duration: time.Since(start)}
	s.logger.Info("rebuild complete", "events", n, "duration", res.Duration)
	return res, nil
}

// Ordered returns every event in the log in global replay order.
func (s *Service) Ordered(ctx context.Context) ([]event.Event, error) {
	streams, err := s.events.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	events := lo.FlatMap(streams, func(st eventlog.Stream, _ int) []event.Event { return st.Events })
	slices.SortStableFunc(events, event.Compare)
	return events, nil
}

// build replays the log into a new store at path and closes it. It
// returns the number of events applied.
func (s *Service) build(ctx context.Context, path string, markBuilt bool) (n int, err error) {
	store, err := projection.Open(path, s.catalog)
	if err != nil {
		return 0, &Failure{Err: fmt.Errorf("create temp projection: %w", err)}
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = &Failure{Processed: n, Err: fmt.Errorf("close temp projection: %w", cerr)}
		}
	}()

	events, err := s.Ordered(ctx)
	if err != nil {
		return 0, &Failure{Err: fmt.Errorf("read event log: %w", err)}
	}

	projectors := projection.All(s.catalog, store)
	for i, ev := range events {
		if err := ctx.Err(); err != nil {
			return i, &Failure{Processed: i, EventID: ev.EventID, Err: err}
		}
		for _, p := range projectors {
			if err := p.Apply(ctx, ev); err != nil {
				return i, &Failure{Processed: i, EventID: ev.EventID, Projector: p.Name(), Err: err}
			}
		}
	}

	if markBuilt {
		if err := store.MarkBuilt(ctx, s.clock.Now()); err != nil {
			return len(events), &Failure{Processed: len(events), Err: err}
		}
	}
	return len(events), nil
}

func (s *Service) scratchPath(purpose string) (string, error) {
	id, err := idgen.EntityID("")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.%s-%s", s.live.Path(), purpose, id), nil
}
