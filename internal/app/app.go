// Package app wires the event log, projections, dispatcher, command
// service and rebuild service together from a Config.
package app

import (
	"fmt"
	"log/slog"

	"github.com/roach88/chronicle/internal/catalog"
	"github.com/roach88/chronicle/internal/clock"
	"github.com/roach88/chronicle/internal/command"
	"github.com/roach88/chronicle/internal/config"
	"github.com/roach88/chronicle/internal/dispatch"
	"github.com/roach88/chronicle/internal/eventlog"
	"github.com/roach88/chronicle/internal/gate"
	"github.com/roach88/chronicle/internal/idgen"
	"github.com/roach88/chronicle/internal/projection"
	"github.com/roach88/chronicle/internal/rebuild"
)

// Options overrides the non-deterministic parts of the app. Zero values
// mean production defaults.
type Options struct {
	Clock     clock.Clock
	EventIDs  idgen.Generator
	EntityIDs func(prefix string) (string, error)
	Logger    *slog.Logger
}

// App is an open chronicle data directory.
type App struct {
	Config     config.Config
	Catalog    *catalog.Catalog
	Events     *eventlog.Store
	Live       *projection.Live
	Dispatcher *dispatch.Dispatcher
	Gate       *gate.Gate
	Commands   *command.Service
	Rebuild    *rebuild.Service
}

// Open opens (creating if needed) the data directory named by cfg.
func Open(cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	events, err := eventlog.Open(cfg.StreamsDir())
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	live, err := projection.OpenLive(cfg.ProjectionPath(), cat)
	if err != nil {
		return nil, fmt.Errorf("open projection: %w", err)
	}

	d := dispatch.New(logger)
	for _, p := range projection.All(cat, live) {
		d.Register(p)
	}

	g := &gate.Gate{}
	cmdOpts := []command.Option{
		command.WithGate(g),
		command.WithMaxAttempts(cfg.MaxAttempts),
		command.WithLogger(logger),
	}
	if opts.Clock != nil {
		cmdOpts = append(cmdOpts, command.WithClock(opts.Clock))
	}
	if opts.EventIDs != nil {
		cmdOpts = append(cmdOpts, command.WithEventIDs(opts.EventIDs))
	}
	if opts.EntityIDs != nil {
		cmdOpts = append(cmdOpts, command.WithEntityIDs(opts.EntityIDs))
	}

	return &App{
		Config:     cfg,
		Catalog:    cat,
		Events:     events,
		Live:       live,
		Dispatcher: d,
		Gate:       g,
		Commands:   command.New(events, d, cat, cmdOpts...),
		Rebuild:    rebuild.New(events, live, g, rebuild.WithLogger(logger)),
	}, nil
}

// Close releases the projection database.
func (a *App) Close() error {
	if a == nil || a.Live == nil {
		return nil
	}
	return a.Live.Close()
}
