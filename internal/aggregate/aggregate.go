// Package aggregate defines the fold-and-decide contract every entity type
// implements.
//
// Apply rebuilds state from history and must be total, pure and
// deterministic: two folds of the same stream produce identical state.
// Decide validates a command against folded state and yields exactly one
// event at version state+1, or a *DomainError. Neither touches storage, so
// both are testable with no I/O, and replay reuses Apply without ever
// calling Decide.
package aggregate

import (
	"time"

	"github.com/roach88/chronicle/internal/event"
)

// Applier folds events into state.
type Applier[S any] interface {
	// Initial returns the state of an aggregate with an empty stream.
	Initial() S
	// Apply returns the state after ev. It never fails: events already in
	// the log are facts, and unknown types leave state unchanged.
	Apply(state S, ev event.Event) S
}

// Reducer is the full per-aggregate contract.
type Reducer[S any, C any] interface {
	Applier[S]
	// Decide returns the single event cmd produces, or a *DomainError.
	Decide(state S, cmd C) (event.Event, error)
}

// Versioned exposes the version of the last event folded into a state.
type Versioned interface {
	StreamVersion() int64
}

// Fold rehydrates state by applying events in order from Initial.
func Fold[S any](a Applier[S], events []event.Event) S {
	state := a.Initial()
	for _, ev := range events {
		state = a.Apply(state, ev)
	}
	return state
}

// Meta carries the non-deterministic parts of a new event. The command
// handler stamps it before calling Decide so Decide stays pure.
type Meta struct {
	EventID string
	At      time.Time
}

// NewEvent builds the next event for an aggregate currently at version
// current.
func NewEvent(aggregateID string, current int64, typ event.Type, payload event.Payload, meta Meta) event.Event {
	if payload == nil {
		payload = event.Payload{}
	}
	return event.Event{
		EventID:     meta.EventID,
		AggregateID: aggregateID,
		Type:        typ,
		Version:     current + 1,
		Timestamp:   meta.At,
		Payload:     payload,
	}
}
