// Package entity is the single aggregate behind every tracked kind.
//
// Kinds differ only in data (see package catalog), so one reducer handles
// goals, decisions, tasks and the rest. Apply is an exhaustive switch over
// the six event types; Decide enforces the catalog's status machine.
package entity

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/chronicle/internal/aggregate"
	"github.com/roach88/chronicle/internal/catalog"
	"github.com/roach88/chronicle/internal/event"
)

// Reducer folds and decides for entities of any catalog kind.
type Reducer struct {
	catalog *catalog.Catalog
}

var _ aggregate.Reducer[State, Command] = (*Reducer)(nil)

// NewReducer creates a reducer bound to cat.
func NewReducer(cat *catalog.Catalog) *Reducer {
	return &Reducer{catalog: cat}
}

// Initial returns the state of an entity with no history.
func (r *Reducer) Initial() State {
	return State{Fields: map[string]string{}}
}

// Apply returns the state after ev. Unknown event types leave state as is.
func (r *Reducer) Apply(s State, ev event.Event) State {
	next := s.clone()

	switch ev.Type {
	case Created:
		next.ID = ev.AggregateID
		next.Kind = ev.Payload.String(keyKind)
		next.Title = ev.Payload.String(keyTitle)
		next.Status = ev.Payload.String(keyStatus)
		next.Fields = stringFields(ev.Payload)
	case Renamed:
		next.Title = ev.Payload.String(keyTitle)
	case StatusChanged:
		next.Status = ev.Payload.String(keyTo)
	case FieldSet:
		key, value := ev.Payload.String(keyKey), ev.Payload.String(keyValue)
		if value == "" {
			delete(next.Fields, key)
		} else {
			next.Fields[key] = value
		}
	case Superseded:
		next.Supersedes = ev.Payload.String(keyTarget)
	case Removed:
		next.Removed = true
	default:
		return s
	}

	next.Version = ev.Version
	next.UpdatedAt = ev.Timestamp
	return next
}

// Decide validates cmd against s and returns the one event it produces.
//
// Every string taken from cmd is NFC normalized first, so the returned
// event is the one the log will read back.
func (r *Reducer) Decide(s State, cmd Command) (event.Event, error) {
	m := cmd.meta()
	if m.EventID == "" || m.At.IsZero() {
		return event.Event{}, aggregate.Reject(aggregate.ErrCodeInvalid, s.ID, "command %s is not stamped", Name(cmd))
	}

	if c, ok := cmd.(Create); ok {
		return r.decideCreate(s, c)
	}

	if !s.Exists() {
		return event.Event{}, aggregate.Reject(aggregate.ErrCodeNotFound, s.ID, "entity does not exist")
	}
	if s.Removed {
		return event.Event{}, aggregate.Reject(aggregate.ErrCodeRemoved, s.ID, "entity was removed")
	}

	switch c := cmd.(type) {
	case Rename:
		title := text(c.Title)
		if title == "" {
			return event.Event{}, aggregate.Reject(aggregate.ErrCodeInvalid, s.ID, "title is required")
		}
		if title == s.Title {
			return event.Event{}, aggregate.Reject(aggregate.ErrCodeNoChange, s.ID, "title is already %q", title)
		}
		return aggregate.NewEvent(s.ID, s.Version, Renamed, event.Payload{keyTitle: title, keyPrevious: s.Title}, m), nil

	case SetStatus:
		kind, ok := r.catalog.Kind(s.Kind)
		if !ok {
			return event.Event{}, aggregate.Reject(aggregate.ErrCodeInvalid, s.ID, "kind %q is not in the catalog", s.Kind)
		}
		status := norm.NFC.String(c.Status)
		if status == s.Status {
			return event.Event{}, aggregate.Reject(aggregate.ErrCodeNoChange, s.ID, "status is already %q", status)
		}
		if !kind.HasStatus(status) {
			return event.Event{}, aggregate.Reject(aggregate.ErrCodeInvalid, s.ID, "%s has no status %q", kind.Name, status)
		}
		if !kind.CanTransition(s.Status, status) {
			return event.Event{}, aggregate.Reject(aggregate.ErrCodeIllegalTransition, s.ID, "%s cannot move from %q to %q", kind.Name, s.Status, status)
		}
		return aggregate.NewEvent(s.ID, s.Version, StatusChanged, event.Payload{keyFrom: s.Status, keyTo: status}, m), nil

	case SetField:
		key, value := text(c.Key), norm.NFC.String(c.Value)
		if key == "" {
			return event.Event{}, aggregate.Reject(aggregate.ErrCodeInvalid, s.ID, "field key is required")
		}
		if s.Fields[key] == value {
			return event.Event{}, aggregate.Reject(aggregate.ErrCodeNoChange, s.ID, "field %q unchanged", key)
		}
		return aggregate.NewEvent(s.ID, s.Version, FieldSet, event.Payload{keyKey: key, keyValue: value}, m), nil

	case Supersede:
		kind, ok := r.catalog.Kind(s.Kind)
		if !ok || !kind.Supersedes {
			return event.Event{}, aggregate.Reject(aggregate.ErrCodeInvalid, s.ID, "%s entities cannot supersede", s.Kind)
		}
		target := norm.NFC.String(c.Target)
		if target == "" {
			return event.Event{}, aggregate.Reject(aggregate.ErrCodeInvalid, s.ID, "supersede target is required")
		}
		if target == s.ID {
			return event.Event{}, aggregate.Reject(aggregate.ErrCodeInvalid, s.ID, "an entity cannot supersede itself")
		}
		if target == s.Supersedes {
			return event.Event{}, aggregate.Reject(aggregate.ErrCodeNoChange, s.ID, "already supersedes %s", target)
		}
		return aggregate.NewEvent(s.ID, s.Version, Superseded, event.Payload{keyTarget: target}, m), nil

	case Remove:
		return aggregate.NewEvent(s.ID, s.Version, Removed, event.Payload{keyReason: norm.NFC.String(c.Reason)}, m), nil
	}

	return event.Event{}, aggregate.Reject(aggregate.ErrCodeInvalid, s.ID, "unsupported command %T", cmd)
}

func (r *Reducer) decideCreate(s State, c Create) (event.Event, error) {
	if s.Exists() {
		return event.Event{}, aggregate.Reject(aggregate.ErrCodeAlreadyExists, s.ID, "entity already exists as a %s", s.Kind)
	}
	if c.ID == "" {
		return event.Event{}, aggregate.Reject(aggregate.ErrCodeInvalid, "", "entity id is required")
	}
	kind, ok := r.catalog.Kind(norm.NFC.String(c.Kind))
	if !ok {
		return event.Event{}, aggregate.Reject(aggregate.ErrCodeInvalid, c.ID, "unknown kind %q", c.Kind)
	}
	title := text(c.Title)
	if title == "" {
		return event.Event{}, aggregate.Reject(aggregate.ErrCodeInvalid, c.ID, "title is required")
	}
	fields := make(map[string]string, len(c.Fields))
	seen := make(map[string]bool, len(c.Fields))
	for k, v := range c.Fields {
		key := text(k)
		if key == "" {
			return event.Event{}, aggregate.Reject(aggregate.ErrCodeInvalid, c.ID, "field key is required")
		}
		if seen[key] {
			return event.Event{}, aggregate.Reject(aggregate.ErrCodeInvalid, c.ID, "field %q given twice", key)
		}
		seen[key] = true
		if v != "" {
			fields[key] = norm.NFC.String(v)
		}
	}
	return aggregate.NewEvent(c.ID, 0, Created, createdPayload(kind.Name, title, kind.Initial, fields), c.Meta), nil
}

// text trims and NFC normalizes a title or field key.
func text(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
