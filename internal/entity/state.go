package entity

import (
	"maps"
	"time"
)

// State is the folded view of one entity. Every kind shares it.
type State struct {
	ID     string
	Kind   string
	Title  string
	Status string
	Fields map[string]string
	// Supersedes is the id this entity replaced, if any.
	Supersedes string
	Removed    bool
	Version    int64
	UpdatedAt  time.Time
}

// StreamVersion implements aggregate.Versioned.
func (s State) StreamVersion() int64 {
	return s.Version
}

// Exists reports whether the entity has been created.
func (s State) Exists() bool {
	return s.Version > 0
}

// clone returns a copy whose Fields map is not shared with s.
func (s State) clone() State {
	out := s
	out.Fields = maps.Clone(s.Fields)
	if out.Fields == nil {
		out.Fields = map[string]string{}
	}
	return out
}
