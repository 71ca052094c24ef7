// Package idgen generates event ids and entity ids.
//
// Event ids are UUIDv7, so they sort by creation time, which helps when
// reading a raw stream file. Entity ids are short nanoid strings with a
// per-kind prefix ("gl-4k9x2m7qpa"); they double as stream file names, so
// the alphabet is lowercase only to stay unique on case-insensitive file
// systems.
package idgen

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	nanoid "github.com/matoous/go-nanoid/v2"
)

// Generator produces unique string ids.
// Implemented by UUIDv7 (production), Sequence and Fixed (tests).
type Generator interface {
	Generate() string
}

// UUIDv7 generates time-sortable UUIDv7 strings.
//
// Thread-safety: UUIDv7 is stateless and safe for concurrent use.
type UUIDv7 struct{}

// Generate returns a new hyphenated UUIDv7.
// Panics if the random source fails, which uuid treats as unrecoverable.
func (UUIDv7) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Alphabet is the character set of the random part of entity ids.
var Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Length is the number of random characters in an entity id.
var Length = 10

// EntityID returns prefix + "-" + a random nanoid.
func EntityID(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	if prefix == "" {
		return id, nil
	}
	return prefix + "-" + id, nil
}

// Sequence returns prefix-1, prefix-2, ... and never runs out.
//
// Thread-safety: Sequence is safe for concurrent use via internal mutex.
type Sequence struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequence creates a sequence generator.
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

// Generate returns the next id.
func (s *Sequence) Generate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return s.prefix + "-" + strconv.Itoa(s.n)
}

// Fixed returns predetermined ids in order.
//
// Thread-safety: Fixed is safe for concurrent use via internal mutex.
type Fixed struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixed creates a generator that returns ids in order.
//
//	gen := NewFixed("a", "b")
//	gen.Generate() // "a"
//	gen.Generate() // "b"
//	gen.Generate() // panic: all ids exhausted
func NewFixed(ids ...string) *Fixed {
	return &Fixed{ids: ids}
}

// Generate returns the next predetermined id.
//
// Panics when exhausted, so a test that creates more entities than it
// planned fails loudly.
func (g *Fixed) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic("idgen.Fixed: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
