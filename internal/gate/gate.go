// Package gate keeps commands and rebuilds apart.
//
// Commands hold shared entry while they read, decide, append and publish.
// A rebuild needs the projection store to itself; it takes exclusive entry
// only when no command is in flight and never waits for one.
package gate

import (
	"errors"
	"sync"
)

var (
	// ErrBusy is returned by TryExclusive while a command is in flight.
	ErrBusy = errors.New("gate: commands in flight")
	// ErrRebuilding is returned by Enter while a rebuild holds the gate.
	ErrRebuilding = errors.New("gate: rebuild in progress")
)

// Gate is a non-blocking reader/writer switch.
// The zero value is ready to use.
type Gate struct {
	mu        sync.Mutex
	inFlight  int
	exclusive bool
}

// Enter admits a command. Every successful Enter must be paired with Leave.
func (g *Gate) Enter() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.exclusive {
		return ErrRebuilding
	}
	g.inFlight++
	return nil
}

// Leave releases a command admitted by Enter.
func (g *Gate) Leave() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight == 0 {
		panic("gate: Leave without Enter")
	}
	g.inFlight--
}

// TryExclusive claims the gate for a rebuild. It returns a release func on
// success and ErrBusy if a command is in flight or another rebuild holds
// the gate.
func (g *Gate) TryExclusive() (release func(), err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.exclusive || g.inFlight > 0 {
		return nil, ErrBusy
	}
	g.exclusive = true

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.exclusive = false
			g.mu.Unlock()
		})
	}, nil
}

// InFlight returns the number of admitted commands.
func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}
