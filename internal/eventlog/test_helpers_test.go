package eventlog

import (
	"strconv"
	"testing"
	"time"

	"github.com/roach88/chronicle/internal/event"
)

var testBase = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// createTestLog opens a store in a fresh temp directory.
func createTestLog(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	return s
}

// createTestEvent builds a fully-formed event with a timestamp derived from
// its version.
func createTestEvent(aggregateID string, version int64, typ string, payload event.Payload) event.Event {
	if payload == nil {
		payload = event.Payload{}
	}
	return event.Event{
		EventID:     aggregateID + "-evt-" + strconv.FormatInt(version, 10),
		AggregateID: aggregateID,
		Type:        event.Type(typ),
		Version:     version,
		Timestamp:   testBase.Add(time.Duration(version) * time.Second),
		Payload:     payload,
	}
}
