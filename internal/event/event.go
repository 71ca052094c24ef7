// Package event defines the immutable envelope stored in the event log and
// delivered to projectors.
//
// An Event is owned by exactly one aggregate. Versions are dense per
// aggregate (1..N) and the log is the only durable truth; everything else is
// derived from it.
package event

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Type is the discriminator tag of an event. It selects both the payload
// schema and the projector handlers that run for it.
type Type string

// Event is a single immutable fact about one aggregate.
type Event struct {
	EventID     string
	AggregateID string
	Type        Type
	Version     int64
	Timestamp   time.Time
	Payload     Payload
}

// Payload holds the type-specific fields of an event.
//
// Values are limited to what canonical JSON accepts: strings, integers,
// booleans, []any and map[string]any. Integers read back from the log are
// json.Number.
type Payload map[string]any

// Errors returned by Validate.
var (
	ErrMissingEventID     = errors.New("event id is required")
	ErrMissingAggregateID = errors.New("aggregate id is required")
	ErrMissingType        = errors.New("event type is required")
	ErrInvalidVersion     = errors.New("event version must be positive")
	ErrMissingTimestamp   = errors.New("event timestamp is required")
)

// Validate checks that the envelope is fully formed.
func (e Event) Validate() error {
	switch {
	case strings.TrimSpace(e.EventID) == "":
		return ErrMissingEventID
	case strings.TrimSpace(e.AggregateID) == "":
		return ErrMissingAggregateID
	case strings.TrimSpace(string(e.Type)) == "":
		return ErrMissingType
	case e.Version < 1:
		return fmt.Errorf("%w: %d", ErrInvalidVersion, e.Version)
	case e.Timestamp.IsZero():
		return ErrMissingTimestamp
	}
	return nil
}

// String returns a short human-readable identity for logs.
func (e Event) String() string {
	return fmt.Sprintf("%s@%d(%s)", e.AggregateID, e.Version, e.Type)
}

// Compare orders events for global replay: timestamp first, then aggregate
// id, then version. Streams are independent, so this is the only ordering
// that lets cross-aggregate references resolve regardless of scan order.
func Compare(a, b Event) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	if c := cmp.Compare(a.AggregateID, b.AggregateID); c != 0 {
		return c
	}
	return cmp.Compare(a.Version, b.Version)
}

// String returns the string value stored under key, or "" when absent or
// not a string.
func (p Payload) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Int returns the integer value stored under key. It accepts the Go integer
// kinds written by commands and the json.Number values read from the log.
func (p Payload) Int(key string) (int64, bool) {
	switch v := p[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// Bool returns the boolean stored under key.
func (p Payload) Bool(key string) bool {
	b, _ := p[key].(bool)
	return b
}

// Map returns the payload as a plain map for encoders that switch on
// map[string]any.
func (p Payload) Map() map[string]any {
	if p == nil {
		return map[string]any{}
	}
	return map[string]any(p)
}

// FormatTimestamp renders t in UTC with full precision. The event log and
// the projection store both use it, so a row built live and the same row
// rebuilt from the log compare equal.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTimestamp is the inverse of FormatTimestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
