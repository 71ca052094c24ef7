package eventlog

import (
	"errors"
	"fmt"

	"github.com/roach88/chronicle/internal/canonical"
	"github.com/roach88/chronicle/internal/event"
)

// record is the on-disk shape of one event. Field names are the stable
// wire format; type selects the payload schema.
type record struct {
	EventID     string         `json:"eventId"`
	AggregateID string         `json:"aggregateId"`
	Type        string         `json:"type"`
	Version     int64          `json:"version"`
	Timestamp   string         `json:"timestamp"`
	Payload     map[string]any `json:"payload"`
}

// encodeRecord converts an event to one canonical JSON line, newline included.
func encodeRecord(ev event.Event) ([]byte, error) {
	data, err := canonical.MarshalCanonical(map[string]any{
		"eventId":     ev.EventID,
		"aggregateId": ev.AggregateID,
		"type":        string(ev.Type),
		"version":     ev.Version,
		"timestamp":   event.FormatTimestamp(ev.Timestamp),
		"payload":     ev.Payload.Map(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode record %s: %w", ev, err)
	}
	return append(data, '\n'), nil
}

// decodeRecord parses one line (without its newline) back into an event.
func decodeRecord(line []byte) (event.Event, error) {
	var rec record
	if err := canonical.Decode(line, &rec); err != nil {
		return event.Event{}, fmt.Errorf("decode record: %w", err)
	}
	ts, err := event.ParseTimestamp(rec.Timestamp)
	if err != nil {
		return event.Event{}, fmt.Errorf("decode timestamp: %w", err)
	}
	ev := event.Event{
		EventID:     rec.EventID,
		AggregateID: rec.AggregateID,
		Type:        event.Type(rec.Type),
		Version:     rec.Version,
		Timestamp:   ts,
		Payload:     event.Payload(rec.Payload),
	}
	if ev.Payload == nil {
		return event.Event{}, errors.New("decode record: payload missing")
	}
	if err := ev.Validate(); err != nil {
		return event.Event{}, fmt.Errorf("decode record: %w", err)
	}
	return ev, nil
}
