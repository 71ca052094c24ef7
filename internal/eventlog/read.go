package eventlog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"

	"github.com/roach88/chronicle/internal/event"
)

// Stream is the full history of one aggregate, oldest first.
type Stream struct {
	AggregateID string
	Events      []event.Event
}

// ReadStream returns every event of the aggregate in version order.
//
// An unknown aggregate yields an empty, non-nil slice and no error.
// A damaged record yields a *StreamCorruptionError.
func (s *Store) ReadStream(ctx context.Context, aggregateID string) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateAggregateID(aggregateID); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, events, err := s.load(aggregateID)
	if err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	return events, nil
}

// Version returns the current max version of the aggregate, 0 when unknown.
func (s *Store) Version(ctx context.Context, aggregateID string) (int64, error) {
	events, err := s.ReadStream(ctx, aggregateID)
	if err != nil {
		return 0, err
	}
	return int64(len(events)), nil
}

// ListAggregates returns the ids of all non-empty streams, sorted.
func (s *Store) ListAggregates(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listAggregates()
}

func (s *Store) listAggregates() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list aggregates: %w", err)
	}

	ids := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, tempPrefix) || !strings.HasSuffix(name, streamExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, streamExt))
	}
	slices.Sort(ids)
	return ids, nil
}

// ReadAll returns every stream in aggregate id order. Rebuild uses it to
// compute the global replay order.
//
// Append only sees one stream, so ReadAll is where an event id shared by two
// streams is caught: it fails with ErrDuplicateEventID.
func (s *Store) ReadAll(ctx context.Context) ([]Stream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.listAggregates()
	if err != nil {
		return nil, err
	}

	streams := make([]Stream, 0, len(ids))
	seen := make(map[string]string)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, events, err := s.load(id)
		if err != nil {
			return nil, fmt.Errorf("read all: %w", err)
		}
		for _, ev := range events {
			if other, ok := seen[ev.EventID]; ok {
				return nil, fmt.Errorf("read all: %w: %s in %s and %s", ErrDuplicateEventID, ev.EventID, other, id)
			}
			seen[ev.EventID] = id
		}
		streams = append(streams, Stream{AggregateID: id, Events: events})
	}
	return streams, nil
}

// load reads and validates the raw stream file. Callers hold s.mu.
func (s *Store) load(aggregateID string) ([]byte, []event.Event, error) {
	data, err := os.ReadFile(s.streamPath(aggregateID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, []event.Event{}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read stream file: %w", err)
	}

	events, err := decodeStream(aggregateID, data)
	if err != nil {
		return nil, nil, err
	}
	return data, events, nil
}

// decodeStream parses a stream file and checks the per-aggregate
// invariants: every record belongs to aggregateID and versions run 1..N.
func decodeStream(aggregateID string, data []byte) ([]event.Event, error) {
	events := []event.Event{}
	if len(data) == 0 {
		return events, nil
	}

	lines := bytes.Split(data, []byte{'\n'})
	// A well-formed file ends with a newline, so the last element is empty.
	if last := lines[len(lines)-1]; len(last) != 0 {
		return nil, &StreamCorruptionError{
			AggregateID: aggregateID,
			Line:        len(lines),
			Err:         errors.New("truncated record: missing trailing newline"),
		}
	}
	lines = lines[:len(lines)-1]

	for i, line := range lines {
		lineNo := i + 1
		if len(bytes.TrimSpace(line)) == 0 {
			return nil, &StreamCorruptionError{AggregateID: aggregateID, Line: lineNo, Err: errors.New("empty record")}
		}
		ev, err := decodeRecord(line)
		if err != nil {
			return nil, &StreamCorruptionError{AggregateID: aggregateID, Line: lineNo, Err: err}
		}
		if ev.AggregateID != aggregateID {
			return nil, &StreamCorruptionError{
				AggregateID: aggregateID,
				Line:        lineNo,
				Err:         fmt.Errorf("record belongs to aggregate %q", ev.AggregateID),
			}
		}
		if ev.Version != int64(lineNo) {
			return nil, &StreamCorruptionError{
				AggregateID: aggregateID,
				Line:        lineNo,
				Err:         fmt.Errorf("version gap: expected %d, found %d", lineNo, ev.Version),
			}
		}
		events = append(events, ev)
	}
	return events, nil
}
