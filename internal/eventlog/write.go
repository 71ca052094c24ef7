package eventlog

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/chronicle/internal/event"
)

// Append durably adds ev to its aggregate's stream.
//
// The event is accepted iff ev.Version is the stream's current max version
// plus one (1 for an unknown aggregate). A rejected append returns
// AppendResult{Accepted: false, Conflict: ...} together with a
// *VersionConflictError, and the stream is byte-for-byte unchanged.
//
// ev.Timestamp may equal but not precede the timestamp of the stream's
// last event, so replaying in global order never sees a stream out of
// version order.
//
// Append does not publish the event.
func (s *Store) Append(ctx context.Context, ev event.Event) (AppendResult, error) {
	if err := ctx.Err(); err != nil {
		return AppendResult{}, err
	}
	if err := ev.Validate(); err != nil {
		return AppendResult{}, fmt.Errorf("append: %w", err)
	}
	if err := ValidateAggregateID(ev.AggregateID); err != nil {
		return AppendResult{}, fmt.Errorf("append: %w", err)
	}

	// Encode before taking the lock; an unencodable payload never touches disk.
	line, err := encodeRecord(ev)
	if err != nil {
		return AppendResult{}, fmt.Errorf("append: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, events, err := s.load(ev.AggregateID)
	if err != nil {
		return AppendResult{}, fmt.Errorf("append: %w", err)
	}

	current := int64(len(events))
	if ev.Version != current+1 {
		conflict := &ExpectedVersion{Current: current, Expected: current + 1, Proposed: ev.Version}
		return AppendResult{Accepted: false, Conflict: conflict}, &VersionConflictError{
			AggregateID: ev.AggregateID,
			Expected:    conflict.Expected,
			Proposed:    ev.Version,
		}
	}
	for _, prev := range events {
		if prev.EventID == ev.EventID {
			return AppendResult{}, fmt.Errorf("append: %w: %s", ErrDuplicateEventID, ev.EventID)
		}
	}
	if current > 0 {
		if last := events[current-1].Timestamp; ev.Timestamp.Before(last) {
			return AppendResult{}, fmt.Errorf("append %s: %w: %s < %s",
				ev, ErrTimestampRegression, event.FormatTimestamp(ev.Timestamp), event.FormatTimestamp(last))
		}
	}

	if err := s.writeAtomic(s.streamPath(ev.AggregateID), existing, line); err != nil {
		return AppendResult{}, fmt.Errorf("append %s: %w", ev, err)
	}

	return AppendResult{Accepted: true, NewVersion: ev.Version}, nil
}

// writeAtomic replaces path with existing+line using write-then-rename.
func (s *Store) writeAtomic(path string, existing, line []byte) (err error) {
	tmp, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(existing); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if _, err = tmp.Write(line); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("commit stream: %w", err)
	}
	return syncDir(s.dir)
}

// syncDir makes the rename itself durable.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir for sync: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync dir: %w", err)
	}
	return nil
}
