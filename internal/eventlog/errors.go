package eventlog

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAggregateID indicates an id that cannot name a stream file.
	ErrInvalidAggregateID = errors.New("invalid aggregate id")
	// ErrDuplicateEventID indicates an event id already present in the log.
	// Append checks the target stream; ReadAll checks the whole log.
	ErrDuplicateEventID = errors.New("duplicate event id")
	// ErrTimestampRegression indicates an event older than the last event
	// of its stream.
	ErrTimestampRegression = errors.New("timestamp before previous event")
)

// VersionConflictError reports an append whose version is not the stream's
// next version. The caller must re-read the stream and decide again.
type VersionConflictError struct {
	AggregateID string
	// Expected is the only version the stream would have accepted.
	Expected int64
	// Proposed is the version carried by the rejected event.
	Proposed int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s: expected version %d, got %d", e.AggregateID, e.Expected, e.Proposed)
}

// IsVersionConflict reports whether err is or wraps a *VersionConflictError.
func IsVersionConflict(err error) bool {
	var vc *VersionConflictError
	return errors.As(err, &vc)
}

// StreamCorruptionError reports a persisted record that cannot be trusted.
type StreamCorruptionError struct {
	AggregateID string
	// Line is the 1-based line number of the bad record.
	Line int
	Err  error
}

func (e *StreamCorruptionError) Error() string {
	return fmt.Sprintf("stream %s corrupted at line %d: %v", e.AggregateID, e.Line, e.Err)
}

func (e *StreamCorruptionError) Unwrap() error {
	return e.Err
}

// IsStreamCorruption reports whether err is or wraps a *StreamCorruptionError.
func IsStreamCorruption(err error) bool {
	var sc *StreamCorruptionError
	return errors.As(err, &sc)
}
