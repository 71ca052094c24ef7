package rebuild

import (
	"errors"
	"fmt"
)

// Failure reports a rebuild that stopped. The live projection was left
// untouched and the temp store discarded.
type Failure struct {
	// Processed counts events fully applied before the failure.
	Processed int
	// EventID is the event being applied, empty when the failure happened
	// before or after replay.
	EventID string
	// Projector names the projector that failed, if any.
	Projector string
	Err       error
}

func (e *Failure) Error() string {
	if e.EventID == "" {
		return fmt.Sprintf("rebuild failed after %d events: %v", e.Processed, e.Err)
	}
	return fmt.Sprintf("rebuild failed after %d events at %s (%s): %v", e.Processed, e.EventID, e.Projector, e.Err)
}

func (e *Failure) Unwrap() error {
	return e.Err
}

// IsFailure reports whether err is or wraps a *Failure.
func IsFailure(err error) bool {
	var f *Failure
	return errors.As(err, &f)
}
