package dispatch

import (
	"errors"
	"fmt"

	"github.com/roach88/chronicle/internal/event"
)

// ProjectorFailure records one subscriber failing on one event. The event
// stays in the log; the affected projection is stale until the next
// rebuild.
type ProjectorFailure struct {
	Subscriber string
	EventID    string
	Type       event.Type
	Err        error
}

func (e *ProjectorFailure) Error() string {
	return fmt.Sprintf("subscriber %s failed on %s event %s: %v", e.Subscriber, e.Type, e.EventID, e.Err)
}

func (e *ProjectorFailure) Unwrap() error {
	return e.Err
}

// IsProjectorFailure reports whether err is or wraps a *ProjectorFailure.
func IsProjectorFailure(err error) bool {
	var pf *ProjectorFailure
	return errors.As(err, &pf)
}

// Failures flattens the error returned by Publish into its individual
// failures, in delivery order.
func Failures(err error) []*ProjectorFailure {
	if err == nil {
		return nil
	}
	var out []*ProjectorFailure
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			out = append(out, Failures(e)...)
		}
		return out
	}
	var pf *ProjectorFailure
	if errors.As(err, &pf) {
		out = append(out, pf)
	}
	return out
}
