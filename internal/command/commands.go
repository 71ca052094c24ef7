package command

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/chronicle/internal/aggregate"
	"github.com/roach88/chronicle/internal/entity"
)

// Create starts a new entity of kind, naming it from the kind's prefix.
func (s *Service) Create(ctx context.Context, kind, title string, fields map[string]string) (Outcome, error) {
	k, ok := s.catalog.Kind(kind)
	if !ok {
		return Outcome{}, aggregate.Reject(aggregate.ErrCodeInvalid, "", "unknown kind %q", kind)
	}
	id, err := s.entityID(k.Prefix)
	if err != nil {
		return Outcome{}, fmt.Errorf("create %s: %w", kind, err)
	}
	return s.CreateWithID(ctx, id, kind, title, fields)
}

// CreateWithID starts a new entity under a caller-chosen id.
func (s *Service) CreateWithID(ctx context.Context, id, kind, title string, fields map[string]string) (Outcome, error) {
	return s.Execute(ctx, id, entity.Create{ID: id, Kind: kind, Title: title, Fields: fields})
}

// Rename changes an entity's title.
func (s *Service) Rename(ctx context.Context, id, title string) (Outcome, error) {
	return s.Execute(ctx, id, entity.Rename{Title: title})
}

// SetStatus moves an entity to status.
func (s *Service) SetStatus(ctx context.Context, id, status string) (Outcome, error) {
	return s.Execute(ctx, id, entity.SetStatus{Status: status})
}

// SetField sets or, with an empty value, clears a field.
func (s *Service) SetField(ctx context.Context, id, key, value string) (Outcome, error) {
	return s.Execute(ctx, id, entity.SetField{Key: key, Value: value})
}

// Supersede records that id replaces target. The target must be a live
// entity of the same kind; it is checked under the command lock, and the
// Superseded event is stamped after the target's last event.
func (s *Service) Supersede(ctx context.Context, id, target string) (Outcome, error) {
	return s.execute(ctx, id, entity.Supersede{Target: target}, func(ctx context.Context, source entity.State) (time.Time, error) {
		if target == id {
			// Decide rejects this with the right code.
			return time.Time{}, nil
		}
		dest, err := s.load(ctx, target)
		if err != nil {
			return time.Time{}, err
		}
		switch {
		case !dest.Exists():
			return time.Time{}, aggregate.Reject(aggregate.ErrCodeNotFound, target, "supersede target does not exist")
		case dest.Removed:
			return time.Time{}, aggregate.Reject(aggregate.ErrCodeRemoved, target, "supersede target was removed")
		case source.Exists() && source.Kind != dest.Kind:
			return time.Time{}, aggregate.Reject(aggregate.ErrCodeInvalid, id, "a %s cannot supersede a %s", source.Kind, dest.Kind)
		}
		return dest.UpdatedAt, nil
	})
}

// Remove retires an entity.
func (s *Service) Remove(ctx context.Context, id, reason string) (Outcome, error) {
	return s.Execute(ctx, id, entity.Remove{Reason: reason})
}
