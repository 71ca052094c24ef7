package projection

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/chronicle/internal/catalog"
	"github.com/roach88/chronicle/internal/entity"
	"github.com/roach88/chronicle/internal/event"
)

// Projector turns events into projection rows. The same projectors serve
// live traffic (through the dispatcher) and rebuilds (called directly), so
// Apply must depend only on the event and the rows already projected.
type Projector interface {
	Name() string
	Handles() []event.Type
	Apply(ctx context.Context, ev event.Event) error
}

// Backend hands a projector the store to write to. *Store and *Live both
// implement it.
type Backend interface {
	Use(ctx context.Context, fn func(*Store) error) error
}

// All returns the full projector set in the order they must run.
func All(cat *catalog.Catalog, backend Backend) []Projector {
	return []Projector{
		NewEntityProjector(cat, backend),
		NewActivityProjector(backend),
	}
}

// EntityProjector maintains the per-kind entity tables.
//
// Each event is folded onto the current row with the entity reducer, so a
// row always equals the aggregate state at the row's version. The one
// cross-aggregate effect is Superseded, which also stamps superseded_by on
// the target row without changing the target's version.
type EntityProjector struct {
	reducer *entity.Reducer
	backend Backend
}

// NewEntityProjector creates an entity projector writing through backend.
func NewEntityProjector(cat *catalog.Catalog, backend Backend) *EntityProjector {
	return &EntityProjector{reducer: entity.NewReducer(cat), backend: backend}
}

// Name implements Projector.
func (p *EntityProjector) Name() string { return "entities" }

// Handles implements Projector.
func (p *EntityProjector) Handles() []event.Type { return entity.EventTypes }

// Apply implements Projector.
func (p *EntityProjector) Apply(ctx context.Context, ev event.Event) error {
	return p.backend.Use(ctx, func(s *Store) error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			if ev.Type == entity.Created {
				return p.create(ctx, s, tx, ev)
			}
			return p.update(ctx, s, tx, ev)
		})
	})
}

func (p *EntityProjector) create(ctx context.Context, s *Store, tx *sql.Tx, ev event.Event) error {
	state := p.reducer.Apply(p.reducer.Initial(), ev)
	kind, ok := s.catalog.Kind(state.Kind)
	if !ok {
		return fmt.Errorf("%w: %q (entity %s)", ErrUnknownKind, state.Kind, ev.AggregateID)
	}
	return s.insertRow(ctx, tx, kind, rowFromState(state, ""))
}

func (p *EntityProjector) update(ctx context.Context, s *Store, tx *sql.Tx, ev event.Event) error {
	kind, err := s.kindOf(ctx, tx, ev.AggregateID)
	if err != nil {
		return err
	}
	row, err := s.getRow(ctx, tx, kind, ev.AggregateID)
	if err != nil {
		return err
	}

	next := rowFromState(p.reducer.Apply(row.State(), ev), row.SupersededBy)
	if err := s.updateRow(ctx, tx, kind, next); err != nil {
		return err
	}

	if target := entity.SupersededTarget(ev); target != "" {
		targetKind, err := s.kindOf(ctx, tx, target)
		if err != nil {
			return fmt.Errorf("supersede target: %w", err)
		}
		if err := s.setSupersededBy(ctx, tx, targetKind, target, ev.AggregateID); err != nil {
			return err
		}
	}
	return nil
}

// ActivityProjector appends one feed entry per event.
type ActivityProjector struct {
	backend Backend
}

// NewActivityProjector creates an activity projector writing through
// backend.
func NewActivityProjector(backend Backend) *ActivityProjector {
	return &ActivityProjector{backend: backend}
}

// Name implements Projector.
func (p *ActivityProjector) Name() string { return "activity" }

// Handles implements Projector.
func (p *ActivityProjector) Handles() []event.Type { return entity.EventTypes }

// Apply implements Projector.
func (p *ActivityProjector) Apply(ctx context.Context, ev event.Event) error {
	return p.backend.Use(ctx, func(s *Store) error {
		if s.db == nil {
			return ErrClosed
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO activity (event_id, aggregate_id, type, version, at, summary) VALUES (?, ?, ?, ?, ?, ?)`,
			ev.EventID, ev.AggregateID, string(ev.Type), ev.Version, event.FormatTimestamp(ev.Timestamp), entity.Summary(ev))
		if err != nil {
			return fmt.Errorf("record activity %s: %w", ev.EventID, err)
		}
		return nil
	})
}
