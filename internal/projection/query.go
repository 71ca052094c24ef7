package projection

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/chronicle/internal/catalog"
	"github.com/roach88/chronicle/internal/event"
)

// Filter narrows List.
type Filter struct {
	// Status keeps only rows in this status when set.
	Status string
	// IncludeRemoved keeps removed rows.
	IncludeRemoved bool
	// Limit caps the result when positive.
	Limit int
}

// Activity is one entry of the activity feed.
type Activity struct {
	EventID     string
	AggregateID string
	Type        event.Type
	Version     int64
	At          string
	Summary     string
}

func (s *Store) kind(name string) (catalog.Kind, error) {
	kind, ok := s.catalog.Kind(name)
	if !ok {
		return catalog.Kind{}, fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
	return kind, nil
}

// Get returns the row of entity id of the given kind.
func (s *Store) Get(ctx context.Context, kindName, id string) (Row, error) {
	if s.db == nil {
		return Row{}, ErrClosed
	}
	kind, err := s.kind(kindName)
	if err != nil {
		return Row{}, err
	}
	return s.getRow(ctx, s.db, kind, id)
}

// Find returns the row of entity id, whatever its kind.
func (s *Store) Find(ctx context.Context, id string) (Row, error) {
	if s.db == nil {
		return Row{}, ErrClosed
	}
	kind, err := s.kindOf(ctx, s.db, id)
	if err != nil {
		return Row{}, err
	}
	return s.getRow(ctx, s.db, kind, id)
}

// List returns the rows of a kind ordered by id.
func (s *Store) List(ctx context.Context, kindName string, f Filter) ([]Row, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	kind, err := s.kind(kindName)
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if !f.IncludeRemoved {
		where = append(where, "removed = 0")
	}

	query := fmt.Sprintf(`SELECT %s FROM %s`, rowColumns, kind.Table)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind.Name, err)
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		r, err := scanRow(kind.Name, rows)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", kind.Name, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", kind.Name, err)
	}
	return out, nil
}

// Count returns the number of rows per kind, removed rows included.
func (s *Store) Count(ctx context.Context) (map[string]int, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	counts := make(map[string]int)
	for _, kind := range s.catalog.Kinds() {
		var n int
		if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, kind.Table)).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", kind.Name, err)
		}
		counts[kind.Name] = n
	}
	return counts, nil
}

// Recent returns the latest activity entries, newest first. A limit of
// zero returns everything.
func (s *Store) Recent(ctx context.Context, limit int) ([]Activity, error) {
	return s.activity(ctx, "DESC", limit)
}

func (s *Store) activity(ctx context.Context, dir string, limit int) ([]Activity, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	query := fmt.Sprintf(`SELECT event_id, aggregate_id, type, version, at, summary FROM activity
		ORDER BY at %[1]s, aggregate_id %[1]s, version %[1]s`, dir)
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()

	out := []Activity{}
	for rows.Next() {
		var (
			a   Activity
			typ string
		)
		if err := rows.Scan(&a.EventID, &a.AggregateID, &typ, &a.Version, &a.At, &a.Summary); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Type = event.Type(typ)
		out = append(out, a)
	}
	return out, rows.Err()
}
