package projection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/chronicle/internal/canonical"
	"github.com/roach88/chronicle/internal/catalog"
	"github.com/roach88/chronicle/internal/entity"
	"github.com/roach88/chronicle/internal/event"
)

// Row is the projected state of one entity.
type Row struct {
	Kind         string
	ID           string
	Title        string
	Status       string
	Fields       map[string]string
	Supersedes   string
	SupersededBy string
	Removed      bool
	Version      int64
	UpdatedAt    time.Time
}

// State converts the row back into the aggregate state it mirrors.
func (r Row) State() entity.State {
	fields := make(map[string]string, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return entity.State{
		ID:         r.ID,
		Kind:       r.Kind,
		Title:      r.Title,
		Status:     r.Status,
		Fields:     fields,
		Supersedes: r.Supersedes,
		Removed:    r.Removed,
		Version:    r.Version,
		UpdatedAt:  r.UpdatedAt,
	}
}

func rowFromState(s entity.State, supersededBy string) Row {
	return Row{
		Kind:         s.Kind,
		ID:           s.ID,
		Title:        s.Title,
		Status:       s.Status,
		Fields:       s.Fields,
		Supersedes:   s.Supersedes,
		SupersededBy: supersededBy,
		Removed:      s.Removed,
		Version:      s.Version,
		UpdatedAt:    s.UpdatedAt,
	}
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const rowColumns = `id, title, status, fields, supersedes, superseded_by, removed, version, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(kind string, sc rowScanner) (Row, error) {
	var (
		r         Row
		fields    string
		removed   int
		updatedAt string
	)
	if err := sc.Scan(&r.ID, &r.Title, &r.Status, &fields, &r.Supersedes, &r.SupersededBy, &removed, &r.Version, &updatedAt); err != nil {
		return Row{}, err
	}
	r.Kind = kind
	r.Removed = removed != 0
	r.Fields = map[string]string{}
	if err := canonical.Decode([]byte(fields), &r.Fields); err != nil {
		return Row{}, fmt.Errorf("decode fields of %s: %w", r.ID, err)
	}
	at, err := event.ParseTimestamp(updatedAt)
	if err != nil {
		return Row{}, fmt.Errorf("parse updated_at of %s: %w", r.ID, err)
	}
	r.UpdatedAt = at
	return r, nil
}

func encodeFields(fields map[string]string) (string, error) {
	if fields == nil {
		fields = map[string]string{}
	}
	b, err := canonical.MarshalCanonical(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	return string(b), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// kindOf resolves the kind of an entity through projection_index.
func (s *Store) kindOf(ctx context.Context, q querier, id string) (catalog.Kind, error) {
	var name string
	err := q.QueryRowContext(ctx, `SELECT kind FROM projection_index WHERE id = ?`, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Kind{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return catalog.Kind{}, fmt.Errorf("lookup kind of %s: %w", id, err)
	}
	kind, ok := s.catalog.Kind(name)
	if !ok {
		return catalog.Kind{}, fmt.Errorf("%w: %s", ErrUnknownKind, name)
	}
	return kind, nil
}

func (s *Store) getRow(ctx context.Context, q querier, kind catalog.Kind, id string) (Row, error) {
	row := q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, rowColumns, kind.Table), id)
	r, err := scanRow(kind.Name, row)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, fmt.Errorf("%w: %s %s", ErrNotFound, kind.Name, id)
	}
	if err != nil {
		return Row{}, fmt.Errorf("get %s %s: %w", kind.Name, id, err)
	}
	return r, nil
}

func (s *Store) insertRow(ctx context.Context, q querier, kind catalog.Kind, r Row) error {
	fields, err := encodeFields(r.Fields)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, kind.Table, rowColumns),
		r.ID, r.Title, r.Status, fields, r.Supersedes, r.SupersededBy, boolInt(r.Removed), r.Version,
		event.FormatTimestamp(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert %s %s: %w", kind.Name, r.ID, err)
	}
	_, err = q.ExecContext(ctx, `INSERT INTO projection_index (id, kind) VALUES (?, ?)`, r.ID, kind.Name)
	if err != nil {
		return fmt.Errorf("index %s: %w", r.ID, err)
	}
	return nil
}

func (s *Store) updateRow(ctx context.Context, q querier, kind catalog.Kind, r Row) error {
	fields, err := encodeFields(r.Fields)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET title = ?, status = ?, fields = ?, supersedes = ?, removed = ?, version = ?, updated_at = ? WHERE id = ?`, kind.Table),
		r.Title, r.Status, fields, r.Supersedes, boolInt(r.Removed), r.Version,
		event.FormatTimestamp(r.UpdatedAt), r.ID)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", kind.Name, r.ID, err)
	}
	return expectOneRow(res, kind.Name, r.ID)
}

func (s *Store) setSupersededBy(ctx context.Context, q querier, kind catalog.Kind, target, by string) error {
	res, err := q.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET superseded_by = ? WHERE id = ?`, kind.Table), by, target)
	if err != nil {
		return fmt.Errorf("mark %s superseded: %w", target, err)
	}
	return expectOneRow(res, kind.Name, target)
}

func expectOneRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return nil
}
