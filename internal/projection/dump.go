package projection

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/chronicle/internal/canonical"
	"github.com/roach88/chronicle/internal/event"
)

// Dump renders every projected row as deterministic text: one section per
// non-empty kind table (by kind name), rows by id as canonical JSON, then
// the activity feed in replay order. projection_meta is left out; it
// records when a store was built, not what it contains.
//
// Two stores built from the same events dump identically, which is what
// verify and the golden scenario tests compare.
func (s *Store) Dump(ctx context.Context) (string, error) {
	var b strings.Builder

	for _, kind := range s.catalog.Kinds() {
		rows, err := s.List(ctx, kind.Name, Filter{IncludeRemoved: true})
		if err != nil {
			return "", err
		}
		if len(rows) == 0 {
			continue
		}
		fmt.Fprintf(&b, "# %s\n", kind.Table)
		for _, r := range rows {
			line, err := canonical.MarshalCanonical(map[string]any{
				"id":            r.ID,
				"title":         r.Title,
				"status":        r.Status,
				"fields":        r.Fields,
				"supersedes":    r.Supersedes,
				"superseded_by": r.SupersededBy,
				"removed":       r.Removed,
				"version":       r.Version,
				"updated_at":    event.FormatTimestamp(r.UpdatedAt),
			})
			if err != nil {
				return "", fmt.Errorf("dump %s %s: %w", kind.Name, r.ID, err)
			}
			b.Write(line)
			b.WriteByte('\n')
		}
	}

	entries, err := s.activity(ctx, "ASC", 0)
	if err != nil {
		return "", err
	}
	if len(entries) > 0 {
		b.WriteString("# activity\n")
	}
	for _, a := range entries {
		line, err := canonical.MarshalCanonical(map[string]any{
			"event_id":     a.EventID,
			"aggregate_id": a.AggregateID,
			"type":         string(a.Type),
			"version":      a.Version,
			"at":           a.At,
			"summary":      a.Summary,
		})
		if err != nil {
			return "", fmt.Errorf("dump activity %s: %w", a.EventID, err)
		}
		b.Write(line)
		b.WriteByte('\n')
	}

	return b.String(), nil
}
