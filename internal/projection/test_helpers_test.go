package projection

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/catalog"
	"github.com/roach88/chronicle/internal/entity"
	"github.com/roach88/chronicle/internal/event"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	return cat
}

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "projection.db"), testCatalog(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// ev builds an event at t0 + n seconds, where n is the version unless at
// is given.
func ev(agg string, version int64, typ event.Type, payload event.Payload, at ...time.Time) event.Event {
	ts := t0.Add(time.Duration(version) * time.Second)
	if len(at) > 0 {
		ts = at[0]
	}
	return event.Event{
		EventID:     fmt.Sprintf("%s-%d", agg, version),
		AggregateID: agg,
		Type:        typ,
		Version:     version,
		Timestamp:   ts,
		Payload:     payload,
	}
}

func created(agg, kind, title string, at ...time.Time) event.Event {
	return ev(agg, 1, entity.Created, event.Payload{
		"kind": kind, "title": title, "status": mustInitial(kind), "fields": map[string]any{},
	}, at...)
}

func mustInitial(kind string) string {
	cat, err := catalog.Default()
	if err != nil {
		panic(err)
	}
	k, ok := cat.Kind(kind)
	if !ok {
		return "unknown"
	}
	return k.Initial
}

func applyAll(t *testing.T, projectors []Projector, events ...event.Event) {
	t.Helper()
	for _, e := range events {
		for _, p := range projectors {
			require.NoError(t, p.Apply(context.Background(), e), "%s on %s", p.Name(), e)
		}
	}
}
