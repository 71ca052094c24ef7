package projection

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/catalog"
)

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpen_TablePerKind(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, kind := range s.Catalog().Kinds() {
		var name string
		err := s.db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, kind.Table).Scan(&name)
		require.NoError(t, err, kind.Table)
	}

	version, err := s.Meta(ctx, MetaSchemaVersion)
	require.NoError(t, err)
	assert.Equal(t, "1", version)

	built, err := s.Meta(ctx, MetaBuiltAt)
	require.NoError(t, err)
	assert.Empty(t, built)

	require.NoError(t, s.MarkBuilt(ctx, t0))
	built, err = s.Meta(ctx, MetaBuiltAt)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02T03:04:05Z", built)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.db")
	cat := testCatalog(t)

	s, err := Open(path, cat)
	require.NoError(t, err)
	applyAll(t, All(cat, s), created("gl-1", "goal", "keep me"))
	require.NoError(t, s.Close())

	s, err = Open(path, cat)
	require.NoError(t, err)
	defer s.Close()

	row, err := s.Get(context.Background(), "goal", "gl-1")
	require.NoError(t, err)
	assert.Equal(t, "keep me", row.Title)
}

func TestOpen_ReservedTable(t *testing.T) {
	cat, err := catalog.New(map[string]catalog.Kind{
		"clash": {Table: "activity", Prefix: "cl", Initial: "a", Transitions: map[string][]string{"a": nil}},
	})
	require.NoError(t, err)

	_, err = Open(filepath.Join(t.TempDir(), "p.db"), cat)
	assert.ErrorContains(t, err, "reserved")
}

func TestClosedStore(t *testing.T) {
	s := createTestStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Get(context.Background(), "goal", "gl-1")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Use(context.Background(), func(*Store) error { return nil }), ErrClosed)
}
