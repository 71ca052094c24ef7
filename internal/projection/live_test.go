package projection

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLive_Swap(t *testing.T) {
	dir := t.TempDir()
	cat := testCatalog(t)
	ctx := context.Background()

	live, err := OpenLive(filepath.Join(dir, "projection.db"), cat)
	require.NoError(t, err)
	defer live.Close()

	applyAll(t, All(cat, live), created("gl-old", "goal", "stale"))

	tempPath := filepath.Join(dir, "projection.db.rebuild-x")
	temp, err := Open(tempPath, cat)
	require.NoError(t, err)
	applyAll(t, All(cat, temp), created("gl-new", "goal", "fresh"))
	require.NoError(t, temp.MarkBuilt(ctx, t0))
	require.NoError(t, temp.Close())

	require.NoError(t, live.Swap(tempPath))

	_, err = live.Get(ctx, "goal", "gl-old")
	assert.ErrorIs(t, err, ErrNotFound)

	row, err := live.Find(ctx, "gl-new")
	require.NoError(t, err)
	assert.Equal(t, "fresh", row.Title)

	built, err := live.Meta(ctx, MetaBuiltAt)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02T03:04:05Z", built)

	_, err = os.Stat(tempPath)
	assert.True(t, os.IsNotExist(err), "temp file is consumed by the swap")

	// Projectors bound to the Live holder write into the swapped store.
	applyAll(t, All(cat, live), created("gl-after", "goal", "after swap", t0.Add(60e9)))
	rows, err := live.List(ctx, "goal", Filter{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestLive_SwapMissingTempKeepsLive(t *testing.T) {
	dir := t.TempDir()
	cat := testCatalog(t)
	ctx := context.Background()

	live, err := OpenLive(filepath.Join(dir, "projection.db"), cat)
	require.NoError(t, err)
	defer live.Close()
	applyAll(t, All(cat, live), created("gl-1", "goal", "survivor"))

	err = live.Swap(filepath.Join(dir, "does-not-exist.db"))
	require.Error(t, err)

	row, err := live.Get(ctx, "goal", "gl-1")
	require.NoError(t, err)
	assert.Equal(t, "survivor", row.Title)
}

func TestLive_SwapUnreadableTempLeavesLiveClosed(t *testing.T) {
	dir := t.TempDir()
	cat := testCatalog(t)
	ctx := context.Background()

	live, err := OpenLive(filepath.Join(dir, "projection.db"), cat)
	require.NoError(t, err)
	defer live.Close()
	applyAll(t, All(cat, live), created("gl-1", "goal", "before"))

	tempPath := filepath.Join(dir, "projection.db.rebuild-bad")
	require.NoError(t, os.WriteFile(tempPath, bytes.Repeat([]byte("not a database "), 512), 0o644))

	err = live.Swap(tempPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reopen projection after swap")
	assert.Contains(t, err.Error(), "run rebuild again")

	_, err = live.Find(ctx, "gl-1")
	assert.ErrorIs(t, err, ErrClosed)

	// A good replacement brings the projection back.
	goodPath := filepath.Join(dir, "projection.db.rebuild-good")
	good, err := Open(goodPath, cat)
	require.NoError(t, err)
	applyAll(t, All(cat, good), created("gl-1", "goal", "after"))
	require.NoError(t, good.Close())

	require.NoError(t, live.Swap(goodPath))
	row, err := live.Find(ctx, "gl-1")
	require.NoError(t, err)
	assert.Equal(t, "after", row.Title)
}

func TestLive_ClosedAndDump(t *testing.T) {
	cat := testCatalog(t)
	ctx := context.Background()
	live, err := OpenLive(filepath.Join(t.TempDir(), "projection.db"), cat)
	require.NoError(t, err)

	applyAll(t, All(cat, live), created("nt-1", "note", "hello"))
	out, err := live.Dump(ctx)
	require.NoError(t, err)
	assert.Contains(t, out, "# notes\n")

	recent, err := live.Recent(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	require.NoError(t, live.Close())
	require.NoError(t, live.Close())
	_, err = live.Dump(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDiscard(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scratch.db")
	s, err := Open(path, testCatalog(t))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	Discard(path)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	Discard(path)
}
