package projection

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/roach88/chronicle/internal/catalog"
)

// Live is the projection store the application reads and projects into.
//
// Queries and projector writes hold a shared lock; Swap holds it
// exclusively while it replaces the database file, so nobody observes a
// half-swapped store.
type Live struct {
	mu      sync.RWMutex
	path    string
	catalog *catalog.Catalog
	store   *Store
}

// OpenLive opens (or creates) the live store at path.
func OpenLive(path string, cat *catalog.Catalog) (*Live, error) {
	s, err := Open(path, cat)
	if err != nil {
		return nil, err
	}
	return &Live{path: path, catalog: cat, store: s}, nil
}

// Path returns the live database path.
func (l *Live) Path() string {
	return l.path
}

// Catalog returns the kinds of the live store.
func (l *Live) Catalog() *catalog.Catalog {
	return l.catalog
}

// Use runs fn against the current store under the shared lock.
func (l *Live) Use(ctx context.Context, fn func(*Store) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.store == nil {
		return ErrClosed
	}
	return fn(l.store)
}

// Swap replaces the live database with the closed database at tempPath.
//
// The current store is closed, its WAL sidecars removed, and tempPath is
// renamed over the live path. If the rename fails the previous store is
// reopened and stays live. If the renamed file cannot be opened the live
// store stays closed, and reads return ErrClosed, until a later Swap
// succeeds.
func (l *Live) Swap(tempPath string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.store != nil {
		if err := l.store.Close(); err != nil {
			return fmt.Errorf("close live projection: %w", err)
		}
		l.store = nil
	}
	removeSidecars(l.path)

	if err := os.Rename(tempPath, l.path); err != nil {
		reopened, openErr := Open(l.path, l.catalog)
		if openErr == nil {
			l.store = reopened
		}
		return errors.Join(fmt.Errorf("swap projection: %w", err), openErr)
	}
	removeSidecars(tempPath)
	if err := syncDir(filepath.Dir(l.path)); err != nil {
		slog.Warn("projection dir sync failed after swap", "error", err)
	}

	s, err := Open(l.path, l.catalog)
	if err != nil {
		slog.Error("projection unavailable after swap; run rebuild again", "path", l.path, "error", err)
		return fmt.Errorf("reopen projection after swap: %w; reads fail until rebuild is run again", err)
	}
	l.store = s
	slog.Debug("projection swapped", "path", l.path, "from", tempPath)
	return nil
}

// Close closes the live store.
func (l *Live) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.store == nil {
		return nil
	}
	err := l.store.Close()
	l.store = nil
	return err
}

// Get returns a row by kind and id.
func (l *Live) Get(ctx context.Context, kind, id string) (row Row, err error) {
	err = l.Use(ctx, func(s *Store) error {
		row, err = s.Get(ctx, kind, id)
		return err
	})
	return row, err
}

// Find returns a row by id.
func (l *Live) Find(ctx context.Context, id string) (row Row, err error) {
	err = l.Use(ctx, func(s *Store) error {
		row, err = s.Find(ctx, id)
		return err
	})
	return row, err
}

// List returns the rows of a kind.
func (l *Live) List(ctx context.Context, kind string, f Filter) (rows []Row, err error) {
	err = l.Use(ctx, func(s *Store) error {
		rows, err = s.List(ctx, kind, f)
		return err
	})
	return rows, err
}

// Recent returns the latest activity entries.
func (l *Live) Recent(ctx context.Context, limit int) (entries []Activity, err error) {
	err = l.Use(ctx, func(s *Store) error {
		entries, err = s.Recent(ctx, limit)
		return err
	})
	return entries, err
}

// Dump renders the live store.
func (l *Live) Dump(ctx context.Context) (out string, err error) {
	err = l.Use(ctx, func(s *Store) error {
		out, err = s.Dump(ctx)
		return err
	})
	return out, err
}

// Meta returns a projection_meta entry of the live store.
func (l *Live) Meta(ctx context.Context, key string) (value string, err error) {
	err = l.Use(ctx, func(s *Store) error {
		value, err = s.Meta(ctx, key)
		return err
	})
	return value, err
}

// removeSidecars deletes the WAL and shared-memory files of a closed
// database.
func removeSidecars(path string) {
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("remove projection sidecar", "path", path+suffix, "error", err)
		}
	}
}

// Discard removes a closed temp database and its sidecars.
func Discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("remove projection", "path", path, "error", err)
	}
	removeSidecars(path)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
