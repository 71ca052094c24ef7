package eventlog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

const (
	streamExt  = ".jsonl"
	tempPrefix = ".append-"
)

// aggregateIDPattern restricts ids to names that are safe as file names on
// every platform we run on.
var aggregateIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Store is the append-only event log. One file per aggregate.
//
// Store is safe for concurrent use within one process, but the system runs
// a single writer: the mutex only keeps a reader from racing a rename.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// AppendResult describes the outcome of Append.
type AppendResult struct {
	Accepted   bool
	NewVersion int64
	Conflict   *ExpectedVersion
}

// ExpectedVersion is attached to a rejected append.
type ExpectedVersion struct {
	// Current is the stream's max version at the time of the append.
	Current int64
	// Expected is Current + 1, the only acceptable version.
	Expected int64
	// Proposed is what the caller sent.
	Proposed int64
}

// Open creates or opens an event log rooted at dir.
//
// Temp files left behind by an append interrupted before its rename are
// removed; they were never visible to readers.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create event log dir: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan event log dir: %w", err)
	}
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove stale temp file: %w", err)
		}
		slog.Debug("removed interrupted append", "path", path)
	}

	return &Store{dir: dir}, nil
}

// Dir returns the directory holding the stream files.
func (s *Store) Dir() string {
	return s.dir
}

// ValidateAggregateID reports whether id can name a stream.
func ValidateAggregateID(id string) error {
	if !aggregateIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidAggregateID, id)
	}
	return nil
}

func (s *Store) streamPath(id string) string {
	return filepath.Join(s.dir, id+streamExt)
}
