package eventlog

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roach88/chronicle/internal/event"
)

func TestAppend_FirstEvent(t *testing.T) {
	s := createTestLog(t)
	ctx := context.Background()

	res, err := s.Append(ctx, createTestEvent("x", 1, "Created", nil))
	if err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	if !res.Accepted {
		t.Error("Accepted = false, want true")
	}
	if res.NewVersion != 1 {
		t.Errorf("NewVersion = %d, want 1", res.NewVersion)
	}
	if res.Conflict != nil {
		t.Errorf("Conflict = %+v, want nil", res.Conflict)
	}
}

func TestAppend_CanonicalRecord(t *testing.T) {
	s := createTestLog(t)

	ev := event.Event{
		EventID:     "e1",
		AggregateID: "x",
		Type:        "Created",
		Version:     1,
		Timestamp:   testBase,
		Payload:     event.Payload{"title": "first", "kind": "goal"},
	}
	if _, err := s.Append(context.Background(), ev); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(s.Dir(), "x.jsonl"))
	if err != nil {
		t.Fatalf("read stream file: %v", err)
	}

	expected := `{"aggregateId":"x","eventId":"e1","payload":{"kind":"goal","title":"first"},"timestamp":"2026-01-02T03:04:05Z","type":"Created","version":1}` + "\n"
	if string(data) != expected {
		t.Errorf("record =\n%s\nwant\n%s", data, expected)
	}
}

// The conflict scenario: v1 and v2 accepted, a second v2 rejected, stream
// unchanged and still [v1, v2].
func TestAppend_ConflictScenario(t *testing.T) {
	s := createTestLog(t)
	ctx := context.Background()

	if _, err := s.Append(ctx, createTestEvent("x", 1, "Created", nil)); err != nil {
		t.Fatalf("append v1: %v", err)
	}
	if _, err := s.Append(ctx, createTestEvent("x", 2, "Renamed", event.Payload{"title": "a"})); err != nil {
		t.Fatalf("append v2: %v", err)
	}

	path := filepath.Join(s.Dir(), "x.jsonl")
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read before: %v", err)
	}

	dup := createTestEvent("x", 2, "Renamed", event.Payload{"title": "other"})
	dup.EventID = "x-other"
	res, err := s.Append(ctx, dup)
	if !IsVersionConflict(err) {
		t.Fatalf("Append() error = %v, want VersionConflict", err)
	}
	if res.Accepted {
		t.Error("Accepted = true, want false")
	}
	if res.Conflict == nil || res.Conflict.Current != 2 || res.Conflict.Expected != 3 || res.Conflict.Proposed != 2 {
		t.Errorf("Conflict = %+v, want {Current:2 Expected:3 Proposed:2}", res.Conflict)
	}

	var vc *VersionConflictError
	if !errors.As(err, &vc) || vc.AggregateID != "x" {
		t.Errorf("conflict error = %#v", err)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read after: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Error("stream bytes changed after rejected append")
	}

	events, err := s.ReadStream(ctx, "x")
	if err != nil {
		t.Fatalf("ReadStream() failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Version != 1 || events[1].Version != 2 {
		t.Errorf("versions = [%d %d], want [1 2]", events[0].Version, events[1].Version)
	}
	if events[1].Type != "Renamed" || events[1].Payload.String("title") != "a" {
		t.Errorf("events[1] = %+v, want the original Renamed", events[1])
	}
}

func TestAppend_RejectsNonSequentialVersions(t *testing.T) {
	s := createTestLog(t)
	ctx := context.Background()

	for _, v := range []int64{2, 5} {
		if _, err := s.Append(ctx, createTestEvent("y", v, "Created", nil)); !IsVersionConflict(err) {
			t.Errorf("Append(v%d) on empty stream: error = %v, want VersionConflict", v, err)
		}
	}

	if _, err := os.Stat(filepath.Join(s.Dir(), "y.jsonl")); !os.IsNotExist(err) {
		t.Errorf("stream file should not exist after rejected appends, stat err = %v", err)
	}

	if _, err := s.Append(ctx, createTestEvent("y", 1, "Created", nil)); err != nil {
		t.Fatalf("append v1: %v", err)
	}
	if _, err := s.Append(ctx, createTestEvent("y", 1, "Created", nil)); !IsVersionConflict(err) {
		t.Errorf("re-append v1: error = %v, want VersionConflict", err)
	}
}

func TestAppend_InvalidEnvelope(t *testing.T) {
	s := createTestLog(t)
	ctx := context.Background()

	zero := createTestEvent("z", 1, "Created", nil)
	zero.Version = 0
	if _, err := s.Append(ctx, zero); !errors.Is(err, event.ErrInvalidVersion) {
		t.Errorf("version 0: error = %v, want ErrInvalidVersion", err)
	}

	badID := createTestEvent("../escape", 1, "Created", nil)
	if _, err := s.Append(ctx, badID); !errors.Is(err, ErrInvalidAggregateID) {
		t.Errorf("bad id: error = %v, want ErrInvalidAggregateID", err)
	}
}

func TestAppend_UnencodablePayloadWritesNothing(t *testing.T) {
	s := createTestLog(t)

	ev := createTestEvent("f", 1, "Created", event.Payload{"ratio": 0.5})
	if _, err := s.Append(context.Background(), ev); err == nil {
		t.Fatal("Append() with float payload succeeded, want error")
	}

	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("dir has %d entries after failed append, want 0", len(entries))
	}
}

func TestAppend_DuplicateEventID(t *testing.T) {
	s := createTestLog(t)
	ctx := context.Background()

	first := createTestEvent("d", 1, "Created", nil)
	if _, err := s.Append(ctx, first); err != nil {
		t.Fatalf("append v1: %v", err)
	}

	second := createTestEvent("d", 2, "Renamed", nil)
	second.EventID = first.EventID
	if _, err := s.Append(ctx, second); !errors.Is(err, ErrDuplicateEventID) {
		t.Errorf("error = %v, want ErrDuplicateEventID", err)
	}
}

func TestAppend_RejectsEarlierTimestamp(t *testing.T) {
	s := createTestLog(t)
	ctx := context.Background()

	if _, err := s.Append(ctx, createTestEvent("w", 1, "Created", nil)); err != nil {
		t.Fatalf("append v1: %v", err)
	}
	before, err := os.ReadFile(s.streamPath("w"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	stepped := createTestEvent("w", 2, "Renamed", nil)
	stepped.Timestamp = testBase.Add(-time.Minute)
	if _, err := s.Append(ctx, stepped); !errors.Is(err, ErrTimestampRegression) {
		t.Fatalf("error = %v, want ErrTimestampRegression", err)
	}
	after, err := os.ReadFile(s.streamPath("w"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(after) != string(before) {
		t.Error("stream changed after rejected append")
	}

	// The same instant as the previous event is accepted.
	same := createTestEvent("w", 2, "Renamed", nil)
	same.Timestamp = testBase.Add(time.Second)
	if _, err := s.Append(ctx, same); err != nil {
		t.Errorf("append at equal timestamp: %v", err)
	}
}

func TestAppend_LeavesNoTempFiles(t *testing.T) {
	s := createTestLog(t)
	ctx := context.Background()

	for v := int64(1); v <= 3; v++ {
		if _, err := s.Append(ctx, createTestEvent("t", v, "Created", nil)); err != nil {
			t.Fatalf("append v%d: %v", v, err)
		}
	}

	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tempPrefix) {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestAppend_CancelledContext(t *testing.T) {
	s := createTestLog(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Append(ctx, createTestEvent("c", 1, "Created", nil)); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
