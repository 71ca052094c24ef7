// Package eventlog provides the durable append-only event store.
//
// Each aggregate owns one stream file:
//
//	<dir>/<aggregateId>.jsonl
//
// holding one canonical JSON record per line, oldest first:
//
//	{"aggregateId":"...","eventId":"...","payload":{...},"timestamp":"...","type":"...","version":1}
//
// # Guarantees
//
// Optimistic concurrency:
//   - Append accepts an event only when event.Version == current + 1
//   - Anything else is a *VersionConflictError and the file is untouched
//   - No locks are held across calls; callers re-read and retry
//
// Atomic persistence:
//   - The next stream image (existing bytes + new record) is written to a
//     temp file in the same directory, fsynced, then renamed over the stream
//   - The directory is fsynced after the rename
//   - A crash leaves either the old file or the new one, never a partial record
//
// Loud corruption:
//   - A record that fails to parse, a missing trailing newline, a foreign
//     aggregate id, or a version gap is a *StreamCorruptionError
//   - Nothing is skipped or truncated on read
//
// The store never notifies projectors. Publishing is the caller's job after
// a successful Append.
package eventlog
