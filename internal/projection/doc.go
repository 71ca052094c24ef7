// Package projection maintains the queryable SQLite views derived from the
// event log.
//
// Nothing here is a source of truth. Every table can be dropped and
// regenerated by replaying the log (see package rebuild), so the schema
// carries no migration path beyond creating what is missing.
//
// Layout:
//   - one table per catalog kind (goals, decisions, ...) holding the latest
//     state of each entity, tagged with the version and timestamp of the
//     last event applied to it
//   - projection_index mapping entity id to kind
//   - activity, one row per event, for the recent-activity feed
//   - projection_meta with the schema version and last rebuild time
//
// Writers go through a Projector; readers go through Live, which can swap
// the whole database file for a freshly rebuilt one.
package projection
