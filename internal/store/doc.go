// Package store provides SQLite-backed durable storage for encoded programs
// and debugger breakpoints.
//
// The program library keeps one row per path:
//   - Programs: the encoded bytes, their format and a JSON summary
//   - Breakpoints: (owner, node) pairs with an enabled flag
//
// # Ordering
//
// Every write takes the next value of a logical sequence. Listings order by
// seq ASC, path ASC COLLATE BINARY so results do not depend on wall time.
//
// # Schema
//
// schema.sql is applied once, when PRAGMA user_version is 0, and the version
// is then recorded. Opening a library written by a newer schema fails with
// ErrSchemaTooNew rather than guessing at its layout. Connections run in WAL
// mode with a 5 second busy timeout, and write transactions begin IMMEDIATE.
//
// The redis subpackage implements the same ProgramStore contract on Redis.
package store
