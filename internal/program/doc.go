// Package program holds the persisted node-graph data model: pins, nodes,
// connections, graphs, functions, variables and signals.
//
// Nodes live in an arena keyed by integer id. Pins refer to other pins by
// PinRef, never by pointer, so there are no ownership cycles between nodes,
// pins and the program.
//
// Concurrency model:
//   - Program is single-writer: every edit takes the write lock
//   - Readers (running chains, the builder, the codec) work on an immutable
//     Snapshot obtained from Program.Snapshot; an edit never mutates a
//     snapshot that was already handed out
//   - Subscribers registered with Subscribe are notified synchronously after
//     each edit, outside the lock
package program
