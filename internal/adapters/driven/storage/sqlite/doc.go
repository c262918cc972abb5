// Package sqlite records preprocessing runs in a SQLite database.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements driven.HistoryStore.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory and embedded at compile time.
//
// # Data Location
//
// By default, the database is stored at <user cache dir>/prequery-preprocess/history.db
//
// # Thread Safety
//
// All operations are safe for concurrent use. Writes are serialised over a
// single connection; SQLite runs in WAL mode.
package sqlite
