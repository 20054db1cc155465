// Package store defines the [Table] interface for versioned counter storage
// and provides two implementations:
//
//   - [MemoryTable]: fast, in-memory entries that are lost on restart.
//   - [SQLiteTable]: persistent entries backed by a SQLite database.
//
// Redis and NATS JetStream tables live in the redis and natskv subpackages.
// [InstrumentedTable] wraps any table with metrics and logging.
//
// Every table reports failures as [*Error], whose [Kind] tells callers
// whether repeating the call can help.
package store
