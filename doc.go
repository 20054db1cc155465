// Package kvcounter keeps named int64 counters in a remote versioned
// key-value table and updates them atomically without server-side
// transactions.
//
// # Key Concepts
//
//   - [store.Table] is the versioned table. Every read returns the entry's
//     version; a conditional write only succeeds if that version is still
//     current. In-memory, SQLite, Redis and NATS JetStream tables are
//     provided.
//   - [Counters] runs init, get, increment and decrement on top of a table.
//     Increments re-read and retry on version conflicts, so concurrent
//     writers never lose each other's updates.
//   - [backoff.Policy] bounds the retries: how long to wait between
//     attempts and how many attempts to make.
//   - [retry.Do] is the generic executor behind every retried operation.
//
// # Quick Start
//
//	counters := kvcounter.New(store.NewMemoryTable())
//	defer counters.Close()
//
//	ctx := context.Background()
//	counters.InitCounter(ctx, "visits", 0)
//	counters.Increment(ctx, "visits", 5)
//	v, _ := counters.GetValue(ctx, "visits") // 5
//
// A counter must be initialized before it is read or updated; otherwise the
// operation fails with [ErrKeyDoesNotExist]. Transient table errors are
// retried, and when the policy runs out the last one is returned as is.
package kvcounter
