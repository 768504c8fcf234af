// Package storage wires the mailbox store to its redo log.
//
// An Engine opens the key-value engine and the store over it, replays the
// log into the store, then opens the log writer the live write path
// appends to. A background loop checkpoints: it syncs the store and
// compacts segments whose effects are durable.
//
// Startup order:
//
//   - KV engine and mailbox store
//   - Recovery (Pass 1 classifies, Pass 2 applies committed transactions)
//   - Log writer, which seals a torn tail and aborts dangling transactions
//   - Deferred operations, drained in the background
package storage
