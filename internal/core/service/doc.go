// Package service provides the write path of the mailbox store.
//
// It defines the Store interface the redo log applies operations to, the
// Redoable contract every logged operation satisfies, and the Executor
// that runs a mutation through the log:
//
//	begin -> append -> apply -> commit   (abort if apply fails)
//
// Storage implementations live under internal/storage and are injected,
// so the services can be tested against any Store.
package service
