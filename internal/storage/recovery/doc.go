// Package recovery replays the redo log into a store after a restart.
//
// Recovery makes two passes over the retained segments:
//
//	Pass 1  classify every transaction by its control records, keeping
//	        only the positions of its operations
//	Pass 2  re-read and apply the operations of committed transactions,
//	        in commit order and, within a transaction, in log order
//
// Aborted transactions and transactions without a commit record are
// skipped. Deferred operations are queued and applied by DrainDeferred
// after Pass 2, so recovery does not wait for them.
package recovery
