// Package tasks holds the concrete task state machines the engine runs:
// reconciliations that merge remote values into the local cache, meta
// updates that touch only the local-owned portion of a record, enclosure
// blob storage, queries, and configuration reads and writes.
//
// Every task follows the same shape. Issue opens a transaction scoped to
// exactly the stores it needs and fires its first reads; Advance consumes
// one completion event, moves the task through its stages, and commits once
// the last write is in. Tasks only report success after observing their
// transaction's completion event, so a delivered response always means the
// data is durable. Any failed request surfaces as an error from Advance and
// the engine rolls the transaction back.
//
// Reconciliations never overwrite local Meta and never write at all when
// the incoming remote value is not strictly newer than the stored one, so
// re-running a sync against unchanged remote data is a no-op on disk.
package tasks
