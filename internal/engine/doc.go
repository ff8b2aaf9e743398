// Package engine runs store tasks to completion, one non-blocking step at a
// time, on a single dispatch goroutine.
//
// A [Task] is an explicit state machine: Issue opens its transaction and
// returns its first requests, Advance consumes one completion [store.Event]
// and either issues more requests, waits, or finishes with a response. The
// engine correlates every outstanding request and transaction id back to the
// task that issued it, so exactly one Advance runs per completion and no
// task is ever stepped twice for the same event. An event whose correlation
// id is unknown is an internal-consistency defect and panics rather than
// being ignored.
//
// Tasks submitted before the store has finished opening are buffered and
// drained in submission order once the [store.StoreReady] event arrives.
// Every submission resolves exactly once on its reply channel; responses
// implementing [Broadcastable] are additionally published on the bus to all
// subscribers except the submitting caller.
//
// Failures never retry here: a failed request or an aborted transaction
// resolves the owning task with an error and the caller decides whether to
// re-enqueue. Tasks implementing [Exclusive] are rejected up front with
// [shared.ErrReconcileBusy] while another task holds the same key, closing
// the write-interleaving gap two overlapping reconciliations of one record
// would otherwise have.
package engine
