package engine

import "github.com/podkeep/podkeep/internal/store"

// Task is the uniform contract every store task implements. The engine
// depends only on this interface, never on concrete task types.
//
// Issue runs once, in the task's initial stage: it opens the task's
// transaction, issues its first requests and returns both so the engine can
// register them. A task that fails in Issue must return its transaction if
// it already created one, so the engine can roll it back.
//
// Advance consumes one completion event for a request or transaction the
// task is waiting on. It returns the requests issued during the step, and
// Done with an optional Response once the task observed its transaction
// complete. Returning an error resolves the task's caller with that error;
// the engine rolls the transaction back.
type Task interface {
	Name() string
	Issue(gw *store.Gateway) (*store.Txn, []*store.Request, error)
	Advance(ev store.Event) (Progress, error)
}

// Progress is the outcome of one task step.
type Progress struct {
	Requests []*store.Request // requests issued during this step
	Done     bool
	Response any // optional terminal response, nil for none
}

// Result is the single terminal value delivered on a submission's reply
// channel.
type Result struct {
	Response any
	Err      error
}

// Broadcastable marks responses that are pushed to bus subscribers in
// addition to the caller's reply channel.
type Broadcastable interface {
	Topic() string
}

// Exclusive marks tasks that must not overlap with another task holding the
// same key, e.g. two reconciliations of one record. An empty key disables
// the guard.
type Exclusive interface {
	ExclusiveKey() string
}
