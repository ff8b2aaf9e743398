package engine

import "github.com/podkeep/podkeep/internal/store"

// registry correlates outstanding request and transaction ids with the id
// of the task that issued them. Request entries are consumed on delivery;
// transaction entries live until the task is cleaned up, because a finished
// task's transaction event is what triggers its removal.
type registry struct {
	byRequest map[int64]string
	byTxn     map[int64]string
}

func newRegistry() *registry {
	return &registry{
		byRequest: make(map[int64]string),
		byTxn:     make(map[int64]string),
	}
}

func (r *registry) trackTxn(taskID string, txn *store.Txn) {
	r.byTxn[txn.ID()] = taskID
}

func (r *registry) trackRequests(taskID string, reqs []*store.Request) {
	for _, req := range reqs {
		r.byRequest[req.ID] = taskID
	}
}

// owner resolves the task an event belongs to. Request correlations are
// removed as they are delivered so a request can never advance a task twice.
func (r *registry) owner(ev store.Event) (string, bool) {
	if ev.RequestID != 0 {
		taskID, ok := r.byRequest[ev.RequestID]
		if ok {
			delete(r.byRequest, ev.RequestID)
		}
		return taskID, ok
	}
	taskID, ok := r.byTxn[ev.TxnID]
	return taskID, ok
}

// drop removes every correlation still held by a task.
func (r *registry) drop(taskID string, txn *store.Txn) {
	if txn != nil {
		delete(r.byTxn, txn.ID())
	}
	for id, owner := range r.byRequest {
		if owner == taskID {
			delete(r.byRequest, id)
		}
	}
}
