package tasks

import (
	"fmt"

	"github.com/podkeep/podkeep/internal/engine"
	"github.com/podkeep/podkeep/internal/records"
	"github.com/podkeep/podkeep/internal/shared"
	"github.com/podkeep/podkeep/internal/store"
)

// enclosureGet reads one stored enclosure blob.
type enclosureGet struct {
	itemID string
	stage  int
	txn    *store.Txn
	data   []byte
}

// NewGetEnclosure builds a retrieval task for one item's enclosure blob.
func NewGetEnclosure(itemID string) engine.Task {
	return &enclosureGet{itemID: itemID}
}

func (t *enclosureGet) Name() string { return "get-enclosure" }

func (t *enclosureGet) Issue(gw *store.Gateway) (*store.Txn, []*store.Request, error) {
	t.txn = gw.Begin(store.ReadOnly, store.Enclosures)
	req := t.txn.Store(store.Enclosures).Get(t.itemID)
	return t.txn, []*store.Request{req}, nil
}

func (t *enclosureGet) Advance(ev store.Event) (engine.Progress, error) {
	if ev.Err != nil {
		return engine.Progress{}, ev.Err
	}
	if t.stage == stageRead {
		if len(ev.Rows) == 0 {
			return engine.Progress{}, fmt.Errorf("%w: enclosure %s", shared.ErrNotFound, t.itemID)
		}
		t.data = ev.Rows[0].Val
		t.stage = stageCommit
		t.txn.Commit()
		return engine.Progress{}, nil
	}
	return engine.Progress{Done: true, Response: records.Blob{ItemID: t.itemID, Data: t.data}}, nil
}

// enclosureStore persists a downloaded enclosure and flips the owning
// item's download status to ok in the same transaction, so a stored blob
// and a complete status can never exist without each other.
type enclosureStore struct {
	itemID string
	data   []byte

	stage   int
	txn     *store.Txn
	waiting int
	rec     records.Item
}

// NewStoreEnclosure builds a task that stores a finished download for an
// item. The item's status must allow the transition to ok.
func NewStoreEnclosure(itemID string, data []byte) engine.Task {
	return &enclosureStore{itemID: itemID, data: data}
}

func (t *enclosureStore) Name() string         { return "store-enclosure" }
func (t *enclosureStore) ExclusiveKey() string { return store.Items + "/" + t.itemID }

func (t *enclosureStore) Issue(gw *store.Gateway) (*store.Txn, []*store.Request, error) {
	t.txn = gw.Begin(store.ReadWrite, store.Items, store.Enclosures)
	req := t.txn.Store(store.Items).Get(t.itemID)
	return t.txn, []*store.Request{req}, nil
}

func (t *enclosureStore) Advance(ev store.Event) (engine.Progress, error) {
	if ev.Err != nil {
		return engine.Progress{}, ev.Err
	}
	switch t.stage {
	case stageRead:
		if len(ev.Rows) == 0 {
			return engine.Progress{}, fmt.Errorf("%w: item %s", shared.ErrNotFound, t.itemID)
		}
		rec, err := records.DecodeItem(ev.Rows[0].Val)
		if err != nil {
			return engine.Progress{}, err
		}
		t.rec = rec
		next, err := t.rec.Meta.Download.Transition(records.DownloadOk, int64(len(t.data)), "")
		if err != nil {
			return engine.Progress{}, err
		}
		t.rec.Meta.Download = next
		t.rec.Refresh()
		buf, err := t.rec.Encode()
		if err != nil {
			return engine.Progress{}, err
		}
		t.stage = stageWrite
		reqs := []*store.Request{
			t.txn.Store(store.Enclosures).Put(t.itemID, t.data, nil),
			t.txn.Store(store.Items).Put(t.rec.Val.ID, buf, t.rec.IndexEntries()),
		}
		t.waiting = len(reqs)
		return engine.Progress{Requests: reqs}, nil
	case stageWrite:
		t.waiting--
		if t.waiting > 0 {
			return engine.Progress{}, nil
		}
		t.stage = stageCommit
		t.txn.Commit()
		return engine.Progress{}, nil
	default:
		return engine.Progress{Done: true, Response: records.UpdatedItem{Item: t.rec}}, nil
	}
}

// enclosureDelete removes a stored enclosure and returns the item's
// download status to not-requested, again atomically with the blob.
type enclosureDelete struct {
	itemID string

	stage   int
	txn     *store.Txn
	waiting int
	rec     records.Item
}

// NewDeleteEnclosure builds a task that deletes an item's stored download.
func NewDeleteEnclosure(itemID string) engine.Task {
	return &enclosureDelete{itemID: itemID}
}

func (t *enclosureDelete) Name() string         { return "delete-enclosure" }
func (t *enclosureDelete) ExclusiveKey() string { return store.Items + "/" + t.itemID }

func (t *enclosureDelete) Issue(gw *store.Gateway) (*store.Txn, []*store.Request, error) {
	t.txn = gw.Begin(store.ReadWrite, store.Items, store.Enclosures)
	req := t.txn.Store(store.Items).Get(t.itemID)
	return t.txn, []*store.Request{req}, nil
}

func (t *enclosureDelete) Advance(ev store.Event) (engine.Progress, error) {
	if ev.Err != nil {
		return engine.Progress{}, ev.Err
	}
	switch t.stage {
	case stageRead:
		if len(ev.Rows) == 0 {
			return engine.Progress{}, fmt.Errorf("%w: item %s", shared.ErrNotFound, t.itemID)
		}
		rec, err := records.DecodeItem(ev.Rows[0].Val)
		if err != nil {
			return engine.Progress{}, err
		}
		t.rec = rec
		next, err := t.rec.Meta.Download.Transition(records.DownloadNotRequested, 0, "")
		if err != nil {
			return engine.Progress{}, err
		}
		t.rec.Meta.Download = next
		t.rec.Refresh()
		buf, err := t.rec.Encode()
		if err != nil {
			return engine.Progress{}, err
		}
		t.stage = stageWrite
		reqs := []*store.Request{
			t.txn.Store(store.Enclosures).Delete(t.itemID),
			t.txn.Store(store.Items).Put(t.rec.Val.ID, buf, t.rec.IndexEntries()),
		}
		t.waiting = len(reqs)
		return engine.Progress{Requests: reqs}, nil
	case stageWrite:
		t.waiting--
		if t.waiting > 0 {
			return engine.Progress{}, nil
		}
		t.stage = stageCommit
		t.txn.Commit()
		return engine.Progress{}, nil
	default:
		return engine.Progress{Done: true, Response: records.UpdatedItem{Item: t.rec}}, nil
	}
}
