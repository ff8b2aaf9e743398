package tasks

import (
	"github.com/podkeep/podkeep/internal/engine"
	"github.com/podkeep/podkeep/internal/records"
	"github.com/podkeep/podkeep/internal/store"
)

// itemReconcile merges one remote item value into the store. Item writes
// open the channels store too: the parent channel's LatestBucket key tracks
// the newest item bucket and has to move in the same transaction as the
// item, or a crash between the two writes would leave pagination pointing
// at a month with no items.
type itemReconcile struct {
	val   records.ItemVal
	stage int
	txn   *store.Txn

	itemReq  int64
	chanReq  int64
	waiting  int
	itemRows []store.KV
	chanRows []store.KV

	rec     records.Item
	channel records.Channel
}

// NewReconcileItem builds a reconciliation task for one remote item value.
func NewReconcileItem(val records.ItemVal) engine.Task {
	return &itemReconcile{val: val}
}

func (t *itemReconcile) Name() string         { return "reconcile-item" }
func (t *itemReconcile) ExclusiveKey() string { return store.Items + "/" + t.val.ID }

func (t *itemReconcile) Issue(gw *store.Gateway) (*store.Txn, []*store.Request, error) {
	t.txn = gw.Begin(store.ReadWrite, store.Items, store.Channels)
	itemReq := t.txn.Store(store.Items).Get(t.val.ID)
	chanReq := t.txn.Store(store.Channels).Get(t.val.ChannelID)
	t.itemReq = itemReq.ID
	t.chanReq = chanReq.ID
	t.waiting = 2
	return t.txn, []*store.Request{itemReq, chanReq}, nil
}

func (t *itemReconcile) Advance(ev store.Event) (engine.Progress, error) {
	if ev.Err != nil {
		return engine.Progress{}, ev.Err
	}
	switch t.stage {
	case stageRead:
		switch ev.RequestID {
		case t.itemReq:
			t.itemRows = ev.Rows
		case t.chanReq:
			t.chanRows = ev.Rows
		}
		t.waiting--
		if t.waiting > 0 {
			return engine.Progress{}, nil
		}
		return t.merge()
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

// merge runs once both reads are in. It decides the item write, then the
// channel LatestBucket bump, and fires whatever writes are needed.
func (t *itemReconcile) merge() (engine.Progress, error) {
	writeItem := true
	if len(t.itemRows) == 0 {
		t.rec = records.NewItem(t.val)
	} else {
		rec, err := records.DecodeItem(t.itemRows[0].Val)
		if err != nil {
			return engine.Progress{}, err
		}
		t.rec = rec
		if rec.Val.UpdateTS >= t.val.UpdateTS {
			writeItem = false
		} else {
			t.rec.Splice(t.val)
		}
	}

	writeChannel := false
	if len(t.chanRows) > 0 {
		channel, err := records.DecodeChannel(t.chanRows[0].Val)
		if err != nil {
			return engine.Progress{}, err
		}
		t.channel = channel
		if bucket := records.Bucket(t.rec.Val.PubTS); bucket > channel.Keys.LatestBucket {
			t.channel.Keys.LatestBucket = bucket
			writeChannel = true
		}
	}

	var reqs []*store.Request
	if writeItem {
		buf, err := t.rec.Encode()
		if err != nil {
			return engine.Progress{}, err
		}
		reqs = append(reqs, t.txn.Store(store.Items).Put(t.rec.Val.ID, buf, t.rec.IndexEntries()))
	}
	if writeChannel {
		buf, err := t.channel.Encode()
		if err != nil {
			return engine.Progress{}, err
		}
		reqs = append(reqs, t.txn.Store(store.Channels).Put(t.channel.Val.ID, buf, t.channel.IndexEntries()))
	}

	if len(reqs) == 0 {
		t.stage = stageCommit
		t.txn.Commit()
		return engine.Progress{}, nil
	}
	t.stage = stageWrite
	t.waiting = len(reqs)
	return engine.Progress{Requests: reqs}, nil
}
