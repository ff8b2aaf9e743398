package tasks

import (
	"github.com/podkeep/podkeep/internal/engine"
	"github.com/podkeep/podkeep/internal/records"
	"github.com/podkeep/podkeep/internal/store"
)

// Stages shared by the read-merge-write tasks in this package.
const (
	stageRead = iota
	stageWrite
	stageCommit
)

// feedReconcile merges one remote feed value into the store. The stored
// record wins unless the incoming update_ts is strictly newer; Meta is
// always preserved.
type feedReconcile struct {
	val   records.FeedVal
	stage int
	txn   *store.Txn
	rec   records.Feed
}

// NewReconcileFeed builds a reconciliation task for one remote feed value.
func NewReconcileFeed(val records.FeedVal) engine.Task {
	return &feedReconcile{val: val}
}

func (t *feedReconcile) Name() string         { return "reconcile-feed" }
func (t *feedReconcile) ExclusiveKey() string { return store.Feeds + "/" + t.val.ID }

func (t *feedReconcile) Issue(gw *store.Gateway) (*store.Txn, []*store.Request, error) {
	t.txn = gw.Begin(store.ReadWrite, store.Feeds)
	req := t.txn.Store(store.Feeds).Get(t.val.ID)
	return t.txn, []*store.Request{req}, nil
}

func (t *feedReconcile) Advance(ev store.Event) (engine.Progress, error) {
	if ev.Err != nil {
		return engine.Progress{}, ev.Err
	}
	switch t.stage {
	case stageRead:
		write := true
		if len(ev.Rows) == 0 {
			t.rec = records.NewFeed(t.val)
		} else {
			rec, err := records.DecodeFeed(ev.Rows[0].Val)
			if err != nil {
				return engine.Progress{}, err
			}
			t.rec = rec
			if rec.Val.UpdateTS >= t.val.UpdateTS {
				write = false
			} else {
				t.rec.Splice(t.val)
			}
		}
		if !write {
			t.stage = stageCommit
			t.txn.Commit()
			return engine.Progress{}, nil
		}
		buf, err := t.rec.Encode()
		if err != nil {
			return engine.Progress{}, err
		}
		t.stage = stageWrite
		req := t.txn.Store(store.Feeds).Put(t.rec.Val.ID, buf, t.rec.IndexEntries())
		return engine.Progress{Requests: []*store.Request{req}}, nil
	case stageWrite:
		t.stage = stageCommit
		t.txn.Commit()
		return engine.Progress{}, nil
	default:
		return engine.Progress{Done: true, Response: records.UpdatedFeed{Feed: t.rec}}, nil
	}
}

// channelReconcile merges one remote channel value into the store. The
// LatestBucket key is carried over from the stored record; only item
// reconciliation moves it.
type channelReconcile struct {
	val   records.ChannelVal
	stage int
	txn   *store.Txn
	rec   records.Channel
}

// NewReconcileChannel builds a reconciliation task for one remote channel
// value.
func NewReconcileChannel(val records.ChannelVal) engine.Task {
	return &channelReconcile{val: val}
}

func (t *channelReconcile) Name() string         { return "reconcile-channel" }
func (t *channelReconcile) ExclusiveKey() string { return store.Channels + "/" + t.val.ID }

func (t *channelReconcile) Issue(gw *store.Gateway) (*store.Txn, []*store.Request, error) {
	t.txn = gw.Begin(store.ReadWrite, store.Channels)
	req := t.txn.Store(store.Channels).Get(t.val.ID)
	return t.txn, []*store.Request{req}, nil
}

func (t *channelReconcile) Advance(ev store.Event) (engine.Progress, error) {
	if ev.Err != nil {
		return engine.Progress{}, ev.Err
	}
	switch t.stage {
	case stageRead:
		write := true
		if len(ev.Rows) == 0 {
			t.rec = records.NewChannel(t.val)
		} else {
			rec, err := records.DecodeChannel(ev.Rows[0].Val)
			if err != nil {
				return engine.Progress{}, err
			}
			t.rec = rec
			if rec.Val.UpdateTS >= t.val.UpdateTS {
				write = false
			} else {
				t.rec.Splice(t.val)
			}
		}
		if !write {
			t.stage = stageCommit
			t.txn.Commit()
			return engine.Progress{}, nil
		}
		buf, err := t.rec.Encode()
		if err != nil {
			return engine.Progress{}, err
		}
		t.stage = stageWrite
		req := t.txn.Store(store.Channels).Put(t.rec.Val.ID, buf, t.rec.IndexEntries())
		return engine.Progress{Requests: []*store.Request{req}}, nil
	case stageWrite:
		t.stage = stageCommit
		t.txn.Commit()
		return engine.Progress{}, nil
	default:
		return engine.Progress{Done: true, Response: records.UpdatedChannel{Channel: t.rec}}, nil
	}
}
