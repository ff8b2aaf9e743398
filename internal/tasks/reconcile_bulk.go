package tasks

import (
	"github.com/podkeep/podkeep/internal/engine"
	"github.com/podkeep/podkeep/internal/records"
	"github.com/podkeep/podkeep/internal/store"
)

// Bulk reconciliation materializes the entire existing store once per batch
// with a single GetAll instead of one read per record, so the request count
// stays flat no matter how large the batch is.

// feedsReconcile merges a batch of remote feed values in one transaction.
// Each record follows the same merge rule as the single-feed task; Written
// counts the records that actually hit the disk.
type feedsReconcile struct {
	vals     []records.FeedVal
	stage    int
	txn      *store.Txn
	waiting  int
	existing map[string][]byte
	recs     []records.Feed
	written  int
}

// NewReconcileFeeds builds a bulk reconciliation task for remote feed values.
func NewReconcileFeeds(vals []records.FeedVal) engine.Task {
	return &feedsReconcile{vals: vals}
}

func (t *feedsReconcile) Name() string         { return "reconcile-feeds" }
func (t *feedsReconcile) ExclusiveKey() string { return store.Feeds + "/*" }

func (t *feedsReconcile) Issue(gw *store.Gateway) (*store.Txn, []*store.Request, error) {
	t.txn = gw.Begin(store.ReadWrite, store.Feeds)
	req := t.txn.Store(store.Feeds).GetAll()
	t.waiting = 1
	return t.txn, []*store.Request{req}, nil
}

func (t *feedsReconcile) Advance(ev store.Event) (engine.Progress, error) {
	if ev.Err != nil {
		return engine.Progress{}, ev.Err
	}
	switch t.stage {
	case stageRead:
		t.existing = make(map[string][]byte, len(ev.Rows))
		for _, row := range ev.Rows {
			t.existing[row.Key] = row.Val
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
		return engine.Progress{Done: true, Response: records.UpdatedFeeds{Feeds: t.recs, Written: t.written}}, nil
	}
}

func (t *feedsReconcile) merge() (engine.Progress, error) {
	t.recs = make([]records.Feed, len(t.vals))
	os := t.txn.Store(store.Feeds)
	var reqs []*store.Request
	for i, val := range t.vals {
		write := true
		if buf, ok := t.existing[val.ID]; !ok {
			t.recs[i] = records.NewFeed(val)
		} else {
			rec, err := records.DecodeFeed(buf)
			if err != nil {
				return engine.Progress{}, err
			}
			t.recs[i] = rec
			if rec.Val.UpdateTS >= val.UpdateTS {
				write = false
			} else {
				t.recs[i].Splice(val)
			}
		}
		if !write {
			continue
		}
		buf, err := t.recs[i].Encode()
		if err != nil {
			return engine.Progress{}, err
		}
		reqs = append(reqs, os.Put(t.recs[i].Val.ID, buf, t.recs[i].IndexEntries()))
	}
	t.written = len(reqs)
	if len(reqs) == 0 {
		t.stage = stageCommit
		t.txn.Commit()
		return engine.Progress{}, nil
	}
	t.stage = stageWrite
	t.waiting = len(reqs)
	return engine.Progress{Requests: reqs}, nil
}

// channelsReconcile merges a batch of remote channel values in one
// transaction.
type channelsReconcile struct {
	vals     []records.ChannelVal
	stage    int
	txn      *store.Txn
	waiting  int
	existing map[string][]byte
	recs     []records.Channel
	written  int
}

// NewReconcileChannels builds a bulk reconciliation task for remote channel
// values.
func NewReconcileChannels(vals []records.ChannelVal) engine.Task {
	return &channelsReconcile{vals: vals}
}

func (t *channelsReconcile) Name() string         { return "reconcile-channels" }
func (t *channelsReconcile) ExclusiveKey() string { return store.Channels + "/*" }

func (t *channelsReconcile) Issue(gw *store.Gateway) (*store.Txn, []*store.Request, error) {
	t.txn = gw.Begin(store.ReadWrite, store.Channels)
	req := t.txn.Store(store.Channels).GetAll()
	t.waiting = 1
	return t.txn, []*store.Request{req}, nil
}

func (t *channelsReconcile) Advance(ev store.Event) (engine.Progress, error) {
	if ev.Err != nil {
		return engine.Progress{}, ev.Err
	}
	switch t.stage {
	case stageRead:
		t.existing = make(map[string][]byte, len(ev.Rows))
		for _, row := range ev.Rows {
			t.existing[row.Key] = row.Val
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
		return engine.Progress{Done: true, Response: records.UpdatedChannels{Channels: t.recs, Written: t.written}}, nil
	}
}

func (t *channelsReconcile) merge() (engine.Progress, error) {
	t.recs = make([]records.Channel, len(t.vals))
	os := t.txn.Store(store.Channels)
	var reqs []*store.Request
	for i, val := range t.vals {
		write := true
		if buf, ok := t.existing[val.ID]; !ok {
			t.recs[i] = records.NewChannel(val)
		} else {
			rec, err := records.DecodeChannel(buf)
			if err != nil {
				return engine.Progress{}, err
			}
			t.recs[i] = rec
			if rec.Val.UpdateTS >= val.UpdateTS {
				write = false
			} else {
				t.recs[i].Splice(val)
			}
		}
		if !write {
			continue
		}
		buf, err := t.recs[i].Encode()
		if err != nil {
			return engine.Progress{}, err
		}
		reqs = append(reqs, os.Put(t.recs[i].Val.ID, buf, t.recs[i].IndexEntries()))
	}
	t.written = len(reqs)
	if len(reqs) == 0 {
		t.stage = stageCommit
		t.txn.Commit()
		return engine.Progress{}, nil
	}
	t.stage = stageWrite
	t.waiting = len(reqs)
	return engine.Progress{Requests: reqs}, nil
}

// itemsReconcile merges a batch of remote item values in one transaction,
// bumping each parent channel's LatestBucket alongside the item writes. This
// is the task a feed sync produces for a document's episodes.
type itemsReconcile struct {
	vals    []records.ItemVal
	stage   int
	txn     *store.Txn
	waiting int

	itemReq  int64
	chanReq  int64
	items    map[string][]byte
	channels map[string][]byte

	recs    []records.Item
	written int
}

// NewReconcileItems builds a bulk reconciliation task for remote item
// values.
func NewReconcileItems(vals []records.ItemVal) engine.Task {
	return &itemsReconcile{vals: vals}
}

func (t *itemsReconcile) Name() string         { return "reconcile-items" }
func (t *itemsReconcile) ExclusiveKey() string { return store.Items + "/*" }

func (t *itemsReconcile) Issue(gw *store.Gateway) (*store.Txn, []*store.Request, error) {
	t.txn = gw.Begin(store.ReadWrite, store.Items, store.Channels)
	itemReq := t.txn.Store(store.Items).GetAll()
	chanReq := t.txn.Store(store.Channels).GetAll()
	t.itemReq = itemReq.ID
	t.chanReq = chanReq.ID
	t.waiting = 2
	return t.txn, []*store.Request{itemReq, chanReq}, nil
}

func (t *itemsReconcile) Advance(ev store.Event) (engine.Progress, error) {
	if ev.Err != nil {
		return engine.Progress{}, ev.Err
	}
	switch t.stage {
	case stageRead:
		rows := make(map[string][]byte, len(ev.Rows))
		for _, row := range ev.Rows {
			rows[row.Key] = row.Val
		}
		switch ev.RequestID {
		case t.itemReq:
			t.items = rows
		case t.chanReq:
			t.channels = rows
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
		return engine.Progress{Done: true, Response: records.UpdatedItems{Items: t.recs, Written: t.written}}, nil
	}
}

func (t *itemsReconcile) merge() (engine.Progress, error) {
	t.recs = make([]records.Item, len(t.vals))
	items := t.txn.Store(store.Items)
	channels := t.txn.Store(store.Channels)
	var reqs []*store.Request

	// The latest bucket per channel considers every merged record, written
	// or not, since a skipped record's month still exists on disk.
	latest := make(map[string]string)
	for i, val := range t.vals {
		write := true
		if buf, ok := t.items[val.ID]; !ok {
			t.recs[i] = records.NewItem(val)
		} else {
			rec, err := records.DecodeItem(buf)
			if err != nil {
				return engine.Progress{}, err
			}
			t.recs[i] = rec
			if rec.Val.UpdateTS >= val.UpdateTS {
				write = false
			} else {
				t.recs[i].Splice(val)
			}
		}
		if bucket := records.Bucket(t.recs[i].Val.PubTS); bucket > latest[t.recs[i].Val.ChannelID] {
			latest[t.recs[i].Val.ChannelID] = bucket
		}
		if !write {
			continue
		}
		buf, err := t.recs[i].Encode()
		if err != nil {
			return engine.Progress{}, err
		}
		reqs = append(reqs, items.Put(t.recs[i].Val.ID, buf, t.recs[i].IndexEntries()))
	}
	t.written = len(reqs)

	for id, bucket := range latest {
		buf, ok := t.channels[id]
		if !ok {
			continue
		}
		channel, err := records.DecodeChannel(buf)
		if err != nil {
			return engine.Progress{}, err
		}
		if bucket <= channel.Keys.LatestBucket {
			continue
		}
		channel.Keys.LatestBucket = bucket
		out, err := channel.Encode()
		if err != nil {
			return engine.Progress{}, err
		}
		reqs = append(reqs, channels.Put(channel.Val.ID, out, channel.IndexEntries()))
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
