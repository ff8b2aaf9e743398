package tasks

import (
	"fmt"

	"github.com/podkeep/podkeep/internal/engine"
	"github.com/podkeep/podkeep/internal/records"
	"github.com/podkeep/podkeep/internal/shared"
	"github.com/podkeep/podkeep/internal/store"
)

// itemMeta updates the local-owned portion of one item record. The remote
// value is never touched; Keys are recomputed before the write so the
// download indexes track the new Meta. Updating a missing item is an error,
// meta never creates records.
type itemMeta struct {
	name  string
	id    string
	apply func(*records.ItemMeta) error

	stage int
	txn   *store.Txn
	rec   records.Item
}

func (t *itemMeta) Name() string         { return t.name }
func (t *itemMeta) ExclusiveKey() string { return store.Items + "/" + t.id }

func (t *itemMeta) Issue(gw *store.Gateway) (*store.Txn, []*store.Request, error) {
	t.txn = gw.Begin(store.ReadWrite, store.Items)
	req := t.txn.Store(store.Items).Get(t.id)
	return t.txn, []*store.Request{req}, nil
}

func (t *itemMeta) Advance(ev store.Event) (engine.Progress, error) {
	if ev.Err != nil {
		return engine.Progress{}, ev.Err
	}
	switch t.stage {
	case stageRead:
		if len(ev.Rows) == 0 {
			return engine.Progress{}, fmt.Errorf("%w: item %s", shared.ErrNotFound, t.id)
		}
		rec, err := records.DecodeItem(ev.Rows[0].Val)
		if err != nil {
			return engine.Progress{}, err
		}
		t.rec = rec
		if err := t.apply(&t.rec.Meta); err != nil {
			return engine.Progress{}, err
		}
		t.rec.Refresh()
		buf, err := t.rec.Encode()
		if err != nil {
			return engine.Progress{}, err
		}
		t.stage = stageWrite
		req := t.txn.Store(store.Items).Put(t.rec.Val.ID, buf, t.rec.IndexEntries())
		return engine.Progress{Requests: []*store.Request{req}}, nil
	case stageWrite:
		t.stage = stageCommit
		t.txn.Commit()
		return engine.Progress{}, nil
	default:
		return engine.Progress{Done: true, Response: records.UpdatedItem{Item: t.rec}}, nil
	}
}

// NewMarkItemSeen clears an item's unseen flag.
func NewMarkItemSeen(id string) engine.Task {
	return &itemMeta{name: "mark-item-seen", id: id, apply: func(m *records.ItemMeta) error {
		m.Unseen = false
		return nil
	}}
}

// NewSetItemPosition records a playback position in seconds.
func NewSetItemPosition(id string, position float64) engine.Task {
	return &itemMeta{name: "set-item-position", id: id, apply: func(m *records.ItemMeta) error {
		if position < 0 {
			return fmt.Errorf("%w: negative position", shared.ErrInvalidInput)
		}
		m.Position = position
		return nil
	}}
}

// NewMarkItemPlayed bumps the play count, rewinds the position and clears
// the unseen flag.
func NewMarkItemPlayed(id string) engine.Task {
	return &itemMeta{name: "mark-item-played", id: id, apply: func(m *records.ItemMeta) error {
		m.PlayCount++
		m.Position = 0
		m.Unseen = false
		return nil
	}}
}

// NewRequestDownload moves an item's download status to pending.
func NewRequestDownload(id string) engine.Task {
	return &itemMeta{name: "request-download", id: id, apply: transition(records.DownloadPending)}
}

// NewMarkDownloadInProgress moves a pending download to in-progress; the
// external downloader submits this when it picks the item up.
func NewMarkDownloadInProgress(id string) engine.Task {
	return &itemMeta{name: "mark-download-in-progress", id: id, apply: transition(records.DownloadInProgress)}
}

// NewMarkDownloadFailed records a download failure with its message.
func NewMarkDownloadFailed(id, message string) engine.Task {
	return &itemMeta{name: "mark-download-failed", id: id, apply: func(m *records.ItemMeta) error {
		next, err := m.Download.Transition(records.DownloadError, 0, message)
		if err != nil {
			return err
		}
		m.Download = next
		return nil
	}}
}

// NewCancelDownload returns a pending, in-progress or failed download to
// not-requested. A completed download is cancelled by deleting its
// enclosure instead, which clears the status in the same transaction as the
// blob.
func NewCancelDownload(id string) engine.Task {
	return &itemMeta{name: "cancel-download", id: id, apply: transition(records.DownloadNotRequested)}
}

func transition(to records.DownloadState) func(*records.ItemMeta) error {
	return func(m *records.ItemMeta) error {
		next, err := m.Download.Transition(to, 0, "")
		if err != nil {
			return err
		}
		m.Download = next
		return nil
	}
}

// feedMeta updates the local-owned portion of one feed record.
type feedMeta struct {
	name  string
	id    string
	apply func(*records.FeedMeta)

	stage int
	txn   *store.Txn
	rec   records.Feed
}

func (t *feedMeta) Name() string         { return t.name }
func (t *feedMeta) ExclusiveKey() string { return store.Feeds + "/" + t.id }

func (t *feedMeta) Issue(gw *store.Gateway) (*store.Txn, []*store.Request, error) {
	t.txn = gw.Begin(store.ReadWrite, store.Feeds)
	req := t.txn.Store(store.Feeds).Get(t.id)
	return t.txn, []*store.Request{req}, nil
}

func (t *feedMeta) Advance(ev store.Event) (engine.Progress, error) {
	if ev.Err != nil {
		return engine.Progress{}, ev.Err
	}
	switch t.stage {
	case stageRead:
		if len(ev.Rows) == 0 {
			return engine.Progress{}, fmt.Errorf("%w: feed %s", shared.ErrNotFound, t.id)
		}
		rec, err := records.DecodeFeed(ev.Rows[0].Val)
		if err != nil {
			return engine.Progress{}, err
		}
		t.rec = rec
		t.apply(&t.rec.Meta)
		t.rec.Refresh()
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

// NewSetFeedActive toggles whether a feed participates in syncs.
func NewSetFeedActive(id string, active bool) engine.Task {
	return &feedMeta{name: "set-feed-active", id: id, apply: func(m *records.FeedMeta) {
		m.Active = active
	}}
}

// channelMeta updates the local-owned portion of one channel record.
type channelMeta struct {
	name  string
	id    string
	apply func(*records.ChannelMeta)

	stage int
	txn   *store.Txn
	rec   records.Channel
}

func (t *channelMeta) Name() string         { return t.name }
func (t *channelMeta) ExclusiveKey() string { return store.Channels + "/" + t.id }

func (t *channelMeta) Issue(gw *store.Gateway) (*store.Txn, []*store.Request, error) {
	t.txn = gw.Begin(store.ReadWrite, store.Channels)
	req := t.txn.Store(store.Channels).Get(t.id)
	return t.txn, []*store.Request{req}, nil
}

func (t *channelMeta) Advance(ev store.Event) (engine.Progress, error) {
	if ev.Err != nil {
		return engine.Progress{}, ev.Err
	}
	switch t.stage {
	case stageRead:
		if len(ev.Rows) == 0 {
			return engine.Progress{}, fmt.Errorf("%w: channel %s", shared.ErrNotFound, t.id)
		}
		rec, err := records.DecodeChannel(ev.Rows[0].Val)
		if err != nil {
			return engine.Progress{}, err
		}
		t.rec = rec
		t.apply(&t.rec.Meta)
		t.rec.Refresh()
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

// NewSetChannelActive toggles whether a channel's items are listed and
// synced.
func NewSetChannelActive(id string, active bool) engine.Task {
	return &channelMeta{name: "set-channel-active", id: id, apply: func(m *records.ChannelMeta) {
		m.Active = active
	}}
}
