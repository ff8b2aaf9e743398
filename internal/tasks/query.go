package tasks

import (
	"strings"

	"github.com/podkeep/podkeep/internal/engine"
	"github.com/podkeep/podkeep/internal/records"
	"github.com/podkeep/podkeep/internal/store"
)

// listQuery is the shared shape of the single-request read tasks: one
// read-only transaction, one request, decode, commit, respond.
type listQuery struct {
	name   string
	stores []string
	issue  func(t *store.Txn) *store.Request
	decode func(rows []store.KV) (any, error)

	stage    int
	txn      *store.Txn
	response any
}

func (t *listQuery) Name() string { return t.name }

func (t *listQuery) Issue(gw *store.Gateway) (*store.Txn, []*store.Request, error) {
	t.txn = gw.Begin(store.ReadOnly, t.stores...)
	return t.txn, []*store.Request{t.issue(t.txn)}, nil
}

func (t *listQuery) Advance(ev store.Event) (engine.Progress, error) {
	if ev.Err != nil {
		return engine.Progress{}, ev.Err
	}
	if t.stage == stageRead {
		response, err := t.decode(ev.Rows)
		if err != nil {
			return engine.Progress{}, err
		}
		t.response = response
		t.stage = stageCommit
		t.txn.Commit()
		return engine.Progress{}, nil
	}
	return engine.Progress{Done: true, Response: t.response}, nil
}

func decodeFeeds(rows []store.KV) (any, error) {
	out := records.FeedList{Feeds: make([]records.Feed, 0, len(rows))}
	for _, kv := range rows {
		rec, err := records.DecodeFeed(kv.Val)
		if err != nil {
			return nil, err
		}
		out.Feeds = append(out.Feeds, rec)
	}
	return out, nil
}

func decodeChannels(rows []store.KV) (any, error) {
	out := records.ChannelList{Channels: make([]records.Channel, 0, len(rows))}
	for _, kv := range rows {
		rec, err := records.DecodeChannel(kv.Val)
		if err != nil {
			return nil, err
		}
		out.Channels = append(out.Channels, rec)
	}
	return out, nil
}

func decodeItems(rows []store.KV) (any, error) {
	out := records.ItemList{Items: make([]records.Item, 0, len(rows))}
	for _, kv := range rows {
		rec, err := records.DecodeItem(kv.Val)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, rec)
	}
	return out, nil
}

// NewListFeeds lists feed subscriptions, optionally only active ones.
func NewListFeeds(activeOnly bool) engine.Task {
	return &listQuery{
		name:   "list-feeds",
		stores: []string{store.Feeds},
		issue: func(t *store.Txn) *store.Request {
			if activeOnly {
				return t.Store(store.Feeds).GetByIndex(records.IndexActive, "true")
			}
			return t.Store(store.Feeds).GetAll()
		},
		decode: decodeFeeds,
	}
}

// NewGetFeed reads one feed record. The response list is empty when the
// feed does not exist.
func NewGetFeed(id string) engine.Task {
	return &listQuery{
		name:   "get-feed",
		stores: []string{store.Feeds},
		issue: func(t *store.Txn) *store.Request {
			return t.Store(store.Feeds).Get(id)
		},
		decode: decodeFeeds,
	}
}

// NewGetChannel reads one channel record.
func NewGetChannel(id string) engine.Task {
	return &listQuery{
		name:   "get-channel",
		stores: []string{store.Channels},
		issue: func(t *store.Txn) *store.Request {
			return t.Store(store.Channels).Get(id)
		},
		decode: decodeChannels,
	}
}

// NewGetItem reads one item record.
func NewGetItem(id string) engine.Task {
	return &listQuery{
		name:   "get-item",
		stores: []string{store.Items},
		issue: func(t *store.Txn) *store.Request {
			return t.Store(store.Items).Get(id)
		},
		decode: decodeItems,
	}
}

// NewListChannels lists channels, scoped to one feed when feedID is
// non-empty.
func NewListChannels(feedID string, activeOnly bool) engine.Task {
	return &listQuery{
		name:   "list-channels",
		stores: []string{store.Channels},
		issue: func(t *store.Txn) *store.Request {
			switch {
			case feedID != "":
				return t.Store(store.Channels).GetByIndex(records.IndexFeedID, feedID)
			case activeOnly:
				return t.Store(store.Channels).GetByIndex(records.IndexActive, "true")
			default:
				return t.Store(store.Channels).GetAll()
			}
		},
		decode: decodeChannels,
	}
}

// NewListItems lists items, scoped to one channel when channelID is
// non-empty. Channel scoping walks the parent-bucket index range, so the
// result comes back oldest month first.
func NewListItems(channelID string) engine.Task {
	return &listQuery{
		name:   "list-items",
		stores: []string{store.Items},
		issue: func(t *store.Txn) *store.Request {
			if channelID == "" {
				return t.Store(store.Items).GetAll()
			}
			prefix := records.BucketPrefix(channelID)
			return t.Store(store.Items).GetByIndexRange(records.IndexParentBucket, prefix, prefix+"\uffff")
		},
		decode: decodeItems,
	}
}

// NewItemsByBucket lists one channel's items for one year-month bucket.
// This is the pagination read: the UI walks buckets newest first and fetches
// one month at a time.
func NewItemsByBucket(channelID, bucket string) engine.Task {
	return &listQuery{
		name:   "items-by-bucket",
		stores: []string{store.Items},
		issue: func(t *store.Txn) *store.Request {
			return t.Store(store.Items).GetByIndex(records.IndexParentBucket, records.BucketKey(channelID, bucket))
		},
		decode: decodeItems,
	}
}

// NewItemsDownloadRequired lists every item waiting on a download, the work
// queue an external downloader polls.
func NewItemsDownloadRequired() engine.Task {
	return &listQuery{
		name:   "items-download-required",
		stores: []string{store.Items},
		issue: func(t *store.Txn) *store.Request {
			return t.Store(store.Items).GetByIndex(records.IndexDownloadRequired, "true")
		},
		decode: decodeItems,
	}
}

// NewItemsDownloaded lists every item with a stored enclosure.
func NewItemsDownloaded() engine.Task {
	return &listQuery{
		name:   "items-downloaded",
		stores: []string{store.Items},
		issue: func(t *store.Txn) *store.Request {
			return t.Store(store.Items).GetByIndex(records.IndexDownloadComplete, "true")
		},
		decode: decodeItems,
	}
}

// bucketList walks the distinct parent-bucket index keys of one channel
// newest first, one cursor step per event. A limit of zero means all
// buckets.
type bucketList struct {
	channelID string
	limit     int

	stage   int
	txn     *store.Txn
	cursor  string
	buckets []string
}

// NewListBuckets enumerates the year-month buckets a channel has items in,
// newest first.
func NewListBuckets(channelID string, limit int) engine.Task {
	return &bucketList{channelID: channelID, limit: limit}
}

func (t *bucketList) Name() string { return "list-buckets" }

func (t *bucketList) Issue(gw *store.Gateway) (*store.Txn, []*store.Request, error) {
	t.txn = gw.Begin(store.ReadOnly, store.Items)
	req := t.txn.Store(store.Items).NextIndexKey(records.IndexParentBucket, records.BucketPrefix(t.channelID), "")
	return t.txn, []*store.Request{req}, nil
}

func (t *bucketList) Advance(ev store.Event) (engine.Progress, error) {
	if ev.Err != nil {
		return engine.Progress{}, ev.Err
	}
	if t.stage == stageRead {
		prefix := records.BucketPrefix(t.channelID)
		if ev.IndexKey != "" {
			t.buckets = append(t.buckets, strings.TrimPrefix(ev.IndexKey, prefix))
			t.cursor = ev.IndexKey
			if t.limit == 0 || len(t.buckets) < t.limit {
				req := t.txn.Store(store.Items).NextIndexKey(records.IndexParentBucket, prefix, t.cursor)
				return engine.Progress{Requests: []*store.Request{req}}, nil
			}
		}
		t.stage = stageCommit
		t.txn.Commit()
		return engine.Progress{}, nil
	}
	return engine.Progress{Done: true, Response: records.BucketList{ChannelID: t.channelID, Buckets: t.buckets}}, nil
}
