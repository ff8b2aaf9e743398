package records

// Bus topics for record change notifications.
const (
	TopicFeedUpdated    = "record.feed.updated"
	TopicChannelUpdated = "record.channel.updated"
	TopicItemUpdated    = "record.item.updated"
)

// UpdatedFeed is the terminal response of a feed reconciliation or feed meta
// update. It is also broadcast to subscribers.
type UpdatedFeed struct {
	Feed Feed
}

func (UpdatedFeed) Topic() string { return TopicFeedUpdated }

// UpdatedChannel is the terminal response of a channel reconciliation or
// channel meta update.
type UpdatedChannel struct {
	Channel Channel
}

func (UpdatedChannel) Topic() string { return TopicChannelUpdated }

// UpdatedItem is the terminal response of an item reconciliation, item meta
// update, or download store/delete.
type UpdatedItem struct {
	Item Item
}

func (UpdatedItem) Topic() string { return TopicItemUpdated }

// UpdatedFeeds is the terminal response of a bulk feed reconciliation.
// Feeds contains the post-merge state of every submitted record, written or
// not.
type UpdatedFeeds struct {
	Feeds   []Feed
	Written int
}

func (UpdatedFeeds) Topic() string { return TopicFeedUpdated }

// UpdatedChannels is the terminal response of a bulk channel reconciliation.
type UpdatedChannels struct {
	Channels []Channel
	Written  int
}

func (UpdatedChannels) Topic() string { return TopicChannelUpdated }

// UpdatedItems is the terminal response of a bulk item reconciliation.
type UpdatedItems struct {
	Items   []Item
	Written int
}

func (UpdatedItems) Topic() string { return TopicItemUpdated }

// FeedList is the response of a feed query task.
type FeedList struct {
	Feeds []Feed
}

// ChannelList is the response of a channel query task.
type ChannelList struct {
	Channels []Channel
}

// ItemList is the response of an item query task.
type ItemList struct {
	Items []Item
}

// BucketList is the response of a bucket enumeration task, newest bucket
// first.
type BucketList struct {
	ChannelID string
	Buckets   []string
}

// Blob is the response of a download retrieval task.
type Blob struct {
	ItemID string
	Data   []byte
}

// ConfigValue is the response of a configuration get or set task.
type ConfigValue struct {
	Key   string
	Value string
}
