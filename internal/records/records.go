package records

import (
	"encoding/json"
	"fmt"

	"github.com/podkeep/podkeep/internal/shared"
)

// FeedVal is the remote-owned portion of a feed subscription record.
type FeedVal struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	UpdateTS int64  `json:"update_ts"`
}

// FeedMeta is the local-only portion of a feed record.
type FeedMeta struct {
	Active bool `json:"active"`
}

// FeedKeys holds the derived index values for a feed.
type FeedKeys struct {
	Active string `json:"active"`
}

// Feed is a stored feed record.
type Feed struct {
	Val  FeedVal  `json:"val"`
	Meta FeedMeta `json:"meta"`
	Keys FeedKeys `json:"keys"`
}

// NewFeed builds a fresh feed record for a remote value never seen before,
// with default Meta and Keys derived from it.
func NewFeed(val FeedVal) Feed {
	f := Feed{Val: val, Meta: FeedMeta{Active: true}}
	f.Refresh()
	return f
}

// Refresh recomputes Keys from the current Val and Meta.
func (f *Feed) Refresh() {
	f.Keys = FeedKeys{Active: boolKey(f.Meta.Active)}
}

// Splice applies a remote value to the record, leaving Meta untouched and
// recomputing Keys.
func (f *Feed) Splice(val FeedVal) {
	f.Val = val
	f.Refresh()
}

// IndexEntries returns the secondary index rows to persist alongside the
// feed.
func (f Feed) IndexEntries() map[string]string {
	return map[string]string{IndexActive: f.Keys.Active}
}

// Encode serializes the record for storage.
func (f Feed) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// DecodeFeed deserializes a stored feed record.
func DecodeFeed(b []byte) (Feed, error) {
	var f Feed
	if err := json.Unmarshal(b, &f); err != nil {
		return Feed{}, fmt.Errorf("%w: feed: %v", shared.ErrDecode, err)
	}
	return f, nil
}

// ChannelVal is the remote-owned portion of a channel record.
type ChannelVal struct {
	ID          string `json:"id"`
	FeedID      string `json:"feed_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	UpdateTS    int64  `json:"update_ts"`
}

// ChannelMeta is the local-only portion of a channel record.
type ChannelMeta struct {
	Active bool `json:"active"`
}

// ChannelKeys holds the derived index values for a channel. LatestBucket is
// the year-month bucket of the channel's newest item and is refreshed by
// item reconciliation, which is why item writes open the channels store too.
type ChannelKeys struct {
	FeedID       string `json:"feed_id"`
	Active       string `json:"active"`
	LatestBucket string `json:"latest_bucket"`
}

// Channel is a stored channel record.
type Channel struct {
	Val  ChannelVal  `json:"val"`
	Meta ChannelMeta `json:"meta"`
	Keys ChannelKeys `json:"keys"`
}

// NewChannel builds a fresh channel record with default Meta and derived Keys.
func NewChannel(val ChannelVal) Channel {
	c := Channel{Val: val, Meta: ChannelMeta{Active: true}}
	c.Refresh()
	return c
}

// Refresh recomputes Keys from the current Val and Meta. LatestBucket is
// carried over; it is owned by item reconciliation, not by the channel's own
// Val/Meta.
func (c *Channel) Refresh() {
	c.Keys = ChannelKeys{
		FeedID:       c.Val.FeedID,
		Active:       boolKey(c.Meta.Active),
		LatestBucket: c.Keys.LatestBucket,
	}
}

// Splice applies a remote value to the record, leaving Meta untouched and
// recomputing Keys.
func (c *Channel) Splice(val ChannelVal) {
	c.Val = val
	c.Refresh()
}

// IndexEntries returns the secondary index rows to persist alongside the
// channel.
func (c Channel) IndexEntries() map[string]string {
	return map[string]string{
		IndexFeedID:       c.Keys.FeedID,
		IndexActive:       c.Keys.Active,
		IndexLatestBucket: c.Keys.LatestBucket,
	}
}

// Encode serializes the record for storage.
func (c Channel) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// DecodeChannel deserializes a stored channel record.
func DecodeChannel(b []byte) (Channel, error) {
	var c Channel
	if err := json.Unmarshal(b, &c); err != nil {
		return Channel{}, fmt.Errorf("%w: channel: %v", shared.ErrDecode, err)
	}
	return c, nil
}

// ItemVal is the remote-owned portion of an episode record.
type ItemVal struct {
	ID           string `json:"id"`
	ChannelID    string `json:"channel_id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	EnclosureURL string `json:"enclosure_url"`
	PubTS        int64  `json:"pub_ts"`
	UpdateTS     int64  `json:"update_ts"`
}

// ItemMeta is the local-only portion of an episode record.
type ItemMeta struct {
	Unseen    bool           `json:"unseen"`
	Download  DownloadStatus `json:"download"`
	Position  float64        `json:"position"`
	PlayCount int            `json:"play_count"`
}

// ItemKeys holds the derived index values for an item.
type ItemKeys struct {
	ParentBucket     string `json:"parent_bucket"`
	DownloadRequired string `json:"download_required"`
	DownloadComplete string `json:"download_complete"`
}

// Item is a stored episode record.
type Item struct {
	Val  ItemVal  `json:"val"`
	Meta ItemMeta `json:"meta"`
	Keys ItemKeys `json:"keys"`
}

// NewItem builds a fresh item record with default Meta and derived Keys.
func NewItem(val ItemVal) Item {
	i := Item{
		Val: val,
		Meta: ItemMeta{
			Unseen:   true,
			Download: DownloadStatus{State: DownloadNotRequested},
		},
	}
	i.Refresh()
	return i
}

// Refresh recomputes Keys from the current Val and Meta.
func (i *Item) Refresh() {
	i.Keys = ItemKeys{
		ParentBucket:     BucketKey(i.Val.ChannelID, Bucket(i.Val.PubTS)),
		DownloadRequired: boolKey(i.Meta.Download.Required()),
		DownloadComplete: boolKey(i.Meta.Download.Complete()),
	}
}

// Splice applies a remote value to the record, leaving Meta untouched and
// recomputing Keys.
func (i *Item) Splice(val ItemVal) {
	i.Val = val
	i.Refresh()
}

// IndexEntries returns the secondary index rows to persist alongside the
// item. The values are exactly the current Keys, so a write can never leave
// the index out of sync with the stored record.
func (i Item) IndexEntries() map[string]string {
	return map[string]string{
		IndexParentBucket:     i.Keys.ParentBucket,
		IndexDownloadRequired: i.Keys.DownloadRequired,
		IndexDownloadComplete: i.Keys.DownloadComplete,
	}
}

// Encode serializes the record for storage.
func (i Item) Encode() ([]byte, error) {
	return json.Marshal(i)
}

// DecodeItem deserializes a stored item record.
func DecodeItem(b []byte) (Item, error) {
	var i Item
	if err := json.Unmarshal(b, &i); err != nil {
		return Item{}, fmt.Errorf("%w: item: %v", shared.ErrDecode, err)
	}
	return i, nil
}
