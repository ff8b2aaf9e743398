package records

import "time"

// Names of the secondary indexes maintained on the items store.
const (
	IndexParentBucket     = "parent_bucket"
	IndexDownloadRequired = "download_required"
	IndexDownloadComplete = "download_complete"
)

// Names of the secondary indexes maintained on the feeds and channels stores.
const (
	IndexActive       = "active"
	IndexFeedID       = "feed_id"
	IndexLatestBucket = "latest_bucket"
)

// Bucket returns the year-month pagination bucket for a unix timestamp,
// e.g. "2024-03". Zero timestamps fall into the "0000-00" bucket so they
// sort before any real month.
func Bucket(ts int64) string {
	if ts <= 0 {
		return "0000-00"
	}
	return time.Unix(ts, 0).UTC().Format("2006-01")
}

// BucketKey builds the composite index key for items of one channel in one
// month bucket.
func BucketKey(channelID, bucket string) string {
	return channelID + "/" + bucket
}

// BucketPrefix is the index-key prefix covering every bucket of a channel,
// used for cursor walks over the available buckets.
func BucketPrefix(channelID string) string {
	return channelID + "/"
}

func boolKey(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
