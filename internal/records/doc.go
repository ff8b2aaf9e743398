// Package records defines the persistent data model for the local podcast cache.
//
// Every stored record is the triple Val + Meta + Keys:
//
//   - Val holds the fields owned by the remote source of truth. The local
//     side never edits them except by applying a remote update through
//     reconciliation.
//   - Meta holds the fields owned exclusively by this client (subscription
//     state, download status, playback position, play counts). Remote
//     updates must leave Meta untouched.
//   - Keys holds derived secondary-index values. They are recomputed from
//     the current Val and Meta by [Feed.Refresh], [Channel.Refresh] and
//     [Item.Refresh] before every persist so the stored keys can never
//     drift from the value that produced them.
//
// The three record kinds form the podcast hierarchy: [Feed] (one per
// subscribed URL), [Channel] (the document-level metadata of that feed) and
// [Item] (one per episode). Downloads move through the closed
// [DownloadStatus] state set; transitions happen only via
// [DownloadStatus.Transition] so illegal jumps surface as errors.
//
// Response types ([UpdatedFeed], [ItemList], [Blob], ...) are the terminal
// payloads tasks hand back to callers; the Updated* responses carry a bus
// topic so the engine can fan them out to subscribers.
package records
