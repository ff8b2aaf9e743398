package store

// Names of the logical object stores.
const (
	Feeds      = "feeds"
	Channels   = "channels"
	Items      = "items"
	Enclosures = "enclosures"
	Config     = "config"
)

// Mode selects what a transaction is allowed to do.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

// EventKind identifies what an [Event] reports.
type EventKind int

const (
	// StoreReady reports the outcome of [Gateway.Open]. Err is set when
	// opening or migrating the database failed.
	StoreReady EventKind = iota
	// RequestDone reports a successful request.
	RequestDone
	// RequestFailed reports a failed request. The owning transaction is
	// poisoned and will abort on commit.
	RequestFailed
	// TxnComplete reports that a transaction committed durably.
	TxnComplete
	// TxnAborted reports that a transaction rolled back.
	TxnAborted
)

// KV is one stored key/value row.
type KV struct {
	Key string
	Val []byte
}

// Event is the completion report for a request or transaction. Request
// events carry a non-zero RequestID; transaction events carry only TxnID.
type Event struct {
	Kind      EventKind
	RequestID int64
	TxnID     int64
	Rows      []KV   // result rows for get/getAll/getByIndex requests
	IndexKey  string // result of a cursor step; empty means exhausted
	Err       error
}

// Sink receives completion events. The engine's dispatch loop is the one
// sink in production.
type Sink interface {
	Post(Event)
}

// SinkFunc adapts a function to the [Sink] interface.
type SinkFunc func(Event)

// Post calls f(e).
func (f SinkFunc) Post(e Event) { f(e) }
