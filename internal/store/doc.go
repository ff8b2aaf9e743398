// Package store implements the gateway to the local SQLite database as a set
// of named object stores with secondary indexes and asynchronous,
// event-reported requests.
//
// # Shape
//
// A [Gateway] owns one worker goroutine and an unbounded operation queue.
// Callers never block: [Gateway.Open], every [ObjectStore] request and
// [Txn.Commit]/[Txn.Rollback] enqueue work and return immediately. The
// worker executes operations and reports each outcome as an [Event] posted
// to the gateway's [Sink]. Request success is reported separately from
// transaction completion: a request that succeeded inside a transaction is
// not durable until the transaction's [TxnComplete] event arrives.
//
// # Transactions
//
// [Gateway.Begin] declares a mode and a store scope up front. Requests
// against stores outside the scope, or writes inside a Readonly transaction,
// fail the request and poison the transaction; a later commit then rolls
// back and reports [TxnAborted]. Transactions are serialized by the worker:
// operations belonging to a transaction other than the active one wait until
// the active transaction finishes, so two read-modify-write sequences can
// never interleave on the same record.
//
// # Layout
//
// All stores share two tables. The records table holds (store, key, value)
// rows; the record_index table holds (store, index, index-key, key) rows
// replaced wholesale on every put, so index entries always match the value
// that produced them.
package store
