package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/podkeep/podkeep/internal/shared"
)

// Txn is a transaction handle scoped to a declared set of stores. The
// underlying sql.Tx is started lazily by the worker on the first request.
// All fields below gw are worker-owned.
type Txn struct {
	id    int64
	gw    *Gateway
	mode  Mode
	scope map[string]struct{}

	tx       *sql.Tx
	failed   error
	finished bool
}

// Begin creates a transaction over the given stores. Requests against other
// stores fail and poison the transaction.
func (g *Gateway) Begin(mode Mode, stores ...string) *Txn {
	t := &Txn{
		id:    g.nextID.Add(1),
		gw:    g,
		mode:  mode,
		scope: make(map[string]struct{}, len(stores)),
	}
	for _, s := range stores {
		t.scope[s] = struct{}{}
	}
	return t
}

// ID returns the transaction's correlation id.
func (t *Txn) ID() int64 { return t.id }

// Store returns a request handle for one named store inside the transaction.
func (t *Txn) Store(name string) *ObjectStore {
	return &ObjectStore{txn: t, name: name}
}

// Commit schedules the transaction finish. The outcome arrives as a
// [TxnComplete] event, or [TxnAborted] if any request failed or the commit
// itself fails.
func (t *Txn) Commit() {
	t.gw.enqueue(t.id, func(w *worker) { w.finish(t, true) })
}

// Rollback schedules an unconditional abort, reported as [TxnAborted].
func (t *Txn) Rollback() {
	t.gw.enqueue(t.id, func(w *worker) { w.finish(t, false) })
}

func (w *worker) finish(t *Txn, commit bool) {
	if t.finished {
		return
	}
	t.finished = true

	ev := Event{Kind: TxnComplete, TxnID: t.id}
	switch {
	case t.tx == nil:
		if t.failed != nil || !commit {
			ev.Kind = TxnAborted
			ev.Err = t.failed
			if ev.Err == nil {
				ev.Err = shared.ErrTxnAborted
			}
		}
	case t.failed != nil || !commit:
		_ = t.tx.Rollback()
		w.gw.setCurrent(0)
		ev.Kind = TxnAborted
		ev.Err = t.failed
		if ev.Err == nil {
			ev.Err = shared.ErrTxnAborted
		}
	default:
		err := t.tx.Commit()
		w.gw.setCurrent(0)
		if err != nil {
			ev.Kind = TxnAborted
			ev.Err = fmt.Errorf("%w: commit: %v", shared.ErrTxnAborted, err)
		}
	}
	w.gw.sink.Post(ev)
}

// prepare validates a request against the transaction and lazily begins the
// sql.Tx. Returns the error that should fail the request.
func (w *worker) prepare(t *Txn, storeName string, write bool) error {
	if w.db == nil {
		return shared.ErrStoreClosed
	}
	if t.finished {
		return fmt.Errorf("%w: transaction finished", shared.ErrTxnAborted)
	}
	if t.failed != nil {
		return fmt.Errorf("%w: earlier request failed", shared.ErrTxnAborted)
	}
	if _, ok := t.scope[storeName]; !ok {
		return fmt.Errorf("%w: %s", shared.ErrOutOfScope, storeName)
	}
	if write && t.mode != ReadWrite {
		return fmt.Errorf("%w: %s", shared.ErrReadOnly, storeName)
	}
	if t.tx == nil {
		if w.gw.isClosed() {
			return fmt.Errorf("%w: closing", shared.ErrStoreClosed)
		}
		tx, err := w.db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		t.tx = tx
		w.gw.setCurrent(t.id)
	}
	return nil
}

// Request identifies one outstanding store request.
type Request struct {
	ID    int64
	TxnID int64
}

// ObjectStore issues requests against one named store inside a transaction.
type ObjectStore struct {
	txn  *Txn
	name string
}

func (s *ObjectStore) submit(write bool, run func(w *worker, tx *sql.Tx, ev *Event) error) *Request {
	t := s.txn
	req := &Request{ID: t.gw.nextID.Add(1), TxnID: t.id}
	t.gw.enqueue(t.id, func(w *worker) {
		ev := Event{Kind: RequestDone, RequestID: req.ID, TxnID: t.id}
		err := w.prepare(t, s.name, write)
		if err == nil {
			err = run(w, t.tx, &ev)
		}
		if err != nil {
			t.failed = err
			ev.Kind = RequestFailed
			ev.Err = err
			ev.Rows = nil
			ev.IndexKey = ""
		}
		t.gw.sink.Post(ev)
	})
	return req
}

// Get reads one record by primary key. A missing key yields zero rows, not
// an error.
func (s *ObjectStore) Get(key string) *Request {
	return s.submit(false, func(w *worker, tx *sql.Tx, ev *Event) error {
		rows, err := tx.Query(`SELECT k, v FROM records WHERE store = ? AND k = ?`, s.name, key)
		if err != nil {
			return fmt.Errorf("get %s/%s: %w", s.name, key, err)
		}
		ev.Rows, err = collectRows(rows)
		return err
	})
}

// GetAll reads every record in the store ordered by key.
func (s *ObjectStore) GetAll() *Request {
	return s.submit(false, func(w *worker, tx *sql.Tx, ev *Event) error {
		rows, err := tx.Query(`SELECT k, v FROM records WHERE store = ? ORDER BY k`, s.name)
		if err != nil {
			return fmt.Errorf("getAll %s: %w", s.name, err)
		}
		ev.Rows, err = collectRows(rows)
		return err
	})
}

// GetByIndex reads every record whose index entry equals key.
func (s *ObjectStore) GetByIndex(idx, key string) *Request {
	return s.submit(false, func(w *worker, tx *sql.Tx, ev *Event) error {
		rows, err := tx.Query(
			`SELECT r.k, r.v FROM record_index i
			 JOIN records r ON r.store = i.store AND r.k = i.k
			 WHERE i.store = ? AND i.idx = ? AND i.ikey = ?
			 ORDER BY r.k`,
			s.name, idx, key)
		if err != nil {
			return fmt.Errorf("getByIndex %s/%s=%s: %w", s.name, idx, key, err)
		}
		ev.Rows, err = collectRows(rows)
		return err
	})
}

// GetByIndexRange reads every record whose index entry is in [lo, hi].
func (s *ObjectStore) GetByIndexRange(idx, lo, hi string) *Request {
	return s.submit(false, func(w *worker, tx *sql.Tx, ev *Event) error {
		rows, err := tx.Query(
			`SELECT r.k, r.v FROM record_index i
			 JOIN records r ON r.store = i.store AND r.k = i.k
			 WHERE i.store = ? AND i.idx = ? AND i.ikey BETWEEN ? AND ?
			 ORDER BY i.ikey, r.k`,
			s.name, idx, lo, hi)
		if err != nil {
			return fmt.Errorf("getByIndexRange %s/%s: %w", s.name, idx, err)
		}
		ev.Rows, err = collectRows(rows)
		return err
	})
}

// NextIndexKey performs one descending cursor step over the distinct index
// keys starting with prefix. A non-empty before bounds the step strictly
// below it; the result arrives in the event's IndexKey, empty when the
// cursor is exhausted.
func (s *ObjectStore) NextIndexKey(idx, prefix, before string) *Request {
	return s.submit(false, func(w *worker, tx *sql.Tx, ev *Event) error {
		upper := prefix + "\uffff"
		if before != "" && before < upper {
			upper = before
		}
		row := tx.QueryRow(
			`SELECT DISTINCT ikey FROM record_index
			 WHERE store = ? AND idx = ? AND ikey >= ? AND ikey < ?
			 ORDER BY ikey DESC LIMIT 1`,
			s.name, idx, prefix, upper)
		var k string
		switch err := row.Scan(&k); err {
		case nil:
			ev.IndexKey = k
			return nil
		case sql.ErrNoRows:
			return nil
		default:
			return fmt.Errorf("nextIndexKey %s/%s: %w", s.name, idx, err)
		}
	})
}

// Put inserts or replaces a record and replaces its index entries wholesale.
func (s *ObjectStore) Put(key string, val []byte, index map[string]string) *Request {
	return s.submit(true, func(w *worker, tx *sql.Tx, ev *Event) error {
		_, err := tx.Exec(
			`INSERT INTO records (store, k, v) VALUES (?, ?, ?)
			 ON CONFLICT (store, k) DO UPDATE SET v = excluded.v`,
			s.name, key, val)
		if err != nil {
			return fmt.Errorf("put %s/%s: %w", s.name, key, err)
		}
		if err := w.reindex(tx, s.name, key, index); err != nil {
			return err
		}
		w.gw.puts.Add(1)
		return nil
	})
}

// Add inserts a record, failing with [shared.ErrConstraint] if the key
// already exists.
func (s *ObjectStore) Add(key string, val []byte, index map[string]string) *Request {
	return s.submit(true, func(w *worker, tx *sql.Tx, ev *Event) error {
		_, err := tx.Exec(`INSERT INTO records (store, k, v) VALUES (?, ?, ?)`, s.name, key, val)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint") {
				return fmt.Errorf("%w: %s/%s", shared.ErrConstraint, s.name, key)
			}
			return fmt.Errorf("add %s/%s: %w", s.name, key, err)
		}
		if err := w.reindex(tx, s.name, key, index); err != nil {
			return err
		}
		w.gw.puts.Add(1)
		return nil
	})
}

// Delete removes a record and its index entries. Deleting a missing key is
// a no-op.
func (s *ObjectStore) Delete(key string) *Request {
	return s.submit(true, func(w *worker, tx *sql.Tx, ev *Event) error {
		if _, err := tx.Exec(`DELETE FROM records WHERE store = ? AND k = ?`, s.name, key); err != nil {
			return fmt.Errorf("delete %s/%s: %w", s.name, key, err)
		}
		if _, err := tx.Exec(`DELETE FROM record_index WHERE store = ? AND k = ?`, s.name, key); err != nil {
			return fmt.Errorf("delete index %s/%s: %w", s.name, key, err)
		}
		w.gw.deletes.Add(1)
		return nil
	})
}

func (w *worker) reindex(tx *sql.Tx, storeName, key string, index map[string]string) error {
	if _, err := tx.Exec(`DELETE FROM record_index WHERE store = ? AND k = ?`, storeName, key); err != nil {
		return fmt.Errorf("reindex %s/%s: %w", storeName, key, err)
	}
	for idx, ikey := range index {
		if _, err := tx.Exec(
			`INSERT INTO record_index (store, idx, ikey, k) VALUES (?, ?, ?, ?)`,
			storeName, idx, ikey, key); err != nil {
			return fmt.Errorf("reindex %s/%s: %w", storeName, key, err)
		}
	}
	return nil
}

func collectRows(rows *sql.Rows) ([]KV, error) {
	defer rows.Close()
	var out []KV
	for rows.Next() {
		var kv KV
		if err := rows.Scan(&kv.Key, &kv.Val); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, kv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}
