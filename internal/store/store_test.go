package store

import (
	"errors"
	"testing"
	"time"

	"github.com/podkeep/podkeep/internal/shared"
)

// testSink records every event on a channel so tests can await completions
// in order.
type testSink struct {
	events chan Event
}

func newTestSink() *testSink {
	return &testSink{events: make(chan Event, 256)}
}

func (s *testSink) Post(ev Event) { s.events <- ev }

func (s *testSink) next(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-s.events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for store event")
		return Event{}
	}
}

// await drains events until one matches the request id.
func (s *testSink) await(t *testing.T, reqID int64) Event {
	t.Helper()
	for {
		ev := s.next(t)
		if ev.RequestID == reqID {
			return ev
		}
	}
}

// awaitTxn drains events until the transaction's terminal event arrives.
func (s *testSink) awaitTxn(t *testing.T, txnID int64) Event {
	t.Helper()
	for {
		ev := s.next(t)
		if ev.RequestID == 0 && ev.TxnID == txnID {
			return ev
		}
	}
}

func openGateway(t *testing.T) (*Gateway, *testSink) {
	t.Helper()
	sink := newTestSink()
	gw := NewGateway(":memory:", sink, shared.NewLogger(nil))
	gw.Open()

	ev := sink.next(t)
	if ev.Kind != StoreReady {
		t.Fatalf("expected StoreReady first, got %v", ev.Kind)
	}
	if ev.Err != nil {
		t.Fatalf("store failed to open: %v", ev.Err)
	}
	t.Cleanup(gw.Close)
	return gw, sink
}

func TestGatewayOpen(t *testing.T) {
	t.Run("Ready event", func(t *testing.T) {
		openGateway(t)
	})

	t.Run("Open failure reported", func(t *testing.T) {
		sink := newTestSink()
		gw := NewGateway("/nonexistent/dir/podkeep.db", sink, shared.NewLogger(nil))
		gw.Open()
		defer gw.Close()

		ev := sink.next(t)
		if ev.Kind != StoreReady {
			t.Fatalf("expected StoreReady, got %v", ev.Kind)
		}
		if ev.Err == nil {
			t.Error("expected open error for bad path")
		}
	})
}

func TestGatewayClose(t *testing.T) {
	t.Run("Close fails ops stranded behind an open transaction", func(t *testing.T) {
		gw, sink := openGateway(t)

		a := gw.Begin(ReadWrite, Feeds)
		putA := a.Store(Feeds).Put("f1", []byte("x"), nil)
		sink.await(t, putA.ID) // a's sql transaction is now open

		// b's read is queued behind a and still waiting when Close runs.
		// It must fail instead of blocking on the connection a holds.
		b := gw.Begin(ReadOnly, Feeds)
		getB := b.Store(Feeds).Get("f1")

		closed := make(chan struct{})
		go func() {
			gw.Close()
			close(closed)
		}()

		ev := sink.await(t, getB.ID)
		if ev.Kind != RequestFailed {
			t.Fatalf("expected stranded request to fail, got %v", ev.Kind)
		}
		if !errors.Is(ev.Err, shared.ErrStoreClosed) {
			t.Errorf("expected ErrStoreClosed, got %v", ev.Err)
		}

		select {
		case <-closed:
		case <-time.After(5 * time.Second):
			t.Fatal("Close hung draining ops stranded behind an open transaction")
		}
	})
}

func TestTransactions(t *testing.T) {
	t.Run("Put Get Commit", func(t *testing.T) {
		gw, sink := openGateway(t)

		txn := gw.Begin(ReadWrite, Feeds)
		put := txn.Store(Feeds).Put("f1", []byte(`{"v":1}`), map[string]string{"active": "true"})
		if ev := sink.await(t, put.ID); ev.Kind != RequestDone {
			t.Fatalf("put failed: %v", ev.Err)
		}

		get := txn.Store(Feeds).Get("f1")
		ev := sink.await(t, get.ID)
		if ev.Kind != RequestDone {
			t.Fatalf("get failed: %v", ev.Err)
		}
		if len(ev.Rows) != 1 || string(ev.Rows[0].Val) != `{"v":1}` {
			t.Fatalf("unexpected rows: %+v", ev.Rows)
		}

		txn.Commit()
		if ev := sink.awaitTxn(t, txn.ID()); ev.Kind != TxnComplete {
			t.Fatalf("expected TxnComplete, got %v (%v)", ev.Kind, ev.Err)
		}

		stats := gw.Stats()
		if stats.Puts != 1 {
			t.Errorf("expected 1 put, got %d", stats.Puts)
		}
	})

	t.Run("Missing key yields zero rows", func(t *testing.T) {
		gw, sink := openGateway(t)

		txn := gw.Begin(ReadOnly, Feeds)
		get := txn.Store(Feeds).Get("missing")
		ev := sink.await(t, get.ID)
		if ev.Kind != RequestDone {
			t.Fatalf("get failed: %v", ev.Err)
		}
		if len(ev.Rows) != 0 {
			t.Errorf("expected no rows, got %d", len(ev.Rows))
		}
		txn.Commit()
		sink.awaitTxn(t, txn.ID())
	})

	t.Run("Rollback discards writes", func(t *testing.T) {
		gw, sink := openGateway(t)

		txn := gw.Begin(ReadWrite, Feeds)
		put := txn.Store(Feeds).Put("f1", []byte("x"), nil)
		sink.await(t, put.ID)
		txn.Rollback()
		if ev := sink.awaitTxn(t, txn.ID()); ev.Kind != TxnAborted {
			t.Fatalf("expected TxnAborted, got %v", ev.Kind)
		}

		check := gw.Begin(ReadOnly, Feeds)
		get := check.Store(Feeds).Get("f1")
		if ev := sink.await(t, get.ID); len(ev.Rows) != 0 {
			t.Errorf("rolled back write still visible: %+v", ev.Rows)
		}
		check.Commit()
		sink.awaitTxn(t, check.ID())
	})

	t.Run("Write in read-only txn fails", func(t *testing.T) {
		gw, sink := openGateway(t)

		txn := gw.Begin(ReadOnly, Feeds)
		put := txn.Store(Feeds).Put("f1", []byte("x"), nil)
		ev := sink.await(t, put.ID)
		if ev.Kind != RequestFailed {
			t.Fatal("expected RequestFailed for write in read-only txn")
		}
		if !errors.Is(ev.Err, shared.ErrReadOnly) {
			t.Errorf("expected ErrReadOnly, got %v", ev.Err)
		}

		// A poisoned transaction aborts even on commit.
		txn.Commit()
		if ev := sink.awaitTxn(t, txn.ID()); ev.Kind != TxnAborted {
			t.Fatalf("expected TxnAborted after failed request, got %v", ev.Kind)
		}
	})

	t.Run("Out of scope store fails", func(t *testing.T) {
		gw, sink := openGateway(t)

		txn := gw.Begin(ReadWrite, Feeds)
		get := txn.Store(Items).Get("i1")
		ev := sink.await(t, get.ID)
		if !errors.Is(ev.Err, shared.ErrOutOfScope) {
			t.Errorf("expected ErrOutOfScope, got %v", ev.Err)
		}
		txn.Rollback()
		sink.awaitTxn(t, txn.ID())
	})

	t.Run("Add rejects duplicates and poisons txn", func(t *testing.T) {
		gw, sink := openGateway(t)

		setup := gw.Begin(ReadWrite, Feeds)
		add := setup.Store(Feeds).Add("f1", []byte("a"), nil)
		sink.await(t, add.ID)
		setup.Commit()
		sink.awaitTxn(t, setup.ID())

		txn := gw.Begin(ReadWrite, Feeds)
		dup := txn.Store(Feeds).Add("f1", []byte("b"), nil)
		ev := sink.await(t, dup.ID)
		if !errors.Is(ev.Err, shared.ErrConstraint) {
			t.Errorf("expected ErrConstraint, got %v", ev.Err)
		}

		// Later requests in the poisoned txn fail too.
		get := txn.Store(Feeds).Get("f1")
		if ev := sink.await(t, get.ID); !errors.Is(ev.Err, shared.ErrTxnAborted) {
			t.Errorf("expected ErrTxnAborted for request after poison, got %v", ev.Err)
		}

		txn.Commit()
		if ev := sink.awaitTxn(t, txn.ID()); ev.Kind != TxnAborted {
			t.Fatalf("expected TxnAborted, got %v", ev.Kind)
		}

		// Original record survives.
		check := gw.Begin(ReadOnly, Feeds)
		getOrig := check.Store(Feeds).Get("f1")
		if ev := sink.await(t, getOrig.ID); len(ev.Rows) != 1 || string(ev.Rows[0].Val) != "a" {
			t.Errorf("original record damaged: %+v", ev.Rows)
		}
		check.Commit()
		sink.awaitTxn(t, check.ID())
	})

	t.Run("Interleaved transactions serialize", func(t *testing.T) {
		gw, sink := openGateway(t)

		a := gw.Begin(ReadWrite, Feeds)
		putA := a.Store(Feeds).Put("f1", []byte("from-a"), nil)
		sink.await(t, putA.ID)

		// b's read is enqueued while a is still active; it must not run
		// until a commits.
		b := gw.Begin(ReadOnly, Feeds)
		getB := b.Store(Feeds).Get("f1")

		a.Commit()
		if ev := sink.awaitTxn(t, a.ID()); ev.Kind != TxnComplete {
			t.Fatalf("a failed to commit: %v", ev.Err)
		}

		ev := sink.await(t, getB.ID)
		if ev.Kind != RequestDone {
			t.Fatalf("b read failed: %v", ev.Err)
		}
		if len(ev.Rows) != 1 || string(ev.Rows[0].Val) != "from-a" {
			t.Errorf("b should observe a's committed write, got %+v", ev.Rows)
		}
		b.Commit()
		sink.awaitTxn(t, b.ID())
	})
}

func TestIndexes(t *testing.T) {
	seed := func(t *testing.T, gw *Gateway, sink *testSink) {
		txn := gw.Begin(ReadWrite, Items)
		os := txn.Store(Items)
		rows := []struct {
			key    string
			bucket string
		}{
			{"i1", "c1/2024-01"},
			{"i2", "c1/2024-01"},
			{"i3", "c1/2024-03"},
			{"i4", "c2/2024-02"},
		}
		for _, row := range rows {
			req := os.Put(row.key, []byte(row.key), map[string]string{"parent_bucket": row.bucket})
			sink.await(t, req.ID)
		}
		txn.Commit()
		if ev := sink.awaitTxn(t, txn.ID()); ev.Kind != TxnComplete {
			t.Fatalf("seed failed: %v", ev.Err)
		}
	}

	t.Run("GetByIndex", func(t *testing.T) {
		gw, sink := openGateway(t)
		seed(t, gw, sink)

		txn := gw.Begin(ReadOnly, Items)
		get := txn.Store(Items).GetByIndex("parent_bucket", "c1/2024-01")
		ev := sink.await(t, get.ID)
		if len(ev.Rows) != 2 {
			t.Fatalf("expected 2 rows, got %d", len(ev.Rows))
		}
		if ev.Rows[0].Key != "i1" || ev.Rows[1].Key != "i2" {
			t.Errorf("rows not ordered by key: %+v", ev.Rows)
		}
		txn.Commit()
		sink.awaitTxn(t, txn.ID())
	})

	t.Run("GetByIndexRange", func(t *testing.T) {
		gw, sink := openGateway(t)
		seed(t, gw, sink)

		txn := gw.Begin(ReadOnly, Items)
		get := txn.Store(Items).GetByIndexRange("parent_bucket", "c1/", "c1/\uffff")
		ev := sink.await(t, get.ID)
		if len(ev.Rows) != 3 {
			t.Fatalf("expected 3 rows for channel c1, got %d", len(ev.Rows))
		}
		txn.Commit()
		sink.awaitTxn(t, txn.ID())
	})

	t.Run("NextIndexKey walks buckets descending", func(t *testing.T) {
		gw, sink := openGateway(t)
		seed(t, gw, sink)

		txn := gw.Begin(ReadOnly, Items)
		os := txn.Store(Items)

		var got []string
		before := ""
		for {
			req := os.NextIndexKey("parent_bucket", "c1/", before)
			ev := sink.await(t, req.ID)
			if ev.Kind != RequestDone {
				t.Fatalf("cursor step failed: %v", ev.Err)
			}
			if ev.IndexKey == "" {
				break
			}
			got = append(got, ev.IndexKey)
			before = ev.IndexKey
		}
		txn.Commit()
		sink.awaitTxn(t, txn.ID())

		want := []string{"c1/2024-03", "c1/2024-01"}
		if len(got) != len(want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("bucket %d: expected %s, got %s", i, want[i], got[i])
			}
		}
	})

	t.Run("Put replaces index entries", func(t *testing.T) {
		gw, sink := openGateway(t)
		seed(t, gw, sink)

		txn := gw.Begin(ReadWrite, Items)
		put := txn.Store(Items).Put("i3", []byte("i3"), map[string]string{"parent_bucket": "c1/2024-04"})
		sink.await(t, put.ID)
		txn.Commit()
		sink.awaitTxn(t, txn.ID())

		check := gw.Begin(ReadOnly, Items)
		old := check.Store(Items).GetByIndex("parent_bucket", "c1/2024-03")
		if ev := sink.await(t, old.ID); len(ev.Rows) != 0 {
			t.Errorf("stale index entry survived reindex: %+v", ev.Rows)
		}
		moved := check.Store(Items).GetByIndex("parent_bucket", "c1/2024-04")
		if ev := sink.await(t, moved.ID); len(ev.Rows) != 1 {
			t.Errorf("expected reindexed row, got %+v", ev.Rows)
		}
		check.Commit()
		sink.awaitTxn(t, check.ID())
	})

	t.Run("Delete removes record and index", func(t *testing.T) {
		gw, sink := openGateway(t)
		seed(t, gw, sink)

		txn := gw.Begin(ReadWrite, Items)
		del := txn.Store(Items).Delete("i4")
		sink.await(t, del.ID)
		txn.Commit()
		sink.awaitTxn(t, txn.ID())

		check := gw.Begin(ReadOnly, Items)
		get := check.Store(Items).Get("i4")
		if ev := sink.await(t, get.ID); len(ev.Rows) != 0 {
			t.Error("deleted record still present")
		}
		byIdx := check.Store(Items).GetByIndex("parent_bucket", "c2/2024-02")
		if ev := sink.await(t, byIdx.ID); len(ev.Rows) != 0 {
			t.Error("deleted record still indexed")
		}
		check.Commit()
		sink.awaitTxn(t, check.ID())

		if gw.Stats().Deletes != 1 {
			t.Errorf("expected 1 delete, got %d", gw.Stats().Deletes)
		}
	})
}
