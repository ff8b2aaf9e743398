package engine

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/podkeep/podkeep/internal/bus"
	"github.com/podkeep/podkeep/internal/shared"
	"github.com/podkeep/podkeep/internal/store"
)

// putTask writes one record and reports "stored" once durable.
type putTask struct {
	storeName string
	key       string
	val       string
	exclusive string

	stage int
	txn   *store.Txn
}

func (p *putTask) Name() string         { return "test-put" }
func (p *putTask) ExclusiveKey() string { return p.exclusive }

func (p *putTask) Issue(gw *store.Gateway) (*store.Txn, []*store.Request, error) {
	p.txn = gw.Begin(store.ReadWrite, p.storeName)
	req := p.txn.Store(p.storeName).Put(p.key, []byte(p.val), nil)
	return p.txn, []*store.Request{req}, nil
}

func (p *putTask) Advance(ev store.Event) (Progress, error) {
	if ev.Err != nil {
		return Progress{}, ev.Err
	}
	if p.stage == 0 {
		p.stage = 1
		p.txn.Commit()
		return Progress{}, nil
	}
	return Progress{Done: true, Response: "stored"}, nil
}

// getTask reads one record and reports its value.
type getTask struct {
	storeName string
	key       string

	stage int
	txn   *store.Txn
	val   string
}

func (g *getTask) Name() string { return "test-get" }

func (g *getTask) Issue(gw *store.Gateway) (*store.Txn, []*store.Request, error) {
	g.txn = gw.Begin(store.ReadOnly, g.storeName)
	req := g.txn.Store(g.storeName).Get(g.key)
	return g.txn, []*store.Request{req}, nil
}

func (g *getTask) Advance(ev store.Event) (Progress, error) {
	if ev.Err != nil {
		return Progress{}, ev.Err
	}
	if g.stage == 0 {
		if len(ev.Rows) > 0 {
			g.val = string(ev.Rows[0].Val)
		}
		g.stage = 1
		g.txn.Commit()
		return Progress{}, nil
	}
	return Progress{Done: true, Response: g.val}, nil
}

// rogueTask issues a request against a store outside its declared scope, so
// its first event is a failure.
type rogueTask struct {
	txn *store.Txn
}

func (r *rogueTask) Name() string { return "test-rogue" }

func (r *rogueTask) Issue(gw *store.Gateway) (*store.Txn, []*store.Request, error) {
	r.txn = gw.Begin(store.ReadWrite, store.Feeds)
	req := r.txn.Store(store.Items).Get("nope")
	return r.txn, []*store.Request{req}, nil
}

func (r *rogueTask) Advance(ev store.Event) (Progress, error) {
	if ev.Err != nil {
		return Progress{}, ev.Err
	}
	return Progress{}, fmt.Errorf("expected a failed request")
}

// stillbornTask fails in Issue after opening its transaction.
type stillbornTask struct {
	exclusive string
	txn       *store.Txn
}

func (s *stillbornTask) Name() string         { return "test-stillborn" }
func (s *stillbornTask) ExclusiveKey() string { return s.exclusive }

func (s *stillbornTask) Issue(gw *store.Gateway) (*store.Txn, []*store.Request, error) {
	s.txn = gw.Begin(store.ReadWrite, store.Feeds)
	return s.txn, nil, errors.New("refused to start")
}

func (s *stillbornTask) Advance(ev store.Event) (Progress, error) {
	return Progress{}, fmt.Errorf("stillborn task must not advance")
}

// holdTask writes one record and then idles without committing, keeping its
// transaction open until the engine shuts it down.
type holdTask struct {
	key string
	txn *store.Txn
}

func (h *holdTask) Name() string { return "test-hold" }

func (h *holdTask) Issue(gw *store.Gateway) (*store.Txn, []*store.Request, error) {
	h.txn = gw.Begin(store.ReadWrite, store.Feeds)
	req := h.txn.Store(store.Feeds).Put(h.key, []byte("held"), nil)
	return h.txn, []*store.Request{req}, nil
}

func (h *holdTask) Advance(ev store.Event) (Progress, error) {
	if ev.Err != nil {
		return Progress{}, ev.Err
	}
	return Progress{}, nil
}

// newTestEngine opens an engine on a fresh in-memory store without starting
// the dispatch goroutine; tests pump events through handle directly.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(":memory:", nil, shared.NewLogger(nil))
	e.gw.Open()
	e.handleNext(t)
	if !e.ready {
		t.Fatal("expected StoreReady first")
	}
	if e.openErr != nil {
		t.Fatalf("store failed to open: %v", e.openErr)
	}
	t.Cleanup(func() {
		close(e.quit)
		e.gw.Close()
	})
	return e
}

// handleNext pulls one event off the sink and dispatches it.
func (e *Engine) handleNext(t *testing.T) {
	t.Helper()
	select {
	case ev := <-e.events:
		e.handle(ev)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for store event")
	}
}

// submitDirect bypasses the dispatch goroutine.
func (e *Engine) submitDirect(task Task) chan Result {
	reply := make(chan Result, 1)
	e.accept(submission{task: task, caller: "test", reply: reply})
	return reply
}

// pump dispatches events until the reply resolves.
func (e *Engine) pump(t *testing.T, reply chan Result) Result {
	t.Helper()
	for {
		select {
		case res := <-reply:
			return res
		default:
		}
		e.handleNext(t)
	}
}

// settle dispatches events until no in-flight task remains.
func (e *Engine) settle(t *testing.T) {
	t.Helper()
	for len(e.inflight) > 0 {
		e.handleNext(t)
	}
}

func TestEngineLifecycle(t *testing.T) {
	t.Run("Task runs to durable completion", func(t *testing.T) {
		e := newTestEngine(t)

		res := e.pump(t, e.submitDirect(&putTask{storeName: store.Feeds, key: "f1", val: "hello"}))
		if res.Err != nil {
			t.Fatalf("put task failed: %v", res.Err)
		}
		if res.Response != "stored" {
			t.Errorf("unexpected response: %v", res.Response)
		}

		res = e.pump(t, e.submitDirect(&getTask{storeName: store.Feeds, key: "f1"}))
		if res.Err != nil {
			t.Fatalf("get task failed: %v", res.Err)
		}
		if res.Response != "hello" {
			t.Errorf("expected committed value, got %v", res.Response)
		}
	})

	t.Run("State is clean after completion", func(t *testing.T) {
		e := newTestEngine(t)
		e.pump(t, e.submitDirect(&putTask{storeName: store.Feeds, key: "f1", val: "x"}))
		e.settle(t)

		if len(e.inflight) != 0 {
			t.Errorf("inflight not empty: %d", len(e.inflight))
		}
		if len(e.locks) != 0 {
			t.Errorf("locks not empty: %d", len(e.locks))
		}
		if len(e.reg.byRequest) != 0 || len(e.reg.byTxn) != 0 {
			t.Errorf("registry not empty: %d requests, %d txns", len(e.reg.byRequest), len(e.reg.byTxn))
		}
	})
}

func TestEngineBuffering(t *testing.T) {
	t.Run("Submissions buffered until ready, drained in order", func(t *testing.T) {
		e := New(":memory:", nil, shared.NewLogger(nil))
		t.Cleanup(func() {
			close(e.quit)
			e.gw.Close()
		})

		reply1 := e.submitDirect(&putTask{storeName: store.Feeds, key: "f1", val: "first"})
		reply2 := e.submitDirect(&putTask{storeName: store.Feeds, key: "f1", val: "second"})

		if len(e.pending) != 2 {
			t.Fatalf("expected 2 buffered submissions, got %d", len(e.pending))
		}
		select {
		case <-reply1:
			t.Fatal("task resolved before store was ready")
		default:
		}

		e.gw.Open()
		if res := e.pump(t, reply1); res.Err != nil {
			t.Fatalf("first task failed: %v", res.Err)
		}
		if res := e.pump(t, reply2); res.Err != nil {
			t.Fatalf("second task failed: %v", res.Err)
		}

		// Last writer wins confirms drain order.
		res := e.pump(t, e.submitDirect(&getTask{storeName: store.Feeds, key: "f1"}))
		if res.Response != "second" {
			t.Errorf("expected second write to land last, got %v", res.Response)
		}
	})

	t.Run("Open failure fails buffered and later submissions", func(t *testing.T) {
		e := New("/nonexistent/dir/podkeep.db", nil, shared.NewLogger(nil))
		t.Cleanup(func() {
			close(e.quit)
			e.gw.Close()
		})

		reply := e.submitDirect(&putTask{storeName: store.Feeds, key: "f1", val: "x"})
		e.gw.Open()
		e.handleNext(t)

		res := <-reply
		if res.Err == nil {
			t.Fatal("expected buffered task to fail with open error")
		}

		late := e.submitDirect(&putTask{storeName: store.Feeds, key: "f1", val: "x"})
		if res := <-late; res.Err == nil {
			t.Fatal("expected late submission to fail immediately")
		}
	})
}

func TestEngineFailure(t *testing.T) {
	t.Run("Failed request fails only the owning task", func(t *testing.T) {
		e := newTestEngine(t)

		res := e.pump(t, e.submitDirect(&rogueTask{}))
		if !errors.Is(res.Err, shared.ErrOutOfScope) {
			t.Fatalf("expected ErrOutOfScope, got %v", res.Err)
		}
		e.settle(t)

		// The engine is still healthy for the next task.
		res = e.pump(t, e.submitDirect(&putTask{storeName: store.Feeds, key: "f1", val: "ok"}))
		if res.Err != nil {
			t.Fatalf("engine unhealthy after task failure: %v", res.Err)
		}
	})

	t.Run("Issue error rolls back and releases lock", func(t *testing.T) {
		e := newTestEngine(t)

		res := <-e.submitDirect(&stillbornTask{exclusive: "k"})
		if res.Err == nil {
			t.Fatal("expected issue error")
		}
		e.settle(t)
		if len(e.locks) != 0 {
			t.Errorf("lock leaked after issue failure: %v", e.locks)
		}

		res = e.pump(t, e.submitDirect(&putTask{storeName: store.Feeds, key: "f1", val: "x", exclusive: "k"}))
		if res.Err != nil {
			t.Fatalf("lock not released: %v", res.Err)
		}
	})

	t.Run("Unknown correlation panics", func(t *testing.T) {
		e := newTestEngine(t)

		defer func() {
			if recover() == nil {
				t.Error("expected panic for unknown correlation id")
			}
		}()
		e.handle(store.Event{Kind: store.RequestDone, RequestID: 99999})
	})
}

func TestEngineExclusive(t *testing.T) {
	t.Run("Second task with same key is rejected while first runs", func(t *testing.T) {
		e := newTestEngine(t)

		replyA := e.submitDirect(&putTask{storeName: store.Items, key: "i1", val: "a", exclusive: "items/i1"})
		if len(e.locks) != 1 {
			t.Fatalf("expected lock held, got %v", e.locks)
		}

		replyB := e.submitDirect(&putTask{storeName: store.Items, key: "i1", val: "b", exclusive: "items/i1"})
		res := <-replyB
		if !errors.Is(res.Err, shared.ErrReconcileBusy) {
			t.Fatalf("expected ErrReconcileBusy, got %v", res.Err)
		}

		if res := e.pump(t, replyA); res.Err != nil {
			t.Fatalf("first task failed: %v", res.Err)
		}
		e.settle(t)

		// Lock released after completion.
		replyC := e.submitDirect(&putTask{storeName: store.Items, key: "i1", val: "c", exclusive: "items/i1"})
		if res := e.pump(t, replyC); res.Err != nil {
			t.Fatalf("lock not released after completion: %v", res.Err)
		}
	})

	t.Run("Different keys do not conflict", func(t *testing.T) {
		e := newTestEngine(t)

		replyA := e.submitDirect(&putTask{storeName: store.Items, key: "i1", val: "a", exclusive: "items/i1"})
		replyB := e.submitDirect(&putTask{storeName: store.Items, key: "i2", val: "b", exclusive: "items/i2"})

		if res := e.pump(t, replyA); res.Err != nil {
			t.Fatalf("task a failed: %v", res.Err)
		}
		if res := e.pump(t, replyB); res.Err != nil {
			t.Fatalf("task b failed: %v", res.Err)
		}
	})
}

// broadcastResponse is a Broadcastable response for bus fan-out tests.
type broadcastResponse struct {
	Value string
}

func (broadcastResponse) Topic() string { return "test.updated" }

// broadcastTask writes then responds with a Broadcastable.
type broadcastTask struct {
	putTask
}

func (b *broadcastTask) Advance(ev store.Event) (Progress, error) {
	prog, err := b.putTask.Advance(ev)
	if prog.Done {
		prog.Response = broadcastResponse{Value: b.val}
	}
	return prog, err
}

func TestEngineBroadcast(t *testing.T) {
	t.Run("Subscribers except caller receive the response", func(t *testing.T) {
		b := bus.New()
		e := New(":memory:", b, shared.NewLogger(nil))
		e.gw.Open()
		e.handleNext(t)
		t.Cleanup(func() {
			close(e.quit)
			e.gw.Close()
		})

		other := b.Subscribe("test.", "other")
		self := b.Subscribe("test.", "test") // same owner as the caller
		defer b.Unsubscribe(other)
		defer b.Unsubscribe(self)

		task := &broadcastTask{putTask{storeName: store.Feeds, key: "f1", val: "payload"}}
		if res := e.pump(t, e.submitDirect(task)); res.Err != nil {
			t.Fatalf("task failed: %v", res.Err)
		}

		select {
		case ev := <-other.Ch():
			resp := ev.Payload.(broadcastResponse)
			if resp.Value != "payload" {
				t.Errorf("unexpected payload: %v", resp.Value)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive broadcast")
		}

		select {
		case ev := <-self.Ch():
			t.Errorf("caller's own subscription should be skipped, got %v", ev)
		default:
		}
	})
}

func TestEngineStop(t *testing.T) {
	t.Run("Stop resolves pending submissions", func(t *testing.T) {
		e := New(":memory:", nil, shared.NewLogger(nil))
		go e.run()

		reply := e.Submit(&putTask{storeName: store.Feeds, key: "f1", val: "x"}, "test")
		e.Stop()

		select {
		case res := <-reply:
			if !errors.Is(res.Err, shared.ErrEngineStopped) {
				t.Errorf("expected ErrEngineStopped, got %v", res.Err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("reply never resolved after Stop")
		}
	})

	t.Run("Stop rolls back open in-flight transactions", func(t *testing.T) {
		e := New(":memory:", nil, shared.NewLogger(nil))
		e.Start()

		// Two held transactions: the first owns the store's connection, the
		// second's write is queued behind it when Stop runs.
		replyA := e.Submit(&holdTask{key: "a"}, "test")
		replyB := e.Submit(&holdTask{key: "b"}, "test")

		stopped := make(chan struct{})
		go func() {
			e.Stop()
			close(stopped)
		}()

		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			t.Fatal("Stop hung with open transactions in flight")
		}
		for _, reply := range []<-chan Result{replyA, replyB} {
			if res := <-reply; !errors.Is(res.Err, shared.ErrEngineStopped) {
				t.Errorf("expected ErrEngineStopped, got %v", res.Err)
			}
		}
	})

	t.Run("Submit after Stop fails", func(t *testing.T) {
		e := New(":memory:", nil, shared.NewLogger(nil))
		e.Start()
		e.Stop()

		res := <-e.Submit(&putTask{storeName: store.Feeds, key: "f1", val: "x"}, "test")
		if !errors.Is(res.Err, shared.ErrEngineStopped) {
			t.Errorf("expected ErrEngineStopped, got %v", res.Err)
		}
	})
}
