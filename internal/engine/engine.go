package engine

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/podkeep/podkeep/internal/bus"
	"github.com/podkeep/podkeep/internal/shared"
	"github.com/podkeep/podkeep/internal/store"
)

// submission pairs a task with the caller identity and the channel its
// single Result is delivered on.
type submission struct {
	task   Task
	caller string
	reply  chan Result
}

// running is the dispatch loop's book-keeping for one in-flight task.
// finished marks a task that already resolved its caller but whose
// transaction event has not arrived yet; such a task is only waiting to be
// cleaned up and its remaining request events are discarded.
type running struct {
	id       string
	task     Task
	caller   string
	reply    chan Result
	txn      *store.Txn
	lock     string
	finished bool
	resolved bool
}

// Engine drives tasks against a [store.Gateway] from a single goroutine.
type Engine struct {
	gw     *store.Gateway
	bus    *bus.Bus
	logger *log.Logger

	events  chan store.Event
	submits chan submission
	quit    chan struct{}
	done    chan struct{}

	// dispatch-goroutine state
	ready    bool
	openErr  error
	pending  []submission
	inflight map[string]*running
	locks    map[string]string
	reg      *registry
}

// New creates an engine over the database at dbPath. The bus may be nil when
// no subscribers exist, e.g. one-shot command invocations.
func New(dbPath string, b *bus.Bus, logger *log.Logger) *Engine {
	e := &Engine{
		bus:      b,
		logger:   shared.WithLogger(logger, "component", "engine"),
		events:   make(chan store.Event, 1024),
		submits:  make(chan submission),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		inflight: make(map[string]*running),
		locks:    make(map[string]string),
		reg:      newRegistry(),
	}
	e.gw = store.NewGateway(dbPath, store.SinkFunc(e.post), shared.WithLogger(logger, "component", "store"))
	return e
}

// Gateway exposes the underlying store gateway, mainly for its counters.
func (e *Engine) Gateway() *store.Gateway { return e.gw }

// Start opens the store and launches the dispatch loop. Submissions are
// accepted immediately and buffered until the store reports ready.
func (e *Engine) Start() {
	e.gw.Open()
	go e.run()
}

// Stop terminates the dispatch loop, resolving every buffered and in-flight
// task with [shared.ErrEngineStopped], then shuts the store down.
func (e *Engine) Stop() {
	close(e.quit)
	<-e.done
	e.gw.Close()
}

// Submit hands a task to the engine. The caller string identifies the
// submitter for bus broadcast exclusion; broadcasts go to every subscriber
// except the caller. The returned channel delivers exactly one Result.
func (e *Engine) Submit(task Task, caller string) <-chan Result {
	sub := submission{task: task, caller: caller, reply: make(chan Result, 1)}
	select {
	case e.submits <- sub:
	case <-e.quit:
		sub.reply <- Result{Err: shared.ErrEngineStopped}
	}
	return sub.reply
}

// post is the gateway's sink. It must never block the worker forever, so a
// stopped engine discards late events.
func (e *Engine) post(ev store.Event) {
	select {
	case e.events <- ev:
	case <-e.quit:
	}
}

func (e *Engine) run() {
	defer close(e.done)
	for {
		select {
		case <-e.quit:
			for _, sub := range e.pending {
				sub.reply <- Result{Err: shared.ErrEngineStopped}
			}
			// Roll the abandoned transactions back so the store can drain
			// its queue; an open transaction would otherwise pin the single
			// connection across Close.
			for _, run := range e.inflight {
				e.resolve(run, Result{Err: shared.ErrEngineStopped})
				if run.txn != nil {
					run.txn.Rollback()
				}
			}
			return
		case sub := <-e.submits:
			e.accept(sub)
		case ev := <-e.events:
			e.handle(ev)
		}
	}
}

func (e *Engine) accept(sub submission) {
	switch {
	case e.openErr != nil:
		sub.reply <- Result{Err: e.openErr}
	case !e.ready:
		e.pending = append(e.pending, sub)
	default:
		e.start(sub)
	}
}

func (e *Engine) handle(ev store.Event) {
	if ev.Kind == store.StoreReady {
		e.ready = true
		e.openErr = ev.Err
		pending := e.pending
		e.pending = nil
		for _, sub := range pending {
			if e.openErr != nil {
				sub.reply <- Result{Err: e.openErr}
				continue
			}
			e.start(sub)
		}
		return
	}

	taskID, ok := e.reg.owner(ev)
	if !ok {
		panic(fmt.Sprintf("engine: event %v with unknown correlation (request=%d txn=%d)",
			ev.Kind, ev.RequestID, ev.TxnID))
	}
	run, ok := e.inflight[taskID]
	if !ok {
		panic(fmt.Sprintf("engine: correlation for missing task %s", taskID))
	}

	if run.finished {
		// Already resolved; the remaining events only matter for cleanup.
		if ev.Kind == store.TxnComplete || ev.Kind == store.TxnAborted {
			e.cleanup(run)
		}
		return
	}

	prog, err := run.task.Advance(ev)
	if err != nil {
		e.logger.Debug("task failed", "task", run.task.Name(), "err", err)
		e.resolve(run, Result{Err: err})
		run.finished = true
		if ev.Kind == store.TxnComplete || ev.Kind == store.TxnAborted {
			e.cleanup(run)
			return
		}
		run.txn.Rollback()
		return
	}

	e.reg.trackRequests(run.id, prog.Requests)
	if prog.Done {
		res := Result{Response: prog.Response}
		e.resolve(run, res)
		e.broadcast(run, res)
		e.cleanup(run)
	}
}

func (e *Engine) start(sub submission) {
	run := &running{
		id:     shared.GenerateID(),
		task:   sub.task,
		caller: sub.caller,
		reply:  sub.reply,
	}

	if ex, ok := sub.task.(Exclusive); ok {
		if key := ex.ExclusiveKey(); key != "" {
			if _, busy := e.locks[key]; busy {
				run.resolved = true
				sub.reply <- Result{Err: fmt.Errorf("%w: %s", shared.ErrReconcileBusy, key)}
				return
			}
			e.locks[key] = run.id
			run.lock = key
		}
	}

	txn, reqs, err := sub.task.Issue(e.gw)
	run.txn = txn
	if err != nil {
		e.resolve(run, Result{Err: err})
		if txn == nil {
			e.cleanup(run)
			return
		}
		// Park as a zombie until the rollback's event arrives, so the
		// transaction id stays correlated.
		run.finished = true
		e.inflight[run.id] = run
		e.reg.trackTxn(run.id, txn)
		txn.Rollback()
		return
	}

	e.inflight[run.id] = run
	e.reg.trackTxn(run.id, txn)
	e.reg.trackRequests(run.id, reqs)
	e.logger.Debug("task started", "task", sub.task.Name(), "txn", txn.ID())
}

// resolve delivers a task's Result exactly once.
func (e *Engine) resolve(run *running, res Result) {
	if run.resolved {
		return
	}
	run.resolved = true
	run.reply <- res
}

func (e *Engine) broadcast(run *running, res Result) {
	if e.bus == nil || res.Response == nil {
		return
	}
	b, ok := res.Response.(Broadcastable)
	if !ok {
		return
	}
	e.bus.Publish(b.Topic(), run.caller, res.Response)
}

func (e *Engine) cleanup(run *running) {
	delete(e.inflight, run.id)
	e.reg.drop(run.id, run.txn)
	if run.lock != "" {
		delete(e.locks, run.lock)
	}
}
