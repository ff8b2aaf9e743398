package store

import (
	"database/sql"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/podkeep/podkeep/internal/shared"
)

// Stats is a snapshot of the gateway's write counters. Tests use it to
// assert write-amplification bounds (an idempotent re-sync must not grow
// Puts).
type Stats struct {
	Puts    int64
	Deletes int64
}

// Gateway owns the database connection and the single worker goroutine that
// executes all store operations. See the package documentation for the
// execution model.
type Gateway struct {
	path   string
	sink   Sink
	logger *log.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []op
	current int64 // txn id the worker is inside, 0 when idle
	closed  bool
	done    chan struct{}

	nextID  atomic.Int64
	puts    atomic.Int64
	deletes atomic.Int64
}

// op is one unit of worker work. Ops with a non-zero txnID only run while
// their transaction is the active one (or no transaction is active).
type op struct {
	txnID int64
	fn    func(w *worker)
}

// worker holds the state only the worker goroutine touches.
type worker struct {
	gw *Gateway
	db *sql.DB
}

// NewGateway creates a gateway for the database at path and starts its
// worker. The database is not opened until [Gateway.Open] is called.
func NewGateway(path string, sink Sink, logger *log.Logger) *Gateway {
	g := &Gateway{
		path:   path,
		sink:   sink,
		logger: logger,
		done:   make(chan struct{}),
	}
	g.cond = sync.NewCond(&g.mu)
	go g.run()
	return g
}

// Open schedules opening the database and running migrations. The outcome
// arrives at the sink as a [StoreReady] event; until then every request
// fails with [shared.ErrStoreClosed].
func (g *Gateway) Open() {
	g.enqueue(0, func(w *worker) {
		db, err := shared.NewDatabase(g.path)
		if err == nil {
			shared.ConfigureDatabase(db, 1, 1)
			if err = shared.RunMigrations(db); err != nil {
				db.Close()
			} else {
				w.db = db
			}
		}
		if err != nil {
			g.logger.Error("store open failed", "path", g.path, "err", err)
		} else {
			g.logger.Debug("store open", "path", g.path)
		}
		g.sink.Post(Event{Kind: StoreReady, Err: err})
	})
}

// Close stops accepting new operations, lets the worker drain the queue and
// waits for it to exit. Events produced while draining may be dropped by the
// sink; callers stop their dispatch loop first.
func (g *Gateway) Close() {
	g.mu.Lock()
	if !g.closed {
		g.closed = true
		g.cond.Broadcast()
	}
	g.mu.Unlock()
	<-g.done
}

// Stats returns a snapshot of the write counters.
func (g *Gateway) Stats() Stats {
	return Stats{Puts: g.puts.Load(), Deletes: g.deletes.Load()}
}

func (g *Gateway) enqueue(txnID int64, fn func(w *worker)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.queue = append(g.queue, op{txnID: txnID, fn: fn})
	g.cond.Signal()
}

// isClosed reports whether Close has been called. The worker checks it
// before lazily starting a sql transaction; with a single connection, a
// stranded op that called Begin during drain would block forever behind the
// transaction already holding it.
func (g *Gateway) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// setCurrent records which transaction the worker is inside and wakes the
// scheduler so ops held back by the previous transaction get reconsidered.
func (g *Gateway) setCurrent(txnID int64) {
	g.mu.Lock()
	g.current = txnID
	g.cond.Broadcast()
	g.mu.Unlock()
}

// next blocks until an op is runnable and pops it. Returns false when the
// gateway is closed and the queue is drained.
func (g *Gateway) next() (op, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for {
		if idx := g.runnableLocked(); idx >= 0 {
			o := g.queue[idx]
			g.queue = append(g.queue[:idx], g.queue[idx+1:]...)
			return o, true
		}
		if g.closed {
			if len(g.queue) == 0 {
				return op{}, false
			}
			// Closing with ops stranded behind an active transaction: pop
			// them in order so their events still fire. prepare refuses to
			// start a new sql transaction once closed, so a stranded op
			// fails instead of blocking on the connection the active
			// transaction holds.
			o := g.queue[0]
			g.queue = g.queue[1:]
			return o, true
		}
		g.cond.Wait()
	}
}

func (g *Gateway) runnableLocked() int {
	if len(g.queue) == 0 {
		return -1
	}
	if g.current == 0 {
		return 0
	}
	for i, o := range g.queue {
		if o.txnID == g.current {
			return i
		}
	}
	return -1
}

func (g *Gateway) run() {
	w := &worker{gw: g}
	for {
		o, ok := g.next()
		if !ok {
			break
		}
		o.fn(w)
	}
	if w.db != nil {
		w.db.Close()
	}
	close(g.done)
}
