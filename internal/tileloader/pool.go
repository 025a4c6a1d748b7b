// Package tileloader runs DataSource.TileImage calls on a bounded set of
// worker goroutines so decoding never blocks the render loop.
package tileloader

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BlueBrain/Tide-sub004/internal/datasource"
	"github.com/BlueBrain/Tide-sub004/internal/types"
)

var (
	// ErrClosed is returned by Request after Close.
	ErrClosed = errors.New("tileloader: pool closed")
	// ErrBusy is returned when the request queue is full; retry next tick.
	ErrBusy = errors.New("tileloader: queue full")
)

// Result is the outcome of one tile request. Image is nil when Err is set.
type Result struct {
	Source  datasource.DataSource
	ID      uint
	Image   *types.Image
	Err     error
	Elapsed time.Duration
}

type request struct {
	source datasource.DataSource
	id     uint
}

type key struct {
	source datasource.DataSource
	id     uint
}

// Options configures a Pool.
type Options struct {
	Workers int
	// QueueSize defaults to 4 requests per worker.
	QueueSize int
	Logger    *slog.Logger
}

// Pool is a fixed-size decode worker pool. Requests for a tile still
// queued share one load; a tile already being loaded is loaded again, since
// its source may have changed since the load started.
type Pool struct {
	queue  chan request
	logger *slog.Logger
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	// pending holds the callbacks of queued requests
	pending map[key][]func(Result)

	requested atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
}

// NewPool starts opts.Workers workers (at least one).
func NewPool(opts Options) *Pool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 4 * opts.Workers
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	p := &Pool{
		queue:   make(chan request, opts.QueueSize),
		logger:  opts.Logger,
		pending: make(map[key][]func(Result)),
	}
	for i := 0; i < opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Request queues the load of tile id from source. done is called on a
// worker goroutine. A request for a tile already queued joins it: every
// done of the group receives the same result.
func (p *Pool) Request(source datasource.DataSource, id uint, done func(Result)) error {
	k := key{source: source, id: id}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if waiters, ok := p.pending[k]; ok {
		p.pending[k] = append(waiters, done)
		return nil
	}
	select {
	case p.queue <- request{source: source, id: id}:
		p.pending[k] = []func(Result){done}
		p.requested.Add(1)
		return nil
	default:
		return ErrBusy
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for req := range p.queue {
		k := key{source: req.source, id: req.id}
		p.mu.Lock()
		waiters := p.pending[k]
		delete(p.pending, k)
		p.mu.Unlock()

		start := time.Now()
		img, err := req.source.TileImage(req.id)
		res := Result{Source: req.source, ID: req.id, Image: img, Err: err, Elapsed: time.Since(start)}

		if err != nil {
			res.Image = nil
			p.failed.Add(1)
			p.logger.Warn("tile load failed",
				"tile", req.id,
				"category", types.Classify(err).String(),
				"error", err,
			)
		} else {
			p.completed.Add(1)
		}
		for _, done := range waiters {
			if done != nil {
				done(res)
			}
		}
	}
}

// Close stops accepting requests and waits for queued ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// Stats contains pool counters.
type Stats struct {
	Requested uint64
	Completed uint64
	Failed    uint64
	Pending   int
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	pending := len(p.pending)
	p.mu.Unlock()
	return Stats{
		Requested: p.requested.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Pending:   pending,
	}
}
