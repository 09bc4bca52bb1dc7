// Package loop runs the single owner goroutine that mutates all world,
// registry and shopkeeper state.
package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var ErrStopped = errors.New("loop stopped")

// TickFunc is called once per tick on the owner goroutine.
type TickFunc func(tick uint64)

type Loop struct {
	tickRateHz int
	tasks      chan func()
	stop       chan struct{}
	stopped    atomic.Bool

	// Only touched from the owner goroutine (or before Run).
	tickers []TickFunc
	tick    atomic.Uint64
}

func New(tickRateHz int, queue int) *Loop {
	if tickRateHz <= 0 {
		tickRateHz = 20
	}
	if queue <= 0 {
		queue = 1024
	}
	return &Loop{
		tickRateHz: tickRateHz,
		tasks:      make(chan func(), queue),
		stop:       make(chan struct{}),
	}
}

// OnTick registers a tick listener. Call before Run or from the owner goroutine.
func (l *Loop) OnTick(fn TickFunc) { l.tickers = append(l.tickers, fn) }

func (l *Loop) CurrentTick() uint64 { return l.tick.Load() }

// Do queues fn for execution on the owner goroutine. It never runs fn inline.
func (l *Loop) Do(fn func()) {
	if l.stopped.Load() {
		return
	}
	select {
	case l.tasks <- fn:
	case <-l.stop:
	}
}

// Call runs fn on the owner goroutine and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}
	if l.stopped.Load() {
		return ErrStopped
	}
	select {
	case l.tasks <- wrapped:
	case <-l.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-l.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(l.tickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.drain()
			return ctx.Err()
		case <-l.stop:
			l.drain()
			return nil
		case fn := <-l.tasks:
			fn()
		case <-ticker.C:
			l.Step()
		}
	}
}

// Step advances one tick. Exposed for deterministic tests.
func (l *Loop) Step() {
	t := l.tick.Add(1)
	for _, fn := range l.tickers {
		fn(t)
	}
}

func (l *Loop) Stop() {
	if l.stopped.CompareAndSwap(false, true) {
		close(l.stop)
	}
}

// drain runs tasks that were queued before shutdown, so pending save
// acknowledgements are not lost.
func (l *Loop) drain() {
	for {
		select {
		case fn := <-l.tasks:
			fn()
		default:
			return
		}
	}
}

// Queue is a manual executor for tests and offline tools. Do may be called
// from any goroutine; queued tasks run on the goroutine calling RunPending or
// WaitPending.
type Queue struct {
	mu      sync.Mutex
	pending []func()
	notify  chan struct{}
}

func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

func (q *Queue) Do(fn func()) {
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) RunPending() int {
	n := 0
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return n
		}
		fn := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()
		fn()
		n++
	}
}

// WaitPending blocks until a task is queued, then runs everything queued.
func (q *Queue) WaitPending(ctx context.Context) (int, error) {
	for {
		if n := q.RunPending(); n > 0 {
			return n, nil
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}
