// Package worker serializes access to a non-concurrent shape arena through
// a single goroutine.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/shapegraph/shape"
)

var log = commonlog.GetLogger("shapegraph.worker")

// ErrStopped is returned by Do after Stop.
var ErrStopped = errors.New("worker: stopped")

// request is a unit of work to run on the arena goroutine.
type request struct {
	fn   func(*shape.Arena) (any, error)
	done chan result
}

type result struct {
	value any
	err   error
}

// Worker owns an arena and runs every function submitted through Do on
// one goroutine, so an arena built without Policy.Concurrent can be shared
// by many callers.
type Worker struct {
	arena    *shape.Arena
	requests chan request
	quit     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// New creates a Worker for a and starts its goroutine.
func New(a *shape.Arena) *Worker {
	w := &Worker{
		arena:    a,
		requests: make(chan request, 64),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	defer close(w.stopped)
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn on the arena, turning panics (including shape contract
// violations) into errors.
func (w *Worker) execute(fn func(*shape.Arena) (any, error)) (res result) {
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				res.err = fmt.Errorf("worker: %w", err)
			} else {
				res.err = fmt.Errorf("worker: %v", r)
			}
			log.Errorf("recovered: %v", res.err)
		}
	}()
	res.value, res.err = fn(w.arena)
	return res
}

// Do submits fn and blocks until it completes or ctx is done. A function
// already accepted by the worker still runs to completion if ctx is
// cancelled while waiting for its result.
func (w *Worker) Do(ctx context.Context, fn func(*shape.Arena) (any, error)) (any, error) {
	req := request{fn: fn, done: make(chan result, 1)}
	select {
	case w.requests <- req:
	case <-w.stopped:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-req.done:
		return res.value, res.err
	case <-w.stopped:
		select {
		case res := <-req.done:
			return res.value, res.err
		default:
			return nil, ErrStopped
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop shuts down the worker goroutine and waits for it to exit. Calling
// Stop twice is safe.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
	<-w.stopped
}

// Arena returns the underlying arena, for read-only inspection once the
// worker has been stopped.
func (w *Worker) Arena() *shape.Arena {
	return w.arena
}
