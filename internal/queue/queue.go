// Package queue implements the process-wide serial task queue: every
// kernel entry point (deploy/new/call/auth/destroy/upgrade/sync/load/
// import/publish) runs one at a time, in enqueue order, and a task's
// internal suspension points (blockchain fetch, cache read, purse/owner
// callout) never let a later-enqueued task's effects become visible before
// an earlier one's.
//
// Grounded in core/ledger.go's WithinBlock idiom (a single mutex-guarded
// critical section wrapping one state-mutating operation), generalized
// from an ad hoc single critical section to an explicit FIFO queue so
// callers can observe ordering guarantees and timeouts independently.
package queue

import (
	"context"
	"fmt"
	"sync"
)

// Task is one unit of work submitted to the queue. ctx carries the
// per-instance timeout that bounds load, sync, publish, and replay.
type Task func(ctx context.Context) (interface{}, error)

type job struct {
	ctx    context.Context
	task   Task
	result chan<- result
}

type result struct {
	value interface{}
	err   error
}

// Queue serializes task execution: Submit blocks the caller until the task
// has run (success or failure), but tasks are processed strictly in
// enqueue order even when many goroutines call Submit concurrently.
type Queue struct {
	mu      sync.Mutex
	jobs    chan job
	started bool
	closed  bool
}

// New allocates a queue with the given backlog capacity (0 means
// unbuffered: Submit blocks until the worker is free to accept).
func New(backlog int) *Queue {
	q := &Queue{jobs: make(chan job, backlog)}
	q.run()
	return q
}

func (q *Queue) run() {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()
	go func() {
		for j := range q.jobs {
			if err := j.ctx.Err(); err != nil {
				j.result <- result{err: err}
				continue
			}
			v, err := j.task(j.ctx)
			j.result <- result{value: v, err: err}
		}
	}()
}

// Submit enqueues task and blocks until it has run, returning its result.
// If ctx is canceled or times out before the task starts, Submit returns
// ctx.Err() without running the task; if the task itself observes a
// deadline mid-run it is responsible for returning its own "<phase>
// timeout" error.
func (q *Queue) Submit(ctx context.Context, task Task) (interface{}, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, fmt.Errorf("Execution: queue is closed")
	}
	q.mu.Unlock()

	res := make(chan result, 1)
	select {
	case q.jobs <- job{ctx: ctx, task: task, result: res}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-res:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Depth reports the number of tasks currently buffered ahead of the one
// the worker is running, for callers that want to surface queue pressure
// (e.g. as a gauge).
func (q *Queue) Depth() int {
	return len(q.jobs)
}

// Close stops accepting new tasks. In-flight and already-enqueued tasks
// still run to completion.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.jobs)
}
