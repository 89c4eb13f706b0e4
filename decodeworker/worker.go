// Package decodeworker implements the optional background JSON-decode
// worker described by spec.md §5/§9: a single long-lived goroutine that
// decodes bodies off the Manager's own goroutines, addressed by an
// event id over a request/response message channel. It is explicitly
// non-core (spec.md §1): the Manager never constructs or calls one; a
// caller can use it from its own Interceptor hooks.
//
// The message/channel shape is grounded on gomind's core/async_task.go
// TaskQueue/TaskStore/TaskWorker pattern, reduced to a single in-process
// worker since this worker has no cross-process or durability
// requirement.
package decodeworker

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ltyfantasy/goapn/pkg/logger"
)

// Job is one decode request, addressed by EventID so its Result can be
// routed back to the caller that submitted it.
type Job struct {
	EventID string
	Raw     []byte
}

// Result is the decoded outcome of a Job.
type Result struct {
	EventID string
	Value   map[string]interface{}
	Err     error
}

// Worker runs a single goroutine that decodes Jobs as they arrive and
// publishes Results keyed by EventID. Callers awaiting a specific
// EventID use Await.
type Worker struct {
	log logger.Logger

	jobs chan Job

	mu      sync.Mutex
	waiters map[string]chan Result

	closeOnce sync.Once
	done      chan struct{}
}

// New starts a Worker with the given job queue depth.
func New(queueDepth int, log logger.Logger) *Worker {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	w := &Worker{
		log:     log,
		jobs:    make(chan Job, queueDepth),
		waiters: make(map[string]chan Result),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Worker) run() {
	for job := range w.jobs {
		var value map[string]interface{}
		err := json.Unmarshal(job.Raw, &value)
		w.deliver(Result{EventID: job.EventID, Value: value, Err: err})
	}
	close(w.done)
}

func (w *Worker) deliver(res Result) {
	w.mu.Lock()
	ch, ok := w.waiters[res.EventID]
	if ok {
		delete(w.waiters, res.EventID)
	}
	w.mu.Unlock()

	if !ok {
		w.log.Warn("decodeworker: no waiter for event", "eventId", res.EventID)
		return
	}
	ch <- res
	close(ch)
}

// Submit enqueues job and returns a channel that receives exactly one
// Result for job.EventID. Submitting the same EventID twice before the
// first is consumed overwrites the earlier waiter.
func (w *Worker) Submit(ctx context.Context, job Job) (<-chan Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := make(chan Result, 1)

	w.mu.Lock()
	w.waiters[job.EventID] = ch
	w.mu.Unlock()

	select {
	case w.jobs <- job:
		return ch, nil
	case <-ctx.Done():
		w.mu.Lock()
		delete(w.waiters, job.EventID)
		w.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Decode is the synchronous convenience form of Submit: it blocks until
// the Result for eventID arrives or ctx is cancelled.
func (w *Worker) Decode(ctx context.Context, eventID string, raw []byte) (map[string]interface{}, error) {
	ch, err := w.Submit(ctx, Job{EventID: eventID, Raw: raw})
	if err != nil {
		return nil, err
	}
	select {
	case res := <-ch:
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting new jobs and waits for the goroutine to drain.
func (w *Worker) Close() {
	w.closeOnce.Do(func() {
		close(w.jobs)
	})
	<-w.done
}
