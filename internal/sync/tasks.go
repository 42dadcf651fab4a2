package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrQueueClosed reports an enqueue after Close.
var ErrQueueClosed = errors.New("sync: task queue closed")

// ErrQueueFull reports an enqueue against a saturated queue. Callers degrade
// rather than wait: flush triggers are re-raised by the periodic cycle and
// publishers fall back to synchronous delivery.
var ErrQueueFull = errors.New("sync: task queue full")

// task is one unit of deferred work.
type task struct {
	name string
	run  func(ctx context.Context) error
}

// TaskQueue executes fire-and-forget work (opportunistic cache writes,
// listener publication) on a single drain goroutine. Task errors go to an
// error channel consumed by a logging loop, never silently lost. Close
// drains every accepted task before returning, so tests can assert on
// completion instead of timing.
type TaskQueue struct {
	base   context.Context // tasks run under this; cancelled by the owner
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	tasks  chan task

	errs chan taskError
	done chan struct{} // drain goroutine exited
	logd chan struct{} // logging loop exited
}

type taskError struct {
	name string
	err  error
}

// NewTaskQueue creates a queue with the given capacity and starts its drain
// goroutine. Tasks run under ctx, so cancelling it aborts whatever network
// or storage work a drained task is doing. A nil logger falls back to
// slog.Default.
func NewTaskQueue(ctx context.Context, capacity int, logger *slog.Logger) *TaskQueue {
	if ctx == nil {
		ctx = context.Background()
	}
	if capacity <= 0 {
		capacity = 64
	}
	if logger == nil {
		logger = slog.Default()
	}

	q := &TaskQueue{
		base:   ctx,
		logger: logger,
		tasks:  make(chan task, capacity),
		errs:   make(chan taskError, capacity),
		done:   make(chan struct{}),
		logd:   make(chan struct{}),
	}

	go q.drain()
	go q.logErrors()
	return q
}

// Enqueue schedules fn for execution. Never blocks: a saturated queue
// returns ErrQueueFull, a closed one ErrQueueClosed.
func (q *TaskQueue) Enqueue(name string, fn func(ctx context.Context) error) error {
	q.mu.Lock()
	// Held across the send so Close cannot close the channel underneath a
	// sender.
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- task{name: name, run: fn}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting tasks, runs everything already accepted, and
// returns once the drain and logging goroutines have exited.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.logd
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	<-q.done
	close(q.errs)
	<-q.logd
}

func (q *TaskQueue) drain() {
	defer close(q.done)
	for t := range q.tasks {
		if err := t.run(q.base); err != nil {
			q.errs <- taskError{name: t.name, err: err}
		}
	}
}

func (q *TaskQueue) logErrors() {
	defer close(q.logd)
	for te := range q.errs {
		q.logger.Warn("background task failed",
			"component", "sync",
			"action", "task_failed",
			"task", te.name,
			"error", te.err,
		)
	}
}
