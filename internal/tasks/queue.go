// Package tasks runs post-commit side effects (broadcasts, reset checks)
// off the request path. Failures are logged and reported on an error
// channel; they never reach the caller that submitted the task.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Func is a unit of detached work
type Func func(ctx context.Context) error

// Failure is reported for every task that returned an error or panicked
type Failure struct {
	Task string
	Err  error
	At   time.Time
}

// Config controls queue sizing
type Config struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
}

// DefaultConfig returns sensible defaults for the queue
func DefaultConfig() Config {
	return Config{
		Workers:     4,
		QueueSize:   256,
		TaskTimeout: 10 * time.Second,
	}
}

// Stats are cumulative counters since the queue was created
type Stats struct {
	Submitted int64
	Completed int64
	Failed    int64
	Dropped   int64
	Coalesced int64
}

type task struct {
	name string
	fn   Func
}

// signal is a named task with at most one pending run
type signal struct {
	name    string
	pending chan struct{}

	mu sync.Mutex
	fn Func
}

func (s *signal) current() Func {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fn
}

// Queue is a bounded worker pool for fire-and-forget tasks
type Queue struct {
	cfg    Config
	logger *slog.Logger

	tasks    chan task
	failures chan Failure
	signals  map[string]*signal
	stopping chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	coalesced atomic.Int64
}

// New creates a queue; call Start to begin processing
func New(cfg Config, logger *slog.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		cfg:      cfg,
		logger:   logger,
		tasks:    make(chan task, cfg.QueueSize),
		failures: make(chan Failure, cfg.QueueSize),
		signals:  make(map[string]*signal),
		stopping: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	for _, sig := range q.signals {
		q.startSignal(sig)
	}
}

// Submit enqueues a task without blocking.
// Returns false if the queue is full or closed; the task is dropped.
func (q *Queue) Submit(name string, fn Func) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.dropped.Add(1)
		q.logger.Warn("task dropped, queue closed", slog.String("task", name))
		return false
	}

	select {
	case q.tasks <- task{name: name, fn: fn}:
		q.submitted.Add(1)
		return true
	default:
		q.dropped.Add(1)
		q.logger.Warn("task dropped, queue full", slog.String("task", name))
		return false
	}
}

// Signal requests a run of the named task. Unlike Submit it never drops
// the request while the queue is open: each name has its own runner and at
// most one pending run, so signals arriving while a run is already pending
// are coalesced into it. A signal that arrives during a run schedules one
// more run afterwards. The most recent fn is the one that runs.
// Returns false only once the queue is closed.
func (q *Queue) Signal(name string, fn Func) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.dropped.Add(1)
		q.logger.Warn("signal dropped, queue closed", slog.String("task", name))
		return false
	}
	sig, ok := q.signals[name]
	if !ok {
		sig = &signal{name: name, pending: make(chan struct{}, 1)}
		q.signals[name] = sig
		if q.started {
			q.startSignal(sig)
		}
	}
	q.mu.Unlock()

	sig.mu.Lock()
	sig.fn = fn
	sig.mu.Unlock()

	select {
	case sig.pending <- struct{}{}:
		q.submitted.Add(1)
	default:
		q.coalesced.Add(1)
	}
	return true
}

// Failures returns the channel on which task failures are reported.
// Reports are dropped when nobody drains the channel.
func (q *Queue) Failures() <-chan Failure {
	return q.failures
}

// Stats returns the current counters
func (q *Queue) Stats() Stats {
	return Stats{
		Submitted: q.submitted.Load(),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
		Coalesced: q.coalesced.Load(),
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
// If ctx expires first, running tasks are cancelled.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	close(q.stopping)
	if !q.started {
		// Nothing will drain the buffer; run what was queued inline
		q.started = true
		q.wg.Add(1)
		go q.worker()
		for _, sig := range q.signals {
			q.startSignal(sig)
		}
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for t := range q.tasks {
		q.run(t)
	}
}

// startSignal must be called with q.mu held
func (q *Queue) startSignal(sig *signal) {
	q.wg.Add(1)
	go q.signalLoop(sig)
}

func (q *Queue) signalLoop(sig *signal) {
	defer q.wg.Done()
	for {
		select {
		case <-sig.pending:
			q.run(task{name: sig.name, fn: sig.current()})
		case <-q.stopping:
			select {
			case <-sig.pending:
				q.run(task{name: sig.name, fn: sig.current()})
			default:
			}
			return
		}
	}
}

func (q *Queue) run(t task) {
	ctx := q.ctx
	if q.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.TaskTimeout)
		defer cancel()
	}

	err := safeRun(ctx, t.fn)
	if err == nil {
		q.completed.Add(1)
		return
	}

	q.failed.Add(1)
	q.logger.Error("task failed",
		slog.String("task", t.name),
		slog.String("error", err.Error()),
	)
	select {
	case q.failures <- Failure{Task: t.name, Err: err, At: time.Now().UTC()}:
	default:
	}
}

func safeRun(ctx context.Context, fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
