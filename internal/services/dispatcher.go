package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
)

var (
	ErrQueueFull = errors.New("generation queue is full")
	ErrStopped   = errors.New("dispatcher is not accepting work")
	// ErrShutdown is the cancellation cause of work interrupted by Shutdown.
	ErrShutdown = errors.New("dispatcher shutting down")
)

// Handler processes one request id. The context is cancelled with cause
// ErrCancelled when the task is cancelled and ErrShutdown on shutdown.
type Handler func(ctx context.Context, id string) error

// TaskHandle tracks one queued or running request.
type TaskHandle struct {
	ID string

	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// Cancel stops the task: a queued task is dropped, a running one sees its
// context cancelled.
func (h *TaskHandle) Cancel() { h.cancel(ErrCancelled) }

// Done is closed once the task was processed or dropped.
func (h *TaskHandle) Done() <-chan struct{} { return h.done }

type DispatcherConfig struct {
	Workers   int
	QueueSize int
}

// Dispatcher is a bounded FIFO work queue drained by a fixed set of workers.
type Dispatcher struct {
	cfg    DispatcherConfig
	logger *slog.Logger

	queue      chan *TaskHandle
	baseCtx    context.Context
	baseCancel context.CancelCauseFunc

	mu      sync.Mutex
	tasks   map[string]*TaskHandle
	closed  bool
	started bool

	inFlight atomic.Int64
	wg       conc.WaitGroup
}

func NewDispatcher(cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Dispatcher{
		cfg:        cfg,
		logger:     logger,
		queue:      make(chan *TaskHandle, cfg.QueueSize),
		baseCtx:    ctx,
		baseCancel: cancel,
		tasks:      make(map[string]*TaskHandle),
	}
}

// Start launches the workers. Tasks enqueued before Start wait in the queue.
func (d *Dispatcher) Start(handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.cfg.Workers; i++ {
		worker := i
		d.wg.Go(func() { d.work(worker, handler) })
	}
	d.logger.Info("dispatcher started", "workers", d.cfg.Workers, "queue_size", d.cfg.QueueSize)
}

// Enqueue schedules id. Enqueueing an id that is already queued or running
// returns the existing handle.
func (d *Dispatcher) Enqueue(id string) (*TaskHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrStopped
	}
	if h, ok := d.tasks[id]; ok {
		return h, nil
	}
	ctx, cancel := context.WithCancelCause(d.baseCtx)
	h := &TaskHandle{ID: id, ctx: ctx, cancel: cancel, done: make(chan struct{})}
	select {
	case d.queue <- h:
	default:
		cancel(ErrQueueFull)
		return nil, ErrQueueFull
	}
	d.tasks[id] = h
	return h, nil
}

// Cancel cancels the task for id, reporting whether one was queued or running.
func (d *Dispatcher) Cancel(id string) bool {
	d.mu.Lock()
	h, ok := d.tasks[id]
	d.mu.Unlock()
	if !ok {
		return false
	}
	h.Cancel()
	return true
}

// Shutdown stops accepting work, cancels running tasks and waits for the
// workers until ctx expires.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	d.baseCancel(ErrShutdown)
	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.logger.Info("dispatcher stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher shutdown: %w", ctx.Err())
	}
}

func (d *Dispatcher) QueueDepth() int { return len(d.queue) }
func (d *Dispatcher) InFlight() int   { return int(d.inFlight.Load()) }
func (d *Dispatcher) Workers() int    { return d.cfg.Workers }

func (d *Dispatcher) work(worker int, handler Handler) {
	for h := range d.queue {
		if h.ctx.Err() != nil {
			d.logger.Debug("dropping cancelled task", "request_id", h.ID, "cause", context.Cause(h.ctx))
			d.finish(h)
			continue
		}
		d.inFlight.Add(1)
		start := time.Now()
		err := d.run(h, handler)
		d.inFlight.Add(-1)
		if err != nil {
			d.logger.Warn("task failed", "worker", worker, "request_id", h.ID, "err", err)
		} else {
			d.logger.Debug("task done", "worker", worker, "request_id", h.ID, "elapsed", time.Since(start))
		}
		d.finish(h)
	}
}

func (d *Dispatcher) run(h *TaskHandle, handler Handler) (err error) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("task panicked", "request_id", h.ID, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return handler(h.ctx, h.ID)
}

func (d *Dispatcher) finish(h *TaskHandle) {
	d.mu.Lock()
	if d.tasks[h.ID] == h {
		delete(d.tasks, h.ID)
	}
	d.mu.Unlock()
	h.cancel(nil)
	close(h.done)
}
