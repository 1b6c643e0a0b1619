package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	appErr "campusjudge/pkg/errors"
	"campusjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultWorkers        = 4
	defaultQueueSize      = 256
	defaultEnqueueTimeout = 2 * time.Second
)

// TaskHandler processes one submission. It must not panic past its own boundary.
type TaskHandler func(ctx context.Context, submissionID string)

type DispatcherConfig struct {
	Workers        int
	QueueSize      int
	EnqueueTimeout time.Duration
}

// Dispatcher is a bounded worker pool fed by a buffered channel. An id is
// tracked from Enqueue until its handler returns and is never queued twice
// while tracked.
type Dispatcher struct {
	tasks          chan string
	workers        int
	enqueueTimeout time.Duration
	handler        TaskHandler

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup

	trackMu  sync.Mutex
	inFlight map[string]struct{}
}

func NewDispatcher(cfg DispatcherConfig, handler TaskHandler) (*Dispatcher, error) {
	if handler == nil {
		return nil, fmt.Errorf("task handler is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	} else if cfg.QueueSize == 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = defaultEnqueueTimeout
	}
	return &Dispatcher{
		tasks:          make(chan string, cfg.QueueSize),
		workers:        cfg.Workers,
		enqueueTimeout: cfg.EnqueueTimeout,
		handler:        handler,
		inFlight:       make(map[string]struct{}),
	}, nil
}

// Start launches the workers. Tasks run with ctx, which should outlive shutdown
// so in-flight submissions reach a terminal state.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run(ctx, i)
	}
	logger.Info(ctx, "judge dispatcher started", zap.Int("workers", d.workers), zap.Int("queue_size", cap(d.tasks)))
}

func (d *Dispatcher) run(ctx context.Context, worker int) {
	defer d.wg.Done()
	for id := range d.tasks {
		d.handle(ctx, worker, id)
		d.release(id)
	}
}

func (d *Dispatcher) handle(ctx context.Context, worker int, id string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "judge task panicked",
				zap.Int("worker", worker),
				zap.String("submission_id", id),
				zap.Any("panic", r),
			)
		}
	}()
	d.handler(ctx, id)
}

// Enqueue hands a submission to the pool, waiting at most the enqueue timeout
// for a free queue slot. A submission already queued or running here is not
// queued again.
func (d *Dispatcher) Enqueue(ctx context.Context, submissionID string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("judge dispatcher is stopped")
	}
	if !d.claim(submissionID) {
		return nil
	}

	select {
	case d.tasks <- submissionID:
		return nil
	default:
	}

	timer := time.NewTimer(d.enqueueTimeout)
	defer timer.Stop()
	select {
	case d.tasks <- submissionID:
		return nil
	case <-timer.C:
		d.release(submissionID)
		return appErr.New(appErr.JudgeQueueFull).WithDetail("submission_id", submissionID)
	case <-ctx.Done():
		d.release(submissionID)
		return appErr.Wrapf(ctx.Err(), appErr.JudgeQueueFull, "enqueue cancelled")
	}
}

// Tracked reports whether the submission is queued or being handled by this pool.
func (d *Dispatcher) Tracked(submissionID string) bool {
	d.trackMu.Lock()
	defer d.trackMu.Unlock()
	_, ok := d.inFlight[submissionID]
	return ok
}

func (d *Dispatcher) claim(submissionID string) bool {
	d.trackMu.Lock()
	defer d.trackMu.Unlock()
	if _, ok := d.inFlight[submissionID]; ok {
		return false
	}
	d.inFlight[submissionID] = struct{}{}
	return true
}

func (d *Dispatcher) release(submissionID string) {
	d.trackMu.Lock()
	delete(d.inFlight, submissionID)
	d.trackMu.Unlock()
}

// Pending is the number of queued tasks not yet picked up.
func (d *Dispatcher) Pending() int {
	return len(d.tasks)
}

// Stop refuses new work, lets workers drain the queue and waits for them
// until ctx expires.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.tasks)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("judge dispatcher stop: %w", ctx.Err())
	}
}
