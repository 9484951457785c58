// Package worker runs jobs on a fixed number of goroutines fed by a bounded
// queue. Submit never blocks: a full queue is reported to the caller.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"genesis/internal/infra"
)

var (
	ErrQueueFull   = errors.New("worker: task queue is full")
	ErrPoolStopped = errors.New("worker: pool is stopped")
)

// Task is one unit of work. ctx carries the pool's task timeout and is
// cancelled when a Stop deadline expires.
type Task func(ctx context.Context) error

// Config sizes the pool.
type Config struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
}

func (cfg Config) Validate() error {
	if cfg.Workers < 1 {
		return errors.New("worker: workers must be greater than 0")
	}
	if cfg.QueueSize < 1 {
		return errors.New("worker: queue size must be greater than 0")
	}
	if cfg.TaskTimeout < 0 {
		return errors.New("worker: task timeout must not be negative")
	}
	return nil
}

// Metrics are updated atomically and safe to read at any time.
type Metrics struct {
	Active    atomic.Int64
	Pending   atomic.Int64
	Completed atomic.Int64
	Failed    atomic.Int64
}

// Snapshot is a point-in-time copy of Metrics.
type Snapshot struct {
	Workers   int   `json:"workers"`
	QueueSize int   `json:"queue_size"`
	Active    int64 `json:"active"`
	Pending   int64 `json:"pending"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

type Pool struct {
	cfg    Config
	tasks  chan Task
	logger *infra.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	metrics Metrics
}

// NewPool validates cfg and starts the workers.
func NewPool(cfg Config, logger *infra.Logger) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = infra.NopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:    cfg,
		tasks:  make(chan Task, cfg.QueueSize),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
	return p, nil
}

// Submit queues task without blocking.
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	p.metrics.Pending.Add(1)
	select {
	case p.tasks <- task:
		return nil
	default:
		p.metrics.Pending.Add(-1)
		return ErrQueueFull
	}
}

// Stop refuses new tasks and waits for queued and running tasks to finish. If
// ctx expires first, running tasks are cancelled and Stop returns ctx.Err().
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}

func (p *Pool) run(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.metrics.Pending.Add(-1)
		p.execute(id, task)
	}
}

func (p *Pool) execute(id int, task Task) {
	p.metrics.Active.Add(1)
	defer p.metrics.Active.Add(-1)

	ctx := p.ctx
	if p.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.TaskTimeout)
		defer cancel()
	}

	start := time.Now()
	err := safeRun(ctx, task)
	if err != nil {
		p.metrics.Failed.Add(1)
		p.logger.Error().Err(err).Int("worker", id).Dur("took", time.Since(start)).Msg("worker: task failed")
		return
	}
	p.metrics.Completed.Add(1)
}

func safeRun(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker: task panicked: %v", r)
		}
	}()
	return task(ctx)
}

// Metrics returns a snapshot of the pool counters.
func (p *Pool) Metrics() Snapshot {
	return Snapshot{
		Workers:   p.cfg.Workers,
		QueueSize: p.cfg.QueueSize,
		Active:    p.metrics.Active.Load(),
		Pending:   p.metrics.Pending.Load(),
		Completed: p.metrics.Completed.Load(),
		Failed:    p.metrics.Failed.Load(),
	}
}

// Active and Queued satisfy health.Load.
func (p *Pool) Active() int64 { return p.metrics.Active.Load() }

func (p *Pool) Queued() int64 { return p.metrics.Pending.Load() }
