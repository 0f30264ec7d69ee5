package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cuemby/beacon/pkg/log"
	"github.com/cuemby/beacon/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrPoolStopped is returned by handles submitted after Stop
var ErrPoolStopped = errors.New("worker pool stopped")

// DefaultSize is the number of workers when none is configured
const DefaultSize = 4

// Task is a unit of background work
type Task func(ctx context.Context) (types.Outcome, error)

type job struct {
	task   Task
	handle *Handle
}

// Pool runs tasks on a fixed set of goroutines. The backlog is unbounded so
// Submit never waits for a free worker.
type Pool struct {
	size   int
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	ready   *sync.Cond
	backlog []job
	started bool
	stopped bool

	logger zerolog.Logger
}

// NewPool creates a pool with size workers
func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	p := &Pool{
		size:   size,
		logger: log.WithComponent("worker"),
	}
	p.ready = sync.NewCond(&p.mu)
	return p
}

// Start launches the workers
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	ctx, cancel := context.WithCancel(context.Background())
	p.group, p.ctx = errgroup.WithContext(ctx)
	p.cancel = cancel

	for i := 0; i < p.size; i++ {
		id := i
		p.group.Go(func() error {
			p.loop(id)
			return nil
		})
	}
	p.logger.Debug().Int("workers", p.size).Msg("Worker pool started")
}

// Stop drains queued tasks and waits for the workers to exit
func (p *Pool) Stop() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	started := p.started
	var orphans []job
	if !started {
		orphans, p.backlog = p.backlog, nil
	}
	p.ready.Broadcast()
	p.mu.Unlock()

	for _, j := range orphans {
		j.handle.resolve(types.Outcome{}, ErrPoolStopped)
	}
	if !started {
		return nil
	}

	err := p.group.Wait()
	p.cancel()
	p.logger.Debug().Msg("Worker pool stopped")
	return err
}

// Submit queues task and returns its handle without waiting. It never runs
// the task on the caller's goroutine.
func (p *Pool) Submit(task Task) *Handle {
	h := newHandle()

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		h.resolve(types.Outcome{}, ErrPoolStopped)
		return h
	}
	p.backlog = append(p.backlog, job{task: task, handle: h})
	p.ready.Signal()
	p.mu.Unlock()
	return h
}

// Pending returns the number of tasks waiting for a worker
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.backlog)
}

// next blocks until a task is queued. It returns false once the pool is
// stopped and the backlog is empty.
func (p *Pool) next() (job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.backlog) == 0 && !p.stopped {
		p.ready.Wait()
	}
	if len(p.backlog) == 0 {
		return job{}, false
	}
	j := p.backlog[0]
	p.backlog[0] = job{}
	p.backlog = p.backlog[1:]
	return j, true
}

func (p *Pool) loop(id int) {
	for {
		j, ok := p.next()
		if !ok {
			return
		}
		p.run(id, j)
	}
}

func (p *Pool) run(id int, j job) {
	var (
		outcome types.Outcome
		err     error
	)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
			p.logger.Error().
				Int("worker", id).
				Str("handle", j.handle.ID).
				Interface("panic", r).
				Msg("Recovered from task panic")
		}
		j.handle.resolve(outcome, err)
	}()

	outcome, err = j.task(p.ctx)
}

// Handle is the pending result of a submitted task
type Handle struct {
	ID string

	done    chan struct{}
	once    sync.Once
	outcome types.Outcome
	err     error
}

func newHandle() *Handle {
	return &Handle{
		ID:   uuid.New().String(),
		done: make(chan struct{}),
	}
}

// Resolved returns a handle that is already complete
func Resolved(outcome types.Outcome, err error) *Handle {
	h := newHandle()
	h.resolve(outcome, err)
	return h
}

func (h *Handle) resolve(outcome types.Outcome, err error) {
	h.once.Do(func() {
		h.outcome = outcome
		h.err = err
		close(h.done)
	})
}

// Done is closed once the task has finished
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the task finishes or ctx is done
func (h *Handle) Wait(ctx context.Context) (types.Outcome, error) {
	select {
	case <-h.done:
		return h.outcome, h.err
	case <-ctx.Done():
		return types.Outcome{}, ctx.Err()
	}
}
