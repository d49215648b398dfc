package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler processes one task. A returned error triggers a retry until the
// task runs out of attempts.
type Handler func(ctx context.Context, task Task) error

// Pool consumes tasks from a queue and dispatches them to handlers registered
// per task kind.
type Pool struct {
	queue       TaskQueue
	workers     int
	maxAttempts int
	retryDelay  time.Duration
	logger      zerolog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewPool creates a pool reading from queue with the given number of workers.
func NewPool(queue TaskQueue, workers int, logger zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{
		queue:       queue,
		workers:     workers,
		maxAttempts: 3,
		retryDelay:  5 * time.Second,
		logger:      logger.With().Str("component", "worker").Logger(),
		handlers:    make(map[string]Handler),
	}
}

// Register binds a handler to a task kind. Later registrations replace
// earlier ones.
func (p *Pool) Register(kind string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[kind] = h
}

// Run starts the workers and blocks until the context is cancelled and every
// worker has drained.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.work(ctx)
		}()
	}
	wg.Wait()
}

func (p *Pool) work(ctx context.Context) {
	for {
		task, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || ctx.Err() != nil {
				return
			}
			p.logger.Error().Err(err).Msg("dequeue failed")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		p.process(ctx, task)
	}
}

func (p *Pool) process(ctx context.Context, task Task) {
	p.mu.RLock()
	h, ok := p.handlers[task.Kind]
	p.mu.RUnlock()
	if !ok {
		p.logger.Warn().Str("kind", task.Kind).Str("task_id", task.ID).Msg("no handler for task, dropping")
		return
	}

	err := h(ctx, task)
	if err == nil {
		p.logger.Debug().Str("kind", task.Kind).Str("task_id", task.ID).Msg("task done")
		return
	}

	task.Attempts++
	if task.Attempts >= p.maxAttempts {
		p.logger.Error().Err(err).
			Str("kind", task.Kind).
			Str("task_id", task.ID).
			Int("attempts", task.Attempts).
			Msg("task failed permanently")
		return
	}

	p.logger.Warn().Err(err).
		Str("kind", task.Kind).
		Str("task_id", task.ID).
		Int("attempts", task.Attempts).
		Msg("task failed, requeueing")

	go func() {
		select {
		case <-time.After(p.retryDelay):
		case <-ctx.Done():
			return
		}
		if err := p.queue.Enqueue(ctx, task); err != nil {
			p.logger.Error().Err(err).Str("task_id", task.ID).Msg("requeue failed")
		}
	}()
}
