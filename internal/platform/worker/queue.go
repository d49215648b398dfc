// Package worker provides the background task machinery: a Redis-backed task
// queue, a worker pool that dispatches tasks to registered handlers, and a
// scheduler for periodic jobs. Credential emails and maintenance sweeps run
// through it so HTTP requests never wait on SMTP or bulk updates.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Task is a unit of background work. Payload carries handler-specific JSON.
type Task struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NewTask builds a task with a fresh ID, marshalling the payload.
func NewTask(kind string, payload any) (Task, error) {
	t := Task{
		ID:         uuid.New().String(),
		Kind:       kind,
		EnqueuedAt: time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Task{}, fmt.Errorf("marshal task payload: %w", err)
		}
		t.Payload = raw
	}
	return t, nil
}

// ErrQueueClosed is returned by Dequeue once the queue is shut down.
var ErrQueueClosed = errors.New("worker: queue closed")

// TaskQueue is what services enqueue onto and the pool consumes from.
type TaskQueue interface {
	Enqueue(ctx context.Context, task Task) error
	Dequeue(ctx context.Context) (Task, error)
}

// ---------------------------------------------------------------------------
// Redis queue
// ---------------------------------------------------------------------------

const defaultQueueKey = "clinicore:tasks"

// RedisQueue is a TaskQueue backed by a Redis list. Enqueue pushes to the
// head; workers block-pop from the tail so tasks run in FIFO order.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue creates a queue on the given client. An empty key uses the
// default list.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = defaultQueueKey
	}
	return &RedisQueue{client: client, key: key}
}

// Enqueue pushes the task onto the list.
func (q *RedisQueue) Enqueue(ctx context.Context, task Task) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("enqueue task %s: %w", task.Kind, err)
	}
	return nil
}

// Dequeue blocks until a task is available or the context is cancelled.
func (q *RedisQueue) Dequeue(ctx context.Context) (Task, error) {
	res, err := q.client.BRPop(ctx, 0, q.key).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Task{}, ErrQueueClosed
		}
		return Task{}, fmt.Errorf("dequeue: %w", err)
	}
	// BRPop returns [key, value].
	var task Task
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return Task{}, fmt.Errorf("unmarshal task: %w", err)
	}
	return task, nil
}

// ---------------------------------------------------------------------------
// In-memory queue
// ---------------------------------------------------------------------------

// MemoryQueue is a channel-backed TaskQueue used in tests and by the sweep
// command, which runs without Redis.
type MemoryQueue struct {
	tasks chan Task
}

// NewMemoryQueue creates a queue buffered to the given size.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 128
	}
	return &MemoryQueue{tasks: make(chan Task, size)}
}

// Enqueue adds the task, failing if the buffer is full.
func (q *MemoryQueue) Enqueue(_ context.Context, task Task) error {
	select {
	case q.tasks <- task:
		return nil
	default:
		return errors.New("worker: memory queue full")
	}
}

// Dequeue blocks until a task is available or the context is cancelled.
func (q *MemoryQueue) Dequeue(ctx context.Context) (Task, error) {
	select {
	case task := <-q.tasks:
		return task, nil
	case <-ctx.Done():
		return Task{}, ErrQueueClosed
	}
}

// Len reports the number of buffered tasks.
func (q *MemoryQueue) Len() int { return len(q.tasks) }
