package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestMemoryQueue_FIFO(t *testing.T) {
	q := NewMemoryQueue(8)
	ctx := context.Background()

	for _, kind := range []string{"first", "second", "third"} {
		task, err := NewTask(kind, nil)
		if err != nil {
			t.Fatalf("new task: %v", err)
		}
		if err := q.Enqueue(ctx, task); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	for _, want := range []string{"first", "second", "third"} {
		task, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if task.Kind != want {
			t.Errorf("expected %s, got %s", want, task.Kind)
		}
	}
}

func TestMemoryQueue_DequeueUnblocksOnCancel(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(ctx)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, ErrQueueClosed) {
			t.Errorf("expected ErrQueueClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not unblock on cancel")
	}
}

func TestNewTask_Payload(t *testing.T) {
	task, err := NewTask("send-email", map[string]string{"to": "a@hopital.cm"})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if task.ID == "" || task.EnqueuedAt.IsZero() {
		t.Error("expected ID and enqueue time to be set")
	}

	var payload map[string]string
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["to"] != "a@hopital.cm" {
		t.Errorf("unexpected payload: %v", payload)
	}
}

func TestPool_DispatchesByKind(t *testing.T) {
	q := NewMemoryQueue(8)
	pool := NewPool(q, 2, zerolog.Nop())

	var mu sync.Mutex
	seen := make(map[string]int)
	record := func(kind string) Handler {
		return func(context.Context, Task) error {
			mu.Lock()
			seen[kind]++
			mu.Unlock()
			return nil
		}
	}
	pool.Register("alpha", record("alpha"))
	pool.Register("beta", record("beta"))

	ctx, cancel := context.WithCancel(context.Background())
	for _, kind := range []string{"alpha", "beta", "alpha"} {
		task, _ := NewTask(kind, nil)
		if err := q.Enqueue(ctx, task); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		finished := seen["alpha"] == 2 && seen["beta"] == 1
		mu.Unlock()
		if finished {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("tasks not processed in time: %v", seen)
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not stop on cancel")
	}
}

func TestPool_RetriesUntilMaxAttempts(t *testing.T) {
	q := NewMemoryQueue(8)
	pool := NewPool(q, 1, zerolog.Nop())
	pool.retryDelay = time.Millisecond

	var attempts atomic.Int32
	pool.Register("flaky", func(context.Context, Task) error {
		attempts.Add(1)
		return errors.New("boom")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	task, _ := NewTask("flaky", nil)
	if err := q.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	go pool.Run(ctx)

	deadline := time.After(2 * time.Second)
	for attempts.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected 3 attempts, got %d", attempts.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Give the pool a moment to make sure it stops at maxAttempts.
	time.Sleep(50 * time.Millisecond)
	if got := attempts.Load(); got != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", got)
	}
}

func TestScheduler_RunsJobOnStartAndInterval(t *testing.T) {
	s := NewScheduler(zerolog.Nop())

	var runs atomic.Int32
	s.Every(20*time.Millisecond, "tick", func(context.Context) error {
		runs.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 runs, got %d", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}
