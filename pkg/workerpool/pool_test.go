package workerpool

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolProcessesTasks(t *testing.T) {
	var processed int64

	pool, err := New(Config{Workers: 4, QueueSize: 16}, func(ctx context.Context, task *Task) *Result {
		atomic.AddInt64(&processed, 1)
		return &Result{TaskID: task.ID, Success: true}
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	pool.Start()

	for i := 0; i < 10; i++ {
		if err := pool.Submit(&Task{ID: fmt.Sprintf("task-%d", i)}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	for i := 0; i < 10; i++ {
		select {
		case res := <-pool.Results():
			if !res.Success {
				t.Errorf("task %s failed: %v", res.TaskID, res.Error)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for results")
		}
	}

	pool.Stop()

	if got := atomic.LoadInt64(&processed); got != 10 {
		t.Errorf("processed = %d, want 10", got)
	}

	stats := pool.Stats()
	if stats.TasksCompleted != 10 {
		t.Errorf("completed = %d", stats.TasksCompleted)
	}
}

func TestPoolRetriesFailures(t *testing.T) {
	var attempts int64

	pool, err := New(Config{
		Workers:    1,
		QueueSize:  4,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}, func(ctx context.Context, task *Task) *Result {
		n := atomic.AddInt64(&attempts, 1)
		if n < 3 {
			return &Result{TaskID: task.ID, Success: false, Error: fmt.Errorf("transient")}
		}
		return &Result{TaskID: task.ID, Success: true}
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	pool.Start()
	if err := pool.Submit(&Task{ID: "retry-me"}); err != nil {
		t.Fatal(err)
	}

	select {
	case res := <-pool.Results():
		if !res.Success {
			t.Errorf("expected success after retries, got %v", res.Error)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
	pool.Stop()

	if got := atomic.LoadInt64(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestPoolRejectsWhenQueueFull(t *testing.T) {
	block := make(chan struct{})

	pool, err := New(Config{Workers: 1, QueueSize: 1}, func(ctx context.Context, task *Task) *Result {
		<-block
		return &Result{TaskID: task.ID, Success: true}
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	pool.Start()
	defer func() {
		close(block)
		pool.Stop()
	}()

	// First task occupies the worker, second fills the queue. Eventually a
	// submit must be rejected.
	rejected := false
	for i := 0; i < 5; i++ {
		if err := pool.Submit(&Task{ID: fmt.Sprintf("t-%d", i)}); err != nil {
			rejected = true
			break
		}
	}
	if !rejected {
		t.Error("expected a rejection once the queue filled")
	}
}

func TestPoolRejectsAfterStop(t *testing.T) {
	pool, err := New(Config{Workers: 1, QueueSize: 1}, func(ctx context.Context, task *Task) *Result {
		return &Result{TaskID: task.ID, Success: true}
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	pool.Start()
	pool.Stop()

	if err := pool.Submit(&Task{ID: "late"}); err == nil {
		t.Error("submit after stop must fail")
	}
}
