package queue

import (
	"context"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/models"
)

func waitForLength(t *testing.T, q *BadgerQueue, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		length, err := q.Length(context.Background())
		if err != nil {
			t.Fatalf("Length failed: %v", err)
		}
		if length == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Queue length never reached %d", want)
}

func TestWorkerPoolDispatchesByKind(t *testing.T) {
	config := testQueueConfig()
	q := newTestQueue(t, config)
	pool := NewWorkerPool(q, config, arbor.NewLogger())

	syncDone := make(chan string, 1)
	sweepDone := make(chan string, 1)

	pool.RegisterHandler(models.JobKindSync, func(ctx context.Context, job *models.SyncJob) error {
		syncDone <- job.IntegrationID
		return nil
	})
	pool.RegisterHandler(models.JobKindSweep, func(ctx context.Context, job *models.SyncJob) error {
		sweepDone <- job.ID
		return nil
	})

	if err := pool.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pool.Stop()

	ctx := context.Background()
	if err := q.Enqueue(ctx, newTestJob("job_sync", "int_1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.Enqueue(ctx, newTestJob("job_sweep", "")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	select {
	case got := <-syncDone:
		if got != "int_1" {
			t.Errorf("Expected sync handler to see int_1, got %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for sync job dispatch")
	}

	select {
	case got := <-sweepDone:
		if got != "job_sweep" {
			t.Errorf("Expected sweep handler to see job_sweep, got %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for sweep job dispatch")
	}

	// Handled jobs are acknowledged and removed
	waitForLength(t, q, 0)
}

func TestWorkerPoolRecoversFromPanic(t *testing.T) {
	config := testQueueConfig()
	config.Concurrency = 1
	q := newTestQueue(t, config)
	pool := NewWorkerPool(q, config, arbor.NewLogger())

	done := make(chan string, 1)
	pool.RegisterHandler(models.JobKindSync, func(ctx context.Context, job *models.SyncJob) error {
		if job.ID == "job_panic" {
			panic("handler exploded")
		}
		done <- job.ID
		return nil
	})

	if err := pool.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pool.Stop()

	ctx := context.Background()
	if err := q.Enqueue(ctx, newTestJob("job_panic", "int_1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.Enqueue(ctx, newTestJob("job_ok", "int_2")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// The worker survives the panic and processes the next job
	select {
	case got := <-done:
		if got != "job_ok" {
			t.Errorf("Expected job_ok after panic, got %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Worker did not recover from handler panic")
	}

	waitForLength(t, q, 0)
}

func TestWorkerPoolDropsUnhandledKind(t *testing.T) {
	config := testQueueConfig()
	q := newTestQueue(t, config)
	pool := NewWorkerPool(q, config, arbor.NewLogger())

	syncDone := make(chan string, 1)
	pool.RegisterHandler(models.JobKindSync, func(ctx context.Context, job *models.SyncJob) error {
		syncDone <- job.ID
		return nil
	})

	if err := pool.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pool.Stop()

	// Sweep job has no registered handler and is deleted, not retried
	if err := q.Enqueue(context.Background(), newTestJob("job_sweep", "")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	waitForLength(t, q, 0)

	select {
	case got := <-syncDone:
		t.Errorf("Sync handler should not have run, got %s", got)
	default:
	}
}

func TestWorkerPoolStop(t *testing.T) {
	config := testQueueConfig()
	q := newTestQueue(t, config)
	pool := NewWorkerPool(q, config, arbor.NewLogger())

	pool.RegisterHandler(models.JobKindSync, func(ctx context.Context, job *models.SyncJob) error {
		return nil
	})

	if err := pool.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := pool.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Stopped workers no longer drain the queue
	if err := q.Enqueue(context.Background(), newTestJob("job_after_stop", "int_1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	time.Sleep(150 * time.Millisecond)

	length, err := q.Length(context.Background())
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	if length != 1 {
		t.Errorf("Expected job to remain after Stop, got length %d", length)
	}
}
