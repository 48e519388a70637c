package queue

import (
	"context"
	"errors"
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/models"
)

func testQueueConfig() *common.QueueConfig {
	return &common.QueueConfig{
		PollInterval:      "20ms",
		Concurrency:       1,
		VisibilityTimeout: "200ms",
		MaxReceive:        2,
		QueueName:         "test",
	}
}

func newTestQueue(t *testing.T, config *common.QueueConfig) *BadgerQueue {
	t.Helper()

	tmpDir, err := ioutil.TempDir("", "queue-test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	options := badger.DefaultOptions(tmpDir)
	options.Logger = nil

	db, err := badger.Open(options)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	q, err := NewBadgerQueue(db, config, arbor.NewLogger())
	if err != nil {
		t.Fatal(err)
	}
	return q
}

func newTestJob(id, integrationID string) *models.SyncJob {
	return &models.SyncJob{
		ID:            id,
		IntegrationID: integrationID,
		Trigger:       models.SyncTriggerManual,
		State:         models.JobStateQueued,
		MaxAttempts:   3,
		EnqueuedAt:    time.Now(),
	}
}

func TestEnqueueReceiveAck(t *testing.T) {
	q := newTestQueue(t, testQueueConfig())
	ctx := context.Background()

	if err := q.Enqueue(ctx, newTestJob("job_abc", "int_1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	length, err := q.Length(ctx)
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	if length != 1 {
		t.Errorf("Expected length 1, got %d", length)
	}

	job, ack, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if job.ID != "job_abc" {
		t.Errorf("Expected job_abc, got %s", job.ID)
	}
	if job.IntegrationID != "int_1" {
		t.Errorf("Expected int_1, got %s", job.IntegrationID)
	}

	if err := ack(); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}

	length, err = q.Length(ctx)
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	if length != 0 {
		t.Errorf("Expected empty queue after ack, got length %d", length)
	}

	if _, _, err := q.Receive(ctx); !errors.Is(err, models.ErrNoMessage) {
		t.Errorf("Expected ErrNoMessage, got %v", err)
	}
}

func TestReceiveEmptyQueue(t *testing.T) {
	q := newTestQueue(t, testQueueConfig())

	_, _, err := q.Receive(context.Background())
	if !errors.Is(err, models.ErrNoMessage) {
		t.Errorf("Expected ErrNoMessage, got %v", err)
	}
}

func TestEnqueueWithDelayHidesJob(t *testing.T) {
	q := newTestQueue(t, testQueueConfig())
	ctx := context.Background()

	if err := q.EnqueueWithDelay(ctx, newTestJob("job_delayed", "int_1"), 250*time.Millisecond); err != nil {
		t.Fatalf("EnqueueWithDelay failed: %v", err)
	}

	if _, _, err := q.Receive(ctx); !errors.Is(err, models.ErrNoMessage) {
		t.Fatalf("Expected delayed job to be invisible, got %v", err)
	}

	time.Sleep(400 * time.Millisecond)

	job, ack, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive after delay failed: %v", err)
	}
	if job.ID != "job_delayed" {
		t.Errorf("Expected job_delayed, got %s", job.ID)
	}
	if err := ack(); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}
}

func TestRedeliveryAfterVisibilityTimeout(t *testing.T) {
	config := testQueueConfig()
	config.VisibilityTimeout = "200ms"
	q := newTestQueue(t, config)
	ctx := context.Background()

	if err := q.Enqueue(ctx, newTestJob("job_1", "int_1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// First receive claims the job without acknowledging it
	job, _, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if job.ID != "job_1" {
		t.Fatalf("Expected job_1, got %s", job.ID)
	}

	// While claimed the job is invisible
	if _, _, err := q.Receive(ctx); !errors.Is(err, models.ErrNoMessage) {
		t.Fatalf("Expected claimed job to be invisible, got %v", err)
	}

	// After the visibility timeout the job is redelivered
	time.Sleep(400 * time.Millisecond)

	job, ack, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Expected redelivery, got %v", err)
	}
	if job.ID != "job_1" {
		t.Errorf("Expected job_1 redelivered, got %s", job.ID)
	}
	if err := ack(); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}
}

func TestPoisonPillDroppedAfterMaxReceive(t *testing.T) {
	config := testQueueConfig()
	config.VisibilityTimeout = "50ms"
	config.MaxReceive = 2
	q := newTestQueue(t, config)
	ctx := context.Background()

	if err := q.Enqueue(ctx, newTestJob("job_poison", "int_1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, _, err := q.Receive(ctx); err != nil {
			t.Fatalf("Receive %d failed: %v", i+1, err)
		}
		time.Sleep(120 * time.Millisecond)
	}

	// Third attempt sees the receive count at the cap and drops the job
	if _, _, err := q.Receive(ctx); !errors.Is(err, models.ErrNoMessage) {
		t.Fatalf("Expected poison job to be dropped, got %v", err)
	}

	length, err := q.Length(ctx)
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	if length != 0 {
		t.Errorf("Expected dropped job removed from queue, got length %d", length)
	}
}

func TestExtendKeepsJobClaimed(t *testing.T) {
	config := testQueueConfig()
	config.VisibilityTimeout = "150ms"
	q := newTestQueue(t, config)
	ctx := context.Background()

	if err := q.Enqueue(ctx, newTestJob("job_slow", "int_1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	job, ack, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}

	if err := q.Extend(ctx, job.ID, time.Second); err != nil {
		t.Fatalf("Extend failed: %v", err)
	}

	// Past the original visibility timeout the job stays claimed
	time.Sleep(300 * time.Millisecond)
	if _, _, err := q.Receive(ctx); !errors.Is(err, models.ErrNoMessage) {
		t.Fatalf("Expected extended job to stay invisible, got %v", err)
	}

	if err := ack(); err != nil {
		t.Fatalf("Ack after extend failed: %v", err)
	}

	length, err := q.Length(ctx)
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	if length != 0 {
		t.Errorf("Expected empty queue after ack, got length %d", length)
	}
}

func TestExtendUnknownJob(t *testing.T) {
	q := newTestQueue(t, testQueueConfig())

	if err := q.Extend(context.Background(), "job_missing", time.Minute); err == nil {
		t.Error("Expected error extending unknown job")
	}
}

func TestAckIdempotent(t *testing.T) {
	q := newTestQueue(t, testQueueConfig())
	ctx := context.Background()

	if err := q.Enqueue(ctx, newTestJob("job_1", "int_1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	_, ack, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}

	if err := ack(); err != nil {
		t.Fatalf("First ack failed: %v", err)
	}
	if err := ack(); err != nil {
		t.Errorf("Second ack should be a no-op, got %v", err)
	}
}

func TestRequeueBeforeAckSurvives(t *testing.T) {
	config := testQueueConfig()
	config.VisibilityTimeout = "150ms"
	q := newTestQueue(t, config)
	ctx := context.Background()

	if err := q.Enqueue(ctx, newTestJob("job_retry", "int_1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// The retry path re-enqueues under the same job ID while the
	// original delivery is still claimed, then acks the original
	job, ack, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if err := q.EnqueueWithDelay(ctx, job, 50*time.Millisecond); err != nil {
		t.Fatalf("Re-enqueue failed: %v", err)
	}
	if err := ack(); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}

	length, err := q.Length(ctx)
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	if length != 1 {
		t.Fatalf("Expected retry message to survive the ack, got length %d", length)
	}

	time.Sleep(100 * time.Millisecond)

	retry, retryAck, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive of retry failed: %v", err)
	}
	if retry.ID != "job_retry" {
		t.Errorf("Expected job_retry, got %s", retry.ID)
	}
	if err := retryAck(); err != nil {
		t.Fatalf("Retry ack failed: %v", err)
	}

	// The superseded claim entry must not deliver the message again
	time.Sleep(300 * time.Millisecond)
	if _, _, err := q.Receive(ctx); !errors.Is(err, models.ErrNoMessage) {
		t.Errorf("Expected no further deliveries, got %v", err)
	}

	length, err = q.Length(ctx)
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	if length != 0 {
		t.Errorf("Expected empty queue, got length %d", length)
	}
}

func TestQueueStats(t *testing.T) {
	config := testQueueConfig()
	config.VisibilityTimeout = "5s"
	q := newTestQueue(t, config)
	ctx := context.Background()

	if err := q.Enqueue(ctx, newTestJob("job_1", "int_1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.Enqueue(ctx, newTestJob("job_2", "int_2")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.EnqueueWithDelay(ctx, newTestJob("job_3", "int_3"), 5*time.Second); err != nil {
		t.Fatalf("EnqueueWithDelay failed: %v", err)
	}

	length, err := q.Length(ctx)
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	if length != 3 {
		t.Errorf("Expected length 3, got %d", length)
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats["name"] != "test" {
		t.Errorf("Expected queue name test, got %v", stats["name"])
	}
	if stats["depth"] != 3 {
		t.Errorf("Expected depth 3, got %v", stats["depth"])
	}
	if stats["ready"] != 2 {
		t.Errorf("Expected 2 ready, got %v", stats["ready"])
	}
	if stats["delayed"] != 1 {
		t.Errorf("Expected 1 delayed, got %v", stats["delayed"])
	}
	if stats["in_flight"] != 0 {
		t.Errorf("Expected 0 in flight, got %v", stats["in_flight"])
	}

	// Claiming a job moves it from ready to in flight
	if _, _, err := q.Receive(ctx); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}

	stats, err = q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats["ready"] != 1 {
		t.Errorf("Expected 1 ready after claim, got %v", stats["ready"])
	}
	if stats["in_flight"] != 1 {
		t.Errorf("Expected 1 in flight after claim, got %v", stats["in_flight"])
	}
}

func TestQueueSurvivesReopen(t *testing.T) {
	tmpDir, err := ioutil.TempDir("", "queue-reopen-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	options := badger.DefaultOptions(tmpDir)
	options.Logger = nil

	ctx := context.Background()
	config := testQueueConfig()

	db, err := badger.Open(options)
	if err != nil {
		t.Fatal(err)
	}

	q, err := NewBadgerQueue(db, config, arbor.NewLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(ctx, newTestJob("job_durable", "int_1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopen the database and expect the message to still be there
	db, err = badger.Open(options)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	q, err = NewBadgerQueue(db, config, arbor.NewLogger())
	if err != nil {
		t.Fatal(err)
	}

	job, ack, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive after reopen failed: %v", err)
	}
	if job.ID != "job_durable" {
		t.Errorf("Expected job_durable, got %s", job.ID)
	}
	if err := ack(); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}
}
