package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
)

// WorkerPool runs a fixed set of workers that poll the queue and
// dispatch jobs to registered handlers by job kind.
type WorkerPool struct {
	queue        interfaces.QueueManager
	handlers     map[string]interfaces.SyncJobHandler
	concurrency  int
	pollInterval time.Duration
	logger       arbor.ILogger
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewWorkerPool creates a worker pool over the given queue. Handlers
// must be registered before Start.
func NewWorkerPool(queueMgr interfaces.QueueManager, config *common.QueueConfig, logger arbor.ILogger) *WorkerPool {
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		queue:        queueMgr,
		handlers:     make(map[string]interfaces.SyncJobHandler),
		concurrency:  concurrency,
		pollInterval: common.ParseDurationOr(config.PollInterval, time.Second),
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// RegisterHandler registers a handler for a job kind
func (wp *WorkerPool) RegisterHandler(kind string, handler interfaces.SyncJobHandler) {
	wp.handlers[kind] = handler
	wp.logger.Debug().
		Str("kind", kind).
		Msg("Job handler registered")
}

// Start launches the worker goroutines
func (wp *WorkerPool) Start() error {
	wp.logger.Info().
		Int("concurrency", wp.concurrency).
		Dur("poll_interval", wp.pollInterval).
		Msg("Starting worker pool")

	for i := 0; i < wp.concurrency; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	return nil
}

// Stop cancels the workers and waits for in-flight jobs to finish
func (wp *WorkerPool) Stop() error {
	wp.logger.Info().Msg("Stopping worker pool")
	wp.cancel()
	wp.wg.Wait()
	return nil
}

// worker is the poll loop for one worker
func (wp *WorkerPool) worker(workerID int) {
	defer wp.wg.Done()

	// Stagger worker starts to spread polling across the interval and
	// reduce transaction conflicts on the shared database
	staggerDelay := (wp.pollInterval / time.Duration(wp.concurrency)) * time.Duration(workerID)
	if staggerDelay > 0 {
		select {
		case <-wp.ctx.Done():
			return
		case <-time.After(staggerDelay):
		}
	}

	wp.logger.Debug().
		Int("worker_id", workerID).
		Dur("stagger_delay", staggerDelay).
		Msg("Worker started")

	ticker := time.NewTicker(wp.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return

		case <-ticker.C:
			if err := wp.processOne(workerID); err != nil {
				// An empty queue is the common case, not an error
				if !errors.Is(err, models.ErrNoMessage) {
					wp.logger.Warn().
						Err(err).
						Int("worker_id", workerID).
						Msg("Error processing job")
				}
			}
		}
	}
}

// processOne receives and processes a single job
func (wp *WorkerPool) processOne(workerID int) error {
	job, ack, err := wp.queue.Receive(wp.ctx)
	if err != nil {
		return err
	}

	kind := job.Kind()
	handler, exists := wp.handlers[kind]
	if !exists {
		wp.logger.Error().
			Str("job_id", job.ID).
			Str("kind", kind).
			Msg("No handler registered for job kind")
		if delErr := ack(); delErr != nil {
			wp.logger.Warn().Err(delErr).Str("job_id", job.ID).Msg("Failed to delete unhandled job")
		}
		return fmt.Errorf("no handler for job kind: %s", kind)
	}

	wp.logger.Debug().
		Str("job_id", job.ID).
		Str("kind", kind).
		Int("worker_id", workerID).
		Msg("Processing job")

	startTime := time.Now()
	handlerErr := wp.invoke(handler, job)
	duration := time.Since(startTime)

	if handlerErr != nil {
		wp.logger.Error().
			Err(handlerErr).
			Str("job_id", job.ID).
			Str("kind", kind).
			Dur("duration", duration).
			Int("worker_id", workerID).
			Msg("Job handler failed")
	} else {
		wp.logger.Info().
			Str("job_id", job.ID).
			Str("kind", kind).
			Dur("duration", duration).
			Int("worker_id", workerID).
			Msg("Job completed")
	}

	// The handler owns retries, re-enqueueing with backoff itself, so the
	// message is acknowledged on every handler return. Redelivery via the
	// visibility timeout only covers crashes mid-handler.
	if err := ack(); err != nil {
		wp.logger.Warn().
			Err(err).
			Str("job_id", job.ID).
			Msg("Failed to acknowledge job")
		return err
	}

	return handlerErr
}

// invoke runs the handler with panic recovery so a panicking sync
// cannot take down the worker
func (wp *WorkerPool) invoke(handler interfaces.SyncJobHandler, job *models.SyncJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return handler(wp.ctx, job)
}

var _ interfaces.WorkerPool = (*WorkerPool)(nil)
