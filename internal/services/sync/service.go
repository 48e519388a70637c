// Package sync orchestrates integration sync cycles: adapter fetch,
// metric calculation, maturity scoring, snapshot persistence, cache
// writes and retry scheduling through the durable queue.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/pulse/internal/adapters"
	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/metrics"
	"github.com/ternarybob/pulse/internal/models"
	"github.com/ternarybob/pulse/internal/services/cache"
)

// Service implements SyncService. It is the sole writer of integration
// sync state, metric snapshots and their cache entries.
type Service struct {
	config   *common.Config
	storage  interfaces.StorageManager
	adapters interfaces.AdapterRegistry
	queue    interfaces.QueueManager
	cache    interfaces.CacheService
	events   interfaces.EventService
	logger   arbor.ILogger

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewService creates the sync orchestrator
func NewService(
	config *common.Config,
	storage interfaces.StorageManager,
	registry interfaces.AdapterRegistry,
	queueMgr interfaces.QueueManager,
	cacheSvc interfaces.CacheService,
	eventSvc interfaces.EventService,
	logger arbor.ILogger,
) *Service {
	return &Service{
		config:   config,
		storage:  storage,
		adapters: registry,
		queue:    queueMgr,
		cache:    cacheSvc,
		events:   eventSvc,
		logger:   logger,
		inFlight: make(map[string]bool),
	}
}

// EnqueueSync creates and enqueues a sync job for one integration.
// Returns models.ErrSyncInFlight when a sync for the integration is
// already queued or running.
func (s *Service) EnqueueSync(ctx context.Context, integrationID string, trigger models.SyncTrigger) (*models.SyncJob, error) {
	integration, err := s.storage.IntegrationStorage().GetIntegration(ctx, integrationID)
	if err != nil {
		return nil, err
	}

	if !s.markInFlight(integrationID) {
		return nil, models.ErrSyncInFlight
	}

	policy := s.config.Sync.RetryPolicyFor(string(trigger))
	job := &models.SyncJob{
		ID:            common.NewJobID(),
		IntegrationID: integrationID,
		Trigger:       trigger,
		State:         models.JobStateQueued,
		MaxAttempts:   policy.MaxAttempts,
		Backoff:       policy.BackoffDuration(),
		EnqueuedAt:    time.Now(),
	}

	if err := s.storage.SyncJobStorage().SaveJob(ctx, job); err != nil {
		s.clearInFlight(integrationID)
		return nil, fmt.Errorf("failed to persist sync job: %w", err)
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.clearInFlight(integrationID)
		return nil, fmt.Errorf("failed to enqueue sync job: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("integration_id", integrationID).
		Str("integration", integration.Name).
		Str("trigger", string(trigger)).
		Msg("Sync job enqueued")

	return job, nil
}

// EnqueueSweep creates and enqueues the all-integrations sweep envelope
func (s *Service) EnqueueSweep(ctx context.Context) (*models.SyncJob, error) {
	policy := s.config.Sync.RetryPolicyFor(string(models.SyncTriggerPeriodic))
	job := &models.SyncJob{
		ID:          common.NewJobID(),
		Trigger:     models.SyncTriggerPeriodic,
		State:       models.JobStateQueued,
		MaxAttempts: policy.MaxAttempts,
		Backoff:     policy.BackoffDuration(),
		EnqueuedAt:  time.Now(),
	}

	if err := s.storage.SyncJobStorage().SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist sweep job: %w", err)
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue sweep job: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Msg("Sweep job enqueued")

	return job, nil
}

// InFlight reports whether a sync is queued or running for an integration
func (s *Service) InFlight(integrationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight[integrationID]
}

// ExecuteJob runs a dequeued job. Registered as the worker pool handler
// for both job kinds.
func (s *Service) ExecuteJob(ctx context.Context, job *models.SyncJob) error {
	if job.IsSweep() {
		return s.executeSweepJob(ctx, job)
	}
	return s.executeSyncJob(ctx, job)
}

func (s *Service) executeSyncJob(ctx context.Context, job *models.SyncJob) error {
	// An unacked crash redelivers the message. A completed result in
	// the task cache means the work already happened and only the ack
	// was lost, so the redelivery is dropped without another sync.
	if data, ok := s.cache.Get(ctx, models.CacheTierTaskResult, cache.TaskResultKey(job.ID)); ok {
		var prior models.SyncResult
		if err := json.Unmarshal(data, &prior); err == nil && prior.Outcome.Completed() {
			s.logger.Info().
				Str("job_id", job.ID).
				Str("integration_id", job.IntegrationID).
				Msg("Dropping redelivered job with completed result")
			s.clearInFlight(job.IntegrationID)
			return nil
		}
	}

	// Re-arm the single-flight guard: the durable queue outlives the
	// in-memory in-flight set across restarts.
	s.mu.Lock()
	s.inFlight[job.IntegrationID] = true
	s.mu.Unlock()

	job.AttemptCount++
	now := time.Now()
	job.StartedAt = &now
	s.moveJob(ctx, job, models.JobStateRunning, "")

	stopExtend := make(chan struct{})
	go s.keepVisible(job.ID, stopExtend)

	result, runErr := s.RunSync(ctx, job.IntegrationID, job.Trigger)
	close(stopExtend)

	s.cacheTaskResult(ctx, job.ID, result)

	switch {
	case result.Outcome.Completed():
		s.moveJob(ctx, job, models.JobStateSucceeded, "")
		s.clearInFlight(job.IntegrationID)

	case result.Outcome.Retryable() && job.AttemptCount < job.MaxAttempts:
		s.requeueJob(ctx, job, result, runErr)
		// Integration stays in flight until the retry resolves

	case result.Outcome.Retryable():
		s.exhaustJob(ctx, job, result)
		s.clearInFlight(job.IntegrationID)

	default:
		s.moveJob(ctx, job, models.JobStateFailed, result.Error)
		s.clearInFlight(job.IntegrationID)
	}

	return nil
}

func (s *Service) executeSweepJob(ctx context.Context, job *models.SyncJob) error {
	job.AttemptCount++
	now := time.Now()
	job.StartedAt = &now
	s.moveJob(ctx, job, models.JobStateRunning, "")

	stopExtend := make(chan struct{})
	go s.keepVisible(job.ID, stopExtend)

	summary, err := s.Sweep(ctx)
	close(stopExtend)

	if err != nil {
		if job.AttemptCount >= job.MaxAttempts {
			s.moveJob(ctx, job, models.JobStateExhausted, err.Error())
			s.logger.Error().
				Err(err).
				Str("job_id", job.ID).
				Int("attempts", job.AttemptCount).
				Msg("Sweep retries exhausted")
			return nil
		}
		s.moveJob(ctx, job, models.JobStateQueued, err.Error())
		if qErr := s.queue.EnqueueWithDelay(ctx, job, job.Backoff); qErr != nil {
			s.logger.Error().Err(qErr).Str("job_id", job.ID).Msg("Failed to requeue sweep job")
		}
		return nil
	}

	s.moveJob(ctx, job, models.JobStateSucceeded, "")

	s.publishEvent(ctx, interfaces.EventSweepCompleted, map[string]interface{}{
		"job_id":      job.ID,
		"total":       summary.Total,
		"succeeded":   summary.Succeeded,
		"failed":      summary.Failed,
		"skipped":     summary.Skipped,
		"duration_ms": summary.Duration.Milliseconds(),
	})

	return nil
}

// Sweep synchronizes every integration with bounded fan-out, collecting
// per-integration outcomes. One integration's failure never aborts the
// sweep; retryable failures are rescheduled through the queue so the
// sweep itself never waits out a backoff.
func (s *Service) Sweep(ctx context.Context) (*models.SweepSummary, error) {
	start := time.Now()

	integrations, err := s.storage.IntegrationStorage().ListIntegrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrations for sweep: %w", err)
	}

	summary := &models.SweepSummary{Total: len(integrations)}
	var mu sync.Mutex

	limit := s.config.Scheduler.SweepConcurrency
	if limit <= 0 {
		limit = 4
	}

	g := new(errgroup.Group)
	g.SetLimit(limit)

	for _, integration := range integrations {
		integration := integration
		g.Go(func() error {
			if !s.markInFlight(integration.ID) {
				mu.Lock()
				summary.Skipped++
				mu.Unlock()
				s.logger.Debug().
					Str("integration_id", integration.ID).
					Msg("Sweep skipping integration with sync in flight")
				return nil
			}

			result, runErr := s.RunSync(ctx, integration.ID, models.SyncTriggerPeriodic)

			mu.Lock()
			if result.Outcome.Completed() {
				summary.Succeeded++
			} else {
				summary.Failed++
				summary.Reasons = append(summary.Reasons, fmt.Sprintf("%s: %s", integration.ID, result.Error))
			}
			mu.Unlock()

			if result.Outcome.Retryable() {
				s.scheduleSweepRetry(ctx, integration.ID, result, runErr)
			} else {
				s.clearInFlight(integration.ID)
			}
			return nil
		})
	}

	// Workers record failures in the summary instead of returning them
	_ = g.Wait()

	summary.Duration = time.Since(start)

	s.logger.Info().
		Int("total", summary.Total).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Dur("duration", summary.Duration).
		Msg("Sweep completed")

	return summary, nil
}

// RunSync performs one sync attempt. The returned result always carries
// the classified outcome; the error is the underlying cause when the
// outcome is a failure, nil otherwise.
func (s *Service) RunSync(ctx context.Context, integrationID string, trigger models.SyncTrigger) (*models.SyncResult, error) {
	start := time.Now()
	result := &models.SyncResult{IntegrationID: integrationID}

	finish := func(outcome models.SyncOutcome, cause error) (*models.SyncResult, error) {
		result.Outcome = outcome
		if cause != nil {
			result.Error = cause.Error()
		}
		result.Duration = time.Since(start)
		return result, cause
	}

	integration, err := s.storage.IntegrationStorage().GetIntegration(ctx, integrationID)
	if err != nil {
		// Deleted while queued, or storage failure: nothing to retry against
		s.logger.Warn().
			Err(err).
			Str("integration_id", integrationID).
			Msg("Sync target could not be loaded")
		return finish(models.SyncOutcomeTerminalFailure, err)
	}

	s.logger.Info().
		Str("integration_id", integrationID).
		Str("integration", integration.Name).
		Str("type", string(integration.Type)).
		Str("trigger", string(trigger)).
		Msg("Sync started")

	s.publishEvent(ctx, interfaces.EventSyncStarted, map[string]interface{}{
		"integration_id": integrationID,
		"type":           string(integration.Type),
		"trigger":        string(trigger),
	})

	adapter, err := s.adapters.ForIntegration(integration)
	if err != nil {
		cfgErr := adapters.NewConfigError(string(integration.Type), "%s", err.Error())
		return finish(s.failSync(ctx, integration, cfgErr, true), cfgErr)
	}

	// Pre-flight validation rejects bad config before any provider call
	if err := adapter.ValidateConfig(integration); err != nil {
		return finish(s.failSync(ctx, integration, err, true), err)
	}

	window := time.Duration(s.config.Sync.WindowDays) * 24 * time.Hour
	activity, err := adapter.FetchActivity(ctx, integration, window)
	if err != nil && !adapters.IsEmptyResource(err) {
		return finish(s.failSync(ctx, integration, err, false), err)
	}

	// An empty resource degrades to a no-activity snapshot with the
	// provider's explanation as the user-facing message
	var emptyNote string
	if err != nil {
		var syncErr *adapters.SyncError
		if errors.As(err, &syncErr) {
			emptyNote = syncErr.Message
		}
	}
	if activity == nil {
		activity = emptyActivityFor(integration.Type)
	}

	now := time.Now()
	calcResult := metrics.Calculate(activity, s.config.Sync.WindowDays, now)
	maturity := metrics.ScoreSnapshot(calcResult, s.config.Sync.WindowDays)

	payload, err := json.Marshal(calcResult.Metrics)
	if err != nil {
		wrapped := fmt.Errorf("failed to encode metrics: %w", err)
		return finish(s.failSync(ctx, integration, wrapped, false), wrapped)
	}

	snapshot := &models.MetricSnapshot{
		ID:            common.NewSnapshotID(),
		IntegrationID: integration.ID,
		Type:          integration.Type,
		ComputedAt:    now,
		WindowDays:    s.config.Sync.WindowDays,
		NoActivity:    calcResult.NoActivity,
		Message:       calcResult.Message,
		Metrics:       payload,
		Maturity:      maturity,
	}
	if emptyNote != "" {
		snapshot.Message = emptyNote
	}

	if err := s.storage.SnapshotStorage().SaveSnapshot(ctx, snapshot); err != nil {
		wrapped := fmt.Errorf("failed to persist snapshot: %w", err)
		return finish(s.failSync(ctx, integration, wrapped, false), wrapped)
	}

	s.cacheSnapshot(ctx, snapshot)

	if err := s.storage.IntegrationStorage().UpdateSyncState(ctx, integration.ID, models.IntegrationStatusActive, &now, ""); err != nil {
		// The snapshot is already persisted; a stale status is not worth
		// failing the cycle over
		s.logger.Warn().
			Err(err).
			Str("integration_id", integration.ID).
			Msg("Failed to update integration sync state")
	}

	outcome := models.SyncOutcomeSuccess
	if snapshot.NoActivity {
		outcome = models.SyncOutcomePartial
	}

	s.publishEvent(ctx, interfaces.EventSyncCompleted, map[string]interface{}{
		"integration_id": integration.ID,
		"snapshot_id":    snapshot.ID,
		"no_activity":    snapshot.NoActivity,
		"outcome":        string(outcome),
	})

	s.logger.Info().
		Str("integration_id", integration.ID).
		Str("snapshot_id", snapshot.ID).
		Bool("no_activity", snapshot.NoActivity).
		Dur("duration", time.Since(start)).
		Msg("Sync completed")

	result.Snapshot = snapshot
	return finish(outcome, nil)
}

// failSync classifies a sync failure, updates the integration's sync
// state accordingly and publishes the failure event.
//
// Pre-flight config rejections leave status and last_sync untouched so
// a misconfigured integration stays visibly pending. Retryable failures
// keep the current status while recording the error; terminal provider
// failures mark the integration failed. last_sync advances on every
// outcome except the pre-flight rejection.
func (s *Service) failSync(ctx context.Context, integration *models.Integration, cause error, preFlight bool) models.SyncOutcome {
	now := time.Now()
	kind := adapters.KindOf(cause)

	var outcome models.SyncOutcome
	var status models.IntegrationStatus
	var lastSync *time.Time

	switch {
	case preFlight && kind == adapters.ErrKindConfig:
		outcome = models.SyncOutcomeTerminalFailure
		status = integration.Status
		lastSync = nil
	case adapters.IsRetryable(cause):
		outcome = models.SyncOutcomeRetryableFailure
		status = integration.Status
		lastSync = &now
	default:
		outcome = models.SyncOutcomeTerminalFailure
		status = models.IntegrationStatusFailed
		lastSync = &now
	}

	if err := s.storage.IntegrationStorage().UpdateSyncState(ctx, integration.ID, status, lastSync, cause.Error()); err != nil {
		s.logger.Warn().
			Err(err).
			Str("integration_id", integration.ID).
			Msg("Failed to record sync failure")
	}

	s.publishEvent(ctx, interfaces.EventSyncFailed, map[string]interface{}{
		"integration_id": integration.ID,
		"error":          cause.Error(),
		"kind":           string(kind),
		"retryable":      outcome.Retryable(),
	})

	if outcome.Retryable() {
		s.logger.Warn().
			Err(cause).
			Str("integration_id", integration.ID).
			Str("kind", string(kind)).
			Msg("Sync failed, will retry")
	} else {
		s.logger.Error().
			Err(cause).
			Str("integration_id", integration.ID).
			Str("kind", string(kind)).
			Msg("Sync failed")
	}

	return outcome
}

// requeueJob schedules the next attempt of a retryable job, honoring a
// provider Retry-After hint when it exceeds the policy backoff
func (s *Service) requeueJob(ctx context.Context, job *models.SyncJob, result *models.SyncResult, cause error) {
	delay := job.Backoff
	if hint := adapters.RetryAfterHint(cause); hint > delay {
		delay = hint
	}

	s.moveJob(ctx, job, models.JobStateQueued, result.Error)

	if err := s.queue.EnqueueWithDelay(ctx, job, delay); err != nil {
		s.logger.Error().
			Err(err).
			Str("job_id", job.ID).
			Msg("Failed to requeue sync job")
		s.clearInFlight(job.IntegrationID)
		return
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("integration_id", job.IntegrationID).
		Int("attempt", job.AttemptCount).
		Int("max_attempts", job.MaxAttempts).
		Dur("delay", delay).
		Msg("Sync retry scheduled")
}

// exhaustJob marks a job out of attempts and the integration failed.
// last_sync was already advanced by the failed attempt, so staleness
// stays visible to the dashboard.
func (s *Service) exhaustJob(ctx context.Context, job *models.SyncJob, result *models.SyncResult) {
	s.moveJob(ctx, job, models.JobStateExhausted, result.Error)

	if err := s.storage.IntegrationStorage().UpdateSyncState(ctx, job.IntegrationID, models.IntegrationStatusFailed, nil, result.Error); err != nil {
		s.logger.Warn().
			Err(err).
			Str("integration_id", job.IntegrationID).
			Msg("Failed to mark integration failed")
	}

	s.logger.Error().
		Str("job_id", job.ID).
		Str("integration_id", job.IntegrationID).
		Int("attempts", job.AttemptCount).
		Str("error", result.Error).
		Msg("Sync retries exhausted")
}

// scheduleSweepRetry queues a follow-up job for an integration whose
// inline sweep attempt failed retryably. The inline attempt counts
// toward the periodic policy's attempt budget.
func (s *Service) scheduleSweepRetry(ctx context.Context, integrationID string, result *models.SyncResult, cause error) {
	policy := s.config.Sync.RetryPolicyFor(string(models.SyncTriggerPeriodic))
	if policy.MaxAttempts <= 1 {
		s.clearInFlight(integrationID)
		return
	}

	job := &models.SyncJob{
		ID:            common.NewJobID(),
		IntegrationID: integrationID,
		Trigger:       models.SyncTriggerPeriodic,
		State:         models.JobStateQueued,
		AttemptCount:  1,
		MaxAttempts:   policy.MaxAttempts,
		Backoff:       policy.BackoffDuration(),
		LastError:     result.Error,
		EnqueuedAt:    time.Now(),
	}

	delay := job.Backoff
	if hint := adapters.RetryAfterHint(cause); hint > delay {
		delay = hint
	}

	if err := s.storage.SyncJobStorage().SaveJob(ctx, job); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to persist sweep retry job")
	}
	if err := s.queue.EnqueueWithDelay(ctx, job, delay); err != nil {
		s.logger.Error().
			Err(err).
			Str("job_id", job.ID).
			Str("integration_id", integrationID).
			Msg("Failed to schedule sweep retry")
		s.clearInFlight(integrationID)
		return
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("integration_id", integrationID).
		Dur("delay", delay).
		Msg("Sweep retry scheduled")
}

// moveJob applies a state transition and persists the job. Illegal
// transitions are refused; the state machine is monotonic.
func (s *Service) moveJob(ctx context.Context, job *models.SyncJob, next models.JobState, lastError string) {
	if !job.State.CanTransitionTo(next) {
		s.logger.Warn().
			Str("job_id", job.ID).
			Str("from", string(job.State)).
			Str("to", string(next)).
			Msg("Refusing invalid job state transition")
		return
	}

	job.State = next
	job.LastError = lastError
	if next.IsTerminal() {
		now := time.Now()
		job.FinishedAt = &now
	}

	if err := s.storage.SyncJobStorage().SaveJob(ctx, job); err != nil {
		s.logger.Warn().
			Err(err).
			Str("job_id", job.ID).
			Msg("Failed to persist job state")
	}
}

// keepVisible extends the queue visibility of an in-flight job until
// the stop channel closes, so long fetches are not redelivered mid-run
func (s *Service) keepVisible(jobID string, stop <-chan struct{}) {
	visibility := common.ParseDurationOr(s.config.Queue.VisibilityTimeout, 5*time.Minute)
	interval := visibility / 2
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.queue.Extend(context.Background(), jobID, visibility); err != nil {
				s.logger.Debug().
					Err(err).
					Str("job_id", jobID).
					Msg("Failed to extend job visibility")
			}
		}
	}
}

// cacheSnapshot writes the snapshot to the session and persistent
// tiers. Cache failures are logged, never fatal to the cycle.
func (s *Service) cacheSnapshot(ctx context.Context, snapshot *models.MetricSnapshot) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode snapshot for cache")
		return
	}

	key := cache.MetricsKey(snapshot.IntegrationID)
	if err := s.cache.Set(ctx, models.CacheTierSession, key, data); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Session cache write failed")
	}
	if err := s.cache.Set(ctx, models.CacheTierPersistent, key, data); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Persistent cache write failed")
	}
}

// cacheTaskResult stores the attempt result for short-lived job polling
func (s *Service) cacheTaskResult(ctx context.Context, jobID string, result *models.SyncResult) {
	data, err := json.Marshal(result)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode sync result for cache")
		return
	}
	if err := s.cache.Set(ctx, models.CacheTierTaskResult, cache.TaskResultKey(jobID), data); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Task result cache write failed")
	}
}

func (s *Service) publishEvent(ctx context.Context, eventType interfaces.EventType, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn().Err(err).Str("event", string(eventType)).Msg("Failed to publish event")
	}
}

func (s *Service) markInFlight(integrationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[integrationID] {
		return false
	}
	s.inFlight[integrationID] = true
	return true
}

func (s *Service) clearInFlight(integrationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, integrationID)
}

func emptyActivityFor(t models.IntegrationType) *models.Activity {
	switch t {
	case models.IntegrationTypeGitHub:
		return &models.Activity{GitHub: &models.GitHubActivity{}}
	case models.IntegrationTypeJira:
		return &models.Activity{Jira: &models.JiraActivity{}}
	case models.IntegrationTypeTrello:
		return &models.Activity{Trello: &models.TrelloActivity{}}
	}
	return &models.Activity{}
}

var _ interfaces.SyncService = (*Service)(nil)
