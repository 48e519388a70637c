package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
)

func newTestScheduler(t *testing.T) *Service {
	t.Helper()
	return NewService(arbor.NewLogger()).(*Service)
}

func waitForJobFinish(t *testing.T, s *Service, name string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		status, err := s.GetJobStatus(name)
		if err != nil {
			t.Fatalf("GetJobStatus failed: %v", err)
		}
		if !status.IsRunning && status.LastRun != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Job %s never finished", name)
}

func TestRegisterJob(t *testing.T) {
	s := newTestScheduler(t)

	err := s.RegisterJob("sweep", "0 * * * *", "Hourly sync sweep", func() error { return nil })
	if err != nil {
		t.Fatalf("RegisterJob failed: %v", err)
	}

	status, err := s.GetJobStatus("sweep")
	if err != nil {
		t.Fatalf("GetJobStatus failed: %v", err)
	}
	if status.Name != "sweep" {
		t.Errorf("Expected name sweep, got %s", status.Name)
	}
	if status.Schedule != "0 * * * *" {
		t.Errorf("Expected schedule 0 * * * *, got %s", status.Schedule)
	}
	if !status.Enabled {
		t.Error("Expected job enabled after registration")
	}
	if status.IsRunning {
		t.Error("Expected job not running after registration")
	}
	if status.LastRun != nil {
		t.Error("Expected no last run before first execution")
	}
}

func TestRegisterJobDuplicate(t *testing.T) {
	s := newTestScheduler(t)

	if err := s.RegisterJob("sweep", "0 * * * *", "", func() error { return nil }); err != nil {
		t.Fatalf("RegisterJob failed: %v", err)
	}
	if err := s.RegisterJob("sweep", "0 * * * *", "", func() error { return nil }); err == nil {
		t.Error("Expected error registering duplicate job name")
	}
}

func TestRegisterJobInvalidSchedule(t *testing.T) {
	s := newTestScheduler(t)

	if err := s.RegisterJob("bad", "not a schedule", "", func() error { return nil }); err == nil {
		t.Error("Expected error for invalid cron expression")
	}
	if err := s.RegisterJob("nohandler", "0 * * * *", "", nil); err == nil {
		t.Error("Expected error for nil handler")
	}
}

func TestTriggerJob(t *testing.T) {
	s := newTestScheduler(t)

	ran := make(chan struct{}, 1)
	err := s.RegisterJob("sweep", "0 * * * *", "", func() error {
		ran <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("RegisterJob failed: %v", err)
	}

	if err := s.TriggerJob("sweep"); err != nil {
		t.Fatalf("TriggerJob failed: %v", err)
	}

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("Handler never ran after trigger")
	}

	waitForJobFinish(t, s, "sweep")

	status, err := s.GetJobStatus("sweep")
	if err != nil {
		t.Fatalf("GetJobStatus failed: %v", err)
	}
	if status.LastRun == nil {
		t.Error("Expected last run recorded after trigger")
	}
	if status.LastError != "" {
		t.Errorf("Expected no last error, got %q", status.LastError)
	}
}

func TestTriggerJobRecordsFailure(t *testing.T) {
	s := newTestScheduler(t)

	err := s.RegisterJob("failing", "0 * * * *", "", func() error {
		return errors.New("provider unavailable")
	})
	if err != nil {
		t.Fatalf("RegisterJob failed: %v", err)
	}

	if err := s.TriggerJob("failing"); err != nil {
		t.Fatalf("TriggerJob failed: %v", err)
	}

	waitForJobFinish(t, s, "failing")

	status, err := s.GetJobStatus("failing")
	if err != nil {
		t.Fatalf("GetJobStatus failed: %v", err)
	}
	if status.LastError != "provider unavailable" {
		t.Errorf("Expected last error recorded, got %q", status.LastError)
	}
}

func TestTriggerJobRecoversFromPanic(t *testing.T) {
	s := newTestScheduler(t)

	err := s.RegisterJob("panicking", "0 * * * *", "", func() error {
		panic("handler exploded")
	})
	if err != nil {
		t.Fatalf("RegisterJob failed: %v", err)
	}

	if err := s.TriggerJob("panicking"); err != nil {
		t.Fatalf("TriggerJob failed: %v", err)
	}

	// The panic is recovered and surfaced as the job's last error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		status, err := s.GetJobStatus("panicking")
		if err != nil {
			t.Fatalf("GetJobStatus failed: %v", err)
		}
		if status.LastError != "" {
			if status.LastError != "panic: handler exploded" {
				t.Errorf("Expected panic recorded, got %q", status.LastError)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Panic was never recorded as job error")
}

func TestTriggerUnknownJob(t *testing.T) {
	s := newTestScheduler(t)

	if err := s.TriggerJob("missing"); err == nil {
		t.Error("Expected error triggering unknown job")
	}
}

func TestEnableDisableJob(t *testing.T) {
	s := newTestScheduler(t)

	if err := s.RegisterJob("sweep", "0 * * * *", "", func() error { return nil }); err != nil {
		t.Fatalf("RegisterJob failed: %v", err)
	}

	if err := s.DisableJob("sweep"); err != nil {
		t.Fatalf("DisableJob failed: %v", err)
	}
	status, _ := s.GetJobStatus("sweep")
	if status.Enabled {
		t.Error("Expected job disabled")
	}
	if status.NextRun != nil {
		t.Error("Expected no next run for disabled job")
	}

	// Disabling twice is a no-op
	if err := s.DisableJob("sweep"); err != nil {
		t.Errorf("Second DisableJob should be a no-op, got %v", err)
	}

	if err := s.EnableJob("sweep"); err != nil {
		t.Fatalf("EnableJob failed: %v", err)
	}
	status, _ = s.GetJobStatus("sweep")
	if !status.Enabled {
		t.Error("Expected job enabled")
	}
}

func TestStartStop(t *testing.T) {
	s := newTestScheduler(t)

	if s.IsRunning() {
		t.Error("Expected scheduler not running before Start")
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !s.IsRunning() {
		t.Error("Expected scheduler running after Start")
	}

	// Starting twice errors
	if err := s.Start(); err == nil {
		t.Error("Expected error starting scheduler twice")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if s.IsRunning() {
		t.Error("Expected scheduler stopped after Stop")
	}

	// Stopping twice is a no-op
	if err := s.Stop(); err != nil {
		t.Errorf("Second Stop should be a no-op, got %v", err)
	}
}

func TestGetAllJobStatuses(t *testing.T) {
	s := newTestScheduler(t)

	if err := s.RegisterJob("sweep", "0 * * * *", "", func() error { return nil }); err != nil {
		t.Fatalf("RegisterJob failed: %v", err)
	}
	if err := s.RegisterJob("cleanup", "30 * * * *", "", func() error { return nil }); err != nil {
		t.Fatalf("RegisterJob failed: %v", err)
	}

	statuses := s.GetAllJobStatuses()
	if len(statuses) != 2 {
		t.Fatalf("Expected 2 job statuses, got %d", len(statuses))
	}
	if _, ok := statuses["sweep"]; !ok {
		t.Error("Expected sweep in statuses")
	}
	if _, ok := statuses["cleanup"]; !ok {
		t.Error("Expected cleanup in statuses")
	}
}
