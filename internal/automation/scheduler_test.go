package automation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"chartpilot/config"
	"chartpilot/internal/ai/llm"
	"chartpilot/internal/database"
	"chartpilot/internal/events"
)

type fakeSchedulerStore struct {
	due       []*database.AutomationSchedule
	layout    *database.Layout
	jobLogs   []*database.AutomationJobLog
	runs      []recordedRun
	pruned    []time.Time
	jobLogErr error
}

type recordedRun struct {
	scheduleID string
	status     database.RunStatus
	nextRunAt  time.Time
	disable    bool
}

func (f *fakeSchedulerStore) GetDueSchedules(_ context.Context, _ time.Time, _ int) ([]*database.AutomationSchedule, error) {
	return f.due, nil
}

func (f *fakeSchedulerStore) GetLayoutByID(_ context.Context, _, _ string) (*database.Layout, error) {
	return f.layout, nil
}

func (f *fakeSchedulerStore) RecordScheduleRun(_ context.Context, scheduleID string, status database.RunStatus, nextRunAt time.Time, disable bool) error {
	f.runs = append(f.runs, recordedRun{scheduleID, status, nextRunAt, disable})
	return nil
}

func (f *fakeSchedulerStore) CreateJobLog(_ context.Context, jobLog *database.AutomationJobLog) error {
	if f.jobLogErr != nil {
		return f.jobLogErr
	}
	f.jobLogs = append(f.jobLogs, jobLog)
	return nil
}

func (f *fakeSchedulerStore) DeleteOldJobLogs(_ context.Context, olderThan time.Time) (int64, error) {
	f.pruned = append(f.pruned, olderThan)
	return 0, nil
}

type fakeRunner struct {
	analysis *database.Analysis
	err      error
	calls    int
}

func (f *fakeRunner) Run(_ context.Context, _, _, _ string) (*database.Analysis, error) {
	f.calls++
	return f.analysis, f.err
}

type fakeAlerter struct {
	alerts   []string
	disables []int
	alertErr error
}

func (f *fakeAlerter) SendAnalysisAlert(symbol, _, action string, _, _, _, _ float64, _ []string) error {
	f.alerts = append(f.alerts, symbol+":"+action)
	return f.alertErr
}

func (f *fakeAlerter) SendScheduleDisabled(_ string, failures int) error {
	f.disables = append(f.disables, failures)
	return nil
}

func testSchedule() *database.AutomationSchedule {
	return &database.AutomationSchedule{
		ID:              "sched-1",
		UserID:          "user-1",
		LayoutID:        "layout-1",
		IntervalKey:     "1h",
		TelegramEnabled: true,
		MinConfidence:   60,
		Enabled:         true,
	}
}

func buyAnalysis(confidence float64) *database.Analysis {
	entry, sl, tp := 42000.0, 41500.0, 43500.0
	return &database.Analysis{
		ID:         "analysis-1",
		Action:     database.ActionBuy,
		Confidence: confidence,
		EntryPrice: &entry,
		StopLoss:   &sl,
		TakeProfit: &tp,
		Reasons:    []string{"trend continuation"},
	}
}

func newTestScheduler(store *fakeSchedulerStore, runner *fakeRunner, alerts *fakeAlerter) *Scheduler {
	cfg := config.AutomationConfig{Enabled: true, PollSeconds: 300, MaxFailureStreak: 3, JobLogRetention: 30}
	sched := NewScheduler(cfg, store, runner, alerts, nil, nil)
	sched.now = func() time.Time {
		return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	}
	return sched
}

func TestExecuteScheduleSuccess(t *testing.T) {
	store := &fakeSchedulerStore{layout: &database.Layout{ID: "layout-1", Symbol: "BTCUSDT", Interval: "1h"}}
	runner := &fakeRunner{analysis: buyAnalysis(82)}
	alerts := &fakeAlerter{}
	sched := newTestScheduler(store, runner, alerts)

	sched.executeSchedule(testSchedule())

	if runner.calls != 1 {
		t.Fatalf("runner calls = %d, want 1", runner.calls)
	}
	if len(store.jobLogs) != 1 {
		t.Fatalf("job logs = %d, want 1", len(store.jobLogs))
	}
	jobLog := store.jobLogs[0]
	if jobLog.Status != database.RunSucceeded {
		t.Errorf("job log status = %q, want succeeded", jobLog.Status)
	}
	if jobLog.AnalysisID == nil || *jobLog.AnalysisID != "analysis-1" {
		t.Error("job log should reference the analysis")
	}

	if len(store.runs) != 1 {
		t.Fatalf("recorded runs = %d, want 1", len(store.runs))
	}
	run := store.runs[0]
	if run.status != database.RunSucceeded || run.disable {
		t.Errorf("run = %+v, want succeeded and not disabled", run)
	}
	if want := sched.now().Add(time.Hour); !run.nextRunAt.Equal(want) {
		t.Errorf("nextRunAt = %v, want %v", run.nextRunAt, want)
	}

	if len(alerts.alerts) != 1 || alerts.alerts[0] != "BTCUSDT:buy" {
		t.Errorf("alerts = %v, want one buy alert", alerts.alerts)
	}
}

func TestExecuteScheduleBelowConfidenceSkipsAlert(t *testing.T) {
	store := &fakeSchedulerStore{layout: &database.Layout{Symbol: "BTCUSDT"}}
	runner := &fakeRunner{analysis: buyAnalysis(45)}
	alerts := &fakeAlerter{}
	sched := newTestScheduler(store, runner, alerts)

	sched.executeSchedule(testSchedule())

	if len(alerts.alerts) != 0 {
		t.Errorf("expected no alert below the confidence threshold, got %v", alerts.alerts)
	}
	if len(store.jobLogs) != 1 || store.jobLogs[0].Status != database.RunSucceeded {
		t.Error("run should still succeed and be logged")
	}
}

func TestExecuteScheduleHoldSkipsAlert(t *testing.T) {
	analysis := buyAnalysis(90)
	analysis.Action = database.ActionHold

	store := &fakeSchedulerStore{layout: &database.Layout{Symbol: "BTCUSDT"}}
	runner := &fakeRunner{analysis: analysis}
	alerts := &fakeAlerter{}
	sched := newTestScheduler(store, runner, alerts)

	sched.executeSchedule(testSchedule())

	if len(alerts.alerts) != 0 {
		t.Errorf("expected no alert for hold signals, got %v", alerts.alerts)
	}
}

func TestExecuteScheduleAlertFailureSwallowed(t *testing.T) {
	store := &fakeSchedulerStore{layout: &database.Layout{Symbol: "BTCUSDT"}}
	runner := &fakeRunner{analysis: buyAnalysis(82)}
	alerts := &fakeAlerter{alertErr: errors.New("telegram 502")}
	sched := newTestScheduler(store, runner, alerts)

	sched.executeSchedule(testSchedule())

	if len(store.runs) != 1 || store.runs[0].status != database.RunSucceeded {
		t.Error("notification failure must not fail the run")
	}
}

func TestExecuteScheduleFailure(t *testing.T) {
	store := &fakeSchedulerStore{layout: &database.Layout{Symbol: "BTCUSDT"}}
	runner := &fakeRunner{err: errors.New("capture failed")}
	alerts := &fakeAlerter{}
	sched := newTestScheduler(store, runner, alerts)

	sched.executeSchedule(testSchedule())

	if len(store.jobLogs) != 1 {
		t.Fatalf("job logs = %d, want 1", len(store.jobLogs))
	}
	jobLog := store.jobLogs[0]
	if jobLog.Status != database.RunFailed || jobLog.ErrorMessage == "" {
		t.Errorf("job log = %+v, want failed with error message", jobLog)
	}
	if store.runs[0].disable {
		t.Error("first failure must not disable the schedule")
	}
	if len(alerts.alerts) != 0 {
		t.Error("failed runs never alert")
	}
}

func TestExecuteScheduleFailurePublishesError(t *testing.T) {
	store := &fakeSchedulerStore{layout: &database.Layout{Symbol: "BTCUSDT"}}
	runner := &fakeRunner{err: errors.New("capture failed")}
	sched := newTestScheduler(store, runner, &fakeAlerter{})

	bus := events.NewEventBus()
	got := make(chan events.Event, 1)
	bus.Subscribe(events.EventError, func(event events.Event) {
		got <- event
	})
	sched.bus = bus

	sched.executeSchedule(testSchedule())

	select {
	case event := <-got:
		if event.Data["source"] != "scheduler" {
			t.Errorf("source = %v, want scheduler", event.Data["source"])
		}
		if event.Data["error"] != "capture failed" {
			t.Errorf("error = %v, want capture failed", event.Data["error"])
		}
	case <-time.After(time.Second):
		t.Fatal("no error event published")
	}
}

func TestExecuteScheduleDisablesAtStreak(t *testing.T) {
	store := &fakeSchedulerStore{layout: &database.Layout{Symbol: "BTCUSDT"}}
	runner := &fakeRunner{err: errors.New("capture failed")}
	alerts := &fakeAlerter{}
	sched := newTestScheduler(store, runner, alerts)

	schedule := testSchedule()
	schedule.ConsecutiveFailures = 2 // this failure is the third

	sched.executeSchedule(schedule)

	if len(store.runs) != 1 || !store.runs[0].disable {
		t.Fatal("expected the schedule to be disabled at the failure streak")
	}
	if len(alerts.disables) != 1 || alerts.disables[0] != 3 {
		t.Errorf("disable notifications = %v, want [3]", alerts.disables)
	}
}

func TestExecuteScheduleBreakerOpenHolds(t *testing.T) {
	store := &fakeSchedulerStore{layout: &database.Layout{Symbol: "BTCUSDT"}}
	runner := &fakeRunner{err: fmt.Errorf("analysis failed: %w", llm.ErrProviderUnavailable)}
	alerts := &fakeAlerter{}
	sched := newTestScheduler(store, runner, alerts)

	schedule := testSchedule()
	schedule.ConsecutiveFailures = 2 // one failure away from the streak limit

	sched.executeSchedule(schedule)

	if len(store.runs) != 1 {
		t.Fatalf("recorded runs = %d, want 1", len(store.runs))
	}
	run := store.runs[0]
	if run.status != database.RunSkipped {
		t.Errorf("run status = %q, want skipped", run.status)
	}
	if run.disable {
		t.Error("an open breaker must not disable the schedule")
	}
	if len(alerts.disables) != 0 {
		t.Errorf("disable notifications = %v, want none", alerts.disables)
	}
	if len(alerts.alerts) != 0 {
		t.Errorf("alerts = %v, want none for the neutral hold", alerts.alerts)
	}

	if len(store.jobLogs) != 1 {
		t.Fatalf("job logs = %d, want 1", len(store.jobLogs))
	}
	jobLog := store.jobLogs[0]
	if jobLog.Status != database.RunSkipped || jobLog.ErrorMessage == "" {
		t.Errorf("job log = %+v, want skipped with the breaker error recorded", jobLog)
	}
	if jobLog.AnalysisID != nil {
		t.Error("the neutral hold is not persisted, so the job log must not reference an analysis")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	store := &fakeSchedulerStore{}
	sched := newTestScheduler(store, &fakeRunner{}, &fakeAlerter{})

	sched.Start()
	if !sched.IsRunning() {
		t.Fatal("expected scheduler to be running")
	}
	sched.Start() // second call is a no-op

	sched.Stop()
	if sched.IsRunning() {
		t.Fatal("expected scheduler to be stopped")
	}
	sched.Stop() // second call is a no-op

	if len(store.pruned) == 0 {
		t.Error("expected a prune pass on startup")
	}
}

func TestStartDisabledByConfig(t *testing.T) {
	cfg := config.AutomationConfig{Enabled: false}
	sched := NewScheduler(cfg, &fakeSchedulerStore{}, &fakeRunner{}, &fakeAlerter{}, nil, nil)

	sched.Start()
	if sched.IsRunning() {
		t.Error("disabled scheduler must not start")
	}
}
