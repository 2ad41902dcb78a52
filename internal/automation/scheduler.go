package automation

import (
	"context"
	"errors"
	"sync"
	"time"

	"chartpilot/config"
	"chartpilot/internal/ai/llm"
	"chartpilot/internal/database"
	"chartpilot/internal/events"
	"chartpilot/internal/logging"
)

// dueBatchSize caps how many schedules one poll picks up
const dueBatchSize = 25

// runTimeout bounds one schedule execution end to end
const runTimeout = 2 * time.Minute

// Runner executes a single layout analysis. Implemented by
// *analysis.Service.
type Runner interface {
	Run(ctx context.Context, userID, layoutID, selector string) (*database.Analysis, error)
}

// Alerter delivers run notifications. Implemented by
// *notification.Manager. Delivery failures never fail a run.
type Alerter interface {
	SendAnalysisAlert(symbol, interval, action string, confidence, entry, stopLoss, takeProfit float64, reasons []string) error
	SendScheduleDisabled(symbol string, failures int) error
}

// SchedulerStore is the repository surface the scheduler needs.
// Implemented by *database.Repository.
type SchedulerStore interface {
	GetDueSchedules(ctx context.Context, now time.Time, limit int) ([]*database.AutomationSchedule, error)
	GetLayoutByID(ctx context.Context, layoutID, userID string) (*database.Layout, error)
	RecordScheduleRun(ctx context.Context, scheduleID string, status database.RunStatus, nextRunAt time.Time, disable bool) error
	CreateJobLog(ctx context.Context, jobLog *database.AutomationJobLog) error
	DeleteOldJobLogs(ctx context.Context, olderThan time.Time) (int64, error)
}

// Scheduler polls for due schedules and executes them
type Scheduler struct {
	cfg     config.AutomationConfig
	repo    SchedulerStore
	runner  Runner
	alerts  Alerter
	bus     *events.EventBus
	tracker *RunTracker
	logger  *logging.Logger
	now     func() time.Time

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates the automation scheduler
func NewScheduler(cfg config.AutomationConfig, repo SchedulerStore, runner Runner, alerts Alerter, bus *events.EventBus, tracker *RunTracker) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		repo:    repo,
		runner:  runner,
		alerts:  alerts,
		bus:     bus,
		tracker: tracker,
		logger:  logging.WithComponent("scheduler"),
		now:     time.Now,
	}
}

// Start launches the polling loop. Safe to call once; subsequent calls are
// ignored while running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	if !s.cfg.Enabled {
		s.logger.Info("Automation scheduler disabled by configuration")
		return
	}

	s.running = true
	s.stopChan = make(chan struct{})
	s.wg.Add(1)
	go s.loop()

	s.logger.WithField("poll_seconds", s.pollInterval()/time.Second).Info("Automation scheduler started")
}

// Stop halts the polling loop and waits for in-flight runs to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Automation scheduler stopped")
}

// IsRunning reports whether the polling loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) pollInterval() time.Duration {
	if s.cfg.PollSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(s.cfg.PollSeconds) * time.Second
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval())
	defer ticker.Stop()

	// Prune job logs once a day, starting shortly after boot.
	pruneTicker := time.NewTicker(24 * time.Hour)
	defer pruneTicker.Stop()

	s.pruneJobLogs()
	s.processDue()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.processDue()
		case <-pruneTicker.C:
			s.pruneJobLogs()
		}
	}
}

// processDue executes every schedule whose next run time has passed
func (s *Scheduler) processDue() {
	ctx, cancel := context.WithTimeout(context.Background(), s.pollInterval())
	defer cancel()

	scheds, err := s.repo.GetDueSchedules(ctx, s.now(), dueBatchSize)
	if err != nil {
		s.logger.WithError(err).Error("Failed to fetch due schedules")
		return
	}
	if len(scheds) == 0 {
		return
	}

	s.logger.WithField("count", len(scheds)).Debug("Executing due schedules")

	for _, sched := range scheds {
		select {
		case <-s.stopChan:
			return
		default:
		}
		s.executeSchedule(sched)
	}
}

// executeSchedule runs one schedule: capture and analyze the layout, alert
// when the signal clears the confidence bar, record a job log, and advance
// the run bookkeeping. Notification failures are logged and swallowed so a
// flaky Telegram API cannot fail an otherwise healthy run.
func (s *Scheduler) executeSchedule(sched *database.AutomationSchedule) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	started := s.now()
	log := logging.ScheduleContext(sched.ID, sched.LayoutID).WithTraceID(logging.GenerateTraceID())
	ctx = logging.NewContext(ctx, log)

	analysis, runErr := s.runner.Run(ctx, sched.UserID, sched.LayoutID, sched.ProviderSelector)
	finished := s.now()
	durationMs := finished.Sub(started).Milliseconds()

	status := database.RunSucceeded
	errMsg := ""
	if runErr != nil {
		if errors.Is(runErr, llm.ErrProviderUnavailable) {
			// Breaker open. Substitute the neutral hold and skip the tick
			// so a provider outage cannot burn the failure streak.
			neutral := llm.NeutralSignal("provider unavailable, holding until next run")
			analysis = &database.Analysis{
				LayoutID:   sched.LayoutID,
				UserID:     sched.UserID,
				Action:     database.SignalAction(neutral.Action),
				Confidence: float64(neutral.Confidence),
				RiskNotes:  neutral.RiskNotes,
			}
			status = database.RunSkipped
			errMsg = runErr.Error()
			runErr = nil
			log.Warn("Provider unavailable, holding until next run")
		} else {
			status = database.RunFailed
			errMsg = runErr.Error()
			log.WithError(runErr).Warn("Scheduled analysis failed")
		}
	}

	layout, err := s.repo.GetLayoutByID(ctx, sched.LayoutID, sched.UserID)
	if err != nil || layout == nil {
		log.WithError(err).Warn("Failed to load layout for schedule")
		layout = &database.Layout{Symbol: "unknown"}
	}

	if runErr == nil && sched.TelegramEnabled && s.alerts != nil {
		s.maybeAlert(sched, layout, analysis, log)
	}

	jobLog := &database.AutomationJobLog{
		ScheduleID:   sched.ID,
		UserID:       sched.UserID,
		Status:       status,
		ErrorMessage: errMsg,
		DurationMs:   durationMs,
		StartedAt:    started,
		FinishedAt:   &finished,
	}
	if analysis != nil && analysis.ID != "" {
		jobLog.AnalysisID = &analysis.ID
	}
	if err := s.repo.CreateJobLog(ctx, jobLog); err != nil {
		log.WithError(err).Error("Failed to record job log")
	}

	nextRun, err := NextRun(finished, sched.IntervalKey)
	if err != nil {
		// Unknown interval key should not exist in the database; fall back
		// to an hour so the schedule does not spin.
		nextRun = finished.Add(time.Hour)
	}

	disable := false
	if status == database.RunFailed && s.cfg.MaxFailureStreak > 0 {
		disable = sched.ConsecutiveFailures+1 >= s.cfg.MaxFailureStreak
	}

	if err := s.repo.RecordScheduleRun(ctx, sched.ID, status, nextRun, disable); err != nil {
		log.WithError(err).Error("Failed to record schedule run")
	}

	if s.tracker != nil {
		s.tracker.RecordRun(sched.ID, sched.UserID, status, durationMs)
	}
	if s.bus != nil {
		s.bus.PublishAutomationRun(sched.UserID, sched.ID, string(status), durationMs)
		if status == database.RunFailed {
			s.bus.PublishError("scheduler", "scheduled analysis failed", runErr)
		}
	}

	if disable {
		failures := sched.ConsecutiveFailures + 1
		log.WithField("failures", failures).Warn("Schedule disabled after repeated failures")
		if s.bus != nil {
			s.bus.PublishScheduleDisabled(sched.UserID, sched.ID, failures)
		}
		if s.alerts != nil {
			if err := s.alerts.SendScheduleDisabled(layout.Symbol, failures); err != nil {
				log.WithError(err).Warn("Failed to send disable notification")
			}
		}
	}
}

// maybeAlert sends a signal notification when the analysis is actionable
// and clears the schedule's confidence threshold
func (s *Scheduler) maybeAlert(sched *database.AutomationSchedule, layout *database.Layout, analysis *database.Analysis, log *logging.Logger) {
	if analysis == nil || analysis.Action == database.ActionHold {
		return
	}
	if analysis.Confidence < sched.MinConfidence {
		return
	}

	var entry, stopLoss, takeProfit float64
	if analysis.EntryPrice != nil {
		entry = *analysis.EntryPrice
	}
	if analysis.StopLoss != nil {
		stopLoss = *analysis.StopLoss
	}
	if analysis.TakeProfit != nil {
		takeProfit = *analysis.TakeProfit
	}

	err := s.alerts.SendAnalysisAlert(
		layout.Symbol, layout.Interval, string(analysis.Action),
		analysis.Confidence, entry, stopLoss, takeProfit, analysis.Reasons,
	)
	if err != nil {
		log.WithError(err).Warn("Failed to send analysis alert")
	}
}

// pruneJobLogs deletes job logs older than the configured retention
func (s *Scheduler) pruneJobLogs() {
	retention := s.cfg.JobLogRetention
	if retention <= 0 {
		retention = 30
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := s.now().AddDate(0, 0, -retention)
	deleted, err := s.repo.DeleteOldJobLogs(ctx, cutoff)
	if err != nil {
		s.logger.WithError(err).Error("Failed to prune job logs")
		return
	}
	if deleted > 0 {
		s.logger.WithField("deleted", deleted).Info("Pruned old job logs")
	}
}
