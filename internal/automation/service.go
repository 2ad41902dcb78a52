// Package automation runs layout analyses on a recurring schedule and
// manages the schedules themselves.
package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chartpilot/internal/ai/llm"
	"chartpilot/internal/database"
	"chartpilot/internal/logging"
)

// ErrScheduleNotFound is returned when the schedule does not exist or
// belongs to another user.
var ErrScheduleNotFound = errors.New("schedule not found")

// ErrAutomationNotAllowed is returned when the user's tier does not include
// automation.
var ErrAutomationNotAllowed = errors.New("automation is not available on your plan")

// ErrScheduleLimit is returned when creating a schedule would exceed the
// tier's limit.
var ErrScheduleLimit = errors.New("schedule limit reached for your plan")

// ErrIntervalTooShort is returned when the requested interval is below the
// tier's minimum.
var ErrIntervalTooShort = errors.New("interval is below the minimum for your plan")

// ErrInvalidSchedule wraps schedule validation failures
var ErrInvalidSchedule = errors.New("invalid schedule")

// Store is the repository surface schedule management needs. Implemented by
// *database.Repository.
type Store interface {
	CreateSchedule(ctx context.Context, sched *database.AutomationSchedule) error
	GetScheduleByID(ctx context.Context, scheduleID, userID string) (*database.AutomationSchedule, error)
	GetSchedulesByUserID(ctx context.Context, userID string) ([]*database.AutomationSchedule, error)
	CountSchedulesByUserID(ctx context.Context, userID string) (int, error)
	UpdateSchedule(ctx context.Context, sched *database.AutomationSchedule) error
	DeleteSchedule(ctx context.Context, scheduleID, userID string) error
	GetJobLogsByScheduleID(ctx context.Context, scheduleID, userID string, limit int) ([]*database.AutomationJobLog, error)
	GetUserByID(ctx context.Context, userID string) (*database.User, error)
	GetLayoutByID(ctx context.Context, layoutID, userID string) (*database.Layout, error)
}

// Service manages automation schedules with tier-based limits
type Service struct {
	repo   Store
	logger *logging.Logger
	now    func() time.Time
}

// NewService creates the schedule management service
func NewService(repo Store) *Service {
	return &Service{
		repo:   repo,
		logger: logging.WithComponent("automation"),
		now:    time.Now,
	}
}

// CreateSchedule validates a new schedule against the user's tier and
// persists it. The first run is due immediately.
func (s *Service) CreateSchedule(ctx context.Context, sched *database.AutomationSchedule) error {
	if err := s.validate(ctx, sched); err != nil {
		return err
	}

	tier, err := s.tierFor(ctx, sched.UserID)
	if err != nil {
		return err
	}
	if !tier.EnableAutomation {
		return ErrAutomationNotAllowed
	}
	if !MeetsMinimum(sched.IntervalKey, tier.MinIntervalKey) {
		return ErrIntervalTooShort
	}

	count, err := s.repo.CountSchedulesByUserID(ctx, sched.UserID)
	if err != nil {
		return err
	}
	if count >= tier.MaxSchedules {
		return ErrScheduleLimit
	}

	sched.Enabled = true
	sched.NextRunAt = s.now()

	if err := s.repo.CreateSchedule(ctx, sched); err != nil {
		return err
	}

	s.logger.WithFields(map[string]interface{}{
		"schedule_id": sched.ID,
		"layout_id":   sched.LayoutID,
		"interval":    sched.IntervalKey,
	}).Info("Automation schedule created")

	return nil
}

// GetSchedule returns a single schedule owned by the user
func (s *Service) GetSchedule(ctx context.Context, scheduleID, userID string) (*database.AutomationSchedule, error) {
	sched, err := s.repo.GetScheduleByID(ctx, scheduleID, userID)
	if err != nil {
		return nil, err
	}
	if sched == nil {
		return nil, ErrScheduleNotFound
	}
	return sched, nil
}

// ListSchedules returns all of the user's schedules
func (s *Service) ListSchedules(ctx context.Context, userID string) ([]*database.AutomationSchedule, error) {
	return s.repo.GetSchedulesByUserID(ctx, userID)
}

// UpdateSchedule applies edits to an existing schedule. Re-enabling a
// disabled schedule makes it due immediately; changing the interval
// reschedules from now.
func (s *Service) UpdateSchedule(ctx context.Context, sched *database.AutomationSchedule) error {
	existing, err := s.repo.GetScheduleByID(ctx, sched.ID, sched.UserID)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrScheduleNotFound
	}

	if err := s.validate(ctx, sched); err != nil {
		return err
	}

	tier, err := s.tierFor(ctx, sched.UserID)
	if err != nil {
		return err
	}
	if !MeetsMinimum(sched.IntervalKey, tier.MinIntervalKey) {
		return ErrIntervalTooShort
	}

	switch {
	case sched.Enabled && !existing.Enabled:
		sched.NextRunAt = s.now()
	case sched.IntervalKey != existing.IntervalKey:
		next, _ := NextRun(s.now(), sched.IntervalKey)
		sched.NextRunAt = next
	default:
		sched.NextRunAt = existing.NextRunAt
	}

	return s.repo.UpdateSchedule(ctx, sched)
}

// DeleteSchedule removes a schedule and its job logs
func (s *Service) DeleteSchedule(ctx context.Context, scheduleID, userID string) error {
	if _, err := s.GetSchedule(ctx, scheduleID, userID); err != nil {
		return err
	}
	return s.repo.DeleteSchedule(ctx, scheduleID, userID)
}

// ListRuns returns recent job logs for one of the user's schedules
func (s *Service) ListRuns(ctx context.Context, scheduleID, userID string, limit int) ([]*database.AutomationJobLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.GetJobLogsByScheduleID(ctx, scheduleID, userID, limit)
}

func (s *Service) validate(ctx context.Context, sched *database.AutomationSchedule) error {
	if sched.UserID == "" || sched.LayoutID == "" {
		return fmt.Errorf("%w: user and layout are required", ErrInvalidSchedule)
	}
	if sched.ProviderSelector != "" {
		if _, _, err := llm.ParseSelector(sched.ProviderSelector); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
	}
	if _, ok := IntervalDuration(sched.IntervalKey); !ok {
		return fmt.Errorf("%w: unsupported interval %q", ErrInvalidSchedule, sched.IntervalKey)
	}
	if sched.MinConfidence < 0 || sched.MinConfidence > 100 {
		return fmt.Errorf("%w: min confidence must be between 0 and 100", ErrInvalidSchedule)
	}

	layout, err := s.repo.GetLayoutByID(ctx, sched.LayoutID, sched.UserID)
	if err != nil {
		return err
	}
	if layout == nil {
		return fmt.Errorf("%w: layout not found", ErrInvalidSchedule)
	}
	return nil
}

func (s *Service) tierFor(ctx context.Context, userID string) (database.TierConfig, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return database.TierConfig{}, err
	}
	if user == nil {
		return database.TierConfig{}, fmt.Errorf("user not found")
	}
	return database.GetTierConfig(user.SubscriptionTier), nil
}
