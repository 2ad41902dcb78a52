package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// =====================================================
// AUTOMATION SCHEDULE OPERATIONS
// =====================================================

const scheduleSelectColumns = `
	id, user_id, layout_id, provider_selector, interval_key, telegram_enabled,
	min_confidence, enabled, next_run_at, last_run_at, COALESCE(last_status, ''),
	consecutive_failures, created_at, updated_at
`

func scanSchedule(row pgx.Row) (*AutomationSchedule, error) {
	sched := &AutomationSchedule{}
	err := row.Scan(
		&sched.ID, &sched.UserID, &sched.LayoutID,
		&sched.ProviderSelector, &sched.IntervalKey, &sched.TelegramEnabled,
		&sched.MinConfidence, &sched.Enabled,
		&sched.NextRunAt, &sched.LastRunAt, &sched.LastStatus,
		&sched.ConsecutiveFailures, &sched.CreatedAt, &sched.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return sched, nil
}

// CreateSchedule registers a new automation schedule
func (r *Repository) CreateSchedule(ctx context.Context, sched *AutomationSchedule) error {
	query := `
		INSERT INTO automation_schedules (
			user_id, layout_id, provider_selector, interval_key,
			telegram_enabled, min_confidence, enabled, next_run_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		sched.UserID, sched.LayoutID, sched.ProviderSelector, sched.IntervalKey,
		sched.TelegramEnabled, sched.MinConfidence, sched.Enabled, sched.NextRunAt,
	).Scan(&sched.ID, &sched.CreatedAt, &sched.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}

	return nil
}

// GetScheduleByID retrieves a schedule scoped to its owner
func (r *Repository) GetScheduleByID(ctx context.Context, scheduleID, userID string) (*AutomationSchedule, error) {
	query := `SELECT ` + scheduleSelectColumns + ` FROM automation_schedules WHERE id = $1 AND user_id = $2`

	sched, err := scanSchedule(r.db.Pool.QueryRow(ctx, query, scheduleID, userID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}

	return sched, nil
}

// GetSchedulesByUserID lists a user's schedules
func (r *Repository) GetSchedulesByUserID(ctx context.Context, userID string) ([]*AutomationSchedule, error) {
	query := `SELECT ` + scheduleSelectColumns + ` FROM automation_schedules WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var scheds []*AutomationSchedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		scheds = append(scheds, sched)
	}

	return scheds, rows.Err()
}

// CountSchedulesByUserID returns how many schedules a user has
func (r *Repository) CountSchedulesByUserID(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM automation_schedules WHERE user_id = $1`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count schedules: %w", err)
	}
	return count, nil
}

// GetDueSchedules returns enabled schedules whose next run time has passed
func (r *Repository) GetDueSchedules(ctx context.Context, now time.Time, limit int) ([]*AutomationSchedule, error) {
	query := `
		SELECT ` + scheduleSelectColumns + `
		FROM automation_schedules
		WHERE enabled = TRUE AND next_run_at <= $1
		ORDER BY next_run_at
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get due schedules: %w", err)
	}
	defer rows.Close()

	var scheds []*AutomationSchedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		scheds = append(scheds, sched)
	}

	return scheds, rows.Err()
}

// UpdateSchedule updates a schedule's configuration
func (r *Repository) UpdateSchedule(ctx context.Context, sched *AutomationSchedule) error {
	query := `
		UPDATE automation_schedules SET
			provider_selector = $3,
			interval_key = $4,
			telegram_enabled = $5,
			min_confidence = $6,
			enabled = $7,
			next_run_at = $8,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND user_id = $2
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		sched.ID, sched.UserID, sched.ProviderSelector, sched.IntervalKey,
		sched.TelegramEnabled, sched.MinConfidence, sched.Enabled, sched.NextRunAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("schedule not found")
	}

	return nil
}

// RecordScheduleRun updates run bookkeeping after an execution. A successful
// run resets the failure streak, a failure extends it, and a skipped run
// leaves it untouched. disable forces the schedule off regardless of
// outcome.
func (r *Repository) RecordScheduleRun(ctx context.Context, scheduleID string, status RunStatus, nextRunAt time.Time, disable bool) error {
	query := `
		UPDATE automation_schedules SET
			last_run_at = CURRENT_TIMESTAMP,
			last_status = $2,
			next_run_at = $3,
			consecutive_failures = CASE
				WHEN $2 = 'failed' THEN consecutive_failures + 1
				WHEN $2 = 'skipped' THEN consecutive_failures
				ELSE 0 END,
			enabled = CASE WHEN $4 THEN FALSE ELSE enabled END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query, scheduleID, status, nextRunAt, disable)
	if err != nil {
		return fmt.Errorf("failed to record schedule run: %w", err)
	}

	return nil
}

// DeleteSchedule removes a schedule and its job logs by cascade
func (r *Repository) DeleteSchedule(ctx context.Context, scheduleID, userID string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM automation_schedules WHERE id = $1 AND user_id = $2`,
		scheduleID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("schedule not found")
	}
	return nil
}

// =====================================================
// AUTOMATION JOB LOG OPERATIONS
// =====================================================

// CreateJobLog records one schedule execution
func (r *Repository) CreateJobLog(ctx context.Context, jobLog *AutomationJobLog) error {
	query := `
		INSERT INTO automation_job_logs (
			schedule_id, user_id, status, analysis_id, error_message,
			duration_ms, started_at, finished_at
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)
		RETURNING id, created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		jobLog.ScheduleID, jobLog.UserID, jobLog.Status, jobLog.AnalysisID,
		jobLog.ErrorMessage, jobLog.DurationMs, jobLog.StartedAt, jobLog.FinishedAt,
	).Scan(&jobLog.ID, &jobLog.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create job log: %w", err)
	}

	return nil
}

// GetJobLogsByScheduleID lists recent job logs for a schedule
func (r *Repository) GetJobLogsByScheduleID(ctx context.Context, scheduleID, userID string, limit int) ([]*AutomationJobLog, error) {
	query := `
		SELECT id, schedule_id, user_id, status, analysis_id, COALESCE(error_message, ''),
			duration_ms, started_at, finished_at, created_at
		FROM automation_job_logs
		WHERE schedule_id = $1 AND user_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.db.Pool.Query(ctx, query, scheduleID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list job logs: %w", err)
	}
	defer rows.Close()

	var logs []*AutomationJobLog
	for rows.Next() {
		jobLog := &AutomationJobLog{}
		if err := rows.Scan(
			&jobLog.ID, &jobLog.ScheduleID, &jobLog.UserID, &jobLog.Status,
			&jobLog.AnalysisID, &jobLog.ErrorMessage,
			&jobLog.DurationMs, &jobLog.StartedAt, &jobLog.FinishedAt, &jobLog.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan job log: %w", err)
		}
		logs = append(logs, jobLog)
	}

	return logs, rows.Err()
}

// DeleteOldJobLogs prunes job logs older than the retention window
func (r *Repository) DeleteOldJobLogs(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM automation_job_logs WHERE created_at < $1`, olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune job logs: %w", err)
	}
	return tag.RowsAffected(), nil
}
