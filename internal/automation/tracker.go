package automation

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chartpilot/internal/database"
)

// ScheduleRunStats holds in-memory rolling counters for one schedule's
// executions since process start
type ScheduleRunStats struct {
	ScheduleID    string             `json:"schedule_id"`
	UserID        string             `json:"user_id"`
	Runs          int                `json:"runs"`
	Successes     int                `json:"successes"`
	Failures      int                `json:"failures"`
	CurrentStreak int                `json:"current_failure_streak"`
	LastStatus    database.RunStatus `json:"last_status"`
	LastDuration  int64              `json:"last_duration_ms"`
	AvgDuration   int64              `json:"avg_duration_ms"`
	LastRunAt     time.Time          `json:"last_run_at"`

	totalDurationMs int64
}

// RunTracker keeps an in-process audit trail of schedule executions for the
// operator status endpoint. The database job logs remain the durable record;
// this exists so the status endpoint can answer without a query.
type RunTracker struct {
	mu     sync.RWMutex
	logger zerolog.Logger
	stats  map[string]*ScheduleRunStats
}

// NewRunTracker creates a new RunTracker instance
func NewRunTracker(logger zerolog.Logger) *RunTracker {
	return &RunTracker{
		logger: logger.With().Str("component", "RunTracker").Logger(),
		stats:  make(map[string]*ScheduleRunStats),
	}
}

// RecordRun folds one execution outcome into the schedule's counters
func (t *RunTracker) RecordRun(scheduleID, userID string, status database.RunStatus, durationMs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.stats[scheduleID]
	if !ok {
		st = &ScheduleRunStats{ScheduleID: scheduleID, UserID: userID}
		t.stats[scheduleID] = st
	}

	st.Runs++
	st.LastStatus = status
	st.LastDuration = durationMs
	st.LastRunAt = time.Now()
	st.totalDurationMs += durationMs
	st.AvgDuration = st.totalDurationMs / int64(st.Runs)

	if status == database.RunSucceeded {
		st.Successes++
		st.CurrentStreak = 0
	} else {
		st.Failures++
		st.CurrentStreak++
	}

	t.logger.Info().
		Str("schedule_id", scheduleID).
		Str("status", string(status)).
		Int64("duration_ms", durationMs).
		Int("failure_streak", st.CurrentStreak).
		Msg("Schedule run recorded")
}

// Stats returns a copy of one schedule's counters
func (t *RunTracker) Stats(scheduleID string) (ScheduleRunStats, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st, ok := t.stats[scheduleID]
	if !ok {
		return ScheduleRunStats{}, false
	}
	return *st, true
}

// AllStats returns counters for every tracked schedule, sorted by schedule ID
func (t *RunTracker) AllStats() []ScheduleRunStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]ScheduleRunStats, 0, len(t.stats))
	for _, st := range t.stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduleID < out[j].ScheduleID })
	return out
}

// Reset clears all counters. Used by tests.
func (t *RunTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats = make(map[string]*ScheduleRunStats)
}
