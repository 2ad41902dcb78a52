package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chartpilot/internal/auth"
	"chartpilot/internal/automation"
	"chartpilot/internal/database"
)

// scheduleRequest carries the mutable schedule fields. Pointer fields
// distinguish "omitted" from a zero value on partial updates.
type scheduleRequest struct {
	LayoutID         string   `json:"layout_id"`
	ProviderSelector string   `json:"provider_selector"`
	IntervalKey      string   `json:"interval_key"`
	TelegramEnabled  *bool    `json:"telegram_enabled,omitempty"`
	MinConfidence    *float64 `json:"min_confidence,omitempty"`
	Enabled          *bool    `json:"enabled,omitempty"`
}

// apply copies the provided fields onto an existing schedule, leaving
// omitted ones untouched.
func (r *scheduleRequest) apply(sched *database.AutomationSchedule) {
	if r.LayoutID != "" {
		sched.LayoutID = r.LayoutID
	}
	if r.ProviderSelector != "" {
		sched.ProviderSelector = r.ProviderSelector
	}
	if r.IntervalKey != "" {
		sched.IntervalKey = r.IntervalKey
	}
	if r.TelegramEnabled != nil {
		sched.TelegramEnabled = *r.TelegramEnabled
	}
	if r.MinConfidence != nil {
		sched.MinConfidence = *r.MinConfidence
	}
	if r.Enabled != nil {
		sched.Enabled = *r.Enabled
	}
}

func (s *Server) handleListSchedules(c *gin.Context) {
	userID := auth.GetUserID(c)

	schedules, err := s.schedules.ListSchedules(c.Request.Context(), userID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"schedules": schedules,
		"count":     len(schedules),
		"intervals": automation.ValidIntervalKeys(),
	})
}

func (s *Server) handleCreateSchedule(c *gin.Context) {
	userID := auth.GetUserID(c)

	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	sched := &database.AutomationSchedule{
		UserID:           userID,
		LayoutID:         req.LayoutID,
		ProviderSelector: req.ProviderSelector,
		IntervalKey:      req.IntervalKey,
	}
	if req.TelegramEnabled != nil {
		sched.TelegramEnabled = *req.TelegramEnabled
	}
	if req.MinConfidence != nil {
		sched.MinConfidence = *req.MinConfidence
	}

	if err := s.schedules.CreateSchedule(c.Request.Context(), sched); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, sched)
}

func (s *Server) handleGetSchedule(c *gin.Context) {
	userID := auth.GetUserID(c)

	sched, err := s.schedules.GetSchedule(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	response := gin.H{"schedule": sched}
	if stats, ok := s.tracker.Stats(sched.ID); ok {
		response["run_stats"] = stats
	}

	c.JSON(http.StatusOK, response)
}

func (s *Server) handleUpdateSchedule(c *gin.Context) {
	userID := auth.GetUserID(c)

	sched, err := s.schedules.GetSchedule(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	req.apply(sched)

	if err := s.schedules.UpdateSchedule(c.Request.Context(), sched); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sched)
}

func (s *Server) handleDeleteSchedule(c *gin.Context) {
	userID := auth.GetUserID(c)

	if err := s.schedules.DeleteSchedule(c.Request.Context(), c.Param("id"), userID); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "schedule deleted"})
}

func (s *Server) handleListScheduleRuns(c *gin.Context) {
	userID := auth.GetUserID(c)

	limit := parseIntQuery(c, "limit", 20, 100)

	runs, err := s.schedules.ListRuns(c.Request.Context(), c.Param("id"), userID, limit)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}
