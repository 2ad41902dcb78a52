package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chartpilot/internal/ai/llm"
	"chartpilot/internal/analysis"
	"chartpilot/internal/automation"
	"chartpilot/internal/billing"
	"chartpilot/internal/journal"
	"chartpilot/internal/snapshot"
)

// statusForError maps domain errors to an HTTP status and stable error code
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, analysis.ErrLayoutNotFound),
		errors.Is(err, analysis.ErrSnapshotNotFound),
		errors.Is(err, journal.ErrTradeNotFound),
		errors.Is(err, automation.ErrScheduleNotFound):
		return http.StatusNotFound, "NOT_FOUND"

	case errors.Is(err, journal.ErrValidation),
		errors.Is(err, automation.ErrInvalidSchedule),
		errors.Is(err, billing.ErrInvalidTier):
		return http.StatusBadRequest, "VALIDATION_ERROR"

	case errors.Is(err, automation.ErrAutomationNotAllowed),
		errors.Is(err, automation.ErrScheduleLimit),
		errors.Is(err, automation.ErrIntervalTooShort):
		return http.StatusForbidden, "PLAN_LIMIT"

	case errors.Is(err, snapshot.ErrCaptureFailed):
		return http.StatusBadGateway, "CAPTURE_FAILED"

	case errors.Is(err, snapshot.ErrSessionRequired):
		return http.StatusBadRequest, "SESSION_REQUIRED"

	case errors.Is(err, llm.ErrProviderUnavailable):
		return http.StatusBadGateway, "PROVIDER_UNAVAILABLE"

	case errors.Is(err, llm.ErrNoAPIKey):
		return http.StatusBadRequest, "NO_API_KEY"

	case errors.Is(err, analysis.ErrSnapshotNotReady):
		return http.StatusConflict, "SNAPSHOT_NOT_READY"

	case errors.Is(err, billing.ErrNotConfigured):
		return http.StatusServiceUnavailable, "BILLING_DISABLED"

	case errors.Is(err, billing.ErrInvalidSignature):
		return http.StatusBadRequest, "INVALID_SIGNATURE"

	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// respondError writes a domain error as a JSON error response. Internal
// errors are logged but their details stay out of the response body.
func (s *Server) respondError(c *gin.Context, err error) {
	status, code := statusForError(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
		message = "internal server error"
	}

	c.JSON(status, gin.H{
		"error":   code,
		"message": message,
	})
}

// badRequest writes a 400 with the given message
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "VALIDATION_ERROR",
		"message": message,
	})
}
