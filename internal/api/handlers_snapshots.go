package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"chartpilot/internal/auth"
	"chartpilot/internal/database"
)

func (s *Server) handleCaptureSnapshot(c *gin.Context) {
	userID := auth.GetUserID(c)

	if !s.checkDailySnapshotQuota(c, userID) {
		return
	}

	layout, err := s.repo.GetLayoutByID(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if layout == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "NOT_FOUND", "message": "layout not found"})
		return
	}

	snap, err := s.snapshots.Capture(c.Request.Context(), layout)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.eventBus.PublishSnapshotCaptured(userID, snap.ID, layout.ID, string(snap.Status))

	c.JSON(http.StatusCreated, snap)
}

func (s *Server) handleListSnapshots(c *gin.Context) {
	userID := auth.GetUserID(c)

	limit := parseIntQuery(c, "limit", 20, 100)

	snaps, err := s.repo.GetSnapshotsByLayoutID(c.Request.Context(), c.Param("id"), userID, limit)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"snapshots": snaps, "count": len(snaps)})
}

func (s *Server) handleGetSnapshot(c *gin.Context) {
	userID := auth.GetUserID(c)

	snap, err := s.repo.GetSnapshotByID(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if snap == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "NOT_FOUND", "message": "snapshot not found"})
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleDeleteSnapshot(c *gin.Context) {
	userID := auth.GetUserID(c)

	snap, err := s.repo.GetSnapshotByID(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if snap == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "NOT_FOUND", "message": "snapshot not found"})
		return
	}

	if err := s.repo.DeleteSnapshot(c.Request.Context(), snap.ID, userID); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "snapshot deleted"})
}

// checkDailySnapshotQuota enforces the per-tier daily capture quota. Counts
// come straight from the database since every capture persists a row anyway.
// Writes the 429 response itself and returns false when the quota is spent.
func (s *Server) checkDailySnapshotQuota(c *gin.Context, userID string) bool {
	tier := database.GetTierConfig(database.SubscriptionTier(auth.GetUserTier(c)))
	if tier.SnapshotsPerDay <= 0 {
		return true
	}

	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	count, err := s.repo.CountSnapshotsSince(c.Request.Context(), userID, midnight)
	if err != nil {
		s.respondError(c, err)
		return false
	}
	if count >= tier.SnapshotsPerDay {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":   "QUOTA_EXCEEDED",
			"message": "daily snapshot quota reached for your plan",
			"limit":   tier.SnapshotsPerDay,
		})
		return false
	}
	return true
}

// parseIntQuery reads an integer query parameter, applying a default and cap
func parseIntQuery(c *gin.Context, name string, def, max int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return def
	}
	if value > max {
		return max
	}
	return value
}
