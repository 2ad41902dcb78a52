package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chartpilot/internal/auth"
	"chartpilot/internal/cache"
	"chartpilot/internal/database"
)

// analyzeRequest selects the provider and model for an analysis
type analyzeRequest struct {
	Selector string `json:"selector"` // "provider:modelId", empty uses the default
}

func (s *Server) handleAnalyzeLayout(c *gin.Context) {
	userID := auth.GetUserID(c)

	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		badRequest(c, "invalid request body")
		return
	}

	if !s.consumeDailyAnalysis(c, userID) {
		return
	}

	result, err := s.analyses.Run(c.Request.Context(), userID, c.Param("id"), req.Selector)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (s *Server) handleAnalyzeSnapshot(c *gin.Context) {
	userID := auth.GetUserID(c)

	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		badRequest(c, "invalid request body")
		return
	}

	if !s.consumeDailyAnalysis(c, userID) {
		return
	}

	result, err := s.analyses.AnalyzeExisting(c.Request.Context(), userID, c.Param("id"), req.Selector)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (s *Server) handleListAnalyses(c *gin.Context) {
	userID := auth.GetUserID(c)

	limit := parseIntQuery(c, "limit", 20, 100)
	offset := parseIntQuery(c, "offset", 0, 10000)

	analyses, err := s.repo.GetAnalysesByUserID(c.Request.Context(), userID, c.Query("layout_id"), limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"analyses": analyses, "count": len(analyses)})
}

func (s *Server) handleGetAnalysis(c *gin.Context) {
	userID := auth.GetUserID(c)

	result, err := s.repo.GetAnalysisByID(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "NOT_FOUND", "message": "analysis not found"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// consumeDailyAnalysis enforces the per-tier daily analysis quota. The Redis
// counter is authoritative; when the cache is unavailable the count falls
// back to the database so a Redis outage does not turn into free quota.
// Writes the 429 response itself and returns false when the quota is spent.
func (s *Server) consumeDailyAnalysis(c *gin.Context, userID string) bool {
	tier := database.GetTierConfig(database.SubscriptionTier(auth.GetUserTier(c)))
	if tier.AnalysesPerDay <= 0 {
		return true
	}

	ctx := c.Request.Context()
	now := time.Now().UTC()

	if s.cache != nil && s.cache.IsHealthy() {
		key := cache.DailyAnalysesKey(userID, now.Format("2006-01-02"))
		count, err := s.cache.IncrementCounter(ctx, key, cache.DefaultCounterTTL)
		if err == nil {
			if count > int64(tier.AnalysesPerDay) {
				s.quotaExceeded(c, tier.AnalysesPerDay)
				return false
			}
			return true
		}
		s.logger.WithError(err).Warn("Quota counter unavailable, falling back to database")
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	count, err := s.repo.CountAnalysesSince(ctx, userID, midnight)
	if err != nil {
		s.respondError(c, err)
		return false
	}
	if count >= tier.AnalysesPerDay {
		s.quotaExceeded(c, tier.AnalysesPerDay)
		return false
	}
	return true
}

func (s *Server) quotaExceeded(c *gin.Context, limit int) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":   "QUOTA_EXCEEDED",
		"message": "daily analysis quota reached for your plan",
		"limit":   limit,
	})
}
