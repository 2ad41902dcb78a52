package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chartpilot/internal/database"
)

type setTierRequest struct {
	Tier string `json:"tier" binding:"required"`
}

func (s *Server) handleAdminListUsers(c *gin.Context) {
	limit := parseIntQuery(c, "limit", 50, 200)
	offset := parseIntQuery(c, "offset", 0, 100000)

	users, total, err := s.repo.ListUsers(c.Request.Context(), limit, offset, c.Query("tier"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users, "total": total})
}

func (s *Server) handleAdminStats(c *gin.Context) {
	userCount, err := s.repo.GetUserCount(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_count":         userCount,
		"active_connections": s.hub.ConnectionCount(),
	})
}

// handleAdminSetTier changes a user's subscription tier out of band, for
// support cases where billing state and entitlement disagree.
func (s *Server) handleAdminSetTier(c *gin.Context) {
	var req setTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "tier is required")
		return
	}
	tier := database.SubscriptionTier(req.Tier)
	if _, ok := database.TierConfigs[tier]; !ok {
		badRequest(c, "unknown tier: "+req.Tier)
		return
	}

	userID := c.Param("id")
	user, err := s.repo.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "NOT_FOUND", "message": "user not found"})
		return
	}

	if err := s.repo.UpdateUserTier(c.Request.Context(), userID, tier, database.StatusActive); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "tier updated", "tier": string(tier)})
}
