package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"chartpilot/internal/auth"
	"chartpilot/internal/billing"
	"chartpilot/internal/database"
)

// maxWebhookBody caps the webhook payload size
const maxWebhookBody = 1 << 20

// checkoutRequest selects the tier to purchase
type checkoutRequest struct {
	Tier string `json:"tier"`
}

func (s *Server) handleBillingConfig(c *gin.Context) {
	if s.billing == nil || !s.billing.IsConfigured() {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}

	resp := gin.H{
		"enabled":         true,
		"publishable_key": s.billing.PublishableKey(),
		"tiers":           database.TierConfigs,
	}
	if userID := auth.GetUserID(c); userID != "" {
		resp["current_tier"] = auth.GetUserTier(c)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCreateCheckout(c *gin.Context) {
	if s.billing == nil {
		s.respondError(c, billing.ErrNotConfigured)
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	user, err := s.repo.GetUserByID(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "NOT_FOUND", "message": "user not found"})
		return
	}

	url, err := s.billing.CreateCheckoutSession(c.Request.Context(), user, database.SubscriptionTier(req.Tier))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"checkout_url": url})
}

func (s *Server) handleCreatePortal(c *gin.Context) {
	if s.billing == nil {
		s.respondError(c, billing.ErrNotConfigured)
		return
	}

	user, err := s.repo.GetUserByID(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "NOT_FOUND", "message": "user not found"})
		return
	}

	url, err := s.billing.CreatePortalSession(c.Request.Context(), user)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"portal_url": url})
}

// handleBillingWebhook receives Stripe events. The endpoint is public;
// the signature header is the authentication.
func (s *Server) handleBillingWebhook(c *gin.Context) {
	if s.billing == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "BILLING_DISABLED"})
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		badRequest(c, "failed to read payload")
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if err := s.billing.HandleWebhook(c.Request.Context(), payload, signature); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
