package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chartpilot/internal/auth"
	"chartpilot/internal/database"
)

// layoutRequest carries layout fields the client may set. Session cookies
// arrive in plaintext and are stored encrypted; they are never returned.
type layoutRequest struct {
	Name              string `json:"name"`
	Symbol            string `json:"symbol"`
	Interval          string `json:"interval"`
	ChartLayoutID     string `json:"chart_layout_id"`
	Theme             string `json:"theme"`
	IsPrivate         bool   `json:"is_private"`
	SessionCookie     string `json:"session_cookie"`
	SessionSignCookie string `json:"session_sign_cookie"`
}

func (s *Server) handleListLayouts(c *gin.Context) {
	userID := auth.GetUserID(c)

	layouts, err := s.repo.GetLayoutsByUserID(c.Request.Context(), userID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"layouts": layouts, "count": len(layouts)})
}

func (s *Server) handleCreateLayout(c *gin.Context) {
	userID := auth.GetUserID(c)

	var req layoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.Name == "" || req.Symbol == "" || req.Interval == "" {
		badRequest(c, "name, symbol and interval are required")
		return
	}
	if req.IsPrivate && req.ChartLayoutID == "" {
		badRequest(c, "chart_layout_id is required for private layouts")
		return
	}

	tier := database.GetTierConfig(database.SubscriptionTier(auth.GetUserTier(c)))
	count, err := s.repo.CountLayoutsByUserID(c.Request.Context(), userID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if count >= tier.MaxLayouts {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "PLAN_LIMIT",
			"message": "layout limit reached for your plan",
		})
		return
	}

	layout := &database.Layout{
		UserID:        userID,
		Name:          req.Name,
		Symbol:        req.Symbol,
		Interval:      req.Interval,
		ChartLayoutID: req.ChartLayoutID,
		Theme:         req.Theme,
		IsPrivate:     req.IsPrivate,
	}

	if err := s.encryptSessionCookies(layout, req); err != nil {
		s.respondError(c, err)
		return
	}

	if err := s.repo.CreateLayout(c.Request.Context(), layout); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, layout)
}

func (s *Server) handleGetLayout(c *gin.Context) {
	userID := auth.GetUserID(c)

	layout, err := s.repo.GetLayoutByID(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if layout == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "NOT_FOUND", "message": "layout not found"})
		return
	}

	c.JSON(http.StatusOK, layout)
}

func (s *Server) handleUpdateLayout(c *gin.Context) {
	userID := auth.GetUserID(c)

	layout, err := s.repo.GetLayoutByID(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if layout == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "NOT_FOUND", "message": "layout not found"})
		return
	}

	var req layoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	if req.Name != "" {
		layout.Name = req.Name
	}
	if req.Symbol != "" {
		layout.Symbol = req.Symbol
	}
	if req.Interval != "" {
		layout.Interval = req.Interval
	}
	if req.Theme != "" {
		layout.Theme = req.Theme
	}
	if req.ChartLayoutID != "" {
		layout.ChartLayoutID = req.ChartLayoutID
	}
	layout.IsPrivate = req.IsPrivate

	if err := s.encryptSessionCookies(layout, req); err != nil {
		s.respondError(c, err)
		return
	}

	if err := s.repo.UpdateLayout(c.Request.Context(), layout); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, layout)
}

func (s *Server) handleDeleteLayout(c *gin.Context) {
	userID := auth.GetUserID(c)

	layout, err := s.repo.GetLayoutByID(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if layout == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "NOT_FOUND", "message": "layout not found"})
		return
	}

	if err := s.repo.DeleteLayout(c.Request.Context(), layout.ID, userID); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "layout deleted"})
}

// encryptSessionCookies stores freshly supplied session cookies encrypted on
// the layout. Cookies already on the layout are left alone when the request
// omits them, so updates do not have to resend credentials.
func (s *Server) encryptSessionCookies(layout *database.Layout, req layoutRequest) error {
	if req.SessionCookie != "" {
		cipher, err := s.aiKeys.EncryptSecret(req.SessionCookie)
		if err != nil {
			return err
		}
		layout.SessionCipher = cipher
	}
	if req.SessionSignCookie != "" {
		cipher, err := s.aiKeys.EncryptSecret(req.SessionSignCookie)
		if err != nil {
			return err
		}
		layout.SessionSignCipher = cipher
	}
	return nil
}
