package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chartpilot/internal/logging"
)

// Notifier publishes account events to the rest of the application.
// Implemented by *events.EventBus.
type Notifier interface {
	PublishUserLogout(userID string)
}

// Handlers exposes the authentication endpoints
type Handlers struct {
	service  *Service
	notifier Notifier
	logger   *logging.Logger
}

// NewHandlers creates the auth handler set. notifier may be nil.
func NewHandlers(service *Service, notifier Notifier) *Handlers {
	return &Handlers{
		service:  service,
		notifier: notifier,
		logger:   logging.WithComponent("auth"),
	}
}

// bindJSON binds the request body, writing the validation error response
// itself. Returns false when binding failed.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "VALIDATION_ERROR",
			"message": err.Error(),
		})
		return false
	}
	return true
}

// respondAuthError maps an AuthError onto its HTTP status, with optional
// per-code overrides, and hides non-auth errors behind a generic message
func respondAuthError(c *gin.Context, err error, defaultStatus int, internalMsg string, overrides map[string]int) {
	if authErr, ok := err.(AuthError); ok {
		status := defaultStatus
		if s, ok := overrides[authErr.Code]; ok {
			status = s
		}
		c.JSON(status, gin.H{
			"error":   authErr.Code,
			"message": authErr.Message,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "INTERNAL_ERROR",
		"message": internalMsg,
	})
}

func respondUnauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"error":   ErrUnauthorized.Code,
		"message": ErrUnauthorized.Message,
	})
}

// Register creates a new account
// POST /api/auth/register
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		respondAuthError(c, err, http.StatusBadRequest, "failed to register user",
			map[string]int{ErrEmailExists.Code: http.StatusConflict})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "registration successful",
		"user":    UserResponseFrom(user),
	})
}

// Login authenticates a user and opens a session
// POST /api/auth/login
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	deviceInfo := c.GetHeader("X-Device-Info")
	response, err := h.service.Login(c.Request.Context(), req, deviceInfo, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		respondAuthError(c, err, http.StatusUnauthorized, "failed to login",
			map[string]int{ErrAccountSuspended.Code: http.StatusForbidden})
		return
	}

	c.JSON(http.StatusOK, response)
}

// Refresh rotates the token pair
// POST /api/auth/refresh
func (h *Handlers) Refresh(c *gin.Context) {
	var req RefreshRequest
	if !bindJSON(c, &req) {
		return
	}

	response, err := h.service.RefreshTokens(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondAuthError(c, err, http.StatusUnauthorized, "failed to refresh tokens", nil)
		return
	}

	c.JSON(http.StatusOK, response)
}

// Logout revokes the presented refresh token. The endpoint always reports
// success; a missing or already-revoked token still leaves the client
// logged out.
// POST /api/auth/logout
func (h *Handlers) Logout(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.RefreshToken != "" {
		if err := h.service.Logout(c.Request.Context(), req.RefreshToken); err != nil {
			h.logger.WithError(err).Debug("Logout revocation failed")
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// LogoutAll revokes every session of the current user
// POST /api/auth/logout-all
func (h *Handlers) LogoutAll(c *gin.Context) {
	userID := GetUserID(c)
	if userID == "" {
		respondUnauthorized(c)
		return
	}

	if err := h.service.LogoutAll(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "INTERNAL_ERROR",
			"message": "failed to logout all sessions",
		})
		return
	}

	// Connected websockets drop on this event so revoked sessions lose
	// their live feed too.
	if h.notifier != nil {
		h.notifier.PublishUserLogout(userID)
	}

	c.JSON(http.StatusOK, gin.H{"message": "all sessions logged out"})
}

// ChangePassword changes the password for the current user
// POST /api/auth/change-password
func (h *Handlers) ChangePassword(c *gin.Context) {
	userID := GetUserID(c)
	if userID == "" {
		respondUnauthorized(c)
		return
	}

	var req ChangePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.service.ChangePassword(c.Request.Context(), userID, req); err != nil {
		respondAuthError(c, err, http.StatusBadRequest, "failed to change password",
			map[string]int{ErrInvalidCredentials.Code: http.StatusUnauthorized})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password changed successfully"})
}

// ForgotPassword starts the reset flow. The response never reveals whether
// the email exists.
// POST /api/auth/forgot-password
func (h *Handlers) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if _, err := h.service.GeneratePasswordResetToken(c.Request.Context(), req.Email); err != nil {
		h.logger.WithError(err).Warn("Failed to generate reset token")
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "if an account exists with this email, a password reset link has been sent",
	})
}

// ResetPassword completes the reset flow
// POST /api/auth/reset-password
func (h *Handlers) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.service.ResetPassword(c.Request.Context(), req); err != nil {
		respondAuthError(c, err, http.StatusBadRequest, "failed to reset password", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password reset successfully"})
}

// VerifyEmail confirms an email address from a verification token
// POST /api/auth/verify-email
func (h *Handlers) VerifyEmail(c *gin.Context) {
	var req VerifyEmailRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.service.VerifyEmail(c.Request.Context(), req.Token); err != nil {
		respondAuthError(c, err, http.StatusBadRequest, "failed to verify email", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "email verified successfully"})
}

// GetMe returns the current user's profile
// GET /api/auth/me
func (h *Handlers) GetMe(c *gin.Context) {
	userID := GetUserID(c)
	if userID == "" {
		respondUnauthorized(c)
		return
	}

	user, err := h.service.GetUserByID(c.Request.Context(), userID)
	if err != nil || user == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   ErrUserNotFound.Code,
			"message": ErrUserNotFound.Message,
		})
		return
	}

	c.JSON(http.StatusOK, UserResponseFrom(user))
}

// RegisterRoutes mounts the auth endpoints on the given group
func (h *Handlers) RegisterRoutes(router *gin.RouterGroup, jwtManager *JWTManager) {
	router.POST("/register", h.Register)
	router.POST("/login", h.Login)
	router.POST("/refresh", h.Refresh)
	router.POST("/logout", h.Logout)
	router.POST("/forgot-password", h.ForgotPassword)
	router.POST("/reset-password", h.ResetPassword)
	router.POST("/verify-email", h.VerifyEmail)

	protected := router.Group("")
	protected.Use(Middleware(jwtManager))
	{
		protected.GET("/me", h.GetMe)
		protected.POST("/logout-all", h.LogoutAll)
		protected.POST("/change-password", h.ChangePassword)
	}
}
