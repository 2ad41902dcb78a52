package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chartpilot/internal/database"
)

// Context keys for the authenticated user
const (
	ContextKeyUserID  = "user_id"
	ContextKeyEmail   = "user_email"
	ContextKeyTier    = "user_tier"
	ContextKeyIsAdmin = "user_is_admin"
	ContextKeyClaims  = "user_claims"
)

// bearerToken extracts the token from the Authorization header, returning
// an empty string when the header is missing or malformed
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

func setUserContext(c *gin.Context, claims *UserClaims) {
	c.Set(ContextKeyUserID, claims.UserID)
	c.Set(ContextKeyEmail, claims.Email)
	c.Set(ContextKeyTier, claims.SubscriptionTier)
	c.Set(ContextKeyIsAdmin, claims.IsAdmin)
	c.Set(ContextKeyClaims, claims)
}

func abortAuth(c *gin.Context, status int, authErr AuthError, message string) {
	if message == "" {
		message = authErr.Message
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":   authErr.Code,
		"message": message,
	})
}

// Middleware rejects requests without a valid access token and loads the
// user claims into the request context
func Middleware(jwtManager *JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			abortAuth(c, http.StatusUnauthorized, ErrUnauthorized, "missing or malformed authorization header")
			return
		}

		claims, err := jwtManager.ValidateAccessToken(token)
		if err != nil {
			authErr, ok := err.(AuthError)
			if !ok {
				authErr = ErrInvalidToken
			}
			abortAuth(c, http.StatusUnauthorized, authErr, "")
			return
		}

		setUserContext(c, claims)
		c.Next()
	}
}

// OptionalMiddleware loads user claims when a valid token is present but
// lets anonymous requests through
func OptionalMiddleware(jwtManager *JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" {
			if claims, err := jwtManager.ValidateAccessToken(token); err == nil && claims != nil {
				setUserContext(c, claims)
			}
		}
		c.Next()
	}
}

// RequireAdmin rejects non-admin users. Must run after Middleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			abortAuth(c, http.StatusForbidden, ErrForbidden, "admin access required")
			return
		}
		c.Next()
	}
}

// RequireTier rejects users below the given subscription tier. Tier
// ordering comes from the tier table's priority column, so an unknown
// tier ranks as free.
func RequireTier(minTier string) gin.HandlerFunc {
	minPriority := database.GetTierConfig(database.SubscriptionTier(minTier)).Priority

	return func(c *gin.Context) {
		tier, exists := c.Get(ContextKeyTier)
		if !exists {
			abortAuth(c, http.StatusForbidden, ErrForbidden, "subscription required")
			return
		}

		priority := database.GetTierConfig(database.SubscriptionTier(tier.(string))).Priority
		if priority < minPriority {
			abortAuth(c, http.StatusForbidden, ErrForbidden, "upgrade to "+minTier+" tier required")
			return
		}
		c.Next()
	}
}

// RequireEmailVerified rejects users who have not confirmed their email.
// Must run after Middleware.
func RequireEmailVerified(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(ContextKeyUserID)
		if userID == "" {
			abortAuth(c, http.StatusUnauthorized, ErrUnauthorized, "authentication required")
			return
		}

		user, err := service.repo.GetUserByID(c.Request.Context(), userID)
		if err != nil || user == nil {
			abortAuth(c, http.StatusUnauthorized, ErrUserNotFound, "")
			return
		}
		if !user.EmailVerified {
			abortAuth(c, http.StatusForbidden, ErrEmailNotVerified, "")
			return
		}
		c.Next()
	}
}

// GetUserID extracts the user ID from the Gin context
func GetUserID(c *gin.Context) string {
	if userID, exists := c.Get(ContextKeyUserID); exists {
		return userID.(string)
	}
	return ""
}

// GetUserClaims extracts the full user claims from the Gin context
func GetUserClaims(c *gin.Context) *UserClaims {
	if claims, exists := c.Get(ContextKeyClaims); exists {
		return claims.(*UserClaims)
	}
	return nil
}

// GetUserTier extracts the user tier from the Gin context, defaulting to free
func GetUserTier(c *gin.Context) string {
	if tier, exists := c.Get(ContextKeyTier); exists {
		return tier.(string)
	}
	return string(database.TierFree)
}

// IsAdmin reports whether the current user is an admin
func IsAdmin(c *gin.Context) bool {
	if isAdmin, exists := c.Get(ContextKeyIsAdmin); exists {
		return isAdmin.(bool)
	}
	return false
}
