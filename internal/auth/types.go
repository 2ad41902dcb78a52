package auth

import (
	"time"
)

// UserClaims is the user identity embedded in access tokens
type UserClaims struct {
	UserID           string `json:"user_id"`
	Email            string `json:"email"`
	SubscriptionTier string `json:"tier"`
	IsAdmin          bool   `json:"is_admin"`
}

// TokenPair bundles an access token with its refresh token
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // access token lifetime in seconds
	TokenType    string `json:"token_type"` // always "Bearer"
}

// UserResponse is the user shape returned to clients
type UserResponse struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Name             string     `json:"name"`
	EmailVerified    bool       `json:"email_verified"`
	SubscriptionTier string     `json:"subscription_tier"`
	IsAdmin          bool       `json:"is_admin"`
	CreatedAt        time.Time  `json:"created_at"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
}

// RegisterRequest is the signup payload
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required,min=2"`
}

// LoginRequest is the login payload
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse is returned on successful login
type LoginResponse struct {
	User         UserResponse `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
}

// RefreshRequest exchanges a refresh token for new tokens
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// RefreshResponse carries the rotated token pair
type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// ChangePasswordRequest is the payload for an authenticated password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

// ForgotPasswordRequest starts the password reset flow
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetPasswordRequest completes the password reset flow
type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

// VerifyEmailRequest confirms an email address
type VerifyEmailRequest struct {
	Token string `json:"token" binding:"required"`
}

// Config holds authentication configuration
type Config struct {
	JWTSecret            string        `json:"jwt_secret"`
	AccessTokenDuration  time.Duration `json:"access_token_duration"`
	RefreshTokenDuration time.Duration `json:"refresh_token_duration"`

	MinPasswordLength  int `json:"min_password_length"`
	MaxSessionsPerUser int `json:"max_sessions_per_user"`

	RequireEmailVerification bool   `json:"require_email_verification"`
	EmailVerificationURL     string `json:"email_verification_url"`

	PasswordResetURL      string        `json:"password_reset_url"`
	PasswordResetDuration time.Duration `json:"password_reset_duration"`
}

// DefaultConfig returns the authentication defaults. JWTSecret has no
// default and must be provided.
func DefaultConfig() Config {
	return Config{
		AccessTokenDuration:      15 * time.Minute,
		RefreshTokenDuration:     7 * 24 * time.Hour,
		MinPasswordLength:        8,
		MaxSessionsPerUser:       10,
		RequireEmailVerification: false,
		PasswordResetDuration:    1 * time.Hour,
	}
}

// AuthError is a machine-readable authentication failure. Code maps onto
// the API error envelope; Message is safe to show to users.
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e AuthError) Error() string {
	return e.Message
}

var (
	ErrInvalidCredentials = AuthError{Code: "INVALID_CREDENTIALS", Message: "invalid email or password"}
	ErrUserNotFound       = AuthError{Code: "USER_NOT_FOUND", Message: "user not found"}
	ErrEmailExists        = AuthError{Code: "EMAIL_EXISTS", Message: "email already registered"}
	ErrInvalidToken       = AuthError{Code: "INVALID_TOKEN", Message: "invalid or expired token"}
	ErrTokenExpired       = AuthError{Code: "TOKEN_EXPIRED", Message: "token has expired"}
	ErrSessionRevoked     = AuthError{Code: "SESSION_REVOKED", Message: "session has been revoked"}
	ErrUnauthorized       = AuthError{Code: "UNAUTHORIZED", Message: "unauthorized access"}
	ErrForbidden          = AuthError{Code: "FORBIDDEN", Message: "access forbidden"}
	ErrAccountSuspended   = AuthError{Code: "ACCOUNT_SUSPENDED", Message: "account has been suspended"}
	ErrEmailNotVerified   = AuthError{Code: "EMAIL_NOT_VERIFIED", Message: "email not verified"}
	ErrWeakPassword       = AuthError{Code: "WEAK_PASSWORD", Message: "password does not meet requirements"}
	ErrRateLimited        = AuthError{Code: "RATE_LIMITED", Message: "too many requests, please try again later"}
)
