package auth

import (
	"context"
	"fmt"
	"time"

	"chartpilot/internal/database"
	"chartpilot/internal/logging"
)

// EmailService interface for sending emails
type EmailService interface {
	IsConfigured() bool
	SendVerificationEmail(ctx context.Context, to, token string) error
	SendPasswordResetEmail(ctx context.Context, to, token string) error
}

// Service handles authentication operations
type Service struct {
	repo            *database.Repository
	jwtManager      *JWTManager
	passwordManager *PasswordManager
	emailService    EmailService
	config          Config
	logger          *logging.Logger
}

// NewService creates a new authentication service
func NewService(repo *database.Repository, config Config) *Service {
	return NewServiceWithEmail(repo, config, nil)
}

// NewServiceWithEmail creates a new authentication service with email support
func NewServiceWithEmail(repo *database.Repository, config Config, emailService EmailService) *Service {
	if config.JWTSecret == "" {
		logging.WithComponent("auth").Fatal("JWT secret is required")
	}

	if config.AccessTokenDuration == 0 {
		config.AccessTokenDuration = 15 * time.Minute
	}
	if config.RefreshTokenDuration == 0 {
		config.RefreshTokenDuration = 7 * 24 * time.Hour
	}

	return &Service{
		repo:            repo,
		jwtManager:      NewJWTManager(config.JWTSecret, config.AccessTokenDuration, config.RefreshTokenDuration),
		passwordManager: NewPasswordManager(DefaultBcryptCost, config.MinPasswordLength),
		emailService:    emailService,
		config:          config,
		logger:          logging.WithComponent("auth"),
	}
}

// GetJWTManager returns the JWT manager for use in middleware
func (s *Service) GetJWTManager() *JWTManager {
	return s.jwtManager
}

// RequiresEmailVerification reports whether unverified accounts are
// blocked from the API
func (s *Service) RequiresEmailVerification() bool {
	return s.config.RequireEmailVerification
}

// Register creates a new user account
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*database.User, error) {
	// Check if email exists
	exists, err := s.repo.EmailExists(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, ErrEmailExists
	}

	// Validate password strength
	if err := s.passwordManager.ValidatePasswordStrength(req.Password); err != nil {
		return nil, AuthError{Code: "WEAK_PASSWORD", Message: err.Error()}
	}

	// Hash password
	passwordHash, err := s.passwordManager.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	requiresVerification := s.emailService != nil && s.config.RequireEmailVerification

	// New accounts start on the free tier
	user := &database.User{
		Email:              req.Email,
		PasswordHash:       passwordHash,
		Name:               req.Name,
		SubscriptionTier:   database.TierFree,
		SubscriptionStatus: database.StatusActive,
		EmailVerified:      !requiresVerification,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// Send verification email if required
	if requiresVerification {
		token, err := s.GenerateEmailVerificationToken(ctx, user.ID)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to generate verification token")
		} else if err := s.emailService.SendVerificationEmail(ctx, user.Email, token); err != nil {
			s.logger.WithError(err).Warn("Failed to send verification email")
		}
	}

	return user, nil
}

// Login authenticates a user and returns tokens
func (s *Service) Login(ctx context.Context, req LoginRequest, deviceInfo, ipAddress, userAgent string) (*LoginResponse, error) {
	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	// Verify password
	if !s.passwordManager.VerifyPassword(req.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	// Check if account is suspended
	if user.SubscriptionStatus == database.StatusSuspended {
		return nil, ErrAccountSuspended
	}

	// Check email verification if required
	if s.config.RequireEmailVerification && !user.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	tokenPair, err := s.jwtManager.GenerateTokenPair(userClaimsFor(user))
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	// Create session
	session := &database.UserSession{
		UserID:           user.ID,
		RefreshTokenHash: HashRefreshToken(tokenPair.RefreshToken),
		DeviceInfo:       deviceInfo,
		IPAddress:        ipAddress,
		UserAgent:        userAgent,
		ExpiresAt:        time.Now().Add(s.jwtManager.GetRefreshTokenDuration()),
	}

	if err := s.repo.CreateSession(ctx, session); err != nil {
		// Session bookkeeping should not block login
		s.logger.WithError(err).Warn("Failed to create session")
	}

	// Update last login
	if err := s.repo.UpdateUserLastLogin(ctx, user.ID); err != nil {
		s.logger.WithError(err).Warn("Failed to update last login")
	}

	return &LoginResponse{
		User:         UserResponseFrom(user),
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresIn:    tokenPair.ExpiresIn,
	}, nil
}

// RefreshTokens refreshes the access and refresh tokens
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	tokenHash := HashRefreshToken(refreshToken)

	session, err := s.repo.GetSessionByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrInvalidToken
	}

	if session.ExpiresAt.Before(time.Now()) {
		return nil, ErrTokenExpired
	}
	if session.RevokedAt != nil {
		return nil, ErrSessionRevoked
	}

	user, err := s.repo.GetUserByID(ctx, session.UserID)
	if err != nil || user == nil {
		return nil, ErrUserNotFound
	}

	if user.SubscriptionStatus == database.StatusSuspended {
		return nil, ErrAccountSuspended
	}

	tokenPair, err := s.jwtManager.GenerateTokenPair(userClaimsFor(user))
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	// Revoke old session and create new one (refresh token rotation)
	if err := s.repo.RevokeSession(ctx, session.ID); err != nil {
		s.logger.WithError(err).Warn("Failed to revoke old session")
	}

	newSession := &database.UserSession{
		UserID:           user.ID,
		RefreshTokenHash: HashRefreshToken(tokenPair.RefreshToken),
		DeviceInfo:       session.DeviceInfo,
		IPAddress:        session.IPAddress,
		UserAgent:        session.UserAgent,
		ExpiresAt:        time.Now().Add(s.jwtManager.GetRefreshTokenDuration()),
	}

	if err := s.repo.CreateSession(ctx, newSession); err != nil {
		return nil, fmt.Errorf("failed to create new session: %w", err)
	}

	return &RefreshResponse{
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresIn:    tokenPair.ExpiresIn,
	}, nil
}

// Logout revokes a user's session
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	tokenHash := HashRefreshToken(refreshToken)

	session, err := s.repo.GetSessionByTokenHash(ctx, tokenHash)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil // Already logged out or invalid token
	}

	return s.repo.RevokeSession(ctx, session.ID)
}

// LogoutAll revokes all sessions for a user
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	return s.repo.RevokeAllUserSessions(ctx, userID)
}

// ChangePassword changes a user's password
func (s *Service) ChangePassword(ctx context.Context, userID string, req ChangePasswordRequest) error {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil || user == nil {
		return ErrUserNotFound
	}

	// Verify current password
	if !s.passwordManager.VerifyPassword(req.CurrentPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}

	// Validate new password strength
	if err := s.passwordManager.ValidatePasswordStrength(req.NewPassword); err != nil {
		return AuthError{Code: "WEAK_PASSWORD", Message: err.Error()}
	}

	newHash, err := s.passwordManager.HashPassword(req.NewPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.repo.UpdateUserPassword(ctx, userID, newHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	// Revoke all sessions to force re-login
	if err := s.repo.RevokeAllUserSessions(ctx, userID); err != nil {
		s.logger.WithError(err).Warn("Failed to revoke sessions after password change")
	}

	return nil
}

// GeneratePasswordResetToken generates a password reset token. It returns an
// empty token without error when the email is unknown, so callers never reveal
// whether an address is registered.
func (s *Service) GeneratePasswordResetToken(ctx context.Context, email string) (string, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return "", nil
	}

	token, err := s.jwtManager.GenerateVerificationToken(user.ID, "password_reset", s.config.PasswordResetDuration)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	if s.emailService != nil && s.emailService.IsConfigured() {
		if err := s.emailService.SendPasswordResetEmail(ctx, user.Email, token); err != nil {
			s.logger.WithError(err).Warn("Failed to send password reset email")
		}
	}

	return token, nil
}

// ResetPassword resets a user's password using a reset token
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	userID, err := s.jwtManager.ValidateVerificationToken(req.Token, "password_reset")
	if err != nil {
		return ErrInvalidToken
	}

	if err := s.passwordManager.ValidatePasswordStrength(req.NewPassword); err != nil {
		return AuthError{Code: "WEAK_PASSWORD", Message: err.Error()}
	}

	newHash, err := s.passwordManager.HashPassword(req.NewPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.repo.UpdateUserPassword(ctx, userID, newHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := s.repo.RevokeAllUserSessions(ctx, userID); err != nil {
		s.logger.WithError(err).Warn("Failed to revoke sessions after password reset")
	}

	return nil
}

// GenerateEmailVerificationToken generates an email verification token
func (s *Service) GenerateEmailVerificationToken(ctx context.Context, userID string) (string, error) {
	return s.jwtManager.GenerateVerificationToken(userID, "email_verification", 24*time.Hour)
}

// VerifyEmail verifies a user's email using a verification token
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	userID, err := s.jwtManager.ValidateVerificationToken(token, "email_verification")
	if err != nil {
		return ErrInvalidToken
	}

	return s.repo.MarkEmailVerified(ctx, userID)
}

// GetUserByID retrieves a user by ID
func (s *Service) GetUserByID(ctx context.Context, userID string) (*database.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

// CleanupExpiredSessions removes expired sessions from the database
func (s *Service) CleanupExpiredSessions(ctx context.Context) error {
	return s.repo.DeleteExpiredSessions(ctx)
}

func userClaimsFor(user *database.User) UserClaims {
	return UserClaims{
		UserID:           user.ID,
		Email:            user.Email,
		SubscriptionTier: string(user.SubscriptionTier),
		IsAdmin:          user.IsAdmin,
	}
}

// UserResponseFrom maps a database user to its API representation
func UserResponseFrom(user *database.User) UserResponse {
	return UserResponse{
		ID:               user.ID,
		Email:            user.Email,
		Name:             user.Name,
		EmailVerified:    user.EmailVerified,
		SubscriptionTier: string(user.SubscriptionTier),
		IsAdmin:          user.IsAdmin,
		CreatedAt:        user.CreatedAt,
		LastLoginAt:      user.LastLoginAt,
	}
}
