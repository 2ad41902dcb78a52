package auth

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"chartpilot/internal/database"
	"chartpilot/internal/logging"
)

const (
	// AdminBcryptCost is the bcrypt cost for the admin password
	AdminBcryptCost = 12
)

// SeedAdminUser ensures an admin user exists. Credentials come from
// ADMIN_EMAIL and ADMIN_PASSWORD; seeding is skipped when either is unset.
func SeedAdminUser(ctx context.Context, db *database.DB) error {
	logger := logging.WithComponent("auth")

	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminEmail == "" || adminPassword == "" {
		logger.Info("ADMIN_EMAIL/ADMIN_PASSWORD not set, skipping admin seeding")
		return nil
	}

	repo := database.NewRepository(db)

	user, err := repo.GetUserByEmail(ctx, adminEmail)
	if err != nil {
		return fmt.Errorf("failed to check for admin user: %w", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(adminPassword), AdminBcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	if user == nil {
		logger.WithField("email", adminEmail).Info("Creating admin user")

		now := time.Now()
		adminUser := &database.User{
			Email:              adminEmail,
			PasswordHash:       string(hashedPassword),
			Name:               "Administrator",
			EmailVerified:      true,
			EmailVerifiedAt:    &now,
			SubscriptionTier:   database.TierWhale,
			SubscriptionStatus: database.StatusActive,
			IsAdmin:            true,
		}

		if err := repo.CreateUser(ctx, adminUser); err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}

		logger.WithField("user_id", adminUser.ID).Info("Admin user created")
		return nil
	}

	// Reset the password if the configured one no longer verifies
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(adminPassword)); err != nil {
		logger.WithField("email", adminEmail).Info("Updating admin password")

		if err := repo.UpdateUserPassword(ctx, user.ID, string(hashedPassword)); err != nil {
			return fmt.Errorf("failed to update admin password: %w", err)
		}
	}

	// Ensure admin flags are set correctly
	if !user.IsAdmin || user.SubscriptionTier != database.TierWhale || !user.EmailVerified {
		now := time.Now()
		user.IsAdmin = true
		user.SubscriptionTier = database.TierWhale
		user.SubscriptionStatus = database.StatusActive
		user.EmailVerified = true
		if user.EmailVerifiedAt == nil {
			user.EmailVerifiedAt = &now
		}

		if err := repo.UpdateUser(ctx, user); err != nil {
			return fmt.Errorf("failed to update admin user flags: %w", err)
		}
	}

	return nil
}
