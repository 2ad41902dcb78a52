package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// =====================================================
// USER CRUD OPERATIONS
// =====================================================

// CreateUser creates a new user
func (r *Repository) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (
			email, password_hash, name, subscription_tier, subscription_status, is_admin
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		user.Email,
		user.PasswordHash,
		user.Name,
		user.SubscriptionTier,
		user.SubscriptionStatus,
		user.IsAdmin,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

const userSelectColumns = `
	id, email, password_hash, COALESCE(name, ''), email_verified, email_verified_at,
	subscription_tier, subscription_status, subscription_expires_at,
	COALESCE(stripe_customer_id, ''), COALESCE(stripe_subscription_id, ''),
	is_admin, last_login_at, created_at, updated_at
`

func scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Name,
		&user.EmailVerified, &user.EmailVerifiedAt,
		&user.SubscriptionTier, &user.SubscriptionStatus, &user.SubscriptionExpiresAt,
		&user.StripeCustomerID, &user.StripeSubscriptionID,
		&user.IsAdmin, &user.LastLoginAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID
func (r *Repository) GetUserByID(ctx context.Context, userID string) (*User, error) {
	query := `SELECT ` + userSelectColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.Pool.QueryRow(ctx, query, userID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetUserByEmail retrieves a user by email
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userSelectColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(r.db.Pool.QueryRow(ctx, query, email))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}

// GetUserByStripeCustomerID retrieves a user by their Stripe customer ID
func (r *Repository) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*User, error) {
	query := `SELECT ` + userSelectColumns + ` FROM users WHERE stripe_customer_id = $1`

	user, err := scanUser(r.db.Pool.QueryRow(ctx, query, customerID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by stripe customer: %w", err)
	}

	return user, nil
}

// EmailExists checks if an email is already registered
func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

// UpdateUser updates a user's profile and subscription fields
func (r *Repository) UpdateUser(ctx context.Context, user *User) error {
	query := `
		UPDATE users SET
			name = $2,
			email_verified = $3,
			email_verified_at = $4,
			subscription_tier = $5,
			subscription_status = $6,
			subscription_expires_at = $7,
			stripe_customer_id = NULLIF($8, ''),
			stripe_subscription_id = NULLIF($9, ''),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query,
		user.ID,
		user.Name,
		user.EmailVerified,
		user.EmailVerifiedAt,
		user.SubscriptionTier,
		user.SubscriptionStatus,
		user.SubscriptionExpiresAt,
		user.StripeCustomerID,
		user.StripeSubscriptionID,
	)

	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	return nil
}

// UpdateUserPassword updates a user's password hash
func (r *Repository) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`,
		userID, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// UpdateUserLastLogin records a successful login
func (r *Repository) UpdateUserLastLogin(ctx context.Context, userID string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE users SET last_login_at = CURRENT_TIMESTAMP WHERE id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// UpdateUserTier changes a user's subscription tier and status
func (r *Repository) UpdateUserTier(ctx context.Context, userID string, tier SubscriptionTier, status SubscriptionStatus) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE users SET subscription_tier = $2, subscription_status = $3, updated_at = CURRENT_TIMESTAMP WHERE id = $1`,
		userID, tier, status,
	)
	if err != nil {
		return fmt.Errorf("failed to update user tier: %w", err)
	}
	return nil
}

// MarkEmailVerified flags a user's email as verified
func (r *Repository) MarkEmailVerified(ctx context.Context, userID string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE users SET email_verified = TRUE, email_verified_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}
	return nil
}

// GetUserCount returns the total number of users
func (r *Repository) GetUserCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// ListUsers returns a paginated list of users, optionally filtered by tier
func (r *Repository) ListUsers(ctx context.Context, limit, offset int, tier string) ([]*User, int64, error) {
	countQuery := `SELECT COUNT(*) FROM users`
	listQuery := `SELECT ` + userSelectColumns + ` FROM users`
	args := []interface{}{}

	if tier != "" {
		countQuery += ` WHERE subscription_tier = $1`
		listQuery += ` WHERE subscription_tier = $1`
		args = append(args, tier)
	}

	var total int64
	if err := r.db.Pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	listQuery += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Pool.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, total, rows.Err()
}

// =====================================================
// SESSION OPERATIONS
// =====================================================

// CreateSession creates a refresh token session
func (r *Repository) CreateSession(ctx context.Context, session *UserSession) error {
	query := `
		INSERT INTO user_sessions (
			user_id, refresh_token_hash, device_info, ip_address, user_agent, expires_at, last_used_at
		) VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP)
		RETURNING id, created_at, last_used_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		session.UserID,
		session.RefreshTokenHash,
		session.DeviceInfo,
		session.IPAddress,
		session.UserAgent,
		session.ExpiresAt,
	).Scan(&session.ID, &session.CreatedAt, &session.LastUsedAt)

	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetSessionByTokenHash retrieves an unrevoked, unexpired session by token hash
func (r *Repository) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*UserSession, error) {
	query := `
		SELECT id, user_id, refresh_token_hash, COALESCE(device_info, ''),
			COALESCE(ip_address, ''), COALESCE(user_agent, ''),
			expires_at, revoked_at, created_at, last_used_at
		FROM user_sessions
		WHERE refresh_token_hash = $1 AND revoked_at IS NULL AND expires_at > CURRENT_TIMESTAMP
	`

	session := &UserSession{}
	err := r.db.Pool.QueryRow(ctx, query, tokenHash).Scan(
		&session.ID, &session.UserID, &session.RefreshTokenHash,
		&session.DeviceInfo, &session.IPAddress, &session.UserAgent,
		&session.ExpiresAt, &session.RevokedAt, &session.CreatedAt, &session.LastUsedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// UpdateSessionLastUsed bumps the session's last_used_at timestamp
func (r *Repository) UpdateSessionLastUsed(ctx context.Context, sessionID string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE user_sessions SET last_used_at = CURRENT_TIMESTAMP WHERE id = $1`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// RevokeSession marks a session as revoked
func (r *Repository) RevokeSession(ctx context.Context, sessionID string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE user_sessions SET revoked_at = CURRENT_TIMESTAMP WHERE id = $1`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// RevokeAllUserSessions revokes every active session for a user
func (r *Repository) RevokeAllUserSessions(ctx context.Context, userID string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE user_sessions SET revoked_at = CURRENT_TIMESTAMP WHERE user_id = $1 AND revoked_at IS NULL`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke user sessions: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes expired and revoked sessions
func (r *Repository) DeleteExpiredSessions(ctx context.Context) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM user_sessions WHERE expires_at < CURRENT_TIMESTAMP OR revoked_at IS NOT NULL`,
	)
	if err != nil {
		return fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return nil
}
