package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// =====================================================
// USER AI KEY OPERATIONS
// =====================================================

// UpsertAIKey stores or replaces a user's LLM provider key
func (r *Repository) UpsertAIKey(ctx context.Context, key *UserAIKey) error {
	query := `
		INSERT INTO user_ai_keys (user_id, provider, encrypted_key, key_last_four, label, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			encrypted_key = EXCLUDED.encrypted_key,
			key_last_four = EXCLUDED.key_last_four,
			label = EXCLUDED.label,
			is_active = EXCLUDED.is_active,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		key.UserID, key.Provider, key.EncryptedKey, key.KeyLastFour, key.Label, key.IsActive,
	).Scan(&key.ID, &key.CreatedAt, &key.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert ai key: %w", err)
	}

	return nil
}

// GetActiveAIKey returns the active key for a user and provider, if any
func (r *Repository) GetActiveAIKey(ctx context.Context, userID, provider string) (*UserAIKey, error) {
	query := `
		SELECT id, user_id, provider, encrypted_key, COALESCE(key_last_four, ''),
			COALESCE(label, ''), is_active, created_at, updated_at
		FROM user_ai_keys
		WHERE user_id = $1 AND provider = $2 AND is_active = TRUE
	`

	key := &UserAIKey{}
	err := r.db.Pool.QueryRow(ctx, query, userID, provider).Scan(
		&key.ID, &key.UserID, &key.Provider, &key.EncryptedKey,
		&key.KeyLastFour, &key.Label, &key.IsActive, &key.CreatedAt, &key.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ai key: %w", err)
	}

	return key, nil
}

// GetAIKeysByUserID lists all of a user's provider keys
func (r *Repository) GetAIKeysByUserID(ctx context.Context, userID string) ([]*UserAIKey, error) {
	query := `
		SELECT id, user_id, provider, encrypted_key, COALESCE(key_last_four, ''),
			COALESCE(label, ''), is_active, created_at, updated_at
		FROM user_ai_keys
		WHERE user_id = $1
		ORDER BY provider
	`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ai keys: %w", err)
	}
	defer rows.Close()

	var keys []*UserAIKey
	for rows.Next() {
		key := &UserAIKey{}
		if err := rows.Scan(
			&key.ID, &key.UserID, &key.Provider, &key.EncryptedKey,
			&key.KeyLastFour, &key.Label, &key.IsActive, &key.CreatedAt, &key.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ai key: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// DeleteAIKey removes a user's provider key
func (r *Repository) DeleteAIKey(ctx context.Context, userID, provider string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM user_ai_keys WHERE user_id = $1 AND provider = $2`,
		userID, provider,
	)
	if err != nil {
		return fmt.Errorf("failed to delete ai key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ai key not found")
	}
	return nil
}
