package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// =====================================================
// LAYOUT OPERATIONS
// =====================================================

const layoutSelectColumns = `
	id, user_id, name, symbol, interval, COALESCE(chart_layout_id, ''), theme,
	COALESCE(session_cipher, ''), COALESCE(session_sign_cipher, ''), is_private,
	created_at, updated_at
`

func scanLayout(row pgx.Row) (*Layout, error) {
	layout := &Layout{}
	err := row.Scan(
		&layout.ID, &layout.UserID, &layout.Name, &layout.Symbol, &layout.Interval,
		&layout.ChartLayoutID, &layout.Theme,
		&layout.SessionCipher, &layout.SessionSignCipher, &layout.IsPrivate,
		&layout.CreatedAt, &layout.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return layout, nil
}

// CreateLayout registers a new chart layout
func (r *Repository) CreateLayout(ctx context.Context, layout *Layout) error {
	query := `
		INSERT INTO layouts (
			user_id, name, symbol, interval, chart_layout_id, theme,
			session_cipher, session_sign_cipher, is_private
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), NULLIF($8, ''), $9)
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		layout.UserID, layout.Name, layout.Symbol, layout.Interval,
		layout.ChartLayoutID, layout.Theme,
		layout.SessionCipher, layout.SessionSignCipher, layout.IsPrivate,
	).Scan(&layout.ID, &layout.CreatedAt, &layout.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create layout: %w", err)
	}

	return nil
}

// GetLayoutByID retrieves a layout scoped to its owner
func (r *Repository) GetLayoutByID(ctx context.Context, layoutID, userID string) (*Layout, error) {
	query := `SELECT ` + layoutSelectColumns + ` FROM layouts WHERE id = $1 AND user_id = $2`

	layout, err := scanLayout(r.db.Pool.QueryRow(ctx, query, layoutID, userID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get layout: %w", err)
	}

	return layout, nil
}

// GetLayoutsByUserID lists a user's layouts
func (r *Repository) GetLayoutsByUserID(ctx context.Context, userID string) ([]*Layout, error) {
	query := `SELECT ` + layoutSelectColumns + ` FROM layouts WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list layouts: %w", err)
	}
	defer rows.Close()

	var layouts []*Layout
	for rows.Next() {
		layout, err := scanLayout(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan layout: %w", err)
		}
		layouts = append(layouts, layout)
	}

	return layouts, rows.Err()
}

// CountLayoutsByUserID returns how many layouts a user has registered
func (r *Repository) CountLayoutsByUserID(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM layouts WHERE user_id = $1`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count layouts: %w", err)
	}
	return count, nil
}

// UpdateLayout updates a layout's mutable fields
func (r *Repository) UpdateLayout(ctx context.Context, layout *Layout) error {
	query := `
		UPDATE layouts SET
			name = $3,
			symbol = $4,
			interval = $5,
			chart_layout_id = NULLIF($6, ''),
			theme = $7,
			session_cipher = NULLIF($8, ''),
			session_sign_cipher = NULLIF($9, ''),
			is_private = $10,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND user_id = $2
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		layout.ID, layout.UserID, layout.Name, layout.Symbol, layout.Interval,
		layout.ChartLayoutID, layout.Theme,
		layout.SessionCipher, layout.SessionSignCipher, layout.IsPrivate,
	)
	if err != nil {
		return fmt.Errorf("failed to update layout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("layout not found")
	}

	return nil
}

// DeleteLayout removes a layout. Snapshots, analyses and schedules
// referencing it are removed by cascade.
func (r *Repository) DeleteLayout(ctx context.Context, layoutID, userID string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM layouts WHERE id = $1 AND user_id = $2`,
		layoutID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete layout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("layout not found")
	}
	return nil
}
