package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// =====================================================
// SNAPSHOT OPERATIONS
// =====================================================

const snapshotSelectColumns = `
	id, layout_id, user_id, image_url, source, status, COALESCE(error_message, ''),
	expires_at, captured_at, created_at
`

func scanSnapshot(row pgx.Row) (*Snapshot, error) {
	snap := &Snapshot{}
	err := row.Scan(
		&snap.ID, &snap.LayoutID, &snap.UserID, &snap.ImageURL,
		&snap.Source, &snap.Status, &snap.ErrorMessage,
		&snap.ExpiresAt, &snap.CapturedAt, &snap.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// CreateSnapshot records a captured chart image
func (r *Repository) CreateSnapshot(ctx context.Context, snap *Snapshot) error {
	query := `
		INSERT INTO snapshots (layout_id, user_id, image_url, source, status, error_message, expires_at, captured_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
		RETURNING id, created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		snap.LayoutID, snap.UserID, snap.ImageURL, snap.Source,
		snap.Status, snap.ErrorMessage, snap.ExpiresAt, snap.CapturedAt,
	).Scan(&snap.ID, &snap.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}

	return nil
}

// GetSnapshotByID retrieves a snapshot scoped to its owner
func (r *Repository) GetSnapshotByID(ctx context.Context, snapshotID, userID string) (*Snapshot, error) {
	query := `SELECT ` + snapshotSelectColumns + ` FROM snapshots WHERE id = $1 AND user_id = $2`

	snap, err := scanSnapshot(r.db.Pool.QueryRow(ctx, query, snapshotID, userID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	return snap, nil
}

// GetSnapshotsByLayoutID lists recent snapshots for a layout
func (r *Repository) GetSnapshotsByLayoutID(ctx context.Context, layoutID, userID string, limit int) ([]*Snapshot, error) {
	query := `
		SELECT ` + snapshotSelectColumns + `
		FROM snapshots
		WHERE layout_id = $1 AND user_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.db.Pool.Query(ctx, query, layoutID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}

	return snaps, rows.Err()
}

// CountSnapshotsSince counts a user's snapshots captured after the given time
func (r *Repository) CountSnapshotsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM snapshots WHERE user_id = $1 AND created_at >= $2`,
		userID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return count, nil
}

// DeleteSnapshot removes a snapshot and its analyses by cascade
func (r *Repository) DeleteSnapshot(ctx context.Context, snapshotID, userID string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM snapshots WHERE id = $1 AND user_id = $2`,
		snapshotID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("snapshot not found")
	}
	return nil
}
