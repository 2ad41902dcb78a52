package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// =====================================================
// ANALYSIS OPERATIONS
// =====================================================

const analysisSelectColumns = `
	id, snapshot_id, layout_id, user_id, provider, model, action, confidence,
	entry_price, stop_loss, take_profit, reasons, COALESCE(risk_notes, ''),
	calendar_context, COALESCE(raw_response, ''), COALESCE(latency_ms, 0), created_at
`

func scanAnalysis(row pgx.Row) (*Analysis, error) {
	analysis := &Analysis{}
	var reasonsJSON []byte
	err := row.Scan(
		&analysis.ID, &analysis.SnapshotID, &analysis.LayoutID, &analysis.UserID,
		&analysis.Provider, &analysis.Model, &analysis.Action, &analysis.Confidence,
		&analysis.EntryPrice, &analysis.StopLoss, &analysis.TakeProfit,
		&reasonsJSON, &analysis.RiskNotes,
		&analysis.CalendarContext, &analysis.RawResponse, &analysis.LatencyMs,
		&analysis.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(reasonsJSON) > 0 {
		if err := json.Unmarshal(reasonsJSON, &analysis.Reasons); err != nil {
			return nil, fmt.Errorf("failed to decode reasons: %w", err)
		}
	}
	return analysis, nil
}

// CreateAnalysis persists an AI analysis result
func (r *Repository) CreateAnalysis(ctx context.Context, analysis *Analysis) error {
	reasonsJSON, err := json.Marshal(analysis.Reasons)
	if err != nil {
		return fmt.Errorf("failed to encode reasons: %w", err)
	}

	query := `
		INSERT INTO analyses (
			snapshot_id, layout_id, user_id, provider, model, action, confidence,
			entry_price, stop_loss, take_profit, reasons, risk_notes,
			calendar_context, raw_response, latency_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), $13, NULLIF($14, ''), $15)
		RETURNING id, created_at
	`

	err = r.db.Pool.QueryRow(ctx, query,
		analysis.SnapshotID, analysis.LayoutID, analysis.UserID,
		analysis.Provider, analysis.Model, analysis.Action, analysis.Confidence,
		analysis.EntryPrice, analysis.StopLoss, analysis.TakeProfit,
		reasonsJSON, analysis.RiskNotes,
		analysis.CalendarContext, analysis.RawResponse, analysis.LatencyMs,
	).Scan(&analysis.ID, &analysis.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create analysis: %w", err)
	}

	return nil
}

// GetAnalysisByID retrieves an analysis scoped to its owner
func (r *Repository) GetAnalysisByID(ctx context.Context, analysisID, userID string) (*Analysis, error) {
	query := `SELECT ` + analysisSelectColumns + ` FROM analyses WHERE id = $1 AND user_id = $2`

	analysis, err := scanAnalysis(r.db.Pool.QueryRow(ctx, query, analysisID, userID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	return analysis, nil
}

// GetAnalysesByUserID lists a user's analyses, newest first, optionally
// filtered by layout
func (r *Repository) GetAnalysesByUserID(ctx context.Context, userID, layoutID string, limit, offset int) ([]*Analysis, error) {
	query := `SELECT ` + analysisSelectColumns + ` FROM analyses WHERE user_id = $1`
	args := []interface{}{userID}

	if layoutID != "" {
		query += ` AND layout_id = $2`
		args = append(args, layoutID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var analyses []*Analysis
	for rows.Next() {
		analysis, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		analyses = append(analyses, analysis)
	}

	return analyses, rows.Err()
}

// CountAnalysesSince counts a user's analyses created after the given time
func (r *Repository) CountAnalysesSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM analyses WHERE user_id = $1 AND created_at >= $2`,
		userID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count analyses: %w", err)
	}
	return count, nil
}

// DeleteAnalysis removes an analysis
func (r *Repository) DeleteAnalysis(ctx context.Context, analysisID, userID string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM analyses WHERE id = $1 AND user_id = $2`,
		analysisID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("analysis not found")
	}
	return nil
}
