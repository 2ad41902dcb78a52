package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// =====================================================
// JOURNAL TRADE OPERATIONS
// =====================================================

// StatsFunc computes monthly statistics from the full set of closed trades
// in that month. The repository calls it inside the mutating transaction so
// stats never drift from the trades they summarize.
type StatsFunc func(userID string, year, month int, trades []*JournalTrade) *MonthlyStats

const journalTradeSelectColumns = `
	id, user_id, symbol, direction, entry_price, exit_price, quantity, fees,
	risk_amount, pnl, status, COALESCE(setup_tag, ''), COALESCE(notes, ''),
	opened_at, closed_at, created_at, updated_at
`

func scanJournalTrade(row pgx.Row) (*JournalTrade, error) {
	trade := &JournalTrade{}
	err := row.Scan(
		&trade.ID, &trade.UserID, &trade.Symbol, &trade.Direction,
		&trade.EntryPrice, &trade.ExitPrice, &trade.Quantity, &trade.Fees,
		&trade.RiskAmount, &trade.PnL, &trade.Status, &trade.SetupTag, &trade.Notes,
		&trade.OpenedAt, &trade.ClosedAt, &trade.CreatedAt, &trade.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return trade, nil
}

// CreateJournalTrade inserts a new journal trade. A trade created in the
// closed state recomputes its month's stats in the same transaction.
func (r *Repository) CreateJournalTrade(ctx context.Context, trade *JournalTrade, compute StatsFunc) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO journal_trades (
			user_id, symbol, direction, entry_price, exit_price, quantity, fees,
			risk_amount, pnl, status, setup_tag, notes, opened_at, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), NULLIF($12, ''), $13, $14)
		RETURNING id, created_at, updated_at
	`

	err = tx.QueryRow(ctx, query,
		trade.UserID, trade.Symbol, trade.Direction,
		trade.EntryPrice, trade.ExitPrice, trade.Quantity, trade.Fees,
		trade.RiskAmount, trade.PnL, trade.Status, trade.SetupTag, trade.Notes,
		trade.OpenedAt, trade.ClosedAt,
	).Scan(&trade.ID, &trade.CreatedAt, &trade.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create journal trade: %w", err)
	}

	for _, m := range affectedMonths(nil, trade) {
		if err := r.recomputeMonthTx(ctx, tx, trade.UserID, m.year, m.month, compute); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	return nil
}

// GetJournalTradeByID retrieves a trade scoped to its owner
func (r *Repository) GetJournalTradeByID(ctx context.Context, tradeID, userID string) (*JournalTrade, error) {
	query := `SELECT ` + journalTradeSelectColumns + ` FROM journal_trades WHERE id = $1 AND user_id = $2`

	trade, err := scanJournalTrade(r.db.Pool.QueryRow(ctx, query, tradeID, userID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get journal trade: %w", err)
	}

	return trade, nil
}

// ListJournalTrades lists a user's trades, newest first
func (r *Repository) ListJournalTrades(ctx context.Context, userID string, status TradeStatus, limit, offset int) ([]*JournalTrade, error) {
	query := `SELECT ` + journalTradeSelectColumns + ` FROM journal_trades WHERE user_id = $1`
	args := []interface{}{userID}

	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY opened_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal trades: %w", err)
	}
	defer rows.Close()

	var trades []*JournalTrade
	for rows.Next() {
		trade, err := scanJournalTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal trade: %w", err)
		}
		trades = append(trades, trade)
	}

	return trades, rows.Err()
}

// UpdateJournalTrade updates a trade and recomputes stats for every month
// the change touches, all in one transaction
func (r *Repository) UpdateJournalTrade(ctx context.Context, trade *JournalTrade, compute StatsFunc) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Fetch the prior state so a trade moved between months updates both
	prior, err := scanJournalTrade(tx.QueryRow(ctx,
		`SELECT `+journalTradeSelectColumns+` FROM journal_trades WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		trade.ID, trade.UserID,
	))
	if err == pgx.ErrNoRows {
		return fmt.Errorf("journal trade not found")
	}
	if err != nil {
		return fmt.Errorf("failed to lock journal trade: %w", err)
	}

	query := `
		UPDATE journal_trades SET
			symbol = $3,
			direction = $4,
			entry_price = $5,
			exit_price = $6,
			quantity = $7,
			fees = $8,
			risk_amount = $9,
			pnl = $10,
			status = $11,
			setup_tag = NULLIF($12, ''),
			notes = NULLIF($13, ''),
			opened_at = $14,
			closed_at = $15,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND user_id = $2
	`

	_, err = tx.Exec(ctx, query,
		trade.ID, trade.UserID, trade.Symbol, trade.Direction,
		trade.EntryPrice, trade.ExitPrice, trade.Quantity, trade.Fees,
		trade.RiskAmount, trade.PnL, trade.Status, trade.SetupTag, trade.Notes,
		trade.OpenedAt, trade.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update journal trade: %w", err)
	}

	for _, m := range affectedMonths(prior, trade) {
		if err := r.recomputeMonthTx(ctx, tx, trade.UserID, m.year, m.month, compute); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	return nil
}

// DeleteJournalTrade removes a trade and recomputes the affected month's
// stats in the same transaction
func (r *Repository) DeleteJournalTrade(ctx context.Context, tradeID, userID string, compute StatsFunc) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	prior, err := scanJournalTrade(tx.QueryRow(ctx,
		`SELECT `+journalTradeSelectColumns+` FROM journal_trades WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		tradeID, userID,
	))
	if err == pgx.ErrNoRows {
		return fmt.Errorf("journal trade not found")
	}
	if err != nil {
		return fmt.Errorf("failed to lock journal trade: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM journal_trades WHERE id = $1 AND user_id = $2`, tradeID, userID,
	); err != nil {
		return fmt.Errorf("failed to delete journal trade: %w", err)
	}

	for _, m := range affectedMonths(prior, nil) {
		if err := r.recomputeMonthTx(ctx, tx, userID, m.year, m.month, compute); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	return nil
}

type yearMonth struct {
	year  int
	month int
}

// affectedMonths returns the distinct (year, month) pairs whose stats must
// be recomputed after a trade changes. Only closed trades contribute.
func affectedMonths(before, after *JournalTrade) []yearMonth {
	seen := map[yearMonth]bool{}
	var months []yearMonth

	add := func(t *JournalTrade) {
		if t == nil || t.Status != TradeClosed || t.ClosedAt == nil {
			return
		}
		ym := yearMonth{year: t.ClosedAt.UTC().Year(), month: int(t.ClosedAt.UTC().Month())}
		if !seen[ym] {
			seen[ym] = true
			months = append(months, ym)
		}
	}

	add(before)
	add(after)
	return months
}

func (r *Repository) recomputeMonthTx(ctx context.Context, tx pgx.Tx, userID string, year, month int, compute StatsFunc) error {
	rows, err := tx.Query(ctx,
		`SELECT `+journalTradeSelectColumns+`
		 FROM journal_trades
		 WHERE user_id = $1 AND status = 'closed'
		   AND EXTRACT(YEAR FROM closed_at AT TIME ZONE 'UTC') = $2
		   AND EXTRACT(MONTH FROM closed_at AT TIME ZONE 'UTC') = $3`,
		userID, year, month,
	)
	if err != nil {
		return fmt.Errorf("failed to load month trades: %w", err)
	}

	var trades []*JournalTrade
	for rows.Next() {
		trade, err := scanJournalTrade(rows)
		if err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan journal trade: %w", err)
		}
		trades = append(trades, trade)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to load month trades: %w", err)
	}

	if len(trades) == 0 {
		if _, err := tx.Exec(ctx,
			`DELETE FROM monthly_stats WHERE user_id = $1 AND year = $2 AND month = $3`,
			userID, year, month,
		); err != nil {
			return fmt.Errorf("failed to clear monthly stats: %w", err)
		}
		return nil
	}

	stats := compute(userID, year, month, trades)

	query := `
		INSERT INTO monthly_stats (
			user_id, year, month, total_trades, wins, losses, breakeven, win_rate,
			net_pnl, gross_profit, gross_loss, profit_factor, avg_win, avg_loss,
			avg_rr, best_trade, worst_trade, total_fees, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id, year, month) DO UPDATE SET
			total_trades = EXCLUDED.total_trades,
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			breakeven = EXCLUDED.breakeven,
			win_rate = EXCLUDED.win_rate,
			net_pnl = EXCLUDED.net_pnl,
			gross_profit = EXCLUDED.gross_profit,
			gross_loss = EXCLUDED.gross_loss,
			profit_factor = EXCLUDED.profit_factor,
			avg_win = EXCLUDED.avg_win,
			avg_loss = EXCLUDED.avg_loss,
			avg_rr = EXCLUDED.avg_rr,
			best_trade = EXCLUDED.best_trade,
			worst_trade = EXCLUDED.worst_trade,
			total_fees = EXCLUDED.total_fees,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err = tx.Exec(ctx, query,
		stats.UserID, stats.Year, stats.Month,
		stats.TotalTrades, stats.Wins, stats.Losses, stats.Breakeven, stats.WinRate,
		stats.NetPnL, stats.GrossProfit, stats.GrossLoss, stats.ProfitFactor,
		stats.AvgWin, stats.AvgLoss, stats.AvgRR,
		stats.BestTrade, stats.WorstTrade, stats.TotalFees,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert monthly stats: %w", err)
	}

	return nil
}

// =====================================================
// MONTHLY STATS QUERIES
// =====================================================

const monthlyStatsSelectColumns = `
	user_id, year, month, total_trades, wins, losses, breakeven, win_rate,
	net_pnl, gross_profit, gross_loss, profit_factor, avg_win, avg_loss,
	avg_rr, best_trade, worst_trade, total_fees, updated_at
`

func scanMonthlyStats(row pgx.Row) (*MonthlyStats, error) {
	stats := &MonthlyStats{}
	err := row.Scan(
		&stats.UserID, &stats.Year, &stats.Month,
		&stats.TotalTrades, &stats.Wins, &stats.Losses, &stats.Breakeven, &stats.WinRate,
		&stats.NetPnL, &stats.GrossProfit, &stats.GrossLoss, &stats.ProfitFactor,
		&stats.AvgWin, &stats.AvgLoss, &stats.AvgRR,
		&stats.BestTrade, &stats.WorstTrade, &stats.TotalFees, &stats.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// GetMonthlyStats returns stats for one (user, year, month), nil if absent
func (r *Repository) GetMonthlyStats(ctx context.Context, userID string, year, month int) (*MonthlyStats, error) {
	query := `SELECT ` + monthlyStatsSelectColumns + ` FROM monthly_stats WHERE user_id = $1 AND year = $2 AND month = $3`

	stats, err := scanMonthlyStats(r.db.Pool.QueryRow(ctx, query, userID, year, month))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get monthly stats: %w", err)
	}

	return stats, nil
}

// ListMonthlyStats returns all stats rows for a user in a year
func (r *Repository) ListMonthlyStats(ctx context.Context, userID string, year int) ([]*MonthlyStats, error) {
	query := `SELECT ` + monthlyStatsSelectColumns + ` FROM monthly_stats WHERE user_id = $1 AND year = $2 ORDER BY month`

	rows, err := r.db.Pool.Query(ctx, query, userID, year)
	if err != nil {
		return nil, fmt.Errorf("failed to list monthly stats: %w", err)
	}
	defer rows.Close()

	var results []*MonthlyStats
	for rows.Next() {
		stats, err := scanMonthlyStats(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monthly stats: %w", err)
		}
		results = append(results, stats)
	}

	return results, rows.Err()
}
