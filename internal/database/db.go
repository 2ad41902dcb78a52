package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"chartpilot/internal/logging"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	// Configure connection pool
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	} else {
		poolConfig.MaxConns = 25
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	} else {
		poolConfig.MinConns = 5
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	} else {
		poolConfig.MaxConnLifetime = time.Hour
	}
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logging.WithComponent("database").Info("Connected to PostgreSQL")

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		logging.WithComponent("database").Info("Database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	logging.WithComponent("database").Info("Running database migrations")

	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto`,

		// Users
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			email VARCHAR(255) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			name VARCHAR(255),
			email_verified BOOLEAN NOT NULL DEFAULT FALSE,
			email_verified_at TIMESTAMPTZ,
			subscription_tier VARCHAR(20) NOT NULL DEFAULT 'free',
			subscription_status VARCHAR(20) NOT NULL DEFAULT 'active',
			subscription_expires_at TIMESTAMPTZ,
			stripe_customer_id VARCHAR(255),
			stripe_subscription_id VARCHAR(255),
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			last_login_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
		`CREATE INDEX IF NOT EXISTS idx_users_stripe_customer ON users(stripe_customer_id)`,

		// Refresh token sessions
		`CREATE TABLE IF NOT EXISTS user_sessions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			refresh_token_hash VARCHAR(64) NOT NULL,
			device_info VARCHAR(255),
			ip_address VARCHAR(45),
			user_agent TEXT,
			expires_at TIMESTAMPTZ NOT NULL,
			revoked_at TIMESTAMPTZ,
			last_used_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON user_sessions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_token_hash ON user_sessions(refresh_token_hash)`,

		// Per-user LLM provider keys (encrypted at rest)
		`CREATE TABLE IF NOT EXISTS user_ai_keys (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			provider VARCHAR(20) NOT NULL,
			encrypted_key TEXT NOT NULL,
			key_last_four VARCHAR(4),
			label VARCHAR(100),
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, provider)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ai_keys_user ON user_ai_keys(user_id)`,

		// Registered chart layouts
		`CREATE TABLE IF NOT EXISTS layouts (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			symbol VARCHAR(50) NOT NULL,
			interval VARCHAR(10) NOT NULL,
			chart_layout_id VARCHAR(64),
			theme VARCHAR(10) NOT NULL DEFAULT 'dark',
			session_cipher TEXT,
			session_sign_cipher TEXT,
			is_private BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_layouts_user ON layouts(user_id)`,

		// Captured chart snapshots
		`CREATE TABLE IF NOT EXISTS snapshots (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			layout_id UUID NOT NULL REFERENCES layouts(id) ON DELETE CASCADE,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			image_url TEXT NOT NULL,
			source VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'ready',
			error_message TEXT,
			expires_at TIMESTAMPTZ,
			captured_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_layout ON snapshots(layout_id)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_user ON snapshots(user_id, created_at DESC)`,

		// AI analysis results
		`CREATE TABLE IF NOT EXISTS analyses (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			snapshot_id UUID NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
			layout_id UUID NOT NULL REFERENCES layouts(id) ON DELETE CASCADE,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			provider VARCHAR(20) NOT NULL,
			model VARCHAR(100) NOT NULL,
			action VARCHAR(10) NOT NULL,
			confidence DECIMAL(5, 2) NOT NULL,
			entry_price DECIMAL(20, 8),
			stop_loss DECIMAL(20, 8),
			take_profit DECIMAL(20, 8),
			reasons JSONB,
			risk_notes TEXT,
			calendar_context JSONB,
			raw_response TEXT,
			latency_ms BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_user ON analyses(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_layout ON analyses(layout_id)`,

		// Journal trades
		`CREATE TABLE IF NOT EXISTS journal_trades (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			symbol VARCHAR(50) NOT NULL,
			direction VARCHAR(5) NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			exit_price DECIMAL(20, 8),
			quantity DECIMAL(20, 8) NOT NULL,
			fees DECIMAL(20, 8) NOT NULL DEFAULT 0,
			risk_amount DECIMAL(20, 8),
			pnl DECIMAL(20, 8),
			status VARCHAR(10) NOT NULL DEFAULT 'open',
			setup_tag VARCHAR(100),
			notes TEXT,
			opened_at TIMESTAMPTZ NOT NULL,
			closed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_trades_user ON journal_trades(user_id, opened_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_trades_status ON journal_trades(status)`,

		// Monthly journal statistics, recomputed wholesale on trade changes
		`CREATE TABLE IF NOT EXISTS monthly_stats (
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			year INT NOT NULL,
			month INT NOT NULL,
			total_trades INT NOT NULL DEFAULT 0,
			wins INT NOT NULL DEFAULT 0,
			losses INT NOT NULL DEFAULT 0,
			breakeven INT NOT NULL DEFAULT 0,
			win_rate DECIMAL(5, 2) NOT NULL DEFAULT 0,
			net_pnl DECIMAL(20, 8) NOT NULL DEFAULT 0,
			gross_profit DECIMAL(20, 8) NOT NULL DEFAULT 0,
			gross_loss DECIMAL(20, 8) NOT NULL DEFAULT 0,
			profit_factor DECIMAL(10, 4) NOT NULL DEFAULT 0,
			avg_win DECIMAL(20, 8) NOT NULL DEFAULT 0,
			avg_loss DECIMAL(20, 8) NOT NULL DEFAULT 0,
			avg_rr DECIMAL(10, 4) NOT NULL DEFAULT 0,
			best_trade DECIMAL(20, 8) NOT NULL DEFAULT 0,
			worst_trade DECIMAL(20, 8) NOT NULL DEFAULT 0,
			total_fees DECIMAL(20, 8) NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, year, month)
		)`,

		// Scheduled automated analyses
		`CREATE TABLE IF NOT EXISTS automation_schedules (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			layout_id UUID NOT NULL REFERENCES layouts(id) ON DELETE CASCADE,
			provider_selector VARCHAR(120) NOT NULL,
			interval_key VARCHAR(10) NOT NULL,
			telegram_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			min_confidence DECIMAL(5, 2) NOT NULL DEFAULT 0,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			next_run_at TIMESTAMPTZ NOT NULL,
			last_run_at TIMESTAMPTZ,
			last_status VARCHAR(20),
			consecutive_failures INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_due ON automation_schedules(enabled, next_run_at)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_user ON automation_schedules(user_id)`,

		// Automation run history
		`CREATE TABLE IF NOT EXISTS automation_job_logs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			schedule_id UUID NOT NULL REFERENCES automation_schedules(id) ON DELETE CASCADE,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			status VARCHAR(20) NOT NULL,
			analysis_id UUID,
			error_message TEXT,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_job_logs_schedule ON automation_job_logs(schedule_id, created_at DESC)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	logging.WithComponent("database").Info("Database migrations completed")
	return nil
}
