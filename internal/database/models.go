package database

import (
	"time"
)

// SubscriptionTier represents the user's subscription level
type SubscriptionTier string

const (
	TierFree   SubscriptionTier = "free"
	TierTrader SubscriptionTier = "trader"
	TierPro    SubscriptionTier = "pro"
	TierWhale  SubscriptionTier = "whale"
)

// SubscriptionStatus represents the status of a subscription
type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusPastDue   SubscriptionStatus = "past_due"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusSuspended SubscriptionStatus = "suspended"
)

// User represents a platform user
type User struct {
	ID                    string             `json:"id"`
	Email                 string             `json:"email"`
	PasswordHash          string             `json:"-"` // Never serialize
	Name                  string             `json:"name,omitempty"`
	EmailVerified         bool               `json:"email_verified"`
	EmailVerifiedAt       *time.Time         `json:"email_verified_at,omitempty"`
	SubscriptionTier      SubscriptionTier   `json:"subscription_tier"`
	SubscriptionStatus    SubscriptionStatus `json:"subscription_status"`
	SubscriptionExpiresAt *time.Time         `json:"subscription_expires_at,omitempty"`
	StripeCustomerID      string             `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID  string             `json:"stripe_subscription_id,omitempty"`
	IsAdmin               bool               `json:"is_admin"`
	LastLoginAt           *time.Time         `json:"last_login_at,omitempty"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

// UserSession represents an active user session with refresh token
type UserSession struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	RefreshTokenHash string     `json:"-"` // Never serialize
	DeviceInfo       string     `json:"device_info,omitempty"`
	IPAddress        string     `json:"ip_address,omitempty"`
	UserAgent        string     `json:"user_agent,omitempty"`
	ExpiresAt        time.Time  `json:"expires_at"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	LastUsedAt       time.Time  `json:"last_used_at"`
}

// UserAIKey represents a user's LLM provider API key, encrypted at rest
type UserAIKey struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Provider     string    `json:"provider"`
	EncryptedKey string    `json:"-"` // Never expose ciphertext
	KeyLastFour  string    `json:"key_last_four,omitempty"`
	Label        string    `json:"label,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Layout represents a registered chart layout
type Layout struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Name          string    `json:"name"`
	Symbol        string    `json:"symbol"`
	Interval      string    `json:"interval"`
	ChartLayoutID string    `json:"chart_layout_id,omitempty"`
	Theme         string    `json:"theme"`
	// Encrypted TradingView session cookies, required for private layouts
	SessionCipher     string    `json:"-"`
	SessionSignCipher string    `json:"-"`
	IsPrivate         bool      `json:"is_private"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// SnapshotStatus represents the lifecycle state of a snapshot
type SnapshotStatus string

const (
	SnapshotReady  SnapshotStatus = "ready"
	SnapshotFailed SnapshotStatus = "failed"
)

// SnapshotSource identifies which Chart-IMG endpoint produced the image:
// advanced-chart for public symbol renders, layout-chart for private
// session-authenticated layouts.
type SnapshotSource string

const (
	SourceAdvancedChart SnapshotSource = "advanced-chart"
	SourceLayoutChart   SnapshotSource = "layout-chart"
)

// Snapshot represents a captured chart image
type Snapshot struct {
	ID           string         `json:"id"`
	LayoutID     string         `json:"layout_id"`
	UserID       string         `json:"user_id"`
	ImageURL     string         `json:"image_url"`
	Source       SnapshotSource `json:"source"`
	Status       SnapshotStatus `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	CapturedAt   time.Time      `json:"captured_at"`
	CreatedAt    time.Time      `json:"created_at"`
}

// SignalAction is the trading action recommended by an analysis
type SignalAction string

const (
	ActionBuy  SignalAction = "buy"
	ActionSell SignalAction = "sell"
	ActionHold SignalAction = "hold"
)

// Analysis represents an AI analysis of a chart snapshot
type Analysis struct {
	ID              string       `json:"id"`
	SnapshotID      string       `json:"snapshot_id"`
	LayoutID        string       `json:"layout_id"`
	UserID          string       `json:"user_id"`
	Provider        string       `json:"provider"`
	Model           string       `json:"model"`
	Action          SignalAction `json:"action"`
	Confidence      float64      `json:"confidence"`
	EntryPrice      *float64     `json:"entry_price,omitempty"`
	StopLoss        *float64     `json:"stop_loss,omitempty"`
	TakeProfit      *float64     `json:"take_profit,omitempty"`
	Reasons         []string     `json:"reasons,omitempty"`
	RiskNotes       string       `json:"risk_notes,omitempty"`
	CalendarContext []byte       `json:"-"` // Raw JSON of calendar events considered
	RawResponse     string       `json:"-"`
	LatencyMs       int64        `json:"latency_ms"`
	CreatedAt       time.Time    `json:"created_at"`
}

// TradeDirection for journal trades
type TradeDirection string

const (
	DirectionLong  TradeDirection = "long"
	DirectionShort TradeDirection = "short"
)

// TradeStatus for journal trades
type TradeStatus string

const (
	TradeOpen   TradeStatus = "open"
	TradeClosed TradeStatus = "closed"
)

// JournalTrade represents a manually logged trade in the journal
type JournalTrade struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Symbol     string         `json:"symbol"`
	Direction  TradeDirection `json:"direction"`
	EntryPrice float64        `json:"entry_price"`
	ExitPrice  *float64       `json:"exit_price,omitempty"`
	Quantity   float64        `json:"quantity"`
	Fees       float64        `json:"fees"`
	RiskAmount *float64       `json:"risk_amount,omitempty"`
	PnL        *float64       `json:"pnl,omitempty"`
	Status     TradeStatus    `json:"status"`
	SetupTag   string         `json:"setup_tag,omitempty"`
	Notes      string         `json:"notes,omitempty"`
	OpenedAt   time.Time      `json:"opened_at"`
	ClosedAt   *time.Time     `json:"closed_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// MonthlyStats represents aggregated journal performance for one month
type MonthlyStats struct {
	UserID       string    `json:"user_id"`
	Year         int       `json:"year"`
	Month        int       `json:"month"`
	TotalTrades  int       `json:"total_trades"`
	Wins         int       `json:"wins"`
	Losses       int       `json:"losses"`
	Breakeven    int       `json:"breakeven"`
	WinRate      float64   `json:"win_rate"`
	NetPnL       float64   `json:"net_pnl"`
	GrossProfit  float64   `json:"gross_profit"`
	GrossLoss    float64   `json:"gross_loss"`
	ProfitFactor float64   `json:"profit_factor"`
	AvgWin       float64   `json:"avg_win"`
	AvgLoss      float64   `json:"avg_loss"`
	AvgRR        float64   `json:"avg_rr"`
	BestTrade    float64   `json:"best_trade"`
	WorstTrade   float64   `json:"worst_trade"`
	TotalFees    float64   `json:"total_fees"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RunStatus for automation job logs and schedule last_status
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunSkipped   RunStatus = "skipped"
)

// AutomationSchedule represents a recurring scheduled analysis
type AutomationSchedule struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	LayoutID            string     `json:"layout_id"`
	ProviderSelector    string     `json:"provider_selector"` // "provider:modelId"
	IntervalKey         string     `json:"interval_key"`
	TelegramEnabled     bool       `json:"telegram_enabled"`
	MinConfidence       float64    `json:"min_confidence"`
	Enabled             bool       `json:"enabled"`
	NextRunAt           time.Time  `json:"next_run_at"`
	LastRunAt           *time.Time `json:"last_run_at,omitempty"`
	LastStatus          RunStatus  `json:"last_status,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// AutomationJobLog represents one execution of a schedule
type AutomationJobLog struct {
	ID           string     `json:"id"`
	ScheduleID   string     `json:"schedule_id"`
	UserID       string     `json:"user_id"`
	Status       RunStatus  `json:"status"`
	AnalysisID   *string    `json:"analysis_id,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	DurationMs   int64      `json:"duration_ms"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TierConfig defines the limits for each subscription tier
type TierConfig struct {
	Name             string  `json:"name"`
	MonthlyFeeCents  int64   `json:"monthly_fee_cents"`
	MaxLayouts       int     `json:"max_layouts"`
	MaxSchedules     int     `json:"max_schedules"`
	AnalysesPerDay   int     `json:"analyses_per_day"`
	SnapshotsPerDay  int     `json:"snapshots_per_day"`
	RateLimitPerMin  int     `json:"rate_limit_per_min"`
	EnableAutomation bool    `json:"enable_automation"`
	MinIntervalKey   string  `json:"min_interval_key"`
	Priority         int     `json:"priority"` // Higher = processed first
}

// TierConfigs defines all subscription tiers
var TierConfigs = map[SubscriptionTier]TierConfig{
	TierFree: {
		Name:             "Free",
		MonthlyFeeCents:  0,
		MaxLayouts:       2,
		MaxSchedules:     0,
		AnalysesPerDay:   5,
		SnapshotsPerDay:  10,
		RateLimitPerMin:  10,
		EnableAutomation: false,
		MinIntervalKey:   "1d",
		Priority:         1,
	},
	TierTrader: {
		Name:             "Trader",
		MonthlyFeeCents:  2900, // $29
		MaxLayouts:       10,
		MaxSchedules:     5,
		AnalysesPerDay:   50,
		SnapshotsPerDay:  100,
		RateLimitPerMin:  30,
		EnableAutomation: true,
		MinIntervalKey:   "1h",
		Priority:         2,
	},
	TierPro: {
		Name:             "Pro",
		MonthlyFeeCents:  7900, // $79
		MaxLayouts:       30,
		MaxSchedules:     20,
		AnalysesPerDay:   250,
		SnapshotsPerDay:  500,
		RateLimitPerMin:  60,
		EnableAutomation: true,
		MinIntervalKey:   "15m",
		Priority:         3,
	},
	TierWhale: {
		Name:             "Whale",
		MonthlyFeeCents:  19900, // $199
		MaxLayouts:       1000,  // Effectively unlimited
		MaxSchedules:     100,
		AnalysesPerDay:   2000,
		SnapshotsPerDay:  4000,
		RateLimitPerMin:  120,
		EnableAutomation: true,
		MinIntervalKey:   "15m",
		Priority:         4,
	},
}

// GetTierConfig returns the configuration for a given tier
func GetTierConfig(tier SubscriptionTier) TierConfig {
	if config, ok := TierConfigs[tier]; ok {
		return config
	}
	return TierConfigs[TierFree]
}
