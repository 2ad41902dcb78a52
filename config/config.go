package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerConfig       ServerConfig       `json:"server"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
	RedisConfig        RedisConfig        `json:"redis"`
	AuthConfig         AuthConfig         `json:"auth"`
	VaultConfig        VaultConfig        `json:"vault"`
	ChartImgConfig     ChartImgConfig     `json:"chart_img"`
	AIConfig           AIConfig           `json:"ai"`
	CalendarConfig     CalendarConfig     `json:"calendar"`
	AutomationConfig   AutomationConfig   `json:"automation"`
	BillingConfig      BillingConfig      `json:"billing"`
	EmailConfig        EmailConfig        `json:"email"`
	NotificationConfig NotificationConfig `json:"notification"`
	LoggingConfig      LoggingConfig      `json:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"` // CORS allowed origins
	TLSEnabled      bool   `json:"tls_enabled"`
	TLSCertFile     string `json:"tls_cert_file"`
	TLSKeyFile      string `json:"tls_key_file"`
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL             string `json:"url"`
	MaxConns        int    `json:"max_conns"`
	MinConns        int    `json:"min_conns"`
	MaxConnLifetime int    `json:"max_conn_lifetime"` // Minutes
}

// RedisConfig holds Redis configuration for caching and rate limiting
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret                string        `json:"jwt_secret"`
	EncryptionKey            string        `json:"encryption_key"` // AES key material for secrets at rest
	AccessTokenDuration      time.Duration `json:"access_token_duration"`
	RefreshTokenDuration     time.Duration `json:"refresh_token_duration"`
	PasswordResetDuration    time.Duration `json:"password_reset_duration"`
	MinPasswordLength        int           `json:"min_password_length"`
	RequireEmailVerification bool          `json:"require_email_verification"`
	SessionCleanupInterval   time.Duration `json:"session_cleanup_interval"`
	MaxSessionsPerUser       int           `json:"max_sessions_per_user"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // Path prefix for stored secrets
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// ChartImgConfig holds Chart-IMG snapshot API configuration
type ChartImgConfig struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	DefaultWidth   int    `json:"default_width"`
	DefaultHeight  int    `json:"default_height"`
	DefaultTheme   string `json:"default_theme"` // "dark" or "light"
}

// AIConfig holds LLM provider configuration. Per-user keys stored in the
// database take precedence; these act as the platform fallback.
type AIConfig struct {
	Enabled          bool   `json:"enabled"`
	DefaultSelector  string `json:"default_selector"` // e.g. "openai:gpt-4o"
	OpenAIAPIKey     string `json:"openai_api_key"`
	GeminiAPIKey     string `json:"gemini_api_key"`
	ClaudeAPIKey     string `json:"claude_api_key"`
	DeepSeekAPIKey   string `json:"deepseek_api_key"`
	MaxTokens        int    `json:"max_tokens"`
	RequestTimeout   int    `json:"request_timeout"` // Seconds
	BreakerThreshold int    `json:"breaker_threshold"`
	BreakerCooldown  int    `json:"breaker_cooldown"` // Seconds
}

// CalendarConfig holds economic calendar configuration
type CalendarConfig struct {
	Enabled     bool   `json:"enabled"`
	FeedURL     string `json:"feed_url"`  // Empty means built-in mock data
	CacheTTL    int    `json:"cache_ttl"` // Seconds
	WindowHours int    `json:"window_hours"`
}

// AutomationConfig holds scheduled analysis configuration
type AutomationConfig struct {
	Enabled          bool `json:"enabled"`
	PollSeconds      int  `json:"poll_seconds"`
	MaxFailureStreak int  `json:"max_failure_streak"` // Auto-disable after this many consecutive failures
	JobLogRetention  int  `json:"job_log_retention"`  // Days
}

// BillingConfig holds billing and subscription configuration
type BillingConfig struct {
	Enabled              bool   `json:"enabled"`
	StripeSecretKey      string `json:"stripe_secret_key"`
	StripePublishableKey string `json:"stripe_publishable_key"`
	StripeWebhookSecret  string `json:"stripe_webhook_secret"`
	SuccessURL           string `json:"success_url"`
	CancelURL            string `json:"cancel_url"`
	PortalReturnURL      string `json:"portal_return_url"`
	TraderPriceID        string `json:"trader_price_id"`
	ProPriceID           string `json:"pro_price_id"`
	WhalePriceID         string `json:"whale_price_id"`
}

// EmailConfig holds SMTP settings for transactional email
type EmailConfig struct {
	Enabled    bool   `json:"enabled"`
	Host       string `json:"host"`
	Port       string `json:"port"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	From       string `json:"from"`
	FromName   string `json:"from_name"`
	AppBaseURL string `json:"app_base_url"` // Base URL for links in emails
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Note: chart session cookies and user LLM keys are NOT read from
// environment. They are per-user and stored encrypted in the database.
func applyEnvOverrides(cfg *Config) {
	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", 8080)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", "0.0.0.0")
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", "*")
	cfg.ServerConfig.TLSEnabled = getEnvOrDefault("SERVER_TLS_ENABLED", "false") == "true"
	cfg.ServerConfig.TLSCertFile = getEnvOrDefault("SERVER_TLS_CERT", "")
	cfg.ServerConfig.TLSKeyFile = getEnvOrDefault("SERVER_TLS_KEY", "")
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", 30)
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", 30)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10)

	// Database config
	cfg.DatabaseConfig.URL = getEnvOrDefault("DATABASE_URL", cfg.DatabaseConfig.URL)
	cfg.DatabaseConfig.MaxConns = getEnvIntOrDefault("DATABASE_MAX_CONNS", 25)
	cfg.DatabaseConfig.MinConns = getEnvIntOrDefault("DATABASE_MIN_CONNS", 5)
	cfg.DatabaseConfig.MaxConnLifetime = getEnvIntOrDefault("DATABASE_MAX_CONN_LIFETIME", 60)

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "false") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDR", "localhost:6379")
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", 0)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", 10)

	// Auth config - ALWAYS apply from environment
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.EncryptionKey = getEnvOrDefault("AUTH_ENCRYPTION_KEY", cfg.AuthConfig.EncryptionKey)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", 15*time.Minute)
	cfg.AuthConfig.RefreshTokenDuration = getEnvDurationOrDefault("AUTH_REFRESH_TOKEN_DURATION", 7*24*time.Hour)
	cfg.AuthConfig.PasswordResetDuration = getEnvDurationOrDefault("AUTH_PASSWORD_RESET_DURATION", 1*time.Hour)
	cfg.AuthConfig.MinPasswordLength = getEnvIntOrDefault("AUTH_MIN_PASSWORD_LENGTH", 8)
	cfg.AuthConfig.RequireEmailVerification = getEnvOrDefault("AUTH_REQUIRE_EMAIL_VERIFICATION", "false") == "true"
	cfg.AuthConfig.SessionCleanupInterval = getEnvDurationOrDefault("AUTH_SESSION_CLEANUP_INTERVAL", 1*time.Hour)
	cfg.AuthConfig.MaxSessionsPerUser = getEnvIntOrDefault("AUTH_MAX_SESSIONS_PER_USER", 10)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", "http://localhost:8200")
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", "secret")
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", "chartpilot/secrets")
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", "false") == "true"

	// Chart-IMG config
	cfg.ChartImgConfig.APIKey = getEnvOrDefault("CHART_IMG_API_KEY", cfg.ChartImgConfig.APIKey)
	cfg.ChartImgConfig.BaseURL = getEnvOrDefault("CHART_IMG_BASE_URL", "https://api.chart-img.com")
	cfg.ChartImgConfig.TimeoutSeconds = getEnvIntOrDefault("CHART_IMG_TIMEOUT", 45)
	cfg.ChartImgConfig.DefaultWidth = getEnvIntOrDefault("CHART_IMG_WIDTH", 1280)
	cfg.ChartImgConfig.DefaultHeight = getEnvIntOrDefault("CHART_IMG_HEIGHT", 720)
	cfg.ChartImgConfig.DefaultTheme = getEnvOrDefault("CHART_IMG_THEME", "dark")

	// AI config
	cfg.AIConfig.Enabled = getEnvOrDefault("AI_ENABLED", "true") == "true"
	cfg.AIConfig.DefaultSelector = getEnvOrDefault("AI_DEFAULT_SELECTOR", "openai:gpt-4o")
	cfg.AIConfig.OpenAIAPIKey = getEnvOrDefault("AI_OPENAI_API_KEY", cfg.AIConfig.OpenAIAPIKey)
	cfg.AIConfig.GeminiAPIKey = getEnvOrDefault("AI_GEMINI_API_KEY", cfg.AIConfig.GeminiAPIKey)
	cfg.AIConfig.ClaudeAPIKey = getEnvOrDefault("AI_CLAUDE_API_KEY", cfg.AIConfig.ClaudeAPIKey)
	cfg.AIConfig.DeepSeekAPIKey = getEnvOrDefault("AI_DEEPSEEK_API_KEY", cfg.AIConfig.DeepSeekAPIKey)
	cfg.AIConfig.MaxTokens = getEnvIntOrDefault("AI_MAX_TOKENS", 2048)
	cfg.AIConfig.RequestTimeout = getEnvIntOrDefault("AI_REQUEST_TIMEOUT", 120)
	cfg.AIConfig.BreakerThreshold = getEnvIntOrDefault("AI_BREAKER_THRESHOLD", 5)
	cfg.AIConfig.BreakerCooldown = getEnvIntOrDefault("AI_BREAKER_COOLDOWN", 60)

	// Calendar config
	cfg.CalendarConfig.Enabled = getEnvOrDefault("CALENDAR_ENABLED", "true") == "true"
	cfg.CalendarConfig.FeedURL = getEnvOrDefault("CALENDAR_FEED_URL", cfg.CalendarConfig.FeedURL)
	cfg.CalendarConfig.CacheTTL = getEnvIntOrDefault("CALENDAR_CACHE_TTL", 900)
	cfg.CalendarConfig.WindowHours = getEnvIntOrDefault("CALENDAR_WINDOW_HOURS", 24)

	// Automation config
	cfg.AutomationConfig.Enabled = getEnvOrDefault("AUTOMATION_ENABLED", "true") == "true"
	cfg.AutomationConfig.PollSeconds = getEnvIntOrDefault("AUTOMATION_POLL_SECONDS", 300)
	cfg.AutomationConfig.MaxFailureStreak = getEnvIntOrDefault("AUTOMATION_MAX_FAILURE_STREAK", 5)
	cfg.AutomationConfig.JobLogRetention = getEnvIntOrDefault("AUTOMATION_JOB_LOG_RETENTION", 30)

	// Billing config
	cfg.BillingConfig.Enabled = getEnvOrDefault("BILLING_ENABLED", "false") == "true"
	cfg.BillingConfig.StripeSecretKey = getEnvOrDefault("STRIPE_SECRET_KEY", cfg.BillingConfig.StripeSecretKey)
	cfg.BillingConfig.StripePublishableKey = getEnvOrDefault("STRIPE_PUBLISHABLE_KEY", cfg.BillingConfig.StripePublishableKey)
	cfg.BillingConfig.StripeWebhookSecret = getEnvOrDefault("STRIPE_WEBHOOK_SECRET", cfg.BillingConfig.StripeWebhookSecret)
	cfg.BillingConfig.SuccessURL = getEnvOrDefault("BILLING_SUCCESS_URL", "http://localhost:3000/billing/success")
	cfg.BillingConfig.CancelURL = getEnvOrDefault("BILLING_CANCEL_URL", "http://localhost:3000/billing/cancel")
	cfg.BillingConfig.PortalReturnURL = getEnvOrDefault("BILLING_PORTAL_RETURN_URL", "http://localhost:3000/account")
	cfg.BillingConfig.TraderPriceID = getEnvOrDefault("STRIPE_TRADER_PRICE_ID", cfg.BillingConfig.TraderPriceID)
	cfg.BillingConfig.ProPriceID = getEnvOrDefault("STRIPE_PRO_PRICE_ID", cfg.BillingConfig.ProPriceID)
	cfg.BillingConfig.WhalePriceID = getEnvOrDefault("STRIPE_WHALE_PRICE_ID", cfg.BillingConfig.WhalePriceID)

	// Email config
	cfg.EmailConfig.Enabled = getEnvOrDefault("EMAIL_ENABLED", "false") == "true"
	cfg.EmailConfig.Host = getEnvOrDefault("SMTP_HOST", cfg.EmailConfig.Host)
	cfg.EmailConfig.Port = getEnvOrDefault("SMTP_PORT", "587")
	cfg.EmailConfig.Username = getEnvOrDefault("SMTP_USERNAME", cfg.EmailConfig.Username)
	cfg.EmailConfig.Password = getEnvOrDefault("SMTP_PASSWORD", cfg.EmailConfig.Password)
	cfg.EmailConfig.From = getEnvOrDefault("SMTP_FROM", cfg.EmailConfig.From)
	cfg.EmailConfig.FromName = getEnvOrDefault("SMTP_FROM_NAME", "ChartPilot")
	cfg.EmailConfig.AppBaseURL = getEnvOrDefault("APP_BASE_URL", "http://localhost:3000")

	// Notification config
	cfg.NotificationConfig.Enabled = getEnvOrDefault("NOTIFICATIONS_ENABLED", "false") == "true"
	cfg.NotificationConfig.Telegram.Enabled = getEnvOrDefault("TELEGRAM_ENABLED", "false") == "true"
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.Enabled = getEnvOrDefault("DISCORD_ENABLED", "false") == "true"
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", "stdout")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// ToAuthConfig converts AuthConfig to the format expected by the auth package
func (c *AuthConfig) ToAuthConfig() AuthConfigExport {
	return AuthConfigExport{
		JWTSecret:                c.JWTSecret,
		AccessTokenDuration:      c.AccessTokenDuration,
		RefreshTokenDuration:     c.RefreshTokenDuration,
		PasswordResetDuration:    c.PasswordResetDuration,
		MinPasswordLength:        c.MinPasswordLength,
		RequireEmailVerification: c.RequireEmailVerification,
	}
}

// AuthConfigExport is the exported auth config format for the auth package
type AuthConfigExport struct {
	JWTSecret                string
	AccessTokenDuration      time.Duration
	RefreshTokenDuration     time.Duration
	PasswordResetDuration    time.Duration
	MinPasswordLength        int
	RequireEmailVerification bool
}
