package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	NotifySignal     NotificationType = "signal"
	NotifyAutomation NotificationType = "automation"
	NotifyBilling    NotificationType = "billing"
	NotifyError      NotificationType = "error"
	NotifyInfo       NotificationType = "info"
)

// Notification represents a notification message
type Notification struct {
	Type       NotificationType
	Title      string
	Message    string
	Symbol     string
	Action     string
	Confidence float64
	Timestamp  time.Time
	Extra      map[string]interface{}
}

// Notifier interface for different notification providers
type Notifier interface {
	Send(notification *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager manages multiple notification providers
type Manager struct {
	notifiers []Notifier
	enabled   bool
}

// NewManager creates a new notification manager
func NewManager() *Manager {
	return &Manager{
		notifiers: make([]Notifier, 0),
		enabled:   true,
	}
}

// AddNotifier adds a notification provider
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Send sends a notification to all enabled providers
func (m *Manager) Send(notification *Notification) error {
	if !m.enabled {
		return nil
	}

	var lastErr error
	for _, n := range m.notifiers {
		if n.IsEnabled() {
			if err := n.Send(notification); err != nil {
				lastErr = err
			}
		}
	}
	return lastErr
}

// SendAnalysisAlert sends a trading signal notification for a completed
// chart analysis
func (m *Manager) SendAnalysisAlert(symbol, interval, action string, confidence, entry, stopLoss, takeProfit float64, reasons []string) error {
	emoji := "🟢"
	switch action {
	case "sell":
		emoji = "🔴"
	case "hold":
		emoji = "⚪"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s (%s)\nConfidence: %.0f%%", strings.ToUpper(action), symbol, interval, confidence)
	if entry > 0 {
		fmt.Fprintf(&sb, "\nEntry: %.4f", entry)
	}
	if stopLoss > 0 || takeProfit > 0 {
		fmt.Fprintf(&sb, "\nSL: %.4f | TP: %.4f", stopLoss, takeProfit)
	}
	if len(reasons) > 0 {
		fmt.Fprintf(&sb, "\nReasons: %s", strings.Join(reasons, "; "))
	}

	return m.Send(&Notification{
		Type:       NotifySignal,
		Title:      fmt.Sprintf("%s Signal: %s", emoji, symbol),
		Message:    sb.String(),
		Symbol:     symbol,
		Action:     action,
		Confidence: confidence,
		Timestamp:  time.Now(),
		Extra: map[string]interface{}{
			"interval":    interval,
			"entry":       entry,
			"stop_loss":   stopLoss,
			"take_profit": takeProfit,
		},
	})
}

// SendScheduleDisabled notifies that a schedule was turned off after
// repeated failures
func (m *Manager) SendScheduleDisabled(symbol string, failures int) error {
	return m.Send(&Notification{
		Type:      NotifyAutomation,
		Title:     fmt.Sprintf("⏸️ Automation paused: %s", symbol),
		Message:   fmt.Sprintf("Schedule for %s was disabled after %d consecutive failures. Re-enable it from the dashboard once the issue is resolved.", symbol, failures),
		Symbol:    symbol,
		Timestamp: time.Now(),
	})
}

// SendError sends an error notification
func (m *Manager) SendError(title, message string) error {
	return m.Send(&Notification{
		Type:      NotifyError,
		Title:     fmt.Sprintf("⚠️ %s", title),
		Message:   message,
		Timestamp: time.Now(),
	})
}

// =============================================================================
// TELEGRAM NOTIFIER
// =============================================================================

// TelegramNotifier sends notifications via Telegram
type TelegramNotifier struct {
	botToken string
	chatID   string
	enabled  bool
	baseURL  string
	client   *http.Client
}

// TelegramConfig holds Telegram configuration
type TelegramConfig struct {
	BotToken string
	ChatID   string
	Enabled  bool
}

// NewTelegramNotifier creates a new Telegram notifier
func NewTelegramNotifier(config TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: config.BotToken,
		chatID:   config.ChatID,
		enabled:  config.Enabled && config.BotToken != "" && config.ChatID != "",
		baseURL:  "https://api.telegram.org",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

func (t *TelegramNotifier) Send(notification *Notification) error {
	if !t.enabled {
		return nil
	}

	message := fmt.Sprintf("*%s*\n\n%s", notification.Title, notification.Message)

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       message,
		"parse_mode": "Markdown",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	resp, err := t.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}

// =============================================================================
// DISCORD NOTIFIER
// =============================================================================

// DiscordNotifier sends notifications via Discord webhook
type DiscordNotifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// DiscordConfig holds Discord configuration
type DiscordConfig struct {
	WebhookURL string
	Enabled    bool
}

// NewDiscordNotifier creates a new Discord notifier
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: config.WebhookURL,
		enabled:    config.Enabled && config.WebhookURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordNotifier) Name() string {
	return "discord"
}

func (d *DiscordNotifier) IsEnabled() bool {
	return d.enabled
}

func (d *DiscordNotifier) Send(notification *Notification) error {
	if !d.enabled {
		return nil
	}

	// Create Discord embed
	color := 0x00FF00 // Green
	switch {
	case notification.Type == NotifyError:
		color = 0xFF0000 // Red
	case notification.Action == "sell":
		color = 0xFF0000
	case notification.Action == "hold":
		color = 0xAAAAAA
	}

	embed := map[string]interface{}{
		"title":       notification.Title,
		"description": notification.Message,
		"color":       color,
		"timestamp":   notification.Timestamp.Format(time.RFC3339),
	}

	// Add fields if available
	if notification.Symbol != "" {
		fields := []map[string]interface{}{
			{"name": "Symbol", "value": notification.Symbol, "inline": true},
		}
		if notification.Action != "" {
			fields = append(fields, map[string]interface{}{
				"name": "Action", "value": strings.ToUpper(notification.Action), "inline": true,
			})
		}
		if notification.Confidence > 0 {
			fields = append(fields, map[string]interface{}{
				"name": "Confidence", "value": fmt.Sprintf("%.0f%%", notification.Confidence), "inline": true,
			})
		}
		embed["fields"] = fields
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{embed},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal discord payload: %w", err)
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send discord message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord API returned status %d", resp.StatusCode)
	}

	return nil
}
