package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"chartpilot/config"
	"chartpilot/internal/aikeys"
	"chartpilot/internal/logging"
)

// Signal actions
const (
	ActionBuy  = "buy"
	ActionSell = "sell"
	ActionHold = "hold"
)

// ErrProviderUnavailable is returned when the provider's circuit breaker
// is open. Handlers map it to 502.
var ErrProviderUnavailable = errors.New("provider temporarily unavailable")

// ErrNoAPIKey is returned when neither the user nor the platform has a key
// for the requested provider.
var ErrNoAPIKey = errors.New("no API key configured for provider")

// Signal is the parsed trading signal produced from a chart image
type Signal struct {
	Action     string   `json:"action"`
	Confidence int      `json:"confidence"`
	Entry      float64  `json:"entry,omitempty"`
	StopLoss   float64  `json:"stop_loss,omitempty"`
	TakeProfit float64  `json:"take_profit,omitempty"`
	Reasons    []string `json:"reasons,omitempty"`
	RiskNotes  string   `json:"risk_notes,omitempty"`
}

// NeutralSignal returns the hold fallback used when a provider cannot be
// reached on the automation path
func NeutralSignal(note string) *Signal {
	return &Signal{
		Action:     ActionHold,
		Confidence: 0,
		RiskNotes:  note,
	}
}

// rawSignal tolerates the field spellings and types models actually emit
type rawSignal struct {
	Action     string   `json:"action"`
	Confidence float64  `json:"confidence"`
	Entry      float64  `json:"entry"`
	StopLoss   float64  `json:"stopLoss"`
	TakeProfit float64  `json:"takeProfit"`
	Reasons    []string `json:"reasons"`
	RiskNotes  string   `json:"riskNotes"`
	AltStop    float64  `json:"stop_loss"`
	AltTake    float64  `json:"take_profit"`
	AltRisk    string   `json:"risk_notes"`
}

// ParseSignal extracts and normalizes a trading signal from free-form
// model output
func ParseSignal(raw string) (*Signal, error) {
	text, ok := ExtractJSON(raw)
	if !ok {
		return nil, fmt.Errorf("no JSON object in model output")
	}

	var parsed rawSignal
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse signal JSON: %w", err)
	}

	signal := &Signal{
		Action:     strings.ToLower(strings.TrimSpace(parsed.Action)),
		Entry:      parsed.Entry,
		StopLoss:   parsed.StopLoss,
		TakeProfit: parsed.TakeProfit,
		Reasons:    parsed.Reasons,
		RiskNotes:  parsed.RiskNotes,
	}
	if signal.StopLoss == 0 {
		signal.StopLoss = parsed.AltStop
	}
	if signal.TakeProfit == 0 {
		signal.TakeProfit = parsed.AltTake
	}
	if signal.RiskNotes == "" {
		signal.RiskNotes = parsed.AltRisk
	}

	switch signal.Action {
	case ActionBuy, ActionSell, ActionHold:
	default:
		return nil, fmt.Errorf("invalid action: %q", signal.Action)
	}

	confidence := int(math.Round(parsed.Confidence))
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}
	signal.Confidence = confidence

	normalizePriceMagnitudes(signal)

	return signal, nil
}

// normalizePriceMagnitudes rescales stop-loss and take-profit levels that
// come back off by a power of ten relative to the entry price. Models
// reading chart axes occasionally drop or add zeros; real levels sit within
// a factor of a few of the entry, so a round power-of-ten ratio is treated
// as a transcription error.
func normalizePriceMagnitudes(s *Signal) {
	if s.Entry <= 0 {
		return
	}
	s.StopLoss = rescaleToward(s.Entry, s.StopLoss)
	s.TakeProfit = rescaleToward(s.Entry, s.TakeProfit)
}

func rescaleToward(anchor, value float64) float64 {
	if value <= 0 {
		return value
	}
	k := math.Round(math.Log10(anchor / value))
	if k == 0 {
		return value
	}
	return value * math.Pow(10, k)
}

// Analyzer routes analysis requests to the selected provider with per-user
// keys, platform fallback keys, and a per-provider circuit breaker
type Analyzer struct {
	cfg      config.AIConfig
	keys     *aikeys.Service
	breakers *BreakerSet
}

// NewAnalyzer creates the provider router
func NewAnalyzer(cfg config.AIConfig, keys *aikeys.Service) *Analyzer {
	return &Analyzer{
		cfg:      cfg,
		keys:     keys,
		breakers: NewBreakerSet(cfg.BreakerThreshold, time.Duration(cfg.BreakerCooldown)*time.Second),
	}
}

// AnalyzeRequest describes one chart-analysis call
type AnalyzeRequest struct {
	UserID          string
	Selector        string
	Symbol          string
	Interval        string
	Image           *ImageInput
	CalendarSummary string
}

// AnalyzeResult carries the parsed signal and call metadata
type AnalyzeResult struct {
	Signal   *Signal
	Provider Provider
	Model    string
	Raw      string
	Latency  time.Duration
}

// Analyze dispatches a chart image to the selected provider and parses the
// returned trading signal
func (a *Analyzer) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	selector := req.Selector
	if selector == "" {
		selector = a.cfg.DefaultSelector
	}

	provider, model, err := ParseSelector(selector)
	if err != nil {
		return nil, err
	}

	breaker := a.breakers.Get(provider)
	if !breaker.Allow() {
		return nil, fmt.Errorf("%w: %s circuit open", ErrProviderUnavailable, provider)
	}

	apiKey, err := a.resolveKey(ctx, req.UserID, provider)
	if err != nil {
		return nil, err
	}

	client := NewClient(&ClientConfig{
		Provider:    provider,
		APIKey:      apiKey,
		Model:       model,
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: 0.3,
		Timeout:     time.Duration(a.cfg.RequestTimeout) * time.Second,
	})

	var userPrompt string
	var image *ImageInput
	if provider == ProviderDeepSeek {
		userPrompt = BuildTextOnlyPrompt(req.Symbol, req.Interval, req.CalendarSummary)
	} else {
		userPrompt = BuildUserPrompt(req.Symbol, req.Interval, req.CalendarSummary)
		image = req.Image
	}

	start := time.Now()
	raw, err := client.Complete(ctx, BuildSystemPrompt(), userPrompt, image)
	latency := time.Since(start)
	if err != nil {
		breaker.RecordFailure()
		logging.ProviderContext(string(provider), model).WithField("symbol", req.Symbol).WithError(err).Warn("provider call failed")
		return nil, fmt.Errorf("%s request failed: %w", provider, err)
	}
	breaker.RecordSuccess()

	signal, err := ParseSignal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", provider, err)
	}

	return &AnalyzeResult{
		Signal:   signal,
		Provider: provider,
		Model:    model,
		Raw:      raw,
		Latency:  latency,
	}, nil
}

// resolveKey prefers the user's stored key and falls back to the platform key
func (a *Analyzer) resolveKey(ctx context.Context, userID string, provider Provider) (string, error) {
	if a.keys != nil && userID != "" {
		result, err := a.keys.GetDecryptedKey(ctx, userID, string(provider))
		if err != nil {
			return "", err
		}
		if result != nil {
			return result.APIKey, nil
		}
	}

	platform := a.platformKey(provider)
	if platform == "" {
		return "", fmt.Errorf("%w: %s", ErrNoAPIKey, provider)
	}
	return platform, nil
}

func (a *Analyzer) platformKey(provider Provider) string {
	switch provider {
	case ProviderOpenAI:
		return a.cfg.OpenAIAPIKey
	case ProviderGemini:
		return a.cfg.GeminiAPIKey
	case ProviderClaude:
		return a.cfg.ClaudeAPIKey
	case ProviderDeepSeek:
		return a.cfg.DeepSeekAPIKey
	default:
		return ""
	}
}
