package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"chartpilot/config"
	"chartpilot/internal/cache"
	"chartpilot/internal/logging"
)

// Event impact levels
const (
	ImpactLow    = "low"
	ImpactMedium = "medium"
	ImpactHigh   = "high"
)

// Event represents one economic calendar entry
type Event struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Country   string    `json:"country"`
	Currency  string    `json:"currency"`
	Impact    string    `json:"impact"`
	Actual    string    `json:"actual,omitempty"`
	Forecast  string    `json:"forecast,omitempty"`
	Previous  string    `json:"previous,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Service fetches and filters economic calendar events. A configured feed
// URL is fetched over HTTP; without one the built-in mock data is served.
// Filtered windows are cached in Redis when available.
type Service struct {
	cfg        config.CalendarConfig
	cache      *cache.CacheService
	httpClient *http.Client
	logger     *logging.Logger

	// now is swappable for tests
	now func() time.Time
}

// NewService creates a new calendar service. The cache may be nil.
func NewService(cfg config.CalendarConfig, cacheService *cache.CacheService) *Service {
	return &Service{
		cfg:   cfg,
		cache: cacheService,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logging.WithComponent("calendar"),
		now:    time.Now,
	}
}

// GetContext returns the events relevant to a symbol within the configured
// window around now. Fetch failures degrade to the built-in mock data; this
// method never fails an analysis.
func (s *Service) GetContext(ctx context.Context, symbol string) []Event {
	if !s.cfg.Enabled {
		return nil
	}

	now := s.now()
	currencies := CurrenciesForSymbol(symbol)
	windowHours := s.cfg.WindowHours
	if windowHours <= 0 {
		windowHours = 24
	}
	window := time.Duration(windowHours) * time.Hour

	cacheKey := s.cacheKey(currencies, now)
	if s.cache != nil {
		var cached []Event
		if err := s.cache.GetJSON(ctx, cacheKey, &cached); err == nil {
			return cached
		}
	}

	events := s.fetchEvents(ctx, now)
	filtered := FilterEvents(events, now.Add(-window), now.Add(window), currencies)

	if s.cache != nil {
		ttl := time.Duration(s.cfg.CacheTTL) * time.Second
		if ttl <= 0 {
			ttl = cache.DefaultCalendarTTL
		}
		if err := s.cache.SetJSON(ctx, cacheKey, filtered, ttl); err != nil {
			s.logger.WithError(err).Debug("calendar cache write skipped")
		}
	}

	return filtered
}

// fetchEvents loads the raw event list from the feed, falling back to mock
// data when no feed is configured or the fetch fails
func (s *Service) fetchEvents(ctx context.Context, now time.Time) []Event {
	if s.cfg.FeedURL == "" {
		return MockEvents(now)
	}

	events, err := s.fetchFeed(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("calendar feed fetch failed, using mock data")
		return MockEvents(now)
	}
	return events
}

func (s *Service) fetchFeed(ctx context.Context) ([]Event, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", s.cfg.FeedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed: %w", err)
	}

	var events []Event
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	return events, nil
}

func (s *Service) cacheKey(currencies []string, now time.Time) string {
	// Window key buckets by hour so cache entries roll over naturally
	return cache.CalendarKey(strings.Join(currencies, ","), now.UTC().Format("2006010215"))
}

// FilterEvents returns events inside [from, to] matching any of the given
// currencies, ordered by time. An empty currency list matches everything.
func FilterEvents(events []Event, from, to time.Time, currencies []string) []Event {
	currencySet := make(map[string]bool, len(currencies))
	for _, c := range currencies {
		currencySet[strings.ToUpper(c)] = true
	}

	var filtered []Event
	for _, event := range events {
		if event.Timestamp.Before(from) || event.Timestamp.After(to) {
			continue
		}
		if len(currencySet) > 0 && !currencySet[strings.ToUpper(event.Currency)] {
			continue
		}
		filtered = append(filtered, event)
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.Before(filtered[j].Timestamp)
	})

	return filtered
}

// fiatCodes recognised in trading pair symbols, longest first so USDT wins
// over USD when scanning suffixes
var fiatCodes = []string{"USDT", "USDC", "USD", "EUR", "GBP", "JPY", "AUD", "CAD", "CHF", "NZD", "CNY"}

// CurrenciesForSymbol extracts the fiat currencies relevant to a trading
// symbol. Stablecoin quotes map to USD. Symbols with no recognisable fiat
// leg default to USD, since dollar macro events dominate crypto markets.
func CurrenciesForSymbol(symbol string) []string {
	pair := strings.ToUpper(symbol)
	if idx := strings.LastIndex(pair, ":"); idx != -1 {
		pair = pair[idx+1:]
	}

	var result []string
	seen := make(map[string]bool)
	add := func(code string) {
		if code == "USDT" || code == "USDC" {
			code = "USD"
		}
		if !seen[code] {
			seen[code] = true
			result = append(result, code)
		}
	}

	// Quote currency from the suffix
	rest := pair
	for _, code := range fiatCodes {
		if strings.HasSuffix(rest, code) && len(rest) > len(code) {
			add(code)
			rest = strings.TrimSuffix(rest, code)
			break
		}
	}
	// Base currency, for forex pairs such as EURUSD
	for _, code := range fiatCodes {
		if rest == code {
			add(code)
			break
		}
	}

	if len(result) == 0 {
		result = append(result, "USD")
	}
	return result
}

// Summary renders events as a short text block for LLM prompts
func Summary(events []Event) string {
	if len(events) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, event := range events {
		if i >= 5 {
			fmt.Fprintf(&sb, "... and %d more events\n", len(events)-i)
			break
		}
		fmt.Fprintf(&sb, "- %s [%s, %s impact] at %s",
			event.Title, event.Currency, event.Impact,
			event.Timestamp.UTC().Format("Jan 2 15:04 UTC"))
		if event.Forecast != "" {
			fmt.Fprintf(&sb, " (forecast %s, previous %s)", event.Forecast, event.Previous)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
