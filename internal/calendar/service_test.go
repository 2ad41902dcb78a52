package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"chartpilot/config"
)

func TestCurrenciesForSymbol(t *testing.T) {
	tests := []struct {
		symbol string
		want   []string
	}{
		{"BINANCE:BTCUSDT", []string{"USD"}},
		{"BINANCE:ETHUSDC", []string{"USD"}},
		{"FX:EURUSD", []string{"USD", "EUR"}},
		{"FX:GBPJPY", []string{"JPY", "GBP"}},
		{"OANDA:AUDCAD", []string{"CAD", "AUD"}},
		{"NASDAQ:AAPL", []string{"USD"}},
		{"SOLUSDT", []string{"USD"}},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			got := CurrenciesForSymbol(tt.symbol)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterEvents(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{ID: "1", Currency: "USD", Timestamp: now.Add(2 * time.Hour)},
		{ID: "2", Currency: "EUR", Timestamp: now.Add(3 * time.Hour)},
		{ID: "3", Currency: "USD", Timestamp: now.Add(30 * time.Hour)}, // outside window
		{ID: "4", Currency: "usd", Timestamp: now.Add(-5 * time.Hour)},
		{ID: "5", Currency: "JPY", Timestamp: now.Add(time.Hour)},
	}

	got := FilterEvents(events, now.Add(-24*time.Hour), now.Add(24*time.Hour), []string{"USD", "EUR"})

	var ids []string
	for _, e := range got {
		ids = append(ids, e.ID)
	}
	// Sorted by timestamp
	want := []string{"4", "1", "2"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
}

func TestFilterEventsNoCurrencyMatchesAll(t *testing.T) {
	now := time.Now()
	events := []Event{
		{ID: "1", Currency: "USD", Timestamp: now},
		{ID: "2", Currency: "JPY", Timestamp: now},
	}

	got := FilterEvents(events, now.Add(-time.Hour), now.Add(time.Hour), nil)
	if len(got) != 2 {
		t.Errorf("got %d events, want 2", len(got))
	}
}

func TestGetContextFromFeed(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	feed := []Event{
		{ID: "cpi", Title: "CPI m/m", Currency: "USD", Impact: ImpactHigh, Timestamp: now.Add(4 * time.Hour)},
		{ID: "boj", Title: "BOJ Rate", Currency: "JPY", Impact: ImpactHigh, Timestamp: now.Add(5 * time.Hour)},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(feed)
	}))
	defer server.Close()

	svc := NewService(config.CalendarConfig{
		Enabled:     true,
		FeedURL:     server.URL,
		WindowHours: 24,
	}, nil)
	svc.now = func() time.Time { return now }

	events := svc.GetContext(context.Background(), "BINANCE:BTCUSDT")
	if len(events) != 1 || events[0].ID != "cpi" {
		t.Errorf("events = %+v, want only the USD event", events)
	}
}

func TestGetContextFeedFailureFallsBackToMock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	svc := NewService(config.CalendarConfig{
		Enabled:     true,
		FeedURL:     server.URL,
		WindowHours: 24,
	}, nil)

	events := svc.GetContext(context.Background(), "FX:EURUSD")
	if len(events) == 0 {
		t.Error("expected mock events on feed failure")
	}
	for _, e := range events {
		if e.Currency != "USD" && e.Currency != "EUR" {
			t.Errorf("unexpected currency %s in filtered mock events", e.Currency)
		}
	}
}

func TestGetContextDisabled(t *testing.T) {
	svc := NewService(config.CalendarConfig{Enabled: false}, nil)
	if events := svc.GetContext(context.Background(), "BINANCE:BTCUSDT"); events != nil {
		t.Errorf("expected nil events when disabled, got %v", events)
	}
}

func TestMockEventsWithinWindow(t *testing.T) {
	now := time.Now()
	events := MockEvents(now)
	if len(events) != len(mockTemplates) {
		t.Fatalf("got %d events, want %d", len(events), len(mockTemplates))
	}

	filtered := FilterEvents(events, now.Add(-24*time.Hour), now.Add(24*time.Hour), []string{"USD"})
	if len(filtered) == 0 {
		t.Error("expected USD mock events inside a 24h window")
	}
}

func TestSummary(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{Title: "CPI m/m", Currency: "USD", Impact: ImpactHigh, Forecast: "0.3%", Previous: "0.4%", Timestamp: now},
	}

	got := Summary(events)
	if !strings.Contains(got, "CPI m/m") || !strings.Contains(got, "forecast 0.3%") {
		t.Errorf("summary = %q", got)
	}

	if Summary(nil) != "" {
		t.Error("empty event list should produce empty summary")
	}
}

func TestSummaryTruncates(t *testing.T) {
	now := time.Now()
	var events []Event
	for i := 0; i < 8; i++ {
		events = append(events, Event{Title: "Event", Currency: "USD", Impact: ImpactLow, Timestamp: now})
	}

	got := Summary(events)
	if !strings.Contains(got, "3 more events") {
		t.Errorf("summary should truncate: %q", got)
	}
}
