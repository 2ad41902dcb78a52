package calendar

import (
	"fmt"
	"time"
)

// mockTemplate describes one built-in event relative to the reference time
type mockTemplate struct {
	title    string
	country  string
	currency string
	impact   string
	forecast string
	previous string
	offset   time.Duration
}

var mockTemplates = []mockTemplate{
	{"CPI m/m", "US", "USD", ImpactHigh, "0.3%", "0.4%", 4 * time.Hour},
	{"Federal Funds Rate", "US", "USD", ImpactHigh, "5.50%", "5.50%", 26 * time.Hour},
	{"Unemployment Claims", "US", "USD", ImpactMedium, "218K", "222K", 9 * time.Hour},
	{"Crude Oil Inventories", "US", "USD", ImpactLow, "-1.2M", "0.8M", 13 * time.Hour},
	{"Main Refinancing Rate", "EU", "EUR", ImpactHigh, "4.25%", "4.25%", 7 * time.Hour},
	{"German Flash Manufacturing PMI", "DE", "EUR", ImpactMedium, "43.1", "42.7", -3 * time.Hour},
	{"BOE Official Bank Rate", "UK", "GBP", ImpactHigh, "5.25%", "5.25%", 31 * time.Hour},
	{"Retail Sales m/m", "UK", "GBP", ImpactMedium, "0.2%", "-0.1%", -6 * time.Hour},
	{"BOJ Policy Rate", "JP", "JPY", ImpactHigh, "-0.10%", "-0.10%", 18 * time.Hour},
	{"RBA Rate Statement", "AU", "AUD", ImpactMedium, "", "", 22 * time.Hour},
}

// MockEvents returns the built-in event set positioned around the
// reference time. Used when no feed URL is configured and as the fallback
// when the feed is unreachable.
func MockEvents(ref time.Time) []Event {
	events := make([]Event, 0, len(mockTemplates))
	for i, tpl := range mockTemplates {
		events = append(events, Event{
			ID:        fmt.Sprintf("mock-%d", i+1),
			Title:     tpl.title,
			Country:   tpl.country,
			Currency:  tpl.currency,
			Impact:    tpl.impact,
			Forecast:  tpl.forecast,
			Previous:  tpl.previous,
			Timestamp: ref.Add(tpl.offset).Truncate(time.Minute),
		})
	}
	return events
}
