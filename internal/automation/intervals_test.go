package automation

import (
	"testing"
	"time"
)

func TestIntervalDuration(t *testing.T) {
	tests := []struct {
		key  string
		want time.Duration
		ok   bool
	}{
		{"15m", 15 * time.Minute, true},
		{"30m", 30 * time.Minute, true},
		{"1h", time.Hour, true},
		{"4h", 4 * time.Hour, true},
		{"1d", 24 * time.Hour, true},
		{"5m", 0, false},
		{"1w", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := IntervalDuration(tt.key)
			if ok != tt.ok || got != tt.want {
				t.Errorf("IntervalDuration(%q) = (%v, %v), want (%v, %v)", tt.key, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestNextRun(t *testing.T) {
	from := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	next, err := NextRun(from, "4h")
	if err != nil {
		t.Fatalf("NextRun() error = %v", err)
	}
	if want := from.Add(4 * time.Hour); !next.Equal(want) {
		t.Errorf("NextRun() = %v, want %v", next, want)
	}

	if _, err := NextRun(from, "2h"); err == nil {
		t.Error("expected error for unsupported interval")
	}
}

func TestMeetsMinimum(t *testing.T) {
	tests := []struct {
		key    string
		minKey string
		want   bool
	}{
		{"1h", "1h", true},
		{"4h", "1h", true},
		{"15m", "1h", false},
		{"1d", "15m", true},
		{"15m", "15m", true},
		{"bogus", "15m", false},
		{"1h", "", true}, // no minimum configured
	}

	for _, tt := range tests {
		if got := MeetsMinimum(tt.key, tt.minKey); got != tt.want {
			t.Errorf("MeetsMinimum(%q, %q) = %v, want %v", tt.key, tt.minKey, got, tt.want)
		}
	}
}

func TestValidIntervalKeysIsCopy(t *testing.T) {
	keys := ValidIntervalKeys()
	if len(keys) != 5 || keys[0] != "15m" || keys[4] != "1d" {
		t.Fatalf("ValidIntervalKeys() = %v", keys)
	}
	keys[0] = "mutated"
	if ValidIntervalKeys()[0] != "15m" {
		t.Error("mutating the returned slice should not affect the table")
	}
}
