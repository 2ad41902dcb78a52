package automation

import (
	"fmt"
	"time"
)

// intervalTable maps the supported interval keys to their run spacing.
// Keys match the chart intervals TradingView uses.
var intervalTable = map[string]time.Duration{
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
}

// intervalOrder lists the supported keys from shortest to longest
var intervalOrder = []string{"15m", "30m", "1h", "4h", "1d"}

// IntervalDuration returns the spacing for an interval key
func IntervalDuration(key string) (time.Duration, bool) {
	d, ok := intervalTable[key]
	return d, ok
}

// ValidIntervalKeys returns the supported keys, shortest first
func ValidIntervalKeys() []string {
	keys := make([]string, len(intervalOrder))
	copy(keys, intervalOrder)
	return keys
}

// NextRun computes the next execution time for a schedule that last ran at
// the given moment
func NextRun(from time.Time, key string) (time.Time, error) {
	d, ok := intervalTable[key]
	if !ok {
		return time.Time{}, fmt.Errorf("unsupported interval %q", key)
	}
	return from.Add(d), nil
}

// MeetsMinimum reports whether the interval key is at least as long as the
// minimum key. Unknown keys never qualify.
func MeetsMinimum(key, minKey string) bool {
	d, ok := intervalTable[key]
	if !ok {
		return false
	}
	min, ok := intervalTable[minKey]
	if !ok {
		// No usable minimum configured, accept any supported key.
		return true
	}
	return d >= min
}
