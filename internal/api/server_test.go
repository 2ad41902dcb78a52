package api

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"chartpilot/internal/automation"
	"chartpilot/internal/billing"
	"chartpilot/internal/journal"
	"chartpilot/internal/snapshot"
)

func TestRateLimiterAllow(t *testing.T) {
	limiter := NewRateLimiter(time.Minute)

	for i := 0; i < 5; i++ {
		if !limiter.Allow("user-1", 5) {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if limiter.Allow("user-1", 5) {
		t.Error("sixth request should be rejected")
	}

	// A different key has its own budget
	if !limiter.Allow("user-2", 5) {
		t.Error("different key should be allowed")
	}
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	limiter := NewRateLimiter(50 * time.Millisecond)

	if !limiter.Allow("user-1", 1) {
		t.Fatal("first request should be allowed")
	}
	if limiter.Allow("user-1", 1) {
		t.Fatal("second request inside window should be rejected")
	}

	time.Sleep(60 * time.Millisecond)

	if !limiter.Allow("user-1", 1) {
		t.Error("request after window expiry should be allowed")
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"trade not found", journal.ErrTradeNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"schedule not found", automation.ErrScheduleNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"validation", journal.ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"automation not allowed", automation.ErrAutomationNotAllowed, http.StatusForbidden, "PLAN_LIMIT"},
		{"schedule limit", automation.ErrScheduleLimit, http.StatusForbidden, "PLAN_LIMIT"},
		{"capture failed", snapshot.ErrCaptureFailed, http.StatusBadGateway, "CAPTURE_FAILED"},
		{"wrapped capture failed", errors.Join(snapshot.ErrCaptureFailed, errors.New("timeout")), http.StatusBadGateway, "CAPTURE_FAILED"},
		{"billing disabled", billing.ErrNotConfigured, http.StatusServiceUnavailable, "BILLING_DISABLED"},
		{"bad signature", billing.ErrInvalidSignature, http.StatusBadRequest, "INVALID_SIGNATURE"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := statusForError(tt.err)
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
		})
	}
}
