package llm

import (
	"testing"
	"time"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker("openai", 3, time.Minute)

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
		if !cb.Allow() {
			t.Fatalf("breaker opened after %d failures, threshold is 3", i+1)
		}
	}

	cb.RecordFailure()
	if cb.Allow() {
		t.Error("breaker should be open after reaching the threshold")
	}
	if cb.State() != StateOpen {
		t.Errorf("state = %v, want open", cb.State())
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("claude", 3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if !cb.Allow() {
		t.Error("failure count should reset after a success")
	}
}

func TestBreakerHalfOpenAfterCooldown(t *testing.T) {
	cb := NewCircuitBreaker("gemini", 1, 10*time.Millisecond)

	cb.RecordFailure()
	if cb.Allow() {
		t.Fatal("breaker should be open")
	}

	time.Sleep(20 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("breaker should allow a probe after the cooldown")
	}
	if cb.State() != StateHalfOpen {
		t.Errorf("state = %v, want half_open", cb.State())
	}

	// Probe failure reopens immediately
	cb.RecordFailure()
	if cb.Allow() {
		t.Error("breaker should reopen when the probe fails")
	}
}

func TestBreakerClosesAfterProbeSuccess(t *testing.T) {
	cb := NewCircuitBreaker("deepseek", 1, 10*time.Millisecond)

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("breaker should allow a probe")
	}

	cb.RecordSuccess()
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestBreakerSetPerProvider(t *testing.T) {
	bs := NewBreakerSet(1, time.Minute)

	bs.Get(ProviderOpenAI).RecordFailure()

	if bs.Get(ProviderOpenAI).Allow() {
		t.Error("openai breaker should be open")
	}
	if !bs.Get(ProviderClaude).Allow() {
		t.Error("claude breaker should be unaffected")
	}
	if bs.Get(ProviderOpenAI) != bs.Get(ProviderOpenAI) {
		t.Error("Get should return the same breaker instance")
	}
}
