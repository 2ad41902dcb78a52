package logging

import (
	"context"
	"encoding/hex"
	"testing"
)

func TestGenerateTraceID(t *testing.T) {
	a := GenerateTraceID()
	b := GenerateTraceID()

	if a == "" || b == "" {
		t.Fatal("trace ID must not be empty")
	}
	if a == b {
		t.Fatalf("trace IDs should differ, got %q twice", a)
	}
	if raw, err := hex.DecodeString(a); err == nil {
		allZero := true
		for _, c := range raw {
			if c != 0 {
				allZero = false
				break
			}
		}
		if allZero {
			t.Fatal("trace ID must not be all zeros")
		}
	}
}

func TestContextRoundTrip(t *testing.T) {
	l := Default().WithComponent("roundtrip")
	ctx := NewContext(context.Background(), l)

	if got := FromContext(ctx); got != l {
		t.Fatal("expected the stored logger back")
	}
	if got := FromContext(context.Background()); got == nil {
		t.Fatal("expected the default logger for a bare context")
	}
}
