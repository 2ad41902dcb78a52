package llm

import (
	"testing"
)

func TestExtractJSONFenced(t *testing.T) {
	raw := "Here is my analysis:\n```json\n{\"action\": \"buy\", \"confidence\": 72}\n```\nGood luck!"

	got, ok := ExtractJSON(raw)
	if !ok {
		t.Fatal("expected extraction to succeed")
	}
	want := `{"action": "buy", "confidence": 72}`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractJSONFencedNoLanguageTag(t *testing.T) {
	raw := "```\n{\"action\": \"hold\"}\n```"

	got, ok := ExtractJSON(raw)
	if !ok {
		t.Fatal("expected extraction to succeed")
	}
	if got != `{"action": "hold"}` {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONBare(t *testing.T) {
	raw := `Based on the chart, {"action": "sell", "reasons": ["lower highs"]} is my call.`

	got, ok := ExtractJSON(raw)
	if !ok {
		t.Fatal("expected extraction to succeed")
	}
	if got != `{"action": "sell", "reasons": ["lower highs"]}` {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONNestedBraces(t *testing.T) {
	raw := `{"outer": {"inner": 1}, "note": "a } in a string"}`

	got, ok := ExtractJSON(raw)
	if !ok {
		t.Fatal("expected extraction to succeed")
	}
	if got != raw {
		t.Errorf("got %q, want full object", got)
	}
}

func TestExtractJSONEscapedQuote(t *testing.T) {
	raw := `prefix {"note": "she said \"buy\" loudly"} suffix`

	got, ok := ExtractJSON(raw)
	if !ok {
		t.Fatal("expected extraction to succeed")
	}
	if got != `{"note": "she said \"buy\" loudly"}` {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONNone(t *testing.T) {
	for _, raw := range []string{"", "no json here", "just [ a bracket"} {
		if _, ok := ExtractJSON(raw); ok {
			t.Errorf("expected failure for %q", raw)
		}
	}
}

func TestExtractJSONUnbalanced(t *testing.T) {
	if _, ok := ExtractJSON(`{"action": "buy"`); ok {
		t.Error("expected failure for unterminated object")
	}
}
