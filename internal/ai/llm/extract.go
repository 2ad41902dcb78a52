package llm

import (
	"strings"
)

const codeFence = "```"

// ExtractJSON pulls a JSON object out of free-form model text. Fenced code
// blocks are tried first, then the first bracket-balanced object in the raw
// text. Returns false when no candidate object is found.
func ExtractJSON(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if obj, ok := extractFromFence(raw); ok {
		return obj, true
	}
	return extractJSONObject(raw)
}

func extractFromFence(raw string) (string, bool) {
	start := strings.Index(raw, codeFence)
	if start == -1 {
		return "", false
	}
	rest := raw[start+len(codeFence):]
	end := strings.Index(rest, codeFence)
	if end == -1 {
		return "", false
	}
	block := rest[:end]
	block = strings.TrimLeft(block, "\r\n")
	// Drop a language tag line such as "json"
	if idx := strings.Index(block, "\n"); idx != -1 {
		first := strings.TrimSpace(block[:idx])
		if first != "" && !strings.ContainsAny(first, "[{") {
			block = block[idx+1:]
		}
	}
	block = strings.TrimSpace(block)
	if block == "" {
		return "", false
	}
	if obj, ok := extractJSONObject(block); ok {
		return obj, true
	}
	return block, true
}

// extractJSONObject scans for the first brace-balanced object, tracking
// string literals so braces inside strings do not affect the depth count
func extractJSONObject(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escape := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(raw[start : i+1]), true
			}
		}
	}
	return "", false
}
