package llm

import (
	"fmt"
	"strings"
)

// systemPrompt instructs the model to answer with a strict JSON signal
const systemPrompt = `You are a technical analysis assistant for retail traders.
You are shown a candlestick chart image for a single symbol and timeframe.
Respond with a single JSON object and nothing else, in this exact shape:

{
  "action": "buy" | "sell" | "hold",
  "confidence": <integer 0-100>,
  "entry": <number>,
  "stopLoss": <number>,
  "takeProfit": <number>,
  "reasons": ["<short reason>", ...],
  "riskNotes": "<one sentence on risk>"
}

Rules:
- Base the signal only on what is visible in the chart and the provided context.
- Price levels must match the magnitude of prices visible on the chart axis.
- When the chart is unclear or signals conflict, use "hold" with low confidence.
- Do not add commentary outside the JSON object.`

// BuildSystemPrompt returns the shared signal-generation system prompt
func BuildSystemPrompt() string {
	return systemPrompt
}

// BuildUserPrompt builds the per-request prompt attached to the chart image
func BuildUserPrompt(symbol, interval, calendarSummary string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze this %s chart on the %s timeframe.", symbol, interval)
	if calendarSummary != "" {
		sb.WriteString("\n\nUpcoming economic events to factor into risk:\n")
		sb.WriteString(calendarSummary)
	}
	sb.WriteString("\n\nReturn the JSON signal object.")
	return sb.String()
}

// BuildTextOnlyPrompt is used for providers without vision support. The
// model is told the image is unavailable so it answers conservatively.
func BuildTextOnlyPrompt(symbol, interval, calendarSummary string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "No chart image is available. Assess %s on the %s timeframe from general market structure knowledge only.", symbol, interval)
	if calendarSummary != "" {
		sb.WriteString("\n\nUpcoming economic events to factor into risk:\n")
		sb.WriteString(calendarSummary)
	}
	sb.WriteString("\n\nBe conservative: prefer \"hold\" with low confidence. Return the JSON signal object.")
	return sb.String()
}
