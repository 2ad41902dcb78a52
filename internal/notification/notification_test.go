package notification

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordingNotifier struct {
	name     string
	enabled  bool
	received []*Notification
	err      error
}

func (r *recordingNotifier) Send(n *Notification) error {
	r.received = append(r.received, n)
	return r.err
}
func (r *recordingNotifier) Name() string    { return r.name }
func (r *recordingNotifier) IsEnabled() bool { return r.enabled }

func TestManagerFanOut(t *testing.T) {
	m := NewManager()
	active := &recordingNotifier{name: "a", enabled: true}
	inactive := &recordingNotifier{name: "b", enabled: false}
	m.AddNotifier(active)
	m.AddNotifier(inactive)

	err := m.SendAnalysisAlert("BINANCE:BTCUSDT", "4h", "buy", 72, 43250.5, 42800, 44500, []string{"breakout"})
	if err != nil {
		t.Fatalf("SendAnalysisAlert failed: %v", err)
	}

	if len(active.received) != 1 {
		t.Fatalf("active notifier received %d notifications", len(active.received))
	}
	if len(inactive.received) != 0 {
		t.Error("disabled notifier should not receive notifications")
	}

	n := active.received[0]
	if n.Type != NotifySignal || n.Action != "buy" {
		t.Errorf("notification = %+v", n)
	}
	if !strings.Contains(n.Message, "SL: 42800.0000") {
		t.Errorf("message = %q", n.Message)
	}
	if !strings.Contains(n.Message, "breakout") {
		t.Errorf("message missing reasons: %q", n.Message)
	}
}

func TestTelegramNotifierSend(t *testing.T) {
	var gotPath string
	var gotPayload map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	tn := NewTelegramNotifier(TelegramConfig{BotToken: "token123", ChatID: "chat456", Enabled: true})
	tn.baseURL = server.URL

	err := tn.Send(&Notification{Title: "Signal", Message: "BUY BTCUSDT"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if gotPath != "/bottoken123/sendMessage" {
		t.Errorf("path = %q", gotPath)
	}
	if gotPayload["chat_id"] != "chat456" {
		t.Errorf("chat_id = %v", gotPayload["chat_id"])
	}
	if text, _ := gotPayload["text"].(string); !strings.Contains(text, "BUY BTCUSDT") {
		t.Errorf("text = %q", text)
	}
}

func TestTelegramNotifierAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	tn := NewTelegramNotifier(TelegramConfig{BotToken: "t", ChatID: "c", Enabled: true})
	tn.baseURL = server.URL

	if err := tn.Send(&Notification{Title: "x"}); err == nil {
		t.Error("expected error on non-200 response")
	}
}

func TestTelegramNotifierDisabledWithoutCredentials(t *testing.T) {
	tn := NewTelegramNotifier(TelegramConfig{Enabled: true})
	if tn.IsEnabled() {
		t.Error("notifier without credentials should be disabled")
	}
	if err := tn.Send(&Notification{Title: "x"}); err != nil {
		t.Errorf("disabled notifier should be a no-op, got %v", err)
	}
}

func TestDiscordNotifierSend(t *testing.T) {
	var gotPayload map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	dn := NewDiscordNotifier(DiscordConfig{WebhookURL: server.URL, Enabled: true})

	err := dn.Send(&Notification{
		Type:       NotifySignal,
		Title:      "Signal: BTCUSDT",
		Message:    "body",
		Symbol:     "BTCUSDT",
		Action:     "sell",
		Confidence: 64,
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	embeds, ok := gotPayload["embeds"].([]interface{})
	if !ok || len(embeds) != 1 {
		t.Fatalf("embeds = %v", gotPayload["embeds"])
	}
	embed := embeds[0].(map[string]interface{})
	if embed["title"] != "Signal: BTCUSDT" {
		t.Errorf("title = %v", embed["title"])
	}
	// Sell signals render red
	if color, _ := embed["color"].(float64); int(color) != 0xFF0000 {
		t.Errorf("color = %v", embed["color"])
	}
}

func TestManagerReportsLastError(t *testing.T) {
	m := NewManager()
	failing := &recordingNotifier{name: "bad", enabled: true, err: errSend}
	ok := &recordingNotifier{name: "good", enabled: true}
	m.AddNotifier(failing)
	m.AddNotifier(ok)

	if err := m.SendError("title", "msg"); err == nil {
		t.Error("expected propagated notifier error")
	}
	// Both notifiers are still attempted
	if len(ok.received) != 1 {
		t.Error("second notifier should still receive the notification")
	}
}

var errSend = &sendError{}

type sendError struct{}

func (*sendError) Error() string { return "send failed" }
