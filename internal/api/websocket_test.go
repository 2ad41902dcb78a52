package api

import (
	"encoding/json"
	"testing"
	"time"

	"chartpilot/internal/events"
)

// registerTestClient attaches a pumpless client so delivered frames can be
// read straight off the send channel
func registerTestClient(t *testing.T, hub *UserHub, userID string) *wsClient {
	t.Helper()
	client := &wsClient{
		send:      make(chan []byte, 8),
		hub:       hub,
		userID:    userID,
		closeChan: make(chan struct{}),
	}
	hub.register <- client
	return client
}

func receive(t *testing.T, client *wsClient) events.Event {
	t.Helper()
	select {
	case data := <-client.send:
		var event events.Event
		if err := json.Unmarshal(data, &event); err != nil {
			t.Fatalf("failed to decode frame: %v", err)
		}
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return events.Event{}
	}
}

func expectNothing(t *testing.T, client *wsClient) {
	t.Helper()
	select {
	case data := <-client.send:
		t.Fatalf("unexpected frame delivered: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubDeliversToOwningUserOnly(t *testing.T) {
	bus := events.NewEventBus()
	hub := NewUserHub(bus)
	go hub.Run()

	alice := registerTestClient(t, hub, "alice")
	bob := registerTestClient(t, hub, "bob")

	bus.PublishAnalysisCompleted("alice", "analysis-1", "layout-1", "BTCUSDT", "buy", 80)

	event := receive(t, alice)
	if event.Type != events.EventAnalysisCompleted {
		t.Errorf("type = %s, want %s", event.Type, events.EventAnalysisCompleted)
	}
	if event.Data["analysis_id"] != "analysis-1" {
		t.Errorf("analysis_id = %v, want analysis-1", event.Data["analysis_id"])
	}

	expectNothing(t, bob)
}

func TestHubBroadcastsUnscopedEvents(t *testing.T) {
	bus := events.NewEventBus()
	hub := NewUserHub(bus)
	go hub.Run()

	alice := registerTestClient(t, hub, "alice")
	bob := registerTestClient(t, hub, "bob")

	bus.PublishError("scheduler", "poll failed", nil)

	for _, client := range []*wsClient{alice, bob} {
		event := receive(t, client)
		if event.Type != events.EventError {
			t.Errorf("type = %s, want %s", event.Type, events.EventError)
		}
	}
}

func TestHubMultipleConnectionsPerUser(t *testing.T) {
	hub := NewUserHub(nil)
	go hub.Run()

	first := registerTestClient(t, hub, "alice")
	second := registerTestClient(t, hub, "alice")

	hub.Dispatch(events.Event{
		Type:      events.EventAutomationRun,
		UserID:    "alice",
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"schedule_id": "sched-1"},
	})

	for _, client := range []*wsClient{first, second} {
		event := receive(t, client)
		if event.Data["schedule_id"] != "sched-1" {
			t.Errorf("schedule_id = %v, want sched-1", event.Data["schedule_id"])
		}
	}

	if got := hub.UserConnectionCount("alice"); got != 2 {
		t.Errorf("UserConnectionCount = %d, want 2", got)
	}
}

func TestHubUnregisterStopsDelivery(t *testing.T) {
	hub := NewUserHub(nil)
	go hub.Run()

	client := registerTestClient(t, hub, "alice")
	hub.unregister <- client

	// Wait for the hub to process the unregister
	deadline := time.Now().Add(time.Second)
	for hub.ConnectionCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client was not unregistered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Dispatch(events.Event{
		Type:   events.EventAutomationRun,
		UserID: "alice",
		Data:   map[string]interface{}{},
	})

	// The send channel is closed on unregister; nothing new may arrive
	select {
	case data, ok := <-client.send:
		if ok {
			t.Fatalf("unexpected frame after unregister: %s", data)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubDropsConnectionsOnLogout(t *testing.T) {
	bus := events.NewEventBus()
	hub := NewUserHub(bus)
	go hub.Run()

	registerTestClient(t, hub, "alice")
	registerTestClient(t, hub, "alice")
	registerTestClient(t, hub, "bob")

	bus.PublishUserLogout("alice")

	deadline := time.Now().Add(time.Second)
	for hub.UserConnectionCount("alice") != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("alice still has %d connections", hub.UserConnectionCount("alice"))
		}
		time.Sleep(5 * time.Millisecond)
	}

	if got := hub.UserConnectionCount("bob"); got != 1 {
		t.Errorf("bob UserConnectionCount = %d, want 1", got)
	}
}
