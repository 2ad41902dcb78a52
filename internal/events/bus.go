package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventAnalysisCompleted   EventType = "ANALYSIS_COMPLETED"
	EventSnapshotCaptured    EventType = "SNAPSHOT_CAPTURED"
	EventAutomationRun       EventType = "AUTOMATION_RUN"
	EventScheduleDisabled    EventType = "SCHEDULE_DISABLED"
	EventSubscriptionUpdated EventType = "SUBSCRIPTION_UPDATED"
	EventUserLogout          EventType = "USER_LOGOUT"
	EventError               EventType = "ERROR"
)

// Event represents a system event. UserID scopes the event to its owner so
// the websocket hub only delivers it to that user's connections.
type Event struct {
	Type      EventType              `json:"type"`
	UserID    string                 `json:"user_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	// Set timestamp if not provided
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Notify specific subscribers
	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	// Notify all-event subscribers
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishAnalysisCompleted publishes an analysis completed event
func (eb *EventBus) PublishAnalysisCompleted(userID, analysisID, layoutID, symbol, action string, confidence float64) {
	eb.Publish(Event{
		Type:   EventAnalysisCompleted,
		UserID: userID,
		Data: map[string]interface{}{
			"analysis_id": analysisID,
			"layout_id":   layoutID,
			"symbol":      symbol,
			"action":      action,
			"confidence":  confidence,
		},
	})
}

// PublishSnapshotCaptured publishes a snapshot captured event
func (eb *EventBus) PublishSnapshotCaptured(userID, snapshotID, layoutID, status string) {
	eb.Publish(Event{
		Type:   EventSnapshotCaptured,
		UserID: userID,
		Data: map[string]interface{}{
			"snapshot_id": snapshotID,
			"layout_id":   layoutID,
			"status":      status,
		},
	})
}

// PublishAutomationRun publishes an automation run outcome event
func (eb *EventBus) PublishAutomationRun(userID, scheduleID, status string, durationMs int64) {
	eb.Publish(Event{
		Type:   EventAutomationRun,
		UserID: userID,
		Data: map[string]interface{}{
			"schedule_id": scheduleID,
			"status":      status,
			"duration_ms": durationMs,
		},
	})
}

// PublishScheduleDisabled publishes a schedule auto-disable event
func (eb *EventBus) PublishScheduleDisabled(userID, scheduleID string, failures int) {
	eb.Publish(Event{
		Type:   EventScheduleDisabled,
		UserID: userID,
		Data: map[string]interface{}{
			"schedule_id":          scheduleID,
			"consecutive_failures": failures,
		},
	})
}

// PublishSubscriptionUpdated publishes a billing tier change event
func (eb *EventBus) PublishSubscriptionUpdated(userID, tier, status string) {
	eb.Publish(Event{
		Type:   EventSubscriptionUpdated,
		UserID: userID,
		Data: map[string]interface{}{
			"tier":   tier,
			"status": status,
		},
	})
}

// PublishUserLogout publishes a user logout event
func (eb *EventBus) PublishUserLogout(userID string) {
	eb.Publish(Event{
		Type:   EventUserLogout,
		UserID: userID,
		Data:   map[string]interface{}{},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
