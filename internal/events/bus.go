// Package events is the in-process pub/sub bus for signal lifecycle events.
// Publishing never blocks the producer; subscribers run on their own
// goroutines and must tolerate concurrent delivery.
package events

import (
	"sync"
	"time"

	"trade-signal-engine/internal/calibrate"
	"trade-signal-engine/internal/pipeline"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventSignalGenerated      EventType = "SIGNAL_GENERATED"
	EventGateRejected         EventType = "GATE_REJECTED"
	EventCalibrationCompleted EventType = "CALIBRATION_COMPLETED"
	EventThresholdsUpdated    EventType = "THRESHOLDS_UPDATED"
	EventEngineStarted        EventType = "ENGINE_STARTED"
	EventEngineStopped        EventType = "ENGINE_STOPPED"
	EventError                EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// Bus manages event publishing and subscriptions
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a subscriber for a specific event type
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	for _, sub := range b.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishSignal publishes a signal generated event. The full signal rides
// along under "signal" for subscribers that need more than the summary.
func (b *Bus) PublishSignal(signal *pipeline.Signal) {
	b.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"instrument": signal.Instrument,
			"timeframe":  signal.Timeframe,
			"decision":   string(signal.Decision),
			"confidence": signal.Confidence,
			"signal":     signal,
		},
	})
}

// PublishCalibration publishes a calibration completed event
func (b *Bus) PublishCalibration(metrics *calibrate.PerformanceMetrics) {
	b.Publish(Event{
		Type: EventCalibrationCompleted,
		Data: map[string]interface{}{
			"total_signals": metrics.TotalSignals,
			"accuracy":      metrics.Accuracy,
			"adjusted":      metrics.Adjusted,
		},
	})
}

// PublishError publishes an error event
func (b *Bus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	b.Publish(Event{Type: EventError, Data: data})
}

// SignalFromEvent extracts the full signal from a SIGNAL_GENERATED event
func SignalFromEvent(event Event) (*pipeline.Signal, bool) {
	signal, ok := event.Data["signal"].(*pipeline.Signal)
	return signal, ok
}
