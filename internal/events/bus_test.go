package events

import (
	"testing"
	"time"

	"trade-signal-engine/internal/market"
	"trade-signal-engine/internal/pipeline"
)

func waitFor(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
		return Event{}
	}
}

func TestSubscribeReceivesMatchingType(t *testing.T) {
	bus := NewBus()
	received := make(chan Event, 1)
	bus.Subscribe(EventSignalGenerated, func(e Event) { received <- e })

	bus.Publish(Event{Type: EventSignalGenerated, Data: map[string]interface{}{"instrument": "BTCUSDT"}})

	event := waitFor(t, received)
	if event.Data["instrument"] != "BTCUSDT" {
		t.Errorf("Unexpected event data: %v", event.Data)
	}
	if event.Timestamp.IsZero() {
		t.Error("Expected timestamp to be filled in")
	}
}

func TestSubscribeIgnoresOtherTypes(t *testing.T) {
	bus := NewBus()
	received := make(chan Event, 1)
	bus.Subscribe(EventSignalGenerated, func(e Event) { received <- e })

	bus.Publish(Event{Type: EventError})

	select {
	case <-received:
		t.Fatal("Subscriber received an event of another type")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	bus := NewBus()
	received := make(chan Event, 2)
	bus.SubscribeAll(func(e Event) { received <- e })

	bus.Publish(Event{Type: EventEngineStarted})
	bus.Publish(Event{Type: EventError})

	seen := map[EventType]bool{}
	seen[waitFor(t, received).Type] = true
	seen[waitFor(t, received).Type] = true
	if !seen[EventEngineStarted] || !seen[EventError] {
		t.Errorf("Expected both event types, got %v", seen)
	}
}

func TestPublishSignalCarriesFullSignal(t *testing.T) {
	bus := NewBus()
	received := make(chan Event, 1)
	bus.Subscribe(EventSignalGenerated, func(e Event) { received <- e })

	signal := &pipeline.Signal{
		Instrument: "EURUSD",
		Timeframe:  "1h",
		Decision:   market.DecisionBuy,
		Confidence: 82,
	}
	bus.PublishSignal(signal)

	event := waitFor(t, received)
	got, ok := SignalFromEvent(event)
	if !ok {
		t.Fatal("Expected full signal in event data")
	}
	if got != signal {
		t.Error("Expected the same signal pointer")
	}
	if event.Data["decision"] != "BUY" {
		t.Errorf("Unexpected decision summary: %v", event.Data["decision"])
	}
}
