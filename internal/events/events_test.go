package events

import (
	"encoding/json"
	"testing"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	handler := func(event *Event) error {
		received = event
		callCount++
		return nil
	}

	bus.Subscribe(EventActionQueued, handler)

	payload := ActionEventPayload{ActionID: "a1", ActionType: "create_todo"}
	if err := bus.PublishJSON(EventActionQueued, payload); err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
	if received.Type != EventActionQueued {
		t.Errorf("expected type %s, got %s", EventActionQueued, received.Type)
	}
	if received.CreatedAt.IsZero() {
		t.Errorf("expected CreatedAt to be set")
	}

	var decoded ActionEventPayload
	if err := json.Unmarshal(received.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if decoded.ActionID != "a1" {
		t.Errorf("expected action_id a1, got %s", decoded.ActionID)
	}

	// Other event types do not reach the handler.
	_ = bus.PublishJSON(EventSyncStarted, SyncEventPayload{Pending: 1})
	if callCount != 1 {
		t.Errorf("expected handler to ignore other types, got %d calls", callCount)
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus()

	var first, second int
	id1 := bus.Subscribe(EventSyncCompleted, func(*Event) error { first++; return nil })
	bus.Subscribe(EventSyncCompleted, func(*Event) error { second++; return nil })

	bus.Publish(&Event{Type: EventSyncCompleted})
	bus.Unsubscribe(id1)
	bus.Unsubscribe(id1)
	bus.Unsubscribe(999)
	bus.Publish(&Event{Type: EventSyncCompleted})

	if first != 1 {
		t.Errorf("expected unsubscribed handler to run once, got %d", first)
	}
	if second != 2 {
		t.Errorf("expected remaining handler to run twice, got %d", second)
	}
}

func TestPublishJSONNilBus(t *testing.T) {
	var bus *EventBus
	if err := bus.PublishJSON(EventSyncFailed, nil); err != nil {
		t.Fatalf("nil bus should be a no-op, got %v", err)
	}
}

func TestPublishJSONMarshalError(t *testing.T) {
	bus := NewEventBus()
	if err := bus.PublishJSON(EventSyncFailed, make(chan int)); err == nil {
		t.Fatalf("expected marshal error")
	}
}
