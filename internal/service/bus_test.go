package service

import "testing"

func TestEventBusFanOut(t *testing.T) {
	bus := NewEventBus()
	a := bus.Subscribe()
	b := bus.Subscribe()

	bus.Publish(Event{Kind: EventStatus, Message: "Sending API request"})

	for _, ch := range []chan Event{a, b} {
		if e := <-ch; e.Message != "Sending API request" {
			t.Fatalf("message=%q", e.Message)
		}
	}

	bus.Unsubscribe(a)
	if _, ok := <-a; ok {
		t.Fatal("unsubscribed channel still open")
	}
	bus.Publish(Event{Kind: EventCreated, Message: "Created 1 features", History: 3})
	if e := <-b; e.History != 3 {
		t.Fatalf("history=%d, want 3", e.History)
	}
	bus.Unsubscribe(b)
}

func TestEventBusDropsWhenFull(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	for i := 0; i < cap(ch)+5; i++ {
		bus.Publish(Event{Kind: EventStatus, Message: "tick"})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("buffered=%d, want %d", len(ch), cap(ch))
	}
}
