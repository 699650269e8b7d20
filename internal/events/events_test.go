package events

import (
	"encoding/json"
	"testing"
)

func TestMakeEvent_Envelope(t *testing.T) {
	raw := MakeEvent("req-1", TypePostingCreated, 1, map[string]any{"id": 7})

	var e Event
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatal(err)
	}
	if e.Type != TypePostingCreated || e.Version != 1 || e.RequestID != "req-1" {
		t.Fatalf("envelope = %+v", e)
	}
	if string(e.Data) != `{"id":7}` {
		t.Fatalf("data = %s", e.Data)
	}
	if e.At.IsZero() {
		t.Fatal("missing timestamp")
	}
}

func TestMakeEvent_NilData(t *testing.T) {
	var e Event
	if err := json.Unmarshal([]byte(MakeEvent("", TypePing, 1, nil)), &e); err != nil {
		t.Fatal(err)
	}
	if len(e.Data) != 0 {
		t.Fatalf("data = %s", e.Data)
	}
}

func TestHub_PublishAndUnsubscribe(t *testing.T) {
	h := NewHub()
	a, b := h.Subscribe(), h.Subscribe()
	if h.Subscribers() != 2 {
		t.Fatalf("subscribers = %d", h.Subscribers())
	}

	h.Emit(TypeBatchStarted, map[string]string{"trigger": "manual"})
	for _, ch := range []chan string{a, b} {
		var e Event
		if err := json.Unmarshal([]byte(<-ch), &e); err != nil || e.Type != TypeBatchStarted {
			t.Fatalf("got %+v, %v", e, err)
		}
	}

	h.Unsubscribe(a)
	h.Unsubscribe(a)
	if _, ok := <-a; ok {
		t.Fatal("channel should be closed")
	}
	if h.Subscribers() != 1 {
		t.Fatalf("subscribers = %d", h.Subscribers())
	}
}

func TestHub_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	for i := 0; i < cap(ch)+5; i++ {
		h.Publish("x")
	}
	if len(ch) != cap(ch) {
		t.Fatalf("buffered = %d, want %d", len(ch), cap(ch))
	}
}
