package events

import "testing"

func TestChannelFor_IsPerCall(t *testing.T) {
	a := ChannelFor("call-a")
	b := ChannelFor("call-b")
	if a == b {
		t.Fatalf("channels must be per-call, got %q twice", a)
	}
	if a != "call_updates:call-a" {
		t.Fatalf("unexpected channel name %q", a)
	}
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent(`{"call_id":"c1","url":"https://example.com/next.xml","method":"POST"}`)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ev.CallID != "c1" || ev.URL != "https://example.com/next.xml" || ev.Method != "POST" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestParseEvent_Invalid(t *testing.T) {
	if _, err := ParseEvent("not json"); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := ParseEvent(`{"call_id":"c1"}`); err == nil {
		t.Fatalf("expected error for missing url")
	}
}

func TestHandler_QueueFlushCycle(t *testing.T) {
	h := &Handler{}
	if got := h.PerformQueued(); got != nil {
		t.Fatalf("expected empty queue, got %+v", got)
	}

	h.PerformLater(CallUpdateEvent{CallID: "c1", URL: "https://example.com/a"})
	h.PerformLater(CallUpdateEvent{CallID: "c1", URL: "https://example.com/b"})

	got := h.PerformQueued()
	if got == nil || got.URL != "https://example.com/b" {
		t.Fatalf("expected latest event, got %+v", got)
	}
	if h.PerformQueued() != nil {
		t.Fatalf("queue must be drained after flush")
	}
}
