// Package events carries out-of-band call update messages: a live call can
// be told to redirect (e.g. for transfer) while it is blocked inside a
// conference. Delivery is a per-call pub/sub channel.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "call_updates:"

// CallUpdateEvent asks an in-progress call to redirect its call-control
// execution to a new document.
type CallUpdateEvent struct {
	CallID string `json:"call_id"`
	URL    string `json:"url"`
	Method string `json:"method,omitempty"`
}

// ChannelFor returns the pub/sub channel name for one call. Channel naming
// is per-call so concurrent conferences never cross-deliver events.
func ChannelFor(callID string) string {
	return channelPrefix + callID
}

// ParseEvent decodes a raw channel payload.
func ParseEvent(raw string) (CallUpdateEvent, error) {
	var ev CallUpdateEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return CallUpdateEvent{}, fmt.Errorf("events: parse: %w", err)
	}
	if strings.TrimSpace(ev.URL) == "" {
		return CallUpdateEvent{}, fmt.Errorf("events: event missing url")
	}
	return ev, nil
}

// Bus is the Redis-backed delivery channel.
type Bus struct {
	RDB *redis.Client
}

// Subscribe opens a subscription on channel. The returned channel closes
// when ctx is canceled or the subscription drops; payloads are raw message
// bodies.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan string, error) {
	ps := b.RDB.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("events: subscribe %s: %w", channel, err)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- m.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Publish delivers ev to its call's channel.
func (b *Bus) Publish(ctx context.Context, ev CallUpdateEvent) error {
	if ev.CallID == "" {
		return fmt.Errorf("events: publish: call id is required")
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.RDB.Publish(ctx, ChannelFor(ev.CallID), raw).Err()
}

// Handler enqueues call update work for asynchronous processing and hands
// the queued redirect back once the conference exit is decided. At most
// one redirect is pending per handler; a later event wins.
type Handler struct {
	Log *slog.Logger

	mu     sync.Mutex
	queued *CallUpdateEvent
}

// PerformLater records ev as pending redirect work.
func (h *Handler) PerformLater(ev CallUpdateEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.queued != nil {
		h.logger().Warn("call update superseded", "call_id", h.queued.CallID)
	}
	h.queued = &ev
}

// PerformQueued flushes the pending event, if any.
func (h *Handler) PerformQueued() *CallUpdateEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	ev := h.queued
	h.queued = nil
	return ev
}

func (h *Handler) logger() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}
