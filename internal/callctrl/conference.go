package callctrl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"trunkctl/internal/events"
)

// EventStream delivers raw call update payloads for one channel. The
// returned channel closes when ctx is canceled or the stream drops.
type EventStream interface {
	Subscribe(ctx context.Context, channel string) (<-chan string, error)
}

// UpdateHandler queues call update work and flushes it after a redirected
// conference exit.
type UpdateHandler interface {
	PerformLater(ev events.CallUpdateEvent)
	PerformQueued() *events.CallUpdateEvent
}

// ConferenceBridgeExecutor joins the current call into a named mixer while
// listening for an out-of-band call update that redirects the call out of
// the conference.
//
// The listener publishes its outcome through a single-writer channel and
// is always stopped (subscription canceled, goroutine joined) before the
// exit branch is decided, so a late event can never flip a decision
// already made on the normal-exit path.
type ConferenceBridgeExecutor struct {
	Stream  EventStream
	Handler UpdateHandler
	Log     *slog.Logger
}

// Execute runs the bridge: answer, subscribe, blocking join, then exactly
// one of the redirected / normal-exit / silent outcomes.
func (e *ConferenceBridgeExecutor) Execute(ctx context.Context, call CallContext, props CallProperties, room ConferenceRoom, action, method string) (*RedirectRequest, error) {
	if err := call.Answer(ctx); err != nil {
		return nil, fmt.Errorf("conference: answer: %w", err)
	}

	log := e.logger().With("call_sid", props.CallSID, "room", room.RoomName)

	listenCtx, stopListener := context.WithCancel(ctx)
	defer stopListener()

	// Buffered so the listener can publish its one outcome and exit even
	// if the main task has not reached the select yet.
	outcome := make(chan events.CallUpdateEvent, 1)
	var listener sync.WaitGroup

	ch, err := e.Stream.Subscribe(listenCtx, events.ChannelFor(props.CallSID))
	if err != nil {
		// A broken listener degrades to "redirect unavailable for this
		// call"; the join itself proceeds.
		log.Warn("call update listener unavailable", "err", err)
	} else {
		listener.Add(1)
		go func() {
			defer listener.Done()
			e.listen(ctx, call, room.RoomName, ch, outcome, log)
		}()
	}

	log.Info("joining conference",
		"start_on_enter", room.StartOnEnter,
		"end_on_exit", room.EndOnExit,
		"muted", room.Muted,
	)

	if err := call.Join(ctx, room.joinOptions()); err != nil {
		if errors.Is(err, ErrHangup) || errors.Is(err, ErrDisconnected) {
			log.Info("call left conference", "cause", err)
		} else {
			log.Error("conference join failed", "err", err)
		}
	}

	// The join returned, by whatever path. Stop the listener and wait for
	// it before deciding the exit branch.
	stopListener()
	listener.Wait()

	select {
	case <-outcome:
		if queued := e.Handler.PerformQueued(); queued != nil {
			return &RedirectRequest{URL: queued.URL, Method: methodOrDefault(queued.Method)}, nil
		}
		log.Warn("redirected exit with no queued call update")
		return nil, nil
	default:
	}

	if action != "" {
		// Plain conference-exit notification.
		return &RedirectRequest{URL: action, Method: methodOrDefault(method), Params: map[string]string{}}, nil
	}
	return nil, nil
}

// listen waits for at most one call update, hands it off for asynchronous
// processing, then forces the call out of the mixer to unblock the join.
func (e *ConferenceBridgeExecutor) listen(ctx context.Context, call CallContext, mixerName string, ch <-chan string, outcome chan<- events.CallUpdateEvent, log *slog.Logger) {
	for raw := range ch {
		ev, err := events.ParseEvent(raw)
		if err != nil {
			log.Warn("discarding malformed call update", "err", err)
			continue
		}

		e.Handler.PerformLater(ev)
		outcome <- ev

		// Expected to fail when the call is already on its way out of the
		// conference.
		if err := call.Unjoin(ctx, mixerName); err != nil {
			log.Warn("unjoin after call update failed", "err", err)
		}
		return
	}
}

func (e *ConferenceBridgeExecutor) logger() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}
