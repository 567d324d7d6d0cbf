// Package callctrl executes call-control actions against a live call:
// multi-leg outbound dials and conference bridging. The call-control
// runtime and the call platform are consumed through interfaces; this
// package owns only the orchestration.
package callctrl

import (
	"context"
	"errors"
	"time"

	"trunkctl/internal/dialstring"
)

// DefaultRingTimeout applies when a dial instruction carries no timeout.
const DefaultRingTimeout = 30 * time.Second

// SIP headers attached to each outbound leg so the platform can correlate
// signaling with its call records.
const (
	HeaderCallSID    = "X-Somleng-CallSid"
	HeaderAccountSID = "X-Somleng-AccountSid"
)

// Benign terminations of a blocking call-control operation. The runtime
// adapter must map its hangup/disconnect conditions onto these.
var (
	ErrHangup       = errors.New("callctrl: call hung up")
	ErrDisconnected = errors.New("callctrl: call disconnected")
)

// DialResult is the aggregate outcome of a multi-leg dial.
type DialResult string

const (
	DialNoAnswer   DialResult = "no_answer"
	DialAnswer     DialResult = "answer"
	DialTimeout    DialResult = "timeout"
	DialError      DialResult = "error"
	DialBusy       DialResult = "busy"
	DialInProgress DialResult = "in_progress"
	DialRinging    DialResult = "ringing"
)

// JoinResult is the per-leg outcome of a dial attempt.
type JoinResult string

const (
	JoinJoined   JoinResult = "joined"
	JoinNoAnswer JoinResult = "no_answer"
	JoinBusy     JoinResult = "busy"
	JoinError    JoinResult = "error"
)

// LegJoin pairs a leg's join result with how long it stayed connected.
type LegJoin struct {
	Result   JoinResult
	Duration time.Duration
}

// DialOutcome maps each attempted leg (by SID) to its join result.
// At most one leg joins.
type DialOutcome struct {
	Result DialResult
	Joins  map[string]LegJoin
}

// CallLeg is one outbound call attempt created by the call platform.
// Either Address is pre-resolved (e.g. a SIP URI) or Routing carries the
// trunk parameters used to format the destination.
type CallLeg struct {
	SID        string
	AccountSID string
	From       string
	Address    string
	Routing    *dialstring.RoutingParameters
}

// DialOptions are the per-leg options keyed by dial string in the dial map.
type DialOptions struct {
	From    string
	Timeout time.Duration
	Headers map[string]string
}

// JoinOptions configure a conference join.
type JoinOptions struct {
	MixerName       string
	StartOnEnter    bool
	EndOnExit       bool
	Muted           bool
	Beep            bool
	MaxParticipants int
}

// ConferenceRoom carries a conference noun's join-time flags. It exists
// only for the duration of one join.
type ConferenceRoom struct {
	RoomName            string
	StartOnEnter        bool
	EndOnExit           bool
	Muted               bool
	Beep                bool
	WaitURL             string
	WaitMethod          string
	MaxParticipants     int
	StatusCallback      string
	StatusCallbackEvent string
}

func (r ConferenceRoom) joinOptions() JoinOptions {
	return JoinOptions{
		MixerName:       r.RoomName,
		StartOnEnter:    r.StartOnEnter,
		EndOnExit:       r.EndOnExit,
		Muted:           r.Muted,
		Beep:            r.Beep,
		MaxParticipants: r.MaxParticipants,
	}
}

// CallProperties identify the current (parent) call.
type CallProperties struct {
	CallSID    string
	AccountSID string
}

// RedirectRequest tells the call-control execution loop to fetch and run a
// new document. It is returned up the stack as a value, never thrown.
type RedirectRequest struct {
	URL    string
	Method string
	Params map[string]string
}

// CallContext is the call-control runtime for the current call. Dial and
// Join block until the switch reports completion; Join reports hangup and
// disconnect through ErrHangup/ErrDisconnected.
type CallContext interface {
	Answer(ctx context.Context) error
	Dial(ctx context.Context, params map[string]DialOptions) (DialOutcome, error)
	Join(ctx context.Context, opts JoinOptions) error
	Unjoin(ctx context.Context, mixerName string) error
}

// CallPlatformClient creates outbound legs on the call platform.
type CallPlatformClient interface {
	CreateOutboundCalls(ctx context.Context, destinations []string, parentCallSID, from string) ([]CallLeg, error)
}

func methodOrDefault(method string) string {
	if method == "" {
		return "POST"
	}
	return method
}
