package callctrl

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"trunkctl/internal/dialstring"
)

// dialCallStatuses maps aggregate dial results onto callback statuses.
var dialCallStatuses = map[DialResult]string{
	DialNoAnswer:   "no-answer",
	DialAnswer:     "completed",
	DialTimeout:    "no-answer",
	DialError:      "failed",
	DialBusy:       "busy",
	DialInProgress: "in-progress",
	DialRinging:    "ringing",
}

// DialInstruction is the structured form of a dial action: destinations to
// try, caller id, ring timeout and the optional action callback.
type DialInstruction struct {
	Destinations []string
	CallerID     string
	Timeout      time.Duration
	Action       string
	Method       string
}

// OutboundDialExecutor connects one or more outbound legs to the current
// call and translates the outcome into an action callback redirect.
type OutboundDialExecutor struct {
	Platform CallPlatformClient
	Log      *slog.Logger
}

// Execute answers the call, creates the legs, runs the blocking dial and
// returns the redirect to the action URL, or nil when none is configured.
func (e *OutboundDialExecutor) Execute(ctx context.Context, call CallContext, props CallProperties, instr DialInstruction) (*RedirectRequest, error) {
	if err := call.Answer(ctx); err != nil {
		return nil, fmt.Errorf("dial: answer: %w", err)
	}

	legs, err := e.Platform.CreateOutboundCalls(ctx, instr.Destinations, props.CallSID, instr.CallerID)
	if err != nil {
		return nil, fmt.Errorf("dial: create outbound calls: %w", err)
	}

	params, err := e.buildDialParams(legs, instr)
	if err != nil {
		return nil, err
	}

	outcome, err := call.Dial(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	e.logger().Info("dial completed", "call_sid", props.CallSID, "result", outcome.Result, "legs", len(legs))

	if instr.Action == "" {
		return nil, nil
	}
	return &RedirectRequest{
		URL:    instr.Action,
		Method: methodOrDefault(instr.Method),
		Params: callbackParams(outcome),
	}, nil
}

// buildDialParams maps each leg's dial string to its options. Legs with a
// pre-resolved address dial it as-is; trunk-routed legs also carry the
// formatted caller number.
func (e *OutboundDialExecutor) buildDialParams(legs []CallLeg, instr DialInstruction) (map[string]DialOptions, error) {
	timeout := instr.Timeout
	if timeout <= 0 {
		timeout = DefaultRingTimeout
	}

	params := make(map[string]DialOptions, len(legs))
	for _, leg := range legs {
		ds, from, err := buildLegDialString(leg)
		if err != nil {
			return nil, fmt.Errorf("dial: leg %s: %w", leg.SID, err)
		}

		opts := DialOptions{From: from, Timeout: timeout}
		headers := make(map[string]string, 2)
		if leg.SID != "" {
			headers[HeaderCallSID] = leg.SID
		}
		if leg.AccountSID != "" {
			headers[HeaderAccountSID] = leg.AccountSID
		}
		if len(headers) > 0 {
			opts.Headers = headers
		}
		params[ds] = opts
	}
	return params, nil
}

func buildLegDialString(leg CallLeg) (ds, from string, err error) {
	if leg.Address != "" {
		p := dialstring.RoutingParameters{Address: leg.Address}
		ds, err = p.Build()
		return ds, "", err
	}
	if leg.Routing == nil {
		return "", "", fmt.Errorf("no address or routing parameters")
	}
	ds, err = leg.Routing.Build()
	if err != nil {
		return "", "", err
	}
	return ds, leg.Routing.FormatNumber(leg.From), nil
}

// callbackParams renders the action callback body: the mapped dial status
// plus, when exactly one leg joined, that leg's sid and whole-second
// duration.
func callbackParams(outcome DialOutcome) map[string]string {
	params := map[string]string{
		"DialCallStatus": dialCallStatuses[outcome.Result],
	}
	for sid, join := range outcome.Joins {
		if join.Result != JoinJoined {
			continue
		}
		params["DialCallSid"] = sid
		params["DialCallDuration"] = strconv.Itoa(int(join.Duration.Seconds()))
		break
	}
	return params
}

func (e *OutboundDialExecutor) logger() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}
