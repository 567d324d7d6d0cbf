package trunks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"trunkctl/internal/dialstring"
	"trunkctl/internal/gateway"
)

// GatewayProvisioner is the switch-side gateway surface the orchestrator
// drives.
type GatewayProvisioner interface {
	CreateGateway(ctx context.Context, cfg gateway.Config) error
	DeleteGateway(ctx context.Context, name string) error
}

// SubscriberClient manages subscriber credential pairs on the call
// service for client_credentials trunks.
type SubscriberClient interface {
	CreateSubscriber(ctx context.Context, username, password string) error
	DeleteSubscriber(ctx context.Context, username string) error
}

// Orchestrator reconciles trunk configuration changes into switch-side
// resources. It owns no storage: each hook receives the before/after
// snapshots and reacts to the diff. Callers invoke it sequentially per
// trunk, which serializes writes for a given gateway name.
type Orchestrator struct {
	Gateways    GatewayProvisioner
	Subscribers SubscriberClient
	Log         *slog.Logger
}

// TrunkCreated provisions the new trunk's resource.
func (o *Orchestrator) TrunkCreated(ctx context.Context, t Trunk) error {
	switch {
	case t.AuthenticationMode == dialstring.AuthModeOutboundRegistration:
		return o.createGateway(ctx, t)
	case t.Username != "":
		return o.Subscribers.CreateSubscriber(ctx, t.Username, t.Password)
	}
	return nil
}

// TrunkUpdated diffs previous against current and reconciles.
func (o *Orchestrator) TrunkUpdated(ctx context.Context, previous, current Trunk) error {
	if previous.AuthenticationMode != current.AuthenticationMode {
		return o.switchAuthMode(ctx, previous, current)
	}

	switch current.AuthenticationMode {
	case dialstring.AuthModeOutboundRegistration:
		if !gatewayParamsChanged(previous, current) {
			return nil
		}
		// The switch gateway is identified by trunk id but its parameters
		// are not independently updatable: full recreate. A crash between
		// the two steps leaves no gateway until the next update.
		if err := o.Gateways.DeleteGateway(ctx, current.ID); err != nil {
			return fmt.Errorf("trunks: delete gateway %s: %w", current.ID, err)
		}
		return o.createGateway(ctx, current)

	case dialstring.AuthModeClientCredentials:
		if previous.Username == current.Username {
			return nil
		}
		if previous.Username != "" {
			if err := o.Subscribers.DeleteSubscriber(ctx, previous.Username); err != nil {
				return fmt.Errorf("trunks: delete subscriber %s: %w", previous.Username, err)
			}
		}
		if current.Username != "" {
			return o.Subscribers.CreateSubscriber(ctx, current.Username, current.Password)
		}
	}
	return nil
}

// TrunkDeleted tears down the trunk's resource.
func (o *Orchestrator) TrunkDeleted(ctx context.Context, t Trunk) error {
	switch {
	case t.AuthenticationMode == dialstring.AuthModeOutboundRegistration:
		return o.Gateways.DeleteGateway(ctx, t.ID)
	case t.Username != "":
		return o.Subscribers.DeleteSubscriber(ctx, t.Username)
	}
	return nil
}

// switchAuthMode tears down the previous mode's resource, then stands up
// the new one per the create rules. There is no rollback: a failed
// stand-up leaves the trunk without a provisioned resource until a
// subsequent update reconciles it.
func (o *Orchestrator) switchAuthMode(ctx context.Context, previous, current Trunk) error {
	switch previous.AuthenticationMode {
	case dialstring.AuthModeClientCredentials:
		if previous.Username != "" {
			if err := o.Subscribers.DeleteSubscriber(ctx, previous.Username); err != nil {
				return fmt.Errorf("trunks: delete subscriber %s: %w", previous.Username, err)
			}
		}
	case dialstring.AuthModeOutboundRegistration:
		if err := o.Gateways.DeleteGateway(ctx, previous.ID); err != nil {
			return fmt.Errorf("trunks: delete gateway %s: %w", previous.ID, err)
		}
	}

	o.logger().Info("trunk auth mode changed",
		"trunk_id", current.ID,
		"from", previous.AuthenticationMode,
		"to", current.AuthenticationMode,
	)

	switch {
	case current.AuthenticationMode == dialstring.AuthModeOutboundRegistration:
		return o.createGateway(ctx, current)
	case current.AuthenticationMode == dialstring.AuthModeClientCredentials && current.Username != "":
		return o.Subscribers.CreateSubscriber(ctx, current.Username, current.Password)
	}
	return nil
}

func (o *Orchestrator) createGateway(ctx context.Context, t Trunk) error {
	cfg := gatewayConfig(t)
	if err := o.Gateways.CreateGateway(ctx, cfg); err != nil {
		return fmt.Errorf("trunks: create gateway %s: %w", t.ID, err)
	}
	return nil
}

// gatewayConfig derives the switch gateway record from trunk settings.
// realm is the host portion of the outbound host; the register proxy keeps
// its port. When an outbound proxy is configured, SIP traffic and
// registration take that hop instead, on both proxy fields.
func gatewayConfig(t Trunk) gateway.Config {
	registerProxy := hostWithPort(t.OutboundHost)

	cfg := gateway.Config{
		Name:     t.ID,
		Username: t.Username,
		Password: t.Password,
		Realm:    hostOnly(t.OutboundHost),
		Proxy:    registerProxy,
	}
	if t.OutboundProxy != "" {
		networkProxy := hostWithPort(t.OutboundProxy)
		cfg.Proxy = networkProxy
		cfg.OutboundProxy = networkProxy
	}
	if t.AuthUser != "" {
		cfg.AuthUsername = t.AuthUser
	}
	return cfg
}

func gatewayParamsChanged(previous, current Trunk) bool {
	return previous.Username != current.Username ||
		previous.Password != current.Password ||
		previous.OutboundHost != current.OutboundHost ||
		previous.OutboundProxy != current.OutboundProxy ||
		previous.AuthUser != current.AuthUser
}

func hostOnly(hostPort string) string {
	host, _, _ := strings.Cut(hostPort, ":")
	return host
}

func hostWithPort(hostPort string) string {
	host, port, found := strings.Cut(hostPort, ":")
	if found && port != "" {
		return host + ":" + port
	}
	return host
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return slog.Default()
}
