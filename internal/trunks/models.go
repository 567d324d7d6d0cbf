package trunks

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"trunkctl/internal/dialstring"
)

// Trunk is a configured path for placing and receiving calls through an
// external carrier or PBX. Its ID doubles as the switch gateway name.
type Trunk struct {
	ID string `json:"id"`

	// Exactly one authentication mode is active at a time; it determines
	// which switch-side resources (gateway vs. subscriber) exist.
	AuthenticationMode dialstring.AuthMode `json:"authentication_mode"`

	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	// AuthUser optionally overrides the SIP auth identity; blank means
	// Username is used when registering outbound.
	AuthUser string `json:"auth_user,omitempty"`

	// OutboundHost and OutboundProxy are "host" or "host:port".
	OutboundHost  string `json:"outbound_host,omitempty"`
	OutboundProxy string `json:"outbound_proxy,omitempty"`

	DialStringPrefix string `json:"dial_string_prefix,omitempty"`
	PlusPrefix       bool   `json:"plus_prefix"`
	NationalDialing  bool   `json:"national_dialing"`
	SIPProfile       string `json:"sip_profile,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	ErrNotFound      = errors.New("trunks: not found")
	ErrAlreadyExists = errors.New("trunks: already exists")
)

// Validate checks the invariants the lifecycle machinery relies on.
func (t Trunk) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("trunks: id is required")
	}
	switch t.AuthenticationMode {
	case dialstring.AuthModeIPAddress, dialstring.AuthModeClientCredentials:
	case dialstring.AuthModeOutboundRegistration:
		if strings.TrimSpace(t.OutboundHost) == "" {
			return errors.New("trunks: outbound_host is required for outbound_registration")
		}
	default:
		return fmt.Errorf("trunks: unknown authentication mode %q", t.AuthenticationMode)
	}
	return nil
}

// NormalizeCredentials enforces the per-mode credential policy:
// client_credentials trunks get generated credentials when none are
// supplied, outbound_registration keeps the user-provided pair as-is, and
// ip_address trunks carry none.
func (t *Trunk) NormalizeCredentials() {
	switch t.AuthenticationMode {
	case dialstring.AuthModeClientCredentials:
		if t.Username != "" {
			return
		}
		t.Username = "trunk-" + randomAlphanumeric(12)
		t.Password = randomAlphanumeric(24)
	case dialstring.AuthModeOutboundRegistration:
		// Keep user-provided username and password as-is.
	default:
		t.Username = ""
		t.Password = ""
	}
}

// RoutingParameters derives the dial-string inputs for one destination.
func (t Trunk) RoutingParameters(destination string) dialstring.RoutingParameters {
	return dialstring.RoutingParameters{
		Destination:      destination,
		DialStringPrefix: t.DialStringPrefix,
		PlusPrefix:       t.PlusPrefix,
		NationalDialing:  t.NationalDialing,
		Host:             t.OutboundHost,
		Username:         t.Username,
		Password:         t.Password,
		AuthUser:         t.AuthUser,
		SIPProfile:       t.SIPProfile,
		AuthMode:         t.AuthenticationMode,
		GatewayName:      t.ID,
	}
}

const alphanumerics = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomAlphanumeric(n int) string {
	b := make([]byte, n)
	max := big.NewInt(int64(len(alphanumerics)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing means the process has no usable entropy
			// source; credentials must not be silently weakened.
			panic(err)
		}
		b[i] = alphanumerics[idx.Int64()]
	}
	return string(b)
}
