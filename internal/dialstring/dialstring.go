package dialstring

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultSIPProfile is the sofia profile used when a trunk does not
// override it.
const DefaultSIPProfile = "nat_gateway"

// AuthMode selects how a trunk authenticates against the remote carrier.
// Exactly one mode is active per trunk at any time.
type AuthMode string

const (
	AuthModeIPAddress            AuthMode = "ip_address"
	AuthModeClientCredentials    AuthMode = "client_credentials"
	AuthModeOutboundRegistration AuthMode = "outbound_registration"
)

// RoutingParameters is the read-only view of a trunk plus a destination
// number that feeds dial-string construction. It is computed per call
// attempt and never persisted.
type RoutingParameters struct {
	Destination string

	DialStringPrefix string
	PlusPrefix       bool
	NationalDialing  bool

	Host     string
	Username string
	Password string
	AuthUser string

	SIPProfile  string
	AuthMode    AuthMode
	GatewayName string

	// Address is a pre-resolved destination (e.g. a SIP URI). When set,
	// it takes precedence over number formatting.
	Address string
}

var (
	ErrMissingHost    = errors.New("dialstring: outbound host is required for outbound_registration")
	ErrMissingAddress = errors.New("dialstring: destination or address is required")
)

// Build renders the sofia dial instruction for the given parameters.
//
// outbound_registration routes the leg straight at the configured host and
// attaches sip_auth_* channel variables so the far end can challenge the
// INVITE. All other modes use the generic form: the external profile plus
// the computed address, with the invite domain pinned to the address host.
func (p RoutingParameters) Build() (string, error) {
	if p.AuthMode == AuthModeOutboundRegistration {
		return p.buildOutboundRegistration()
	}

	addr, err := p.address()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"{sofia_suppress_url_encoding=true,sip_invite_domain=%s}sofia/%s/%s",
		hostOf(addr), p.profile(), addr,
	), nil
}

func (p RoutingParameters) buildOutboundRegistration() (string, error) {
	if strings.TrimSpace(p.Host) == "" {
		return "", ErrMissingHost
	}
	if strings.TrimSpace(p.Destination) == "" {
		return "", ErrMissingAddress
	}

	vars := []string{"sip_invite_domain=" + stripPort(p.Host)}
	if user := p.authUsername(); user != "" {
		vars = append(vars, "sip_auth_username="+user)
	}
	if p.Password != "" {
		vars = append(vars, "sip_auth_password="+p.Password)
	}

	dest := stripNonDigits(p.FormatNumber(p.Destination))
	return fmt.Sprintf(
		"{%s}sofia/%s/%s@%s",
		strings.Join(vars, ","), p.profile(), dest, p.Host,
	), nil
}

// FormatNumber applies the trunk's dialing policy to a raw number:
// national dialing drops a leading "+" and country code indicator,
// plus-prefix guarantees a leading "+", and any configured literal
// prefix is prepended last.
func (p RoutingParameters) FormatNumber(number string) string {
	n := strings.TrimSpace(number)
	switch {
	case p.NationalDialing:
		n = strings.TrimPrefix(n, "+")
	case p.PlusPrefix:
		if !strings.HasPrefix(n, "+") {
			n = "+" + n
		}
	}
	if p.DialStringPrefix != "" {
		n = p.DialStringPrefix + n
	}
	return n
}

// address returns the explicit pre-resolved address when present,
// otherwise derives one from the formatted destination and host.
func (p RoutingParameters) address() (string, error) {
	if p.Address != "" {
		return p.Address, nil
	}
	if strings.TrimSpace(p.Destination) == "" || strings.TrimSpace(p.Host) == "" {
		return "", ErrMissingAddress
	}
	return stripNonDigits(p.FormatNumber(p.Destination)) + "@" + p.Host, nil
}

func (p RoutingParameters) authUsername() string {
	if p.AuthUser != "" {
		return p.AuthUser
	}
	return p.Username
}

func (p RoutingParameters) profile() string {
	if p.SIPProfile != "" {
		return p.SIPProfile
	}
	return DefaultSIPProfile
}

func hostOf(address string) string {
	host := address
	if i := strings.LastIndex(host, "@"); i >= 0 {
		host = host[i+1:]
	}
	return stripPort(host)
}

func stripPort(host string) string {
	if i := strings.Index(host, ":"); i >= 0 {
		return host[:i]
	}
	return host
}

func stripNonDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
