package trunks

import (
	"context"
	"testing"

	"trunkctl/internal/dialstring"
)

func TestNormalizeCredentials(t *testing.T) {
	t.Run("client_credentials generates when blank", func(t *testing.T) {
		tr := Trunk{AuthenticationMode: dialstring.AuthModeClientCredentials}
		tr.NormalizeCredentials()
		if tr.Username == "" || len(tr.Password) != 24 {
			t.Fatalf("expected generated credentials, got %q / %q", tr.Username, tr.Password)
		}
	})

	t.Run("client_credentials keeps supplied username", func(t *testing.T) {
		tr := Trunk{AuthenticationMode: dialstring.AuthModeClientCredentials, Username: "me", Password: "pw"}
		tr.NormalizeCredentials()
		if tr.Username != "me" || tr.Password != "pw" {
			t.Fatalf("supplied credentials must be kept, got %q / %q", tr.Username, tr.Password)
		}
	})

	t.Run("outbound_registration keeps credentials as-is", func(t *testing.T) {
		tr := Trunk{AuthenticationMode: dialstring.AuthModeOutboundRegistration, Username: "alice", Password: "pw"}
		tr.NormalizeCredentials()
		if tr.Username != "alice" || tr.Password != "pw" {
			t.Fatalf("credentials must be kept, got %q / %q", tr.Username, tr.Password)
		}
	})

	t.Run("ip_address clears credentials", func(t *testing.T) {
		tr := Trunk{AuthenticationMode: dialstring.AuthModeIPAddress, Username: "x", Password: "y"}
		tr.NormalizeCredentials()
		if tr.Username != "" || tr.Password != "" {
			t.Fatalf("credentials must be cleared, got %q / %q", tr.Username, tr.Password)
		}
	})
}

func TestValidate(t *testing.T) {
	if err := (Trunk{}).Validate(); err == nil {
		t.Fatalf("expected error for blank trunk")
	}
	if err := (Trunk{ID: "t", AuthenticationMode: "magic"}).Validate(); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
	if err := (Trunk{ID: "t", AuthenticationMode: dialstring.AuthModeOutboundRegistration}).Validate(); err == nil {
		t.Fatalf("expected error for outbound_registration without host")
	}
	ok := Trunk{ID: "t", AuthenticationMode: dialstring.AuthModeOutboundRegistration, OutboundHost: "sip.example.com"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestRoutingParameters(t *testing.T) {
	tr := Trunk{
		ID:                 "trunk-1",
		AuthenticationMode: dialstring.AuthModeOutboundRegistration,
		Username:           "alice",
		Password:           "pw",
		AuthUser:           "alice-auth",
		OutboundHost:       "sip.example.com:5070",
		PlusPrefix:         true,
		SIPProfile:         "external",
	}
	p := tr.RoutingParameters("+18005551234")
	if p.Destination != "+18005551234" || p.GatewayName != "trunk-1" {
		t.Fatalf("unexpected params: %+v", p)
	}
	if p.Host != "sip.example.com:5070" || p.AuthMode != dialstring.AuthModeOutboundRegistration {
		t.Fatalf("unexpected params: %+v", p)
	}
	if _, err := p.Build(); err != nil {
		t.Fatalf("derived params must build: %v", err)
	}
}

func TestMemoryRepo_Lifecycle(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	tr := Trunk{ID: "t1", AuthenticationMode: dialstring.AuthModeIPAddress}
	if err := repo.Create(ctx, tr); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, tr); err != ErrAlreadyExists {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	tr.DialStringPrefix = "9"
	previous, err := repo.Update(ctx, tr)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if previous.DialStringPrefix != "" {
		t.Fatalf("expected previous snapshot, got %+v", previous)
	}

	got, err := repo.Get(ctx, "t1")
	if err != nil || got.DialStringPrefix != "9" {
		t.Fatalf("get after update: %+v, %v", got, err)
	}

	if _, err := repo.Delete(ctx, "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, "t1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.Update(ctx, tr); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
}
