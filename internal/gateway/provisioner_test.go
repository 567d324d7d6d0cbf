package gateway

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type fakeSwitch struct {
	mu       sync.Mutex
	commands []string
	err      error
}

func (f *fakeSwitch) Execute(_ context.Context, command string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
	return "+OK", f.err
}

func (f *fakeSwitch) got() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func newProvisioner(t *testing.T) (*Provisioner, *fakeSwitch) {
	t.Helper()
	sw := &fakeSwitch{}
	p := &Provisioner{
		Dir:     filepath.Join(t.TempDir(), "sip_gateways"),
		Profile: "nat_gateway",
		Switch:  sw,
	}
	return p, sw
}

func TestCreateGateway_WritesRecordAndRescans(t *testing.T) {
	p, sw := newProvisioner(t)

	cfg := Config{
		Name:          "trunk-1",
		Username:      "alice",
		Password:      "hunter2",
		Realm:         "sip.example.com",
		Proxy:         "sip.example.com:5070",
		OutboundProxy: "edge.example.com:5060",
		AuthUsername:  "alice-auth",
	}
	if err := p.CreateGateway(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	p.Flush()

	raw, err := os.ReadFile(filepath.Join(p.Dir, "trunk-1.xml"))
	if err != nil {
		t.Fatalf("record not written: %v", err)
	}
	record := string(raw)

	for _, want := range []string{
		`<gateway name="trunk-1">`,
		`<param name="username" value="alice"/>`,
		`<param name="password" value="hunter2"/>`,
		`<param name="realm" value="sip.example.com"/>`,
		`<param name="proxy" value="sip.example.com:5070"/>`,
		`<param name="outbound-proxy" value="edge.example.com:5060"/>`,
		`<param name="auth-username" value="alice-auth"/>`,
		`<param name="register" value="true"/>`,
		`<param name="register-transport" value="udp"/>`,
		`<param name="expire-seconds" value="3600"/>`,
		`<param name="retry-seconds" value="30"/>`,
		`<variable name="somleng_gateway_id" value="trunk-1" direction="inbound"/>`,
	} {
		if !strings.Contains(record, want) {
			t.Fatalf("record missing %q:\n%s", want, record)
		}
	}

	cmds := sw.got()
	if len(cmds) != 1 || cmds[0] != "sofia profile nat_gateway rescan" {
		t.Fatalf("unexpected commands: %v", cmds)
	}
}

func TestCreateGateway_OmitsOptionalParams(t *testing.T) {
	p, _ := newProvisioner(t)

	cfg := Config{Name: "trunk-2", Username: "bob", Password: "pw", Realm: "r", Proxy: "r"}
	if err := p.CreateGateway(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	p.Flush()

	raw, _ := os.ReadFile(filepath.Join(p.Dir, "trunk-2.xml"))
	if strings.Contains(string(raw), "outbound-proxy") || strings.Contains(string(raw), "auth-username") {
		t.Fatalf("optional params must be omitted when blank:\n%s", raw)
	}
}

func TestCreateGateway_OverwritesExistingRecord(t *testing.T) {
	p, _ := newProvisioner(t)
	ctx := context.Background()

	if err := p.CreateGateway(ctx, Config{Name: "trunk-3", Username: "old", Password: "pw", Realm: "r", Proxy: "r"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := p.CreateGateway(ctx, Config{Name: "trunk-3", Username: "new", Password: "pw", Realm: "r", Proxy: "r"}); err != nil {
		t.Fatalf("second create: %v", err)
	}
	p.Flush()

	raw, _ := os.ReadFile(filepath.Join(p.Dir, "trunk-3.xml"))
	if !strings.Contains(string(raw), `value="new"`) || strings.Contains(string(raw), `value="old"`) {
		t.Fatalf("expected overwrite:\n%s", raw)
	}
}

func TestDeleteGateway_RemovesRecordAndKillsGateway(t *testing.T) {
	p, sw := newProvisioner(t)
	ctx := context.Background()

	if err := p.CreateGateway(ctx, Config{Name: "trunk-4", Username: "u", Password: "pw", Realm: "r", Proxy: "r"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := p.DeleteGateway(ctx, "trunk-4"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	p.Flush()

	if _, err := os.Stat(filepath.Join(p.Dir, "trunk-4.xml")); !os.IsNotExist(err) {
		t.Fatalf("record still present")
	}
	cmds := sw.got()
	if len(cmds) != 2 || cmds[1] != "sofia profile nat_gateway killgw trunk-4" {
		t.Fatalf("unexpected commands: %v", cmds)
	}
}

func TestDeleteGateway_MissingRecordIsNoop(t *testing.T) {
	p, sw := newProvisioner(t)

	if err := p.DeleteGateway(context.Background(), "never-created"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	p.Flush()
	if cmds := sw.got(); len(cmds) != 0 {
		t.Fatalf("no commands expected, got %v", cmds)
	}
}

func TestCreateGateway_SwitchFailureDoesNotSurface(t *testing.T) {
	p, sw := newProvisioner(t)
	sw.err = context.DeadlineExceeded

	if err := p.CreateGateway(context.Background(), Config{Name: "trunk-5", Username: "u", Password: "pw", Realm: "r", Proxy: "r"}); err != nil {
		t.Fatalf("rescan failure must not surface: %v", err)
	}
	p.Flush()
	if _, err := os.Stat(filepath.Join(p.Dir, "trunk-5.xml")); err != nil {
		t.Fatalf("record must still be written: %v", err)
	}
}

func TestCreateGateway_EscapesXMLMetaCharacters(t *testing.T) {
	p, _ := newProvisioner(t)

	cfg := Config{Name: "trunk-6", Username: `a<b>&"c`, Password: "pw", Realm: "r", Proxy: "r"}
	if err := p.CreateGateway(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	p.Flush()

	raw, _ := os.ReadFile(filepath.Join(p.Dir, "trunk-6.xml"))
	if !strings.Contains(string(raw), "a&lt;b&gt;&amp;&quot;c") {
		t.Fatalf("expected escaped username:\n%s", raw)
	}
}
