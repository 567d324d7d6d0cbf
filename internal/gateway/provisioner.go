// Package gateway writes switch-side gateway definitions and nudges the
// switch to pick them up. The written file is the source of truth; the
// rescan/killgw commands are best-effort.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"trunkctl/internal/esl"
)

// Config is one renderable gateway definition. Name doubles as the trunk
// id and the file stem under the gateway directory.
type Config struct {
	Name     string
	Username string
	Password string
	Realm    string
	Proxy    string

	// Optional. Omitted from the rendered record when blank.
	OutboundProxy string
	AuthUsername  string
}

var recordTmpl = template.Must(template.New("gateway").Funcs(template.FuncMap{
	"xml": xmlEscape,
}).Parse(`<include>
  <gateway name="{{xml .Name}}">
    <param name="username" value="{{xml .Username}}"/>
    <param name="password" value="{{xml .Password}}"/>
    <param name="realm" value="{{xml .Realm}}"/>
    <param name="proxy" value="{{xml .Proxy}}"/>
{{- if .OutboundProxy}}
    <param name="outbound-proxy" value="{{xml .OutboundProxy}}"/>
{{- end}}
{{- if .AuthUsername}}
    <param name="auth-username" value="{{xml .AuthUsername}}"/>
{{- end}}
    <param name="register" value="true"/>
    <param name="register-transport" value="udp"/>
    <param name="expire-seconds" value="3600"/>
    <param name="retry-seconds" value="30"/>
    <variables>
      <variable name="somleng_gateway_id" value="{{xml .Name}}" direction="inbound"/>
    </variables>
  </gateway>
</include>
`))

// Provisioner renders gateway records into Dir and issues profile
// commands through the switch admin socket.
//
// Provisioning succeeds once the record is durably written; the follow-up
// rescan/killgw runs asynchronously and its outcome never surfaces to the
// caller. Callers mutating the same trunk are expected to invoke the
// provisioner sequentially; distinct trunks may be provisioned concurrently.
type Provisioner struct {
	Dir     string
	Profile string
	Switch  esl.CommandRunner
	Log     *slog.Logger

	pending sync.WaitGroup
}

// CreateGateway writes the gateway record for cfg.Name, creating the
// directory if needed, then asynchronously rescans the sofia profile.
// Creating twice with the same name overwrites the record.
func (p *Provisioner) CreateGateway(ctx context.Context, cfg Config) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("gateway: name is required")
	}

	var b strings.Builder
	if err := recordTmpl.Execute(&b, cfg); err != nil {
		return fmt.Errorf("gateway: render %s: %w", cfg.Name, err)
	}

	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return fmt.Errorf("gateway: create dir %s: %w", p.Dir, err)
	}
	if err := os.WriteFile(p.recordPath(cfg.Name), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("gateway: write %s: %w", cfg.Name, err)
	}
	p.logger().Info("gateway record written", "gateway", cfg.Name, "realm", cfg.Realm)

	p.runAsync(fmt.Sprintf("sofia profile %s rescan", p.Profile))
	return nil
}

// DeleteGateway removes the record for name, if present, then
// asynchronously kills the gateway on the switch. Deleting a gateway that
// was never created is a no-op.
func (p *Provisioner) DeleteGateway(ctx context.Context, name string) error {
	path := p.recordPath(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("gateway: remove %s: %w", name, err)
	}
	p.logger().Info("gateway record removed", "gateway", name)

	p.runAsync(fmt.Sprintf("sofia profile %s killgw %s", p.Profile, name))
	return nil
}

// Flush waits for in-flight switch commands. Used at shutdown and by tests.
func (p *Provisioner) Flush() {
	p.pending.Wait()
}

func (p *Provisioner) runAsync(command string) {
	be := &esl.BestEffort{Runner: p.Switch, Log: p.logger()}
	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		// Detached from the request context on purpose: a canceled HTTP
		// request must not abort a rescan for a record already written.
		ctx, cancel := context.WithTimeout(context.Background(), esl.DefaultTimeout)
		defer cancel()
		be.Run(ctx, command)
	}()
}

func (p *Provisioner) recordPath(name string) string {
	return filepath.Join(p.Dir, name+".xml")
}

func (p *Provisioner) logger() *slog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return slog.Default()
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func xmlEscape(s string) string {
	return xmlEscaper.Replace(s)
}
