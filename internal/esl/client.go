// Package esl implements the minimal slice of the FreeSWITCH event socket
// protocol this control plane needs: authenticate, run one api command,
// read the framed reply, close.
package esl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds the whole connect/auth/command/read exchange.
const DefaultTimeout = 5 * time.Second

const contentLengthHeader = "Content-Length"

// Client runs single api commands against the switch's admin socket.
// Each call opens a fresh connection; the switch treats these as cheap.
type Client struct {
	Addr     string
	Password string

	// Timeout bounds one Execute exchange end to end. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Execute runs `api <command>` and returns the response body, if any.
// The exchange is bounded by the client timeout; the context can cancel
// it earlier.
func (c *Client) Execute(ctx context.Context, command string) (string, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return "", fmt.Errorf("esl: connect %s: %w", c.Addr, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadline); err != nil {
		return "", fmt.Errorf("esl: set deadline: %w", err)
	}

	r := bufio.NewReader(conn)

	// Greeting block (auth/request headers).
	if _, err := readBlock(r); err != nil {
		return "", fmt.Errorf("esl: read greeting: %w", err)
	}

	if err := send(conn, "auth "+c.Password); err != nil {
		return "", fmt.Errorf("esl: auth: %w", err)
	}
	if _, err := readBlock(r); err != nil {
		return "", fmt.Errorf("esl: read auth reply: %w", err)
	}

	if err := send(conn, "api "+command); err != nil {
		return "", fmt.Errorf("esl: send command: %w", err)
	}

	headers, err := readBlock(r)
	if err != nil {
		return "", fmt.Errorf("esl: read response headers: %w", err)
	}

	n, ok, err := contentLength(headers)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return "", fmt.Errorf("esl: read %d byte body: %w", n, err)
	}
	return string(body), nil
}

func send(conn net.Conn, line string) error {
	_, err := conn.Write([]byte(line + "\n\n"))
	return err
}

// readBlock consumes header lines up to and including the blank
// terminator line.
func readBlock(r *bufio.Reader) ([]string, error) {
	var lines []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return lines, nil
		}
		lines = append(lines, line)
	}
}

func contentLength(headers []string) (int, bool, error) {
	for _, h := range headers {
		name, value, found := strings.Cut(h, ":")
		if !found || !strings.EqualFold(strings.TrimSpace(name), contentLengthHeader) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return 0, false, fmt.Errorf("esl: bad content length %q", strings.TrimSpace(value))
		}
		return n, true, nil
	}
	return 0, false, nil
}

// CommandRunner is the provisioning-side view of the client.
type CommandRunner interface {
	Execute(ctx context.Context, command string) (string, error)
}

// BestEffort wraps a runner with the control-plane error policy: command
// failures are logged as warnings and swallowed. Provisioning treats the
// written gateway record as the source of truth; a missed rescan leaves
// the switch stale until the next successful command for that name.
type BestEffort struct {
	Runner CommandRunner
	Log    *slog.Logger
}

func (b *BestEffort) Run(ctx context.Context, command string) {
	body, err := b.Runner.Execute(ctx, command)
	if err != nil {
		b.logger().Warn("switch command failed", "command", command, "err", err)
		return
	}
	if body != "" {
		b.logger().Info("switch command reply", "command", command, "reply", strings.TrimSpace(body))
	}
}

func (b *BestEffort) logger() *slog.Logger {
	if b.Log != nil {
		return b.Log
	}
	return slog.Default()
}
