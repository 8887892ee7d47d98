// Package control implements the daemon's control-socket protocol: a
// plain-text, one-request-per-connection line protocol over a unix
// stream socket, plus a client for speaking it. The client half
// generalises the teacher's encode-request/decode-response shape from a
// JSON envelope to a bare UTF-8 line.
package control

import (
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// DefaultSocketPath is the socket path used when none is configured.
const DefaultSocketPath = "/var/run/opsipxeconfd/opsipxeconfd.socket"

// ErrorPrefix marks a reply as a failure; callers must treat any reply
// beginning with it as an error regardless of command.
const ErrorPrefix = "(ERROR)"

// Client sends one command per connection to a running daemon and waits
// for its reply.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient returns a Client dialling socketPath, or DefaultSocketPath
// if socketPath is empty.
func NewClient(socketPath string) *Client {
	socketPath = strings.TrimSpace(socketPath)
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	return &Client{socketPath: socketPath, timeout: 30 * time.Second}
}

// Send dials the daemon, writes command as a single line, and returns
// its reply. A reply beginning with ErrorPrefix is returned as both the
// reply string and a non-nil error so callers that only check err still
// get correct exit-code behaviour.
func (c *Client) Send(command string) (string, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return "", fmt.Errorf("connect to opsipxeconfd: %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return "", fmt.Errorf("set deadline: %w", err)
	}

	if _, err := conn.Write([]byte(command)); err != nil {
		return "", fmt.Errorf("send command: %w", err)
	}
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}

	raw, err := io.ReadAll(conn)
	if err != nil {
		return "", fmt.Errorf("read reply: %w", err)
	}
	reply := strings.TrimRight(string(raw), "\n")

	if strings.HasPrefix(reply, ErrorPrefix) {
		return reply, fmt.Errorf("%s", reply)
	}
	return reply, nil
}

// Stop requests supervisor shutdown.
func (c *Client) Stop() (string, error) { return c.Send("stop") }

// Status requests a human-readable status report.
func (c *Client) Status() (string, error) { return c.Send("status") }

// Update requests an update for clientID, optionally from cachePath.
func (c *Client) Update(clientID, cachePath string) (string, error) {
	cmd := "update " + clientID
	if cachePath != "" {
		cmd += " " + cachePath
	}
	return c.Send(cmd)
}
