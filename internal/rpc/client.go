package rpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"path/filepath"
	"time"

	"github.com/barc/catalog/internal/lockfile"
)

// Client forwards commands to a catalog master over a Unix socket,
// grounded on the teacher's rpc.Client connect/send shape in client.go,
// stripped of the HTTP/TCP/token-auth fallbacks this engine doesn't
// need (§6 names only a forwarding RPC, not a public network API).
type Client struct {
	conn    net.Conn
	enc     *json.Encoder
	scanner *bufio.Scanner
	timeout time.Duration
}

// TryConnect dials socketPath with a short timeout, returning nil (not
// an error) if no master appears to be listening — mirroring the
// teacher's TryConnect probing pattern, which checks the daemon lock
// before attempting a connection to avoid blocking callers on a socket
// nobody is holding.
func TryConnect(socketPath string) (*Client, error) {
	dir := filepath.Dir(socketPath)
	if running, _ := lockfile.TryDaemonLock(dir); !running {
		return nil, nil
	}
	conn, err := net.DialTimeout("unix", socketPath, 200*time.Millisecond)
	if err != nil {
		return nil, nil
	}
	return &Client{
		conn:    conn,
		enc:     json.NewEncoder(conn),
		scanner: bufio.NewScanner(conn),
		timeout: DefaultCommandTimeout,
	}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Call sends operation with params and blocks for its Response, bounded
// by DefaultCommandTimeout (§6).
func (c *Client) Call(operation string, params map[string]string) (map[string]string, error) {
	c.conn.SetDeadline(time.Now().Add(c.timeout))
	req := Request{Operation: operation, Params: params}
	if err := c.enc.Encode(&req); err != nil {
		return nil, fmt.Errorf("rpc: send %s: %w", operation, err)
	}
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return nil, fmt.Errorf("rpc: read response to %s: %w", operation, err)
		}
		return nil, fmt.Errorf("rpc: connection closed waiting for %s", operation)
	}
	resp, err := DecodeResponse(c.scanner.Bytes())
	if err != nil {
		return nil, fmt.Errorf("rpc: decode response to %s: %w", operation, err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("rpc: %s: %s", operation, resp.Error)
	}
	return resp.Result, nil
}
