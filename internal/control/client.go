package control

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client sends a single restart-control request per connection and closes
// it after reading the response (the server would accept more requests on
// the same connection).
type Client struct {
	Addr    string
	Timeout time.Duration
}

// NewClient constructs a Client dialing addr, with a default 5 second
// round-trip timeout.
func NewClient(addr string) *Client {
	return &Client{Addr: addr, Timeout: 5 * time.Second}
}

// RestartStage sends a restart_stage request and returns the server's
// response or a transport error. The correlation id it generates is
// returned alongside the response so the caller can log it.
func (c *Client) RestartStage(index int, args []string, sameArgs bool) (string, Response, error) {
	correlationID := NewCorrelationID()
	req := Request{
		CorrelationID: correlationID,
		Command:       CommandRestartStage,
		StageIndex:    index,
		Args:          args,
		SameArgs:      sameArgs,
	}

	conn, err := net.DialTimeout("tcp", c.Addr, c.Timeout)
	if err != nil {
		return correlationID, Response{}, fmt.Errorf("control: dial %s: %w", c.Addr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(c.Timeout))

	line, err := json.Marshal(req)
	if err != nil {
		return correlationID, Response{}, fmt.Errorf("control: encode request: %w", err)
	}
	if _, err := conn.Write(append(line, '\n')); err != nil {
		return correlationID, Response{}, fmt.Errorf("control: write request: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return correlationID, Response{}, fmt.Errorf("control: read response: %w", err)
		}
		return correlationID, Response{}, fmt.Errorf("control: connection closed before response")
	}

	var resp Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return correlationID, Response{}, fmt.Errorf("control: decode response: %w", err)
	}
	return correlationID, resp, nil
}
