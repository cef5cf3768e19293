// Package client provides a Go client for the batch agent protocol, for use
// by management tooling.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"batch-agent/internal/wire"
	"batch-agent/pkg/types"
)

// Client errors.
var (
	ErrNoResponse = errors.New("agent closed the connection without responding")
	ErrUnhealthy  = errors.New("agent health check failed")
	ErrRejected   = errors.New("agent rejected the request")
	ErrEmptyBatch = errors.New("batch has no items")
)

const defaultTimeout = 10 * time.Second

// Client talks to one agent. Every call uses a fresh connection.
type Client struct {
	addr    string
	timeout time.Duration
}

// New creates a client for the agent at address.
func New(address string) *Client {
	return &Client{addr: address, timeout: defaultTimeout}
}

// WithTimeout sets the per-call dial and I/O timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.timeout = d
	return c
}

// Address returns the agent address.
func (c *Client) Address() string {
	return c.addr
}

// HealthCheck asks the agent whether it is serving.
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.call(ctx, types.CommandCheck, "", true)
	if err != nil {
		return err
	}
	if string(resp) != "on" {
		return fmt.Errorf("%w: got %q", ErrUnhealthy, resp)
	}
	return nil
}

// ListPath lists the directories and files under dir on the agent host. An
// empty dir lists the agent's configured batch path.
func (c *Client) ListPath(ctx context.Context, dir string) (types.PathListing, error) {
	var listing types.PathListing
	resp, err := c.call(ctx, types.CommandPath, dir, true)
	if err != nil {
		return listing, err
	}
	if err := json.Unmarshal(resp, &listing); err != nil {
		return listing, fmt.Errorf("decode listing: %w", err)
	}
	return listing, nil
}

// Run submits a batch group. The agent does not answer run requests; results
// arrive later as reports to the management server address.
func (c *Client) Run(ctx context.Context, items []types.JobRequestItem) error {
	if len(items) == 0 {
		return ErrEmptyBatch
	}
	_, err := c.call(ctx, types.CommandRun, items, false)
	return err
}

// Send delivers an arbitrary command and returns the raw response, or nil if
// the agent answered nothing.
func (c *Client) Send(ctx context.Context, cmd string, message any) ([]byte, error) {
	raw, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	resp, err := c.roundTrip(ctx, types.Envelope{Cmd: cmd, Message: raw}, true)
	if errors.Is(err, ErrNoResponse) {
		return nil, nil
	}
	return resp, err
}

func (c *Client) call(ctx context.Context, cmd types.Command, message any, wantReply bool) ([]byte, error) {
	env, err := types.NewEnvelope(cmd, message)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return c.roundTrip(ctx, env, wantReply)
}

func (c *Client) roundTrip(ctx context.Context, env types.Envelope, wantReply bool) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := wire.WriteJSON(conn, env); err != nil {
		return nil, fmt.Errorf("send %s: %w", env.Cmd, err)
	}
	if !wantReply {
		return nil, nil
	}

	resp, err := wire.ReadFrame(conn)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoResponse
		}
		return nil, fmt.Errorf("read %s response: %w", env.Cmd, err)
	}

	var rejected types.ErrorResponse
	if json.Unmarshal(resp, &rejected) == nil && rejected.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrRejected, rejected.Error)
	}
	return resp, nil
}
