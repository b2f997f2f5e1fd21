// Package discord provides a client for Discord's local IPC socket, enabling
// Rich Presence updates via the SET_ACTIVITY command.
//
// A [Client] is single-use: [Client.Login] dials the socket, performs the
// handshake, and waits for the READY dispatch. From then on a reader goroutine
// drains incoming frames, answers pings, and closes the channel returned by
// [Client.Closed] once the connection ends for any reason. Platform-specific
// socket discovery lives in conn_unix.go and conn_windows.go.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ///////////////////////////////////////////////
// Sentinel Errors
// ///////////////////////////////////////////////

// ErrNotConnected is returned when an operation requires an active connection.
var ErrNotConnected = errors.New("not connected")

// ErrAlreadyUsed is returned when Login is called on a client that has
// already logged in.
var ErrAlreadyUsed = errors.New("client already used")

// ErrHandshakeRejected is returned when Discord answers the handshake with an
// ERROR event, e.g. for an unknown application ID.
var ErrHandshakeRejected = errors.New("handshake rejected")

// ///////////////////////////////////////////////
// Data Types
// ///////////////////////////////////////////////

// Timestamps holds the start timestamp for an activity.
type Timestamps struct {
	Start int64 `json:"start,omitempty"`
}

// Assets holds image keys and tooltip text for an activity.
type Assets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
	SmallImage string `json:"small_image,omitempty"`
	SmallText  string `json:"small_text,omitempty"`
}

// Activity represents a Discord Rich Presence activity.
type Activity struct {
	Details    string      `json:"details,omitempty"`
	State      string      `json:"state,omitempty"`
	Timestamps *Timestamps `json:"timestamps,omitempty"`
	Assets     *Assets     `json:"assets,omitempty"`
	Instance   bool        `json:"instance"`
}

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// Client manages one connection to Discord's IPC socket.
type Client struct {
	appID string
	// dial opens the raw socket; tests replace it with a net.Pipe.
	dial func() (net.Conn, error)

	// mu protects conn and used.
	mu   sync.Mutex
	conn net.Conn
	used bool
	// wmu serializes frame writes. It is separate from mu so Close never
	// waits behind a blocked write.
	wmu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
}

// NewClient creates a new Discord IPC client for the given application ID.
func NewClient(appID string) *Client {
	return &Client{
		appID:  appID,
		dial:   connectToDiscord,
		closed: make(chan struct{}),
	}
}

// Login dials the IPC socket, sends the handshake, and waits for READY.
// Cancelling ctx aborts a handshake in progress. A dial failure is returned as
// [ErrIPCNotAvailable] so callers can tell "Discord is not running" apart from
// other failures.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	if c.used {
		c.mu.Unlock()
		return ErrAlreadyUsed
	}
	c.used = true
	c.mu.Unlock()

	conn, err := c.dial()
	if err != nil {
		c.markClosed()
		return err
	}

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	err = handshake(conn, c.appID)
	if !stop() {
		err = fmt.Errorf("login: %w", ctx.Err())
	}
	if err != nil {
		conn.Close()
		c.markClosed()
		return err
	}
	_ = conn.SetDeadline(time.Time{})

	c.mu.Lock()
	select {
	case <-c.closed:
		// Close ran during the handshake.
		c.mu.Unlock()
		conn.Close()
		return ErrNotConnected
	default:
	}
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// Closed returns a channel that is closed once the connection has ended,
// whether Discord dropped it, the login failed, or [Client.Close] was called.
func (c *Client) Closed() <-chan struct{} {
	return c.closed
}

// SetActivity sends a SET_ACTIVITY command to Discord.
func (c *Client) SetActivity(activity *Activity) error {
	return c.sendCommand("SET_ACTIVITY", map[string]any{
		"pid":      os.Getpid(),
		"activity": activity,
	})
}

// ClearActivity sends a SET_ACTIVITY command with a null activity, removing
// the presence card.
func (c *Client) ClearActivity() error {
	return c.sendCommand("SET_ACTIVITY", map[string]any{
		"pid":      os.Getpid(),
		"activity": nil,
	})
}

// Close closes the connection. It is safe to call more than once, including
// while Login is in progress; the login then fails with [ErrNotConnected].
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	// Marked under mu so Login cannot store a conn after this point.
	c.markClosed()
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// connected reports whether the client has an active connection.
func (c *Client) connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// markClosed closes the Closed channel exactly once.
func (c *Client) markClosed() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// readLoop drains frames until the connection fails or Discord sends CLOSE.
// Pings are answered in place; command responses are only inspected for
// errors.
func (c *Client) readLoop(conn net.Conn) {
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
		c.markClosed()
	}()

	for {
		opcode, payload, err := DecodeFrame(conn)
		if err != nil {
			slog.Debug("discord connection ended", "error", err)
			return
		}
		switch opcode {
		case OpPing:
			if err := c.writeFrame(conn, OpPong, payload); err != nil {
				slog.Debug("failed to answer ping", "error", err)
				return
			}
		case OpClose:
			slog.Debug("discord closed the connection", "payload", string(payload))
			return
		case OpFrame:
			logErrorResponse(payload)
		default:
			slog.Debug("ignoring discord frame", "opcode", opcode.String())
		}
	}
}

// logErrorResponse logs ERROR events carried in command responses.
func logErrorResponse(payload []byte) {
	var resp struct {
		Cmd  string `json:"cmd"`
		Evt  string `json:"evt"`
		Data struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return
	}
	if resp.Evt == "ERROR" {
		slog.Warn("discord rejected command", "cmd", resp.Cmd, "code", resp.Data.Code, "message", resp.Data.Message)
	}
}

// handshake sends the initial handshake frame and validates that Discord
// answers with the READY dispatch.
func handshake(conn net.Conn, appID string) error {
	payload, err := json.Marshal(map[string]any{
		"v":         1,
		"client_id": appID,
	})
	if err != nil {
		return fmt.Errorf("marshaling handshake: %w", err)
	}

	frame, err := EncodeFrame(OpHandshake, payload)
	if err != nil {
		return fmt.Errorf("encoding handshake: %w", err)
	}
	if _, err = conn.Write(frame); err != nil {
		return fmt.Errorf("writing handshake: %w", err)
	}

	opcode, respData, err := DecodeFrame(conn)
	if err != nil {
		return fmt.Errorf("reading handshake response: %w", err)
	}

	var resp struct {
		Cmd  string `json:"cmd"`
		Evt  string `json:"evt"`
		Data struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"data"`
		// CLOSE frames carry the reason at the top level.
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(respData, &resp); err != nil {
		return fmt.Errorf("parsing handshake response: %w", err)
	}

	switch {
	case opcode == OpClose:
		return fmt.Errorf("%w: %s (code %d)", ErrHandshakeRejected, resp.Message, resp.Code)
	case opcode != OpFrame:
		return fmt.Errorf("unexpected handshake response opcode %s", opcode)
	case resp.Evt == "ERROR":
		return fmt.Errorf("%w: %s (code %d)", ErrHandshakeRejected, resp.Data.Message, resp.Data.Code)
	case resp.Evt != "READY":
		return fmt.Errorf("unexpected handshake response event %q", resp.Evt)
	}
	return nil
}

// sendCommand writes a command frame to the active connection.
func (c *Client) sendCommand(cmd string, args map[string]any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	payload, err := json.Marshal(map[string]any{
		"cmd":   cmd,
		"args":  args,
		"nonce": uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("marshaling command: %w", err)
	}
	if err := c.writeFrame(conn, OpFrame, payload); err != nil {
		return fmt.Errorf("writing %s: %w", cmd, err)
	}
	return nil
}

// writeFrame encodes and writes one frame, serialized against other writers.
func (c *Client) writeFrame(conn net.Conn, op Opcode, payload []byte) error {
	frame, err := EncodeFrame(op, payload)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err = conn.Write(frame)
	return err
}
