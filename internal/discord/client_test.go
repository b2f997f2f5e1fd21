// Tests for the [Client] type covering login, activity commands, ping
// handling, and the Closed notification, using net.Pipe in place of the
// Discord socket.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"testing"
	"time"
)

// ///////////////////////////////////////////////
// Test Helpers
// ///////////////////////////////////////////////

// pipeClient returns a client whose dial yields one end of a net.Pipe, and the
// other end acting as the Discord server.
func pipeClient(t *testing.T) (*Client, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	c := NewClient("test-app-id")
	c.dial = func() (net.Conn, error) { return client, nil }
	return c, server
}

// readFrame reads a single frame from conn and decodes its JSON payload.
func readFrame(t *testing.T, conn net.Conn) (Opcode, map[string]any) {
	t.Helper()
	opcode, payload, err := DecodeFrame(conn)
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		t.Fatalf("failed to parse frame payload: %v", err)
	}
	return opcode, m
}

// writeFrame writes a JSON frame to conn.
func writeFrame(t *testing.T, conn net.Conn, op Opcode, v any) {
	t.Helper()
	payload, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	frame, err := EncodeFrame(op, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := conn.Write(frame); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// loginOK drives a successful handshake on the server side of the pipe.
func loginOK(t *testing.T, c *Client, server net.Conn) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- c.Login(context.Background()) }()

	op, m := readFrame(t, server)
	if op != OpHandshake {
		t.Fatalf("expected handshake opcode, got %d", op)
	}
	if m["client_id"] != "test-app-id" || m["v"] != float64(1) {
		t.Fatalf("unexpected handshake payload: %v", m)
	}
	writeFrame(t, server, OpFrame, map[string]any{"cmd": "DISPATCH", "evt": "READY"})

	if err := <-done; err != nil {
		t.Fatalf("Login: %v", err)
	}
}

// waitClosed fails the test if c.Closed() does not fire within a second.
func waitClosed(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.Closed():
	case <-time.After(time.Second):
		t.Fatal("Closed() did not fire")
	}
}

// ///////////////////////////////////////////////
// Login
// ///////////////////////////////////////////////

func TestLogin_Ready(t *testing.T) {
	c, server := pipeClient(t)
	loginOK(t, c, server)

	if !c.connected() {
		t.Fatal("expected connected() after READY")
	}
	select {
	case <-c.Closed():
		t.Fatal("Closed() fired on a live connection")
	default:
	}
}

func TestLogin_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		op      Opcode
		resp    map[string]any
		wantErr string
	}{
		{
			name:    "error event",
			op:      OpFrame,
			resp:    map[string]any{"evt": "ERROR", "data": map[string]any{"code": 4000, "message": "Invalid Client ID"}},
			wantErr: "Invalid Client ID",
		},
		{
			name:    "close frame",
			op:      OpClose,
			resp:    map[string]any{"code": 4000, "message": "Invalid Client ID"},
			wantErr: "code 4000",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, server := pipeClient(t)
			done := make(chan error, 1)
			go func() { done <- c.Login(context.Background()) }()

			readFrame(t, server)
			writeFrame(t, server, tt.op, tt.resp)

			err := <-done
			if !errors.Is(err, ErrHandshakeRejected) {
				t.Fatalf("expected ErrHandshakeRejected, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
			if c.connected() {
				t.Error("expected no connection after rejection")
			}
			waitClosed(t, c)
		})
	}
}

func TestLogin_UnexpectedEvent(t *testing.T) {
	c, server := pipeClient(t)
	done := make(chan error, 1)
	go func() { done <- c.Login(context.Background()) }()

	readFrame(t, server)
	writeFrame(t, server, OpFrame, map[string]any{"evt": "GUILD_STATUS"})

	if err := <-done; err == nil || !strings.Contains(err.Error(), "GUILD_STATUS") {
		t.Fatalf("expected unexpected-event error, got %v", err)
	}
}

func TestLogin_DialFailure(t *testing.T) {
	c := NewClient("test-app-id")
	c.dial = func() (net.Conn, error) { return nil, ErrIPCNotAvailable }

	err := c.Login(context.Background())
	if !errors.Is(err, ErrIPCNotAvailable) {
		t.Fatalf("expected ErrIPCNotAvailable, got %v", err)
	}
	waitClosed(t, c)
}

func TestLogin_ContextCancelled(t *testing.T) {
	c, server := pipeClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Login(ctx) }()

	// Swallow the handshake but never answer it.
	readFrame(t, server)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Login did not return after cancel")
	}
}

func TestLogin_SingleUse(t *testing.T) {
	c, server := pipeClient(t)
	loginOK(t, c, server)

	if err := c.Login(context.Background()); !errors.Is(err, ErrAlreadyUsed) {
		t.Fatalf("expected ErrAlreadyUsed, got %v", err)
	}
}

// ///////////////////////////////////////////////
// Commands
// ///////////////////////////////////////////////

func TestSetActivity(t *testing.T) {
	c, server := pipeClient(t)
	loginOK(t, c, server)

	activity := &Activity{
		Details:    "Editing main.go",
		State:      "Workspace: codecord",
		Timestamps: &Timestamps{Start: 1700000000},
		Assets: &Assets{
			LargeImage: "go",
			LargeText:  "Editing a go file",
			SmallImage: "editor",
			SmallText:  "Code editor",
		},
	}

	done := make(chan error, 1)
	go func() { done <- c.SetActivity(activity) }()

	op, m := readFrame(t, server)
	if op != OpFrame || m["cmd"] != "SET_ACTIVITY" {
		t.Fatalf("unexpected frame op=%d cmd=%v", op, m["cmd"])
	}
	if nonce, _ := m["nonce"].(string); nonce == "" {
		t.Error("expected non-empty nonce")
	}
	args := m["args"].(map[string]any)
	if int(args["pid"].(float64)) != os.Getpid() {
		t.Errorf("pid = %v, want %d", args["pid"], os.Getpid())
	}
	act := args["activity"].(map[string]any)
	if act["details"] != "Editing main.go" || act["state"] != "Workspace: codecord" {
		t.Errorf("activity text = %v / %v", act["details"], act["state"])
	}
	if act["instance"] != false {
		t.Errorf("instance = %v, want false", act["instance"])
	}
	if ts := act["timestamps"].(map[string]any); ts["start"] != float64(1700000000) {
		t.Errorf("timestamps.start = %v", ts["start"])
	}
	if assets := act["assets"].(map[string]any); assets["large_image"] != "go" || assets["small_text"] != "Code editor" {
		t.Errorf("assets = %v", assets)
	}

	if err := <-done; err != nil {
		t.Fatalf("SetActivity: %v", err)
	}
}

func TestClearActivity(t *testing.T) {
	c, server := pipeClient(t)
	loginOK(t, c, server)

	done := make(chan error, 1)
	go func() { done <- c.ClearActivity() }()

	_, m := readFrame(t, server)
	args := m["args"].(map[string]any)
	if v, ok := args["activity"]; !ok || v != nil {
		t.Fatalf("expected explicit null activity, got %v (present=%v)", v, ok)
	}
	if err := <-done; err != nil {
		t.Fatalf("ClearActivity: %v", err)
	}
}

func TestNonceUniqueness(t *testing.T) {
	c, server := pipeClient(t)
	loginOK(t, c, server)

	seen := make(map[string]bool)
	for i := range 5 {
		done := make(chan error, 1)
		go func() { done <- c.SetActivity(&Activity{Details: "x"}) }()

		_, m := readFrame(t, server)
		nonce := m["nonce"].(string)
		if seen[nonce] {
			t.Fatalf("duplicate nonce on call %d: %s", i, nonce)
		}
		seen[nonce] = true
		if err := <-done; err != nil {
			t.Fatalf("SetActivity %d: %v", i, err)
		}
	}
}

func TestCommandsNotConnected(t *testing.T) {
	c := NewClient("test-app-id")
	if err := c.SetActivity(&Activity{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SetActivity: expected ErrNotConnected, got %v", err)
	}
	if err := c.ClearActivity(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ClearActivity: expected ErrNotConnected, got %v", err)
	}
}

// ///////////////////////////////////////////////
// Read Loop
// ///////////////////////////////////////////////

func TestPingAnsweredWithPong(t *testing.T) {
	c, server := pipeClient(t)
	loginOK(t, c, server)

	writeFrame(t, server, OpPing, map[string]any{"n": 7})
	op, m := readFrame(t, server)
	if op != OpPong {
		t.Fatalf("expected pong, got opcode %d", op)
	}
	if m["n"] != float64(7) {
		t.Errorf("pong payload = %v, want echo of ping", m)
	}
}

func TestClosedFiresWhenServerDrops(t *testing.T) {
	c, server := pipeClient(t)
	loginOK(t, c, server)

	server.Close()
	waitClosed(t, c)
	if c.connected() {
		t.Error("expected connected() false after drop")
	}
}

func TestClosedFiresOnCloseFrame(t *testing.T) {
	c, server := pipeClient(t)
	loginOK(t, c, server)

	writeFrame(t, server, OpClose, map[string]any{"code": 1000, "message": "bye"})
	waitClosed(t, c)
}

// ///////////////////////////////////////////////
// Close
// ///////////////////////////////////////////////

func TestCloseIdempotent(t *testing.T) {
	c, server := pipeClient(t)
	loginOK(t, c, server)

	if err := c.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	waitClosed(t, c)
	if c.connected() {
		t.Error("expected connected() false after Close")
	}
}

func TestCloseBeforeLogin(t *testing.T) {
	c := NewClient("test-app-id")
	if err := c.Close(); err != nil {
		t.Fatalf("Close on unused client: %v", err)
	}
	waitClosed(t, c)
}

func TestCloseDuringHandshake(t *testing.T) {
	c, server := pipeClient(t)
	done := make(chan error, 1)
	go func() { done <- c.Login(context.Background()) }()

	readFrame(t, server)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	writeFrame(t, server, OpFrame, map[string]any{"cmd": "DISPATCH", "evt": "READY"})

	select {
	case err := <-done:
		if !errors.Is(err, ErrNotConnected) {
			t.Errorf("Login = %v, want ErrNotConnected", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Login did not return")
	}
	if c.connected() {
		t.Error("a closed client must not keep the connection")
	}
	// The socket is released, so Discord sees the disconnect.
	_ = server.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := DecodeFrame(server); !errors.Is(err, io.EOF) {
		t.Errorf("server read after Close = %v, want EOF", err)
	}
}
