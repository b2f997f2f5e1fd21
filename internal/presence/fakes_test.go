package presence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"tools.zach/dev/codecord/internal/discord"
	"tools.zach/dev/codecord/internal/editor"
)

// ///////////////////////////////////////////////
// Fake Host
// ///////////////////////////////////////////////

type fakeHost struct {
	mu        sync.Mutex
	enabled   bool
	clientID  string
	doc       editor.Document
	active    bool
	setErr    error
	nextID    int
	listeners map[int]func()
	commands  map[string]func()
	infos     []string
	errors    []string
}

func newFakeHost(enabled bool) *fakeHost {
	return &fakeHost{
		enabled:   enabled,
		clientID:  "test-client",
		listeners: make(map[int]func()),
		commands:  make(map[string]func()),
	}
}

type disposeFn func()

func (d disposeFn) Dispose() { d() }

func (h *fakeHost) Enabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enabled
}

func (h *fakeHost) ClientID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clientID
}

func (h *fakeHost) SetEnabled(enabled bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.setErr != nil {
		return h.setErr
	}
	h.enabled = enabled
	return nil
}

func (h *fakeHost) setEnabled(enabled bool) {
	h.mu.Lock()
	h.enabled = enabled
	h.mu.Unlock()
}

func (h *fakeHost) ActiveDocument() (editor.Document, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.doc, h.active
}

func (h *fakeHost) setDocument(doc editor.Document) {
	h.mu.Lock()
	h.doc = doc
	h.active = true
	h.mu.Unlock()
}

func (h *fakeHost) OnDidChangeDocument(fn func()) editor.Disposable {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	return disposeFn(func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	})
}

func (h *fakeHost) listenerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// fireChange simulates an editor change notification.
func (h *fakeHost) fireChange() {
	h.mu.Lock()
	fns := make([]func(), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (h *fakeHost) RegisterCommand(name string, fn func()) editor.Disposable {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands[name] = fn
	return disposeFn(func() {
		h.mu.Lock()
		delete(h.commands, name)
		h.mu.Unlock()
	})
}

// invoke runs a registered command the way the editor would.
func (h *fakeHost) invoke(t *testing.T, name string) {
	t.Helper()
	h.mu.Lock()
	fn := h.commands[name]
	h.mu.Unlock()
	if fn == nil {
		t.Fatalf("command %q not registered", name)
	}
	fn()
}

func (h *fakeHost) ShowInfo(msg string) {
	h.mu.Lock()
	h.infos = append(h.infos, msg)
	h.mu.Unlock()
}

func (h *fakeHost) ShowError(msg string) {
	h.mu.Lock()
	h.errors = append(h.errors, msg)
	h.mu.Unlock()
}

func (h *fakeHost) messages() (infos, errs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.infos...), append([]string(nil), h.errors...)
}

// ///////////////////////////////////////////////
// Fake Transport
// ///////////////////////////////////////////////

type fakeTransport struct {
	loginErr error
	// hold, when non-nil, blocks Login until closed.
	hold chan struct{}

	mu         sync.Mutex
	calls      []string
	activities []*discord.Activity

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport(loginErr error) *fakeTransport {
	return &fakeTransport{loginErr: loginErr, closed: make(chan struct{})}
}

func (f *fakeTransport) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeTransport) Login(ctx context.Context) error {
	f.record("login")
	if f.hold != nil {
		select {
		case <-f.hold:
		case <-f.closed:
			return fmt.Errorf("connection closed during login")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.loginErr != nil {
		f.drop()
	}
	return f.loginErr
}

func (f *fakeTransport) SetActivity(a *discord.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "set")
	f.activities = append(f.activities, a)
	return nil
}

func (f *fakeTransport) ClearActivity() error {
	f.record("clear")
	return nil
}

func (f *fakeTransport) Closed() <-chan struct{} { return f.closed }

func (f *fakeTransport) Close() error {
	f.record("close")
	f.drop()
	return nil
}

// drop ends the connection as if Discord went away.
func (f *fakeTransport) drop() {
	f.closeOnce.Do(func() { close(f.closed) })
}

func (f *fakeTransport) snapshot() (calls []string, acts []*discord.Activity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...), append([]*discord.Activity(nil), f.activities...)
}

// ///////////////////////////////////////////////
// Fake Dialer
// ///////////////////////////////////////////////

// scriptDialer hands out transports whose login results follow a script.
// Once the script runs out every login succeeds.
type scriptDialer struct {
	mu         sync.Mutex
	script     []error
	transports []*fakeTransport
	// onDial, when set, runs on the session loop at dial time.
	onDial func(n int)
}

func (d *scriptDialer) dial(clientID string) Transport {
	d.mu.Lock()
	var err error
	if len(d.script) > 0 {
		err = d.script[0]
		d.script = d.script[1:]
	}
	t := newFakeTransport(err)
	d.transports = append(d.transports, t)
	n := len(d.transports)
	hook := d.onDial
	d.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return t
}

func (d *scriptDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.transports)
}

func (d *scriptDialer) get(i int) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transports[i]
}

// ///////////////////////////////////////////////
// Harness
// ///////////////////////////////////////////////

// runManager starts m.Run and stops it when the test ends.
func runManager(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// inspect runs fn on the session loop and waits for it.
func inspect(t *testing.T, m *Manager, fn func()) {
	t.Helper()
	ran := make(chan struct{})
	m.post(func() {
		fn()
		close(ran)
	})
	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("session loop did not respond")
	}
}

// waitFor polls cond on the session loop until it holds.
func waitFor(t *testing.T, m *Manager, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var ok bool
		inspect(t, m, func() { ok = cond() })
		if ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// stateOf returns the session state as seen from the loop.
func stateOf(t *testing.T, m *Manager) sessionState {
	t.Helper()
	var s sessionState
	inspect(t, m, func() { s = m.state() })
	return s
}
