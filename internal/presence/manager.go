// Package presence runs the Discord Rich Presence session: it connects when
// enabled, republishes the activity on every editor change, reconnects with a
// bounded retry loop after Discord goes away, and handles the toggle command.
//
// All session state is owned by the goroutine running [Manager.Run].
// Asynchronous results (login outcomes, disconnects, editor notifications,
// commands) are posted back to it as closures, so handlers never run
// concurrently and no locks guard the state. Every login is tagged with a
// generation number and the transport it belongs to; a continuation whose
// generation or transport no longer matches is dropped.
package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tools.zach/dev/codecord/internal/config"
	"tools.zach/dev/codecord/internal/discord"
	"tools.zach/dev/codecord/internal/editor"
	"tools.zach/dev/codecord/internal/langs"
	"tools.zach/dev/codecord/internal/logger"
)

// ToggleCommand is the command name the toggle action is registered under.
const ToggleCommand = "discord.toggle"

// User-facing messages.
const (
	msgEnabled     = "Discord Rich Presence enabled"
	msgDisabled    = "Discord Rich Presence disabled"
	msgNoClient    = "No Discord client detected. Is Discord running?"
	msgLoginFailed = "Could not connect to Discord: %v"
)

// ///////////////////////////////////////////////
// Collaborators
// ///////////////////////////////////////////////

// Host is the editor surface the session consumes.
type Host interface {
	Enabled() bool
	ClientID() string
	SetEnabled(enabled bool) error
	ActiveDocument() (editor.Document, bool)
	OnDidChangeDocument(fn func()) editor.Disposable
	RegisterCommand(name string, fn func()) editor.Disposable
	ShowInfo(msg string)
	ShowError(msg string)
}

// Transport is a single connection attempt to Discord. Implementations are
// single-use: after Close or a failed Login a new one is dialed.
type Transport interface {
	Login(ctx context.Context) error
	SetActivity(a *discord.Activity) error
	ClearActivity() error
	// Closed is closed once the connection ends for any reason.
	Closed() <-chan struct{}
	Close() error
}

// Dialer creates a transport for clientID without connecting it.
type Dialer func(clientID string) Transport

// DiscordDialer dials the local Discord client over IPC.
func DiscordDialer(clientID string) Transport {
	return discord.NewClient(clientID)
}

// sessionState describes where the session is in its lifecycle.
type sessionState int

const (
	stateDisconnected sessionState = iota
	stateConnecting
	stateConnected
	stateRetrying
)

func (s sessionState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	case stateRetrying:
		return "retrying"
	default:
		return "disconnected"
	}
}

// ///////////////////////////////////////////////
// Manager
// ///////////////////////////////////////////////

// Options configures a [Manager].
type Options struct {
	Host Host
	// Dial defaults to [DiscordDialer].
	Dial Dialer
	// Settings returns the current display and privacy settings. It is called
	// on every publish so edits to config.toml apply without a restart.
	// Defaults to [config.DefaultConfig].
	Settings func() *config.Config
	// Langs maps file extensions to image assets. May be nil.
	Langs *langs.Map

	// RetryInterval is the time between reconnect attempts. Default 5s.
	RetryInterval time.Duration
	// MaxAttempts bounds the reconnect loop. Default 20.
	MaxAttempts int
	// LoginTimeout bounds a single handshake. Default 10s.
	LoginTimeout time.Duration
	// Now defaults to [time.Now].
	Now func() time.Time
}

// Manager owns the presence session.
type Manager struct {
	host          Host
	dial          Dialer
	settings      func() *config.Config
	langs         *langs.Map
	retryInterval time.Duration
	maxAttempts   int
	loginTimeout  time.Duration
	now           func() time.Time

	// events carries closures posted to the loop.
	events chan func()
	// started is closed once Run has registered the toggle command.
	started chan struct{}
	// done is closed when Run returns so late posts are dropped.
	done chan struct{}

	// The fields below are owned by the Run goroutine.
	ctx         context.Context
	transport   Transport
	ready       bool
	gen         uint64
	cancelLogin context.CancelFunc
	listener    editor.Disposable
	command     editor.Disposable
	ticker      *time.Ticker
	attempts    int
	connectedAt time.Time
}

// NewManager creates a session manager. Call [Manager.Run] to activate it.
func NewManager(opts Options) *Manager {
	m := &Manager{
		host:          opts.Host,
		dial:          opts.Dial,
		settings:      opts.Settings,
		langs:         opts.Langs,
		retryInterval: opts.RetryInterval,
		maxAttempts:   opts.MaxAttempts,
		loginTimeout:  opts.LoginTimeout,
		now:           opts.Now,
		events:        make(chan func(), 64),
		started:       make(chan struct{}),
		done:          make(chan struct{}),
	}
	if m.dial == nil {
		m.dial = DiscordDialer
	}
	if m.settings == nil {
		m.settings = config.DefaultConfig
	}
	if m.retryInterval <= 0 {
		m.retryInterval = 5 * time.Second
	}
	if m.maxAttempts <= 0 {
		m.maxAttempts = 20
	}
	if m.loginTimeout <= 0 {
		m.loginTimeout = 10 * time.Second
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Run activates the session and processes events until ctx is done, then
// deactivates it. Run must be called at most once.
func (m *Manager) Run(ctx context.Context) {
	m.ctx = ctx
	defer close(m.done)

	m.activate()
	defer m.deactivate()
	close(m.started)

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-m.events:
			fn()
		case <-m.tickerC():
			m.retryTick()
		}
	}
}

// Started is closed once Run has activated the session and registered its
// command, so requests dispatched after it are never unknown.
func (m *Manager) Started() <-chan struct{} {
	return m.started
}

// Toggle requests the toggle action as if the command had been invoked.
func (m *Manager) Toggle() {
	m.post(m.toggle)
}

// post queues fn to run on the loop. It is dropped once Run has returned.
func (m *Manager) post(fn func()) {
	select {
	case m.events <- fn:
	case <-m.done:
	}
}

// tickerC returns the retry ticker's channel, or nil so the select never
// fires once the ticker is cancelled.
func (m *Manager) tickerC() <-chan time.Time {
	if m.ticker == nil {
		return nil
	}
	return m.ticker.C
}

// state reports the current lifecycle state.
func (m *Manager) state() sessionState {
	switch {
	case m.ticker != nil:
		return stateRetrying
	case m.ready:
		return stateConnected
	case m.transport != nil:
		return stateConnecting
	default:
		return stateDisconnected
	}
}

// ///////////////////////////////////////////////
// Lifecycle
// ///////////////////////////////////////////////

// activate registers the toggle command and connects if enabled.
func (m *Manager) activate() {
	m.command = m.host.RegisterCommand(ToggleCommand, func() { m.post(m.toggle) })
	if m.host.Enabled() {
		m.start(m.host.ClientID())
	} else {
		slog.Info("presence disabled, waiting for toggle")
	}
}

// deactivate tears the session down and unregisters the command.
func (m *Manager) deactivate() {
	m.stop()
	if m.command != nil {
		m.command.Dispose()
		m.command = nil
	}
	slog.Debug("presence session deactivated")
}

// start dials a new transport, replacing any held one, and begins an
// asynchronous login whose result is posted back to the loop.
func (m *Manager) start(clientID string) {
	m.release()

	m.gen++
	gen := m.gen
	t := m.dial(clientID)
	m.transport = t

	ctx, cancel := context.WithTimeout(m.ctx, m.loginTimeout)
	m.cancelLogin = cancel
	slog.Debug("connecting to discord", "generation", gen, "attempt", m.attempts)

	go func() {
		err := t.Login(ctx)
		cancel()
		m.post(func() { m.loginResult(t, gen, err) })
	}()
}

// loginResult dispatches a login outcome unless it belongs to a transport
// that has since been replaced or released.
func (m *Manager) loginResult(t Transport, gen uint64, err error) {
	if gen != m.gen || t != m.transport {
		logger.Trace(slog.Default(), "ignoring stale login result", "generation", gen, "current", m.gen, "error", err)
		return
	}
	if err != nil {
		m.loginFailed(err)
		return
	}
	m.onReady(t, gen)
}

// onReady runs once Discord has acknowledged the handshake.
func (m *Manager) onReady(t Transport, gen uint64) {
	m.cancelRetry()
	m.attempts = 0
	m.ready = true
	m.connectedAt = m.now()
	slog.Info("connected to discord")

	m.publish()

	if m.listener != nil {
		m.listener.Dispose()
	}
	m.listener = m.host.OnDidChangeDocument(func() { m.post(m.publish) })

	go func() {
		select {
		case <-t.Closed():
			m.post(func() { m.onClosed(t, gen) })
		case <-m.done:
		}
	}()
}

// onClosed handles the transport going away. Closures caused by stop are
// stale by the time they arrive and are ignored.
func (m *Manager) onClosed(t Transport, gen uint64) {
	if gen != m.gen || t != m.transport {
		return
	}
	if !m.host.Enabled() {
		slog.Debug("discord connection closed while disabled")
		return
	}
	slog.Info("lost connection to discord, reconnecting", "interval", m.retryInterval, "max_attempts", m.maxAttempts)
	m.stop()
	m.armRetry()
}

// loginFailed handles a failed login for the current transport.
func (m *Manager) loginFailed(err error) {
	if m.ticker != nil {
		slog.Debug("reconnect attempt failed", "attempt", m.attempts, "error", err)
		if m.attempts >= m.maxAttempts {
			slog.Warn("giving up on reconnecting to discord", "attempts", m.attempts)
			m.stop()
		}
		return
	}

	// The failed transport stays held so toggle still disables.
	if errors.Is(err, discord.ErrIPCNotAvailable) {
		slog.Warn("discord client not found", "error", err)
		m.host.ShowError(msgNoClient)
		return
	}
	slog.Error("discord login failed", "error", err)
	m.host.ShowError(fmt.Sprintf(msgLoginFailed, err))
}

// stop cancels any pending retry and releases the transport. Safe to call in
// any state.
func (m *Manager) stop() {
	m.cancelRetry()
	m.release()
}

// release disposes the change listener and closes the held transport.
func (m *Manager) release() {
	if m.listener != nil {
		m.listener.Dispose()
		m.listener = nil
	}
	if m.cancelLogin != nil {
		m.cancelLogin()
		m.cancelLogin = nil
	}
	if m.transport != nil {
		if err := m.transport.Close(); err != nil {
			slog.Debug("failed to close discord transport", "error", err)
		}
		m.transport = nil
	}
	m.ready = false
}

// ///////////////////////////////////////////////
// Retry
// ///////////////////////////////////////////////

func (m *Manager) armRetry() {
	m.cancelRetry()
	m.ticker = time.NewTicker(m.retryInterval)
}

func (m *Manager) cancelRetry() {
	if m.ticker != nil {
		m.ticker.Stop()
		m.ticker = nil
	}
}

// retryTick counts an attempt and starts a fresh connection. An attempt still
// logging in when the next tick fires is superseded and counts as failed, so
// the cap also holds when logins outlast the interval.
func (m *Manager) retryTick() {
	if m.attempts >= m.maxAttempts {
		slog.Warn("giving up on reconnecting to discord", "attempts", m.attempts)
		m.stop()
		return
	}
	m.attempts++
	slog.Debug("reconnecting to discord", "attempt", m.attempts, "max_attempts", m.maxAttempts)
	m.start(m.host.ClientID())
}

// ///////////////////////////////////////////////
// Actions
// ///////////////////////////////////////////////

// toggle flips the persisted enabled flag and connects or disconnects.
func (m *Manager) toggle() {
	if m.transport != nil {
		if err := m.host.SetEnabled(false); err != nil {
			slog.Error("failed to persist enabled flag", "error", err)
			m.host.ShowError(err.Error())
			return
		}
		if err := m.transport.ClearActivity(); err != nil {
			slog.Debug("failed to clear activity", "error", err)
		}
		m.stop()
		m.host.ShowInfo(msgDisabled)
		return
	}

	if err := m.host.SetEnabled(true); err != nil {
		slog.Error("failed to persist enabled flag", "error", err)
		m.host.ShowError(err.Error())
		return
	}
	m.start(m.host.ClientID())
	m.host.ShowInfo(msgEnabled)
}

// publish sends the current snapshot. Send failures are only logged.
func (m *Manager) publish() {
	if m.transport == nil {
		return
	}
	doc, active := m.host.ActiveDocument()
	snap := BuildSnapshot(m.settings(), m.langs, doc, active, m.connectedAt, m.now())
	logger.Trace(slog.Default(), "publishing activity", "details", snap.Details, "state", snap.State, "image", snap.LargeImageKey)
	if err := m.transport.SetActivity(snap.Activity()); err != nil {
		slog.Debug("failed to publish activity", "error", err)
	}
}
