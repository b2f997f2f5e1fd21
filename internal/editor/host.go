package editor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"tools.zach/dev/codecord/internal/atomicfile"
	"tools.zach/dev/codecord/internal/config"
	"tools.zach/dev/codecord/internal/logger"
	"tools.zach/dev/codecord/internal/paths"
)

// ///////////////////////////////////////////////
// Disposable
// ///////////////////////////////////////////////

// Disposable undoes a registration. Dispose is idempotent.
type Disposable interface {
	Dispose()
}

// disposeFunc adapts a function to [Disposable], running it at most once.
type disposeFunc struct {
	once sync.Once
	fn   func()
}

func (d *disposeFunc) Dispose() { d.once.Do(d.fn) }

// ///////////////////////////////////////////////
// FileHost
// ///////////////////////////////////////////////

// FileHost implements the editor host on top of the data directory.
type FileHost struct {
	dirs     paths.DataDir
	messages io.Writer
	watcher  *Watcher

	mu        sync.Mutex
	nextID    int
	listeners map[int]func()
	commands  map[string]command
	// lastCfg is the most recent config that loaded cleanly, used when the
	// file is briefly unreadable mid-edit.
	lastCfg *config.Config
}

// NewFileHost creates a host rooted at dataDir and starts watching it.
// Command files left over from before startup are discarded. User-facing
// messages are logged and, when messages is non-nil, also written there one
// per line.
func NewFileHost(dataDir string, messages io.Writer) (*FileHost, error) {
	w, err := NewWatcher(dataDir)
	if err != nil {
		return nil, err
	}
	return newFileHost(dataDir, messages, w), nil
}

func newFileHost(dataDir string, messages io.Writer, w *Watcher) *FileHost {
	h := &FileHost{
		dirs:      paths.DataDir{Root: dataDir},
		messages:  messages,
		watcher:   w,
		listeners: make(map[int]func()),
		commands:  make(map[string]command),
	}
	h.discardStale()
	return h
}

// discardStale removes command request files that predate the host.
func (h *FileHost) discardStale() {
	for _, name := range PendingCommands(h.dirs.Root) {
		if err := os.Remove(filepath.Join(h.dirs.Root, name)); err == nil {
			slog.Info("discarded stale command request", "file", name)
		}
	}
}

// command is a registered handler tagged with its registration id.
type command struct {
	id int
	fn func()
}

// Run dispatches change notifications and command requests until ctx is
// done.
func (h *FileHost) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.watcher.Changes():
			logger.Trace(slog.Default(), "editor state changed")
			h.fireChange()
		case base := <-h.watcher.Commands():
			h.runCommand(base)
		}
	}
}

// Close stops the underlying watcher.
func (h *FileHost) Close() error {
	return h.watcher.Close()
}

// Polling reports whether the host fell back to polling the data directory.
func (h *FileHost) Polling() bool {
	return h.watcher.Polling()
}

// fireChange calls every registered change listener.
func (h *FileHost) fireChange() {
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

// runCommand claims a command request file by removing it and runs the
// registered handler. A file that is already gone was claimed by an earlier
// event for the same request.
func (h *FileHost) runCommand(base string) {
	name, ok := paths.ParseCommandFile(base)
	if !ok {
		return
	}
	if err := os.Remove(filepath.Join(h.dirs.Root, base)); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove command request", "file", base, "error", err)
		}
		return
	}

	h.mu.Lock()
	cmd, ok := h.commands[name]
	h.mu.Unlock()
	if !ok {
		slog.Warn("unknown command requested", "command", name)
		return
	}
	slog.Info("running command", "command", name)
	cmd.fn()
}

// ///////////////////////////////////////////////
// Settings
// ///////////////////////////////////////////////

// Settings loads config.toml, falling back to the last good copy (or the
// defaults) when it cannot be read.
func (h *FileHost) Settings() *config.Config {
	cfg, err := config.Load(h.dirs.Root)
	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		slog.Warn("failed to load settings, using previous values", "error", err)
		if h.lastCfg != nil {
			return h.lastCfg
		}
		return config.DefaultConfig()
	}
	h.lastCfg = cfg
	return cfg
}

// Enabled reports the persisted presence.enabled flag.
func (h *FileHost) Enabled() bool {
	return h.Settings().Presence.Enabled
}

// ClientID returns the persisted Discord application ID.
func (h *FileHost) ClientID() string {
	return h.Settings().Discord.AppID
}

// SetEnabled persists presence.enabled.
func (h *FileHost) SetEnabled(enabled bool) error {
	if err := config.SetEnabled(h.dirs.Root, enabled); err != nil {
		return fmt.Errorf("persist enabled flag: %w", err)
	}
	return nil
}

// ///////////////////////////////////////////////
// Document
// ///////////////////////////////////////////////

// ActiveDocument returns the focused document from editor.json.
func (h *FileHost) ActiveDocument() (Document, bool) {
	s, err := ReadState(h.dirs.Editor())
	if err != nil {
		slog.Debug("editor state not readable", "error", err)
	}
	return s.Document()
}

// OnDidChangeDocument registers fn to run after every editor.json write.
func (h *FileHost) OnDidChangeDocument(fn func()) Disposable {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	h.mu.Unlock()

	return &disposeFunc{fn: func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}}
}

// ///////////////////////////////////////////////
// Commands
// ///////////////////////////////////////////////

// RegisterCommand binds fn to command name, replacing any previous binding.
// Disposing the returned registration only removes this binding.
func (h *FileHost) RegisterCommand(name string, fn func()) Disposable {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.commands[name] = command{id: id, fn: fn}
	h.mu.Unlock()

	return &disposeFunc{fn: func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if cur, ok := h.commands[name]; ok && cur.id == id {
			delete(h.commands, name)
		}
	}}
}

// RequestCommand drops a request for command name into dataDir for a running
// daemon to pick up.
func RequestCommand(dataDir, name string) error {
	d := paths.DataDir{Root: dataDir}
	if err := atomicfile.Write(d.Command(name, uuid.NewString()), nil, 0o644); err != nil {
		return fmt.Errorf("request %s: %w", name, err)
	}
	return nil
}

// ///////////////////////////////////////////////
// Messages
// ///////////////////////////////////////////////

// ShowInfo reports an informational message to the user.
func (h *FileHost) ShowInfo(msg string) {
	slog.Info(msg)
	h.print(msg)
}

// ShowError reports an error message to the user.
func (h *FileHost) ShowError(msg string) {
	slog.Error(msg)
	h.print(msg)
}

func (h *FileHost) print(msg string) {
	if h.messages == nil {
		return
	}
	fmt.Fprintln(h.messages, paths.BinaryName+": "+msg)
}
