package editor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"tools.zach/dev/codecord/internal/paths"
)

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

// Watcher monitors the data directory for editor.json writes and command
// request files, using fsnotify with a polling fallback.
type Watcher struct {
	dir string
	// changes receives one signal per editor.json write event.
	changes chan struct{}
	// commands receives the base name of each new command request file.
	commands chan string
	done     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
	// fsw is owned by the watch goroutine; nil when polling.
	fsw          *fsnotify.Watcher
	polling      atomic.Bool
	pollInterval time.Duration
}

// NewWatcher starts watching dir. It falls back to polling when fsnotify is
// unavailable or the directory cannot be watched.
func NewWatcher(dir string) (*Watcher, error) {
	return newWatcher(dir, 2*time.Second)
}

func newWatcher(dir string, pollInterval time.Duration) (*Watcher, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	w := &Watcher{
		dir:          dir,
		changes:      make(chan struct{}, 16),
		commands:     make(chan string, 16),
		done:         make(chan struct{}),
		pollInterval: pollInterval,
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Info("fsnotify unavailable, falling back to polling", "error", err)
		w.startPolling()
		return w, nil
	}
	if err := fsw.Add(dir); err != nil {
		slog.Info("cannot watch data directory, falling back to polling", "path", dir, "error", err)
		fsw.Close()
		w.startPolling()
		return w, nil
	}

	w.fsw = fsw
	w.wg.Add(1)
	go w.watch()
	return w, nil
}

// Changes returns a channel that receives a signal when editor.json changes.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Commands returns a channel that receives command request file names.
func (w *Watcher) Commands() <-chan string {
	return w.commands
}

// Polling reports whether the watcher is using polling instead of fsnotify.
func (w *Watcher) Polling() bool {
	return w.polling.Load()
}

// Close stops the watcher and waits for its goroutine to exit. It is safe to
// call more than once.
func (w *Watcher) Close() error {
	w.once.Do(func() { close(w.done) })
	w.wg.Wait()
	return nil
}

func (w *Watcher) startPolling() {
	w.polling.Store(true)
	w.wg.Add(1)
	go w.poll()
}

// watch forwards fsnotify events. On a watcher error it closes fsnotify and
// switches to polling.
func (w *Watcher) watch() {
	defer w.wg.Done()
	defer func() {
		if w.fsw != nil {
			w.fsw.Close()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.dispatch(filepath.Base(event.Name))
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Info("fsnotify error, switching to polling", "error", err)
			w.fsw.Close()
			w.fsw = nil
			w.startPolling()
			return
		}
	}
}

// poll scans the directory on a ticker, reporting editor.json when its
// modification time advances and every command file it finds.
func (w *Watcher) poll() {
	defer w.wg.Done()

	lastMod := w.editorMod()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if mod := w.editorMod(); mod.After(lastMod) {
				lastMod = mod
				w.notifyChange()
			}
			for _, name := range PendingCommands(w.dir) {
				w.sendCommand(name)
			}
		}
	}
}

// editorMod returns the modification time of editor.json, or zero.
func (w *Watcher) editorMod() time.Time {
	info, err := os.Stat(filepath.Join(w.dir, paths.EditorFile))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// dispatch routes a changed file name to the matching channel.
func (w *Watcher) dispatch(base string) {
	if base == paths.EditorFile {
		w.notifyChange()
		return
	}
	if _, ok := paths.ParseCommandFile(base); ok {
		w.sendCommand(base)
	}
}

// notifyChange forwards a change signal unless the watcher is closing. Every
// write is delivered, so each one republishes.
func (w *Watcher) notifyChange() {
	select {
	case w.changes <- struct{}{}:
	case <-w.done:
	}
}

// sendCommand forwards a command file name unless the watcher is closing.
func (w *Watcher) sendCommand(base string) {
	select {
	case w.commands <- base:
	case <-w.done:
	}
}

// PendingCommands lists command request files currently in dir.
func PendingCommands(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := paths.ParseCommandFile(e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	return names
}
