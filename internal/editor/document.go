// Package editor is the daemon's view of the code editor.
//
// Editors report activity by writing editor.json into the data directory
// (directly from a plugin, or through `codecord focus`) and invoke commands by
// dropping request files next to it. [FileHost] watches both and exposes them
// as an active document, change notifications, a command registry, user
// messages, and the persisted presence toggle.
package editor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tools.zach/dev/codecord/internal/atomicfile"
)

// StateVersion is the editor.json schema version written by [WriteState].
const StateVersion = 1

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// State is the on-disk editor.json schema.
type State struct {
	// Version is the schema version. See [StateVersion].
	Version int `json:"$version"`
	// File is the absolute path of the focused document, or empty when no
	// document is focused.
	File string `json:"file"`
	// LanguageID is the editor's language identifier (e.g. "go", "typescriptreact").
	LanguageID string `json:"languageId"`
	// WorkspaceFolder is the name of the workspace folder owning File.
	WorkspaceFolder string `json:"workspaceFolder"`
	// UpdatedAt is the Unix timestamp of the write.
	UpdatedAt int64 `json:"updatedAt"`
}

// Document describes the editor's active document.
type Document struct {
	Path            string
	LanguageID      string
	WorkspaceFolder string
}

// BaseName returns the file name without its directory.
func (d Document) BaseName() string {
	return filepath.Base(d.Path)
}

// Ext returns the lowercased extension without the leading dot, or "" when
// the file has none. Dotfiles such as ".bashrc" have no extension.
func (d Document) Ext() string {
	base := d.BaseName()
	ext := filepath.Ext(base)
	if ext == base {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Document converts s into a Document, reporting false when no file is active.
func (s State) Document() (Document, bool) {
	if strings.TrimSpace(s.File) == "" {
		return Document{}, false
	}
	return Document{
		Path:            s.File,
		LanguageID:      s.LanguageID,
		WorkspaceFolder: s.WorkspaceFolder,
	}, true
}

// ///////////////////////////////////////////////
// Persistence
// ///////////////////////////////////////////////

// ReadState reads editor.json. A missing file is not an error and yields the
// zero State (no active document).
func ReadState(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("read editor state: %w", err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("parse editor state: %w", err)
	}
	if s.Version > StateVersion {
		return s, fmt.Errorf("editor state version %d is newer than supported version %d", s.Version, StateVersion)
	}
	return s, nil
}

// WriteState atomically writes s to path, stamping the version and, when
// unset, the update time.
func WriteState(path string, s State) error {
	s.Version = StateVersion
	if s.UpdatedAt == 0 {
		s.UpdatedAt = time.Now().Unix()
	}
	return atomicfile.WriteJSON(path, s, 0o644)
}
