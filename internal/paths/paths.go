// Package paths centralizes file and directory names used across the project.
// All data directory file names are defined here as the single source of truth,
// including the ones an editor plugin writes into.
package paths

import (
	"path/filepath"
	"strings"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	PIDFile        = "daemon.pid"
	ConfigFile     = "config.toml"
	LogFile        = "daemon.log"
	EditorFile     = "editor.json"
	LangsCacheFile = "languages-cache.json"
)

// Editor bridge constants. The editor plugin writes [EditorFile] on every
// focus or edit and drops command request files named
// "command.<name>.<nonce>" to invoke a registered command.
const (
	CommandPrefix = "command."
	BinaryName    = "codecord"
	DataDirRel    = ".codecord" // relative to $HOME
)

// Remote-fetched file paths (relative to repo root).
const (
	LangsDataPath   = "data/languages.json"
	ReleaseManifest = ".release-manifest.json"
)

// CommandFile returns the request file name for command name with the given
// nonce. For example, CommandFile("discord.toggle", "ab12") returns
// "command.discord.toggle.ab12".
func CommandFile(name, nonce string) string {
	return CommandPrefix + name + "." + nonce
}

// ParseCommandFile extracts the command name from a request file name.
// It reports false when base is not a command request file.
func ParseCommandFile(base string) (string, bool) {
	if !strings.HasPrefix(base, CommandPrefix) {
		return "", false
	}
	rest := strings.TrimPrefix(base, CommandPrefix)
	i := strings.LastIndex(rest, ".")
	if i <= 0 || i == len(rest)-1 {
		return "", false
	}
	// Temp files from atomic writes carry a ".tmp.<n>" suffix.
	if strings.HasSuffix(rest[:i], ".tmp") {
		return "", false
	}
	return rest[:i], true
}

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// PID returns the full path to the PID file.
func (d DataDir) PID() string { return filepath.Join(d.Root, PIDFile) }

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// Log returns the full path to the log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

// Editor returns the full path to the editor state file.
func (d DataDir) Editor() string { return filepath.Join(d.Root, EditorFile) }

// LangsCache returns the full path to the language asset cache file.
func (d DataDir) LangsCache() string { return filepath.Join(d.Root, LangsCacheFile) }

// Command returns the full path to a command request file.
func (d DataDir) Command(name, nonce string) string {
	return filepath.Join(d.Root, CommandFile(name, nonce))
}
