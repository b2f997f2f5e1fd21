// Package config provides configuration loading and defaults for the codecord
// daemon.
//
// Configuration is loaded from a TOML file in the user's data directory. It
// carries the persisted presence toggle, the Discord application ID, display
// templates for the presence card, privacy controls, and reconnect policy.
package config

//go:generate go run ../../cmd/genconfig

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"tools.zach/dev/codecord/internal/atomicfile"
	"tools.zach/dev/codecord/internal/paths"
)

// CurrentVersion is the config schema version written by [Config.Save].
const CurrentVersion = 1

// DefaultDiscordAppID is the codecord Discord application ID.
const DefaultDiscordAppID = "383226320970055681"

// Template variables understood by [Config.Render].
const (
	VarFile      = "{file}"
	VarExt       = "{ext}"
	VarLanguage  = "{language}"
	VarWorkspace = "{workspace}"
)

// Timestamp modes.
const (
	// TimestampPublish recomputes the start timestamp on every publish, so the
	// elapsed counter restarts on each edit.
	TimestampPublish = "publish"
	// TimestampSession fixes the start timestamp when the connection becomes ready.
	TimestampSession = "session"
	// TimestampNone omits the timestamp.
	TimestampNone = "none"
)

// Language asset sources.
const (
	LangsSourceURL     = "url"
	LangsSourceFile    = "file"
	LangsSourceBuiltin = "builtin"
)

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Version is the config schema version.
	Version int `toml:"version"`
	// Presence holds the persisted toggle state.
	Presence PresenceConfig `toml:"presence"`
	// Discord holds Discord connection settings.
	Discord DiscordConfig `toml:"discord"`
	// Display holds presence card templates and assets.
	Display DisplayConfig `toml:"display"`
	// Privacy holds file and workspace hiding rules.
	Privacy PrivacyConfig `toml:"privacy"`
	// Behavior holds reconnect and daemon behavior settings.
	Behavior BehaviorConfig `toml:"behavior"`
	// Languages controls where the extension to asset-key map comes from.
	Languages LanguagesConfig `toml:"languages"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
}

// PresenceConfig holds the enabled flag toggled by the discord.toggle command.
type PresenceConfig struct {
	Enabled bool `toml:"enabled"`
}

// DiscordConfig holds Discord connection settings.
type DiscordConfig struct {
	// AppID is the client identifier used to log in to the Discord IPC socket.
	AppID string `toml:"app_id"`
}

// DisplayConfig holds presence display settings.
type DisplayConfig struct {
	// Details is the top line while a document is active.
	Details string `toml:"details"`
	// State is the bottom line while a document is active.
	State string `toml:"state"`
	// IdleDetails is the top line when no document is active.
	IdleDetails string `toml:"idle_details"`
	// IdleState is the bottom line when no document is active.
	IdleState string `toml:"idle_state"`
	// NoWorkspaceText replaces {workspace} for files outside any workspace folder.
	NoWorkspaceText string `toml:"no_workspace_text"`
	// Assets holds Discord image keys and tooltips.
	Assets AssetsConfig `toml:"assets"`
	// Timestamps holds elapsed-timer settings.
	Timestamps TimestampsConfig `toml:"timestamps"`
}

// AssetsConfig holds Discord Rich Presence asset settings.
type AssetsConfig struct {
	// DefaultImage is the large image key for files without an extension.
	DefaultImage string `toml:"default_image"`
	// LargeText is the large image tooltip template while a document is active.
	LargeText string `toml:"large_text"`
	// IdleImage is the large image key when no document is active.
	IdleImage string `toml:"idle_image"`
	// IdleText is the large image tooltip when no document is active.
	IdleText string `toml:"idle_text"`
	// SmallImage is the fixed small image key.
	SmallImage string `toml:"small_image"`
	// SmallText is the fixed small image tooltip.
	SmallText string `toml:"small_text"`
}

// TimestampsConfig holds timestamp display settings.
type TimestampsConfig struct {
	// Mode is "publish", "session", or "none".
	Mode string `toml:"mode"`
}

// PrivacyConfig holds privacy settings.
type PrivacyConfig struct {
	// Ignore lists doublestar globs; a matching active file is published as idle.
	Ignore []string `toml:"ignore"`
	// HideWorkspace replaces the workspace folder name with HiddenWorkspaceText.
	HideWorkspace bool `toml:"hide_workspace"`
	// HiddenWorkspaceText is shown in place of a hidden workspace name.
	HiddenWorkspaceText string `toml:"hidden_workspace_text"`
	// HideFileName replaces the file name with HiddenFileText.
	HideFileName bool `toml:"hide_file_name"`
	// HiddenFileText is shown in place of a hidden file name.
	HiddenFileText string `toml:"hidden_file_text"`
}

// BehaviorConfig holds daemon behavior settings.
type BehaviorConfig struct {
	// ReconnectIntervalSeconds is the period of the reconnect ticker.
	ReconnectIntervalSeconds int `toml:"reconnect_interval_seconds"`
	// MaxReconnectAttempts is the number of ticker firings before giving up.
	MaxReconnectAttempts int `toml:"max_reconnect_attempts"`
	// LoginTimeoutSeconds bounds a single handshake with the Discord client.
	LoginTimeoutSeconds int `toml:"login_timeout_seconds"`
	// CheckUpdates enables the startup release check.
	CheckUpdates bool `toml:"check_updates"`
}

// LanguagesConfig selects the source of the language asset map.
type LanguagesConfig struct {
	// Source is "url", "file", or "builtin".
	Source string `toml:"source"`
	// URL overrides the default remote location.
	URL string `toml:"url,omitempty"`
	// File is the local JSON map for source "file".
	File string `toml:"file,omitempty"`
	// Overrides maps extensions (without dot) to asset keys and wins over any source.
	Overrides map[string]string `toml:"overrides,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Version:  CurrentVersion,
		Presence: PresenceConfig{Enabled: true},
		Discord:  DiscordConfig{AppID: DefaultDiscordAppID},
		Display: DisplayConfig{
			Details:         "Editing " + VarFile,
			State:           "Workspace: " + VarWorkspace,
			IdleDetails:     "Idling",
			IdleState:       "Idle",
			NoWorkspaceText: "No workspace",
			Assets: AssetsConfig{
				DefaultImage: "file",
				LargeText:    "Editing a " + VarLanguage + " file",
				IdleImage:    "idle",
				IdleText:     "Idling",
				SmallImage:   "editor",
				SmallText:    "Code editor",
			},
			Timestamps: TimestampsConfig{Mode: TimestampPublish},
		},
		Privacy: PrivacyConfig{
			Ignore:              []string{},
			HiddenWorkspaceText: "a workspace",
			HiddenFileText:      "a file",
		},
		Behavior: BehaviorConfig{
			ReconnectIntervalSeconds: 5,
			MaxReconnectAttempts:     20,
			LoginTimeoutSeconds:      10,
			CheckUpdates:             true,
		},
		Languages: LanguagesConfig{Source: LangsSourceURL},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads and parses dataDir/config.toml on top of [DefaultConfig].
// A missing file yields the defaults.
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, paths.ConfigFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for _, key := range md.Undecoded() {
		slog.Warn("unknown config key", "key", key.String())
	}
	if cfg.Version > CurrentVersion {
		return nil, fmt.Errorf("config version %d is newer than supported version %d", cfg.Version, CurrentVersion)
	}
	cfg.Version = CurrentVersion

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Save writes the config to disk as TOML using atomic file write.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o644)
}

// SetEnabled loads dataDir/config.toml, sets presence.enabled, and saves it.
// The rest of the file is rewritten from the loaded values, so keys unknown to
// this version are dropped.
func SetEnabled(dataDir string, enabled bool) error {
	cfg, err := Load(dataDir)
	if err != nil {
		return err
	}
	cfg.Presence.Enabled = enabled
	if err := cfg.Save(filepath.Join(dataDir, paths.ConfigFile)); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Discord.AppID) == "" {
		return fmt.Errorf("discord.app_id must not be empty")
	}

	switch c.Display.Timestamps.Mode {
	case TimestampPublish, TimestampSession, TimestampNone:
	default:
		return fmt.Errorf("invalid timestamps.mode %q: must be publish, session, or none", c.Display.Timestamps.Mode)
	}

	if c.Behavior.ReconnectIntervalSeconds <= 0 {
		return fmt.Errorf("reconnect_interval_seconds must be > 0, got %d", c.Behavior.ReconnectIntervalSeconds)
	}
	if c.Behavior.MaxReconnectAttempts <= 0 {
		return fmt.Errorf("max_reconnect_attempts must be > 0, got %d", c.Behavior.MaxReconnectAttempts)
	}
	if c.Behavior.LoginTimeoutSeconds <= 0 {
		return fmt.Errorf("login_timeout_seconds must be > 0, got %d", c.Behavior.LoginTimeoutSeconds)
	}

	switch c.Languages.Source {
	case LangsSourceURL, LangsSourceBuiltin:
	case LangsSourceFile:
		if c.Languages.File == "" {
			return fmt.Errorf("languages.file is required when languages.source is %q", LangsSourceFile)
		}
	default:
		return fmt.Errorf("invalid languages.source %q: must be url, file, or builtin", c.Languages.Source)
	}

	for _, pattern := range c.Privacy.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid privacy.ignore pattern %q", pattern)
		}
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}
	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}

	return nil
}

// ///////////////////////////////////////////////
// Template Helpers
// ///////////////////////////////////////////////

// TemplateVars holds the values substituted into display templates.
type TemplateVars struct {
	File      string
	Ext       string
	Language  string
	Workspace string
}

// Render substitutes {file}, {ext}, {language}, and {workspace} in tmpl.
func Render(tmpl string, v TemplateVars) string {
	r := strings.NewReplacer(
		VarFile, v.File,
		VarExt, v.Ext,
		VarLanguage, v.Language,
		VarWorkspace, v.Workspace,
	)
	return r.Replace(tmpl)
}

// ///////////////////////////////////////////////
// Privacy Helpers
// ///////////////////////////////////////////////

// IsIgnored reports whether path matches any of the configured ignore patterns.
// Paths are matched in slash form so patterns are portable across platforms.
func (c *Config) IsIgnored(path string) bool {
	p := filepath.ToSlash(path)
	for _, pattern := range c.Privacy.Ignore {
		matched, err := doublestar.Match(pattern, p)
		if err != nil {
			slog.Warn("invalid glob pattern", "pattern", pattern, "error", err)
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// WorkspaceName returns the display name for a workspace folder, respecting
// privacy settings. An empty name renders NoWorkspaceText.
func (c *Config) WorkspaceName(name string) string {
	if name == "" {
		return c.Display.NoWorkspaceText
	}
	if c.Privacy.HideWorkspace {
		return c.Privacy.HiddenWorkspaceText
	}
	return name
}

// FileName returns the display name for a file base name, respecting privacy
// settings.
func (c *Config) FileName(base string) string {
	if c.Privacy.HideFileName {
		return c.Privacy.HiddenFileText
	}
	return base
}
