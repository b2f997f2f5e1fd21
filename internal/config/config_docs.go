package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc documents one config key in the generated config.default.toml.
type FieldDoc struct {
	// Comment is written above the key, one "# " line per newline.
	Comment string

	// Alternatives are written below the active value as commented-out lines.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps dotted TOML paths (e.g. "display.assets.small_image") to
// their documentation. Section headers use the section path as the key.
var ConfigDocs = map[string]FieldDoc{
	// Root
	"version": {
		Comment: "Config schema version. Do not edit.",
	},

	// Presence
	"presence.enabled": {
		Comment: "Whether Rich Presence is on. Flipped by `codecord toggle` and the\ndiscord.toggle editor command.",
	},

	// Discord
	"discord.app_id": {
		Comment: "Discord application ID used for the IPC handshake.\nUse your own application to upload custom image assets.",
	},

	// Display
	"display.details": {
		Comment: "Presence card lines while a document is focused.\nVariables: {file}, {ext}, {language}, {workspace}\n\ndetails = top line, state = bottom line",
	},
	"display.state": {},
	"display.idle_details": {
		Comment: "Lines shown when no document is focused or the file is ignored",
	},
	"display.idle_state": {},
	"display.no_workspace_text": {
		Comment: "Replaces {workspace} for files opened outside a workspace folder",
	},

	// Assets
	"display.assets.default_image": {
		Comment: "Large image for files without an extension. Files with an extension use\nthe key from the language map, or the extension itself.",
	},
	"display.assets.large_text": {},
	"display.assets.idle_image": {},
	"display.assets.idle_text": {},
	"display.assets.small_image": {
		Comment: "Fixed small image overlay",
	},
	"display.assets.small_text": {},

	// Timestamps
	"display.timestamps.mode": {
		Comment:      "Elapsed timer start:\n  publish = reset on every update\n  session = time since Discord connected\n  none    = no timer",
		Alternatives: []string{`mode = "session"`, `mode = "none"`},
	},

	// Privacy
	"privacy.ignore": {
		Comment:      "Files matching any glob are shown as idle. Patterns use ** for any depth.",
		Alternatives: []string{`ignore = ["**/secret/**", "**/.env*"]`},
	},
	"privacy.hide_workspace": {
		Comment: "Replace the workspace folder name",
	},
	"privacy.hidden_workspace_text": {},
	"privacy.hide_file_name": {
		Comment: "Replace the file name",
	},
	"privacy.hidden_file_text": {},

	// Behavior
	"behavior.reconnect_interval_seconds": {
		Comment: "Seconds between reconnect attempts after Discord goes away",
	},
	"behavior.max_reconnect_attempts": {
		Comment: "Reconnect attempts before giving up until the next toggle",
	},
	"behavior.login_timeout_seconds": {
		Comment: "Seconds to wait for the Discord handshake",
	},
	"behavior.check_updates": {
		Comment: "Log a notice at startup when a newer release exists",
	},

	// Languages
	"languages.source": {
		Comment:      "Where the extension to image map comes from:\n  url     = fetch from GitHub, cache locally, fall back to the cache then the built-in map\n  file    = read a local JSON file\n  builtin = use the map compiled into the binary",
		Alternatives: []string{`source = "file"`, `source = "builtin"`},
	},
	"languages.url": {
		Alternatives: []string{`url = "https://example.com/languages.json"`},
	},
	"languages.file": {
		Alternatives: []string{`file = "/path/to/languages.json"`},
	},
	"languages.overrides": {
		Comment:      "Per-extension image keys that win over any source",
		Alternatives: []string{`overrides = { tsx = "react", h = "c" }`},
	},

	// Log
	"log.level": {
		Comment:      "Minimum level written to daemon.log",
		Alternatives: []string{`level = "debug"`, `level = "trace"`},
	},
	"log.max_size_mb": {
		Comment: "Rotate daemon.log at this size",
	},
}
