// Package codecord provides embedded assets for the codecord daemon.
//
// The root package exists to embed files that live at the repository root:
// the annotated default config seeded on first run and the built-in language
// asset map used when the remote copy is unreachable.
package codecord

import _ "embed"

// DefaultConfigTOML holds config.default.toml. The daemon copies it into the
// data directory when no config.toml exists yet.
//
//go:embed config.default.toml
var DefaultConfigTOML []byte

// LanguagesJSON holds data/languages.json, the built-in extension to image
// asset map.
//
//go:embed data/languages.json
var LanguagesJSON []byte
