// Package langs maps file extensions to Discord Rich Presence image assets.
//
// The map is layered: the copy embedded in the binary is always present, and a
// fresher copy from the configured source (remote GitHub by default, or a
// local file) is merged over it. Remote data is cached in the data directory
// so the daemon keeps the last good map when offline. Per-user overrides from
// config.toml are applied last.
//
// # HOW TO ADD A LANGUAGE
//
//  1. Add the extension to data/languages.json with its asset key and name
//  2. Upload <asset>.png to Discord Developer Portal -> Rich Presence -> Art Assets
//  3. Push to main; running daemons pick up the change on next restart
package langs

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"tools.zach/dev/codecord/internal/atomicfile"
	"tools.zach/dev/codecord/internal/paths"
	"tools.zach/dev/codecord/internal/remote"
)

// maxResponseBytes bounds remote and file payloads.
const maxResponseBytes = 1 << 20

var (
	remoteURL     string
	remoteURLOnce sync.Once
)

func getRemoteURL() string {
	remoteURLOnce.Do(func() { remoteURL = remote.RawURL(paths.LangsDataPath) })
	return remoteURL
}

var (
	httpClient     *retryablehttp.Client
	httpClientOnce sync.Once
)

func getHTTPClient() *retryablehttp.Client {
	httpClientOnce.Do(func() {
		httpClient = retryablehttp.NewClient()
		httpClient.RetryMax = 2
		httpClient.HTTPClient.Timeout = 5 * time.Second
		httpClient.Logger = nil
	})
	return httpClient
}

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Language describes how files of one extension are shown.
type Language struct {
	// Asset is the Discord asset key for the large image.
	Asset string `json:"asset"`
	// Name is the human-readable language name used in tooltips.
	Name string `json:"name,omitempty"`
}

// Map is the extension-to-language table.
type Map struct {
	// DefaultImage is the asset key for files without an extension.
	DefaultImage string `json:"default_image"`
	// Extensions is keyed by lowercased extension without the leading dot.
	Extensions map[string]Language `json:"extensions"`
}

// SourceConfig describes where to load the map from. Built from
// config.LanguagesConfig at startup.
type SourceConfig struct {
	Source string // "url", "file", "builtin"
	URL    string // custom URL (overrides the GitHub default)
	File   string // local file path (for source = "file")

	// Overrides maps extensions to asset keys, applied after every source.
	Overrides map[string]string
}

// ///////////////////////////////////////////////
// Lookup
// ///////////////////////////////////////////////

// Lookup returns the entry for ext. It is safe on a nil Map.
func (m *Map) Lookup(ext string) (Language, bool) {
	if m == nil {
		return Language{}, false
	}
	l, ok := m.Extensions[strings.ToLower(ext)]
	return l, ok
}

// AssetKey returns the large image key for ext: the mapped asset when known,
// the extension itself when not. Files without an extension use fallback, or
// the map's DefaultImage when fallback is empty.
func (m *Map) AssetKey(ext, fallback string) string {
	if ext == "" {
		if fallback == "" && m != nil {
			return m.DefaultImage
		}
		return fallback
	}
	if l, ok := m.Lookup(ext); ok && l.Asset != "" {
		return l.Asset
	}
	return strings.ToLower(ext)
}

// Name returns a display name for the language of a file: the mapped name,
// then the editor's language id, then the extension.
func (m *Map) Name(ext, languageID string) string {
	if l, ok := m.Lookup(ext); ok && l.Name != "" {
		return l.Name
	}
	if languageID != "" {
		return languageID
	}
	if ext != "" {
		return strings.ToLower(ext)
	}
	return "text"
}

// ///////////////////////////////////////////////
// Loading
// ///////////////////////////////////////////////

// Parse decodes a languages.json document, normalizing extension keys.
func Parse(b []byte) (*Map, error) {
	var m Map
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parsing languages: %w", err)
	}
	norm := make(map[string]Language, len(m.Extensions))
	for ext, l := range m.Extensions {
		norm[strings.ToLower(strings.TrimPrefix(ext, "."))] = l
	}
	m.Extensions = norm
	return &m, nil
}

// Load builds the effective map. builtin is the embedded languages.json and
// must parse. The returned map is never nil; a non-nil error reports that the
// configured source failed and the map fell back to the cache or the builtin
// copy.
func Load(src SourceConfig, dataDir string, builtin []byte) (*Map, error) {
	base, err := Parse(builtin)
	if err != nil {
		return nil, fmt.Errorf("builtin %w", err)
	}

	var fetched *Map
	var fetchErr error
	switch src.Source {
	case "builtin":
	case "file":
		fetched, fetchErr = fetchFromFile(src.File)
	default: // "url"
		url := src.URL
		if url == "" {
			url = getRemoteURL()
		}
		if url == "" {
			slog.Debug("skipping remote language fetch: no remote URL configured")
			fetched, fetchErr = cacheRead(dataDir)
			break
		}
		fetched, fetchErr = fetchWithFallback(dataDir, func() (*Map, error) {
			return fetchFromURL(url)
		})
	}

	if fetched != nil {
		merge(base, fetched)
	}
	for ext, asset := range src.Overrides {
		key := strings.ToLower(strings.TrimPrefix(ext, "."))
		l := base.Extensions[key]
		l.Asset = asset
		base.Extensions[key] = l
	}
	return base, fetchErr
}

// merge applies src's entries and default image on top of dst.
func merge(dst, src *Map) {
	if src.DefaultImage != "" {
		dst.DefaultImage = src.DefaultImage
	}
	if dst.Extensions == nil {
		dst.Extensions = make(map[string]Language, len(src.Extensions))
	}
	maps.Copy(dst.Extensions, src.Extensions)
}

// ///////////////////////////////////////////////
// Fallback Logic
// ///////////////////////////////////////////////

// fetchWithFallback attempts the primary fetch, then the cache. The returned
// error is non-nil whenever the primary failed, even if the cache served.
func fetchWithFallback(dataDir string, primary func() (*Map, error)) (*Map, error) {
	m, err := primary()
	if err == nil {
		if len(m.Extensions) == 0 {
			return nil, fmt.Errorf("primary source returned no languages")
		}
		cacheWrite(dataDir, m)
		return m, nil
	}
	slog.Debug("failed to fetch languages, trying cache", "error", err)

	m, cacheErr := cacheRead(dataDir)
	if cacheErr == nil {
		return m, fmt.Errorf("using cached languages: primary fetch failed: %w", err)
	}
	return nil, fmt.Errorf("all language sources failed: primary: %w; cache: %w", err, cacheErr)
}

// fetchFromURL downloads a languages.json document.
func fetchFromURL(url string) (*Map, error) {
	resp, err := getHTTPClient().Get(url)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	if len(body) > maxResponseBytes {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", url, maxResponseBytes)
	}
	return Parse(body)
}

// fetchFromFile reads a languages.json document from disk.
func fetchFromFile(path string) (*Map, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read languages file %s: %w", path, err)
	}
	return Parse(body)
}

// ///////////////////////////////////////////////
// Cache
// ///////////////////////////////////////////////

// cacheWrite persists m so a later [Load] can fall back to it when offline.
func cacheWrite(dataDir string, m *Map) {
	d := paths.DataDir{Root: dataDir}
	if err := atomicfile.WriteJSON(d.LangsCache(), m, 0o644); err != nil {
		slog.Debug("failed to write language cache", "error", err)
	}
}

// cacheRead loads the cached map from dataDir.
func cacheRead(dataDir string) (*Map, error) {
	d := paths.DataDir{Root: dataDir}
	b, err := os.ReadFile(d.LangsCache())
	if err != nil {
		return nil, fmt.Errorf("reading language cache: %w", err)
	}
	return Parse(b)
}
