// Package update checks for newer codecord releases via the release manifest
// published in the repository.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"tools.zach/dev/codecord/internal/paths"
	"tools.zach/dev/codecord/internal/remote"
)

var (
	manifestURL     string
	manifestURLOnce sync.Once
)

func getManifestURL() string {
	manifestURLOnce.Do(func() { manifestURL = remote.RawURL(paths.ReleaseManifest) })
	return manifestURL
}

var (
	httpClient     *retryablehttp.Client
	httpClientOnce sync.Once
)

func getHTTPClient() *retryablehttp.Client {
	httpClientOnce.Do(func() {
		httpClient = retryablehttp.NewClient()
		httpClient.RetryMax = 1
		httpClient.RetryWaitMax = 2 * time.Second
		httpClient.HTTPClient.Timeout = 5 * time.Second
		httpClient.Logger = nil
	})
	return httpClient
}

// ///////////////////////////////////////////////
// Public API
// ///////////////////////////////////////////////

// Result is the outcome of a version check.
type Result struct {
	Current string
	Latest  string
	// Newer reports whether Latest is a later release than Current.
	Newer bool
}

// Latest fetches the release manifest and compares it against current.
// It returns an error when no manifest URL is configured or the fetch fails.
func Latest(ctx context.Context, current string) (Result, error) {
	res := Result{Current: current}
	if getManifestURL() == "" {
		return res, fmt.Errorf("no remote URL configured")
	}
	latest, err := fetchLatest(ctx)
	if err != nil {
		return res, err
	}
	res.Latest = latest
	res.Newer = latest != "" && latest != current && semverLess(current, latest)
	return res, nil
}

// Check logs when a newer version is available. Failures are logged at debug
// level and otherwise ignored.
func Check(ctx context.Context, current string) {
	res, err := Latest(ctx, current)
	if err != nil {
		slog.Debug("version check failed", "error", err)
		return
	}
	if res.Newer {
		slog.Info("new version available", "current", res.Current, "latest", res.Latest, "url", remote.ReleasesURL())
	}
}

// ///////////////////////////////////////////////
// Internal helpers
// ///////////////////////////////////////////////

// fetchLatest downloads the release manifest and returns the version stored
// under the "." key, which represents the latest stable release.
func fetchLatest(ctx context.Context) (string, error) {
	url := getManifestURL()
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	resp, err := getHTTPClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var manifest map[string]string
	if err := json.Unmarshal(body, &manifest); err != nil {
		return "", fmt.Errorf("parsing manifest: %w", err)
	}
	return manifest["."], nil
}

// semverLess returns true if a < b using numeric comparison of the
// major.minor.patch triple. A pre-release is less than the same version
// without one ("0.1.0-dev" < "0.1.0"). Non-semver strings never compare less.
func semverLess(a, b string) bool {
	pa := parseSemver(a)
	pb := parseSemver(b)
	if pa == nil || pb == nil {
		return false
	}
	for i := range 3 {
		if pa[i] != pb[i] {
			return pa[i] < pb[i]
		}
	}
	return hasPreRelease(a) && !hasPreRelease(b)
}

// hasPreRelease reports whether a version string carries a pre-release suffix.
func hasPreRelease(s string) bool {
	return strings.Contains(strings.TrimPrefix(s, "v"), "-")
}

// parseSemver splits "v1.2.3" or "0.1.0-dev" into [major, minor, patch],
// dropping "-" and "+" suffixes. Returns nil if s is not valid semver.
func parseSemver(s string) []int {
	parts := strings.SplitN(strings.TrimPrefix(s, "v"), ".", 3)
	if len(parts) != 3 {
		return nil
	}
	result := make([]int, 3)
	for i, p := range parts {
		if idx := strings.IndexAny(p, "-+"); idx >= 0 {
			p = p[:idx]
		}
		if p == "" {
			return nil
		}
		n := 0
		for _, c := range p {
			if c < '0' || c > '9' {
				return nil
			}
			n = n*10 + int(c-'0')
		}
		result[i] = n
	}
	return result
}
