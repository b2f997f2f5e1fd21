// Package remote centralizes GitHub URLs for the project: raw data files
// fetched at runtime and the releases page shown in update notices.
//
// Owner and repo are determined lazily on first access. Values set at build
// time via ldflags take precedence; otherwise development builds derive them
// from the git remote of the checkout the binary was built in.
package remote

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

// Set at build time via:
//
//	-X tools.zach/dev/codecord/internal/remote.ldOwner=...
//	-X tools.zach/dev/codecord/internal/remote.ldRepo=...
var (
	ldOwner string
	ldRepo  string
)

// Branch is the branch raw data files are served from.
const Branch = "main"

var (
	initOnce sync.Once
	owner    string
	repo     string
)

// githubRemoteRe extracts owner and repo from GitHub remote URLs.
// Matches both HTTPS (github.com/) and SSH (github.com:) formats.
var githubRemoteRe = regexp.MustCompile(`github\.com[:/]([^/]+)/([^/.]+)`)

// ensureInit lazily resolves owner and repo on first call.
func ensureInit() {
	initOnce.Do(func() {
		if ldOwner != "" && ldRepo != "" {
			owner = ldOwner
			repo = ldRepo
			return
		}
		owner, repo = fromGit(executableDir())
	})
}

// executableDir returns the directory holding the running binary, which for
// `go run` and `go build` in a checkout sits inside the repository. The
// daemon's working directory is the user's, so it is never consulted.
func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Dir(exe)
}

// fromGit reads the origin remote of the repository containing dir.
func fromGit(dir string) (string, string) {
	if dir == "" {
		return "", ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", "remote", "get-url", "origin")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		slog.Debug("remote: ldflags not set and git remote unavailable", "error", err)
		return "", ""
	}
	return parseRemote(string(out))
}

// parseRemote extracts owner and repo from a GitHub remote URL.
func parseRemote(url string) (string, string) {
	m := githubRemoteRe.FindStringSubmatch(url)
	if len(m) != 3 {
		return "", ""
	}
	return m[1], m[2]
}

// Owner returns the GitHub repository owner.
func Owner() string {
	ensureInit()
	return owner
}

// Repo returns the GitHub repository name.
func Repo() string {
	ensureInit()
	return repo
}

// RawURL returns the raw GitHub URL for a file on [Branch].
// Returns empty string if owner/repo could not be determined.
func RawURL(path string) string {
	ensureInit()
	if owner == "" || repo == "" {
		return ""
	}
	return "https://raw.githubusercontent.com/" + owner + "/" + repo + "/" + Branch + "/" + path
}

// ReleasesURL returns the latest-release page, or empty string when
// owner/repo are unknown.
func ReleasesURL() string {
	ensureInit()
	if owner == "" || repo == "" {
		return ""
	}
	return "https://github.com/" + owner + "/" + repo + "/releases/latest"
}
