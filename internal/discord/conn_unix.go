// conn_unix.go implements Discord IPC socket discovery for Unix-like systems
// (Linux, macOS, FreeBSD).

//go:build !windows

package discord

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
)

// ///////////////////////////////////////////////
// Connection
// ///////////////////////////////////////////////

// socketVariants are the socket name prefixes for Discord stable, Canary,
// and PTB.
var socketVariants = []string{"discord-ipc", "discordcanary-ipc", "discordptb-ipc"}

// candidatePaths lists every socket path worth probing, most likely first:
// runtime dirs from the environment, /tmp, then Snap and Flatpak sandboxes,
// then WSL relay locations. Duplicates are dropped.
func candidatePaths() []string {
	var dirs []string
	for _, env := range []string{"XDG_RUNTIME_DIR", "TMPDIR", "TMP", "TEMP"} {
		if dir := os.Getenv(env); dir != "" {
			dirs = append(dirs, dir)
		}
	}
	dirs = append(dirs, "/tmp")

	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	for _, dir := range dirs {
		for _, v := range socketVariants {
			for i := range maxIPCSlots {
				add(filepath.Join(dir, fmt.Sprintf("%s-%d", v, i)))
			}
		}
	}

	runUser := filepath.Join("/run/user", strconv.Itoa(os.Getuid()))
	sandboxes := []string{
		"snap.discord", "snap.discord-canary", "snap.discord-ptb",
		"app/com.discordapp.Discord", "app/com.discordapp.DiscordCanary", "app/com.discordapp.DiscordPTB",
	}
	for _, sb := range sandboxes {
		for i := range maxIPCSlots {
			add(filepath.Join(runUser, sb, fmt.Sprintf("discord-ipc-%d", i)))
		}
	}

	for _, p := range wslSocketPaths() {
		add(p)
	}
	return paths
}

// connectToDiscord dials each candidate socket and returns the first
// connection that succeeds.
func connectToDiscord() (net.Conn, error) {
	for _, path := range candidatePaths() {
		conn, err := net.Dial("unix", path)
		if err == nil {
			return conn, nil
		}
	}

	if isWSL() {
		return nil, fmt.Errorf("%w: running under WSL, a socat + npiperelay.exe relay is required", ErrIPCNotAvailable)
	}
	return nil, ErrIPCNotAvailable
}
