// conn_wsl.go provides WSL-specific Discord IPC socket discovery.
//
// Under WSL, Discord runs on the Windows host and listens on a named pipe that
// WSL2 cannot reach directly. A relay bridges it to a Unix socket:
//
//	socat UNIX-LISTEN:/tmp/discord-ipc-0,fork EXEC:"npiperelay.exe -ep -s //./pipe/discord-ipc-0"
//
// wslSocketPaths lists the places such a relay usually puts the socket.

//go:build linux

package discord

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// isWSL reports whether the current process is running inside WSL.
func isWSL() bool {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(data)), "microsoft")
}

// wslSocketPaths returns relay socket paths to probe when running under WSL.
func wslSocketPaths() []string {
	if !isWSL() {
		return nil
	}

	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		for i := range maxIPCSlots {
			paths = append(paths, filepath.Join(home, ".discord-relay", fmt.Sprintf("discord-ipc-%d", i)))
		}
	}
	for i := range maxIPCSlots {
		paths = append(paths, fmt.Sprintf("/mnt/wslg/runtime-dir/discord-ipc-%d", i))
	}
	return paths
}
