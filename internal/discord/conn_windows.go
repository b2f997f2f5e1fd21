// conn_windows.go implements Discord IPC discovery for Windows, where Discord
// listens on named pipes (\\.\pipe\discord-ipc-N) reached through go-winio.

//go:build windows

package discord

import (
	"fmt"
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

// pipeDialTimeout bounds each named pipe probe.
const pipeDialTimeout = 500 * time.Millisecond

// connectToDiscord tries each Discord named pipe slot and returns the first
// successful connection.
func connectToDiscord() (net.Conn, error) {
	for i := range maxIPCSlots {
		timeout := pipeDialTimeout
		conn, err := winio.DialPipe(fmt.Sprintf(`\\.\pipe\discord-ipc-%d`, i), &timeout)
		if err == nil {
			return conn, nil
		}
	}
	return nil, ErrIPCNotAvailable
}
