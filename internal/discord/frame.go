// frame.go holds the wire framing for the Discord IPC socket. Every message
// is an 8-byte header (opcode, payload length; both uint32 little-endian)
// followed by a JSON payload.

package discord

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ///////////////////////////////////////////////
// Opcodes
// ///////////////////////////////////////////////

// Opcode identifies the kind of IPC frame.
type Opcode uint32

const (
	OpHandshake Opcode = 0
	OpFrame     Opcode = 1
	// OpClose precedes a disconnect from either side.
	OpClose Opcode = 2
	// OpPing must be answered with OpPong carrying the same payload.
	OpPing Opcode = 3
	OpPong Opcode = 4
)

var opcodeNames = [...]string{"HANDSHAKE", "FRAME", "CLOSE", "PING", "PONG"}

func (o Opcode) String() string {
	if int(o) < len(opcodeNames) {
		return opcodeNames[o]
	}
	return "OPCODE(" + strconv.FormatUint(uint64(o), 10) + ")"
}

const (
	headerLen = 8

	// MaxPayloadSize caps a single frame payload in either direction.
	MaxPayloadSize = 1 << 20

	// Discord listens on the first free slot of discord-ipc-0..9.
	maxIPCSlots = 10
)

var (
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrIPCNotAvailable means no socket answered, i.e. Discord is not running.
	ErrIPCNotAvailable = errors.New("discord IPC not available")
)

func checkSize(op Opcode, n uint64) error {
	if n > MaxPayloadSize {
		return fmt.Errorf("%s frame: %w: %d bytes (max %d)", op, ErrPayloadTooLarge, n, MaxPayloadSize)
	}
	return nil
}

// ///////////////////////////////////////////////
// Encode / Decode
// ///////////////////////////////////////////////

// EncodeFrame returns header and payload as one buffer ready for a single
// Write.
func EncodeFrame(op Opcode, payload []byte) ([]byte, error) {
	if err := checkSize(op, uint64(len(payload))); err != nil {
		return nil, err
	}
	buf := make([]byte, headerLen, headerLen+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(op))
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(payload)))
	return append(buf, payload...), nil
}

// DecodeFrame reads exactly one frame from r, blocking until it is complete.
func DecodeFrame(r io.Reader) (Opcode, []byte, error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, fmt.Errorf("reading frame header: %w", err)
	}
	op := Opcode(binary.LittleEndian.Uint32(hdr[:4]))
	n := binary.LittleEndian.Uint32(hdr[4:])
	if err := checkSize(op, uint64(n)); err != nil {
		return 0, nil, err
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("reading %s payload: %w", op, err)
	}
	return op, payload, nil
}
