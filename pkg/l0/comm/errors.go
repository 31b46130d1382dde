package comm

import (
	"errors"
	"fmt"
)

var (
	// ErrIncomplete indicates the source ran out of bytes before a full packet.
	// Bytes already consumed are kept by the Parser.
	ErrIncomplete = errors.New("incomplete packet")
	// ErrFrameSize indicates a frame is not exactly PacketSize bytes.
	ErrFrameSize = errors.New("invalid frame size")
	// ErrNoReply indicates no reply received from peer before the command expired.
	ErrNoReply = errors.New("no reply")
)

// UnknownHeaderError is reported when a byte doesn't start any known packet.
type UnknownHeaderError struct {
	Header Header
}

// Error implements error.
func (e *UnknownHeaderError) Error() string {
	return fmt.Sprintf("unknown header %d", byte(e.Header))
}
