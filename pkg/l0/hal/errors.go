package hal

import (
	"errors"
	"fmt"

	"github.com/robotalks/aerlink/pkg/l0/comm"
)

// ErrNoDevice indicates the bus or port isn't present.
var ErrNoDevice = errors.New("no device")

// Error is an interface failure reported to the host as an error packet.
type Error struct {
	Header comm.Header
	Value  uint32
	Sub    comm.ConfigSub
}

func newError(h comm.Header, value uint32, sub comm.ConfigSub) *Error {
	return &Error{Header: h, Value: value, Sub: sub}
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("%s value %d sub %s", e.Header, e.Value, e.Sub)
}

// Packet builds the error packet for the offending request.
func (e *Error) Packet(source comm.Header) comm.ErrorPacket {
	return comm.ErrorPacket{Header: e.Header, Source: source, Value: e.Value, Sub: e.Sub}
}

// AsError converts any error into an *Error, using
// PERIPHERAL_INTERFACE_NOT_READY for errors from the underlying bus.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return newError(comm.ErrorPeripheralInterfaceNotReady, 0, comm.SubNone)
}
