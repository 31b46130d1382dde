package aer

import (
	"errors"
	"sync/atomic"
)

// DefaultTimeout is the handshake wait limit in microseconds.
const DefaultTimeout uint32 = 10000

var (
	// ErrHandshakeTimeout indicates the peer didn't respond in time.
	ErrHandshakeTimeout = errors.New("handshake timeout")
	// ErrBusy indicates a handshake is already in progress.
	ErrBusy = errors.New("handshake in progress")
	// ErrWrongRole indicates the operation doesn't apply to the engine role.
	ErrWrongRole = errors.New("wrong role")
)

// Role selects the direction of an engine.
type Role int

const (
	// Drive sends words to the chip.
	Drive Role = iota
	// Observe receives words from the chip.
	Observe
)

func (r Role) String() string {
	if r == Observe {
		return "observe"
	}
	return "drive"
}

// State is the handshake phase.
type State int32

// Handshake phases.
const (
	Idle State = iota
	RequestAsserted
	AcknowledgeSeen
	RequestReleased
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case RequestAsserted:
		return "request-asserted"
	case AcknowledgeSeen:
		return "acknowledge-seen"
	case RequestReleased:
		return "request-released"
	}
	return "invalid"
}

// Lines is the physical side of a handshake.
type Lines interface {
	// Drive sets the line owned by the engine: request when driving,
	// acknowledge when observing.
	Drive(asserted bool)
	// Peer reports whether the line owned by the chip is asserted.
	Peer() bool
	WriteData(v uint32)
	ReadData() uint32
}

// Outcome reports a finished handshake.
type Outcome struct {
	Completed bool
	Value     uint32
	// Err is ErrHandshakeTimeout on fault.
	Err error
}

// Done indicates the handshake finished, successfully or not.
func (o Outcome) Done() bool {
	return o.Completed || o.Err != nil
}

// Async is a handshake engine.
type Async struct {
	role  Role
	lines Lines

	// Timeout and RequestDelay are in microseconds.
	Timeout      uint32
	RequestDelay uint32

	state atomic.Int32
	since atomic.Uint32
	value atomic.Uint32
	armed atomic.Bool
}

// New creates an engine.
func New(role Role, lines Lines) *Async {
	return &Async{role: role, lines: lines, Timeout: DefaultTimeout}
}

// Role returns the engine role.
func (a *Async) Role() Role {
	return a.role
}

// State returns the current phase.
func (a *Async) State() State {
	return State(a.state.Load())
}

// Busy indicates a handshake is in progress.
func (a *Async) Busy() bool {
	return a.State() != Idle
}

// Value returns the last latched or written word.
func (a *Async) Value() uint32 {
	return a.value.Load()
}

// Begin starts sending a word. The request is asserted once RequestDelay
// has passed since the data was written.
func (a *Async) Begin(value, now uint32) error {
	if a.role != Drive {
		return ErrWrongRole
	}
	if !a.state.CompareAndSwap(int32(Idle), int32(RequestAsserted)) {
		return ErrBusy
	}
	a.value.Store(value)
	a.lines.WriteData(value)
	a.since.Store(now)
	if a.RequestDelay == 0 {
		a.lines.Drive(true)
		a.armed.Store(false)
	} else {
		a.armed.Store(true)
	}
	return nil
}

// Sense follows the chip request line when observing. It is meant to be
// called on every request edge and reports completion when the chip
// releases the request.
func (a *Async) Sense(now uint32) Outcome {
	if a.role != Observe {
		return Outcome{}
	}
	peer := a.lines.Peer()
	if peer && a.state.CompareAndSwap(int32(Idle), int32(RequestAsserted)) {
		a.value.Store(a.lines.ReadData())
		a.since.Store(now)
		a.lines.Drive(true)
		a.state.Store(int32(AcknowledgeSeen))
		// a release sensed before AcknowledgeSeen was published is caught here
		if a.lines.Peer() {
			return Outcome{}
		}
	} else if peer {
		return Outcome{}
	}
	return a.release()
}

func (a *Async) release() Outcome {
	if !a.state.CompareAndSwap(int32(AcknowledgeSeen), int32(RequestReleased)) {
		return Outcome{}
	}
	a.lines.Drive(false)
	a.state.Store(int32(Idle))
	return Outcome{Completed: true, Value: a.value.Load()}
}

// Poll advances a handshake from the main loop and checks the timeout.
func (a *Async) Poll(now uint32) Outcome {
	if a.role == Observe {
		return a.pollObserve(now)
	}
	switch a.State() {
	case RequestAsserted:
		if a.armed.Load() {
			if now-a.since.Load() < a.RequestDelay {
				return Outcome{}
			}
			a.armed.Store(false)
			a.since.Store(now)
			a.lines.Drive(true)
			return Outcome{}
		}
		if a.lines.Peer() {
			a.state.Store(int32(AcknowledgeSeen))
			a.lines.Drive(false)
			a.since.Store(now)
			a.state.Store(int32(RequestReleased))
			return Outcome{}
		}
	case RequestReleased:
		if !a.lines.Peer() {
			a.state.Store(int32(Idle))
			return Outcome{Completed: true, Value: a.value.Load()}
		}
	default:
		return Outcome{}
	}
	return a.checkTimeout(now, a.State())
}

func (a *Async) pollObserve(now uint32) Outcome {
	if a.State() != AcknowledgeSeen {
		return Outcome{}
	}
	return a.checkTimeout(now, AcknowledgeSeen)
}

func (a *Async) checkTimeout(now uint32, expected State) Outcome {
	if now-a.since.Load() <= a.Timeout {
		return Outcome{}
	}
	if !a.state.CompareAndSwap(int32(expected), int32(Idle)) {
		return Outcome{}
	}
	a.armed.Store(false)
	a.lines.Drive(false)
	return Outcome{Value: a.value.Load(), Err: ErrHandshakeTimeout}
}

// Abort releases the owned line and returns to Idle without reporting.
func (a *Async) Abort() {
	a.state.Store(int32(Idle))
	a.armed.Store(false)
	a.lines.Drive(false)
}
