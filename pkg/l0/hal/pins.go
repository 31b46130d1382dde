package hal

import (
	"time"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"

	"github.com/robotalks/aerlink/pkg/l0/comm"
)

// Direction is the reserved use of a pin.
type Direction int

// Directions.
const (
	Unused Direction = iota
	Input
	Output
)

type pinSlot struct {
	dir   Direction
	owner comm.Header
	stop  func()
}

// Pins is the pin reservation table. A pin belongs to at most one owner,
// identified by the config header that reserved it.
type Pins struct {
	pins  []gpio.PinIO
	slots []pinSlot
}

// NewPins creates the table. Nil entries are pins that can't be used.
func NewPins(pins []gpio.PinIO) *Pins {
	return &Pins{pins: pins, slots: make([]pinSlot, len(pins))}
}

// Count returns the number of pins.
func (p *Pins) Count() int {
	return len(p.pins)
}

// Pin returns the underlying pin.
func (p *Pins) Pin(id int) gpio.PinIO {
	if id < 0 || id >= len(p.pins) {
		return nil
	}
	return p.pins[id]
}

// Direction returns the reserved direction of a pin.
func (p *Pins) Direction(id int) Direction {
	if id < 0 || id >= len(p.slots) {
		return Unused
	}
	return p.slots[id].dir
}

// Reserve claims a pin for owner and sets its direction.
// Reserving again by the same owner changes the direction.
func (p *Pins) Reserve(id int, dir Direction, owner comm.Header) error {
	if id < 0 || id >= len(p.pins) || p.pins[id] == nil {
		return newError(comm.ErrorConfigurationOutOfBounds, uint32(id), comm.SubNone)
	}
	slot := &p.slots[id]
	if slot.dir != Unused && slot.owner != owner {
		return newError(comm.ErrorPinAlreadyInUse, uint32(id), comm.SubNone)
	}
	var err error
	if dir == Output {
		err = p.pins[id].Out(gpio.Low)
	} else {
		err = p.pins[id].In(gpio.PullNoChange, gpio.NoEdge)
	}
	if err != nil {
		glog.Warningf("pin %d: %v", id, err)
		return newError(comm.ErrorPeripheralInterfaceNotReady, uint32(id), comm.SubNone)
	}
	slot.dir, slot.owner = dir, owner
	return nil
}

// Release frees a pin.
func (p *Pins) Release(id int) {
	if id < 0 || id >= len(p.slots) {
		return
	}
	if stop := p.slots[id].stop; stop != nil {
		stop()
	}
	p.slots[id] = pinSlot{}
}

// ReleaseOwner frees all pins of owner.
func (p *Pins) ReleaseOwner(owner comm.Header) {
	for id := range p.slots {
		if p.slots[id].dir != Unused && p.slots[id].owner == owner {
			p.Release(id)
		}
	}
}

// Reset frees all pins.
func (p *Pins) Reset() {
	for id := range p.slots {
		p.Release(id)
	}
}

// Write sets an output pin.
func (p *Pins) Write(id int, level gpio.Level) error {
	if p.Direction(id) != Output {
		return newError(comm.ErrorPinNotConfigured, uint32(id), comm.SubNone)
	}
	if err := p.pins[id].Out(level); err != nil {
		glog.Warningf("pin %d: %v", id, err)
		return newError(comm.ErrorPeripheralInterfaceNotReady, uint32(id), comm.SubNone)
	}
	return nil
}

// Read reads a reserved pin.
func (p *Pins) Read(id int) (gpio.Level, error) {
	if p.Direction(id) == Unused {
		return gpio.Low, newError(comm.ErrorPinNotConfigured, uint32(id), comm.SubNone)
	}
	return p.pins[id].Read(), nil
}

// Watch calls fn on every level change of a reserved pin until the pin
// is released. Pins supporting listeners (e.g. SimPin) call fn directly,
// other pins are watched by a goroutine waiting for edges.
func (p *Pins) Watch(id int, fn func(gpio.Level)) error {
	if p.Direction(id) == Unused {
		return newError(comm.ErrorPinNotConfigured, uint32(id), comm.SubNone)
	}
	slot := &p.slots[id]
	if slot.stop != nil {
		slot.stop()
	}
	pin := p.pins[id]
	if l, ok := pin.(Listenable); ok {
		slot.stop = l.Listen(fn)
		return nil
	}
	if err := pin.In(gpio.PullNoChange, gpio.BothEdges); err != nil {
		glog.Warningf("pin %d: %v", id, err)
		return newError(comm.ErrorPeripheralInterfaceNotReady, uint32(id), comm.SubNone)
	}
	done := make(chan struct{})
	slot.stop = func() { close(done) }
	go watchEdges(pin, fn, done)
	return nil
}

func watchEdges(pin gpio.PinIO, fn func(gpio.Level), done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}
		if pin.WaitForEdge(100 * time.Millisecond) {
			fn(pin.Read())
		}
	}
}
