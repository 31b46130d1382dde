package hal

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Listenable is a pin reporting level changes without waiting for edges.
type Listenable interface {
	// Listen registers fn and returns a func to unregister it.
	Listen(fn func(gpio.Level)) func()
}

// SimPin is a simulated pin. Listeners are called synchronously
// after every change of level.
type SimPin struct {
	gpiotest.Pin

	lock      sync.Mutex
	listeners map[int]func(gpio.Level)
	nextID    int
}

// NewSimPins creates n simulated pins.
func NewSimPins(n int) []*SimPin {
	pins := make([]*SimPin, n)
	for i := range pins {
		pins[i] = &SimPin{Pin: gpiotest.Pin{N: fmt.Sprintf("SIM%d", i), Num: i}}
	}
	return pins
}

// PinIOs converts simulated pins to gpio.PinIO.
func PinIOs(pins []*SimPin) []gpio.PinIO {
	ios := make([]gpio.PinIO, len(pins))
	for i, p := range pins {
		ios[i] = p
	}
	return ios
}

// Out implements gpio.PinOut.
func (p *SimPin) Out(l gpio.Level) error {
	prev := p.Pin.Read()
	if err := p.Pin.Out(l); err != nil {
		return err
	}
	if prev != l {
		p.notify(l)
	}
	return nil
}

// In implements gpio.PinIn. Edge detection is provided by Listen.
func (p *SimPin) In(pull gpio.Pull, edge gpio.Edge) error {
	return p.Pin.In(pull, gpio.NoEdge)
}

// Listen implements Listenable.
func (p *SimPin) Listen(fn func(gpio.Level)) func() {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.listeners == nil {
		p.listeners = make(map[int]func(gpio.Level))
	}
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	return func() {
		p.lock.Lock()
		delete(p.listeners, id)
		p.lock.Unlock()
	}
}

func (p *SimPin) notify(l gpio.Level) {
	p.lock.Lock()
	fns := make([]func(gpio.Level), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.lock.Unlock()
	for _, fn := range fns {
		fn(l)
	}
}

// SimI2CBus is a simulated I2C bus with register-file devices.
// A transfer to an absent address fails like a NACK.
type SimI2CBus struct {
	Name string

	lock    sync.Mutex
	devices map[uint16]*[256]byte
	speed   physic.Frequency
}

// NewSimI2CBus creates a bus with devices at the given addresses.
func NewSimI2CBus(name string, addrs ...uint16) *SimI2CBus {
	b := &SimI2CBus{Name: name, devices: make(map[uint16]*[256]byte)}
	for _, addr := range addrs {
		b.devices[addr] = &[256]byte{}
	}
	return b
}

func (b *SimI2CBus) String() string {
	return b.Name
}

// Tx implements i2c.Bus. The first written byte selects the register.
func (b *SimI2CBus) Tx(addr uint16, w, r []byte) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	regs, ok := b.devices[addr]
	if !ok {
		return fmt.Errorf("%s: nack from 0x%02x", b.Name, addr)
	}
	var reg byte
	if len(w) > 0 {
		reg = w[0]
		for n, v := range w[1:] {
			regs[reg+byte(n)] = v
		}
	}
	for n := range r {
		r[n] = regs[reg+byte(n)]
	}
	return nil
}

// SetSpeed implements i2c.Bus.
func (b *SimI2CBus) SetSpeed(f physic.Frequency) error {
	b.lock.Lock()
	b.speed = f
	b.lock.Unlock()
	return nil
}

// Speed returns the last speed set.
func (b *SimI2CBus) Speed() physic.Frequency {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.speed
}

// Poke sets a register of a device.
func (b *SimI2CBus) Poke(addr uint16, reg, value byte) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if regs, ok := b.devices[addr]; ok {
		regs[reg] = value
	}
}

// Peek reads a register of a device.
func (b *SimI2CBus) Peek(addr uint16, reg byte) byte {
	b.lock.Lock()
	defer b.lock.Unlock()
	if regs, ok := b.devices[addr]; ok {
		return regs[reg]
	}
	return 0
}

// SimSPIPort is a simulated SPI port. Without Responder it loops MOSI back
// to MISO.
type SimSPIPort struct {
	Name      string
	Responder func(w []byte) []byte

	lock    sync.Mutex
	freq    physic.Frequency
	mode    spi.Mode
	written [][]byte
}

func (p *SimSPIPort) String() string {
	return p.Name
}

// Connect implements spi.Port.
func (p *SimSPIPort) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	if bits != 8 {
		return nil, fmt.Errorf("%s: unsupported %d bits per word", p.Name, bits)
	}
	p.lock.Lock()
	p.freq, p.mode = f, mode
	p.lock.Unlock()
	return &simSPIConn{port: p}, nil
}

// Settings returns the frequency and mode of the last connection.
func (p *SimSPIPort) Settings() (physic.Frequency, spi.Mode) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.freq, p.mode
}

// Written returns all transfers.
func (p *SimSPIPort) Written() [][]byte {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([][]byte(nil), p.written...)
}

type simSPIConn struct {
	port *SimSPIPort
}

func (c *simSPIConn) String() string {
	return c.port.Name
}

func (c *simSPIConn) Duplex() conn.Duplex {
	return conn.Full
}

func (c *simSPIConn) Tx(w, r []byte) error {
	c.port.lock.Lock()
	c.port.written = append(c.port.written, append([]byte(nil), w...))
	respond := c.port.Responder
	c.port.lock.Unlock()
	in := w
	if respond != nil {
		in = respond(w)
	}
	copy(r, in)
	return nil
}

func (c *simSPIConn) TxPackets(pkts []spi.Packet) error {
	for _, p := range pkts {
		if err := c.Tx(p.W, p.R); err != nil {
			return err
		}
	}
	return nil
}
