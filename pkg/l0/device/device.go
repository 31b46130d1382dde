package device

import (
	"sync/atomic"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/spi"

	"github.com/robotalks/aerlink/pkg/l0/aer"
	"github.com/robotalks/aerlink/pkg/l0/comm"
	"github.com/robotalks/aerlink/pkg/l0/hal"
	"github.com/robotalks/aerlink/pkg/ring"
)

// Firmware version reported on ALIGN.
const (
	VersionMajor byte   = 0
	VersionMinor byte   = 9
	VersionPatch uint32 = 2
)

// maxPacketsPerPoll bounds the work of one main loop iteration.
const maxPacketsPerPoll = 32

// Board is the hardware a device runs on. Missing buses are nil.
type Board struct {
	Pins []gpio.PinIO
	I2C  [comm.NumI2C]i2c.Bus
	SPI  [comm.NumSPI]spi.Port
}

// Stats is a snapshot of device counters.
type Stats struct {
	Recording        bool
	Offset           uint32
	FreeInstructions int
	Discarded        uint64
	InboundLen       int
	OutboundLen      int
}

// Device is the state of a bridge device. Hooks may be called from any
// goroutine, everything else belongs to the main loop (Poll).
type Device struct {
	conf  Config
	clock Clock

	inbound *ring.Buffer
	// events has one ring per hook source, each with a single producer:
	// the from-chip ports first, then the pins.
	events []*ring.Buffer
	out    *outbox
	wakeCh chan struct{}

	parser   comm.Parser
	pins     *hal.Pins
	i2c      [comm.NumI2C]*hal.I2C
	spi      [comm.NumSPI]*hal.SPI
	toChip   [comm.NumAsync]*asyncPort
	fromChip [comm.NumAsync]*asyncPort

	timed    *instructionQueue
	inflight *inflight

	recording atomic.Bool
	offset    atomic.Uint32
	discarded atomic.Uint64
}

// New creates a device on a board.
func New(conf *Config, board *Board, clock Clock) *Device {
	if clock == nil {
		clock = NewSystemClock()
	}
	pins := board.Pins
	if len(pins) > conf.Pins {
		pins = pins[:conf.Pins]
	}
	d := &Device{
		conf:     *conf,
		clock:    clock,
		inbound:  ring.New(powerOfTwo(conf.InboundSize)),
		out:      newOutbox(powerOfTwo(conf.OutboundSize)),
		wakeCh:   make(chan struct{}, 1),
		pins:     hal.NewPins(pins),
		timed:    newInstructionQueue(conf.InstructionSlots),
	}
	d.events = make([]*ring.Buffer, comm.NumAsync+conf.Pins)
	for n := range d.events {
		d.events[n] = ring.New(powerOfTwo(conf.EventSize))
	}
	for n := range d.i2c {
		d.i2c[n] = hal.NewI2C(n, board.I2C[n])
	}
	for n := range d.spi {
		d.spi[n] = hal.NewSPI(n, board.SPI[n])
	}
	for n := 0; n < comm.NumAsync; n++ {
		d.toChip[n] = newAsyncPort(n, aer.Drive)
		d.fromChip[n] = newAsyncPort(n, aer.Observe)
	}
	return d
}

// powerOfTwo rounds a ring size up, leaving room for two packets at least.
func powerOfTwo(n int) int {
	size := 1
	for size < n || size < 2*comm.PacketSize {
		size <<= 1
	}
	return size
}

// WakeChan receives a signal whenever a hook has work for the main loop.
func (d *Device) WakeChan() <-chan struct{} {
	return d.wakeCh
}

func (d *Device) wake() {
	select {
	case d.wakeCh <- struct{}{}:
	default:
	}
}

// timestamp is the device time relative to the recording offset.
func (d *Device) timestamp(now uint32) uint32 {
	return now - d.offset.Load()
}

// ByteReceived is the receive hook: it stores one byte from the host.
// A full inbound ring drops the byte and reports INPUT_FULL.
func (d *Device) ByteReceived(b byte) {
	if err := d.inbound.Push(b); err != nil {
		glog.V(2).Infof("inbound full, drop byte")
	}
	d.wake()
}

// TransmitReady is the transmit hook: it moves pending output into dst
// and returns the number of bytes.
func (d *Device) TransmitReady(dst []byte) int {
	return d.out.read(dst)
}

// TransmitChan receives a signal whenever output may be available.
func (d *Device) TransmitChan() <-chan struct{} {
	return d.out.txCh
}

// RequestEdge is the hook of a from-chip request line.
func (d *Device) RequestEdge(id int) {
	if id < 0 || id >= comm.NumAsync {
		return
	}
	engine := d.fromChip[id].engine.Load()
	if engine == nil {
		return
	}
	now := d.clock.Micros()
	if out := engine.Sense(now); out.Completed && d.recording.Load() {
		d.pushEvent(d.events[id], comm.Data32bitPacket{
			Header:   comm.AsyncFromChipHeader(id),
			ExecTime: d.timestamp(now),
			Value:    out.Value,
		})
	}
	d.wake()
}

// PinEdge is the hook of an input pin changing level.
func (d *Device) PinEdge(id int, level gpio.Level) {
	if id < 0 || id >= len(d.events)-comm.NumAsync || !d.recording.Load() {
		return
	}
	h := comm.OutPinLow
	var v byte
	if level {
		h, v = comm.OutPinHigh, 1
	}
	d.pushEvent(d.events[comm.NumAsync+id], comm.PinPacket{
		Header:   h,
		ExecTime: d.timestamp(d.clock.Micros()),
		ID:       byte(id),
		Value:    v,
	})
}

// pushEvent is only called by the single producer of events.
func (d *Device) pushEvent(events *ring.Buffer, pkt comm.Packet) {
	b := comm.Encode(pkt)
	if _, err := events.Write(b[:]); err != nil {
		glog.V(2).Infof("event ring full, drop %s", pkt.Head())
	}
	d.wake()
}

// Poll runs one iteration of the main loop. It never blocks.
func (d *Device) Poll() {
	now := d.clock.Micros()
	if n := d.inbound.TakeOverflows(); n > 0 {
		glog.Warningf("input full, %d bytes dropped", n)
		d.emitError(comm.ErrorInputFull, comm.Read, n, comm.SubNone)
	}
	d.drainEvents()
	d.pollFromChip(now)
	if d.inflight != nil {
		d.advanceToChip(now)
	}
	d.runTimed(now)
	d.decode(now)
	d.out.report()
}

func (d *Device) drainEvents() {
	var buf [comm.PacketSize]byte
	var dropped uint32
	for _, events := range d.events {
		for events.Len() >= comm.PacketSize {
			events.ReadInto(buf[:])
			pkt, err := comm.Decode(buf[:])
			if err != nil {
				panic(ring.ErrCorrupted)
			}
			d.out.emit(pkt)
		}
		dropped += events.TakeOverflows()
	}
	if n := dropped; n > 0 {
		glog.Warningf("data collection squeezed, %d events dropped", n)
		d.emitError(comm.WarningDataCollectionSqueezed, comm.Read, n, comm.SubNone)
	}
}

func (d *Device) pollFromChip(now uint32) {
	for _, port := range d.fromChip {
		engine := port.engine.Load()
		if engine == nil {
			continue
		}
		if out := engine.Poll(now); out.Err != nil {
			glog.Warningf("%s: %v", port.conf, out.Err)
			d.emitError(comm.ErrorAsyncHandshakeTimeout, comm.AsyncFromChipHeader(port.id), out.Value, comm.SubNone)
		}
	}
}

func (d *Device) runTimed(now uint32) {
	if !d.recording.Load() {
		return
	}
	elapsed := d.timestamp(now)
	for d.inflight == nil {
		pkt, ok := d.timed.peek()
		if !ok || !reached(elapsed, comm.ExecTimeOf(pkt)) {
			return
		}
		d.timed.pop()
		d.exec(pkt, now)
	}
}

func (d *Device) decode(now uint32) {
	for n := 0; n < maxPacketsPerPoll; n++ {
		if d.inflight != nil {
			return
		}
		pkt, err := d.parser.Decode(d.inbound)
		if err == comm.ErrIncomplete {
			return
		}
		if err != nil {
			d.discarded.Add(1)
			glog.V(2).Infof("decode: %v", err)
			continue
		}
		glog.V(2).Infof("recv %s", pkt.Head())
		d.dispatch(pkt, now)
	}
	d.wake()
}

// Stats returns the device counters. It must be called from the main
// loop.
func (d *Device) Stats() Stats {
	return Stats{
		Recording:        d.recording.Load(),
		Offset:           d.offset.Load(),
		FreeInstructions: d.timed.free(),
		Discarded:        d.discarded.Load(),
		InboundLen:       d.inbound.Len(),
		OutboundLen:      d.out.buf.Len(),
	}
}

func (d *Device) emit(pkt comm.Packet) {
	d.out.emit(pkt)
}

func (d *Device) emitError(h, source comm.Header, value uint32, sub comm.ConfigSub) {
	d.out.emit(comm.ErrorPacket{Header: h, Source: source, Value: value, Sub: sub})
}

// fail reports err as the terminal reply of the request with header source.
func (d *Device) fail(source comm.Header, err error) {
	e := hal.AsError(err)
	if e.Header == comm.ErrorPeripheralInterfaceNotReady {
		glog.Warningf("%s: %v", source, err)
	}
	d.out.emit(e.Packet(source))
}

// reset drops all configuration, reservations, queued instructions and
// the recording state.
func (d *Device) reset() {
	glog.Info("reset")
	d.recording.Store(false)
	d.offset.Store(0)
	d.timed.clear()
	d.inflight = nil
	for n := 0; n < comm.NumAsync; n++ {
		d.toChip[n].reset()
		d.fromChip[n].reset()
	}
	for _, p := range d.i2c {
		p.Reset()
	}
	for _, p := range d.spi {
		p.Reset()
	}
	d.pins.Reset()
	d.out.setReadOnRequest(false)
	for _, events := range d.events {
		events.Discard()
		events.TakeOverflows()
	}
}
