package hal

import (
	"sync"

	"periph.io/x/conn/v3/gpio"

	"github.com/robotalks/aerlink/pkg/l0/aer"
)

type simLines struct {
	req, ack *SimPin
	data     []*SimPin
	polarity aer.Polarity
}

func (l *simLines) handshakeLevel(asserted bool) gpio.Level {
	return gpio.Level(asserted != l.polarity.HandshakeActiveLow())
}

func (l *simLines) handshakeAsserted(level gpio.Level) bool {
	return bool(level) != l.polarity.HandshakeActiveLow()
}

func (l *simLines) readData() (v uint32) {
	for n, p := range l.data {
		if bool(p.Read()) != l.polarity.DataActiveLow() {
			v |= 1 << uint(n)
		}
	}
	return
}

func (l *simLines) writeData(v uint32) {
	for n, p := range l.data {
		p.Out(gpio.Level((v&(1<<uint(n)) != 0) != l.polarity.DataActiveLow()))
	}
}

// SimReceiver plays a chip receiving words: it acknowledges every request
// on req and records the data lines.
type SimReceiver struct {
	lines    simLines
	lock     sync.Mutex
	received []uint32
	stop     func()
}

// NewSimReceiver attaches a receiver to the pins.
func NewSimReceiver(req, ack *SimPin, data []*SimPin, polarity aer.Polarity) *SimReceiver {
	r := &SimReceiver{lines: simLines{req: req, ack: ack, data: data, polarity: polarity}}
	ack.Out(r.lines.handshakeLevel(false))
	r.stop = req.Listen(r.onRequest)
	return r
}

func (r *SimReceiver) onRequest(level gpio.Level) {
	if r.lines.handshakeAsserted(level) {
		r.lock.Lock()
		r.received = append(r.received, r.lines.readData())
		r.lock.Unlock()
		r.lines.ack.Out(r.lines.handshakeLevel(true))
	} else {
		r.lines.ack.Out(r.lines.handshakeLevel(false))
	}
}

// Received returns the words received so far.
func (r *SimReceiver) Received() []uint32 {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]uint32(nil), r.received...)
}

// Close detaches the receiver.
func (r *SimReceiver) Close() {
	r.stop()
}

// SimSender plays a chip sending words: Emit asserts a request and the
// request is released once acknowledged.
type SimSender struct {
	lines simLines
	stop  func()
}

// NewSimSender attaches a sender to the pins.
func NewSimSender(req, ack *SimPin, data []*SimPin, polarity aer.Polarity) *SimSender {
	s := &SimSender{lines: simLines{req: req, ack: ack, data: data, polarity: polarity}}
	req.Out(s.lines.handshakeLevel(false))
	s.stop = ack.Listen(s.onAcknowledge)
	return s
}

func (s *SimSender) onAcknowledge(level gpio.Level) {
	if s.lines.handshakeAsserted(level) {
		s.lines.req.Out(s.lines.handshakeLevel(false))
	}
}

// Emit starts sending a word. It returns false while the previous
// handshake is still in progress.
func (s *SimSender) Emit(v uint32) bool {
	if s.lines.handshakeAsserted(s.lines.req.Read()) || s.lines.handshakeAsserted(s.lines.ack.Read()) {
		return false
	}
	s.lines.writeData(v)
	s.lines.req.Out(s.lines.handshakeLevel(true))
	return true
}

// Close detaches the sender.
func (s *SimSender) Close() {
	s.stop()
}
