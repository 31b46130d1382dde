package device

import (
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/aerlink/pkg/l0/comm"
	"github.com/robotalks/aerlink/pkg/ring"
)

// outbox is the producer side of the outbound ring, owned by the main
// loop. The last packet slot is reserved for the OUTPUT_FULL report.
type outbox struct {
	buf  *ring.Buffer
	txCh chan struct{}

	dropped      uint32
	firstDropped comm.Header

	readOnRequest atomic.Bool
	// allowance is the number of bytes released by READ while output is
	// held.
	allowance atomic.Int64

	last    [comm.PacketSize]byte
	hasLast bool
}

func newOutbox(size int) *outbox {
	return &outbox{
		buf:  ring.New(size),
		txCh: make(chan struct{}, 1),
	}
}

func (o *outbox) signal() {
	select {
	case o.txCh <- struct{}{}:
	default:
	}
}

func (o *outbox) emit(pkt comm.Packet) bool {
	if o.buf.FreeSpots() < 2*comm.PacketSize {
		if o.dropped == 0 {
			o.firstDropped = pkt.Head()
		}
		o.dropped++
		glog.V(2).Infof("output full, drop %s", pkt.Head())
		return false
	}
	b := comm.Encode(pkt)
	o.buf.Write(b[:])
	o.last, o.hasLast = b, true
	glog.V(3).Infof("emit %s", pkt.Head())
	o.signal()
	return true
}

// report writes the OUTPUT_FULL packet into the reserved slot once it is
// available.
func (o *outbox) report() {
	if o.dropped == 0 || o.buf.FreeSpots() < comm.PacketSize {
		return
	}
	glog.Warningf("output full, %d packets dropped", o.dropped)
	b := comm.Encode(comm.ErrorPacket{
		Header: comm.ErrorOutputFull,
		Source: o.firstDropped,
		Value:  o.dropped,
		Sub:    comm.SubNone,
	})
	o.buf.Write(b[:])
	o.dropped = 0
	o.signal()
}

func (o *outbox) setReadOnRequest(en bool) {
	o.allowance.Store(0)
	o.readOnRequest.Store(en)
	o.signal()
}

// releaseAll lets everything currently buffered through.
func (o *outbox) releaseAll() {
	o.allowance.Store(int64(o.buf.Len()))
	o.signal()
}

// resendLast appends the last emitted packet again. Held output is
// released up to and including it.
func (o *outbox) resendLast() {
	if !o.hasLast || o.buf.FreeSpots() < comm.PacketSize {
		return
	}
	o.buf.Write(o.last[:])
	if o.readOnRequest.Load() {
		o.releaseAll()
	}
	o.signal()
}

// read is the consumer side.
func (o *outbox) read(dst []byte) int {
	if !o.readOnRequest.Load() {
		return o.buf.ReadInto(dst)
	}
	allowed := o.allowance.Load()
	if allowed <= 0 {
		return 0
	}
	if int64(len(dst)) > allowed {
		dst = dst[:allowed]
	}
	n := o.buf.ReadInto(dst)
	o.allowance.Add(-int64(n))
	return n
}
