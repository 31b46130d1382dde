package comm

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/golang/glog"
)

// PacketHandler is called when a packet is received.
type PacketHandler interface {
	HandlePacket(context.Context, Packet)
}

// HandlePacketFunc is func type of PacketHandler.
type HandlePacketFunc func(context.Context, Packet)

// HandlePacket implements PacketHandler.
func (f HandlePacketFunc) HandlePacket(ctx context.Context, pkt Packet) {
	f(ctx, pkt)
}

// Link sends packets to a peer and delivers received packets to a handler.
type Link interface {
	Send(Packet) error
	SetHandler(PacketHandler)
	Run(context.Context) error
}

// FIFO send/recv packets over a byte stream.
type FIFO struct {
	ReadWriter io.ReadWriter
	Handler    PacketHandler
	// Timeout drops a partially received packet if the peer stops sending.
	Timeout     time.Duration
	ReadTimeout bool // set to true if ReadWriter already supports timeout with Read

	lock         sync.Mutex
	partialTimer <-chan time.Time
	parser       Parser
}

// NewFIFO creates a FIFO.
func NewFIFO(rw io.ReadWriter) *FIFO {
	return &FIFO{
		ReadWriter: rw,
		Timeout:    100 * time.Millisecond,
	}
}

// SetHandler implements Link.
func (f *FIFO) SetHandler(h PacketHandler) {
	f.Handler = h
}

// Send sends a packet.
func (f *FIFO) Send(pkt Packet) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	_, err := WritePacket(f.ReadWriter, pkt)
	return err
}

// Run processes the FIFO in the background.
func (f *FIFO) Run(ctx context.Context) error {
	f.parser.Reset()
	if f.ReadTimeout {
		buf := make([]byte, PacketSize)
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-f.partialTimer:
				f.timeout()
			default:
				n, err := f.ReadWriter.Read(buf)
				if err != nil && !os.IsTimeout(err) {
					return err
				}
				if n == 0 {
					f.timeout()
					continue
				}
				f.parse(ctx, buf[:n])
			}
		}
	}

	dataCh, errCh := make(chan []byte), make(chan error, 1)
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go f.readLoop(subCtx, dataCh, errCh)
	for {
		select {
		case data := <-dataCh:
			f.parse(ctx, data)
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-f.partialTimer:
			f.timeout()
		}
	}
}

func (f *FIFO) readLoop(ctx context.Context, dataCh chan []byte, errCh chan error) {
	for {
		buf := make([]byte, PacketSize*4)
		n, err := f.ReadWriter.Read(buf)
		if err != nil {
			errCh <- err
			return
		}
		if n == 0 {
			continue
		}
		select {
		case dataCh <- buf[:n]:
		case <-ctx.Done():
			return
		}
	}
}

func (f *FIFO) parse(ctx context.Context, data []byte) {
	for _, b := range data {
		pr := f.parser.Parse(b)
		if pr.Discarded {
			glog.V(3).Infof("discard unknown header %d", b)
		}
		if pr.Packet != nil {
			if h := f.Handler; h != nil {
				h.HandlePacket(ctx, pr.Packet)
			}
		}
	}
	if f.parser.Receiving() {
		f.partialTimer = time.After(f.Timeout)
	} else {
		f.partialTimer = nil
	}
}

func (f *FIFO) timeout() {
	if n := f.parser.Timeout(); n > 0 {
		glog.V(2).Infof("drop %d bytes of incomplete packet", n)
	}
	f.partialTimer = nil
}
