package comm

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testStream struct {
	t       *testing.T
	reader  *io.PipeReader
	writer  *io.PipeWriter
	writeCh chan byte
}

func newTestStream(t *testing.T) *testStream {
	r, w := io.Pipe()
	return &testStream{
		t:       t,
		reader:  r,
		writer:  w,
		writeCh: make(chan byte, PacketSize*4),
	}
}

func (s *testStream) Read(p []byte) (int, error) {
	return s.reader.Read(p)
}

func (s *testStream) Write(p []byte) (int, error) {
	for _, b := range p {
		s.writeCh <- b
	}
	return len(p), nil
}

func (s *testStream) inject(p ...byte) {
	_, err := s.writer.Write(p)
	require.NoError(s.t, err)
}

func (s *testStream) close() {
	s.writer.Close()
}

type fifoTestCtx struct {
	t        *testing.T
	stream   *testStream
	fifo     *FIFO
	packetCh chan Packet
	errCh    chan error
	cancel   func()
}

func newFIFOTestCtx(t *testing.T) *fifoTestCtx {
	tctx := &fifoTestCtx{
		t:        t,
		stream:   newTestStream(t),
		packetCh: make(chan Packet, 8),
		errCh:    make(chan error, 1),
	}
	tctx.fifo = NewFIFO(tctx.stream)
	tctx.fifo.Timeout = 10 * time.Millisecond
	tctx.fifo.SetHandler(HandlePacketFunc(func(ctx context.Context, pkt Packet) {
		tctx.packetCh <- pkt
	}))
	var ctx context.Context
	ctx, tctx.cancel = context.WithCancel(context.TODO())
	go func() {
		tctx.errCh <- tctx.fifo.Run(ctx)
	}()
	return tctx
}

func (c *fifoTestCtx) stop() {
	c.cancel()
	c.stream.close()
}

func (c *fifoTestCtx) expectPacket(expected Packet) *fifoTestCtx {
	select {
	case pkt := <-c.packetCh:
		require.Equal(c.t, expected, pkt)
	case <-time.After(500 * time.Millisecond):
		c.t.Fatal("expect packet timeout")
	}
	return c
}

func (c *fifoTestCtx) expectNoPacket() *fifoTestCtx {
	select {
	case pkt := <-c.packetCh:
		c.t.Fatalf("unexpected packet %v", pkt)
	default:
	}
	return c
}

func (c *fifoTestCtx) expectWritten(bs []byte) *fifoTestCtx {
	for i, expected := range bs {
		select {
		case b := <-c.stream.writeCh:
			require.Equalf(c.t, expected, b, "written[%d] mismatch", i)
		case <-time.After(500 * time.Millisecond):
			c.t.Fatalf("written[%d] timeout", i)
		}
	}
	return c
}

func TestFIFOReceive(t *testing.T) {
	tctx := newFIFOTestCtx(t)
	defer tctx.stop()

	pin := PinPacket{Header: OutPinHigh, ExecTime: 100, ID: 3, Value: 1}
	event := Data32bitPacket{Header: AsyncFromChipHeader(1), ExecTime: 200, Value: 0x2a}
	data := Append(Append([]byte{0x96}, pin), event)
	tctx.stream.inject(data...)
	tctx.expectPacket(pin).expectPacket(event)
}

func TestFIFOSend(t *testing.T) {
	tctx := newFIFOTestCtx(t)
	defer tctx.stop()

	pkt := ConfigPacket{Header: ConfPin, Sub: SubOutput, Value: 5}
	require.NoError(t, tctx.fifo.Send(pkt))
	tctx.expectWritten(Append(nil, pkt))
}

func TestFIFODropPartialPacket(t *testing.T) {
	tctx := newFIFOTestCtx(t)
	defer tctx.stop()

	pkt := Data32bitPacket{Header: OutTime, Value: 1000}
	b := Encode(pkt)
	tctx.stream.inject(b[:5]...)
	time.Sleep(50 * time.Millisecond)
	tctx.expectNoPacket()
	tctx.stream.inject(b[:]...)
	tctx.expectPacket(pkt)
}

func TestFIFOStopOnReadError(t *testing.T) {
	tctx := newFIFOTestCtx(t)
	tctx.stream.close()
	select {
	case err := <-tctx.errCh:
		require.Equal(t, io.EOF, err)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("FIFO not stopped")
	}
	tctx.cancel()
}
