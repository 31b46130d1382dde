package comm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/aerlink/pkg/framework"
	l0 "github.com/robotalks/aerlink/pkg/l0/comm"
	"github.com/robotalks/aerlink/pkg/l1"
	"github.com/robotalks/aerlink/pkg/l1/msgs"
)

var errClosed = errors.New("closed")

// chanPipe is one end of an in-memory PacketReadWriter pair.
type chanPipe struct {
	in     <-chan []byte
	out    chan<- []byte
	closed chan struct{}
	once   *sync.Once
}

func newChanPipes() (*chanPipe, *chanPipe) {
	a, b := make(chan []byte, 16), make(chan []byte, 16)
	closed, once := make(chan struct{}), &sync.Once{}
	return &chanPipe{in: a, out: b, closed: closed, once: once},
		&chanPipe{in: b, out: a, closed: closed, once: once}
}

func (p *chanPipe) ReadPacket() ([]byte, error) {
	select {
	case pkt := <-p.in:
		return pkt, nil
	case <-p.closed:
		return nil, errClosed
	}
}

func (p *chanPipe) WritePacket(pkt []byte) error {
	select {
	case p.out <- pkt:
		return nil
	case <-p.closed:
		return errClosed
	}
}

func (p *chanPipe) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

type runFunc func(context.Context) error

func (f runFunc) Run(ctx context.Context) error { return f(ctx) }

// echoDevice answers DevicePackets with an echo of the packet, and
// sends an event for SET_TIME.
type echoDevice struct {
	reg l1.Registrar
}

func (d *echoDevice) Control(cc fx.ControlContext) error {
	cc.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mctx fx.MessageProcessingContext) {
		cmd, ok := mctx.CurrentMessage().(*l1.CommandMsg)
		if !ok {
			return
		}
		m, ok := cmd.Command.Msg().(*msgs.DevicePacket)
		if !ok {
			return
		}
		mctx.MessageTaken()
		pkt, err := m.Packet()
		if err != nil {
			cmd.Command.Reply(msgs.NewCommandErr(err))
			return
		}
		if pkt.Head() == l0.SetTime {
			d.reg.SendEvent(cc.Context(), msgs.NewDeviceEvent(l0.PinPacket{Header: l0.OutPinHigh, ID: 1, Value: 1}))
		}
		cmd.Command.Reply(msgs.NewDeviceReply(l0.Result{Reply: pkt}))
	}))
	return nil
}

func startBridge(ctx context.Context, rws ...PacketReadWriter) *Sessions {
	sessions := &Sessions{}
	loop := fx.NewLoop()
	loop.Interval = 10 * time.Millisecond
	loop.AddController(fx.PrLvControl, &echoDevice{reg: sessions})
	loop.Add(&UnsupportedCommands{})
	for _, rw := range rws {
		rw := rw
		loop.AddRunnable(runFunc(func(ctx context.Context) error {
			return sessions.Serve(ctx, rw)
		}))
	}
	go loop.Run(ctx)
	return sessions
}

func waitResult(t *testing.T, f l1.CommandFuture) l1.Result {
	select {
	case r := <-f.ResultChan():
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no result")
	}
	return l1.Result{}
}

func waitFor(t *testing.T, cond func() bool) {
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBridgeConnCommands(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bridgeSide, hostSide := newChanPipes()
	startBridge(ctx, bridgeSide)

	conn := NewBridgeConn(hostSide)
	go fx.NewLoop().Add(conn).Run(ctx)

	pkt := l0.Data32bitPacket{Header: l0.ReadTime, Value: 3}
	r := waitResult(t, conn.DoCommand(msgs.NewDevicePacket(pkt)))
	require.NoError(t, r.Err)
	pkts, err := r.Msg.(*msgs.DeviceReply).Packets()
	require.NoError(t, err)
	require.Equal(t, []l0.Packet{pkt}, pkts)

	r = waitResult(t, conn.DoCommand(&msgs.DeviceStatusQuery{}))
	require.Error(t, r.Err)
	require.Equal(t, msgs.ErrUnsupportedCommand.Error(), r.Err.Error())
}

func TestBridgeConnExpire(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, hostSide := newChanPipes()
	conn := NewBridgeConn(hostSide)
	conn.Expiration = 10 * time.Millisecond
	loop := fx.NewLoop()
	loop.Interval = 5 * time.Millisecond
	go loop.Add(conn).Run(ctx)

	r := waitResult(t, conn.DoCommand(&msgs.DeviceStatusQuery{}))
	require.Equal(t, context.DeadlineExceeded, r.Err)
}

func TestPacketLinkOverSessions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bridge1, host1 := newChanPipes()
	bridge2, host2 := newChanPipes()
	sessions := startBridge(ctx, bridge1, bridge2)

	conn1, conn2 := NewBridgeConn(host1), NewBridgeConn(host2)
	client1 := l0.NewClient(NewPacketLink(conn1))
	client2 := l0.NewClient(NewPacketLink(conn2))
	go fx.NewLoop().Add(conn1, conn2).AddRunnable(client1, client2).Run(ctx)

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	waitFor(t, func() bool { return sessions.Len() == 2 })
	r := client1.Do(l0.Data32bitPacket{Header: l0.SetTime, Value: 100}).Wait(waitCtx)
	require.NoError(t, r.Err)
	require.Equal(t, l0.SetTime, r.Reply.Head())

	for _, client := range []*l0.Client{client1, client2} {
		select {
		case ev := <-client.EventChan():
			require.Equal(t, l0.OutPinHigh, ev.Head())
		case <-waitCtx.Done():
			t.Fatal("no event")
		}
	}

	bridge2.Close()
	waitFor(t, func() bool { return sessions.Len() == 1 })
}
