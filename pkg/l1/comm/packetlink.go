package comm

import (
	"context"
	"sync"

	"github.com/golang/glog"

	fx "github.com/robotalks/aerlink/pkg/framework"
	l0 "github.com/robotalks/aerlink/pkg/l0/comm"
	"github.com/robotalks/aerlink/pkg/l1"
	"github.com/robotalks/aerlink/pkg/l1/msgs"
)

// PacketLink implements l0 comm.Link on top of a bridge connection, so
// an l0 Client can talk to a remote device. Each sent packet becomes a
// DevicePacket command, the replies and DeviceEvents are delivered to the
// handler as packets.
type PacketLink struct {
	Conn l1.BridgeConn

	handler l0.PacketHandler
	ctx     context.Context
	lock    sync.Mutex
	ready   chan struct{}
	ordered sync.Mutex
}

// NewPacketLink creates a PacketLink. conn must be added to a loop.
func NewPacketLink(conn l1.BridgeConn) *PacketLink {
	l := &PacketLink{Conn: conn, ready: make(chan struct{})}
	if n, ok := conn.(l1.EventNotifier); ok {
		n.NotifyEvents(fx.HandleMessageFunc(l.handleEvent))
	}
	return l
}

// SetHandler implements Link.
func (l *PacketLink) SetHandler(h l0.PacketHandler) {
	l.handler = h
}

// Send implements Link.
func (l *PacketLink) Send(pkt l0.Packet) error {
	f := l.Conn.DoCommand(msgs.NewDevicePacket(pkt))
	go l.waitReply(pkt.Head(), f)
	return nil
}

// Run implements Link.
func (l *PacketLink) Run(ctx context.Context) error {
	l.lock.Lock()
	l.ctx = ctx
	l.lock.Unlock()
	close(l.ready)
	<-ctx.Done()
	return ctx.Err()
}

func (l *PacketLink) context() context.Context {
	<-l.ready
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.ctx
}

func (l *PacketLink) waitReply(h l0.Header, f l1.CommandFuture) {
	res := <-f.ResultChan()
	if res.Err != nil {
		glog.Warningf("%s: %v", h, res.Err)
		return
	}
	reply, ok := res.Msg.(*msgs.DeviceReply)
	if !ok {
		glog.Warningf("%s: unexpected reply %T", h, res.Msg)
		return
	}
	pkts, err := reply.Packets()
	if err != nil {
		glog.Warningf("%s: bad reply: %v", h, err)
		return
	}
	l.deliver(pkts...)
}

func (l *PacketLink) handleEvent(_ context.Context, msg fx.Message) {
	ev, ok := msg.(*msgs.DeviceEvent)
	if !ok {
		return
	}
	pkt, err := ev.Decode()
	if err != nil {
		glog.Warningf("bad event: %v", err)
		return
	}
	l.deliver(pkt)
}

func (l *PacketLink) deliver(pkts ...l0.Packet) {
	h := l.handler
	if h == nil {
		return
	}
	ctx := l.context()
	l.ordered.Lock()
	defer l.ordered.Unlock()
	for _, pkt := range pkts {
		h.HandlePacket(ctx, pkt)
	}
}
