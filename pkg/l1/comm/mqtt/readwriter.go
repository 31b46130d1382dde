package mqtt

import (
	"context"
	"io"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/aerlink/pkg/l1"
)

// Topics are the topics of a bridge. Hosts publish commands on Cmd and
// the bridge publishes replies and events on Msg. Meta holds the retained
// bridge info.
type Topics struct {
	Cmd  string
	Msg  string
	Meta string
}

// TopicsOf returns the topics of a bridge, all under TYPE/ID/.
func TopicsOf(ref l1.BridgeRef) Topics {
	prefix := ref.Name() + "/"
	return Topics{
		Cmd:  prefix + "cmd",
		Msg:  prefix + "msg",
		Meta: prefix + "meta",
	}
}

// incomingBacklog absorbs bursts of device events.
const incomingBacklog = 256

// ReadWriter implements comm.PacketReadWriter over a pair of topics.
type ReadWriter struct {
	Broker   *Broker
	SubTopic string
	PubTopic string

	incoming  chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	sub       *Subscription
}

func newReadWriter(b *Broker, sub, pub string) *ReadWriter {
	rw := &ReadWriter{
		Broker:   b,
		SubTopic: sub,
		PubTopic: pub,
		incoming: make(chan []byte, incomingBacklog),
		closed:   make(chan struct{}),
	}
	if b != nil {
		rw.sub = b.Subscribe(sub, rw.received)
	}
	return rw
}

// BridgeSide receives commands and publishes messages of a bridge.
func BridgeSide(b *Broker, ref l1.BridgeRef) *ReadWriter {
	topics := TopicsOf(ref)
	return newReadWriter(b, topics.Cmd, topics.Msg)
}

// HostSide receives messages and publishes commands to a bridge.
func HostSide(b *Broker, ref l1.BridgeRef) *ReadWriter {
	topics := TopicsOf(ref)
	return newReadWriter(b, topics.Msg, topics.Cmd)
}

// ReadPacket implements comm.PacketReader.
func (rw *ReadWriter) ReadPacket() ([]byte, error) {
	select {
	case pkt := <-rw.incoming:
		return pkt, nil
	case <-rw.closed:
		return nil, io.EOF
	}
}

// WritePacket implements comm.PacketWriter.
func (rw *ReadWriter) WritePacket(pkt []byte) error {
	return rw.Broker.Publish(context.Background(), rw.PubTopic, pkt)
}

// Close stops receiving. The broker stays connected.
func (rw *ReadWriter) Close() error {
	var err error
	rw.closeOnce.Do(func() {
		close(rw.closed)
		if rw.sub != nil {
			err = rw.sub.Close()
		}
	})
	return err
}

func (rw *ReadWriter) received(topic string, payload []byte) {
	select {
	case rw.incoming <- payload:
	case <-rw.closed:
	default:
		glog.Warningf("%s: backlog full, message dropped", topic)
	}
}
