package device

import (
	"sync/atomic"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"

	"github.com/robotalks/aerlink/pkg/l0/aer"
	"github.com/robotalks/aerlink/pkg/l0/comm"
	"github.com/robotalks/aerlink/pkg/l0/hal"
)

const unassigned = -1

// asyncPort is an AER interface: its pin assignment and, once active,
// the handshake engine.
type asyncPort struct {
	id   int
	role aer.Role
	conf comm.Header

	req, ack int
	data     [comm.NumChannels]int
	width    int
	delay    byte
	polarity aer.Polarity

	engine atomic.Pointer[aer.Async]
}

func newAsyncPort(id int, role aer.Role) *asyncPort {
	a := &asyncPort{id: id, role: role}
	if role == aer.Drive {
		a.conf = comm.ConfAsyncToChipHeader(id)
	} else {
		a.conf = comm.ConfAsyncFromChipHeader(id)
	}
	a.reset()
	return a
}

func (a *asyncPort) reset() {
	if e := a.engine.Swap(nil); e != nil {
		e.Abort()
	}
	a.req, a.ack = unassigned, unassigned
	for n := range a.data {
		a.data[n] = unassigned
	}
	a.width, a.delay, a.polarity = 0, 0, aer.HandshakeHighDataHigh
}

// configure applies a sub-header and returns the confirmed value.
func (a *asyncPort) configure(d *Device, sub comm.ConfigSub, value byte) (byte, error) {
	if a.engine.Load() != nil {
		return 0, &hal.Error{Header: comm.ErrorInterfaceAlreadyActive, Value: uint32(a.id), Sub: sub}
	}
	if n, ok := sub.Channel(); ok {
		a.data[n] = int(value)
		return value, nil
	}
	switch sub {
	case comm.SubReq:
		a.req = int(value)
	case comm.SubAck:
		a.ack = int(value)
	case comm.SubWidth:
		if value > comm.NumChannels {
			a.width = comm.NumChannels
			return 0, &hal.Error{Header: comm.ErrorConfigurationOutOfBounds, Value: uint32(value), Sub: sub}
		}
		a.width = int(value)
	case comm.SubReqDelay:
		a.delay = value
	case comm.SubType:
		if value > byte(aer.HandshakeLowDataLow) {
			return 0, &hal.Error{Header: comm.ErrorConfigurationOutOfBounds, Value: uint32(value), Sub: sub}
		}
		a.polarity = aer.Polarity(value)
	case comm.SubActive:
		if err := a.activate(d); err != nil {
			d.pins.ReleaseOwner(a.conf)
			return 0, err
		}
		return 1, nil
	default:
		return 0, &hal.Error{Header: comm.ErrorUnknownConfiguration, Value: uint32(value), Sub: sub}
	}
	return value, nil
}

func (a *asyncPort) activate(d *Device) error {
	if a.req == unassigned || a.ack == unassigned {
		return &hal.Error{Header: comm.ErrorPinNotConfigured, Value: uint32(a.id), Sub: comm.SubReq}
	}
	own, peer := a.req, a.ack
	dataDir := hal.Output
	if a.role == aer.Observe {
		own, peer = a.ack, a.req
		dataDir = hal.Input
	}
	if err := d.pins.Reserve(own, hal.Output, a.conf); err != nil {
		return err
	}
	if err := d.pins.Reserve(peer, hal.Input, a.conf); err != nil {
		return err
	}
	lines := &aer.PinLines{
		OwnPin:   d.pins.Pin(own),
		PeerPin:  d.pins.Pin(peer),
		Polarity: a.polarity,
	}
	for n := 0; n < a.width; n++ {
		if a.data[n] == unassigned {
			return &hal.Error{Header: comm.ErrorPinNotConfigured, Value: uint32(n), Sub: comm.ConfigSub(n)}
		}
		if err := d.pins.Reserve(a.data[n], dataDir, a.conf); err != nil {
			return err
		}
		lines.Data = append(lines.Data, d.pins.Pin(a.data[n]))
	}
	if err := lines.Setup(a.role, false); err != nil {
		glog.Warningf("%s: %v", a.conf, err)
		return &hal.Error{Header: comm.ErrorPeripheralInterfaceNotReady, Value: uint32(a.id), Sub: comm.SubActive}
	}
	engine := aer.New(a.role, lines)
	engine.Timeout = d.conf.handshakeTimeoutMicros()
	engine.RequestDelay = uint32(a.delay)
	a.engine.Store(engine)
	if a.role == aer.Observe {
		id := a.id
		if err := d.pins.Watch(peer, func(gpio.Level) { d.RequestEdge(id) }); err != nil {
			a.engine.Store(nil)
			return err
		}
	}
	glog.Infof("%s active: req=%d ack=%d width=%d type=%d", a.conf, a.req, a.ack, a.width, a.polarity)
	return nil
}

// fits indicates v can be presented on the data lines.
func (a *asyncPort) fits(v uint32) bool {
	return a.width >= comm.NumChannels || v < 1<<uint(a.width)
}

// inflight is a to-chip handshake stalling the decoder.
type inflight struct {
	port    *asyncPort
	request comm.Data32bitPacket
}
