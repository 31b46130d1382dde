package aer

import (
	"fmt"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"
)

// Polarity selects active levels, matching the TYPE configuration value.
type Polarity byte

// Polarities.
const (
	HandshakeHighDataHigh Polarity = iota
	HandshakeHighDataLow
	HandshakeLowDataHigh
	HandshakeLowDataLow
)

// HandshakeActiveLow indicates the request/acknowledge lines are active low.
func (p Polarity) HandshakeActiveLow() bool {
	return p&2 != 0
}

// DataActiveLow indicates the data lines are active low.
func (p Polarity) DataActiveLow() bool {
	return p&1 != 0
}

// PinLines implements Lines over GPIO pins.
type PinLines struct {
	// OwnPin is request when driving, acknowledge when observing.
	OwnPin   gpio.PinIO
	PeerPin  gpio.PinIO
	Data     []gpio.PinIO // channel 0 first
	Polarity Polarity
}

// Setup configures pin directions for the role. The peer line is
// configured to detect both edges when edges is set.
func (l *PinLines) Setup(role Role, edges bool) error {
	if l.OwnPin == nil || l.PeerPin == nil {
		return fmt.Errorf("handshake pins not configured")
	}
	if err := l.OwnPin.Out(l.level(false, l.Polarity.HandshakeActiveLow())); err != nil {
		return fmt.Errorf("%s: %v", l.OwnPin, err)
	}
	edge := gpio.NoEdge
	if edges {
		edge = gpio.BothEdges
	}
	if err := l.PeerPin.In(gpio.PullNoChange, edge); err != nil {
		return fmt.Errorf("%s: %v", l.PeerPin, err)
	}
	for _, p := range l.Data {
		var err error
		if role == Drive {
			err = p.Out(l.level(false, l.Polarity.DataActiveLow()))
		} else {
			err = p.In(gpio.PullNoChange, gpio.NoEdge)
		}
		if err != nil {
			return fmt.Errorf("%s: %v", p, err)
		}
	}
	return nil
}

// Drive implements Lines.
func (l *PinLines) Drive(asserted bool) {
	if err := l.OwnPin.Out(l.level(asserted, l.Polarity.HandshakeActiveLow())); err != nil {
		glog.Warningf("%s: %v", l.OwnPin, err)
	}
}

// Peer implements Lines.
func (l *PinLines) Peer() bool {
	return l.asserted(l.PeerPin.Read(), l.Polarity.HandshakeActiveLow())
}

// WriteData implements Lines.
func (l *PinLines) WriteData(v uint32) {
	for n, p := range l.Data {
		if err := p.Out(l.level(v&(1<<uint(n)) != 0, l.Polarity.DataActiveLow())); err != nil {
			glog.Warningf("%s: %v", p, err)
		}
	}
}

// ReadData implements Lines.
func (l *PinLines) ReadData() (v uint32) {
	for n, p := range l.Data {
		if l.asserted(p.Read(), l.Polarity.DataActiveLow()) {
			v |= 1 << uint(n)
		}
	}
	return
}

func (l *PinLines) level(asserted, activeLow bool) gpio.Level {
	return gpio.Level(asserted != activeLow)
}

func (l *PinLines) asserted(level gpio.Level, activeLow bool) bool {
	return bool(level) != activeLow
}
