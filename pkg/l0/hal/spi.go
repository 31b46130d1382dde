package hal

import (
	"github.com/golang/glog"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"github.com/robotalks/aerlink/pkg/l0/comm"
)

// SPISpeeds maps speed classes to clock frequencies.
var SPISpeeds = []physic.Frequency{
	10 * physic.KiloHertz,
	50 * physic.KiloHertz,
	100 * physic.KiloHertz,
	500 * physic.KiloHertz,
	physic.MegaHertz,
	2 * physic.MegaHertz,
	4 * physic.MegaHertz,
	8 * physic.MegaHertz,
	12 * physic.MegaHertz,
}

// SPIConfig is the configuration of a SPI master.
type SPIConfig struct {
	// Width is the number of bytes per transfer, 1 to 4.
	Width      byte
	MSFirst    bool
	SpeedClass byte
	Mode       spi.Mode
}

// SPI is a SPI master on a port.
type SPI struct {
	ID     int
	Config SPIConfig

	port spi.Port
	conn spi.Conn
}

// NewSPI creates a SPI master. port may be nil if not present.
func NewSPI(id int, port spi.Port) *SPI {
	return &SPI{ID: id, port: port, Config: SPIConfig{Width: 1}}
}

// Active indicates the interface is activated.
func (d *SPI) Active() bool {
	return d.conn != nil
}

// Reset deactivates the interface and restores defaults.
func (d *SPI) Reset() {
	d.conn = nil
	d.Config = SPIConfig{Width: 1}
}

// Configure applies a config sub-header and returns the confirmed value.
// An active interface can't be reconfigured.
func (d *SPI) Configure(sub comm.ConfigSub, value byte) (byte, error) {
	if d.conn != nil {
		return 0, newError(comm.ErrorInterfaceAlreadyActive, uint32(value), sub)
	}
	switch sub {
	case comm.SubActive:
		if d.port == nil {
			return 0, newError(comm.ErrorPeripheralInterfaceNotReady, uint32(d.ID), sub)
		}
		conn, err := d.port.Connect(SPISpeeds[d.Config.SpeedClass], d.Config.Mode, 8)
		if err != nil {
			glog.Warningf("spi%d: connect: %v", d.ID, err)
			return 0, newError(comm.ErrorPeripheralInterfaceNotReady, uint32(d.ID), sub)
		}
		d.conn = conn
		return 1, nil
	case comm.SubWidth:
		if value < 1 || value > 4 {
			return 0, newError(comm.ErrorConfigurationOutOfBounds, uint32(value), sub)
		}
		d.Config.Width = value
		return value, nil
	case comm.SubByteOrder:
		d.Config.MSFirst = value > 0
		if d.Config.MSFirst {
			return 1, nil
		}
		return 0, nil
	case comm.SubSpeedClass:
		if int(value) >= len(SPISpeeds) {
			return 0, newError(comm.ErrorConfigurationOutOfBounds, uint32(value), sub)
		}
		d.Config.SpeedClass = value
		return value, nil
	case comm.SubType:
		if value > 3 {
			return 0, newError(comm.ErrorConfigurationOutOfBounds, uint32(value), sub)
		}
		d.Config.Mode = spi.Mode(value)
		return value, nil
	}
	return 0, newError(comm.ErrorUnknownConfiguration, uint32(d.ID), sub)
}

// Transfer sends a value and returns the value clocked in.
func (d *SPI) Transfer(value uint32) (uint32, error) {
	if d.conn == nil {
		return 0, newError(comm.ErrorInterfaceNotActive, uint32(d.ID), comm.SubNone)
	}
	width := int(d.Config.Width)
	if width < 4 && value >= 1<<(8*uint(width)) {
		return 0, newError(comm.ErrorDataOutOfBounds, value, comm.SubWidth)
	}
	w, r := make([]byte, width), make([]byte, width)
	for n := 0; n < width; n++ {
		w[d.byteIndex(n)] = byte(value >> (8 * uint(n)))
	}
	if err := d.conn.Tx(w, r); err != nil {
		glog.V(2).Infof("spi%d: transfer: %v", d.ID, err)
		return 0, newError(comm.ErrorPeripheralInterfaceNotReady, uint32(d.ID), comm.SubNone)
	}
	var in uint32
	for n := 0; n < width; n++ {
		in |= uint32(r[d.byteIndex(n)]) << (8 * uint(n))
	}
	return in, nil
}

// byteIndex returns the wire position of the n-th least significant byte.
func (d *SPI) byteIndex(n int) int {
	if d.Config.MSFirst {
		return int(d.Config.Width) - 1 - n
	}
	return n
}
