package hal

import (
	"github.com/golang/glog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/robotalks/aerlink/pkg/l0/comm"
)

// MaxI2CReadCount is the maximum number of values in one read.
const MaxI2CReadCount = 32

// I2CSpeeds maps speed classes to bus frequencies.
var I2CSpeeds = []physic.Frequency{
	100 * physic.KiloHertz,
	400 * physic.KiloHertz,
	physic.MegaHertz,
	3400 * physic.KiloHertz,
	10 * physic.KiloHertz,
}

// I2CConfig is the configuration of an I2C master.
type I2CConfig struct {
	// Width is 0 for a single byte without register address, 1 for a
	// register and one byte, 2 for a register and two bytes.
	Width      byte
	MSFirst    bool
	SpeedClass byte
}

// I2C is an I2C master on a bus.
type I2C struct {
	ID     int
	Config I2CConfig

	bus    i2c.Bus
	active bool
}

// NewI2C creates an I2C master. bus may be nil if not present.
func NewI2C(id int, bus i2c.Bus) *I2C {
	return &I2C{ID: id, bus: bus, Config: I2CConfig{Width: 1}}
}

// Active indicates the interface is activated.
func (d *I2C) Active() bool {
	return d.active
}

// Reset deactivates the interface and restores defaults.
func (d *I2C) Reset() {
	d.active = false
	d.Config = I2CConfig{Width: 1}
}

// Configure applies a config sub-header and returns the confirmed value.
func (d *I2C) Configure(sub comm.ConfigSub, value byte) (byte, error) {
	switch sub {
	case comm.SubActive:
		if d.bus == nil {
			return 0, newError(comm.ErrorPeripheralInterfaceNotReady, uint32(d.ID), sub)
		}
		if err := d.bus.SetSpeed(I2CSpeeds[d.Config.SpeedClass]); err != nil {
			glog.Warningf("i2c%d: set speed: %v", d.ID, err)
		}
		d.active = true
		return 1, nil
	case comm.SubWidth:
		if value > 2 {
			d.Config.Width = 1
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
		if int(value) >= len(I2CSpeeds) {
			value = 0
		}
		d.Config.SpeedClass = value
		if d.active {
			if err := d.bus.SetSpeed(I2CSpeeds[value]); err != nil {
				glog.Warningf("i2c%d: set speed: %v", d.ID, err)
			}
		}
		return value, nil
	}
	return 0, newError(comm.ErrorUnknownConfiguration, uint32(d.ID), sub)
}

// Write writes a value to a register.
func (d *I2C) Write(addr uint16, reg byte, value uint16) error {
	if !d.active {
		return newError(comm.ErrorInterfaceNotActive, uint32(d.ID), comm.SubNone)
	}
	w := make([]byte, 0, 3)
	if d.Config.Width != 0 {
		w = append(w, reg)
	}
	w = d.appendValue(w, value)
	if err := d.bus.Tx(addr, w, nil); err != nil {
		glog.V(2).Infof("i2c%d: write 0x%02x: %v", d.ID, addr, err)
		return newError(comm.ErrorPeripheralInterfaceNotReady, uint32(addr), comm.SubNone)
	}
	return nil
}

// Read reads count values starting at a register.
func (d *I2C) Read(addr uint16, reg byte, count int) ([]uint16, error) {
	if count > MaxI2CReadCount {
		return nil, newError(comm.ErrorConfigurationOutOfBounds, uint32(count), comm.SubInput)
	}
	if !d.active {
		return nil, newError(comm.ErrorInterfaceNotActive, uint32(d.ID), comm.SubNone)
	}
	size := 1
	var w []byte
	if d.Config.Width != 0 {
		w = []byte{reg}
		size = int(d.Config.Width)
	}
	r := make([]byte, count*size)
	if err := d.bus.Tx(addr, w, r); err != nil {
		glog.V(2).Infof("i2c%d: read 0x%02x: %v", d.ID, addr, err)
		return nil, newError(comm.ErrorPeripheralInterfaceNotReady, uint32(addr), comm.SubNone)
	}
	values := make([]uint16, count)
	for n := range values {
		b := r[n*size : (n+1)*size]
		if size == 1 {
			values[n] = uint16(b[0])
		} else if d.Config.MSFirst {
			values[n] = uint16(b[0])<<8 | uint16(b[1])
		} else {
			values[n] = uint16(b[1])<<8 | uint16(b[0])
		}
	}
	return values, nil
}

func (d *I2C) appendValue(w []byte, value uint16) []byte {
	ms, ls := byte(value>>8), byte(value)
	if d.Config.Width != 2 {
		return append(w, ls)
	}
	if d.Config.MSFirst {
		return append(w, ms, ls)
	}
	return append(w, ls, ms)
}
