// Package board builds the hardware a device runs on: simulated
// peripherals, or real ones found through periph.
package board

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	fx "github.com/robotalks/aerlink/pkg/framework"
	"github.com/robotalks/aerlink/pkg/l0/comm"
	"github.com/robotalks/aerlink/pkg/l0/device"
	"github.com/robotalks/aerlink/pkg/l0/hal"
)

// Supported HALs.
const (
	HALSim    = "sim"
	HALPeriph = "periph"
)

// Config selects the hardware.
type Config struct {
	HAL string
	// PinPrefix forms periph pin names: pin n is PinPrefix+n.
	PinPrefix string
	// I2C and SPI list periph bus names by index, "-" skips one.
	I2C []string
	SPI []string
	// SimI2CAddrs lists the simulated devices on each sim I2C bus.
	SimI2CAddrs []uint16
}

var defaultConfig = Config{
	HAL:         HALSim,
	PinPrefix:   "GPIO",
	SimI2CAddrs: []uint16{0x20, 0x48},
}

func init() {
	if val := os.Getenv("AERLINK_HAL"); val != "" {
		defaultConfig.HAL = val
	}
	if val := os.Getenv("AERLINK_PIN_PREFIX"); val != "" {
		defaultConfig.PinPrefix = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.HAL, "hal", defaultConfig.HAL, "Hardware: sim or periph")
	flag.StringVar(&defaultConfig.PinPrefix, "pin-prefix", defaultConfig.PinPrefix, "Periph pin name prefix")
	flag.Var((*listFlag)(&defaultConfig.I2C), "i2c", "Comma separated periph I2C bus names")
	flag.Var((*listFlag)(&defaultConfig.SPI), "spi", "Comma separated periph SPI port names")
	flag.Var((*addrsFlag)(&defaultConfig.SimI2CAddrs), "sim-i2c-addrs", "Comma separated sim I2C device addresses")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	conf.I2C = append([]string(nil), defaultConfig.I2C...)
	conf.SPI = append([]string(nil), defaultConfig.SPI...)
	conf.SimI2CAddrs = append([]uint16(nil), defaultConfig.SimI2CAddrs...)
	return &conf
}

// Board is the opened hardware.
type Board struct {
	device.Board
	// Link names the hardware in status reports.
	Link string
	// SimPins is set for sim boards, to drive inputs in tests.
	SimPins []*hal.SimPin

	closers []io.Closer
}

// Close releases opened buses.
func (b *Board) Close() error {
	errs := &fx.AggregatedError{}
	for _, c := range b.closers {
		errs.Add(c.Close())
	}
	return errs.Aggregate()
}

// Open opens the hardware for a device with the given number of pins.
func (c *Config) Open(pins int) (*Board, error) {
	switch c.HAL {
	case HALSim:
		return c.openSim(pins), nil
	case HALPeriph:
		return c.openPeriph(pins)
	}
	return nil, fmt.Errorf("unknown hal %q", c.HAL)
}

func (c *Config) openSim(pins int) *Board {
	b := &Board{Link: HALSim, SimPins: hal.NewSimPins(pins)}
	b.Pins = hal.PinIOs(b.SimPins)
	for n := range b.I2C {
		b.I2C[n] = hal.NewSimI2CBus(fmt.Sprintf("i2c%d", n), c.SimI2CAddrs...)
	}
	for n := range b.SPI {
		b.SPI[n] = &hal.SimSPIPort{Name: fmt.Sprintf("spi%d", n)}
	}
	return b
}

func (c *Config) openPeriph(pins int) (*Board, error) {
	state, err := host.Init()
	if err != nil {
		return nil, err
	}
	for _, failure := range state.Failed {
		glog.Warningf("driver %s: %v", failure.D, failure.Err)
	}
	b := &Board{Link: HALPeriph, Board: device.Board{Pins: make([]gpio.PinIO, pins)}}
	found := 0
	for n := range b.Pins {
		if p := gpioreg.ByName(c.PinPrefix + strconv.Itoa(n)); p != nil {
			b.Pins[n] = p
			found++
		}
	}
	glog.Infof("%d of %d pins available", found, pins)
	for n, name := range c.I2C {
		if n >= comm.NumI2C || name == "-" {
			continue
		}
		bus, err := i2creg.Open(name)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("i2c%d %q: %v", n, name, err)
		}
		b.I2C[n] = bus
		b.closers = append(b.closers, bus)
	}
	for n, name := range c.SPI {
		if n >= comm.NumSPI || name == "-" {
			continue
		}
		port, err := spireg.Open(name)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("spi%d %q: %v", n, name, err)
		}
		b.SPI[n] = port
		b.closers = append(b.closers, port)
	}
	return b, nil
}

type listFlag []string

func (f *listFlag) String() string {
	return strings.Join(*f, ",")
}

func (f *listFlag) Set(s string) error {
	*f = nil
	for _, item := range strings.Split(s, ",") {
		*f = append(*f, strings.TrimSpace(item))
	}
	return nil
}

type addrsFlag []uint16

func (f *addrsFlag) String() string {
	items := make([]string, len(*f))
	for n, addr := range *f {
		items[n] = fmt.Sprintf("0x%02x", addr)
	}
	return strings.Join(items, ",")
}

func (f *addrsFlag) Set(s string) error {
	var addrs []uint16
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item == "" {
			continue
		}
		v, err := strconv.ParseUint(item, 0, 10)
		if err != nil {
			return fmt.Errorf("invalid address %q", item)
		}
		addrs = append(addrs, uint16(v))
	}
	*f = addrs
	return nil
}
