// Package serialport opens the USB-serial link of a device.
package serialport

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/robotalks/aerlink/pkg/l0/comm"
)

// DefaultBaudRate is ignored by USB CDC devices but required by the driver.
const DefaultBaudRate = 115200

// DefaultReadTimeout lets the FIFO notice partial packets while idle.
const DefaultReadTimeout = 50 * time.Millisecond

// ErrNoPath indicates the URL doesn't name a serial device.
var ErrNoPath = errors.New("serial device path required")

// Options defines how to open a serial device.
type Options struct {
	Path        string
	BaudRate    int
	ReadTimeout time.Duration
}

// ParseURL parses serial:///dev/ttyACM0?baud=115200 or serial://COM3.
// A bare path is accepted too.
func ParseURL(s string) (*Options, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	opts := &Options{BaudRate: DefaultBaudRate, ReadTimeout: DefaultReadTimeout}
	switch u.Scheme {
	case "":
		opts.Path = u.Path
	case "serial":
		opts.Path = u.Host + u.Path
	default:
		return nil, fmt.Errorf("not a serial URL: %q", s)
	}
	if opts.Path == "" {
		return nil, ErrNoPath
	}
	if val := u.Query().Get("baud"); val != "" {
		if opts.BaudRate, err = strconv.Atoi(val); err != nil || opts.BaudRate <= 0 {
			return nil, fmt.Errorf("invalid baud rate %q", val)
		}
	}
	return opts, nil
}

// Open opens the serial device in 8N1 mode.
func Open(opts *Options) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(opts.Path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %v", opts.Path, err)
	}
	if opts.ReadTimeout > 0 {
		if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout %s: %v", opts.Path, err)
		}
	}
	glog.Infof("opened %s at %d baud", opts.Path, opts.BaudRate)
	return port, nil
}

// NewFIFO creates a FIFO over an opened port. Reads return empty on
// timeout, which the FIFO uses to drop stale partial packets.
func NewFIFO(port serial.Port, opts *Options) *comm.FIFO {
	f := comm.NewFIFO(port)
	f.ReadTimeout = opts.ReadTimeout > 0
	return f
}

// Ports lists the serial devices found on the host.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}
