package device

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/robotalks/aerlink/pkg/l0/comm"
)

// Config defines the resources of a device.
type Config struct {
	// Pins is the number of digital pins.
	Pins int
	// InboundSize and OutboundSize are ring capacities in bytes, rounded
	// up to a power of two.
	InboundSize  int
	OutboundSize int
	// EventSize is the capacity of the event ring of each from-chip port
	// and each pin.
	EventSize int
	// InstructionSlots is the number of timed instructions queued while
	// recording.
	InstructionSlots int
	HandshakeTimeout time.Duration
	// TickInterval is how often the main loop checks timeouts and timed
	// instructions without being triggered.
	TickInterval time.Duration
}

var defaultConfig = Config{
	Pins:             55,
	InboundSize:      4096,
	OutboundSize:     4096,
	EventSize:        64 * comm.PacketSize,
	InstructionSlots: 512,
	HandshakeTimeout: 10 * time.Millisecond,
	TickInterval:     time.Millisecond,
}

func init() {
	if val := os.Getenv("AERLINK_PINS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			defaultConfig.Pins = n
		}
	}
	if val := os.Getenv("AERLINK_INSTRUCTION_SLOTS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			defaultConfig.InstructionSlots = n
		}
	}
	if val := os.Getenv("AERLINK_HS_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			defaultConfig.HandshakeTimeout = d
		}
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.IntVar(&defaultConfig.Pins, "pins", defaultConfig.Pins, "Number of digital pins")
	flag.IntVar(&defaultConfig.InboundSize, "inbound-size", defaultConfig.InboundSize, "Inbound buffer size in bytes")
	flag.IntVar(&defaultConfig.OutboundSize, "outbound-size", defaultConfig.OutboundSize, "Outbound buffer size in bytes")
	flag.IntVar(&defaultConfig.InstructionSlots, "instruction-slots", defaultConfig.InstructionSlots, "Number of timed instructions")
	flag.DurationVar(&defaultConfig.HandshakeTimeout, "hs-timeout", defaultConfig.HandshakeTimeout, "AER handshake timeout")
	flag.DurationVar(&defaultConfig.TickInterval, "tick", defaultConfig.TickInterval, "Main loop tick interval")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

func (c *Config) handshakeTimeoutMicros() uint32 {
	us := c.HandshakeTimeout / time.Microsecond
	if us <= 0 {
		return 1
	}
	return uint32(us)
}
