package bridge

import (
	"flag"
	"os"
	"time"
)

// Config defines the configurations for the bridge controller.
type Config struct {
	// StatusInterval is how often DeviceStatus is published, 0 only
	// publishes on changes.
	StatusInterval time.Duration
	// Align realigns the device link when the bridge starts.
	Align bool
}

var defaultConfig = Config{
	StatusInterval: 5 * time.Second,
	Align:          true,
}

func init() {
	if val := os.Getenv("AERLINK_STATUS_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			defaultConfig.StatusInterval = d
		}
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.DurationVar(&defaultConfig.StatusInterval, "status-interval", defaultConfig.StatusInterval, "Interval publishing device status, 0 for changes only.")
	flag.BoolVar(&defaultConfig.Align, "align", defaultConfig.Align, "Align the device link on start.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}
