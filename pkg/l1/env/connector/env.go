package connector

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"

	fx "github.com/robotalks/aerlink/pkg/framework"
	l0 "github.com/robotalks/aerlink/pkg/l0/comm"
	"github.com/robotalks/aerlink/pkg/l0/serialport"
	"github.com/robotalks/aerlink/pkg/l1"
	"github.com/robotalks/aerlink/pkg/l1/comm"
	"github.com/robotalks/aerlink/pkg/l1/comm/mqtt"
	"github.com/robotalks/aerlink/pkg/l1/comm/stream"
	"github.com/robotalks/aerlink/pkg/l1/comm/websocket"
)

// Config provides common options to connect to a device.
type Config struct {
	Ref l1.BridgeRef

	// URL locates the device:
	//   serial:///dev/ttyACM0?baud=115200  the device itself
	//   tcp://host:7420                    a bridge serving TCP
	//   ws://host:port/aerlink             a bridge serving websocket
	//   mqtt://host:port/topic-prefix      bridges registered with a broker
	URL string
}

var defaultConfig = Config{
	Ref: l1.BridgeRef{Type: "aerlink"},
	URL: "tcp://localhost:7420",
}

func init() {
	if val := os.Getenv("AERLINK_TYPE"); val != "" {
		defaultConfig.Ref.Type = val
	}
	if val := os.Getenv("AERLINK_ID"); val != "" {
		defaultConfig.Ref.ID = val
	}
	if val := os.Getenv("AERLINK_URL"); val != "" {
		defaultConfig.URL = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Ref.Type, "device-type", defaultConfig.Ref.Type, "Bridge type to connect.")
	flag.StringVar(&defaultConfig.Ref.ID, "device-id", defaultConfig.Ref.ID, "Device ID to connect, required for mqtt.")
	flag.StringVar(&defaultConfig.URL, "url", defaultConfig.URL, "Device URL: serial://, tcp://, ws:// or mqtt://.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// IsDirect indicates the URL names the device itself instead of a bridge.
func (c *Config) IsDirect() bool {
	u, err := url.Parse(c.URL)
	return err == nil && (u.Scheme == "serial" || u.Scheme == "")
}

// NewConnector creates a Connector using current config.
func (c *Config) NewConnector() (l1.Connector, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid device URL: %v", err)
	}
	switch u.Scheme {
	case "mqtt", "mqtts":
		return mqtt.NewConnector(c.URL)
	case "tcp":
		return &comm.DialConnector{
			Ref: c.directRef(u),
			Dial: func(ctx context.Context) (comm.PacketReadWriter, error) {
				return stream.Dial(ctx, u.Host)
			},
		}, nil
	case "ws", "wss":
		return &comm.DialConnector{
			Ref: c.directRef(u),
			Dial: func(ctx context.Context) (comm.PacketReadWriter, error) {
				return websocket.Dial(c.URL)
			},
		}, nil
	case "serial", "":
		return nil, fmt.Errorf("%s is a device, not a bridge", c.URL)
	default:
		return nil, fmt.Errorf("unknown device URL scheme: %q", u.Scheme)
	}
}

// directRef names a bridge reached by address when no ID is configured.
func (c *Config) directRef(u *url.URL) l1.BridgeRef {
	ref := c.Ref
	if ref.ID == "" {
		ref.ID = u.Host
	}
	return ref
}

// MustNewConnector creates a Connector and fails on error.
func (c *Config) MustNewConnector() l1.Connector {
	conn, err := c.NewConnector()
	if err != nil {
		log.Fatalln(err)
	}
	return conn
}

// Link is an open connection to a device. Add it to a loop before use.
type Link struct {
	Client *l0.Client
	// Conn is the bridge connection, nil for a direct serial link.
	Conn l1.BridgeConn
	Ref  l1.BridgeRef

	closer io.Closer
}

// AddToLoop implements LoopAdder.
func (l *Link) AddToLoop(loop *fx.Loop) {
	if adder, ok := l.Conn.(fx.LoopAdder); ok {
		loop.Add(adder)
	}
	loop.AddRunnable(l.Client)
}

// Close implements io.Closer.
func (l *Link) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// Open connects to the device, through a bridge if the URL names one.
// An invalid ref uses the configured one.
func (c *Config) Open(ctx context.Context, ref l1.BridgeRef) (*Link, error) {
	if c.IsDirect() {
		opts, err := serialport.ParseURL(c.URL)
		if err != nil {
			return nil, err
		}
		port, err := serialport.Open(opts)
		if err != nil {
			return nil, err
		}
		return &Link{
			Client: l0.NewClient(serialport.NewFIFO(port, opts)),
			Ref:    l1.BridgeRef{Type: "serial", ID: opts.Path},
			closer: port,
		}, nil
	}
	if !ref.IsValid() {
		ref = c.Ref
	}
	connector, err := c.NewConnector()
	if err != nil {
		return nil, err
	}
	if dc, ok := connector.(*comm.DialConnector); ok && !ref.IsValid() {
		ref = dc.Ref
	}
	if !ref.IsValid() {
		return nil, fmt.Errorf("device type and id must be specified")
	}
	conn, err := connector.Connect(ctx, ref)
	if err != nil {
		return nil, err
	}
	link := &Link{
		Client: l0.NewClient(comm.NewPacketLink(conn)),
		Conn:   conn,
		Ref:    ref,
	}
	if closer, ok := conn.(io.Closer); ok {
		link.closer = closer
	}
	return link, nil
}

// MustOpen opens the configured device and fails on error.
func (c *Config) MustOpen(ctx context.Context) *Link {
	link, err := c.Open(ctx, l1.BridgeRef{})
	if err != nil {
		log.Fatalln(err)
	}
	return link
}
