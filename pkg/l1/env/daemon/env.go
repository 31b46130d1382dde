package daemon

import (
	"flag"
	"fmt"
	"log"
	"os"

	fx "github.com/robotalks/aerlink/pkg/framework"
	"github.com/robotalks/aerlink/pkg/l1"
	"github.com/robotalks/aerlink/pkg/l1/comm"
	"github.com/robotalks/aerlink/pkg/l1/comm/mqtt"
	"github.com/robotalks/aerlink/pkg/l1/comm/stream"
	"github.com/robotalks/aerlink/pkg/l1/comm/websocket"
	"github.com/robotalks/aerlink/pkg/l1/env"
)

// DefaultType is the bridge type registered by the daemons.
const DefaultType = "aerlink"

// Config provides common options to setup an env for bridge daemons.
type Config struct {
	Info l1.BridgeInfo

	// ListenAddr serves hosts over TCP, empty to disable.
	ListenAddr string
	// WebsocketAddr serves hosts over websocket, empty to disable.
	WebsocketAddr string
	// MQTTBrokerURL registers the bridge with an MQTT broker, empty to
	// disable, e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string
}

var defaultConfig = Config{
	Info:       l1.BridgeInfo{Ref: l1.BridgeRef{Type: DefaultType}},
	ListenAddr: ":7420",
}

func init() {
	if val := os.Getenv("AERLINK_LISTEN"); val != "" {
		defaultConfig.ListenAddr = val
	}
	if val := os.Getenv("AERLINK_WS_LISTEN"); val != "" {
		defaultConfig.WebsocketAddr = val
	}
	if val := os.Getenv("AERLINK_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	if val := os.Getenv("AERLINK_ID"); val != "" {
		defaultConfig.Info.Ref.ID = val
	} else {
		defaultConfig.Info.Ref.ID = env.MachineID()
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Info.Ref.Type, "type", defaultConfig.Info.Ref.Type, "Bridge type")
	flag.StringVar(&defaultConfig.Info.Ref.ID, "id", defaultConfig.Info.Ref.ID, "Device ID")
	flag.StringVar(&defaultConfig.ListenAddr, "listen", defaultConfig.ListenAddr, "TCP listen address, empty to disable")
	flag.StringVar(&defaultConfig.WebsocketAddr, "ws", defaultConfig.WebsocketAddr, "Websocket listen address, empty to disable")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL, empty to disable")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// SetDescription should be called in init with basic info about the daemon.
func SetDescription(meta l1.BridgeMeta) {
	defaultConfig.Info.Meta = meta
}

// Env is the env for bridge daemons.
type Env struct {
	Config    *Config
	Registrar *comm.RegistrarMux
	Sessions  *comm.Sessions
	Servers   []fx.Runnable
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// NewEnv creates Env from config.
func (c *Config) NewEnv() (*Env, error) {
	if !c.Info.Ref.IsValid() {
		return nil, fmt.Errorf("bridge type and id must be specified")
	}
	e := &Env{
		Config:    c,
		Registrar: &comm.RegistrarMux{},
		Sessions:  &comm.Sessions{},
	}
	if c.ListenAddr != "" {
		e.Servers = append(e.Servers, stream.NewServer(c.ListenAddr, e.Sessions))
	}
	if c.WebsocketAddr != "" {
		e.Servers = append(e.Servers, websocket.NewServer(c.WebsocketAddr, e.Sessions))
	}
	if len(e.Servers) > 0 {
		e.Registrar.Add(e.Sessions)
	}
	if c.MQTTBrokerURL != "" {
		reg, err := mqtt.NewRegistrar(c.MQTTBrokerURL, c.Info)
		if err != nil {
			return nil, fmt.Errorf("create MQTT registrar error: %v", err)
		}
		e.Registrar.Add(reg)
	}
	if len(e.Registrar.Registrars) == 0 {
		return nil, fmt.Errorf("at least one of listen, ws or mqtt is required")
	}
	return e, nil
}

// MustNewEnv creates Env and fails on error.
func (c *Config) MustNewEnv() *Env {
	e, err := c.NewEnv()
	if err != nil {
		log.Fatalln(err)
	}
	return e
}

// AddToLoop adds controllers/runners to loop.
func (e *Env) AddToLoop(loop *fx.Loop) {
	loop.Add(e.Registrar)
	loop.AddRunnable(e.Servers...)
	loop.Add(&comm.UnsupportedCommands{})
}
