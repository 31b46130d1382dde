package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/aerlink/pkg/l1"
	"github.com/robotalks/aerlink/pkg/l1/comm"
)

// DefaultDiscoverTimeout is how long Discover collects retained meta
// messages.
const DefaultDiscoverTimeout = 500 * time.Millisecond

// Connector implements l1.Connector using MQTT.
type Connector struct {
	URL             *BrokerURL
	DiscoverTimeout time.Duration
}

// NewConnector creates a Connector.
func NewConnector(brokerURL string) (*Connector, error) {
	u, err := ParseBrokerURL(brokerURL)
	if err != nil {
		return nil, err
	}
	return &Connector{URL: u, DiscoverTimeout: DefaultDiscoverTimeout}, nil
}

// infoFromMeta decodes a retained meta message. An empty payload is a
// bridge that went away.
func infoFromMeta(topic string, payload []byte) (info l1.BridgeInfo, ok bool) {
	levels := strings.Split(topic, "/")
	if len(levels) != 3 || levels[2] != "meta" || len(payload) == 0 {
		return
	}
	info.Ref = l1.BridgeRef{Type: levels[0], ID: levels[1]}
	if err := json.Unmarshal(payload, &info.Meta); err != nil {
		glog.V(2).Infof("%s: bad meta: %v", topic, err)
	}
	return info, true
}

// Discover implements l1.Connector.
func (c *Connector) Discover(ctx context.Context) ([]l1.BridgeInfo, error) {
	b := NewBroker(c.URL, nil)
	if err := b.Connect(ctx); err != nil {
		return nil, err
	}
	defer b.Close()

	timeout := c.DiscoverTimeout
	if timeout <= 0 {
		timeout = DefaultDiscoverTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	found := make(chan l1.BridgeInfo)
	sub := b.Subscribe("+/+/meta", func(topic string, payload []byte) {
		if info, ok := infoFromMeta(topic, payload); ok {
			select {
			case found <- info:
			case <-ctx.Done():
			}
		}
	})
	defer sub.Close()

	var infoList []l1.BridgeInfo
	for {
		select {
		case info := <-found:
			infoList = append(infoList, info)
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return infoList, nil
			}
			return infoList, ctx.Err()
		}
	}
}

// Connect implements l1.Connector.
func (c *Connector) Connect(ctx context.Context, ref l1.BridgeRef) (l1.BridgeConn, error) {
	b := NewBroker(c.URL, nil)
	conn := &BridgeConn{Broker: b}
	conn.Init(HostSide(b, ref))
	if err := b.Connect(ctx); err != nil {
		return nil, err
	}
	return conn, nil
}

// BridgeConn is an l1.BridgeConn through a broker.
type BridgeConn struct {
	comm.BridgeConn
	Broker *Broker
}

// Close closes the connection and disconnects from the broker.
func (c *BridgeConn) Close() error {
	c.BridgeConn.Close()
	return c.Broker.Close()
}
