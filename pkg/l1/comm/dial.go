package comm

import (
	"context"

	"github.com/robotalks/aerlink/pkg/l1"
)

// DialConnector implements l1.Connector for a single bridge reached by
// address, e.g. over TCP or websocket.
type DialConnector struct {
	Ref  l1.BridgeRef
	Meta l1.BridgeMeta
	Dial func(context.Context) (PacketReadWriter, error)
}

// Discover implements Connector. The bridge at the address is the only one.
func (c *DialConnector) Discover(context.Context) ([]l1.BridgeInfo, error) {
	return []l1.BridgeInfo{{Ref: c.Ref, Meta: c.Meta}}, nil
}

// Connect implements Connector. The ref is informational, a bridge
// serves one device.
func (c *DialConnector) Connect(ctx context.Context, ref l1.BridgeRef) (l1.BridgeConn, error) {
	rw, err := c.Dial(ctx)
	if err != nil {
		return nil, err
	}
	return NewBridgeConn(rw), nil
}
