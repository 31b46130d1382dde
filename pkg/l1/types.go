// Package l1 defines how hosts reach a bridge: a bridge publishes itself
// through Registrars and answers commands, hosts find it with a
// Connector and talk over a BridgeConn.
package l1

import (
	"context"

	fx "github.com/robotalks/aerlink/pkg/framework"
)

// Registrar makes a bridge reachable, by registering with a broker or by
// serving hosts connecting directly. Commands it receives are posted to
// the loop as CommandMsg.
type Registrar interface {
	// SendEvent sends an event to every connected host.
	SendEvent(context.Context, fx.Message) error
}

// Command is a received command waiting for its reply.
type Command interface {
	Msg() fx.Message
	// Reply sends the reply, exactly once.
	Reply(fx.Message) error
}

// CommandMsg carries a Command through the loop.
type CommandMsg struct {
	Command Command
}

// NewMessage implements Message.
func (m *CommandMsg) NewMessage() fx.Message { return &CommandMsg{} }

// BridgeRef identifies a bridge.
type BridgeRef struct {
	// Type is the bridge type, e.g. "aerlink".
	Type string
	// ID is unique per device, the machine ID by default.
	ID string
}

// Name is "type/id", also the MQTT topic of the bridge.
func (r BridgeRef) Name() string {
	return r.Type + "/" + r.ID
}

// IsValid indicates both Type and ID are set.
func (r BridgeRef) IsValid() bool {
	return r.Type != "" && r.ID != ""
}

// BridgeMeta is published along with a bridge.
type BridgeMeta struct {
	Description string            `json:"description,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// BridgeInfo is a discovered bridge.
type BridgeInfo struct {
	Ref  BridgeRef
	Meta BridgeMeta
}

// Connector finds and connects bridges.
type Connector interface {
	Discover(context.Context) ([]BridgeInfo, error)
	Connect(context.Context, BridgeRef) (BridgeConn, error)
}

// BridgeConn is a host connection to a bridge.
type BridgeConn interface {
	DoCommand(fx.Message) CommandFuture
}

// EventNotifier is implemented by a BridgeConn able to deliver events
// to a handler instead of the loop. NotifyEvents must be called before
// the connection runs.
type EventNotifier interface {
	NotifyEvents(fx.MessageHandler)
}

// Result is the reply to a command. A CommandErr reply is also set as
// Err.
type Result struct {
	Msg fx.Message
	Err error
}

// CommandFuture delivers the Result of a command once.
type CommandFuture interface {
	ResultChan() <-chan Result
}
