package comm

import (
	"context"

	fx "github.com/robotalks/aerlink/pkg/framework"
	"github.com/robotalks/aerlink/pkg/l1"
	"github.com/robotalks/aerlink/pkg/l1/msgs"
)

// Registrar is a l1.Registrar over a single Pipe, e.g. a broker
// connection shared by all hosts.
type Registrar struct {
	pipe Pipe
}

// Init initializes an embedded Registrar.
func (r *Registrar) Init(rw PacketReadWriter) {
	r.pipe.ReadWriter = rw
	r.pipe.Handler = dispatchTo(&r.pipe)
}

// SendEvent implements l1.Registrar.
func (r *Registrar) SendEvent(ctx context.Context, msg fx.Message) error {
	return r.pipe.SendEvent(msg)
}

// AddToLoop implements LoopAdder.
func (r *Registrar) AddToLoop(loop *fx.Loop) {
	loop.Add(&r.pipe)
}

// dispatchTo posts commands and events received on pipe to the loop.
// Replies to commands go back through the same pipe. Stray replies are
// ignored, a bridge sends no commands.
func dispatchTo(pipe *Pipe) msgs.TypedMsgHandler {
	return msgs.HandleTypedMsgFunc(func(ctx context.Context, msg fx.Message, typed *msgs.Typed) error {
		var posted fx.Message
		switch {
		case typed.IsReply():
			return nil
		case typed.IsCommand():
			posted = &l1.CommandMsg{Command: &command{seq: typed.Sequence, msg: msg, pipe: pipe}}
		case typed.IsEvent():
			posted = msg
		default:
			return nil
		}
		loop := fx.LoopCtlFrom(ctx)
		loop.PostMessage(posted)
		loop.TriggerNext()
		return nil
	})
}

type command struct {
	seq  uint32
	msg  fx.Message
	pipe *Pipe
}

func (c *command) Msg() fx.Message {
	return c.msg
}

func (c *command) Reply(msg fx.Message) error {
	return c.pipe.SendCommand(msg, c.seq)
}

// UnsupportedCommands answers commands no controller took with
// ErrUnsupportedCommand.
type UnsupportedCommands struct{}

// Control implements Controller.
func (c *UnsupportedCommands) Control(cc fx.ControlContext) error {
	cc.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mctx fx.MessageProcessingContext) {
		if m, ok := mctx.CurrentMessage().(*l1.CommandMsg); ok {
			mctx.MessageTaken()
			m.Command.Reply(msgs.NewCommandErr(msgs.ErrUnsupportedCommand))
		}
	}))
	return nil
}

// AddToLoop implements LoopAdder.
func (c *UnsupportedCommands) AddToLoop(loop *fx.Loop) {
	loop.AddController(fx.PrLvIdle, c)
}
