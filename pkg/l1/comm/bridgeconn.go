package comm

import (
	"context"
	"sync"
	"time"

	fx "github.com/robotalks/aerlink/pkg/framework"
	"github.com/robotalks/aerlink/pkg/l1"
	"github.com/robotalks/aerlink/pkg/l1/msgs"
)

// DefaultCommandExpiration is how long a command waits for its reply.
const DefaultCommandExpiration = 3 * time.Second

// BridgeConn implements l1.BridgeConn over a Pipe. Replies are matched
// by sequence number, commands without reply expire in the loop.
type BridgeConn struct {
	Expiration time.Duration

	pipe    Pipe
	events  fx.MessageHandler
	lock    sync.Mutex
	seq     uint32
	pending map[uint32]*commandFuture
	// order holds pending commands by send time, expired ones are
	// removed lazily.
	order []*commandFuture
}

// NewBridgeConn creates a BridgeConn over rw.
func NewBridgeConn(rw PacketReadWriter) *BridgeConn {
	c := &BridgeConn{}
	c.Init(rw)
	return c
}

// Init initializes an embedded BridgeConn.
func (c *BridgeConn) Init(rw PacketReadWriter) {
	c.Expiration = DefaultCommandExpiration
	c.pipe.ReadWriter = rw
	c.pipe.Handler = msgs.HandleTypedMsgFunc(c.receive)
	c.pending = make(map[uint32]*commandFuture)
}

// DoCommand implements l1.BridgeConn.
func (c *BridgeConn) DoCommand(msg fx.Message) l1.CommandFuture {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.seq++; c.seq == 0 {
		c.seq = 1
	}
	f := &commandFuture{
		seq:      c.seq,
		expireAt: time.Now().Add(c.Expiration),
		result:   make(chan l1.Result, 1),
	}
	if err := c.pipe.SendCommand(msg, f.seq); err != nil {
		f.result <- l1.Result{Err: err}
		return f
	}
	c.pending[f.seq] = f
	c.order = append(c.order, f)
	return f
}

// NotifyEvents implements l1.EventNotifier.
func (c *BridgeConn) NotifyEvents(h fx.MessageHandler) {
	c.events = h
}

// Close closes the transport.
func (c *BridgeConn) Close() error {
	return c.pipe.Close()
}

// AddToLoop implements LoopAdder.
func (c *BridgeConn) AddToLoop(l *fx.Loop) {
	l.Add(&c.pipe)
	l.AddController(fx.PrLvIdle, fx.ControlFunc(c.expire))
}

func (c *BridgeConn) receive(ctx context.Context, msg fx.Message, typed *msgs.Typed) error {
	if typed.IsEvent() {
		if c.events != nil {
			c.events.HandleMessage(ctx, msg)
			return nil
		}
		loop := fx.LoopCtlFrom(ctx)
		loop.PostMessage(msg)
		loop.TriggerNext()
		return nil
	}
	c.lock.Lock()
	f, ok := c.pending[typed.Sequence]
	delete(c.pending, typed.Sequence)
	c.lock.Unlock()
	if !ok {
		return nil
	}
	res := l1.Result{Msg: msg}
	if cmdErr, ok := msg.(*msgs.CommandErr); ok {
		res.Err = cmdErr
	}
	f.complete(res)
	return nil
}

func (c *BridgeConn) expire(cc fx.ControlContext) error {
	now := cc.Time()
	var expired []*commandFuture
	c.lock.Lock()
	n := 0
	for ; n < len(c.order); n++ {
		f := c.order[n]
		if _, ok := c.pending[f.seq]; !ok {
			continue
		}
		if f.expireAt.After(now) {
			break
		}
		delete(c.pending, f.seq)
		expired = append(expired, f)
	}
	c.order = c.order[n:]
	c.lock.Unlock()
	for _, f := range expired {
		f.complete(l1.Result{Err: context.DeadlineExceeded})
	}
	return nil
}

type commandFuture struct {
	seq      uint32
	expireAt time.Time
	result   chan l1.Result
}

func (f *commandFuture) complete(res l1.Result) {
	f.result <- res
	close(f.result)
}

// ResultChan implements l1.CommandFuture.
func (f *commandFuture) ResultChan() <-chan l1.Result {
	return f.result
}
