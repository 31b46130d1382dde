package comm

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultCommandExpiration is the default time a command waits for reply.
const DefaultCommandExpiration = 2 * time.Second

// Result is the result of a command using Do.
type Result struct {
	Err error
	// Reply is the packet completing the command.
	Reply Packet
	// Data contains replies received before Reply, e.g. values read.
	Data []Packet
}

// Client provides host side operations over a Link.
// A command completes on the echo of its header or an error packet
// whose source is the request header. Everything else is an event.
type Client struct {
	// Expiration is how long a command waits for reply.
	Expiration time.Duration

	link     Link
	eventCh  chan Packet
	cmdsHead *Command
	cmdsTail *Command
	cmdsLock sync.Mutex
}

// Command represents a pending command waiting for reply.
type Command struct {
	request   Packet
	resultCh  chan Result
	data      []Packet
	expiresAt time.Time
	next      *Command
}

// Request returns the request packet.
func (c *Command) Request() Packet {
	return c.request
}

// ResultChan returns the chan to retrieve result.
func (c *Command) ResultChan() <-chan Result {
	return c.resultCh
}

// Wait waits for the result.
func (c *Command) Wait(ctx context.Context) Result {
	select {
	case r := <-c.resultCh:
		return r
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}
}

// NewClient creates client and wraps the link.
func NewClient(link Link) *Client {
	c := &Client{
		Expiration: DefaultCommandExpiration,
		link:       link,
		eventCh:    make(chan Packet, 64),
	}
	link.SetHandler(c)
	return c
}

// Link gets the wrapped Link.
func (c *Client) Link() Link {
	return c.link
}

// EventChan retrieves the event reporting chan.
func (c *Client) EventChan() <-chan Packet {
	return c.eventCh
}

// DoWith sends a command and expects a result in the provided chan.
func (c *Client) DoWith(pkt Packet, ch chan Result) *Command {
	cmd := &Command{request: pkt, resultCh: ch, expiresAt: time.Now().Add(c.Expiration)}

	c.cmdsLock.Lock()
	defer c.cmdsLock.Unlock()
	if err := c.link.Send(pkt); err != nil {
		cmd.resultCh <- Result{Err: err}
		return cmd
	}
	if !expectsReply(pkt) {
		cmd.resultCh <- Result{}
		return cmd
	}
	if c.cmdsHead == nil {
		c.cmdsHead = cmd
	} else {
		c.cmdsTail.next = cmd
	}
	c.cmdsTail = cmd
	return cmd
}

// Do sends a command and returns a Command for result.
func (c *Client) Do(pkt Packet) *Command {
	return c.DoWith(pkt, make(chan Result, 1))
}

// Align realigns the stream and returns the bridge version.
func (c *Client) Align(ctx context.Context) (major, minor byte, patch uint32, err error) {
	r := c.Do(Data32bitPacket{Header: Align, ExecTime: 0xffffffff, Value: 0xffffffff}).Wait(ctx)
	if err = r.Err; err != nil {
		return
	}
	if e, ok := r.Reply.(ErrorPacket); ok {
		major, minor, patch = e.Version()
	}
	return
}

// HandlePacket implements PacketHandler.
func (c *Client) HandlePacket(ctx context.Context, pkt Packet) {
	c.cmdsLock.Lock()
	var prev, curr *Command
	for curr = c.cmdsHead; curr != nil; prev, curr = curr, curr.next {
		if completes(curr.request, pkt) {
			c.unlink(prev, curr)
			break
		}
		if IsDataReply(curr.request.Head(), pkt.Head()) {
			curr.data = append(curr.data, pkt)
			c.cmdsLock.Unlock()
			return
		}
	}
	c.cmdsLock.Unlock()

	if curr == nil {
		select {
		case c.eventCh <- pkt:
		default:
			glog.Warningf("event dropped: %s", pkt.Head())
		}
		return
	}
	result := Result{Reply: pkt, Data: curr.data}
	if e, ok := pkt.(ErrorPacket); ok && e.IsFailure() {
		result.Err = e
	}
	curr.resultCh <- result
}

// Expire fails commands waiting longer than Expiration.
func (c *Client) Expire(now time.Time) {
	var expired []*Command
	c.cmdsLock.Lock()
	var prev *Command
	for curr := c.cmdsHead; curr != nil; {
		next := curr.next
		if now.After(curr.expiresAt) {
			c.unlink(prev, curr)
			expired = append(expired, curr)
		} else {
			prev = curr
		}
		curr = next
	}
	c.cmdsLock.Unlock()
	for _, cmd := range expired {
		cmd.resultCh <- Result{Err: ErrNoReply, Data: cmd.data}
	}
}

// Run wraps Link.Run to implement Runnable.
func (c *Client) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.link.Run(ctx)
	}()
	ticker := time.NewTicker(c.Expiration / 4)
	defer ticker.Stop()
	for {
		select {
		case err := <-errCh:
			c.Expire(time.Now().Add(c.Expiration * 2))
			return err
		case now := <-ticker.C:
			c.Expire(now)
		}
	}
}

func (c *Client) unlink(prev, curr *Command) {
	if prev == nil {
		c.cmdsHead = curr.next
	} else {
		prev.next = curr.next
	}
	if c.cmdsTail == curr {
		c.cmdsTail = prev
	}
	curr.next = nil
}

func completes(req, pkt Packet) bool {
	if e, ok := pkt.(ErrorPacket); ok {
		if e.Header == AlignSuccessVersion {
			return req.Head() == Align
		}
		return e.Source == req.Head()
	}
	return pkt.Head() == req.Head()
}

// expectsReply excludes requests the bridge never answers.
func expectsReply(pkt Packet) bool {
	switch p := pkt.(type) {
	case Data32bitPacket:
		return p.Header != Reset && p.Header != Read && p.Header != ReadLast
	case PinPacket:
		return p.Confirm || p.Header == PinRead
	}
	return true
}
