package sh

import (
	"context"
	"errors"
	"reflect"

	"github.com/abiosoft/ishell"

	fx "github.com/robotalks/aerlink/pkg/framework"
	l0 "github.com/robotalks/aerlink/pkg/l0/comm"
	"github.com/robotalks/aerlink/pkg/l1/msgs"
)

var errNoBridgeConn = errors.New("not connected to a bridge")

// FormatPacket formats a packet for display.
func FormatPacket(pkt l0.Packet) string {
	return l0.Format(pkt)
}

func typeName(msg fx.Message) string {
	return reflect.Indirect(reflect.ValueOf(msg)).Type().Name()
}

// DoCommand sends an L1 command to the bridge and prints the reply. A
// direct serial link has no bridge to answer it.
func DoCommand(c *ishell.Context, msg fx.Message) error {
	s := ShellFrom(c)
	if s.Loop == nil || s.Loop.Link.Conn == nil {
		c.Err(errNoBridgeConn)
		return errNoBridgeConn
	}
	var res struct {
		Msg fx.Message
		Err error
	}
	ctx, cancel := context.WithTimeout(s.Loop.Ctx, s.Timeout)
	defer cancel()
	select {
	case r := <-s.Loop.Link.Conn.DoCommand(msg).ResultChan():
		res.Msg, res.Err = r.Msg, r.Err
	case <-ctx.Done():
		res.Err = ctx.Err()
	}
	if res.Err != nil {
		c.Err(res.Err)
		return res.Err
	}
	reply, ok := res.Msg.(msgs.SerializableMessage)
	switch {
	case s.OutputJSON && ok:
		return PrintJSON(c, reply.Serializable())
	case !ok:
		c.Println(typeName(res.Msg))
	default:
		if _, isOK := reply.(*msgs.CommandOK); isOK {
			c.Println("OK")
		} else {
			c.Printf("%s %s\n", typeName(reply), reply.Serializable().String())
		}
	}
	return nil
}

// packetResult is the JSON form of an l0 Result.
type packetResult struct {
	Data  []string `json:"data,omitempty"`
	Reply string   `json:"reply,omitempty"`
	Error string   `json:"error,omitempty"`
}

func resultOf(res l0.Result) *packetResult {
	out := &packetResult{}
	for _, pkt := range res.Data {
		out.Data = append(out.Data, FormatPacket(pkt))
	}
	if res.Reply != nil {
		out.Reply = FormatPacket(res.Reply)
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

// DoPacket sends a packet to the device and prints the data packets and
// the terminal reply. Requests without a reply print SENT.
func DoPacket(c *ishell.Context, pkt l0.Packet) (l0.Result, error) {
	s := ShellFrom(c)
	if s.Loop == nil {
		c.Err(errNotConnected)
		return l0.Result{}, errNotConnected
	}
	ctx, cancel := context.WithTimeout(s.Loop.Ctx, s.Timeout)
	defer cancel()
	res := s.Loop.Link.Client.Do(pkt).Wait(ctx)

	out := resultOf(res)
	if s.OutputJSON {
		if err := PrintJSON(c, out); err != nil {
			return res, err
		}
		return res, res.Err
	}
	for _, line := range out.Data {
		c.Println(line)
	}
	switch {
	case res.Err != nil:
		c.Err(res.Err)
	case out.Reply == "":
		c.Println("SENT")
	default:
		c.Println(out.Reply)
	}
	return res, res.Err
}
