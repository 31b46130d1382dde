// Package bridge serves a device link to L1 hosts: device packets arrive
// as commands, unsolicited packets leave as events.
package bridge

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/aerlink/pkg/framework"
	"github.com/robotalks/aerlink/pkg/l0/comm"
	"github.com/robotalks/aerlink/pkg/l0/device"
	"github.com/robotalks/aerlink/pkg/l1"
	"github.com/robotalks/aerlink/pkg/l1/msgs"
)

// alignTimeout bounds the alignment on start.
const alignTimeout = 2 * time.Second

// Controller is the L1 controller owning the device link.
type Controller struct {
	Config    Config
	Registrar l1.Registrar
	Client    *comm.Client
	// Link describes the device link in DeviceStatus.
	Link string
	// Device is the in-process device, if any. Its counters are read in
	// the loop, so it must run in the same loop as the Controller.
	Device *device.Device

	events        atomic.Uint64
	status        msgs.DeviceStatus
	statusChanged bool
	statusAt      time.Time
}

// NewController creates a Controller.
func (c *Config) NewController(reg l1.Registrar, client *comm.Client, link string) *Controller {
	return &Controller{
		Config:        *c,
		Registrar:     reg,
		Client:        client,
		Link:          link,
		status:        msgs.DeviceStatus{Link: link},
		statusChanged: true,
	}
}

// WithDevice attaches an in-process device.
func (c *Controller) WithDevice(d *device.Device) *Controller {
	c.Device = d
	return c
}

// AddToLoop implements LoopAdder.
func (c *Controller) AddToLoop(loop *fx.Loop) {
	loop.AddController(fx.PrLvControl, c)
	loop.AddController(fx.PrLvPostProc, fx.ControlFunc(c.notifyStatusChange))
	loop.AddRunnable(c.Client)
}

// Run implements Runnable. It forwards device events to the Registrar.
func (c *Controller) Run(ctx context.Context) error {
	if c.Config.Align {
		go c.align(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pkt := <-c.Client.EventChan():
			c.events.Add(1)
			glog.V(2).Infof("event %s", pkt.Head())
			if err := c.Registrar.SendEvent(ctx, msgs.NewDeviceEvent(pkt)); err != nil {
				glog.Warningf("send event error: %v", err)
			}
		}
	}
}

func (c *Controller) align(ctx context.Context) {
	loopCtl := fx.LoopCtlFrom(ctx)
	alignCtx, cancel := context.WithTimeout(ctx, alignTimeout)
	defer cancel()
	major, minor, patch, err := c.Client.Align(alignCtx)
	msg := &statusMsg{}
	if err != nil {
		glog.Errorf("align %s: %v", c.Link, err)
	} else {
		msg.version = fmt.Sprintf("%d.%d.%d", major, minor, patch)
		glog.Infof("aligned %s, firmware %s", c.Link, msg.version)
	}
	loopCtl.PostMessage(msg)
	loopCtl.TriggerNext()
}

// Control implements Controller.
func (c *Controller) Control(cc fx.ControlContext) error {
	cc.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mctx fx.MessageProcessingContext) {
		switch msg := mctx.CurrentMessage().(type) {
		case *l1.CommandMsg:
			switch m := msg.Command.Msg().(type) {
			case *msgs.DevicePacket:
				mctx.MessageTaken()
				c.forward(msg.Command, m)
			case *msgs.DeviceStatusQuery:
				mctx.MessageTaken()
				c.refresh()
				status := c.status
				msg.Command.Reply(&msgs.DeviceStatusReply{Status: &status})
			}
		case *statusMsg:
			mctx.MessageTaken()
			c.status.Version = msg.version
			c.status.Connected = msg.version != ""
			c.statusChanged = true
		}
	}))
	return nil
}

// forward sends the packet to the device and replies asynchronously.
func (c *Controller) forward(cmd l1.Command, m *msgs.DevicePacket) {
	pkt, err := m.Packet()
	if err != nil {
		cmd.Reply(msgs.NewCommandErr(err))
		return
	}
	glog.V(2).Infof("forward %s", pkt.Head())
	pending := c.Client.Do(pkt)
	go func() {
		r := <-pending.ResultChan()
		if r.Err != nil && r.Reply == nil {
			cmd.Reply(msgs.NewCommandErr(r.Err))
			return
		}
		cmd.Reply(msgs.NewDeviceReply(r))
	}()
}

func (c *Controller) refresh() {
	c.status.Events = c.events.Load()
	if c.Device == nil {
		return
	}
	st := c.Device.Stats()
	c.status.Recording = st.Recording
	c.status.Offset = st.Offset
	c.status.FreeInstructions = uint32(st.FreeInstructions)
	c.status.Discarded = st.Discarded
	c.status.InboundLen = uint32(st.InboundLen)
	c.status.OutboundLen = uint32(st.OutboundLen)
}

func (c *Controller) notifyStatusChange(cc fx.ControlContext) error {
	now := cc.Time()
	due := c.Config.StatusInterval > 0 && now.Sub(c.statusAt) >= c.Config.StatusInterval
	if !c.statusChanged && !due {
		return nil
	}
	c.statusChanged, c.statusAt = false, now
	c.refresh()
	status := c.status
	return c.Registrar.SendEvent(cc.Context(), &status)
}

type statusMsg struct {
	version string
}

func (m *statusMsg) NewMessage() fx.Message { return &statusMsg{} }
