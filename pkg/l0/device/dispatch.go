package device

import (
	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"

	"github.com/robotalks/aerlink/pkg/l0/comm"
	"github.com/robotalks/aerlink/pkg/l0/hal"
)

func (d *Device) dispatch(pkt comm.Packet, now uint32) {
	if d.recording.Load() && isInstruction(pkt) {
		if !d.timed.push(pkt) {
			d.emitError(comm.ErrorInputFull, pkt.Head(), uint32(len(d.timed.items)), comm.SubNone)
		}
		return
	}
	d.exec(pkt, now)
}

func (d *Device) exec(pkt comm.Packet, now uint32) {
	switch p := pkt.(type) {
	case comm.Data32bitPacket:
		d.execData(p, now)
	case comm.PinPacket:
		d.execPin(p, now)
	case comm.DataI2CPacket:
		d.execI2C(p, now)
	case comm.ConfigPacket:
		d.configure(p, now)
	case comm.ErrorPacket:
		d.emit(p)
	}
}

func (d *Device) unknownInstruction(h comm.Header, value uint32) {
	glog.V(2).Infof("unknown instruction %s", h)
	d.emitError(comm.ErrorUnknownInstruction, h, value, comm.SubNone)
}

func (d *Device) execData(p comm.Data32bitPacket, now uint32) {
	ts := d.timestamp(now)
	if n, ok := p.Header.Index(comm.SPI0, comm.NumSPI); ok {
		in, err := d.spi[n].Transfer(p.Value)
		if err != nil {
			d.fail(p.Header, err)
			return
		}
		d.emit(comm.Data32bitPacket{Header: comm.OutSPIHeader(n), ExecTime: ts, Value: in})
		d.emit(comm.Data32bitPacket{Header: p.Header, ExecTime: ts, Value: p.Value})
		return
	}
	if n, ok := p.Header.Index(comm.AsyncToChip0, comm.NumAsync); ok {
		d.sendToChip(n, p, now)
		return
	}
	switch p.Header {
	case comm.Read:
		d.out.releaseAll()
	case comm.ReadLast:
		d.out.resendLast()
	case comm.ReadInstructions:
		count := uint32(0)
		d.timed.each(func(pkt comm.Packet) {
			d.emit(pkt)
			count++
		})
		d.emit(comm.Data32bitPacket{Header: p.Header, ExecTime: ts, Value: count})
	case comm.FreeInstructionSpots:
		free := uint32(d.timed.free())
		d.emit(comm.Data32bitPacket{Header: comm.OutFreeInstructionSpots, ExecTime: ts, Value: free})
		d.emit(comm.Data32bitPacket{Header: p.Header, ExecTime: ts, Value: free})
	case comm.SetTime:
		d.setTime(p.Value, now)
		d.emit(comm.Data32bitPacket{Header: p.Header, ExecTime: d.timestamp(now), Value: p.Value})
	case comm.ReadTime:
		d.emit(comm.Data32bitPacket{Header: comm.OutTime, ExecTime: ts, Value: now})
		d.emit(comm.Data32bitPacket{Header: p.Header, ExecTime: ts, Value: now})
	case comm.Align:
		d.emit(comm.ErrorPacket{
			Header: comm.AlignSuccessVersion,
			Source: comm.Header(VersionMajor),
			Value:  VersionPatch,
			Sub:    comm.ConfigSub(VersionMinor),
		})
	case comm.Reset:
		d.reset()
	default:
		d.unknownInstruction(p.Header, p.Value)
	}
}

// setTime starts recording with time zero at now+v, or stops it when v
// is zero.
func (d *Device) setTime(v, now uint32) {
	if v == 0 {
		d.recording.Store(false)
		d.timed.clear()
		d.offset.Store(0)
		glog.Info("recording stopped")
		return
	}
	d.offset.Store(now + v)
	d.recording.Store(true)
	glog.Infof("recording started, offset %d", now+v)
}

func (d *Device) execPin(p comm.PinPacket, now uint32) {
	ts := d.timestamp(now)
	switch p.Header {
	case comm.PinSet:
		level := gpio.Level(p.Value != 0)
		if err := d.pins.Write(int(p.ID), level); err != nil {
			d.fail(p.Header, err)
			return
		}
		if p.Confirm {
			d.emit(comm.PinPacket{Header: p.Header, ExecTime: ts, ID: p.ID, Value: p.Value, Confirm: true})
		}
	case comm.PinRead:
		level, err := d.pins.Read(int(p.ID))
		if err != nil {
			d.fail(p.Header, err)
			return
		}
		h, v := comm.OutPinLow, byte(0)
		if level {
			h, v = comm.OutPinHigh, 1
		}
		d.emit(comm.PinPacket{Header: h, ExecTime: ts, ID: p.ID, Value: v})
		d.emit(comm.PinPacket{Header: p.Header, ExecTime: ts, ID: p.ID, Value: v, Confirm: true})
	default:
		d.unknownInstruction(p.Header, uint32(p.ID))
	}
}

func (d *Device) execI2C(p comm.DataI2CPacket, now uint32) {
	n, ok := p.Header.Index(comm.I2C0, comm.NumI2C)
	if !ok {
		d.unknownInstruction(p.Header, uint32(p.Value()))
		return
	}
	ts := d.timestamp(now)
	bus, addr := d.i2c[n], p.DeviceAddress()
	if !p.IsRead() {
		if err := bus.Write(addr, p.Register, p.Value()); err != nil {
			d.fail(p.Header, err)
			return
		}
		d.emit(comm.WithExecTime(p, ts))
		return
	}
	// the read count is the low value byte; zero reads nothing
	count := int(p.ValueLS)
	if count == 0 {
		d.emit(comm.WithExecTime(p, ts))
		return
	}
	values, err := bus.Read(addr, p.Register, count)
	if err != nil {
		d.fail(p.Header, err)
		return
	}
	for i, v := range values {
		reply := comm.NewI2CPacket(comm.OutI2CHeader(n), addr, true, p.Register+byte(i), v)
		reply.ExecTime = ts
		d.emit(reply)
	}
	d.emit(comm.WithExecTime(p, ts))
}

func (d *Device) configure(p comm.ConfigPacket, now uint32) {
	var (
		confirmed byte
		err       error
	)
	switch {
	case p.Header == comm.ConfReadOnRequest:
		confirmed = p.Value
		d.out.setReadOnRequest(p.Value != 0)
	case p.Header == comm.ConfPin:
		confirmed, err = d.configurePin(p.Sub, p.Value)
	case p.Header == comm.ConfUC:
		d.unknownInstruction(p.Header, uint32(p.Value))
		return
	default:
		if n, ok := p.Header.Index(comm.ConfSPI0, comm.NumSPI); ok {
			confirmed, err = d.spi[n].Configure(p.Sub, p.Value)
		} else if n, ok := p.Header.Index(comm.ConfI2C0, comm.NumI2C); ok {
			confirmed, err = d.i2c[n].Configure(p.Sub, p.Value)
		} else if n, ok := p.Header.Index(comm.ConfAsyncToChip0, comm.NumAsync); ok {
			confirmed, err = d.toChip[n].configure(d, p.Sub, p.Value)
		} else if n, ok := p.Header.Index(comm.ConfAsyncFromChip0, comm.NumAsync); ok {
			confirmed, err = d.fromChip[n].configure(d, p.Sub, p.Value)
		} else {
			d.unknownInstruction(p.Header, uint32(p.Value))
			return
		}
	}
	if err != nil {
		d.fail(p.Header, err)
		return
	}
	d.emit(comm.ConfigPacket{Header: p.Header, ExecTime: d.timestamp(now), Sub: p.Sub, Value: confirmed})
}

func (d *Device) configurePin(sub comm.ConfigSub, id byte) (byte, error) {
	switch sub {
	case comm.SubOutput:
		return id, d.pins.Reserve(int(id), hal.Output, comm.ConfPin)
	case comm.SubInput:
		if err := d.pins.Reserve(int(id), hal.Input, comm.ConfPin); err != nil {
			return 0, err
		}
		pin := int(id)
		return id, d.pins.Watch(pin, func(level gpio.Level) { d.PinEdge(pin, level) })
	}
	return 0, &hal.Error{Header: comm.ErrorUnknownConfiguration, Value: uint32(id), Sub: sub}
}

func (d *Device) sendToChip(n int, p comm.Data32bitPacket, now uint32) {
	port := d.toChip[n]
	engine := port.engine.Load()
	if engine == nil {
		d.emitError(comm.ErrorInterfaceNotActive, p.Header, uint32(n), comm.SubNone)
		return
	}
	if !port.fits(p.Value) {
		d.emitError(comm.ErrorDataOutOfBounds, p.Header, p.Value, comm.SubWidth)
		return
	}
	if err := engine.Begin(p.Value, now); err != nil {
		d.emitError(comm.ErrorGeneric, p.Header, p.Value, comm.SubNone)
		return
	}
	d.inflight = &inflight{port: port, request: p}
	d.advanceToChip(now)
}

// advanceToChip moves the in-flight handshake as far as the lines allow.
func (d *Device) advanceToChip(now uint32) {
	engine := d.inflight.port.engine.Load()
	req := d.inflight.request
	if engine == nil {
		d.inflight = nil
		return
	}
	for {
		state := engine.State()
		out := engine.Poll(now)
		if out.Completed {
			d.inflight = nil
			d.emit(comm.Data32bitPacket{Header: req.Header, ExecTime: d.timestamp(now), Value: out.Value})
			return
		}
		if out.Err != nil {
			d.inflight = nil
			glog.Warningf("%s: %v", req.Header, out.Err)
			d.emitError(comm.ErrorAsyncHandshakeTimeout, req.Header, req.Value, comm.SubNone)
			return
		}
		if engine.State() == state {
			return
		}
	}
}
