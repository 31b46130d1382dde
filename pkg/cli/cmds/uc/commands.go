package uc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/aerlink/pkg/cli/sh"
	"github.com/robotalks/aerlink/pkg/l0/comm"
	"github.com/robotalks/aerlink/pkg/l1/msgs"
)

// builder makes the packet of a command from its arguments, with the
// trailing @TIME already removed.
type builder func(args []string, execTime uint32) (comm.Packet, error)

// packetCmd is a command sending one packet. minArgs excludes @TIME.
func packetCmd(name, help string, minArgs int, build builder, aliases ...string) ishell.Cmd {
	return ishell.Cmd{
		Name:    name,
		Aliases: aliases,
		Help:    help,
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			args, t, err := splitExecTime(c.Args)
			if err == nil && len(args) < minArgs {
				err = fmt.Errorf("usage: %s %s", name, help)
			}
			var pkt comm.Packet
			if err == nil {
				pkt, err = build(args, t)
			}
			if err != nil {
				c.Err(err)
				return
			}
			sh.DoPacket(c, pkt)
		}),
	}
}

// forHeader builds the packet kind implied by a fixed header.
func forHeader(h comm.Header) builder {
	return func(args []string, t uint32) (comm.Packet, error) {
		return packetFor(h, args, t)
	}
}

// indexed builds with the header of the interface in the first argument.
func indexed(name string, count int, header func(int) comm.Header) builder {
	return func(args []string, t uint32) (comm.Packet, error) {
		n, err := parseIndex(name, args[0], count)
		if err != nil {
			return nil, err
		}
		return packetFor(header(n), args[1:], t)
	}
}

func pinConf(args []string, t uint32) (comm.Packet, error) {
	id, err := parseUint("pin", args[0], 8)
	if err != nil {
		return nil, err
	}
	pkt := comm.ConfigPacket{Header: comm.ConfPin, ExecTime: t, Value: byte(id)}
	switch strings.ToLower(args[1]) {
	case "in", "input":
		pkt.Sub = comm.SubInput
	case "out", "output":
		pkt.Sub = comm.SubOutput
	default:
		return nil, fmt.Errorf("invalid direction %q", args[1])
	}
	return pkt, nil
}

func readOnRequest(args []string, _ uint32) (comm.Packet, error) {
	v, err := parseLevel(args[0])
	if err != nil {
		return nil, err
	}
	return comm.ConfigPacket{Header: comm.ConfReadOnRequest, Sub: comm.SubNone, Value: v}, nil
}

func conf(args []string, t uint32) (comm.Packet, error) {
	h, err := parseHeader(args[0])
	if err != nil {
		return nil, err
	}
	if h.Kind() != comm.KindConfig {
		return nil, fmt.Errorf("%s is not a config header", h)
	}
	return packetFor(h, args[1:], t)
}

func send(args []string, t uint32) (comm.Packet, error) {
	h, err := parseHeader(args[0])
	if err != nil {
		return nil, err
	}
	return packetFor(h, args[1:], t)
}

func i2cBuilder(read bool) builder {
	return func(args []string, t uint32) (comm.Packet, error) {
		if read && len(args) == 3 {
			args = append(args, "1")
		}
		return i2cPacket(args, read, t)
	}
}

func i2cPacket(args []string, read bool, t uint32) (comm.DataI2CPacket, error) {
	var pkt comm.DataI2CPacket
	n, err := parseIndex("bus", args[0], comm.NumI2C)
	if err != nil {
		return pkt, err
	}
	addr, err := parseUint("addr", args[1], 10)
	if err != nil {
		return pkt, err
	}
	reg, err := parseUint("reg", args[2], 8)
	if err != nil {
		return pkt, err
	}
	v, err := parseUint("value", args[3], 16)
	if err != nil {
		return pkt, err
	}
	pkt = comm.NewI2CPacket(comm.I2CHeader(n), uint16(addr), read, byte(reg), uint16(v))
	pkt.ExecTime = t
	return pkt, nil
}

func align([]string, uint32) (comm.Packet, error) {
	return comm.Data32bitPacket{Header: comm.Align, ExecTime: 0xffffffff, Value: 0xffffffff}, nil
}

var (
	// AlignCmd realigns the stream and reads the firmware version.
	AlignCmd = packetCmd("align", "", 0, align)
	// ResetCmd resets the device.
	ResetCmd = packetCmd("reset", "", 0, forHeader(comm.Reset))
	// SetTimeCmd starts recording with a clock offset, 0 stops it.
	SetTimeCmd = packetCmd("time.set", "[VALUE] [@TIME]", 0, forHeader(comm.SetTime), "ts")
	// ReadTimeCmd reads the device clock.
	ReadTimeCmd = packetCmd("time.read", "[@TIME]", 0, forHeader(comm.ReadTime), "tr")
	// FreeCmd reads the free instruction slots.
	FreeCmd = packetCmd("free", "", 0, forHeader(comm.FreeInstructionSpots))
	// InstructionsCmd lists the queued instructions.
	InstructionsCmd = packetCmd("instructions", "", 0, forHeader(comm.ReadInstructions), "instr")
	// ReadCmd releases output held for read-on-request.
	ReadCmd = packetCmd("read", "", 0, forHeader(comm.Read))
	// ReadLastCmd asks for the last output packet again.
	ReadLastCmd = packetCmd("read.last", "", 0, forHeader(comm.ReadLast))
	// ReadOnRequestCmd switches read-on-request mode.
	ReadOnRequestCmd = packetCmd("read.on-request", "0|1", 1, readOnRequest)
	// PinConfCmd reserves a pin as input or output.
	PinConfCmd = packetCmd("pin.conf", "PIN in|out [@TIME]", 2, pinConf, "pc")
	// PinSetCmd drives an output pin.
	PinSetCmd = packetCmd("pin.set", "PIN 0|1 [confirm] [@TIME]", 2, forHeader(comm.PinSet), "ps")
	// PinReadCmd reads an input pin.
	PinReadCmd = packetCmd("pin.read", "PIN [@TIME]", 1, forHeader(comm.PinRead), "pr")
	// ConfCmd sends any config packet, e.g. conf CONF_I2C0 ACTIVE 1.
	ConfCmd = packetCmd("conf", "HEADER SUB VALUE [@TIME]", 3, conf)
	// SendCmd sends any request by header name or number.
	SendCmd = packetCmd("send", "HEADER [ARGS...] [@TIME]", 1, send)
	// I2CWriteCmd writes a register.
	I2CWriteCmd = packetCmd("i2c.write", "BUS ADDR REG VALUE [@TIME]", 4, i2cBuilder(false), "iw")
	// I2CReadCmd reads COUNT registers from REG.
	I2CReadCmd = packetCmd("i2c.read", "BUS ADDR REG [COUNT] [@TIME]", 3, i2cBuilder(true), "ir")
	// SPICmd transfers a word.
	SPICmd = packetCmd("spi", "PORT VALUE [@TIME]", 2, indexed("port", comm.NumSPI, comm.SPIHeader))
	// AERCmd sends an event through a to-chip interface.
	AERCmd = packetCmd("aer", "ID VALUE [@TIME]", 2, indexed("id", comm.NumAsync, comm.AsyncToChipHeader))

	// EventsCmd prints device events for a while.
	EventsCmd = ishell.Cmd{
		Name:    "events",
		Aliases: []string{"ev"},
		Help:    "[DURATION]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			d := 5 * time.Second
			if len(c.Args) > 0 {
				var err error
				if d, err = time.ParseDuration(c.Args[0]); err != nil {
					c.Err(err)
					return
				}
			}
			s := sh.ShellFrom(c)
			ctx, cancel := context.WithTimeout(s.Loop.Ctx, d)
			defer cancel()
			events := s.Loop.Link.Client.EventChan()
			for {
				select {
				case <-ctx.Done():
					return
				case pkt := <-events:
					c.Println(sh.FormatPacket(pkt))
				}
			}
		}),
	}

	// StatusCmd queries the bridge status.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.DoCommand(c, &msgs.DeviceStatusQuery{})
		}),
	}
)

func init() {
	sh.AddCmds(
		&AlignCmd,
		&ResetCmd,
		&SetTimeCmd,
		&ReadTimeCmd,
		&FreeCmd,
		&InstructionsCmd,
		&ReadCmd,
		&ReadLastCmd,
		&ReadOnRequestCmd,
		&PinConfCmd,
		&PinSetCmd,
		&PinReadCmd,
		&ConfCmd,
		&SendCmd,
		&I2CWriteCmd,
		&I2CReadCmd,
		&SPICmd,
		&AERCmd,
		&EventsCmd,
		&StatusCmd,
	)
}
