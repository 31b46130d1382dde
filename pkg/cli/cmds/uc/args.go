package uc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/robotalks/aerlink/pkg/l0/comm"
)

// splitExecTime removes a trailing "@TIME" argument. Without it the
// packet executes immediately.
func splitExecTime(args []string) ([]string, uint32, error) {
	if n := len(args); n > 0 && strings.HasPrefix(args[n-1], "@") {
		t, err := strconv.ParseUint(args[n-1][1:], 0, 32)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid exec time %q: %v", args[n-1], err)
		}
		return args[:n-1], uint32(t), nil
	}
	return args, 0, nil
}

func parseUint(name, s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %v", name, s, err)
	}
	return v, nil
}

func parseIndex(name, s string, count int) (int, error) {
	v, err := parseUint(name, s, 8)
	if err != nil {
		return 0, err
	}
	if int(v) >= count {
		return 0, fmt.Errorf("%s %d out of range [0, %d)", name, v, count)
	}
	return int(v), nil
}

func parseLevel(s string) (byte, error) {
	switch strings.ToLower(s) {
	case "1", "high", "h", "on":
		return 1, nil
	case "0", "low", "l", "off":
		return 0, nil
	}
	return 0, fmt.Errorf("invalid level %q", s)
}

func parseHeader(s string) (comm.Header, error) {
	if h, ok := comm.ParseHeader(s); ok {
		return h, nil
	}
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown header %q", s)
	}
	return comm.Header(v), nil
}

func parseSub(s string) (comm.ConfigSub, error) {
	if sub, ok := comm.ParseConfigSub(s); ok {
		return sub, nil
	}
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown sub-header %q", s)
	}
	return comm.ConfigSub(v), nil
}

// packetFor builds a packet of the kind the header implies.
func packetFor(h comm.Header, args []string, execTime uint32) (comm.Packet, error) {
	switch h.Kind() {
	case comm.KindData32bit:
		var v uint64
		if len(args) > 0 {
			var err error
			if v, err = parseUint("value", args[0], 32); err != nil {
				return nil, err
			}
		}
		return comm.Data32bitPacket{Header: h, ExecTime: execTime, Value: uint32(v)}, nil
	case comm.KindPin:
		if len(args) < 1 {
			return nil, fmt.Errorf("PIN required")
		}
		id, err := parseUint("pin", args[0], 8)
		if err != nil {
			return nil, err
		}
		pkt := comm.PinPacket{Header: h, ExecTime: execTime, ID: byte(id)}
		if len(args) > 1 {
			if pkt.Value, err = parseLevel(args[1]); err != nil {
				return nil, err
			}
		}
		pkt.Confirm = len(args) > 2 && args[2] == "confirm"
		return pkt, nil
	case comm.KindConfig:
		if len(args) < 2 {
			return nil, fmt.Errorf("SUB and VALUE required")
		}
		sub, err := parseSub(args[0])
		if err != nil {
			return nil, err
		}
		v, err := parseUint("value", args[1], 8)
		if err != nil {
			return nil, err
		}
		return comm.ConfigPacket{Header: h, ExecTime: execTime, Sub: sub, Value: byte(v)}, nil
	}
	return nil, fmt.Errorf("%s is not a request", h)
}
