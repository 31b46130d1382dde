package comm

import (
	"fmt"
	"strings"
)

func (p Data32bitPacket) String() string {
	return fmt.Sprintf("%s t=%d v=%d (0x%x)", p.Header, p.ExecTime, p.Value, p.Value)
}

func (p PinPacket) String() string {
	s := fmt.Sprintf("%s t=%d pin=%d v=%d", p.Header, p.ExecTime, p.ID, p.Value)
	if p.Confirm {
		s += " confirm"
	}
	return s
}

func (p DataI2CPacket) String() string {
	dir := "w"
	if p.IsRead() {
		dir = "r"
	}
	return fmt.Sprintf("%s t=%d addr=0x%02x %s reg=0x%02x v=0x%04x",
		p.Header, p.ExecTime, p.DeviceAddress(), dir, p.Register, p.Value())
}

func (p ConfigPacket) String() string {
	return fmt.Sprintf("%s t=%d %s=%d", p.Header, p.ExecTime, p.Sub, p.Value)
}

func (p ErrorPacket) String() string {
	if p.Header == AlignSuccessVersion {
		major, minor, patch := p.Version()
		return fmt.Sprintf("%s %d.%d.%d", p.Header, major, minor, patch)
	}
	return p.Error()
}

// Format prints a packet for display.
func Format(p Packet) string {
	if s, ok := p.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%s %v", p.Head(), p)
}

// ParseHeader looks up a header by name, case insensitive.
func ParseHeader(name string) (Header, bool) {
	h, ok := headersByName[strings.ToUpper(name)]
	return h, ok
}

// ParseConfigSub looks up a sub-header by name, e.g. ACTIVE or CHANNEL3.
func ParseConfigSub(name string) (ConfigSub, bool) {
	name = strings.ToUpper(name)
	var n int
	if _, err := fmt.Sscanf(name, "CHANNEL%d", &n); err == nil && n >= 0 && n < NumChannels {
		return ConfigSub(n), true
	}
	for sub, s := range subNames {
		if s == name {
			return sub, true
		}
	}
	return 0, false
}
