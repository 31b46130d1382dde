package comm

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Packet is one of Data32bitPacket, PinPacket, DataI2CPacket, ConfigPacket
// and ErrorPacket.
type Packet interface {
	Head() Header
	encode(b *[PacketSize]byte)
}

// Flag bits in the padding byte of a PinPacket.
const pinFlagConfirm byte = 0x01

// Data32bitPacket carries a 32-bit value.
type Data32bitPacket struct {
	Header   Header
	ExecTime uint32
	Value    uint32
}

// PinPacket addresses a single pin.
type PinPacket struct {
	Header   Header
	ExecTime uint32
	ID       byte
	Value    byte
	// Confirm requests an echo once the instruction is executed.
	Confirm bool
}

// DataI2CPacket carries an I2C register transfer.
type DataI2CPacket struct {
	Header   Header
	ExecTime uint32
	// Address is the 7-bit device address shifted left, with the
	// read flag in bit 0.
	Address  byte
	Register byte
	ValueMS  byte
	ValueLS  byte
}

// ConfigPacket configures an interface.
type ConfigPacket struct {
	Header   Header
	ExecTime uint32
	Sub      ConfigSub
	Value    byte
}

// ErrorPacket reports an error, or the version on ALIGN_SUCCESS_VERSION.
type ErrorPacket struct {
	Header Header
	// Source is the header of the offending instruction.
	Source Header
	Value  uint32
	Sub    ConfigSub
}

// Head implements Packet.
func (p Data32bitPacket) Head() Header { return p.Header }

// Head implements Packet.
func (p PinPacket) Head() Header { return p.Header }

// Head implements Packet.
func (p DataI2CPacket) Head() Header { return p.Header }

// Head implements Packet.
func (p ConfigPacket) Head() Header { return p.Header }

// Head implements Packet.
func (p ErrorPacket) Head() Header { return p.Header }

func (p Data32bitPacket) encode(b *[PacketSize]byte) {
	b[0] = byte(p.Header)
	binary.LittleEndian.PutUint32(b[1:], p.ExecTime)
	binary.LittleEndian.PutUint32(b[5:], p.Value)
}

func (p PinPacket) encode(b *[PacketSize]byte) {
	b[0] = byte(p.Header)
	binary.LittleEndian.PutUint32(b[1:], p.ExecTime)
	b[5], b[6] = p.ID, p.Value
	if p.Confirm {
		b[7] = pinFlagConfirm
	}
}

func (p DataI2CPacket) encode(b *[PacketSize]byte) {
	b[0] = byte(p.Header)
	binary.LittleEndian.PutUint32(b[1:], p.ExecTime)
	b[5], b[6], b[7], b[8] = p.Address, p.Register, p.ValueMS, p.ValueLS
}

func (p ConfigPacket) encode(b *[PacketSize]byte) {
	b[0] = byte(p.Header)
	binary.LittleEndian.PutUint32(b[1:], p.ExecTime)
	b[5], b[6] = byte(p.Sub), p.Value
}

func (p ErrorPacket) encode(b *[PacketSize]byte) {
	b[0], b[1] = byte(p.Header), byte(p.Source)
	binary.LittleEndian.PutUint32(b[2:], p.Value)
	b[6] = byte(p.Sub)
}

// NewI2CPacket builds a DataI2CPacket for a 7-bit device address.
func NewI2CPacket(h Header, addr uint16, read bool, reg byte, value uint16) DataI2CPacket {
	a := byte(addr << 1)
	if read {
		a |= 1
	}
	return DataI2CPacket{
		Header:   h,
		Address:  a,
		Register: reg,
		ValueMS:  byte(value >> 8),
		ValueLS:  byte(value),
	}
}

// DeviceAddress returns the 7-bit device address.
func (p DataI2CPacket) DeviceAddress() uint16 {
	return uint16(p.Address >> 1)
}

// IsRead indicates a read transfer.
func (p DataI2CPacket) IsRead() bool {
	return p.Address&1 != 0
}

// Value returns the 16-bit value.
func (p DataI2CPacket) Value() uint16 {
	return uint16(p.ValueMS)<<8 | uint16(p.ValueLS)
}

// IsFailure indicates the packet reports a failure rather than the
// version or a warning.
func (p ErrorPacket) IsFailure() bool {
	return p.Header != AlignSuccessVersion && p.Header != WarningDataCollectionSqueezed
}

// Version decodes the version from an ALIGN_SUCCESS_VERSION packet.
func (p ErrorPacket) Version() (major, minor byte, patch uint32) {
	return byte(p.Source), byte(p.Sub), p.Value
}

// Error implements error.
func (p ErrorPacket) Error() string {
	return fmt.Sprintf("%s from %s sub %s value %d", p.Header, p.Source, p.Sub, p.Value)
}

// Encode encodes a packet.
func Encode(p Packet) (b [PacketSize]byte) {
	p.encode(&b)
	return
}

// Append appends the encoded packet to dst.
func Append(dst []byte, p Packet) []byte {
	b := Encode(p)
	return append(dst, b[:]...)
}

// WritePacket writes the encoded packet.
func WritePacket(w io.Writer, p Packet) (int, error) {
	b := Encode(p)
	return w.Write(b[:])
}

// Decode decodes a single frame of exactly PacketSize bytes.
func Decode(b []byte) (Packet, error) {
	if len(b) != PacketSize {
		return nil, ErrFrameSize
	}
	var frame [PacketSize]byte
	copy(frame[:], b)
	if pkt := decodeFrame(&frame); pkt != nil {
		return pkt, nil
	}
	return nil, &UnknownHeaderError{Header: Header(b[0])}
}

func decodeFrame(b *[PacketSize]byte) Packet {
	h := Header(b[0])
	switch KindOf(h) {
	case KindData32bit:
		return Data32bitPacket{
			Header:   h,
			ExecTime: binary.LittleEndian.Uint32(b[1:]),
			Value:    binary.LittleEndian.Uint32(b[5:]),
		}
	case KindPin:
		return PinPacket{
			Header:   h,
			ExecTime: binary.LittleEndian.Uint32(b[1:]),
			ID:       b[5],
			Value:    b[6],
			Confirm:  b[7]&pinFlagConfirm != 0,
		}
	case KindDataI2C:
		return DataI2CPacket{
			Header:   h,
			ExecTime: binary.LittleEndian.Uint32(b[1:]),
			Address:  b[5],
			Register: b[6],
			ValueMS:  b[7],
			ValueLS:  b[8],
		}
	case KindConfig:
		return ConfigPacket{
			Header:   h,
			ExecTime: binary.LittleEndian.Uint32(b[1:]),
			Sub:      ConfigSub(b[5]),
			Value:    b[6],
		}
	case KindError:
		return ErrorPacket{
			Header: h,
			Source: Header(b[1]),
			Value:  binary.LittleEndian.Uint32(b[2:]),
			Sub:    ConfigSub(b[6]),
		}
	}
	return nil
}

// ExecTimeOf returns the execution time of a packet, 0 for ErrorPacket.
func ExecTimeOf(p Packet) uint32 {
	switch v := p.(type) {
	case Data32bitPacket:
		return v.ExecTime
	case PinPacket:
		return v.ExecTime
	case DataI2CPacket:
		return v.ExecTime
	case ConfigPacket:
		return v.ExecTime
	}
	return 0
}

// WithExecTime returns a copy of p carrying the execution time.
func WithExecTime(p Packet, t uint32) Packet {
	switch v := p.(type) {
	case Data32bitPacket:
		v.ExecTime = t
		return v
	case PinPacket:
		v.ExecTime = t
		return v
	case DataI2CPacket:
		v.ExecTime = t
		return v
	case ConfigPacket:
		v.ExecTime = t
		return v
	}
	return p
}
