package msgs

import (
	"errors"

	"github.com/golang/protobuf/proto"

	fx "github.com/robotalks/aerlink/pkg/framework"
	"github.com/robotalks/aerlink/pkg/l0/comm"
)

// CommandOK is the generic reply indicating success for commands.
type CommandOK struct {
}

// NewCommandOK creates a CommandOK.
func NewCommandOK() *CommandOK {
	return &CommandOK{}
}

// NewMessage implements Message.
func (m *CommandOK) NewMessage() fx.Message { return &CommandOK{} }

// TypeID implements SerializableMessage.
func (m *CommandOK) TypeID() uint32 { return CommandOKTypeID }

// Serializable implements SerializableMessage.
func (m *CommandOK) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *CommandOK) ProtoMessage() {}

// Reset implements proto.Message.
func (m *CommandOK) Reset() { *m = CommandOK{} }

// String implements proto.Message.
func (m *CommandOK) String() string { return proto.CompactTextString(m) }

// CommandErr is the generic message representing command error.
type CommandErr struct {
	Message string `protobuf:"bytes,1,opt,name=message,proto3" json:"message,omitempty"`
}

// NewCommandErr creates a CommandErr from an error.
func NewCommandErr(err error) *CommandErr {
	return NewCommandErrFromMsg(err.Error())
}

// NewCommandErrFromMsg creates a CommandErr.
func NewCommandErrFromMsg(message string) *CommandErr {
	return &CommandErr{Message: message}
}

// NewMessage implements Message.
func (m *CommandErr) NewMessage() fx.Message { return &CommandErr{} }

// TypeID implements SerializableMessage.
func (m *CommandErr) TypeID() uint32 { return CommandErrTypeID }

// Serializable implements SerializableMessage.
func (m *CommandErr) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *CommandErr) ProtoMessage() {}

// Reset implements proto.Message.
func (m *CommandErr) Reset() { *m = CommandErr{} }

// String implements proto.Message.
func (m *CommandErr) String() string { return proto.CompactTextString(m) }

// Error implements error.
func (m *CommandErr) Error() string { return m.Message }

// DevicePacket sends one encoded packet to the device.
type DevicePacket struct {
	Data []byte `protobuf:"bytes,1,opt,name=data,proto3" json:"data,omitempty"`
}

// NewDevicePacket encodes a packet into a DevicePacket.
func NewDevicePacket(pkt comm.Packet) *DevicePacket {
	b := comm.Encode(pkt)
	return &DevicePacket{Data: b[:]}
}

// Packet decodes the carried packet.
func (m *DevicePacket) Packet() (comm.Packet, error) {
	return comm.Decode(m.Data)
}

// NewMessage implements Message.
func (m *DevicePacket) NewMessage() fx.Message { return &DevicePacket{} }

// TypeID implements SerializableMessage.
func (m *DevicePacket) TypeID() uint32 { return DevicePacketTypeID }

// Serializable implements SerializableMessage.
func (m *DevicePacket) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *DevicePacket) ProtoMessage() {}

// Reset implements proto.Message.
func (m *DevicePacket) Reset() { *m = DevicePacket{} }

// String implements proto.Message.
func (m *DevicePacket) String() string { return proto.CompactTextString(m) }

// DeviceReply is the response for DevicePacket. Reply is empty for
// packets the device never answers.
type DeviceReply struct {
	Reply []byte   `protobuf:"bytes,1,opt,name=reply,proto3" json:"reply,omitempty"`
	Data  [][]byte `protobuf:"bytes,2,rep,name=data,proto3" json:"data,omitempty"`
}

// NewDeviceReply encodes the result of a device command.
func NewDeviceReply(r comm.Result) *DeviceReply {
	m := &DeviceReply{}
	if r.Reply != nil {
		b := comm.Encode(r.Reply)
		m.Reply = b[:]
	}
	for _, pkt := range r.Data {
		b := comm.Encode(pkt)
		m.Data = append(m.Data, b[:])
	}
	return m
}

// Packets decodes the data replies followed by the terminal reply.
func (m *DeviceReply) Packets() ([]comm.Packet, error) {
	pkts := make([]comm.Packet, 0, len(m.Data)+1)
	for _, b := range m.Data {
		pkt, err := comm.Decode(b)
		if err != nil {
			return nil, err
		}
		pkts = append(pkts, pkt)
	}
	if len(m.Reply) > 0 {
		pkt, err := comm.Decode(m.Reply)
		if err != nil {
			return nil, err
		}
		pkts = append(pkts, pkt)
	}
	return pkts, nil
}

// NewMessage implements Message.
func (m *DeviceReply) NewMessage() fx.Message { return &DeviceReply{} }

// TypeID implements SerializableMessage.
func (m *DeviceReply) TypeID() uint32 { return DeviceReplyTypeID }

// Serializable implements SerializableMessage.
func (m *DeviceReply) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *DeviceReply) ProtoMessage() {}

// Reset implements proto.Message.
func (m *DeviceReply) Reset() { *m = DeviceReply{} }

// String implements proto.Message.
func (m *DeviceReply) String() string { return proto.CompactTextString(m) }

// DeviceEvent is a packet the device sent on its own, e.g. AER output.
type DeviceEvent struct {
	Packet []byte `protobuf:"bytes,1,opt,name=packet,proto3" json:"packet,omitempty"`
}

// NewDeviceEvent encodes a packet into a DeviceEvent.
func NewDeviceEvent(pkt comm.Packet) *DeviceEvent {
	b := comm.Encode(pkt)
	return &DeviceEvent{Packet: b[:]}
}

// Decode decodes the carried packet.
func (m *DeviceEvent) Decode() (comm.Packet, error) {
	return comm.Decode(m.Packet)
}

// NewMessage implements Message.
func (m *DeviceEvent) NewMessage() fx.Message { return &DeviceEvent{} }

// TypeID implements SerializableMessage.
func (m *DeviceEvent) TypeID() uint32 { return DeviceEventTypeID }

// Serializable implements SerializableMessage.
func (m *DeviceEvent) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *DeviceEvent) ProtoMessage() {}

// Reset implements proto.Message.
func (m *DeviceEvent) Reset() { *m = DeviceEvent{} }

// String implements proto.Message.
func (m *DeviceEvent) String() string { return proto.CompactTextString(m) }

// DeviceStatusQuery queries the status.
type DeviceStatusQuery struct {
}

// NewMessage implements Message.
func (m *DeviceStatusQuery) NewMessage() fx.Message { return &DeviceStatusQuery{} }

// TypeID implements SerializableMessage.
func (m *DeviceStatusQuery) TypeID() uint32 { return DeviceStatusQueryTypeID }

// Serializable implements SerializableMessage.
func (m *DeviceStatusQuery) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *DeviceStatusQuery) ProtoMessage() {}

// Reset implements proto.Message.
func (m *DeviceStatusQuery) Reset() { *m = DeviceStatusQuery{} }

// String implements proto.Message.
func (m *DeviceStatusQuery) String() string { return proto.CompactTextString(m) }

// DeviceStatusReply is the response for DeviceStatusQuery.
type DeviceStatusReply struct {
	Status *DeviceStatus `protobuf:"bytes,1,opt,name=status,proto3" json:"status,omitempty"`
}

// NewMessage implements Message.
func (m *DeviceStatusReply) NewMessage() fx.Message { return &DeviceStatusReply{} }

// TypeID implements SerializableMessage.
func (m *DeviceStatusReply) TypeID() uint32 { return DeviceStatusReplyTypeID }

// Serializable implements SerializableMessage.
func (m *DeviceStatusReply) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *DeviceStatusReply) ProtoMessage() {}

// Reset implements proto.Message.
func (m *DeviceStatusReply) Reset() { *m = DeviceStatusReply{} }

// String implements proto.Message.
func (m *DeviceStatusReply) String() string { return proto.CompactTextString(m) }

// DeviceStatus is an Event message reflecting the bridge and device state.
// Counters are only present when the device runs in-process.
type DeviceStatus struct {
	Link             string `protobuf:"bytes,1,opt,name=link,proto3" json:"link,omitempty"`
	Version          string `protobuf:"bytes,2,opt,name=version,proto3" json:"version,omitempty"`
	Connected        bool   `protobuf:"varint,3,opt,name=connected,proto3" json:"connected,omitempty"`
	Recording        bool   `protobuf:"varint,4,opt,name=recording,proto3" json:"recording,omitempty"`
	Offset           uint32 `protobuf:"varint,5,opt,name=offset,proto3" json:"offset,omitempty"`
	FreeInstructions uint32 `protobuf:"varint,6,opt,name=free_instructions,json=freeInstructions,proto3" json:"free_instructions,omitempty"`
	Discarded        uint64 `protobuf:"varint,7,opt,name=discarded,proto3" json:"discarded,omitempty"`
	InboundLen       uint32 `protobuf:"varint,8,opt,name=inbound_len,json=inboundLen,proto3" json:"inbound_len,omitempty"`
	OutboundLen      uint32 `protobuf:"varint,9,opt,name=outbound_len,json=outboundLen,proto3" json:"outbound_len,omitempty"`
	Events           uint64 `protobuf:"varint,10,opt,name=events,proto3" json:"events,omitempty"`
}

// NewMessage implements Message.
func (m *DeviceStatus) NewMessage() fx.Message { return &DeviceStatus{} }

// TypeID implements SerializableMessage.
func (m *DeviceStatus) TypeID() uint32 { return DeviceStatusTypeID }

// Serializable implements SerializableMessage.
func (m *DeviceStatus) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *DeviceStatus) ProtoMessage() {}

// Reset implements proto.Message.
func (m *DeviceStatus) Reset() { *m = DeviceStatus{} }

// String implements proto.Message.
func (m *DeviceStatus) String() string { return proto.CompactTextString(m) }

var (
	// ErrUnknownCommand indicates the command is unknown.
	ErrUnknownCommand = errors.New("unknown command")
)
