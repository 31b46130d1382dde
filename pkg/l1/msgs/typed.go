package msgs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang/protobuf/proto"

	fx "github.com/robotalks/aerlink/pkg/framework"
)

// Typed is the envelope of every message on the wire.
type Typed struct {
	TypeID   uint32 `protobuf:"varint,1,opt,name=type_id,json=typeId,proto3" json:"type_id,omitempty"`
	Message  []byte `protobuf:"bytes,2,opt,name=message,proto3" json:"message,omitempty"`
	Sequence uint32 `protobuf:"varint,3,opt,name=sequence,proto3" json:"sequence,omitempty"`
}

// ProtoMessage implements proto.Message.
func (p *Typed) ProtoMessage() {}

// Reset implements proto.Message.
func (p *Typed) Reset() { *p = Typed{} }

// String implements proto.Message.
func (p *Typed) String() string { return proto.CompactTextString(p) }

// TypedMsgHandler receives decoded messages along with their envelope.
type TypedMsgHandler interface {
	HandleTypedMsg(context.Context, fx.Message, *Typed) error
}

// HandleTypedMsgFunc is the func form of TypedMsgHandler.
type HandleTypedMsgFunc func(context.Context, fx.Message, *Typed) error

// HandleTypedMsg implements TypedMsgHandler.
func (f HandleTypedMsgFunc) HandleTypedMsg(ctx context.Context, msg fx.Message, typed *Typed) error {
	return f(ctx, msg, typed)
}

// UnknownTypeError is returned decoding an unregistered type ID.
type UnknownTypeError struct {
	TypeID uint32
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown type %08x", e.TypeID)
}

var (
	// ErrNotSerializable indicates the message has no wire form.
	ErrNotSerializable = errors.New("not serializable message")
	// ErrUnsupportedCommand replies a command the bridge doesn't handle.
	ErrUnsupportedCommand = errors.New("unsupported command")
)

// SerializableMessage is a message with a wire form.
type SerializableMessage interface {
	fx.Message
	TypeID() uint32
	Serializable() proto.Message
}

var (
	typesLock sync.RWMutex
	types     = make(map[uint32]SerializableMessage)
)

// RegisterType makes messages of the type of prototype decodable. It
// panics if the type ID is taken.
func RegisterType(prototype SerializableMessage) {
	typesLock.Lock()
	defer typesLock.Unlock()
	id := prototype.TypeID()
	if _, exists := types[id]; exists {
		panic(fmt.Sprintf("type %08x registered twice", id))
	}
	types[id] = prototype
}

func init() {
	for _, prototype := range []SerializableMessage{
		&CommandOK{},
		&CommandErr{},
		&DevicePacket{},
		&DeviceReply{},
		&DeviceEvent{},
		&DeviceStatusQuery{},
		&DeviceStatusReply{},
		&DeviceStatus{},
	} {
		RegisterType(prototype)
	}
}

// TypedFrom wraps a message in an envelope.
func TypedFrom(msg fx.Message) (*Typed, error) {
	s, ok := msg.(SerializableMessage)
	if !ok {
		return nil, ErrNotSerializable
	}
	data, err := proto.Marshal(s.Serializable())
	if err != nil {
		return nil, err
	}
	return &Typed{TypeID: s.TypeID(), Message: data}, nil
}

// DecodeTyped decodes an envelope.
func DecodeTyped(data []byte) (*Typed, error) {
	typed := &Typed{}
	if err := proto.Unmarshal(data, typed); err != nil {
		return nil, err
	}
	return typed, nil
}

// Encode encodes the envelope.
func (p *Typed) Encode() ([]byte, error) {
	return proto.Marshal(p)
}

// Decode decodes the wrapped message.
func (p *Typed) Decode() (fx.Message, error) {
	typesLock.RLock()
	prototype, ok := types[p.TypeID]
	typesLock.RUnlock()
	if !ok {
		return nil, &UnknownTypeError{TypeID: p.TypeID}
	}
	msg := prototype.NewMessage()
	if err := proto.Unmarshal(p.Message, msg.(SerializableMessage).Serializable()); err != nil {
		return nil, err
	}
	return msg, nil
}

// IsEvent indicates the message is an event.
func (p *Typed) IsEvent() bool {
	return IsEventType(p.TypeID)
}

// IsCommand indicates the message is a command or a reply.
func (p *Typed) IsCommand() bool {
	return !p.IsEvent()
}

// IsReply indicates the message replies a command.
func (p *Typed) IsReply() bool {
	return IsReplyType(p.TypeID)
}
