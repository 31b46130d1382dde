package msgs

// A type ID is laid out as
//
//	bit 31      kind, set for events
//	bits 16-30  group
//	bit 15      set for replies to commands
//	bits 0-14   id within the group
const (
	TypeIDMaskKind  uint32 = 0x80000000
	TypeIDMaskGroup uint32 = 0x7fff0000
	TypeIDMaskID    uint32 = 0x0000ffff
	TypeIDMaskReply uint32 = 0x00008000
)

// Message kinds.
const (
	TypeIDKindCommand uint32 = 0x00000000
	TypeIDKindEvent   uint32 = 0x80000000
)

// Groups.
const (
	GroupCommand uint32 = 0x00000000
	GroupDevice  uint32 = 0x00010000
	// GroupCustom is the first group free for messages defined outside
	// this package.
	GroupCustom uint32 = 0x7f000000
)

// Type IDs.
const (
	CommandOKTypeID  = GroupCommand | TypeIDMaskReply | 0x0000
	CommandErrTypeID = GroupCommand | TypeIDMaskReply | 0x0001

	DevicePacketTypeID      = GroupDevice | 0x0000
	DeviceReplyTypeID       = DevicePacketTypeID | TypeIDMaskReply
	DeviceStatusQueryTypeID = GroupDevice | 0x0001
	DeviceStatusReplyTypeID = DeviceStatusQueryTypeID | TypeIDMaskReply
	DeviceEventTypeID       = GroupDevice | TypeIDKindEvent | 0x0000
	DeviceStatusTypeID      = GroupDevice | TypeIDKindEvent | 0x0001
)

// IsEventType indicates a type ID is an event.
func IsEventType(typeID uint32) bool {
	return typeID&TypeIDMaskKind == TypeIDKindEvent
}

// IsReplyType indicates a type ID replies a command.
func IsReplyType(typeID uint32) bool {
	return !IsEventType(typeID) && typeID&TypeIDMaskReply != 0
}
