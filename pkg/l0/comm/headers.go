package comm

import "fmt"

// Header is the leading byte of a packet, selecting kind and operation.
type Header byte

// Kind is the packet layout selected by a header.
type Kind byte

// Packet kinds.
const (
	KindUnknown Kind = iota
	KindData32bit
	KindPin
	KindDataI2C
	KindConfig
	KindError
)

// PacketSize is the encoded size of every packet kind.
const PacketSize = 9

// Interface counts.
const (
	NumSPI      = 3
	NumI2C      = 3
	NumAsync    = 8
	NumChannels = 32
)

// Data32bit headers.
const (
	Read                    Header = 0
	SetTime                 Header = 1
	ReadTime                Header = 2
	ReadInstructions        Header = 3
	ReadLast                Header = 4
	FreeInstructionSpots    Header = 5
	SPI0                    Header = 20
	AsyncToChip0            Header = 30
	OutTime                 Header = 100
	OutFreeInstructionSpots Header = 101
	OutSPI0                 Header = 120
	OutAsyncFromChip0       Header = 130
	MapperKey               Header = 190
	MapperEnd               Header = 191
	Reset                   Header = 254
	Align                   Header = 255
)

// Pin headers.
const (
	PinSet     Header = 10
	PinRead    Header = 11
	OutPinLow  Header = 110
	OutPinHigh Header = 111
)

// DataI2C headers.
const (
	I2C0    Header = 25
	OutI2C0 Header = 125
)

// Config headers.
const (
	ConfReadOnRequest  Header = 6
	ConfPin            Header = 50
	ConfSPI0           Header = 60
	ConfI2C0           Header = 65
	ConfAsyncToChip0   Header = 70
	ConfAsyncFromChip0 Header = 80
	ConfUC             Header = 99
)

// Error headers.
const (
	ErrorGeneric                     Header = 200
	ErrorPinAlreadyInUse             Header = 201
	ErrorPinNotConfigured            Header = 202
	ErrorInputFull                   Header = 203
	ErrorOutputFull                  Header = 204
	ErrorInterfaceAlreadyActive      Header = 205
	ErrorUnknownInstruction          Header = 206
	ErrorInterfaceNotActive          Header = 207
	ErrorUnknownConfiguration        Header = 208
	ErrorAsyncHandshakeTimeout       Header = 209
	ErrorPeripheralInterfaceNotReady Header = 210
	ErrorConfigurationOutOfBounds    Header = 211
	ErrorDataOutOfBounds             Header = 212
	WarningDataCollectionSqueezed    Header = 213
	AlignSuccessVersion              Header = 253
)

// ConfigSub is the sub-header of a config packet.
type ConfigSub byte

// Config sub-headers. Values below NumChannels address data channels.
const (
	SubChannel0   ConfigSub = 0
	SubActive     ConfigSub = 60
	SubOutput     ConfigSub = 61
	SubInput      ConfigSub = 62
	SubReq        ConfigSub = 70
	SubAck        ConfigSub = 71
	SubWidth      ConfigSub = 72
	SubReqDelay   ConfigSub = 73
	SubByteOrder  ConfigSub = 74
	SubSpeedClass ConfigSub = 75
	SubType       ConfigSub = 76
	SubNone       ConfigSub = 253
)

// Channel returns the data channel index of a sub-header.
func (s ConfigSub) Channel() (int, bool) {
	return int(s), s < NumChannels
}

func (s ConfigSub) String() string {
	if n, ok := s.Channel(); ok {
		return fmt.Sprintf("CHANNEL%d", n)
	}
	if name, ok := subNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SUB(%d)", byte(s))
}

var subNames = map[ConfigSub]string{
	SubActive:     "ACTIVE",
	SubOutput:     "OUTPUT",
	SubInput:      "INPUT",
	SubReq:        "REQ",
	SubAck:        "ACK",
	SubWidth:      "WIDTH",
	SubReqDelay:   "REQ_DELAY",
	SubByteOrder:  "BYTE_ORDER",
	SubSpeedClass: "SPEED_CLASS",
	SubType:       "TYPE",
	SubNone:       "NONE",
}

var (
	kinds [256]Kind
	names [256]string
	// headersByName indexes names, filled by define.
	headersByName = make(map[string]Header)
)

func define(kind Kind, h Header, name string) {
	if kinds[h] != KindUnknown {
		panic(fmt.Sprintf("header %d defined twice", h))
	}
	kinds[h], names[h] = kind, name
	headersByName[name] = h
}

func defineRange(kind Kind, base Header, count int, prefix string) {
	for n := 0; n < count; n++ {
		define(kind, base+Header(n), fmt.Sprintf("%s%d", prefix, n))
	}
}

func init() {
	define(KindData32bit, Read, "READ")
	define(KindData32bit, SetTime, "SET_TIME")
	define(KindData32bit, ReadTime, "READ_TIME")
	define(KindData32bit, ReadInstructions, "READ_INSTRUCTIONS")
	define(KindData32bit, ReadLast, "READ_LAST")
	define(KindData32bit, FreeInstructionSpots, "FREE_INSTRUCTION_SPOTS")
	defineRange(KindData32bit, SPI0, NumSPI, "SPI")
	defineRange(KindData32bit, AsyncToChip0, NumAsync, "ASYNC_TO_CHIP")
	define(KindData32bit, OutTime, "OUT_TIME")
	define(KindData32bit, OutFreeInstructionSpots, "OUT_FREE_INSTRUCTION_SPOTS")
	defineRange(KindData32bit, OutSPI0, NumSPI, "OUT_SPI")
	defineRange(KindData32bit, OutAsyncFromChip0, NumAsync, "OUT_ASYNC_FROM_CHIP")
	define(KindData32bit, MapperKey, "MAPPER_KEY")
	define(KindData32bit, MapperEnd, "MAPPER_END")
	define(KindData32bit, Reset, "RESET")
	define(KindData32bit, Align, "ALIGN")

	define(KindPin, PinSet, "PIN")
	define(KindPin, PinRead, "PIN_READ")
	define(KindPin, OutPinLow, "OUT_PIN_LOW")
	define(KindPin, OutPinHigh, "OUT_PIN_HIGH")

	defineRange(KindDataI2C, I2C0, NumI2C, "I2C")
	defineRange(KindDataI2C, OutI2C0, NumI2C, "OUT_I2C")

	define(KindConfig, ConfReadOnRequest, "CONF_READ_ON_REQUEST")
	define(KindConfig, ConfPin, "CONF_PIN")
	defineRange(KindConfig, ConfSPI0, NumSPI, "CONF_SPI")
	defineRange(KindConfig, ConfI2C0, NumI2C, "CONF_I2C")
	defineRange(KindConfig, ConfAsyncToChip0, NumAsync, "CONF_ASYNC_TO_CHIP")
	defineRange(KindConfig, ConfAsyncFromChip0, NumAsync, "CONF_ASYNC_FROM_CHIP")
	define(KindConfig, ConfUC, "CONF_UC")

	define(KindError, ErrorGeneric, "ERROR")
	define(KindError, ErrorPinAlreadyInUse, "ERROR_PIN_ALREADY_INUSE")
	define(KindError, ErrorPinNotConfigured, "ERROR_PIN_NOT_CONFIGURED")
	define(KindError, ErrorInputFull, "ERROR_INPUT_FULL")
	define(KindError, ErrorOutputFull, "ERROR_OUTPUT_FULL")
	define(KindError, ErrorInterfaceAlreadyActive, "ERROR_INTERFACE_ALREADY_ACTIVE")
	define(KindError, ErrorUnknownInstruction, "ERROR_UNKNOWN_INSTRUCTION")
	define(KindError, ErrorInterfaceNotActive, "ERROR_INTERFACE_NOT_ACTIVE")
	define(KindError, ErrorUnknownConfiguration, "ERROR_UNKNOWN_CONFIGURATION")
	define(KindError, ErrorAsyncHandshakeTimeout, "ERROR_ASYNC_HS_TIMEOUT")
	define(KindError, ErrorPeripheralInterfaceNotReady, "ERROR_PERIPHERAL_INTERFACE_NOT_READY")
	define(KindError, ErrorConfigurationOutOfBounds, "ERROR_CONFIGURATION_OUT_OF_BOUNDS")
	define(KindError, ErrorDataOutOfBounds, "ERROR_DATA_OUT_OF_BOUNDS")
	define(KindError, WarningDataCollectionSqueezed, "WARNING_DATA_COLLECTION_SQUEEZED")
	define(KindError, AlignSuccessVersion, "ALIGN_SUCCESS_VERSION")
}

// KindOf looks up the packet kind of a header.
func KindOf(h Header) Kind {
	return kinds[h]
}

// IsKnown indicates the header is defined.
func (h Header) IsKnown() bool {
	return kinds[h] != KindUnknown
}

// Kind returns the packet kind of the header.
func (h Header) Kind() Kind {
	return kinds[h]
}

// Index returns the interface index if h is in [base, base+count).
func (h Header) Index(base Header, count int) (int, bool) {
	if h < base || int(h-base) >= count {
		return 0, false
	}
	return int(h - base), true
}

func (h Header) String() string {
	if name := names[h]; name != "" {
		return name
	}
	return fmt.Sprintf("HEADER(%d)", byte(h))
}

// SPIHeader returns the SPI transfer header of interface id.
func SPIHeader(id int) Header { return SPI0 + Header(id) }

// OutSPIHeader returns the SPI read value header of interface id.
func OutSPIHeader(id int) Header { return OutSPI0 + Header(id) }

// I2CHeader returns the I2C request header of interface id.
func I2CHeader(id int) Header { return I2C0 + Header(id) }

// OutI2CHeader returns the I2C read value header of interface id.
func OutI2CHeader(id int) Header { return OutI2C0 + Header(id) }

// AsyncToChipHeader returns the to-chip transfer header of interface id.
func AsyncToChipHeader(id int) Header { return AsyncToChip0 + Header(id) }

// AsyncFromChipHeader returns the from-chip event header of interface id.
func AsyncFromChipHeader(id int) Header { return OutAsyncFromChip0 + Header(id) }

// ConfSPIHeader returns the config header of SPI interface id.
func ConfSPIHeader(id int) Header { return ConfSPI0 + Header(id) }

// ConfI2CHeader returns the config header of I2C interface id.
func ConfI2CHeader(id int) Header { return ConfI2C0 + Header(id) }

// ConfAsyncToChipHeader returns the config header of to-chip interface id.
func ConfAsyncToChipHeader(id int) Header { return ConfAsyncToChip0 + Header(id) }

// ConfAsyncFromChipHeader returns the config header of from-chip interface id.
func ConfAsyncFromChipHeader(id int) Header { return ConfAsyncFromChip0 + Header(id) }

// DataReplyHeader returns the header of data replies preceding the
// confirmation of a request, if the request produces any.
func DataReplyHeader(req Header) (Header, bool) {
	if n, ok := req.Index(SPI0, NumSPI); ok {
		return OutSPIHeader(n), true
	}
	if n, ok := req.Index(I2C0, NumI2C); ok {
		return OutI2CHeader(n), true
	}
	switch req {
	case FreeInstructionSpots:
		return OutFreeInstructionSpots, true
	case ReadTime:
		return OutTime, true
	}
	return 0, false
}

// IsDataReply indicates h is a data reply to req. PIN_READ is answered
// by either OUT_PIN_LOW or OUT_PIN_HIGH.
func IsDataReply(req, h Header) bool {
	if req == PinRead {
		return h == OutPinLow || h == OutPinHigh
	}
	r, ok := DataReplyHeader(req)
	return ok && r == h
}
