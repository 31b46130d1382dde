package aer

import (
	"testing"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

type fakeLines struct {
	own     bool
	peer    bool
	data    uint32
	onDrive func(asserted bool)
}

func (l *fakeLines) Drive(asserted bool) {
	l.own = asserted
	if l.onDrive != nil {
		l.onDrive(asserted)
	}
}

func (l *fakeLines) Peer() bool          { return l.peer }
func (l *fakeLines) WriteData(v uint32)  { l.data = v }
func (l *fakeLines) ReadData() uint32    { return l.data }

func TestDriveHandshake(t *testing.T) {
	lines := &fakeLines{}
	a := New(Drive, lines)
	require.NoError(t, a.Begin(0x2a, 100))
	require.Equal(t, RequestAsserted, a.State())
	require.True(t, lines.own)
	require.Equal(t, uint32(0x2a), lines.data)
	require.Equal(t, ErrBusy, a.Begin(1, 101))

	require.False(t, a.Poll(200).Done())
	lines.peer = true
	require.False(t, a.Poll(300).Done())
	require.Equal(t, RequestReleased, a.State())
	require.False(t, lines.own)

	lines.peer = false
	out := a.Poll(400)
	require.Equal(t, Outcome{Completed: true, Value: 0x2a}, out)
	require.Equal(t, Idle, a.State())
}

func TestDriveTimeout(t *testing.T) {
	testCases := []struct {
		name  string
		start uint32
		ack   bool
	}{
		{"no acknowledge", 0, false},
		{"acknowledge never released", 0, true},
		{"clock wraps", 0xffffff00, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			lines := &fakeLines{}
			a := New(Drive, lines)
			require.NoError(t, a.Begin(7, tc.start))
			if tc.ack {
				lines.peer = true
				require.False(t, a.Poll(tc.start+1).Done())
			}
			require.False(t, a.Poll(tc.start+DefaultTimeout).Done())
			out := a.Poll(tc.start + DefaultTimeout + 2)
			require.Equal(t, ErrHandshakeTimeout, out.Err)
			require.Equal(t, uint32(7), out.Value)
			require.Equal(t, Idle, a.State())
			require.False(t, lines.own)
			require.False(t, a.Poll(tc.start+2*DefaultTimeout).Done())
		})
	}
}

func TestDriveRequestDelay(t *testing.T) {
	lines := &fakeLines{}
	a := New(Drive, lines)
	a.RequestDelay = 5
	require.NoError(t, a.Begin(3, 10))
	require.False(t, lines.own)
	require.Equal(t, uint32(3), lines.data)
	a.Poll(14)
	require.False(t, lines.own)
	a.Poll(15)
	require.True(t, lines.own)
}

func TestObserveHandshake(t *testing.T) {
	lines := &fakeLines{data: 0x2a}
	a := New(Observe, lines)
	require.Equal(t, ErrWrongRole, a.Begin(1, 0))

	require.False(t, a.Sense(50).Done())
	require.Equal(t, Idle, a.State())

	lines.peer = true
	require.False(t, a.Sense(100).Done())
	require.Equal(t, AcknowledgeSeen, a.State())
	require.True(t, lines.own)

	lines.data = 0
	lines.peer = false
	out := a.Sense(120)
	require.Equal(t, Outcome{Completed: true, Value: 0x2a}, out)
	require.Equal(t, Idle, a.State())
	require.False(t, lines.own)
}

func TestObserveReleaseDuringAcknowledge(t *testing.T) {
	lines := &fakeLines{data: 0x15, peer: true}
	a := New(Observe, lines)
	var nested []Outcome
	lines.onDrive = func(asserted bool) {
		if !asserted {
			return
		}
		lines.onDrive = nil
		lines.peer = false
		nested = append(nested, a.Sense(11))
	}
	out := a.Sense(10)
	require.Equal(t, []Outcome{{}}, nested)
	require.Equal(t, Outcome{Completed: true, Value: 0x15}, out)
	require.Equal(t, Idle, a.State())
	require.False(t, lines.own)

	lines.peer = true
	require.False(t, a.Sense(20).Done())
	require.Equal(t, AcknowledgeSeen, a.State())
	require.True(t, lines.own)
}

func TestObserveTimeout(t *testing.T) {
	lines := &fakeLines{data: 9, peer: true}
	a := New(Observe, lines)
	a.Sense(0)
	require.False(t, a.Poll(DefaultTimeout).Done())
	out := a.Poll(DefaultTimeout + 1)
	require.Equal(t, Outcome{Value: 9, Err: ErrHandshakeTimeout}, out)
	require.Equal(t, Idle, a.State())
	require.False(t, lines.own)
}

func TestPinLines(t *testing.T) {
	own := &gpiotest.Pin{N: "REQ", Num: 1}
	peer := &gpiotest.Pin{N: "ACK", Num: 2}
	data := []gpio.PinIO{
		&gpiotest.Pin{N: "D0", Num: 3},
		&gpiotest.Pin{N: "D1", Num: 4},
		&gpiotest.Pin{N: "D2", Num: 5},
	}
	lines := &PinLines{OwnPin: own, PeerPin: peer, Data: data, Polarity: HandshakeLowDataLow}
	require.NoError(t, lines.Setup(Drive, false))
	require.Equal(t, gpio.High, own.Read())

	lines.Drive(true)
	require.Equal(t, gpio.Low, own.Read())
	require.NoError(t, peer.Out(gpio.Low))
	require.True(t, lines.Peer())

	lines.WriteData(0x5)
	require.Equal(t, []gpio.Level{gpio.Low, gpio.High, gpio.Low}, []gpio.Level{data[0].Read(), data[1].Read(), data[2].Read()})
	require.Equal(t, uint32(0x5), lines.ReadData())
}

func TestPolarity(t *testing.T) {
	require.False(t, HandshakeHighDataHigh.HandshakeActiveLow())
	require.False(t, HandshakeHighDataHigh.DataActiveLow())
	require.False(t, HandshakeHighDataLow.HandshakeActiveLow())
	require.True(t, HandshakeHighDataLow.DataActiveLow())
	require.True(t, HandshakeLowDataHigh.HandshakeActiveLow())
	require.False(t, HandshakeLowDataHigh.DataActiveLow())
}
