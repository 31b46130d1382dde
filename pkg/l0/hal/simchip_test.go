package hal

import (
	"testing"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"github.com/robotalks/aerlink/pkg/l0/aer"
)

func simPinIOs(pins ...*SimPin) []gpio.PinIO {
	return PinIOs(pins)
}

func TestSimReceiverWithDrive(t *testing.T) {
	for _, polarity := range []aer.Polarity{aer.HandshakeHighDataHigh, aer.HandshakeLowDataLow} {
		sim := NewSimPins(6)
		lines := &aer.PinLines{OwnPin: sim[0], PeerPin: sim[1], Data: simPinIOs(sim[2:]...), Polarity: polarity}
		require.NoError(t, lines.Setup(aer.Drive, false))
		receiver := NewSimReceiver(sim[0], sim[1], sim[2:], polarity)
		defer receiver.Close()

		engine := aer.New(aer.Drive, lines)
		require.NoError(t, engine.Begin(0xa, 0))
		require.False(t, engine.Poll(1).Done())
		out := engine.Poll(2)
		require.True(t, out.Completed)
		require.Equal(t, uint32(0xa), out.Value)
		require.Equal(t, []uint32{0xa}, receiver.Received())
	}
}

func TestSimSenderWithObserve(t *testing.T) {
	sim := NewSimPins(10)
	lines := &aer.PinLines{OwnPin: sim[1], PeerPin: sim[0], Data: simPinIOs(sim[2:]...), Polarity: aer.HandshakeLowDataHigh}
	require.NoError(t, lines.Setup(aer.Observe, false))
	sender := NewSimSender(sim[0], sim[1], sim[2:], aer.HandshakeLowDataHigh)
	defer sender.Close()

	engine := aer.New(aer.Observe, lines)
	var outcomes []aer.Outcome
	stop := sim[0].Listen(func(gpio.Level) {
		if out := engine.Sense(0); out.Done() {
			outcomes = append(outcomes, out)
		}
	})
	defer stop()

	require.True(t, sender.Emit(0x2a))
	require.Equal(t, []aer.Outcome{{Completed: true, Value: 0x2a}}, outcomes)
	require.Equal(t, aer.Idle, engine.State())
	require.True(t, sender.Emit(0x15))
	require.Len(t, outcomes, 2)
	require.Equal(t, uint32(0x15), outcomes[1].Value)
}
