package device

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	fx "github.com/robotalks/aerlink/pkg/framework"
	"github.com/robotalks/aerlink/pkg/l0/aer"
	"github.com/robotalks/aerlink/pkg/l0/comm"
	"github.com/robotalks/aerlink/pkg/l0/hal"
)

type testClock struct {
	now atomic.Uint32
}

func (c *testClock) Micros() uint32 {
	return c.now.Load()
}

type deviceTestEnv struct {
	t     *testing.T
	clock *testClock
	sim   []*hal.SimPin
	i2c   *hal.SimI2CBus
	spi   *hal.SimSPIPort
	dev   *Device
}

func newDeviceTestEnv(t *testing.T, setup ...func(*Config)) *deviceTestEnv {
	conf := NewConfig()
	conf.Pins = 40
	for _, fn := range setup {
		fn(conf)
	}
	e := &deviceTestEnv{
		t:     t,
		clock: &testClock{},
		sim:   hal.NewSimPins(conf.Pins),
		i2c:   hal.NewSimI2CBus("i2c0", 0x20),
		spi:   &hal.SimSPIPort{Name: "spi0"},
	}
	e.clock.now.Store(1000)
	board := &Board{Pins: hal.PinIOs(e.sim)}
	board.I2C[0] = e.i2c
	board.SPI[0] = e.spi
	e.dev = New(conf, board, e.clock)
	return e
}

func (e *deviceTestEnv) at(now uint32) *deviceTestEnv {
	e.clock.now.Store(now)
	return e
}

func (e *deviceTestEnv) send(pkts ...comm.Packet) *deviceTestEnv {
	for _, pkt := range pkts {
		b := comm.Encode(pkt)
		for _, c := range b {
			e.dev.ByteReceived(c)
		}
	}
	return e
}

func (e *deviceTestEnv) poll() *deviceTestEnv {
	e.dev.Poll()
	return e
}

func (e *deviceTestEnv) recv() []comm.Packet {
	var data []byte
	buf := make([]byte, 64)
	for {
		n := e.dev.TransmitReady(buf)
		if n == 0 {
			break
		}
		data = append(data, buf[:n]...)
	}
	require.Zero(e.t, len(data)%comm.PacketSize)
	var pkts []comm.Packet
	for len(data) > 0 {
		pkt, err := comm.Decode(data[:comm.PacketSize])
		require.NoError(e.t, err)
		pkts = append(pkts, pkt)
		data = data[comm.PacketSize:]
	}
	return pkts
}

func (e *deviceTestEnv) expect(pkts ...comm.Packet) *deviceTestEnv {
	require.Equal(e.t, pkts, e.recv())
	return e
}

func (e *deviceTestEnv) expectNothing() *deviceTestEnv {
	require.Empty(e.t, e.recv())
	return e
}

// wrapped is the timestamp before time zero.
func wrapped(now, offset uint32) uint32 {
	return now - offset
}

func conf(h comm.Header, sub comm.ConfigSub, value byte) comm.ConfigPacket {
	return comm.ConfigPacket{Header: h, Sub: sub, Value: value}
}

func confirmed(ts uint32, h comm.Header, sub comm.ConfigSub, value byte) comm.ConfigPacket {
	return comm.ConfigPacket{Header: h, ExecTime: ts, Sub: sub, Value: value}
}

func errPacket(h, source comm.Header, value uint32, sub comm.ConfigSub) comm.ErrorPacket {
	return comm.ErrorPacket{Header: h, Source: source, Value: value, Sub: sub}
}

func TestPinSetConfirm(t *testing.T) {
	e := newDeviceTestEnv(t)
	e.send(conf(comm.ConfPin, comm.SubOutput, 5)).poll().
		expect(confirmed(1000, comm.ConfPin, comm.SubOutput, 5))

	e.send(comm.PinPacket{Header: comm.PinSet, ID: 5, Value: 1}).poll().expectNothing()
	require.Equal(t, gpio.High, e.sim[5].Read())

	e.send(comm.PinPacket{Header: comm.PinSet, ID: 5, Value: 0, Confirm: true}).poll().
		expect(comm.PinPacket{Header: comm.PinSet, ExecTime: 1000, ID: 5, Value: 0, Confirm: true})
	require.Equal(t, gpio.Low, e.sim[5].Read())
}

func TestPinErrors(t *testing.T) {
	e := newDeviceTestEnv(t)
	e.send(comm.PinPacket{Header: comm.PinSet, ID: 7, Value: 1}).poll().
		expect(errPacket(comm.ErrorPinNotConfigured, comm.PinSet, 7, comm.SubNone))
	e.send(conf(comm.ConfPin, comm.SubOutput, 200)).poll().
		expect(errPacket(comm.ErrorConfigurationOutOfBounds, comm.ConfPin, 200, comm.SubNone))
	e.send(conf(comm.ConfPin, comm.SubWidth, 3)).poll().
		expect(errPacket(comm.ErrorUnknownConfiguration, comm.ConfPin, 3, comm.SubWidth))
}

func TestPinRead(t *testing.T) {
	e := newDeviceTestEnv(t)
	e.send(conf(comm.ConfPin, comm.SubInput, 3)).poll().
		expect(confirmed(1000, comm.ConfPin, comm.SubInput, 3))
	require.NoError(t, e.sim[3].Out(gpio.High))
	e.send(comm.PinPacket{Header: comm.PinRead, ID: 3}).poll().expect(
		comm.PinPacket{Header: comm.OutPinHigh, ExecTime: 1000, ID: 3, Value: 1},
		comm.PinPacket{Header: comm.PinRead, ExecTime: 1000, ID: 3, Value: 1, Confirm: true},
	)
}

func TestPinChangeEvents(t *testing.T) {
	e := newDeviceTestEnv(t)
	e.send(conf(comm.ConfPin, comm.SubInput, 3)).poll().recv()
	require.NoError(t, e.sim[3].Out(gpio.High))
	e.poll().expectNothing()

	e.send(comm.Data32bitPacket{Header: comm.SetTime, Value: 500}).poll().
		expect(comm.Data32bitPacket{Header: comm.SetTime, ExecTime: wrapped(1000, 1500), Value: 500})
	e.at(1600)
	require.NoError(t, e.sim[3].Out(gpio.Low))
	e.poll().expect(comm.PinPacket{Header: comm.OutPinLow, ExecTime: 100, ID: 3})
}

func TestFromChipEvent(t *testing.T) {
	e := newDeviceTestEnv(t)
	h := comm.ConfAsyncFromChipHeader(0)
	e.send(
		conf(h, comm.SubReq, 10),
		conf(h, comm.SubAck, 11),
		conf(h, comm.SubWidth, 8),
	)
	for n := 0; n < 8; n++ {
		e.send(conf(h, comm.ConfigSub(n), byte(12+n)))
	}
	e.send(conf(h, comm.SubActive, 0)).poll()
	replies := e.recv()
	require.Len(t, replies, 12)
	require.Equal(t, confirmed(1000, h, comm.SubActive, 1), replies[11])

	sender := hal.NewSimSender(e.sim[10], e.sim[11], e.sim[12:20], aer.HandshakeHighDataHigh)
	defer sender.Close()

	// not recording
	require.True(t, sender.Emit(0x15))
	e.poll().expectNothing()

	e.send(comm.Data32bitPacket{Header: comm.SetTime, Value: 500}).poll().recv()
	e.at(2000)
	require.True(t, sender.Emit(0x2a))
	require.Equal(t, aer.Idle, e.dev.fromChip[0].engine.Load().State())
	require.Equal(t, gpio.Low, e.sim[11].Read())
	e.poll().expect(comm.Data32bitPacket{Header: comm.OutAsyncFromChip0, ExecTime: 500, Value: 0x2a})

	e.send(conf(comm.ConfPin, comm.SubOutput, 11)).poll().
		expect(errPacket(comm.ErrorPinAlreadyInUse, comm.ConfPin, 11, comm.SubNone))
	e.send(conf(h, comm.SubWidth, 4)).poll().
		expect(errPacket(comm.ErrorInterfaceAlreadyActive, h, 0, comm.SubWidth))
}

func TestFromChipTimeout(t *testing.T) {
	e := newDeviceTestEnv(t)
	h := comm.ConfAsyncFromChipHeader(1)
	e.send(conf(h, comm.SubReq, 10), conf(h, comm.SubAck, 11), conf(h, comm.SubActive, 0)).poll().recv()

	// the chip asserts request and never releases it
	require.NoError(t, e.sim[10].Out(gpio.High))
	require.Equal(t, aer.AcknowledgeSeen, e.dev.fromChip[1].engine.Load().State())
	e.at(1000 + 10001).poll().
		expect(errPacket(comm.ErrorAsyncHandshakeTimeout, comm.AsyncFromChipHeader(1), 0, comm.SubNone))
	require.Equal(t, aer.Idle, e.dev.fromChip[1].engine.Load().State())
	require.Equal(t, gpio.Low, e.sim[11].Read())
}

func setupToChip(e *deviceTestEnv) {
	h := comm.ConfAsyncToChipHeader(0)
	e.send(conf(h, comm.SubReq, 20), conf(h, comm.SubAck, 21), conf(h, comm.SubWidth, 4))
	for n := 0; n < 4; n++ {
		e.send(conf(h, comm.ConfigSub(n), byte(22+n)))
	}
	e.send(conf(h, comm.SubActive, 0)).poll()
	replies := e.recv()
	require.Len(e.t, replies, 8)
	require.Equal(e.t, confirmed(1000, h, comm.SubActive, 1), replies[7])
}

func TestToChip(t *testing.T) {
	e := newDeviceTestEnv(t)
	setupToChip(e)
	receiver := hal.NewSimReceiver(e.sim[20], e.sim[21], e.sim[22:26], aer.HandshakeHighDataHigh)
	defer receiver.Close()

	e.send(comm.Data32bitPacket{Header: comm.AsyncToChip0, Value: 5}).poll().
		expect(comm.Data32bitPacket{Header: comm.AsyncToChip0, ExecTime: 1000, Value: 5})
	require.Equal(t, []uint32{5}, receiver.Received())

	e.send(comm.Data32bitPacket{Header: comm.AsyncToChip0, Value: 16}).poll().
		expect(errPacket(comm.ErrorDataOutOfBounds, comm.AsyncToChip0, 16, comm.SubWidth))
	e.send(comm.Data32bitPacket{Header: comm.AsyncToChipHeader(3), Value: 1}).poll().
		expect(errPacket(comm.ErrorInterfaceNotActive, comm.AsyncToChipHeader(3), 3, comm.SubNone))
}

func TestToChipTimeout(t *testing.T) {
	e := newDeviceTestEnv(t)
	setupToChip(e)

	e.send(
		comm.Data32bitPacket{Header: comm.AsyncToChip0, Value: 5},
		comm.Data32bitPacket{Header: comm.Align},
	).poll().expectNothing()
	require.Equal(t, gpio.High, e.sim[20].Read())
	require.Equal(t, aer.RequestAsserted, e.dev.toChip[0].engine.Load().State())

	e.at(1000 + 5000).poll().expectNothing()
	e.at(1000 + 10001).poll().expect(
		errPacket(comm.ErrorAsyncHandshakeTimeout, comm.AsyncToChip0, 5, comm.SubNone),
		comm.ErrorPacket{Header: comm.AlignSuccessVersion, Source: 0, Value: 2, Sub: 9},
	)
	require.Equal(t, gpio.Low, e.sim[20].Read())
	require.Equal(t, aer.Idle, e.dev.toChip[0].engine.Load().State())
}

func TestSPI(t *testing.T) {
	e := newDeviceTestEnv(t)
	h := comm.ConfSPIHeader(0)
	e.send(conf(h, comm.SubWidth, 2), conf(h, comm.SubActive, 0)).poll().expect(
		confirmed(1000, h, comm.SubWidth, 2),
		confirmed(1000, h, comm.SubActive, 1),
	)
	e.send(comm.Data32bitPacket{Header: comm.SPI0, Value: 0x1234}).poll().expect(
		comm.Data32bitPacket{Header: comm.OutSPI0, ExecTime: 1000, Value: 0x1234},
		comm.Data32bitPacket{Header: comm.SPI0, ExecTime: 1000, Value: 0x1234},
	)
	require.Equal(t, [][]byte{{0x34, 0x12}}, e.spi.Written())

	e.send(comm.Data32bitPacket{Header: comm.SPI0, Value: 0x10000}).poll().
		expect(errPacket(comm.ErrorDataOutOfBounds, comm.SPI0, 0x10000, comm.SubWidth))
	e.send(conf(h, comm.SubWidth, 1)).poll().
		expect(errPacket(comm.ErrorInterfaceAlreadyActive, h, 1, comm.SubWidth))
	e.send(comm.Data32bitPacket{Header: comm.SPIHeader(1), Value: 1}).poll().
		expect(errPacket(comm.ErrorInterfaceNotActive, comm.SPIHeader(1), 1, comm.SubNone))
}

func startRecording(e *deviceTestEnv) {
	e.send(comm.Data32bitPacket{Header: comm.SetTime, Value: 500}).poll().recv()
	e.at(1600)
}

func TestEventSourcesOverflowSeparately(t *testing.T) {
	e := newDeviceTestEnv(t, func(c *Config) { c.EventSize = 2 * comm.PacketSize })
	startRecording(e)
	for n := 0; n < 5; n++ {
		e.dev.PinEdge(1, gpio.High)
	}
	e.dev.PinEdge(2, gpio.Low)
	e.dev.PinEdge(99, gpio.High)
	high := comm.PinPacket{Header: comm.OutPinHigh, ExecTime: 100, ID: 1, Value: 1}
	e.poll().expect(
		high, high, high,
		comm.PinPacket{Header: comm.OutPinLow, ExecTime: 100, ID: 2},
		errPacket(comm.WarningDataCollectionSqueezed, comm.Read, 2, comm.SubNone),
	)
}

func TestConcurrentEventSources(t *testing.T) {
	e := newDeviceTestEnv(t)
	startRecording(e)
	const sources, edges = 4, 20
	done := make(chan struct{})
	for id := 0; id < sources; id++ {
		go func(id int) {
			for n := 0; n < edges; n++ {
				e.dev.PinEdge(id, gpio.Level(n%2 == 0))
			}
			done <- struct{}{}
		}(id)
	}
	for n := 0; n < sources; n++ {
		<-done
	}
	counts := make(map[byte]int)
	for _, pkt := range e.poll().recv() {
		pin, ok := pkt.(comm.PinPacket)
		require.True(t, ok, "unexpected %s", pkt.Head())
		counts[pin.ID]++
	}
	for id := 0; id < sources; id++ {
		require.Equal(t, edges, counts[byte(id)])
	}
}

func TestI2C(t *testing.T) {
	e := newDeviceTestEnv(t)
	h := comm.ConfI2CHeader(0)
	e.send(conf(h, comm.SubActive, 0)).poll().expect(confirmed(1000, h, comm.SubActive, 1))

	write := comm.NewI2CPacket(comm.I2C0, 0x20, false, 3, 0x42)
	e.send(write).poll().expect(comm.WithExecTime(write, 1000))
	require.Equal(t, byte(0x42), e.i2c.Peek(0x20, 3))

	read := comm.NewI2CPacket(comm.I2C0, 0x20, true, 3, 2)
	value0 := comm.NewI2CPacket(comm.OutI2C0, 0x20, true, 3, 0x42)
	value0.ExecTime = 1000
	value1 := comm.NewI2CPacket(comm.OutI2C0, 0x20, true, 4, 0)
	value1.ExecTime = 1000
	e.send(read).poll().expect(value0, value1, comm.WithExecTime(read, 1000))

	none := comm.NewI2CPacket(comm.I2C0, 0x20, true, 3, 0)
	e.send(none).poll().expect(comm.WithExecTime(none, 1000))
	one := comm.NewI2CPacket(comm.I2C0, 0x20, true, 3, 0x0101)
	e.send(one).poll().expect(value0, comm.WithExecTime(one, 1000))

	e.send(comm.NewI2CPacket(comm.I2C0, 0x21, false, 0, 1)).poll().
		expect(errPacket(comm.ErrorPeripheralInterfaceNotReady, comm.I2C0, 0x21, comm.SubNone))
	e.send(comm.NewI2CPacket(comm.I2CHeader(2), 0x20, false, 0, 1)).poll().
		expect(errPacket(comm.ErrorInterfaceNotActive, comm.I2CHeader(2), 2, comm.SubNone))
}

func TestControl(t *testing.T) {
	e := newDeviceTestEnv(t)
	e.send(comm.Data32bitPacket{Header: comm.Align, ExecTime: 0xffffffff, Value: 0xffffffff}).poll().
		expect(comm.ErrorPacket{Header: comm.AlignSuccessVersion, Source: 0, Value: 2, Sub: 9})
	e.send(comm.Data32bitPacket{Header: comm.ReadTime}).poll().expect(
		comm.Data32bitPacket{Header: comm.OutTime, ExecTime: 1000, Value: 1000},
		comm.Data32bitPacket{Header: comm.ReadTime, ExecTime: 1000, Value: 1000},
	)
	e.send(comm.Data32bitPacket{Header: comm.MapperKey, Value: 7}).poll().
		expect(errPacket(comm.ErrorUnknownInstruction, comm.MapperKey, 7, comm.SubNone))
	e.send(conf(comm.ConfUC, comm.SubNone, 1)).poll().
		expect(errPacket(comm.ErrorUnknownInstruction, comm.ConfUC, 1, comm.SubNone))
	e.send(errPacket(comm.ErrorGeneric, comm.PinSet, 3, comm.SubNone)).poll().
		expect(errPacket(comm.ErrorGeneric, comm.PinSet, 3, comm.SubNone))
}

func TestDiscardUnknownHeader(t *testing.T) {
	e := newDeviceTestEnv(t)
	e.dev.ByteReceived(42)
	e.send(comm.Data32bitPacket{Header: comm.ReadTime}).poll().expect(
		comm.Data32bitPacket{Header: comm.OutTime, ExecTime: 1000, Value: 1000},
		comm.Data32bitPacket{Header: comm.ReadTime, ExecTime: 1000, Value: 1000},
	)
	require.Equal(t, uint64(1), e.dev.Stats().Discarded)
}

func TestTimedInstructions(t *testing.T) {
	e := newDeviceTestEnv(t, func(c *Config) { c.InstructionSlots = 2 })
	e.send(conf(comm.ConfPin, comm.SubOutput, 5)).poll().recv()
	e.send(comm.Data32bitPacket{Header: comm.SetTime, Value: 500}).poll().recv()

	set := comm.PinPacket{Header: comm.PinSet, ExecTime: 200, ID: 5, Value: 1, Confirm: true}
	e.send(set).poll().expectNothing()
	e.send(comm.Data32bitPacket{Header: comm.FreeInstructionSpots}).poll().expect(
		comm.Data32bitPacket{Header: comm.OutFreeInstructionSpots, ExecTime: wrapped(1000, 1500), Value: 1},
		comm.Data32bitPacket{Header: comm.FreeInstructionSpots, ExecTime: wrapped(1000, 1500), Value: 1},
	)
	e.send(comm.Data32bitPacket{Header: comm.ReadInstructions}).poll().expect(
		set,
		comm.Data32bitPacket{Header: comm.ReadInstructions, ExecTime: wrapped(1000, 1500), Value: 1},
	)

	e.at(1650).poll().expectNothing()
	require.Equal(t, gpio.Low, e.sim[5].Read())
	e.at(1710).poll().expect(comm.PinPacket{Header: comm.PinSet, ExecTime: 210, ID: 5, Value: 1, Confirm: true})
	require.Equal(t, gpio.High, e.sim[5].Read())

	e.send(
		comm.PinPacket{Header: comm.PinSet, ExecTime: 900, ID: 5},
		comm.PinPacket{Header: comm.PinSet, ExecTime: 900, ID: 5},
		comm.PinPacket{Header: comm.PinSet, ExecTime: 900, ID: 5},
	).poll().expect(errPacket(comm.ErrorInputFull, comm.PinSet, 2, comm.SubNone))

	e.send(comm.Data32bitPacket{Header: comm.SetTime}).poll().
		expect(comm.Data32bitPacket{Header: comm.SetTime, ExecTime: 1710})
	require.Equal(t, 2, e.dev.Stats().FreeInstructions)
	require.False(t, e.dev.Stats().Recording)
}

func TestReset(t *testing.T) {
	e := newDeviceTestEnv(t)
	e.send(conf(comm.ConfPin, comm.SubOutput, 5), comm.Data32bitPacket{Header: comm.SetTime, Value: 1}).poll().recv()
	e.send(comm.Data32bitPacket{Header: comm.Reset}).poll().expectNothing()
	require.False(t, e.dev.Stats().Recording)
	e.send(comm.PinPacket{Header: comm.PinSet, ID: 5, Confirm: true}).poll().
		expect(errPacket(comm.ErrorPinNotConfigured, comm.PinSet, 5, comm.SubNone))
}

func TestReadOnRequestAndOutputFull(t *testing.T) {
	e := newDeviceTestEnv(t, func(c *Config) { c.OutboundSize = 64 })
	align := comm.Data32bitPacket{Header: comm.Align}
	version := comm.ErrorPacket{Header: comm.AlignSuccessVersion, Source: 0, Value: 2, Sub: 9}

	e.send(conf(comm.ConfReadOnRequest, comm.SubNone, 1))
	for n := 0; n < 7; n++ {
		e.send(align)
	}
	e.poll().expectNothing()

	e.send(comm.Data32bitPacket{Header: comm.Read}).poll().expect(
		confirmed(1000, comm.ConfReadOnRequest, comm.SubNone, 1),
		version, version, version, version, version,
		errPacket(comm.ErrorOutputFull, comm.AlignSuccessVersion, 2, comm.SubNone),
	)
	e.send(comm.Data32bitPacket{Header: comm.ReadLast}).poll().expect(version)
	e.send(align).poll().expectNothing()
	e.send(conf(comm.ConfReadOnRequest, comm.SubNone, 0)).poll().
		expect(version, confirmed(1000, comm.ConfReadOnRequest, comm.SubNone, 0))
}

func TestInputFull(t *testing.T) {
	e := newDeviceTestEnv(t, func(c *Config) { c.InboundSize = 32 })
	for n := 0; n < 4; n++ {
		e.send(comm.Data32bitPacket{Header: comm.Align})
	}
	version := comm.ErrorPacket{Header: comm.AlignSuccessVersion, Source: 0, Value: 2, Sub: 9}
	e.poll().expect(
		errPacket(comm.ErrorInputFull, comm.Read, 4, comm.SubNone),
		version, version, version,
	)
}

func TestClientOverPort(t *testing.T) {
	dev := New(NewConfig(), &Board{Pins: hal.PinIOs(hal.NewSimPins(8))}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fx.NewLoop().Add(dev).Run(ctx)

	port := dev.Port()
	defer port.Close()
	client := comm.NewClient(comm.NewFIFO(port))
	go client.Run(ctx)

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	major, minor, patch, err := client.Align(waitCtx)
	require.NoError(t, err)
	require.Equal(t, []interface{}{byte(0), byte(9), uint32(2)}, []interface{}{major, minor, patch})

	r := client.Do(comm.ConfigPacket{Header: comm.ConfPin, Sub: comm.SubInput, Value: 2}).Wait(waitCtx)
	require.NoError(t, r.Err)
	r = client.Do(comm.PinPacket{Header: comm.PinRead, ID: 2}).Wait(waitCtx)
	require.NoError(t, r.Err)
	require.Len(t, r.Data, 1)
	require.Equal(t, comm.OutPinLow, r.Data[0].Head())

	r = client.Do(comm.PinPacket{Header: comm.PinSet, ID: 2, Confirm: true}).Wait(waitCtx)
	require.Equal(t, comm.ErrorPinNotConfigured, r.Err.(comm.ErrorPacket).Header)
}
