package hal

import (
	"testing"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"

	"github.com/robotalks/aerlink/pkg/l0/comm"
)

func TestI2CConfigure(t *testing.T) {
	d := NewI2C(0, &i2ctest.Playback{})
	testCases := []struct {
		name    string
		sub     comm.ConfigSub
		value   byte
		confirm byte
		err     comm.Header
	}{
		{"width", comm.SubWidth, 2, 2, 0},
		{"width out of bounds", comm.SubWidth, 3, 0, comm.ErrorConfigurationOutOfBounds},
		{"byte order", comm.SubByteOrder, 7, 1, 0},
		{"speed class", comm.SubSpeedClass, 3, 3, 0},
		{"speed class falls back", comm.SubSpeedClass, 9, 0, 0},
		{"unknown", comm.SubReq, 1, 0, comm.ErrorUnknownConfiguration},
		{"activate", comm.SubActive, 1, 1, 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			confirm, err := d.Configure(tc.sub, tc.value)
			if tc.err != 0 {
				require.Equal(t, tc.err, AsError(err).Header)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.confirm, confirm)
		})
	}
	require.True(t, d.Active())
	d.Reset()
	require.False(t, d.Active())

	_, err := NewI2C(1, nil).Configure(comm.SubActive, 1)
	require.Equal(t, comm.ErrorPeripheralInterfaceNotReady, AsError(err).Header)
}

func TestI2CWriteRead(t *testing.T) {
	testCases := []struct {
		name    string
		config  I2CConfig
		ops     []i2ctest.IO
		write   uint16
		count   int
		results []uint16
	}{
		{
			name:   "no register",
			config: I2CConfig{Width: 0},
			ops: []i2ctest.IO{
				{Addr: 0x48, W: []byte{0x34}},
				{Addr: 0x48, R: []byte{1, 2}},
			},
			write:   0x1234,
			count:   2,
			results: []uint16{1, 2},
		},
		{
			name:   "one byte",
			config: I2CConfig{Width: 1},
			ops: []i2ctest.IO{
				{Addr: 0x48, W: []byte{0x10, 0x34}},
				{Addr: 0x48, W: []byte{0x10}, R: []byte{9}},
			},
			write:   0x1234,
			count:   1,
			results: []uint16{9},
		},
		{
			name:   "two bytes ls first",
			config: I2CConfig{Width: 2},
			ops: []i2ctest.IO{
				{Addr: 0x48, W: []byte{0x10, 0x34, 0x12}},
				{Addr: 0x48, W: []byte{0x10}, R: []byte{0xcd, 0xab, 0x01, 0x00}},
			},
			write:   0x1234,
			count:   2,
			results: []uint16{0xabcd, 1},
		},
		{
			name:   "two bytes ms first",
			config: I2CConfig{Width: 2, MSFirst: true},
			ops: []i2ctest.IO{
				{Addr: 0x48, W: []byte{0x10, 0x12, 0x34}},
				{Addr: 0x48, W: []byte{0x10}, R: []byte{0xab, 0xcd}},
			},
			write:   0x1234,
			count:   1,
			results: []uint16{0xabcd},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bus := &i2ctest.Playback{Ops: tc.ops}
			d := NewI2C(0, bus)
			_, err := d.Configure(comm.SubActive, 1)
			require.NoError(t, err)
			d.Config = tc.config
			require.NoError(t, d.Write(0x48, 0x10, tc.write))
			values, err := d.Read(0x48, 0x10, tc.count)
			require.NoError(t, err)
			require.Equal(t, tc.results, values)
			require.NoError(t, bus.Close())
		})
	}
}

func TestI2CErrors(t *testing.T) {
	bus := NewSimI2CBus("i2c0", 0x20)
	d := NewI2C(0, bus)
	err := d.Write(0x20, 0, 1)
	require.Equal(t, &Error{Header: comm.ErrorInterfaceNotActive, Value: 0, Sub: comm.SubNone}, err)

	_, err = d.Configure(comm.SubActive, 1)
	require.NoError(t, err)
	require.Equal(t, I2CSpeeds[0], bus.Speed())

	err = d.Write(0x21, 0, 1)
	require.Equal(t, comm.ErrorPeripheralInterfaceNotReady, AsError(err).Header)

	_, err = d.Read(0x20, 0, MaxI2CReadCount+1)
	require.Equal(t, &Error{Header: comm.ErrorConfigurationOutOfBounds, Value: MaxI2CReadCount + 1, Sub: comm.SubInput}, err)

	require.NoError(t, d.Write(0x20, 5, 0x77))
	require.Equal(t, byte(0x77), bus.Peek(0x20, 5))
	bus.Poke(0x20, 6, 0x88)
	values, err := d.Read(0x20, 5, 2)
	require.NoError(t, err)
	require.Equal(t, []uint16{0x77, 0x88}, values)
}
