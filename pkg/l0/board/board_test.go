package board

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/aerlink/pkg/l0/comm"
)

func TestOpenSim(t *testing.T) {
	conf := NewConfig()
	conf.HAL = HALSim
	conf.SimI2CAddrs = []uint16{0x21}
	b, err := conf.Open(8)
	require.NoError(t, err)
	defer b.Close()
	require.Equal(t, "sim", b.Link)
	require.Len(t, b.Pins, 8)
	require.Len(t, b.SimPins, 8)
	for n := 0; n < comm.NumI2C; n++ {
		require.NotNil(t, b.I2C[n])
		require.NoError(t, b.I2C[n].Tx(0x21, []byte{1, 5}, nil))
		require.Error(t, b.I2C[n].Tx(0x20, []byte{1}, nil))
	}
	for n := 0; n < comm.NumSPI; n++ {
		require.NotNil(t, b.SPI[n])
	}
}

func TestOpenUnknownHAL(t *testing.T) {
	conf := NewConfig()
	conf.HAL = "arduino"
	_, err := conf.Open(8)
	require.Error(t, err)
}

func TestListFlags(t *testing.T) {
	var names listFlag
	require.NoError(t, names.Set("I2C1, -,I2C3"))
	require.Equal(t, listFlag{"I2C1", "-", "I2C3"}, names)
	require.Equal(t, "I2C1,-,I2C3", names.String())

	var addrs addrsFlag
	require.NoError(t, addrs.Set("0x20,72"))
	require.Equal(t, addrsFlag{0x20, 0x48}, addrs)
	require.Equal(t, "0x20,0x48", addrs.String())
	require.Error(t, addrs.Set("0x20,zz"))
}
