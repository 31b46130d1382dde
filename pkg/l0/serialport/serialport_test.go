package serialport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseURL(t *testing.T) {
	cases := []struct {
		url  string
		path string
		baud int
	}{
		{"serial:///dev/ttyACM0", "/dev/ttyACM0", DefaultBaudRate},
		{"serial:///dev/ttyUSB1?baud=9600", "/dev/ttyUSB1", 9600},
		{"serial://COM3", "COM3", DefaultBaudRate},
		{"/dev/tty.usbmodem1101", "/dev/tty.usbmodem1101", DefaultBaudRate},
	}
	for _, c := range cases {
		t.Run(c.url, func(t *testing.T) {
			opts, err := ParseURL(c.url)
			require.NoError(t, err)
			require.Equal(t, c.path, opts.Path)
			require.Equal(t, c.baud, opts.BaudRate)
			require.Equal(t, DefaultReadTimeout, opts.ReadTimeout)
		})
	}
}

func TestParseURLErrors(t *testing.T) {
	_, err := ParseURL("serial://")
	require.Equal(t, ErrNoPath, err)
	_, err = ParseURL("tcp://localhost:7420")
	require.Error(t, err)
	_, err = ParseURL("serial:///dev/ttyACM0?baud=fast")
	require.Error(t, err)
}
