package ring

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCapacity(t *testing.T) {
	for _, capacity := range []int{0, 1, 3, 12} {
		t.Run(fmt.Sprintf("cap %d", capacity), func(t *testing.T) {
			require.Panics(t, func() { New(capacity) })
		})
	}
	require.Equal(t, 16, New(16).Cap())
}

func TestFIFOOrder(t *testing.T) {
	testCases := []struct {
		name   string
		rounds [][]byte
	}{
		{"single", [][]byte{{1}}},
		{"fill", [][]byte{{1, 2, 3, 4, 5, 6, 7, 8}}},
		{"wrap", [][]byte{{1, 2, 3, 4, 5}, {6, 7, 8, 9, 10, 11}, {12, 13, 14}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := New(8)
			for _, in := range tc.rounds {
				for _, c := range in {
					require.NoError(t, b.Push(c))
				}
				out := make([]byte, 0, len(in))
				for range in {
					c, err := b.Pop()
					require.NoError(t, err)
					out = append(out, c)
				}
				require.Equal(t, in, out)
			}
			_, err := b.Pop()
			require.Equal(t, ErrEmpty, err)
		})
	}
}

func TestFreeSpots(t *testing.T) {
	b := New(4)
	require.Equal(t, 4, b.FreeSpots())
	for i := 0; i < 4; i++ {
		before := b.FreeSpots()
		require.NoError(t, b.Push(byte(i)))
		require.Equal(t, before-1, b.FreeSpots())
	}
	require.Equal(t, 0, b.FreeSpots())

	require.Equal(t, ErrFull, b.Push(0xff))
	require.Equal(t, 0, b.FreeSpots())
	require.Equal(t, uint32(1), b.Overflows())

	for i := 0; i < 4; i++ {
		before := b.FreeSpots()
		c, err := b.Pop()
		require.NoError(t, err)
		require.Equal(t, byte(i), c)
		require.Equal(t, before+1, b.FreeSpots())
	}
	require.Equal(t, uint32(1), b.TakeOverflows())
	require.Zero(t, b.Overflows())
}

func TestWriteAllOrNothing(t *testing.T) {
	b := New(8)
	n, err := b.Write([]byte{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	require.Equal(t, 6, n)

	n, err = b.Write([]byte{7, 8, 9})
	require.Equal(t, ErrFull, err)
	require.Zero(t, n)
	require.Equal(t, 6, b.Len())

	dst := make([]byte, 4)
	require.Equal(t, 4, b.ReadInto(dst))
	require.Equal(t, []byte{1, 2, 3, 4}, dst)

	n, err = b.Write([]byte{7, 8, 9, 10, 11, 12})
	require.NoError(t, err)
	require.Equal(t, 6, n)

	dst = make([]byte, 16)
	require.Equal(t, 8, b.ReadInto(dst))
	require.Equal(t, []byte{5, 6, 7, 8, 9, 10, 11, 12}, dst[:8])
	require.Zero(t, b.ReadInto(dst))
}

func TestDiscard(t *testing.T) {
	b := New(4)
	require.NoError(t, b.Push(1))
	require.NoError(t, b.Push(2))
	require.Equal(t, 2, b.Discard())
	require.Equal(t, 4, b.FreeSpots())
	_, err := b.Pop()
	require.Equal(t, ErrEmpty, err)
}

func TestCorruptedCursors(t *testing.T) {
	b := New(4)
	b.wr.Store(9)
	require.PanicsWithValue(t, ErrCorrupted, func() { b.Len() })
	require.PanicsWithValue(t, ErrCorrupted, func() { b.Push(1) })
}

func TestConcurrentProducerConsumer(t *testing.T) {
	const total = 10000
	b := New(64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; {
			if b.Push(byte(i)) == nil {
				i++
			}
		}
	}()
	for i := 0; i < total; {
		c, err := b.Pop()
		if err != nil {
			continue
		}
		require.Equal(t, byte(i), c)
		i++
	}
	wg.Wait()
}
