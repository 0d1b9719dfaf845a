package ringbuf

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingFIFO(t *testing.T) {
	r := New(8, nil)
	require.Equal(t, 7, r.Cap())
	require.Equal(t, 3, r.Write([]byte("abc")))
	assert.Equal(t, 3, r.Len())

	for _, want := range []byte("abc") {
		b, ok := r.ReadByte()
		require.True(t, ok)
		assert.Equal(t, want, b)
	}
	_, ok := r.ReadByte()
	assert.False(t, ok)
	assert.Zero(t, r.Len())
}

func TestRingWrapsAround(t *testing.T) {
	r := New(4, nil)
	var got []byte
	for i := 0; i < 5; i++ {
		require.Equal(t, 2, r.Write([]byte{byte('a' + 2*i), byte('b' + 2*i)}))
		for {
			b, ok := r.ReadByte()
			if !ok {
				break
			}
			got = append(got, b)
		}
	}
	assert.Equal(t, "abcdefghij", string(got))
}

func TestRingOverflowDropsNewest(t *testing.T) {
	var dropped []byte
	r := New(4, func(b byte) { dropped = append(dropped, b) })

	assert.Equal(t, 3, r.Write([]byte("hello")))
	assert.Equal(t, "lo", string(dropped))
	assert.Equal(t, 3, r.Len())

	b, _ := r.ReadByte()
	assert.Equal(t, byte('h'), b)
	assert.Equal(t, 1, r.Write([]byte("!")))
}

func TestRingProducerConsumer(t *testing.T) {
	r := New(16, nil)
	const total = 10000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; {
			if r.Write([]byte{byte(i)}) == 0 {
				runtime.Gosched()
				continue
			}
			i++
		}
	}()

	for i := 0; i < total; {
		b, ok := r.ReadByte()
		if !ok {
			runtime.Gosched()
			continue
		}
		require.Equal(t, byte(i), b)
		i++
	}
	wg.Wait()
}
