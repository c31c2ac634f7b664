package mempool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeClass(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected int
	}{
		{name: "small size gets minimum", input: 1, expected: 1024},
		{name: "exactly 1024", input: 1024, expected: 1024},
		{name: "just over 1024", input: 1025, expected: 2048},
		{name: "large size", input: 3 * 640 * 640, expected: 1228800},
		{name: "zero size", input: 0, expected: 1024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sizeClass(tt.input))
		})
	}
}

func TestGetFloat32(t *testing.T) {
	buf := GetFloat32(1500)
	require.Len(t, buf, 1500)
	assert.GreaterOrEqual(t, cap(buf), 2048)
	PutFloat32(buf)

	again := GetFloat32(2000)
	assert.Len(t, again, 2000)
	PutFloat32(again)

	PutFloat32(nil)
	assert.Empty(t, GetFloat32(-5))
}

func TestPutForeignSliceIgnored(t *testing.T) {
	var p Pool[byte]
	p.Put(make([]byte, 10))
	assert.Len(t, p.Get(10), 10)
}

func TestPoolConcurrent(t *testing.T) {
	var p Pool[float32]
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b := p.Get(n*100 + j)
				for k := range b {
					b[k] = 1
				}
				p.Put(b)
			}
		}(i)
	}
	wg.Wait()
}
