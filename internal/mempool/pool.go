// Package mempool provides size-classed buffer pools for hot paths.
package mempool

import "sync"

const classStep = 1024

// sizeClass rounds n up to a multiple of classStep, with classStep as floor.
func sizeClass(n int) int {
	if n <= classStep {
		return classStep
	}
	return (n + classStep - 1) / classStep * classStep
}

// Pool hands out slices of at least the requested length. Contents of a
// returned slice are not zeroed.
type Pool[T any] struct {
	classes sync.Map // size class -> *sync.Pool
}

func (p *Pool[T]) class(cls int) *sync.Pool {
	if sp, ok := p.classes.Load(cls); ok {
		return sp.(*sync.Pool)
	}
	sp, _ := p.classes.LoadOrStore(cls, &sync.Pool{New: func() any {
		buf := make([]T, cls)
		return &buf
	}})
	return sp.(*sync.Pool)
}

// Get returns a slice of length n.
func (p *Pool[T]) Get(n int) []T {
	if n < 0 {
		n = 0
	}
	cls := sizeClass(n)
	bp := p.class(cls).Get().(*[]T)
	buf := *bp
	if cap(buf) < cls {
		buf = make([]T, cls)
	}
	return buf[:n]
}

// Put returns buf to the pool. Slices whose capacity is not a size class
// are dropped.
func (p *Pool[T]) Put(buf []T) {
	c := cap(buf)
	if c == 0 || sizeClass(c) != c {
		return
	}
	buf = buf[:c]
	p.class(c).Put(&buf)
}

var float32s Pool[float32]

// GetFloat32 returns a pooled []float32 of length n.
func GetFloat32(n int) []float32 { return float32s.Get(n) }

// PutFloat32 returns a buffer from GetFloat32. nil is ignored.
func PutFloat32(buf []float32) { float32s.Put(buf) }
