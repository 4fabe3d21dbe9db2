package deeprl

import (
	"sync"
)

var (
	backingMu   sync.Mutex
	backingPool = make(map[int]*sync.Pool)
)

func poolFor(size int) *sync.Pool {
	backingMu.Lock()
	defer backingMu.Unlock()
	p, ok := backingPool[size]
	if !ok {
		p = &sync.Pool{
			New: func() interface{} { return make([]float32, size) },
		}
		backingPool[size] = p
	}
	return p
}

// borrowBacking returns a zeroed []float32 of length size.
func borrowBacking(size int) []float32 {
	retVal := poolFor(size).Get().([]float32)
	for i := range retVal {
		retVal[i] = 0
	}
	return retVal
}

// returnBacking makes a backing borrowed with borrowBacking available again.
// The caller must not use it afterwards.
func returnBacking(a []float32) {
	if cap(a) == 0 {
		return
	}
	poolFor(len(a)).Put(a[:len(a):len(a)])
}
