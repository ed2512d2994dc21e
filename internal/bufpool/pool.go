// Package bufpool provides size-classed byte slice pooling for chunk payload
// assembly. The classes track the protocol's chunk size spectrum: the 128-byte
// initial chunk size, the 4096-byte negotiated default, and the 65536-byte
// upper bound, so the dechunker's scratch buffer always lands in a class.
package bufpool

import "sync"

// Size classes, ordered ascending. Requests above the largest class allocate
// fresh slices without pooling (jumbo payloads are assembled once and kept).
const (
	classInitialChunk    = 128
	classNegotiatedChunk = 4096
	classMaxChunk        = 65536
)

var sizeClasses = [...]int{classInitialChunk, classNegotiatedChunk, classMaxChunk}

// Pool hands out byte slices whose capacity is the smallest class that fits.
type Pool struct {
	pools [len(sizeClasses)]*sync.Pool
}

var defaultPool = New()

// Get acquires a buffer from the package-level default pool.
func Get(size int) []byte { return defaultPool.Get(size) }

// Put releases a buffer back to the package-level default pool.
func Put(buf []byte) { defaultPool.Put(buf) }

// New creates a buffer pool over the chunk size classes.
func New() *Pool {
	p := &Pool{}
	for i, classSize := range sizeClasses {
		size := classSize
		p.pools[i] = &sync.Pool{
			New: func() any { return make([]byte, size) },
		}
	}
	return p
}

// classFor returns the index of the smallest class holding size, or -1 when
// the request exceeds every class (or is non-positive).
func classFor(size int) int {
	if size <= 0 {
		return -1
	}
	for i, classSize := range sizeClasses {
		if size <= classSize {
			return i
		}
	}
	return -1
}

// Get returns a slice of length size whose capacity is the matching size
// class. Requests larger than the maximum class allocate a fresh slice
// without pooling; non-positive sizes return nil.
func (p *Pool) Get(size int) []byte {
	if p == nil || size <= 0 {
		return nil
	}
	i := classFor(size)
	if i < 0 {
		return make([]byte, size)
	}
	return p.pools[i].Get().([]byte)[:size]
}

// Put returns buf to its class when the capacity matches one exactly; other
// buffers are discarded. Contents are zeroed before reuse so chunk payload
// bytes never leak across connections.
func (p *Pool) Put(buf []byte) {
	if p == nil || buf == nil {
		return
	}
	for i, classSize := range sizeClasses {
		if cap(buf) == classSize {
			full := buf[:classSize]
			clear(full)
			p.pools[i].Put(full)
			return
		}
	}
}
