package buffer

import "sync"

// Allocator creates ByteBuf instances. Pooled allocators must return a
// buffer whose storage is not observable by any prior holder: pool
// buckets zero a recycled backing array when its buffer is released,
// before returning it to the pool.
type Allocator interface {
	// Allocate returns a ByteBuf with refCount 1 and at least minCapacity
	// writable bytes, growable up to maxCapacity (0 means unbounded).
	Allocate(minCapacity, maxCapacity int) *ByteBuf
}

// UnpooledAllocator allocates directly from the Go heap. It is the
// simplest, always-correct Allocator and the default for short-lived
// buffers (e.g. the embedded channel, tests).
type UnpooledAllocator struct{}

func (UnpooledAllocator) Allocate(minCapacity, maxCapacity int) *ByteBuf {
	buf := NewByteBuf(make([]byte, minCapacity), maxCapacity)
	buf.writerIndex = 0
	return buf
}

// sizeClasses mirrors the teacher's chunk-recycling idiom
// (eventloop.ChunkedIngress's 128-entry chunkPool): fixed power-of-two
// buckets, each backed by its own sync.Pool, amortizing allocation for
// the steady-state read/write sizes a transport sees.
var sizeClasses = [...]int{64, 128, 256, 512, 1024, 2048, 4096, 8192, 16384, 32768, 65536}

// PooledAllocator recycles backing arrays through per-size-class
// sync.Pool buckets. Buffers larger than the largest size class fall
// back to a direct allocation (the "large object path").
type PooledAllocator struct {
	pools [len(sizeClasses)]sync.Pool
}

// NewPooledAllocator constructs a ready-to-use pooled allocator.
func NewPooledAllocator() *PooledAllocator {
	p := &PooledAllocator{}
	for i := range p.pools {
		cls := sizeClasses[i]
		p.pools[i].New = func() any {
			return make([]byte, 0, cls)
		}
	}
	return p
}

func classFor(n int) int {
	for i, cls := range sizeClasses {
		if n <= cls {
			return i
		}
	}
	return -1
}

func (p *PooledAllocator) Allocate(minCapacity, maxCapacity int) *ByteBuf {
	cls := classFor(minCapacity)

	var data []byte
	if cls < 0 {
		// Large object path: no pooling, direct allocation.
		data = make([]byte, minCapacity)
	} else {
		data = p.pools[cls].Get().([]byte)
		if cap(data) < minCapacity {
			data = make([]byte, minCapacity)
		}
		data = data[:minCapacity]
	}

	s := &storage{data: data, pool: p, cls: cls}
	s.refCounted = newRefCounted(func() {
		if s.cls >= 0 {
			// Zero before returning to the pool so a stale holder that
			// raced a Release never observes another tenant's bytes.
			recycled := s.data[:cap(s.data)]
			for i := range recycled {
				recycled[i] = 0
			}
			p.pools[s.cls].Put(recycled[:0])
		}
		s.data = nil
	})
	return &ByteBuf{s: s, maxCapacity: maxCapacity}
}
