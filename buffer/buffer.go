package buffer

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrIndexOutOfBounds is returned when a read/write would violate
// 0 <= readerIndex <= writerIndex <= capacity, or when ensureWritable
// cannot grow past maxCapacity.
var ErrIndexOutOfBounds = errors.New("buffer: index out of bounds")

// ErrUseAfterRelease is the (wrapped) panic value raised by any
// operation other than Release on a ByteBuf whose refcount has already
// reached zero.
var ErrUseAfterRelease = errors.New("buffer: use after release")

// storage is the shared, refcounted backing array. Multiple ByteBuf
// "views" (slice/duplicate/retainedDuplicate) point at the same storage
// with independent readerIndex/writerIndex.
type storage struct {
	refCounted
	data []byte
	pool *PooledAllocator
	cls  int // size class index in pool, -1 if unpooled
}

func (s *storage) grow(minCapacity int) {
	if minCapacity <= cap(s.data) {
		s.data = s.data[:minCapacity]
		return
	}
	next := make([]byte, minCapacity, growCapacity(cap(s.data), minCapacity))
	copy(next, s.data)
	s.data = next
}

func growCapacity(cur, need int) int {
	if cur == 0 {
		cur = 64
	}
	for cur < need {
		cur *= 2
	}
	return cur
}

// ByteBuf is a view over a shared, refcounted byte storage: a
// (storage, readerIndex, writerIndex) triple satisfying
// 0 <= readerIndex <= writerIndex <= capacity.
type ByteBuf struct {
	s             *storage
	readerIndex   int
	writerIndex   int
	maxCapacity   int
	released      bool
}

// NewByteBuf wraps an existing slice as an unpooled, unreleasable-by-pool
// ByteBuf with refCount 1. Primarily useful for tests and for wrapping
// data that did not originate from an Allocator.
func NewByteBuf(initial []byte, maxCapacity int) *ByteBuf {
	s := &storage{data: initial, cls: -1}
	s.refCounted = newRefCounted(func() { s.data = nil })
	return &ByteBuf{s: s, writerIndex: len(initial), maxCapacity: maxCapacity}
}

func (b *ByteBuf) checkAlive() {
	if b.released || b.s == nil || b.s.refCount() <= 0 {
		panic(fmt.Errorf("%w", ErrUseAfterRelease))
	}
}

// Capacity returns the current backing capacity.
func (b *ByteBuf) Capacity() int {
	b.checkAlive()
	return len(b.s.data)
}

// MaxCapacity returns the ceiling EnsureWritable will grow to.
func (b *ByteBuf) MaxCapacity() int { return b.maxCapacity }

// ReaderIndex returns the current read cursor.
func (b *ByteBuf) ReaderIndex() int { b.checkAlive(); return b.readerIndex }

// WriterIndex returns the current write cursor.
func (b *ByteBuf) WriterIndex() int { b.checkAlive(); return b.writerIndex }

// ReadableBytes returns writerIndex - readerIndex.
func (b *ByteBuf) ReadableBytes() int { b.checkAlive(); return b.writerIndex - b.readerIndex }

// WritableBytes returns capacity - writerIndex.
func (b *ByteBuf) WritableBytes() int { b.checkAlive(); return len(b.s.data) - b.writerIndex }

// Bytes returns a zero-copy window over the readable region. Callers must
// not retain this slice beyond the ByteBuf's lifetime or across a Release.
func (b *ByteBuf) Bytes() []byte {
	b.checkAlive()
	return b.s.data[b.readerIndex:b.writerIndex]
}

// SetReaderIndex repositions the read cursor, validating the invariant.
func (b *ByteBuf) SetReaderIndex(i int) error {
	b.checkAlive()
	if i < 0 || i > b.writerIndex {
		return ErrIndexOutOfBounds
	}
	b.readerIndex = i
	return nil
}

// SetWriterIndex repositions the write cursor, validating the invariant.
func (b *ByteBuf) SetWriterIndex(i int) error {
	b.checkAlive()
	if i < b.readerIndex || i > len(b.s.data) {
		return ErrIndexOutOfBounds
	}
	b.writerIndex = i
	return nil
}

// EnsureWritable grows the backing storage so at least n more bytes can be
// written, up to maxCapacity. Returns ErrIndexOutOfBounds if that would
// exceed maxCapacity.
func (b *ByteBuf) EnsureWritable(n int) error {
	b.checkAlive()
	need := b.writerIndex + n
	if need <= len(b.s.data) {
		return nil
	}
	if b.maxCapacity > 0 && need > b.maxCapacity {
		return ErrIndexOutOfBounds
	}
	b.s.grow(need)
	return nil
}

// WriteBytes appends src, growing as needed.
func (b *ByteBuf) WriteBytes(src []byte) error {
	if err := b.EnsureWritable(len(src)); err != nil {
		return err
	}
	copy(b.s.data[b.writerIndex:], src)
	b.writerIndex += len(src)
	return nil
}

// ReadBytes copies ReadableBytes (or len(dst), whichever is smaller) into
// dst, advancing readerIndex, and returns the number of bytes copied.
func (b *ByteBuf) ReadBytes(dst []byte) int {
	b.checkAlive()
	n := copy(dst, b.s.data[b.readerIndex:b.writerIndex])
	b.readerIndex += n
	return n
}

// WriteUint16BE/LE, WriteUint32BE/LE, WriteUint64BE/LE and their Read
// counterparts are the fixed-width integer accessors required by codecs
// implementing length-prefixed framing.

func (b *ByteBuf) WriteUint16BE(v uint16) error { return b.writeFixed(2, func(p []byte) { binary.BigEndian.PutUint16(p, v) }) }
func (b *ByteBuf) WriteUint16LE(v uint16) error { return b.writeFixed(2, func(p []byte) { binary.LittleEndian.PutUint16(p, v) }) }
func (b *ByteBuf) WriteUint32BE(v uint32) error { return b.writeFixed(4, func(p []byte) { binary.BigEndian.PutUint32(p, v) }) }
func (b *ByteBuf) WriteUint32LE(v uint32) error { return b.writeFixed(4, func(p []byte) { binary.LittleEndian.PutUint32(p, v) }) }
func (b *ByteBuf) WriteUint64BE(v uint64) error { return b.writeFixed(8, func(p []byte) { binary.BigEndian.PutUint64(p, v) }) }
func (b *ByteBuf) WriteUint64LE(v uint64) error { return b.writeFixed(8, func(p []byte) { binary.LittleEndian.PutUint64(p, v) }) }

func (b *ByteBuf) writeFixed(n int, put func([]byte)) error {
	if err := b.EnsureWritable(n); err != nil {
		return err
	}
	put(b.s.data[b.writerIndex : b.writerIndex+n])
	b.writerIndex += n
	return nil
}

func (b *ByteBuf) ReadUint16BE() (uint16, error) {
	p, err := b.readFixed(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(p), nil
}

func (b *ByteBuf) ReadUint16LE() (uint16, error) {
	p, err := b.readFixed(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(p), nil
}

func (b *ByteBuf) ReadUint32BE() (uint32, error) {
	p, err := b.readFixed(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(p), nil
}

func (b *ByteBuf) ReadUint32LE() (uint32, error) {
	p, err := b.readFixed(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(p), nil
}

func (b *ByteBuf) ReadUint64BE() (uint64, error) {
	p, err := b.readFixed(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(p), nil
}

func (b *ByteBuf) ReadUint64LE() (uint64, error) {
	p, err := b.readFixed(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(p), nil
}

func (b *ByteBuf) readFixed(n int) ([]byte, error) {
	b.checkAlive()
	if b.writerIndex-b.readerIndex < n {
		return nil, ErrIndexOutOfBounds
	}
	p := b.s.data[b.readerIndex : b.readerIndex+n]
	b.readerIndex += n
	return p, nil
}

// view creates a new ByteBuf sharing storage, with independent indices.
func (b *ByteBuf) view(reader, writer int, retain bool) *ByteBuf {
	b.checkAlive()
	if retain {
		b.s.retain(1)
	}
	return &ByteBuf{s: b.s, readerIndex: reader, writerIndex: writer, maxCapacity: b.maxCapacity}
}

// Slice returns a view over [readerIndex+offset, readerIndex+offset+length)
// sharing storage without affecting this buffer's indices or refcount.
func (b *ByteBuf) Slice(offset, length int) *ByteBuf {
	start := b.readerIndex + offset
	return b.view(start, start+length, false)
}

// Duplicate returns a view over the same readable region, sharing storage
// and refcount accounting, without incrementing the refcount.
func (b *ByteBuf) Duplicate() *ByteBuf {
	return b.view(b.readerIndex, b.writerIndex, false)
}

// RetainedDuplicate is Duplicate plus an explicit Retain, for handing the
// duplicate to a separate owner.
func (b *ByteBuf) RetainedDuplicate() *ByteBuf {
	return b.view(b.readerIndex, b.writerIndex, true)
}

// RetainedSlice is Slice plus an explicit Retain.
func (b *ByteBuf) RetainedSlice(offset, length int) *ByteBuf {
	start := b.readerIndex + offset
	return b.view(start, start+length, true)
}

// Retain increments the shared refcount and returns the receiver, so
// Retain(n) can be chained the way Netty-style APIs do.
func (b *ByteBuf) Retain(n int32) *ByteBuf {
	b.checkAlive()
	b.s.retain(n)
	return b
}

// Release decrements the shared refcount, returning the storage to its
// pool (if any) when it reaches zero. Returns true if this call released
// the underlying storage.
func (b *ByteBuf) Release(n int32) bool {
	if b.released || b.s == nil || b.s.refCount() <= 0 {
		panic(&ErrIllegalReferenceCount{Count: b.RefCount(), Delta: -n})
	}
	released := b.s.release(n)
	b.released = true
	return released
}

// RefCount returns the current shared refcount, or 0 if released.
func (b *ByteBuf) RefCount() int32 {
	if b.s == nil {
		return 0
	}
	return b.s.refCount()
}
