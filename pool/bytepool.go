// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

// BytePool hands out buffers of one fixed size. Pointers are pooled so
// Put does not allocate.
type BytePool struct {
	size int
	p    *SyncPool[*[]byte]
}

// NewBytePool creates a pool of size-byte buffers.
func NewBytePool(size int) *BytePool {
	return &BytePool{
		size: size,
		p: NewSyncPool(func() *[]byte {
			b := make([]byte, size)
			return &b
		}),
	}
}

// Size returns the buffer length served by the pool.
func (b *BytePool) Size() int { return b.size }

// GetBuffer returns a buffer of exactly Size bytes. Contents are undefined.
func (b *BytePool) GetBuffer() []byte {
	return (*b.p.Get())[:b.size]
}

// PutBuffer returns buf to the pool. Buffers of a different capacity are
// dropped.
func (b *BytePool) PutBuffer(buf []byte) {
	if cap(buf) != b.size {
		return
	}
	buf = buf[:b.size]
	b.p.Put(&buf)
}
