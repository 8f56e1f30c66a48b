package resource

import "sync"

// BufferPool hands out fixed-size byte buffers for streaming reads,
// recycling them through a sync.Pool instead of allocating fresh slices
// per entry. Go has no destructor to clear a buffer automatically on scope
// exit (unlike the reference implementation's Drop-based ManagedBuffer),
// so callers must call Put explicitly, typically via defer.
type BufferPool struct {
	size int
	pool sync.Pool
}

// NewBufferPool returns a pool of buffers of the given size.
func NewBufferPool(size int) *BufferPool {
	bp := &BufferPool{size: size}
	bp.pool.New = func() any {
		return make([]byte, size)
	}
	return bp
}

// Get returns a buffer of the pool's configured size, zeroed if it was
// reused from a prior Put.
func (p *BufferPool) Get() []byte {
	buf := p.pool.Get().([]byte)
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

// Put returns buf to the pool for reuse. buf must have been obtained from
// Get on the same pool and not retained afterward.
func (p *BufferPool) Put(buf []byte) {
	if len(buf) != p.size {
		return
	}
	p.pool.Put(buf) //nolint:staticcheck // buf is a plain []byte, not a pointer; fine for sync.Pool
}
