package audio

import "sync"

// minRetainBytes is the smallest buffer worth keeping: tiny tail chunks
// churn the pool without saving allocations.
const minRetainBytes = 256

// BufferPool recycles PCM chunk buffers between the network reader and
// the playback worker. Buffers are zeroed on Get so stale samples from
// a previous response can never leak into the output.
type BufferPool struct {
	mu   sync.Mutex
	free [][]byte
	max  int
}

// NewBufferPool returns a pool retaining at most max buffers.
func NewBufferPool(max int) *BufferPool {
	return &BufferPool{max: max}
}

// Get returns a zeroed buffer of exactly size bytes, reusing a pooled
// buffer when one is large enough.
func (p *BufferPool) Get(size int) []byte {
	p.mu.Lock()
	for i, buf := range p.free {
		if cap(buf) >= size {
			p.free = append(p.free[:i], p.free[i+1:]...)
			p.mu.Unlock()
			buf = buf[:size]
			for j := range buf {
				buf[j] = 0
			}
			return buf
		}
	}
	p.mu.Unlock()
	return make([]byte, size)
}

// Put returns a buffer to the pool. Buffers below minRetainBytes are
// dropped, as is anything beyond the pool's capacity.
func (p *BufferPool) Put(buf []byte) {
	if cap(buf) < minRetainBytes {
		return
	}
	p.mu.Lock()
	if len(p.free) < p.max {
		p.free = append(p.free, buf)
	}
	p.mu.Unlock()
}

// Flush discards all pooled buffers. Called between responses so one
// turn's audio never pins memory for the next.
func (p *BufferPool) Flush() {
	p.mu.Lock()
	p.free = nil
	p.mu.Unlock()
}

// Len reports how many buffers are currently pooled.
func (p *BufferPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
