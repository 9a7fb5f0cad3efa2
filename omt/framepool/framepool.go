/*
NAME
  framepool.go

DESCRIPTION
  The receiver's triple-buffered RGBA frame delivery pool (§3, §4.8):
  a small freelist of dimension-matched buffers plus a single-slot
  "pending" cell, decoupling decode from display the way
  github.com/ausocean/utils/pool.Buffer decouples a sender's producer
  from its socket-writer goroutine, but shaped for fixed-size buffer
  reuse (acquire/publish/take/release) rather than a byte-stream ring.
*/

package framepool

import "sync"

// Buffer is one pool-owned RGBA pixel buffer.
type Buffer struct {
	Pix           []byte
	Width, Height int
}

func newBuffer(width, height int) *Buffer {
	return &Buffer{Pix: make([]byte, width*height*4), Width: width, Height: height}
}

func (b *Buffer) matches(width, height int) bool { return b.Width == width && b.Height == height }

// Pool is the receiver frame pool of §4.8. Steady state holds at most
// three live buffers: one with the producer (decode), one pending, and
// one with the consumer (render) — §3's "Receiver frame pool" invariant.
type Pool struct {
	mu      sync.Mutex
	free    []*Buffer
	pending *Buffer
}

// New returns an empty Pool. Buffers are allocated lazily on first
// Acquire (§3: "created lazily").
func New() *Pool { return &Pool{} }

// Acquire returns a free buffer matching (width, height) if there is one.
// Otherwise it discards the oldest free entry (whose dimensions differ),
// if any, and allocates a new buffer.
func (p *Pool) Acquire(width, height int) *Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, b := range p.free {
		if b.matches(width, height) {
			p.free = append(p.free[:i], p.free[i+1:]...)
			return b
		}
	}
	if len(p.free) > 0 {
		// Drop the oldest mismatched entry rather than growing the pool
		// further on a dimension change (§3: "recycled on dimension
		// change").
		p.free = p.free[1:]
	}
	return newBuffer(width, height)
}

// Publish atomically stores buf as the pending buffer, returning any
// buffer it displaced so the caller can Release it back to the pool.
func (p *Pool) Publish(buf *Buffer) (displaced *Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	displaced, p.pending = p.pending, buf
	return displaced
}

// Take atomically clears and returns the pending buffer, or nil if none
// is pending.
func (p *Pool) Take() *Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.pending
	p.pending = nil
	return b
}

// Release returns buf to the free list for reuse by a future Acquire.
func (p *Pool) Release(buf *Buffer) {
	if buf == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, buf)
}
