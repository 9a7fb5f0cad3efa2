package framepool

import "testing"

func TestAcquireSizing(t *testing.T) {
	p := New()
	b := p.Acquire(4, 2)
	if len(b.Pix) != 4*2*4 {
		t.Fatalf("got len %d want %d", len(b.Pix), 4*2*4)
	}
	p.Release(b)

	b2 := p.Acquire(4, 2)
	if b2 != b {
		t.Fatalf("expected matching-dimension Acquire to recycle the released buffer")
	}
}

func TestAcquireRecyclesOnDimensionChange(t *testing.T) {
	p := New()
	b := p.Acquire(4, 2)
	p.Release(b)

	b2 := p.Acquire(8, 8)
	if b2 == b {
		t.Fatalf("expected a new buffer for a different size")
	}
	if len(b2.Pix) != 8*8*4 {
		t.Fatalf("got len %d want %d", len(b2.Pix), 8*8*4)
	}
}

func TestPublishTakeDisplaces(t *testing.T) {
	p := New()
	a := p.Acquire(2, 2)
	b := p.Acquire(2, 2)

	if displaced := p.Publish(a); displaced != nil {
		t.Fatalf("first publish should not displace anything, got %v", displaced)
	}
	displaced := p.Publish(b)
	if displaced != a {
		t.Fatalf("second publish should displace the first buffer")
	}

	taken := p.Take()
	if taken != b {
		t.Fatalf("Take should return the most recently published buffer")
	}
	if again := p.Take(); again != nil {
		t.Fatalf("Take after drain should return nil, got %v", again)
	}
}

// TestOwnershipNeverDuplicated is the frame-pool-safety law of spec §8: at
// any instant, each buffer is held by at most one of {free list, pending,
// caller}.
func TestOwnershipNeverDuplicated(t *testing.T) {
	p := New()
	seen := map[*Buffer]int{}

	a := p.Acquire(2, 2)
	seen[a]++
	pend := p.Publish(a)
	if pend != nil {
		seen[pend]--
	}

	b := p.Acquire(2, 2)
	seen[b]++
	displaced := p.Publish(b)
	if displaced != nil {
		p.Release(displaced)
		seen[displaced]--
	}

	taken := p.Take()
	if taken != nil {
		seen[taken]--
		p.Release(taken)
	}

	for buf, count := range seen {
		if count > 1 {
			t.Fatalf("buffer %v held %d times concurrently", buf, count)
		}
	}
}
