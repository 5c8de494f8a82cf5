package ratelimit

import "sync/atomic"

// bucket serializes requests to one upstream rate-limit partition. gate is
// a 1-buffered channel primed with a single token: acquiring means
// receiving that token, releasing means sending it back. This guarantees
// strictly one request in flight per bucket without requiring FIFO
// ordering among waiters.
type bucket struct {
	gate          chan struct{}
	nextAllowedMs atomic.Int64
}

func newBucket() *bucket {
	b := &bucket{gate: make(chan struct{}, 1)}
	b.gate <- struct{}{}
	return b
}

func (b *bucket) acquire() {
	<-b.gate
}

func (b *bucket) release() {
	b.gate <- struct{}{}
}

// bumpNextAllowed raises nextAllowedMs to at least candidate, never lowers
// it. Safe for concurrent callers.
func (b *bucket) bumpNextAllowed(candidate int64) {
	for {
		current := b.nextAllowedMs.Load()
		if candidate <= current {
			return
		}
		if b.nextAllowedMs.CompareAndSwap(current, candidate) {
			return
		}
	}
}
