// Package ring implements the fixed-depth frequency-domain ring buffer
// shared between the master filter (one writer) and every channel's
// downconverter (many readers).
package ring

import (
	"sync"
)

// Block is one published N-point spectrum, tagged with the
// monotonically increasing block number it was produced for.
type Block struct {
	Num  uint64
	Bins []complex128
}

// Ring is a depth-ND circular array of frequency-domain blocks. Slot k%ND is
// stable and safe to read until the writer next writes to it (ND blocks
// later); a reader that lags by ND-1 blocks or more must catch up to the
// current block rather than block.
//
// This implementation favors the design note's suggestion over the
// original's tolerated torn reads: Read takes the package mutex, copies the
// slot's bins and number together, and the caller compares the returned
// number against what it expected. A torn read is therefore impossible; the
// cost is a copy and a short lock per channel per block, acceptable at the
// channel countstargets (low thousands).
type Ring struct {
	mu     sync.Mutex
	cond   *sync.Cond
	slots  []Block
	n      int // FFT size, bins per block
	depth  int
	latest uint64
	have   bool
	closed bool
}

// New creates a ring of the given depth (ND) holding n-bin blocks.
func New(depth, n int) *Ring {
	r := &Ring{
		slots: make([]Block, depth),
		n:     n,
		depth: depth,
	}
	for i := range r.slots {
		r.slots[i].Bins = make([]complex128, n)
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Depth returns ND.
func (r *Ring) Depth() int { return r.depth }

// N returns the FFT size (bins per block).
func (r *Ring) N() int { return r.n }

// Publish stores bins as block number `num`, overwriting slot
// num%ND, and wakes every blocked reader. The caller retains no
// reference to bins after calling Publish; Ring copies it internally.
func (r *Ring) Publish(num uint64, bins []complex128) {
	r.mu.Lock()
	slot := &r.slots[num%uint64(r.depth)]
	slot.Num = num
	copy(slot.Bins, bins)
	r.latest = num
	r.have = true
	r.mu.Unlock()
	r.cond.Broadcast()
}

// Latest returns the most recently published block number and whether
// any block has been published yet.
func (r *Ring) Latest() (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest, r.have
}

// Read copies out the block tagged `want`, if it is still the slot's
// current content (it may have been overwritten if the caller lagged
// by ND blocks or more, per the ring's invariant). ok is false when
// the slot no longer holds block `want`.
func (r *Ring) Read(want uint64, dst []complex128) (ok bool) {
	r.mu.Lock()
	slot := &r.slots[want%uint64(r.depth)]
	if slot.Num != want {
		r.mu.Unlock()
		return false
	}
	copy(dst, slot.Bins)
	r.mu.Unlock()
	return true
}

// WaitFor blocks until block `want` has been published (Latest() >=
// want) or the ring is closed. It returns the actual latest block
// number (which may be >= want if the caller has fallen behind) and
// whether the ring was closed out from under the wait, so a channel
// demod loop can observe process shutdown instead of blocking
// forever.
func (r *Ring) WaitFor(want uint64) (blockNum uint64, closed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for !r.closed && (!r.have || r.latest < want) {
		r.cond.Wait()
	}
	return r.latest, r.closed
}

// Close wakes every waiter permanently; used on process shutdown.
func (r *Ring) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cond.Broadcast()
}
