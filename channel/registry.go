package channel

import (
	"fmt"
	"math/rand"
	"sync"
)

// DataKey identifies a channel by the four-tuple incoming RTP data is
// matched against.
type DataKey struct {
	SenderIP   string
	SenderPort int
	PT         uint8
	SSRC       uint32
}

// Registry is the fixed-capacity channel table: a slot array plus one mutex
// serializing structural mutation.
type Registry struct {
	mu       sync.Mutex
	slots    []*Channel
	byData   map[DataKey]*Channel
	active   int
	maxSlots int

	rng *rand.Rand
}

// NewRegistry returns an empty registry with the given capacity.
func NewRegistry(capacity int) *Registry {
	return &Registry{
		slots:    make([]*Channel, capacity),
		byData:   make(map[DataKey]*Channel),
		maxSlots: capacity,
		rng:      rand.New(rand.NewSource(1)),
	}
}

// Lookup returns the channel with the given SSRC, if any.
func (r *Registry) Lookup(ssrc uint32) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.slots {
		if c != nil && c.InUse && c.SSRC == ssrc {
			return c, true
		}
	}
	return nil, false
}

// LookupData resolves a channel by the data-plane four-tuple.
func (r *Registry) LookupData(key DataKey) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byData[key]
	return c, ok
}

// All returns a snapshot slice of every in-use channel, for status
// broadcast and listing (mcpapi.list_channels, wsadmin feed).
func (r *Registry) All() []*Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Channel, 0, r.active)
	for _, c := range r.slots {
		if c != nil && c.InUse {
			out = append(out, c)
		}
	}
	return out
}

// LookupOrCreate resolves ssrc to an existing channel, or creates one from
// the supplied template if none exists. ssrc 0xFFFFFFFF is reserved and
// rejected. ssrc 0 means "assign one": a random SSRC is drawn and, on a
// collision, retried as ssrc+1 up to 100 times. An explicitly requested
// ssrc that already exists returns the existing channel.
func (r *Registry) LookupOrCreate(ssrc uint32, newChannel func(assigned uint32) *Channel) (ch *Channel, created bool, err error) {
	if ssrc == 0xFFFFFFFF {
		return nil, false, fmt.Errorf("channel: ssrc 0xFFFFFFFF is reserved for broadcast")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if ssrc != 0 {
		for _, c := range r.slots {
			if c != nil && c.InUse && c.SSRC == ssrc {
				return c, false, nil
			}
		}
	}

	assign := ssrc
	if assign == 0 {
		assign = r.rng.Uint32()
		if assign == 0 || assign == 0xFFFFFFFF {
			assign = 1
		}
	}

	slot := -1
	for i, c := range r.slots {
		if c == nil || !c.InUse {
			slot = i
			break
		}
	}
	if slot == -1 {
		return nil, false, fmt.Errorf("channel: registry full (capacity %d)", r.maxSlots)
	}

	const maxRetries = 100
	for attempt := 0; attempt < maxRetries; attempt++ {
		collision := false
		for _, c := range r.slots {
			if c != nil && c.InUse && c.SSRC == assign {
				collision = true
				break
			}
		}
		if !collision {
			break
		}
		assign++
		if assign == 0 || assign == 0xFFFFFFFF {
			assign = 1
		}
		if attempt == maxRetries-1 {
			return nil, false, fmt.Errorf("channel: could not allocate a unique ssrc after %d attempts", maxRetries)
		}
	}

	c := newChannel(assign)
	c.SSRC = assign
	c.InUse = true
	r.slots[slot] = c
	r.active++
	return c, true, nil
}

// BindData registers the data-plane four-tuple for an existing
// channel (called once its output socket and encoding are known).
func (r *Registry) BindData(key DataKey, c *Channel) {
	r.mu.Lock()
	r.byData[key] = c
	r.mu.Unlock()
}

// Close tears a channel down: releases demod/output resources and clears its
// slot under the registry mutex.
func (r *Registry) Close(c *Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !c.InUse {
		return nil
	}
	if err := c.close(); err != nil {
		return err
	}
	for i, s := range r.slots {
		if s == c {
			r.slots[i] = nil
		}
	}
	for k, v := range r.byData {
		if v == c {
			delete(r.byData, k)
		}
	}
	r.active--
	return nil
}

// ActiveCount returns the number of in-use channels.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Capacity returns the registry's fixed slot count.
func (r *Registry) Capacity() int { return r.maxSlots }
