package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupOrCreateAssignsAndFinds(t *testing.T) {
	reg := NewRegistry(4)

	c, created, err := reg.LookupOrCreate(0, func(assigned uint32) *Channel {
		return &Channel{PresetName: "usb"}
	})
	require.NoError(t, err)
	require.True(t, created)
	require.NotZero(t, c.SSRC)

	found, ok := reg.Lookup(c.SSRC)
	require.True(t, ok)
	assert.Same(t, c, found)

	again, created2, err := reg.LookupOrCreate(c.SSRC, func(assigned uint32) *Channel {
		t.Fatal("should not create a second channel for an existing ssrc")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Same(t, c, again)
}

func TestLookupOrCreateRejectsBroadcastSSRC(t *testing.T) {
	reg := NewRegistry(4)
	_, _, err := reg.LookupOrCreate(0xFFFFFFFF, func(uint32) *Channel { return &Channel{} })
	require.Error(t, err)
}

func TestRegistryCapacityExhausted(t *testing.T) {
	reg := NewRegistry(2)
	for i := 0; i < 2; i++ {
		_, _, err := reg.LookupOrCreate(uint32(i+1), func(assigned uint32) *Channel {
			return &Channel{}
		})
		require.NoError(t, err)
	}
	_, _, err := reg.LookupOrCreate(100, func(assigned uint32) *Channel { return &Channel{} })
	require.Error(t, err)
}

func TestCloseFreesSlot(t *testing.T) {
	reg := NewRegistry(1)
	c, _, err := reg.LookupOrCreate(7, func(assigned uint32) *Channel { return &Channel{} })
	require.NoError(t, err)
	require.Equal(t, 1, reg.ActiveCount())

	require.NoError(t, reg.Close(c))
	assert.Equal(t, 0, reg.ActiveCount())
	_, ok := reg.Lookup(7)
	assert.False(t, ok)

	// the freed slot can be reused
	_, created, err := reg.LookupOrCreate(8, func(assigned uint32) *Channel { return &Channel{} })
	require.NoError(t, err)
	assert.True(t, created)
}

func TestIdleLifecycle(t *testing.T) {
	c := &Channel{Tuning: Tuning{RFFrequency: 0}, IdleLifetime: 2}
	assert.False(t, c.TickIdle())
	assert.True(t, c.TickIdle())

	c2 := &Channel{Tuning: Tuning{RFFrequency: 14074000}, IdleLifetime: 0}
	assert.False(t, c2.TickIdle())
}

func TestStatusMailboxOverwrites(t *testing.T) {
	var mb StatusMailbox
	mb.Post([]byte{1})
	mb.Post([]byte{2})
	got, ok := mb.Take()
	require.True(t, ok)
	assert.Equal(t, []byte{2}, got)
	_, ok = mb.Take()
	assert.False(t, ok)
}
