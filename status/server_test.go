package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ka9q/radiod/channel"
	"github.com/ka9q/radiod/tlv"
)

func commandPacket(ssrc uint32) []byte {
	w := tlv.NewWriter()
	w.PutUint(tlv.OutputSSRC, uint64(ssrc))
	w.EOL()
	return append([]byte{byte(tlv.PacketCommand)}, w.Bytes()...)
}

func TestHandlePacketPostsToExistingChannel(t *testing.T) {
	reg := channel.NewRegistry(4)
	ch, _, err := reg.LookupOrCreate(7, func(uint32) *channel.Channel { return &channel.Channel{} })
	require.NoError(t, err)

	s := NewServer(reg, func(uint32) *channel.Channel {
		t.Fatal("factory must not run for an existing ssrc")
		return nil
	})

	s.handlePacket(commandPacket(7))

	_, ok := ch.Mailbox.Take()
	assert.True(t, ok)
}

// TestHandlePacketAutoCreateInvokesCreatedExactlyOnce exercises the
// production deadlock hazard fixed this round: Registry.LookupOrCreate
// holds its mutex across the synchronous call into the factory it is
// given, so a factory that itself touches the registry would deadlock.
// The Created hook must fire only after LookupOrCreate has released that
// lock, exactly once per auto-create.
func TestHandlePacketAutoCreateInvokesCreatedExactlyOnce(t *testing.T) {
	reg := channel.NewRegistry(4)
	s := NewServer(reg, func(assigned uint32) *channel.Channel {
		return &channel.Channel{}
	})

	var createdCount int
	var createdSSRC uint32
	s.Created = func(ch *channel.Channel) {
		createdCount++
		createdSSRC = ch.SSRC
		// Mirrors engine.startChannel's contract: the registry must
		// already show this channel as registered when Created runs.
		found, ok := reg.Lookup(ch.SSRC)
		assert.True(t, ok)
		assert.Same(t, ch, found)
	}

	done := make(chan struct{})
	go func() {
		s.handlePacket(commandPacket(99))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handlePacket deadlocked on auto-create")
	}

	assert.Equal(t, 1, createdCount)
	assert.Equal(t, uint32(99), createdSSRC)

	// A second packet for the same ssrc must not auto-create again.
	s.handlePacket(commandPacket(99))
	assert.Equal(t, 1, createdCount)
}

func TestHandlePacketBroadcastPostsToAllChannels(t *testing.T) {
	reg := channel.NewRegistry(4)
	a, _, err := reg.LookupOrCreate(1, func(uint32) *channel.Channel { return &channel.Channel{} })
	require.NoError(t, err)
	b, _, err := reg.LookupOrCreate(2, func(uint32) *channel.Channel { return &channel.Channel{} })
	require.NoError(t, err)

	s := NewServer(reg, func(uint32) *channel.Channel { return &channel.Channel{} })
	s.handlePacket(commandPacket(BroadcastSSRC))

	// Broadcast delivery is deferred by a random jitter, so poll briefly.
	require.Eventually(t, func() bool {
		_, okA := a.Mailbox.Take()
		_, okB := b.Mailbox.Take()
		return okA && okB
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandlePacketDropsMissingSSRC(t *testing.T) {
	reg := channel.NewRegistry(4)
	s := NewServer(reg, func(uint32) *channel.Channel {
		t.Fatal("factory must not run when OUTPUT_SSRC is absent")
		return nil
	})

	w := tlv.NewWriter()
	w.EOL()
	s.handlePacket(append([]byte{byte(tlv.PacketCommand)}, w.Bytes()...))
}
