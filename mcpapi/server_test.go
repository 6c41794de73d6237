package mcpapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ka9q/radiod/channel"
	"github.com/ka9q/radiod/tlv"
)

func TestSummarizeReflectsChannelFields(t *testing.T) {
	ch := &channel.Channel{
		SSRC:         42,
		InUse:        true,
		Discriminant: channel.FM,
		PresetName:   "nfm-repeater",
		Tuning:       channel.Tuning{RFFrequency: 146520000},
		Filter:       channel.FilterGeometry{Low: -8000, High: 8000, OutputRate: 48000},
	}
	sum := summarize(ch)
	assert.Equal(t, uint32(42), sum.SSRC)
	assert.Equal(t, "fm", sum.Mode)
	assert.Equal(t, 146520000.0, sum.Frequency)
	assert.Equal(t, "nfm-repeater", sum.Preset)
}

func TestModeNameCoversEveryDiscriminant(t *testing.T) {
	assert.Equal(t, "linear", modeName(channel.Linear))
	assert.Equal(t, "fm", modeName(channel.FM))
	assert.Equal(t, "wfm", modeName(channel.WFM))
	assert.Equal(t, "spectrum", modeName(channel.Spectrum))
	assert.Equal(t, "none", modeName(channel.DiscriminantNone))
}

func TestCommandTagIsNonzeroAndVaries(t *testing.T) {
	a, b := commandTag(), commandTag()
	assert.NotEqual(t, a, b)
}

// TestRetuneCommandEncodingRoundTrips exercises the same TLV encode
// path handleTuneChannel posts to a channel's mailbox, without
// constructing an mcp.CallToolRequest (whose internal shape is an
// implementation detail of the mcp-go library version in use).
func TestRetuneCommandEncodingRoundTrips(t *testing.T) {
	reg := channel.NewRegistry(4)
	ch, _, err := reg.LookupOrCreate(7, func(assigned uint32) *channel.Channel {
		return &channel.Channel{Discriminant: channel.Linear}
	})
	require.NoError(t, err)

	w := tlv.NewWriter()
	tag := commandTag()
	w.PutUint(tlv.CommandTag, uint64(tag))
	w.PutDouble(tlv.RadioFrequency, 7040000)
	w.EOL()
	payload := append([]byte{byte(tlv.PacketCommand)}, w.Bytes()...)
	ch.Mailbox.Post(payload)

	raw, ok := ch.Mailbox.Take()
	require.True(t, ok)
	require.Equal(t, byte(tlv.PacketCommand), raw[0])

	reader := tlv.NewReader(raw[1:])
	var gotTag uint32
	var gotFreq float64
	for {
		f, ok := reader.Next()
		if !ok {
			break
		}
		switch f.Type {
		case tlv.CommandTag:
			gotTag = uint32(tlv.DecodeUint(f.Value))
		case tlv.RadioFrequency:
			gotFreq = tlv.DecodeDouble(f.Value)
		}
	}
	assert.Equal(t, tag, gotTag)
	assert.Equal(t, 7040000.0, gotFreq)
}
