package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ka9q/radiod/channel"
	"github.com/ka9q/radiod/config"
	"github.com/ka9q/radiod/frontend"
	"github.com/ka9q/radiod/rtpout"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := &config.EngineConfig{
		Global: config.Global{
			BlocktimeMs:   20,
			Overlap:       5,
			UpdateBlocks:  25,
			DefaultPreset: "usb",
			Hardware:      "selftest",
		},
	}
	driver := frontend.NewSynthetic(48000, 1000, 0.3, 0.05, 1)
	e, err := New(cfg, nil, driver)
	require.NoError(t, err)
	return e
}

func TestConstructChannelBuildsDemodAndSlot(t *testing.T) {
	e := newTestEngine(t)
	spec := config.ChannelSpec{Mode: "usb", SampleRate: 12000, Low: 50, High: 2850, KaiserBeta: 6.5}

	ch, err := e.constructChannel(spec, 14074000)
	require.NoError(t, err)
	assert.NotNil(t, ch.Demod)
	assert.NotNil(t, ch.Slot)
	assert.Equal(t, channel.Linear, ch.Discriminant)
	assert.Equal(t, 14074000.0, ch.Tuning.RFFrequency)
	// constructChannel must not touch the registry: no SSRC assigned yet.
	assert.Zero(t, ch.SSRC)
}

func TestConstructChannelRejectsUnknownMode(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.constructChannel(config.ChannelSpec{Mode: "teletype", SampleRate: 12000, Low: 50, High: 2850, KaiserBeta: 5}, 0)
	require.Error(t, err)
}

// TestNewChannelFromFactoryInsideRegistryLock exercises exactly the call
// pattern status.Server.handlePacket uses: newChannelFromFactory running as
// the callback passed to Registry.LookupOrCreate. Before the two-phase
// constructChannel/startChannel split, the equivalent single-phase builder
// called back into the registry from inside this callback and deadlocked on
// the registry's non-reentrant mutex; this test exists to catch a
// regression back to that shape.
func TestNewChannelFromFactoryInsideRegistryLock(t *testing.T) {
	e := newTestEngine(t)

	done := make(chan *channel.Channel, 1)
	go func() {
		ch, _, err := e.registry.LookupOrCreate(42, e.newChannelFromFactory)
		require.NoError(t, err)
		done <- ch
	}()

	select {
	case ch := <-done:
		assert.Equal(t, uint32(42), ch.SSRC)
		assert.NotNil(t, ch.Demod)
	case <-time.After(2 * time.Second):
		t.Fatal("LookupOrCreate with newChannelFromFactory deadlocked")
	}
}

func TestApplyPresetOnlyOverridesNonZeroFields(t *testing.T) {
	spec := config.ChannelSpec{Mode: "usb", Low: 50, High: 2850, KaiserBeta: 5}
	applyPreset(&spec, config.Preset{Mode: "fm", KaiserBeta: 0, SquelchOpen: 9, SquelchClose: 6})

	assert.Equal(t, "fm", spec.Mode)
	assert.Equal(t, 50.0, spec.Low, "zero-valued preset field must not clobber the existing spec value")
	assert.Equal(t, 5.0, spec.KaiserBeta)
	assert.Equal(t, 9.0, spec.SquelchOpen)
}

func TestEncodingFromNameDefaultsToS16BE(t *testing.T) {
	assert.Equal(t, rtpout.S16LE, encodingFromName("s16le"))
	assert.Equal(t, rtpout.OpusEncoding, encodingFromName("opus"))
	assert.Equal(t, rtpout.S16BE, encodingFromName("unknown"))
}
