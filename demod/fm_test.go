package demod

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ka9q/radiod/channel"
)

func TestDeemphasisDecays(t *testing.T) {
	d := &Deemphasis{TimeConstantSec: 75e-6, GainMakeup: 1}
	samples := make([]float64, 1000)
	samples[0] = 1
	d.Apply(samples, 48000)
	assert.Less(t, samples[len(samples)-1], samples[0])
}

func TestPLBankDetectsToneAtKnownFrequency(t *testing.T) {
	const fs = 8000.0
	const periodSec = 0.24
	bank := NewPLBank(fs, periodSec)

	target := 100.0
	n := int(periodSec * fs)
	audio := make([]float64, n)
	for i := range audio {
		audio[i] = math.Sin(2 * math.Pi * target * float64(i) / fs)
	}

	toneHz, toneEnergy, total, ok := bank.Feed(audio)
	require.True(t, ok)
	assert.Greater(t, toneEnergy, total*0.4)
	assert.InDelta(t, target, toneHz, 5)
}

func TestFMAdvancesTimestampSilentlyWhenSquelchClosed(t *testing.T) {
	f := NewFM()
	f.Squelch = Squelch{OpenDB: 1000, CloseDB: 900, TailBlocks: 0}

	out := &fakeOutput{}
	ch := &channel.Channel{
		Output: out,
		Filter: channel.FilterGeometry{OutputRate: 48000, Low: -5000, High: 5000},
	}

	baseband := make([]complex128, 8)
	for i := range baseband {
		baseband[i] = complex(0.01, 0)
	}

	err := f.process(ch, baseband)
	require.NoError(t, err)
	assert.Equal(t, 0, out.audioCalls)
	assert.Equal(t, 8, out.silentFrames)
}

func TestThresholdEstimatorLimitsSlew(t *testing.T) {
	est := NewThresholdEstimator()
	baseband := []complex128{
		complex(1, 0),
		complex(-1, 0.001), // near pi phase jump
		complex(1, 0),
	}
	out := est.Estimate(baseband, 48000)
	require.Len(t, out, 3)
	for _, v := range out {
		assert.False(t, math.IsNaN(v))
	}
}
