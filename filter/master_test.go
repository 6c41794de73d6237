package filter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRing struct {
	published []ringPublish
}

type ringPublish struct {
	num  uint64
	bins []complex128
}

func (f *fakeRing) Publish(num uint64, bins []complex128) {
	cp := make([]complex128, len(bins))
	copy(cp, bins)
	f.published = append(f.published, ringPublish{num: num, bins: cp})
}

func TestMasterComplexPublishesOneBlockPerL(t *testing.T) {
	const l, m = 64, 33
	ring := &fakeRing{}
	mf, err := NewMaster(48000, l, m, false, ring)
	require.NoError(t, err)
	assert.Equal(t, l+m-1, mf.N)

	samples := make([]complex64, l*3)
	for i := range samples {
		samples[i] = complex64(complex(1, 0))
	}
	mf.Write(samples)

	assert.Equal(t, 3, len(ring.published))
	assert.Equal(t, uint64(3), mf.BlockNum())
	assert.Equal(t, mf.N, len(ring.published[0].bins))
}

func TestMasterNotchesPersistentDC(t *testing.T) {
	const l, m = 64, 33
	ring := &fakeRing{}
	mf, err := NewMaster(48000, l, m, false, ring)
	require.NoError(t, err)

	// A constant complex input is pure DC: with the default bin-0 notch
	// entry active, the DC bin should collapse toward zero as the IIR
	// estimate converges, even though nothing else in the chain touches it.
	block := make([]complex64, l)
	for i := range block {
		block[i] = complex64(complex(1, 0))
	}
	for i := 0; i < 400; i++ {
		mf.Write(block)
	}

	first := ring.published[0].bins[0]
	last := ring.published[len(ring.published)-1].bins[0]
	assert.Greater(t, cmplxAbs(first), 10.0)
	assert.Less(t, cmplxAbs(last), cmplxAbs(first)*0.1, "persistent DC should be notched out after convergence")
}

func TestMasterSetSpurBinsReplacesListButKeepsDCTerminator(t *testing.T) {
	const l, m = 64, 33
	ring := &fakeRing{}
	mf, err := NewMaster(48000, l, m, false, ring)
	require.NoError(t, err)

	mf.SetSpurBins([]int{5, -9, 0}, 0.1)

	require.Len(t, mf.notches, 3)
	bins := map[int]bool{}
	for _, n := range mf.notches {
		bins[n.bin] = true
	}
	assert.True(t, bins[5])
	assert.True(t, bins[9], "negative bin indices fold to their absolute value")
	assert.True(t, bins[0], "DC terminator must always be present")
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

func TestMasterRealExpandsConjugateSymmetric(t *testing.T) {
	const l, m = 128, 65
	ring := &fakeRing{}
	mf, err := NewMaster(48000, l, m, true, ring)
	require.NoError(t, err)

	samples := make([]complex64, l)
	for i := range samples {
		samples[i] = complex64(complex(math.Sin(float64(i)), 0))
	}
	mf.Write(samples)

	require.Equal(t, 1, len(ring.published))
	bins := ring.published[0].bins
	// bin k and bin N-k must be conjugates for a real input spectrum.
	for k := 1; k < mf.N/2; k++ {
		assert.InDelta(t, real(bins[k]), real(bins[mf.N-k]), 1e-6)
		assert.InDelta(t, imag(bins[k]), -imag(bins[mf.N-k]), 1e-6)
	}
}
