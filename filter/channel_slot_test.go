package filter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/dsp/fourier"
)

// staticRing serves a single precomputed block repeatedly, enough to
// exercise one Advance() call deterministically.
type staticRing struct {
	n     int
	bins  []complex128
	num   uint64
	calls int
}

func (r *staticRing) N() int { return r.n }

func (r *staticRing) WaitFor(want uint64) (uint64, bool) {
	r.calls++
	return r.num, false
}

func (r *staticRing) Read(want uint64, dst []complex128) bool {
	if want != r.num {
		return false
	}
	copy(dst, r.bins)
	return true
}

func TestSlotAdvanceExtractsTonePower(t *testing.T) {
	const fs = 192000.0
	const n = 1920
	const rs = 12000.0

	// Build a master spectrum that is a single forward FFT of a pure
	// tone sitting exactly at bin 100 (10 kHz off an assumed DC
	// center), so the channel centered there should recover nearly all
	// of the tone's energy at baseband.
	td := make([]complex128, n)
	cfft := fourier.NewCmplxFFT(n)
	binFreqIdx := 100
	for i := range td {
		theta := 2 * math.Pi * float64(binFreqIdx) * float64(i) / float64(n)
		td[i] = complex(math.Cos(theta), math.Sin(theta))
	}
	bins := cfft.Coefficients(nil, td)

	ring := &staticRing{n: n, bins: bins, num: 1}

	slot, err := NewSlot(fs, n, 1, -1500, 1500, rs, 6.0)
	require.NoError(t, err)

	out, blockNum, closed, err := slot.Advance(ring, float64(binFreqIdx)*fs/float64(n), 8)
	require.NoError(t, err)
	require.False(t, closed)
	require.Equal(t, uint64(1), blockNum)
	require.NotEmpty(t, out)

	var energy float64
	for _, v := range out {
		energy += real(v)*real(v) + imag(v)*imag(v)
	}
	require.Greater(t, energy, 0.0)
}
