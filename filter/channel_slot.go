package filter

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"
)

// ChannelRing is the subset of ring.Ring a Slot needs; defined here so
// filter doesn't import the ring package (ring has no reason to know
// about channel geometry).
type ChannelRing interface {
	N() int
	WaitFor(want uint64) (blockNum uint64, closed bool)
	Read(want uint64, dst []complex128) bool
}

// Slot is one channel's per-block frequency-domain downconverter: it reads
// the master ring's shifted bin subset, applies the channel's passband
// taper, and runs a smaller inverse FFT that both downconverts and decimates
// to the channel's own sample rate in one step — ka9q-radio's signature
// trick (original_source/src/filter.c execute_filter_output), reimplemented
// with gonum.org/v1/gonum/dsp/fourier.CmplxFFT for the inverse transform
type Slot struct {
	Low, High  float64 // passband edges, Hz, relative to channel center
	KaiserBeta float64

	rs      float64 // channel output sample rate
	n       int      // master FFT size
	v       int      // master overlap factor, for shift-continuity correction
	fs      float64  // front-end sample rate
	nout    int      // channel IFFT size
	binW    float64  // master bin width, Hz
	ifft    *fourier.CmplxFFT
	lastS   int
	haveS   bool
	osc     *Oscillator
	nextNum uint64
}

// NewSlot builds a channel downconversion slot. rs is the channel's
// desired output sample rate and is used as given; only the IFFT size
// round(N*rs/fs) is rounded to an integer, so rs is not adjusted to a
// value the master's bin spacing divides evenly. v is the master
// filter's overlap factor (Master.V), needed for the bin-shift
// continuity correction.
func NewSlot(fs float64, n, v int, low, high, rs, kaiserBeta float64) (*Slot, error) {
	if high <= low {
		return nil, fmt.Errorf("filter: channel passband high %.1f must exceed low %.1f", high, low)
	}
	nout := int(round(float64(n) * rs / fs))
	if nout < 1 {
		nout = 1
	}
	return &Slot{
		Low:        low,
		High:       high,
		KaiserBeta: kaiserBeta,
		rs:         rs,
		n:          n,
		v:          v,
		fs:         fs,
		nout:       nout,
		binW:       fs / float64(n),
		ifft:       fourier.NewCmplxFFT(nout),
	}, nil
}

func round(x float64) float64 {
	if x < 0 {
		return -round(-x)
	}
	return float64(int64(x + 0.5))
}

// Advance blocks until the next master block is available, downconverts
// it, and returns nout baseband samples plus the block number they came
// from. closed is true if the ring was shut down while waiting.
func (s *Slot) Advance(ring ChannelRing, centerOffsetHz float64, transitionBins int) (out []complex128, blockNum uint64, closed bool, err error) {
	blockNum, closed = ring.WaitFor(s.nextNum)
	if closed {
		return nil, 0, true, nil
	}
	bins := make([]complex128, ring.N())
	if !ring.Read(blockNum, bins) {
		// Fell behind by a full ring depth; resynchronize to whatever
		// is now current rather than spinning on a block that's gone.
		s.nextNum = blockNum
		if !ring.Read(blockNum, bins) {
			return nil, blockNum, false, fmt.Errorf("filter: block %d evicted before read", blockNum)
		}
	}
	s.nextNum = blockNum + 1

	shift, outOfRange := ComputeShift(centerOffsetHz, s.fs, s.n)
	if outOfRange {
		return nil, blockNum, false, fmt.Errorf("filter: center offset %.1f Hz out of front-end coverage", centerOffsetHz)
	}

	lowBin := int(round(s.Low / s.binW))
	highBin := int(round(s.High / s.binW))
	occupied := highBin - lowBin + 1
	resp := PassbandResponse(occupied, s.KaiserBeta, transitionBins)

	spectrum := make([]complex128, s.nout)
	for k := lowBin; k <= highBin; k++ {
		masterIdx := ((shift.S+k)%s.n + s.n) % s.n
		var outIdx int
		if k >= 0 {
			outIdx = k
		} else {
			outIdx = s.nout + k
		}
		if outIdx < 0 || outIdx >= s.nout {
			continue // passband wider than this channel's decimated Nyquist range
		}
		gain := resp[k-lowBin]
		spectrum[outIdx] = bins[masterIdx] * complex(gain, 0)
	}

	td := s.ifft.Sequence(nil, spectrum)
	scale := complex(1.0/float64(s.nout), 0)
	for i := range td {
		td[i] *= scale
	}

	if s.osc == nil || !s.haveS || s.lastS != shift.S {
		if s.osc == nil {
			s.osc = NewOscillator(shift.DeltaF, s.rs)
		} else {
			if s.haveS && s.v > 1 {
				correction := ShiftContinuityCorrection(s.lastS, shift.S, s.v)
				s.osc.Phasor *= correction
			}
			s.osc.SetDeltaF(shift.DeltaF, s.rs)
		}
		s.lastS = shift.S
		s.haveS = true
	}

	// Applied every block, not just when the bin shift changes: S is
	// rarely an exact multiple of V, so the fine oscillator needs this
	// correction each time to stay phase-continuous with the overlap-save
	// reconstruction.
	s.osc.Phasor *= PerBlockPhaseAdjust(shift.S, s.v)

	for i := range td {
		td[i] *= s.osc.Next()
	}

	return td, blockNum, false, nil
}
