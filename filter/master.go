// Package filter implements the overlap-save fast-convolution master
// filter and the per-channel frequency-domain downconversion it feeds
// via the frequency-domain ring buffer.
//
// Grounded in ubersdr's audio_extensions/morse/spectrum_analyzer.go,
// audio_extensions/sstv/fft.go and audio_extensions/ft8/waterfall.go, which
// are the only places in the corpus that already reach for
// gonum.org/v1/gonum/dsp/fourier — ubersdr itself never runs a
// producing-side overlap-save convolver (it is a client of radiod's output),
// so the convolution structure here follows original_source/src/filter.c
// (execute_filter_input) with the FFT calls swapped for gonum's.
package filter

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Master is the single front-end-wide overlap-save forward FFT: it
// accumulates L new input samples per block, forms the N = L+M-1
// point FFT of the L-new/M-1-old sliding window, and publishes the
// result to the ring every block.
type Master struct {
	mu sync.Mutex

	Fs float64 // front-end sample rate, Hz
	L  int     // new samples per block
	M  int     // channel filter impulse-response length bound
	N  int     // FFT size, L+M-1
	V  int     // overlap factor, 1+L/(M-1)

	real       bool // true for a real (R2C) front end, false for complex (C2C)
	rfft       *fourier.FFT
	cfft       *fourier.CmplxFFT
	history    []complex128 // last M-1 samples carried into the next block
	pendingBuf []complex128 // samples accumulated so far toward the next full block of L
	block      uint64

	Ring interface {
		Publish(num uint64, bins []complex128)
	}

	notches []notchEntry // coherent spur suppression list; last entry is always the DC terminator
}

// notchEntry is one persistent-spur suppression slot: an IIR-smoothed
// estimate of the coherent component at a single input-side bin,
// re-subtracted from the time-domain window every block before the
// forward FFT. Experimental; kept as a live data structure per the
// front end's notch list rather than a fixed filter stage.
type notchEntry struct {
	bin      int
	alpha    float64
	smoothed complex128
}

// NewMaster builds a master filter for a real or complex front end. N must
// satisfy N = L+M-1; callers choose L (and hence N) to trade latency against
// FFT efficiency.
func NewMaster(fs float64, l, m int, real bool, ring interface {
	Publish(num uint64, bins []complex128)
}) (*Master, error) {
	if l <= 0 || m <= 1 {
		return nil, fmt.Errorf("filter: invalid block geometry L=%d M=%d", l, m)
	}
	n := l + m - 1
	mf := &Master{
		Fs:      fs,
		L:       l,
		M:       m,
		N:       n,
		V:       Overlap(l, m),
		real:    real,
		history: make([]complex128, m-1),
		Ring:    ring,
		notches: []notchEntry{{bin: 0, alpha: 0.01}}, // DC terminator, always present
	}
	if real {
		mf.rfft = fourier.NewFFT(n)
	} else {
		mf.cfft = fourier.NewCmplxFFT(n)
	}
	return mf, nil
}

// Write implements frontend.Sink: it buffers incoming front-end
// samples L at a time and, on each full block, runs the forward FFT
// and publishes to the ring.
func (m *Master) Write(samples []complex64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := 0
	for i < len(samples) {
		take := m.L
		if remaining := len(samples) - i; remaining < take {
			take = remaining
		}
		m.accumulate(samples[i : i+take])
		i += take
	}
}

func (m *Master) accumulate(chunk []complex64) {
	if m.pendingBuf == nil {
		m.pendingBuf = make([]complex128, 0, m.L)
	}
	for _, s := range chunk {
		m.pendingBuf = append(m.pendingBuf, complex(float64(real(s)), float64(imag(s))))
		if len(m.pendingBuf) == m.L {
			m.runBlock(m.pendingBuf)
			m.pendingBuf = m.pendingBuf[:0]
		}
	}
}

// SetSpurBins installs a coherent spur-notch list at the given input-side
// FFT bin indices, in addition to the always-present DC (bin 0) entry.
// Passing an empty slice leaves only the DC terminator active.
func (m *Master) SetSpurBins(bins []int, alpha float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]notchEntry, 0, len(bins)+1)
	for _, b := range bins {
		if b == 0 {
			continue // DC is added unconditionally below
		}
		if b < 0 {
			b = -b
		}
		entries = append(entries, notchEntry{bin: b, alpha: alpha})
	}
	entries = append(entries, notchEntry{bin: 0, alpha: alpha})
	m.notches = entries
}

// applyNotchWeighting re-estimates and subtracts each active spur's
// coherent component from the time-domain window, in place, before the
// forward FFT runs. Each entry's estimate is a single-bin DFT projection
// of the current window, smoothed across blocks with the entry's alpha
// so a transient at that bin is left mostly alone while a persistent
// carrier is gradually cancelled.
func (m *Master) applyNotchWeighting(window []complex128) {
	n := len(window)
	for i := range m.notches {
		entry := &m.notches[i]

		var raw complex128
		for t, s := range window {
			angle := -2 * math.Pi * float64(entry.bin) * float64(t) / float64(n)
			raw += s * complex(math.Cos(angle), math.Sin(angle))
		}
		raw /= complex(float64(n), 0)

		entry.smoothed = entry.smoothed*complex(1-entry.alpha, 0) + raw*complex(entry.alpha, 0)
		if entry.smoothed == 0 {
			continue
		}

		for t := range window {
			angle := 2 * math.Pi * float64(entry.bin) * float64(t) / float64(n)
			window[t] -= entry.smoothed * complex(math.Cos(angle), math.Sin(angle))
		}
	}
}

func (m *Master) runBlock(newSamples []complex128) {
	window := make([]complex128, m.N)
	copy(window, m.history)
	copy(window[len(m.history):], newSamples)

	m.applyNotchWeighting(window)

	var bins []complex128
	if m.real {
		in := make([]float64, m.N)
		for i, v := range window {
			in[i] = real(v)
		}
		coeffs := m.rfft.Coefficients(nil, in)
		bins = expandConjugateSymmetric(coeffs, m.N)
	} else {
		bins = m.cfft.Coefficients(nil, window)
	}

	copy(m.history, window[m.L:])
	m.block++
	m.Ring.Publish(m.block, bins)
}

// expandConjugateSymmetric turns the N/2+1 unique bins a real FFT produces
// into the full N-bin spectrum so channel-side code never needs to special-
// case real vs. complex front ends.
func expandConjugateSymmetric(half []complex128, n int) []complex128 {
	full := make([]complex128, n)
	copy(full, half)
	for k := len(half); k < n; k++ {
		src := n - k
		full[k] = complex(real(full[src]), -imag(full[src]))
	}
	return full
}

// BlockNum returns the most recently published block number.
func (m *Master) BlockNum() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.block
}
