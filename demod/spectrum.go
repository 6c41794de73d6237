package demod

import (
	"math"

	"github.com/ka9q/radiod/channel"
	"github.com/ka9q/radiod/filter"
)

// WindowType selects the re-windowing function applied to the
// extracted bin vector.
type WindowType int

const (
	WindowKaiser WindowType = iota
	WindowRect
	WindowBlackman
	WindowExactBlackman
	WindowGaussian
	WindowHann
	WindowHamming
)

// Spectrum is the SPECTRUM pseudo-demodulator: it produces periodic
// frequency-domain power summaries instead of audio.
type Spectrum struct {
	BinCount    int
	BinBWHz     float64
	IntegrateTC float64 // seconds
	Window      WindowType
	Shape       float64 // window shape parameter (Kaiser beta, Gaussian sigma)
	CrossoverHz float64

	smoothed []float64
	alpha    float64
	haveAlpha bool
	bins     []float64
}

// NewSpectrum returns a SPECTRUM demodulator with the given bin
// geometry.
func NewSpectrum(binCount int, binBW, integrateTC float64) *Spectrum {
	return &Spectrum{
		BinCount:    binCount,
		BinBWHz:     binBW,
		IntegrateTC: integrateTC,
		smoothed:    make([]float64, binCount),
	}
}

// SetBins supplies the power spectrum of the master ring's bins
// relevant to this channel's span: a SPECTRUM channel re-windows the
// ring's raw bins rather than consuming the channel's own IFFT baseband
// output. Process emits nothing until bins have been supplied here; the
// engine's channel loop does not call SetBins.
func (s *Spectrum) SetBins(power []float64) { s.bins = power }

// Demodulator adapts Spectrum to channel.Demodulator.
func (s *Spectrum) Demodulator() *channel.Demodulator {
	return &channel.Demodulator{Process: s.process, Concrete: s}
}

func (s *Spectrum) process(ch *channel.Channel, _ []complex128) error {
	power := s.bins
	if len(power) == 0 {
		return nil
	}

	binned := rebin(power, s.BinCount)
	window := s.windowCoeffs(len(binned))

	if !s.haveAlpha {
		blockDur := 1.0 / maxf(ch.Filter.OutputRate/float64(maxInt(len(binned), 1)), 1e-9)
		if s.IntegrateTC > 0 {
			s.alpha = 1 - math.Exp(-blockDur/s.IntegrateTC)
		} else {
			s.alpha = 1
		}
		s.haveAlpha = true
	}

	out := make([]float32, len(binned))
	for i, p := range binned {
		v := p * window[i]
		s.smoothed[i] = s.alpha*v + (1-s.alpha)*s.smoothed[i]
		out[i] = float32(s.smoothed[i])
	}

	if ch.Output == nil {
		return nil
	}
	return ch.Output.SendSpectrum(out)
}

// rebin averages src's bins down (or repeats them up) to exactly n
// output bins.
func rebin(src []float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	if len(src) == 0 {
		return out
	}
	ratio := float64(len(src)) / float64(n)
	for i := range out {
		lo := int(float64(i) * ratio)
		hi := int(float64(i+1) * ratio)
		if hi <= lo {
			hi = lo + 1
		}
		if hi > len(src) {
			hi = len(src)
		}
		var sum float64
		count := 0
		for j := lo; j < hi; j++ {
			sum += src[j]
			count++
		}
		if count > 0 {
			out[i] = sum / float64(count)
		}
	}
	return out
}

func (s *Spectrum) windowCoeffs(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	switch s.Window {
	case WindowKaiser:
		beta := s.Shape
		if beta == 0 {
			beta = 6
		}
		return filter.KaiserTaper(n, beta)
	case WindowHann:
		for i := range w {
			w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
		}
	case WindowHamming:
		for i := range w {
			w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
		}
	case WindowBlackman, WindowExactBlackman:
		for i := range w {
			w[i] = 0.42 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1)) + 0.08*math.Cos(4*math.Pi*float64(i)/float64(n-1))
		}
	case WindowGaussian:
		sigma := s.Shape
		if sigma == 0 {
			sigma = 0.4
		}
		m := float64(n-1) / 2
		for i := range w {
			x := (float64(i) - m) / (sigma * m)
			w[i] = math.Exp(-0.5 * x * x)
		}
	case WindowRect:
	}
	return w
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
