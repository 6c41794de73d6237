package filter

import "math"

// Shift is the result of translating a channel's desired mixing frequency
// into an integer FFT-bin shift plus a fractional residual "Key algorithm —
// tuning math".
type Shift struct {
	S      int     // signed FFT-bin shift
	DeltaF float64 // residual frequency, Hz, handled by the fine oscillator
}

// ComputeShift implements tuning math: given the desired logical mixing
// frequency f (Slot.Advance passes the channel's offset from the front-end
// center, f_if), block size N and sample rate Fs, returns
// the bin shift and residual. OutOfRange is true when |S| >= N/2: the
// channel cannot be served by this front-end tuning and must suspend.
func ComputeShift(f, fs float64, n int) (shift Shift, outOfRange bool) {
	binWidth := fs / float64(n)
	s := int(math.Round(f / binWidth))
	deltaF := f - float64(s)*binWidth
	return Shift{S: s, DeltaF: deltaF}, abs(s) >= n/2
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Overlap returns V = 1 + L/(M-1), the overlap-save convolver's
// overlap factor (GLOSSARY).
func Overlap(l, m int) int {
	return 1 + l/(m-1)
}

// Oscillator is a complex phasor stepped once per output sample to remove
// the fine-tuning residual Δf and track an optional Doppler rate,
// supplemented from original_source/src/osc.c: phasor_step itself is
// steppable by phasor_step_step (constant Doppler rate), and the phasor is
// periodically renormalized to unit magnitude so floating-point drift
// doesn't let it decay or grow over a long-running channel.
type Oscillator struct {
	Phasor     complex128
	Step       complex128
	StepStep   complex128 // 1.0 when no Doppler rate is configured
	sinceRenorm int
}

const oscRenormInterval = 1 << 16

// NewOscillator builds an oscillator stepping at -Δf/Rs cycles per
// sample.
func NewOscillator(deltaFHz, rs float64) *Oscillator {
	theta := -2 * math.Pi * deltaFHz / rs
	return &Oscillator{
		Phasor:   1,
		Step:     complex(math.Cos(theta), math.Sin(theta)),
		StepStep: 1,
	}
}

// Next returns the current phasor value and advances the oscillator
// by one sample.
func (o *Oscillator) Next() complex128 {
	v := o.Phasor
	o.Phasor *= o.Step
	o.Step *= o.StepStep
	o.sinceRenorm++
	if o.sinceRenorm >= oscRenormInterval {
		o.renorm()
		o.sinceRenorm = 0
	}
	return v
}

func (o *Oscillator) renorm() {
	mag := math.Hypot(real(o.Phasor), imag(o.Phasor))
	if mag > 0 {
		o.Phasor /= complex(mag, 0)
	}
}

// SetDeltaF re-derives Step when the residual changes without disturbing the
// accumulated Phasor.
func (o *Oscillator) SetDeltaF(deltaFHz, rs float64) {
	theta := -2 * math.Pi * deltaFHz / rs
	o.Step = complex(math.Cos(theta), math.Sin(theta))
}

// CispiRatio returns cispi(x) = exp(i*pi*x), used by both the
// block-to-block bin-shift phase correction and the per-block
// phase-adjust multiplier, which satisfies cispi(2*(S mod V)/V)^V = 1
// for integer period V.
func CispiRatio(x float64) complex128 {
	theta := math.Pi * x
	return complex(math.Cos(theta), math.Sin(theta))
}

// ShiftContinuityCorrection returns the phasor rotation applied when
// the bin shift S changes from sOld to sNew between consecutive
// blocks, following the Renfors/Yli-Kaakinen/Harris correction for
// non-V-aligned shifts.
func ShiftContinuityCorrection(sOld, sNew, v int) complex128 {
	return CispiRatio(float64(sNew-sOld) / float64(-2*(v-1)))
}

// PerBlockPhaseAdjust returns the per-block multiplier applied to the fine
// oscillator to correct for S not being a multiple of V.
func PerBlockPhaseAdjust(s, v int) complex128 {
	m := s % v
	if m < 0 {
		m += v
	}
	return CispiRatio(2 * float64(m) / float64(v))
}
