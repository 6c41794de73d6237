// Package demod implements the four demodulator families: LINEAR
// (coherent SSB/AM/CW/DSB/ISB), FM, WFM, and the SPECTRUM pseudo-
// demodulator. ubersdr only ever consumes already-demodulated RTP
// audio, so every algorithm here is grounded in
// original_source/src/radio.c and modes.c, expressed in ubersdr's Go
// idiom (plain structs, no generics, channel.Channel's Estimates/Output
// fields updated directly the way ubersdr mutates its own session
// structs).
package demod

import (
	"math"
	"math/cmplx"

	"github.com/ka9q/radiod/channel"
)

// AGC is a one-pole automatic gain control with attack/recovery/hang,
// matching AGC description.
type AGC struct {
	Enabled      bool
	ManualGainDB float64

	TargetHeadroomDB float64 // dBFS below clip
	RecoveryDBPerSec  float64
	HangSeconds       float64
	NoiseThresholdDB  float64 // relative to headroom

	gain     float64 // linear
	hangLeft float64 // seconds
	blockDur float64 // seconds per block, set by caller
}

// NewAGC returns an AGC with unity gain.
func NewAGC() *AGC { return &AGC{gain: 1} }

// Apply runs one block of the AGC, attacking fast on overshoot and
// recovering slowly otherwise.
func (a *AGC) Apply(samples []complex128, blockDur float64) {
	a.blockDur = blockDur
	if !a.Enabled {
		g := dbToLinear(a.ManualGainDB)
		for i := range samples {
			samples[i] *= complex(g, 0)
		}
		return
	}

	peak := 0.0
	for _, s := range samples {
		if m := cmplx.Abs(s); m > peak {
			peak = m
		}
	}
	target := dbToLinear(-a.TargetHeadroomDB)

	if peak*a.gain > target && peak > 0 {
		a.gain = target / peak // instantaneous fast attack
		a.hangLeft = a.HangSeconds
	} else if a.hangLeft > 0 {
		a.hangLeft -= blockDur
	} else {
		a.gain *= dbToLinear(a.RecoveryDBPerSec * blockDur)
	}

	for i := range samples {
		samples[i] *= complex(a.gain, 0)
	}
}

func dbToLinear(db float64) float64 { return math.Pow(10, db/20) }
func linearToDB(v float64) float64  { return 20 * math.Log10(math.Max(v, 1e-20)) }

// PLL is a second-order digital phase-locked loop tracking a carrier,
// with optional squaring mode for DSB-SC.
type PLL struct {
	Enabled    bool
	Square     bool
	LoopBWHz   float64
	Zeta       float64 // damping, default ~0.707

	phase      float64 // cycles
	freq       float64 // cycles/sample
	integrator float64
	lowerLimit float64
	upperLimit float64
	lockedPow  float64
	totalPow   float64
}

// NewPLL returns a PLL with ζ=0.707 and a ±0.5 cycle/sample integrator clamp.
func NewPLL() *PLL {
	return &PLL{Zeta: 0.707, lowerLimit: -0.5, upperLimit: 0.5}
}

// SetLimits overrides the integrator clamp.
func (p *PLL) SetLimits(lo, hi float64) { p.lowerLimit, p.upperLimit = lo, hi }

// Track runs the PLL over one block of complex baseband, returning the
// de-rotated (carrier-removed) samples. Locked reports whether the
// ratio of locked to total signal power exceeds the lock threshold.
func (p *PLL) Track(samples []complex128, sampleRate float64) (out []complex128, locked bool) {
	if !p.Enabled {
		return samples, false
	}
	out = make([]complex128, len(samples))

	wn := 2 * math.Pi * p.LoopBWHz / sampleRate
	kp := 2 * p.Zeta * wn
	ki := wn * wn

	for i, s := range samples {
		input := s
		if p.Square {
			input = s * s
		}
		ref := cmplx.Exp(complex(0, 2*math.Pi*p.phase))
		err := imag(input * cmplx.Conj(ref))

		p.integrator += ki * err
		if p.integrator > p.upperLimit {
			p.integrator = p.upperLimit
		} else if p.integrator < p.lowerLimit {
			p.integrator = p.lowerLimit
		}
		p.freq = p.integrator + kp*err
		p.phase += p.freq
		if p.phase > 1 {
			p.phase -= math.Trunc(p.phase)
		}

		derot := s * cmplx.Exp(complex(0, -2*math.Pi*p.phase))
		out[i] = derot

		p.totalPow = 0.999*p.totalPow + 0.001*cmplx.Abs(s)*cmplx.Abs(s)
		lockedComponent := real(derot)
		p.lockedPow = 0.999*p.lockedPow + 0.001*lockedComponent*lockedComponent
	}

	locked = p.totalPow > 0 && p.lockedPow/p.totalPow > 0.5
	return out, locked
}

// Squelch implements the hysteretic open/close gate common to LINEAR
// and FM.
type Squelch struct {
	OpenDB, CloseDB float64
	TailBlocks      int

	open      bool
	tailLeft  int
}

// Gate decides whether audio for this block should be emitted, given
// the current SNR estimate in dB. After close it keeps emitting for
// TailBlocks more blocks.
func (sq *Squelch) Gate(snrDB float64) (emit bool, reopened bool) {
	wasOpen := sq.open
	if sq.open {
		if snrDB < sq.CloseDB {
			sq.open = false
			sq.tailLeft = sq.TailBlocks
		}
	} else if snrDB > sq.OpenDB {
		sq.open = true
		sq.tailLeft = 0
	}
	reopened = sq.open && !wasOpen
	if sq.open {
		return true, reopened
	}
	if sq.tailLeft > 0 {
		sq.tailLeft--
		return true, reopened
	}
	return false, reopened
}

// LinearMode selects the output arrangement.
type LinearMode int

const (
	ModeUSB LinearMode = iota
	ModeLSB
	ModeAM
	ModeCW
	ModeDSB
	ModeISB
)

// Linear holds LINEAR demodulator state.
type Linear struct {
	Mode    LinearMode
	PLL     *PLL
	AGC     *AGC
	Squelch Squelch

	SquelchOpenPrev bool
}

// NewLinear returns a LINEAR demodulator in the given mode with fresh
// PLL/AGC state.
func NewLinear(mode LinearMode) *Linear {
	return &Linear{Mode: mode, PLL: NewPLL(), AGC: NewAGC()}
}

// Demodulator adapts Linear to channel.Demodulator.
func (l *Linear) Demodulator() *channel.Demodulator {
	return &channel.Demodulator{Process: l.process, Concrete: l}
}

func (l *Linear) process(ch *channel.Channel, baseband []complex128) error {
	samples := append([]complex128(nil), baseband...)

	var locked bool
	if l.PLL != nil && l.PLL.Enabled {
		samples, locked = l.PLL.Track(samples, ch.Filter.OutputRate)
	}
	ch.Estimates.PLLLocked = locked

	var power float64
	for _, s := range samples {
		power += real(s)*real(s) + imag(s)*imag(s)
	}
	if len(samples) > 0 {
		power /= float64(len(samples))
	}
	ch.Estimates.BasebandPower = power

	if l.AGC != nil {
		blockDur := float64(len(samples)) / maxf(ch.Filter.OutputRate, 1)
		l.AGC.Apply(samples, blockDur)
	}

	snrDB := linearToDB(power) - linearToDB(maxf(ch.Estimates.N0, 1e-20))
	emit, reopened := l.Squelch.Gate(snrDB)

	left := make([]float32, len(samples))
	right := make([]float32, len(samples))
	stereo := false
	switch l.Mode {
	case ModeAM:
		for i, s := range samples {
			v := float32(cmplx.Abs(s))
			left[i], right[i] = v, v
		}
	case ModeISB:
		stereo = true
		for i, s := range samples {
			left[i] = float32(real(s))
			right[i] = float32(imag(s))
		}
	case ModeDSB:
		stereo = true
		for i, s := range samples {
			left[i] = float32(real(s))
			right[i] = float32(imag(s))
		}
	default: // USB/LSB/CW: mono in-phase component
		for i, s := range samples {
			v := float32(real(s))
			left[i], right[i] = v, v
		}
	}

	if ch.Output == nil {
		return nil
	}
	if !emit {
		// Squelch suppresses the packet but the timestamp still has to
		// account for these frames, or a later reopened channel's first
		// packet would misrepresent how long it was silent.
		ch.Output.AdvanceSilent(len(samples))
		return nil
	}
	out := left
	if stereo {
		out = interleave(left, right)
	}
	_ = reopened // marker-bit handling lives in rtpout.Sender
	return ch.Output.SendAudio(out, stereo)
}

func interleave(l, r []float32) []float32 {
	out := make([]float32, 2*len(l))
	for i := range l {
		out[2*i] = l[i]
		out[2*i+1] = r[i]
	}
	return out
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
