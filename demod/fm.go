package demod

import (
	"math"
	"math/cmplx"

	"github.com/ka9q/radiod/channel"
)

// Deemphasis is a first-order IIR de-emphasis filter.
type Deemphasis struct {
	TimeConstantSec float64
	GainMakeup      float64

	a     float64
	state float64
	ready bool
}

func (d *Deemphasis) ensure(sampleRate float64) {
	if d.ready {
		return
	}
	d.a = math.Exp(-1 / (d.TimeConstantSec * sampleRate))
	d.ready = true
}

// Apply filters one block in place.
func (d *Deemphasis) Apply(samples []float64, sampleRate float64) {
	d.ensure(sampleRate)
	for i, s := range samples {
		d.state = d.a*d.state + (1-d.a)*s
		samples[i] = d.state * d.GainMakeup
	}
}

// GoertzelTone is one bin of the PL/CTCSS detection bank.
type GoertzelTone struct {
	FreqHz float64
	coeff  float64
	s1, s2 float64
}

// PLBank runs the standard-tone Goertzel bank once per tone period.
type PLBank struct {
	Tones      []GoertzelTone
	PeriodSec  float64
	sampleRate float64
	collected  int
	periodLen  int
}

// StandardCTCSSTones lists 51 standard subaudible tones, the NATO
// 150 Hz tone among them; each tone appears once.
var StandardCTCSSTones = []float64{
	67.0, 69.3, 71.9, 74.4, 77.0, 79.7, 82.5, 85.4, 88.5, 91.5,
	94.8, 97.4, 100.0, 103.5, 107.2, 110.9, 114.8, 118.8, 123.0, 127.3,
	131.8, 136.5, 141.3, 146.2, 150.0, 151.4, 156.7, 159.8, 162.2, 165.5,
	167.9, 171.3, 173.8, 177.3, 179.9, 183.5, 186.2, 189.9, 192.8, 196.6,
	199.5, 203.5, 206.5, 210.7, 218.1, 225.7, 229.1, 233.6, 241.8, 250.3,
	254.1,
}

// NewPLBank builds a Goertzel bank at the standard tones.
func NewPLBank(sampleRate, periodSec float64) *PLBank {
	tones := make([]GoertzelTone, len(StandardCTCSSTones))
	for i, f := range StandardCTCSSTones {
		tones[i] = GoertzelTone{FreqHz: f}
	}
	bank := &PLBank{Tones: tones, PeriodSec: periodSec, sampleRate: sampleRate}
	bank.periodLen = int(periodSec * sampleRate)
	for i := range bank.Tones {
		k := math.Round(float64(bank.periodLen) * bank.Tones[i].FreqHz / sampleRate)
		bank.Tones[i].coeff = 2 * math.Cos(2*math.Pi*k/float64(bank.periodLen))
	}
	return bank
}

// Feed processes audio samples (real, demodulated) and returns the
// strongest tone frequency and total tone energy once a period
// completes; ok is false otherwise.
func (b *PLBank) Feed(audio []float64) (toneHz, toneEnergy, totalEnergy float64, ok bool) {
	for _, x := range audio {
		for i := range b.Tones {
			t := &b.Tones[i]
			s0 := x + t.coeff*t.s1 - t.s2
			t.s2 = t.s1
			t.s1 = s0
		}
		b.collected++
		if b.collected >= b.periodLen {
			toneHz, toneEnergy, totalEnergy = b.finish()
			b.collected = 0
			return toneHz, toneEnergy, totalEnergy, true
		}
	}
	return 0, 0, 0, false
}

func (b *PLBank) finish() (bestFreq, bestEnergy, total float64) {
	for i := range b.Tones {
		t := &b.Tones[i]
		energy := t.s1*t.s1 + t.s2*t.s2 - t.coeff*t.s1*t.s2
		total += energy
		if energy > bestEnergy {
			bestEnergy = energy
			bestFreq = t.FreqHz
		}
		t.s1, t.s2 = 0, 0
	}
	return bestFreq, bestEnergy, total
}

// FM holds narrowband FM demodulator state.
type FM struct {
	Deemph         Deemphasis
	Squelch        Squelch
	ThresholdExtend bool
	threshold      *ThresholdEstimator
	PLBank         *PLBank
	ToneSquelchHz  float64 // 0 disables

	prevSample complex128
}

// NewFM returns an FM demodulator.
func NewFM() *FM { return &FM{threshold: NewThresholdEstimator(), prevSample: 1} }

// Demodulator adapts FM to channel.Demodulator.
func (f *FM) Demodulator() *channel.Demodulator {
	return &channel.Demodulator{Process: f.process, Concrete: f}
}

func (f *FM) process(ch *channel.Channel, baseband []complex128) error {
	audio := make([]float64, len(baseband))
	peakDev := 0.0
	var power float64

	for i, s := range baseband {
		power += real(s)*real(s) + imag(s)*imag(s)
		diff := s * cmplx.Conj(f.prevSample)
		f.prevSample = s
		freq := math.Atan2(imag(diff), real(diff)) * ch.Filter.OutputRate / (2 * math.Pi)
		if math.Abs(freq) > peakDev {
			peakDev = math.Abs(freq)
		}
		audio[i] = freq
	}
	if len(baseband) > 0 {
		power /= float64(len(baseband))
	}
	ch.Estimates.BasebandPower = power
	if peakDev > ch.Estimates.PeakDeviation {
		ch.Estimates.PeakDeviation = peakDev
	}

	noiseBW := ch.Filter.High - ch.Filter.Low
	snr := (power - noiseBW*maxf(ch.Estimates.N0, 1e-20)) / maxf(ch.Estimates.N0*maxf(noiseBW, 1), 1e-20)
	if f.ThresholdExtend && snr < thresholdExtendSNR {
		audio = f.threshold.Estimate(baseband, ch.Filter.OutputRate)
	}

	f.Deemph.Apply(audio, ch.Filter.OutputRate)

	if f.PLBank != nil {
		if toneHz, toneEnergy, total, ok := f.PLBank.Feed(audio); ok {
			if total > 0 && toneEnergy > total/2 {
				ch.Estimates.PLToneHz = toneHz
			}
		}
	}

	snrDB := linearToDB(snr)
	emit, _ := f.Squelch.Gate(snrDB)
	if f.ToneSquelchHz != 0 && math.Abs(ch.Estimates.PLToneHz-f.ToneSquelchHz) > 1 {
		emit = false
	}
	if ch.Output == nil {
		return nil
	}
	if !emit {
		ch.Output.AdvanceSilent(len(audio))
		return nil
	}

	out := make([]float32, len(audio))
	for i, v := range audio {
		out[i] = float32(v)
	}
	return ch.Output.SendAudio(out, false)
}
