package frontend

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Synthetic is a deterministic signal-generator front-end: a CW tone
// plus white noise at a configurable offset from center, used by
// tests and `radiod -selftest` in place of the out-of-scope hardware
// drivers.
type Synthetic struct {
	SampleRate float64
	ToneHz     float64 // offset from center frequency
	ToneAmpl   float64
	NoiseSigma float64
	format     IQFormat

	rng *rand.Rand
}

// NewSynthetic returns a complex-sampling synthetic front-end.
func NewSynthetic(sampleRate, toneHz, toneAmpl, noiseSigma float64, seed int64) *Synthetic {
	return &Synthetic{
		SampleRate: sampleRate,
		ToneHz:     toneHz,
		ToneAmpl:   toneAmpl,
		NoiseSigma: noiseSigma,
		format:     Complex,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

func (s *Synthetic) Setup(state *State, config map[string]string) error {
	state.SampleRate = s.SampleRate
	state.Format = s.format
	state.BitsPerSample = 16
	state.IFMin = -s.SampleRate / 2
	state.IFMax = s.SampleRate / 2
	state.Gains = []GainStage{{Name: "synthetic", DB: 0}}
	return nil
}

func (s *Synthetic) Start(ctx context.Context, state *State, sink Sink) error {
	go s.run(ctx, state, sink)
	return nil
}

func (s *Synthetic) run(ctx context.Context, state *State, sink Sink) {
	const chunk = 960 // 20ms at 48kHz-equivalent blocking granularity
	phase := 0.0
	step := 2 * math.Pi * s.ToneHz / s.SampleRate
	var samples uint64

	ticker := time.NewTicker(time.Duration(float64(chunk) / s.SampleRate * float64(time.Second)))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		buf := make([]complex64, chunk)
		for i := range buf {
			phase += step
			re := s.ToneAmpl*math.Cos(phase) + s.NoiseSigma*s.rng.NormFloat64()
			im := s.ToneAmpl*math.Sin(phase) + s.NoiseSigma*s.rng.NormFloat64()
			buf[i] = complex64(complex(re, im))
		}
		samples += uint64(chunk)
		sink.Write(buf)
		state.UpdateTelemetry(samples, 0, 0, 10*math.Log10(s.ToneAmpl*s.ToneAmpl+2*s.NoiseSigma*s.NoiseSigma), time.Now().UnixNano())
	}
}

func (s *Synthetic) Tune(hz float64) (float64, error) { return hz, nil }
func (s *Synthetic) Gain(db float64) error            { return nil }
