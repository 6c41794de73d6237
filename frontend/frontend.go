// Package frontend defines the front-end hardware driver contract
// and the data the master filter and channels
// read from it. Actual hardware bindings (RX888/HackRF/Fobos/SDRplay)
// are out of scope; this package ships only the
// interface and a synthetic driver used for tests and -selftest,
// mirroring how the corpus's iclac-sdrplay and tve-devices repos each
// bind one concrete device behind a small interface.
package frontend

import (
	"context"
	"sync"
	"time"
)

// IQFormat describes whether the front-end produces real or complex
// samples.
type IQFormat int

const (
	Real    IQFormat = 0
	Complex IQFormat = 1
)

// GainStage is one entry in the analog gain chain (LNA, mixer, IF,
// attenuator) reported by the front-end.
type GainStage struct {
	Name string
	DB   float64
}

// State is the front-end's shared, mutex-protected tuning and telemetry
// state.
type State struct {
	mu   sync.Mutex
	cond *sync.Cond

	SampleRate   float64
	Format       IQFormat
	BitsPerSample int
	CenterFreq   float64 // f_LO, Hz
	IFMin        float64 // IF_min relative to f_LO
	IFMax        float64 // IF_max relative to f_LO
	Gains        []GainStage
	CalOffsetDB  float64

	Samples          uint64
	Overranges       uint64
	OverrangeSamples uint64
	IFPowerDBFS      float64
	TimestampNS      int64 // ns since GPS epoch

	Locked bool // hardware cannot retune further
}

// NewState returns an initialized State with its condition variable wired up.
func NewState() *State {
	s := &State{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Snapshot returns a copy of the current tuning/telemetry tuple.
func (s *State) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s
	cp.mu = sync.Mutex{}
	cp.cond = nil
	gains := make([]GainStage, len(s.Gains))
	copy(gains, s.Gains)
	cp.Gains = gains
	return cp
}

// Retune updates the center frequency and wakes anyone waiting on a
// coverage change.
func (s *State) Retune(hz float64) {
	s.mu.Lock()
	s.CenterFreq = hz
	s.mu.Unlock()
	s.cond.Broadcast()
}

// UpdateTelemetry merges driver-reported counters and wakes waiters.
func (s *State) UpdateTelemetry(samples, overranges, overrangeSamples uint64, ifPowerDBFS float64, ts int64) {
	s.mu.Lock()
	s.Samples = samples
	s.Overranges = overranges
	s.OverrangeSamples = overrangeSamples
	s.IFPowerDBFS = ifPowerDBFS
	s.TimestampNS = ts
	s.mu.Unlock()
	s.cond.Broadcast()
}

// WaitChange blocks until the next Retune/UpdateTelemetry broadcast or
// the timeout elapses, so a channel suspended on out-of-coverage
// tuning can re-check after at most one block.
func (s *State) WaitChange(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.mu.Lock()
		s.cond.Wait()
		s.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}

// Sink receives time-domain IF samples from a Driver. The master
// filter implements Sink.
type Sink interface {
	// Write appends interleaved real or complex samples. For Real
	// format, samples are real-valued in samples[i].real with
	// samples[i].imag==0; drivers may pack real samples into the real
	// part only.
	Write(samples []complex64)
}

// Driver is the pluggable capability a hardware front-end module
// implements.
type Driver interface {
	// Setup reads the driver's config section and initializes hardware,
	// populating the initial State.
	Setup(state *State, config map[string]string) error
	// Start begins streaming into sink. It spawns its own reader
	// goroutine and returns immediately; ctx cancellation stops it.
	Start(ctx context.Context, state *State, sink Sink) error
	// Tune requests a new center frequency and returns the frequency
	// actually achieved (hardware may have coarser resolution).
	Tune(hz float64) (actualHz float64, err error)
	// Gain sets overall analog gain in dB, where supported.
	Gain(db float64) error
}
