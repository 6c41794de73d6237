// Package channel implements one independently-tuned demodulator
// channel and the fixed-capacity registry that owns all of them.
//
// ubersdr itself is only a client of a channel table, over the TLV
// protocol in radiod.go/radiod_status.go; the struct shape here is
// grounded in original_source/src/radio.c's `struct channel`,
// expressed as Go fields with ubersdr's naming register (short,
// lower-case, no Hungarian prefixes).
package channel

import (
	"fmt"
	"sync"
	"time"

	"github.com/ka9q/radiod/filter"
)

// Discriminant is the demodulator family a channel runs.
type Discriminant int

const (
	DiscriminantNone Discriminant = iota
	Linear
	FM
	WFM
	Spectrum
)

// Demodulator is the per-block processing contract every demod/
// family implements; Channel holds one and calls it once per block
// with the downconverted baseband samples for that block.
type Demodulator struct {
	// Process consumes baseband samples for one block and is free to mutate the
	// owning channel's Estimates, output via Output, and return a non-nil error
	// only for a fatal condition that should close the channel.
	Process func(ch *Channel, baseband []complex128) error
	// Close releases any demodulator-private resources (Goertzel
	// banks, pilot PLL state) on channel teardown.
	Close func()
	// Concrete is the demod-family value backing Process/Close (e.g.
	// a *demod.FM), stashed here so packages that can't import demod
	// without a cycle (status) can still reach mode-specific state
	// like squelch thresholds via a type assertion.
	Concrete interface{}
}

// Tuning holds the frequency-agile fields re-evaluated every block.
type Tuning struct {
	RFFrequency float64 // f_rf, Hz
	FirstLO     float64 // f_LO at channel creation, Hz
	PostShift   float64 // optional post-demod shift, Hz
	Doppler     float64 // Hz
	DopplerRate float64 // Hz/s
	Locked      bool
}

// IFFrequency returns f_if = f_rf - f_LO.
func (t Tuning) IFFrequency() float64 { return t.RFFrequency - t.FirstLO }

// FilterGeometry holds the primary passband and windowing parameters.
type FilterGeometry struct {
	Low, High  float64 // Hz, signed, relative to f_if
	KaiserBeta float64
	OutputRate float64 // Rs, Hz

	S      int     // current bin shift, recomputed every block
	DeltaF float64 // current residual, Hz
}

// SecondaryFilter holds the optional tighter inner filter applied
// after the primary passband, run at a coarser block rate.
type SecondaryFilter struct {
	Enabled    bool
	Blocking   int // B, primary blocks accumulated per inner output
	KaiserBeta float64
	Low, High  float64
}

// Estimates holds the signal-quality numbers updated every block.
type Estimates struct {
	BasebandPower float64
	N0            float64
	CarrierOffset float64
	PLLSNR        float64
	PLLLocked     bool
	PeakDeviation float64
	PLToneHz      float64
	PLToneDevHz   float64
}

// Output is the RTP sender/encoder contract a channel drives; defined
// here (rather than depending on package rtpout directly) so channel
// has no import-cycle exposure to the wire-format package. rtpout.Sender
// implements this.
type Output interface {
	SendAudio(samples []float32, stereo bool) error
	SendSpectrum(bins []float32) error
	// AdvanceSilent keeps the RTP timestamp moving by frames while
	// squelch suppresses the actual packet send.
	AdvanceSilent(frames int)
	Close() error
}

// StatusMailbox is a single-slot, overwrite-on-send mailbox carrying
// the most recent raw command bytes to the channel's demod loop.
type StatusMailbox struct {
	mu      sync.Mutex
	pending []byte
	have    bool
}

// Post overwrites any pending command with a new one.
func (m *StatusMailbox) Post(cmd []byte) {
	m.mu.Lock()
	m.pending = cmd
	m.have = true
	m.mu.Unlock()
}

// Take removes and returns the pending command, if any.
func (m *StatusMailbox) Take() ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.have {
		return nil, false
	}
	cmd := m.pending
	m.pending = nil
	m.have = false
	return cmd, true
}

// Channel is one independently-tuned demodulator instance.
type Channel struct {
	mu sync.Mutex

	SSRC      uint32
	InUse     bool
	CreatedAt time.Time

	Tuning    Tuning
	Filter    FilterGeometry
	Secondary SecondaryFilter

	Discriminant Discriminant
	PresetName   string
	Demod        *Demodulator

	Estimates Estimates

	Slot   *filter.Slot
	Output Output

	Mailbox StatusMailbox

	OutputInterval int // blocks between periodic status emissions
	blocksSinceOut int

	IdleLifetime int // blocks remaining before auto-close when f_rf==0
	Closed       bool

	StructuralGen uint64 // bumped on any structural reconfiguration
}

// RequiresRestart reports whether any of the parameters that must take
// effect atomically at a block boundary changed.
func (c *Channel) RequiresRestart(prevGen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.StructuralGen != prevGen
}

// MarkStructuralChange bumps the generation counter; called by
// command handling whenever sample rate, encoding, filter geometry,
// secondary filter or demod type changes.
func (c *Channel) MarkStructuralChange() {
	c.mu.Lock()
	c.StructuralGen++
	c.mu.Unlock()
}

// TickIdle decrements the idle countdown when the channel is parked (f_rf ==
// 0) and reports whether it has reached zero.
func (c *Channel) TickIdle() (expired bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Tuning.RFFrequency != 0 {
		return false
	}
	if c.IdleLifetime <= 0 {
		return true
	}
	c.IdleLifetime--
	return c.IdleLifetime == 0
}

// ResetIdle restores the idle countdown; called whenever a command touches
// this channel.
func (c *Channel) ResetIdle(blocks int) {
	c.mu.Lock()
	c.IdleLifetime = blocks
	c.mu.Unlock()
}

// DueForStatus reports whether the periodic status interval has
// elapsed and resets the counter if so.
func (c *Channel) DueForStatus() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocksSinceOut++
	if c.blocksSinceOut >= c.OutputInterval && c.OutputInterval > 0 {
		c.blocksSinceOut = 0
		return true
	}
	return false
}

// close releases demodulator and output resources. Called only from
// the registry under its mutex.
func (c *Channel) close() error {
	if c.Demod != nil && c.Demod.Close != nil {
		c.Demod.Close()
	}
	if c.Output != nil {
		if err := c.Output.Close(); err != nil {
			return fmt.Errorf("channel: close ssrc %d output: %w", c.SSRC, err)
		}
	}
	c.Closed = true
	c.InUse = false
	return nil
}
