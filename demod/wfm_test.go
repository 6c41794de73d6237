package demod

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompositeLowpassAttenuatesPilotTone(t *testing.T) {
	const fs = 192000.0
	const pilotHz = 19000.0
	const n = 4000

	lp := compositeLowpass{CutoffHz: 15000}
	var outPeak, inPeak float64
	for i := 0; i < n; i++ {
		x := math.Sin(2 * math.Pi * pilotHz * float64(i) / fs)
		y := lp.Apply(x, fs)
		if math.Abs(x) > inPeak {
			inPeak = math.Abs(x)
		}
		// Measure steady-state amplitude only, skipping the filter's
		// initial transient.
		if i > n/2 && math.Abs(y) > outPeak {
			outPeak = math.Abs(y)
		}
	}
	assert.Less(t, outPeak, inPeak*0.5, "a 19 kHz pilot tone should be well attenuated by a 15 kHz lowpass")
}

func TestCompositeLowpassPassesLowFrequencyAudio(t *testing.T) {
	const fs = 192000.0
	const toneHz = 400.0
	const n = 4000

	lp := compositeLowpass{CutoffHz: 15000}
	var outPeak, inPeak float64
	for i := 0; i < n; i++ {
		x := math.Sin(2 * math.Pi * toneHz * float64(i) / fs)
		y := lp.Apply(x, fs)
		if i > n/2 {
			if math.Abs(x) > inPeak {
				inPeak = math.Abs(x)
			}
			if math.Abs(y) > outPeak {
				outPeak = math.Abs(y)
			}
		}
	}
	assert.Greater(t, outPeak, inPeak*0.8, "audio well below cutoff should pass through close to unattenuated")
}
