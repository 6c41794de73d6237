package filter

import "math"

// NoiseEstimator tracks a channel's noise power spectral density N0 from the
// bins outside its signal passband, following original_source/src/radio.c's
// estimate_noise(): take the 10th percentile bin power as a robust low
// estimate, apply a bias correction for order statistics of a chi-squared
// population, then smooth with an exponential moving average.
type NoiseEstimator struct {
	alpha float64 // EMA smoothing factor, 0 < alpha <= 1
	n0    float64
	have  bool
}

// NewNoiseEstimator returns an estimator with the given EMA smoothing
// factor (ka9q-radio's default corresponds to roughly a 1-second time
// constant at typical block rates).
func NewNoiseEstimator(alpha float64) *NoiseEstimator {
	return &NoiseEstimator{alpha: alpha}
}

// percentileBiasCorrection compensates for the fact that the k-th
// order statistic of n exponentially-distributed power samples
// systematically underestimates the population mean; ka9q-radio uses
// the 10th percentile (p=0.1) and a closed-form correction of
// -ln(1-p) for an exponential population, since bin power is
// chi-squared(2) distributed (exponential) under the null hypothesis
// of pure noise.
const noisePercentile = 0.10

func percentileBiasCorrection(p float64) float64 {
	return -math.Log(1 - p)
}

// Update computes the 10th-percentile power across powerBins (squared
// magnitudes of the out-of-passband bins), applies the bias
// correction, and folds the result into the smoothed N0 estimate.
// Returns the updated estimate.
func (e *NoiseEstimator) Update(powerBins []float64) float64 {
	if len(powerBins) == 0 {
		if e.have {
			return e.n0
		}
		return 0
	}
	sample := quickselectPercentile(powerBins, noisePercentile)
	corrected := sample / percentileBiasCorrection(noisePercentile)

	if !e.have {
		e.n0 = corrected
		e.have = true
		return e.n0
	}
	e.n0 = e.alpha*corrected + (1-e.alpha)*e.n0
	return e.n0
}

// N0 returns the current smoothed estimate without updating it.
func (e *NoiseEstimator) N0() float64 { return e.n0 }

// quickselectPercentile returns the value at the given percentile
// (0..1) of data using Hoare's quickselect, operating on a scratch
// copy so the caller's slice is untouched. O(n) average case, unlike
// sorting the whole passband-excluded bin set every block.
func quickselectPercentile(data []float64, p float64) float64 {
	scratch := make([]float64, len(data))
	copy(scratch, data)

	k := int(p * float64(len(scratch)-1))
	lo, hi := 0, len(scratch)-1
	for lo < hi {
		pivotIdx := partition(scratch, lo, hi, lo+(hi-lo)/2)
		switch {
		case k == pivotIdx:
			return scratch[k]
		case k < pivotIdx:
			hi = pivotIdx - 1
		default:
			lo = pivotIdx + 1
		}
	}
	return scratch[lo]
}

func partition(a []float64, lo, hi, pivotIdx int) int {
	pivot := a[pivotIdx]
	a[pivotIdx], a[hi] = a[hi], a[pivotIdx]
	store := lo
	for i := lo; i < hi; i++ {
		if a[i] < pivot {
			a[store], a[i] = a[i], a[store]
			store++
		}
	}
	a[hi], a[store] = a[store], a[hi]
	return store
}
