package ptrack

import (
	"math"
)

// DefaultVoteKeepFraction is the share of the fullest histogram bin a bin needs to survive voting
const DefaultVoteKeepFraction = 0.5

type voteOptions struct {
	keepFraction float64
}

// VoteOption tunes FilterByPoseConsistency
type VoteOption func(*voteOptions)

// WithVoteKeepFraction sets histogram threshold relative to the maximum bin count
func WithVoteKeepFraction(fraction float64) VoteOption {
	return func(opts *voteOptions) {
		opts.keepFraction = fraction
	}
}

type poseSample struct {
	logScale      float64
	rotationDelta float64
}

// FilterByPoseConsistency keeps correspondences agreeing with the dominant (scale change, rotation) of the set.
// Every correspondence votes into a 2D histogram of log10 scale ratio and rotation difference of its best candidate;
// bins with less than keepFraction of the maximum count are dropped together with their correspondences.
// Correspondences without candidates or with non-positive scales are dropped. For scaleIncrement <= 1 or rotationBins < 1 input is returned as is.
func FilterByPoseConsistency(corrs []Correspondence, scaleIncrement float64, rotationBins int, opts ...VoteOption) []Correspondence {
	options := voteOptions{
		keepFraction: DefaultVoteKeepFraction,
	}
	for _, opt := range opts {
		opt(&options)
	}

	kept := make([]Correspondence, 0, len(corrs))
	if scaleIncrement <= 1 || rotationBins < 1 {
		return append(kept, corrs...)
	}

	voters := make([]int, 0, len(corrs))
	samples := make([]poseSample, 0, len(corrs))
	minLog, maxLog := math.Inf(1), math.Inf(-1)
	minRot, maxRot := math.Inf(1), math.Inf(-1)
	for i := range corrs {
		if len(corrs[i].Candidates) == 0 {
			continue
		}
		best := corrs[i].Best()
		sample := poseSample{
			logScale:      math.Log10(corrs[i].Observed.Scale / best.Model.Scale),
			rotationDelta: normalizeDegrees(corrs[i].Observed.Orientation - best.Model.Orientation),
		}
		if !isFinite(sample.logScale) {
			continue
		}
		voters = append(voters, i)
		samples = append(samples, sample)
		minLog, maxLog = minFloat64(minLog, sample.logScale), maxFloat64(maxLog, sample.logScale)
		minRot, maxRot = minFloat64(minRot, sample.rotationDelta), maxFloat64(maxRot, sample.rotationDelta)
	}
	if len(samples) == 0 {
		return kept
	}

	scaleBins := maxInt(1, int(math.Ceil((maxLog-minLog)/math.Log10(scaleIncrement))))
	bins := make([]int, scaleBins*rotationBins)
	binOf := func(s poseSample) int {
		return binIndex(s.logScale, minLog, maxLog, scaleBins)*rotationBins + binIndex(s.rotationDelta, minRot, maxRot, rotationBins)
	}

	maxCount := 0
	for _, s := range samples {
		b := binOf(s)
		bins[b]++
		if bins[b] > maxCount {
			maxCount = bins[b]
		}
	}
	threshold := options.keepFraction * float64(maxCount)
	for b := range bins {
		if float64(bins[b]) < threshold {
			bins[b] = 0
		}
	}
	// Backprojection
	for i, s := range samples {
		if bins[binOf(s)] > 0 {
			kept = append(kept, corrs[voters[i]])
		}
	}
	return kept
}

// binIndex maps value from [lo, hi] to one of n equal-width bins. hi goes to the last bin.
func binIndex(value, lo, hi float64, n int) int {
	if hi <= lo {
		return 0
	}
	idx := int((value - lo) / (hi - lo) * float64(n))
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}
