package audio

import (
	"math"
	"strings"
)

// Default quality thresholds. The speaking-rate constants are tuned to
// English narration and are configurable rather than universal.
const (
	DefaultTargetPeak        = 0.95
	DefaultClippingThreshold = 0.99
	DefaultCharsPerSecond    = 15.0
	DefaultWordsPerSecond    = 2.5
)

// Completion assessments returned by EstimateCompletionRatio.
const (
	AssessmentComplete = "complete"
	AssessmentClipped  = "clipped"
	AssessmentSlow     = "slow"
)

// Ratio bounds separating the three assessments.
const (
	completionClippedBelow = 0.75
	completionSlowAbove    = 1.5
)

// Normalize scales samples so the peak absolute amplitude equals targetLevel.
// An all-zero signal is returned unchanged. The result is always a positive
// scalar multiple of the input.
func Normalize(samples []float64, targetLevel float64) []float64 {
	peak := Peak(samples)
	if peak == 0 {
		return samples
	}

	gain := targetLevel / peak
	scaled := make([]float64, len(samples))

	for i, sample := range samples {
		scaled[i] = sample * gain
	}

	return scaled
}

// Peak returns the maximum absolute sample value.
func Peak(samples []float64) float64 {
	peak := 0.0

	for _, sample := range samples {
		abs := math.Abs(sample)
		if abs > peak {
			peak = abs
		}
	}

	return peak
}

// DetectClipping reports whether any sample's absolute value meets or exceeds
// threshold.
func DetectClipping(samples []float64, threshold float64) bool {
	for _, sample := range samples {
		if math.Abs(sample) >= threshold {
			return true
		}
	}

	return false
}

// Stats summarizes one buffer for logging and diagnostics.
type Stats struct {
	Duration   float64
	Peak       float64
	RMS        float64
	IsClipping bool
	Samples    int
}

// ComputeStats measures a buffer at the given sample rate.
func ComputeStats(samples []float64, sampleRate int) Stats {
	var sumSquares float64

	for _, sample := range samples {
		sumSquares += sample * sample
	}

	rms := 0.0
	if len(samples) > 0 {
		rms = math.Sqrt(sumSquares / float64(len(samples)))
	}

	duration := 0.0
	if sampleRate > 0 {
		duration = float64(len(samples)) / float64(sampleRate)
	}

	return Stats{
		Duration:   duration,
		Peak:       Peak(samples),
		RMS:        rms,
		IsClipping: DetectClipping(samples, DefaultClippingThreshold),
		Samples:    len(samples),
	}
}

// EstimateCompletionRatio predicts the expected duration of the source text
// from a blend of chars-per-second and words-per-second speaking rates and
// returns actual/expected plus a categorical assessment.
//
// This is a heuristic proxy for "did the model truncate or loop", not a
// correctness guarantee; both off-nominal assessments are warnings, never
// failures.
func EstimateCompletionRatio(
	samples []float64,
	sampleRate int,
	text string,
	charsPerSecond, wordsPerSecond float64,
) (float64, string) {
	actualDuration := 0.0
	if sampleRate > 0 {
		actualDuration = float64(len(samples)) / float64(sampleRate)
	}

	expectedFromChars := float64(len(text)) / charsPerSecond
	expectedFromWords := float64(len(strings.Fields(text))) / wordsPerSecond
	expectedDuration := (expectedFromChars + expectedFromWords) / 2

	if expectedDuration == 0 {
		return 1.0, AssessmentComplete
	}

	ratio := actualDuration / expectedDuration

	switch {
	case ratio < completionClippedBelow:
		return ratio, AssessmentClipped
	case ratio > completionSlowAbove:
		return ratio, AssessmentSlow
	default:
		return ratio, AssessmentComplete
	}
}

// MergeWithSilence concatenates buffers in order with silenceMS of silence
// between consecutive buffers (none after the last).
func MergeWithSilence(buffers [][]float64, sampleRate, silenceMS int) []float64 {
	if len(buffers) == 0 {
		return nil
	}

	silenceSamples := silenceMS * sampleRate / 1000

	total := silenceSamples * (len(buffers) - 1)
	for _, buffer := range buffers {
		total += len(buffer)
	}

	merged := make([]float64, 0, total)

	for i, buffer := range buffers {
		merged = append(merged, buffer...)
		if i < len(buffers)-1 {
			merged = append(merged, make([]float64, silenceSamples)...)
		}
	}

	return merged
}

// MixToMono collapses interleaved or stacked channels by averaging. Channels
// are given as separate slices of equal length.
func MixToMono(channels [][]float64) []float64 {
	if len(channels) == 0 {
		return nil
	}

	if len(channels) == 1 {
		return channels[0]
	}

	length := len(channels[0])
	for _, channel := range channels {
		if len(channel) < length {
			length = len(channel)
		}
	}

	mono := make([]float64, length)

	for i := range length {
		var sum float64
		for _, channel := range channels {
			sum += channel[i]
		}

		mono[i] = sum / float64(len(channels))
	}

	return mono
}
