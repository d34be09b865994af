package audio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/audiobook-engine/internal/audio"
)

func TestNormalize_SetsPeak(t *testing.T) {
	t.Parallel()

	input := []float64{0.1, -0.4, 0.2}

	output := audio.Normalize(input, 0.95)

	assert.InDelta(t, 0.95, audio.Peak(output), 1e-12)

	// The result is a positive scalar multiple of the input.
	gain := output[0] / input[0]
	for i := range input {
		assert.InDelta(t, input[i]*gain, output[i], 1e-12)
	}
}

func TestNormalize_AllZeroUnchanged(t *testing.T) {
	t.Parallel()

	input := []float64{0, 0, 0}

	output := audio.Normalize(input, 0.95)

	assert.Equal(t, input, output)
}

func TestDetectClipping(t *testing.T) {
	t.Parallel()

	assert.True(t, audio.DetectClipping([]float64{0.2, -1.5, 0.1}, audio.DefaultClippingThreshold))
	assert.False(t, audio.DetectClipping([]float64{0.2, -0.5, 0.1}, audio.DefaultClippingThreshold))
}

func TestComputeStats(t *testing.T) {
	t.Parallel()

	samples := make([]float64, 16000)
	for i := range samples {
		samples[i] = 0.5
	}

	stats := audio.ComputeStats(samples, 16000)

	assert.InDelta(t, 1.0, stats.Duration, 1e-9)
	assert.InDelta(t, 0.5, stats.Peak, 1e-12)
	assert.InDelta(t, 0.5, stats.RMS, 1e-9)
	assert.False(t, stats.IsClipping)
	assert.Equal(t, 16000, stats.Samples)
}

func TestEstimateCompletionRatio_Categories(t *testing.T) {
	t.Parallel()

	// "hello world": 11 chars, 2 words. Expected duration is the blend of
	// 11/15 s and 2/2.5 s, about 0.77 s.
	text := "hello world"
	sampleRate := 1000

	onTime := make([]float64, 770)

	ratio, assessment := audio.EstimateCompletionRatio(
		onTime, sampleRate, text, audio.DefaultCharsPerSecond, audio.DefaultWordsPerSecond,
	)
	assert.Equal(t, audio.AssessmentComplete, assessment)
	assert.InDelta(t, 1.0, ratio, 0.05)

	tooShort := make([]float64, 300)

	_, assessment = audio.EstimateCompletionRatio(
		tooShort, sampleRate, text, audio.DefaultCharsPerSecond, audio.DefaultWordsPerSecond,
	)
	assert.Equal(t, audio.AssessmentClipped, assessment)

	tooLong := make([]float64, 2000)

	_, assessment = audio.EstimateCompletionRatio(
		tooLong, sampleRate, text, audio.DefaultCharsPerSecond, audio.DefaultWordsPerSecond,
	)
	assert.Equal(t, audio.AssessmentSlow, assessment)
}

func TestEstimateCompletionRatio_EmptyText(t *testing.T) {
	t.Parallel()

	ratio, assessment := audio.EstimateCompletionRatio(
		make([]float64, 100), 1000, "", audio.DefaultCharsPerSecond, audio.DefaultWordsPerSecond,
	)

	assert.InDelta(t, 1.0, ratio, 1e-12)
	assert.Equal(t, audio.AssessmentComplete, assessment)
}

func TestMergeWithSilence(t *testing.T) {
	t.Parallel()

	first := make([]float64, 100)
	second := make([]float64, 200)

	merged := audio.MergeWithSilence([][]float64{first, second}, 1000, 500)

	// 100 + 500 ms of silence at 1 kHz + 200, no trailing silence.
	require.Len(t, merged, 800)
}

func TestMergeWithSilence_Empty(t *testing.T) {
	t.Parallel()

	assert.Nil(t, audio.MergeWithSilence(nil, 1000, 500))
}

func TestMixToMono(t *testing.T) {
	t.Parallel()

	left := []float64{1.0, 0.0, -1.0}
	right := []float64{0.0, 0.0, 1.0}

	mono := audio.MixToMono([][]float64{left, right})

	require.Len(t, mono, 3)
	assert.InDelta(t, 0.5, mono[0], 1e-12)
	assert.InDelta(t, 0.0, mono[1], 1e-12)
	assert.InDelta(t, 0.0, mono[2], 1e-12)
}
