// Package audio provides deterministic post-processing effects, quality
// heuristics, and file I/O for generated speech.
//
// Every effect is a pure function over a mono sample buffer: same input, same
// parameters, same output. Effects preserve channel layout and sample rate.
package audio

import (
	"errors"
	"fmt"
	"math"
)

// Effect names understood by the chain.
const (
	EffectReverb = "reverb"
	EffectSpeed  = "speed"
	EffectVolume = "volume"
)

// Static errors.
var (
	ErrUnknownEffect     = errors.New("unknown effect")
	ErrParameterRange    = errors.New("effect parameter out of range")
	ErrSpeedNonPositive  = errors.New("speed must be positive")
	ErrEmptyEffectBuffer = errors.New("cannot apply effect to empty buffer")
)

const fadeDurationSeconds = 0.05

// Parameter describes one effect parameter: its default and the closed range
// the UI may offer. Omitted parameters take the default.
type Parameter struct {
	Type        string  `json:"type"`
	Default     float64 `json:"default"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Description string  `json:"description"`
}

// Effect is a deterministic, stateless audio transform.
type Effect interface {
	// Name is the unique effect key used in chunk effect configs.
	Name() string
	// DisplayName is the human-readable name for UI listings.
	DisplayName() string
	// Parameters returns the parameter schema for validation and defaults.
	Parameters() map[string]Parameter
	// Apply transforms samples in the declared parameter space. Mono stays
	// mono; the sample rate never changes.
	Apply(samples []float64, sampleRate int, params map[string]float64) ([]float64, error)
}

// EffectUse selects one effect and its parameter values inside a chain.
type EffectUse struct {
	Type   string
	Params map[string]float64
}

// availableEffects maps effect names to instances. All effects are stateless,
// so sharing instances is safe.
var availableEffects = map[string]Effect{
	EffectReverb: reverbEffect{},
	EffectSpeed:  speedEffect{},
	EffectVolume: volumeEffect{},
}

// GetEffect returns the effect registered under name.
func GetEffect(name string) (Effect, error) {
	effect, ok := availableEffects[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEffect, name)
	}

	return effect, nil
}

// ListEffects returns every available effect in a stable order.
func ListEffects() []Effect {
	return []Effect{
		availableEffects[EffectReverb],
		availableEffects[EffectSpeed],
		availableEffects[EffectVolume],
	}
}

// ApplyChain applies effects strictly in the order given, each receiving the
// previous effect's output. An unknown effect type aborts the whole chain:
// the caller asked for a transform this build cannot honor, and skipping it
// would silently change the product.
func ApplyChain(samples []float64, sampleRate int, chain []EffectUse) ([]float64, error) {
	processed := samples

	for _, use := range chain {
		effect, err := GetEffect(use.Type)
		if err != nil {
			return nil, err
		}

		processed, err = effect.Apply(processed, sampleRate, use.Params)
		if err != nil {
			return nil, fmt.Errorf("effect %q failed: %w", use.Type, err)
		}
	}

	return processed, nil
}

// resolveParam returns the validated value for one declared parameter,
// falling back to the schema default when the caller omitted it.
func resolveParam(schema map[string]Parameter, params map[string]float64, name string) (float64, error) {
	spec, ok := schema[name]
	if !ok {
		return 0, fmt.Errorf("%w: undeclared parameter %q", ErrParameterRange, name)
	}

	value, supplied := params[name]
	if !supplied {
		return spec.Default, nil
	}

	if value < spec.Min || value > spec.Max {
		return 0, fmt.Errorf(
			"%w: %s=%g outside [%g, %g]",
			ErrParameterRange, name, value, spec.Min, spec.Max,
		)
	}

	return value, nil
}

// reverbEffect simulates a single reflected path: the signal delayed by
// delay_ms and scaled by decay*intensity is added back onto the original,
// then short linear fades smooth the edges.
type reverbEffect struct{}

func (reverbEffect) Name() string { return EffectReverb }

func (reverbEffect) DisplayName() string { return "Reverb" }

func (reverbEffect) Parameters() map[string]Parameter {
	return map[string]Parameter{
		"intensity": {
			Type:        "float",
			Default:     0.5,
			Min:         0.0,
			Max:         1.0,
			Description: "Reverb intensity (0=none, 1=maximum)",
		},
		"delay_ms": {
			Type:        "int",
			Default:     20,
			Min:         10,
			Max:         100,
			Description: "Delay in milliseconds",
		},
		"decay": {
			Type:        "float",
			Default:     0.2,
			Min:         0.1,
			Max:         0.5,
			Description: "Decay factor for the delayed signal",
		},
	}
}

func (e reverbEffect) Apply(samples []float64, sampleRate int, params map[string]float64) ([]float64, error) {
	schema := e.Parameters()

	intensity, err := resolveParam(schema, params, "intensity")
	if err != nil {
		return nil, err
	}

	delayMS, err := resolveParam(schema, params, "delay_ms")
	if err != nil {
		return nil, err
	}

	decay, err := resolveParam(schema, params, "decay")
	if err != nil {
		return nil, err
	}

	effectiveDecay := decay * intensity
	delaySamples := int(delayMS / 1000.0 * float64(sampleRate))

	processed := make([]float64, len(samples))
	copy(processed, samples)

	// A delay longer than the buffer leaves nothing to add; the fades still
	// apply.
	if delaySamples < len(processed) {
		for i := delaySamples; i < len(processed); i++ {
			processed[i] += samples[i-delaySamples] * effectiveDecay
		}
	}

	fadeSamples := int(fadeDurationSeconds * float64(sampleRate))
	applyFades(processed, fadeSamples)

	return processed, nil
}

// applyFades applies linear fade-in and fade-out in place. Buffers too short
// for both ramps are left untouched.
func applyFades(samples []float64, fadeSamples int) {
	if fadeSamples <= 1 || len(samples) <= fadeSamples*2 {
		return
	}

	for i := range fadeSamples {
		gain := float64(i) / float64(fadeSamples-1)
		samples[i] *= gain
		samples[len(samples)-1-i] *= gain
	}
}

// speedEffect resamples the time axis by linear interpolation. It changes
// pitch along with duration; it is not a pitch-preserving time-stretch.
type speedEffect struct{}

func (speedEffect) Name() string { return EffectSpeed }

func (speedEffect) DisplayName() string { return "Speed Adjustment" }

func (speedEffect) Parameters() map[string]Parameter {
	return map[string]Parameter{
		"speed": {
			Type:        "float",
			Default:     1.0,
			Min:         0.5,
			Max:         2.0,
			Description: "Playback speed (0.5=slower, 1.0=normal, 2.0=faster)",
		},
	}
}

func (e speedEffect) Apply(samples []float64, sampleRate int, params map[string]float64) ([]float64, error) {
	speed, err := resolveParam(e.Parameters(), params, "speed")
	if err != nil {
		return nil, err
	}

	// Identity must return the same buffer, not a recomputed copy, so
	// round-trips through the chain cannot accumulate interpolation drift.
	if speed == 1.0 {
		return samples, nil
	}

	return Resample(samples, int(math.Round(float64(len(samples))/speed)))
}

// Resample stretches or compresses samples to newLength via linear
// interpolation.
func Resample(samples []float64, newLength int) ([]float64, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyEffectBuffer
	}

	if newLength <= 0 {
		return nil, ErrSpeedNonPositive
	}

	if newLength == len(samples) {
		return samples, nil
	}

	stretched := make([]float64, newLength)
	scale := float64(len(samples)-1) / float64(newLength-1)

	if newLength == 1 {
		stretched[0] = samples[0]

		return stretched, nil
	}

	for i := range stretched {
		position := float64(i) * scale
		left := int(position)

		if left >= len(samples)-1 {
			stretched[i] = samples[len(samples)-1]

			continue
		}

		frac := position - float64(left)
		stretched[i] = samples[left]*(1-frac) + samples[left+1]*frac
	}

	return stretched, nil
}

// volumeEffect is a scalar gain multiplier.
type volumeEffect struct{}

func (volumeEffect) Name() string { return EffectVolume }

func (volumeEffect) DisplayName() string { return "Volume" }

func (volumeEffect) Parameters() map[string]Parameter {
	return map[string]Parameter{
		"volume": {
			Type:        "float",
			Default:     1.0,
			Min:         0.0,
			Max:         2.0,
			Description: "Volume level (0.0=silence, 1.0=original, 2.0=2x louder)",
		},
	}
}

func (e volumeEffect) Apply(samples []float64, _ int, params map[string]float64) ([]float64, error) {
	volume, err := resolveParam(e.Parameters(), params, "volume")
	if err != nil {
		return nil, err
	}

	if volume == 1.0 {
		return samples, nil
	}

	scaled := make([]float64, len(samples))
	for i, sample := range samples {
		scaled[i] = sample * volume
	}

	return scaled, nil
}
