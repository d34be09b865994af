// Package core defines the capability interfaces and shared types for the
// audiobook generation engine.
package core

import (
	"context"
	"errors"
)

// Static errors shared across provider implementations.
var (
	// ErrEmptyText indicates that the synthesis text was empty, or became
	// empty after provider-specific normalization.
	ErrEmptyText = errors.New("text is empty after cleaning")
	// ErrEmptyAudio indicates that a provider returned a zero-length buffer.
	ErrEmptyAudio = errors.New("provider returned empty audio")
	// ErrUnknownMethod indicates an inference method the provider does not recognize.
	ErrUnknownMethod = errors.New("unknown inference method")
	// ErrModelArtifactMissing indicates that the model's on-disk artifact could
	// not be located.
	ErrModelArtifactMissing = errors.New("model artifact not found")
	// ErrRuntimeUnavailable indicates that supporting software for a provider
	// is not installed or not reachable.
	ErrRuntimeUnavailable = errors.New("provider runtime unavailable")
	// ErrSeedUnreadable indicates that the voice seed audio could not be read.
	ErrSeedUnreadable = errors.New("voice seed audio unreadable")
)

// Clip is a single-channel audio buffer at a known sample rate.
type Clip struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}

	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Empty reports whether the clip carries no samples.
func (c Clip) Empty() bool {
	return len(c.Samples) == 0
}

// SynthesisRequest carries everything a provider needs to generate one chunk
// of audio. Emotion is a named tag translated by providers that support
// instruction-based control; EmotionPrompt is a literal instruction that
// always takes precedence over Emotion.
type SynthesisRequest struct {
	Text            string
	VoiceSeedPath   string
	PromptText      string
	InferenceMethod string
	Emotion         string
	EmotionPrompt   string
	Speed           float64
}

// MethodInfo describes one inference method for UI display. It has no
// execution effect.
type MethodInfo struct {
	Name               string `json:"name"`
	DisplayName        string `json:"display_name"`
	Description        string `json:"description"`
	RequiresPromptText bool   `json:"requires_prompt_text"`
}

// TTSProvider is the uniform contract over heterogeneous TTS backends. The
// orchestrator never interprets a provider's method vocabulary; only the
// provider does.
type TTSProvider interface {
	// Name is the unique registry key for this provider.
	Name() string
	// DisplayName is the human-readable name for UI listings.
	DisplayName() string
	// InferenceMethods returns the ordered set of named generation modes
	// this provider understands. The first entry is the provider default.
	InferenceMethods() []string
	// SupportsVoiceCloning reports whether the provider conditions on
	// reference audio.
	SupportsVoiceCloning() bool
	// RequiresPromptText reports whether a transcript of the reference audio
	// materially improves or is required for quality.
	RequiresPromptText() bool
	// SampleRate is the native output rate. Before LoadModel it may return a
	// provider default that later changes; callers must tolerate that.
	SampleRate() int
	// LoadModel materializes the model. Idempotent: a no-op after the first
	// success. This is the only place a multi-second blocking load happens.
	LoadModel(ctx context.Context) error
	// GenerateAudio synthesizes one request into a mono clip at the
	// provider's native rate. It never returns an empty clip silently.
	GenerateAudio(ctx context.Context, req SynthesisRequest) (Clip, error)
	// MethodInfo returns descriptive metadata for one inference method.
	MethodInfo(method string) MethodInfo
}
