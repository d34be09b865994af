// Package project defines the persisted entities of an audiobook project and
// their on-disk layout: speaker-tagged chunks, voice seeds, and the project
// metadata aggregate.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Chunk types accepted in the chunk sequence file.
const (
	TypeDialogue          = "dialogue"
	TypeNarration         = "narration"
	TypeInternalMonologue = "internal_monologue"
)

// EmotionNeutral is the neutral default; an emotion tag equal to it carries no
// instruction.
const EmotionNeutral = "neutral"

// Static validation errors.
var (
	ErrChunkTextEmpty    = errors.New("chunk text cannot be empty")
	ErrChunkSpeakerEmpty = errors.New("chunk speaker cannot be empty")
	ErrChunkTypeInvalid  = errors.New("invalid chunk type")
)

// EffectConfig names one audio effect and its parameter mapping. Parameters
// are numeric; booleans and enums do not occur in the effect vocabulary.
type EffectConfig struct {
	Type   string             `json:"type"`
	Params map[string]float64 `json:"params,omitempty"`
}

// TTSConfig is a chunk's own generation configuration. All fields are
// optional; absent values fall back to batch defaults.
type TTSConfig struct {
	Provider        string  `json:"provider,omitempty"`
	InferenceMethod string  `json:"inference_method,omitempty"`
	Speed           float64 `json:"speed,omitempty"`
}

// Chunk is one synthesizable unit of narration or dialogue. IDs are unique
// within a project and stable across regenerations.
type Chunk struct {
	ID            int            `json:"chunk_id"`
	Text          string         `json:"text"`
	Speaker       string         `json:"speaker"`
	Emotion       string         `json:"emotion,omitempty"`
	Type          string         `json:"type,omitempty"`
	TTSConfig     *TTSConfig     `json:"tts_config,omitempty"`
	AudioEffects  []EffectConfig `json:"audio_effects,omitempty"`
	EmotionPrompt string         `json:"emotion_prompt,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// chunkAlias mirrors Chunk with both historical id spellings so legacy chunk
// files parse without migration.
type chunkAlias struct {
	ChunkID       *int           `json:"chunk_id"`
	ID            *int           `json:"id"`
	Text          string         `json:"text"`
	Speaker       string         `json:"speaker"`
	Emotion       string         `json:"emotion"`
	Type          string         `json:"type"`
	TTSConfig     *TTSConfig     `json:"tts_config"`
	AudioEffects  []EffectConfig `json:"audio_effects"`
	EmotionPrompt string         `json:"emotion_prompt"`
	Metadata      map[string]any `json:"metadata"`
}

// UnmarshalJSON accepts both "chunk_id" and the legacy "id" key, defaults the
// chunk type to narration, and validates required fields.
func (c *Chunk) UnmarshalJSON(data []byte) error {
	var alias chunkAlias

	err := json.Unmarshal(data, &alias)
	if err != nil {
		return fmt.Errorf("failed to unmarshal chunk: %w", err)
	}

	switch {
	case alias.ChunkID != nil:
		c.ID = *alias.ChunkID
	case alias.ID != nil:
		c.ID = *alias.ID
	}

	c.Text = alias.Text
	c.Speaker = alias.Speaker
	c.Emotion = alias.Emotion
	c.Type = alias.Type
	c.TTSConfig = alias.TTSConfig
	c.AudioEffects = alias.AudioEffects
	c.EmotionPrompt = alias.EmotionPrompt
	c.Metadata = alias.Metadata

	if c.Emotion == "" {
		c.Emotion = EmotionNeutral
	}

	if c.Type == "" {
		c.Type = TypeNarration
	}

	return c.Validate()
}

// Validate checks the invariants the chunking step promises.
func (c *Chunk) Validate() error {
	if c.Text == "" {
		return fmt.Errorf("%w: chunk %d", ErrChunkTextEmpty, c.ID)
	}

	if c.Speaker == "" {
		return fmt.Errorf("%w: chunk %d", ErrChunkSpeakerEmpty, c.ID)
	}

	switch c.Type {
	case TypeDialogue, TypeNarration, TypeInternalMonologue:
	default:
		return fmt.Errorf("%w: %q on chunk %d", ErrChunkTypeInvalid, c.Type, c.ID)
	}

	return nil
}

// HasEffects reports whether the chunk carries an effect chain.
func (c *Chunk) HasEffects() bool {
	return len(c.AudioEffects) > 0
}

// EmotionTag returns the chunk's effective named emotion. The top-level field
// wins; a legacy "emotion" entry in the metadata bag is honored when the
// field itself is neutral. Neutral maps to the empty string.
func (c *Chunk) EmotionTag() string {
	emotion := c.Emotion

	if (emotion == "" || emotion == EmotionNeutral) && c.Metadata != nil {
		if legacy, ok := c.Metadata["emotion"].(string); ok {
			emotion = legacy
		}
	}

	if emotion == EmotionNeutral {
		return ""
	}

	return emotion
}
