package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// ErrSeedCharacterEmpty indicates a seed file without a character name.
var ErrSeedCharacterEmpty = errors.New("seed character name cannot be empty")

// ErrSeedAudioFileEmpty indicates a seed file without a reference audio path.
var ErrSeedAudioFileEmpty = errors.New("seed audio file cannot be empty")

// SeedFileName is the per-speaker seed descriptor inside the seeds directory.
const SeedFileName = "seed.json"

// SeedMetadata records how a seed was produced.
type SeedMetadata struct {
	CreatedAt  time.Time `json:"created_at,omitzero"`
	Provider   string    `json:"provider,omitempty"`
	SampleRate int       `json:"sample_rate,omitempty"`
	Duration   float64   `json:"duration,omitempty"`
}

// VoiceSeed is the reference voice for one speaker: audio plus the transcript
// of what is spoken in it. CharacterName must match chunk speakers exactly.
// Seeds are read-only during generation.
type VoiceSeed struct {
	CharacterName string       `json:"character_name"`
	Description   string       `json:"description,omitempty"`
	Gender        string       `json:"gender,omitempty"`
	Age           string       `json:"age,omitempty"`
	Accent        string       `json:"accent,omitempty"`
	AudioFile     string       `json:"audio_file"`
	PromptText    string       `json:"prompt_text,omitempty"`
	Metadata      SeedMetadata `json:"metadata,omitzero"`
}

// seedAlias accepts every historical spelling of the seed fields.
type seedAlias struct {
	CharacterName string       `json:"character_name"`
	Character     string       `json:"character"`
	Speaker       string       `json:"speaker"`
	Description   string       `json:"description"`
	Gender        string       `json:"gender"`
	Age           string       `json:"age"`
	Accent        string       `json:"accent"`
	AudioFile     string       `json:"audio_file"`
	SeedFile      string       `json:"seed_file"`
	AudioPath     string       `json:"audio_path"`
	PromptText    string       `json:"prompt_text"`
	Transcript    string       `json:"transcript"`
	Metadata      SeedMetadata `json:"metadata"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

// UnmarshalJSON accepts the legacy aliases character/speaker for
// character_name, seed_file/audio_path for audio_file, and transcript for
// prompt_text.
func (s *VoiceSeed) UnmarshalJSON(data []byte) error {
	var alias seedAlias

	err := json.Unmarshal(data, &alias)
	if err != nil {
		return fmt.Errorf("failed to unmarshal voice seed: %w", err)
	}

	s.CharacterName = firstNonEmpty(alias.CharacterName, alias.Character, alias.Speaker)
	s.Description = alias.Description
	s.Gender = alias.Gender
	s.Age = alias.Age
	s.Accent = alias.Accent
	s.AudioFile = firstNonEmpty(alias.AudioFile, alias.SeedFile, alias.AudioPath)
	s.PromptText = firstNonEmpty(alias.PromptText, alias.Transcript)
	s.Metadata = alias.Metadata

	if s.Description == "" {
		s.Description = "Voice for " + s.CharacterName
	}

	if s.CharacterName == "" {
		return ErrSeedCharacterEmpty
	}

	if s.AudioFile == "" {
		return fmt.Errorf("%w: speaker %q", ErrSeedAudioFileEmpty, s.CharacterName)
	}

	return nil
}

// AudioPath resolves the seed's companion audio file inside the seeds
// directory. The audio_file value is always relative to the speaker's own
// seed directory, never absolute.
func (s *VoiceSeed) AudioPath(seedsDir string) string {
	return filepath.Join(seedsDir, s.CharacterName, s.AudioFile)
}
