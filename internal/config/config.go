// Package config provides the configuration structure for the audiobook
// engine.
package config

import (
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                   string `toml:"url"`
	GenerateSubject       string `toml:"generate_subject"`
	StatusSubject         string `toml:"status_subject"`
	AmbienceSubject       string `toml:"ambience_subject"`
	GenerationDoneSubject string `toml:"generation_done_subject"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	ProjectsBaseDir string `toml:"projects_base_dir"`
	BaseLogsDir     string `toml:"base_logs_dir"`
}

// AudioConfig holds post-processing and quality thresholds.
type AudioConfig struct {
	TargetPeak        float64 `toml:"target_peak"`
	ClippingThreshold float64 `toml:"clipping_threshold"`
	CharsPerSecond    float64 `toml:"chars_per_second"`
	WordsPerSecond    float64 `toml:"words_per_second"`
	MergeSilenceMS    int     `toml:"merge_silence_ms"`
}

// GenerationConfig holds batch generation defaults.
type GenerationConfig struct {
	DefaultProvider string  `toml:"default_provider"`
	DefaultMethod   string  `toml:"default_method"`
	DefaultSpeed    float64 `toml:"default_speed"`
}

// CosyVoiceConfig locates the local CosyVoice installation.
type CosyVoiceConfig struct {
	Enabled   bool     `toml:"enabled"`
	ModelDir  string   `toml:"model_dir"`
	RunnerBin string   `toml:"runner_bin"`
	StripTags []string `toml:"strip_tags"`
}

// Dia2Config locates the Dia2 HTTP service.
type Dia2Config struct {
	Enabled        bool   `toml:"enabled"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ProvidersConfig groups all provider configurations.
type ProvidersConfig struct {
	CosyVoice CosyVoiceConfig `toml:"cosyvoice"`
	Dia2      Dia2Config      `toml:"dia2"`
}

// AmbienceConfig locates the ambience generation environment.
type AmbienceConfig struct {
	CondaEnv       string `toml:"conda_env"`
	Script         string `toml:"script"`
	OutputDir      string `toml:"output_dir"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Config is the root configuration structure.
type Config struct {
	NATS       NATSConfig       `toml:"nats"`
	Paths      PathsConfig      `toml:"paths"`
	Audio      AudioConfig      `toml:"audio"`
	Generation GenerationConfig `toml:"generation"`
	Providers  ProvidersConfig  `toml:"providers"`
	Ambience   AmbienceConfig   `toml:"ambience"`
}

// Load loads the configuration for the audiobook engine.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Audio.TargetPeak <= 0 {
		c.Audio.TargetPeak = 0.95
	}

	if c.Audio.ClippingThreshold <= 0 {
		c.Audio.ClippingThreshold = 0.99
	}

	if c.Audio.CharsPerSecond <= 0 {
		c.Audio.CharsPerSecond = 15.0
	}

	if c.Audio.WordsPerSecond <= 0 {
		c.Audio.WordsPerSecond = 2.5
	}

	if c.Audio.MergeSilenceMS <= 0 {
		c.Audio.MergeSilenceMS = 500
	}

	if c.Generation.DefaultSpeed <= 0 {
		c.Generation.DefaultSpeed = 1.0
	}
}
