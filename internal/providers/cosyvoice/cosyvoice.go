// Package cosyvoice implements the TTS provider contract over a local
// CosyVoice2 installation, invoked as a subprocess.
package cosyvoice

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/book-expert/logger"

	"github.com/book-expert/audiobook-engine/internal/audio"
	"github.com/book-expert/audiobook-engine/internal/core"
)

// ProviderName is the registry key for this provider.
const ProviderName = "cosyvoice"

// Inference methods. Instruct2 accepts a natural-language style instruction;
// auto picks between zero-shot and cross-lingual based on the seed transcript.
const (
	MethodInstruct2    = "instruct2"
	MethodAuto         = "auto"
	MethodZeroShot     = "zero-shot"
	MethodCrossLingual = "cross-lingual"
)

const defaultSampleRate = 22050

// autoCrossLingualRatio is the cleaned-text-to-prompt length ratio below which
// auto mode prefers cross-lingual over zero-shot.
const autoCrossLingualRatio = 0.5

// defaultStripTags are the inline style tags removed from text before
// synthesis in every mode except instruct2, which interprets them natively.
var defaultStripTags = []string{
	"[breath]", "[noise]", "[laughter]", "[cough]",
	"[clucking]", "[accent]", "[quick_breath]",
	"[hissing]", "[sigh]", "[vocalized-noise]",
	"[lipsmack]", "[mn]",
}

// emotionInstructions maps named emotion tags to instruct2 style instructions.
var emotionInstructions = map[string]string{
	"angry":     "angrily, with rising intensity",
	"sad":       "sadly, with a heavy heart",
	"happy":     "happily, with warmth",
	"excited":   "excitedly, with high energy",
	"fearful":   "fearfully, with a trembling voice",
	"scared":    "fearfully, with a trembling voice",
	"calm":      "calmly and evenly",
	"surprised": "with genuine surprise",
	"whisper":   "in a soft whisper",
	"serious":   "in a grave, serious tone",
}

// Config locates the CosyVoice installation.
type Config struct {
	// ModelDir is the directory holding the downloaded model artifacts.
	ModelDir string
	// RunnerBin is the inference runner executable.
	RunnerBin string
	// StripTags overrides the default inline tag strip list when non-nil.
	StripTags []string
}

// Provider is the CosyVoice TTS provider.
type Provider struct {
	config Config
	log    *logger.Logger

	loadOnce sync.Once
	loadErr  error
}

// New creates a CosyVoice provider. The model is not touched until LoadModel.
func New(cfg Config, log *logger.Logger) *Provider {
	if cfg.RunnerBin == "" {
		cfg.RunnerBin = "cosyvoice-infer"
	}

	if cfg.StripTags == nil {
		cfg.StripTags = defaultStripTags
	}

	return &Provider{
		config:   cfg,
		log:      log,
		loadOnce: sync.Once{},
		loadErr:  nil,
	}
}

// Name returns the registry key.
func (p *Provider) Name() string { return ProviderName }

// DisplayName returns the human-readable name.
func (p *Provider) DisplayName() string { return "CosyVoice 2" }

// InferenceMethods returns the supported methods, default first.
func (p *Provider) InferenceMethods() []string {
	return []string{MethodInstruct2, MethodAuto, MethodZeroShot, MethodCrossLingual}
}

// SupportsVoiceCloning reports reference-audio conditioning support.
func (p *Provider) SupportsVoiceCloning() bool { return true }

// RequiresPromptText reports that a seed transcript materially improves
// quality; zero-shot mode needs it outright.
func (p *Provider) RequiresPromptText() bool { return true }

// SampleRate returns the native output rate.
func (p *Provider) SampleRate() int { return defaultSampleRate }

// LoadModel verifies the model artifacts and runner are present. Idempotent:
// the check runs once and its result is cached.
func (p *Provider) LoadModel(_ context.Context) error {
	p.loadOnce.Do(func() {
		_, statErr := os.Stat(p.config.ModelDir)
		if statErr != nil {
			p.loadErr = fmt.Errorf("%w: %s", core.ErrModelArtifactMissing, p.config.ModelDir)

			return
		}

		_, lookErr := exec.LookPath(p.config.RunnerBin)
		if lookErr != nil {
			p.loadErr = fmt.Errorf("%w: %s", core.ErrRuntimeUnavailable, p.config.RunnerBin)

			return
		}

		p.log.Info("CosyVoice model verified at %s", p.config.ModelDir)
	})

	return p.loadErr
}

// MethodInfo returns descriptive metadata for one method.
func (p *Provider) MethodInfo(method string) core.MethodInfo {
	switch method {
	case MethodInstruct2:
		return core.MethodInfo{
			Name:               MethodInstruct2,
			DisplayName:        "Instruct",
			Description:        "Style-instructed synthesis; inline tags and emotion instructions are honored",
			RequiresPromptText: false,
		}
	case MethodAuto:
		return core.MethodInfo{
			Name:               MethodAuto,
			DisplayName:        "Auto",
			Description:        "Picks zero-shot or cross-lingual from the seed transcript",
			RequiresPromptText: false,
		}
	case MethodZeroShot:
		return core.MethodInfo{
			Name:               MethodZeroShot,
			DisplayName:        "Zero-Shot",
			Description:        "Voice cloning conditioned on seed audio and its transcript",
			RequiresPromptText: true,
		}
	case MethodCrossLingual:
		return core.MethodInfo{
			Name:               MethodCrossLingual,
			DisplayName:        "Cross-Lingual",
			Description:        "Voice cloning from seed audio alone, no transcript needed",
			RequiresPromptText: false,
		}
	default:
		return core.MethodInfo{
			Name:               method,
			DisplayName:        method,
			Description:        "",
			RequiresPromptText: false,
		}
	}
}

// GenerateAudio synthesizes one request. Unknown methods are rejected rather
// than silently remapped.
func (p *Provider) GenerateAudio(ctx context.Context, req core.SynthesisRequest) (core.Clip, error) {
	text := req.Text
	if req.InferenceMethod != MethodInstruct2 {
		text = stripTags(text, p.config.StripTags)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return core.Clip{}, core.ErrEmptyText
	}

	method, methodErr := p.resolveMethod(req.InferenceMethod, text, req.PromptText)
	if methodErr != nil {
		return core.Clip{}, methodErr
	}

	seedPath, seedCleanup, seedErr := p.prepareSeed(req.VoiceSeedPath)
	if seedErr != nil {
		return core.Clip{}, seedErr
	}
	defer seedCleanup()

	outputFile, tempErr := os.CreateTemp("", "cosyvoice-output-*.wav")
	if tempErr != nil {
		return core.Clip{}, fmt.Errorf("failed to create temp file for output: %w", tempErr)
	}

	outputPath := outputFile.Name()
	_ = outputFile.Close()

	defer func() {
		removeErr := os.Remove(outputPath)
		if removeErr != nil && !os.IsNotExist(removeErr) {
			p.log.Warn("Failed to remove temp file '%s': %v", outputPath, removeErr)
		}
	}()

	args := p.buildArgs(method, text, seedPath, req, outputPath)

	// #nosec G204 -- runner path comes from operator configuration
	cmd := exec.CommandContext(ctx, p.config.RunnerBin, args...)

	output, runErr := cmd.CombinedOutput()
	if runErr != nil {
		return core.Clip{}, fmt.Errorf(
			"cosyvoice runner failed: %w - output: %s", runErr, string(output),
		)
	}

	clip, readErr := audio.ReadWAV(outputPath)
	if readErr != nil {
		return core.Clip{}, fmt.Errorf("failed to read generated audio: %w", readErr)
	}

	if clip.Empty() {
		return core.Clip{}, core.ErrEmptyAudio
	}

	return clip, nil
}

// resolveMethod maps auto to a concrete mode and validates the rest. Zero-shot
// without a transcript degrades to cross-lingual, which needs none.
func (p *Provider) resolveMethod(method, cleanText, promptText string) (string, error) {
	switch method {
	case MethodAuto:
		return chooseAutoMethod(cleanText, promptText), nil
	case MethodZeroShot:
		if promptText == "" {
			p.log.Warn("Zero-shot requested without prompt text, using cross-lingual")

			return MethodCrossLingual, nil
		}

		return MethodZeroShot, nil
	case MethodInstruct2, MethodCrossLingual:
		return method, nil
	default:
		return "", fmt.Errorf("%w: %q", core.ErrUnknownMethod, method)
	}
}

// chooseAutoMethod prefers cross-lingual when the synthesis text is short
// relative to the seed transcript, where zero-shot tends to echo the prompt.
func chooseAutoMethod(cleanText, promptText string) string {
	if promptText == "" {
		return MethodCrossLingual
	}

	if float64(len(cleanText)) < autoCrossLingualRatio*float64(len(promptText)) {
		return MethodCrossLingual
	}

	return MethodZeroShot
}

// prepareSeed hands WAV seeds through untouched and converts MP3 seeds to a
// temporary WAV the runner can consume.
func (p *Provider) prepareSeed(seedPath string) (string, func(), error) {
	if strings.ToLower(filepath.Ext(seedPath)) != ".mp3" {
		return seedPath, func() {}, nil
	}

	clip, readErr := audio.ReadSeedAudio(seedPath)
	if readErr != nil {
		return "", nil, readErr
	}

	tempFile, tempErr := os.CreateTemp("", "cosyvoice-seed-*.wav")
	if tempErr != nil {
		return "", nil, fmt.Errorf("failed to create temp file for seed: %w", tempErr)
	}

	tempPath := tempFile.Name()
	_ = tempFile.Close()

	writeErr := audio.WriteWAV(tempPath, clip)
	if writeErr != nil {
		_ = os.Remove(tempPath)

		return "", nil, fmt.Errorf("failed to convert seed to WAV: %w", writeErr)
	}

	cleanup := func() {
		removeErr := os.Remove(tempPath)
		if removeErr != nil {
			p.log.Warn("Failed to remove temp file '%s': %v", tempPath, removeErr)
		}
	}

	return tempPath, cleanup, nil
}

func (p *Provider) buildArgs(
	method, text, seedPath string,
	req core.SynthesisRequest,
	outputPath string,
) []string {
	args := []string{
		"--model-dir", p.config.ModelDir,
		"--mode", method,
		"--text", text,
		"--prompt-wav", seedPath,
		"--output", outputPath,
		"--speed", fmt.Sprintf("%.2f", req.Speed),
	}

	if req.PromptText != "" {
		args = append(args, "--prompt-text", req.PromptText)
	}

	if method == MethodInstruct2 {
		instruction := instructionFor(req)
		if instruction != "" {
			args = append(args, "--instruct-text", instruction)
		}
	}

	return args
}

// instructionFor resolves the instruct2 style instruction. An explicit
// emotion prompt always wins over the named-emotion translation.
func instructionFor(req core.SynthesisRequest) string {
	if req.EmotionPrompt != "" {
		return req.EmotionPrompt
	}

	return emotionInstructions[req.Emotion]
}

// stripTags removes the configured inline tags, case-insensitively.
func stripTags(text string, tags []string) string {
	lower := strings.ToLower(text)

	for _, tag := range tags {
		for {
			index := strings.Index(lower, tag)
			if index < 0 {
				break
			}

			text = text[:index] + text[index+len(tag):]
			lower = lower[:index] + lower[index+len(tag):]
		}
	}

	return text
}
