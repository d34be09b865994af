// Package ambience generates background soundscapes from text prompts by
// driving an audio generation model installed in a conda environment.
package ambience

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/audiobook-engine/internal/audio"
	"github.com/book-expert/audiobook-engine/internal/fsutil"
)

// Static errors.
var (
	ErrPromptEmpty         = errors.New("ambience prompt cannot be empty")
	ErrDurationNonPositive = errors.New("ambience duration must be positive")
	ErrNoOutputProduced    = errors.New("ambience generator produced no output file")
)

const (
	defaultCondaEnv  = "ambience"
	defaultTimeout   = 10 * time.Minute
	defaultRunnerBin = "generate_ambience.py"
)

// Config locates the ambience generation environment.
type Config struct {
	// CondaEnv is the conda environment holding the generation model.
	CondaEnv string
	// Script is the generation entry point run inside the environment.
	Script string
	// OutputDir receives generated ambience files.
	OutputDir string
	// Timeout bounds one generation run; zero uses the default.
	Timeout time.Duration
}

// Request describes one ambience generation.
type Request struct {
	// Prompt is the natural-language scene description.
	Prompt string
	// DurationSeconds is the requested length of the generated audio.
	DurationSeconds float64
	// Name is the base file name for the output; derived from the prompt
	// when empty.
	Name string
}

// Result reports one completed generation.
type Result struct {
	OutputPath      string
	DurationSeconds float64
	Elapsed         time.Duration
}

// Generator runs ambience generation jobs.
type Generator struct {
	config Config
	log    *logger.Logger
}

// New creates an ambience generator.
func New(cfg Config, log *logger.Logger) *Generator {
	if cfg.CondaEnv == "" {
		cfg.CondaEnv = defaultCondaEnv
	}

	if cfg.Script == "" {
		cfg.Script = defaultRunnerBin
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Generator{config: cfg, log: log}
}

// Generate runs one ambience job under the configured timeout and returns
// where the audio landed and how long it actually is.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.Prompt == "" {
		return nil, ErrPromptEmpty
	}

	if req.DurationSeconds <= 0 {
		return nil, ErrDurationNonPositive
	}

	dirErr := fsutil.EnsureDir(g.config.OutputDir)
	if dirErr != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", g.config.OutputDir, dirErr)
	}

	name := outputName(req)
	outputPath := filepath.Join(g.config.OutputDir, name+".wav")

	runCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	started := time.Now()

	args := []string{
		"run", "-n", g.config.CondaEnv,
		"python", g.config.Script,
		"--prompt", req.Prompt,
		"--duration", strconv.FormatFloat(req.DurationSeconds, 'f', 1, 64),
		"--output", outputPath,
	}

	// #nosec G204 -- environment and script come from operator configuration
	cmd := exec.CommandContext(runCtx, "conda", args...)

	output, runErr := cmd.CombinedOutput()
	if runErr != nil {
		return nil, fmt.Errorf(
			"ambience generation failed: %w - output: %s", runErr, string(output),
		)
	}

	clip, readErr := audio.ReadWAV(outputPath)
	if readErr != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoOutputProduced, outputPath)
	}

	elapsed := time.Since(started)
	g.log.Info("Ambience %q generated in %s (%.1fs of audio)", name, elapsed, clip.Duration())

	return &Result{
		OutputPath:      outputPath,
		DurationSeconds: clip.Duration(),
		Elapsed:         elapsed,
	}, nil
}

// outputName picks the output base name: an explicit name is sanitized for
// the filesystem, otherwise one is derived from the prompt.
func outputName(req Request) string {
	if req.Name == "" {
		return slugFromPrompt(req.Prompt)
	}

	return fsutil.SanitizeFilename(req.Name)
}

// slugFromPrompt derives a filesystem-safe base name from the prompt.
func slugFromPrompt(prompt string) string {
	const maxLength = 48

	slug := make([]rune, 0, maxLength)

	for _, r := range prompt {
		if len(slug) >= maxLength {
			break
		}

		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			slug = append(slug, r)
		case r >= 'A' && r <= 'Z':
			slug = append(slug, r+('a'-'A'))
		case r == ' ' || r == '-' || r == '_':
			if len(slug) > 0 && slug[len(slug)-1] != '_' {
				slug = append(slug, '_')
			}
		}
	}

	if len(slug) == 0 {
		return "ambience"
	}

	return string(slug)
}
