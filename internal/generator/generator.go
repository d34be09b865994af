// Package generator orchestrates batch audiobook generation: it maps chunks
// to voice seeds, dispatches synthesis to registered TTS providers, applies
// per-chunk effect chains and quality heuristics, and persists chunk audio
// resumably.
package generator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/audiobook-engine/internal/audio"
	"github.com/book-expert/audiobook-engine/internal/core"
	"github.com/book-expert/audiobook-engine/internal/fsutil"
	"github.com/book-expert/audiobook-engine/internal/project"
	"github.com/book-expert/audiobook-engine/internal/registry"
)

// Hard-coded last-resort generation defaults, used when neither the chunk nor
// the batch options name a value.
const (
	FallbackProvider = "cosyvoice"
	FallbackMethod   = "auto"
	FallbackSpeed    = 1.0
)

// MinValidDurationSeconds is the duration below which a generated chunk is
// flagged as suspiciously short. It is a warning, never a failure.
const MinValidDurationSeconds = 0.5

// DefaultMergeSilenceMS is the silence inserted between chunks when combining
// the full audiobook.
const DefaultMergeSilenceMS = 500

// Chunk result statuses.
const (
	StatusGenerated     = "generated"
	StatusSkipped       = "skipped"
	StatusWouldGenerate = "would-generate"
	StatusFailed        = "failed"
)

// Static errors.
var (
	ErrProviderNotRegistered = errors.New("provider not registered")
	ErrNoSeedForSpeaker      = errors.New("no voice seed for speaker")
	ErrSeedAudioMissing      = errors.New("voice seed audio file not found")
	ErrNoChunksSelected      = errors.New("no chunks selected")
	ErrNoChunkAudio          = errors.New("no chunk audio files to combine")
)

// ProgressFunc receives per-chunk progress during a batch: the chunk just
// finished, how many of the selected chunks have been processed, and the
// running generated and failed counts.
type ProgressFunc func(result ChunkResult, processed, total, generated, failed int)

// Options selects what to generate and with which defaults. StartChunk and
// EndChunk are 1-indexed inclusive positions in the chunk sequence; zero means
// unbounded. ChunkIDs, when non-empty, overrides the range. Progress, when
// non-nil, is invoked after every chunk result.
type Options struct {
	Force           bool
	DryRun          bool
	StartChunk      int
	EndChunk        int
	ChunkIDs        []int
	DefaultProvider string
	DefaultMethod   string
	DefaultSpeed    float64
	Progress        ProgressFunc
}

// ChunkResult records the outcome of one chunk in a batch.
type ChunkResult struct {
	ChunkID  int
	Speaker  string
	Status   string
	Duration float64
	Warnings []string
	Err      error
}

// Stats summarizes one batch run.
type Stats struct {
	TotalChunks   int
	Generated     int
	Skipped       int
	Failed        int
	Warnings      int
	TotalDuration float64
	Elapsed       time.Duration
	Results       []ChunkResult
}

// Generator runs generation batches against one project store and one
// provider registry.
type Generator struct {
	store    *project.Store
	registry *registry.Registry
	writer   *audio.AsyncWriter
	log      *logger.Logger

	targetPeak        float64
	clippingThreshold float64
	charsPerSecond    float64
	wordsPerSecond    float64
	mergeSilenceMS    int
}

// New creates a generator with default quality thresholds. The async writer is
// optional; without one, chunk audio is written synchronously.
func New(
	store *project.Store,
	reg *registry.Registry,
	writer *audio.AsyncWriter,
	log *logger.Logger,
) *Generator {
	return &Generator{
		store:             store,
		registry:          reg,
		writer:            writer,
		log:               log,
		targetPeak:        audio.DefaultTargetPeak,
		clippingThreshold: audio.DefaultClippingThreshold,
		charsPerSecond:    audio.DefaultCharsPerSecond,
		wordsPerSecond:    audio.DefaultWordsPerSecond,
		mergeSilenceMS:    DefaultMergeSilenceMS,
	}
}

// SetQualityThresholds overrides the default normalization and heuristic
// parameters.
func (g *Generator) SetQualityThresholds(targetPeak, clippingThreshold, charsPerSecond, wordsPerSecond float64) {
	g.targetPeak = targetPeak
	g.clippingThreshold = clippingThreshold
	g.charsPerSecond = charsPerSecond
	g.wordsPerSecond = wordsPerSecond
}

// SetMergeSilence overrides the inter-chunk silence used by Combine.
func (g *Generator) SetMergeSilence(silenceMS int) {
	g.mergeSilenceMS = silenceMS
}

// ChunkFileName returns the canonical audio file name for a chunk ID. Its
// existence in the project audio directory is the resume marker.
func ChunkFileName(chunkID int) string {
	return fmt.Sprintf("chunk_%d.wav", chunkID)
}

// Generate runs one batch for the project named by slug. Individual chunk
// failures never abort the batch; load-time failures do. Context cancellation
// is honored between chunks, never mid-synthesis persist.
func (g *Generator) Generate(ctx context.Context, slug string, opts Options) (*Stats, error) {
	started := time.Now()

	proj, loadErr := g.store.LoadProject(slug)
	if loadErr != nil {
		return nil, loadErr
	}

	chunks, chunksErr := g.store.LoadChunks(proj)
	if chunksErr != nil {
		return nil, chunksErr
	}

	seeds := g.store.LoadSeeds(proj)

	selected := filterChunks(chunks, opts)
	if len(selected) == 0 {
		return nil, ErrNoChunksSelected
	}

	if !opts.DryRun {
		dirErr := g.store.EnsureAudioDir(proj)
		if dirErr != nil {
			return nil, dirErr
		}
	}

	audioDir := proj.AudioPath(g.store.BaseDir())
	seedsDir := proj.SeedsPath(g.store.BaseDir())

	stats := &Stats{
		TotalChunks:   len(selected),
		Generated:     0,
		Skipped:       0,
		Failed:        0,
		Warnings:      0,
		TotalDuration: 0,
		Elapsed:       0,
		Results:       nil,
	}

	for _, chunk := range selected {
		ctxErr := ctx.Err()
		if ctxErr != nil {
			g.log.Warn("Generation interrupted at chunk %d: %v", chunk.ID, ctxErr)

			break
		}

		result := g.processChunk(ctx, chunk, seeds, seedsDir, audioDir, opts)
		stats.Results = append(stats.Results, result)
		stats.Warnings += len(result.Warnings)

		switch result.Status {
		case StatusGenerated, StatusWouldGenerate:
			stats.Generated++
			stats.TotalDuration += result.Duration
		case StatusSkipped:
			stats.Skipped++
		case StatusFailed:
			stats.Failed++
			g.log.Error("Chunk %d failed: %v", result.ChunkID, result.Err)
		}

		if opts.Progress != nil {
			opts.Progress(result, len(stats.Results), stats.TotalChunks, stats.Generated, stats.Failed)
		}
	}

	if g.writer != nil {
		g.writer.Flush()
	}

	stats.Elapsed = time.Since(started)

	if !opts.DryRun {
		g.updateProjectStats(proj, chunks, audioDir)
	}

	g.log.Info(
		"Batch for %q done: %d generated, %d skipped, %d failed, %d warnings in %s",
		slug, stats.Generated, stats.Skipped, stats.Failed, stats.Warnings, stats.Elapsed,
	)

	return stats, nil
}

// filterChunks applies the chunk ID list, or failing that the 1-indexed
// inclusive position range, to the full sequence.
func filterChunks(chunks []project.Chunk, opts Options) []project.Chunk {
	if len(opts.ChunkIDs) > 0 {
		wanted := make(map[int]bool, len(opts.ChunkIDs))
		for _, id := range opts.ChunkIDs {
			wanted[id] = true
		}

		var selected []project.Chunk

		for _, chunk := range chunks {
			if wanted[chunk.ID] {
				selected = append(selected, chunk)
			}
		}

		return selected
	}

	start := opts.StartChunk
	if start < 1 {
		start = 1
	}

	end := opts.EndChunk
	if end < 1 || end > len(chunks) {
		end = len(chunks)
	}

	if start > len(chunks) || start > end {
		return nil
	}

	return chunks[start-1 : end]
}

// resolveTTSConfig applies the precedence chunk config, then batch defaults,
// then hard-coded fallbacks.
func resolveTTSConfig(chunk project.Chunk, opts Options) (string, string, float64) {
	providerName := ""
	method := ""
	speed := 0.0

	if chunk.TTSConfig != nil {
		providerName = chunk.TTSConfig.Provider
		method = chunk.TTSConfig.InferenceMethod
		speed = chunk.TTSConfig.Speed
	}

	if providerName == "" {
		providerName = opts.DefaultProvider
	}

	if providerName == "" {
		providerName = FallbackProvider
	}

	if method == "" {
		method = opts.DefaultMethod
	}

	if method == "" {
		method = FallbackMethod
	}

	if speed <= 0 {
		speed = opts.DefaultSpeed
	}

	if speed <= 0 {
		speed = FallbackSpeed
	}

	return providerName, method, speed
}

func (g *Generator) processChunk(
	ctx context.Context,
	chunk project.Chunk,
	seeds map[string]project.VoiceSeed,
	seedsDir, audioDir string,
	opts Options,
) ChunkResult {
	result := ChunkResult{
		ChunkID:  chunk.ID,
		Speaker:  chunk.Speaker,
		Status:   StatusFailed,
		Duration: 0,
		Warnings: nil,
		Err:      nil,
	}

	outputPath := filepath.Join(audioDir, ChunkFileName(chunk.ID))

	if !opts.Force {
		_, statErr := os.Stat(outputPath)
		if statErr == nil {
			result.Status = StatusSkipped

			return result
		}
	}

	if opts.DryRun {
		result.Status = StatusWouldGenerate

		return result
	}

	providerName, method, speed := resolveTTSConfig(chunk, opts)

	provider, ok := g.registry.Get(providerName)
	if !ok {
		result.Err = fmt.Errorf("%w: %q for chunk %d", ErrProviderNotRegistered, providerName, chunk.ID)

		return result
	}

	seed, hasSeed := seeds[chunk.Speaker]
	if !hasSeed {
		result.Err = fmt.Errorf("%w: %q", ErrNoSeedForSpeaker, chunk.Speaker)

		return result
	}

	seedAudioPath := seed.AudioPath(seedsDir)

	_, seedStatErr := os.Stat(seedAudioPath)
	if seedStatErr != nil {
		result.Err = fmt.Errorf("%w: %s", ErrSeedAudioMissing, seedAudioPath)

		return result
	}

	loadErr := provider.LoadModel(ctx)
	if loadErr != nil {
		result.Err = fmt.Errorf("failed to load provider %q: %w", providerName, loadErr)

		return result
	}

	request := core.SynthesisRequest{
		Text:            chunk.Text,
		VoiceSeedPath:   seedAudioPath,
		PromptText:      seed.PromptText,
		InferenceMethod: method,
		Emotion:         chunk.EmotionTag(),
		EmotionPrompt:   chunk.EmotionPrompt,
		Speed:           speed,
	}

	clip, genErr := provider.GenerateAudio(ctx, request)
	if genErr != nil {
		result.Err = fmt.Errorf("synthesis failed for chunk %d: %w", chunk.ID, genErr)

		return result
	}

	if clip.Empty() {
		result.Err = fmt.Errorf("%w: chunk %d", core.ErrEmptyAudio, chunk.ID)

		return result
	}

	finished, warnings, finishErr := g.finishClip(clip, chunk)
	result.Warnings = warnings

	if finishErr != nil {
		result.Err = finishErr

		return result
	}

	clip = finished

	persistErr := g.persistClip(outputPath, clip)
	if persistErr != nil {
		result.Err = persistErr

		return result
	}

	result.Status = StatusGenerated
	result.Duration = clip.Duration()

	return result
}

// finishClip runs the post-synthesis pipeline on one clip: quality heuristics,
// the chunk's effect chain, and peak normalization. Heuristic findings are
// warnings; a failed effect chain fails the chunk, since persisting the raw
// clip would silently drop a transform the chunk asked for.
func (g *Generator) finishClip(clip core.Clip, chunk project.Chunk) (core.Clip, []string, error) {
	var warnings []string

	if clip.Duration() < MinValidDurationSeconds {
		warnings = append(warnings, fmt.Sprintf(
			"duration %.2fs below minimum %.2fs", clip.Duration(), MinValidDurationSeconds,
		))
	}

	ratio, assessment := audio.EstimateCompletionRatio(
		clip.Samples, clip.SampleRate, chunk.Text, g.charsPerSecond, g.wordsPerSecond,
	)
	if assessment != audio.AssessmentComplete {
		warnings = append(warnings, fmt.Sprintf(
			"completion ratio %.2f suggests %s audio", ratio, assessment,
		))
	}

	if chunk.HasEffects() {
		processed, chainErr := audio.ApplyChain(clip.Samples, clip.SampleRate, effectChain(chunk))
		if chainErr != nil {
			return core.Clip{}, warnings, fmt.Errorf(
				"effect chain failed for chunk %d: %w", chunk.ID, chainErr,
			)
		}

		clip.Samples = processed
	}

	clip.Samples = audio.Normalize(clip.Samples, g.targetPeak)

	if audio.DetectClipping(clip.Samples, g.clippingThreshold) {
		warnings = append(warnings, "clipping detected after normalization")
	}

	for _, warning := range warnings {
		g.log.Warn("Chunk %d: %s", chunk.ID, warning)
	}

	return clip, warnings, nil
}

// effectChain converts the chunk's persisted effect configs into the audio
// package's chain representation.
func effectChain(chunk project.Chunk) []audio.EffectUse {
	chain := make([]audio.EffectUse, 0, len(chunk.AudioEffects))

	for _, effect := range chunk.AudioEffects {
		chain = append(chain, audio.EffectUse{Type: effect.Type, Params: effect.Params})
	}

	return chain
}

func (g *Generator) persistClip(path string, clip core.Clip) error {
	if g.writer == nil {
		return audio.WriteWAV(path, clip)
	}

	submitErr := g.writer.Submit(path, clip, nil)
	if submitErr != nil {
		return audio.WriteWAV(path, clip)
	}

	return nil
}

// updateProjectStats recomputes generated-chunk counts by scanning the audio
// directory, so the persisted metadata always reflects the files actually on
// disk rather than this run's in-memory tally.
func (g *Generator) updateProjectStats(proj *project.Project, chunks []project.Chunk, audioDir string) {
	generated := 0
	totalDuration := 0.0

	for _, chunk := range chunks {
		path := filepath.Join(audioDir, ChunkFileName(chunk.ID))

		_, statErr := os.Stat(path)
		if statErr != nil {
			continue
		}

		generated++

		clip, readErr := audio.ReadWAV(path)
		if readErr == nil {
			totalDuration += clip.Duration()
		}
	}

	proj.UpdateStats(len(chunks), generated, totalDuration)

	saveErr := g.store.SaveProject(proj)
	if saveErr != nil {
		g.log.Error("Failed to save project metadata for %q: %v", proj.Slug, saveErr)
	}
}

// Combine merges every present chunk audio file, in ascending chunk ID order,
// into the project's full audiobook file with a fixed silence between chunks.
// Missing chunk files are simply absent from the result.
func (g *Generator) Combine(slug string) (string, error) {
	proj, loadErr := g.store.LoadProject(slug)
	if loadErr != nil {
		return "", loadErr
	}

	chunks, chunksErr := g.store.LoadChunks(proj)
	if chunksErr != nil {
		return "", chunksErr
	}

	ordered := make([]project.Chunk, len(chunks))
	copy(ordered, chunks)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	audioDir := proj.AudioPath(g.store.BaseDir())

	var (
		buffers    [][]float64
		sampleRate int
	)

	for _, chunk := range ordered {
		path := filepath.Join(audioDir, ChunkFileName(chunk.ID))

		clip, readErr := audio.ReadWAV(path)
		if readErr != nil {
			continue
		}

		if sampleRate == 0 {
			sampleRate = clip.SampleRate
		}

		if clip.SampleRate != sampleRate {
			resampled, resampleErr := audio.Resample(
				clip.Samples,
				len(clip.Samples)*sampleRate/clip.SampleRate,
			)
			if resampleErr != nil {
				g.log.Warn("Skipping chunk %d in combine: %v", chunk.ID, resampleErr)

				continue
			}

			clip.Samples = resampled
		}

		buffers = append(buffers, clip.Samples)
	}

	if len(buffers) == 0 {
		return "", fmt.Errorf("%w: project %q", ErrNoChunkAudio, slug)
	}

	merged := audio.MergeWithSilence(buffers, sampleRate, g.mergeSilenceMS)
	outputPath := proj.FullAudioPath(g.store.BaseDir())

	writeErr := audio.WriteWAV(outputPath, core.Clip{Samples: merged, SampleRate: sampleRate})
	if writeErr != nil {
		return "", writeErr
	}

	var outputSize int64

	info, statErr := os.Stat(outputPath)
	if statErr == nil {
		outputSize = info.Size()
	}

	g.log.Info(
		"Combined %d chunks into %s (%s, %s)",
		len(buffers), outputPath,
		fsutil.FormatDuration(float64(len(merged))/float64(sampleRate)),
		fsutil.FormatFileSize(outputSize),
	)

	return outputPath, nil
}
