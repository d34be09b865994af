// generate-audiobook is the batch CLI: it generates chunk audio for one
// project and optionally combines the results into a full audiobook file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/audiobook-engine/internal/audio"
	"github.com/book-expert/audiobook-engine/internal/config"
	"github.com/book-expert/audiobook-engine/internal/fsutil"
	"github.com/book-expert/audiobook-engine/internal/generator"
	"github.com/book-expert/audiobook-engine/internal/project"
	"github.com/book-expert/audiobook-engine/internal/providers/cosyvoice"
	"github.com/book-expert/audiobook-engine/internal/providers/dia2"
	"github.com/book-expert/audiobook-engine/internal/registry"
)

// Flag descriptions.
const (
	flagProjectDesc  = "Project slug under the projects base directory (required)"
	flagForceDesc    = "Regenerate chunks even when their audio file already exists"
	flagStartDesc    = "First chunk position to generate (1-indexed, inclusive)"
	flagEndDesc      = "Last chunk position to generate (1-indexed, inclusive)"
	flagDryRunDesc   = "Report what would be generated without synthesizing"
	flagProviderDesc = "Default TTS provider for chunks without their own config"
	flagMethodDesc   = "Default inference method for chunks without their own config"
	flagSpeedDesc    = "Default speech speed for chunks without their own config"
	flagCombineDesc  = "Combine generated chunks into the full audiobook file after the batch"
)

const logFileName = "generate-audiobook.log"

// errProjectRequired indicates the required -project flag was not supplied.
var errProjectRequired = errors.New("the -project flag is required")

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	project  string
	force    bool
	start    int
	end      int
	dryRun   bool
	provider string
	method   string
	speed    float64
	combine  bool
}

func main() {
	err := run()
	if err != nil {
		// A logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	flags := parseFlags()

	if flags.project == "" {
		flag.Usage()

		return errProjectRequired
	}

	bootstrapLog, bootErr := logger.New(os.TempDir(), logFileName)
	if bootErr != nil {
		return fmt.Errorf("failed to create bootstrap logger: %w", bootErr)
	}

	cfg, cfgErr := config.Load(bootstrapLog)
	if cfgErr != nil {
		return fmt.Errorf("failed to load configuration: %w", cfgErr)
	}

	appLog, logErr := logger.New(cfg.Paths.BaseLogsDir, logFileName)
	if logErr != nil {
		return fmt.Errorf("failed to initialize logger: %w", logErr)
	}
	defer appLog.Close()

	return execute(cfg, appLog, flags)
}

func parseFlags() appFlags {
	var flags appFlags

	flag.StringVar(&flags.project, "project", "", flagProjectDesc)
	flag.BoolVar(&flags.force, "force", false, flagForceDesc)
	flag.IntVar(&flags.start, "start", 0, flagStartDesc)
	flag.IntVar(&flags.end, "end", 0, flagEndDesc)
	flag.BoolVar(&flags.dryRun, "dry-run", false, flagDryRunDesc)
	flag.StringVar(&flags.provider, "provider", "", flagProviderDesc)
	flag.StringVar(&flags.method, "method", "", flagMethodDesc)
	flag.Float64Var(&flags.speed, "speed", 0, flagSpeedDesc)
	flag.BoolVar(&flags.combine, "combine", false, flagCombineDesc)
	flag.Parse()

	return flags
}

func execute(cfg *config.Config, appLog *logger.Logger, flags appFlags) error {
	reg := registry.New()

	if cfg.Providers.CosyVoice.Enabled {
		reg.Register(cosyvoice.New(cosyvoice.Config{
			ModelDir:  cfg.Providers.CosyVoice.ModelDir,
			RunnerBin: cfg.Providers.CosyVoice.RunnerBin,
			StripTags: cfg.Providers.CosyVoice.StripTags,
		}, appLog))
	}

	if cfg.Providers.Dia2.Enabled {
		reg.Register(dia2.New(dia2.Config{
			BaseURL: cfg.Providers.Dia2.BaseURL,
			Timeout: time.Duration(cfg.Providers.Dia2.TimeoutSeconds) * time.Second,
		}, appLog))
	}

	store := project.NewStore(cfg.Paths.ProjectsBaseDir, appLog)

	writer := audio.NewAsyncWriter(appLog)
	defer writer.Shutdown()

	gen := generator.New(store, reg, writer, appLog)
	gen.SetQualityThresholds(
		cfg.Audio.TargetPeak,
		cfg.Audio.ClippingThreshold,
		cfg.Audio.CharsPerSecond,
		cfg.Audio.WordsPerSecond,
	)
	gen.SetMergeSilence(cfg.Audio.MergeSilenceMS)

	opts := generator.Options{
		Force:           flags.force,
		DryRun:          flags.dryRun,
		StartChunk:      flags.start,
		EndChunk:        flags.end,
		ChunkIDs:        nil,
		DefaultProvider: firstNonEmpty(flags.provider, cfg.Generation.DefaultProvider),
		DefaultMethod:   firstNonEmpty(flags.method, cfg.Generation.DefaultMethod),
		DefaultSpeed:    flags.speed,
		Progress:        nil,
	}

	if opts.DefaultSpeed <= 0 {
		opts.DefaultSpeed = cfg.Generation.DefaultSpeed
	}

	// SIGINT finishes the in-flight chunk, then stops; already-written chunk
	// files survive for the next resume.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, genErr := gen.Generate(ctx, flags.project, opts)
	if genErr != nil {
		return fmt.Errorf("generation failed: %w", genErr)
	}

	printSummary(flags.project, stats)

	if flags.combine && !flags.dryRun && stats.Failed == 0 {
		outputPath, combineErr := gen.Combine(flags.project)
		if combineErr != nil {
			return fmt.Errorf("combine failed: %w", combineErr)
		}

		fmt.Printf("Full audiobook: %s\n", outputPath)
	}

	return nil
}

func printSummary(slug string, stats *generator.Stats) {
	fmt.Printf("Project %q: %d chunks selected\n", slug, stats.TotalChunks)
	fmt.Printf(
		"  generated: %d  skipped: %d  failed: %d  warnings: %d\n",
		stats.Generated, stats.Skipped, stats.Failed, stats.Warnings,
	)
	fmt.Printf(
		"  audio: %s  elapsed: %s\n",
		fsutil.FormatDuration(stats.TotalDuration),
		fsutil.FormatDuration(stats.Elapsed.Seconds()),
	)

	for _, result := range stats.Results {
		if result.Status == generator.StatusFailed {
			fmt.Printf("  chunk %d (%s): %v\n", result.ChunkID, result.Speaker, result.Err)
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
