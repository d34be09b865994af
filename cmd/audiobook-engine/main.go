// main package for the audiobook-engine service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/audiobook-engine/internal/ambience"
	"github.com/book-expert/audiobook-engine/internal/audio"
	"github.com/book-expert/audiobook-engine/internal/config"
	"github.com/book-expert/audiobook-engine/internal/generator"
	"github.com/book-expert/audiobook-engine/internal/project"
	"github.com/book-expert/audiobook-engine/internal/providers/cosyvoice"
	"github.com/book-expert/audiobook-engine/internal/providers/dia2"
	"github.com/book-expert/audiobook-engine/internal/registry"
	"github.com/book-expert/audiobook-engine/internal/worker"
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "audiobook-engine.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	return serve(cfg, finalLog)
}

// serve wires the provider registry, generator, and NATS worker, then blocks
// until shutdown.
func serve(cfg *config.Config, log *logger.Logger) error {
	reg := registry.New()
	registerProviders(reg, cfg, log)

	store := project.NewStore(cfg.Paths.ProjectsBaseDir, log)

	writer := audio.NewAsyncWriter(log)
	defer writer.Shutdown()

	gen := generator.New(store, reg, writer, log)
	gen.SetQualityThresholds(
		cfg.Audio.TargetPeak,
		cfg.Audio.ClippingThreshold,
		cfg.Audio.CharsPerSecond,
		cfg.Audio.WordsPerSecond,
	)
	gen.SetMergeSilence(cfg.Audio.MergeSilenceMS)

	natsConnection, connectErr := nats.Connect(cfg.NATS.URL)
	if connectErr != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, connectErr)
	}
	defer natsConnection.Close()

	manager := generator.NewManager(gen, log)
	if cfg.NATS.GenerationDoneSubject != "" {
		manager.SetDoneHook(worker.NewDonePublisher(
			natsConnection, cfg.NATS.GenerationDoneSubject, log,
		))
	}

	ambienceGen := ambience.New(ambience.Config{
		CondaEnv:  cfg.Ambience.CondaEnv,
		Script:    cfg.Ambience.Script,
		OutputDir: cfg.Ambience.OutputDir,
		Timeout:   time.Duration(cfg.Ambience.TimeoutSeconds) * time.Second,
	}, log)

	natsWorker, workerErr := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.GenerateSubject,
		cfg.NATS.StatusSubject,
		cfg.NATS.AmbienceSubject,
		manager,
		ambienceGen,
		log,
	)
	if workerErr != nil {
		return fmt.Errorf("failed to create NATS worker: %w", workerErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.System(
		"Audiobook engine initialized. Listening on %s and %s",
		cfg.NATS.GenerateSubject, cfg.NATS.StatusSubject,
	)

	runErr := natsWorker.Run(ctx)
	if runErr != nil {
		return fmt.Errorf("worker stopped with error: %w", runErr)
	}

	return nil
}

// registerProviders constructs every enabled TTS provider. Providers are
// registered unloaded; model verification happens on first use.
func registerProviders(reg *registry.Registry, cfg *config.Config, log *logger.Logger) {
	if cfg.Providers.CosyVoice.Enabled {
		reg.Register(cosyvoice.New(cosyvoice.Config{
			ModelDir:  cfg.Providers.CosyVoice.ModelDir,
			RunnerBin: cfg.Providers.CosyVoice.RunnerBin,
			StripTags: cfg.Providers.CosyVoice.StripTags,
		}, log))
	}

	if cfg.Providers.Dia2.Enabled {
		reg.Register(dia2.New(dia2.Config{
			BaseURL: cfg.Providers.Dia2.BaseURL,
			Timeout: time.Duration(cfg.Providers.Dia2.TimeoutSeconds) * time.Second,
		}, log))
	}

	for _, info := range reg.List() {
		log.Info("Registered TTS provider %q (%s)", info.Name, info.DisplayName)
	}
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
