package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/logger"

	"github.com/book-expert/audiobook-engine/internal/fsutil"
)

// Static errors for load-time failures. These abort a run before any chunk
// work happens; everything below the chunk boundary is handled per chunk.
var (
	ErrProjectDirMissing = errors.New("project directory not found")
	ErrChunksFileMissing = errors.New("chunks file not found")
)

const filePermissions = 0o600

// Store reads and writes project artifacts under one projects base directory.
type Store struct {
	baseDir string
	log     *logger.Logger
}

// NewStore creates a store rooted at baseDir.
func NewStore(baseDir string, log *logger.Logger) *Store {
	return &Store{baseDir: baseDir, log: log}
}

// BaseDir returns the projects base directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// LoadProject reads a project's metadata file, or synthesizes minimal
// defaults when the file is absent. A missing project directory is fatal.
func (s *Store) LoadProject(slug string) (*Project, error) {
	projectDir := filepath.Join(s.baseDir, slug)

	_, statErr := os.Stat(projectDir)
	if statErr != nil {
		return nil, fmt.Errorf("%w: %s", ErrProjectDirMissing, projectDir)
	}

	metadataPath := filepath.Join(projectDir, MetadataFileName)

	data, readErr := os.ReadFile(metadataPath)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			s.log.Info("No %s for %q, using minimal defaults", MetadataFileName, slug)

			return NewProject(slug), nil
		}

		return nil, fmt.Errorf("failed to read %s: %w", metadataPath, readErr)
	}

	var proj Project

	err := json.Unmarshal(data, &proj)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", metadataPath, err)
	}

	proj.Slug = slug
	proj.applyLayoutDefaults()

	return &proj, nil
}

// LoadChunks reads the ordered chunk sequence for a project. A missing chunks
// file fails the whole run.
func (s *Store) LoadChunks(proj *Project) ([]Chunk, error) {
	chunksPath := proj.ChunksPath(s.baseDir)

	data, readErr := os.ReadFile(chunksPath)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return nil, fmt.Errorf("%w: %s", ErrChunksFileMissing, chunksPath)
		}

		return nil, fmt.Errorf("failed to read chunks file %s: %w", chunksPath, readErr)
	}

	var chunks []Chunk

	err := json.Unmarshal(data, &chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to parse chunks file %s: %w", chunksPath, err)
	}

	return chunks, nil
}

// LoadSeeds scans seeds/<speaker>/seed.json under the project's seeds
// directory. A missing seeds directory is a warning, not fatal: chunks for
// unseeded speakers fail individually later. A malformed seed file likewise
// only costs that one speaker.
func (s *Store) LoadSeeds(proj *Project) map[string]VoiceSeed {
	seeds := make(map[string]VoiceSeed)
	seedsDir := proj.SeedsPath(s.baseDir)

	entries, readErr := os.ReadDir(seedsDir)
	if readErr != nil {
		s.log.Warn("Seeds directory not found: %s", seedsDir)

		return seeds
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		seedPath := filepath.Join(seedsDir, entry.Name(), SeedFileName)

		data, err := os.ReadFile(seedPath)
		if err != nil {
			continue
		}

		var seed VoiceSeed

		parseErr := json.Unmarshal(data, &seed)
		if parseErr != nil {
			s.log.Warn("Failed to load seed %s: %v", seedPath, parseErr)

			continue
		}

		if !fsutil.IsValidAudioFile(seed.AudioFile) {
			s.log.Warn("Seed %s names non-audio file %q, skipping", seedPath, seed.AudioFile)

			continue
		}

		seeds[seed.CharacterName] = seed
	}

	return seeds
}

// SaveProject writes the metadata file back through a temporary path and an
// atomic rename, so a crash mid-write never leaves a corrupt project.json.
func (s *Store) SaveProject(proj *Project) error {
	data, marshalErr := json.MarshalIndent(proj, "", "  ")
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal project %q: %w", proj.Slug, marshalErr)
	}

	metadataPath := proj.MetadataPath(s.baseDir)
	tempPath := metadataPath + ".tmp"

	writeErr := os.WriteFile(tempPath, data, filePermissions)
	if writeErr != nil {
		return fmt.Errorf("failed to write %s: %w", tempPath, writeErr)
	}

	renameErr := os.Rename(tempPath, metadataPath)
	if renameErr != nil {
		return fmt.Errorf("failed to rename %s: %w", tempPath, renameErr)
	}

	return nil
}

// EnsureAudioDir creates the project's audio output directory if needed.
func (s *Store) EnsureAudioDir(proj *Project) error {
	audioDir := proj.AudioPath(s.baseDir)

	dirErr := fsutil.EnsureDir(audioDir)
	if dirErr != nil {
		return fmt.Errorf("failed to create audio directory %s: %w", audioDir, dirErr)
	}

	return nil
}
