package project

import (
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// Default relative layout of a project's sub-artifacts. Every path is
// resolved under the slug's own directory subtree, never absolute.
const (
	MetadataFileName     = "project.json"
	DefaultChunksFile    = "chunked_book.json"
	DefaultSeedsDir      = "seeds"
	DefaultAudioDir      = "audio"
	DefaultFullAudioFile = "full_audiobook.wav"
	DefaultBookFile      = "book.txt"
)

const formatVersion = "1.0"

// Metadata holds timestamps, versioning, and cumulative statistics for one
// project. Statistics are recomputed and written back after every generation
// batch.
type Metadata struct {
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	Version         string         `json:"version"`
	TotalChunks     int            `json:"total_chunks"`
	GeneratedChunks int            `json:"generated_chunks"`
	TotalDuration   float64        `json:"total_duration"`
	Custom          map[string]any `json:"custom,omitempty"`
}

// Project is the root aggregate. The slug is the primary key and uniquely
// determines a directory subtree.
type Project struct {
	Slug          string   `json:"slug"`
	Name          string   `json:"name"`
	BookText      string   `json:"book_text,omitempty"`
	BookFile      string   `json:"book_file,omitempty"`
	Characters    []string `json:"characters,omitempty"`
	Metadata      Metadata `json:"metadata"`
	ChunksFile    string   `json:"chunks_file,omitempty"`
	SeedsDir      string   `json:"seeds_dir,omitempty"`
	AudioDir      string   `json:"audio_dir,omitempty"`
	FullAudioFile string   `json:"full_audio_file,omitempty"`
}

// NewProject creates a project with default layout and a display name derived
// from the slug.
func NewProject(slug string) *Project {
	now := time.Now()

	return &Project{
		Slug:     slug,
		Name:     titleFromSlug(slug),
		BookText: "",
		BookFile: DefaultBookFile,
		Metadata: Metadata{
			CreatedAt:       now,
			UpdatedAt:       now,
			Version:         formatVersion,
			TotalChunks:     0,
			GeneratedChunks: 0,
			TotalDuration:   0,
			Custom:          nil,
		},
		Characters:    nil,
		ChunksFile:    DefaultChunksFile,
		SeedsDir:      DefaultSeedsDir,
		AudioDir:      DefaultAudioDir,
		FullAudioFile: DefaultFullAudioFile,
	}
}

// applyLayoutDefaults fills in layout paths a hand-written or older
// project.json may omit.
func (p *Project) applyLayoutDefaults() {
	if p.ChunksFile == "" {
		p.ChunksFile = DefaultChunksFile
	}

	if p.SeedsDir == "" {
		p.SeedsDir = DefaultSeedsDir
	}

	if p.AudioDir == "" {
		p.AudioDir = DefaultAudioDir
	}

	if p.FullAudioFile == "" {
		p.FullAudioFile = DefaultFullAudioFile
	}

	if p.Name == "" {
		p.Name = titleFromSlug(p.Slug)
	}
}

// Dir returns the project directory under the projects base directory.
func (p *Project) Dir(baseDir string) string {
	return filepath.Join(baseDir, p.Slug)
}

// ChunksPath returns the absolute path of the chunk sequence file.
func (p *Project) ChunksPath(baseDir string) string {
	return filepath.Join(p.Dir(baseDir), p.ChunksFile)
}

// SeedsPath returns the absolute path of the voice seeds directory.
func (p *Project) SeedsPath(baseDir string) string {
	return filepath.Join(p.Dir(baseDir), p.SeedsDir)
}

// AudioPath returns the absolute path of the generated audio directory.
func (p *Project) AudioPath(baseDir string) string {
	return filepath.Join(p.Dir(baseDir), p.AudioDir)
}

// FullAudioPath returns the absolute path of the combined audiobook file.
func (p *Project) FullAudioPath(baseDir string) string {
	return filepath.Join(p.Dir(baseDir), p.FullAudioFile)
}

// MetadataPath returns the absolute path of the project.json file.
func (p *Project) MetadataPath(baseDir string) string {
	return filepath.Join(p.Dir(baseDir), MetadataFileName)
}

// UpdateStats replaces the cumulative statistics and bumps the update
// timestamp.
func (p *Project) UpdateStats(totalChunks, generatedChunks int, totalDuration float64) {
	p.Metadata.TotalChunks = totalChunks
	p.Metadata.GeneratedChunks = generatedChunks
	p.Metadata.TotalDuration = totalDuration
	p.Metadata.UpdatedAt = time.Now()
}

// titleFromSlug turns "fourth-wing" into "Fourth Wing".
func titleFromSlug(slug string) string {
	words := strings.Split(strings.ReplaceAll(slug, "_", "-"), "-")

	for i, word := range words {
		runes := []rune(word)
		if len(runes) > 0 {
			runes[0] = unicode.ToUpper(runes[0])
			words[i] = string(runes)
		}
	}

	return strings.Join(words, " ")
}
