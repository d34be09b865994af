package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/book-expert/audiobook-engine/internal/core"
)

const (
	outputBitDepth  = 16
	pcmAudioFormat  = 1
	filePermissions = 0o600

	int16Scale    = 32767.0
	mp3FrameBytes = 4
)

// Static errors.
var (
	ErrInvalidWAV       = errors.New("not a valid WAV file")
	ErrUnsupportedAudio = errors.New("unsupported audio container")
	ErrNoSamples        = errors.New("audio file contains no samples")
	ErrNonPositiveRate  = errors.New("sample rate must be positive")
)

// ReadWAV decodes a WAV file into a mono clip. Multi-channel files are
// averaged down to one channel.
func ReadWAV(path string) (core.Clip, error) {
	file, openErr := os.Open(path)
	if openErr != nil {
		return core.Clip{}, fmt.Errorf("failed to open %s: %w", path, openErr)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return core.Clip{}, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}

	buffer, decodeErr := decoder.FullPCMBuffer()
	if decodeErr != nil {
		return core.Clip{}, fmt.Errorf("failed to decode %s: %w", path, decodeErr)
	}

	if buffer == nil || len(buffer.Data) == 0 {
		return core.Clip{}, fmt.Errorf("%w: %s", ErrNoSamples, path)
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth == 0 {
		bitDepth = buffer.SourceBitDepth
	}

	scale := math.Pow(2, float64(bitDepth-1))
	channels := buffer.Format.NumChannels
	if channels < 1 {
		channels = 1
	}

	frames := len(buffer.Data) / channels
	samples := make([]float64, frames)

	for frame := range frames {
		var sum float64
		for channel := range channels {
			sum += float64(buffer.Data[frame*channels+channel]) / scale
		}

		samples[frame] = sum / float64(channels)
	}

	return core.Clip{Samples: samples, SampleRate: buffer.Format.SampleRate}, nil
}

// WriteWAV persists a mono clip as 16-bit PCM. The file is written to a
// temporary sibling path and renamed into place on success, so a file at the
// final name is always a complete write. Resume logic depends on that.
func WriteWAV(path string, clip core.Clip) error {
	if clip.SampleRate <= 0 {
		return ErrNonPositiveRate
	}

	tempPath := path + ".tmp"

	file, createErr := os.OpenFile(tempPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, filePermissions)
	if createErr != nil {
		return fmt.Errorf("failed to create %s: %w", tempPath, createErr)
	}

	writeErr := encodeWAV(file, clip)
	closeErr := file.Close()

	if writeErr != nil {
		_ = os.Remove(tempPath)

		return fmt.Errorf("failed to encode %s: %w", tempPath, writeErr)
	}

	if closeErr != nil {
		_ = os.Remove(tempPath)

		return fmt.Errorf("failed to close %s: %w", tempPath, closeErr)
	}

	renameErr := os.Rename(tempPath, path)
	if renameErr != nil {
		return fmt.Errorf("failed to rename %s: %w", tempPath, renameErr)
	}

	return nil
}

func encodeWAV(file *os.File, clip core.Clip) error {
	encoder := wav.NewEncoder(file, clip.SampleRate, outputBitDepth, 1, pcmAudioFormat)

	intData := make([]int, len(clip.Samples))
	for i, sample := range clip.Samples {
		clamped := math.Max(-1.0, math.Min(1.0, sample))
		intData[i] = int(clamped * int16Scale)
	}

	buffer := &goaudio.IntBuffer{
		Data: intData,
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  clip.SampleRate,
		},
		SourceBitDepth: outputBitDepth,
	}

	writeErr := encoder.Write(buffer)
	if writeErr != nil {
		return fmt.Errorf("failed to write PCM data: %w", writeErr)
	}

	closeErr := encoder.Close()
	if closeErr != nil {
		return fmt.Errorf("failed to finalize WAV: %w", closeErr)
	}

	return nil
}

// ReadSeedAudio loads reference audio for voice conditioning. WAV and MP3
// containers are supported; anything else is a seed-unreadable failure for
// the chunk that needed it.
func ReadSeedAudio(path string) (core.Clip, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		clip, err := ReadWAV(path)
		if err != nil {
			return core.Clip{}, fmt.Errorf("%w: %w", core.ErrSeedUnreadable, err)
		}

		return clip, nil
	case ".mp3":
		clip, err := readMP3(path)
		if err != nil {
			return core.Clip{}, fmt.Errorf("%w: %w", core.ErrSeedUnreadable, err)
		}

		return clip, nil
	default:
		return core.Clip{}, fmt.Errorf("%w: %s (%s)", ErrUnsupportedAudio, path, core.ErrSeedUnreadable)
	}
}

// readMP3 decodes an MP3 file to a mono clip. go-mp3 always emits 16-bit
// little-endian stereo frames at the decoder's sample rate.
func readMP3(path string) (core.Clip, error) {
	file, openErr := os.Open(path)
	if openErr != nil {
		return core.Clip{}, fmt.Errorf("failed to open %s: %w", path, openErr)
	}
	defer file.Close()

	decoder, decodeErr := mp3.NewDecoder(file)
	if decodeErr != nil {
		return core.Clip{}, fmt.Errorf("failed to create MP3 decoder for %s: %w", path, decodeErr)
	}

	pcm, readErr := io.ReadAll(decoder)
	if readErr != nil {
		return core.Clip{}, fmt.Errorf("failed to decode %s: %w", path, readErr)
	}

	frames := len(pcm) / mp3FrameBytes
	if frames == 0 {
		return core.Clip{}, fmt.Errorf("%w: %s", ErrNoSamples, path)
	}

	samples := make([]float64, frames)

	for i := range frames {
		left := int16(binary.LittleEndian.Uint16(pcm[i*mp3FrameBytes:]))
		right := int16(binary.LittleEndian.Uint16(pcm[i*mp3FrameBytes+2:]))
		samples[i] = (float64(left) + float64(right)) / 2 / int16Scale
	}

	return core.Clip{Samples: samples, SampleRate: decoder.SampleRate()}, nil
}
