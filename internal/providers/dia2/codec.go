package dia2

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/wav"

	"github.com/book-expert/audiobook-engine/internal/core"
)

// decodeWAVBytes parses an in-memory WAV response into a mono clip.
func decodeWAVBytes(data []byte) (core.Clip, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return core.Clip{}, fmt.Errorf("dia2 response is not a valid WAV file (%d bytes)", len(data))
	}

	buffer, decodeErr := decoder.FullPCMBuffer()
	if decodeErr != nil {
		return core.Clip{}, fmt.Errorf("failed to decode dia2 response: %w", decodeErr)
	}

	if buffer == nil || len(buffer.Data) == 0 {
		return core.Clip{}, ErrEmptyResponse
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

// encodeFileBase64 reads a file and returns its standard base64 encoding.
func encodeFileBase64(path string) (string, error) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, readErr)
	}

	return base64.StdEncoding.EncodeToString(data), nil
}
