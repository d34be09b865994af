package dia2

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/audiobook-engine/internal/audio"
	"github.com/book-expert/audiobook-engine/internal/core"
)

func newTestProvider(t *testing.T, baseURL string) *Provider {
	t.Helper()

	log, err := logger.New(t.TempDir(), "dia2-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	return New(Config{BaseURL: baseURL, Timeout: 5 * time.Second}, log)
}

func wavResponseBytes(t *testing.T) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "response.wav")
	clip := core.Clip{Samples: make([]float64, nativeSampleRate), SampleRate: nativeSampleRate}

	for i := range clip.Samples {
		clip.Samples[i] = 0.25
	}

	require.NoError(t, audio.WriteWAV(path, clip))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return data
}

func TestFormatSpeakerText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "[S1] Hello there.", formatSpeakerText("Hello there."))
	assert.Equal(t, "[S1] Already tagged.", formatSpeakerText("[S1] Already tagged."))
	assert.Equal(t, "[S2] Second speaker.", formatSpeakerText("[S2] Second speaker."))
}

func TestPresetFor(t *testing.T) {
	t.Parallel()

	assert.InEpsilon(t, 3.0, presetFor(MethodDefault).CfgScale, 1e-9)
	assert.InEpsilon(t, 4.0, presetFor(MethodHighQuality).CfgScale, 1e-9)
	assert.Equal(t, 60, presetFor(MethodFast).TopK)

	// Unknown methods fall back to the default preset.
	fallback := presetFor("turbo")
	assert.InEpsilon(t, presets[MethodDefault].Temperature, fallback.Temperature, 1e-9)
}

func TestLoadModel_HealthCheck(t *testing.T) {
	t.Parallel()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, apiHealth, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(healthy.Close)

	provider := newTestProvider(t, healthy.URL)
	require.NoError(t, provider.LoadModel(context.Background()))

	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(unhealthy.Close)

	provider = newTestProvider(t, unhealthy.URL)
	require.ErrorIs(t, provider.LoadModel(context.Background()), core.ErrRuntimeUnavailable)
}

func TestGenerateAudio_Success(t *testing.T) {
	t.Parallel()

	responseWAV := wavResponseBytes(t)

	var captured generateRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, apiGenerate, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set(headerContentType, contentTypeWAV)
		_, _ = w.Write(responseWAV)
	}))
	t.Cleanup(server.Close)

	provider := newTestProvider(t, server.URL)

	clip, err := provider.GenerateAudio(context.Background(), core.SynthesisRequest{
		Text: "A quiet morning.", VoiceSeedPath: "", PromptText: "",
		InferenceMethod: MethodHighQuality, Emotion: "", EmotionPrompt: "", Speed: 1.1,
	})
	require.NoError(t, err)

	assert.Equal(t, nativeSampleRate, clip.SampleRate)
	assert.False(t, clip.Empty())

	assert.Equal(t, "[S1] A quiet morning.", captured.Text)
	assert.InEpsilon(t, 4.0, captured.CfgScale, 1e-9)
	assert.InEpsilon(t, 1.1, captured.SpeedFactor, 1e-9)
	assert.Empty(t, captured.AudioPromptB64)
}

func TestGenerateAudio_SeedIsResampledAndEncoded(t *testing.T) {
	t.Parallel()

	seedPath := filepath.Join(t.TempDir(), "seed.wav")
	seedClip := core.Clip{Samples: make([]float64, 16000), SampleRate: 16000}
	require.NoError(t, audio.WriteWAV(seedPath, seedClip))

	responseWAV := wavResponseBytes(t)

	var captured generateRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set(headerContentType, contentTypeWAV)
		_, _ = w.Write(responseWAV)
	}))
	t.Cleanup(server.Close)

	provider := newTestProvider(t, server.URL)

	_, err := provider.GenerateAudio(context.Background(), core.SynthesisRequest{
		Text: "Hello.", VoiceSeedPath: seedPath, PromptText: "",
		InferenceMethod: MethodDefault, Emotion: "", EmotionPrompt: "", Speed: 1.0,
	})
	require.NoError(t, err)

	require.NotEmpty(t, captured.AudioPromptB64)
}

func TestGenerateAudio_ServiceError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail": "model crashed"}`))
	}))
	t.Cleanup(server.Close)

	provider := newTestProvider(t, server.URL)

	_, err := provider.GenerateAudio(context.Background(), core.SynthesisRequest{
		Text: "Hello.", VoiceSeedPath: "", PromptText: "",
		InferenceMethod: MethodDefault, Emotion: "", EmotionPrompt: "", Speed: 1.0,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model crashed")
}

func TestGenerateAudio_EmptyText(t *testing.T) {
	t.Parallel()

	provider := newTestProvider(t, "http://localhost:1")

	_, err := provider.GenerateAudio(context.Background(), core.SynthesisRequest{
		Text: "", VoiceSeedPath: "", PromptText: "",
		InferenceMethod: MethodDefault, Emotion: "", EmotionPrompt: "", Speed: 1.0,
	})
	require.ErrorIs(t, err, core.ErrEmptyText)
}

func TestDecodeWAVBytes_Invalid(t *testing.T) {
	t.Parallel()

	_, err := decodeWAVBytes(bytes.Repeat([]byte{0x01}, 64))
	require.Error(t, err)
}
