// Package dia2 implements the TTS provider contract over a Dia2 HTTP
// inference service.
package dia2

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/audiobook-engine/internal/audio"
	"github.com/book-expert/audiobook-engine/internal/core"
)

// ProviderName is the registry key for this provider.
const ProviderName = "dia2"

// Inference methods, implemented as sampling presets.
const (
	MethodDefault     = "default"
	MethodHighQuality = "high_quality"
	MethodFast        = "fast"
)

const nativeSampleRate = 24000

// API endpoints and headers.
const (
	apiGenerate = "/v1/generate"
	apiHealth   = "/health"

	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
)

const defaultRequestTimeout = 300 * time.Second

// speakerTag is prepended to text that carries no speaker annotation; Dia2
// requires every utterance to be speaker-tagged.
const speakerTag = "[S1]"

// ErrEmptyResponse indicates the service returned no audio bytes.
var ErrEmptyResponse = errors.New("dia2 service returned empty audio data")

// preset bundles the sampling parameters behind one named method.
type preset struct {
	CfgScale    float64
	Temperature float64
	TopK        int
}

// presets maps method names to sampling presets. Unknown methods fall back to
// the default preset: the service accepts any parameters, so a permissive
// mapping loses nothing.
var presets = map[string]preset{
	MethodDefault:     {CfgScale: 3.0, Temperature: 0.7, TopK: 50},
	MethodHighQuality: {CfgScale: 4.0, Temperature: 0.6, TopK: 45},
	MethodFast:        {CfgScale: 2.0, Temperature: 0.85, TopK: 60},
}

// Config locates the Dia2 service.
type Config struct {
	// BaseURL includes the protocol and port, e.g. "http://localhost:7860".
	BaseURL string
	// Timeout bounds each generation request; zero uses the default.
	Timeout time.Duration
}

// generateRequest is the JSON payload for the generate endpoint.
type generateRequest struct {
	Text           string  `json:"text"`
	AudioPromptB64 string  `json:"audio_prompt,omitempty"`
	CfgScale       float64 `json:"cfg_scale"`
	Temperature    float64 `json:"temperature"`
	TopK           int     `json:"top_k"`
	SpeedFactor    float64 `json:"speed_factor"`
}

// errorResponse is the structured error body the service returns on failure.
type errorResponse struct {
	Detail string `json:"detail"`
}

// Provider is the Dia2 TTS provider.
type Provider struct {
	config     Config
	httpClient *http.Client
	log        *logger.Logger
}

// New creates a Dia2 provider.
func New(cfg Config, log *logger.Logger) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRequestTimeout
	}

	return &Provider{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

// Name returns the registry key.
func (p *Provider) Name() string { return ProviderName }

// DisplayName returns the human-readable name.
func (p *Provider) DisplayName() string { return "Dia2" }

// InferenceMethods returns the supported presets, default first.
func (p *Provider) InferenceMethods() []string {
	return []string{MethodDefault, MethodHighQuality, MethodFast}
}

// SupportsVoiceCloning reports reference-audio conditioning support.
func (p *Provider) SupportsVoiceCloning() bool { return true }

// RequiresPromptText reports that Dia2 conditions on audio alone.
func (p *Provider) RequiresPromptText() bool { return false }

// SampleRate returns the native output rate.
func (p *Provider) SampleRate() int { return nativeSampleRate }

// LoadModel checks the service health endpoint. The model lives in the
// service process, so there is nothing to materialize locally.
func (p *Provider) LoadModel(ctx context.Context) error {
	url := p.config.BaseURL + apiHealth

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if reqErr != nil {
		return fmt.Errorf("failed to create health check request: %w", reqErr)
	}

	resp, doErr := p.httpClient.Do(req)
	if doErr != nil {
		return fmt.Errorf("%w: %s: %w", core.ErrRuntimeUnavailable, p.config.BaseURL, doErr)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check returned %s", core.ErrRuntimeUnavailable, resp.Status)
	}

	return nil
}

// MethodInfo returns descriptive metadata for one method.
func (p *Provider) MethodInfo(method string) core.MethodInfo {
	descriptions := map[string]string{
		MethodDefault:     "Balanced quality and speed",
		MethodHighQuality: "Slower, tighter sampling for cleaner output",
		MethodFast:        "Looser sampling for quick previews",
	}

	return core.MethodInfo{
		Name:               method,
		DisplayName:        method,
		Description:        descriptions[method],
		RequiresPromptText: false,
	}
}

// GenerateAudio synthesizes one request through the HTTP service.
func (p *Provider) GenerateAudio(ctx context.Context, req core.SynthesisRequest) (core.Clip, error) {
	if req.Text == "" {
		return core.Clip{}, core.ErrEmptyText
	}

	sampling := presetFor(req.InferenceMethod)

	promptB64, promptErr := p.encodeSeedPrompt(req.VoiceSeedPath)
	if promptErr != nil {
		return core.Clip{}, promptErr
	}

	payload := generateRequest{
		Text:           formatSpeakerText(req.Text),
		AudioPromptB64: promptB64,
		CfgScale:       sampling.CfgScale,
		Temperature:    sampling.Temperature,
		TopK:           sampling.TopK,
		SpeedFactor:    req.Speed,
	}

	audioData, callErr := p.callGenerate(ctx, payload)
	if callErr != nil {
		return core.Clip{}, callErr
	}

	clip, decodeErr := decodeWAVBytes(audioData)
	if decodeErr != nil {
		return core.Clip{}, decodeErr
	}

	if clip.Empty() {
		return core.Clip{}, core.ErrEmptyAudio
	}

	return clip, nil
}

func (p *Provider) callGenerate(ctx context.Context, payload generateRequest) ([]byte, error) {
	requestBody, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", marshalErr)
	}

	url := p.config.BaseURL + apiGenerate

	httpReq, reqErr := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		url,
		bytes.NewBuffer(requestBody),
	)
	if reqErr != nil {
		return nil, fmt.Errorf("failed to create request: %w", reqErr)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeWAV)

	resp, doErr := p.httpClient.Do(httpReq)
	if doErr != nil {
		return nil, fmt.Errorf(
			"failed to send request to dia2 service at %s: %w", p.config.BaseURL, doErr,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.parseErrorResponse(resp)
	}

	audioData, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", readErr)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptyResponse
	}

	return audioData, nil
}

func (p *Provider) parseErrorResponse(resp *http.Response) error {
	var structured errorResponse

	err := json.NewDecoder(resp.Body).Decode(&structured)
	if err == nil && structured.Detail != "" {
		return fmt.Errorf("dia2 service error (%s): %s", resp.Status, structured.Detail)
	}

	body, _ := io.ReadAll(resp.Body)

	return fmt.Errorf("dia2 service returned non-OK status: %s, body: %s", resp.Status, string(body))
}

// encodeSeedPrompt loads the seed audio, resamples it to the service's native
// rate, and returns it as base64 WAV. An empty seed path means no cloning.
func (p *Provider) encodeSeedPrompt(seedPath string) (string, error) {
	if seedPath == "" {
		return "", nil
	}

	clip, readErr := audio.ReadSeedAudio(seedPath)
	if readErr != nil {
		return "", readErr
	}

	if clip.SampleRate != nativeSampleRate {
		resampled, resampleErr := audio.Resample(
			clip.Samples,
			len(clip.Samples)*nativeSampleRate/clip.SampleRate,
		)
		if resampleErr != nil {
			return "", fmt.Errorf("failed to resample seed audio: %w", resampleErr)
		}

		clip = core.Clip{Samples: resampled, SampleRate: nativeSampleRate}
	}

	tempFile, tempErr := os.CreateTemp("", "dia2-seed-*.wav")
	if tempErr != nil {
		return "", fmt.Errorf("failed to create temp file for seed: %w", tempErr)
	}

	tempPath := tempFile.Name()
	_ = tempFile.Close()

	defer func() {
		removeErr := os.Remove(tempPath)
		if removeErr != nil {
			p.log.Warn("Failed to remove temp file '%s': %v", tempPath, removeErr)
		}
	}()

	writeErr := audio.WriteWAV(tempPath, clip)
	if writeErr != nil {
		return "", fmt.Errorf("failed to encode seed audio: %w", writeErr)
	}

	encoded, encodeErr := encodeFileBase64(tempPath)
	if encodeErr != nil {
		return "", encodeErr
	}

	return encoded, nil
}

// presetFor resolves a method name to its sampling preset, falling back to
// the default preset for unknown names.
func presetFor(method string) preset {
	if sampling, ok := presets[method]; ok {
		return sampling
	}

	return presets[MethodDefault]
}

// formatSpeakerText ensures the text opens with a speaker tag.
func formatSpeakerText(text string) string {
	if len(text) >= 4 && text[0] == '[' && text[1] == 'S' {
		return text
	}

	return speakerTag + " " + text
}
