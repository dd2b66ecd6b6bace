// Package openai implements the synth.Synthesizer interface using the
// OpenAI speech API (or any compatible endpoint via base_url).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nadzzz/voxgate/internal/config"
	"github.com/nadzzz/voxgate/internal/synth"
)

// voiceMap translates the public voice names exposed by the site to the
// voice IDs the speech API accepts. Unknown names fall back to "alloy".
var voiceMap = map[string]string{
	"allison": "alloy",
	"echo":    "echo",
	"fable":   "fable",
	"onyx":    "onyx",
	"nova":    "nova",
	"shimmer": "shimmer",
	"ash":     "ash",
	"ballad":  "ballad",
	"coral":   "coral",
	"sage":    "sage",
}

// Synthesizer calls the OpenAI audio/speech endpoint.
type Synthesizer struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

var _ synth.Synthesizer = (*Synthesizer)(nil)

// New creates a new OpenAI synthesizer from config.
func New(cfg config.OpenAIConfig) *Synthesizer {
	return &Synthesizer{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  &http.Client{},
	}
}

type speechRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice"`
	Input string `json:"input"`
}

// Synthesize sends text to the speech API and returns MP3 audio.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voice string) (*synth.Result, error) {
	apiVoice, ok := voiceMap[voice]
	if !ok {
		apiVoice = "alloy"
	}

	bodyBytes, err := json.Marshal(speechRequest{
		Model: s.model,
		Voice: apiVoice,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling speech request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/audio/speech", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating speech request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("speech synthesis failed (status %d): %s", resp.StatusCode, respBody)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading speech response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}

	slog.Debug("speech synthesis complete", "voice", apiVoice, "audio_bytes", len(audio))
	return &synth.Result{Audio: audio, ContentType: contentType}, nil
}

// Close is a no-op for the OpenAI synthesizer.
func (s *Synthesizer) Close() error { return nil }
