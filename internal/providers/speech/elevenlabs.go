// Package speech synthesizes narration through an ElevenLabs-compatible TTS
// endpoint and derives word-level captions from the returned character
// alignment.
package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"

	"storyreel/internal/domain"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultModel   = "eleven_multilingual_v2"
	defaultTimeout = 60 * time.Second
)

// Result is one synthesized narration clip.
type Result struct {
	Audio    []byte
	Duration float64
	Captions []domain.Caption
}

// Synthesizer is the port the audio runner depends on.
type Synthesizer interface {
	Synthesize(ctx context.Context, voiceID, text string) (*Result, error)
}

type Options struct {
	APIKey       string
	BaseURL      string
	DefaultVoice string
	HTTPClient   *http.Client
}

type ElevenLabsClient struct {
	apiKey       string
	baseURL      string
	defaultVoice string
	client       *http.Client
}

func NewElevenLabsClient(opts Options) (*ElevenLabsClient, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("speech: elevenlabs api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &ElevenLabsClient{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      baseURL,
		defaultVoice: strings.TrimSpace(opts.DefaultVoice),
		client:       client,
	}, nil
}

type ttsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

type ttsResponse struct {
	AudioBase64 string `json:"audio_base64"`
	Alignment   struct {
		Characters []string  `json:"characters"`
		StartTimes []float64 `json:"character_start_times_seconds"`
		EndTimes   []float64 `json:"character_end_times_seconds"`
	} `json:"alignment"`
}

func (c *ElevenLabsClient) Synthesize(ctx context.Context, voiceID, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("speech: text is required")
	}
	if voiceID == "" {
		voiceID = c.defaultVoice
	}
	if voiceID == "" {
		return nil, errors.New("speech: voice id is required")
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(ttsRequest{Text: text, ModelID: defaultModel}); err != nil {
		return nil, fmt.Errorf("speech: encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s/with-timestamps", c.baseURL, voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("speech: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech: http request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("speech: provider status %d", resp.StatusCode)
	}

	var out ttsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("speech: decode response: %w", err)
	}
	audio, err := base64.StdEncoding.DecodeString(out.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("speech: decode audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("speech: empty audio in response")
	}

	captions := wordCaptions(out.Alignment.Characters, out.Alignment.StartTimes, out.Alignment.EndTimes)
	var duration float64
	if n := len(out.Alignment.EndTimes); n > 0 {
		duration = out.Alignment.EndTimes[n-1]
	}
	return &Result{Audio: audio, Duration: duration, Captions: captions}, nil
}

// wordCaptions folds the per-character alignment into per-word timings.
// Whitespace ends the current word; punctuation sticks to it.
func wordCaptions(chars []string, starts, ends []float64) []domain.Caption {
	n := len(chars)
	if n > len(starts) {
		n = len(starts)
	}
	if n > len(ends) {
		n = len(ends)
	}

	var out []domain.Caption
	var word strings.Builder
	var wordStart float64
	var wordEnd float64

	flush := func() {
		if word.Len() == 0 {
			return
		}
		out = append(out, domain.Caption{Word: word.String(), Start: wordStart, End: wordEnd})
		word.Reset()
	}

	for i := 0; i < n; i++ {
		ch := chars[i]
		if ch == "" || isSpace(ch) {
			flush()
			continue
		}
		if word.Len() == 0 {
			wordStart = starts[i]
		}
		word.WriteString(ch)
		wordEnd = ends[i]
	}
	flush()
	return out
}

func isSpace(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

var _ Synthesizer = (*ElevenLabsClient)(nil)
