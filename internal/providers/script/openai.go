// Package script turns a story topic into a titled scene list using an
// OpenAI-compatible chat completion endpoint.
package script

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 60 * time.Second
)

// Scene is one beat of a generated script.
type Scene struct {
	ImagePrompt string `json:"imagePrompt"`
	Narration   string `json:"narration"`
}

// Script is the full generated story skeleton.
type Script struct {
	Title  string  `json:"title"`
	Scenes []Scene `json:"scenes"`
}

// Generator is the port the submission handler depends on.
type Generator interface {
	Generate(ctx context.Context, topic string, sceneCount int) (*Script, error)
}

type Options struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

type OpenAIGenerator struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewOpenAIGenerator(opts Options) (*OpenAIGenerator, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("script: openai api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &OpenAIGenerator{
		apiKey:  strings.TrimSpace(opts.APIKey),
		model:   model,
		baseURL: baseURL,
		client:  client,
	}, nil
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature,omitempty"`
	ResponseFormat *chatFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const systemPrompt = "You write short-form video scripts. Respond only with valid JSON " +
	`of the shape {"title": string, "scenes": [{"imagePrompt": string, "narration": string}]}. ` +
	"imagePrompt describes a single vivid visual; narration is one or two spoken sentences."

func (g *OpenAIGenerator) Generate(ctx context.Context, topic string, sceneCount int) (*Script, error) {
	payload := chatRequest{
		Model:          g.model,
		Temperature:    0.7,
		ResponseFormat: &chatFormat{Type: "json_object"},
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Write a %d-scene story about: %s", sceneCount, topic)},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("script: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", &buf)
	if err != nil {
		return nil, fmt.Errorf("script: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("script: http request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("script: openai status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("script: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("script: no choices in response")
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return nil, errors.New("script: empty response")
	}

	var script Script
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &script); err != nil {
		return nil, fmt.Errorf("script: parse payload: %w", err)
	}
	if len(script.Scenes) == 0 {
		return nil, errors.New("script: model returned no scenes")
	}
	if len(script.Scenes) > sceneCount && sceneCount > 0 {
		script.Scenes = script.Scenes[:sceneCount]
	}
	return &script, nil
}

// stripCodeFence unwraps ```json blocks some models insist on emitting.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

var _ Generator = (*OpenAIGenerator)(nil)
