// Package media talks to a Replicate-compatible predictions API. Images are
// generated synchronously with a blocking create; videos are submitted with a
// webhook and complete asynchronously.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.replicate.com"
	defaultTimeout = 120 * time.Second

	// Generated artifacts stay well under this; anything larger is a
	// provider bug, not a payload.
	maxArtifactBytes = 256 << 20
)

// Prediction mirrors the provider's prediction resource. Webhook carries the
// URL the provider was told to call back, which the recovery path reparses
// for routing.
type Prediction struct {
	ID      string            `json:"id"`
	Status  string            `json:"status"`
	Output  outputList        `json:"output"`
	Error   string            `json:"error"`
	Webhook string            `json:"webhook"`
	URLs    map[string]string `json:"urls"`
}

// Succeeded reports whether the prediction finished with usable output.
func (p *Prediction) Succeeded() bool {
	return p.Status == "succeeded" && len(p.Output) > 0
}

// outputList tolerates the API returning a bare string or an array.
type outputList []string

func (o *outputList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*o = nil
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*o = outputList{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*o = outputList(list)
	return nil
}

type Options struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client
}

type Client struct {
	token   string
	baseURL string
	client  *http.Client
}

func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("media: replicate token is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{token: strings.TrimSpace(opts.Token), baseURL: baseURL, client: client}, nil
}

type createRequest struct {
	Input               map[string]any `json:"input"`
	Webhook             string         `json:"webhook,omitempty"`
	WebhookEventsFilter []string       `json:"webhook_events_filter,omitempty"`
}

// GenerateImage runs a blocking prediction against the given model and
// downloads the first output artifact.
func (c *Client) GenerateImage(ctx context.Context, model, prompt string) ([]byte, string, error) {
	pred, err := c.createPrediction(ctx, model, createRequest{
		Input: map[string]any{"prompt": prompt},
	}, true)
	if err != nil {
		return nil, "", err
	}
	if !pred.Succeeded() {
		if pred.Error != "" {
			return nil, "", fmt.Errorf("media: image prediction failed: %s", pred.Error)
		}
		return nil, "", fmt.Errorf("media: image prediction ended %s without output", pred.Status)
	}
	return c.FetchArtifact(ctx, pred.Output[0])
}

// SubmitVideo creates an asynchronous prediction and returns its id. The
// provider calls webhookURL when the prediction settles.
func (c *Client) SubmitVideo(ctx context.Context, model, prompt, webhookURL string) (string, error) {
	pred, err := c.createPrediction(ctx, model, createRequest{
		Input:               map[string]any{"prompt": prompt},
		Webhook:             webhookURL,
		WebhookEventsFilter: []string{"completed"},
	}, false)
	if err != nil {
		return "", err
	}
	if pred.ID == "" {
		return "", errors.New("media: provider returned no prediction id")
	}
	return pred.ID, nil
}

// GetPrediction fetches a prediction's current state, used by the webhook
// recovery sweep.
func (c *Client) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/predictions/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("media: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media: http request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("media: prediction %s not found", id)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("media: provider status %d", resp.StatusCode)
	}
	var pred Prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("media: decode prediction: %w", err)
	}
	return &pred, nil
}

// FetchArtifact downloads a generated asset and reports its content type.
func (c *Client) FetchArtifact(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("media: build artifact request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("media: fetch artifact: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("media: artifact status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactBytes))
	if err != nil {
		return nil, "", fmt.Errorf("media: read artifact: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *Client) createPrediction(ctx context.Context, model string, body createRequest, wait bool) (*Prediction, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("media: encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/models/%s/predictions", c.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("media: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if wait {
		req.Header.Set("Prefer", "wait")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media: http request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("media: provider status %d", resp.StatusCode)
	}
	var pred Prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("media: decode prediction: %w", err)
	}
	return &pred, nil
}
