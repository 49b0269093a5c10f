// Package media holds thin clients for the generative content
// services the agent can reach through tools. Each client exposes a
// single call and no orchestration logic of its own.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hafizlabs/hafiz-agent/internal/guard"
	"github.com/hafizlabs/hafiz-agent/internal/httpkit"
)

const (
	defaultImageURL   = "https://api.replicate.com"
	imageModelPath    = "/v1/models/black-forest-labs/flux-schnell/predictions"
	imageGenerateWait = 3 * time.Minute
)

// ImageClient generates still images through the Replicate prediction
// API (Flux schnell).
type ImageClient struct {
	baseURL string
	token   string
	logger  *slog.Logger
	http    *http.Client
}

// NewImageClient creates an image generation client. An empty baseURL
// means the Replicate API.
func NewImageClient(baseURL, token string, logger *slog.Logger) *ImageClient {
	if baseURL == "" {
		baseURL = defaultImageURL
	}
	return &ImageClient{
		baseURL: baseURL,
		token:   token,
		logger:  logger,
		http:    httpkit.NewClient(httpkit.WithTimeout(imageGenerateWait)),
	}
}

type imagePredictionRequest struct {
	Input imagePredictionInput `json:"input"`
}

type imagePredictionInput struct {
	Prompt        string `json:"prompt"`
	AspectRatio   string `json:"aspect_ratio"`
	OutputFormat  string `json:"output_format"`
	OutputQuality int    `json:"output_quality"`
}

type imagePredictionResponse struct {
	Output json.RawMessage `json:"output"`
	Status string          `json:"status"`
	Error  string          `json:"error"`
}

// Generate renders prompt into an image and returns its URL. The call
// blocks until the prediction finishes.
func (c *ImageClient) Generate(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt is required")
	}
	c.logger.Info("generating image", "detail", guard.SanitizeForLog("prompt", prompt))

	body, err := json.Marshal(imagePredictionRequest{
		Input: imagePredictionInput{
			Prompt:        prompt,
			AspectRatio:   "1:1",
			OutputFormat:  "webp",
			OutputQuality: 80,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+imageModelPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "wait")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("image service: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1024)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("image service returned %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 4096))
	}

	var pred imagePredictionResponse
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if pred.Error != "" {
		return "", fmt.Errorf("image generation failed: %s", pred.Error)
	}

	url, err := firstOutputURL(pred.Output)
	if err != nil {
		return "", err
	}
	return url, nil
}

// firstOutputURL handles both output shapes the prediction API uses:
// a single string or an array of strings.
func firstOutputURL(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("image generated but no URL returned")
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return single, nil
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 && many[0] != "" {
		return many[0], nil
	}

	return "", fmt.Errorf("image generated but no URL returned")
}
