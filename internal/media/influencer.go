package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/hafizlabs/hafiz-agent/internal/guard"
	"github.com/hafizlabs/hafiz-agent/internal/httpkit"
)

const (
	influencerProPath     = "/fal-ai/flux-pro"
	influencerSchnellPath = "/fal-ai/flux/schnell"
	influencerWait        = 3 * time.Minute
)

// InfluencerClient renders AI influencer portraits through the fal.run
// Flux models. Unlike ImageClient it lets the caller pick the aspect
// ratio and trade quality for speed via the model choice.
type InfluencerClient struct {
	baseURL string
	apiKey  string
	logger  *slog.Logger
	http    *http.Client

	// seed is swappable for tests.
	seed func() int64
}

// NewInfluencerClient creates an influencer image client. An empty
// baseURL means the fal.run API.
func NewInfluencerClient(baseURL, apiKey string, logger *slog.Logger) *InfluencerClient {
	if baseURL == "" {
		baseURL = defaultVideoURL
	}
	return &InfluencerClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		logger:  logger,
		http:    httpkit.NewClient(httpkit.WithTimeout(influencerWait)),
		seed:    func() int64 { return rand.Int63n(1_000_000) },
	}
}

type influencerRequest struct {
	Prompt              string `json:"prompt"`
	ImageSize           string `json:"image_size"`
	NumInferenceSteps   int    `json:"num_inference_steps"`
	Seed                int64  `json:"seed"`
	EnableSafetyChecker bool   `json:"enable_safety_checker"`
}

type influencerResponse struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	URL string `json:"url"`
}

// imageSize maps the user-facing aspect ratio onto the size presets
// the Flux endpoints accept. Anything unrecognized falls back to
// square.
func imageSize(aspectRatio string) string {
	switch aspectRatio {
	case "16:9":
		return "landscape_16_9"
	case "9:16":
		return "portrait_16_9"
	case "4:3":
		return "landscape_4_3"
	default:
		return "square"
	}
}

// Generate renders prompt into an influencer image and returns its URL
// and the seed used, so a good result can be reproduced. Model is
// "flux-pro" (default) or "flux-schnell".
func (c *InfluencerClient) Generate(ctx context.Context, prompt, aspectRatio, model string) (string, int64, error) {
	if prompt == "" {
		return "", 0, fmt.Errorf("prompt is required")
	}

	path := influencerProPath
	steps := 28
	if model == "flux-schnell" {
		path = influencerSchnellPath
		steps = 4
	}
	c.logger.Info("generating influencer image",
		"model", model, "aspect_ratio", aspectRatio,
		"detail", guard.SanitizeForLog("prompt", prompt))

	seed := c.seed()
	body, err := json.Marshal(influencerRequest{
		Prompt:              prompt,
		ImageSize:           imageSize(aspectRatio),
		NumInferenceSteps:   steps,
		Seed:                seed,
		EnableSafetyChecker: true,
	})
	if err != nil {
		return "", 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("influencer service: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1024)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, fmt.Errorf("influencer service returned %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 4096))
	}

	var out influencerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, fmt.Errorf("decode response: %w", err)
	}

	if len(out.Images) > 0 && out.Images[0].URL != "" {
		return out.Images[0].URL, seed, nil
	}
	if out.URL != "" {
		return out.URL, seed, nil
	}
	return "", 0, fmt.Errorf("influencer image generated but no URL returned")
}
