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
	defaultVideoURL   = "https://fal.run"
	videoTextPath     = "/fal-ai/kling-video/v1.6/standard/text-to-video"
	videoImagePath    = "/fal-ai/kling-video/v1.6/standard/image-to-video"
	videoGenerateWait = 10 * time.Minute
	maxVideoPrompt    = 1000
)

// VideoClient generates short clips, text-to-video or image-to-video
// depending on whether a source image is supplied.
type VideoClient struct {
	baseURL string
	apiKey  string
	logger  *slog.Logger
	http    *http.Client
}

// NewVideoClient creates a video generation client. An empty baseURL
// means the fal.run API.
func NewVideoClient(baseURL, apiKey string, logger *slog.Logger) *VideoClient {
	if baseURL == "" {
		baseURL = defaultVideoURL
	}
	return &VideoClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		logger:  logger,
		http:    httpkit.NewClient(httpkit.WithTimeout(videoGenerateWait)),
	}
}

type videoRequest struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
	Duration       string `json:"duration"`
	AspectRatio    string `json:"aspect_ratio"`
	ImageURL       string `json:"image_url,omitempty"`
}

type videoResponse struct {
	Video struct {
		URL string `json:"url"`
	} `json:"video"`
	VideoURL string `json:"video_url"`
	URL      string `json:"url"`
}

// Generate renders prompt into a clip and returns its URL. A non-empty
// imageURL switches to image-to-video mode.
func (c *VideoClient) Generate(ctx context.Context, prompt, imageURL string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt is required")
	}
	if len(prompt) > maxVideoPrompt {
		prompt = prompt[:maxVideoPrompt]
	}

	path := videoTextPath
	mode := "text-to-video"
	if imageURL != "" {
		path = videoImagePath
		mode = "image-to-video"
	}
	c.logger.Info("generating video", "mode", mode, "detail", guard.SanitizeForLog("prompt", prompt))

	body, err := json.Marshal(videoRequest{
		Prompt:         prompt,
		NegativePrompt: "blurry, low quality, distorted, ugly, watermark, text overlay",
		Duration:       "5",
		AspectRatio:    "16:9",
		ImageURL:       imageURL,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("video service: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1024)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("video service returned %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 4096))
	}

	var out videoResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	// The service has returned the clip URL under a few different keys
	// over time.
	for _, url := range []string{out.Video.URL, out.VideoURL, out.URL} {
		if url != "" {
			return url, nil
		}
	}
	return "", fmt.Errorf("video generated but no URL returned")
}
