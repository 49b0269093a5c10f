package media

import (
	"context"
	"fmt"
	"strings"

	"github.com/hafizlabs/hafiz-agent/internal/llm"
)

// Platform-specific composition guidance for the caption model.
var captionPlatformGuides = map[string]string{
	"instagram": "Optimize for Instagram. At most 2200 characters. Open with a hook. Include 5-10 hashtags.",
	"tiktok":    "Optimize for TikTok. Short and punchy. Use trending hashtags. At most 150 characters.",
	"x":         "Optimize for X. At most 280 characters. Short, sharp, shareable.",
	"linkedin":  "Optimize for LinkedIn. Professional tone. Lead with value. Include 3-5 hashtags.",
	"facebook":  "Optimize for Facebook. Warm and engagement-focused. End with a question or call to action.",
}

var captionToneGuides = map[string]string{
	"professional": "Write in a professional, trustworthy voice.",
	"casual":       "Write in a relaxed, conversational voice.",
	"funny":        "Write in a playful, witty voice.",
	"inspiring":    "Write in an uplifting, motivating voice.",
}

// CaptionClient writes social media captions by delegating to a chat
// model. It shares the llm.Client abstraction with the main loop but
// always runs a single tool-free completion.
type CaptionClient struct {
	llm   llm.Client
	model string
}

// NewCaptionClient creates a caption writer backed by the given chat
// client and model name.
func NewCaptionClient(client llm.Client, model string) *CaptionClient {
	return &CaptionClient{llm: client, model: model}
}

// Generate writes a caption for the given title. Unknown platforms
// fall back to the Instagram guide; unknown tones to professional.
func (c *CaptionClient) Generate(ctx context.Context, title, platform, tone string) (string, error) {
	if title == "" {
		return "", fmt.Errorf("title is required")
	}

	platformGuide, ok := captionPlatformGuides[strings.ToLower(platform)]
	if !ok {
		platformGuide = captionPlatformGuides["instagram"]
	}
	toneGuide, ok := captionToneGuides[strings.ToLower(tone)]
	if !ok {
		toneGuide = captionToneGuides["professional"]
	}

	system := "You are an expert social media copywriter.\n" +
		platformGuide + "\n" +
		toneGuide + "\n" +
		"Use fitting emoji and only relevant hashtags.\n" +
		"Reply with the caption text alone, no commentary."

	messages := []llm.Message{
		llm.TextMessage(llm.RoleSystem, system),
		llm.TextMessage(llm.RoleUser, "Title: "+title),
	}

	resp, err := c.llm.Chat(ctx, c.model, messages, nil)
	if err != nil {
		return "", fmt.Errorf("caption model: %w", err)
	}

	caption := strings.TrimSpace(resp.Message.Content)
	if caption == "" {
		return "", fmt.Errorf("caption model returned empty response")
	}
	return caption, nil
}
