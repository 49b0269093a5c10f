package tools

import (
	"context"
	"fmt"

	"github.com/hafizlabs/hafiz-agent/internal/guard"
)

func (r *Registry) registerMediaTools() {
	if r.deps.Images != nil {
		r.Register(&Tool{
			Name:        "generate_image",
			Description: "Generate an image from a text prompt. Returns the URL of the finished image.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"prompt": map[string]any{
						"type":        "string",
						"description": "Detailed English description of the image to generate",
					},
				},
				"required": []string{"prompt"},
			},
			Handler: r.handleGenerateImage,
		})
	}

	if r.deps.Videos != nil {
		r.Register(&Tool{
			Name:        "generate_video",
			Description: "Generate a short video clip from a text prompt, optionally animating an existing image. Returns the URL of the finished clip.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"prompt": map[string]any{
						"type":        "string",
						"description": "Detailed English description of the clip to generate",
					},
					"image_url": map[string]any{
						"type":        "string",
						"description": "Optional source image URL for image-to-video",
					},
				},
				"required": []string{"prompt"},
			},
			Handler: r.handleGenerateVideo,
		})
	}

	if r.deps.Influencers != nil {
		r.Register(&Tool{
			Name:        "generate_influencer",
			Description: "Generate an AI influencer image from a text prompt, with aspect ratio and model selection. Returns the URL of the finished image.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"prompt": map[string]any{
						"type":        "string",
						"description": "Detailed English description of the influencer image to generate",
					},
					"aspect_ratio": map[string]any{
						"type":        "string",
						"enum":        []string{"1:1", "16:9", "9:16", "4:3"},
						"description": "Image aspect ratio (default 1:1)",
					},
					"model": map[string]any{
						"type":        "string",
						"enum":        []string{"flux-pro", "flux-schnell"},
						"description": "flux-pro for quality, flux-schnell for speed (default flux-pro)",
					},
				},
				"required": []string{"prompt"},
			},
			Handler: r.handleGenerateInfluencer,
		})
	}

	if r.deps.Captions != nil {
		r.Register(&Tool{
			Name:        "generate_caption",
			Description: "Write a social media caption for a post title, tuned for a target platform and tone.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title": map[string]any{
						"type":        "string",
						"description": "What the post is about",
					},
					"platform": map[string]any{
						"type":        "string",
						"description": "Target platform: instagram, tiktok, x, linkedin or facebook",
					},
					"tone": map[string]any{
						"type":        "string",
						"description": "Desired tone: professional, casual, funny or inspiring",
					},
				},
				"required": []string{"title"},
			},
			Handler: r.handleGenerateCaption,
		})
	}

	if r.deps.Social != nil {
		r.Register(&Tool{
			Name:        "post_to_social",
			Description: "Publish a post to one or more social platforms with an optional media attachment.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title": map[string]any{
						"type":        "string",
						"description": "The post text or caption",
					},
					"media_url": map[string]any{
						"type":        "string",
						"description": "Optional image or video URL to attach",
					},
					"platforms": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Platforms to post to (e.g. instagram, x)",
					},
				},
				"required": []string{"title", "platforms"},
			},
			Handler: r.handlePostToSocial,
		})
	}
}

func (r *Registry) handleGenerateImage(ctx context.Context, args map[string]any) (string, error) {
	prompt, err := stringArg(args, "prompt")
	if err != nil {
		return "", err
	}

	url, err := r.deps.Images.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return "Image ready: " + url, nil
}

func (r *Registry) handleGenerateVideo(ctx context.Context, args map[string]any) (string, error) {
	prompt, err := stringArg(args, "prompt")
	if err != nil {
		return "", err
	}
	imageURL := optStringArg(args, "image_url")

	url, err := r.deps.Videos.Generate(ctx, prompt, imageURL)
	if err != nil {
		return "", err
	}
	return "Video ready: " + url, nil
}

func (r *Registry) handleGenerateInfluencer(ctx context.Context, args map[string]any) (string, error) {
	prompt, err := stringArg(args, "prompt")
	if err != nil {
		return "", err
	}

	url, seed, err := r.deps.Influencers.Generate(ctx, prompt, optStringArg(args, "aspect_ratio"), optStringArg(args, "model"))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Influencer image ready: %s (seed %d)", url, seed), nil
}

func (r *Registry) handleGenerateCaption(ctx context.Context, args map[string]any) (string, error) {
	title, err := stringArg(args, "title")
	if err != nil {
		return "", err
	}

	caption, err := r.deps.Captions.Generate(ctx, title, optStringArg(args, "platform"), optStringArg(args, "tone"))
	if err != nil {
		return "", err
	}
	return caption, nil
}

func (r *Registry) handlePostToSocial(ctx context.Context, args map[string]any) (string, error) {
	title, err := stringArg(args, "title")
	if err != nil {
		return "", err
	}

	rawPlatforms, ok := args["platforms"].([]any)
	if !ok || len(rawPlatforms) == 0 {
		return "", fmt.Errorf("platforms is required")
	}
	platforms := make([]string, 0, len(rawPlatforms))
	for _, p := range rawPlatforms {
		s, ok := p.(string)
		if !ok {
			return "", fmt.Errorf("platforms must be strings")
		}
		platforms = append(platforms, s)
	}

	r.deps.Logger.Debug("social post requested",
		"detail", guard.SanitizeForLog("post", map[string]any{"title": title, "platforms": platforms}))

	result, err := r.deps.Social.Post(ctx, title, optStringArg(args, "media_url"), platforms)
	if err != nil {
		return "", err
	}
	return result, nil
}
