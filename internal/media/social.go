package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hafizlabs/hafiz-agent/internal/guard"
	"github.com/hafizlabs/hafiz-agent/internal/httpkit"
)

const defaultSocialURL = "https://api.limesocial.io/api/v1/post"

// SocialClient publishes posts through a cross-posting API. The
// platform-to-username mapping comes from configuration; a post names
// platforms only.
type SocialClient struct {
	url      string
	apiKey   string
	accounts map[string]string
	logger   *slog.Logger
	http     *http.Client
}

// NewSocialClient creates a social posting client. accounts maps
// platform names to the account username on that platform.
func NewSocialClient(url, apiKey string, accounts map[string]string, logger *slog.Logger) *SocialClient {
	if url == "" {
		url = defaultSocialURL
	}
	return &SocialClient{
		url:      url,
		apiKey:   apiKey,
		accounts: accounts,
		logger:   logger,
		http:     httpkit.NewClient(),
	}
}

type socialAccount struct {
	Platform string `json:"platform"`
	Username string `json:"username"`
}

type socialPostRequest struct {
	Title    string          `json:"title"`
	MediaURL string          `json:"mediaUrl,omitempty"`
	Accounts []socialAccount `json:"accounts"`
}

type socialPostResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Post publishes title (and optionally a media URL) to the named
// platforms. Every platform must have a configured account.
func (c *SocialClient) Post(ctx context.Context, title, mediaURL string, platforms []string) (string, error) {
	if title == "" {
		return "", fmt.Errorf("title is required")
	}
	if len(platforms) == 0 {
		return "", fmt.Errorf("at least one platform is required")
	}

	accounts := make([]socialAccount, 0, len(platforms))
	for _, p := range platforms {
		p = strings.ToLower(strings.TrimSpace(p))
		username, ok := c.accounts[p]
		if !ok {
			return "", fmt.Errorf("no account configured for platform %q", p)
		}
		accounts = append(accounts, socialAccount{Platform: p, Username: username})
	}

	c.logger.Info("posting to social media",
		"platforms", platforms,
		"has_media", mediaURL != "",
		"detail", guard.SanitizeForLog("title", title))

	body, err := json.Marshal(socialPostRequest{
		Title:    title,
		MediaURL: mediaURL,
		Accounts: accounts,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("social service: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1024)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("social service returned %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 4096))
	}

	var out socialPostResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	status := out.Status
	if status == "" {
		status = "accepted"
	}
	if out.ID != "" {
		return fmt.Sprintf("post %s %s on %s", out.ID, status, strings.Join(platforms, ", ")), nil
	}
	return fmt.Sprintf("post %s on %s", status, strings.Join(platforms, ", ")), nil
}
