package guard

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestIsToolAllowed(t *testing.T) {
	g := New(nil)

	for _, name := range DefaultAllowedTools {
		if !g.IsToolAllowed(name) {
			t.Errorf("IsToolAllowed(%q) = false, want true", name)
		}
	}
	if g.IsToolAllowed("delete_everything") {
		t.Error("IsToolAllowed(delete_everything) = true, want false")
	}
	if g.IsToolAllowed("") {
		t.Error("IsToolAllowed(\"\") = true, want false")
	}
}

func TestIsToolAllowedCustomList(t *testing.T) {
	g := New([]string{"generate_image", "generate_caption"})

	if !g.IsToolAllowed("generate_image") {
		t.Error("got false for generate_image, want true")
	}
	if g.IsToolAllowed("remember_fact") {
		t.Error("got true for remember_fact outside custom list, want false")
	}
}

func TestSanitizeForLogRedactsKeys(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"password", "password"},
		{"api key", "api_key"},
		{"nested casing", "UserPassword"},
		{"authorization", "authorization"},
		{"refresh token", "refresh_token"},
		{"client secret", "client_secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeForLog("call", map[string]any{tt.key: "hunter2"})
			if strings.Contains(got, "hunter2") {
				t.Errorf("SanitizeForLog leaked value for key %q: %s", tt.key, got)
			}
			if !strings.Contains(got, redactedMarker) {
				t.Errorf("SanitizeForLog(%q) = %s, want marker", tt.key, got)
			}
		})
	}
}

func TestSanitizeForLogRedactsNested(t *testing.T) {
	data := map[string]any{
		"config": map[string]any{
			"endpoint":  "https://api.example.com",
			"api_token": "sk-abc123",
		},
		"items": []any{
			map[string]any{"secret_value": "shh"},
		},
	}

	got := SanitizeForLog("dispatch", data)
	if strings.Contains(got, "sk-abc123") || strings.Contains(got, "shh") {
		t.Errorf("nested sensitive values leaked: %s", got)
	}
	if !strings.Contains(got, "api.example.com") {
		t.Errorf("non-sensitive value lost: %s", got)
	}
}

func TestSanitizeForLogRedactsPatterns(t *testing.T) {
	got := SanitizeForLog("note", "mail alice@example.com with header Bearer eyJhbGciOi.payload")

	if strings.Contains(got, "alice@example.com") {
		t.Errorf("email leaked: %s", got)
	}
	if !strings.Contains(got, "[email-redacted]") {
		t.Errorf("missing email marker: %s", got)
	}
	if strings.Contains(got, "eyJhbGciOi") {
		t.Errorf("bearer token leaked: %s", got)
	}
	if !strings.Contains(got, "Bearer [redacted]") {
		t.Errorf("missing bearer marker: %s", got)
	}
}

func TestSanitizeForLogTruncates(t *testing.T) {
	long := strings.Repeat("x", 5000)
	got := SanitizeForLog("big", long)

	if len(got) > len("big: ")+maxLogLength {
		t.Errorf("got length %d, want at most %d", len(got), len("big: ")+maxLogLength)
	}
}

func TestSanitizeForLogTruncatesOnRuneBoundary(t *testing.T) {
	// Put a multi-byte rune astride the truncation point. The cut must
	// land on a boundary, never inside a rune.
	long := strings.Repeat("x", maxLogLength-1) + strings.Repeat("ğ", 10)
	got := SanitizeForLog("big", long)

	if !utf8.ValidString(got) {
		t.Errorf("truncated output is not valid UTF-8: %q", got)
	}
	if len(got) > len("big: ")+maxLogLength {
		t.Errorf("got length %d, want at most %d", len(got), len("big: ")+maxLogLength)
	}
}

func TestSanitizeForLogStructs(t *testing.T) {
	type req struct {
		User     string `json:"user"`
		Password string `json:"password"`
	}
	got := SanitizeForLog("login", req{User: "bob", Password: "hunter2"})

	if strings.Contains(got, "hunter2") {
		t.Errorf("struct password leaked: %s", got)
	}
	if !strings.Contains(got, "bob") {
		t.Errorf("struct user lost: %s", got)
	}
}

func TestSanitizeForLogNeverPanics(t *testing.T) {
	inputs := []any{
		nil,
		make(chan int),
		func() {},
		map[string]any{"f": func() {}},
	}
	for _, in := range inputs {
		// Just exercising the path; a panic fails the test.
		_ = SanitizeForLog("odd", in)
	}
}
