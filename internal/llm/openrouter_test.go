package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConvertToOpenAIToolCallArgumentsEncoded(t *testing.T) {
	messages := []Message{
		{
			Role: "assistant",
			ToolCalls: []ToolCall{{
				ID:        "call_1",
				Name:      "remember_fact",
				Arguments: map[string]any{"content": "likes tea"},
			}},
		},
		{Role: "tool", Content: "saved", ToolCallID: "call_1"},
	}

	out := convertToOpenAI(messages)

	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
	if out[0].ToolCalls[0].Type != "function" {
		t.Errorf("type = %q, want function", out[0].ToolCalls[0].Type)
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(out[0].ToolCalls[0].Function.Arguments), &args); err != nil {
		t.Fatalf("arguments not valid JSON: %v", err)
	}
	if args["content"] != "likes tea" {
		t.Errorf("arguments = %v", args)
	}
	if out[1].ToolCallID != "call_1" {
		t.Errorf("tool_call_id = %q, want call_1", out[1].ToolCallID)
	}
}

func TestOpenRouterChatParsesToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		_ = json.NewEncoder(w).Encode(openAIResponse{
			Model: "google/gemini-2.5-flash",
			Choices: []openAIChoice{{
				FinishReason: "tool_calls",
				Message: openAIRespMsg{
					Role: "assistant",
					ToolCalls: []openAIToolCall{{
						ID:   "call_9",
						Type: "function",
						Function: openAIFunction{
							Name:      "generate_image",
							Arguments: `{"prompt":"garden chair"}`,
						},
					}},
				},
			}},
			Usage: openAIUsage{PromptTokens: 42, CompletionTokens: 7},
		})
	}))
	defer srv.Close()

	c := NewOpenRouterClient("test-key", nil)
	c.baseURL = srv.URL

	resp, err := c.Chat(context.Background(), "google/gemini-2.5-flash", []Message{
		TextMessage(RoleUser, "make me a chair image"),
	}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if !resp.HasToolCalls() {
		t.Fatal("expected pending tool calls")
	}
	tc := resp.Message.ToolCalls[0]
	if tc.Name != "generate_image" {
		t.Errorf("tool = %q", tc.Name)
	}
	if tc.Arguments["prompt"] != "garden chair" {
		t.Errorf("arguments = %v", tc.Arguments)
	}
	if resp.InputTokens != 42 {
		t.Errorf("input tokens = %d, want 42", resp.InputTokens)
	}
}

func TestOpenRouterChatErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewOpenRouterClient("test-key", nil)
	c.baseURL = srv.URL

	_, err := c.Chat(context.Background(), "m", []Message{TextMessage(RoleUser, "hi")}, nil)
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
}
