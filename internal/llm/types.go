// Package llm provides LLM provider client implementations.
package llm

import "log/slog"

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Role values used throughout the message plumbing.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a chat message in provider-neutral form. Wire
// format conversion happens at provider boundaries (anthropic.go,
// openrouter.go).
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// Parts carries multimodal content for user messages (text plus
	// image references). When non-nil it takes precedence over Content.
	Parts []ContentPart `json:"parts,omitempty"`

	// ToolCalls is set on assistant messages that request tool
	// execution.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID correlates a tool-role message to the assistant tool
	// call that produced it.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ContentPart is one element of a multimodal message.
type ContentPart struct {
	Type     string `json:"type"` // "text" or "image_url"
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// TextMessage builds a plain text message.
func TextMessage(role, content string) Message {
	return Message{Role: role, Content: content}
}

// UserImageMessage builds a multimodal user message with a caption and
// an image reference.
func UserImageMessage(text, imageURL string) Message {
	return Message{
		Role: RoleUser,
		Parts: []ContentPart{
			{Type: "text", Text: text},
			{Type: "image_url", ImageURL: imageURL},
		},
	}
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	// ID is the provider-assigned call id, required for result
	// correlation.
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ChatResponse is the unified response from any provider.
type ChatResponse struct {
	Model        string
	Message      Message
	FinishReason string

	InputTokens  int
	OutputTokens int
}

// HasToolCalls reports whether the model requested tool execution.
// When false, the response is the terminal answer for this turn.
func (r *ChatResponse) HasToolCalls() bool {
	return len(r.Message.ToolCalls) > 0
}
