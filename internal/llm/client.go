package llm

import "context"

// Client is the interface all LLM providers implement.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	// Tool definitions use the OpenAI-style function schema; providers
	// convert at their boundary. Transport, auth, and quota failures
	// are returned as errors and are never retried here.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)
}
