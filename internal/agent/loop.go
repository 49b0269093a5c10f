// Package agent implements the tool-calling loop: the orchestration
// core that turns one user message into one reply, calling tools on
// the model's behalf along the way.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hafizlabs/hafiz-agent/internal/conversation"
	"github.com/hafizlabs/hafiz-agent/internal/guard"
	"github.com/hafizlabs/hafiz-agent/internal/llm"
	"github.com/hafizlabs/hafiz-agent/internal/memory"
	"github.com/hafizlabs/hafiz-agent/internal/tools"
)

const (
	defaultMaxIterations = 10
	defaultRecallK       = 3

	// emptyResponse stands in for a terminal model message with no
	// text, so the caller always has something to show.
	emptyResponse = "(empty response)"

	// exhaustedResponse is the turn result when the iteration cap is
	// hit. It is a normal reply, not an error.
	exhaustedResponse = "I hit the maximum number of tool iterations for one turn. Partial progress is recorded; please ask again to continue."
)

// refusalMessage is the fixed tool result for an allow-list miss.
func refusalMessage(name string) string {
	return "This tool is not available: " + name
}

// MemorySource is the slice of the memory store the prompt composer
// needs.
type MemorySource interface {
	CoreMemory(ctx context.Context) ([]memory.Record, error)
	Recall(ctx context.Context, query string, k int) ([]memory.Record, error)
}

// Config wires a Loop. LLM, Registry, Guard and Conversations are
// required; the rest defaults sensibly.
type Config struct {
	LLM           llm.Client
	Registry      *tools.Registry
	Guard         *guard.Guard
	Conversations *conversation.Store
	Memory        MemorySource

	Model          string
	MaxIterations  int
	RecallK        int
	ToolTimeout    time.Duration
	RequestTimeout time.Duration
	Location       *time.Location
	Logger         *slog.Logger
}

// Loop drives model turns. One Loop is shared by every caller; all
// per-turn state lives on the stack and in the conversation store.
type Loop struct {
	llm           llm.Client
	registry      *tools.Registry
	guard         *guard.Guard
	conversations *conversation.Store
	memory        MemorySource

	model          string
	maxIterations  int
	recallK        int
	toolTimeout    time.Duration
	requestTimeout time.Duration
	location       *time.Location
	logger         *slog.Logger
}

// NewLoop creates the loop from its wiring.
func NewLoop(cfg Config) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.RecallK <= 0 {
		cfg.RecallK = defaultRecallK
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Loop{
		llm:            cfg.LLM,
		registry:       cfg.Registry,
		guard:          cfg.Guard,
		conversations:  cfg.Conversations,
		memory:         cfg.Memory,
		model:          cfg.Model,
		maxIterations:  cfg.MaxIterations,
		recallK:        cfg.RecallK,
		toolTimeout:    cfg.ToolTimeout,
		requestTimeout: cfg.RequestTimeout,
		location:       cfg.Location,
		logger:         cfg.Logger,
	}
}

// Run executes one full turn for the given persona and conversation.
// Turns on the same conversation are serialized; turns on different
// conversations run concurrently. Only provider failures return an
// error; every tool-level problem is folded into the transcript.
func (l *Loop) Run(ctx context.Context, persona Persona, conversationID, userMessage, imageURL string) (string, error) {
	unlock := l.conversations.LockConversation(conversationID)
	defer unlock()

	logger := l.logger.With(
		"request_id", newRequestID(),
		"persona", persona.Name,
		"conversation_id", conversationID,
	)

	reg := l.registry
	if len(persona.AllowedTools) > 0 {
		reg = l.registry.FilteredCopy(persona.AllowedTools)
	}
	toolDefs := reg.List()

	systemPrompt := l.composeSystemPrompt(ctx, logger, persona, userMessage)

	userMsg := llm.TextMessage(llm.RoleUser, userMessage)
	if imageURL != "" {
		userMsg = llm.UserImageMessage(userMessage, imageURL)
	}

	history := l.conversations.GetHistory(conversationID)
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.TextMessage(llm.RoleSystem, systemPrompt))
	for _, m := range history {
		messages = append(messages, llm.Message{
			Role:       m.Role,
			Content:    m.Content,
			Parts:      m.Parts,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
		})
	}
	messages = append(messages, userMsg)

	l.conversations.AddMessage(conversationID, llm.RoleUser, userMessage, &conversation.Options{Parts: userMsg.Parts})

	logger.Info("turn started", "history", len(history), "tools", len(toolDefs), "has_image", imageURL != "")

	for i := range l.maxIterations {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("turn cancelled: %w", err)
		}

		resp, err := l.chat(ctx, messages, toolDefs)
		if err != nil {
			return "", fmt.Errorf("model call failed (iter %d): %w", i, err)
		}

		logger.Debug("model response",
			"iter", i,
			"input_tokens", resp.InputTokens,
			"output_tokens", resp.OutputTokens,
			"tool_calls", len(resp.Message.ToolCalls),
		)

		// No tool calls means this is the final reply.
		if len(resp.Message.ToolCalls) == 0 {
			content := resp.Message.Content
			if strings.TrimSpace(content) == "" {
				content = emptyResponse
			}
			l.conversations.AddMessage(conversationID, llm.RoleAssistant, content, nil)
			logger.Info("turn finished", "iterations", i+1)
			return content, nil
		}

		messages = append(messages, resp.Message)
		l.conversations.AddMessage(conversationID, llm.RoleAssistant, resp.Message.Content,
			&conversation.Options{ToolCalls: resp.Message.ToolCalls})

		for _, tc := range resp.Message.ToolCalls {
			result := l.executeToolCall(ctx, logger, reg, tc)
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    result,
				ToolCallID: tc.ID,
			})
			l.conversations.AddMessage(conversationID, llm.RoleTool, result,
				&conversation.Options{ToolCallID: tc.ID})
		}
	}

	logger.Warn("turn exhausted", "max_iterations", l.maxIterations)
	l.conversations.AddMessage(conversationID, llm.RoleAssistant, exhaustedResponse, nil)
	return exhaustedResponse, nil
}

// chat runs one provider call under the configured request timeout.
func (l *Loop) chat(ctx context.Context, messages []llm.Message, toolDefs []map[string]any) (*llm.ChatResponse, error) {
	if l.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.requestTimeout)
		defer cancel()
	}
	return l.llm.Chat(ctx, l.model, messages, toolDefs)
}

// executeToolCall resolves one requested call into its tool result
// string. It never returns an error: refusals, unknown tools, bad
// arguments and handler failures all become text the model can read.
func (l *Loop) executeToolCall(ctx context.Context, logger *slog.Logger, reg *tools.Registry, tc llm.ToolCall) string {
	if !l.guard.IsToolAllowed(tc.Name) {
		logger.Warn("blocked tool call", "detail", guard.SanitizeForLog("tool", tc.Name))
		return refusalMessage(tc.Name)
	}

	argsJSON := ""
	if tc.Arguments != nil {
		b, err := json.Marshal(tc.Arguments)
		if err != nil {
			return "Error: unreadable tool arguments"
		}
		argsJSON = string(b)
	}

	logger.Info("tool exec", "tool", tc.Name, "detail", guard.SanitizeForLog("args", tc.Arguments))

	toolCtx := ctx
	if l.toolTimeout > 0 {
		var cancel context.CancelFunc
		toolCtx, cancel = context.WithTimeout(ctx, l.toolTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := reg.Execute(toolCtx, tc.Name, argsJSON)
	if err != nil {
		logger.Error("tool exec failed", "tool", tc.Name, "error", err)
		return "Error: " + err.Error()
	}

	logger.Debug("tool exec done", "tool", tc.Name, "result_len", len(result),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return result
}

// composeSystemPrompt builds the per-turn system prompt: persona
// prompt, pinned core memory, then up to recallK memories related to
// the user's message. Memory failures degrade to the bare persona
// prompt.
func (l *Loop) composeSystemPrompt(ctx context.Context, logger *slog.Logger, persona Persona, userMessage string) string {
	var sb strings.Builder
	sb.WriteString(persona.SystemPrompt)

	if l.memory == nil {
		return sb.String()
	}

	core, err := l.memory.CoreMemory(ctx)
	if err != nil {
		logger.Warn("load core memory", "error", err)
	} else if len(core) > 0 {
		sb.WriteString("\n\n--- CORE MEMORY ---\n")
		for i, rec := range core {
			if i > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(rec.Content)
		}
	}

	recalled, err := l.memory.Recall(ctx, userMessage, l.recallK)
	if err != nil {
		logger.Warn("recall memories", "error", err)
	} else if len(recalled) > 0 {
		sb.WriteString("\n\n--- RELATED MEMORIES ---")
		for _, rec := range recalled {
			fmt.Fprintf(&sb, "\n- [%s] %s", rec.CreatedAt.In(l.location).Format(time.DateOnly), rec.Content)
		}
	}

	return sb.String()
}

// newRequestID tags every log line of one turn.
func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
