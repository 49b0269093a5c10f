// Package tools defines the tools available to the agent.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hafizlabs/hafiz-agent/internal/calendar"
	"github.com/hafizlabs/hafiz-agent/internal/memory"
	"github.com/hafizlabs/hafiz-agent/internal/mission"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string                                                         `json:"name"`
	Description string                                                         `json:"description"`
	Parameters  map[string]any                                                 `json:"parameters"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Collaborator interfaces. Each matches the concrete client it names
// so production wiring is direct, and tests can substitute fakes.

// MemoryStore is the long-term memory surface the tools need.
type MemoryStore interface {
	Remember(ctx context.Context, content, tag string) (int64, error)
	Recall(ctx context.Context, query string, k int) ([]memory.Record, error)
}

// CalendarSource answers day queries against the owner's calendar.
type CalendarSource interface {
	EventsForDate(ctx context.Context, date time.Time, loc *time.Location) ([]calendar.Event, error)
}

// ImageGenerator renders a prompt into an image URL.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// VideoGenerator renders a prompt (optionally from a source image)
// into a clip URL.
type VideoGenerator interface {
	Generate(ctx context.Context, prompt, imageURL string) (string, error)
}

// InfluencerGenerator renders a prompt into an influencer image URL,
// with aspect ratio and model selection. The returned seed reproduces
// the image.
type InfluencerGenerator interface {
	Generate(ctx context.Context, prompt, aspectRatio, model string) (string, int64, error)
}

// CaptionWriter produces a social media caption.
type CaptionWriter interface {
	Generate(ctx context.Context, title, platform, tone string) (string, error)
}

// SocialPoster publishes a post to the named platforms.
type SocialPoster interface {
	Post(ctx context.Context, title, mediaURL string, platforms []string) (string, error)
}

// DirectiveWriter queues a directive for a subordinate bot.
type DirectiveWriter interface {
	CreateTask(ctx context.Context, sender, target, command, payload string) (*mission.Task, error)
}

// Deps carries the collaborators behind the built-in tools. Memory is
// required; every nil optional collaborator simply leaves its tools
// unregistered.
type Deps struct {
	Memory      MemoryStore
	Calendar    CalendarSource
	Images      ImageGenerator
	Videos      VideoGenerator
	Influencers InfluencerGenerator
	Captions    CaptionWriter
	Social      SocialPoster
	Directives  DirectiveWriter

	// Sender is this bot's identity on dispatched directives.
	Sender string
	// Location is the timezone for time and calendar answers.
	Location *time.Location
	Logger   *slog.Logger
}

// Registry holds available tools.
type Registry struct {
	tools map[string]*Tool
	deps  Deps
}

// NewRegistry creates a tool registry wired to the given collaborators.
func NewRegistry(deps Deps) *Registry {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := &Registry{
		tools: make(map[string]*Tool),
		deps:  deps,
	}
	r.registerBuiltins()
	return r
}

func (r *Registry) registerBuiltins() {
	r.registerTimeTools()
	if r.deps.Memory != nil {
		r.registerMemoryTools()
	}
	if r.deps.Calendar != nil {
		r.registerCalendarTools()
	}
	r.registerMediaTools()
	if r.deps.Directives != nil {
		r.registerMissionTools()
	}
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Get returns a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// List returns all tools for the LLM.
func (r *Registry) List() []map[string]any {
	var result []map[string]any
	for _, t := range r.tools {
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// AllToolNames returns the registered tool names in no particular order.
func (r *Registry) AllToolNames() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// FilteredCopy returns a new registry containing only the named tools.
// Unknown names are ignored. The source registry is not modified.
func (r *Registry) FilteredCopy(include []string) *Registry {
	out := &Registry{
		tools: make(map[string]*Tool, len(include)),
		deps:  r.deps,
	}
	for _, name := range include {
		if t, ok := r.tools[name]; ok {
			out.tools[name] = t
		}
	}
	return out
}

// FilteredCopyExcluding returns a new registry without the named tools.
func (r *Registry) FilteredCopyExcluding(exclude []string) *Registry {
	skip := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		skip[name] = struct{}{}
	}

	out := &Registry{
		tools: make(map[string]*Tool, len(r.tools)),
		deps:  r.deps,
	}
	for name, t := range r.tools {
		if _, excluded := skip[name]; !excluded {
			out.tools[name] = t
		}
	}
	return out
}

// Execute runs a tool by name with given arguments.
func (r *Registry) Execute(ctx context.Context, name string, argsJSON string) (string, error) {
	tool := r.tools[name]
	if tool == nil {
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	var args map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
	}

	return tool.Handler(ctx, args)
}

// stringArg extracts a required string argument.
func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// optStringArg extracts an optional string argument.
func optStringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}
