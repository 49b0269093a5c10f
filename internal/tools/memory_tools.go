package tools

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const defaultRecallLimit = 5

func (r *Registry) registerMemoryTools() {
	r.Register(&Tool{
		Name:        "remember_fact",
		Description: "Store a fact in long-term memory. Use when the user tells you something worth keeping: preferences, people, plans, decisions.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"content": map[string]any{
					"type":        "string",
					"description": "The fact to remember, phrased as a standalone statement",
				},
				"tag": map[string]any{
					"type":        "string",
					"description": "Optional grouping label (e.g. health, travel, work)",
				},
			},
			"required": []string{"content"},
		},
		Handler: r.handleRememberFact,
	})

	r.Register(&Tool{
		Name:        "recall_memories",
		Description: "Search long-term memory for facts matching a query. Returns the most recent matches.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Words to search for",
				},
				"top_k": map[string]any{
					"type":        "integer",
					"description": "Maximum matches to return (default 5)",
				},
			},
			"required": []string{"query"},
		},
		Handler: r.handleRecallMemories,
	})
}

func (r *Registry) handleRememberFact(ctx context.Context, args map[string]any) (string, error) {
	content, err := stringArg(args, "content")
	if err != nil {
		return "", err
	}
	tag := optStringArg(args, "tag")

	id, err := r.deps.Memory.Remember(ctx, content, tag)
	if err != nil {
		return "", fmt.Errorf("remember: %w", err)
	}
	return fmt.Sprintf("Remembered (memory #%d).", id), nil
}

func (r *Registry) handleRecallMemories(ctx context.Context, args map[string]any) (string, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return "", err
	}

	k := defaultRecallLimit
	if v, ok := args["top_k"].(float64); ok && v > 0 {
		k = int(v)
	}

	records, err := r.deps.Memory.Recall(ctx, query, k)
	if err != nil {
		return "", fmt.Errorf("recall: %w", err)
	}
	if len(records) == 0 {
		return "No memories found for that query.", nil
	}

	var b strings.Builder
	for i, rec := range records {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, rec.CreatedAt.In(r.deps.Location).Format(time.DateOnly), rec.Content)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
