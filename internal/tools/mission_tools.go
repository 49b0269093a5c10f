package tools

import (
	"context"
	"fmt"

	"github.com/hafizlabs/hafiz-agent/internal/guard"
)

func (r *Registry) registerMissionTools() {
	r.Register(&Tool{
		Name:        "dispatch_directive",
		Description: "Queue a directive for a subordinate bot. The subordinate picks it up on its next poll and reports back when done.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"target": map[string]any{
					"type":        "string",
					"description": "The subordinate bot to direct (e.g. avyna)",
				},
				"command": map[string]any{
					"type":        "string",
					"description": "What the subordinate should do, in plain language",
				},
				"payload": map[string]any{
					"type":        "string",
					"description": "Optional extra data for the command (URLs, text to use)",
				},
			},
			"required": []string{"target", "command"},
		},
		Handler: r.handleDispatchDirective,
	})
}

func (r *Registry) handleDispatchDirective(ctx context.Context, args map[string]any) (string, error) {
	target, err := stringArg(args, "target")
	if err != nil {
		return "", err
	}
	command, err := stringArg(args, "command")
	if err != nil {
		return "", err
	}
	payload := optStringArg(args, "payload")

	task, err := r.deps.Directives.CreateTask(ctx, r.deps.Sender, target, command, payload)
	if err != nil {
		return "", fmt.Errorf("dispatch: %w", err)
	}

	r.deps.Logger.Info("directive dispatched",
		"task_id", task.ID,
		"target", target,
		"detail", guard.SanitizeForLog("command", command))

	return fmt.Sprintf("Directive #%d queued for %s.", task.ID, target), nil
}
