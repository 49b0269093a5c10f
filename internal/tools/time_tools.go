package tools

import (
	"context"
	"time"
)

func (r *Registry) registerTimeTools() {
	r.Register(&Tool{
		Name:        "get_current_time",
		Description: "Get the current date and time in the configured timezone. Use this whenever the answer depends on what day or time it is.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: r.handleCurrentTime,
	})
}

func (r *Registry) handleCurrentTime(ctx context.Context, args map[string]any) (string, error) {
	now := time.Now().In(r.deps.Location)
	return now.Format("Monday, January 2, 2006 15:04 (MST)"), nil
}
