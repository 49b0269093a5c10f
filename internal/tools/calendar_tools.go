package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/hafizlabs/hafiz-agent/internal/calendar"
)

func (r *Registry) registerCalendarTools() {
	r.Register(&Tool{
		Name:        "get_calendar_events",
		Description: "List the calendar events for a given date. Use for any question about the schedule or availability.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"date": map[string]any{
					"type":        "string",
					"description": "The date to query, YYYY-MM-DD. Omit for today.",
				},
			},
		},
		Handler: r.handleCalendarEvents,
	})
}

func (r *Registry) handleCalendarEvents(ctx context.Context, args map[string]any) (string, error) {
	date := time.Now().In(r.deps.Location)
	if raw := optStringArg(args, "date"); raw != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, raw, r.deps.Location)
		if err != nil {
			return "", fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", raw)
		}
		date = parsed
	}

	events, err := r.deps.Calendar.EventsForDate(ctx, date, r.deps.Location)
	if err != nil {
		return "", fmt.Errorf("calendar: %w", err)
	}
	return calendar.FormatEvents(events, r.deps.Location), nil
}
