// Package calendar reads events from a CalDAV server so the agent can
// answer questions about the owner's schedule.
package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	"github.com/hafizlabs/hafiz-agent/internal/httpkit"
)

// Config holds connection details for one CalDAV account.
type Config struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Calendar is an optional calendar collection path. When empty the
	// first calendar in the home set is used.
	Calendar string `yaml:"calendar"`
}

// Event is one calendar entry within a queried window.
type Event struct {
	Summary  string
	Location string
	Start    time.Time
	End      time.Time
	AllDay   bool
}

// Client queries a CalDAV server for events.
type Client struct {
	cfg    Config
	dav    *caldav.Client
	logger *slog.Logger

	calendarPath string
}

// NewClient creates a CalDAV client. The server is not contacted until
// the first query.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("caldav url required")
	}

	httpClient := webdav.HTTPClient(httpkit.NewClient())
	if cfg.Username != "" {
		httpClient = webdav.HTTPClientWithBasicAuth(httpkit.NewClient(), cfg.Username, cfg.Password)
	}

	dav, err := caldav.NewClient(httpClient, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("caldav client: %w", err)
	}

	return &Client{
		cfg:          cfg,
		dav:          dav,
		logger:       logger,
		calendarPath: cfg.Calendar,
	}, nil
}

// EventsForDate returns all events overlapping the given calendar day
// in loc, sorted by start time.
func (c *Client) EventsForDate(ctx context.Context, date time.Time, loc *time.Location) ([]Event, error) {
	if loc == nil {
		loc = time.Local
	}
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.Add(24 * time.Hour)

	path, err := c.resolveCalendar(ctx)
	if err != nil {
		return nil, err
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: ical.CompCalendar,
			Comps: []caldav.CalendarCompRequest{{
				Name:     ical.CompEvent,
				AllProps: true,
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: dayStart.UTC(),
				End:   dayEnd.UTC(),
			}},
		},
	}

	objects, err := c.dav.QueryCalendar(ctx, path, query)
	if err != nil {
		return nil, fmt.Errorf("query calendar %s: %w", path, err)
	}

	var events []Event
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, ev := range obj.Data.Events() {
			parsed, err := parseEvent(ev, loc)
			if err != nil {
				c.logger.Debug("skipping unparseable event", "path", obj.Path, "error", err)
				continue
			}
			// The server's time-range filter can be loose about
			// all-day boundaries. Re-check overlap locally.
			if !parsed.End.After(dayStart) || !parsed.Start.Before(dayEnd) {
				continue
			}
			events = append(events, parsed)
		}
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	return events, nil
}

// resolveCalendar discovers the calendar collection path once and
// caches it.
func (c *Client) resolveCalendar(ctx context.Context) (string, error) {
	if c.calendarPath != "" {
		return c.calendarPath, nil
	}

	principal, err := c.dav.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("find principal: %w", err)
	}
	homeSet, err := c.dav.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("find calendar home set: %w", err)
	}
	calendars, err := c.dav.FindCalendars(ctx, homeSet)
	if err != nil {
		return "", fmt.Errorf("find calendars: %w", err)
	}
	if len(calendars) == 0 {
		return "", fmt.Errorf("no calendars at %s", homeSet)
	}

	c.calendarPath = calendars[0].Path
	c.logger.Debug("resolved calendar", "path", c.calendarPath, "name", calendars[0].Name)
	return c.calendarPath, nil
}

func parseEvent(ev ical.Event, loc *time.Location) (Event, error) {
	start, err := ev.DateTimeStart(loc)
	if err != nil {
		return Event{}, fmt.Errorf("start time: %w", err)
	}
	end, err := ev.DateTimeEnd(loc)
	if err != nil || end.IsZero() {
		end = start.Add(time.Hour)
	}

	allDay := false
	if prop := ev.Props.Get(ical.PropDateTimeStart); prop != nil {
		allDay = prop.ValueType() == ical.ValueDate
	}

	summary := "(untitled)"
	if prop := ev.Props.Get(ical.PropSummary); prop != nil && prop.Value != "" {
		summary = prop.Value
	}
	location := ""
	if prop := ev.Props.Get(ical.PropLocation); prop != nil {
		location = prop.Value
	}

	return Event{
		Summary:  summary,
		Location: location,
		Start:    start,
		End:      end,
		AllDay:   allDay,
	}, nil
}

// FormatEvents renders events as a short human-readable agenda, one
// line per event, suitable for handing back to the model.
func FormatEvents(events []Event, loc *time.Location) string {
	if len(events) == 0 {
		return "No events scheduled."
	}
	if loc == nil {
		loc = time.Local
	}

	var b strings.Builder
	for _, ev := range events {
		if ev.AllDay {
			fmt.Fprintf(&b, "- all day: %s", ev.Summary)
		} else {
			fmt.Fprintf(&b, "- %s to %s: %s",
				ev.Start.In(loc).Format("15:04"),
				ev.End.In(loc).Format("15:04"),
				ev.Summary)
		}
		if ev.Location != "" {
			fmt.Fprintf(&b, " (%s)", ev.Location)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
