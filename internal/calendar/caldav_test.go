package calendar

import (
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
)

const sampleICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//test//EN
BEGIN:VEVENT
UID:evt-1
DTSTAMP:20260310T080000Z
DTSTART:20260310T090000Z
DTEND:20260310T100000Z
SUMMARY:Dentist
LOCATION:Kadıköy
END:VEVENT
BEGIN:VEVENT
UID:evt-2
DTSTAMP:20260310T080000Z
DTSTART;VALUE=DATE:20260310
DTEND;VALUE=DATE:20260311
SUMMARY:Public holiday
END:VEVENT
END:VCALENDAR
`

func decodeEvents(t *testing.T) []ical.Event {
	t.Helper()
	cal, err := ical.NewDecoder(strings.NewReader(sampleICS)).Decode()
	if err != nil {
		t.Fatalf("decode ics: %v", err)
	}
	return cal.Events()
}

func TestParseEvent(t *testing.T) {
	events := decodeEvents(t)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	timed, err := parseEvent(events[0], time.UTC)
	if err != nil {
		t.Fatalf("parse timed event: %v", err)
	}
	if timed.Summary != "Dentist" {
		t.Errorf("got summary %q, want Dentist", timed.Summary)
	}
	if timed.Location != "Kadıköy" {
		t.Errorf("got location %q, want Kadıköy", timed.Location)
	}
	if timed.AllDay {
		t.Error("timed event marked all day")
	}
	wantStart := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	if !timed.Start.Equal(wantStart) {
		t.Errorf("got start %v, want %v", timed.Start, wantStart)
	}

	allDay, err := parseEvent(events[1], time.UTC)
	if err != nil {
		t.Fatalf("parse all-day event: %v", err)
	}
	if !allDay.AllDay {
		t.Error("date-valued event not marked all day")
	}
	if allDay.Summary != "Public holiday" {
		t.Errorf("got summary %q, want Public holiday", allDay.Summary)
	}
}

func TestFormatEvents(t *testing.T) {
	loc := time.UTC
	events := []Event{
		{
			Summary:  "Standup",
			Start:    time.Date(2026, 3, 10, 9, 30, 0, 0, loc),
			End:      time.Date(2026, 3, 10, 9, 45, 0, 0, loc),
			Location: "office",
		},
		{
			Summary: "Conference",
			AllDay:  true,
			Start:   time.Date(2026, 3, 10, 0, 0, 0, 0, loc),
			End:     time.Date(2026, 3, 11, 0, 0, 0, 0, loc),
		},
	}

	got := FormatEvents(events, loc)
	lines := strings.Split(got, "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), got)
	}
	if lines[0] != "- 09:30 to 09:45: Standup (office)" {
		t.Errorf("got %q", lines[0])
	}
	if lines[1] != "- all day: Conference" {
		t.Errorf("got %q", lines[1])
	}
}

func TestFormatEventsEmpty(t *testing.T) {
	if got := FormatEvents(nil, time.UTC); got != "No events scheduled." {
		t.Errorf("got %q", got)
	}
}
