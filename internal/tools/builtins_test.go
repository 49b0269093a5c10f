package tools

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hafizlabs/hafiz-agent/internal/calendar"
	"github.com/hafizlabs/hafiz-agent/internal/memory"
	"github.com/hafizlabs/hafiz-agent/internal/mission"
)

type fakeCalendar struct {
	events []calendar.Event
	err    error
	asked  time.Time
}

func (f *fakeCalendar) EventsForDate(ctx context.Context, date time.Time, loc *time.Location) ([]calendar.Event, error) {
	f.asked = date
	return f.events, f.err
}

type fakeImage struct{ url string }

func (f *fakeImage) Generate(ctx context.Context, prompt string) (string, error) {
	if prompt == "fail" {
		return "", fmt.Errorf("render failed")
	}
	return f.url, nil
}

type fakeVideo struct{ lastImage string }

func (f *fakeVideo) Generate(ctx context.Context, prompt, imageURL string) (string, error) {
	f.lastImage = imageURL
	return "https://cdn/clip.mp4", nil
}

type fakeInfluencer struct {
	lastRatio string
	lastModel string
}

func (f *fakeInfluencer) Generate(ctx context.Context, prompt, aspectRatio, model string) (string, int64, error) {
	f.lastRatio = aspectRatio
	f.lastModel = model
	return "https://cdn/inf.jpg", 7, nil
}

type fakeCaption struct{}

func (fakeCaption) Generate(ctx context.Context, title, platform, tone string) (string, error) {
	return "caption for " + title, nil
}

type fakeSocial struct{ lastPlatforms []string }

func (f *fakeSocial) Post(ctx context.Context, title, mediaURL string, platforms []string) (string, error) {
	f.lastPlatforms = platforms
	return "posted", nil
}

func fullTestRegistry(t *testing.T) (*Registry, *memory.Store, *mission.Store) {
	t.Helper()

	memDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { memDB.Close() })
	mem, err := memory.NewStoreWithDB(memDB)
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}

	misDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open mission db: %v", err)
	}
	misDB.SetMaxOpenConns(1)
	t.Cleanup(func() { misDB.Close() })
	mis, err := mission.NewStoreWithDB(misDB)
	if err != nil {
		t.Fatalf("mission store: %v", err)
	}

	r := NewRegistry(Deps{
		Memory:      mem,
		Calendar:    &fakeCalendar{},
		Images:      &fakeImage{url: "https://cdn/img.webp"},
		Videos:      &fakeVideo{},
		Influencers: &fakeInfluencer{},
		Captions:    fakeCaption{},
		Social:      &fakeSocial{},
		Directives:  mis,
		Sender:      "hafiz",
		Location:    time.UTC,
		Logger:      slog.New(slog.DiscardHandler),
	})
	return r, mem, mis
}

func TestRegistryRegistersAllBuiltins(t *testing.T) {
	r, _, _ := fullTestRegistry(t)

	names := r.AllToolNames()
	sort.Strings(names)
	want := []string{
		"dispatch_directive",
		"generate_caption",
		"generate_image",
		"generate_influencer",
		"generate_video",
		"get_calendar_events",
		"get_current_time",
		"post_to_social",
		"recall_memories",
		"remember_fact",
	}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestRegistrySkipsUnwiredCollaborators(t *testing.T) {
	memDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { memDB.Close() })
	mem, err := memory.NewStoreWithDB(memDB)
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}

	r := NewRegistry(Deps{Memory: mem, Location: time.UTC, Logger: slog.New(slog.DiscardHandler)})

	names := r.AllToolNames()
	sort.Strings(names)
	want := []string{"get_current_time", "recall_memories", "remember_fact"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
}

func TestCurrentTimeTool(t *testing.T) {
	r, _, _ := fullTestRegistry(t)

	got, err := r.Execute(context.Background(), "get_current_time", "")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(got, fmt.Sprintf("%d", time.Now().UTC().Year())) {
		t.Errorf("got %q, want current year in answer", got)
	}
}

func TestRememberAndRecallTools(t *testing.T) {
	r, _, _ := fullTestRegistry(t)
	ctx := context.Background()

	got, err := r.Execute(ctx, "remember_fact", `{"content":"the studio key is under the mat","tag":"home"}`)
	if err != nil {
		t.Fatalf("remember_fact: %v", err)
	}
	if !strings.Contains(got, "#1") {
		t.Errorf("got %q, want first memory id", got)
	}

	got, err = r.Execute(ctx, "recall_memories", `{"query":"studio key"}`)
	if err != nil {
		t.Fatalf("recall_memories: %v", err)
	}
	if !strings.Contains(got, "under the mat") {
		t.Errorf("got %q", got)
	}
	if !strings.HasPrefix(got, "1. [") {
		t.Errorf("got %q, want numbered dated line", got)
	}

	got, err = r.Execute(ctx, "recall_memories", `{"query":"nothing matches this"}`)
	if err != nil {
		t.Fatalf("recall_memories empty: %v", err)
	}
	if !strings.Contains(got, "No memories") {
		t.Errorf("got %q", got)
	}
}

func TestRememberFactRequiresContent(t *testing.T) {
	r, _, _ := fullTestRegistry(t)

	_, err := r.Execute(context.Background(), "remember_fact", `{}`)
	if err == nil || !strings.Contains(err.Error(), "content is required") {
		t.Errorf("got err %v", err)
	}
}

func TestCalendarTool(t *testing.T) {
	r, _, _ := fullTestRegistry(t)
	cal := r.deps.Calendar.(*fakeCalendar)
	cal.events = []calendar.Event{{
		Summary: "Standup",
		Start:   time.Date(2026, 9, 1, 9, 30, 0, 0, time.UTC),
		End:     time.Date(2026, 9, 1, 9, 45, 0, 0, time.UTC),
	}}

	got, err := r.Execute(context.Background(), "get_calendar_events", `{"date":"2026-09-01"}`)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(got, "Standup") {
		t.Errorf("got %q", got)
	}
	if cal.asked.Format(time.DateOnly) != "2026-09-01" {
		t.Errorf("queried %v, want 2026-09-01", cal.asked)
	}

	_, err = r.Execute(context.Background(), "get_calendar_events", `{"date":"tomorrow"}`)
	if err == nil || !strings.Contains(err.Error(), "invalid date") {
		t.Errorf("got err %v, want invalid date", err)
	}
}

func TestMediaTools(t *testing.T) {
	r, _, _ := fullTestRegistry(t)
	ctx := context.Background()

	got, err := r.Execute(ctx, "generate_image", `{"prompt":"a lighthouse"}`)
	if err != nil {
		t.Fatalf("generate_image: %v", err)
	}
	if !strings.Contains(got, "https://cdn/img.webp") {
		t.Errorf("got %q", got)
	}

	if _, err := r.Execute(ctx, "generate_image", `{"prompt":"fail"}`); err == nil {
		t.Error("expected generator error to propagate")
	}

	got, err = r.Execute(ctx, "generate_video", `{"prompt":"waves","image_url":"https://x/i.png"}`)
	if err != nil {
		t.Fatalf("generate_video: %v", err)
	}
	if !strings.Contains(got, "clip.mp4") {
		t.Errorf("got %q", got)
	}
	if r.deps.Videos.(*fakeVideo).lastImage != "https://x/i.png" {
		t.Error("image_url not forwarded")
	}

	got, err = r.Execute(ctx, "generate_influencer", `{"prompt":"studio portrait","aspect_ratio":"9:16","model":"flux-schnell"}`)
	if err != nil {
		t.Fatalf("generate_influencer: %v", err)
	}
	if !strings.Contains(got, "https://cdn/inf.jpg") || !strings.Contains(got, "seed 7") {
		t.Errorf("got %q", got)
	}
	inf := r.deps.Influencers.(*fakeInfluencer)
	if inf.lastRatio != "9:16" || inf.lastModel != "flux-schnell" {
		t.Errorf("got ratio %q model %q", inf.lastRatio, inf.lastModel)
	}

	got, err = r.Execute(ctx, "generate_caption", `{"title":"New drop","platform":"x"}`)
	if err != nil {
		t.Fatalf("generate_caption: %v", err)
	}
	if got != "caption for New drop" {
		t.Errorf("got %q", got)
	}

	got, err = r.Execute(ctx, "post_to_social", `{"title":"New drop","platforms":["instagram","x"]}`)
	if err != nil {
		t.Fatalf("post_to_social: %v", err)
	}
	if got != "posted" {
		t.Errorf("got %q", got)
	}
	if len(r.deps.Social.(*fakeSocial).lastPlatforms) != 2 {
		t.Error("platforms not forwarded")
	}

	_, err = r.Execute(ctx, "post_to_social", `{"title":"New drop"}`)
	if err == nil || !strings.Contains(err.Error(), "platforms is required") {
		t.Errorf("got err %v", err)
	}
}

func TestDispatchDirectiveTool(t *testing.T) {
	r, _, mis := fullTestRegistry(t)
	ctx := context.Background()

	got, err := r.Execute(ctx, "dispatch_directive", `{"target":"avyna","command":"post the reel","payload":"https://cdn/c.mp4"}`)
	if err != nil {
		t.Fatalf("dispatch_directive: %v", err)
	}
	if !strings.Contains(got, "queued for avyna") {
		t.Errorf("got %q", got)
	}

	tasks, err := mis.FetchPendingTasks(ctx, "avyna")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want 1", len(tasks))
	}
	if tasks[0].Sender != "hafiz" || tasks[0].Command != "post the reel" {
		t.Errorf("got %+v", tasks[0])
	}

	_, err = r.Execute(ctx, "dispatch_directive", `{"target":"avyna"}`)
	if err == nil || !strings.Contains(err.Error(), "command is required") {
		t.Errorf("got err %v", err)
	}
}
