package heartbeat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hafizlabs/hafiz-agent/internal/config"
)

type recordingNotifier struct {
	mu    sync.Mutex
	lines []string
	fired chan struct{}
}

func (n *recordingNotifier) Notify(ctx context.Context, line string) error {
	n.mu.Lock()
	n.lines = append(n.lines, line)
	n.mu.Unlock()
	select {
	case n.fired <- struct{}{}:
	default:
	}
	return nil
}

func TestNextFiring(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Istanbul")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		now  time.Time
		at   string
		want time.Time
	}{
		{
			"later today",
			time.Date(2026, 3, 10, 6, 30, 0, 0, loc),
			"08:00",
			time.Date(2026, 3, 10, 8, 0, 0, 0, loc),
		},
		{
			"already passed rolls to tomorrow",
			time.Date(2026, 3, 10, 9, 15, 0, 0, loc),
			"08:00",
			time.Date(2026, 3, 11, 8, 0, 0, 0, loc),
		},
		{
			"exactly now rolls to tomorrow",
			time.Date(2026, 3, 10, 8, 0, 0, 0, loc),
			"08:00",
			time.Date(2026, 3, 11, 8, 0, 0, 0, loc),
		},
		{
			"month boundary",
			time.Date(2026, 3, 31, 23, 0, 0, 0, loc),
			"22:30",
			time.Date(2026, 4, 1, 22, 30, 0, 0, loc),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := nextFiring(tc.now, tc.at)
			if err != nil {
				t.Fatalf("nextFiring: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Errorf("nextFiring(%v, %q) = %v, want %v", tc.now, tc.at, got, tc.want)
			}
		})
	}
}

func TestNextFiringBadTime(t *testing.T) {
	for _, at := range []string{"", "8am", "25:00", "08:61", "8"} {
		if _, err := nextFiring(time.Now(), at); err == nil {
			t.Errorf("nextFiring accepted %q", at)
		}
	}
}

func TestRunDisabled(t *testing.T) {
	h := New(config.HeartbeatConfig{Enabled: false, At: "08:00"}, nil, time.UTC, slog.New(slog.DiscardHandler))
	if err := h.Run(context.Background()); err != nil {
		t.Errorf("disabled heartbeat returned %v", err)
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	h := New(config.HeartbeatConfig{Enabled: true, At: "sunrise"}, nil, time.UTC, slog.New(slog.DiscardHandler))
	if err := h.Run(context.Background()); err == nil {
		t.Error("expected error for invalid firing time")
	}
}

func TestRunFires(t *testing.T) {
	notifier := &recordingNotifier{fired: make(chan struct{}, 1)}
	h := New(config.HeartbeatConfig{Enabled: true, At: "08:00"}, notifier, time.UTC, slog.New(slog.DiscardHandler))

	// Pin the clock a moment before firing time so the timer is short.
	base := time.Date(2026, 6, 1, 7, 59, 59, 950_000_000, time.UTC)
	start := time.Now()
	h.now = func() time.Time { return base.Add(time.Since(start)) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	select {
	case <-notifier.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat did not fire")
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.lines) == 0 {
		t.Fatal("no notification recorded")
	}
	if got := notifier.lines[0]; !strings.Contains(got, "Daily check-in") {
		t.Errorf("unexpected check-in line %q", got)
	}
}
