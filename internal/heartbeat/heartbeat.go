// Package heartbeat sends a short daily check-in over the notification
// channel so the owner can tell at a glance that the agent is alive.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hafizlabs/hafiz-agent/internal/config"
)

// Notifier delivers the check-in line to the owner.
type Notifier interface {
	Notify(ctx context.Context, line string) error
}

// Heartbeat fires once per day at a fixed local wall-clock time.
type Heartbeat struct {
	cfg      config.HeartbeatConfig
	notifier Notifier
	loc      *time.Location
	logger   *slog.Logger

	now func() time.Time
}

// New creates a heartbeat. Call Run to start it.
func New(cfg config.HeartbeatConfig, notifier Notifier, loc *time.Location, logger *slog.Logger) *Heartbeat {
	return &Heartbeat{
		cfg:      cfg,
		notifier: notifier,
		loc:      loc,
		logger:   logger,
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled, firing the check-in at the
// configured time each day. Returns immediately when disabled.
func (h *Heartbeat) Run(ctx context.Context) error {
	if !h.cfg.Enabled {
		return nil
	}
	if _, _, err := parseAt(h.cfg.At); err != nil {
		return err
	}

	for {
		next, err := nextFiring(h.now().In(h.loc), h.cfg.At)
		if err != nil {
			return err
		}
		h.logger.Debug("heartbeat scheduled", "next", next)

		timer := time.NewTimer(next.Sub(h.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		line := fmt.Sprintf("Daily check-in: online and standing by. It is %s.",
			h.now().In(h.loc).Format("Monday, January 2 at 15:04"))
		if err := h.notifier.Notify(ctx, line); err != nil {
			h.logger.Warn("heartbeat notify failed", "error", err)
		} else {
			h.logger.Info("heartbeat sent")
		}
	}
}

// nextFiring returns the next wall-clock occurrence of at ("HH:MM")
// strictly after now, in now's location.
func nextFiring(now time.Time, at string) (time.Time, error) {
	hour, minute, err := parseAt(at)
	if err != nil {
		return time.Time{}, err
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}

func parseAt(at string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid heartbeat time %q (expected HH:MM): %w", at, err)
	}
	return t.Hour(), t.Minute(), nil
}
