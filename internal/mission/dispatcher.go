package mission

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// RunFunc drives one directive through the agent loop. The dispatcher
// does not know how the loop works; the wiring binds the subordinate
// persona into this function.
type RunFunc func(ctx context.Context, conversationID, message string) (string, error)

// Notifier delivers a one-line report to the owner.
type Notifier interface {
	Notify(ctx context.Context, line string) error
}

// Dispatcher polls the directive queue for one subordinate and runs
// each claimed directive through the agent loop.
type Dispatcher struct {
	store    *Store
	run      RunFunc
	notifier Notifier
	target   string
	interval time.Duration
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher for the given subordinate target.
// notifier may be nil.
func NewDispatcher(store *Store, run RunFunc, notifier Notifier, target string, interval time.Duration, logger *slog.Logger) *Dispatcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Dispatcher{
		store:    store,
		run:      run,
		notifier: notifier,
		target:   target,
		interval: interval,
		logger:   logger,
	}
}

// Run polls until ctx is canceled. Store and per-directive errors are
// logged, never fatal to the poll loop.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("mission dispatcher started", "target", d.target, "interval", d.interval)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("mission dispatcher stopped", "target", d.target)
			return
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

// poll claims and processes one batch of directives.
func (d *Dispatcher) poll(ctx context.Context) {
	tasks, err := d.store.FetchPendingTasks(ctx, d.target)
	if err != nil {
		d.logger.Error("fetch pending directives", "target", d.target, "error", err)
		return
	}

	for _, task := range tasks {
		d.process(ctx, task)
	}
}

// process runs a single directive to completion. Each directive gets a
// fresh conversation so directives never share working history.
func (d *Dispatcher) process(ctx context.Context, task *Task) {
	d.logger.Info("processing directive", "task_id", task.ID, "sender", task.Sender, "command", task.Command)

	message := task.Command
	if task.Payload != "" {
		message += "\n\nAdditional data:\n" + task.Payload
	}

	result, err := d.run(ctx, newConversationID(), message)
	if err != nil {
		d.logger.Error("directive failed", "task_id", task.ID, "error", err)
		if ferr := d.store.FailTask(ctx, task.ID, err.Error()); ferr != nil {
			d.logger.Error("mark directive failed", "task_id", task.ID, "error", ferr)
		}
		d.notify(ctx, fmt.Sprintf("Directive #%d (%s) failed: %s", task.ID, task.Command, err))
		return
	}

	if err := d.store.CompleteTask(ctx, task.ID, result); err != nil {
		d.logger.Error("mark directive completed", "task_id", task.ID, "error", err)
		return
	}

	d.logger.Info("directive completed", "task_id", task.ID)
	d.notify(ctx, fmt.Sprintf("Directive #%d (%s) completed: %s", task.ID, task.Command, result))
}

func (d *Dispatcher) notify(ctx context.Context, line string) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.Notify(ctx, line); err != nil {
		d.logger.Warn("notify owner", "error", err)
	}
}

// newConversationID generates a fresh conversation id.
func newConversationID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
