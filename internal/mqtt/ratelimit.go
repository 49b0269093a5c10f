package mqtt

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// messageRateLimiter caps how many asks the transport will hand to the
// agent per interval. A runaway publisher on the ask topic otherwise
// turns into an unbounded stream of LLM calls. Counters are atomic so
// allow never blocks the message handler.
type messageRateLimiter struct {
	count    atomic.Int64
	dropped  atomic.Int64
	limit    int64
	interval time.Duration
	logger   *slog.Logger
}

func newMessageRateLimiter(limit int64, interval time.Duration, logger *slog.Logger) *messageRateLimiter {
	return &messageRateLimiter{
		limit:    limit,
		interval: interval,
		logger:   logger,
	}
}

// start resets the window counter every interval and reports anything
// dropped during the window that just closed. Blocks until ctx ends.
func (r *messageRateLimiter) start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			received := r.count.Swap(0)
			dropped := r.dropped.Swap(0)
			if dropped > 0 {
				r.logger.Warn("rate limit exceeded, asks dropped",
					"received", received,
					"dropped", dropped,
					"limit", r.limit,
					"interval", r.interval.String(),
				)
			}
		}
	}
}

// allow reports whether the current window still has room. Refused
// messages are counted so start can surface them.
func (r *messageRateLimiter) allow() bool {
	if r.count.Add(1) > r.limit {
		r.dropped.Add(1)
		return false
	}
	return true
}
