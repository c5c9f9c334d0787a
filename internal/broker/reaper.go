package broker

import (
	"context"
	"log/slog"
	"time"
)

// Reaper expires pending interactions the agent never answered. TTL expiry
// is the only timeout in the system: caller cancellation does not propagate
// to the agent.
type Reaper struct {
	wrapper  *Wrapper
	ttl      time.Duration
	interval time.Duration
	log      *slog.Logger
}

func NewReaper(w *Wrapper, ttl, interval time.Duration, log *slog.Logger) *Reaper {
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{wrapper: w, ttl: ttl, interval: interval, log: log}
}

func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("interaction reaper started", "ttl", r.ttl, "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.wrapper.Expire(r.ttl); n > 0 {
				r.log.Info("reaped expired interactions", "count", n)
			}
		}
	}
}
