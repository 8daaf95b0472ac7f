package staging

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper is implemented by backends that cannot expire sessions on their
// own. Redis expires keys itself and does not need one.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// DefaultSweepInterval is how often expired sessions are collected.
const DefaultSweepInterval = time.Minute

// RunSweeper removes expired sessions every interval until ctx is
// cancelled. onSweep, if non-nil, is called after each pass with the number
// removed.
func RunSweeper(ctx context.Context, s Sweeper, interval time.Duration, onSweep func(removed int)) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	slog.Info("staging sweeper started", "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("staging sweeper stopped")
			return
		case <-ticker.C:
			sweepOnce(ctx, s, onSweep)
		}
	}
}

func sweepOnce(ctx context.Context, s Sweeper, onSweep func(int)) {
	start := time.Now()
	removed, err := s.Sweep(ctx)
	if err != nil {
		slog.Error("staging sweep failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Debug("expired upload sessions removed",
			"removed", removed,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	if onSweep != nil {
		onSweep(removed)
	}
}
