package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunCleaner prunes rule sets older than the retention window and saves
// stats every interval until ctx is done.
func (e *Engine) RunCleaner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Cleaner started", zap.Duration("retention", e.Retention), zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			if err := e.SaveStats(); err != nil {
				e.logger.Warn("Stats persist error", zap.Error(err))
			}
			return
		case <-ticker.C:
			e.clean()
		}
	}
}

func (e *Engine) clean() {
	if e.Retention > 0 {
		if n := e.store.PruneOlderThan(e.Retention); n > 0 {
			e.logger.Info("Expired rule sets pruned", zap.Int("count", n))
		}
	}
	if err := e.SaveStats(); err != nil {
		e.logger.Warn("Stats persist error", zap.Error(err))
	}
}
