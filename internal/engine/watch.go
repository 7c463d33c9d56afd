package engine

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/coffersTech/redlogic/internal/rules"
)

// WatchRules reloads every known rule file when it changes on disk. It
// blocks until ctx is cancelled or a watcher fails to start.
func (e *Engine) WatchRules(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, path := range e.RuleFiles() {
		path := path
		g.Go(func() error {
			return rules.Watch(ctx, path, func(rs *rules.RuleSet, err error) {
				if err != nil {
					e.counters.parseFailures.Add(1)
					e.logger.Warn("Rule file reload failed", zap.String("path", path), zap.Error(err))
					return
				}
				if err := e.AddRuleSet(rs); err != nil {
					e.logger.Warn("Reloaded rule set rejected", zap.String("path", path), zap.Error(err))
				}
			})
		})
	}
	return g.Wait()
}
