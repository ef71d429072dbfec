package multisig

import (
	"context"
)

// RunSweeper periodically evicts stale proposals until the context is
// cancelled. A failed sweep is logged and retried on the next tick.
func (e *Engine) RunSweeper(ctx context.Context) error {
	ticker := e.clock.Ticker(e.conf.SweepInterval)
	defer ticker.Stop()

	e.logger.Info("sweeper started", "interval", e.conf.SweepInterval)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := e.Sweep(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error("sweep failed", "err", err)
			}
		}
	}
}
