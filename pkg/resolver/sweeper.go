package resolver

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

func (r *Resolver) startSweeper(interval time.Duration) {
	r.sc.Attach(func(done func(), closeSignal <-chan struct{}) {
		defer done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-closeSignal:
				return
			case <-ticker.C:
				if n := r.CleanupExpiredEntries(); n > 0 {
					r.logger.Debug("expired cache entries removed", zap.Int("removed", n))
				}
			}
		}
	})
}

// Shutdown stops the background sweep and waits at most
// Opts.ShutdownTimeout for it. Past that it gives up waiting and returns an
// error wrapping ErrShutdownTimeout; the sweep goroutine exits by itself once
// its current pass is done. Shutdown can be called multiple times. The
// Resolver stays usable afterwards.
func (r *Resolver) Shutdown() error {
	r.sc.Done()
	if err := r.sc.CloseWaitTimeout(r.opts.ShutdownTimeout); err != nil {
		r.logger.Warn("cache sweeper did not stop in time", zap.Duration("timeout", r.opts.ShutdownTimeout))
		return fmt.Errorf("%w: sweeper still running after %s", ErrShutdownTimeout, r.opts.ShutdownTimeout)
	}
	return nil
}
