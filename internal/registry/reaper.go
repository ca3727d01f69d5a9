package registry

import (
	"context"
	"time"
)

// ReapLoop sweeps the registry on a fixed interval, purging rooms whose
// participants vanished without a clean disconnect. It runs until ctx is
// cancelled and takes the same lock as live traffic, so a sweep can never
// race an admit or remove on the same room.
func (r *Registry) ReapLoop(ctx context.Context, every, idleAfter time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			if n := r.PurgeIdle(idleAfter); n > 0 {
				r.log.Info("reaper.swept", "purged", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
