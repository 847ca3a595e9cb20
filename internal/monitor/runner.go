// internal/monitor/runner.go
package monitor

import (
	"context"
	"time"
)

// Run starts the ticker loop and emits a Result per cycle on the
// provided channel. No overlap. No retries.
func (p *Poller) Run(ctx context.Context, out chan<- Result) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			out <- p.PollOnce()
		}
	}
}
