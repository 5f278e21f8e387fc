package session

import (
	"context"
	"time"

	"github.com/dkim-lab/chess-arena/internal/obslog"
	"go.uber.org/zap"
)

// Sweeper periodically reclaims rooms with no recent move and no recent
// heartbeat. It is the only component that deletes rooms the coordinator
// did not just vacate.
type Sweeper struct {
	co       *Coordinator
	interval time.Duration
	timeout  time.Duration
}

func NewSweeper(co *Coordinator, interval, timeout time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Sweeper{co: co, interval: interval, timeout: timeout}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.co.sweepExpired(now, s.timeout); n > 0 {
				obslog.L().Info("sweep_pass", zap.Int("reclaimed", n))
			}
		}
	}
}

// SweepOnce runs a single pass at the given instant. Exposed for tests
// and for operational forcing.
func (s *Sweeper) SweepOnce(now time.Time) int {
	return s.co.sweepExpired(now, s.timeout)
}
