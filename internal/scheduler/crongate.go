package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// CronGate rate-limits dispatch sends to at most one per cron window. The
// gate opens when the next tick of the expression has passed since the
// last successful claim.
type CronGate struct {
	schedule cron.Schedule

	mu     sync.Mutex
	window time.Time
}

// NewCronGate parses a cron expression with a seconds field, e.g.
// "*/30 * * * * *".
func NewCronGate(expr string) (*CronGate, error) {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("scheduler: parse cron expression %q: %w", expr, err)
	}
	return &CronGate{schedule: schedule}, nil
}

// Allow reports whether a dispatch may proceed at now, and claims the
// current window when it does.
func (g *CronGate) Allow(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.window.IsZero() {
		g.window = g.schedule.Next(now)
		return true
	}
	if now.Before(g.window) {
		return false
	}
	g.window = g.schedule.Next(now)
	return true
}
