package syncer

import (
	"time"

	"tradesync/internal/exchange"
)

// PlanWindows splits [since, until) into contiguous windows no longer than
// max, covering the range exactly once with no gaps or overlap. A max of
// zero or less means the exchange accepts unbounded ranges, so the whole
// span becomes one window. until <= since is a no-op sync, not an error.
func PlanWindows(since, until time.Time, max time.Duration) []exchange.Window {
	if !until.After(since) {
		return nil
	}
	if max <= 0 {
		return []exchange.Window{{Start: since, End: until}}
	}
	var out []exchange.Window
	for start := since; start.Before(until); start = start.Add(max) {
		end := start.Add(max)
		if end.After(until) {
			end = until
		}
		out = append(out, exchange.Window{Start: start, End: end})
	}
	return out
}
