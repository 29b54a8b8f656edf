package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanWindowsSixteenDaysBySeven(t *testing.T) {
	day0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	windows := PlanWindows(day0, day0.AddDate(0, 0, 16), 7*24*time.Hour)

	require.Len(t, windows, 3)
	assert.Equal(t, day0, windows[0].Start)
	assert.Equal(t, day0.AddDate(0, 0, 7), windows[0].End)
	assert.Equal(t, day0.AddDate(0, 0, 7), windows[1].Start)
	assert.Equal(t, day0.AddDate(0, 0, 14), windows[1].End)
	assert.Equal(t, day0.AddDate(0, 0, 14), windows[2].Start)
	assert.Equal(t, day0.AddDate(0, 0, 16), windows[2].End)
}

func TestPlanWindowsEmptyRange(t *testing.T) {
	now := time.Now()
	assert.Empty(t, PlanWindows(now, now, time.Hour))
	assert.Empty(t, PlanWindows(now, now.Add(-time.Hour), time.Hour))
}

func TestPlanWindowsUnboundedMax(t *testing.T) {
	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	until := since.AddDate(1, 0, 0)

	windows := PlanWindows(since, until, 0)
	require.Len(t, windows, 1)
	assert.Equal(t, since, windows[0].Start)
	assert.Equal(t, until, windows[0].End)
}

func TestPlanWindowsExactCoverage(t *testing.T) {
	since := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	for _, span := range []time.Duration{time.Minute, 25 * time.Hour, 180 * 24 * time.Hour} {
		for _, max := range []time.Duration{time.Hour, 24 * time.Hour, 7 * 24 * time.Hour} {
			until := since.Add(span)
			windows := PlanWindows(since, until, max)
			require.NotEmpty(t, windows)

			assert.Equal(t, since, windows[0].Start)
			assert.Equal(t, until, windows[len(windows)-1].End)
			for i, w := range windows {
				assert.True(t, w.End.After(w.Start))
				assert.LessOrEqual(t, w.Duration(), max)
				if i > 0 {
					// Contiguous: each window starts where the previous ended.
					assert.Equal(t, windows[i-1].End, w.Start)
				}
			}
		}
	}
}
