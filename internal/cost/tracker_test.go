package cost

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nulzo/content-orchestrator/internal/store/memory"
	"github.com/nulzo/content-orchestrator/internal/store/model"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTracker(t *testing.T, limits Limits) (*Tracker, *clock, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.WarnLevel)
	c := &clock{now: time.Date(2025, time.March, 15, 12, 0, 0, 0, time.Local)}
	return NewTracker(memory.New(), limits, zap.New(core), WithClock(c.Now)), c, logs
}

func spend(t *testing.T, tr *Tracker, at time.Time, usd float64) {
	t.Helper()
	require.NoError(t, tr.Record(context.Background(), model.CostEntry{
		Provider: "anthropic", Model: "claude-sonnet-4", TaskType: "content-generation",
		Cost: usd, Success: true, CreatedAt: at,
	}))
}

func TestCanAfford_DailyLimit(t *testing.T) {
	tr, c, _ := newTracker(t, Limits{Daily: 10, Monthly: 100, PerRequest: 5, WarningThreshold: 0.8})
	spend(t, tr, c.now, 8)
	ctx := context.Background()

	adm, err := tr.CanAfford(ctx, 3)
	require.NoError(t, err)
	assert.False(t, adm.Allowed)
	assert.Contains(t, adm.Reason, "daily limit")
	assert.ErrorIs(t, adm.Err(), ErrBudgetExceeded)

	adm, err = tr.CanAfford(ctx, 1.9)
	require.NoError(t, err)
	assert.True(t, adm.Allowed)
	assert.NoError(t, adm.Err())
}

func TestCanAfford_CheckOrder(t *testing.T) {
	tr, c, _ := newTracker(t, Limits{Daily: 10, Monthly: 12, PerRequest: 1, WarningThreshold: 0.8})
	ctx := context.Background()

	adm, err := tr.CanAfford(ctx, 1.5)
	require.NoError(t, err)
	assert.Contains(t, adm.Reason, "per-request")

	// Earlier this month, not today.
	spend(t, tr, c.now.AddDate(0, 0, -5), 11.5)
	adm, err = tr.CanAfford(ctx, 0.9)
	require.NoError(t, err)
	assert.False(t, adm.Allowed)
	assert.Contains(t, adm.Reason, "monthly limit")
}

func TestCalendarBoundaries(t *testing.T) {
	tr, _, _ := newTracker(t, DefaultLimits())
	ctx := context.Background()

	today := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.Local)
	spend(t, tr, today, 1)
	spend(t, tr, today.Add(-time.Nanosecond), 2)
	spend(t, tr, today.AddDate(0, 0, -14), 4)
	spend(t, tr, time.Date(2025, time.February, 28, 23, 0, 0, 0, time.Local), 8)

	daily, err := tr.DailyCost(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1, daily, 1e-9)

	monthly, err := tr.MonthlyCost(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 7, monthly, 1e-9)
}

func TestRecord_WarnsOnceWhenCrossingThreshold(t *testing.T) {
	tr, c, logs := newTracker(t, Limits{Daily: 10, Monthly: 1000, PerRequest: 5, WarningThreshold: 0.8})

	spend(t, tr, c.now, 5)
	assert.Zero(t, logs.FilterMessage("approaching cost limit").Len())

	spend(t, tr, c.now, 3.5)
	warnings := logs.FilterMessage("approaching cost limit").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "daily", warnings[0].ContextMap()["period"])

	spend(t, tr, c.now, 0.5)
	assert.Equal(t, 1, logs.FilterMessage("approaching cost limit").Len())
}

func TestSummary(t *testing.T) {
	tr, c, _ := newTracker(t, DefaultLimits())
	ctx := context.Background()

	require.NoError(t, tr.Record(ctx, model.CostEntry{Provider: "anthropic", Model: "claude-sonnet-4", TaskType: "content-generation", Cost: 0.02, LatencyMs: 1000, Success: true, CreatedAt: c.now}))
	require.NoError(t, tr.Record(ctx, model.CostEntry{Provider: "openai", Model: "gpt-4o", TaskType: "content-generation", Cost: 0, LatencyMs: 200, Success: false, CreatedAt: c.now}))
	require.NoError(t, tr.Record(ctx, model.CostEntry{Provider: "openai", Model: "dall-e-3", TaskType: "image-article", Cost: 0.04, LatencyMs: 3000, Success: true, CreatedAt: c.now.AddDate(0, 0, -3)}))

	day, err := tr.Summary(ctx, PeriodDay)
	require.NoError(t, err)
	assert.Equal(t, 2, day.RequestCount)
	assert.InDelta(t, 0.5, day.SuccessRate, 1e-9)
	assert.InDelta(t, 600, day.AvgLatencyMs, 1e-9)
	assert.InDelta(t, 0.02, day.TotalCost, 1e-9)

	week, err := tr.Summary(ctx, PeriodWeek)
	require.NoError(t, err)
	assert.Equal(t, 3, week.RequestCount)
	assert.InDelta(t, 0.04, week.ByProvider["openai"], 1e-9)
	assert.InDelta(t, 0.04, week.ByTaskType["image-article"], 1e-9)
	assert.InDelta(t, 0.02, week.ByModel["claude-sonnet-4"], 1e-9)

	_, err = tr.Summary(ctx, "year")
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestSummary_EmptyPeriod(t *testing.T) {
	tr, _, _ := newTracker(t, DefaultLimits())
	s, err := tr.Summary(context.Background(), PeriodMonth)
	require.NoError(t, err)
	assert.Zero(t, s.RequestCount)
	assert.Equal(t, 1.0, s.SuccessRate)
}

func TestCheckLimits(t *testing.T) {
	tr, c, _ := newTracker(t, Limits{Daily: 10, Monthly: 20, PerRequest: 5, WarningThreshold: 0.8})
	spend(t, tr, c.now, 10)
	spend(t, tr, c.now.AddDate(0, 0, -2), 6.5)

	st, err := tr.CheckLimits(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 100, st.DailyPercent, 1e-9)
	assert.InDelta(t, 82.5, st.MonthlyPercent, 1e-9)
	assert.Equal(t, []string{"daily limit reached", "approaching monthly limit"}, st.Warnings)
}

func TestCleanupAndReset(t *testing.T) {
	tr, c, _ := newTracker(t, DefaultLimits())
	ctx := context.Background()

	spend(t, tr, c.now.Add(-RetentionPeriod-time.Hour), 1)
	spend(t, tr, c.now.Add(-time.Hour), 1)

	removed, err := tr.Cleanup(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	recent, err := tr.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	require.NoError(t, tr.Reset(ctx))
	recent, err = tr.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}
