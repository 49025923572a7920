package cost

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nulzo/content-orchestrator/internal/store/model"
)

type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ErrInvalidPeriod is returned by Summary for an unknown period.
var ErrInvalidPeriod = eris.New("invalid period: must be day, week or month")

// Summary aggregates the ledger over a period.
type Summary struct {
	Period       Period             `json:"period"`
	StartDate    time.Time          `json:"start_date"`
	EndDate      time.Time          `json:"end_date"`
	TotalCost    float64            `json:"total_cost"`
	ByProvider   map[string]float64 `json:"by_provider"`
	ByModel      map[string]float64 `json:"by_model"`
	ByTaskType   map[string]float64 `json:"by_task_type"`
	RequestCount int                `json:"request_count"`
	SuccessRate  float64            `json:"success_rate"`
	AvgLatencyMs float64            `json:"avg_latency_ms"`
}

// LimitStatus is the current usage against each limit.
type LimitStatus struct {
	Daily          float64  `json:"daily"`
	Monthly        float64  `json:"monthly"`
	DailyLimit     float64  `json:"daily_limit"`
	MonthlyLimit   float64  `json:"monthly_limit"`
	DailyPercent   float64  `json:"daily_percent"`
	MonthlyPercent float64  `json:"monthly_percent"`
	Warnings       []string `json:"warnings,omitempty"`
}

func (t *Tracker) periodStart(p Period) (time.Time, error) {
	switch p {
	case PeriodDay:
		return t.dayStart(), nil
	case PeriodWeek:
		return t.dayStart().AddDate(0, 0, -7), nil
	case PeriodMonth:
		return t.monthStart(), nil
	default:
		return time.Time{}, eris.Wrapf(ErrInvalidPeriod, "period %q", p)
	}
}

// Summary breaks spend down by provider, model and task type.
func (t *Tracker) Summary(ctx context.Context, p Period) (*Summary, error) {
	start, err := t.periodStart(p)
	if err != nil {
		return nil, err
	}
	entries, err := t.repo.Costs().ListSince(ctx, start)
	if err != nil {
		return nil, eris.Wrap(err, "failed to list cost entries")
	}
	return summarize(p, start, t.now(), entries), nil
}

func summarize(p Period, start, end time.Time, entries []model.CostEntry) *Summary {
	s := &Summary{
		Period:       p,
		StartDate:    start,
		EndDate:      end,
		ByProvider:   map[string]float64{},
		ByModel:      map[string]float64{},
		ByTaskType:   map[string]float64{},
		RequestCount: len(entries),
		SuccessRate:  1,
	}
	if len(entries) == 0 {
		return s
	}

	var successes int
	var latency int64
	for _, e := range entries {
		s.TotalCost += e.Cost
		s.ByProvider[e.Provider] += e.Cost
		s.ByModel[e.Model] += e.Cost
		s.ByTaskType[e.TaskType] += e.Cost
		if e.Success {
			successes++
		}
		latency += e.LatencyMs
	}
	s.SuccessRate = float64(successes) / float64(len(entries))
	s.AvgLatencyMs = float64(latency) / float64(len(entries))
	return s
}

// CheckLimits reports usage and the warnings a Record would log.
func (t *Tracker) CheckLimits(ctx context.Context) (*LimitStatus, error) {
	daily, err := t.DailyCost(ctx)
	if err != nil {
		return nil, err
	}
	monthly, err := t.MonthlyCost(ctx)
	if err != nil {
		return nil, err
	}

	st := &LimitStatus{
		Daily:        daily,
		Monthly:      monthly,
		DailyLimit:   t.limits.Daily,
		MonthlyLimit: t.limits.Monthly,
	}
	if t.limits.Daily > 0 {
		st.DailyPercent = daily / t.limits.Daily * 100
	}
	if t.limits.Monthly > 0 {
		st.MonthlyPercent = monthly / t.limits.Monthly * 100
	}

	warn := t.limits.WarningThreshold * 100
	switch {
	case st.DailyPercent >= 100:
		st.Warnings = append(st.Warnings, "daily limit reached")
	case st.DailyPercent >= warn:
		st.Warnings = append(st.Warnings, "approaching daily limit")
	}
	switch {
	case st.MonthlyPercent >= 100:
		st.Warnings = append(st.Warnings, "monthly limit reached")
	case st.MonthlyPercent >= warn:
		st.Warnings = append(st.Warnings, "approaching monthly limit")
	}
	return st, nil
}

// Recent returns the newest n entries, newest first.
func (t *Tracker) Recent(ctx context.Context, n int) ([]model.CostEntry, error) {
	if n <= 0 {
		n = 50
	}
	entries, err := t.repo.Costs().Recent(ctx, n)
	if err != nil {
		return nil, eris.Wrap(err, "failed to list recent cost entries")
	}
	return entries, nil
}

// Cleanup purges entries older than the retention period.
func (t *Tracker) Cleanup(ctx context.Context) (int64, error) {
	removed, err := t.repo.Costs().DeleteBefore(ctx, t.now().Add(-RetentionPeriod))
	if err != nil {
		return 0, eris.Wrap(err, "failed to purge cost entries")
	}
	if removed > 0 {
		t.logger.Info("cleaned up old cost entries", zap.Int64("removed", removed))
	}
	return removed, nil
}

// Reset wipes the ledger. Operator action only.
func (t *Tracker) Reset(ctx context.Context) error {
	if err := t.repo.Costs().DeleteAll(ctx); err != nil {
		return eris.Wrap(err, "failed to reset cost ledger")
	}
	t.logger.Warn("cost tracker reset")
	return nil
}

// LastUpdated returns when the ledger was last written.
func (t *Tracker) LastUpdated(ctx context.Context) (time.Time, error) {
	return t.repo.Costs().LastUpdated(ctx)
}
