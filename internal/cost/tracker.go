// Package cost keeps the spend ledger and performs budget admission control.
package cost

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nulzo/content-orchestrator/internal/store"
	"github.com/nulzo/content-orchestrator/internal/store/model"
)

// ErrBudgetExceeded is wrapped by every admission rejection.
var ErrBudgetExceeded = eris.New("budget exceeded")

// RetentionPeriod is how long ledger entries are kept by Cleanup.
const RetentionPeriod = 90 * 24 * time.Hour

// Limits are the spend ceilings in USD.
type Limits struct {
	Daily            float64 `mapstructure:"daily_limit" validate:"gt=0"`
	Monthly          float64 `mapstructure:"monthly_limit" validate:"gt=0"`
	PerRequest       float64 `mapstructure:"per_request_limit" validate:"gt=0"`
	WarningThreshold float64 `mapstructure:"warning_threshold" validate:"gt=0,lte=1"`
}

func DefaultLimits() Limits {
	return Limits{
		Daily:            10,
		Monthly:          100,
		PerRequest:       1,
		WarningThreshold: 0.8,
	}
}

// Admission is the verdict of CanAfford.
type Admission struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Err returns nil for an allowed admission, otherwise ErrBudgetExceeded
// wrapped with the reason.
func (a Admission) Err() error {
	if a.Allowed {
		return nil
	}
	return eris.Wrap(ErrBudgetExceeded, a.Reason)
}

type Option func(*Tracker)

// WithClock replaces the time source. The location of the returned time
// defines the calendar used for daily and monthly totals.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// Tracker is the process-wide ledger owner. It is safe for concurrent use;
// the repository serialises writes.
type Tracker struct {
	repo   store.Repository
	limits Limits
	logger *zap.Logger
	now    func() time.Time
}

func NewTracker(repo store.Repository, limits Limits, logger *zap.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		repo:   repo,
		limits: limits,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) Limits() Limits {
	return t.limits
}

// Record appends entry to the ledger and persists it before returning.
func (t *Tracker) Record(ctx context.Context, entry model.CostEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = t.now()
	}
	dayStart, monthStart := t.dayStart(), t.monthStart()

	var dailyBefore, monthlyBefore float64
	err := t.repo.WithTx(ctx, func(repo store.Repository) error {
		var err error
		if dailyBefore, err = repo.Costs().SumSince(ctx, dayStart); err != nil {
			return err
		}
		if monthlyBefore, err = repo.Costs().SumSince(ctx, monthStart); err != nil {
			return err
		}
		return repo.Costs().Append(ctx, &entry)
	})
	if err != nil {
		return eris.Wrap(err, "failed to record cost entry")
	}

	t.logger.Info("cost recorded",
		zap.String("provider", entry.Provider),
		zap.String("model", entry.Model),
		zap.String("task", entry.TaskType),
		zap.Float64("cost", entry.Cost),
		zap.Bool("success", entry.Success),
	)

	t.warnOnCrossing("daily", dailyBefore, dailyBefore+entry.Cost, t.limits.Daily)
	t.warnOnCrossing("monthly", monthlyBefore, monthlyBefore+entry.Cost, t.limits.Monthly)
	return nil
}

func (t *Tracker) warnOnCrossing(period string, before, after, limit float64) {
	mark := limit * t.limits.WarningThreshold
	if limit <= 0 || before >= mark || after < mark {
		return
	}
	t.logger.Warn("approaching cost limit",
		zap.String("period", period),
		zap.Float64("current", after),
		zap.Float64("limit", limit),
		zap.Float64("percent", after/limit*100),
	)
}

// CanAfford runs the per-request, daily and monthly checks in that order.
func (t *Tracker) CanAfford(ctx context.Context, estimate float64) (Admission, error) {
	if estimate > t.limits.PerRequest {
		return Admission{Reason: fmt.Sprintf("estimated cost $%.4f exceeds per-request limit $%.2f", estimate, t.limits.PerRequest)}, nil
	}

	daily, err := t.DailyCost(ctx)
	if err != nil {
		return Admission{}, err
	}
	if daily+estimate > t.limits.Daily {
		return Admission{Reason: fmt.Sprintf("would exceed daily limit: current $%.2f, limit $%.2f", daily, t.limits.Daily)}, nil
	}

	monthly, err := t.MonthlyCost(ctx)
	if err != nil {
		return Admission{}, err
	}
	if monthly+estimate > t.limits.Monthly {
		return Admission{Reason: fmt.Sprintf("would exceed monthly limit: current $%.2f, limit $%.2f", monthly, t.limits.Monthly)}, nil
	}
	return Admission{Allowed: true}, nil
}

// DailyCost sums the current calendar day.
func (t *Tracker) DailyCost(ctx context.Context) (float64, error) {
	sum, err := t.repo.Costs().SumSince(ctx, t.dayStart())
	if err != nil {
		return 0, eris.Wrap(err, "failed to sum daily cost")
	}
	return sum, nil
}

// MonthlyCost sums the current calendar month.
func (t *Tracker) MonthlyCost(ctx context.Context) (float64, error) {
	sum, err := t.repo.Costs().SumSince(ctx, t.monthStart())
	if err != nil {
		return 0, eris.Wrap(err, "failed to sum monthly cost")
	}
	return sum, nil
}

func (t *Tracker) dayStart() time.Time {
	now := t.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func (t *Tracker) monthStart() time.Time {
	now := t.now()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}
