// Package scheduler runs the auto-refresh timer for serve mode.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ngmaloney/weather-terminal/internal/refresh"
)

// DefaultInterval is used when New is given a non-positive interval.
const DefaultInterval = 5 * time.Minute

const jobTimeout = 45 * time.Second

// Revalidator re-evaluates staleness for whatever is displayed.
type Revalidator interface {
	Revalidate(ctx context.Context) (refresh.DashboardState, error)
}

// AutoRefresh periodically revalidates the displayed place while enabled.
// Revalidation only fetches when the cached data has gone stale, so a tick
// on fresh data costs one cache read.
type AutoRefresh struct {
	scheduler *gocron.Scheduler
	target    Revalidator
	interval  time.Duration
	enabled   atomic.Bool
	runs      atomic.Int64
}

// New creates an AutoRefresh. It does nothing until Start.
func New(target Revalidator, interval time.Duration, enabled bool) *AutoRefresh {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	s.WaitForScheduleAll()

	a := &AutoRefresh{
		scheduler: s,
		target:    target,
		interval:  interval,
	}
	a.enabled.Store(enabled)
	return a
}

// Start schedules the job and starts the underlying scheduler.
func (a *AutoRefresh) Start() error {
	if _, err := a.scheduler.Every(a.interval).Do(a.tick); err != nil {
		return eris.Wrap(err, "scheduler: schedule auto-refresh")
	}
	a.scheduler.StartAsync()
	zap.L().Info("scheduler: auto-refresh started",
		zap.Duration("interval", a.interval),
		zap.Bool("enabled", a.Enabled()),
	)
	return nil
}

// Stop stops the scheduler and cancels any future runs.
func (a *AutoRefresh) Stop() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
}

// Enabled reports whether ticks revalidate.
func (a *AutoRefresh) Enabled() bool { return a.enabled.Load() }

// SetEnabled toggles auto-refresh without rescheduling.
func (a *AutoRefresh) SetEnabled(on bool) {
	if a.enabled.Swap(on) != on {
		zap.L().Info("scheduler: auto-refresh toggled", zap.Bool("enabled", on))
	}
}

// Interval is the time between ticks.
func (a *AutoRefresh) Interval() time.Duration { return a.interval }

// Runs is the number of revalidations performed.
func (a *AutoRefresh) Runs() int64 { return a.runs.Load() }

func (a *AutoRefresh) tick() {
	if !a.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	a.runs.Add(1)
	state, err := a.target.Revalidate(ctx)
	if err != nil {
		zap.L().Warn("scheduler: auto-refresh failed", zap.Error(err))
		return
	}
	zap.L().Debug("scheduler: auto-refresh",
		zap.String("slot", state.Slot.String()),
		zap.Bool("has_data", state.HasData()),
	)
}
