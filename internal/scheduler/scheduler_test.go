package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngmaloney/weather-terminal/internal/refresh"
)

type countingRevalidator struct {
	calls atomic.Int32
	err   error
}

func (c *countingRevalidator) Revalidate(ctx context.Context) (refresh.DashboardState, error) {
	c.calls.Add(1)
	return refresh.DashboardState{}, c.err
}

func TestAutoRefresh_Ticks(t *testing.T) {
	target := &countingRevalidator{}
	a := New(target, 20*time.Millisecond, true)
	require.NoError(t, a.Start())
	defer a.Stop()

	assert.Eventually(t, func() bool { return target.calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, a.Runs(), int64(2))
}

func TestAutoRefresh_Disabled(t *testing.T) {
	target := &countingRevalidator{}
	a := New(target, 10*time.Millisecond, false)
	require.NoError(t, a.Start())
	defer a.Stop()

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, target.calls.Load())
	assert.Zero(t, a.Runs())

	a.SetEnabled(true)
	assert.True(t, a.Enabled())
	assert.Eventually(t, func() bool { return target.calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestAutoRefresh_ErrorsKeepTicking(t *testing.T) {
	target := &countingRevalidator{err: errors.New("upstream down")}
	a := New(target, 10*time.Millisecond, true)
	require.NoError(t, a.Start())
	defer a.Stop()

	assert.Eventually(t, func() bool { return target.calls.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)
}

func TestNew_DefaultInterval(t *testing.T) {
	a := New(&countingRevalidator{}, 0, true)
	assert.Equal(t, DefaultInterval, a.Interval())
}

func TestAutoRefresh_RevalidatesSession(t *testing.T) {
	// An empty session has nothing displayed; revalidating it is a no-op.
	session := refresh.NewSession(refresh.New(refresh.Deps{}))
	a := New(session, 10*time.Millisecond, true)
	require.NoError(t, a.Start())
	defer a.Stop()

	assert.Eventually(t, func() bool { return a.Runs() >= 1 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, session.State().HasData())
}
