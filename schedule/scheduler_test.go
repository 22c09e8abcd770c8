package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ftahirops/sqlsentinel/config"
)

func testSchedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		JobTimeout:             time.Second,
		FailureBackoff:         30 * time.Second,
		MaxConsecutiveFailures: 3,
	}
}

func TestRunJobSkipsOverlap(t *testing.T) {
	s := New(testSchedulerConfig(), zap.NewNop())
	release := make(chan struct{})
	var runs atomic.Int32
	j := &job{name: "slow", fn: func(ctx context.Context) error {
		runs.Add(1)
		<-release
		return nil
	}}

	done := make(chan struct{})
	go func() {
		s.runJob(context.Background(), j)
		close(done)
	}()
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)

	// Second tick while the first still holds the lock: skipped.
	s.runJob(context.Background(), j)
	require.EqualValues(t, 1, runs.Load())

	close(release)
	<-done
	s.runJob(context.Background(), j)
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, time.Millisecond)
}

func TestRunJobLinearBackoff(t *testing.T) {
	s := New(testSchedulerConfig(), zap.NewNop())
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return now }

	var runs int
	j := &job{name: "flaky", fn: func(ctx context.Context) error {
		runs++
		return errors.New("boom")
	}}

	s.runJob(context.Background(), j)
	require.Equal(t, 1, runs)
	require.Equal(t, now.Add(30*time.Second), j.deferUntil)

	// Within the backoff window nothing runs.
	now = now.Add(10 * time.Second)
	s.runJob(context.Background(), j)
	require.Equal(t, 1, runs)

	// After it, the second failure defers linearly: two units.
	now = now.Add(25 * time.Second)
	s.runJob(context.Background(), j)
	require.Equal(t, 2, runs)
	require.Equal(t, now.Add(60*time.Second), j.deferUntil)
}

func TestRunJobSuccessResetsFailures(t *testing.T) {
	s := New(testSchedulerConfig(), zap.NewNop())
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return now }

	fail := true
	j := &job{name: "recovering", fn: func(ctx context.Context) error {
		if fail {
			return errors.New("boom")
		}
		return nil
	}}

	s.runJob(context.Background(), j)
	require.Equal(t, 1, j.failures)

	fail = false
	now = now.Add(time.Minute)
	s.runJob(context.Background(), j)
	require.Zero(t, j.failures)
	require.True(t, j.deferUntil.IsZero())
}

func TestRunTerminatesAfterConsecutiveFailures(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.FailureBackoff = 0 // no deferral, fail fast
	s := New(cfg, zap.NewNop())
	s.AddInterval("doomed", 5*time.Millisecond, func(ctx context.Context) error {
		return errors.New("boom")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.Run(ctx)
	require.Error(t, err)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	require.Contains(t, err.Error(), "doomed")
	require.Contains(t, err.Error(), "3 consecutive")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := New(testSchedulerConfig(), zap.NewNop())
	var runs atomic.Int32
	s.AddInterval("ticker", 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	err := s.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.GreaterOrEqual(t, runs.Load(), int32(1))
}

func TestAddDailyValidatesTime(t *testing.T) {
	s := New(testSchedulerConfig(), zap.NewNop())
	require.NoError(t, s.AddDaily("summary", "08:00", func(ctx context.Context) error { return nil }))
	require.Error(t, s.AddDaily("bad", "25:99", func(ctx context.Context) error { return nil }))
}
