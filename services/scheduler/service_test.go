package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingRefresher struct {
	release  chan struct{}
	started  chan struct{}
	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	err      error
}

func newBlockingRefresher() *blockingRefresher {
	return &blockingRefresher{release: make(chan struct{}), started: make(chan struct{}, 16)}
}

func (r *blockingRefresher) Refresh(ctx context.Context) (Summary, error) {
	r.calls.Add(1)
	n := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		seen := r.maxSeen.Load()
		if n <= seen || r.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	r.started <- struct{}{}
	select {
	case <-r.release:
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	}
	return Summary{Outcome: "live", Items: 7}, r.err
}

type funcRefresher func(ctx context.Context) (Summary, error)

func (f funcRefresher) Refresh(ctx context.Context) (Summary, error) { return f(ctx) }

func TestRunOnceRecordsResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewService(funcRefresher(func(context.Context) (Summary, error) {
		return Summary{Outcome: "live", Items: 12}, nil
	}), Options{Interval: time.Minute, Registerer: reg})

	result, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, Summary{Outcome: "live", Items: 12}, result.Summary)

	status := s.Status()
	assert.Equal(t, StateStopped, status.State)
	assert.Equal(t, uint64(1), status.Runs)
	require.NotNil(t, status.LastRun)
	assert.Equal(t, result.ID, status.LastRun.ID)
	assert.Equal(t, int64(60), status.IntervalSeconds)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.runs.WithLabelValues("success")))
}

func TestRunOnceRecordsFailure(t *testing.T) {
	s := NewService(funcRefresher(func(context.Context) (Summary, error) {
		return Summary{Outcome: "fallback-empty"}, errors.New("store down")
	}), Options{})

	result, err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, "store down", result.Error)
	assert.Equal(t, "store down", s.Status().LastRun.Error)
	assert.Equal(t, int64(3600), s.Status().IntervalSeconds)
}

func TestOverlappingPassesNeverRunConcurrently(t *testing.T) {
	r := newBlockingRefresher()
	s := NewService(r, Options{Interval: time.Hour})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := s.RunOnce(context.Background())
		assert.NoError(t, err)
	}()
	<-r.started

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.tick()
		}()
	}
	wg.Wait()

	_, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrRefreshInProgress)
	assert.False(t, s.Trigger())
	assert.Equal(t, StateRefreshing, s.Status().State)

	close(r.release)
	<-done

	assert.Equal(t, int32(1), r.calls.Load())
	assert.Equal(t, int32(1), r.maxSeen.Load())
	assert.Equal(t, uint64(12), s.Status().Skipped)
	assert.False(t, s.Refreshing())
}

func TestTriggerRunsInBackground(t *testing.T) {
	r := newBlockingRefresher()
	s := NewService(r, Options{})

	require.True(t, s.Trigger())
	<-r.started
	assert.True(t, s.Refreshing())
	close(r.release)

	require.Eventually(t, func() bool {
		return !s.Refreshing() && s.Status().Runs == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "live", s.Status().LastRun.Summary.Outcome)
}

func TestStartRunsWarmupAndStopWaits(t *testing.T) {
	r := newBlockingRefresher()
	s := NewService(r, Options{Interval: time.Hour, RunOnStart: true})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()), "second start is a no-op")
	<-r.started

	status := s.Status()
	assert.True(t, status.Running)
	assert.Equal(t, StateRefreshing, status.State)
	require.NotNil(t, status.NextRunAt)

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop(context.Background()) }()

	// Stop cancels the pass context, which unblocks the refresher.
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}
	assert.Equal(t, StateStopped, s.Status().State)
	assert.Equal(t, uint64(1), s.Status().Runs)
	require.NoError(t, s.Stop(context.Background()), "second stop is a no-op")
}

func TestStopBoundedByContext(t *testing.T) {
	stuck := make(chan struct{})
	defer close(stuck)
	started := make(chan struct{})
	s := NewService(funcRefresher(func(context.Context) (Summary, error) {
		close(started)
		<-stuck
		return Summary{}, nil
	}), Options{RunOnStart: true})

	require.NoError(t, s.Start(context.Background()))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)
}
