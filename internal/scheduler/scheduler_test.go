package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpec_FortyFiveSeconds(t *testing.T) {
	t.Parallel()
	sched, err := ParseSpec("*/45 * * * * *")
	require.NoError(t, err)

	base := time.Date(2025, 3, 20, 12, 0, 10, 0, time.UTC)
	tests := []struct {
		from time.Time
		want time.Time
	}{
		{from: base, want: base.Add(35 * time.Second)},
		{from: base.Add(35 * time.Second), want: base.Add(50 * time.Second)},
		{from: base.Add(50 * time.Second), want: base.Add(95 * time.Second)},
	}
	for _, tt := range tests {
		got := sched.Next(tt.from)
		assert.Equal(t, tt.want, got, "from %s", tt.from.Format(time.TimeOnly))
		assert.Contains(t, []int{0, 45}, got.Second())
	}
}

func TestParseSpec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		spec    string
		wantErr bool
	}{
		{spec: "*/45 * * * * *"},
		{spec: "@every 45s"},
		{spec: "*/5 * * * *"},
		{spec: "every now and then", wantErr: true},
		{spec: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			t.Parallel()
			_, err := ParseSpec(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// blockingJob runs until release is closed.
func blockingJob(started chan<- struct{}, release <-chan struct{}) Job {
	return func(ctx context.Context) {
		started <- struct{}{}
		<-release
	}
}

func TestRun_SkipWhileBusy(t *testing.T) {
	t.Parallel()
	started := make(chan struct{}, 2)
	release := make(chan struct{})

	s, err := New(blockingJob(started, release), Config{Spec: "@every 1h", Overlap: OverlapSkip})
	require.NoError(t, err)

	done := make(chan bool)
	go func() { done <- s.RunNow(context.Background()) }()
	<-started

	assert.False(t, s.RunNow(context.Background()), "second run is dropped")
	assert.Equal(t, int64(1), s.Skipped())

	close(release)
	assert.True(t, <-done)

	// Guard is released afterwards.
	release2 := make(chan struct{})
	close(release2)
	s.job = blockingJob(started, release2)
	assert.True(t, s.RunNow(context.Background()))
	assert.Equal(t, int64(2), s.Runs())
}

func TestRun_AllowOverlap(t *testing.T) {
	t.Parallel()
	started := make(chan struct{}, 2)
	release := make(chan struct{})

	s, err := New(blockingJob(started, release), Config{Spec: "@every 1h", Overlap: OverlapAllow})
	require.NoError(t, err)

	done := make(chan bool, 2)
	go func() { done <- s.RunNow(context.Background()) }()
	go func() { done <- s.RunNow(context.Background()) }()
	<-started
	<-started // both in flight at once

	close(release)
	assert.True(t, <-done)
	assert.True(t, <-done)
	assert.Zero(t, s.Skipped())
}

func TestRun_TimeoutAndPanic(t *testing.T) {
	t.Parallel()
	var sawDeadline atomic.Bool
	s, err := New(func(ctx context.Context) {
		_, ok := ctx.Deadline()
		sawDeadline.Store(ok)
		panic("boom")
	}, Config{Spec: "@every 1h", Timeout: time.Second})
	require.NoError(t, err)

	assert.NotPanics(t, func() { s.RunNow(context.Background()) })
	assert.True(t, sawDeadline.Load())

	// A panicking run must not leave the guard held.
	assert.False(t, s.busy.Load())
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	var runs atomic.Int32
	s, err := New(func(context.Context) { runs.Add(1) }, Config{Spec: "* * * * * *"})
	require.NoError(t, err)

	s.Start(context.Background())
	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	select {
	case <-s.Stop().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not complete")
	}
	assert.False(t, s.RunNow(context.Background()), "no runs after stop")
}

func TestStop_WaitsForManualRun(t *testing.T) {
	t.Parallel()
	started, release := make(chan struct{}), make(chan struct{})
	s, err := New(func(context.Context) {
		close(started)
		<-release
	}, Config{Spec: "@every 1h"})
	require.NoError(t, err)

	ran := make(chan bool, 1)
	go func() { ran <- s.RunNow(context.Background()) }()
	<-started

	done := s.Stop()
	select {
	case <-done.Done():
		t.Fatal("stop completed while a run was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	assert.True(t, <-ran)
	select {
	case <-done.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not complete after the run returned")
	}
	assert.False(t, s.RunNow(context.Background()))
	assert.Equal(t, int64(1), s.Runs())
}

func TestStart_CancelPropagates(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancelled := make(chan struct{})
	var once sync.Once

	s, err := New(func(jobCtx context.Context) {
		<-jobCtx.Done()
		once.Do(func() { close(cancelled) })
	}, Config{Spec: "* * * * * *"})
	require.NoError(t, err)

	s.Start(ctx)
	time.Sleep(1100 * time.Millisecond) // let the first tick start
	cancel()

	select {
	case <-cancelled:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not observe cancellation")
	}
	<-s.Stop().Done()
}
