package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/cadence/internal/router/scheduler"
	"github.com/kode4food/cadence/pkg/api"
)

type (
	testTimerConstructor struct {
		created chan *fakeTimer
	}

	fakeTimer struct {
		ch      chan time.Time
		resets  chan time.Duration
		stops   chan struct{}
		stopped atomic.Bool
	}
)

const schedulerWaitTimeout = time.Second

var (
	resizeKey = scheduler.Key{Topic: "canvas.resize", Mode: api.PolicyDebounce}
	scrollKey = scheduler.Key{Topic: "canvas.scroll", Mode: api.PolicyThrottle}
)

func TestScheduleDelivery(t *testing.T) {
	withFakeScheduler(t, func(
		s *scheduler.Scheduler, timer *fakeTimer, now time.Time,
	) {
		done := make(chan struct{}, 1)

		s.Schedule(context.Background(), resizeKey,
			now.Add(40*time.Millisecond),
			func() error {
				done <- struct{}{}
				return nil
			},
		)
		assert.Equal(t, 40*time.Millisecond, timer.WaitReset(t))
		assert.Equal(t, 1, s.Pending())
		timer.Fire(now)

		select {
		case <-done:
		case <-time.After(schedulerWaitTimeout):
			t.Fatal("scheduled delivery did not run")
		}
	})
}

func TestScheduleSupersedesSameKey(t *testing.T) {
	withFakeScheduler(t, func(
		s *scheduler.Scheduler, timer *fakeTimer, now time.Time,
	) {
		var firstRuns atomic.Int32
		var secondRuns atomic.Int32
		secondDone := make(chan struct{}, 1)
		s.Schedule(context.Background(), resizeKey, now.Add(300*time.Millisecond),
			func() error {
				firstRuns.Add(1)
				return nil
			},
		)
		assert.Equal(t, 300*time.Millisecond, timer.WaitReset(t))

		s.Schedule(context.Background(), resizeKey, now.Add(40*time.Millisecond),
			func() error {
				secondRuns.Add(1)
				secondDone <- struct{}{}
				return nil
			},
		)
		assert.Equal(t, 40*time.Millisecond, timer.WaitReset(t))
		timer.Fire(now)

		select {
		case <-secondDone:
		case <-time.After(schedulerWaitTimeout):
			t.Fatal("superseding delivery did not run")
		}
		assert.Equal(t, int32(0), firstRuns.Load())
		assert.Equal(t, int32(1), secondRuns.Load())
	})
}

func TestCancelDelivery(t *testing.T) {
	withFakeScheduler(t, func(
		s *scheduler.Scheduler, timer *fakeTimer, now time.Time,
	) {
		var ran atomic.Bool
		s.Schedule(context.Background(), scrollKey, now.Add(100*time.Millisecond),
			func() error {
				ran.Store(true)
				return nil
			},
		)
		assert.Equal(t, 100*time.Millisecond, timer.WaitReset(t))
		s.Cancel(context.Background(), scrollKey)
		timer.WaitStop(t)
		timer.Fire(now)

		time.Sleep(50 * time.Millisecond)
		assert.False(t, ran.Load())
		assert.Equal(t, 0, s.Pending())
	})
}

func TestCancelTopic(t *testing.T) {
	withFakeScheduler(t, func(
		s *scheduler.Scheduler, timer *fakeTimer, now time.Time,
	) {
		var cancelledRuns atomic.Int32
		activeDone := make(chan struct{}, 1)
		ctx := context.Background()
		at := now.Add(100 * time.Millisecond)

		s.Schedule(ctx, scheduler.Key{
			Topic: "canvas.drag", Mode: api.PolicyThrottle,
		}, at,
			func() error {
				cancelledRuns.Add(1)
				return nil
			},
		)
		s.Schedule(ctx, scheduler.Key{
			Topic: "canvas.drag", Mode: api.PolicyDebounce,
		}, at,
			func() error {
				cancelledRuns.Add(1)
				return nil
			},
		)
		s.Schedule(ctx, scheduler.Key{
			Topic: "canvas.drop", Mode: api.PolicyDebounce,
		}, at,
			func() error {
				activeDone <- struct{}{}
				return nil
			},
		)
		for range 3 {
			assert.Equal(t, 100*time.Millisecond, timer.WaitReset(t))
		}
		timer.DrainResets()

		s.CancelTopic(ctx, "canvas.drag")
		assert.Equal(t, 100*time.Millisecond, timer.WaitReset(t))
		timer.Fire(now)

		select {
		case <-activeDone:
		case <-time.After(schedulerWaitTimeout):
			t.Fatal("remaining delivery did not run")
		}
		assert.Equal(t, int32(0), cancelledRuns.Load())
	})
}

func TestDeliveryPanicDoesNotStopScheduler(t *testing.T) {
	withFakeScheduler(t, func(
		s *scheduler.Scheduler, timer *fakeTimer, now time.Time,
	) {
		done := make(chan struct{}, 1)
		ctx := context.Background()

		s.Schedule(ctx, resizeKey, now.Add(time.Millisecond),
			func() error { panic("boom") },
		)
		timer.WaitReset(t)
		timer.Fire(now)
		timer.WaitStop(t)

		s.Schedule(ctx, scrollKey, now.Add(time.Millisecond),
			func() error {
				done <- struct{}{}
				return errors.New("reported")
			},
		)
		timer.WaitReset(t)
		timer.Fire(now)

		select {
		case <-done:
		case <-time.After(schedulerWaitTimeout):
			t.Fatal("scheduler stopped after panic")
		}
	})
}

func (c *testTimerConstructor) NewTimer(time.Duration) scheduler.Timer {
	timer := newFakeTimer()
	select {
	case c.created <- timer:
	default:
	}
	return timer
}

func (c *testTimerConstructor) WaitTimer(t *testing.T) *fakeTimer {
	t.Helper()
	select {
	case timer := <-c.created:
		return timer
	case <-time.After(schedulerWaitTimeout):
		t.Fatal("scheduler timer was not created")
		return nil
	}
}

func (t *fakeTimer) Channel() <-chan time.Time {
	return t.ch
}

func (t *fakeTimer) Reset(delay time.Duration) bool {
	t.stopped.Store(false)
	drainTimeChan(t.ch)
	t.resets <- delay
	return true
}

func (t *fakeTimer) Stop() bool {
	alreadyStopped := t.stopped.Load()
	t.stopped.Store(true)
	drainTimeChan(t.ch)
	t.stops <- struct{}{}
	return !alreadyStopped
}

func (t *fakeTimer) Fire(at time.Time) {
	if t.stopped.Load() {
		return
	}
	select {
	case t.ch <- at:
	default:
	}
}

func (t *fakeTimer) WaitReset(test *testing.T) time.Duration {
	test.Helper()
	select {
	case delay := <-t.resets:
		return delay
	case <-time.After(schedulerWaitTimeout):
		test.Fatal("scheduler timer reset not observed")
		return 0
	}
}

func (t *fakeTimer) WaitStop(test *testing.T) {
	test.Helper()
	select {
	case <-t.stops:
	case <-time.After(schedulerWaitTimeout):
		test.Fatal("scheduler timer stop not observed")
	}
}

func (t *fakeTimer) DrainResets() {
	for {
		select {
		case <-t.resets:
		default:
			return
		}
	}
}

func (t *fakeTimer) DrainStops() {
	for {
		select {
		case <-t.stops:
		default:
			return
		}
	}
}

func withFakeScheduler(
	t *testing.T, fn func(*scheduler.Scheduler, *fakeTimer, time.Time),
) {
	t.Helper()
	now := time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC)
	tc := &testTimerConstructor{created: make(chan *fakeTimer, 1)}
	s := scheduler.New(func() time.Time { return now }, tc.NewTimer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	timer := tc.WaitTimer(t)
	timer.WaitStop(t)
	timer.DrainResets()
	timer.DrainStops()
	fn(s, timer, now)
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{
		ch:     make(chan time.Time, 1),
		resets: make(chan time.Duration, 16),
		stops:  make(chan struct{}, 16),
	}
}

func drainTimeChan(ch <-chan time.Time) {
	select {
	case <-ch:
	default:
	}
}
