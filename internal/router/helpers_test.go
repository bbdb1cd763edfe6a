package router_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kode4food/cadence/internal/config"
	"github.com/kode4food/cadence/internal/router"
	"github.com/kode4food/cadence/internal/router/scheduler"
	"github.com/kode4food/cadence/internal/topics"
	"github.com/kode4food/cadence/pkg/api"
)

type (
	testEnv struct {
		Router *router.Router
		Clock  *fakeClock
		Timer  *fakeTimer
	}

	fakeClock struct {
		mu  sync.Mutex
		now time.Time
	}

	fakeTimer struct {
		ch      chan time.Time
		resets  chan time.Duration
		stops   chan struct{}
		stopped atomic.Bool
	}

	invocation struct {
		Target    api.TargetID
		Operation api.OperationID
		Payload   api.Payload
	}

	recordingExecutor struct {
		mu    sync.Mutex
		calls []invocation
		fail  map[api.OperationID]error
		panic map[api.OperationID]bool
	}
)

const waitTimeout = time.Second

var errInvokeFailed = errors.New("invoke failed")

func withRouter(
	t *testing.T, cfg config.RouterConfig,
	defs map[api.TopicName]*api.TopicDef, fn func(*testEnv),
) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC)}
	timers := make(chan *fakeTimer, 1)
	r := router.New(
		topics.NewRegistry(topics.NewStaticProvider(defs)),
		cfg,
		router.Dependencies{
			Clock: clock.Now,
			TimerConstructor: func(time.Duration) scheduler.Timer {
				timer := newFakeTimer()
				timers <- timer
				return timer
			},
		},
	)
	r.Start()
	t.Cleanup(func() {
		_ = r.Stop(context.Background())
	})

	var timer *fakeTimer
	select {
	case timer = <-timers:
	case <-time.After(waitTimeout):
		t.Fatal("scheduler timer was not created")
	}
	timer.WaitStop(t)

	fn(&testEnv{Router: r, Clock: clock, Timer: timer})
}

func validating() config.RouterConfig {
	return config.RouterConfig{ValidatePayloads: true}
}

// Drain stops the router, which flushes queued dispatches
func (e *testEnv) Drain(t *testing.T) {
	t.Helper()
	require.NoError(t, e.Router.Stop(context.Background()))
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{
		ch:     make(chan time.Time, 1),
		resets: make(chan time.Duration, 16),
		stops:  make(chan struct{}, 16),
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
	select {
	case t.stops <- struct{}{}:
	default:
	}
	return !alreadyStopped
}

func (t *fakeTimer) Fire() {
	if t.stopped.Load() {
		return
	}
	select {
	case t.ch <- time.Time{}:
	default:
	}
}

func (t *fakeTimer) WaitReset(test *testing.T) time.Duration {
	test.Helper()
	select {
	case delay := <-t.resets:
		return delay
	case <-time.After(waitTimeout):
		test.Fatal("scheduler timer reset not observed")
		return 0
	}
}

func (t *fakeTimer) WaitStop(test *testing.T) {
	test.Helper()
	select {
	case <-t.stops:
	case <-time.After(waitTimeout):
		test.Fatal("scheduler timer stop not observed")
	}
}

func drainTimeChan(ch <-chan time.Time) {
	select {
	case <-ch:
	default:
	}
}

func newRecordingExecutor() *recordingExecutor {
	return &recordingExecutor{
		fail:  map[api.OperationID]error{},
		panic: map[api.OperationID]bool{},
	}
}

func (e *recordingExecutor) Invoke(
	_ context.Context, target api.TargetID, op api.OperationID,
	payload api.Payload,
) error {
	e.mu.Lock()
	e.calls = append(e.calls, invocation{
		Target: target, Operation: op, Payload: payload,
	})
	err, shouldPanic := e.fail[op], e.panic[op]
	e.mu.Unlock()
	if shouldPanic {
		panic("executor exploded")
	}
	return err
}

func (e *recordingExecutor) Mount(
	context.Context, *api.Sequence, api.Handlers, api.TargetID,
) error {
	return nil
}

func (e *recordingExecutor) Calls() []invocation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]invocation(nil), e.calls...)
}

func (e *recordingExecutor) Operations() []api.OperationID {
	var res []api.OperationID
	for _, c := range e.Calls() {
		res = append(res, c.Operation)
	}
	return res
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatal("value not received")
		var zero T
		return zero
	}
}

func expectNone[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected value received: %v", v)
	case <-time.After(50 * time.Millisecond):
	}
}
