package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kode4food/cadence/pkg/api"
	"github.com/kode4food/cadence/pkg/log"
)

type (
	// Scheduler owns a Queue and runs its deliveries as they come due.
	// The queue is only touched from the Run goroutine
	Scheduler struct {
		now       Clock
		makeTimer TimerConstructor
		requests  chan func(*Queue)
		pending   atomic.Int64
	}

	// DeliveryFunc performs a deferred delivery
	DeliveryFunc func() error
)

const requestBuffer = 100

// New creates a scheduler using the provided clock and timer constructor.
// Nil arguments select the system clock and timers
func New(now Clock, makeTimer TimerConstructor) *Scheduler {
	if now == nil {
		now = SystemClock
	}
	if makeTimer == nil {
		makeTimer = NewTimer
	}
	return &Scheduler{
		now:       now,
		makeTimer: makeTimer,
		requests:  make(chan func(*Queue), requestBuffer),
	}
}

func (s *Scheduler) Now() time.Time {
	return s.now()
}

// Pending returns the number of deliveries waiting to come due
func (s *Scheduler) Pending() int {
	return int(s.pending.Load())
}

// Schedule sets the pending delivery for key, superseding any delivery
// already waiting under it
func (s *Scheduler) Schedule(
	ctx context.Context, key Key, at time.Time, fn DeliveryFunc,
) {
	d := &Delivery{Key: key, At: at, Func: fn}
	s.send(ctx, func(q *Queue) { q.Put(d) })
}

func (s *Scheduler) Cancel(ctx context.Context, key Key) {
	s.send(ctx, func(q *Queue) { q.Drop(key) })
}

// CancelTopic drops the pending deliveries of topic in every mode
func (s *Scheduler) CancelTopic(ctx context.Context, topic api.TopicName) {
	s.send(ctx, func(q *Queue) { q.DropTopic(topic) })
}

// Run processes requests and due deliveries until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	timer := s.makeTimer(0)
	var due <-chan time.Time
	queue := NewQueue()

	rearm := func() {
		s.pending.Store(int64(queue.Len()))
		next := queue.Peek()
		if next == nil {
			timer.Stop()
			due = nil
			return
		}
		timer.Reset(next.At.Sub(s.now()))
		due = timer.Channel()
	}
	rearm()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case req := <-s.requests:
			req(queue)
			rearm()
		case <-due:
			if d := queue.Next(); d != nil {
				if err := d.run(); err != nil {
					slog.Error("Deferred delivery failed",
						log.Topic(d.Key.Topic),
						slog.String("mode", d.Key.Mode.String()),
						log.Error(err))
				}
			}
			rearm()
		}
	}
}

func (s *Scheduler) send(ctx context.Context, req func(*Queue)) {
	select {
	case s.requests <- req:
	case <-ctx.Done():
	}
}

func (d *Delivery) run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("delivery panicked: %v", r)
		}
	}()
	return d.Func()
}
