package runner

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/message"
	"github.com/kode4food/caravan/topic"

	"github.com/kode4food/cadence/pkg/log"
)

type (
	// Runner executes queued tasks sequentially, in enqueue order, on a
	// single goroutine
	Runner struct {
		name     string
		onError  ErrorFunc
		prod     topic.Producer[Task]
		cons     topic.Consumer[Task]
		stop     chan struct{}
		stopOnce sync.Once
		started  sync.Once
		runWG    sync.WaitGroup
		mu       sync.RWMutex
		closed   bool
		pending  atomic.Int64
	}

	// Task is a unit of queued work. A returned error or a panic is
	// reported to the runner's ErrorFunc
	Task func() error

	// ErrorFunc receives task failures
	ErrorFunc func(error)
)

var (
	ErrTaskPanicked = errors.New("task panicked")
	ErrRunnerClosed = errors.New("runner closed")
)

// New creates a runner. The name labels its log entries
func New(name string, onError ErrorFunc) *Runner {
	queue := caravan.NewTopic[Task]()
	return &Runner{
		name:    name,
		onError: onError,
		prod:    queue.NewProducer(),
		cons:    queue.NewConsumer(),
		stop:    make(chan struct{}),
	}
}

// Start begins processing queued tasks
func (r *Runner) Start() {
	r.started.Do(func() {
		r.runWG.Go(func() {
			for {
				select {
				case <-r.stop:
					return
				case fn, ok := <-r.cons.Receive():
					if !ok {
						return
					}
					r.runTask(fn)
				}
			}
		})
	})
}

// Enqueue adds a task to the queue. Tasks enqueued after Flush are
// rejected with ErrRunnerClosed
func (r *Runner) Enqueue(fn Task) error {
	if fn == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return fmt.Errorf("%w: %s", ErrRunnerClosed, r.name)
	}
	r.pending.Add(1)
	message.Send(r.prod, fn)
	return nil
}

// Pending returns the number of tasks enqueued but not yet finished
func (r *Runner) Pending() int {
	return int(r.pending.Load())
}

// Flush runs every task still queued and stops the runner
func (r *Runner) Flush() {
	r.mu.Lock()
	wasClosed := r.closed
	r.closed = true
	r.mu.Unlock()
	if wasClosed {
		return
	}

	r.stopOnce.Do(func() {
		close(r.stop)
	})
	r.runWG.Wait()
	defer func() {
		r.prod.Close()
		r.cons.Close()
	}()
	for r.pending.Load() > 0 {
		fn, ok := <-r.cons.Receive()
		if !ok {
			return
		}
		r.runTask(fn)
	}
}

func (r *Runner) runTask(fn Task) {
	defer r.pending.Add(-1)
	if err := r.call(fn); err != nil {
		slog.Error("Task failed",
			slog.String("runner", r.name),
			log.Error(err))
		if r.onError != nil {
			r.onError(err)
		}
	}
}

func (r *Runner) call(fn Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, rec)
		}
	}()
	return fn()
}
