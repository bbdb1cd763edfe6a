package router

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kode4food/cadence/internal/config"
	"github.com/kode4food/cadence/internal/router/scheduler"
	"github.com/kode4food/cadence/internal/runner"
	"github.com/kode4food/cadence/pkg/api"
	"github.com/kode4food/cadence/pkg/log"
	"github.com/kode4food/cadence/pkg/util"
)

type (
	// Router publishes payloads to the routes a topic declares and to the
	// local subscribers of that topic
	Router struct {
		topics    TopicSource
		config    config.RouterConfig
		sched     *scheduler.Scheduler
		dispatch  *runner.Runner
		ctx       context.Context
		cancel    context.CancelFunc
		schedDone chan struct{}
		startOnce sync.Once
		stopOnce  sync.Once
		stats     counters

		mu       sync.Mutex
		subs     map[api.TopicName][]*subscriber
		replay   map[api.TopicName]api.Payload
		last     map[api.TopicName]time.Time
		trailing util.Set[api.TopicName]
		executor api.Executor
	}

	// TopicSource resolves topic definitions
	TopicSource interface {
		TopicDef(ctx context.Context, name api.TopicName) (*api.TopicDef, bool)
	}

	// Dependencies are the injectable time sources of a Router
	Dependencies struct {
		Clock            scheduler.Clock
		TimerConstructor scheduler.TimerConstructor
	}
)

var ErrShutdownTimeout = errors.New("router shutdown timeout exceeded")

// New creates a router resolving topics through the provided source
func New(
	topics TopicSource, cfg config.RouterConfig, deps Dependencies,
) *Router {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		topics:    topics,
		config:    cfg,
		sched:     scheduler.New(deps.Clock, deps.TimerConstructor),
		ctx:       ctx,
		cancel:    cancel,
		schedDone: make(chan struct{}),
		subs:      map[api.TopicName][]*subscriber{},
		replay:    map[api.TopicName]api.Payload{},
		last:      map[api.TopicName]time.Time{},
		trailing:  util.Set[api.TopicName]{},
	}
	r.dispatch = runner.New("dispatch", nil)
	return r
}

// Start begins processing route dispatches and deferred deliveries.
// Dispatches queued before Start wait for it
func (r *Router) Start() {
	r.startOnce.Do(func() {
		r.dispatch.Start()
		go func() {
			defer close(r.schedDone)
			r.sched.Run(r.ctx)
		}()
		slog.Info("Router started")
	})
}

// Stop drops pending deferred deliveries and drains queued dispatches.
// Returns ErrShutdownTimeout if the context ends first
func (r *Router) Stop(ctx context.Context) error {
	var err error
	r.stopOnce.Do(func() {
		pending := r.sched.Pending()
		r.cancel()
		r.startOnce.Do(func() { close(r.schedDone) })

		done := make(chan struct{})
		go func() {
			defer close(done)
			<-r.schedDone
			r.dispatch.Flush()
		}()

		select {
		case <-done:
			slog.Info("Router stopped",
				slog.Int("dropped_deferred", pending))
		case <-ctx.Done():
			err = ErrShutdownTimeout
		}
	})
	return err
}

// SetDefaultExecutor installs the executor used by publishes that do not
// supply one
func (r *Router) SetDefaultExecutor(exec api.Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executor = exec
}

// CancelPending drops any throttled or debounced delivery still waiting
// for the topic
func (r *Router) CancelPending(ctx context.Context, topic api.TopicName) {
	r.sched.CancelTopic(ctx, topic)
	slog.Debug("Pending deliveries cancelled", log.Topic(topic))
}

// Stats returns a snapshot of the router's counters
func (r *Router) Stats() Stats {
	return r.stats.snapshot()
}

func (r *Router) defaultExecutor() api.Executor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.executor
}
