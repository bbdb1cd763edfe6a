package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kode4food/cadence/internal/router/scheduler"
	"github.com/kode4food/cadence/pkg/api"
	"github.com/kode4food/cadence/pkg/log"
)

type (
	// PublishOption customizes a single Publish call
	PublishOption func(*publishOptions)

	publishOptions struct {
		executor api.Executor
	}
)

// WithExecutor dispatches the publish's routes to exec instead of the
// router's default executor
func WithExecutor(exec api.Executor) PublishOption {
	return func(o *publishOptions) {
		o.executor = exec
	}
}

// Publish delivers payload to the topic's routes and subscribers, subject
// to the topic's schema and delivery policy. Unknown topics and invalid
// payloads fail. A publish re-entering a topic that is already being
// delivered further up the call chain is blocked and returns nil. The
// delivery chain is carried by ctx: subscribers that publish must pass on
// the context they were called with, or the feedback guard cannot see them.
// Throttled and debounced deliveries receive a copy of payload taken here
func (r *Router) Publish(
	ctx context.Context, topic api.TopicName, payload api.Payload,
	opts ...PublishOption,
) error {
	def, ok := r.topics.TopicDef(ctx, topic)
	if !ok {
		slog.Error("Topic not found", log.Topic(topic))
		return fmt.Errorf("%w: %s", api.ErrUnknownTopic, topic)
	}
	if payload == nil {
		payload = api.Payload{}
	}

	if r.config.ValidatePayloads && def.Schema != nil {
		if v := def.Schema.Violations(payload); len(v) > 0 {
			slog.Warn("Payload rejected",
				log.Topic(topic),
				slog.Any("violations", v))
			return &api.PayloadError{Topic: topic, Violations: v}
		}
	}

	var o publishOptions
	for _, opt := range opts {
		opt(&o)
	}
	exec := o.executor
	if exec == nil {
		exec = r.defaultExecutor()
	}
	if exec == nil && len(def.Routes) > 0 && r.config.RequireExecutor {
		slog.Error("No executor for routed topic", log.Topic(topic))
		return fmt.Errorf("%w: %s", api.ErrNoExecutor, topic)
	}

	r.stats.published.Add(1)
	switch def.Policy.Mode() {
	case api.PolicyThrottle:
		r.throttle(ctx, def, payload, exec)
	case api.PolicyDebounce:
		r.debounce(def, payload, exec)
	default:
		r.deliver(ctx, def, payload, exec)
	}
	return nil
}

func (r *Router) throttle(
	ctx context.Context, def *api.TopicDef, payload api.Payload,
	exec api.Executor,
) {
	interval := time.Duration(def.Policy.ThrottleMs) * time.Millisecond
	key := scheduler.Key{Topic: def.Name, Mode: api.PolicyThrottle}
	now := r.sched.Now()

	r.mu.Lock()
	last, seen := r.last[def.Name]
	if !seen || now.Sub(last) >= interval {
		r.last[def.Name] = now
		trailing := r.trailing.Contains(def.Name)
		r.trailing.Remove(def.Name)
		r.mu.Unlock()
		if trailing {
			r.sched.Cancel(r.ctx, key)
		}
		r.deliver(ctx, def, payload, exec)
		return
	}
	r.trailing.Add(def.Name)
	r.mu.Unlock()

	payload = payload.Clone()
	r.stats.throttled.Add(1)
	r.sched.Schedule(r.ctx, key, last.Add(interval), func() error {
		r.mu.Lock()
		r.last[def.Name] = r.sched.Now()
		r.trailing.Remove(def.Name)
		r.mu.Unlock()
		r.deliver(r.ctx, def, payload, exec)
		return nil
	})
}

func (r *Router) debounce(
	def *api.TopicDef, payload api.Payload, exec api.Executor,
) {
	quiet := time.Duration(def.Policy.DebounceMs) * time.Millisecond
	key := scheduler.Key{Topic: def.Name, Mode: api.PolicyDebounce}
	payload = payload.Clone()

	r.stats.debounced.Add(1)
	r.sched.Schedule(r.ctx, key, r.sched.Now().Add(quiet), func() error {
		r.deliver(r.ctx, def, payload, exec)
		return nil
	})
}

func (r *Router) deliver(
	ctx context.Context, def *api.TopicDef, payload api.Payload,
	exec api.Executor,
) {
	if isDelivering(ctx, def.Name) {
		r.stats.blocked.Add(1)
		slog.Warn("Feedback loop blocked",
			log.Topic(def.Name),
			slog.Any("stack", guardStack(ctx)))
		return
	}
	ctx = withTopic(ctx, def.Name)

	r.dispatchRoutes(ctx, def, payload, exec)
	if def.Replay {
		r.mu.Lock()
		r.replay[def.Name] = payload.Clone()
		r.mu.Unlock()
	}
	r.notifyAll(ctx, def.Name, payload)
	r.stats.delivered.Add(1)
}

func (r *Router) dispatchRoutes(
	ctx context.Context, def *api.TopicDef, payload api.Payload,
	exec api.Executor,
) {
	if len(def.Routes) == 0 {
		return
	}
	if exec == nil {
		r.stats.dispatchSkipped.Add(int64(len(def.Routes)))
		slog.Warn("No executor, routes skipped",
			log.Topic(def.Name),
			slog.Int("routes", len(def.Routes)))
		return
	}

	dctx := detached(ctx)
	for _, route := range def.Routes {
		p := payload.Clone()
		err := r.dispatch.Enqueue(func() error {
			r.invoke(dctx, def.Name, route, p, exec)
			return nil
		})
		if err != nil {
			r.stats.dispatchFailed.Add(1)
			slog.Warn("Route dispatch rejected",
				log.Topic(def.Name),
				log.TargetID(route.Target),
				log.OperationID(route.Operation),
				log.Error(err))
		}
	}
}

func (r *Router) invoke(
	ctx context.Context, topic api.TopicName, route api.Route,
	payload api.Payload, exec api.Executor,
) {
	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("executor panicked: %v", rec)
			}
		}()
		return exec.Invoke(ctx, route.Target, route.Operation, payload)
	}()
	if err != nil {
		r.stats.dispatchFailed.Add(1)
		slog.Warn("Route invocation failed",
			log.Topic(topic),
			log.TargetID(route.Target),
			log.OperationID(route.Operation),
			log.Error(err))
		return
	}
	r.stats.dispatched.Add(1)
}
