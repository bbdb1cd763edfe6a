package router

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kode4food/cadence/pkg/api"
	"github.com/kode4food/cadence/pkg/log"
)

type (
	// SubscriberFunc receives delivered payloads. The context carries the
	// delivery stack, so publishing from within a subscriber to a topic
	// already being delivered is blocked
	SubscriberFunc func(ctx context.Context, payload api.Payload) error

	subscriber struct {
		id     string
		topic  api.TopicName
		fn     SubscriberFunc
		active atomic.Bool
	}
)

// Subscribe registers fn for the topic and returns a function that
// removes it. If the topic has a replayed payload, fn receives it once,
// after Subscribe returns
func (r *Router) Subscribe(
	topic api.TopicName, fn SubscriberFunc,
) (unsubscribe func()) {
	sub := &subscriber{
		id:    uuid.NewString(),
		topic: topic,
		fn:    fn,
	}
	sub.active.Store(true)

	r.mu.Lock()
	r.subs[topic] = append(r.subs[topic], sub)
	cached, replay := r.replay[topic]
	r.mu.Unlock()

	if replay {
		r.enqueueReplay(sub, cached)
	}
	return func() { r.unsubscribe(sub) }
}

// SubscriberCount returns the number of subscribers to the topic
func (r *Router) SubscriberCount(topic api.TopicName) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[topic])
}

func (r *Router) unsubscribe(sub *subscriber) {
	if !sub.active.CompareAndSwap(true, false) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := slices.DeleteFunc(slices.Clone(r.subs[sub.topic]),
		func(s *subscriber) bool { return s.id == sub.id },
	)
	if len(subs) == 0 {
		delete(r.subs, sub.topic)
		return
	}
	r.subs[sub.topic] = subs
}

func (r *Router) subscribers(topic api.TopicName) []*subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subs[topic]
}

func (r *Router) enqueueReplay(sub *subscriber, payload api.Payload) {
	err := r.dispatch.Enqueue(func() error {
		if !sub.active.Load() {
			return nil
		}
		r.notify(withTopic(r.ctx, sub.topic), sub, payload.Clone())
		return nil
	})
	if err != nil {
		slog.Warn("Replay not delivered",
			log.Topic(sub.topic),
			log.Error(err))
	}
}

func (r *Router) notifyAll(
	ctx context.Context, topic api.TopicName, payload api.Payload,
) {
	for _, sub := range r.subscribers(topic) {
		if sub.active.Load() {
			r.notify(ctx, sub, payload)
		}
	}
}

func (r *Router) notify(
	ctx context.Context, sub *subscriber, payload api.Payload,
) {
	if err := callSubscriber(ctx, sub, payload); err != nil {
		r.stats.subscriberFailed.Add(1)
		slog.Warn("Subscriber failed",
			log.Topic(sub.topic),
			slog.String("subscriber_id", sub.id),
			log.Error(err))
	}
}

func callSubscriber(
	ctx context.Context, sub *subscriber, payload api.Payload,
) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("subscriber panicked: %v", rec)
		}
	}()
	return sub.fn(ctx, payload)
}
