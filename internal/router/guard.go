package router

import (
	"context"
	"slices"

	"github.com/kode4food/cadence/pkg/api"
)

type guardKey struct{}

// withTopic returns a context whose delivery stack includes topic. The
// stack lives only as long as the returned context is in use
func withTopic(ctx context.Context, topic api.TopicName) context.Context {
	stack := guardStack(ctx)
	next := make([]api.TopicName, len(stack), len(stack)+1)
	copy(next, stack)
	return context.WithValue(ctx, guardKey{}, append(next, topic))
}

// isDelivering reports whether topic is being delivered further up the
// call chain that produced ctx
func isDelivering(ctx context.Context, topic api.TopicName) bool {
	return slices.Contains(guardStack(ctx), topic)
}

// detached strips cancellation and the delivery stack from ctx, for work
// that outlives the delivery call
func detached(ctx context.Context) context.Context {
	return context.WithValue(
		context.WithoutCancel(ctx), guardKey{}, []api.TopicName(nil),
	)
}

// DeliveryStack returns the topics being delivered in the call chain that
// produced ctx, outermost first
func DeliveryStack(ctx context.Context) []api.TopicName {
	return slices.Clone(guardStack(ctx))
}

func guardStack(ctx context.Context) []api.TopicName {
	if ctx == nil {
		return nil
	}
	stack, _ := ctx.Value(guardKey{}).([]api.TopicName)
	return stack
}
