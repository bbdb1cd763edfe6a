package router

import "sync/atomic"

type (
	// Stats is a snapshot of router activity
	Stats struct {
		Published        int64 `json:"published"`
		Delivered        int64 `json:"delivered"`
		Blocked          int64 `json:"blocked"`
		Dispatched       int64 `json:"dispatched"`
		DispatchFailed   int64 `json:"dispatch_failed"`
		DispatchSkipped  int64 `json:"dispatch_skipped"`
		SubscriberFailed int64 `json:"subscriber_failed"`
		Throttled        int64 `json:"throttled"`
		Debounced        int64 `json:"debounced"`
	}

	counters struct {
		published        atomic.Int64
		delivered        atomic.Int64
		blocked          atomic.Int64
		dispatched       atomic.Int64
		dispatchFailed   atomic.Int64
		dispatchSkipped  atomic.Int64
		subscriberFailed atomic.Int64
		throttled        atomic.Int64
		debounced        atomic.Int64
	}
)

func (c *counters) snapshot() Stats {
	return Stats{
		Published:        c.published.Load(),
		Delivered:        c.delivered.Load(),
		Blocked:          c.blocked.Load(),
		Dispatched:       c.dispatched.Load(),
		DispatchFailed:   c.dispatchFailed.Load(),
		DispatchSkipped:  c.dispatchSkipped.Load(),
		SubscriberFailed: c.subscriberFailed.Load(),
		Throttled:        c.throttled.Load(),
		Debounced:        c.debounced.Load(),
	}
}
