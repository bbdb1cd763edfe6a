package scheduler

import (
	"container/heap"
	"time"

	"github.com/kode4food/cadence/pkg/api"
)

type (
	// Key identifies the single pending delivery a topic may hold for a
	// delivery mode
	Key struct {
		Topic api.TopicName
		Mode  api.PolicyMode
	}

	// Delivery is a deferred delivery and the time it becomes due
	Delivery struct {
		Func  DeliveryFunc
		At    time.Time
		Key   Key
		index int
	}

	// Queue orders pending deliveries by due time. At most one delivery is
	// held per Key
	Queue struct {
		items []*Delivery
		byKey map[Key]*Delivery
	}

	// queueHeap adapts Queue to container/heap without exporting the
	// heap methods
	queueHeap Queue
)

// NewQueue creates an empty delivery queue
func NewQueue() *Queue {
	return &Queue{byKey: map[Key]*Delivery{}}
}

// Put adds d, or moves the pending delivery for d.Key to d's time and
// function. Deliveries without a function or due time are ignored
func (q *Queue) Put(d *Delivery) {
	if d == nil || d.Func == nil || d.At.IsZero() {
		return
	}
	if old, ok := q.byKey[d.Key]; ok {
		old.Func = d.Func
		old.At = d.At
		heap.Fix(q.heap(), old.index)
		return
	}
	heap.Push(q.heap(), d)
}

// Next removes and returns the earliest delivery
func (q *Queue) Next() *Delivery {
	if len(q.items) == 0 {
		return nil
	}
	return heap.Pop(q.heap()).(*Delivery)
}

// Peek returns the earliest delivery without removing it
func (q *Queue) Peek() *Delivery {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// Drop removes the pending delivery for key
func (q *Queue) Drop(key Key) {
	if d, ok := q.byKey[key]; ok {
		heap.Remove(q.heap(), d.index)
	}
}

// DropTopic removes every pending delivery for topic
func (q *Queue) DropTopic(topic api.TopicName) {
	for key := range q.byKey {
		if key.Topic == topic {
			q.Drop(key)
		}
	}
}

func (q *Queue) Len() int {
	return len(q.items)
}

func (q *Queue) heap() *queueHeap {
	return (*queueHeap)(q)
}

func (h *queueHeap) Len() int {
	return len(h.items)
}

func (h *queueHeap) Less(i, j int) bool {
	return h.items[i].At.Before(h.items[j].At)
}

func (h *queueHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *queueHeap) Push(x any) {
	d := x.(*Delivery)
	d.index = len(h.items)
	h.items = append(h.items, d)
	h.byKey[d.Key] = d
}

func (h *queueHeap) Pop() any {
	n := len(h.items)
	d := h.items[n-1]
	h.items[n-1] = nil
	h.items = h.items[:n-1]
	d.index = -1
	delete(h.byKey, d.Key)
	return d
}
