package conductor

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kode4food/cadence/internal/runner"
	"github.com/kode4food/cadence/pkg/api"
	"github.com/kode4food/cadence/pkg/log"
)

type (
	// Conductor is an in-process Executor. It runs mounted sequences beat
	// by beat on a single ordered run queue
	Conductor struct {
		runs  *runner.Runner
		stats counters

		mu         sync.RWMutex
		mounted    map[mountKey]*mounted
		discovered []api.TargetID
	}

	// MountedSequence describes a mounted sequence for introspection
	MountedSequence struct {
		Target   api.TargetID   `json:"target"`
		ID       api.SequenceID `json:"id"`
		Name     string         `json:"name,omitempty"`
		Category string         `json:"category,omitempty"`
		Beats    int            `json:"beats"`
	}

	// Stats counts sequence runs
	Stats struct {
		Started   int64 `json:"started"`
		Completed int64 `json:"completed"`
		Failed    int64 `json:"failed"`
	}

	mountKey struct {
		target api.TargetID
		id     api.SequenceID
	}

	mounted struct {
		seq      *api.Sequence
		handlers api.Handlers
	}

	counters struct {
		started   atomic.Int64
		completed atomic.Int64
		failed    atomic.Int64
	}
)

var (
	ErrSequenceNotMounted = errors.New("sequence not mounted")
	ErrHandlerMissing     = errors.New("sequence handler missing")
	ErrBeatPanicked       = errors.New("beat panicked")
)

var (
	_ api.Executor          = (*Conductor)(nil)
	_ api.DiscoveryRecorder = (*Conductor)(nil)
)

// New creates a Conductor and starts its run queue
func New() *Conductor {
	c := &Conductor{
		mounted: map[mountKey]*mounted{},
	}
	c.runs = runner.New("conductor", nil)
	c.runs.Start()
	return c
}

// Mount stores seq for target. Every handler its beats name must be present
// in handlers. Mounting the same id again replaces the earlier sequence
func (c *Conductor) Mount(
	_ context.Context, seq *api.Sequence, handlers api.Handlers,
	target api.TargetID,
) error {
	if seq == nil {
		return api.ErrSequenceIDEmpty
	}
	if err := seq.Validate(); err != nil {
		return err
	}
	if missing := seq.MissingHandlers(handlers); len(missing) > 0 {
		return fmt.Errorf("%w: %s needs %v", ErrHandlerMissing, seq.ID, missing)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.mounted[mountKey{target, seq.ID}] = &mounted{
		seq:      seq,
		handlers: maps.Clone(handlers),
	}
	slog.Debug("Sequence mounted on conductor",
		log.TargetID(target),
		log.SequenceID(seq.ID))
	return nil
}

// Invoke queues a run of the sequence mounted as operation under target and
// returns without waiting for it
func (c *Conductor) Invoke(
	ctx context.Context, target api.TargetID, op api.OperationID,
	payload api.Payload,
) error {
	c.mu.RLock()
	m, ok := c.mounted[mountKey{target, api.SequenceID(op)}]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrSequenceNotMounted, target, op)
	}

	runID := uuid.New()
	p := payload.Clone()
	return c.runs.Enqueue(func() error {
		return c.run(ctx, runID, target, m, p)
	})
}

// RecordDiscovery keeps the discovered target list
func (c *Conductor) RecordDiscovery(ids []api.TargetID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discovered = slices.Clone(ids)
}

// Discovered returns the last recorded target list
func (c *Conductor) Discovered() []api.TargetID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.discovered)
}

// Sequences lists the mounted sequences ordered by target and id
func (c *Conductor) Sequences() []MountedSequence {
	c.mu.RLock()
	res := make([]MountedSequence, 0, len(c.mounted))
	for k, m := range c.mounted {
		beats := 0
		for _, mv := range m.seq.Movements {
			beats += len(mv.Beats)
		}
		res = append(res, MountedSequence{
			Target:   k.target,
			ID:       k.id,
			Name:     m.seq.Name,
			Category: m.seq.Category,
			Beats:    beats,
		})
	}
	c.mu.RUnlock()

	slices.SortFunc(res, func(a, b MountedSequence) int {
		return cmp.Or(cmp.Compare(a.Target, b.Target), cmp.Compare(a.ID, b.ID))
	})
	return res
}

// Stats returns a snapshot of the run counters
func (c *Conductor) Stats() Stats {
	return Stats{
		Started:   c.stats.started.Load(),
		Completed: c.stats.completed.Load(),
		Failed:    c.stats.failed.Load(),
	}
}

// Flush runs every queued sequence and stops the run queue
func (c *Conductor) Flush() {
	c.runs.Flush()
}

func (c *Conductor) run(
	ctx context.Context, id uuid.UUID, target api.TargetID, m *mounted,
	payload api.Payload,
) error {
	c.stats.started.Add(1)
	logger := slog.With(
		slog.String("run_id", id.String()),
		log.TargetID(target),
		log.SequenceID(m.seq.ID))
	logger.Debug("Sequence run started")

	for _, mv := range m.seq.Movements {
		for _, beat := range mv.Beats {
			if err := ctx.Err(); err != nil {
				c.stats.failed.Add(1)
				return err
			}
			out, err := callBeat(ctx, m.handlers[beat.Handler], payload)
			if err != nil {
				c.stats.failed.Add(1)
				logger.Warn("Beat failed",
					slog.String("movement", mv.Name),
					slog.Int("beat", beat.Beat),
					slog.String("handler", beat.Handler),
					log.Error(err))
				return nil
			}
			if out != nil {
				payload = payload.Merge(out)
			}
		}
	}

	c.stats.completed.Add(1)
	logger.Debug("Sequence run completed")
	return nil
}

func callBeat(
	ctx context.Context, h api.Handler, p api.Payload,
) (res api.Payload, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrBeatPanicked, rec)
		}
	}()
	return h(ctx, p.Clone())
}
