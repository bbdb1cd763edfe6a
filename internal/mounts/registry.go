package mounts

import (
	"slices"
	"sync"

	"github.com/kode4food/cadence/pkg/api"
	"github.com/kode4food/cadence/pkg/util"
)

// Registry tracks which sequences have been mounted into the executor, and
// which targets discovery has found. Mounting is terminal: a sequence id
// never returns to the unmounted state
type Registry struct {
	mu         sync.RWMutex
	mounted    map[api.SequenceID]api.TargetID
	reserved   util.Set[api.SequenceID]
	discovered []api.TargetID
}

// NewRegistry creates an empty execution target registry
func NewRegistry() *Registry {
	return &Registry{
		mounted:  map[api.SequenceID]api.TargetID{},
		reserved: util.Set[api.SequenceID]{},
	}
}

// IsMounted reports whether the sequence id has been mounted
func (r *Registry) IsMounted(id api.SequenceID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.mounted[id]
	return ok
}

// Reserve claims the sequence id for a mount about to happen. Returns false
// if it is already mounted or another caller holds the claim. The claim
// ends with MarkMounted or Release
func (r *Registry) Reserve(id api.SequenceID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.mounted[id]; ok {
		return false
	}
	if r.reserved.Contains(id) {
		return false
	}
	r.reserved.Add(id)
	return true
}

// Release drops a claim taken by Reserve whose mount did not happen
func (r *Registry) Release(id api.SequenceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reserved.Remove(id)
}

// MarkMounted records the sequence id as mounted by the target, ending any
// claim on it. Returns false if it was already mounted
func (r *Registry) MarkMounted(id api.SequenceID, target api.TargetID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reserved.Remove(id)
	if _, ok := r.mounted[id]; ok {
		r.mounted[id] = target
		return false
	}
	r.mounted[id] = target
	return true
}

// Owner returns the target that last mounted the sequence id
func (r *Registry) Owner(id api.SequenceID) (api.TargetID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.mounted[id]
	return t, ok
}

// Missing returns the ids from the provided list that are not mounted
func (r *Registry) Missing(ids ...api.SequenceID) []api.SequenceID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var res []api.SequenceID
	for _, id := range ids {
		if _, ok := r.mounted[id]; !ok {
			res = append(res, id)
		}
	}
	return res
}

// Sequences returns the mounted sequence ids in sorted order
func (r *Registry) Sequences() []api.SequenceID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]api.SequenceID, 0, len(r.mounted))
	for id := range r.mounted {
		res = append(res, id)
	}
	slices.Sort(res)
	return res
}

// Targets returns the distinct targets owning mounted sequences, sorted
func (r *Registry) Targets() []api.TargetID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	targets := util.Set[api.TargetID]{}
	for _, t := range r.mounted {
		targets.Add(t)
	}
	return util.Sorted(targets)
}

// SetDiscovered replaces the cached discovery result
func (r *Registry) SetDiscovered(ids []api.TargetID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discovered = slices.Clone(ids)
}

// Discovered returns the cached discovery result in discovery order
func (r *Registry) Discovered() []api.TargetID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.discovered)
}

// Len returns the number of mounted sequences
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mounted)
}
