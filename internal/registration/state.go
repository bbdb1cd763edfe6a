package registration

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/kode4food/cadence/pkg/api"
)

type (
	// Phase is the lifecycle position of a registration State
	Phase int32

	// State tracks whether registration has run. It outlives any single
	// Coordinator, so a rebuilt engine sharing the State does not register
	// a second time
	State struct {
		phase atomic.Int32
		mu    sync.Mutex
		ready chan struct{}
		info  api.ReadyInfo
	}
)

const (
	PhaseIdle Phase = iota
	PhaseInProgress
	PhaseComplete
)

var (
	sharedMu sync.Mutex
	shared   = map[string]*State{}

	closedReady = func() chan struct{} {
		ch := make(chan struct{})
		close(ch)
		return ch
	}()
)

// Shared returns the process-wide State registered under name, creating it
// on first use
func Shared(name string) *State {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if s, ok := shared[name]; ok {
		return s
	}
	s := NewState()
	shared[name] = s
	return s
}

// NewState creates an idle State that is not shared
func NewState() *State {
	return &State{}
}

// Phase returns the current lifecycle phase
func (s *State) Phase() Phase {
	return Phase(s.phase.Load())
}

// IsReady reports whether registration has completed
func (s *State) IsReady() bool {
	return s.Phase() == PhaseComplete
}

// WhenReady returns a channel that is closed once registration completes.
// Every caller waiting on the same State receives the same channel
func (s *State) WhenReady() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Phase() == PhaseComplete {
		return closedReady
	}
	if s.ready == nil {
		s.ready = make(chan struct{})
	}
	return s.ready
}

// Wait blocks until registration completes or ctx ends
func (s *State) Wait(ctx context.Context) error {
	select {
	case <-s.WhenReady():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Info returns the readiness metadata once registration has completed
func (s *State) Info() (api.ReadyInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Phase() != PhaseComplete {
		return api.ReadyInfo{}, false
	}
	return s.info, true
}

func (s *State) begin() bool {
	return s.phase.CompareAndSwap(int32(PhaseIdle), int32(PhaseInProgress))
}

func (s *State) abort() {
	s.phase.CompareAndSwap(int32(PhaseInProgress), int32(PhaseIdle))
}

func (s *State) complete(info api.ReadyInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.phase.CompareAndSwap(
		int32(PhaseInProgress), int32(PhaseComplete),
	) {
		return
	}
	s.info = info
	if s.ready != nil {
		close(s.ready)
		s.ready = nil
	}
}

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseInProgress:
		return "in-progress"
	case PhaseComplete:
		return "complete"
	default:
		return "unknown"
	}
}
