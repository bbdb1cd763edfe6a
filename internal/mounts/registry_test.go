package mounts_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/cadence/internal/mounts"
	"github.com/kode4food/cadence/pkg/api"
)

func TestMarkMounted(t *testing.T) {
	r := mounts.NewRegistry()
	assert.False(t, r.IsMounted("library-load"))

	assert.True(t, r.MarkMounted("library-load", "library"))
	assert.False(t, r.MarkMounted("library-load", "library"))
	assert.True(t, r.IsMounted("library-load"))
	assert.Equal(t, 1, r.Len())

	owner, ok := r.Owner("library-load")
	assert.True(t, ok)
	assert.Equal(t, api.TargetID("library"), owner)
}

func TestSequencesAndTargets(t *testing.T) {
	r := mounts.NewRegistry()
	r.MarkMounted("canvas-drop", "canvas")
	r.MarkMounted("library-load", "library")
	r.MarkMounted("canvas-drag", "canvas")

	assert.Equal(t, []api.SequenceID{
		"canvas-drag", "canvas-drop", "library-load",
	}, r.Sequences())
	assert.Equal(t, []api.TargetID{"canvas", "library"}, r.Targets())
	assert.Equal(t,
		[]api.SequenceID{"theme-apply"},
		r.Missing("canvas-drop", "theme-apply"),
	)
}

func TestDiscovered(t *testing.T) {
	r := mounts.NewRegistry()
	assert.Empty(t, r.Discovered())

	ids := []api.TargetID{"library", "canvas"}
	r.SetDiscovered(ids)
	ids[0] = "changed"
	assert.Equal(t, []api.TargetID{"library", "canvas"}, r.Discovered())
}

func TestConcurrentMarkMountedOnce(t *testing.T) {
	r := mounts.NewRegistry()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range 32 {
		wg.Go(func() {
			if r.MarkMounted("seq", "target") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestReserve(t *testing.T) {
	r := mounts.NewRegistry()
	assert.True(t, r.Reserve("canvas-drag"))
	assert.False(t, r.Reserve("canvas-drag"))
	assert.False(t, r.IsMounted("canvas-drag"))

	r.Release("canvas-drag")
	assert.True(t, r.Reserve("canvas-drag"))

	assert.True(t, r.MarkMounted("canvas-drag", "canvas"))
	assert.False(t, r.Reserve("canvas-drag"))
	r.Release("canvas-drag")
	assert.False(t, r.Reserve("canvas-drag"))
}

func TestConcurrentReserveOnce(t *testing.T) {
	r := mounts.NewRegistry()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range 32 {
		wg.Go(func() {
			if r.Reserve("seq") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
