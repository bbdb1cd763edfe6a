package registration

import (
	"context"

	"github.com/kode4food/cadence/internal/mounts"
	"github.com/kode4food/cadence/pkg/api"
)

// recordingExecutor marks sequences mounted by runtime registrations in
// the shared mount registry, so catalog loading will not mount them again
type recordingExecutor struct {
	api.Executor
	mounts *mounts.Registry
}

var (
	_ api.Executor          = (*recordingExecutor)(nil)
	_ api.DiscoveryRecorder = (*recordingExecutor)(nil)
)

func (e *recordingExecutor) Mount(
	ctx context.Context, seq *api.Sequence, h api.Handlers, target api.TargetID,
) error {
	if err := e.Executor.Mount(ctx, seq, h, target); err != nil {
		return err
	}
	e.mounts.MarkMounted(seq.ID, target)
	return nil
}

func (e *recordingExecutor) RecordDiscovery(ids []api.TargetID) {
	if r, ok := e.Executor.(api.DiscoveryRecorder); ok {
		r.RecordDiscovery(ids)
	}
}
