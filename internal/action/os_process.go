package action

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/process-triage/pt-core/internal/identity"
)

// OSProcessReader is the real IdentityReader and ProcessStateReader,
// backed by the same process-listing primitive the Evidence Collector
// uses. BootID must match the one the scan that produced the plan ran
// with, or every revalidation would fail on the StartID component.
type OSProcessReader struct {
	BootID string
}

// Read re-reads the live identity tuple for pid. The StartID is rebuilt
// from the same (boot_id, start_time, pid) inputs the collector uses, so
// an unchanged process yields a byte-identical StartID and a reused PID
// yields a different one.
func (r OSProcessReader) Read(pid identity.PID) (identity.ProcessIdentity, error) {
	ctx := context.Background()
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return identity.ProcessIdentity{}, fmt.Errorf("%w: pid %d", ErrProcessGone, pid)
	}
	createTimeMs, err := p.CreateTimeWithContext(ctx)
	if err != nil {
		return identity.ProcessIdentity{}, fmt.Errorf("%w: pid %d", ErrProcessGone, pid)
	}
	startedAt := time.UnixMilli(createTimeMs)

	var uid uint32
	if uids, err := p.UidsWithContext(ctx); err == nil && len(uids) > 0 {
		uid = uint32(uids[0])
	}

	return identity.ProcessIdentity{
		PID:     pid,
		StartID: identity.NewStartID(r.BootID, startedAt.UnixNano(), pid),
		UID:     uid,
		Quality: identity.QualityFull,
	}, nil
}

// IsZombie reports whether pid is currently in zombie state.
func (r OSProcessReader) IsZombie(pid identity.PID) (bool, error) {
	p, err := process.NewProcessWithContext(context.Background(), int32(pid))
	if err != nil {
		return false, fmt.Errorf("%w: pid %d", ErrProcessGone, pid)
	}
	statuses, err := p.Status()
	if err != nil {
		return false, err
	}
	for _, s := range statuses {
		if s == process.Zombie {
			return true, nil
		}
	}
	return false, nil
}

// ParentPID returns the live parent pid for pid, used by the signal
// runner's zombie re-routing which is computed on demand at execution
// time rather than stored in the plan.
func (r OSProcessReader) ParentPID(pid identity.PID) (identity.PID, error) {
	p, err := process.NewProcessWithContext(context.Background(), int32(pid))
	if err != nil {
		return 0, fmt.Errorf("%w: pid %d", ErrProcessGone, pid)
	}
	ppid, err := p.Ppid()
	if err != nil {
		return 0, err
	}
	return identity.PID(ppid), nil
}
