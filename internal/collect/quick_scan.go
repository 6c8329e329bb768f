package collect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/process-triage/pt-core/internal/identity"
)

// ErrCapabilityMissing is returned when the host exposes no
// process-listing primitive at all.
var ErrCapabilityMissing = errors.New("collect: no process-listing capability available")

// QuickScanOptions configures quick_scan.
type QuickScanOptions struct {
	BootID string // stable boot identifier used to build StartId
}

// QuickScan lists every process currently visible to the host's
// process-listing primitive. A PID that vanishes between listing and
// per-PID field reads is dropped silently (with a warning appended),
// never treated as a scan failure. Loss of the listing primitive itself
// is the only whole-scan failure.
func QuickScan(ctx context.Context, opts QuickScanOptions) (ScanResult, error) {
	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return ScanResult{}, fmt.Errorf("%w: %v", ErrCapabilityMissing, err)
	}

	result := ScanResult{ScannedAt: time.Now(), Quality: identity.QualityFull}
	result.Processes = make([]ProcessRecord, 0, len(pids))

	for _, pid := range pids {
		if err := ctx.Err(); err != nil {
			result.Quality = identity.QualityPartial
			result.Warnings = append(result.Warnings, fmt.Sprintf("quick_scan cancelled after pid %d", pid))
			break
		}
		rec, ok, warn := readProcessRecord(ctx, pid, opts)
		if warn != "" {
			result.Warnings = append(result.Warnings, warn)
		}
		if !ok {
			continue
		}
		result.Processes = append(result.Processes, rec)
	}
	return result, nil
}

func readProcessRecord(ctx context.Context, pid int32, opts QuickScanOptions) (ProcessRecord, bool, string) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return ProcessRecord{}, false, fmt.Sprintf("pid %d vanished before read: %v", pid, err)
	}

	createTimeMs, err := p.CreateTimeWithContext(ctx)
	if err != nil {
		return ProcessRecord{}, false, fmt.Sprintf("pid %d vanished before start-time read: %v", pid, err)
	}
	startedAt := time.UnixMilli(createTimeMs)

	uids, err := p.UidsWithContext(ctx)
	var uid uint32
	if err == nil && len(uids) > 0 {
		uid = uint32(uids[0])
	}

	ppid, _ := p.PpidWithContext(ctx)
	nice, _ := p.NiceWithContext(ctx)
	state, _ := p.StatusWithContext(ctx)
	name, _ := p.NameWithContext(ctx)
	cmdline, _ := p.CmdlineSliceWithContext(ctx)

	startID := identity.NewStartID(opts.BootID, startedAt.UnixNano(), identity.PID(pid))
	pi := identity.ProcessIdentity{
		PID:     identity.PID(pid),
		StartID: startID,
		UID:     uid,
		Quality: identity.QualityFull,
	}

	var stateStr string
	if len(state) > 0 {
		stateStr = state[0]
	}

	return ProcessRecord{
		Identity:    pi,
		Command:     name,
		CommandLine: cmdline,
		State:       stateStr,
		PPID:        identity.PID(ppid),
		Nice:        int(nice),
		StartedAt:   startedAt,
	}, true, ""
}
