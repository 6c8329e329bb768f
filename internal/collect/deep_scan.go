package collect

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"

	"github.com/process-triage/pt-core/internal/identity"
)

// ErrCriticalHandlesTruncated is an internal error: the critical-handle
// pass itself hit the file-descriptor enumeration cap. A truncated
// result that might have missed a WAL, lock, or package-manager state
// handle is never returned silently.
var ErrCriticalHandlesTruncated = errors.New("collect: critical file-handle pass exceeded enumeration cap")

// DeepScanOptions configures deep_scan.
type DeepScanOptions struct {
	BootID      string
	MaxParallel int
	Budget      time.Duration
	FDCap       int // hard cap on general FD enumeration; 0 means a sane default
	Logger      *zap.Logger
}

const defaultFDCap = 4096

// DeepScan collects the union of per-PID probes for the given PIDs,
// concurrently, bounded by MaxParallel and Budget. Any PID still
// outstanding when Budget expires is returned with Quality=Partial
// rather than dropped. Any probe that fails for a given PID degrades
// only that field to nil; it never aborts the whole PID, let alone the
// whole scan.
func DeepScan(ctx context.Context, pids []identity.PID, opts DeepScanOptions) (DeepScanResult, error) {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 8
	}
	if opts.FDCap <= 0 {
		opts.FDCap = defaultFDCap
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	budgetCtx := ctx
	var cancel context.CancelFunc
	if opts.Budget > 0 {
		budgetCtx, cancel = context.WithTimeout(ctx, opts.Budget)
		defer cancel()
	}

	sem := make(chan struct{}, opts.MaxParallel)
	var mu sync.Mutex
	result := DeepScanResult{ScannedAt: time.Now()}

	var wg sync.WaitGroup
	for _, pid := range pids {
		pid := pid
		select {
		case <-budgetCtx.Done():
			mu.Lock()
			result.Partial = append(result.Partial, pid)
			mu.Unlock()
			continue
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			rec, status := collectDeepRecord(budgetCtx, pid, opts)
			mu.Lock()
			defer mu.Unlock()
			switch status {
			case deepStatusOK:
				result.Records = append(result.Records, rec)
			case deepStatusPartial:
				rec.Quality = identity.QualityPartial
				result.Records = append(result.Records, rec)
				result.Partial = append(result.Partial, pid)
				opts.Logger.Debug("deep scan budget expired mid-probe",
					zap.Uint32("pid", uint32(pid)))
			case deepStatusMissing:
				result.Missing = append(result.Missing, pid)
				opts.Logger.Debug("deep scan target vanished",
					zap.Uint32("pid", uint32(pid)))
			}
		}()
	}
	wg.Wait()
	return result, nil
}

type deepStatus int

const (
	deepStatusOK deepStatus = iota
	deepStatusPartial
	deepStatusMissing
)

func collectDeepRecord(ctx context.Context, pid identity.PID, opts DeepScanOptions) (DeepRecord, deepStatus) {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return DeepRecord{}, deepStatusMissing
	}

	createTimeMs, err := p.CreateTimeWithContext(ctx)
	if err != nil {
		return DeepRecord{}, deepStatusMissing
	}
	startID := identity.NewStartID(opts.BootID, time.UnixMilli(createTimeMs).UnixNano(), pid)
	uids, _ := p.UidsWithContext(ctx)
	var uid uint32
	if len(uids) > 0 {
		uid = uint32(uids[0])
	}

	rec := DeepRecord{
		Identity: identity.ProcessIdentity{PID: pid, StartID: startID, UID: uid, Quality: identity.QualityFull},
		Quality:  identity.QualityFull,
	}

	if ctx.Err() != nil {
		return rec, deepStatusPartial
	}
	rec.IO = readIOCounters(ctx, p)

	if ctx.Err() != nil {
		return rec, deepStatusPartial
	}
	rec.Cgroup = readCgroupInfo(ctx, p)

	if ctx.Err() != nil {
		return rec, deepStatusPartial
	}
	files, err := readOpenFileSummary(ctx, p, opts.FDCap)
	if err != nil {
		// The critical-handle pass itself hit the cap: degrade this
		// probe's field to nil rather than return a falsely-clean
		// truncated summary, but keep the rest of the record.
		opts.Logger.Warn("open-file summary degraded",
			zap.Uint32("pid", uint32(pid)), zap.Error(err))
		rec.OpenFiles = nil
	} else {
		rec.OpenFiles = files
	}

	if ctx.Err() != nil {
		return rec, deepStatusPartial
	}
	cpuFrac := readCPUFraction(ctx, p)
	rec.CPUFraction = cpuFrac

	if createTime := time.UnixMilli(createTimeMs); !createTime.IsZero() {
		runtime := time.Since(createTime).Seconds()
		rec.RuntimeSeconds = &runtime
	}

	ppid, _ := p.PpidWithContext(ctx)
	orphan := ppid <= 1
	rec.Orphan = &orphan

	if term, err := p.TerminalWithContext(ctx); err == nil {
		hasTTY := term != "" && term != "?"
		rec.HasTTY = &hasTTY
	}
	rec.Sched = readSchedStat(pid)
	if rec.Cgroup != nil {
		rec.SystemdUnit = systemdUnitFromCgroup(rec.Cgroup.Path)
	}

	if ctx.Err() != nil {
		return rec, deepStatusPartial
	}
	rec.Sockets = readSockets(ctx, p)

	return rec, deepStatusOK
}

// readSchedStat parses /proc/<pid>/schedstat (Linux only; nil elsewhere
// or when unreadable): cumulative run time, wait time, and timeslice
// count.
func readSchedStat(pid identity.PID) *SchedStat {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/schedstat", pid))
	if err != nil {
		return nil
	}
	fields := strings.Fields(strings.TrimSpace(string(data)))
	if len(fields) < 3 {
		return nil
	}
	run, err1 := strconv.ParseUint(fields[0], 10, 64)
	wait, err2 := strconv.ParseUint(fields[1], 10, 64)
	slices, err3 := strconv.ParseUint(fields[2], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return nil
	}
	return &SchedStat{RunTimeNanos: &run, WaitTimeNanos: &wait, Timeslices: &slices}
}

// systemdUnitFromCgroup extracts the owning systemd unit name from a
// cgroup v2 path, e.g. ".../system.slice/nginx.service" -> "nginx.service".
func systemdUnitFromCgroup(cgroupPath string) *string {
	for _, seg := range strings.Split(cgroupPath, "/") {
		if strings.HasSuffix(seg, ".service") || strings.HasSuffix(seg, ".scope") {
			unit := seg
			return &unit
		}
	}
	return nil
}

func readIOCounters(ctx context.Context, p *process.Process) *IOCounters {
	io, err := p.IOCountersWithContext(ctx)
	if err != nil || io == nil {
		return nil
	}
	rb, wb, ro, wo := io.ReadBytes, io.WriteBytes, io.ReadCount, io.WriteCount
	return &IOCounters{ReadBytes: &rb, WriteBytes: &wb, ReadOps: &ro, WriteOps: &wo}
}

func readCgroupInfo(ctx context.Context, p *process.Process) *CgroupInfo {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/cgroup", p.Pid))
	if err != nil {
		return nil
	}
	cg := ""
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		// The cgroup v2 unified hierarchy line has the form "0::<path>".
		if strings.HasPrefix(line, "0::") {
			cg = strings.TrimPrefix(line, "0::")
		}
	}
	if cg == "" {
		return nil
	}
	return &CgroupInfo{Path: cg}
}

// readOpenFileSummary runs the critical-handle pass first and
// unconditionally, then the general FD enumeration subject to the cap.
// If the critical pass alone would exceed the cap, it returns
// ErrCriticalHandlesTruncated rather than a summary that silently
// dropped a critical handle.
func readOpenFileSummary(ctx context.Context, p *process.Process, fdCap int) (*OpenFileSummary, error) {
	open, err := p.OpenFilesWithContext(ctx)
	if err != nil {
		// Probe unavailable: degrades to nil, not a hard error.
		return nil, nil
	}

	criticals := make([]CriticalHandle, 0)
	for _, f := range open {
		if cat, ok := classifyCriticalPath(f.Path); ok {
			criticals = append(criticals, CriticalHandle{Category: cat, Path: f.Path})
		}
	}
	if len(criticals) > fdCap {
		return nil, fmt.Errorf("%w: pid has %d critical handles, cap is %d", ErrCriticalHandlesTruncated, len(criticals), fdCap)
	}

	summary := &OpenFileSummary{CriticalHandles: criticals}
	if len(open) > fdCap {
		summary.Truncated = true
		summary.TotalOpen = fdCap
	} else {
		summary.TotalOpen = len(open)
	}
	return summary, nil
}

func classifyCriticalPath(path string) (CriticalHandleCategory, bool) {
	switch {
	case hasSuffixAny(path, "-wal", ".wal", "-journal"):
		return CriticalWAL, true
	case hasSuffixAny(path, ".lock", ".lck"):
		return CriticalLockFile, true
	case containsAny(path, "/dpkg/", "/rpm/", "/pacman/"):
		return CriticalPackageManagerState, true
	default:
		return 0, false
	}
}

func hasSuffixAny(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func readCPUFraction(ctx context.Context, p *process.Process) *float64 {
	pct, err := p.CPUPercentWithContext(ctx)
	if err != nil {
		return nil
	}
	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil || cores <= 0 {
		cores = 1
	}
	frac := pct / 100.0 / float64(cores)
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return &frac
}

func readSockets(ctx context.Context, p *process.Process) []SocketInfo {
	conns, err := p.ConnectionsWithContext(ctx)
	if err != nil {
		return nil
	}
	out := make([]SocketInfo, 0, len(conns))
	for _, c := range conns {
		out = append(out, SocketInfo{
			Protocol:   connTypeName(c.Type),
			LocalAddr:  fmt.Sprintf("%s:%d", c.Laddr.IP, c.Laddr.Port),
			RemoteAddr: fmt.Sprintf("%s:%d", c.Raddr.IP, c.Raddr.Port),
			State:      c.Status,
		})
	}
	return out
}

func connTypeName(t uint32) string {
	switch t {
	case 1:
		return "tcp"
	case 2:
		return "udp"
	default:
		return "unknown"
	}
}
