// Package collect implements the Evidence Collector (C1): quick process
// listing, per-PID deep probes, and sandboxed external tool execution. It
// is the only package in the pipeline that talks to the live OS.
package collect

import (
	"time"

	"github.com/process-triage/pt-core/internal/identity"
)

// ProcessRecord is one process as seen by a quick scan: cheap fields
// available from a single process-listing pass.
type ProcessRecord struct {
	Identity    identity.ProcessIdentity
	Command     string
	CommandLine []string
	State       string
	PPID        identity.PID
	Nice        int
	StartedAt   time.Time
}

// ScanResult is the output of quick_scan: a process listing snapshot plus
// metadata about the scan itself.
type ScanResult struct {
	Processes []ProcessRecord
	ScannedAt time.Time
	Warnings  []string
	Quality   identity.Quality
}

// IOCounters mirrors /proc/<pid>/io style counters; nil fields mean the
// probe could not read that counter.
type IOCounters struct {
	ReadBytes  *uint64
	WriteBytes *uint64
	ReadOps    *uint64
	WriteOps   *uint64
}

// SchedStat is per-process scheduler accounting.
type SchedStat struct {
	RunTimeNanos    *uint64
	WaitTimeNanos   *uint64
	Timeslices      *uint64
}

// CgroupInfo describes a process's cgroup membership and limits, when
// readable.
type CgroupInfo struct {
	Path          string
	MemoryLimit   *uint64
	MemoryCurrent *uint64
	CPUWeight     *uint64
}

// SocketInfo is one network socket correlated to a process by inode.
type SocketInfo struct {
	Protocol   string
	LocalAddr  string
	RemoteAddr string
	State      string
}

// OpenFileSummary describes the process's open-file-descriptor census.
// FD enumeration is capped; Truncated is set, never silently dropped,
// when the cap is hit. CriticalHandles is always populated in full even
// when Truncated is true — critical categories are scanned on a
// dedicated non-truncated pass.
type OpenFileSummary struct {
	TotalOpen       int
	Truncated       bool
	WritableCount   int
	CriticalHandles []CriticalHandle
}

// CriticalHandleCategory enumerates the file-handle categories that must
// never be lost to truncation.
type CriticalHandleCategory int

const (
	CriticalWAL CriticalHandleCategory = iota
	CriticalLockFile
	CriticalPackageManagerState
)

func (c CriticalHandleCategory) String() string {
	switch c {
	case CriticalWAL:
		return "wal"
	case CriticalLockFile:
		return "lock_file"
	case CriticalPackageManagerState:
		return "package_manager_state"
	default:
		return "unknown"
	}
}

// CriticalHandle is one open handle in a critical category.
type CriticalHandle struct {
	Category CriticalHandleCategory
	Path     string
	Writable bool
}

// GPUUsage is optional per-process GPU accounting; present only when a
// GPU accounting probe is available on the host.
type GPUUsage struct {
	DeviceIndex   int
	MemoryUsedMiB uint64
	UtilPercent   float64
}

// DeepRecord is the union of all deep-scan probe results for one PID.
// Every field is a pointer (or has an explicit presence flag) because any
// individual probe may fail independently without aborting the others.
type DeepRecord struct {
	Identity     identity.ProcessIdentity
	Quality      identity.Quality
	IO           *IOCounters
	Sched        *SchedStat
	Cgroup       *CgroupInfo
	Sockets      []SocketInfo
	SystemdUnit  *string
	OpenFiles    *OpenFileSummary
	GPU          []GPUUsage
	CPUFraction  *float64
	RuntimeSeconds *float64
	HasTTY       *bool
	Orphan       *bool
}

// DeepScanResult is the output of deep_scan: one DeepRecord per requested
// PID that was still alive, plus any PIDs that vanished or timed out.
type DeepScanResult struct {
	Records    []DeepRecord
	Missing    []identity.PID // vanished mid-scan
	Partial    []identity.PID // present but quality=partial due to budget expiry
	ScannedAt  time.Time
}

// ToolOutput is the result of tool_run.
type ToolOutput struct {
	Command    string
	ExitCode   int
	Stdout     string
	Stderr     string
	Truncated  bool
	Duration   time.Duration
}
