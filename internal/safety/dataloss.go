package safety

import (
	"fmt"

	"github.com/process-triage/pt-core/internal/inference"
)

// DataLossGateConfig configures the recent-IO-activity threshold below
// which a process is still considered to have "done I/O within N
// seconds".
type DataLossGateConfig struct {
	RecentIOThresholdSeconds float64
}

// DefaultDataLossGateConfig matches the teacher's conservative default:
// ten seconds of quiet IO before a kill is considered safe on that
// axis alone.
func DefaultDataLossGateConfig() DataLossGateConfig {
	return DataLossGateConfig{RecentIOThresholdSeconds: 10}
}

// CheckDataLossGates blocks Kill if any of: writable file descriptors
// are open, SQLite WAL/journal files are open, lock files are held, an
// active TTY is attached, or the process has done I/O within the
// configured threshold.
func CheckDataLossGates(cfg DataLossGateConfig, ext inference.ExtendedEvidence) PreCheckResult {
	if ext.OpenWritableHandles > 0 {
		return fail("data_loss_write_handle", fmt.Sprintf("%d writable file descriptors open", ext.OpenWritableHandles))
	}
	if ext.WALOrJournalOpen {
		return fail("data_loss_wal", "WAL or journal file open")
	}
	if ext.LockFilesHeld {
		return fail("data_loss_lock_file", "git or package-manager lock file held")
	}
	if ext.ActiveTTY {
		return fail("data_loss_active_tty", "active TTY attached")
	}
	if ext.LastIOAgeSeconds != nil && *ext.LastIOAgeSeconds < cfg.RecentIOThresholdSeconds {
		return fail("data_loss_recent_io", fmt.Sprintf("IO within %.1fs (threshold %.1fs)", *ext.LastIOAgeSeconds, cfg.RecentIOThresholdSeconds))
	}
	return pass("data_loss")
}
