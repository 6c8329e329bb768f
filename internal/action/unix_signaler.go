package action

import (
	"golang.org/x/sys/unix"

	"github.com/process-triage/pt-core/internal/identity"
)

// UnixSignaler is the real Signaler backed by golang.org/x/sys/unix.
type UnixSignaler struct{}

func (UnixSignaler) Signal(pid identity.PID, sig int) error {
	return unix.Kill(int(pid), unix.Signal(sig))
}

func (UnixSignaler) SignalGroup(pgid identity.PID, sig int) error {
	return unix.Kill(-int(pgid), unix.Signal(sig))
}

func (UnixSignaler) Alive(pid identity.PID) (bool, error) {
	err := unix.Kill(int(pid), 0)
	if err == nil {
		return true, nil
	}
	if err == unix.ESRCH {
		return false, nil
	}
	if err == unix.EPERM {
		// Permission denied means the process exists but we can't
		// signal it; for liveness purposes that's still "alive".
		return true, nil
	}
	return false, err
}
