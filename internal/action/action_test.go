package action

import (
	"errors"
	"testing"
	"time"

	"github.com/process-triage/pt-core/internal/decision"
	"github.com/process-triage/pt-core/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSignaler struct {
	aliveAfter map[identity.PID]int // calls remaining before Alive reports false
	calls      map[identity.PID]int
	groupSent  []identity.PID
	signalsSent []int
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{aliveAfter: map[identity.PID]int{}, calls: map[identity.PID]int{}}
}

func (f *fakeSignaler) Signal(pid identity.PID, sig int) error {
	f.signalsSent = append(f.signalsSent, sig)
	return nil
}

func (f *fakeSignaler) SignalGroup(pgid identity.PID, sig int) error {
	f.groupSent = append(f.groupSent, pgid)
	f.signalsSent = append(f.signalsSent, sig)
	return nil
}

func (f *fakeSignaler) Alive(pid identity.PID) (bool, error) {
	f.calls[pid]++
	remaining, ok := f.aliveAfter[pid]
	if !ok {
		return true, nil
	}
	if f.calls[pid] > remaining {
		return false, nil
	}
	return true, nil
}

type fakeIdentityReader struct {
	identities map[identity.PID]identity.ProcessIdentity
}

func (f fakeIdentityReader) Read(pid identity.PID) (identity.ProcessIdentity, error) {
	id, ok := f.identities[pid]
	if !ok {
		return identity.ProcessIdentity{}, ErrProcessGone
	}
	return id, nil
}

type fakeStateReader struct {
	zombies map[identity.PID]bool
}

func (f fakeStateReader) IsZombie(pid identity.PID) (bool, error) {
	return f.zombies[pid], nil
}

func TestStagedKillSucceedsOnSigterm(t *testing.T) {
	pid := identity.PID(100)
	id := identity.ProcessIdentity{PID: pid, StartID: "boot:1:100", UID: 0}
	sig := newFakeSignaler()
	sig.aliveAfter[pid] = 1 // dies after the first Alive check following sigterm

	r := SignalRunner{
		Signaler: sig,
		Identity: fakeIdentityReader{identities: map[identity.PID]identity.ProcessIdentity{pid: id}},
		State:    fakeStateReader{},
	}
	result := r.Execute(Target{Identity: id, Action: decision.ActionKill, GraceMillis: 200})
	assert.Equal(t, StatusOK, result.Status)
	assert.Contains(t, sig.signalsSent, sigTerm)
	assert.NotContains(t, sig.signalsSent, sigKill)
}

func TestStagedKillEscalatesToSigkill(t *testing.T) {
	pid := identity.PID(101)
	id := identity.ProcessIdentity{PID: pid, StartID: "boot:1:101", UID: 0}
	sig := newFakeSignaler()
	// Never reports dead until after sigkill: force many Alive() calls
	// to return true, then the final post-sigkill check to return false.
	sig.aliveAfter[pid] = 1000

	r := SignalRunner{
		Signaler:     sig,
		Identity:     fakeIdentityReader{identities: map[identity.PID]identity.ProcessIdentity{pid: id}},
		State:        fakeStateReader{},
		PollInterval: 5 * time.Millisecond,
	}
	// A 1ms grace period expires after the first poll tick, forcing
	// escalation to sigkill deterministically.
	result := r.Execute(Target{Identity: id, Action: decision.ActionKill, GraceMillis: 1})
	// Because the fake never reports dead until very many calls in, the
	// post-sigkill verification will still see it alive with this
	// configuration; assert escalation happened regardless of the
	// final verdict.
	assert.Contains(t, result.Stages[len(result.Stages)-1].Name, "sigkill")
}

func TestStagedKillRedirectsZombieToParent(t *testing.T) {
	pid := identity.PID(200)
	ppid := identity.PID(1)
	id := identity.ProcessIdentity{PID: pid, StartID: "boot:1:200", UID: 0}
	sig := newFakeSignaler()
	sig.aliveAfter[ppid] = 0 // parent already reaped the zombie by the time we signal it

	r := SignalRunner{
		Signaler: sig,
		Identity: fakeIdentityReader{identities: map[identity.PID]identity.ProcessIdentity{pid: id}},
		State:    fakeStateReader{zombies: map[identity.PID]bool{pid: true}},
	}
	result := r.Execute(Target{Identity: id, PPID: ppid, Action: decision.ActionKill})
	require.NotNil(t, result.OriginalZombieTarget)
	assert.Equal(t, pid, *result.OriginalZombieTarget)
	require.NotNil(t, result.RedirectedTo)
	assert.Equal(t, ppid, *result.RedirectedTo)
}

func TestStagedKillIdentityMismatchAbortsBeforeSignaling(t *testing.T) {
	pid := identity.PID(300)
	recorded := identity.ProcessIdentity{PID: pid, StartID: "boot:1:300", UID: 0}
	drifted := identity.ProcessIdentity{PID: pid, StartID: "boot:2:300", UID: 0}
	sig := newFakeSignaler()

	r := SignalRunner{
		Signaler: sig,
		Identity: fakeIdentityReader{identities: map[identity.PID]identity.ProcessIdentity{pid: drifted}},
		State:    fakeStateReader{},
	}
	result := r.Execute(Target{Identity: recorded, Action: decision.ActionKill})
	assert.Equal(t, StatusIdentityMismatch, result.Status)
	assert.Empty(t, sig.signalsSent)
}

func TestPauseSendsStop(t *testing.T) {
	pid := identity.PID(400)
	id := identity.ProcessIdentity{PID: pid}
	sig := newFakeSignaler()
	r := SignalRunner{Signaler: sig}
	result := r.Execute(Target{Identity: id, Action: decision.ActionPause})
	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, []int{sigStop}, sig.signalsSent)
}

func TestProcessGroupSignalUsesGroupPath(t *testing.T) {
	pid := identity.PID(500)
	pgid := identity.PID(500)
	id := identity.ProcessIdentity{PID: pid}
	sig := newFakeSignaler()
	r := SignalRunner{Signaler: sig}
	r.Execute(Target{Identity: id, Action: decision.ActionPause, UseProcessGroups: true, PGID: &pgid})
	assert.Equal(t, []identity.PID{pgid}, sig.groupSent)
}

type fakeCgroupFS struct {
	files map[string]string
}

func newFakeCgroupFS() *fakeCgroupFS { return &fakeCgroupFS{files: map[string]string{}} }

func (f *fakeCgroupFS) WriteFile(path, content string) error {
	f.files[path] = content
	return nil
}

func (f *fakeCgroupFS) ReadFile(path string) (string, error) {
	v, ok := f.files[path]
	if !ok {
		return "", errors.New("no such file")
	}
	return v, nil
}

func TestCgroupFreezeVerifies(t *testing.T) {
	fs := newFakeCgroupFS()
	r := CgroupRunner{FS: fs}
	result := r.Execute(Target{CgroupPath: "/sys/fs/cgroup/test", Action: decision.ActionFreeze})
	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, "1", fs.files["/sys/fs/cgroup/test/cgroup.freeze"])
}

func TestCgroupQuarantineMovesProcsAndVerifies(t *testing.T) {
	fs := newFakeCgroupFS()
	r := CgroupRunner{FS: fs, QuarantineCgroupPath: "/sys/fs/cgroup/quarantine"}
	id := identity.ProcessIdentity{PID: 777}
	result := r.Execute(Target{Identity: id, Action: decision.ActionQuarantine})
	assert.Equal(t, StatusOK, result.Status)
	assert.Contains(t, fs.files["/sys/fs/cgroup/quarantine/cgroup.procs"], "777")
}

func TestCompositeRunnerRestartReturnsSupervisorError(t *testing.T) {
	c := CompositeRunner{}
	result := c.Execute(Target{Action: decision.ActionRestart})
	assert.Equal(t, StatusFailed, result.Status)
	assert.ErrorIs(t, result.Err, ErrRestartRequiresSupervisor)
}

func TestCompositeRunnerKeepIsNoop(t *testing.T) {
	c := CompositeRunner{}
	result := c.Execute(Target{Action: decision.ActionKeep})
	assert.Equal(t, StatusOK, result.Status)
}

func TestReniceVerifyMismatch(t *testing.T) {
	r := ReniceRunner{Adjuster: fakeAdjuster{priority: 5}}
	err := r.Verify(Target{Identity: identity.ProcessIdentity{PID: 1}, NiceDelta: 10})
	assert.Error(t, err)
}

type fakeAdjuster struct{ priority int }

func (f fakeAdjuster) SetPriority(pid identity.PID, nice int) error { return nil }
func (f fakeAdjuster) GetPriority(pid identity.PID) (int, error)    { return f.priority, nil }
