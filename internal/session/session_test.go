package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/process-triage/pt-core/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSessionID identity.SessionID = "pt-20260101-000000-dddd"

func TestManifestAppendEnforcesMonotonicTime(t *testing.T) {
	m := NewManifest("pt-20260101-000000-aaaa", time.Unix(1000, 0))
	require.NoError(t, m.Append(StateScanning, time.Unix(1001, 0)))
	err := m.Append(StatePlanned, time.Unix(1000, 0))
	assert.ErrorIs(t, err, ErrNonMonotonicTransition)
}

func TestManifestAppendRejectsReopeningTerminalState(t *testing.T) {
	m := NewManifest("pt-20260101-000000-bbbb", time.Unix(1000, 0))
	require.NoError(t, m.Append(StateScanning, time.Unix(1001, 0)))
	require.NoError(t, m.Append(StateCompleted, time.Unix(1002, 0)))
	err := m.Append(StateArchived, time.Unix(1003, 0))
	assert.ErrorIs(t, err, ErrNonMonotonicTransition)
}

func TestManifestAppendRejectsUnknownState(t *testing.T) {
	m := NewManifest("pt-20260101-000000-cccc", time.Unix(1000, 0))
	err := m.Append(State("Bogus"), time.Unix(1001, 0))
	assert.Error(t, err)
}

func TestLayoutCreateMakesFixedSubdirs(t *testing.T) {
	root := t.TempDir()
	l := NewLayout(root, testSessionID)
	require.NoError(t, l.Create())
	for _, dir := range []string{l.Scan, l.Inference, l.Decision, l.Action, l.Telemetry, l.Logs, l.Exports} {
		assert.DirExists(t, dir)
	}
}

func TestWriteReadManifestRoundTrips(t *testing.T) {
	root := t.TempDir()
	l := NewLayout(root, testSessionID)
	require.NoError(t, l.Create())

	m := NewManifest(testSessionID, time.Unix(2000, 0))
	require.NoError(t, m.Append(StateScanning, time.Unix(2001, 0)))
	require.NoError(t, WriteManifest(l, m))

	got, err := ReadManifest(l)
	require.NoError(t, err)
	assert.Equal(t, StateScanning, got.CurrentState())
	assert.Len(t, got.History, 2)
}

func TestStoreCreateAndTransitionUpdatesIndex(t *testing.T) {
	root := t.TempDir()
	st, err := Open(root)
	require.NoError(t, err)
	defer st.Close()

	id, layout, err := st.Create(time.Unix(3000, 0))
	require.NoError(t, err)
	require.NoError(t, st.Transition(id, layout, StateScanning, time.Unix(3001, 0)))

	rec, found, err := st.Index.Get(id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, StateScanning, rec.State)
}

func TestResolveDataRootHonorsEnvOverride(t *testing.T) {
	t.Setenv(DataRootEnvVar, "/tmp/pt-test-data-root")
	got, err := ResolveDataRoot()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/pt-test-data-root", got)
}

func TestIndexPutGetRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	idx, err := OpenIndex(path)
	require.NoError(t, err)
	defer idx.Close()

	rec := IndexRecord{SessionID: testSessionID, Root: "/tmp/x", State: StateCreated, CreatedAt: time.Unix(1, 0)}
	require.NoError(t, idx.Put(rec))

	got, found, err := idx.Get(testSessionID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec.Root, got.Root)
}
