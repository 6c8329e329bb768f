package audit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenesisHashIs64HexChars(t *testing.T) {
	assert.Len(t, GenesisHash, 64)
}

func TestAppendChainsPrevHash(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir, RotationConfig{})
	require.NoError(t, err)
	defer log.Close()

	first, err := log.Append(EventSessionStarted, map[string]string{"session_id": "pt-x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, GenesisHash, first.PrevHash)
	assert.Equal(t, uint64(0), first.Seq)

	second, err := log.Append(EventScan, nil, map[string]interface{}{"pid_count": 3})
	require.NoError(t, err)
	assert.Equal(t, first.Hash, second.PrevHash)
	assert.Equal(t, uint64(1), second.Seq)
}

func TestVerifyLogDetectsCleanChain(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir, RotationConfig{})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := log.Append(EventScan, nil, map[string]interface{}{"i": i})
		require.NoError(t, err)
	}
	require.NoError(t, log.Close())

	result, err := VerifyLog(dir)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 5, result.EntriesWalked)
	assert.Empty(t, result.Discrepancies)
}

func TestVerifyLogDetectsTamperedEntry(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir, RotationConfig{})
	require.NoError(t, err)
	_, err = log.Append(EventSessionStarted, nil, nil)
	require.NoError(t, err)
	_, err = log.Append(EventScan, nil, map[string]interface{}{"pid_count": 1})
	require.NoError(t, err)
	require.NoError(t, log.Close())

	path := filepath.Join(dir, activeLogName)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := []byte(replaceOnce(string(data), `"pid_count":1`, `"pid_count":999`))
	require.NoError(t, os.WriteFile(path, tampered, 0o600))

	result, err := VerifyLog(dir)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	found := false
	for _, d := range result.Discrepancies {
		if d.Kind == BreakTamperedEntry {
			found = true
		}
	}
	assert.True(t, found)
}

func TestVerifyLogDetectsBrokenLink(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir, RotationConfig{})
	require.NoError(t, err)
	_, err = log.Append(EventSessionStarted, nil, nil)
	require.NoError(t, err)
	_, err = log.Append(EventScan, nil, nil)
	require.NoError(t, err)
	require.NoError(t, log.Close())

	path := filepath.Join(dir, activeLogName)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := []byte(replaceOnce(string(data), `"prev_hash":"`, `"prev_hash":"deadbeef`))
	require.NoError(t, os.WriteFile(path, tampered, 0o600))

	result, err := VerifyLog(dir)
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestRotationPreservesChainAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir, RotationConfig{MaxBytes: 1}) // rotate on every append
	require.NoError(t, err)
	_, err = log.Append(EventSessionStarted, nil, nil)
	require.NoError(t, err)
	_, err = log.Append(EventScan, nil, nil)
	require.NoError(t, err)
	_, err = log.Append(EventSessionEnded, nil, nil)
	require.NoError(t, err)
	require.NoError(t, log.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Greater(t, len(entries), 1, "expected at least one rotated file plus the active file")

	result, err := VerifyLog(dir)
	require.NoError(t, err)
	assert.True(t, result.Valid, "%+v", result.Discrepancies)
}

func TestResumeAfterReopenContinuesChain(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir, RotationConfig{})
	require.NoError(t, err)
	last, err := log.Append(EventSessionStarted, nil, nil)
	require.NoError(t, err)
	require.NoError(t, log.Close())

	reopened, err := Open(dir, RotationConfig{})
	require.NoError(t, err)
	defer reopened.Close()
	next, err := reopened.Append(EventScan, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, last.Hash, next.PrevHash)
	assert.Equal(t, last.Seq+1, next.Seq)
}

func replaceOnce(s, old, new string) string {
	idx := indexOf(s, old)
	if idx < 0 {
		return s
	}
	return s[:idx] + new + s[idx+len(old):]
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
