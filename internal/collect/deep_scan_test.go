package collect

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/process-triage/pt-core/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepScanSelfYieldsFullQuality(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	self := identity.PID(os.Getpid())
	result, err := DeepScan(ctx, []identity.PID{self}, DeepScanOptions{BootID: "test-boot", MaxParallel: 4})
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, identity.QualityFull, result.Records[0].Quality)
	assert.Empty(t, result.Missing)
}

func TestDeepScanVanishedPidIsMissingNotError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bogus := identity.PID(1 << 30) // astronomically unlikely to be live
	result, err := DeepScan(ctx, []identity.PID{bogus}, DeepScanOptions{BootID: "test-boot", MaxParallel: 4})
	require.NoError(t, err)
	assert.Contains(t, result.Missing, bogus)
	assert.Empty(t, result.Records)
}

func TestDeepScanBudgetExpiryYieldsPartialNotDropped(t *testing.T) {
	self := identity.PID(os.Getpid())
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond) // ensure the budget has definitely expired

	result, err := DeepScan(ctx, []identity.PID{self}, DeepScanOptions{
		BootID: "test-boot", MaxParallel: 4, Budget: time.Nanosecond,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Partial)
}

func TestClassifyCriticalPath(t *testing.T) {
	cases := []struct {
		path string
		cat  CriticalHandleCategory
		ok   bool
	}{
		{"/var/lib/app/data-wal", CriticalWAL, true},
		{"/var/lib/app/data.wal", CriticalWAL, true},
		{"/tmp/app.lock", CriticalLockFile, true},
		{"/var/lib/dpkg/lock", CriticalPackageManagerState, true},
		{"/home/user/notes.txt", 0, false},
	}
	for _, c := range cases {
		cat, ok := classifyCriticalPath(c.path)
		assert.Equal(t, c.ok, ok, c.path)
		if c.ok {
			assert.Equal(t, c.cat, cat, c.path)
		}
	}
}
