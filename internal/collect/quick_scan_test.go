package collect

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuickScanFindsSelf(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := QuickScan(ctx, QuickScanOptions{BootID: "test-boot"})
	require.NoError(t, err)

	self := os.Getpid()
	var found bool
	for _, rec := range result.Processes {
		if int(rec.Identity.PID) == self {
			found = true
			break
		}
	}
	assert.True(t, found, "quick scan should include the running test process")
}

func TestQuickScanIdentityDeterministicAcrossBackToBackScans(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := QuickScanOptions{BootID: "test-boot"}
	first, err := QuickScan(ctx, opts)
	require.NoError(t, err)
	second, err := QuickScan(ctx, opts)
	require.NoError(t, err)

	self := os.Getpid()
	var firstID, secondID string
	for _, rec := range first.Processes {
		if int(rec.Identity.PID) == self {
			firstID = string(rec.Identity.StartID)
		}
	}
	for _, rec := range second.Processes {
		if int(rec.Identity.PID) == self {
			secondID = string(rec.Identity.StartID)
		}
	}
	require.NotEmpty(t, firstID)
	assert.Equal(t, firstID, secondID)
}
