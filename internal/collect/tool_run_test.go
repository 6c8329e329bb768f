package collect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerExecutesSimpleCommand(t *testing.T) {
	r := NewRunner(100, 10)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := r.Run(ctx, ToolSpec{Command: "echo", Args: []string{"hello"}, Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, 0, out.ExitCode)
	assert.Contains(t, out.Stdout, "hello")
	assert.False(t, out.Truncated)
}

func TestRunnerCommandNotFound(t *testing.T) {
	r := NewRunner(100, 10)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := r.Run(ctx, ToolSpec{Command: "pt-core-definitely-not-a-real-binary"})
	assert.True(t, errors.Is(err, ErrCommandNotFound))
}

func TestRunnerTimeout(t *testing.T) {
	r := NewRunner(100, 10)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := r.Run(ctx, ToolSpec{Command: "sleep", Args: []string{"5"}, Timeout: 50 * time.Millisecond})
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestCapturedBufferTruncates(t *testing.T) {
	var buf capturedBuffer
	buf.limit = 5
	n, err := buf.Write([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n) // Write reports the full length even when capped
	assert.True(t, buf.truncated)
	assert.Equal(t, "hello", buf.buf.String())
}

func TestCapturedBufferNoTruncationUnderLimit(t *testing.T) {
	var buf capturedBuffer
	buf.limit = 100
	_, err := buf.Write([]byte("short"))
	require.NoError(t, err)
	assert.False(t, buf.truncated)
	assert.Equal(t, "short", buf.buf.String())
}
