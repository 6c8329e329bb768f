package collect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"
)

// ErrCommandNotFound, ErrTimeout, and ErrBudgetExceeded are the three
// failure modes tool_run surfaces.
var (
	ErrCommandNotFound = errors.New("collect: command not found")
	ErrTimeout         = errors.New("collect: command timed out")
	ErrBudgetExceeded  = errors.New("collect: tool invocation budget exceeded")
)

// ToolSpec describes one external command invocation.
type ToolSpec struct {
	Command        string
	Args           []string
	Timeout        time.Duration
	MaxOutputBytes int // 0 means a sane default
	Nice           *int
}

const defaultMaxOutputBytes = 1 << 20 // 1 MiB

// Runner executes external commands under a shared invocation-rate
// budget, so a burst of probes can never monopolize the host's process
// table even when individual timeouts are generous.
type Runner struct {
	limiter *rate.Limiter
}

// NewRunner builds a Runner that allows opsPerSecond sustained tool
// invocations with the given burst allowance.
func NewRunner(opsPerSecond float64, burst int) *Runner {
	if burst <= 0 {
		burst = 1
	}
	return &Runner{limiter: rate.NewLimiter(rate.Limit(opsPerSecond), burst)}
}

// Run executes spec, enforcing spec.Timeout, capping captured output at
// MaxOutputBytes (surfacing truncation rather than failing), and
// applying the requested nice-priority adjustment when set.
func (r *Runner) Run(ctx context.Context, spec ToolSpec) (ToolOutput, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return ToolOutput{}, fmt.Errorf("%w: %v", ErrBudgetExceeded, err)
	}

	if _, err := exec.LookPath(spec.Command); err != nil {
		return ToolOutput{}, fmt.Errorf("%w: %s", ErrCommandNotFound, spec.Command)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	maxBytes := spec.MaxOutputBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxOutputBytes
	}

	cmd := exec.CommandContext(runCtx, spec.Command, spec.Args...)
	var stdout, stderr capturedBuffer
	stdout.limit = maxBytes
	stderr.limit = maxBytes
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Start()
	if err != nil {
		return ToolOutput{}, fmt.Errorf("%w: %v", ErrCommandNotFound, err)
	}
	if spec.Nice != nil {
		_ = unix.Setpriority(unix.PRIO_PROCESS, cmd.Process.Pid, *spec.Nice)
	}
	err = cmd.Wait()
	duration := time.Since(start)

	out := ToolOutput{
		Command:   spec.Command,
		Stdout:    stdout.buf.String(),
		Stderr:    stderr.buf.String(),
		Truncated: stdout.truncated || stderr.truncated,
		Duration:  duration,
	}

	if runCtx.Err() != nil {
		return out, fmt.Errorf("%w: %v", ErrTimeout, runCtx.Err())
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		return out, err
	}
	out.ExitCode = 0
	return out, nil
}

// capturedBuffer caps how much output is retained, surfacing truncation
// without ever failing the command.
type capturedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (c *capturedBuffer) Write(p []byte) (int, error) {
	remaining := c.limit - c.buf.Len()
	if remaining <= 0 {
		c.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		c.buf.Write(p[:remaining])
		c.truncated = true
		return len(p), nil
	}
	c.buf.Write(p)
	return len(p), nil
}
