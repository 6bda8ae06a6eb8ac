package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrTimeout = errors.New("command timed out")

// ExitError is returned when a tool exits with a non zero code.
type ExitError struct {
	Tool   string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s failed (exit code: %d)", e.Tool, e.Code)
	}
	return fmt.Sprintf("%s failed (exit code: %d): %s", e.Tool, e.Code, msg)
}

// Command describes one invocation of an external tool.
type Command struct {
	Name  string
	Args  []string
	Stdin io.Reader
	// Stdout receives the output. When nil the output is returned in Result.
	Stdout io.Writer
	// Timeout overrides the runner's default when set. NoTimeout runs the
	// command until ctx is cancelled.
	Timeout time.Duration
}

// NoTimeout is the Command.Timeout of long running tools.
const NoTimeout time.Duration = -1

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result of a successful invocation.
type Result struct {
	Stdout   []byte
	Stderr   string
	Duration time.Duration
}

// Executor runs external tools. Runner is the production implementation.
type Executor interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// Runner starts a process, waits at most the timeout and kills it otherwise.
// The process is always reaped before Run returns.
type Runner struct {
	timeout time.Duration
	logger  *zap.Logger
}

func NewRunner(timeout time.Duration, logger *zap.Logger) *Runner {
	return &Runner{timeout: timeout, logger: logger}
}

func (r *Runner) Run(ctx context.Context, cmd Command) (*Result, error) {
	timeout := r.timeout
	if cmd.Timeout > 0 || cmd.Timeout == NoTimeout {
		timeout = cmd.Timeout
	}
	var cancel context.CancelFunc
	if timeout == NoTimeout {
		ctx, cancel = context.WithCancel(ctx)
	} else {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	var stdout, stderr bytes.Buffer
	proc := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	proc.Stdin = cmd.Stdin
	proc.Stdout = &stdout
	if cmd.Stdout != nil {
		proc.Stdout = cmd.Stdout
	}
	proc.Stderr = &stderr
	// children holding the pipes open must not block Wait after the kill
	proc.WaitDelay = 100 * time.Millisecond

	start := time.Now()
	err := proc.Run()
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			r.logger.Warn("Command timed out",
				zap.String("command", cmd.String()),
				zap.Duration("timeout", timeout))
			return nil, fmt.Errorf("%s: %w after %s", cmd.Name, ErrTimeout, timeout)
		}
		r.logger.Debug("Command cancelled",
			zap.String("command", cmd.String()),
			zap.Duration("duration", elapsed))
		return nil, ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ExitError{Tool: cmd.Name, Code: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return nil, fmt.Errorf("failed to run %s: %w", cmd.Name, err)
	}

	r.logger.Debug("Command finished",
		zap.String("command", cmd.String()),
		zap.Duration("duration", elapsed))

	return &Result{Stdout: stdout.Bytes(), Stderr: stderr.String(), Duration: elapsed}, nil
}
