// Package runner provides safe command execution with workspace bounds,
// timeouts, process-group cleanup and output size limits.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxOutput caps captured output when MaxOutput is unset.
const DefaultMaxOutput = 1 << 20

// DefaultWaitDelay bounds how long Run waits for output pipes to close
// after the process has been killed.
const DefaultWaitDelay = 2 * time.Second

// Runner executes commands safely within a workspace boundary.
type Runner struct {
	Workspace string
	Timeout   time.Duration
	MaxOutput int // bytes

	// MergeOutput sends stdout and stderr into one buffer in arrival order.
	MergeOutput bool
	WaitDelay   time.Duration
	Logger      *zap.Logger
}

// Run executes a command with the given argv. The first element is the
// binary name (resolved via PATH), and the rest are arguments. stdin, if
// non-empty, is written to the process's standard input.
// cwd is resolved relative to the workspace root and must remain within it.
//
// A process that cannot be started is reported as an error. Non-zero exit
// and timeout are reported in the Result. The process runs in its own
// process group, which is killed when ctx is done or the timeout elapses.
func (r *Runner) Run(ctx context.Context, argv []string, cwd string, stdin string) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty argv")
	}

	dir, err := r.resolveDir(cwd)
	if err != nil {
		return nil, err
	}

	log := r.logger()
	maxOutput := r.MaxOutput
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutput
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	runID := uuid.New().String()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr, merged bytes.Buffer
	var outW, errW *limitWriter
	if r.MergeOutput {
		outW = &limitWriter{buf: &merged, limit: maxOutput}
		errW = outW
	} else {
		outW = &limitWriter{buf: &stdout, limit: maxOutput}
		errW = &limitWriter{buf: &stderr, limit: maxOutput}
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	log.Debug("starting process",
		zap.String("run_id", runID),
		zap.Strings("argv", argv),
		zap.String("dir", dir),
		zap.Int("stdin_bytes", len(stdin)))

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(runErr, &exitErr):
			exitCode = exitErr.ExitCode()
		case errors.Is(runErr, exec.ErrWaitDelay):
			// Output pipes were held open by a leftover child; the
			// process itself exited.
			exitCode = cmd.ProcessState.ExitCode()
		case cmd.Process == nil:
			// Binary not found or other exec error.
			return nil, fmt.Errorf("executing %s: %w", argv[0], runErr)
		default:
			exitCode = -1
		}
	}

	res := &Result{
		RunID:    runID,
		ExitCode: exitCode,
		TimedOut: timedOut,
		Duration: elapsed,
	}
	if cmd.Process != nil {
		res.PID = cmd.Process.Pid
	}
	if r.MergeOutput {
		res.Output = merged.Bytes()
	} else {
		res.Stdout = stdout.Bytes()
		res.Stderr = stderr.Bytes()
		res.Output = append(append([]byte{}, res.Stdout...), res.Stderr...)
	}
	res.Truncated = outW.truncated() || errW.truncated()

	log.Debug("process finished",
		zap.String("run_id", runID),
		zap.Int("exit_code", exitCode),
		zap.Bool("timed_out", timedOut),
		zap.Bool("truncated", res.Truncated),
		zap.Int("output_bytes", len(res.Output)),
		zap.Duration("elapsed", elapsed))

	return res, nil
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// resolveDir resolves cwd relative to the workspace and validates it
// is within the workspace boundary.
func (r *Runner) resolveDir(cwd string) (string, error) {
	if cwd == "" {
		return r.Workspace, nil
	}

	var dir string
	if filepath.IsAbs(cwd) {
		dir = filepath.Clean(cwd)
	} else {
		dir = filepath.Clean(filepath.Join(r.Workspace, cwd))
	}

	rel, err := filepath.Rel(r.Workspace, dir)
	if err != nil {
		return "", fmt.Errorf("resolving cwd: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("cwd %q is outside workspace %q", cwd, r.Workspace)
	}
	return dir, nil
}

// limitWriter writes up to limit bytes to buf, then discards the rest
// and remembers that it did. It is safe for concurrent use so stdout and
// stderr can share one.
type limitWriter struct {
	mu      sync.Mutex
	buf     *bytes.Buffer
	limit   int
	dropped bool
}

func (w *limitWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		w.dropped = w.dropped || len(p) > 0
		return len(p), nil // discard
	}
	if len(p) > remaining {
		// Write only what fits, but report all bytes as consumed
		// to avoid short write errors from io.Copy.
		w.buf.Write(p[:remaining])
		w.dropped = true
		return len(p), nil
	}
	return w.buf.Write(p)
}

func (w *limitWriter) truncated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}
