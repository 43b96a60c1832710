// Package runner provides process execution with workspace bounds,
// optional timeouts, and output size limits.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Runner starts commands within a workspace boundary.
type Runner struct {
	Workspace string
	Timeout   time.Duration // zero disables the timeout
	MaxOutput int           // bytes of stderr (and stdout for Run) to keep
}

// StartOptions configures a single process.
type StartOptions struct {
	Cwd   string            // relative to the workspace; must stay inside it
	Env   map[string]string // merged over the current process environment
	Stdin io.Reader         // nil means no stdin
}

// Process is a started command whose stdout is streamed to the caller.
type Process struct {
	RunID  string
	Stdout io.Reader

	cmd       *exec.Cmd
	ctx       context.Context
	cancel    context.CancelFunc
	stderr    bytes.Buffer
	maxOutput int
	timeout   time.Duration
}

// Start launches argv and returns once the process is running.
// The caller must read Stdout to EOF and then call Wait.
func (r *Runner) Start(ctx context.Context, argv []string, opts StartOptions) (*Process, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty argv")
	}

	dir, err := r.resolveDir(opts.Cwd)
	if err != nil {
		return nil, err
	}

	var cancel context.CancelFunc
	if r.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	p := &Process{
		RunID:     uuid.New().String(),
		ctx:       ctx,
		cancel:    cancel,
		maxOutput: r.maxOutput(),
		timeout:   r.Timeout,
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = mergeEnv(os.Environ(), opts.Env)
	cmd.Stdin = opts.Stdin
	cmd.Stderr = &limitWriter{buf: &p.stderr, limit: p.maxOutput}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("executing %s: %w", argv[0], err)
	}

	p.cmd = cmd
	p.Stdout = stdout
	return p, nil
}

// Wait waits for the process to exit. A non-zero exit is reported in
// Result.ExitCode, not as an error; errors are reserved for timeouts
// and failures to wait at all.
func (p *Process) Wait() (*Result, error) {
	defer p.cancel()

	waitErr := p.cmd.Wait()

	res := &Result{
		RunID:     p.RunID,
		Stderr:    p.stderr.Bytes(),
		Truncated: p.stderr.Len() >= p.maxOutput,
	}

	if errors.Is(p.ctx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("%s timed out after %s", p.cmd.Path, p.timeout)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return res, fmt.Errorf("waiting for %s: %w", p.cmd.Path, waitErr)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	return res, nil
}

// Kill terminates the process early. Wait must still be called.
func (p *Process) Kill() {
	p.cancel()
}

// Run executes argv to completion and captures both output streams.
func (r *Runner) Run(ctx context.Context, argv []string, cwd string) (*Result, error) {
	p, err := r.Start(ctx, argv, StartOptions{Cwd: cwd})
	if err != nil {
		return nil, err
	}

	var stdout bytes.Buffer
	_, copyErr := io.Copy(&limitWriter{buf: &stdout, limit: p.maxOutput}, p.Stdout)

	res, err := p.Wait()
	if err != nil {
		return nil, err
	}
	if copyErr != nil {
		return nil, fmt.Errorf("reading output of %s: %w", argv[0], copyErr)
	}
	res.Stdout = stdout.Bytes()
	if stdout.Len() >= p.maxOutput {
		res.Truncated = true
	}
	return res, nil
}

func (r *Runner) maxOutput() int {
	if r.MaxOutput > 0 {
		return r.MaxOutput
	}
	return 1 << 20
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
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("cwd %q is outside workspace %q", cwd, r.Workspace)
	}
	return dir, nil
}

// mergeEnv overlays extra onto base. Keys in extra replace existing entries.
func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := extra[key]; ok {
			continue
		}
		out = append(out, kv)
	}
	for k, v := range extra {
		out = append(out, k+"="+v)
	}
	return out
}

// limitWriter writes up to limit bytes to buf, then silently discards the rest.
type limitWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *limitWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil // discard
	}
	if len(p) > remaining {
		// Report all bytes as consumed to avoid short write errors.
		w.buf.Write(p[:remaining])
		return len(p), nil
	}
	return w.buf.Write(p)
}
