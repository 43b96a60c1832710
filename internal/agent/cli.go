package agent

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strconv"
	"strings"

	"github.com/deixis/agentstep/internal/message"
	"github.com/deixis/agentstep/internal/prompt"
	"github.com/deixis/agentstep/internal/runner"
)

// maxLineSize bounds a single stream-json line. Tool results that embed
// whole files can be large.
const maxLineSize = 16 << 20

// CLIClient runs the agent CLI as a subprocess.
type CLIClient struct {
	Binary []string // argv prefix, see ResolveBinary
	Runner *runner.Runner
	Logger *slog.Logger
}

// ExitError is returned when the CLI exits non-zero before producing a
// result record.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("agent process exited with code %d", e.Code)
	if tail := lastLines(e.Stderr, 5); tail != "" {
		msg += ": " + tail
	}
	return msg
}

// Query implements Client.
func (c *CLIClient) Query(ctx context.Context, in *prompt.Input, opts Options) iter.Seq2[message.Record, error] {
	return func(yield func(message.Record, error) bool) {
		argv, stdin, err := c.command(in, opts)
		if err != nil {
			yield(message.Record{}, err)
			return
		}

		p, err := c.Runner.Start(ctx, argv, runner.StartOptions{
			Cwd:   opts.Cwd,
			Env:   opts.Env,
			Stdin: stdin,
		})
		if err != nil {
			yield(message.Record{}, fmt.Errorf("starting agent: %w", err))
			return
		}

		sawResult := false
		scanner := bufio.NewScanner(p.Stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			rec, err := message.Parse(line)
			if err != nil {
				c.logger().Debug("skipping non-record output line", "error", err)
				continue
			}
			if rec.IsResult() {
				sawResult = true
			}
			if !yield(rec, nil) {
				p.Kill()
				_, _ = p.Wait()
				return
			}
		}

		scanErr := scanner.Err()
		if scanErr != nil {
			p.Kill()
		}
		res, waitErr := p.Wait()

		switch {
		case scanErr != nil:
			yield(message.Record{}, fmt.Errorf("reading agent output: %w", scanErr))
		case waitErr != nil:
			yield(message.Record{}, waitErr)
		case res.ExitCode != 0 && !sawResult:
			yield(message.Record{}, &ExitError{Code: res.ExitCode, Stderr: string(res.Stderr)})
		case res.ExitCode != 0:
			c.logger().Debug("agent exited non-zero after result", "exit_code", res.ExitCode, "run_id", res.RunID)
		}
	}
}

// Version returns the CLI's reported version.
func (c *CLIClient) Version(ctx context.Context) (string, error) {
	argv := append(append([]string{}, c.Binary...), "--version")
	res, err := c.Runner.Run(ctx, argv, "")
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", &ExitError{Code: res.ExitCode, Stderr: string(res.Stderr)}
	}
	return strings.TrimSpace(string(res.Stdout)), nil
}

// command builds the argv and stdin for a run.
func (c *CLIClient) command(in *prompt.Input, opts Options) ([]string, io.Reader, error) {
	if len(c.Binary) == 0 {
		return nil, nil, fmt.Errorf("agent binary not configured")
	}

	argv := append([]string{}, c.Binary...)
	argv = append(argv, "-p", "--output-format", "stream-json", "--verbose")
	argv = append(argv, Args(opts)...)

	if in.MultiPart() {
		msg, err := in.Message()
		if err != nil {
			return nil, nil, err
		}
		argv = append(argv, "--input-format", "stream-json")
		return argv, bytes.NewReader(append(msg, '\n')), nil
	}
	return argv, strings.NewReader(in.Text), nil
}

// Args converts options into CLI flags.
func Args(opts Options) []string {
	var args []string
	str := func(flag, v string) {
		if v != "" {
			args = append(args, flag, v)
		}
	}
	str("--model", opts.Model)
	str("--fallback-model", opts.FallbackModel)
	if opts.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(opts.MaxTurns))
	}
	if len(opts.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(opts.AllowedTools, ","))
	}
	if len(opts.DisallowedTools) > 0 {
		args = append(args, "--disallowedTools", strings.Join(opts.DisallowedTools, ","))
	}
	str("--system-prompt", opts.SystemPrompt)
	str("--append-system-prompt", opts.AppendSystemPrompt)
	str("--mcp-config", opts.MCPConfig)
	str("--settings", opts.Settings)
	str("--permission-mode", opts.PermissionMode)
	str("--json-schema", opts.JSONSchema)
	return append(args, opts.ExtraArgs...)
}

func (c *CLIClient) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
