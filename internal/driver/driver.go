// Package driver runs one agent session end to end: it loads the prompt,
// streams the agent's records to the log, saves the transcript and
// derives the run's conclusion.
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/deixis/agentstep/internal/agent"
	"github.com/deixis/agentstep/internal/format"
	"github.com/deixis/agentstep/internal/message"
	"github.com/deixis/agentstep/internal/prompt"
)

// DefaultExecutionFileName is the transcript file name placed in the
// runner temp directory.
const DefaultExecutionFileName = "claude-execution-output.json"

// Conclusion is the outcome of a run.
type Conclusion string

const (
	Success Conclusion = "success"
	Failure Conclusion = "failure"
)

// State is the driver's position in a run.
type State string

const (
	StateStarting   State = "starting"
	StateStreaming  State = "streaming"
	StateFinalizing State = "finalizing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Options configures a single run.
type Options struct {
	Agent agent.Options

	// ShowFullOutput logs every record verbatim instead of the compact
	// summary. It can expose tool inputs and outputs.
	ShowFullOutput bool

	// Schema, when set, requires the result to carry structured output.
	// Output that does not satisfy the schema fails the run.
	Schema *Schema
}

// Result summarises a finished run.
type Result struct {
	Conclusion       Conclusion
	ExecutionFile    string // empty when the transcript could not be written
	SessionID        string
	StructuredOutput string // JSON; empty unless a schema was requested
	Records          []message.Record
}

// RunError is returned for every fatal failure. It carries whatever the
// run learned before failing so the caller can still publish it.
type RunError struct {
	State         State // state in which the run failed
	Conclusion    Conclusion
	ExecutionFile string
	SessionID     string
	Records       []message.Record
	Err           error
}

func (e *RunError) Error() string {
	return e.Err.Error()
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Driver runs agent sessions.
type Driver struct {
	Client        agent.Client
	Logger        *slog.Logger
	Out           io.Writer // formatted transcript lines
	ExecutionFile string    // where the full transcript is written
}

// Run executes the prompt at promptPath. It returns a Result only when
// the run concluded successfully; every other outcome is a *RunError.
func (d *Driver) Run(ctx context.Context, promptPath string, opts Options) (*Result, error) {
	log := d.logger()
	run := &runState{log: log}

	run.enter(StateStarting)
	in, err := prompt.Load(promptPath)
	if err != nil {
		return nil, run.fail(err)
	}
	log.Info("starting agent",
		"prompt", promptPath,
		"multi_part", in.MultiPart(),
		"full_output", opts.ShowFullOutput,
		"options", opts.Agent,
	)

	run.enter(StateStreaming)
	for rec, err := range d.Client.Query(ctx, in, opts.Agent) {
		if err != nil {
			return nil, run.fail(fmt.Errorf("agent execution failed: %w", err))
		}
		run.records = append(run.records, rec)
		if line := format.Record(rec, opts.ShowFullOutput); line != "" {
			fmt.Fprintln(d.out(), line)
		}
	}

	run.enter(StateFinalizing)
	run.executionFile = d.writeExecutionFile(run.records)
	run.sessionID = SessionID(run.records)
	if run.sessionID == "" {
		log.Warn("no session id found in agent output")
	}

	final, ok := LastResult(run.records)
	if !ok {
		return nil, run.fail(fmt.Errorf("no result message received from agent"))
	}

	conclusion := Conclude(final)
	log.Info("agent finished",
		"conclusion", conclusion,
		"subtype", final.Subtype,
		"turns", final.NumTurns,
		"cost_usd", final.TotalCostUSD,
		"duration_ms", final.DurationMS,
	)

	if conclusion != Success {
		return nil, run.fail(resultError(final))
	}

	var structured string
	if opts.Schema != nil {
		out, err := opts.Schema.Check(final)
		if err != nil {
			return nil, run.fail(err)
		}
		structured = out
		log.Info("structured output captured", "bytes", len(structured))
	}

	run.enter(StateDone)
	return &Result{
		Conclusion:       Success,
		ExecutionFile:    run.executionFile,
		SessionID:        run.sessionID,
		StructuredOutput: structured,
		Records:          run.records,
	}, nil
}

// runState tracks a run in progress.
type runState struct {
	log           *slog.Logger
	state         State
	records       []message.Record
	executionFile string
	sessionID     string
}

func (r *runState) enter(s State) {
	r.state = s
	r.log.Debug("run state", "state", s)
}

func (r *runState) fail(err error) *RunError {
	failedIn := r.state
	r.enter(StateFailed)
	r.log.Error("agent run failed", "state", failedIn, "error", err)
	return &RunError{
		State:         failedIn,
		Conclusion:    Failure,
		ExecutionFile: r.executionFile,
		SessionID:     r.sessionID,
		Records:       r.records,
		Err:           err,
	}
}

// Conclude maps a result record to a conclusion.
func Conclude(r message.Record) Conclusion {
	if r.Succeeded() {
		return Success
	}
	return Failure
}

// SessionID returns the session id from the init record, if any.
func SessionID(records []message.Record) string {
	for _, r := range records {
		if r.IsInit() && r.SessionID != "" {
			return r.SessionID
		}
	}
	return ""
}

// LastResult returns the last result record.
func LastResult(records []message.Record) (message.Record, bool) {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].IsResult() {
			return records[i], true
		}
	}
	return message.Record{}, false
}

func resultError(r message.Record) error {
	if len(r.Errors) > 0 {
		return fmt.Errorf("agent run failed (%s): %s", r.Subtype, strings.Join(r.Errors, "; "))
	}
	return fmt.Errorf("agent run failed (%s)", r.Subtype)
}

// writeExecutionFile saves the transcript. Failure is logged and yields
// an empty path.
func (d *Driver) writeExecutionFile(records []message.Record) string {
	path := d.ExecutionFile
	if path == "" {
		path = DefaultExecutionFile()
	}
	if records == nil {
		records = []message.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err == nil {
		err = os.WriteFile(path, data, 0o644)
	}
	if err != nil {
		d.logger().Warn("failed to write execution file", "path", path, "error", err)
		return ""
	}
	d.logger().Info("execution log written", "path", path, "records", len(records))
	return path
}

// DefaultExecutionFile returns the transcript path under RUNNER_TEMP,
// falling back to the OS temp directory.
func DefaultExecutionFile() string {
	dir := os.Getenv("RUNNER_TEMP")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, DefaultExecutionFileName)
}

func (d *Driver) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Driver) out() io.Writer {
	if d.Out != nil {
		return d.Out
	}
	return os.Stdout
}
