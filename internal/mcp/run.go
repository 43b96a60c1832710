package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/agentstep/internal/driver"
	"github.com/deixis/agentstep/internal/report"
)

type runParams struct {
	PromptFile     string `json:"prompt_file,omitempty" jsonschema:"path to the prompt file, relative to the workspace"`
	ShowFullOutput bool   `json:"show_full_output,omitempty" jsonschema:"return every record verbatim instead of the compact transcript; may expose tool inputs and outputs"`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	if params.PromptFile == "" {
		return errorResult("prompt_file is required")
	}

	cfg, workspace := h.snapshot()
	path, err := resolvePromptPath(workspace, params.PromptFile)
	if err != nil {
		return errorResult(err.Error())
	}
	opts, err := driver.OptionsFromConfig(cfg)
	if err != nil {
		return errorResult(fmt.Sprintf("invalid configuration: %v", err))
	}
	if params.ShowFullOutput {
		opts.ShowFullOutput = true
	}
	client, err := h.newClient(cfg, workspace)
	if err != nil {
		return errorResult(err.Error())
	}

	runID := uuid.NewString()
	var transcript strings.Builder
	d := &driver.Driver{
		Client:        client,
		Logger:        h.logger.With("run_id", runID),
		Out:           &transcript,
		ExecutionFile: filepath.Join(os.TempDir(), "agentstep-"+runID+".json"),
	}

	started := time.Now()
	res, runErr := d.Run(ctx, path, opts)
	run := report.NewRun(runID, params.PromptFile, started, res, runErr)

	// Save for agent_inspect.
	if err := h.store.Save(run); err != nil {
		h.logger.Warn("failed to save run", "run_id", runID, "error", err)
	}

	return textResult(formatRun(run, transcript.String()))
}

func resolvePromptPath(workspace, p string) (string, error) {
	path := p
	if !filepath.IsAbs(path) {
		path = filepath.Join(workspace, path)
	}
	rel, err := filepath.Rel(workspace, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("prompt_file %q is outside the workspace", p)
	}
	return path, nil
}

func formatRun(run *report.Run, transcript string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run: %s\n", run.ID)
	fmt.Fprintf(&b, "Conclusion: %s\n", run.Conclusion)
	if run.SessionID != "" {
		fmt.Fprintf(&b, "Session: %s\n", run.SessionID)
	}
	if run.ExecutionFile != "" {
		fmt.Fprintf(&b, "Execution file: %s\n", run.ExecutionFile)
	}
	if run.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", run.Error)
	}
	if run.StructuredOutput != "" {
		fmt.Fprintf(&b, "Structured output: %s\n", run.StructuredOutput)
	}

	if counts := report.ToolCounts(run); len(counts) > 0 {
		names := make([]string, 0, len(counts))
		for name := range counts {
			names = append(names, name)
		}
		slices.Sort(names)
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = fmt.Sprintf("%s=%d", name, counts[name])
		}
		fmt.Fprintf(&b, "Tools: %s\n", strings.Join(parts, ", "))
	}

	if transcript != "" {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Transcript:")
		fmt.Fprint(&b, transcript)
	}

	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Inspect with agent_inspect(run_id=%q, filter=\"<record type or tool:Name>\").\n", run.ID)
	return b.String()
}
