package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/agentstep/internal/report"
)

type inspectParams struct {
	RunID  string `json:"run_id,omitempty" jsonschema:"the run ID from an agent_run result, or the agent session ID of a recent run"`
	Filter string `json:"filter,omitempty" jsonschema:"record type (system, assistant, user, result) or tool:<name> for calls to one tool (e.g. tool:Bash); empty lists every entry"`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}

	run, err := h.store.Load(params.RunID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}

	entries := report.Filter(run, params.Filter)
	if len(entries) == 0 {
		return textResult(fmt.Sprintf("No entries match %q in run %s (%s).", params.Filter, params.RunID, run.Conclusion))
	}

	return textResult(formatInspectOutput(run, params.Filter, entries))
}

func formatInspectOutput(run *report.Run, filter string, entries []report.Entry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run: %s (%s)\n", run.ID, run.Conclusion)
	if filter == "" {
		filter = "all"
	}
	fmt.Fprintf(&b, "%s: %d entries from %d records\n", filter, len(entries), len(run.Records))
	fmt.Fprintln(&b)

	for _, e := range entries {
		fmt.Fprintf(&b, "#%d %s\n", e.Index, e.Text)
	}
	return b.String()
}
