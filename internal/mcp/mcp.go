// Package mcp provides the agentstep MCP server, registering its tools
// and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/agentstep"
	"github.com/deixis/agentstep/internal/agent"
	"github.com/deixis/agentstep/internal/config"
	"github.com/deixis/agentstep/internal/report"
)

//go:embed instructions.md
var Instructions string

// ClientFactory builds the agent client for one run from the current
// config and workspace.
type ClientFactory func(cfg *config.Config, workspace string) (agent.Client, error)

// handler holds shared dependencies for all tool handlers.
type handler struct {
	mu        sync.Mutex
	cfg       *config.Config
	workspace string

	newClient ClientFactory
	store     report.Store
	logger    *slog.Logger
}

// NewServer creates an MCP server with all agentstep tools registered.
// Every run uses client unless WithClientFactory is given.
func NewServer(cfg *config.Config, client agent.Client, store report.Store, workspace string, opts ...ServerOption) *mcp.Server {
	if cfg == nil {
		cfg = &config.Config{}
	}
	h := &handler{
		cfg:       cfg,
		workspace: workspace,
		newClient: func(*config.Config, string) (agent.Client, error) { return client, nil },
		store:     store,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}

	mcpOpts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateWorkspaceFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "agentstep", Version: agentstep.Version}, mcpOpts)

	mcp.AddTool(s, &mcp.Tool{
		Name: "agent_run",
		Description: `Run the Claude Code agent headlessly on a prompt file.

The prompt file path is relative to the workspace. A sibling claude-user-request.txt, if present,
is sent as a second prompt segment. Returns the conclusion, session id and a compact transcript.
Results are stored for drill-down via agent_inspect.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "agent_inspect",
		Description: `Drill into the transcript of a previous agent_run.

Use the run_id from the agent_run output, or its session id. Filter by record type (system, assistant, user, result)
or by tool name with "tool:<name>" (e.g. tool:Bash). An empty filter lists every entry.`,
	}, h.inspectHandler)

	return s
}

// ServerOption configures the agentstep MCP server.
type ServerOption func(*handler)

// WithClientFactory builds a fresh client for each run, so a workspace
// announced through MCP roots applies to the runs that follow it.
func WithClientFactory(f ClientFactory) ServerOption {
	return func(h *handler) {
		h.newClient = f
	}
}

// WithLogger sets the logger for agent runs. It must not write to the
// transport's stdout.
func WithLogger(l *slog.Logger) ServerOption {
	return func(h *handler) {
		h.logger = l
	}
}

// updateWorkspaceFromRoots queries the client for MCP roots and updates the
// handler's workspace and config if a valid root is returned.
// This is called during session initialization, before any tool calls.
func (h *handler) updateWorkspaceFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil {
		return
	}
	if len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}
	workspace := u.Path

	loaded, err := config.Load(workspace)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = loaded.Config
	h.workspace = workspace
}

func (h *handler) snapshot() (*config.Config, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg, h.workspace
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
