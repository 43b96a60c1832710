package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/deixis/agentstep/internal/agent"
	"github.com/deixis/agentstep/internal/config"
	agentmcp "github.com/deixis/agentstep/internal/mcp"
	"github.com/deixis/agentstep/internal/report"
	"github.com/deixis/agentstep/internal/runner"
)

func init() {
	var (
		instructions bool
		httpAddr     string
		historyDir   string
	)
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server",
		Long:  "Serve agent_run and agent_inspect over MCP, on stdio or HTTP with --http.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if instructions {
				fmt.Fprint(cmd.OutOrStdout(), agentmcp.Instructions)
				return nil
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, httpAddr, historyDir)
		},
	}
	cmd.Flags().BoolVar(&instructions, "instructions", false, "print model instructions and exit")
	cmd.Flags().StringVar(&httpAddr, "http", "", "start HTTP server on address (e.g. :9090)")
	cmd.Flags().StringVar(&historyDir, "history", "", "directory to keep run records in (default: a temp directory)")
	rootCmd.AddCommand(cmd)
}

func serve(ctx context.Context, httpAddr, historyDir string) error {
	workspace, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determining workspace: %w", err)
	}

	loaded, err := config.Load(workspace)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := loaded.Config
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Fail at startup rather than on the first agent_run.
	if _, err := agent.ResolveBinary(cfg.Executable); err != nil {
		return err
	}

	store := report.NewLRUStore(5, report.NewDiskStore(historyDir))
	server := agentmcp.NewServer(cfg, nil, store, loaded.RepoRoot,
		agentmcp.WithClientFactory(newCLIClient),
		agentmcp.WithLogger(slog.Default()),
	)

	if httpAddr != "" {
		return serveHTTP(ctx, server, httpAddr)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

// newCLIClient builds a client with its own runner for a single run.
func newCLIClient(cfg *config.Config, workspace string) (agent.Client, error) {
	binary, err := agent.ResolveBinary(cfg.Executable)
	if err != nil {
		return nil, err
	}
	r := &runner.Runner{
		Workspace: workspace,
		Timeout:   cfg.Timeout(),
		MaxOutput: cfg.MaxOutputBytes(),
	}
	return &agent.CLIClient{Binary: binary, Runner: r, Logger: slog.Default()}, nil
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	slog.Info("listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
