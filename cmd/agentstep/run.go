package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/deixis/agentstep/internal/agent"
	"github.com/deixis/agentstep/internal/config"
	"github.com/deixis/agentstep/internal/driver"
	"github.com/deixis/agentstep/internal/ghaction"
	"github.com/deixis/agentstep/internal/report"
	"github.com/deixis/agentstep/internal/runner"
)

// runFlags override the config file and INPUT_* variables.
type runFlags struct {
	configPath string
	promptFile string
	model      string
	fullOutput bool
	timeout    time.Duration
	execFile   string
	historyDir string
}

func init() {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent on a prompt file",
		Long: `Run the agent on a prompt file.

Settings come from the .agentstep file at the repository root, then INPUT_*
environment variables (as set by a GitHub Action), then flags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runMain(ctx, cmd, &f)
		},
	}
	cmd.Flags().StringVar(&f.configPath, "config", "", "path to the config file (default: .agentstep at the repository root)")
	cmd.Flags().StringVar(&f.promptFile, "prompt-file", "", "path to the prompt file")
	cmd.Flags().StringVar(&f.model, "model", "", "model to use")
	cmd.Flags().BoolVar(&f.fullOutput, "full-output", false, "log every record verbatim; may expose secrets from tool output")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "abort the agent after this long (e.g. 30m)")
	cmd.Flags().StringVar(&f.execFile, "execution-file", "", "where to write the full transcript")
	cmd.Flags().StringVar(&f.historyDir, "history", "", "directory to keep run records in, for agentstep inspect")
	rootCmd.AddCommand(cmd)
}

func runMain(ctx context.Context, cmd *cobra.Command, f *runFlags) error {
	log := slog.Default()

	workspace, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determining workspace: %w", err)
	}
	cfg, repoRoot, err := loadConfig(workspace, f.configPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyInputs(os.LookupEnv); err != nil {
		return err
	}
	applyFlags(cfg, cmd, f)
	if cfg.PromptFile == "" {
		return errors.New("no prompt file: set --prompt-file, prompt_file or INPUT_PROMPT_FILE")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	opts, err := driver.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	binary, err := agent.ResolveBinary(cfg.Executable)
	if err != nil {
		return err
	}

	r := &runner.Runner{
		Workspace: repoRoot,
		Timeout:   cfg.Timeout(),
		MaxOutput: cfg.MaxOutputBytes(),
	}
	client := &agent.CLIClient{Binary: binary, Runner: r, Logger: log}
	if v, err := client.Version(ctx); err != nil {
		log.Warn("could not determine agent version", "error", err)
	} else {
		log.Info("agent cli", "binary", binary[0], "version", v)
	}

	execFile := cfg.ExecutionFile
	if execFile == "" {
		execFile = driver.DefaultExecutionFile()
	}
	d := &driver.Driver{
		Client:        client,
		Logger:        log,
		Out:           cmd.OutOrStdout(),
		ExecutionFile: execFile,
	}

	runID := uuid.NewString()
	started := time.Now()
	res, runErr := d.Run(ctx, cfg.PromptFile, opts)
	run := report.NewRun(runID, cfg.PromptFile, started, res, runErr)

	if f.historyDir != "" {
		if err := report.NewDiskStore(f.historyDir).Save(run); err != nil {
			log.Warn("failed to save run", "run_id", runID, "error", err)
		}
	}
	if err := publishOutputs(ghaction.FromEnv(), run); err != nil {
		log.Warn("failed to publish step outputs", "error", err)
	}
	printConclusion(cmd.ErrOrStderr(), run, time.Since(started))

	return runErr
}

// loadConfig reads an explicit config file, or discovers .agentstep from
// the workspace. The second result is the repository root.
func loadConfig(workspace, path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, workspace, nil
	}
	loaded, err := config.Load(workspace)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return loaded.Config, loaded.RepoRoot, nil
}

// applyFlags layers explicitly set flags over the configuration.
func applyFlags(cfg *config.Config, cmd *cobra.Command, f *runFlags) {
	if f.promptFile != "" {
		cfg.PromptFile = f.promptFile
	}
	if f.model != "" {
		cfg.Model = f.model
	}
	if cmd.Flags().Changed("full-output") {
		cfg.ShowFullOutput = f.fullOutput
	}
	if f.timeout > 0 {
		cfg.RawTimeout = f.timeout.String()
	}
	if f.execFile != "" {
		cfg.ExecutionFile = f.execFile
	}
}

// publishOutputs writes the run's step outputs. A failed run still
// publishes whatever it learned before failing.
func publishOutputs(out *ghaction.Outputs, run *report.Run) error {
	return out.SetAll(
		[2]string{"conclusion", run.Conclusion},
		[2]string{"execution_file", run.ExecutionFile},
		[2]string{"session_id", run.SessionID},
		[2]string{"structured_output", run.StructuredOutput},
	)
}

func printConclusion(w io.Writer, run *report.Run, elapsed time.Duration) {
	c := color.New(color.FgGreen, color.Bold)
	if run.Conclusion != string(driver.Success) {
		c = color.New(color.FgRed, color.Bold)
	}
	c.Fprintf(w, "agentstep: %s", run.Conclusion)
	fmt.Fprintf(w, " (%d records, %s)\n", len(run.Records), elapsed.Round(time.Second))
	if run.ExecutionFile != "" {
		fmt.Fprintf(w, "  execution file: %s\n", run.ExecutionFile)
	}
	if run.SessionID != "" {
		fmt.Fprintf(w, "  session id:     %s\n", run.SessionID)
	}
}
