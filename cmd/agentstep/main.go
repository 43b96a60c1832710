// Command agentstep runs the Claude Code CLI headlessly on a prompt file
// and reports the outcome as CI step outputs.
package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/deixis/agentstep"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:   "agentstep",
	Short: "Run a headless agent session as a CI step",
	Long: `agentstep runs the Claude Code CLI on a prompt file, streams a compact transcript
to the log, writes the full transcript to an execution file and publishes the
conclusion, session id and structured output as step outputs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(newLogger())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging (also set by RUNNER_DEBUG=1)")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), agentstep.Version)
	},
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("agentstep: ")

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// newLogger writes structured logs to stderr so stdout carries only the
// transcript.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if debug || os.Getenv("RUNNER_DEBUG") == "1" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
