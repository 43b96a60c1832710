package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/deixis/agentstep/internal/format"
	"github.com/deixis/agentstep/internal/message"
)

func init() {
	var full bool
	cmd := &cobra.Command{
		Use:   "format <execution-file>",
		Short: "Re-render a saved execution file",
		Long: `Re-render a saved execution file as the compact transcript, or verbatim with --full.

The compact form omits session details, tool output and result text.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return formatFile(cmd.OutOrStdout(), args[0], full)
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "print every record verbatim")
	rootCmd.AddCommand(cmd)
}

func formatFile(w io.Writer, path string, full bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading execution file: %w", err)
	}
	var records []message.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parsing execution file %s: %w", path, err)
	}
	for _, r := range records {
		if line := format.Record(r, full); line != "" {
			fmt.Fprintln(w, line)
		}
	}
	return nil
}
