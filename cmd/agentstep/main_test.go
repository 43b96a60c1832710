package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deixis/agentstep"
	"github.com/deixis/agentstep/internal/config"
	"github.com/deixis/agentstep/internal/ghaction"
	"github.com/deixis/agentstep/internal/report"
)

const okStream = `{"type":"system","subtype":"init","session_id":"s-1","model":"claude-sonnet"}
{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","id":"t1","name":"Bash","input":{"command":"ls"}}]}}
{"type":"result","subtype":"success","is_error":false,"num_turns":1,"result":"done"}
`

const failStream = `{"type":"system","subtype":"init","session_id":"s-2"}
{"type":"result","subtype":"error_max_turns","is_error":true,"errors":["max turns reached"]}
`

// project lays out a repository with a fake claude binary that prints
// stream, and chdirs into it.
func project(t *testing.T, stream string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stream.jsonl"), []byte(stream), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompt.txt"), []byte("List the files."), 0o644))

	script := `#!/bin/sh
d=$(dirname "$0")
if [ "$1" = "--version" ]; then echo "2.0.0 (Claude Code)"; exit 0; fi
cat > /dev/null
cat "$d/stream.jsonl"
`
	bin := filepath.Join(dir, "claude")
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	cfg := "path_to_claude_code_executable: " + bin + "\n" +
		"execution_file: " + filepath.Join(dir, "exec.json") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(cfg), 0o644))

	t.Chdir(dir)
	t.Setenv(ghaction.OutputEnv, filepath.Join(dir, "github_output"))
	t.Setenv("INPUT_PROMPT_FILE", "prompt.txt")

	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return dir
}

func newTestCommand() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	return cmd, &stdout, &stderr
}

func readString(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRunMain_Success(t *testing.T) {
	dir := project(t, okStream)
	history := filepath.Join(dir, "history")
	cmd, stdout, stderr := newTestCommand()

	err := runMain(context.Background(), cmd, &runFlags{historyDir: history})
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), `"message": "Claude Code initialized"`)
	assert.Contains(t, stdout.String(), "[tool] Bash         ls")
	assert.NotContains(t, stdout.String(), `"result":"done"`)
	assert.Contains(t, stderr.String(), "agentstep: success")

	outputs := readString(t, filepath.Join(dir, "github_output"))
	assert.Contains(t, outputs, "conclusion=success\n")
	assert.Contains(t, outputs, "session_id=s-1\n")
	assert.Contains(t, outputs, "execution_file="+filepath.Join(dir, "exec.json")+"\n")
	assert.NotContains(t, outputs, "structured_output")

	entries, err := os.ReadDir(history)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRunMain_Failure(t *testing.T) {
	dir := project(t, failStream)
	cmd, _, stderr := newTestCommand()

	err := runMain(context.Background(), cmd, &runFlags{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max turns reached")
	assert.Contains(t, stderr.String(), "agentstep: failure")

	outputs := readString(t, filepath.Join(dir, "github_output"))
	assert.Contains(t, outputs, "conclusion=failure\n")
	assert.Contains(t, outputs, "session_id=s-2\n")
}

func TestRunMain_NoPrompt(t *testing.T) {
	project(t, okStream)
	t.Setenv("INPUT_PROMPT_FILE", "")
	cmd, _, _ := newTestCommand()

	err := runMain(context.Background(), cmd, &runFlags{})
	assert.ErrorContains(t, err, "no prompt file")
}

func TestApplyFlags(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().Bool("full-output", false, "")
	require.NoError(t, cmd.Flags().Set("full-output", "true"))

	cfg := &config.Config{PromptFile: "a.txt", Model: "opus"}
	applyFlags(cfg, cmd, &runFlags{
		promptFile: "b.txt",
		fullOutput: true,
		timeout:    30 * time.Minute,
		execFile:   "/tmp/out.json",
	})
	assert.Equal(t, "b.txt", cfg.PromptFile)
	assert.Equal(t, "opus", cfg.Model)
	assert.True(t, cfg.ShowFullOutput)
	assert.Equal(t, 30*time.Minute, cfg.Timeout())
	assert.Equal(t, "/tmp/out.json", cfg.ExecutionFile)
}

func TestPublishOutputs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output")
	run := &report.Run{
		Conclusion:       "success",
		SessionID:        "s-9",
		StructuredOutput: `{"ok":true}`,
	}
	require.NoError(t, publishOutputs(&ghaction.Outputs{Path: path}, run))
	assert.Equal(t, "conclusion=success\nsession_id=s-9\nstructured_output={\"ok\":true}\n", readString(t, path))
}

func TestFormatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exec.json")
	records := "[" + strings.Join(strings.Split(strings.TrimSpace(okStream), "\n"), ",") + "]"
	require.NoError(t, os.WriteFile(path, []byte(records), 0o644))

	var compact bytes.Buffer
	require.NoError(t, formatFile(&compact, path, false))
	assert.Contains(t, compact.String(), "\n[tool] Bash         ls\n")
	assert.Contains(t, compact.String(), `"subtype": "success"`)
	assert.NotContains(t, compact.String(), "done")

	var full bytes.Buffer
	require.NoError(t, formatFile(&full, path, true))
	assert.Contains(t, full.String(), `"result": "done"`)
}

func TestFormatFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exec.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))
	assert.ErrorContains(t, formatFile(io.Discard, path, false), "parsing execution file")
	assert.ErrorContains(t, formatFile(io.Discard, filepath.Join(t.TempDir(), "missing"), false), "reading execution file")
}

func TestInspectRun(t *testing.T) {
	dir := project(t, okStream)
	cmd, _, _ := newTestCommand()
	require.NoError(t, runMain(context.Background(), cmd, &runFlags{historyDir: filepath.Join(dir, "history")}))

	entries, err := os.ReadDir(filepath.Join(dir, "history"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	id := strings.TrimSuffix(entries[0].Name(), ".json")

	var out bytes.Buffer
	require.NoError(t, inspectRun(&out, report.NewDiskStore(filepath.Join(dir, "history")), id, "tool:Bash"))
	assert.Equal(t, "Run: "+id+" (success)\n#1 [tool] Bash         ls\n", out.String())

	assert.Error(t, inspectRun(&out, report.NewDiskStore(t.TempDir()), "missing", ""))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	t.Cleanup(func() { versionCmd.SetOut(nil) })
	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, agentstep.Version+"\n", out.String())
}
