// Package agent runs the Claude Code CLI headlessly and exposes its
// stream-json output as a sequence of event records.
package agent

import (
	"context"
	"iter"
	"log/slog"
	"strings"

	"github.com/deixis/agentstep/internal/message"
	"github.com/deixis/agentstep/internal/prompt"
)

// Client starts an agent run and streams its records. The sequence ends
// after the last record; an error, if any, is yielded last.
type Client interface {
	Query(ctx context.Context, in *prompt.Input, opts Options) iter.Seq2[message.Record, error]
}

// Options configures a single agent run.
type Options struct {
	Model              string
	FallbackModel      string
	MaxTurns           int
	AllowedTools       []string
	DisallowedTools    []string
	SystemPrompt       string
	AppendSystemPrompt string
	MCPConfig          string // path or inline JSON
	Settings           string // path or inline JSON
	PermissionMode     string
	JSONSchema         string // structured output schema, inline JSON
	ExtraArgs          []string
	Cwd                string            // relative to the runner workspace
	Env                map[string]string // never logged
}

// LogValue reports the options without secrets: prompts and the schema
// are reduced to presence flags and the environment to its size.
func (o Options) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("model", o.Model),
		slog.Int("max_turns", o.MaxTurns),
		slog.String("allowed_tools", strings.Join(o.AllowedTools, ",")),
		slog.String("disallowed_tools", strings.Join(o.DisallowedTools, ",")),
		slog.Bool("system_prompt", o.SystemPrompt != ""),
		slog.Bool("append_system_prompt", o.AppendSystemPrompt != ""),
		slog.Bool("mcp_config", o.MCPConfig != ""),
		slog.Bool("json_schema", o.JSONSchema != ""),
		slog.Int("env_vars", len(o.Env)),
	}
	if o.FallbackModel != "" {
		attrs = append(attrs, slog.String("fallback_model", o.FallbackModel))
	}
	if o.PermissionMode != "" {
		attrs = append(attrs, slog.String("permission_mode", o.PermissionMode))
	}
	return slog.GroupValue(attrs...)
}
