// Package format turns agent event records into log lines.
//
// Compact mode is the default for CI logs: it prints one short line per
// tool call or text item and a sanitised summary for init and result
// records, so tool inputs, file contents and session metadata never
// reach the log in full. Full mode prints each record verbatim.
package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/deixis/agentstep/internal/message"
)

// Field length caps.
const (
	MaxCommand  = 200 // shell commands and JSON fallbacks
	MaxText     = 300 // free text from the assistant
	MaxPatch    = 100 // patch text when no file names are found
	toolNamePad = 12
)

// Ellipsis marks a truncated value.
const Ellipsis = "..."

// Record renders r for the log. An empty string means nothing should be
// logged for this record.
func Record(r message.Record, full bool) string {
	if full {
		return Full(r)
	}
	switch {
	case r.IsInit():
		return initSummary(r)
	case r.IsResult():
		return resultSummary(r)
	case r.Type == message.TypeAssistant:
		return strings.Join(AssistantLines(r), "\n")
	default:
		return ""
	}
}

// Full returns the verbatim record, indented.
func Full(r message.Record) string {
	data, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	var b bytes.Buffer
	if err := json.Indent(&b, data, "", "  "); err != nil {
		return string(data)
	}
	return b.String()
}

func initSummary(r message.Record) string {
	model := r.Model
	if model == "" {
		model = "unknown"
	}
	return indent(struct {
		Type    string `json:"type"`
		Subtype string `json:"subtype"`
		Message string `json:"message"`
		Model   string `json:"model"`
	}{message.TypeSystem, message.SubtypeInit, "Claude Code initialized", model})
}

// resultFields is the whitelist of result keys that may be logged.
// Values are copied as raw JSON so absent keys stay absent.
type resultFields struct {
	Type              json.RawMessage `json:"type,omitempty"`
	Subtype           json.RawMessage `json:"subtype,omitempty"`
	IsError           json.RawMessage `json:"is_error,omitempty"`
	DurationMS        json.RawMessage `json:"duration_ms,omitempty"`
	NumTurns          json.RawMessage `json:"num_turns,omitempty"`
	TotalCostUSD      json.RawMessage `json:"total_cost_usd,omitempty"`
	PermissionDenials json.RawMessage `json:"permission_denials,omitempty"`
}

func resultSummary(r message.Record) string {
	fields, err := r.Fields()
	if err != nil {
		return indent(resultFields{Type: json.RawMessage(`"result"`)})
	}
	return indent(resultFields{
		Type:              fields["type"],
		Subtype:           fields["subtype"],
		IsError:           fields["is_error"],
		DurationMS:        fields["duration_ms"],
		NumTurns:          fields["num_turns"],
		TotalCostUSD:      fields["total_cost_usd"],
		PermissionDenials: fields["permission_denials"],
	})
}

// AssistantLines returns one line per tool call or non-empty text item
// in an assistant record.
func AssistantLines(r message.Record) []string {
	var lines []string
	for _, b := range r.Blocks() {
		switch b.Type {
		case message.BlockToolUse:
			lines = append(lines, ToolLine(b.Name, b.Input))
		case message.BlockText:
			if text := CollapseSpace(b.Text); text != "" {
				lines = append(lines, "[text] "+Truncate(text, MaxText))
			}
		}
	}
	return lines
}

// ToolLine renders a single tool call.
func ToolLine(name string, input json.RawMessage) string {
	summary := ToolSummary(name, input)
	if summary == "" {
		return "[tool] " + name
	}
	return fmt.Sprintf("[tool] %-*s %s", toolNamePad, name, summary)
}

// CollapseSpace replaces runs of whitespace with a single space and
// trims the ends.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts s to max characters and appends Ellipsis. Strings at
// or under max characters are returned unchanged.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + Ellipsis
}

func indent(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}
