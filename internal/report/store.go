// Package report persists agent runs and answers queries about their
// transcripts. Runs are stored as typed structs and can be filtered by
// record type or tool name.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deixis/agentstep/internal/driver"
	"github.com/deixis/agentstep/internal/format"
	"github.com/deixis/agentstep/internal/message"
)

// Store persists and retrieves runs.
type Store interface {
	Save(run *Run) error
	Load(runID string) (*Run, error)
}

// Run holds the outcome and transcript of one agent run.
type Run struct {
	ID               string           `json:"id"`
	Prompt           string           `json:"prompt"`
	StartedAt        time.Time        `json:"started_at"`
	Conclusion       string           `json:"conclusion"`
	SessionID        string           `json:"session_id,omitempty"`
	ExecutionFile    string           `json:"execution_file,omitempty"`
	StructuredOutput string           `json:"structured_output,omitempty"`
	Error            string           `json:"error,omitempty"`
	Records          []message.Record `json:"records"`
}

// NewRun records the outcome of driver.Run. Exactly one of res and err
// is expected to be non-nil.
func NewRun(id, prompt string, started time.Time, res *driver.Result, err error) *Run {
	run := &Run{ID: id, Prompt: prompt, StartedAt: started}
	if res != nil {
		run.Conclusion = string(res.Conclusion)
		run.SessionID = res.SessionID
		run.ExecutionFile = res.ExecutionFile
		run.StructuredOutput = res.StructuredOutput
		run.Records = res.Records
	}
	if err != nil {
		run.Conclusion = string(driver.Failure)
		run.Error = err.Error()
		var runErr *driver.RunError
		if errors.As(err, &runErr) {
			run.SessionID = runErr.SessionID
			run.ExecutionFile = runErr.ExecutionFile
			run.Records = runErr.Records
		}
	}
	return run
}

// Entry is one loggable item of a transcript: a tool call, a text
// item, or a whole non-assistant record.
type Entry struct {
	Index int    // position of the record in the transcript
	Type  string // record type
	Tool  string // tool name for tool calls
	Text  string // compact rendering
}

// Entries flattens the run's transcript into compact entries.
func Entries(run *Run) []Entry {
	var out []Entry
	for i, r := range run.Records {
		if r.Type != message.TypeAssistant {
			out = append(out, Entry{Index: i, Type: r.Type, Text: recordLabel(r)})
			continue
		}
		for _, b := range r.Blocks() {
			switch b.Type {
			case message.BlockToolUse:
				out = append(out, Entry{Index: i, Type: r.Type, Tool: b.Name, Text: format.ToolLine(b.Name, b.Input)})
			case message.BlockText:
				if text := format.CollapseSpace(b.Text); text != "" {
					out = append(out, Entry{Index: i, Type: r.Type, Text: "[text] " + format.Truncate(text, format.MaxText)})
				}
			}
		}
	}
	return out
}

// Filter returns the entries matching filter. A filter of the form
// "tool:<name>" matches tool calls by name; any other value matches
// record types. An empty filter matches everything.
func Filter(run *Run, filter string) []Entry {
	all := Entries(run)
	if filter == "" {
		return all
	}

	tool, isTool := strings.CutPrefix(filter, "tool:")
	var out []Entry
	for _, e := range all {
		if isTool {
			if e.Tool != "" && strings.EqualFold(e.Tool, tool) {
				out = append(out, e)
			}
			continue
		}
		if e.Type == filter {
			out = append(out, e)
		}
	}
	return out
}

// ToolCounts returns the number of calls per tool name.
func ToolCounts(run *Run) map[string]int {
	counts := make(map[string]int)
	for _, e := range Entries(run) {
		if e.Tool != "" {
			counts[e.Tool]++
		}
	}
	return counts
}

func recordLabel(r message.Record) string {
	label := "[" + r.Type
	if r.Subtype != "" {
		label += "/" + r.Subtype
	}
	label += "]"

	switch {
	case r.IsResult():
		label += fmt.Sprintf(" turns=%d cost_usd=%.4f", r.NumTurns, r.TotalCostUSD)
		if len(r.Errors) > 0 {
			label += " errors=" + strings.Join(r.Errors, "; ")
		}
	case r.IsInit() && r.Model != "":
		label += " model=" + r.Model
	case r.Type == message.TypeUser:
		label += fmt.Sprintf(" %d content item(s)", len(r.Blocks()))
	}
	return label
}

// decodeRun is shared by the stores that read JSON.
func decodeRun(data []byte) (*Run, error) {
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, err
	}
	return &run, nil
}
