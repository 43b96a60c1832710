package format

import (
	"bytes"
	"encoding/json"
	"strings"
)

// toolInput is the union of the input fields the summaries read.
type toolInput struct {
	FilePath     string     `json:"file_path"`
	NotebookPath string     `json:"notebook_path"`
	Command      string     `json:"command"`
	Pattern      string     `json:"pattern"`
	Path         string     `json:"path"`
	Description  string     `json:"description"`
	SubagentType string     `json:"subagent_type"`
	URL          string     `json:"url"`
	Query        string     `json:"query"`
	Patch        string     `json:"patch"`
	Input        string     `json:"input"`
	Todos        []todoItem `json:"todos"`
}

type todoItem struct {
	Content    string `json:"content"`
	ActiveForm string `json:"activeForm"`
	Status     string `json:"status"`
}

type summarizer func(in toolInput, raw json.RawMessage) string

// toolSummaries maps tool names to the parameter summary logged for them.
var toolSummaries = map[string]summarizer{
	"Read":         filePath,
	"Write":        filePath,
	"Edit":         filePath,
	"MultiEdit":    filePath,
	"NotebookRead": notebookPath,
	"NotebookEdit": notebookPath,
	"Bash":         func(in toolInput, _ json.RawMessage) string { return Truncate(CollapseSpace(in.Command), MaxCommand) },
	"Glob":         func(in toolInput, _ json.RawMessage) string { return in.Pattern },
	"Grep":         grep,
	"Task":         task,
	"TodoWrite":    todo,
	"WebFetch":     func(in toolInput, _ json.RawMessage) string { return in.URL },
	"WebSearch":    func(in toolInput, _ json.RawMessage) string { return in.Query },
	"apply_patch":  patch,
}

// ToolSummary returns the one-line parameter summary for a tool call.
// Unknown tools fall back to their input JSON, truncated.
func ToolSummary(name string, raw json.RawMessage) string {
	var in toolInput
	decodeErr := json.Unmarshal(raw, &in)

	fn, ok := toolSummaries[name]
	if !ok || decodeErr != nil {
		return fallback(raw)
	}
	return fn(in, raw)
}

func filePath(in toolInput, _ json.RawMessage) string {
	return in.FilePath
}

func notebookPath(in toolInput, _ json.RawMessage) string {
	if in.NotebookPath != "" {
		return in.NotebookPath
	}
	return in.FilePath
}

func grep(in toolInput, _ json.RawMessage) string {
	if in.Path == "" {
		return in.Pattern
	}
	return in.Pattern + " in " + in.Path
}

func task(in toolInput, _ json.RawMessage) string {
	switch {
	case in.SubagentType != "" && in.Description != "":
		return in.SubagentType + ": " + in.Description
	case in.SubagentType != "":
		return in.SubagentType
	default:
		return in.Description
	}
}

func todo(in toolInput, _ json.RawMessage) string {
	for _, t := range in.Todos {
		if t.Status != "in_progress" {
			continue
		}
		if t.ActiveForm != "" {
			return Truncate(CollapseSpace(t.ActiveForm), MaxText)
		}
		return Truncate(CollapseSpace(t.Content), MaxText)
	}
	return ""
}

// patch lists the files touched by an apply_patch envelope.
func patch(in toolInput, _ json.RawMessage) string {
	text := in.Patch
	if text == "" {
		text = in.Input
	}
	if files := PatchFiles(text); len(files) > 0 {
		return strings.Join(files, ", ")
	}
	return Truncate(CollapseSpace(text), MaxPatch)
}

var patchFileMarkers = []string{"*** Add File: ", "*** Update File: ", "*** Delete File: "}

// PatchFiles returns the file names declared in a patch, in order.
func PatchFiles(text string) []string {
	var files []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		for _, marker := range patchFileMarkers {
			if name, ok := strings.CutPrefix(line, marker); ok && name != "" {
				files = append(files, strings.TrimSpace(name))
				break
			}
		}
	}
	return files
}

func fallback(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var b bytes.Buffer
	if err := json.Compact(&b, raw); err != nil {
		return Truncate(string(raw), MaxCommand)
	}
	s := b.String()
	if s == "{}" || s == "null" {
		return ""
	}
	return Truncate(s, MaxCommand)
}
