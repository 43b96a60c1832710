package agent

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// DefaultBinary is the agent CLI looked up on PATH.
const DefaultBinary = "claude"

// binaryInfo holds install metadata for a known agent CLI.
type binaryInfo struct {
	Install string
	Docs    string
}

var knownBinaries = map[string]binaryInfo{
	"claude": {
		Install: "npm install -g @anthropic-ai/claude-code",
		Docs:    "https://docs.anthropic.com/en/docs/claude-code/setup",
	},
}

// ErrBinaryUnavailable is returned when the agent CLI cannot be found.
// It includes install instructions when the binary is known.
type ErrBinaryUnavailable struct {
	Name string
	Info *binaryInfo
}

// NewErrBinaryUnavailable builds the error for name.
func NewErrBinaryUnavailable(name string) ErrBinaryUnavailable {
	e := ErrBinaryUnavailable{Name: name}
	if info, ok := knownBinaries[name]; ok {
		e.Info = &info
	}
	return e
}

func (e ErrBinaryUnavailable) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s is required but not installed.", e.Name)
	if e.Info == nil {
		return b.String()
	}
	fmt.Fprintf(&b, "\n\nInstall:\n  %s", e.Info.Install)
	if e.Info.Docs != "" {
		fmt.Fprintf(&b, "\nSee %s", e.Info.Docs)
	}
	return b.String()
}

// ResolveBinary returns the argv prefix for the agent CLI. An explicit
// path must exist; otherwise DefaultBinary is looked up on PATH.
func ResolveBinary(path string) ([]string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("agent executable %q: %w", path, err)
		}
		return []string{path}, nil
	}
	found, err := exec.LookPath(DefaultBinary)
	if err != nil {
		return nil, NewErrBinaryUnavailable(DefaultBinary)
	}
	return []string{found}, nil
}
