// Package ghaction publishes step outputs to a GitHub Actions runner.
package ghaction

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// OutputEnv names the file the runner reads step outputs from.
const OutputEnv = "GITHUB_OUTPUT"

// Outputs appends name/value pairs to the runner's output file.
// With an empty Path, Set is a no-op so local runs need no runner.
type Outputs struct {
	Path string
}

// FromEnv returns Outputs bound to $GITHUB_OUTPUT.
func FromEnv() *Outputs {
	return &Outputs{Path: os.Getenv(OutputEnv)}
}

// Set records a single output. Multi-line values are written with a
// random heredoc delimiter.
func (o *Outputs) Set(name, value string) error {
	if o == nil || o.Path == "" {
		return nil
	}
	if name == "" || strings.ContainsAny(name, "=\n") {
		return fmt.Errorf("invalid output name %q", name)
	}

	f, err := os.OpenFile(o.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", OutputEnv, err)
	}
	defer f.Close()

	if _, err := f.WriteString(encode(name, value)); err != nil {
		return fmt.Errorf("writing output %s: %w", name, err)
	}
	return nil
}

// SetAll records outputs in order, skipping empty values.
func (o *Outputs) SetAll(pairs ...[2]string) error {
	for _, p := range pairs {
		if p[1] == "" {
			continue
		}
		if err := o.Set(p[0], p[1]); err != nil {
			return err
		}
	}
	return nil
}

func encode(name, value string) string {
	if !strings.ContainsAny(value, "\r\n") {
		return name + "=" + value + "\n"
	}
	delim := "ghadelimiter_" + uuid.New().String()
	return fmt.Sprintf("%s<<%s\n%s\n%s\n", name, delim, value, delim)
}
