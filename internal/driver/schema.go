package driver

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/deixis/agentstep/internal/message"
)

// Schema is a resolved JSON schema for the run's structured output.
type Schema struct {
	Source   string // schema text as passed to the agent
	resolved *jsonschema.Resolved
}

// ParseSchema parses and resolves a JSON schema.
func ParseSchema(text string) (*Schema, error) {
	var s jsonschema.Schema
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return nil, fmt.Errorf("parsing json schema: %w", err)
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolving json schema: %w", err)
	}
	return &Schema{Source: text, resolved: resolved}, nil
}

// Check returns the result's structured output as JSON. It fails when
// the output is missing or does not satisfy the schema.
func (s *Schema) Check(r message.Record) (string, error) {
	if !r.HasStructuredOutput() {
		return "", fmt.Errorf("json schema was provided but the agent returned no structured output")
	}
	var v any
	if err := json.Unmarshal(r.StructuredOutput, &v); err != nil {
		return "", fmt.Errorf("decoding structured output: %w", err)
	}
	if err := s.resolved.Validate(v); err != nil {
		return "", fmt.Errorf("structured output does not match json schema: %w", err)
	}
	var out bytes.Buffer
	if err := json.Compact(&out, r.StructuredOutput); err != nil {
		return "", fmt.Errorf("encoding structured output: %w", err)
	}
	return out.String(), nil
}
