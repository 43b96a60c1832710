// Package config loads the optional .agentstep YAML file and applies
// CI input overrides from the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up at the repository root.
const FileName = ".agentstep"

// Default values for runner configuration.
const (
	DefaultMaxOutput = 1 << 20 // 1 MB of agent stderr
)

// Config holds the parsed .agentstep configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version            int      `yaml:"version"`
	PromptFile         string   `yaml:"prompt_file"`
	Model              string   `yaml:"model"`
	FallbackModel      string   `yaml:"fallback_model"`
	MaxTurns           int      `yaml:"max_turns"`
	AllowedTools       []string `yaml:"allowed_tools"`
	DisallowedTools    []string `yaml:"disallowed_tools"`
	SystemPrompt       string   `yaml:"system_prompt"`
	AppendSystemPrompt string   `yaml:"append_system_prompt"`
	MCPConfig          string   `yaml:"mcp_config"`      // path or inline JSON
	Settings           string   `yaml:"settings"`        // path or inline JSON
	PermissionMode     string   `yaml:"permission_mode"` // default, acceptEdits, bypassPermissions, plan
	JSONSchema         string   `yaml:"json_schema"`     // requires structured output when set
	ClaudeArgs         []string `yaml:"claude_args"`     // extra CLI arguments, one per entry
	ClaudeEnv          EnvMap   `yaml:"claude_env"`      // never logged
	Executable         string   `yaml:"path_to_claude_code_executable"`
	WorkingDirectory   string   `yaml:"working_directory"` // relative to the repository root
	ShowFullOutput     bool     `yaml:"show_full_output"`
	ExecutionFile      string   `yaml:"execution_file"`
	RawTimeout         string   `yaml:"timeout"`    // e.g. "30m"; empty means no timeout
	RawMaxOutput       int      `yaml:"max_output"` // bytes
}

// Timeout returns the configured timeout, or zero for none.
func (c *Config) Timeout() time.Duration {
	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err == nil && d > 0 {
			return d
		}
	}
	return 0
}

// MaxOutputBytes returns the configured max output size or the default.
func (c *Config) MaxOutputBytes() int {
	if c.RawMaxOutput > 0 {
		return c.RawMaxOutput
	}
	return DefaultMaxOutput
}

var permissionModes = map[string]bool{
	"":                  true,
	"default":           true,
	"acceptEdits":       true,
	"bypassPermissions": true,
	"plan":              true,
}

// Validate reports configuration that cannot produce a valid run.
func (c *Config) Validate() error {
	if c.MaxTurns < 0 {
		return fmt.Errorf("max_turns must not be negative, got %d", c.MaxTurns)
	}
	if !permissionModes[c.PermissionMode] {
		return fmt.Errorf("unknown permission_mode %q", c.PermissionMode)
	}
	if c.RawTimeout != "" {
		if d, err := time.ParseDuration(c.RawTimeout); err != nil || d <= 0 {
			return fmt.Errorf("invalid timeout %q", c.RawTimeout)
		}
	}
	if c.JSONSchema != "" && !json.Valid([]byte(c.JSONSchema)) {
		return fmt.Errorf("json_schema is not valid JSON")
	}
	return nil
}

// EnvMap holds environment variables for the agent process. In YAML it
// is either a mapping or a block of "KEY: value" lines.
type EnvMap map[string]string

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *EnvMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		parsed, err := ParseEnvBlock(node.Value)
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	}
	var raw map[string]string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("claude_env: %w", err)
	}
	*m = raw
	return nil
}

// ParseEnvBlock parses "KEY: value" lines. Blank lines and # comments
// are ignored.
func ParseEnvBlock(s string) (EnvMap, error) {
	if strings.TrimSpace(s) == "" {
		return EnvMap{}, nil
	}
	var raw map[string]string
	if err := yaml.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("parsing claude_env: %w", err)
	}
	out := make(EnvMap, len(raw))
	for k, v := range raw {
		if k = strings.TrimSpace(k); k != "" {
			out[k] = v
		}
	}
	return out, nil
}

// LoadResult holds the parsed config and the discovered repository root.
type LoadResult struct {
	Config   *Config
	RepoRoot string // directory containing .git or go.mod; falls back to workspace
}

// Load reads the .agentstep file from the repository root.
// The repository root is discovered by walking upward from workspace
// looking for .git or go.mod. If no .agentstep file exists, a default
// Config is returned.
func Load(workspace string) (*LoadResult, error) {
	root, err := findRepoRoot(workspace)
	if err != nil {
		root = workspace
	}

	cfg, err := LoadFile(filepath.Join(root, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return &LoadResult{Config: &Config{}, RepoRoot: root}, nil
		}
		return nil, err
	}
	return &LoadResult{Config: cfg, RepoRoot: root}, nil
}

// LoadFile parses the configuration at path. A missing file is
// reported as an os.IsNotExist error.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// findRepoRoot walks upward from dir looking for a repository marker.
func findRepoRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		for _, marker := range []string{".git", "go.mod"} {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("repository root not found")
		}
		dir = parent
	}
}

// ApplyInputs overrides fields from CI step inputs, exposed by the
// runner as INPUT_<NAME> environment variables. Empty inputs are ignored.
func (c *Config) ApplyInputs(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup("INPUT_" + name)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return strings.TrimSpace(v), true
	}
	str := func(name string, dst *string) {
		if v, ok := get(name); ok {
			*dst = v
		}
	}

	str("PROMPT_FILE", &c.PromptFile)
	str("MODEL", &c.Model)
	str("FALLBACK_MODEL", &c.FallbackModel)
	str("SYSTEM_PROMPT", &c.SystemPrompt)
	str("APPEND_SYSTEM_PROMPT", &c.AppendSystemPrompt)
	str("MCP_CONFIG", &c.MCPConfig)
	str("SETTINGS", &c.Settings)
	str("PERMISSION_MODE", &c.PermissionMode)
	str("JSON_SCHEMA", &c.JSONSchema)
	str("PATH_TO_CLAUDE_CODE_EXECUTABLE", &c.Executable)
	str("WORKING_DIRECTORY", &c.WorkingDirectory)
	str("EXECUTION_FILE", &c.ExecutionFile)

	if v, ok := get("MAX_TURNS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("INPUT_MAX_TURNS: %w", err)
		}
		c.MaxTurns = n
	}
	if v, ok := get("TIMEOUT_MINUTES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("INPUT_TIMEOUT_MINUTES: %w", err)
		}
		c.RawTimeout = (time.Duration(n) * time.Minute).String()
	}
	if v, ok := get("SHOW_FULL_OUTPUT"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("INPUT_SHOW_FULL_OUTPUT: %w", err)
		}
		c.ShowFullOutput = b
	}
	if v, ok := get("ALLOWED_TOOLS"); ok {
		c.AllowedTools = SplitList(v)
	}
	if v, ok := get("DISALLOWED_TOOLS"); ok {
		c.DisallowedTools = SplitList(v)
	}
	if v, ok := get("CLAUDE_ARGS"); ok {
		c.ClaudeArgs = splitLines(v)
	}
	if v, ok := get("CLAUDE_ENV"); ok {
		env, err := ParseEnvBlock(v)
		if err != nil {
			return fmt.Errorf("INPUT_CLAUDE_ENV: %w", err)
		}
		if c.ClaudeEnv == nil {
			c.ClaudeEnv = EnvMap{}
		}
		for k, val := range env {
			c.ClaudeEnv[k] = val
		}
	}
	return nil
}

// SplitList splits a comma- or newline-separated list, dropping blanks.
func SplitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
