package driver

import (
	"fmt"

	"github.com/deixis/agentstep/internal/agent"
	"github.com/deixis/agentstep/internal/config"
)

// OptionsFromConfig builds run options from a validated configuration.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	opts := Options{
		Agent: agent.Options{
			Model:              cfg.Model,
			FallbackModel:      cfg.FallbackModel,
			MaxTurns:           cfg.MaxTurns,
			AllowedTools:       cfg.AllowedTools,
			DisallowedTools:    cfg.DisallowedTools,
			SystemPrompt:       cfg.SystemPrompt,
			AppendSystemPrompt: cfg.AppendSystemPrompt,
			MCPConfig:          cfg.MCPConfig,
			Settings:           cfg.Settings,
			PermissionMode:     cfg.PermissionMode,
			JSONSchema:         cfg.JSONSchema,
			ExtraArgs:          cfg.ClaudeArgs,
			Cwd:                cfg.WorkingDirectory,
			Env:                cfg.ClaudeEnv,
		},
		ShowFullOutput: cfg.ShowFullOutput,
	}
	if cfg.JSONSchema != "" {
		schema, err := ParseSchema(cfg.JSONSchema)
		if err != nil {
			return Options{}, fmt.Errorf("json_schema: %w", err)
		}
		opts.Schema = schema
	}
	return opts, nil
}
