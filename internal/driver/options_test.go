package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deixis/agentstep/internal/config"
)

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{
		Model:            "sonnet",
		MaxTurns:         4,
		AllowedTools:     []string{"Bash", "Read"},
		ClaudeArgs:       []string{"--debug"},
		ClaudeEnv:        config.EnvMap{"TOKEN": "x"},
		WorkingDirectory: "sub",
		ShowFullOutput:   true,
		JSONSchema:       reviewSchema,
	}

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "sonnet", opts.Agent.Model)
	assert.Equal(t, 4, opts.Agent.MaxTurns)
	assert.Equal(t, []string{"--debug"}, opts.Agent.ExtraArgs)
	assert.Equal(t, "sub", opts.Agent.Cwd)
	assert.Equal(t, map[string]string{"TOKEN": "x"}, opts.Agent.Env)
	assert.True(t, opts.ShowFullOutput)
	require.NotNil(t, opts.Schema)
	assert.Equal(t, reviewSchema, opts.Schema.Source)
}

func TestOptionsFromConfig_NoSchema(t *testing.T) {
	opts, err := OptionsFromConfig(&config.Config{})
	require.NoError(t, err)
	assert.Nil(t, opts.Schema)
}

func TestOptionsFromConfig_BadSchema(t *testing.T) {
	_, err := OptionsFromConfig(&config.Config{JSONSchema: "{not json"})
	assert.ErrorContains(t, err, "json_schema")
}
