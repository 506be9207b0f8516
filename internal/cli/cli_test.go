package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("defaults with positional path", func(t *testing.T) {
		var out bytes.Buffer
		cfg, exit, err := Parse([]string{"pipeline.hcl"}, &out)
		require.NoError(t, err)
		require.False(t, exit)

		assert.Equal(t, "pipeline.hcl", cfg.PipelinePath)
		assert.Equal(t, "push", cfg.Event)
		assert.Equal(t, "json", cfg.LogFormat)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, 4, cfg.WorkerCount)
		assert.False(t, cfg.Wait)
	})

	t.Run("pipeline flag wins over positional", func(t *testing.T) {
		var out bytes.Buffer
		cfg, _, err := Parse([]string{"-pipeline", "a.hcl", "b.hcl"}, &out)
		require.NoError(t, err)
		assert.Equal(t, "a.hcl", cfg.PipelinePath)
	})

	t.Run("shorthand flag", func(t *testing.T) {
		var out bytes.Buffer
		cfg, _, err := Parse([]string{"-p", "a.yaml"}, &out)
		require.NoError(t, err)
		assert.Equal(t, "a.yaml", cfg.PipelinePath)
	})

	t.Run("full option set", func(t *testing.T) {
		var out bytes.Buffer
		cfg, _, err := Parse([]string{
			"-event", "schedule",
			"-wait",
			"-revision", "abc123",
			"-workers", "12",
			"-log-format", "text",
			"-log-level", "debug",
			"-healthcheck-port", "8080",
			"pipeline.hcl",
		}, &out)
		require.NoError(t, err)

		assert.Equal(t, "schedule", cfg.Event)
		assert.True(t, cfg.Wait)
		assert.Equal(t, "abc123", cfg.Revision)
		assert.Equal(t, 12, cfg.WorkerCount)
		assert.Equal(t, "text", cfg.LogFormat)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 8080, cfg.HealthcheckPort)
	})

	t.Run("no path prints usage and exits cleanly", func(t *testing.T) {
		var out bytes.Buffer
		cfg, exit, err := Parse(nil, &out)
		require.NoError(t, err)
		assert.True(t, exit)
		assert.Nil(t, cfg)
		assert.Contains(t, out.String(), "Usage:")
	})

	t.Run("invalid event", func(t *testing.T) {
		var out bytes.Buffer
		_, _, err := Parse([]string{"-event", "merge_group", "pipeline.hcl"}, &out)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 2, exitErr.Code)
		assert.Contains(t, exitErr.Message, "invalid event")
	})

	t.Run("wait without schedule event", func(t *testing.T) {
		var out bytes.Buffer
		_, _, err := Parse([]string{"-wait", "pipeline.hcl"}, &out)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Contains(t, exitErr.Message, "-wait")
	})

	t.Run("invalid log format", func(t *testing.T) {
		var out bytes.Buffer
		_, _, err := Parse([]string{"-log-format", "xml", "pipeline.hcl"}, &out)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 2, exitErr.Code)
	})

	t.Run("invalid log level", func(t *testing.T) {
		var out bytes.Buffer
		_, _, err := Parse([]string{"-log-level", "trace", "pipeline.hcl"}, &out)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 2, exitErr.Code)
	})
}
