package yamlcfg

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/verigrid/verigrid/internal/config"
)

const referencePipeline = `
name: mail-dedup
source: https://example.com/mail-dedup.git

on:
  push: true
  pull_request: true
  schedule: "0 4 * * 1"

matrix:
  os: [ubuntu-18.04, ubuntu-20.04, macos-10.15, macos-11.0, windows-2019]
  interpreter: ["3.7", "3.8", "3.9", "3.10"]

checkout:
  depth: 1

setup:
  command: python${matrix.interpreter}

install:
  packaging_tool: ["python${matrix.interpreter}", "-m", "pip", "install", "--upgrade", "pip"]
  manager: ["python${matrix.interpreter}", "-m", "pip", "install", "poetry"]
  dependencies: ["poetry", "install"]

test:
  command: ["poetry", "run", "pytest", "--cov", "--cov-report=xml"]
  config_file: .coveragerc
  report_path: coverage.xml

coverage:
  format: cobertura
  upload_url: https://coverage.example.com/api/v1/reports
`

func load(t *testing.T, content string) (*config.Pipeline, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return NewLoader().Load(context.Background(), path)
}

func evalCtx(os, interpreter string) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"matrix": cty.ObjectVal(map[string]cty.Value{
				"os":          cty.StringVal(os),
				"interpreter": cty.StringVal(interpreter),
			}),
		},
	}
}

func TestLoad(t *testing.T) {
	p, err := load(t, referencePipeline)
	require.NoError(t, err)

	assert.Equal(t, "mail-dedup", p.Name)
	assert.Equal(t, "https://example.com/mail-dedup.git", p.Source)
	assert.True(t, p.Triggers.Push)
	assert.True(t, p.Triggers.PullRequest)
	assert.Equal(t, "0 4 * * 1", p.Triggers.Schedule)
	assert.Len(t, p.Matrix.OS, 5)
	assert.Len(t, p.Matrix.Interpreters, 4)
	assert.Equal(t, 1, p.Checkout.Depth)
	assert.Equal(t, ".coveragerc", p.Test.ConfigFile)
	assert.Equal(t, "cobertura", p.Coverage.Format)
}

// YAML command strings interpolate matrix variables the same way HCL does.
func TestLoadInterpolation(t *testing.T) {
	p, err := load(t, referencePipeline)
	require.NoError(t, err)

	setup, err := config.Argv(p.Setup.Command, evalCtx("windows-2019", "3.10"))
	require.NoError(t, err)
	assert.Equal(t, []string{"python3.10"}, setup)

	manager, err := config.Argv(p.Install.Manager, evalCtx("ubuntu-18.04", "3.7"))
	require.NoError(t, err)
	assert.Equal(t, []string{"python3.7", "-m", "pip", "install", "poetry"}, manager)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := NewLoader().Load(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "reading")
	})

	t.Run("unknown key rejected", func(t *testing.T) {
		_, err := load(t, referencePipeline+"\nunknown_key: true\n")
		assert.ErrorContains(t, err, "decoding")
	})

	t.Run("missing command fails validation", func(t *testing.T) {
		broken := `
name: x
source: https://example.com/x.git
on:
  push: true
matrix:
  os: [linux]
  interpreter: ["3.9"]
setup:
  command: python3.9
install:
  packaging_tool: ["a"]
  manager: ["b"]
  dependencies: ["c"]
`
		_, err := load(t, broken)
		assert.ErrorContains(t, err, "test block")
	})

	t.Run("bad template", func(t *testing.T) {
		broken := `
name: x
source: https://example.com/x.git
on:
  push: true
matrix:
  os: [linux]
  interpreter: ["3.9"]
setup:
  command: "python${matrix.interpreter"
install:
  packaging_tool: ["a"]
  manager: ["b"]
  dependencies: ["c"]
test:
  command: ["pytest"]
`
		_, err := load(t, broken)
		assert.ErrorContains(t, err, "setup.command")
	})
}
