package hclcfg

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
pipeline "mail-dedup" {
  source = "https://example.com/mail-dedup.git"

  env = {
    PIP_DISABLE_PIP_VERSION_CHECK = "1"
  }

  on {
    push         = true
    pull_request = true
    schedule     = "0 4 * * 1"
  }

  matrix {
    os          = ["ubuntu-18.04", "ubuntu-20.04", "macos-10.15", "macos-11.0", "windows-2019"]
    interpreter = ["3.7", "3.8", "3.9", "3.10"]
  }

  checkout {
    depth = 1
  }

  setup {
    command = "python${matrix.interpreter}"
  }

  install {
    packaging_tool = ["python${matrix.interpreter}", "-m", "pip", "install", "--upgrade", "pip"]
    manager        = ["python${matrix.interpreter}", "-m", "pip", "install", "poetry"]
    dependencies   = ["poetry", "install"]
  }

  test {
    command     = ["poetry", "run", "pytest", "--cov", "--cov-report=xml"]
    config_file = ".coveragerc"
    report_path = "coverage.xml"
  }

  coverage {
    format     = "cobertura"
    upload_url = "https://coverage.example.com/api/v1/reports"
  }
}
`

func load(t *testing.T, content string) (*config.Pipeline, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return NewLoader().Load(context.Background(), path)
}

func TestLoad(t *testing.T) {
	p, err := load(t, referencePipeline)
	require.NoError(t, err)

	assert.Equal(t, "mail-dedup", p.Name)
	assert.Equal(t, "https://example.com/mail-dedup.git", p.Source)
	assert.Equal(t, map[string]string{"PIP_DISABLE_PIP_VERSION_CHECK": "1"}, p.Env)

	assert.True(t, p.Triggers.Push)
	assert.True(t, p.Triggers.PullRequest)
	assert.Equal(t, "0 4 * * 1", p.Triggers.Schedule)

	assert.Len(t, p.Matrix.OS, 5)
	assert.Len(t, p.Matrix.Interpreters, 4)

	assert.Equal(t, 1, p.Checkout.Depth)
	assert.Equal(t, ".coveragerc", p.Test.ConfigFile)
	assert.Equal(t, "coverage.xml", p.Test.ReportPath)
	assert.Equal(t, "cobertura", p.Coverage.Format)
	assert.Equal(t, "https://coverage.example.com/api/v1/reports", p.Coverage.UploadURL)
}

// Command expressions stay unevaluated until a job supplies its combination.
func TestLoadLateEvaluation(t *testing.T) {
	p, err := load(t, referencePipeline)
	require.NoError(t, err)

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"matrix": cty.ObjectVal(map[string]cty.Value{
				"os":          cty.StringVal("ubuntu-20.04"),
				"interpreter": cty.StringVal("3.8"),
			}),
		},
	}

	setup, err := config.Argv(p.Setup.Command, evalCtx)
	require.NoError(t, err)
	assert.Equal(t, []string{"python3.8"}, setup)

	packaging, err := config.Argv(p.Install.PackagingTool, evalCtx)
	require.NoError(t, err)
	assert.Equal(t, []string{"python3.8", "-m", "pip", "install", "--upgrade", "pip"}, packaging)

	test, err := config.Argv(p.Test.Command, evalCtx)
	require.NoError(t, err)
	assert.Equal(t, []string{"poetry", "run", "pytest", "--cov", "--cov-report=xml"}, test)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := NewLoader().Load(context.Background(), filepath.Join(t.TempDir(), "nope.hcl"))
		assert.Error(t, err)
	})

	t.Run("no pipeline block", func(t *testing.T) {
		_, err := load(t, ``)
		assert.Error(t, err)
	})

	t.Run("syntax error", func(t *testing.T) {
		_, err := load(t, `pipeline "x" {`)
		assert.ErrorContains(t, err, "parsing")
	})

	t.Run("validation failure surfaces", func(t *testing.T) {
		broken := `
pipeline "x" {
  source = "https://example.com/x.git"
  on {}
  matrix {
    os          = ["linux"]
    interpreter = ["3.9"]
  }
  setup { command = "python3.9" }
  install {
    packaging_tool = ["a"]
    manager        = ["b"]
    dependencies   = ["c"]
  }
  test { command = ["pytest"] }
}
`
		_, err := load(t, broken)
		assert.ErrorContains(t, err, "no triggers")
	})
}

func TestLoadDefaults(t *testing.T) {
	minimal := `
pipeline "min" {
  source = "https://example.com/min.git"
  on { push = true }
  matrix {
    os          = ["linux"]
    interpreter = ["3.9"]
  }
  setup { command = "python3.9" }
  install {
    packaging_tool = ["a"]
    manager        = ["b"]
    dependencies   = ["c"]
  }
  test { command = ["pytest"] }
}
`
	p, err := load(t, minimal)
	require.NoError(t, err)
	assert.Equal(t, "cobertura", p.Coverage.Format)
	assert.Zero(t, p.Checkout.Depth)
	assert.Empty(t, p.Coverage.UploadURL)
}
