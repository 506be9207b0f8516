// Package yamlcfg loads pipeline definitions written in YAML. Command
// strings are parsed as HCL templates so that `${matrix.os}` and
// `${matrix.interpreter}` interpolate identically in both supported formats.
package yamlcfg

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"gopkg.in/yaml.v2"

	"github.com/verigrid/verigrid/internal/config"
	"github.com/verigrid/verigrid/internal/ctxlog"
)

// Loader implements config.Loader for .yaml / .yml pipeline files.
type Loader struct{}

// NewLoader constructs a YAML loader.
func NewLoader() *Loader {
	return &Loader{}
}

// argvYAML accepts either a scalar command string or a sequence of argv
// elements.
type argvYAML []string

func (a *argvYAML) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var list []string
	if err := unmarshal(&list); err == nil {
		*a = list
		return nil
	}
	var scalar string
	if err := unmarshal(&scalar); err != nil {
		return err
	}
	*a = []string{scalar}
	return nil
}

type pipelineYAML struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
	On     struct {
		Push        bool   `yaml:"push"`
		PullRequest bool   `yaml:"pull_request"`
		Schedule    string `yaml:"schedule"`
	} `yaml:"on"`
	Matrix struct {
		OS          []string `yaml:"os"`
		Interpreter []string `yaml:"interpreter"`
	} `yaml:"matrix"`
	Env      map[string]string `yaml:"env"`
	Checkout struct {
		Depth int `yaml:"depth"`
	} `yaml:"checkout"`
	Setup struct {
		Command argvYAML `yaml:"command"`
	} `yaml:"setup"`
	Install struct {
		PackagingTool argvYAML `yaml:"packaging_tool"`
		Manager       argvYAML `yaml:"manager"`
		Dependencies  argvYAML `yaml:"dependencies"`
	} `yaml:"install"`
	Test struct {
		Command    argvYAML `yaml:"command"`
		ConfigFlag string   `yaml:"config_flag"`
		ConfigFile string   `yaml:"config_file"`
		ReportPath string   `yaml:"report_path"`
	} `yaml:"test"`
	Coverage struct {
		Format    string `yaml:"format"`
		UploadURL string `yaml:"upload_url"`
	} `yaml:"coverage"`
}

// Load parses and translates the pipeline definition at path.
func (l *Loader) Load(ctx context.Context, path string) (*config.Pipeline, error) {
	logger := ctxlog.FromContext(ctx)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var in pipelineYAML
	if err := yaml.UnmarshalStrict(raw, &in); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	p, err := translate(&in)
	if err != nil {
		return nil, fmt.Errorf("translating %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline %q: %w", p.Name, err)
	}

	logger.Debug("Pipeline definition loaded.", "name", p.Name, "path", path, "format", "yaml")
	return p, nil
}

func translate(in *pipelineYAML) (*config.Pipeline, error) {
	setup, err := templateExpr(in.Setup.Command, "setup.command")
	if err != nil {
		return nil, err
	}
	packaging, err := templateExpr(in.Install.PackagingTool, "install.packaging_tool")
	if err != nil {
		return nil, err
	}
	manager, err := templateExpr(in.Install.Manager, "install.manager")
	if err != nil {
		return nil, err
	}
	deps, err := templateExpr(in.Install.Dependencies, "install.dependencies")
	if err != nil {
		return nil, err
	}
	test, err := templateExpr(in.Test.Command, "test.command")
	if err != nil {
		return nil, err
	}

	p := &config.Pipeline{
		Name:   in.Name,
		Source: in.Source,
		Env:    in.Env,
		Triggers: config.Triggers{
			Push:        in.On.Push,
			PullRequest: in.On.PullRequest,
			Schedule:    in.On.Schedule,
		},
		Matrix: config.Matrix{
			OS:           in.Matrix.OS,
			Interpreters: in.Matrix.Interpreter,
		},
		Checkout: config.Checkout{Depth: in.Checkout.Depth},
		Setup:    config.Setup{Command: setup},
		Install: config.Install{
			PackagingTool: packaging,
			Manager:       manager,
			Dependencies:  deps,
		},
		Test: config.Test{
			Command:    test,
			ConfigFlag: in.Test.ConfigFlag,
			ConfigFile: in.Test.ConfigFile,
			ReportPath: in.Test.ReportPath,
		},
		Coverage: config.Coverage{
			Format:    in.Coverage.Format,
			UploadURL: in.Coverage.UploadURL,
		},
	}
	if p.Coverage.Format == "" {
		p.Coverage.Format = "cobertura"
	}
	return p, nil
}

// templateExpr turns a YAML argv into an HCL tuple expression whose elements
// are string templates. An empty argv translates to a nil expression so the
// model's validation reports the missing command.
func templateExpr(parts argvYAML, name string) (hcl.Expression, error) {
	if len(parts) == 0 {
		return nil, nil
	}
	exprs := make([]hclsyntax.Expression, len(parts))
	for i, part := range parts {
		expr, diags := hclsyntax.ParseTemplate([]byte(part), fmt.Sprintf("%s[%d]", name, i), hcl.InitialPos)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parsing %s element %d: %w", name, i, diags)
		}
		exprs[i] = expr
	}
	return &hclsyntax.TupleConsExpr{Exprs: exprs}, nil
}
