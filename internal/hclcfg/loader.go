// Package hclcfg loads pipeline definitions written in HCL and translates
// them into the format-agnostic config model. Step command attributes are
// deliberately not evaluated here; they stay expressions until a job instance
// supplies its matrix combination.
package hclcfg

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/verigrid/verigrid/internal/config"
	"github.com/verigrid/verigrid/internal/ctxlog"
)

// Loader implements config.Loader for .hcl pipeline files.
type Loader struct {
	parser *hclparse.Parser
}

// NewLoader constructs an HCL loader.
func NewLoader() *Loader {
	return &Loader{parser: hclparse.NewParser()}
}

type rootHCL struct {
	Pipeline *pipelineHCL `hcl:"pipeline,block"`
}

type pipelineHCL struct {
	Name     string            `hcl:"name,label"`
	Source   string            `hcl:"source"`
	Env      map[string]string `hcl:"env,optional"`
	On       onHCL             `hcl:"on,block"`
	Matrix   matrixHCL         `hcl:"matrix,block"`
	Checkout *checkoutHCL      `hcl:"checkout,block"`
	Setup    setupHCL          `hcl:"setup,block"`
	Install  installHCL        `hcl:"install,block"`
	Test     testHCL           `hcl:"test,block"`
	Coverage *coverageHCL      `hcl:"coverage,block"`
}

type onHCL struct {
	Push        bool   `hcl:"push,optional"`
	PullRequest bool   `hcl:"pull_request,optional"`
	Schedule    string `hcl:"schedule,optional"`
}

type matrixHCL struct {
	OS          []string `hcl:"os"`
	Interpreter []string `hcl:"interpreter"`
}

type checkoutHCL struct {
	Depth int `hcl:"depth,optional"`
}

type setupHCL struct {
	Command hcl.Expression `hcl:"command"`
}

type installHCL struct {
	PackagingTool hcl.Expression `hcl:"packaging_tool"`
	Manager       hcl.Expression `hcl:"manager"`
	Dependencies  hcl.Expression `hcl:"dependencies"`
}

type testHCL struct {
	Command    hcl.Expression `hcl:"command"`
	ConfigFlag string         `hcl:"config_flag,optional"`
	ConfigFile string         `hcl:"config_file,optional"`
	ReportPath string         `hcl:"report_path,optional"`
}

type coverageHCL struct {
	Format    string `hcl:"format,optional"`
	UploadURL string `hcl:"upload_url,optional"`
}

// Load parses and translates the pipeline definition at path.
func (l *Loader) Load(ctx context.Context, path string) (*config.Pipeline, error) {
	logger := ctxlog.FromContext(ctx)

	file, diags := l.parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing %s: %w", path, diags)
	}

	var root rootHCL
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("decoding %s: %w", path, diags)
	}
	if root.Pipeline == nil {
		return nil, errors.New("definition contains no pipeline block")
	}

	p := translate(root.Pipeline)
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline %q: %w", p.Name, err)
	}

	logger.Debug("Pipeline definition loaded.", "name", p.Name, "path", path, "format", "hcl")
	return p, nil
}

func translate(in *pipelineHCL) *config.Pipeline {
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
		Setup: config.Setup{Command: in.Setup.Command},
		Install: config.Install{
			PackagingTool: in.Install.PackagingTool,
			Manager:       in.Install.Manager,
			Dependencies:  in.Install.Dependencies,
		},
		Test: config.Test{
			Command:    in.Test.Command,
			ConfigFlag: in.Test.ConfigFlag,
			ConfigFile: in.Test.ConfigFile,
			ReportPath: in.Test.ReportPath,
		},
	}
	if in.Checkout != nil {
		p.Checkout = config.Checkout{Depth: in.Checkout.Depth}
	}
	if in.Coverage != nil {
		p.Coverage = config.Coverage{Format: in.Coverage.Format, UploadURL: in.Coverage.UploadURL}
	}
	if p.Coverage.Format == "" {
		p.Coverage.Format = "cobertura"
	}
	return p
}
