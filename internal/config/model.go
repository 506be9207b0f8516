package config

import (
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2"
)

// Pipeline is the unified, format-agnostic representation of a pipeline
// definition, regardless of whether it was loaded from HCL or YAML.
type Pipeline struct {
	Name     string
	Source   string
	Triggers Triggers
	Matrix   Matrix
	Env      map[string]string
	Checkout Checkout
	Setup    Setup
	Install  Install
	Test     Test
	Coverage Coverage
}

// Triggers is the declared trigger set. Schedule is a standard 5-field cron
// expression; empty means no scheduled trigger.
type Triggers struct {
	Push        bool
	PullRequest bool
	Schedule    string
}

// Matrix holds the two environment axes. Expansion is their Cartesian
// product, one job instance per combination.
type Matrix struct {
	OS           []string
	Interpreters []string
}

// Checkout configures the source acquisition step.
type Checkout struct {
	// Depth limits git history when cloning. 0 means a full clone.
	Depth int
}

// Setup configures interpreter provisioning. Command evaluates to the
// interpreter argv for a combination, e.g. ["python${matrix.interpreter}"].
type Setup struct {
	Command hcl.Expression
}

// Install configures the three dependency installation sub-steps, in the
// order they run. Each failure is fatal to the job.
type Install struct {
	PackagingTool hcl.Expression
	Manager       hcl.Expression
	Dependencies  hcl.Expression
}

// Test configures the test step. ConfigFile, when set, is passed explicitly
// on the command line as ConfigFlag=ConfigFile; the coverage tool of the
// originating ecosystem mis-discovers its configuration file otherwise.
type Test struct {
	Command    hcl.Expression
	ConfigFlag string
	ConfigFile string
	ReportPath string
}

// Coverage configures the report artifact and where to send it.
type Coverage struct {
	Format    string
	UploadURL string
}

// DefaultConfigFlag is used when a test block sets config_file but no
// config_flag.
const DefaultConfigFlag = "--cov-config"

// DefaultReportPath is where the test step is expected to leave its report
// when the pipeline does not say otherwise.
const DefaultReportPath = "coverage.xml"

// Validate checks the structural integrity of the model. Format loaders call
// it after translation; a validation failure is a fatal startup error.
func (p *Pipeline) Validate() error {
	if p.Name == "" {
		return errors.New("pipeline name must not be empty")
	}
	if p.Source == "" {
		return errors.New("pipeline source must not be empty")
	}
	if !p.Triggers.Push && !p.Triggers.PullRequest && p.Triggers.Schedule == "" {
		return errors.New("pipeline declares no triggers; at least one of push, pull_request or schedule is required")
	}
	if len(p.Matrix.OS) == 0 {
		return errors.New("matrix os axis must not be empty")
	}
	if len(p.Matrix.Interpreters) == 0 {
		return errors.New("matrix interpreter axis must not be empty")
	}
	if err := noDuplicates("os", p.Matrix.OS); err != nil {
		return err
	}
	if err := noDuplicates("interpreter", p.Matrix.Interpreters); err != nil {
		return err
	}
	if p.Setup.Command == nil {
		return errors.New("setup block must declare a command")
	}
	if p.Install.PackagingTool == nil || p.Install.Manager == nil || p.Install.Dependencies == nil {
		return errors.New("install block must declare packaging_tool, manager and dependencies")
	}
	if p.Test.Command == nil {
		return errors.New("test block must declare a command")
	}
	return nil
}

func noDuplicates(axis string, values []string) error {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			return fmt.Errorf("matrix %s axis contains an empty value", axis)
		}
		if _, dup := seen[v]; dup {
			return fmt.Errorf("matrix %s axis contains duplicate value %q", axis, v)
		}
		seen[v] = struct{}{}
	}
	return nil
}
