package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// Argv evaluates a command expression against the given eval context and
// returns it as an argv slice. A list or tuple of strings maps element-wise;
// a bare string becomes a single-element argv.
func Argv(expr hcl.Expression, evalCtx *hcl.EvalContext) ([]string, error) {
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return nil, fmt.Errorf("evaluating command expression: %w", diags)
	}

	if val.Type() == cty.String {
		return []string{val.AsString()}, nil
	}

	if !val.Type().IsTupleType() && !val.Type().IsListType() {
		return nil, fmt.Errorf("command must be a string or a list of strings, got %s", val.Type().FriendlyName())
	}

	var argv []string
	for it := val.ElementIterator(); it.Next(); {
		_, elem := it.Element()
		if elem.Type() != cty.String {
			return nil, fmt.Errorf("command element must be a string, got %s", elem.Type().FriendlyName())
		}
		if elem.IsNull() {
			return nil, fmt.Errorf("command element must not be null")
		}
		argv = append(argv, elem.AsString())
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("command must not be empty")
	}
	return argv, nil
}
