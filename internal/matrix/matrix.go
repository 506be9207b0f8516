// Package matrix expands the two declared environment axes into the full
// Cartesian product of job combinations.
package matrix

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/verigrid/verigrid/internal/config"
)

// Combination is one point in the environment matrix: one OS image paired
// with one interpreter version. Combinations are values; they carry no state.
type Combination struct {
	OS          string
	Interpreter string
}

// Key returns the human-readable identity of the combination, used as the
// job instance key and in log lines.
func (c Combination) Key() string {
	return fmt.Sprintf("%s/%s", c.OS, c.Interpreter)
}

// Values returns the combination as a cty object for use as the `matrix`
// variable in step command templates.
func (c Combination) Values() cty.Value {
	return cty.ObjectVal(map[string]cty.Value{
		"os":          cty.StringVal(c.OS),
		"interpreter": cty.StringVal(c.Interpreter),
	})
}

// Expand materializes the Cartesian product of the matrix axes. The result
// is deterministic and OS-major: all interpreters of the first OS, then all
// of the second, and so on. len(result) == len(os) * len(interpreters).
func Expand(m config.Matrix) []Combination {
	combos := make([]Combination, 0, len(m.OS)*len(m.Interpreters))
	for _, os := range m.OS {
		for _, interp := range m.Interpreters {
			combos = append(combos, Combination{OS: os, Interpreter: interp})
		}
	}
	return combos
}
