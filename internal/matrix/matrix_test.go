package matrix

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/verigrid/verigrid/internal/config"
)

func referenceMatrix() config.Matrix {
	return config.Matrix{
		OS:           []string{"ubuntu-18.04", "ubuntu-20.04", "macos-10.15", "macos-11.0", "windows-2019"},
		Interpreters: []string{"3.7", "3.8", "3.9", "3.10"},
	}
}

func TestExpand(t *testing.T) {
	t.Run("reference matrix yields exactly 20 combinations", func(t *testing.T) {
		combos := Expand(referenceMatrix())
		require.Len(t, combos, 20)

		seen := make(map[string]struct{}, len(combos))
		for _, c := range combos {
			_, dup := seen[c.Key()]
			assert.False(t, dup, "duplicate combination %s", c.Key())
			seen[c.Key()] = struct{}{}
		}
	})

	t.Run("expansion is deterministic and OS-major", func(t *testing.T) {
		m := config.Matrix{OS: []string{"a", "b"}, Interpreters: []string{"1", "2"}}
		combos := Expand(m)
		require.Len(t, combos, 4)
		assert.Equal(t, "a/1", combos[0].Key())
		assert.Equal(t, "a/2", combos[1].Key())
		assert.Equal(t, "b/1", combos[2].Key())
		assert.Equal(t, "b/2", combos[3].Key())
	})

	t.Run("empty axis yields no combinations", func(t *testing.T) {
		assert.Empty(t, Expand(config.Matrix{OS: []string{"a"}}))
		assert.Empty(t, Expand(config.Matrix{Interpreters: []string{"1"}}))
	})
}

// Adding or removing one value on either axis changes the total by exactly
// the other axis's length.
func TestExpandLinearGrowth(t *testing.T) {
	base := referenceMatrix()
	baseCount := len(Expand(base))

	t.Run("grow os axis", func(t *testing.T) {
		grown := referenceMatrix()
		grown.OS = append(grown.OS, "ubuntu-22.04")
		assert.Equal(t, baseCount+len(base.Interpreters), len(Expand(grown)))
	})

	t.Run("shrink os axis", func(t *testing.T) {
		shrunk := referenceMatrix()
		shrunk.OS = shrunk.OS[:len(shrunk.OS)-1]
		assert.Equal(t, baseCount-len(base.Interpreters), len(Expand(shrunk)))
	})

	t.Run("grow interpreter axis", func(t *testing.T) {
		grown := referenceMatrix()
		grown.Interpreters = append(grown.Interpreters, "3.11")
		assert.Equal(t, baseCount+len(base.OS), len(Expand(grown)))
	})

	t.Run("shrink interpreter axis", func(t *testing.T) {
		shrunk := referenceMatrix()
		shrunk.Interpreters = shrunk.Interpreters[:len(shrunk.Interpreters)-1]
		assert.Equal(t, baseCount-len(base.OS), len(Expand(shrunk)))
	})
}

func TestCombinationKey(t *testing.T) {
	c := Combination{OS: "ubuntu-20.04", Interpreter: "3.9"}
	assert.Equal(t, "ubuntu-20.04/3.9", c.Key())
}

func TestCombinationValues(t *testing.T) {
	c := Combination{OS: "macos-11.0", Interpreter: "3.10"}
	v := c.Values()

	require.True(t, v.Type().IsObjectType())
	assert.Equal(t, cty.StringVal("macos-11.0"), v.GetAttr("os"))
	assert.Equal(t, cty.StringVal("3.10"), v.GetAttr("interpreter"))
}

func ExampleExpand() {
	combos := Expand(config.Matrix{
		OS:           []string{"linux", "windows"},
		Interpreters: []string{"3.9"},
	})
	for _, c := range combos {
		fmt.Println(c.Key())
	}
	// Output:
	// linux/3.9
	// windows/3.9
}
