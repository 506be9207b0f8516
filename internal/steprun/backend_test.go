package steprun

import (
	"context"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecBackend(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available on this host")
	}
	b := NewExecBackend()
	env := []string{"PATH=" + os.Getenv("PATH")}

	t.Run("success", func(t *testing.T) {
		res, err := b.Run(context.Background(), CommandSpec{
			Argv: []string{"sh", "-c", "echo hello"},
			Dir:  t.TempDir(),
			Env:  env,
		})
		require.NoError(t, err)
		assert.Equal(t, 0, res.ExitCode)
		assert.Contains(t, string(res.Stdout), "hello")
	})

	t.Run("non-zero exit is not an error", func(t *testing.T) {
		res, err := b.Run(context.Background(), CommandSpec{
			Argv: []string{"sh", "-c", "echo oops >&2; exit 3"},
			Dir:  t.TempDir(),
			Env:  env,
		})
		require.NoError(t, err)
		assert.Equal(t, 3, res.ExitCode)
		assert.Contains(t, string(res.Stderr), "oops")
	})

	t.Run("restricted environment", func(t *testing.T) {
		res, err := b.Run(context.Background(), CommandSpec{
			Argv: []string{"sh", "-c", "echo ${LEAKED_SECRET:-unset}"},
			Dir:  t.TempDir(),
			Env:  env,
		})
		require.NoError(t, err)
		assert.Contains(t, string(res.Stdout), "unset")
	})

	t.Run("missing binary is a spawn error", func(t *testing.T) {
		_, err := b.Run(context.Background(), CommandSpec{
			Argv: []string{"definitely-not-a-real-binary-xyz"},
			Dir:  t.TempDir(),
			Env:  env,
		})
		assert.Error(t, err)
	})

	t.Run("empty command", func(t *testing.T) {
		_, err := b.Run(context.Background(), CommandSpec{Dir: t.TempDir()})
		assert.ErrorContains(t, err, "empty command")
	})
}
