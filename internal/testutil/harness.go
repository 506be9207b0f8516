package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/verigrid/verigrid/internal/app"
	"github.com/verigrid/verigrid/internal/config"
	"github.com/verigrid/verigrid/internal/hclcfg"
	"github.com/verigrid/verigrid/internal/yamlcfg"
)

// SourceToken in a pipeline file is replaced with the harness's generated
// source directory, so definitions can reference a local checkout source
// without knowing the temp path.
const SourceToken = "__SOURCE__"

// HarnessOptions configures one harnessed pipeline run.
type HarnessOptions struct {
	Event    string
	Revision string
	Workers  int
	Backend  *FakeBackend
	Uploader *FakeUploader
}

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	LogOutput string
	Err       error
	App       *app.App
	Backend   *FakeBackend
	Uploader  *FakeUploader
}

// RunPipelineTest provides a standardized harness for running integration
// tests: it writes the given definition files to a temp directory, creates a
// dummy source tree, runs the app end to end with scripted fakes, and
// returns the captured outcome.
func RunPipelineTest(t *testing.T, files map[string]string, pipelineFile string, opts HarnessOptions) *HarnessResult {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", ".tmp-integration-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	srcDir := filepath.Join(tmpDir, "source")
	workDir := filepath.Join(tmpDir, "work")
	require.NoError(t, os.MkdirAll(srcDir, 0o755))
	require.NoError(t, os.MkdirAll(workDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "README"), []byte("fixture source tree\n"), 0o644))

	for name, content := range files {
		filePath := filepath.Join(tmpDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0o755))
		content = strings.ReplaceAll(content, SourceToken, srcDir)
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0o644))
	}

	if opts.Event == "" {
		opts.Event = "push"
	}
	if opts.Workers == 0 {
		opts.Workers = 4
	}
	if opts.Backend == nil {
		opts.Backend = &FakeBackend{ReportOn: "pytest"}
	}
	if opts.Uploader == nil {
		opts.Uploader = &FakeUploader{}
	}

	appConfig := &app.Config{
		PipelinePath: filepath.Join(tmpDir, pipelineFile),
		Event:        opts.Event,
		Revision:     opts.Revision,
		WorkDir:      workDir,
		LogLevel:     "debug",
		LogFormat:    "text",
		WorkerCount:  opts.Workers,
	}

	logBuffer := &SafeBuffer{}

	var testApp *app.App
	var panicErr any
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicErr = r
			}
		}()
		testApp = app.NewApp(logBuffer, appConfig, loaderFor(pipelineFile),
			app.WithBackend(opts.Backend),
			app.WithUploader(opts.Uploader),
		)
	}()

	if panicErr != nil {
		return &HarnessResult{
			LogOutput: logBuffer.String(),
			Err:       fmt.Errorf("application startup panicked | %v", panicErr),
			Backend:   opts.Backend,
			Uploader:  opts.Uploader,
		}
	}

	runErr := testApp.Run(context.Background())

	if os.Getenv("VERIGRID_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
	}

	return &HarnessResult{
		LogOutput: logBuffer.String(),
		Err:       runErr,
		App:       testApp,
		Backend:   opts.Backend,
		Uploader:  opts.Uploader,
	}
}

func loaderFor(path string) config.Loader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yamlcfg.NewLoader()
	default:
		return hclcfg.NewLoader()
	}
}
