package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/verigrid/verigrid/internal/config"
	"github.com/verigrid/verigrid/internal/coverage"
	"github.com/verigrid/verigrid/internal/ctxlog"
	"github.com/verigrid/verigrid/internal/executor"
	"github.com/verigrid/verigrid/internal/steprun"
	"github.com/verigrid/verigrid/internal/trigger"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	pipeline *config.Pipeline
	triggers *trigger.Set

	backend  steprun.Backend
	uploader coverage.Uploader
	result   *executor.RunResult
}

// Option overrides one of the app's production collaborators, primarily for
// tests.
type Option func(*App)

// WithBackend substitutes the command execution backend.
func WithBackend(b steprun.Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithUploader substitutes the coverage uploader.
func WithUploader(u coverage.Uploader) Option {
	return func(a *App) { a.uploader = u }
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and a loaded,
// validated pipeline. A failure to load the pipeline is a fatal startup
// error and panics; the entrypoint recovers it into a clean exit.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader, opts ...Option) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	pipeline, err := loader.Load(ctx, appConfig.PipelinePath)
	if err != nil {
		panic(fmt.Errorf("failed to load pipeline definition: %w", err))
	}
	logger.Debug("Pipeline definition loaded and validated.", "pipeline", pipeline.Name)

	triggers, err := trigger.NewSet(pipeline.Triggers)
	if err != nil {
		panic(fmt.Errorf("failed to build trigger set: %w", err))
	}
	logger.Debug("Trigger set built.",
		"push", triggers.Fires(trigger.KindPush),
		"pull_request", triggers.Fires(trigger.KindPullRequest),
		"schedule", triggers.Spec(),
	)

	a := &App{
		outW:     outW,
		logger:   logger,
		config:   appConfig,
		pipeline: pipeline,
		triggers: triggers,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Pipeline returns the loaded pipeline model. This is primarily for testing.
func (a *App) Pipeline() *config.Pipeline {
	return a.pipeline
}

// Result returns the outcome of the last run. This is primarily for testing.
func (a *App) Result() *executor.RunResult {
	return a.result
}
