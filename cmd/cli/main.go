package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/verigrid/verigrid/internal/app"
	"github.com/verigrid/verigrid/internal/cli"
	"github.com/verigrid/verigrid/internal/config"
	"github.com/verigrid/verigrid/internal/hclcfg"
	"github.com/verigrid/verigrid/internal/yamlcfg"
)

// main is the entrypoint for the verigrid application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// The real main function handles errors and exit codes.
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(outW io.Writer, args []string) error {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	// The app panics on critical startup errors, so we recover here to
	// provide a clean exit message to the user.
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(outW, "A critical startup error occurred: %v\n", r)
			os.Exit(1)
		}
	}()

	verigridApp := app.NewApp(outW, appConfig, loaderFor(appConfig.PipelinePath))

	return verigridApp.Run(context.Background())
}

// loaderFor picks the pipeline loader from the file extension. HCL is the
// default for anything that is not YAML.
func loaderFor(path string) config.Loader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yamlcfg.NewLoader()
	default:
		return hclcfg.NewLoader()
	}
}
