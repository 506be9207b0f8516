package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	PipelinePath string // hcl or yaml pipeline definition
	Event        string // push, pull_request or schedule
	Revision     string // revision the event points at
	Wait         bool   // for schedule events: block until the next cron tick

	WorkDir         string // parent directory for per-job workspaces
	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	WorkerCount     int
}

// NewConfig validates the configuration assembled by the CLI layer.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.PipelinePath == "" {
		return nil, errors.New("PipelinePath is a required configuration field and cannot be empty")
	}
	if cfg.Event == "" {
		return nil, errors.New("Event is a required configuration field and cannot be empty")
	}
	return &cfg, nil
}
