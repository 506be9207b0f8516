package config

import "context"

// Loader is the interface for a format-specific pipeline loader. Load reads
// the definition at path and translates it into the format-agnostic model.
type Loader interface {
	Load(ctx context.Context, path string) (*Pipeline, error)
}
