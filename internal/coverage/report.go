// Package coverage handles the coverage report artifact: locating the file a
// test run produced and transmitting it to the external aggregation service.
package coverage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Tags identify which run and which job instance a report belongs to.
// Concurrent uploads from different instances are uncoordinated; the tags are
// what keeps them apart on the aggregation side.
type Tags struct {
	RunID       string
	JobID       string
	OS          string
	Interpreter string
	Revision    string
	Event       string
}

// Report is a located coverage artifact, ready for upload.
type Report struct {
	Path   string
	Format string
	Size   int64
	Tags   Tags
}

// Locate resolves the report the test step left behind. A missing or empty
// file is an error: there is nothing to upload.
func Locate(dir, relPath, format string, tags Tags) (*Report, error) {
	path := filepath.Join(dir, relPath)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("coverage report not found at %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("coverage report path %s is a directory", path)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("coverage report %s is empty", path)
	}
	return &Report{Path: path, Format: format, Size: info.Size(), Tags: tags}, nil
}
