// Package platform resolves where the application keeps its files.
package platform

import (
	"fmt"
	"os"
	"path/filepath"
)

// AppName is the directory name used below the user's config directory.
const AppName = "zugferd-manager"

// Dirs locates application data.
type Dirs interface {
	// DataDir holds the JSON documents.
	DataDir() string
	// QuarantineDir receives documents that could not be read.
	QuarantineDir() string
}

// Desktop places data in the per-user configuration directory of the
// operating system, e.g. ~/.config/zugferd-manager on Linux.
type Desktop struct {
	dataDir string
}

// NewDesktop resolves the data directory. A non-empty override wins over the
// operating system default.
func NewDesktop(override string) (*Desktop, error) {
	if override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return nil, fmt.Errorf("platform: resolve data directory %q: %w", override, err)
		}
		return &Desktop{dataDir: abs}, nil
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("platform: no user config directory: %w", err)
	}
	return &Desktop{dataDir: filepath.Join(base, AppName)}, nil
}

func (d *Desktop) DataDir() string {
	return d.dataDir
}

func (d *Desktop) QuarantineDir() string {
	return filepath.Join(d.dataDir, "quarantine")
}

// Static is a fixed directory, used by tests and by callers that already
// know where the data lives.
type Static string

func (s Static) DataDir() string {
	return string(s)
}

func (s Static) QuarantineDir() string {
	return filepath.Join(string(s), "quarantine")
}
